package bridge

import (
	"fmt"
	"strings"
)

const maxDetail = 200

// Status：面向宿主界面的状态行
type Status struct {
	Line     string `json:"line"`
	Blocking bool   `json:"blocking"`
	Hint     string `json:"hint,omitempty"`
}

// 文档注释：失败分类
// 背景：传输失败、HTTP 失败与超时会阻断地图显示；脚本上报的错误仅作提示，渲染端可能仍部分可用。
// 约束：任何输入都返回非空文本；未知类型按上报错误处理，不崩溃。
func Classify(f *Failure) Status {
	if f == nil {
		return Status{Line: "正常 (ok)"}
	}
	switch f.Kind {
	case FailureTransport:
		return Status{
			Line:     "WebView加载失败: " + detailOr(f.Detail, "未知原因"),
			Blocking: true,
			Hint:     "渲染端无法加载文档；切换到诊断模式确认桥接是否可用",
		}
	case FailureHTTP:
		return Status{
			Line:     fmt.Sprintf("HTTP错误 (%d)", f.StatusCode),
			Blocking: true,
			Hint:     "文档请求返回非成功状态",
		}
	case FailureTimeout:
		return Status{
			Line:     "地图加载超时，请检查网络和API密钥",
			Blocking: true,
			Hint:     "可能原因: API密钥无效、网络问题、安全限制",
		}
	default:
		return Status{
			Line: "高德地图错误: " + detailOr(f.Detail, "未知错误"),
			Hint: "地图服务上报错误；若诊断模式正常，问题在地图服务或凭证",
		}
	}
}

// Describe：结合阶段给出当前状态行
func Describe(s State) Status {
	switch s.Phase {
	case PhaseErrored:
		return Classify(s.LastError)
	case PhaseLoaded:
		if s.DiagnosticMode {
			return Status{Line: "诊断页面加载成功"}
		}
		return Status{Line: "高德地图加载成功"}
	default:
		if s.DiagnosticMode {
			return Status{Line: "加载测试页面..."}
		}
		return Status{Line: "加载高德地图中..."}
	}
}

func detailOr(s, def string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	if r := []rune(s); len(r) > maxDetail {
		return string(r[:maxDetail]) + "…"
	}
	return s
}
