// 包 bridge：宿主侧的渲染桥接状态机、失败分类与串行事件会话
package bridge

import "fmt"

// Phase：一次加载周期所处阶段
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseLoaded
	PhaseErrored
)

func (p Phase) String() string {
	switch p {
	case PhaseLoaded:
		return "loaded"
	case PhaseErrored:
		return "errored"
	default:
		return "loading"
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(b []byte) error {
	switch string(b) {
	case "loading":
		*p = PhaseLoading
	case "loaded":
		*p = PhaseLoaded
	case "errored":
		*p = PhaseErrored
	default:
		return fmt.Errorf("bridge: unknown phase %q", b)
	}
	return nil
}

// FailureKind：失败分类
type FailureKind int

const (
	// FailureTransport：渲染端完全无法加载文档
	FailureTransport FailureKind = iota + 1
	// FailureHTTP：文档请求返回非成功状态码
	FailureHTTP
	// FailureReported：文档脚本上报的错误（凭证无效、地图脚本异常等）
	FailureReported
	// FailureTimeout：时限内既无成功也无失败
	FailureTimeout
)

func (k FailureKind) String() string {
	switch k {
	case FailureTransport:
		return "transport"
	case FailureHTTP:
		return "http"
	case FailureReported:
		return "reported"
	case FailureTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

func (k FailureKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *FailureKind) UnmarshalText(b []byte) error {
	for _, c := range []FailureKind{FailureTransport, FailureHTTP, FailureReported, FailureTimeout} {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("bridge: unknown failure kind %q", b)
}

// Failure：lastError 的取值
type Failure struct {
	Kind       FailureKind `json:"kind"`
	Detail     string      `json:"detail,omitempty"`
	StatusCode int         `json:"statusCode,omitempty"`
}

func (f Failure) Error() string {
	switch f.Kind {
	case FailureHTTP:
		return fmt.Sprintf("http failure (%d)", f.StatusCode)
	case FailureTimeout:
		return "timeout"
	default:
		return f.Kind.String() + " failure: " + f.Detail
	}
}

// State：宿主独占的桥接状态
type State struct {
	Phase          Phase    `json:"phase"`
	DiagnosticMode bool     `json:"diagnosticMode"`
	LastError      *Failure `json:"lastError,omitempty"`
	Generation     uint64   `json:"generation"`
	// RendererLoaded：原生加载完成回调已到达（不改变 Phase）
	RendererLoaded bool `json:"rendererLoaded"`
}

// Cycle：Start 产生的加载周期，调用方据此重新生成并呈现文档
type Cycle struct {
	Generation uint64
	Diagnostic bool
}

// 文档注释：桥接状态机
// 背景：Loading -> {Loaded, Errored}；Loaded/Errored 只能经 Start 回到 Loading，没有终态。
// 约束：不加锁，由 Session 的单一事件循环串行驱动；每个事件携带代号，代号与当前不符即丢弃。
type Machine struct {
	state State
}

// NewMachine：初始为 Loading、非诊断模式、代号 0（首次 Start 之前）
func NewMachine() *Machine {
	return &Machine{state: State{Phase: PhaseLoading}}
}

func (m *Machine) State() State {
	s := m.state
	if s.LastError != nil {
		f := *s.LastError
		s.LastError = &f
	}
	return s
}

// Start：进入新加载周期；模式显式传入
func (m *Machine) Start(diagnostic bool) Cycle {
	m.state.Generation++
	m.state.Phase = PhaseLoading
	m.state.LastError = nil
	m.state.RendererLoaded = false
	m.state.DiagnosticMode = diagnostic
	return Cycle{Generation: m.state.Generation, Diagnostic: diagnostic}
}

// ToggleDiagnosticMode：翻转模式并无条件 Start，是唯一面向运维的恢复路径
func (m *Machine) ToggleDiagnosticMode() Cycle {
	return m.Start(!m.state.DiagnosticMode)
}

func (m *Machine) current(gen uint64) bool { return gen == m.state.Generation }

func (m *Machine) fail(f Failure) {
	m.state.Phase = PhaseErrored
	m.state.LastError = &f
}

func (m *Machine) OnTransportFailure(gen uint64, detail string) bool {
	if !m.current(gen) {
		return false
	}
	m.fail(Failure{Kind: FailureTransport, Detail: detail})
	return true
}

func (m *Machine) OnHTTPFailure(gen uint64, statusCode int) bool {
	if !m.current(gen) {
		return false
	}
	m.fail(Failure{Kind: FailureHTTP, StatusCode: statusCode})
	return true
}

// OnLoadEnd：原生加载完成；只记录，不推进 Phase（成功以渲染端消息为准）
func (m *Machine) OnLoadEnd(gen uint64) bool {
	if !m.current(gen) || m.state.RendererLoaded {
		return false
	}
	m.state.RendererLoaded = true
	return true
}

// OnMessage：成功与失败之间后写覆盖先写；log 类型不改变状态
func (m *Machine) OnMessage(gen uint64, e Envelope) bool {
	if !m.current(gen) {
		return false
	}
	switch e.Kind {
	case KindError:
		m.fail(Failure{Kind: FailureReported, Detail: e.Payload})
		return true
	case KindSuccess:
		m.state.Phase = PhaseLoaded
		m.state.LastError = nil
		return true
	case KindTimeout:
		return m.OnTimeout(gen)
	}
	return false
}

// OnTimeout：仅当前周期仍为 Loading 时生效
func (m *Machine) OnTimeout(gen uint64) bool {
	if !m.current(gen) || m.state.Phase != PhaseLoading {
		return false
	}
	m.fail(Failure{Kind: FailureTimeout})
	return true
}
