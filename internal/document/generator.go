// 包 document：把门户快照序列化为可在沙箱渲染端独立执行的 HTML 文档
package document

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	"time"

	"github.com/dbsahdlks/INgress/internal/amap"
	"github.com/dbsahdlks/INgress/internal/logger"
	"github.com/dbsahdlks/INgress/internal/metrics"
	"github.com/dbsahdlks/INgress/internal/portal"
)

const (
	ColorUnclaimed   = "#FFD700"
	ColorResistance  = "#1E90FF"
	ColorEnlightened = "#32CD32"
	ColorUser        = "#FF0000"

	DefaultZoom    = 13
	DefaultTimeout = 10 * time.Second
)

// DefaultCenter：无用户位置且未配置中心点时的地图中心（北京）
var DefaultCenter = portal.LatLng{Latitude: 39.90923, Longitude: 116.397428}

var tmpl = template.Must(template.New("documents").Parse(bridgeTmpl + liveTmpl + diagnosticTmpl))

// Mode：文档变体
type Mode int

const (
	ModeLiveMap Mode = iota
	ModeDiagnostic
)

func ModeOf(diagnostic bool) Mode {
	if diagnostic {
		return ModeDiagnostic
	}
	return ModeLiveMap
}

func (m Mode) String() string {
	if m == ModeDiagnostic {
		return "diagnostic"
	}
	return "live"
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "live":
		*m = ModeLiveMap
	case "diagnostic":
		*m = ModeDiagnostic
	default:
		return fmt.Errorf("document: unknown mode %q", b)
	}
	return nil
}

// CredentialMode：地图凭证注入方式
type CredentialMode string

const (
	// CredentialInline：密钥写进引导脚本地址，文档不可缓存、不可记录
	CredentialInline CredentialMode = "inline"
	// CredentialProxy：文档引用宿主代理地址，由服务端注入密钥
	CredentialProxy CredentialMode = "proxy"
)

func (c CredentialMode) Valid() bool { return c == CredentialInline || c == CredentialProxy }

// Options：生成参数；除 Credential 外都会进入文档
type Options struct {
	Session    string
	Generation uint64
	// BridgeBase：渲染端上报地址前缀，如 /bridge/<session> 或绝对地址
	BridgeBase     string
	Credential     string
	CredentialMode CredentialMode
	ProviderBase   string
	ProxyLoaderURL string
	Center         *portal.LatLng
	Zoom           int
	Timeout        time.Duration
}

// Document：一次生成的结果
type Document struct {
	HTML       string `json:"html"`
	Mode       Mode   `json:"mode"`
	Session    string `json:"session"`
	Generation uint64 `json:"generation"`
	Markers    int    `json:"markers"`
	Omitted    []int  `json:"omitted,omitempty"`
	// HasCredential：文档内嵌密钥，禁止持久化与记录
	HasCredential bool `json:"hasCredential"`
}

type marker struct {
	ID    template.JS
	Name  string
	Lng   template.JS
	Lat   template.JS
	Color string
	Level template.JS
}

type point struct {
	Lng template.JS
	Lat template.JS
}

type view struct {
	Session     string
	Gen         template.JS
	BridgeBase  string
	TimeoutMs   template.JS
	ProviderSrc string
	Zoom        template.JS
	CenterLat   template.JS
	CenterLng   template.JS
	Markers     []marker
	User        *point
	UserColor   string
	PortalCount int
}

// ColorFor：标记颜色规则
// 约束：无所有者一律为未占领色，忽略阵营字段；有所有者时只会得到两种阵营色之一。
func ColorFor(p portal.Portal) string {
	if !p.Owned() {
		return ColorUnclaimed
	}
	if p.Faction != nil && *p.Faction == portal.FactionResistance {
		return ColorResistance
	}
	return ColorEnlightened
}

// coord：完整精度的十进制字面量（最短可精确回读的表示，不做舍入）
func coord(v float64) template.JS {
	return template.JS(strconv.FormatFloat(v, 'f', -1, 64))
}

// 文档注释：生成渲染文档
// 背景：宿主到渲染端没有运行时通道，所有数据在生成时写入文档；更新即重新生成并整页重载。
// 约束：相同输入得到逐字节相同的输出；坐标非法的门户跳过且不影响整体生成，被跳过的 id 记录在 Omitted。
func Generate(snap portal.Snapshot, mode Mode, opts Options) (Document, error) {
	t0 := time.Now()
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	v := view{
		Session:     opts.Session,
		Gen:         template.JS(strconv.FormatUint(opts.Generation, 10)),
		BridgeBase:  opts.BridgeBase,
		TimeoutMs:   template.JS(strconv.FormatInt(timeout.Milliseconds(), 10)),
		UserColor:   ColorUser,
		PortalCount: len(snap.Portals),
	}
	doc := Document{Mode: mode, Session: opts.Session, Generation: opts.Generation}

	name := "diagnostic"
	if mode == ModeLiveMap {
		name = "live"
		switch opts.CredentialMode {
		case CredentialProxy:
			v.ProviderSrc = opts.ProxyLoaderURL
		default:
			v.ProviderSrc = amap.LoaderURL(opts.ProviderBase, opts.Credential)
			doc.HasCredential = opts.Credential != ""
		}
		center := DefaultCenter
		if opts.Center != nil && opts.Center.Valid() {
			center = *opts.Center
		}
		zoom := opts.Zoom
		if zoom <= 0 {
			zoom = DefaultZoom
		}
		v.Zoom = template.JS(strconv.Itoa(zoom))
		v.CenterLat = coord(center.Latitude)
		v.CenterLng = coord(center.Longitude)
		for _, p := range snap.Portals {
			if !p.Location.Valid() {
				doc.Omitted = append(doc.Omitted, p.ID)
				continue
			}
			v.Markers = append(v.Markers, marker{
				ID:    template.JS(strconv.Itoa(p.ID)),
				Name:  p.Name,
				Lng:   coord(p.Location.Longitude),
				Lat:   coord(p.Location.Latitude),
				Color: ColorFor(p),
				Level: template.JS(strconv.Itoa(p.Level)),
			})
		}
		if u := snap.UserLocation; u != nil {
			if u.Valid() {
				v.User = &point{Lng: coord(u.Longitude), Lat: coord(u.Latitude)}
			} else {
				logger.L().Debug("document_user_location_omitted", "session", opts.Session)
			}
		}
		doc.Markers = len(v.Markers)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, v); err != nil {
		return Document{}, fmt.Errorf("rendering %s document: %w", name, err)
	}
	doc.HTML = buf.String()

	metrics.DocumentsGeneratedTotal.WithLabelValues(mode.String()).Inc()
	metrics.DocumentGenerateDurationMs.Observe(float64(time.Since(t0).Microseconds()) / 1000)
	if n := len(doc.Omitted); n > 0 {
		metrics.MarkersOmittedTotal.Add(float64(n))
		logger.L().Debug("document_markers_omitted", "session", opts.Session, "gen", opts.Generation, "ids", doc.Omitted)
	}
	logger.L().Debug("document_generated", "session", opts.Session, "gen", opts.Generation, "mode", mode.String(), "markers", doc.Markers, "bytes", len(doc.HTML))
	return doc, nil
}
