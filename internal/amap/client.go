package amap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dbsahdlks/INgress/internal/logger"
	"github.com/dbsahdlks/INgress/internal/metrics"
)

const (
	DefaultWebBase  = "https://webapi.amap.com"
	DefaultRESTBase = "https://restapi.amap.com"
	// JS API 版本与原生端 WebView 保持一致
	APIVersion = "2.0"
)

var ErrMissingKey = errors.New("amap: missing key")

// LoaderURL：带密钥的 JS API 引导脚本地址
// 约束：返回值包含凭证，禁止写入日志或可持久化的文档
func LoaderURL(webBase, key string) string {
	if webBase == "" {
		webBase = DefaultWebBase
	}
	q := url.Values{}
	q.Set("v", APIVersion)
	q.Set("key", key)
	return webBase + "/maps?" + q.Encode()
}

// Client：高德 Web 端引导脚本代理与 REST 密钥探测
type Client struct {
	HTTP     *http.Client
	WebBase  string
	RESTBase string
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{HTTP: &http.Client{Timeout: timeout}, WebBase: DefaultWebBase, RESTBase: DefaultRESTBase}
}

// 文档注释：拉取 JS API 引导脚本（代理模式）
// 背景：代理模式下文档只引用宿主的 /provider/loader.js，密钥在服务端注入，文档本身不含凭证，可安全缓存。
// 返回：脚本内容与上游 content-type；上游非 200 时返回错误并附带状态码。
func (c *Client) FetchLoader(ctx context.Context, key string) ([]byte, string, error) {
	if key == "" {
		return nil, "", ErrMissingKey
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, LoaderURL(c.WebBase, key), nil)
	if err != nil {
		return nil, "", err
	}
	t0 := time.Now()
	metrics.AMapRequestsTotal.WithLabelValues("loader").Inc()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		logger.L().Error("amap_loader_http_error", "err", redact(err))
		metrics.AMapFailTotal.WithLabelValues("loader").Inc()
		return nil, "", fmt.Errorf("amap loader: %w", redact(err))
	}
	defer resp.Body.Close()
	metrics.AMapDurationMs.WithLabelValues("loader").Observe(float64(time.Since(t0).Milliseconds()))
	if resp.StatusCode != http.StatusOK {
		metrics.AMapFailTotal.WithLabelValues("loader").Inc()
		return nil, "", fmt.Errorf("amap loader: status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		metrics.AMapFailTotal.WithLabelValues("loader").Inc()
		return nil, "", fmt.Errorf("amap loader: %w", err)
	}
	ct := resp.Header.Get("content-type")
	if ct == "" {
		ct = "application/javascript; charset=utf-8"
	}
	return b, ct, nil
}

// KeyStatus：高德 REST 响应中用于判定凭证状态的字段
type KeyStatus struct {
	Status   string `json:"status"`
	Info     string `json:"info"`
	Infocode string `json:"infocode"`
}

// Valid：status=="1" 视为凭证可用
func (s KeyStatus) Valid() bool { return s.Status == "1" }

// 文档注释：探测服务端密钥是否可用（REST v3/ip）
// 背景：地图加载失败时，运维需要区分“凭证无效/配额耗尽”与“桥接自身故障”；该探测不经过渲染端。
// 返回：解析后的状态；网络与解码错误返回 error，业务错误通过 KeyStatus.Infocode 体现（如 INVALID_USER_KEY 对应 10001）。
func (c *Client) CheckKey(ctx context.Context, key string) (*KeyStatus, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	q := url.Values{}
	q.Set("key", key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.RESTBase+"/v3/ip?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	t0 := time.Now()
	metrics.AMapRequestsTotal.WithLabelValues("check").Inc()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		logger.L().Error("amap_check_http_error", "err", redact(err))
		metrics.AMapFailTotal.WithLabelValues("check").Inc()
		return nil, fmt.Errorf("amap check: %w", redact(err))
	}
	defer resp.Body.Close()
	var s KeyStatus
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		logger.L().Error("amap_check_decode_error", "err", err)
		metrics.AMapFailTotal.WithLabelValues("check").Inc()
		return nil, fmt.Errorf("amap check: %w", err)
	}
	dur := time.Since(t0).Milliseconds()
	metrics.AMapDurationMs.WithLabelValues("check").Observe(float64(dur))
	logger.L().Debug("amap_check_resp", "status", s.Status, "infocode", s.Infocode, "duration_ms", dur)
	if !s.Valid() {
		metrics.AMapFailTotal.WithLabelValues("check").Inc()
	}
	return &s, nil
}

// redact：url.Error 会携带完整请求地址（含 key），记录前去掉地址
func redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}
