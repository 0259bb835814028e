// 包 geo：客户端 IP 提取与基于 GeoLite2 的默认视图中心
package geo

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/oschwald/geoip2-golang"

	"github.com/dbsahdlks/INgress/internal/logger"
	"github.com/dbsahdlks/INgress/internal/portal"
)

var ErrNoLocation = errors.New("geo: no location for address")

// 文档注释：获取客户端 IP
// 背景：服务常部署在反向代理或 CDN 之后，按常见代理头的优先级提取，最后回退到 RemoteAddr。
// 约束：返回值未校验，调用方需自行 net.ParseIP。
func ClientIP(r *http.Request) string {
	h := r.Header
	if x := h.Get("x-forwarded-for"); x != "" {
		return strings.TrimSpace(strings.Split(x, ",")[0])
	}
	for _, k := range []string{"cf-connecting-ip", "x-real-ip", "x-client-ip"} {
		if x := h.Get(k); x != "" {
			return strings.TrimSpace(x)
		}
	}
	if x := h.Get("forwarded"); x != "" {
		if i := strings.Index(strings.ToLower(x), "for="); i >= 0 {
			y := x[i+4:]
			if p := strings.IndexByte(y, ';'); p >= 0 {
				y = y[:p]
			}
			if p := strings.IndexByte(y, ','); p >= 0 {
				y = y[:p]
			}
			return strings.Trim(y, "\" []")
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Locator：IP -> 视图中心
type Locator interface {
	Center(ip string) (portal.LatLng, error)
}

// 文档注释：GeoLite2 City 定位
// 背景：没有用户定位时，以访问者所在城市作为地图初始中心；仅影响中心点，不产生用户标记。
type GeoIP struct {
	r *geoip2.Reader
}

func Open(path string) (*GeoIP, error) {
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geo: open %s: %w", path, err)
	}
	logger.L().Info("geoip_opened", "path", path, "type", r.Metadata().DatabaseType)
	return &GeoIP{r: r}, nil
}

func (g *GeoIP) Center(ip string) (portal.LatLng, error) {
	addr := net.ParseIP(ip)
	if addr == nil || addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() {
		return portal.LatLng{}, ErrNoLocation
	}
	rec, err := g.r.City(addr)
	if err != nil {
		return portal.LatLng{}, fmt.Errorf("geo: lookup: %w", err)
	}
	ll := portal.LatLng{Latitude: rec.Location.Latitude, Longitude: rec.Location.Longitude}
	if (ll.Latitude == 0 && ll.Longitude == 0) || !ll.Valid() {
		return portal.LatLng{}, ErrNoLocation
	}
	return ll, nil
}

func (g *GeoIP) Close() error { return g.r.Close() }

// CenterFor：locator 为 nil 或查询失败时返回 nil，由文档生成器使用默认中心
func CenterFor(l Locator, r *http.Request) *portal.LatLng {
	if l == nil {
		return nil
	}
	ip := ClientIP(r)
	ll, err := l.Center(ip)
	if err != nil {
		logger.L().Debug("geoip_center_miss", "ip", ip, "err", err)
		return nil
	}
	return &ll
}
