package middleware

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/dbsahdlks/INgress/internal/geo"
	"github.com/dbsahdlks/INgress/internal/logger"
)

// RequireToken：校验 x-admin-token；token 为空时不校验
func RequireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("x-admin-token")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				logger.L().Warn("operator_token_rejected", "path", r.URL.Path, "ip", geo.ClientIP(r))
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// 文档注释：运维来源白名单（单 IP 或 CIDR，支持 v4/v6）
// 背景：诊断模式切换、凭证探测等运维接口只对内网或指定来源开放；列表为空时不限制。
// 约束：来源 IP 以 RemoteAddr 为准，不信任代理头，避免伪造。
type Allowlist struct {
	ips   map[string]struct{}
	cidrs []*net.IPNet
}

// ParseAllowlist：逗号分隔；无法解析的条目忽略并记录
func ParseAllowlist(s string) *Allowlist {
	a := &Allowlist{ips: map[string]struct{}{}}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.Contains(p, "/") {
			if _, n, err := net.ParseCIDR(p); err == nil {
				a.cidrs = append(a.cidrs, n)
				continue
			}
		} else if ip := net.ParseIP(p); ip != nil {
			a.ips[ip.String()] = struct{}{}
			continue
		}
		logger.L().Warn("allowlist_entry_invalid", "entry", p)
	}
	return a
}

func (a *Allowlist) Empty() bool { return a == nil || (len(a.ips) == 0 && len(a.cidrs) == 0) }

func (a *Allowlist) Allowed(ip net.IP) bool {
	if a.Empty() {
		return true
	}
	if ip == nil {
		return false
	}
	if _, ok := a.ips[ip.String()]; ok {
		return true
	}
	for _, n := range a.cidrs {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Wrap：不在白名单内返回 403
func (a *Allowlist) Wrap(next http.Handler) http.Handler {
	if a.Empty() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !a.Allowed(net.ParseIP(host)) {
			logger.L().Warn("operator_origin_denied", "path", r.URL.Path, "remote", host)
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
