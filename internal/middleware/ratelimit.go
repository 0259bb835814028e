// 包 middleware：入口限流与运维接口保护
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/dbsahdlks/INgress/internal/logger"
)

// 文档注释：令牌桶限流（每秒）
// 背景：渲染端消息接口对外开放（文档可能来自 about:blank），对其限速，避免异常页面刷爆事件队列。
// 约束：简化实现，不做队列排队，仅丢弃并返回 429。
type TokenBucket struct {
	capacity int
	tokens   int
	lastSec  int64
	mu       sync.Mutex
	now      func() time.Time
}

// NewTokenBucket：qps<=0 时返回 nil，Limit 对 nil 不做限制
func NewTokenBucket(qps int) *TokenBucket {
	if qps <= 0 {
		return nil
	}
	return &TokenBucket{capacity: qps, tokens: qps, lastSec: time.Now().Unix(), now: time.Now}
}

func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	nowSec := tb.now().Unix()
	if tb.lastSec != nowSec {
		tb.lastSec = nowSec
		tb.tokens = tb.capacity
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Limit：超限返回 429
func (tb *TokenBucket) Limit(next http.Handler) http.Handler {
	if tb == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tb.Allow() {
			logger.L().Debug("rate_limited", "path", r.URL.Path)
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
