package amap

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dbsahdlks/INgress/internal/logger"
	"github.com/dbsahdlks/INgress/internal/metrics"
)

// Health：最近一次凭证探测结果
type Health struct {
	Checked  time.Time `json:"checked"`
	Healthy  bool      `json:"healthy"`
	Info     string    `json:"info,omitempty"`
	Infocode string    `json:"infocode,omitempty"`
	Err      string    `json:"error,omitempty"`
}

// 文档注释：凭证心跳
// 背景：周期性调用 CheckKey，运维在渲染端报错之前即可看到凭证失效或配额耗尽；结果通过 atomic.Value 无锁读取。
// 约束：周期默认 5 分钟；探测失败只更新状态与指标，不影响任何会话。
type Monitor struct {
	c        *Client
	key      string
	interval time.Duration
	v        atomic.Value // Health
}

func NewMonitor(c *Client, key string, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Monitor{c: c, key: key, interval: interval}
}

// Start：立即探测一次，随后按周期探测；ctx 取消时停止
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		m.Check(ctx)
		t := time.NewTicker(m.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.Check(ctx)
			}
		}
	}()
}

func (m *Monitor) Check(ctx context.Context) Health {
	h := Health{Checked: time.Now()}
	st, err := m.c.CheckKey(ctx, m.key)
	switch {
	case err != nil:
		h.Err = err.Error()
	default:
		h.Healthy = st.Valid()
		h.Info, h.Infocode = st.Info, st.Infocode
	}
	m.v.Store(h)
	if h.Healthy {
		metrics.ProviderHealthy.Set(1)
		metrics.ProviderChecksTotal.WithLabelValues("ok").Inc()
		logger.L().Debug("provider_heartbeat_ok")
	} else {
		metrics.ProviderHealthy.Set(0)
		metrics.ProviderChecksTotal.WithLabelValues("fail").Inc()
		logger.L().Warn("provider_heartbeat_fail", "infocode", h.Infocode, "err", h.Err)
	}
	return h
}

// Last：尚未探测时返回 false
func (m *Monitor) Last() (Health, bool) {
	h, ok := m.v.Load().(Health)
	return h, ok
}
