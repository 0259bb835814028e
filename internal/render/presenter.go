// 包 render：为桥接会话生成并保存每个周期的文档
package render

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dbsahdlks/INgress/internal/bridge"
	"github.com/dbsahdlks/INgress/internal/docstore"
	"github.com/dbsahdlks/INgress/internal/document"
	"github.com/dbsahdlks/INgress/internal/logger"
	"github.com/dbsahdlks/INgress/internal/portal"
)

// Source：快照来源（通常为 portal.Registry）
type Source interface {
	Snapshot() portal.Snapshot
}

// Options：文档公共参数
type Options struct {
	// APIBase：对外地址前缀，空串表示与文档同源的相对地址
	APIBase        string
	Credential     string
	CredentialMode document.CredentialMode
	ProviderBase   string
	Timeout        time.Duration
	Zoom           int
}

// 文档注释：文档呈现方
// 背景：实现 bridge.Presenter；每次 Start 读取最新快照（含最近一次用户定位与占领结果）生成文档，按（会话, 代号）保存，渲染端随后拉取。
// 约束：会话级视图中心只影响初始视野；内嵌凭证文档是否可保存由 Store 决定。
type Presenter struct {
	src   Source
	store docstore.Store
	opts  Options

	mu      sync.RWMutex
	centers map[string]*portal.LatLng
}

func New(src Source, store docstore.Store, opts Options) *Presenter {
	opts.APIBase = strings.TrimRight(opts.APIBase, "/")
	if opts.CredentialMode == "" {
		opts.CredentialMode = document.CredentialProxy
	}
	return &Presenter{src: src, store: store, opts: opts, centers: make(map[string]*portal.LatLng)}
}

// SetCenter：设置会话初始视图中心；nil 表示使用默认中心
func (p *Presenter) SetCenter(session string, c *portal.LatLng) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c == nil {
		delete(p.centers, session)
		return
	}
	cc := *c
	p.centers[session] = &cc
}

func (p *Presenter) center(session string) *portal.LatLng {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.centers[session]
}

// BridgeBase：会话的渲染端上报地址前缀
func (p *Presenter) BridgeBase(session string) string {
	return p.opts.APIBase + "/bridge/" + session
}

// LoaderURL：代理模式下的引导脚本地址
func (p *Presenter) LoaderURL() string {
	return p.opts.APIBase + "/provider/loader.js"
}

func (p *Presenter) options(session string, gen uint64) document.Options {
	return document.Options{
		Session:        session,
		Generation:     gen,
		BridgeBase:     p.BridgeBase(session),
		Credential:     p.opts.Credential,
		CredentialMode: p.opts.CredentialMode,
		ProviderBase:   p.opts.ProviderBase,
		ProxyLoaderURL: p.LoaderURL(),
		Center:         p.center(session),
		Zoom:           p.opts.Zoom,
		Timeout:        p.opts.Timeout,
	}
}

func (p *Presenter) Present(ctx context.Context, session string, c bridge.Cycle) error {
	doc, err := document.Generate(p.src.Snapshot(), document.ModeOf(c.Diagnostic), p.options(session, c.Generation))
	if err != nil {
		return fmt.Errorf("render: generate: %w", err)
	}
	if err := p.store.Put(ctx, doc); err != nil {
		return fmt.Errorf("render: store: %w", err)
	}
	logger.L().Debug("document_presented", "session", session, "gen", c.Generation, "mode", doc.Mode.String(), "markers", doc.Markers, "omitted", len(doc.Omitted))
	return nil
}

// Document：按周期取回文档
func (p *Presenter) Document(ctx context.Context, session string, gen uint64) (document.Document, error) {
	return p.store.Get(ctx, session, gen)
}

// Forget：会话移除时释放中心设置与已保存文档
func (p *Presenter) Forget(session string) {
	p.SetCenter(session, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.store.Forget(ctx, session); err != nil {
		logger.L().Warn("docstore_forget_failed", "session", session, "err", err)
	}
}
