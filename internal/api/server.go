// 包 api：宿主 HTTP 接口（会话、渲染端文档与消息、原生回调、门户占领、凭证代理）
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/dbsahdlks/INgress/internal/amap"
	"github.com/dbsahdlks/INgress/internal/bridge"
	"github.com/dbsahdlks/INgress/internal/config"
	"github.com/dbsahdlks/INgress/internal/geo"
	"github.com/dbsahdlks/INgress/internal/journal"
	"github.com/dbsahdlks/INgress/internal/logger"
	"github.com/dbsahdlks/INgress/internal/metrics"
	"github.com/dbsahdlks/INgress/internal/middleware"
	"github.com/dbsahdlks/INgress/internal/portal"
	"github.com/dbsahdlks/INgress/internal/render"
	"github.com/dbsahdlks/INgress/internal/utils"
)

// JournalReader：周期日志查询（可选）
type JournalReader interface {
	Recent(ctx context.Context, session string, limit int) ([]journal.Record, error)
}

// Deps：路由依赖；Locator、AMap、Monitor、Journal 可为 nil
type Deps struct {
	Config    *config.Config
	Portals   *portal.Registry
	Sessions  *bridge.Registry
	Presenter *render.Presenter
	Locator   geo.Locator
	AMap      *amap.Client
	Monitor   *amap.Monitor
	Journal   JournalReader
}

// 文档注释：宿主服务
// 背景：渲染端（WebView 或浏览器）从这里拉取文档并回传消息；原生外壳转发网络层回调；宿主界面订阅状态并触发诊断模式切换。
type Server struct {
	d          Deps
	router     chi.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	limiter    *middleware.TokenBucket
	allow      *middleware.Allowlist
}

func New(d Deps) *Server {
	if d.Config == nil {
		d.Config = config.Default()
	}
	s := &Server{
		d: d,
		upgrader: websocket.Upgrader{
			// 文档可能来自 about:blank 或本地文件，Origin 不可预期
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter: middleware.NewTokenBucket(d.Config.RateLimitQPS),
		allow:   middleware.ParseAllowlist(d.Config.AdminAllowCIDRs),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(logger.AccessMiddleware(logger.L()))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	operator := func(h http.Handler) http.Handler {
		return s.allow.Wrap(middleware.RequireToken(s.d.Config.AdminToken)(h))
	}

	// 宿主界面接口
	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(s.hostCORS()))
		r.Route("/api", func(r chi.Router) {
			r.Post("/sessions", s.handleCreateSession)
			r.Route("/sessions/{id}", func(r chi.Router) {
				r.Get("/state", s.handleState)
				r.Get("/events", s.handleEvents)
				r.Get("/journal", s.handleJournal)
				r.Post("/reload", s.handleReload)
				r.Post("/native", s.handleNative)
				r.Delete("/", s.handleDeleteSession)
				r.With(operator).Post("/toggle", s.handleToggle)
			})
			r.Get("/portals", s.handleListPortals)
			r.Get("/portals/{id}", s.handleGetPortal)
			r.Post("/portals/{id}/capture", s.handleCapture)
			r.Put("/location", s.handlePutLocation)
			r.Delete("/location", s.handleClearLocation)
			r.With(operator).Get("/provider/check", s.handleProviderCheck)
			r.Get("/provider/status", s.handleProviderStatus)
		})
	})

	// 渲染端接口：任意来源
	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
		r.Get("/bridge/{id}/document", s.handleDocument)
		r.Get("/bridge/{id}/ws", s.handleRendererSocket)
		r.With(s.limiter.Limit).Post("/bridge/{id}/message", s.handleRendererMessage)
		r.Get("/provider/loader.js", s.handleLoader)
	})
	return r
}

func (s *Server) hostCORS() cors.Options {
	o := cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Admin-Token"},
		MaxAge:         300,
	}
	if s.d.Config.CORSAllowAll {
		o.AllowedOrigins = []string{"*"}
	}
	return o
}

// Start：阻塞监听，Shutdown 后返回 http.ErrServerClosed；配置证书时使用 HTTPS
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.d.Config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	c := s.d.Config
	if c.TLSEnabled() {
		if c.TLSSelfSigned {
			if err := utils.EnsureSelfSignedCert(c.TLSCertPath, c.TLSKeyPath, c.TLSCN); err != nil {
				return err
			}
		}
		logger.L().Info("server_listen", "addr", c.Addr, "tls", true)
		return s.httpServer.ListenAndServeTLS(c.TLSCertPath, c.TLSKeyPath)
	}
	logger.L().Info("server_listen", "addr", c.Addr, "tls", false)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	out := map[string]any{"status": "ok", "sessions": s.d.Sessions.Len()}
	if s.d.Monitor != nil {
		if h, ok := s.d.Monitor.Last(); ok {
			out["providerHealthy"] = h.Healthy
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
