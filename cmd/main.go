// 程序入口：读取配置、初始化依赖并启动宿主服务；路由在 internal/api
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dbsahdlks/INgress/internal/amap"
	"github.com/dbsahdlks/INgress/internal/api"
	"github.com/dbsahdlks/INgress/internal/bridge"
	"github.com/dbsahdlks/INgress/internal/config"
	"github.com/dbsahdlks/INgress/internal/docstore"
	"github.com/dbsahdlks/INgress/internal/document"
	"github.com/dbsahdlks/INgress/internal/geo"
	"github.com/dbsahdlks/INgress/internal/journal"
	"github.com/dbsahdlks/INgress/internal/logger"
	"github.com/dbsahdlks/INgress/internal/portal"
	"github.com/dbsahdlks/INgress/internal/render"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.L().Error("config_load_error", "err", err)
		os.Exit(1)
	}
	l := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		l.Error("config_invalid", "err", err)
		os.Exit(1)
	}
	l.Info("config_loaded", "addr", cfg.Addr, "credential_mode", cfg.CredentialMode, "load_timeout_ms", cfg.LoadTimeoutMs,
		"web_key_set", cfg.AMapWebKey != "", "server_key_set", cfg.AMapServerKey != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 门户种子
	seed := portal.Seed()
	if cfg.PortalSeedPath != "" {
		s, err := portal.LoadSeedFile(cfg.PortalSeedPath)
		if err != nil {
			l.Error("portal_seed_error", "path", cfg.PortalSeedPath, "err", err)
			os.Exit(1)
		}
		seed = s
	}
	portals, err := portal.NewRegistry(seed)
	if err != nil {
		l.Error("portal_registry_error", "err", err)
		os.Exit(1)
	}
	l.Info("portal_registry_ok", "count", len(seed))

	// 文档存储：内存在前，Redis 可选
	stores := []docstore.Store{docstore.NewLRU(cfg.DocCacheSize, cfg.DocCacheTTL())}
	if cfg.RedisEnable {
		rc := docstore.OpenRedis(cfg.RedisAddr(), cfg.RedisPass, cfg.RedisDB)
		if err := rc.Ping(ctx).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
			stores = append(stores, docstore.NewRedis(rc, cfg.DocCacheTTL()))
		}
		defer rc.Close()
	} else {
		l.Info("redis_disabled")
	}

	// 周期日志：PostgreSQL 可选
	var (
		recorder bridge.Recorder
		reader   api.JournalReader
	)
	if cfg.JournalEnable {
		db, err := journal.Open(cfg.PG())
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			l.Error("db_ping_error", "err", err)
		} else if err := journal.EnsureSchema(ctx, db); err != nil {
			l.Error("schema_error", "err", err)
		} else {
			j := journal.New(db)
			recorder, reader = j, j
			l.Info("journal_enabled")
		}
	}

	// 视图中心：GeoLite2 可选
	var locator geo.Locator
	if cfg.GeoIPDBPath != "" {
		g, err := geo.Open(cfg.GeoIPDBPath)
		if err != nil {
			l.Error("geoip_open_error", "err", err)
		} else {
			defer g.Close()
			locator = g
		}
	}

	ac := amap.NewClient(cfg.ProviderTimeout())
	ac.WebBase = cfg.AMapWebBase
	ac.RESTBase = cfg.AMapRESTBase

	var monitor *amap.Monitor
	if cfg.ProviderCheckIntervalS > 0 {
		key := cfg.AMapServerKey
		if key == "" {
			key = cfg.AMapWebKey
		}
		monitor = amap.NewMonitor(ac, key, cfg.ProviderCheckInterval())
		monitor.Start(ctx)
	}

	presenter := render.New(portals, docstore.NewChain(stores...), render.Options{
		APIBase:        cfg.APIBase,
		Credential:     cfg.AMapWebKey,
		CredentialMode: document.CredentialMode(cfg.CredentialMode),
		ProviderBase:   cfg.AMapWebBase,
		Timeout:        cfg.LoadTimeout(),
	})
	sessions := bridge.NewRegistry(bridge.Options{
		Timeout:   cfg.LoadTimeout(),
		Presenter: presenter,
		Recorder:  recorder,
	}, cfg.MaxSessions)

	srv := api.New(api.Deps{
		Config:    cfg,
		Portals:   portals,
		Sessions:  sessions,
		Presenter: presenter,
		Locator:   locator,
		AMap:      ac,
		Monitor:   monitor,
		Journal:   reader,
	})

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("server_error", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		l.Info("shutdown_begin")
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		l.Error("server_shutdown_error", "err", err)
	}
	if err := sessions.CloseAll(sctx); err != nil {
		l.Error("sessions_close_error", "err", err)
	}
	l.Info("shutdown_done")
}
