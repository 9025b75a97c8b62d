package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"signdesk/internal/ratelimit"
	"signdesk/internal/util"
	"signdesk/services/desk/internal/app"
	"signdesk/services/desk/internal/config"
	"signdesk/services/desk/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxy cidrs: %v", err)
	}

	appCore, err := app.New(app.Config{
		DataPath:               cfg.DataPath,
		QuotaBytes:             cfg.StorageQuotaBytes,
		RelayURL:               cfg.RelayURL,
		ForwardTimeout:         cfg.ForwardTimeout(),
		MarkCompletedOnForward: cfg.MarkCompletedOnForward,
		Logger:                 logger,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	var writeLimiter *ratelimit.FixedWindowLimiter
	if cfg.WriteLimitPerMinute > 0 {
		writeLimiter, err = ratelimit.NewFixedWindowLimiter(cfg.WriteLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		MaxUploadBytes: cfg.MaxUploadBytes,
		TrustedProxies: trustedProxies,
		WriteLimiter:   writeLimiter,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("desk server listening", "addr", addr, "relay", cfg.RelayURL != "")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
