package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"signdesk/internal/util"
	"signdesk/pkg/storage"
	"signdesk/services/relay/internal/app"
	"signdesk/services/relay/internal/config"
	"signdesk/services/relay/internal/mailer"
	"signdesk/services/relay/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	var objects storage.ObjectStore
	var filesDir string
	switch cfg.StorageBackend {
	case config.BackendMinio:
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	default:
		var local *storage.LocalStore
		local, err = storage.NewLocalStore(cfg.LocalDir, "/files")
		if err == nil {
			objects = local
			filesDir = local.Dir()
		}
	}
	if err != nil {
		log.Fatalf("failed to init storage backend: %v", err)
	}

	var contractMailer app.ContractMailer
	if cfg.SMTPEnabled {
		m, err := mailer.New(mailer.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		if err != nil {
			log.Fatalf("failed to init mailer: %v", err)
		}
		contractMailer = m
	}

	appCore, err := app.New(app.Config{
		DataPath: cfg.DataPath,
		Objects:  objects,
		Mailer:   contractMailer,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:      appCore,
		FilesDir: filesDir,
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

	slog.Info("relay server listening",
		"addr", addr, "backend", cfg.StorageBackend, "smtp", cfg.SMTPEnabled)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
