package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"billdesk/backend/internal/archive"
	"billdesk/backend/internal/cache"
	"billdesk/backend/internal/config"
	"billdesk/backend/internal/export"
	"billdesk/backend/internal/httpapi"
	"billdesk/backend/internal/logging"
	"billdesk/backend/internal/metrics"
	"billdesk/backend/internal/render"
	"billdesk/backend/internal/service"
	"billdesk/backend/internal/share"
	"billdesk/backend/internal/store"
	"billdesk/backend/internal/store/memory"
	mongostore "billdesk/backend/internal/store/mongo"
	pgstore "billdesk/backend/internal/store/postgres"
	sqlitestore "billdesk/backend/internal/store/sqlite"
)

func main() {
	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		fatal("invalid configuration", err)
	}
	if err := validateConfig(cfg); err != nil {
		fatal("invalid configuration", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 3)

	repo, err := openStore(ctx, cfg)
	if err != nil {
		fatal("bill store unavailable; refusing to start", err)
	}
	closers = append(closers, repo.Close)
	slog.Info("repository ready", "driver", cfg.StoreDriver)

	docCache := cache.DocumentCache(cache.NoopDocumentCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisDocumentCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			slog.Warn("redis unavailable, using noop export cache", "error", err)
			_ = redisCache.Close()
		} else {
			docCache = redisCache
			closers = append(closers, redisCache.Close)
			slog.Info("export cache: redis", "addr", cfg.RedisAddr)
		}
	} else {
		slog.Info("export cache: noop")
	}

	docArchive := archive.Archive(archive.Noop{})
	if cfg.MinioEndpoint != "" {
		minioArchive, err := archive.NewMinioArchive(ctx, archive.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Secure:    cfg.MinioSecure,
		})
		if err != nil {
			slog.Warn("minio unavailable, exports will not be archived", "error", err)
		} else {
			docArchive = minioArchive
			slog.Info("export archive: minio", "bucket", cfg.MinioBucket)
		}
	}

	rasterizer, err := render.NewRasterizer(render.Assets{
		LogoPath:   cfg.AssetLogoPath,
		StampPath:  cfg.AssetStampPath,
		StripPath:  cfg.AssetStripPath,
		ScriptFont: cfg.AssetScriptFont,
	})
	if err != nil {
		fatal("load invoice fonts", err)
	}

	m := metrics.New()
	exporter := export.NewExporter(rasterizer, export.Options{
		Profile:  profileFromConfig(cfg),
		Cache:    docCache,
		CacheTTL: time.Duration(cfg.ExportCacheTTLSeconds) * time.Second,
		Archive:  docArchive,
		Metrics:  m,
	})

	email := share.NewEmail(share.EmailConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	shares := share.NewRegistry(share.WhatsApp{}, email)
	for _, ch := range shares.Channels() {
		slog.Info("share channel", "name", ch.Name, "available", ch.Available)
	}

	api := httpapi.New(service.New(repo), exporter, httpapi.Options{
		AllowedOrigin:       cfg.AllowedOrigin,
		PublicBaseURL:       cfg.PublicBaseURL,
		Shares:              shares,
		Links:               httpapi.NewShareLinkManager(cfg.ShareSecret, time.Duration(cfg.ShareLinkTTLMinutes)*time.Minute),
		Metrics:             m,
		ExportRatePerMinute: cfg.ExportRatePerMinute,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("bill server listening", "addr", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			slog.Error("close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func openStore(ctx context.Context, cfg config.Config) (store.Repository, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return pgstore.New(ctx, cfg.DatabaseURL)
	case config.DriverSQLite:
		return sqlitestore.New(cfg.SQLitePath)
	case config.DriverMongo:
		return mongostore.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		slog.Warn("using in-memory store; bills are lost on restart")
		return memory.New(), nil
	}
}

func profileFromConfig(cfg config.Config) render.Profile {
	return render.DefaultProfile().Merge(render.Profile{
		NameEnglish:     cfg.BusinessNameEnglish,
		NameArabic:      cfg.BusinessNameArabic,
		TaglineEnglish:  cfg.BusinessTaglineEnglish,
		TaglineArabic:   cfg.BusinessTaglineArabic,
		LocationEnglish: cfg.BusinessLocation,
		Mobile:          cfg.BusinessMobile,
		AddressEnglish:  cfg.BusinessAddress,
		Email:           cfg.BusinessEmail,
		Currency:        cfg.BusinessCurrency,
	})
}

func validateConfig(cfg config.Config) error {
	switch cfg.StoreDriver {
	case config.DriverMemory:
	case config.DriverPostgres:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when STORE_DRIVER=postgres")
		}
	case config.DriverSQLite:
		if cfg.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH must be set when STORE_DRIVER=sqlite")
		}
	case config.DriverMongo:
		if cfg.MongoURI == "" {
			return fmt.Errorf("MONGO_URI must be set when STORE_DRIVER=mongo")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.ShareSecret != "" && len(cfg.ShareSecret) < 32 {
		return fmt.Errorf("SHARE_SECRET must be at least 32 characters when set")
	}
	if cfg.MinioEndpoint != "" && (cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "") {
		return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY must be set with MINIO_ENDPOINT")
	}
	return nil
}
