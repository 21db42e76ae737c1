package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`
	// PublicBaseURL prefixes share links; empty means links are relative.
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL"`

	StoreDriver   string `envconfig:"STORE_DRIVER" default:"memory"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"data/bills.db"`
	MongoURI      string `envconfig:"MONGO_URI"`
	MongoDatabase string `envconfig:"MONGO_DATABASE" default:"billGenerator"`

	RedisAddr             string `envconfig:"REDIS_ADDR"`
	RedisPassword         string `envconfig:"REDIS_PASSWORD"`
	RedisDB               int    `envconfig:"REDIS_DB" default:"0"`
	ExportCacheTTLSeconds int    `envconfig:"EXPORT_CACHE_TTL_SECONDS" default:"600"`

	MinioEndpoint  string `envconfig:"MINIO_ENDPOINT"`
	MinioAccessKey string `envconfig:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `envconfig:"MINIO_SECRET_KEY"`
	MinioBucket    string `envconfig:"MINIO_BUCKET" default:"invoices"`
	MinioSecure    bool   `envconfig:"MINIO_SECURE" default:"false"`

	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	SMTPFrom     string `envconfig:"SMTP_FROM"`

	ShareSecret         string `envconfig:"SHARE_SECRET"`
	ShareLinkTTLMinutes int    `envconfig:"SHARE_LINK_TTL_MINUTES" default:"1440"`
	ExportRatePerMinute int    `envconfig:"EXPORT_RATE_PER_MINUTE" default:"30"`

	BusinessNameEnglish    string `envconfig:"BUSINESS_NAME_EN"`
	BusinessNameArabic     string `envconfig:"BUSINESS_NAME_AR"`
	BusinessTaglineEnglish string `envconfig:"BUSINESS_TAGLINE_EN"`
	BusinessTaglineArabic  string `envconfig:"BUSINESS_TAGLINE_AR"`
	BusinessLocation       string `envconfig:"BUSINESS_LOCATION"`
	BusinessMobile         string `envconfig:"BUSINESS_MOBILE"`
	BusinessAddress        string `envconfig:"BUSINESS_ADDRESS"`
	BusinessEmail          string `envconfig:"BUSINESS_EMAIL"`
	BusinessCurrency       string `envconfig:"BUSINESS_CURRENCY"`

	AssetLogoPath   string `envconfig:"ASSET_LOGO_PATH"`
	AssetStampPath  string `envconfig:"ASSET_STAMP_PATH"`
	AssetStripPath  string `envconfig:"ASSET_STRIP_PATH"`
	AssetScriptFont string `envconfig:"ASSET_SCRIPT_FONT"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	// envconfig applies defaults only to unset variables; treat blank the same.
	cfg.Port = fallback(cfg.Port, "8080")
	cfg.StoreDriver = fallback(strings.ToLower(strings.TrimSpace(cfg.StoreDriver)), DriverMemory)
	cfg.SQLitePath = fallback(cfg.SQLitePath, "data/bills.db")
	cfg.MongoDatabase = fallback(cfg.MongoDatabase, "billGenerator")
	cfg.MinioBucket = fallback(cfg.MinioBucket, "invoices")
	cfg.ShareSecret = strings.TrimSpace(cfg.ShareSecret)
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if cfg.ExportCacheTTLSeconds < 1 {
		cfg.ExportCacheTTLSeconds = 600
	}
	if cfg.ShareLinkTTLMinutes < 1 {
		cfg.ShareLinkTTLMinutes = 1440
	}
	if cfg.ExportRatePerMinute < 1 {
		cfg.ExportRatePerMinute = 30
	}
	return cfg, nil
}

func fallback(val string, def string) string {
	if val == "" {
		return def
	}
	return val
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}
