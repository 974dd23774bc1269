// twok/config/config.go
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	AppVersion = "0.4.0"

	// Form & Post Limits
	MaxTitleLen    = 128
	MaxMessageLen  = 512
	MaxBoardLen    = 128
	MaxUsernameLen = 32

	// File Upload Limits
	MaxFileSize     = 15 * 1024 * 1024 // 15MB
	MaxWidth        = 8000
	MaxHeight       = 8000
	ThumbnailWidth  = 250
	ThumbnailHeight = 250

	// Thread assembly
	PreviewReplies  = 3
	StreamBatchSize = 50

	// Moderation
	BanDuration   = 7 * 24 * time.Hour
	TokenLifetime = 365 * 24 * time.Hour

	// Defaults
	DefaultPort               = "8080"
	DefaultItemsPerPage       = 15
	DefaultPostTimeLimit      = "1s"
	DefaultMaxOpenConns       = 100
	DefaultConnectAttempts    = 300
	DefaultConnectDelay       = "5s"
	DefaultStreamPollInterval = "1s"
	DefaultUploadDir          = "./uploads"
	DefaultBackupDir          = "./backups"
	DefaultUploadRateEvery    = "10s"
	DefaultUploadRateBurst    = 5
	DefaultRateLimitPrune     = "1h"
	DefaultRateLimitExpire    = "24h"
	DefaultAdminUsername      = "admin"
	DefaultAdminPassword      = "admin123"
)

var (
	ErrMissingDatabaseURL = errors.New("provide a valid database URL by setting the DATABASE_URL environment variable")
	ErrMissingSecret      = errors.New("provide a valid secret key by setting the JWT_SECRET_KEY environment variable (openssl rand -hex 32)")
)

// S3Config describes an S3-compatible bucket used for uploads.
type S3Config struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	PublicURL string
	UseSSL    bool
}

type Config struct {
	Port               string
	DatabaseURL        string
	JWTSecret          string
	ItemsPerPage       int
	PostTimeLimit      time.Duration
	MaxOpenConns       int
	ConnectAttempts    int
	ConnectDelay       time.Duration
	StreamPollInterval time.Duration
	UploadDir          string
	BackupDir          string
	UploadRateEvery    time.Duration
	UploadRateBurst    int
	RateLimitPrune     time.Duration
	RateLimitExpire    time.Duration
	AdminUsername      string
	AdminPassword      string
	TrustProxyHeaders  bool
	S3                 S3Config
}

// Load reads the configuration from the environment. DATABASE_URL and
// JWT_SECRET_KEY are required; everything else falls back to a default.
func Load(logger *slog.Logger) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TWOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The two required settings keep their historical unprefixed names.
	if err := v.BindEnv("database_url", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("bind DATABASE_URL: %w", err)
	}
	if err := v.BindEnv("jwt_secret_key", "JWT_SECRET_KEY"); err != nil {
		return nil, fmt.Errorf("bind JWT_SECRET_KEY: %w", err)
	}

	v.SetDefault("port", DefaultPort)
	v.SetDefault("items_per_page", DefaultItemsPerPage)
	v.SetDefault("post_time_limit", DefaultPostTimeLimit)
	v.SetDefault("db_max_open_conns", DefaultMaxOpenConns)
	v.SetDefault("db_connect_attempts", DefaultConnectAttempts)
	v.SetDefault("db_connect_delay", DefaultConnectDelay)
	v.SetDefault("stream_poll_interval", DefaultStreamPollInterval)
	v.SetDefault("upload_dir", DefaultUploadDir)
	v.SetDefault("backup_dir", DefaultBackupDir)
	v.SetDefault("upload_rate_every", DefaultUploadRateEvery)
	v.SetDefault("upload_rate_burst", DefaultUploadRateBurst)
	v.SetDefault("rate_prune", DefaultRateLimitPrune)
	v.SetDefault("rate_expire", DefaultRateLimitExpire)
	v.SetDefault("admin_username", DefaultAdminUsername)
	v.SetDefault("admin_password", DefaultAdminPassword)
	v.SetDefault("trust_proxy_headers", false)
	v.SetDefault("s3.enabled", false)
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.use_ssl", true)

	cfg := &Config{
		Port:          v.GetString("port"),
		DatabaseURL:   v.GetString("database_url"),
		JWTSecret:     v.GetString("jwt_secret_key"),
		UploadDir:     v.GetString("upload_dir"),
		BackupDir:     v.GetString("backup_dir"),
		AdminUsername: v.GetString("admin_username"),
		AdminPassword: v.GetString("admin_password"),
		S3: S3Config{
			Enabled:   v.GetBool("s3.enabled"),
			Endpoint:  v.GetString("s3.endpoint"),
			AccessKey: v.GetString("s3.access_key"),
			SecretKey: v.GetString("s3.secret_key"),
			Bucket:    v.GetString("s3.bucket"),
			Region:    v.GetString("s3.region"),
			PublicURL: v.GetString("s3.public_url"),
			UseSSL:    v.GetBool("s3.use_ssl"),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	if cfg.JWTSecret == "" {
		return nil, ErrMissingSecret
	}

	// Only enable behind a proxy that overwrites the forwarding headers.
	cfg.TrustProxyHeaders = v.GetBool("trust_proxy_headers")

	cfg.ItemsPerPage = positiveInt(v, logger, "items_per_page", DefaultItemsPerPage)
	cfg.MaxOpenConns = positiveInt(v, logger, "db_max_open_conns", DefaultMaxOpenConns)
	cfg.ConnectAttempts = positiveInt(v, logger, "db_connect_attempts", DefaultConnectAttempts)
	cfg.UploadRateBurst = positiveInt(v, logger, "upload_rate_burst", DefaultUploadRateBurst)

	cfg.PostTimeLimit = duration(v, logger, "post_time_limit", DefaultPostTimeLimit)
	cfg.ConnectDelay = duration(v, logger, "db_connect_delay", DefaultConnectDelay)
	cfg.StreamPollInterval = duration(v, logger, "stream_poll_interval", DefaultStreamPollInterval)
	cfg.UploadRateEvery = duration(v, logger, "upload_rate_every", DefaultUploadRateEvery)
	cfg.RateLimitPrune = duration(v, logger, "rate_prune", DefaultRateLimitPrune)
	cfg.RateLimitExpire = duration(v, logger, "rate_expire", DefaultRateLimitExpire)

	return cfg, nil
}

func duration(v *viper.Viper, logger *slog.Logger, key, fallback string) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil || d < 0 {
		logger.Warn("Invalid duration, using default", "key", key, "value", v.GetString(key), "default", fallback)
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func positiveInt(v *viper.Viper, logger *slog.Logger, key string, fallback int) int {
	n := v.GetInt(key)
	if n <= 0 {
		logger.Warn("Invalid integer, using default", "key", key, "value", v.GetString(key), "default", fallback)
		return fallback
	}
	return n
}
