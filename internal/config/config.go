package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Model    ModelConfig    `mapstructure:"model"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Sentry   SentryConfig   `mapstructure:"sentry"`
}

type ServerConfig struct {
	Host             string     `mapstructure:"host"`
	Port             int        `mapstructure:"port"`
	Mode             string     `mapstructure:"mode"`
	MaxUploadMB      int64      `mapstructure:"max_upload_mb"`
	PredictRateLimit float64    `mapstructure:"predict_rate_limit"` // requests per second, 0 disables
	PredictBurst     int        `mapstructure:"predict_burst"`
	CORS             CORSConfig `mapstructure:"cors"`
}

// Addr returns the host:port pair the HTTP server binds to.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite or postgres
	URL             string        `mapstructure:"url"`    // postgres connection string
	Name            string        `mapstructure:"name"`
	Path            string        `mapstructure:"path"` // sqlite file, derived from Name when empty
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogLevel        string        `mapstructure:"log_level"`
}

// DSN returns the connection string for the configured driver.
// For postgres the database name is injected when the URL does not carry one.
func (d DatabaseConfig) DSN() string {
	if d.Driver != "postgres" {
		return d.SQLitePath()
	}
	if d.Name == "" {
		return d.URL
	}
	if strings.HasPrefix(d.URL, "postgres://") || strings.HasPrefix(d.URL, "postgresql://") {
		u, err := url.Parse(d.URL)
		if err != nil {
			return d.URL
		}
		if strings.Trim(u.Path, "/") == "" {
			u.Path = "/" + d.Name
		}
		return u.String()
	}
	if strings.Contains(d.URL, "dbname=") {
		return d.URL
	}
	return strings.TrimSpace(d.URL + " dbname=" + d.Name)
}

// SQLitePath returns the database file used by the sqlite driver.
func (d DatabaseConfig) SQLitePath() string {
	if d.Path != "" {
		return d.Path
	}
	name := d.Name
	if name == "" {
		name = "medical_ai_db"
	}
	return "./data/" + name + ".db"
}

type ModelConfig struct {
	Backend        string        `mapstructure:"backend"` // onnx or remote
	Path           string        `mapstructure:"path"`
	Version        string        `mapstructure:"version"`
	OnnxRuntimeLib string        `mapstructure:"onnxruntime_lib"`
	RemoteURL      string        `mapstructure:"remote_url"`
	RemoteName     string        `mapstructure:"remote_name"`
	RemoteTimeout  time.Duration `mapstructure:"remote_timeout"`
}

type AuthConfig struct {
	JWTSecret                string `mapstructure:"jwt_secret"`
	AccessTokenExpireMinutes int    `mapstructure:"access_token_expire_minutes"`
}

// TokenTTL returns the lifetime of issued access tokens.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.AccessTokenExpireMinutes) * time.Minute
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // s3, r2, s3compatible, minio
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
	Folder    string `mapstructure:"folder"`
	UploadDir string `mapstructure:"upload_dir"`
}

// RemoteEnabled reports whether enough object-store settings are present to upload remotely.
func (s StorageConfig) RemoteEnabled() bool {
	return s.AccessKey != "" && s.SecretKey != "" && s.Bucket != ""
}

type BatchConfig struct {
	Workers   int    `mapstructure:"workers"`
	BatchSize int    `mapstructure:"batch_size"`
	InboxDir  string `mapstructure:"inbox_dir"` // directory the admin batch endpoint classifies, empty disables it
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

// Load reads configuration from an optional YAML file, .env and the environment.
func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Flat variable names kept for deployments that predate the YAML layout
	_ = v.BindEnv("database.driver", "DATABASE_DRIVER")
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("database.name", "DATABASE_NAME")
	_ = v.BindEnv("database.path", "DATABASE_PATH")
	_ = v.BindEnv("model.path", "MODEL_PATH")
	_ = v.BindEnv("model.backend", "MODEL_BACKEND")
	_ = v.BindEnv("model.remote_url", "MODEL_REMOTE_URL")
	_ = v.BindEnv("model.onnxruntime_lib", "ONNXRUNTIME_LIB")
	_ = v.BindEnv("server.host", "HOST")
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("server.mode", "GIN_MODE")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("auth.access_token_expire_minutes", "ACCESS_TOKEN_EXPIRE_MINUTES")
	_ = v.BindEnv("storage.type", "STORAGE_TYPE")
	_ = v.BindEnv("storage.endpoint", "S3_ENDPOINT")
	_ = v.BindEnv("storage.access_key", "S3_ACCESS_KEY")
	_ = v.BindEnv("storage.secret_key", "S3_SECRET_KEY")
	_ = v.BindEnv("storage.bucket", "S3_BUCKET")
	_ = v.BindEnv("storage.region", "S3_REGION")
	_ = v.BindEnv("storage.public_url", "S3_PUBLIC_URL")
	_ = v.BindEnv("storage.folder", "S3_FOLDER")
	_ = v.BindEnv("storage.upload_dir", "UPLOAD_DIR")
	_ = v.BindEnv("batch.inbox_dir", "BATCH_INBOX_DIR")
	_ = v.BindEnv("sentry.dsn", "SENTRY_DSN")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.max_upload_mb", 20)
	v.SetDefault("server.predict_rate_limit", 0)
	v.SetDefault("server.predict_burst", 5)
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.url", "")
	v.SetDefault("database.name", "medical_ai_db")
	v.SetDefault("database.path", "")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("model.backend", "onnx")
	v.SetDefault("model.path", "best_lung_disease_model.onnx")
	v.SetDefault("model.version", "1.0.0")
	v.SetDefault("model.onnxruntime_lib", "")
	v.SetDefault("model.remote_url", "")
	v.SetDefault("model.remote_name", "lung_disease")
	v.SetDefault("model.remote_timeout", 30*time.Second)
	v.SetDefault("auth.jwt_secret", "change-me-in-prod")
	v.SetDefault("auth.access_token_expire_minutes", 60)
	v.SetDefault("storage.type", "")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.public_url", "")
	v.SetDefault("storage.folder", "predictions")
	v.SetDefault("storage.upload_dir", "./uploads")
	v.SetDefault("batch.workers", 4)
	v.SetDefault("batch.batch_size", 16)
	v.SetDefault("batch.inbox_dir", "")
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "local")
}

// Validate checks settings that would otherwise fail late at request time.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth: jwt_secret is required")
	}
	if c.Server.Mode == "release" && c.Auth.JWTSecret == "change-me-in-prod" {
		return fmt.Errorf("auth: jwt_secret must be changed in release mode")
	}
	if c.Auth.AccessTokenExpireMinutes <= 0 {
		return fmt.Errorf("auth: access_token_expire_minutes must be positive")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database: unknown driver %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("database: url is required for postgres")
	}
	switch c.Model.Backend {
	case "onnx", "remote":
	default:
		return fmt.Errorf("model: unknown backend %q", c.Model.Backend)
	}
	if c.Storage.UploadDir == "" {
		return fmt.Errorf("storage: upload_dir is required")
	}
	return nil
}
