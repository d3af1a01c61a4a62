package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "./data/medical_ai_db.db", cfg.Database.DSN())
	assert.Equal(t, "onnx", cfg.Model.Backend)
	assert.Equal(t, 60*time.Minute, cfg.Auth.TokenTTL())
	assert.Equal(t, "predictions", cfg.Storage.Folder)
	assert.False(t, cfg.Storage.RemoteEnabled())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "15")
	t.Setenv("MODEL_PATH", "/models/lung.onnx")
	t.Setenv("UPLOAD_DIR", "/tmp/uploads")
	t.Setenv("S3_ACCESS_KEY", "key")
	t.Setenv("S3_SECRET_KEY", "secret")
	t.Setenv("S3_BUCKET", "xrays")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 15*time.Minute, cfg.Auth.TokenTTL())
	assert.Equal(t, "/models/lung.onnx", cfg.Model.Path)
	assert.Equal(t, "/tmp/uploads", cfg.Storage.UploadDir)
	assert.True(t, cfg.Storage.RemoteEnabled())
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7000
model:
  backend: remote
  remote_url: http://tfserving:8501
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "remote", cfg.Model.Backend)
	assert.Equal(t, "http://tfserving:8501", cfg.Model.RemoteURL)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:   ServerConfig{Mode: "debug"},
			Database: DatabaseConfig{Driver: "sqlite"},
			Model:    ModelConfig{Backend: "onnx"},
			Auth:     AuthConfig{JWTSecret: "x", AccessTokenExpireMinutes: 60},
			Storage:  StorageConfig{UploadDir: "./uploads"},
		}
	}
	require.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"default secret in release", func(c *Config) {
			c.Server.Mode = "release"
			c.Auth.JWTSecret = "change-me-in-prod"
		}},
		{"zero ttl", func(c *Config) { c.Auth.AccessTokenExpireMinutes = 0 }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mongo" }},
		{"postgres without url", func(c *Config) { c.Database.Driver = "postgres" }},
		{"unknown backend", func(c *Config) { c.Model.Backend = "keras" }},
		{"no upload dir", func(c *Config) { c.Storage.UploadDir = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "url without database",
			cfg:  DatabaseConfig{Driver: "postgres", URL: "postgres://u:p@db:5432", Name: "medical"},
			want: "postgres://u:p@db:5432/medical",
		},
		{
			name: "url with database",
			cfg:  DatabaseConfig{Driver: "postgres", URL: "postgres://u:p@db:5432/other", Name: "medical"},
			want: "postgres://u:p@db:5432/other",
		},
		{
			name: "key value",
			cfg:  DatabaseConfig{Driver: "postgres", URL: "host=db user=u", Name: "medical"},
			want: "host=db user=u dbname=medical",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.cfg.DSN())
		})
	}
}
