package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/payload/internal/driver"
	"github.com/conneroisu/payload/internal/logging"
	"github.com/conneroisu/payload/internal/storage"
	"github.com/conneroisu/payload/internal/transport"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setup       func()
		expectError bool
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name:  "defaults",
			setup: func() {},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, driver.DefaultContext, cfg.Driver.Context)
				assert.True(t, cfg.Driver.LoadingDefault)
				assert.True(t, cfg.Driver.CoalesceRequests)
				assert.Equal(t, driver.DefaultLoadingFade, cfg.Driver.LoadingFade)
				assert.Equal(t, driver.DefaultLoadingHTML, cfg.Driver.LoadingHTML)
				assert.Equal(t, DefaultTemplatesDir, cfg.Templates.Dir)
				assert.Equal(t, DefaultExtension, cfg.Templates.Extension)
				assert.Equal(t, storage.BackendMemory, cfg.Storage.Backend)
				assert.Equal(t, int64(transport.DefaultMaxBodyBytes), cfg.Transport.MaxBodyBytes)
				assert.Equal(t, DefaultHost, cfg.Server.Host)
				assert.Equal(t, DefaultPort, cfg.Server.Port)
				assert.Equal(t, "info", cfg.LogLevel)
			},
		},
		{
			name: "explicit values win over defaults",
			setup: func() {
				viper.Set("driver.context", "#app")
				viper.Set("driver.data_namespace", "app")
				viper.Set("driver.loading_default", false)
				viper.Set("driver.coalesce_requests", false)
				viper.Set("driver.loading_fade", "0s")
				viper.Set("driver.timeout", "2s")
				viper.Set("storage.backend", "file")
				viper.Set("storage.path", "data/store.msgpack")
				viper.Set("server.port", 0)
				viper.Set("server.allowed_origins", []string{"http://localhost:3000"})
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "#app", cfg.Driver.Context)
				assert.Equal(t, "app", cfg.Driver.DataNamespace)
				assert.False(t, cfg.Driver.LoadingDefault)
				assert.False(t, cfg.Driver.CoalesceRequests)
				assert.Zero(t, cfg.Driver.LoadingFade)
				assert.Equal(t, 2*time.Second, cfg.Driver.Timeout)
				assert.Equal(t, storage.BackendFile, cfg.Storage.Backend)
				assert.Equal(t, "data/store.msgpack", cfg.Storage.Path)
				assert.Equal(t, 0, cfg.Server.Port)
				assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
			},
		},
		{
			name: "invalid port type",
			setup: func() {
				viper.Set("server.port", "invalid_port")
			},
			expectError: true,
		},
		{
			name: "unknown backend",
			setup: func() {
				viper.Set("storage.backend", "etcd")
			},
			expectError: true,
		},
		{
			name: "negative timeout",
			setup: func() {
				viper.Set("driver.timeout", "-1s")
			},
			expectError: true,
		},
		{
			name: "traversal in template dir",
			setup: func() {
				viper.Set("templates.dir", "../outside")
			},
			expectError: true,
		},
		{
			name: "redis without address",
			setup: func() {
				viper.Set("storage.backend", "redis")
			},
			expectError: true,
		},
		{
			name: "unknown log level",
			setup: func() {
				viper.Set("log-level", "chatty")
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			tt.setup()

			cfg, err := Load()

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestDriverOptions(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("driver.data_namespace", "shop")
	viper.Set("driver.response_parent", "data")
	viper.Set("driver.access_token", "secret")
	viper.Set("driver.sanitize", true)
	viper.Set("driver.persist_app_data", true)

	cfg, err := Load()
	require.NoError(t, err)

	opts := cfg.DriverOptions()
	assert.Equal(t, "shop", opts.Namespace)
	assert.Equal(t, "data", opts.ResponseParent)
	assert.Equal(t, "secret", opts.AccessToken)
	assert.True(t, opts.Sanitize)
	assert.True(t, opts.PersistAppData)
	assert.True(t, opts.LoadingDefault)

	_, err = driver.New(opts)
	assert.NoError(t, err)
}

func TestStorageAndTransportConversion(t *testing.T) {
	cfg := &Config{
		Storage: StorageConfig{
			Backend:   storage.BackendRedis,
			RedisAddr: "localhost:6379",
			RedisDB:   2,
			Prefix:    "payload:",
		},
		Transport: TransportConfig{
			BaseURL:      "https://api.example.com",
			UserAgent:    "ua",
			MaxBodyBytes: 1024,
		},
		Server: ServerConfig{Host: "127.0.0.1", Port: 9000},
	}

	assert.Equal(t, storage.Config{
		Backend:   storage.BackendRedis,
		RedisAddr: "localhost:6379",
		RedisDB:   2,
		Prefix:    "payload:",
	}, cfg.StorageConfig())
	assert.Equal(t, transport.Options{
		BaseURL:      "https://api.example.com",
		UserAgent:    "ua",
		MaxBodyBytes: 1024,
	}, cfg.TransportOptions())
	assert.Equal(t, "127.0.0.1:9000", cfg.Address())
}

func TestLoggerConfig(t *testing.T) {
	cfg := &Config{LogLevel: "warn"}
	lc, err := cfg.LoggerConfig()
	require.NoError(t, err)
	assert.Equal(t, logging.LevelWarn, lc.Level)

	cfg.Driver.Debug = true
	lc, err = cfg.LoggerConfig()
	require.NoError(t, err)
	assert.Equal(t, logging.LevelDebug, lc.Level)

	cfg.LogLevel = "loud"
	_, err = cfg.LoggerConfig()
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PAYLOAD_TEST_ENV_VALUE=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("PAYLOAD_TEST_ENV_VALUE") })

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("PAYLOAD_TEST_ENV_VALUE"))

	// A missing file is not an error.
	assert.NoError(t, LoadEnvFile(filepath.Join(dir, "missing.env")))
}

func TestLoadWithEnvironment(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("PAYLOAD_SERVER_PORT", "9999")
	t.Setenv("PAYLOAD_STORAGE_BACKEND", "file")

	t.Setenv("PAYLOAD_TRANSPORT_BASE_URL", "https://api.example.com")
	t.Setenv("PAYLOAD_LOG_LEVEL", "debug")

	require.NoError(t, BindEnv())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, storage.BackendFile, cfg.Storage.Backend)
	assert.Equal(t, "https://api.example.com", cfg.Transport.BaseURL)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidateConfigWithDetails(t *testing.T) {
	cfg := &Config{
		Driver: DriverConfig{
			Context:       "body",
			DataNamespace: "bad ns",
			AppDataKey:    "k",
		},
		Templates: TemplatesConfig{Dir: "t", PartialsDir: "p", Extension: "tpl"},
		Storage:   StorageConfig{Backend: storage.BackendRedis, RedisAddr: "no-port"},
		Transport: TransportConfig{BaseURL: "/relative"},
		Server: ServerConfig{
			Host:           "localhost",
			Port:           80,
			AllowedOrigins: []string{"localhost"},
		},
		LogLevel: "info",
	}

	result := ValidateConfigWithDetails(cfg)
	assert.False(t, result.Valid)

	fields := make(map[string]bool)
	for _, e := range result.Errors {
		fields[e.Field] = true
	}
	for _, want := range []string{
		"driver.data_namespace",
		"templates.extension",
		"storage.redis_addr",
		"transport.base_url",
		"server.allowed_origins[0]",
	} {
		assert.True(t, fields[want], "expected error on %s", want)
	}

	require.True(t, result.HasWarnings())
	assert.Equal(t, "server.port", result.Warnings[0].Field)
	assert.Contains(t, result.String(), "Validation errors:")
}
