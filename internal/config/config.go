// Package config provides configuration management for payload using Viper
// for loading from files, environment variables and command-line flags.
//
// The configuration system supports YAML files, a local .env file, environment
// variable overrides with the PAYLOAD_ prefix, defaults and validation. It
// covers the driver options, template discovery, the scoped storage backend,
// the HTTP transport and the inspector server.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/conneroisu/payload/internal/appdata"
	"github.com/conneroisu/payload/internal/driver"
	"github.com/conneroisu/payload/internal/logging"
	"github.com/conneroisu/payload/internal/storage"
	"github.com/conneroisu/payload/internal/transport"
	"github.com/conneroisu/payload/internal/version"
)

// EnvFile is loaded into the process environment, when present, before the
// PAYLOAD_ variables are read.
const EnvFile = ".env"

type Config struct {
	Driver    DriverConfig    `mapstructure:"driver" yaml:"driver"`
	Templates TemplatesConfig `mapstructure:"templates" yaml:"templates"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	LogLevel  string          `mapstructure:"log-level" yaml:"log_level"`
}

type DriverConfig struct {
	Context          string        `mapstructure:"context" yaml:"context"`
	DataNamespace    string        `mapstructure:"data_namespace" yaml:"data_namespace"`
	LoadingDefault   bool          `mapstructure:"loading_default" yaml:"loading_default"`
	LoadingHTML      string        `mapstructure:"loading_html" yaml:"loading_html"`
	LoadingFade      time.Duration `mapstructure:"loading_fade" yaml:"loading_fade"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ResponseParent   string        `mapstructure:"response_parent" yaml:"response_parent"`
	AccessToken      string        `mapstructure:"access_token" yaml:"access_token"`
	Debug            bool          `mapstructure:"debug" yaml:"debug"`
	CoalesceRequests bool          `mapstructure:"coalesce_requests" yaml:"coalesce_requests"`
	Sanitize         bool          `mapstructure:"sanitize" yaml:"sanitize"`
	AppDataKey       string        `mapstructure:"app_data_key" yaml:"app_data_key"`
	PersistAppData   bool          `mapstructure:"persist_app_data" yaml:"persist_app_data"`
}

type TemplatesConfig struct {
	Dir         string `mapstructure:"dir" yaml:"dir"`
	PartialsDir string `mapstructure:"partials_dir" yaml:"partials_dir"`
	Extension   string `mapstructure:"extension" yaml:"extension"`
	Watch       bool   `mapstructure:"watch" yaml:"watch"`
}

type StorageConfig struct {
	Backend       string `mapstructure:"backend" yaml:"backend"`
	Path          string `mapstructure:"path" yaml:"path"`
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	Prefix        string `mapstructure:"prefix" yaml:"prefix"`
}

type TransportConfig struct {
	BaseURL      string `mapstructure:"base_url" yaml:"base_url"`
	UserAgent    string `mapstructure:"user_agent" yaml:"user_agent"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host"`
	Port           int      `mapstructure:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	// RateLimit caps mutating inspector requests per minute and client.
	// Zero disables the limit.
	RateLimit int `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// Default values applied by Load when a key is not set.
const (
	DefaultTemplatesDir = "./templates"
	DefaultPartialsDir  = "./templates/partials"
	DefaultExtension    = ".tpl"
	DefaultStoragePath  = ".payload/storage.msgpack"
	DefaultHost         = "localhost"
	DefaultPort         = 8080
	DefaultRateLimit    = 120
)

// EnvPrefix prefixes every environment variable: PAYLOAD_<SECTION>_<OPTION>.
const EnvPrefix = "PAYLOAD"

// envKeys are bound explicitly: viper.Unmarshal only sees environment
// variables for keys it already knows.
var envKeys = []string{
	"log-level",
	"driver.context", "driver.data_namespace", "driver.loading_default",
	"driver.loading_html", "driver.loading_fade", "driver.timeout",
	"driver.response_parent", "driver.access_token", "driver.debug",
	"driver.coalesce_requests", "driver.sanitize", "driver.app_data_key",
	"driver.persist_app_data",
	"templates.dir", "templates.partials_dir", "templates.extension", "templates.watch",
	"storage.backend", "storage.path", "storage.redis_addr", "storage.redis_db",
	"storage.redis_password", "storage.prefix",
	"transport.base_url", "transport.user_agent", "transport.max_body_bytes",
	"server.host", "server.port", "server.rate_limit", "server.allowed_origins",
}

// BindEnv maps every configuration key to its environment variable on the
// global viper instance. "server.port" reads PAYLOAD_SERVER_PORT.
func BindEnv() error {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	for _, key := range envKeys {
		if err := viper.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	return nil
}

// LoadEnvFile loads path into the environment if it exists. Variables that
// are already set win.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}

	return nil
}

func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Booleans whose default is true can only be detected as unset via viper.
	if !viper.IsSet("driver.loading_default") {
		config.Driver.LoadingDefault = true
	}
	if !viper.IsSet("driver.coalesce_requests") {
		config.Driver.CoalesceRequests = true
	}
	if !viper.IsSet("driver.loading_fade") {
		config.Driver.LoadingFade = driver.DefaultLoadingFade
	}

	if config.Driver.Context == "" {
		config.Driver.Context = driver.DefaultContext
	}
	if config.Driver.LoadingHTML == "" {
		config.Driver.LoadingHTML = driver.DefaultLoadingHTML
	}
	if config.Driver.AppDataKey == "" {
		config.Driver.AppDataKey = appdata.DefaultKey
	}

	if config.Templates.Dir == "" {
		config.Templates.Dir = DefaultTemplatesDir
	}
	if config.Templates.PartialsDir == "" {
		config.Templates.PartialsDir = DefaultPartialsDir
	}
	if config.Templates.Extension == "" {
		config.Templates.Extension = DefaultExtension
	}

	if config.Storage.Backend == "" {
		config.Storage.Backend = storage.BackendMemory
	}
	if config.Storage.Path == "" {
		config.Storage.Path = DefaultStoragePath
	}

	if config.Transport.UserAgent == "" {
		config.Transport.UserAgent = version.UserAgent()
	}
	if config.Transport.MaxBodyBytes == 0 {
		config.Transport.MaxBodyBytes = transport.DefaultMaxBodyBytes
	}

	if config.Server.Host == "" {
		config.Server.Host = DefaultHost
	}
	if !viper.IsSet("server.port") {
		config.Server.Port = DefaultPort
	}
	if !viper.IsSet("server.rate_limit") {
		config.Server.RateLimit = DefaultRateLimit
	}

	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// DriverOptions converts the driver section into driver options. Templates,
// transport, store and logger are wired by the caller.
func (c *Config) DriverOptions() driver.Options {
	opts := driver.DefaultOptions()
	d := c.Driver

	opts.Context = d.Context
	opts.Namespace = d.DataNamespace
	opts.LoadingDefault = d.LoadingDefault
	opts.LoadingHTML = d.LoadingHTML
	opts.LoadingFade = d.LoadingFade
	opts.Timeout = d.Timeout
	opts.ResponseParent = d.ResponseParent
	opts.AccessToken = d.AccessToken
	opts.Debug = d.Debug
	opts.CoalesceRequests = d.CoalesceRequests
	opts.Sanitize = d.Sanitize
	opts.AppDataKey = d.AppDataKey
	opts.PersistAppData = d.PersistAppData

	return opts
}

// StorageConfig converts the storage section for storage.Open.
func (c *Config) StorageConfig() storage.Config {
	s := c.Storage

	return storage.Config{
		Backend:       s.Backend,
		Path:          s.Path,
		RedisAddr:     s.RedisAddr,
		RedisDB:       s.RedisDB,
		RedisPassword: s.RedisPassword,
		Prefix:        s.Prefix,
	}
}

// TransportOptions converts the transport section for transport.NewHTTP.
func (c *Config) TransportOptions() transport.Options {
	return transport.Options{
		BaseURL:      c.Transport.BaseURL,
		UserAgent:    c.Transport.UserAgent,
		MaxBodyBytes: c.Transport.MaxBodyBytes,
	}
}

// LoggerConfig returns the logger configuration for the log level. The
// driver debug flag forces debug level.
func (c *Config) LoggerConfig() (*logging.LoggerConfig, error) {
	cfg := logging.DefaultConfig()
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg.Level = level
	if c.Driver.Debug {
		cfg.Level = logging.LevelDebug
	}

	return cfg, nil
}

// Address is the host:port the inspector server listens on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
