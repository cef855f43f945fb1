package config

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/conneroisu/payload/internal/logging"
	"github.com/conneroisu/payload/internal/storage"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("Validation errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("      hint: %s\n", suggestion))
			}
		}
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("Validation warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("      hint: %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

// ValidateConfigWithDetails performs every check and collects all problems
// instead of stopping at the first.
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateDriverConfigDetails(&config.Driver, result)
	validateTemplatesConfigDetails(&config.Templates, result)
	validateStorageConfigDetails(&config.Storage, result)
	validateTransportConfigDetails(&config.Transport, result)
	validateServerConfigDetails(&config.Server, result)

	if _, err := logging.ParseLevel(config.LogLevel); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "log_level",
			Value:       config.LogLevel,
			Message:     err.Error(),
			Suggestions: []string{"Use one of: debug, info, warn, error, off"},
		})
	}

	result.Valid = !result.HasErrors()

	return result
}

// validateConfig returns the first validation error, if any.
func validateConfig(config *Config) error {
	result := ValidateConfigWithDetails(config)
	if result.HasErrors() {
		return &result.Errors[0]
	}

	return nil
}

var namespacePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]*$`)

func validateDriverConfigDetails(config *DriverConfig, result *ValidationResult) {
	if strings.TrimSpace(config.Context) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "driver.context",
			Value:       config.Context,
			Message:     "binding context selector cannot be empty",
			Suggestions: []string{"Use 'body' to bind the whole document"},
		})
	}

	if !namespacePattern.MatchString(config.DataNamespace) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "driver.data_namespace",
			Value:   config.DataNamespace,
			Message: "namespace may only contain letters, digits, '-' and '_'",
			Suggestions: []string{
				"A namespace of 'app' yields attributes like data-app-url",
				"Leave empty to use plain data-url attributes",
			},
		})
	}

	for field, d := range map[string]time.Duration{
		"driver.timeout":      config.Timeout,
		"driver.loading_fade": config.LoadingFade,
	} {
		if d < 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field:       field,
				Value:       d,
				Message:     "duration must not be negative",
				Suggestions: []string{"Use 0 to disable", "Durations use Go syntax such as 250ms or 5s"},
			})
		}
	}

	if config.Timeout > 0 && config.Timeout < time.Millisecond {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:       "driver.timeout",
			Value:       config.Timeout,
			Message:     "timeout below one millisecond will fail every request",
			Suggestions: []string{"Write the unit explicitly, for example 5s"},
		})
	}

	if config.PersistAppData && strings.TrimSpace(config.AppDataKey) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "driver.app_data_key",
			Value:   config.AppDataKey,
			Message: "app data key cannot be empty when persistence is enabled",
		})
	}
}

func validateTemplatesConfigDetails(config *TemplatesConfig, result *ValidationResult) {
	for field, path := range map[string]string{
		"templates.dir":          config.Dir,
		"templates.partials_dir": config.PartialsDir,
	} {
		if err := validatePath(path); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Value:   path,
				Message: err.Error(),
				Suggestions: []string{
					"Use relative paths from the project root",
					"Avoid parent directory references (..)",
				},
			})
		}
	}

	if !strings.HasPrefix(config.Extension, ".") {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "templates.extension",
			Value:       config.Extension,
			Message:     "extension must start with '.'",
			Suggestions: []string{"Use '.tpl' or '.html'"},
		})
	}
}

func validateStorageConfigDetails(config *StorageConfig, result *ValidationResult) {
	switch config.Backend {
	case storage.BackendMemory:
	case storage.BackendFile:
		if err := validatePath(config.Path); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "storage.path",
				Value:   config.Path,
				Message: err.Error(),
			})
		}
	case storage.BackendRedis:
		if config.RedisAddr == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:       "storage.redis_addr",
				Value:       config.RedisAddr,
				Message:     "redis backend requires an address",
				Suggestions: []string{"Use 'localhost:6379' for a local server"},
			})
		} else if _, _, err := net.SplitHostPort(config.RedisAddr); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "storage.redis_addr",
				Value:   config.RedisAddr,
				Message: err.Error(),
			})
		}
		if config.RedisDB < 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "storage.redis_db",
				Value:   config.RedisDB,
				Message: "database index must not be negative",
			})
		}
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "storage.backend",
			Value:   config.Backend,
			Message: fmt.Sprintf("unknown storage backend %q", config.Backend),
			Suggestions: []string{
				"Available backends: " + strings.Join([]string{storage.BackendMemory, storage.BackendFile, storage.BackendRedis}, ", "),
			},
		})
	}
}

func validateTransportConfigDetails(config *TransportConfig, result *ValidationResult) {
	if config.BaseURL != "" {
		u, err := url.Parse(config.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:       "transport.base_url",
				Value:       config.BaseURL,
				Message:     "base URL must be absolute",
				Suggestions: []string{"Use a URL such as https://api.example.com"},
			})
		}
	}

	if config.MaxBodyBytes < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "transport.max_body_bytes",
			Value:   config.MaxBodyBytes,
			Message: "body limit must not be negative",
		})
	}
}

func validateServerConfigDetails(config *ServerConfig, result *ValidationResult) {
	// Port 0 lets the system assign one.
	if config.Port < 0 || config.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.port",
			Value:   config.Port,
			Message: fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			Suggestions: []string{
				"Use a port between 1024-65535 for non-privileged access",
				"Port 0 allows system to assign an available port",
			},
		})
	} else if config.Port > 0 && config.Port < 1024 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:       "server.port",
			Value:       config.Port,
			Message:     "port below 1024 requires elevated privileges",
			Suggestions: []string{"Consider using a port above 1024"},
		})
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.host",
				Value:   config.Host,
				Message: err.Error(),
				Suggestions: []string{
					"Use 'localhost' for local inspection",
					"Use a valid IP address or hostname",
				},
			})
		}
	}

	if config.RateLimit < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "server.rate_limit",
			Value:       config.RateLimit,
			Message:     "rate limit must not be negative",
			Suggestions: []string{"Use 0 to disable the limit"},
		})
	}

	for i, origin := range config.AllowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:       fmt.Sprintf("server.allowed_origins[%d]", i),
				Value:       origin,
				Message:     "origin must be scheme://host[:port]",
				Suggestions: []string{"Use a value such as http://localhost:3000"},
			})
		}
	}
}

// Helper validation functions

func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}

var hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

func validateHostname(host string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if net.ParseIP(host) != nil || host == "localhost" {
		return nil
	}

	if !hostnamePattern.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}

	return nil
}
