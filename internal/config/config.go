package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "AFFILIATEDESK"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabasePath    = "affiliatedesk.db"
	defaultLogLevel        = "info"
	defaultLogEncoding     = "json"
	defaultClientEncoding  = "console"
	defaultTokenTTLMinutes = 30
	defaultAPIBaseURL      = "http://localhost:8080"
	defaultSessionPath     = "affiliatedesk-session.db"
	defaultPageSize        = 5
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	DatabasePath       string
	LogLevel           string
	LogEncoding        string
	AuthSigningSecret  string
	TokenTTL           time.Duration
	CORSAllowedOrigins []string
}

// ClientConfig captures runtime configuration for the command-line dashboard.
type ClientConfig struct {
	APIBaseURL  string
	SessionPath string
	LogLevel    string
	LogEncoding string
	PageSize    int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.encoding", defaultLogEncoding)
	configViper.SetDefault("client.log_encoding", defaultClientEncoding)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("cors.allowed_origins", []string{"*"})
	configViper.SetDefault("api.base_url", defaultAPIBaseURL)
	configViper.SetDefault("session.path", defaultSessionPath)
	configViper.SetDefault("viewmodel.page_size", defaultPageSize)
}

// Load parses server configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		LogEncoding:        configViper.GetString("log.encoding"),
		AuthSigningSecret:  configViper.GetString("auth.signing_secret"),
		TokenTTL:           time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		CORSAllowedOrigins: splitOrigins(configViper.GetStringSlice("cors.allowed_origins")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadClient parses dashboard client configuration from viper.
func LoadClient(configViper *viper.Viper) (ClientConfig, error) {
	cfg := ClientConfig{
		APIBaseURL:  strings.TrimRight(configViper.GetString("api.base_url"), "/"),
		SessionPath: configViper.GetString("session.path"),
		LogLevel:    configViper.GetString("log.level"),
		LogEncoding: configViper.GetString("client.log_encoding"),
		PageSize:    configViper.GetInt("viewmodel.page_size"),
	}

	if err := cfg.validate(); err != nil {
		return ClientConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AuthSigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	if err := validateEncoding(c.LogEncoding); err != nil {
		return err
	}
	return nil
}

func (c ClientConfig) validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if strings.TrimSpace(c.SessionPath) == "" {
		return fmt.Errorf("session.path is required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("viewmodel.page_size must be positive")
	}
	if err := validateEncoding(c.LogEncoding); err != nil {
		return err
	}
	return nil
}

func validateEncoding(encoding string) error {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "json", "console":
		return nil
	default:
		return fmt.Errorf("log.encoding must be json or console, got %q", encoding)
	}
}

// splitOrigins accepts both list values and a single comma-separated env value.
func splitOrigins(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}
