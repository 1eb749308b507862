package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress || cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.TokenTTL != 30*time.Minute {
		t.Fatalf("expected 30 minute ttl, got %s", cfg.TokenTTL)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadRequiresSigningSecret(t *testing.T) {
	if _, err := Load(NewViper()); err == nil {
		t.Fatalf("expected error for missing signing secret")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("AFFILIATEDESK_AUTH_SIGNING_SECRET", "from-env")
	t.Setenv("AFFILIATEDESK_TOKEN_TTL_MINUTES", "5")
	t.Setenv("AFFILIATEDESK_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AuthSigningSecret != "from-env" || cfg.TokenTTL != 5*time.Minute {
		t.Fatalf("expected env overrides, got %+v", cfg)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadRejectsUnknownEncoding(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")
	configViper.Set("log.encoding", "xml")
	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected error for unknown log encoding")
	}
}

func TestLoadClient(t *testing.T) {
	configViper := NewViper()
	configViper.Set("api.base_url", "http://api.example/")

	cfg, err := LoadClient(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIBaseURL != "http://api.example" || cfg.PageSize != defaultPageSize || cfg.LogEncoding != "console" {
		t.Fatalf("unexpected client config %+v", cfg)
	}

	configViper.Set("viewmodel.page_size", 0)
	if _, err := LoadClient(configViper); err == nil {
		t.Fatalf("expected error for non-positive page size")
	}
}
