package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testSessionSecret = "unit-test-secret-0123456789"

func validOIDCConfig() Config {
	return Config{
		"CLIENT_ID":     "gamedock",
		"CLIENT_SECRET": "oidc-client-secret-value",
		"ISSUER":        "https://id.example.com/realms/main",
	}
}

func TestValidateConfigValid(t *testing.T) {
	t.Setenv(EnvSessionSecret, testSessionSecret)

	tests := []struct {
		provider string
		cfg      Config
	}{
		{ProviderLocal, Config{}},
		{ProviderOIDC, validOIDCConfig()},
		{ProviderDirectory, Config{
			"BASE_URL":      "https://users.example.com",
			"API_KEY":       "key",
			"SYNC_INTERVAL": "30m",
		}},
		{ProviderWebhook, Config{
			"SECRET":              "webhook-shared-secret-value",
			"VALIDATE_SIGNATURES": "true",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			res := ValidateConfig(tt.provider, tt.cfg)
			if !res.Valid {
				t.Fatalf("ValidateConfig(%s) invalid: %s", tt.provider, res.Message)
			}
			if res.Capabilities == nil {
				t.Fatal("valid result is missing capabilities")
			}
		})
	}
}

func TestValidateConfigMissingFieldNamesVariable(t *testing.T) {
	t.Setenv(EnvSessionSecret, testSessionSecret)

	for _, def := range Definitions() {
		for _, field := range def.ConfigFields {
			cfg := Config{}
			switch def.ID {
			case ProviderOIDC:
				cfg = validOIDCConfig()
			case ProviderDirectory:
				cfg = Config{"BASE_URL": "https://users.example.com", "API_KEY": "key"}
			case ProviderWebhook:
				cfg = Config{"SECRET": "webhook-shared-secret-value"}
			}
			delete(cfg, field)

			res := ValidateConfig(def.ID, cfg)
			if res.Valid {
				t.Errorf("%s without %s passed validation", def.ID, field)
				continue
			}
			want := def.EnvPrefix + field
			if !strings.Contains(res.Message, want) {
				t.Errorf("%s message %q does not name %s", def.ID, res.Message, want)
			}
		}
	}
}

func TestValidateConfigFieldShapes(t *testing.T) {
	t.Setenv(EnvSessionSecret, testSessionSecret)

	tests := []struct {
		name     string
		provider string
		cfg      Config
	}{
		{"relative issuer url", ProviderOIDC, Config{
			"CLIENT_ID": "x", "CLIENT_SECRET": "oidc-client-secret-value", "ISSUER": "/realms/main",
		}},
		{"non-http base url", ProviderDirectory, Config{
			"BASE_URL": "ftp://users.example.com", "API_KEY": "key",
		}},
		{"short webhook secret", ProviderWebhook, Config{
			"SECRET": "short",
		}},
		{"negative sync interval", ProviderDirectory, Config{
			"BASE_URL": "https://users.example.com", "API_KEY": "key", "SYNC_INTERVAL": "-5m",
		}},
		{"non-duration sync interval", ProviderDirectory, Config{
			"BASE_URL": "https://users.example.com", "API_KEY": "key", "SYNC_INTERVAL": "often",
		}},
		{"non-boolean signature flag", ProviderWebhook, Config{
			"SECRET": "webhook-shared-secret-value", "VALIDATE_SIGNATURES": "yes please",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := ValidateConfig(tt.provider, tt.cfg); res.Valid {
				t.Errorf("ValidateConfig accepted %s", tt.name)
			}
		})
	}
}

func TestValidateConfigRequiresSessionSecret(t *testing.T) {
	t.Setenv(EnvSessionSecret, "")

	res := ValidateConfig(ProviderLocal, Config{})
	if res.Valid {
		t.Fatal("validation passed without a session secret")
	}
	if !strings.Contains(res.Message, EnvSessionSecret) {
		t.Errorf("message %q does not name %s", res.Message, EnvSessionSecret)
	}

	t.Setenv(EnvSessionSecret, "short")
	if res := ValidateConfig(ProviderLocal, Config{}); res.Valid {
		t.Error("validation passed with a weak session secret")
	}
}

func TestValidateConfigUnknownProvider(t *testing.T) {
	if res := ValidateConfig("saml", Config{}); res.Valid {
		t.Error("validation passed for an unknown provider")
	}
}

func TestResolveConfigDefaults(t *testing.T) {
	t.Setenv("AUTH_DIRECTORY_BASE_URL", "https://users.example.com")
	t.Setenv("AUTH_DIRECTORY_API_KEY", "key")

	cfg, err := ResolveConfig(ProviderDirectory)
	if err != nil {
		t.Fatalf("ResolveConfig failed: %v", err)
	}
	if got := cfg.Get("SYNC_INTERVAL"); got != time.Hour.String() {
		t.Errorf("SYNC_INTERVAL default = %q, want %q", got, time.Hour.String())
	}

	cfg, err = ResolveConfig(ProviderWebhook)
	if err != nil {
		t.Fatalf("ResolveConfig failed: %v", err)
	}
	if !cfg.Bool("VALIDATE_SIGNATURES", false) {
		t.Error("VALIDATE_SIGNATURES does not default to true")
	}

	if _, err := ResolveConfig("saml"); err == nil {
		t.Error("ResolveConfig accepted an unknown provider")
	} else {
		var unknown *UnknownProviderError
		if !errors.As(err, &unknown) {
			t.Errorf("err = %v, want UnknownProviderError", err)
		}
	}
}

func TestConfigHelpers(t *testing.T) {
	cfg := Config{"SYNC_INTERVAL": "15m", "VALIDATE_SIGNATURES": "false"}

	if got := cfg.Duration("SYNC_INTERVAL", time.Hour); got != 15*time.Minute {
		t.Errorf("Duration = %v, want 15m", got)
	}
	if got := cfg.Duration("MISSING", time.Hour); got != time.Hour {
		t.Errorf("Duration fallback = %v, want 1h", got)
	}
	if cfg.Bool("VALIDATE_SIGNATURES", true) {
		t.Error("Bool = true, want false")
	}

	merged := cfg.Merge(map[string]string{"SYNC_INTERVAL": "5m", "EXTRA": "x"})
	if merged.Get("SYNC_INTERVAL") != "5m" || merged.Get("EXTRA") != "x" {
		t.Errorf("Merge result = %v", merged)
	}
	if cfg.Get("SYNC_INTERVAL") != "15m" {
		t.Error("Merge modified the receiver")
	}

	if cfg.Fingerprint() != cfg.Fingerprint() {
		t.Error("Fingerprint is not stable")
	}
	if cfg.Fingerprint() == merged.Fingerprint() {
		t.Error("different configs share a fingerprint")
	}
}
