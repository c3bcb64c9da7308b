package auth

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/gamedock/gamedock/internal/pkg/env"
)

// Config keys are the env-var suffixes from the provider definition, e.g.
// "CLIENT_ID" for AUTH_OIDC_CLIENT_ID.
type Config map[string]string

const (
	// EnvSessionSecret signs every session token regardless of provider.
	EnvSessionSecret = "AUTH_SESSION_SECRET"
	// EnvActiveProvider selects the provider when Initialize gets no
	// explicit option.
	EnvActiveProvider = "AUTH_PROVIDER"

	minSecretLength = 16

	defaultSyncInterval = time.Hour
)

// Optional config fields recognized beyond the required ones.
var optionalFields = map[string][]string{
	ProviderOIDC:      {"SCOPES", "ADMIN_GROUP", "BASE_URL"},
	ProviderDirectory: {"SYNC_INTERVAL"},
	ProviderWebhook:   {"VALIDATE_SIGNATURES"},
}

// ValidationResult reports whether a provider's configuration is usable.
type ValidationResult struct {
	Valid        bool          `json:"valid"`
	Message      string        `json:"message"`
	Capabilities *Capabilities `json:"capabilities,omitempty"`
}

// ResolveConfig builds a provider's configuration from environment values
// and applies provider-specific defaults.
func ResolveConfig(id string) (Config, error) {
	def := DefinitionFor(id)
	if def == nil {
		return nil, &UnknownProviderError{ID: id}
	}

	cfg := Config{}
	for _, field := range def.ConfigFields {
		cfg[field] = env.GetEnv(def.EnvPrefix+field, "")
	}
	for _, field := range optionalFields[id] {
		if v := env.GetEnv(def.EnvPrefix+field, ""); v != "" {
			cfg[field] = v
		}
	}

	switch id {
	case ProviderDirectory:
		if cfg["SYNC_INTERVAL"] == "" {
			cfg["SYNC_INTERVAL"] = defaultSyncInterval.String()
		}
	case ProviderWebhook:
		if cfg["VALIDATE_SIGNATURES"] == "" {
			cfg["VALIDATE_SIGNATURES"] = "true"
		}
	}

	return cfg, nil
}

// ValidateConfig runs config-shape validation followed by environment-level
// validation, short-circuiting on the first failure.
func ValidateConfig(id string, cfg Config) ValidationResult {
	def := DefinitionFor(id)
	if def == nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("unknown auth provider %q", id)}
	}

	for _, field := range def.ConfigFields {
		if strings.TrimSpace(cfg[field]) == "" {
			return ValidationResult{
				Valid:   false,
				Message: fmt.Sprintf("missing required field %s%s", def.EnvPrefix, field),
			}
		}
	}

	v := validator.New()
	for field, value := range cfg {
		if value == "" {
			continue
		}
		switch {
		case field == "ISSUER" || strings.HasSuffix(field, "_URL") || field == "BASE_URL":
			if err := v.Var(value, "url"); err != nil || !isAbsoluteHTTPURL(value) {
				return ValidationResult{
					Valid:   false,
					Message: fmt.Sprintf("field %s%s must be an absolute http(s) URL", def.EnvPrefix, field),
				}
			}
		case strings.HasSuffix(field, "SECRET"):
			if len(value) < minSecretLength {
				return ValidationResult{
					Valid:   false,
					Message: fmt.Sprintf("field %s%s must be at least %d characters", def.EnvPrefix, field, minSecretLength),
				}
			}
		case field == "SYNC_INTERVAL":
			d, err := time.ParseDuration(value)
			if err != nil || d <= 0 {
				return ValidationResult{
					Valid:   false,
					Message: fmt.Sprintf("field %s%s must be a positive duration", def.EnvPrefix, field),
				}
			}
		case field == "VALIDATE_SIGNATURES":
			if _, err := strconv.ParseBool(value); err != nil {
				return ValidationResult{
					Valid:   false,
					Message: fmt.Sprintf("field %s%s must be a boolean", def.EnvPrefix, field),
				}
			}
		}
	}

	// Environment-level checks: every provider issues session tokens, so
	// the global signing secret must be present and strong.
	secret := env.GetEnv(EnvSessionSecret, "")
	if secret == "" {
		return ValidationResult{Valid: false, Message: "missing required " + EnvSessionSecret}
	}
	if len(secret) < minSecretLength {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("%s must be at least %d characters", EnvSessionSecret, minSecretLength),
		}
	}

	caps := def.Capabilities
	return ValidationResult{Valid: true, Message: "ok", Capabilities: &caps}
}

func isAbsoluteHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Get returns a config value, empty when unset.
func (c Config) Get(key string) string {
	return c[key]
}

// Duration parses a duration-valued field, falling back to def.
func (c Config) Duration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(c[key])
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Bool parses a boolean-valued field, falling back to def.
func (c Config) Bool(key string, def bool) bool {
	b, err := strconv.ParseBool(c[key])
	if err != nil {
		return def
	}
	return b
}

// Merge overlays explicit overrides on top of the receiver, returning a new
// Config. The receiver is not modified.
func (c Config) Merge(overrides map[string]string) Config {
	merged := Config{}
	for k, v := range c {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// Fingerprint returns a stable key for memoizing validation results.
func (c Config) Fingerprint() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(c[k])
		b.WriteByte(';')
	}
	return b.String()
}
