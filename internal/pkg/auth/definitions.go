package auth

// Provider ids. The table below is populated at process start and never
// mutated afterwards.
const (
	ProviderLocal     = "local"
	ProviderOIDC      = "oidc"
	ProviderDirectory = "directory"
	ProviderWebhook   = "webhook"
)

// Provider categories for metadata queries.
const (
	CategoryBuiltin = "builtin"
	CategorySSO     = "sso"
	CategorySync    = "sync"
)

// Capabilities describes which operations a provider supports.
type Capabilities struct {
	SupportsCallback    bool `json:"supportsCallback"`
	SupportsCredentials bool `json:"supportsCredentials"`
	SupportsSync        bool `json:"supportsSync"`
	RequiresRedirect    bool `json:"requiresRedirect"`
}

// Definition is the immutable static metadata for one provider.
type Definition struct {
	ID           string
	Category     string
	Capabilities Capabilities
	// ConfigFields lists the env-var suffixes that must resolve to a
	// non-empty value for the provider to be usable.
	ConfigFields []string
	EnvPrefix    string
}

var definitions = []Definition{
	{
		ID:       ProviderLocal,
		Category: CategoryBuiltin,
		Capabilities: Capabilities{
			SupportsCredentials: true,
		},
		ConfigFields: nil,
		EnvPrefix:    "AUTH_LOCAL_",
	},
	{
		ID:       ProviderOIDC,
		Category: CategorySSO,
		Capabilities: Capabilities{
			SupportsCallback: true,
			RequiresRedirect: true,
		},
		ConfigFields: []string{"CLIENT_ID", "CLIENT_SECRET", "ISSUER"},
		EnvPrefix:    "AUTH_OIDC_",
	},
	{
		ID:       ProviderDirectory,
		Category: CategorySync,
		Capabilities: Capabilities{
			SupportsCredentials: true,
			SupportsSync:        true,
		},
		ConfigFields: []string{"BASE_URL", "API_KEY"},
		EnvPrefix:    "AUTH_DIRECTORY_",
	},
	{
		ID:       ProviderWebhook,
		Category: CategorySync,
		Capabilities: Capabilities{
			SupportsSync: true,
		},
		ConfigFields: []string{"SECRET"},
		EnvPrefix:    "AUTH_WEBHOOK_",
	},
}

// DefinitionFor returns the static metadata for a provider id, or nil when
// the id is unknown.
func DefinitionFor(id string) *Definition {
	for i := range definitions {
		if definitions[i].ID == id {
			return &definitions[i]
		}
	}
	return nil
}

// Definitions returns all provider definitions in registration order.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// DefinitionsByCapability returns providers whose capability named by cap is set.
func DefinitionsByCapability(cap string) []Definition {
	var out []Definition
	for _, d := range definitions {
		switch cap {
		case "callback":
			if d.Capabilities.SupportsCallback {
				out = append(out, d)
			}
		case "credentials":
			if d.Capabilities.SupportsCredentials {
				out = append(out, d)
			}
		case "sync":
			if d.Capabilities.SupportsSync {
				out = append(out, d)
			}
		case "redirect":
			if d.Capabilities.RequiresRedirect {
				out = append(out, d)
			}
		}
	}
	return out
}

// DefinitionsByCategory returns providers in the given category.
func DefinitionsByCategory(category string) []Definition {
	var out []Definition
	for _, d := range definitions {
		if d.Category == category {
			out = append(out, d)
		}
	}
	return out
}
