// Package providers assembles the startup factory table mapping provider
// ids to constructors. Kept separate from the auth package so the registry
// stays free of provider imports.
package providers

import (
	"github.com/gamedock/gamedock/internal/pkg/auth"
	"github.com/gamedock/gamedock/internal/pkg/auth/providers/directory"
	"github.com/gamedock/gamedock/internal/pkg/auth/providers/local"
	"github.com/gamedock/gamedock/internal/pkg/auth/providers/oidc"
	"github.com/gamedock/gamedock/internal/pkg/auth/providers/webhook"
)

// All returns the complete factory table.
func All() map[string]auth.Factory {
	return map[string]auth.Factory{
		auth.ProviderLocal:     local.New,
		auth.ProviderOIDC:      oidc.New,
		auth.ProviderDirectory: directory.New,
		auth.ProviderWebhook:   webhook.New,
	}
}
