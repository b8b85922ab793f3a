package tenants

import (
	"time"

	"authgate/pkg/plans"
)

// App is one tenant application integrating with the gateway.
type App struct {
	ID      string // uuid
	OwnerID string // subscriber account the quota is enforced against
	Name    string

	// RedirectBase is the app's public base URL; post-login redirects land on
	// RedirectBase + the path requested at login time.
	RedirectBase string

	// The app's own backing-store endpoint and credential. Opaque to the
	// gateway beyond pass-through storage.
	StoreEndpoint string
	StoreSecret   string

	// Ordered set of provider credentials; order is the display order the
	// tenant configured.
	Credentials []ProviderCredential

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProviderCredential configures one identity provider for an app.
type ProviderCredential struct {
	Provider     string            `json:"provider"`
	ClientID     string            `json:"client_id"`
	ClientSecret string            `json:"client_secret"` // secret or signing key, provider-dependent
	Extra        map[string]string `json:"extra,omitempty"`
	Enabled      bool              `json:"enabled"`
}

// Credential returns the enabled credential for a provider, if any.
func (a *App) Credential(provider string) (ProviderCredential, bool) {
	for _, c := range a.Credentials {
		if c.Provider == provider && c.Enabled {
			return c, true
		}
	}
	return ProviderCredential{}, false
}

// Owner is the subscriber account responsible for one or more apps.
type Owner struct {
	ID   string
	Plan plans.Tier
}
