package app

import (
	"os"

	"github.com/oxkey/ident/internal/ident/domain"
)

// defaultProviders builds the provider endpoint table from the environment.
// Providers without a configured client id are omitted so Begin fails fast
// with ErrUnknownProvider instead of redirecting into a broken consent
// screen.
func defaultProviders() map[domain.Provider]domain.ProviderConfig {
	providers := make(map[domain.Provider]domain.ProviderConfig)

	if id := os.Getenv("IDENT_GOOGLE_CLIENT_ID"); id != "" {
		providers[domain.ProviderGoogle] = domain.ProviderConfig{
			AuthorizeEndpoint: "https://accounts.google.com/o/oauth2/v2/auth",
			ClientID:          id,
			Scopes:            []string{"openid", "email", "profile"},
		}
	}

	if id := os.Getenv("IDENT_GITHUB_CLIENT_ID"); id != "" {
		providers[domain.ProviderGitHub] = domain.ProviderConfig{
			AuthorizeEndpoint: "https://github.com/login/oauth/authorize",
			ClientID:          id,
			Scopes:            []string{"read:user", "user:email"},
		}
	}

	return providers
}
