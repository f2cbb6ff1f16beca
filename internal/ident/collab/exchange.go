package collab

import (
	"context"
	"errors"
	"strings"

	"github.com/oxkey/ident/internal/ident/domain"
)

// ErrBadCode rejects a loopback code that does not parse.
var ErrBadCode = errors.New("collab: malformed loopback code")

// LoopbackExchange is a development stand-in for the provider token
// exchange. The "authorization code" is simply "subject:email", so flows
// can be driven end to end without a real provider.
type LoopbackExchange struct{}

func (LoopbackExchange) Exchange(_ context.Context, provider domain.Provider, code string) (domain.ProviderIdentity, error) {
	subject, email, ok := strings.Cut(code, ":")
	if !ok || subject == "" || email == "" {
		return domain.ProviderIdentity{}, ErrBadCode
	}
	return domain.ProviderIdentity{
		Provider: provider,
		Subject:  subject,
		Email:    email,
	}, nil
}
