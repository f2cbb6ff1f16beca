// Package collab provides development implementations of the engine's
// external collaborators. Production deployments replace these with the real
// account store, mailer and provider clients.
package collab

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oxkey/ident/internal/ident/domain"
	"github.com/oxkey/ident/internal/ident/service"
	"github.com/oxkey/ident/pkg/cryptox"
	"github.com/oxkey/ident/pkg/idx"
)

// MemoryAccounts is an in-memory account store with argon2id password
// hashing. It holds accounts only for the process lifetime.
type MemoryAccounts struct {
	mu       sync.RWMutex
	accounts map[string]accountRecord // keyed by account id
}

type accountRecord struct {
	account      domain.Account
	passwordHash string
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{accounts: make(map[string]accountRecord)}
}

func (m *MemoryAccounts) Exists(_ context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.accounts {
		if r.account.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryAccounts) Create(_ context.Context, profile domain.Profile) (domain.Account, error) {
	hash, err := cryptox.HashPassword(profile.Password)
	if err != nil {
		return domain.Account{}, err
	}

	account := domain.Account{
		ID:        idx.New().String(),
		Email:     strings.ToLower(strings.TrimSpace(profile.Email)),
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Type:      "local",
		CreatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.accounts[account.ID] = accountRecord{account: account, passwordHash: hash}
	m.mu.Unlock()
	return account, nil
}

func (m *MemoryAccounts) FindByID(_ context.Context, id string) (domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.accounts[id]; ok {
		return r.account, nil
	}
	return domain.Account{}, service.ErrAccountNotFound
}

func (m *MemoryAccounts) FindByIdentity(_ context.Context, identity string) (domain.Account, error) {
	identity = strings.ToLower(strings.TrimSpace(identity))
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.accounts {
		if r.account.Email == identity || r.account.Username == identity {
			return r.account, nil
		}
	}
	return domain.Account{}, service.ErrAccountNotFound
}

func (m *MemoryAccounts) FindByProvider(_ context.Context, provider domain.Provider, subject string) (domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.accounts {
		if r.account.Provider == provider && r.account.ProviderSubject == subject {
			return r.account, nil
		}
	}
	return domain.Account{}, service.ErrAccountNotFound
}

func (m *MemoryAccounts) CreateFromProvider(_ context.Context, identity domain.ProviderIdentity) (domain.Account, error) {
	account := domain.Account{
		ID:              idx.New().String(),
		Email:           strings.ToLower(strings.TrimSpace(identity.Email)),
		Type:            "oauth",
		Provider:        identity.Provider,
		ProviderSubject: identity.Subject,
		CreatedAt:       time.Now().UTC(),
	}

	m.mu.Lock()
	m.accounts[account.ID] = accountRecord{account: account}
	m.mu.Unlock()
	return account, nil
}

func (m *MemoryAccounts) VerifyPassword(_ context.Context, account domain.Account, password string) (bool, error) {
	m.mu.RLock()
	r, ok := m.accounts[account.ID]
	m.mu.RUnlock()
	if !ok {
		return false, service.ErrAccountNotFound
	}
	if r.passwordHash == "" {
		return false, nil
	}

	err := cryptox.VerifyPassword(password, r.passwordHash)
	if errors.Is(err, cryptox.ErrPasswordMismatch) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *MemoryAccounts) SetPassword(_ context.Context, accountID, password string) error {
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.accounts[accountID]
	if !ok {
		return service.ErrAccountNotFound
	}
	r.passwordHash = hash
	m.accounts[accountID] = r
	return nil
}
