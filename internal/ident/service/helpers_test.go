package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oxkey/ident/internal/ident/domain"
	"github.com/oxkey/ident/internal/ident/store/drivers/sqlite"
	"github.com/oxkey/ident/pkg/credx"
	"github.com/oxkey/ident/pkg/idx"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func newTestIssuer(t *testing.T) *credx.Issuer {
	t.Helper()

	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	issuer, err := credx.NewIssuer("ident-test", "test-kid", key, 0)
	require.NoError(t, err)
	return issuer
}

// fakeAccounts is an in-memory Accounts collaborator with scriptable
// password checks.
type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[string]domain.Account // by id
	password map[string]string         // id -> plaintext

	createCalls int
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		accounts: make(map[string]domain.Account),
		password: make(map[string]string),
	}
}

func (f *fakeAccounts) add(account domain.Account, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[account.ID] = account
	f.password[account.ID] = password
}

func (f *fakeAccounts) Exists(_ context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Email == strings.ToLower(email) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAccounts) Create(_ context.Context, profile domain.Profile) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	account := domain.Account{
		ID:        idx.New().String(),
		Email:     strings.ToLower(profile.Email),
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Type:      "local",
		CreatedAt: time.Now().UTC(),
	}
	f.accounts[account.ID] = account
	f.password[account.ID] = profile.Password
	return account, nil
}

func (f *fakeAccounts) FindByID(_ context.Context, id string) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.accounts[id]; ok {
		return a, nil
	}
	return domain.Account{}, ErrAccountNotFound
}

func (f *fakeAccounts) FindByIdentity(_ context.Context, identity string) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	identity = strings.ToLower(identity)
	for _, a := range f.accounts {
		if a.Email == identity || a.Username == identity {
			return a, nil
		}
	}
	return domain.Account{}, ErrAccountNotFound
}

func (f *fakeAccounts) FindByProvider(_ context.Context, provider domain.Provider, subject string) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Provider == provider && a.ProviderSubject == subject {
			return a, nil
		}
	}
	return domain.Account{}, ErrAccountNotFound
}

func (f *fakeAccounts) CreateFromProvider(_ context.Context, identity domain.ProviderIdentity) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	account := domain.Account{
		ID:              idx.New().String(),
		Email:           strings.ToLower(identity.Email),
		Type:            "oauth",
		Provider:        identity.Provider,
		ProviderSubject: identity.Subject,
		CreatedAt:       time.Now().UTC(),
	}
	f.accounts[account.ID] = account
	return account, nil
}

func (f *fakeAccounts) VerifyPassword(_ context.Context, account domain.Account, password string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.password[account.ID] == password, nil
}

func (f *fakeAccounts) SetPassword(_ context.Context, accountID, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[accountID]; !ok {
		return ErrAccountNotFound
	}
	f.password[accountID] = password
	return nil
}

// fakeEmail records sends and optionally fails them.
type fakeEmail struct {
	mu   sync.Mutex
	sent []sentEmail
	fail error
}

type sentEmail struct {
	To       string
	Template TemplateKind
	Vars     map[string]string
}

func (f *fakeEmail) Send(_ context.Context, to string, template TemplateKind, vars map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, sentEmail{To: to, Template: template, Vars: vars})
	return nil
}

func (f *fakeEmail) last(t *testing.T) sentEmail {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

// fakeExchange returns a fixed identity for any code.
type fakeExchange struct {
	identity domain.ProviderIdentity
	err      error
}

func (f *fakeExchange) Exchange(_ context.Context, provider domain.Provider, _ string) (domain.ProviderIdentity, error) {
	if f.err != nil {
		return domain.ProviderIdentity{}, f.err
	}
	id := f.identity
	id.Provider = provider
	return id, nil
}

// fakeCookies records Set/Clear calls.
type fakeCookies struct {
	mu      sync.Mutex
	values  map[string]string
	cleared []string
}

func newFakeCookies() *fakeCookies {
	return &fakeCookies{values: make(map[string]string)}
}

func (f *fakeCookies) Set(name, value string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[name] = value
}

func (f *fakeCookies) Clear(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, name)
	f.cleared = append(f.cleared, name)
}

func (f *fakeCookies) get(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[name]
	return v, ok
}
