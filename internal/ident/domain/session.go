package domain

import "time"

// SessionRecord is one browser context: the ordered set of authenticated
// accounts plus which one is active. CurrentAccountID, when set, is always a
// member of the account set.
type SessionRecord struct {
	ID               string
	CurrentAccountID string // empty when the session holds no accounts
	Accounts         []SessionAccount
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SessionAccount is one authenticated account inside a session, together with
// the credentials backing its cookies. Ordered by AddedAt; "most recently
// added" wins when the current account is removed.
type SessionAccount struct {
	SessionID         string
	AccountID         string
	AccessCredential  string
	RefreshCredential string // empty when the account has no refresh path
	AddedAt           time.Time
}

// HasAccount reports whether accountID is a member of the session.
func (s SessionRecord) HasAccount(accountID string) bool {
	for _, a := range s.Accounts {
		if a.AccountID == accountID {
			return true
		}
	}
	return false
}

// TokenStatus classifies where a session account sits in the refresh state
// machine. The HTTP layer redirects on NeedsRefresh and logs out on LoggedOut;
// this core only reports which case applies.
type TokenStatus int

const (
	TokenValid TokenStatus = iota
	TokenNeedsRefresh
	TokenLoggedOut
)

func (s TokenStatus) String() string {
	switch s {
	case TokenValid:
		return "valid"
	case TokenNeedsRefresh:
		return "needs_refresh"
	case TokenLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}
