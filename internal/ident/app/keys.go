package app

import (
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"os"

	"github.com/oxkey/ident/pkg/credx"
	"github.com/oxkey/ident/pkg/cryptox"
)

// InitSigningKey loads the Ed25519 signing key from cfg.SigningKeyFile,
// generating and persisting a fresh one when the file does not exist. Losing
// the key file invalidates every outstanding credential, which is why the
// key is file-backed rather than ephemeral.
func InitSigningKey(cfg Config, logger *slog.Logger) (*credx.Issuer, error) {
	pemKey, err := os.ReadFile(cfg.SigningKeyFile)
	if os.IsNotExist(err) {
		pemKey, err = cryptox.GenerateEd25519Key()
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		if err := os.WriteFile(cfg.SigningKeyFile, pemKey, 0o600); err != nil {
			return nil, fmt.Errorf("persist signing key: %w", err)
		}
		logger.Info("generated new signing key", "path", cfg.SigningKeyFile)
	} else if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}

	key, err := cryptox.ParseEd25519Key(pemKey)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}

	// Stable key identifier derived from the public key, so restarts with
	// the same key keep verifying old credentials.
	pub := key.Public().(ed25519.PublicKey)
	kid := cryptox.FingerprintToken(string(pub))[:8]

	issuer, err := credx.NewIssuer(cfg.Issuer, kid, key, cfg.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("build credential issuer: %w", err)
	}

	logger.Info("signing key loaded", "kid", kid, "issuer", cfg.Issuer)
	return issuer, nil
}
