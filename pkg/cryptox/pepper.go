package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"path/filepath"
	"sync"
)

// The pepper is a process-wide secret mixed into every password hash. It lives
// in a file outside the database so leaking one without the other is useless.
var (
	pepperMu   sync.Mutex
	pepper     string
	pepperFile = "pepper"
)

// SetPepperPath points the package at the pepper file. Call once at startup
// before any hashing happens.
func SetPepperPath(file string) {
	pepperMu.Lock()
	defer pepperMu.Unlock()
	pepperFile = file
	pepper = ""
}

// GetPepper returns the cached pepper, loading or generating it on first use.
func GetPepper() string {
	pepperMu.Lock()
	defer pepperMu.Unlock()

	if pepper != "" {
		return pepper
	}

	p, err := loadOrGeneratePepper()
	if err != nil {
		panic("cryptox: load pepper: " + err.Error())
	}
	pepper = p
	return pepper
}

func loadOrGeneratePepper() (string, error) {
	file := filepath.Clean(pepperFile)
	if err := os.MkdirAll(filepath.Dir(file), 0750); err != nil {
		return "", err
	}

	if raw, err := os.ReadFile(file); err == nil {
		return string(raw), nil
	} else if !os.IsNotExist(err) {
		return "", err
	}

	buf := make([]byte, argonKeyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	p := base64.RawURLEncoding.EncodeToString(buf)

	if err := os.WriteFile(file, []byte(p), 0600); err != nil {
		return "", err
	}
	return p, nil
}
