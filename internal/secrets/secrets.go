// Package secrets stores small credentials (the bot token) encrypted at rest.
//
// Each (category, provider) slot has its own random key file and sealed value
// file under the store directory. An environment variable named
// PROVIDER_CATEGORY, when set, takes precedence over the files.
package secrets

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/crypto/chacha20poly1305"
)

// MissingSecretError means neither the environment nor the store holds the
// secret. The operator has to provide one before the bot can start.
type MissingSecretError struct {
	EnvVar string
	Path   string
}

func (e *MissingSecretError) Error() string {
	return fmt.Sprintf("secret not configured: set %s or store it in %s", e.EnvVar, e.Path)
}

type Store struct {
	dir    string
	lookup func(string) (string, bool)
}

func New(dir string) *Store {
	return &Store{dir: dir, lookup: os.LookupEnv}
}

// WithLookup replaces the environment lookup, mainly for tests.
func (s *Store) WithLookup(lookup func(string) (string, bool)) *Store {
	s.lookup = lookup
	return s
}

// EnvVar returns the environment variable consulted for a slot, e.g.
// ("token", "discord") -> DISCORD_TOKEN.
func EnvVar(category, provider string) string {
	return envName(provider) + "_" + envName(category)
}

func (s *Store) Get(category, provider string) (string, error) {
	if value, ok := s.lookup(EnvVar(category, provider)); ok && value != "" {
		return value, nil
	}

	keyPath, valuePath := s.paths(category, provider)
	sealed, err := os.ReadFile(valuePath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", &MissingSecretError{EnvVar: EnvVar(category, provider), Path: valuePath}
	}
	if err != nil {
		return "", fmt.Errorf("read secret %s/%s: %w", category, provider, err)
	}
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return "", fmt.Errorf("read key for %s/%s: %w", category, provider, err)
	}

	plain, err := open(key, sealed, slotData(category, provider))
	if err != nil {
		return "", fmt.Errorf("decrypt secret %s/%s: %w", category, provider, err)
	}
	return string(plain), nil
}

// Set seals value into the slot, creating the slot's key on first use.
func (s *Store) Set(category, provider, value string) error {
	if value == "" {
		return errors.New("secret value is empty")
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}

	keyPath, valuePath := s.paths(category, provider)
	key, err := os.ReadFile(keyPath)
	if errors.Is(err, fs.ErrNotExist) {
		key = make([]byte, chacha20poly1305.KeySize)
		if _, err := rand.Read(key); err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
		if err := os.WriteFile(keyPath, key, 0o600); err != nil {
			return fmt.Errorf("write key: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("read key for %s/%s: %w", category, provider, err)
	}

	sealed, err := seal(key, []byte(value), slotData(category, provider))
	if err != nil {
		return fmt.Errorf("encrypt secret %s/%s: %w", category, provider, err)
	}
	return os.WriteFile(valuePath, sealed, 0o600)
}

// Delete removes the slot's key and value. Missing files are not an error.
func (s *Store) Delete(category, provider string) error {
	keyPath, valuePath := s.paths(category, provider)
	for _, path := range []string{valuePath, keyPath} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (s *Store) paths(category, provider string) (string, string) {
	base := fileName(category) + "_" + fileName(provider)
	return filepath.Join(s.dir, base+".key"), filepath.Join(s.dir, base+".enc")
}

func seal(key, plain, additional []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plain, additional), nil
}

func open(key, sealed, additional []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, additional)
}

func slotData(category, provider string) []byte {
	return []byte(category + "/" + provider)
}

func envName(value string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, value)
}

func fileName(value string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-') {
			return unicode.ToLower(r)
		}
		return '_'
	}, value)
}
