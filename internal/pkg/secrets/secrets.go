// Package secrets encrypts credential blobs with a process-wide symmetric
// key. The key is generated once on first use and persisted alongside the
// other installation settings; it is never rotated automatically. Losing the
// key makes every stored credential undecryptable, which downstream code
// treats as "not authenticated" and resolves by full re-authorization.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

const keySettingName = "credential_key"

var ErrCiphertextInvalid = errors.New("ciphertext invalid or key mismatch")

// KeyStore persists the generated key. Satisfied by the setting repository.
type KeyStore interface {
	GetValue(key string) (string, error)
	SetValue(key, value string) error
}

// Box seals and opens opaque strings with XChaCha20-Poly1305.
type Box struct {
	store KeyStore

	mu  sync.Mutex
	key []byte
}

// NewBox creates a Box backed by the given key store.
func NewBox(store KeyStore) *Box {
	return &Box{store: store}
}

// loadKey returns the installation key, creating and persisting it on first
// use.
func (b *Box) loadKey() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.key != nil {
		return b.key, nil
	}

	raw, err := b.store.GetValue(keySettingName)
	if err != nil {
		return nil, fmt.Errorf("read credential key: %w", err)
	}
	if raw != "" {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil || len(key) != chacha20poly1305.KeySize {
			return nil, errors.New("stored credential key is corrupt")
		}
		b.key = key
		return b.key, nil
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate credential key: %w", err)
	}
	if err := b.store.SetValue(keySettingName, base64.StdEncoding.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("persist credential key: %w", err)
	}
	b.key = key
	return b.key, nil
}

// Seal encrypts a plaintext string into a base64 envelope (nonce || ciphertext).
func (b *Box) Seal(plaintext string) (string, error) {
	key, err := b.loadKey()
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a base64 envelope produced by Seal.
func (b *Box) Open(envelope string) (string, error) {
	key, err := b.loadKey()
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}

	sealed, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return "", ErrCiphertextInvalid
	}
	if len(sealed) < aead.NonceSize() {
		return "", ErrCiphertextInvalid
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrCiphertextInvalid
	}
	return string(plaintext), nil
}
