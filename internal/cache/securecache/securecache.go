// Package securecache wraps a cache.Store to add SHA-256 key hashing
// (always enabled) and optional AES-256-GCM encryption of the stored
// response bytes. cmd/proxy does not wire it in; a Store built with New
// is used only when a caller passes it to cache.WithStore. Encryption is
// on only when Config.Passphrase is non-empty.
package securecache

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"

	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/cache"
	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/logging"
)

const (
	scryptN   = 32768
	scryptR   = 8
	scryptP   = 1
	keyLength = 32
	nonceSize = 12
)

// Store wraps a cache.Store, hashing every key with SHA-256 and, when a
// passphrase is configured, encrypting every stored value with
// AES-256-GCM.
type Store struct {
	inner  cache.Store
	gcm    cipher.AEAD
	logger *logging.Logger
}

// Config configures a Store.
type Config struct {
	// Store is the underlying cache.Store to wrap. Required.
	Store cache.Store
	// Passphrase, if non-empty, enables AES-256-GCM encryption of
	// values. Must stay constant across restarts, since it derives the
	// key that decrypts whatever was previously encrypted.
	Passphrase string
	// Logger receives warnings on decrypt failure. Defaults to
	// logging.Default().
	Logger *logging.Logger
}

// New builds a Store per cfg.
func New(cfg Config) (*Store, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("securecache: Store cannot be nil")
	}
	s := &Store{inner: cfg.Store, logger: cfg.Logger}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	if cfg.Passphrase != "" {
		gcm, err := deriveGCM(cfg.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("securecache: init encryption: %w", err)
		}
		s.gcm = gcm
	}
	return s, nil
}

func deriveGCM(passphrase string) (cipher.AEAD, error) {
	salt := sha256.Sum256([]byte("caching-proxy-securecache-salt-v1"))
	key, err := scrypt.Key([]byte(passphrase), salt[:], scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// hashKey converts a cache key to its SHA-256 hex digest.
func hashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

func (s *Store) encrypt(data []byte) ([]byte, error) {
	if s.gcm == nil {
		return data, nil
	}
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return s.gcm.Seal(nonce, nonce, data, nil), nil
}

func (s *Store) decrypt(data []byte) ([]byte, error) {
	if s.gcm == nil {
		return data, nil
	}
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return s.gcm.Open(nil, nonce, ciphertext, nil)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	hashed := hashKey(key)
	data, ok, err := s.inner.Get(ctx, hashed)
	if err != nil || !ok {
		return nil, false, err
	}
	plaintext, err := s.decrypt(data)
	if err != nil {
		s.logger.Warning(fmt.Sprintf("securecache: failed to decrypt cached data for key %s: %v", hashed, err))
		return nil, false, err
	}
	return plaintext, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	hashed := hashKey(key)
	toStore, err := s.encrypt(value)
	if err != nil {
		s.logger.Warning(fmt.Sprintf("securecache: failed to encrypt data for key %s: %v", hashed, err))
		return err
	}
	return s.inner.Set(ctx, hashed, toStore)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, hashKey(key))
}

// IsEncrypted reports whether Store was configured with a passphrase.
func (s *Store) IsEncrypted() bool {
	return s.gcm != nil
}

var _ cache.Store = (*Store)(nil)
