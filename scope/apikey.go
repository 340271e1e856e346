package scope

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// APIKey is a long-lived credential for automation such as CMS webhooks.
// Only the SHA-256 hash of the key is configured.
type APIKey struct {
	ID        string    `mapstructure:"id"`
	Hash      string    `mapstructure:"hash"`
	Roles     []string  `mapstructure:"roles"`
	ExpiresAt time.Time `mapstructure:"expires_at"`
}

// HashAPIKey returns the hex SHA-256 of key, the form APIKey.Hash expects.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// KeyStore resolves API keys to Callers. It is read-only after creation and
// safe for concurrent use.
type KeyStore struct {
	byHash map[string]APIKey
	now    func() time.Time
}

// NewKeyStore indexes keys by hash.
func NewKeyStore(keys []APIKey, now func() time.Time) (*KeyStore, error) {
	if now == nil {
		now = time.Now
	}
	s := &KeyStore{byHash: make(map[string]APIKey, len(keys)), now: now}
	for _, k := range keys {
		h := strings.ToLower(strings.TrimSpace(k.Hash))
		if raw, err := hex.DecodeString(h); k.ID == "" || err != nil || len(raw) != sha256.Size {
			return nil, fmt.Errorf("%w: api key %q needs an id and a sha256 hash", ErrInvalidCredentials, k.ID)
		}
		if _, dup := s.byHash[h]; dup {
			return nil, fmt.Errorf("%w: api key %q duplicates another key", ErrInvalidCredentials, k.ID)
		}
		s.byHash[h] = k
	}
	return s, nil
}

// Len returns the number of configured keys.
func (s *KeyStore) Len() int { return len(s.byHash) }

// Authenticate returns the caller for key. API-key callers carry no scope
// secret: they administer the cache and never own private entries.
func (s *KeyStore) Authenticate(_ context.Context, key string) (*Caller, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrMissingCredentials
	}
	k, ok := s.byHash[HashAPIKey(key)]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if !k.ExpiresAt.IsZero() && s.now().After(k.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	return &Caller{
		ID:        "key:" + k.ID,
		Subject:   k.ID,
		Roles:     append([]string(nil), k.Roles...),
		Claims:    map[string]any{"key_id": k.ID},
		ExpiresAt: k.ExpiresAt,
	}, nil
}
