// Package keystore provides an in-memory API key store with user metadata.
// Keys are stored as SHA-256 hashes; raw keys never persist.
package keystore

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Record holds the metadata associated with one API key.
type Record struct {
	UserID    string
	Name      string
	PerMinute int
	PerHour   int
	CreatedAt time.Time
	Metadata  map[string]string
	Active    bool
}

// Store is an in-memory API key database keyed by SHA-256 hash.
// Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	keys map[string]*Record
	log  zerolog.Logger
}

// New returns an empty key store.
func New(log zerolog.Logger) *Store {
	return &Store{
		keys: make(map[string]*Record),
		log:  log.With().Str("component", "keystore").Logger(),
	}
}

// Add registers a raw key and returns its SHA-256 hash.
func (s *Store) Add(rawKey, userID, name string, perMinute, perHour int, metadata map[string]string) string {
	hash := HashKey(rawKey)

	s.mu.Lock()
	s.keys[hash] = &Record{
		UserID:    userID,
		Name:      name,
		PerMinute: perMinute,
		PerHour:   perHour,
		CreatedAt: time.Now().UTC(),
		Metadata:  metadata,
		Active:    true,
	}
	s.mu.Unlock()

	s.log.Info().
		Str("user_id", userID).
		Str("name", name).
		Str("key_hash", hash[:16]).
		Msg("api key added")

	return hash
}

// Lookup resolves a raw key to its record. Returns false for unknown or
// revoked keys.
func (s *Store) Lookup(rawKey string) (Record, bool) {
	hash := HashKey(rawKey)

	s.mu.RLock()
	rec, ok := s.keys[hash]
	s.mu.RUnlock()

	if !ok || !rec.Active {
		return Record{}, false
	}
	return *rec, true
}

// Revoke soft-deletes a key. Returns true if the key existed.
func (s *Store) Revoke(rawKey string) bool {
	hash := HashKey(rawKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.keys[hash]
	if !ok {
		return false
	}
	rec.Active = false
	s.log.Info().Str("key_hash", hash[:16]).Msg("api key revoked")
	return true
}

// HashKey returns the lowercase-hex SHA-256 of the raw key bytes.
func HashKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// Generate returns a new API key of the form {prefix}_{random}, where the
// random part is 32 random bytes encoded as unpadded URL-safe base64
// (43 characters).
func Generate(prefix string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return fmt.Sprintf("%s_%s", prefix, base64.RawURLEncoding.EncodeToString(buf)), nil
}
