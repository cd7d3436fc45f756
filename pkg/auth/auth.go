package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidKey = errors.New("invalid API key")
	ErrMissingKey = errors.New("missing API key")
)

// GenerateAPIKey returns a new random API key and its bcrypt hash.
// Only the hash belongs in configuration.
func GenerateAPIKey() (key, hash string, err error) {
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate API key: %w", err)
	}

	key = base64.URLEncoding.EncodeToString(keyBytes)
	hash, err = HashAPIKey(key)
	if err != nil {
		return "", "", err
	}
	return key, hash, nil
}

// HashAPIKey hashes a key for storage
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}
	return string(hash), nil
}

// Verifier checks API keys against a bcrypt hash.
// Keys that passed once are remembered by digest so bcrypt runs once per key.
type Verifier struct {
	hash     []byte
	verified map[[sha256.Size]byte]struct{}
	mu       sync.RWMutex
}

// NewVerifier creates a verifier for the given bcrypt hash
func NewVerifier(hash string) (*Verifier, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid API key hash: %w", err)
	}
	return &Verifier{
		hash:     []byte(hash),
		verified: make(map[[sha256.Size]byte]struct{}),
	}, nil
}

// Verify validates an API key
func (v *Verifier) Verify(key string) error {
	if key == "" {
		return ErrMissingKey
	}

	digest := sha256.Sum256([]byte(key))
	v.mu.RLock()
	_, ok := v.verified[digest]
	v.mu.RUnlock()
	if ok {
		return nil
	}

	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(key)); err != nil {
		return ErrInvalidKey
	}

	v.mu.Lock()
	v.verified[digest] = struct{}{}
	v.mu.Unlock()
	return nil
}

// Middleware requires "Authorization: Bearer <key>" on every path except skipPaths
func Middleware(v *Verifier, skipPaths ...string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
				return
			}

			key, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || v.Verify(key) != nil {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
