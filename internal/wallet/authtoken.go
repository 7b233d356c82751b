// authtoken.go - per-pass authentication tokens.
//
// Every pass carries a random token embedded in its content document; the
// wallet client presents it on web service calls. Tokens are minted once per
// serial and never rotated: rotation would require re-issuing the archive to
// every device holding the pass.

package wallet

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/stampwise/passd/internal/store"
)

// tokenBytes gives 256 bits of entropy per token.
const tokenBytes = 32

// TokenStore is the persistence surface the token service needs.
type TokenStore interface {
	GetAuthToken(ctx context.Context, serial string) (string, error)
	SaveAuthToken(ctx context.Context, serial, token string) (string, error)
}

// Tokens mints and validates per-pass authentication tokens.
type Tokens struct {
	store TokenStore
}

func NewTokens(store TokenStore) *Tokens {
	return &Tokens{store: store}
}

// GetOrCreate returns the token on record for a serial, minting one on first
// use. Two racing callers both receive the token that won the insert.
func (t *Tokens) GetOrCreate(ctx context.Context, serial string) (string, error) {
	token, err := t.store.GetAuthToken(ctx, serial)
	if err == nil {
		return token, nil
	}
	if !store.IsNotFound(err) {
		return "", WrapInternalError(err, "failed to load auth token")
	}

	minted, err := mintToken()
	if err != nil {
		return "", err
	}

	stored, err := t.store.SaveAuthToken(ctx, serial, minted)
	if err != nil {
		return "", WrapInternalError(err, "failed to store auth token")
	}
	return stored, nil
}

// Validate reports whether the presented token matches the one on record.
// The comparison is constant-time; an unknown serial or a wrong-length token
// reports false through the same code path as a near-miss.
func (t *Tokens) Validate(ctx context.Context, serial, presented string) (bool, error) {
	stored, err := t.store.GetAuthToken(ctx, serial)
	if err != nil {
		if store.IsNotFound(err) {
			// burn the same comparison work as the found case
			burn := sha256.Sum256([]byte(presented))
			subtle.ConstantTimeCompare(burn[:], burn[:])
			return false, nil
		}
		return false, WrapInternalError(err, "failed to load auth token")
	}

	// hashing both sides first removes the length channel
	storedSum := sha256.Sum256([]byte(stored))
	presentedSum := sha256.Sum256([]byte(presented))
	return subtle.ConstantTimeCompare(storedSum[:], presentedSum[:]) == 1, nil
}

func mintToken() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", WrapInternalError(err, "failed to generate auth token")
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
