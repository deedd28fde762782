package auth

import (
	"sync"

	"github.com/parley-ai/parley/pkg/models"
)

// Verifier resolves a presented token to an identity.
type Verifier interface {
	Verify(token string) (models.Identity, error)
}

// StaticVerifier maps fixed tokens to identities. Meant for local runs
// and tests where standing up a token issuer is overkill.
type StaticVerifier struct {
	mu     sync.RWMutex
	tokens map[string]models.Identity
}

// NewStaticVerifier creates a verifier over a fixed token set.
func NewStaticVerifier(tokens map[string]models.Identity) *StaticVerifier {
	if tokens == nil {
		tokens = map[string]models.Identity{}
	}
	return &StaticVerifier{tokens: tokens}
}

// Add registers a token for an identity.
func (v *StaticVerifier) Add(token string, identity models.Identity) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tokens[token] = identity
}

// Verify looks the token up.
func (v *StaticVerifier) Verify(token string) (models.Identity, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	identity, ok := v.tokens[token]
	if !ok {
		return models.Identity{}, ErrInvalidToken
	}
	return identity, nil
}
