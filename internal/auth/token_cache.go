package auth

import (
	"sync"
	"time"
)

const (
	// DefaultTokenTTL applies when the OAuth server omits expires_at.
	DefaultTokenTTL = 30 * time.Minute

	// expirySkew keeps a token from being used in its last minute.
	expirySkew = time.Minute
)

// AccessToken is a bearer token with its expiry instant.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// validAt reports whether the token may still be sent at now.
func (t AccessToken) validAt(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt.Add(-expirySkew))
}

// TokenCache holds the current bearer token. It is safe for concurrent use.
type TokenCache struct {
	mu    sync.RWMutex
	token *AccessToken
}

func NewTokenCache() *TokenCache {
	return &TokenCache{}
}

// IsValid reports whether a token is held and now is more than a minute
// before its expiry.
func (c *TokenCache) IsValid(now time.Time) bool {
	_, ok := c.Valid(now)
	return ok
}

// Valid returns the cached token if it is still usable at now.
func (c *TokenCache) Valid(now time.Time) (AccessToken, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == nil || !c.token.validAt(now) {
		return AccessToken{}, false
	}
	return *c.token, true
}

// Get returns the cached token regardless of expiry.
func (c *TokenCache) Get() (AccessToken, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == nil {
		return AccessToken{}, false
	}
	return *c.token, true
}

// Store replaces the cached token.
func (c *TokenCache) Store(value string, expiresAt time.Time) AccessToken {
	token := &AccessToken{Value: value, ExpiresAt: expiresAt}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	return *token
}
