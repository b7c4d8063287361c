package shipment

import (
	"context"
	"sync"
	"time"
)

// Shiprocket tokens are valid for 10 days; refresh proactively one day
// before expiry so in-flight requests never race the deadline.
const (
	tokenValidity      = 10 * 24 * time.Hour
	tokenRefreshMargin = 24 * time.Hour
)

// loginFunc authenticates against the provider and returns a bearer token
// with its expiry time.
type loginFunc func(ctx context.Context) (token string, expiresAt time.Time, err error)

// tokenCache caches the gateway bearer token in process memory.
// The mutex serializes refresh so two simultaneous callers seeing an
// expired token perform a single login between them. Nothing persists
// across restarts; every restart forces a fresh login.
type tokenCache struct {
	mu        sync.Mutex
	login     loginFunc
	token     string
	expiresAt time.Time
	now       func() time.Time
}

func newTokenCache(login loginFunc) *tokenCache {
	return &tokenCache{
		login: login,
		now:   time.Now,
	}
}

// Get returns a valid token, logging in if the cached one is absent or
// within the refresh margin of its expiry.
func (c *tokenCache) Get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt.Add(-tokenRefreshMargin)) {
		return c.token, nil
	}

	token, expiresAt, err := c.login(ctx)
	if err != nil {
		return "", err
	}

	c.token = token
	c.expiresAt = expiresAt
	return c.token, nil
}

// Invalidate drops the cached token, forcing a login on the next Get.
// Called when the provider rejects a request as unauthorized.
func (c *tokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}
