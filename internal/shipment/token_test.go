package shipment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenCacheLogsInOnFirstGet(t *testing.T) {
	logins := 0
	cache := newTokenCache(func(ctx context.Context) (string, time.Time, error) {
		logins++
		return "tok-1", time.Now().Add(tokenValidity), nil
	})

	token, err := cache.Get(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, 1, logins)
}

func TestTokenCacheReusesValidToken(t *testing.T) {
	logins := 0
	cache := newTokenCache(func(ctx context.Context) (string, time.Time, error) {
		logins++
		return "tok-1", time.Now().Add(tokenValidity), nil
	})

	for i := 0; i < 5; i++ {
		token, err := cache.Get(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, "tok-1", token)
	}

	assert.Equal(t, 1, logins)
}

func TestTokenCacheRefreshesWithinMarginOfExpiry(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := base

	logins := 0
	cache := newTokenCache(func(ctx context.Context) (string, time.Time, error) {
		logins++
		if logins == 1 {
			return "tok-1", current.Add(tokenValidity), nil
		}
		return "tok-2", current.Add(tokenValidity), nil
	})
	cache.now = func() time.Time { return current }

	token, err := cache.Get(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	// Well before the refresh margin the cached token is reused.
	current = base.Add(tokenValidity - 48*time.Hour)
	token, err = cache.Get(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, 1, logins)

	// Inside the one-day margin a new login happens even though the old
	// token has not technically expired yet.
	current = base.Add(tokenValidity - 12*time.Hour)
	token, err = cache.Get(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "tok-2", token)
	assert.Equal(t, 2, logins)
}

func TestTokenCacheInvalidateForcesRelogin(t *testing.T) {
	logins := 0
	cache := newTokenCache(func(ctx context.Context) (string, time.Time, error) {
		logins++
		return "tok", time.Now().Add(tokenValidity), nil
	})

	_, err := cache.Get(context.Background())
	assert.NoError(t, err)

	cache.Invalidate()

	_, err = cache.Get(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, logins)
}

func TestTokenCachePropagatesLoginError(t *testing.T) {
	loginErr := errors.New("credentials rejected")
	cache := newTokenCache(func(ctx context.Context) (string, time.Time, error) {
		return "", time.Time{}, loginErr
	})

	token, err := cache.Get(context.Background())

	assert.ErrorIs(t, err, loginErr)
	assert.Empty(t, token)
}

func TestTokenCacheSingleLoginUnderConcurrentGets(t *testing.T) {
	logins := 0
	cache := newTokenCache(func(ctx context.Context) (string, time.Time, error) {
		logins++
		time.Sleep(10 * time.Millisecond)
		return "tok", time.Now().Add(tokenValidity), nil
	})

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			token, err := cache.Get(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "tok", token)
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	assert.Equal(t, 1, logins)
}
