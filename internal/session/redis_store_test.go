package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	if err := store.SaveRefreshSession(ctx, "test-token-hash", "usr_123", expiresAt); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	user, err := store.LookupRefreshSession(ctx, "test-token-hash")
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}
	if user.ID != "usr_123" {
		t.Errorf("expected user ID usr_123, got %s", user.ID)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	expiresAt := time.Now().Add(1 * time.Millisecond)
	if err := store.SaveRefreshSession(ctx, "expired-token", "usr_456", expiresAt); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	s.FastForward(2 * time.Millisecond)

	if _, err := store.LookupRefreshSession(ctx, "expired-token"); err == nil {
		t.Error("expected error for expired token, got nil")
	}
}

func TestLookupNonExistentSession(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	if _, err := store.LookupRefreshSession(context.Background(), "non-existent-token"); err == nil {
		t.Error("expected error for non-existent token, got nil")
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	if err := store.SaveRefreshSession(ctx, "token-to-revoke", "usr_789", expiresAt); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	if _, err := store.LookupRefreshSession(ctx, "token-to-revoke"); err != nil {
		t.Fatalf("Lookup before revoke failed: %v", err)
	}

	if err := store.RevokeRefreshSession(ctx, "token-to-revoke"); err != nil {
		t.Fatalf("RevokeRefreshSession failed: %v", err)
	}

	if _, err := store.LookupRefreshSession(ctx, "token-to-revoke"); err == nil {
		t.Error("expected error for revoked token, got nil")
	}

	// Revoking a token that is already gone should not error.
	if err := store.RevokeRefreshSession(ctx, "token-to-revoke"); err != nil {
		t.Errorf("RevokeRefreshSession for missing token failed: %v", err)
	}
}

func TestAccessTokenRevocation(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()

	revoked, err := store.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsAccessTokenRevoked failed: %v", err)
	}
	if revoked {
		t.Error("expected jti-1 to not be revoked yet")
	}

	if err := store.RevokeAccessToken(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("RevokeAccessToken failed: %v", err)
	}

	revoked, err = store.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsAccessTokenRevoked failed: %v", err)
	}
	if !revoked {
		t.Error("expected jti-1 to be revoked")
	}

	// The blocklist entry lives only as long as the token would have.
	s.FastForward(2 * time.Hour)
	revoked, err = store.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsAccessTokenRevoked failed: %v", err)
	}
	if revoked {
		t.Error("expected blocklist entry to expire with the token")
	}
}

func TestSessionIsolation(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	if err := store.SaveRefreshSession(ctx, "token-1", "usr_1", expiresAt); err != nil {
		t.Fatalf("SaveRefreshSession 1 failed: %v", err)
	}
	if err := store.SaveRefreshSession(ctx, "token-2", "usr_2", expiresAt); err != nil {
		t.Fatalf("SaveRefreshSession 2 failed: %v", err)
	}

	if err := store.RevokeRefreshSession(ctx, "token-1"); err != nil {
		t.Fatalf("Revoke token-1 failed: %v", err)
	}

	if _, err := store.LookupRefreshSession(ctx, "token-1"); err == nil {
		t.Error("expected error for revoked token-1, got nil")
	}

	user2, err := store.LookupRefreshSession(ctx, "token-2")
	if err != nil {
		t.Fatalf("Lookup token-2 after revoke failed: %v", err)
	}
	if user2.ID != "usr_2" {
		t.Errorf("expected usr_2 after revoke, got %s", user2.ID)
	}
}
