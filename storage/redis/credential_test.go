package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-web/core/session"
)

func setup(t *testing.T) (*CredentialStore, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCredentialStore(client, ""), mr
}

func newCredential(sid, userID string, ttl time.Duration) session.Credential {
	return session.Credential{SessionID: sid, Token: "tkn-" + sid, UserID: userID, ExpiresAt: time.Now().Add(ttl)}
}

func TestCredentialStore_SaveAndGet(t *testing.T) {
	store, mr := setup(t)
	ctx := context.Background()

	cred := newCredential("s1", "u1", time.Hour)
	require.NoError(t, store.Save(ctx, cred))

	assert.True(t, mr.Exists("masomo:credential:s1"))
	assert.InDelta(t, time.Hour.Seconds(), mr.TTL("masomo:credential:s1").Seconds(), 2)
	members, err := mr.Members("masomo:credential:user:u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, members)

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "tkn-s1", got.Token)
	assert.Equal(t, "u1", got.UserID)
	assert.False(t, got.CreatedAt.IsZero())
	assert.WithinDuration(t, cred.ExpiresAt, got.ExpiresAt, time.Millisecond)

	_, err = store.Get(ctx, "unknown")
	assert.Equal(t, session.ErrCredentialNotFound, errors.Cause(err))
	_, err = store.Get(ctx, "")
	assert.Equal(t, session.ErrCredentialNotFound, errors.Cause(err))
}

func TestCredentialStore_Save_invalid(t *testing.T) {
	store, mr := setup(t)
	ctx := context.Background()

	assert.Equal(t, session.ErrCredentialExpired, errors.Cause(store.Save(ctx, newCredential("s1", "u1", -time.Second))))
	assert.Error(t, store.Save(ctx, session.Credential{SessionID: "s2", ExpiresAt: time.Now().Add(time.Hour)}))
	assert.Empty(t, mr.Keys())
}

func TestCredentialStore_expiry(t *testing.T) {
	store, mr := setup(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newCredential("s1", "u1", time.Minute)))
	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "s1")
	assert.Equal(t, session.ErrCredentialNotFound, errors.Cause(err))
}

func TestCredentialStore_Get_expiredPayload(t *testing.T) {
	store, mr := setup(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newCredential("s1", "u1", time.Hour)))

	nowFunc = func() time.Time { return time.Now().Add(2 * time.Hour) }
	defer func() { nowFunc = time.Now }()

	_, err := store.Get(ctx, "s1")
	assert.Equal(t, session.ErrCredentialNotFound, errors.Cause(err))
	assert.False(t, mr.Exists("masomo:credential:s1"), "expired credential is cleaned up")
}

func TestCredentialStore_Delete(t *testing.T) {
	store, mr := setup(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newCredential("s1", "u1", time.Hour)))
	require.NoError(t, store.Save(ctx, newCredential("s2", "u1", time.Hour)))

	require.NoError(t, store.Delete(ctx, "s1"))
	require.NoError(t, store.Delete(ctx, "s1"), "deleting twice is fine")
	require.NoError(t, store.Delete(ctx, ""))

	_, err := store.Get(ctx, "s1")
	assert.Equal(t, session.ErrCredentialNotFound, errors.Cause(err))
	members, err := mr.Members("masomo:credential:user:u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, members)
}

func TestCredentialStore_DeleteByUser(t *testing.T) {
	store, mr := setup(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newCredential("s1", "u1", time.Hour)))
	require.NoError(t, store.Save(ctx, newCredential("s2", "u1", time.Hour)))
	require.NoError(t, store.Save(ctx, newCredential("s3", "u2", time.Hour)))

	n, err := store.DeleteByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, mr.Exists("masomo:credential:user:u1"))

	_, err = store.Get(ctx, "s3")
	assert.NoError(t, err, "other users keep their sessions")

	n, err = store.DeleteByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCredentialStore_Ping(t *testing.T) {
	store, mr := setup(t)
	assert.NoError(t, store.Ping(context.Background()))

	mr.Close()
	assert.Error(t, store.Ping(context.Background()))
}
