package sqlxrepos

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-web/core/session"
	"github.com/trezcool/masomo-web/tests"
)

func TestCredentialStore(t *testing.T) {
	store := NewCredentialStore(testutil.PrepareDB(t))
	ctx := context.Background()

	now := time.Date(2021, time.March, 1, 9, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }
	defer func() { nowFunc = time.Now }()

	require.NoError(t, store.Ping(ctx))

	c1 := session.Credential{SessionID: "s1", Token: "t1", UserID: "u1", ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, store.Save(ctx, c1))
	require.NoError(t, store.Save(ctx, session.Credential{SessionID: "s2", Token: "t2", UserID: "u1", ExpiresAt: now.Add(2 * time.Hour)}))
	require.NoError(t, store.Save(ctx, session.Credential{SessionID: "s3", Token: "t3", UserID: "u2", ExpiresAt: now.Add(time.Hour)}))

	err := store.Save(ctx, session.Credential{SessionID: "s4", Token: "t4", ExpiresAt: now})
	assert.Equal(t, session.ErrCredentialExpired, errors.Cause(err))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.Token)
	assert.Equal(t, now, got.CreatedAt)
	assert.Equal(t, c1.ExpiresAt, got.ExpiresAt)

	// saving again replaces the token
	c1.Token = "t1-refreshed"
	require.NoError(t, store.Save(ctx, c1))
	got, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "t1-refreshed", got.Token)

	_, err = store.Get(ctx, "unknown")
	assert.Equal(t, session.ErrCredentialNotFound, errors.Cause(err))

	now = now.Add(90 * time.Minute)
	_, err = store.Get(ctx, "s1")
	assert.Equal(t, session.ErrCredentialNotFound, errors.Cause(err), "expired")

	n, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.DeleteByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, store.Delete(ctx, "s2"))
	_, err = store.Get(ctx, "s2")
	assert.Equal(t, session.ErrCredentialNotFound, errors.Cause(err))
}
