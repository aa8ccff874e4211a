package echoweb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-web/core/session"
	"github.com/trezcool/masomo-web/core/user"
)

func TestSessionRegistry(t *testing.T) {
	reg := newSessionRegistry()
	newProvider := func() *session.Provider { return session.NewProvider(nil) }

	e1, created := reg.load("s1", newProvider)
	require.True(t, created)
	assert.True(t, e1.provider.Snapshot().IsResolving)

	again, created := reg.load("s1", newProvider)
	assert.False(t, created)
	assert.Same(t, e1, again)

	usr := user.User{ID: "u1", Name: "Juma", Role: user.RoleTeacher}
	e2 := reg.add("s2", "tkn", session.NewResolvedProvider(nil, &usr))
	assert.Equal(t, "tkn", e2.getToken())
	assert.Equal(t, 2, reg.len())

	// a stale entry does not remove its replacement
	reg.remove("s2", e1)
	assert.Equal(t, 2, reg.len())
	reg.remove("s2", e2)
	assert.Equal(t, 1, reg.len())
}

func TestSessionEntry_logoutClearsToken(t *testing.T) {
	usr := user.User{ID: "u1", Name: "Amani", Role: user.RoleStudent}
	e := newSessionEntry("tkn", session.NewResolvedProvider(nil, &usr))
	require.Equal(t, "tkn", e.getToken())

	e.provider.Logout()
	assert.Empty(t, e.getToken())

	var nilEntry *sessionEntry
	assert.Empty(t, nilEntry.getToken())
}

func TestSessionRegistry_sweep(t *testing.T) {
	reg := newSessionRegistry()
	now := time.Now()

	idle := reg.add("idle", "", session.NewResolvedProvider(nil, nil))
	idle.touch(now.Add(-time.Hour))
	active := reg.add("active", "", session.NewResolvedProvider(nil, nil))
	active.touch(now.Add(-time.Minute))

	assert.Equal(t, 1, reg.sweep(now, 30*time.Minute))
	assert.Equal(t, 1, reg.len())
	_, created := reg.load("active", func() *session.Provider { return session.NewProvider(nil) })
	assert.False(t, created)
	assert.Equal(t, 0, reg.sweep(now, 30*time.Minute))
}

func TestSessionEntry_dueCheck(t *testing.T) {
	e := newSessionEntry("tkn", session.NewProvider(nil))
	now := e.checkedAt

	assert.False(t, e.dueCheck(now.Add(time.Second), 5*time.Second))
	assert.True(t, e.dueCheck(now.Add(5*time.Second), 5*time.Second))
	assert.False(t, e.dueCheck(now.Add(6*time.Second), 5*time.Second), "checked again only after the interval")
	assert.True(t, e.dueCheck(now.Add(6*time.Second), 0))
}
