package inmemdb

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/masomo-web/core/session"
)

var nowFunc = time.Now // mockable

type credentialStore struct {
	mutex sync.RWMutex
	table map[string]session.Credential
}

var _ session.CredentialStore = (*credentialStore)(nil)

// NewCredentialStore keeps credentials in process memory. They do not survive restarts.
func NewCredentialStore() *credentialStore {
	return &credentialStore{table: make(map[string]session.Credential)}
}

func (store *credentialStore) Save(_ context.Context, c session.Credential) error {
	if err := c.Check(nowFunc()); err != nil {
		return err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.table[c.SessionID] = c
	return nil
}

func (store *credentialStore) Get(_ context.Context, sessionID string) (session.Credential, error) {
	store.mutex.RLock()
	c, ok := store.table[sessionID]
	store.mutex.RUnlock()

	if !ok {
		return session.Credential{}, session.ErrCredentialNotFound
	}
	if now := nowFunc(); c.Expired(now) {
		store.mutex.Lock()
		if cur, ok := store.table[sessionID]; ok && cur.Expired(now) {
			delete(store.table, sessionID)
		}
		store.mutex.Unlock()
		return session.Credential{}, session.ErrCredentialNotFound
	}
	return c, nil
}

func (store *credentialStore) Delete(_ context.Context, sessionID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	delete(store.table, sessionID)
	return nil
}

func (store *credentialStore) DeleteByUser(_ context.Context, userID string) (int, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	var n int
	for sid, c := range store.table {
		if c.UserID == userID {
			delete(store.table, sid)
			n++
		}
	}
	return n, nil
}

func (store *credentialStore) Ping(context.Context) error {
	return nil
}
