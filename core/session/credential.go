package session

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrCredentialExpired  = errors.New("credential expired")
)

// Credential is the persisted bearer token of a browser session.
// Only its session ID travels to the browser; the token never leaves the server.
type Credential struct {
	SessionID string    `json:"session_id" db:"session_id"`
	Token     string    `json:"token" db:"token"`
	UserID    string    `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

func (c Credential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Check reports whether the credential can be saved.
func (c Credential) Check(now time.Time) error {
	switch {
	case c.SessionID == "":
		return errors.New("credential without session ID")
	case c.Token == "":
		return errors.New("credential without token")
	case c.Expired(now):
		return ErrCredentialExpired
	}
	return nil
}

// CredentialStore persists Credentials by session ID.
// Get returns ErrCredentialNotFound for unknown and expired credentials alike.
type CredentialStore interface {
	Save(ctx context.Context, c Credential) error
	Get(ctx context.Context, sessionID string) (Credential, error)
	Delete(ctx context.Context, sessionID string) error
	// DeleteByUser revokes every credential of a user and returns how many there were.
	DeleteByUser(ctx context.Context, userID string) (int, error)
	Ping(ctx context.Context) error
}
