package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-web/core/session"
)

var nowFunc = time.Now // mockable

type credentialStore struct {
	db *sqlx.DB
}

var _ session.CredentialStore = (*credentialStore)(nil)

func NewCredentialStore(db *sqlx.DB) *credentialStore {
	return &credentialStore{db: db}
}

func (store *credentialStore) Save(ctx context.Context, c session.Credential) error {
	now := nowFunc().UTC()
	if err := c.Check(now); err != nil {
		return err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.ExpiresAt = c.ExpiresAt.UTC()

	const q = `
		INSERT INTO credentials (session_id, token, user_id, created_at, expires_at)
		VALUES (:session_id, :token, :user_id, :created_at, :expires_at)
		ON CONFLICT (session_id) DO UPDATE
		SET token = EXCLUDED.token, user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at`
	if _, err := store.db.NamedExecContext(ctx, q, c); err != nil {
		return errors.Wrap(err, "saving credential")
	}
	return nil
}

func (store *credentialStore) Get(ctx context.Context, sessionID string) (session.Credential, error) {
	const q = `
		SELECT session_id, token, user_id, created_at, expires_at
		FROM credentials
		WHERE session_id = $1 AND expires_at > $2`

	var c session.Credential
	if err := store.db.GetContext(ctx, &c, q, sessionID, nowFunc().UTC()); err != nil {
		if err == sql.ErrNoRows {
			return session.Credential{}, session.ErrCredentialNotFound
		}
		return session.Credential{}, errors.Wrap(err, "getting credential")
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.ExpiresAt = c.ExpiresAt.UTC()
	return c, nil
}

func (store *credentialStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := store.db.ExecContext(ctx, `DELETE FROM credentials WHERE session_id = $1`, sessionID); err != nil {
		return errors.Wrap(err, "deleting credential")
	}
	return nil
}

func (store *credentialStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	res, err := store.db.ExecContext(ctx, `DELETE FROM credentials WHERE user_id = $1`, userID)
	if err != nil {
		return 0, errors.Wrap(err, "deleting user credentials")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "counting deleted credentials")
}

// DeleteExpired purges expired credentials and returns how many were removed.
func (store *credentialStore) DeleteExpired(ctx context.Context) (int, error) {
	res, err := store.db.ExecContext(ctx, `DELETE FROM credentials WHERE expires_at <= $1`, nowFunc().UTC())
	if err != nil {
		return 0, errors.Wrap(err, "deleting expired credentials")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "counting deleted credentials")
}

func (store *credentialStore) Ping(ctx context.Context) error {
	return store.db.PingContext(ctx)
}
