// Package redisstore keeps session credentials in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/masomo-web/core/session"
)

const DefaultPrefix = "masomo:credential:"

var nowFunc = time.Now // mockable

// CredentialStore expires credentials with Redis TTLs derived from their ExpiresAt.
// The session IDs of each user are indexed in a set so they can be revoked together.
type CredentialStore struct {
	client redis.UniversalClient
	prefix string
}

var _ session.CredentialStore = (*CredentialStore)(nil)

func NewCredentialStore(client redis.UniversalClient, prefix string) *CredentialStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &CredentialStore{client: client, prefix: prefix}
}

func (s *CredentialStore) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *CredentialStore) userKey(userID string) string {
	return s.prefix + "user:" + userID
}

func (s *CredentialStore) Save(ctx context.Context, c session.Credential) error {
	now := nowFunc()
	if err := c.Check(now); err != nil {
		return err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now.UTC()
	}

	data, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshalling credential")
	}
	ttl := c.ExpiresAt.Sub(now)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(c.SessionID), data, ttl)
		if c.UserID != "" {
			uk := s.userKey(c.UserID)
			pipe.SAdd(ctx, uk, c.SessionID)
			// sessions share one TTL, so the newest credential outlives the others
			pipe.Expire(ctx, uk, ttl)
		}
		return nil
	})
	return errors.Wrap(err, "saving credential")
}

func (s *CredentialStore) Get(ctx context.Context, sessionID string) (session.Credential, error) {
	if sessionID == "" {
		return session.Credential{}, session.ErrCredentialNotFound
	}

	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return session.Credential{}, session.ErrCredentialNotFound
		}
		return session.Credential{}, errors.Wrap(err, "getting credential")
	}

	var c session.Credential
	if err = json.Unmarshal(data, &c); err != nil {
		return session.Credential{}, errors.Wrap(err, "unmarshalling credential")
	}
	if c.Expired(nowFunc()) {
		if err = s.Delete(ctx, sessionID); err != nil {
			return session.Credential{}, err
		}
		return session.Credential{}, session.ErrCredentialNotFound
	}
	return c, nil
}

func (s *CredentialStore) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	// read first to unindex the session from its user set
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil && err != redis.Nil {
		return errors.Wrap(err, "deleting credential")
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sessionID))
		var c session.Credential
		if len(data) > 0 && json.Unmarshal(data, &c) == nil && c.UserID != "" {
			pipe.SRem(ctx, s.userKey(c.UserID), sessionID)
		}
		return nil
	})
	return errors.Wrap(err, "deleting credential")
}

func (s *CredentialStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	uk := s.userKey(userID)
	sids, err := s.client.SMembers(ctx, uk).Result()
	if err != nil {
		return 0, errors.Wrap(err, "listing user credentials")
	}

	keys := make([]string, 0, len(sids)+1)
	for _, sid := range sids {
		keys = append(keys, s.key(sid))
	}
	var del *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			del = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, uk)
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "deleting user credentials")
	}
	if del == nil {
		return 0, nil
	}
	return int(del.Val()), nil
}

func (s *CredentialStore) Ping(ctx context.Context) error {
	return errors.Wrap(s.client.Ping(ctx).Err(), "pinging redis")
}
