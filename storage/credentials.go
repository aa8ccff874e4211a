// Package storage opens the configured session.CredentialStore.
package storage

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/masomo-web/core"
	"github.com/trezcool/masomo-web/core/session"
	"github.com/trezcool/masomo-web/storage/database"
	inmemdb "github.com/trezcool/masomo-web/storage/database/inmem"
	sqlxrepos "github.com/trezcool/masomo-web/storage/database/sqlx"
	redisstore "github.com/trezcool/masomo-web/storage/redis"
)

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

var ErrUnknownStore = errors.New("unknown credential store")

// Credentials is an opened credential store and the connection behind it.
type Credentials struct {
	Store session.CredentialStore
	DB    *sqlx.DB // postgres only
	close func() error
}

func (c *Credentials) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

// OpenCredentials opens the store named by conf.Session.Store.
// The postgres database is created and migrated when needed.
func OpenCredentials(ctx context.Context, conf *core.Config) (*Credentials, error) {
	switch conf.Session.Store {
	case StoreMemory, "":
		return &Credentials{Store: inmemdb.NewCredentialStore()}, nil

	case StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Address,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		store := redisstore.NewCredentialStore(client, redisstore.DefaultPrefix)
		if err := store.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, errors.Wrap(err, "connecting to redis")
		}
		return &Credentials{Store: store, close: client.Close}, nil

	case StorePostgres:
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}
		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		if err = database.Migrate(db, "up"); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &Credentials{Store: sqlxrepos.NewCredentialStore(db), DB: db, close: db.Close}, nil

	default:
		return nil, errors.Wrapf(ErrUnknownStore, "%q", conf.Session.Store)
	}
}

// Expirer is a store that needs expired credentials purged.
type Expirer interface {
	DeleteExpired(ctx context.Context) (int, error)
}
