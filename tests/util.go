package testutil

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/masomo-web/core"
	"github.com/trezcool/masomo-web/core/user"
	"github.com/trezcool/masomo-web/storage/database"
)

// Logger is a core.Logger keeping track of what was logged.
type Logger struct {
	t *testing.T

	mu      sync.Mutex
	entries []string
}

var _ core.Logger = (*Logger)(nil)

func NewLogger(t *testing.T) *Logger {
	return &Logger{t: t}
}

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	l.entries = append(l.entries, level+": "+msg)
	l.mu.Unlock()
	if l.t != nil {
		l.t.Logf("%s: %s %v", level, msg, args)
	}
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log("FATAL", msg, args)
	if l.t != nil {
		l.t.Fatalf("fatal log: %s %v", msg, args)
	}
}

// Entries returns the logged messages, prefixed with their level.
func (l *Logger) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// HasEntry reports whether a message starting with `prefix` ("LEVEL: msg") was logged.
func (l *Logger) HasEntry(prefix string) bool {
	for _, e := range l.Entries() {
		if strings.HasPrefix(e, prefix) {
			return true
		}
	}
	return false
}

// NewConfig returns a test configuration that does not read the environment.
func NewConfig() *core.Config {
	return &core.Config{
		AppName:         "Masomo",
		Env:             "TEST",
		Build:           "test",
		TestMode:        true,
		SecretKey:       "test-secret",
		FrontendBaseURL: "http://masomo.test",
		Server: core.ServerConfig{
			Address:         ":0",
			Host:            "localhost",
			ShutdownTimeout: time.Second,
		},
		Session: core.SessionConfig{
			CookieName:     "masomo_session",
			TTL:            time.Hour,
			RestoreTimeout: time.Second,
			RestoreWait:    time.Second,
			RecheckEvery:   0, // every request
			Store:          "memory",
		},
		ClassesAPI: core.ClassesAPIConfig{Timeout: time.Second},
		Gate:       core.GateConfig{LoginPath: "/login", UnregisteredPaths: "deny"},
	}
}

var userCount int

// NewUser returns a user.User of `role` with a unique ID.
func NewUser(name string, role user.Role) user.User {
	userCount++
	return user.User{
		ID:       fmt.Sprintf("u%d", userCount),
		Name:     name,
		Email:    strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@test.cd",
		Role:     role,
		JoinedAt: time.Date(2021, time.January, 10, 8, 0, 0, 0, time.UTC),
	}
}

// PrepareDB opens the test database, migrates it and empties its tables.
// Tests are skipped in short mode and when TEST_DATABASEHOST is not set.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}
	if os.Getenv("TEST_DATABASEHOST") == "" {
		t.Skip("skipping database test: TEST_DATABASEHOST is not set")
	}

	conf := NewConfig()
	conf.Database = core.DatabaseConfig{
		Engine:     "postgres",
		Host:       os.Getenv("TEST_DATABASEHOST"),
		Port:       envOr("TEST_DATABASEPORT", "5432"),
		Name:       envOr("TEST_DATABASENAME", "masomo_web_test"),
		User:       envOr("TEST_DATABASEUSER", "postgres"),
		Password:   os.Getenv("TEST_DATABASEPASSWORD"),
		DisableTLS: true,
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db, "up"); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	if _, err = db.Exec("TRUNCATE TABLE credentials"); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
