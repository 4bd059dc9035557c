// Package testutil holds helpers shared by the test suites.
package testutil

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/onhold/core"
	"github.com/trezcool/onhold/core/activity"
	"github.com/trezcool/onhold/core/cryptox"
	"github.com/trezcool/onhold/core/record"
	"github.com/trezcool/onhold/core/user"
	"github.com/trezcool/onhold/storage/database"
)

// KeyHex is the encryption key used by tests.
const KeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

var (
	dbNameRegex = regexp.MustCompile(`[^A-Za-z0-9_]+`)
	migrateMu   sync.Mutex
)

// OpenDB returns a migrated in-memory sqlite database private to t.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()

	name := dbNameRegex.ReplaceAllString(t.Name(), "_")
	db, err := database.OpenSQLite(fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("OpenDB(): %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	// goose keeps its settings globally
	migrateMu.Lock()
	defer migrateMu.Unlock()
	goose.SetLogger(goose.NopLogger())
	if err = database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("OpenDB(): %v", err)
	}
	return db
}

// NewValidator returns a validator with every custom validation registered.
func NewValidator() *validator.Validate {
	validate, translator := core.NewValidator()
	record.InitValidators(validate, translator)
	activity.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

func NewCipher(t *testing.T) *cryptox.Cipher {
	t.Helper()

	key, err := cryptox.ParseKey(KeyHex)
	if err != nil {
		t.Fatalf("NewCipher(): %v", err)
	}
	c, err := cryptox.New(key, "test-salt")
	if err != nil {
		t.Fatalf("NewCipher(): %v", err)
	}
	return c
}

// LogEntry is one message captured by Logger.
type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger is a core.Logger that records what it is given.
type Logger struct {
	mu      sync.Mutex
	Entries []LogEntry
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("fatal", msg, args) }

// Dump renders every entry, arguments included.
func (l *Logger) Dump() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var sb strings.Builder
	for _, e := range l.Entries {
		_, _ = fmt.Fprintf(&sb, "%s %s %+v\n", e.Level, e.Msg, e.Args)
	}
	return sb.String()
}

// Count returns the number of entries with level and msg.
func (l *Logger) Count(level, msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int
	for _, e := range l.Entries {
		if e.Level == level && e.Msg == msg {
			n++
		}
	}
	return n
}

// CreateUser inserts a user straight through the repository.
func CreateUser(t *testing.T, repo user.Repository, name, uname, email, pwd string, roles []string, isActive bool) user.User {
	t.Helper()

	now := time.Now().UTC()
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser(): %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

// CreateRecord creates a record through the service, as actor.
func CreateRecord(t *testing.T, svc *record.Service, nr record.NewRecord, actor string) record.Record {
	t.Helper()

	rec, err := svc.Create(context.Background(), nr, actor)
	if err != nil {
		t.Fatalf("CreateRecord(): %v", err)
	}
	return rec
}
