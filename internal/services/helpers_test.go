package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-chat-relay/internal/audit"
	"github.com/tbourn/go-chat-relay/internal/presence"
	"github.com/tbourn/go-chat-relay/internal/repo"
)

func newServiceDB(t *testing.T, migrate bool) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if migrate {
		if err := repo.AutoMigrate(db); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

// ----- fakes -----

type emitted struct {
	event   string
	payload any
}

type fakeConn struct {
	id  string
	err error

	mu     sync.Mutex
	events []emitted
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Emit(event string, payload any) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	c.events = append(c.events, emitted{event, payload})
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) received() []emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]emitted(nil), c.events...)
}

type fakeEncrypter struct {
	out string
	err error
}

func (f fakeEncrypter) Encrypt(plaintext, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.out != "" {
		return f.out, nil
	}
	return "enc(" + plaintext + ")", nil
}

type fakeAppender struct {
	err  error
	mu   sync.Mutex
	recs []audit.Record
}

func (f *fakeAppender) Append(_ context.Context, rec audit.Record) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.recs = append(f.recs, rec)
	f.mu.Unlock()
	return nil
}

type fakeRecorder struct{ err error }

func (f fakeRecorder) RecordPair(context.Context, string, string) error { return f.err }

var errBoom = errors.New("boom")

// newRelay builds a relay over a migrated DB and a real registry.
func newRelay(t *testing.T, auditLog audit.Appender) (*RelayService, *presence.Registry, *gorm.DB) {
	t.Helper()
	db := newServiceDB(t, true)
	reg := presence.New()
	conv := NewConversationService(db, nil)
	return NewRelayService(db, reg, fakeEncrypter{}, conv, auditLog), reg, db
}

func presenceWith(t *testing.T, identity string, c presence.Conn) *presence.Registry {
	t.Helper()
	reg := presence.New()
	reg.Register(identity, c)
	return reg
}
