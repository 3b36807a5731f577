// Package repo is the GORM persistence layer for messages, conversation
// pairs and idempotency records. It runs on SQLite (pure Go driver) or
// PostgreSQL.
package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-relay/internal/config"
	"github.com/tbourn/go-chat-relay/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// sqlitePragmas run once per Open. WAL lets list queries proceed while a
// relay is writing.
var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=5000",
}

type poolLimits struct {
	maxConns int
	idleTime time.Duration
	lifetime time.Duration
}

var (
	sqlitePool   = poolLimits{maxConns: 10, idleTime: 5 * time.Minute, lifetime: 30 * time.Minute}
	postgresPool = poolLimits{maxConns: 25, idleTime: 5 * time.Minute, lifetime: 30 * time.Minute}
)

// Open connects to the database selected by cfg.DBDriver.
func Open(cfg config.Config) (*gorm.DB, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite, "":
		return OpenSQLite(cfg.DBPath)
	case config.DriverPostgres:
		return OpenPostgres(cfg.DatabaseURL)
	}
	return nil, fmt.Errorf("repo: unsupported driver %q", cfg.DBDriver)
}

// OpenSQLite opens or creates the database file at path. The parent
// directory must already exist.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("repo: sqlite dir: %w", err)
		}
	}
	db, err := open(sqlite.Open(path), &gorm.Config{}, sqlitePool)
	if err != nil {
		return nil, err
	}
	for _, p := range sqlitePragmas {
		if err := db.Exec(p).Error; err != nil {
			return nil, fmt.Errorf("repo: %s: %w", p, err)
		}
	}
	return db, nil
}

// OpenPostgres connects with a libpq keyword DSN or a postgres:// URL.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("repo: empty postgres dsn")
	}
	return open(postgres.Open(dsn), &gorm.Config{TranslateError: true}, postgresPool)
}

func open(d gorm.Dialector, gc *gorm.Config, lim poolLimits) (*gorm.DB, error) {
	db, err := gorm.Open(d, gc)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(lim.maxConns)
	sqlDB.SetMaxIdleConns(lim.maxConns)
	sqlDB.SetConnMaxIdleTime(lim.idleTime)
	sqlDB.SetConnMaxLifetime(lim.lifetime)
	return db, nil
}

// AutoMigrate creates or updates the relay tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.Message{}, &domain.Conversation{}, &domain.Idempotency{})
}

// duplicateMarkers are lower-cased fragments of unique-constraint errors that
// glebarez/sqlite and older Postgres setups return as plain text.
var duplicateMarkers = []string{
	"unique constraint failed",
	"constraint failed: unique",
	"duplicate key value",
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range duplicateMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
