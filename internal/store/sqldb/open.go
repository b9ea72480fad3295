// Package sqldb implements the store interfaces over database/sql.
// A postgres:// DSN uses the pgx stdlib driver; anything else is treated
// as a SQLite file path (modernc driver, pure Go). Both dialects accept
// the $N placeholders and ON CONFLICT clauses used here.
package sqldb

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/neeroai/migue.ai-sub000/internal/store"
)

// Open connects to the database behind the DSN and returns the bundled
// stores. The caller owns closing the returned *sql.DB.
func Open(dsn string) (*store.Stores, *sql.DB, error) {
	driver, source := resolveDriver(dsn)

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", driver, err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if driver == "sqlite" {
		// Single writer; modernc sqlite serializes writes anyway and
		// a pool of writers just trades errors for lock contention.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("sqlite pragmas: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	return &store.Stores{
		Users:         NewUserStore(db),
		Conversations: NewConversationStore(db),
		Messages:      NewMessageStore(db),
		Usage:         NewUsageStore(db),
		Actions:       NewActionStore(db),
	}, db, nil
}

func resolveDriver(dsn string) (driver, source string) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "pgx", dsn
	}
	return "sqlite", dsn
}
