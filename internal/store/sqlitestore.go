package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/memori-run/memori/internal/store/queries"
)

func init() {
	Register("sqlite", openSQLite)
}

// openSQLite opens a pure-Go SQLite connection (ncruces/go-sqlite3, the
// same driver the teacher used) from a "sqlite://path", "sqlite3://path",
// "file:path" URI, or a bare filesystem path.
func openSQLite(ctx context.Context, uri string) (Store, error) {
	dsn := strings.TrimPrefix(uri, "sqlite://")
	dsn = strings.TrimPrefix(dsn, "sqlite3://")
	dsn = strings.TrimPrefix(dsn, "file://")
	if dsn == "" {
		return nil, fmt.Errorf("store: empty sqlite dsn")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening sqlite database: %w", err)
	}
	// FTS5 content-table triggers run inside the same connection a write
	// happened on; SQLite serializes writers anyway, so a single
	// connection avoids "database is locked" entirely for this embedded use.
	db.SetMaxOpenConns(1)

	s := newSQLStore(db, queries.SQLite)
	if err := s.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
