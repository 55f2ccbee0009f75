package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dmitrijs2005/moments/internal/filex"
)

// Kind names a backend.
type Kind string

const (
	KindSQLite   Kind = "sqlite"
	KindPostgres Kind = "postgres"
	KindMemory   Kind = "memory"
)

// SQLiteFileName is the database file created inside the data directory.
const SQLiteFileName = "moments.db"

// Options selects and locates a backend.
type Options struct {
	Kind Kind
	// DataDir holds the SQLite file when DSN is empty.
	DataDir string
	// DSN overrides the SQLite path or carries the PostgreSQL URL.
	DSN string
}

// Open builds the configured Store.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Kind {
	case KindMemory:
		return NewMemoryStore(), nil

	case KindPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres store requires a DSN")
		}
		return OpenPostgres(ctx, opts.DSN)

	case KindSQLite, "":
		dsn := opts.DSN
		if dsn == "" {
			dir, err := filex.EnsureDir(opts.DataDir, "")
			if err != nil {
				return nil, err
			}
			dsn = filepath.Join(dir, SQLiteFileName)
		}
		return OpenSQLite(ctx, dsn)

	default:
		return nil, fmt.Errorf("unknown store kind %q", opts.Kind)
	}
}
