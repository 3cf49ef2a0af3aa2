// Package migrations holds the PostgreSQL schema shared by the postgres
// and bun stores, and applies it.
//
// Apply runs inside the caller's transaction and takes a transaction
// scoped advisory lock first, so replicas starting together apply each
// file once.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"slices"

	"github.com/xraph/drafter"
)

//go:embed *.sql
var files embed.FS

// LockKey is the pg_advisory_xact_lock key held while migrating.
const LockKey int64 = 0x64726166746572 // "drafter"

// Names are inlined into SQL, so they are restricted to a safe alphabet.
var namePattern = regexp.MustCompile(`^[0-9]{3}_[a-z0-9_]+\.sql$`)

// Migration is one schema file.
type Migration struct {
	Name string
	SQL  string
}

// Load returns the embedded migrations in apply order.
func Load() ([]Migration, error) {
	return load(files)
}

func load(fsys fs.FS) ([]Migration, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, err
	}
	slices.Sort(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		if !namePattern.MatchString(name) {
			return nil, fmt.Errorf("invalid migration name %q", name)
		}
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		out = append(out, Migration{Name: name, SQL: string(data)})
	}
	return out, nil
}

// Conn runs statements on one open transaction.
type Conn interface {
	Exec(ctx context.Context, query string) error
	// Strings runs query and returns its single text column.
	Strings(ctx context.Context, query string) ([]string, error)
}

// Apply brings the schema up to date and returns the names it applied.
func Apply(ctx context.Context, conn Conn) ([]string, error) {
	all, err := Load()
	if err != nil {
		return nil, err
	}
	return apply(ctx, conn, all)
}

func apply(ctx context.Context, conn Conn, all []Migration) ([]string, error) {
	if err := conn.Exec(ctx, fmt.Sprintf(`SELECT pg_advisory_xact_lock(%d)`, LockKey)); err != nil {
		return nil, fmt.Errorf("lock: %w", err)
	}
	if err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS drafter_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return nil, fmt.Errorf("create migrations table: %w", err)
	}

	done, err := conn.Strings(ctx, `SELECT filename FROM drafter_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}

	var applied []string
	for _, m := range all {
		if slices.Contains(done, m.Name) {
			continue
		}
		if err := conn.Exec(ctx, m.SQL); err != nil {
			return applied, fmt.Errorf("%w: %s: %w", drafter.ErrMigrationFailed, m.Name, err)
		}
		if err := conn.Exec(ctx, `INSERT INTO drafter_migrations (filename) VALUES ('`+m.Name+`')`); err != nil {
			return applied, fmt.Errorf("record %s: %w", m.Name, err)
		}
		applied = append(applied, m.Name)
	}
	return applied, nil
}
