package persistence

import (
	"context"
	"embed"
	"io/fs"
	"strings"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed schema/*.sql
var schemaFS embed.FS

const schemaDir = "schema"

// Migrate applies every pending schema migration through pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, mustSub(schemaDir))
	if err != nil {
		return gerrors.Wrap(err, "init migrations")
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return gerrors.Wrap(err, "apply migrations")
	}
	for _, r := range results {
		if r.Error != nil {
			return gerrors.Wrapf(r.Error, "migration %s", r.Source.Path)
		}
	}
	return nil
}

func mustSub(dir string) fs.FS {
	sub, err := fs.Sub(schemaFS, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// UpSQL returns the Up section of every embedded migration, in order.
func UpSQL() ([]string, error) {
	entries, err := schemaFS.ReadDir(schemaDir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		raw, err := schemaFS.ReadFile(schemaDir + "/" + e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, gooseUp(string(raw)))
	}
	return out, nil
}

func gooseUp(s string) string {
	if idx := strings.Index(s, "-- +goose Down"); idx >= 0 {
		s = s[:idx]
	}
	return s
}
