// Package itf holds helpers for integration tests that need a real database.
package itf

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/lms-admin/pkg/configuration"
)

// PostgreSQL truncates identifiers longer than this.
const maxDBNameLength = 63

var unsafeDBName = regexp.MustCompile(`[^a-z0-9_]+`)

// RequirePostgres skips tb when the configured database host does not accept
// connections. On CI an unreachable database fails the test instead.
func RequirePostgres(tb testing.TB) {
	tb.Helper()

	c := configuration.Use()
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(c.Database.Host, c.Database.Port), time.Second)
	if err == nil {
		_ = conn.Close()
		return
	}
	if strings.TrimSpace(os.Getenv("CI")) != "" {
		tb.Fatalf("postgres is not reachable (DB_HOST/DB_PORT): %v", err)
	}
	tb.Skip("postgres is not reachable; skipping integration test")
}

func sanitizeDBName(name string) string {
	s := unsafeDBName.ReplaceAllString(strings.ToLower(name), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		s = "test_db"
	}
	if len(s) <= maxDBNameLength {
		return s
	}
	sum := fmt.Sprintf("%x", sha256.Sum256([]byte(name)))[:8]
	return s[:maxDBNameLength-len(sum)-1] + "_" + sum
}

func DbOpts(name string) string {
	c := configuration.Use()
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		c.Database.Host, c.Database.Port, c.Database.User, sanitizeDBName(name), c.Database.Password,
	)
}

// CreateDB drops and recreates the database for name.
func CreateDB(ctx context.Context, name string) error {
	c := configuration.Use()
	admin := fmt.Sprintf(
		"host=%s port=%s user=%s dbname=postgres password=%s sslmode=disable",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password,
	)
	conn, err := pgx.Connect(ctx, admin)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close(ctx) }()

	ident := pgx.Identifier{sanitizeDBName(name)}.Sanitize()
	if _, err := conn.Exec(ctx, "DROP DATABASE IF EXISTS "+ident); err != nil {
		return err
	}
	_, err = conn.Exec(ctx, "CREATE DATABASE "+ident)
	return err
}

// NewPool creates a fresh database named after tb and returns a pool that is
// closed when the test ends.
func NewPool(tb testing.TB) *pgxpool.Pool {
	tb.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := CreateDB(ctx, tb.Name()); err != nil {
		tb.Fatalf("create test database: %v", err)
	}
	config, err := pgxpool.ParseConfig(DbOpts(tb.Name()))
	if err != nil {
		tb.Fatalf("parse pool config: %v", err)
	}
	config.MaxConns = 4
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		tb.Fatalf("failed to create database pool: %v", err)
	}
	tb.Cleanup(pool.Close)
	return pool
}
