package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"

	"folio/internal/config"
	"folio/internal/middleware"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

var safeDBName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// MaintenanceURL returns a pgx URL for dbName on the primary host.
func MaintenanceURL(cfg *config.Config, dbName string) string {
	sslMode := cfg.DBSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.DBUser, cfg.DBPassword),
		Host:     cfg.DBHost + ":" + cfg.DBPort,
		Path:     "/" + dbName,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	return u.String()
}

// EnsureDatabase creates cfg.DBName through the "postgres" maintenance
// database when it does not exist yet. It reports whether it created it.
func EnsureDatabase(ctx context.Context, cfg *config.Config) (bool, error) {
	if !safeDBName.MatchString(cfg.DBName) {
		return false, fmt.Errorf("refusing to create database with name %q", cfg.DBName)
	}

	conn, err := sql.Open("pgx", MaintenanceURL(cfg, "postgres"))
	if err != nil {
		return false, fmt.Errorf("open maintenance db: %w", err)
	}
	defer func() { _ = conn.Close() }()

	var exists bool
	if err := conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, cfg.DBName,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check database: %w", err)
	}
	if exists {
		return false, nil
	}

	if _, err := conn.ExecContext(ctx, `CREATE DATABASE "`+cfg.DBName+`"`); err != nil {
		return false, fmt.Errorf("create database %s: %w", cfg.DBName, err)
	}
	middleware.Logger.Info("Database created", slog.String("name", cfg.DBName))
	return true, nil
}
