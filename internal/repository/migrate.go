package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/pkg/logger"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const migrationTimeout = 60 * time.Second

// RunMigrations runs a goose command ("up", "down", "status", ...)
// against dsn using the embedded migrations.
func RunMigrations(ctx context.Context, dsn, command string, args ...string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("sql open: %w", err)
	}
	defer func() { _ = db.Close() }()
	return Migrate(ctx, db, command, args...)
}

// MigratePool runs a goose command over an existing pool.
func MigratePool(ctx context.Context, pool *pgxpool.Pool, command string, args ...string) error {
	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()
	return Migrate(ctx, db, command, args...)
}

// Migrate runs a goose command over db.
func Migrate(ctx context.Context, db *sql.DB, command string, args ...string) error {
	migrationCtx, cancel := context.WithTimeout(ctx, migrationTimeout)
	defer cancel()

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	logger.Info("Running schema migrations", zap.String("command", command))
	if err := goose.RunContext(migrationCtx, command, db, "migrations", args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// gooseLogger routes goose output through zap.
type gooseLogger struct{}

func (gooseLogger) Fatalf(format string, v ...interface{}) {
	logger.Fatal(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (gooseLogger) Printf(format string, v ...interface{}) {
	logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
