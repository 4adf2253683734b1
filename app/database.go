package app

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-webhook-delivery/core"
	"github.com/goliatone/go-webhook-delivery/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type persistenceConfig struct {
	database    core.DatabaseConfig
	serviceName string
}

func (c persistenceConfig) GetDebug() bool {
	return c.database.Debug
}

func (c persistenceConfig) GetDriver() string {
	return normalizedDriver(c.database.Driver)
}

func (c persistenceConfig) GetServer() string {
	return c.database.DSN
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	return c.database.PingTimeout()
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return c.serviceName
}

// OpenDatabase opens a persistence client for the configured driver. The
// postgres and pgx drivers share the postgres dialect and migrations.
func OpenDatabase(cfg core.Config) (*persistence.Client, error) {
	if err := cfg.Database.Validate(); err != nil {
		return nil, err
	}
	driver := normalizedDriver(cfg.Database.Driver)
	var dialect schema.Dialect
	switch driver {
	case core.DriverSQLite:
		dialect = sqlitedialect.New()
	default:
		dialect = pgdialect.New()
	}

	sqlDB, err := sql.Open(driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("app: open %s database: %w", driver, err)
	}
	if driver == core.DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{
		database:    cfg.Database,
		serviceName: cfg.ServiceName,
	}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("app: new persistence client: %w", err)
	}
	return client, nil
}

// Migrate registers the embedded schema for the driver's dialect and applies
// pending migrations.
func Migrate(ctx context.Context, client *persistence.Client, driver string) error {
	if client == nil {
		return fmt.Errorf("app: persistence client is required")
	}
	if _, err := migrations.RegisterForDialect(ctx, func(fsys fs.FS) {
		client.RegisterSQLMigrations(fsys)
	}, MigrationDialect(driver)); err != nil {
		return fmt.Errorf("app: register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		return fmt.Errorf("app: migrate: %w", err)
	}
	return nil
}

func MigrationDialect(driver string) string {
	if normalizedDriver(driver) == core.DriverSQLite {
		return migrations.DialectSQLite
	}
	return migrations.DialectPostgres
}

func normalizedDriver(driver string) string {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		return core.DriverPostgres
	}
	return driver
}
