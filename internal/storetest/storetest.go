// Package storetest opens migrated in-memory sqlite databases for tests.
package storetest

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sync/atomic"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-webhook-delivery/migrations"
	sqlstore "github.com/goliatone/go-webhook-delivery/store/sql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

var sequence atomic.Int64

type persistenceConfig struct {
	driver string
	server string
}

func (c persistenceConfig) GetDebug() bool {
	return false
}

func (c persistenceConfig) GetDriver() string {
	return c.driver
}

func (c persistenceConfig) GetServer() string {
	return c.server
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return "go-webhook-delivery-tests"
}

// NewSQLiteClient returns a migrated persistence client. The database is
// closed when the test ends.
func NewSQLiteClient(t testing.TB) *persistence.Client {
	t.Helper()
	dsn := fmt.Sprintf(
		"file:webhook-delivery-test-%d-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
		sequence.Add(1),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	client, err := persistence.New(persistenceConfig{driver: "sqlite3", server: dsn}, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = migrations.RegisterForDialect(ctx, func(fsys fs.FS) {
		client.RegisterSQLMigrations(fsys)
	}, migrations.DialectSQLite)
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

// NewFactory returns a repository factory over a fresh migrated database.
func NewFactory(t testing.TB, opts ...sqlstore.FactoryOption) *sqlstore.RepositoryFactory {
	t.Helper()
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(NewSQLiteClient(t), opts...)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	return factory
}
