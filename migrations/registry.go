// Package migrations exposes the embedded delivery schema per SQL dialect.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	delivery "github.com/goliatone/go-webhook-delivery"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	schemaDir = "data/sql/migrations"
)

// Schema is the migration set for one dialect. Versions lists the up
// migrations in apply order.
type Schema struct {
	Dialect  string
	Dir      string
	FS       fs.FS
	Versions []string
}

// Schemas resolves the postgres and sqlite schemas from source, defaulting to
// the embedded filesystem. Postgres files live at the root of the schema
// directory and the sqlite variants under sqlite/.
func Schemas(source fs.FS) ([]Schema, error) {
	if source == nil {
		source = delivery.GetMigrationsFS()
	}
	root, err := fs.Sub(source, schemaDir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", schemaDir, err)
	}
	sqliteRoot, err := fs.Sub(root, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite schema: %w", err)
	}

	schemas := []Schema{
		{Dialect: DialectPostgres, Dir: schemaDir, FS: root},
		{Dialect: DialectSQLite, Dir: schemaDir + "/sqlite", FS: sqliteRoot},
	}
	for i := range schemas {
		versions, err := fs.Glob(schemas[i].FS, "*.up.sql")
		if err != nil {
			return nil, fmt.Errorf("migrations: list %s schema: %w", schemas[i].Dialect, err)
		}
		if len(versions) == 0 {
			return nil, fmt.Errorf("migrations: %s schema in %q has no up migrations", schemas[i].Dialect, schemas[i].Dir)
		}
		slices.Sort(versions)
		schemas[i].Versions = versions
	}
	return schemas, nil
}

// ForDialect returns the embedded schema for dialect.
func ForDialect(dialect string) (Schema, error) {
	target := strings.ToLower(strings.TrimSpace(dialect))
	schemas, err := Schemas(nil)
	if err != nil {
		return Schema{}, err
	}
	for _, schema := range schemas {
		if schema.Dialect == target {
			return schema, nil
		}
	}
	return Schema{}, fmt.Errorf("migrations: unsupported dialect %q", dialect)
}

// RegisterForDialect hands the schema matching dialect to registrar, so a
// database only ever sees the files written for it.
func RegisterForDialect(ctx context.Context, registrar func(fs.FS), dialect string) (Schema, error) {
	if registrar == nil {
		return Schema{}, fmt.Errorf("migrations: registrar is required")
	}
	if err := ctx.Err(); err != nil {
		return Schema{}, err
	}
	schema, err := ForDialect(dialect)
	if err != nil {
		return Schema{}, err
	}
	registrar(schema.FS)
	return schema, nil
}
