package storage

import (
	"context"
	"fmt"
)

// Catalog drivers
const (
	DriverJSON     = "json"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

type Options struct {
	Driver      string
	Dir         string // json
	SQLitePath  string // sqlite
	DatabaseURL string // postgres
}

// Open returns the catalog selected by opts.Driver.
func Open(ctx context.Context, opts Options) (Catalog, error) {
	switch opts.Driver {
	case DriverJSON, "":
		dir := opts.Dir
		if dir == "" {
			dir = "."
		}
		c, err := NewFileCatalog(dir)
		if err != nil {
			return nil, err
		}
		return c, nil
	case DriverSQLite:
		path := opts.SQLitePath
		if path == "" {
			path = DefaultSQLitePath()
		}
		c, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return c, nil
	case DriverPostgres:
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres catalog: DATABASE_URL is not set")
		}
		c, err := NewPostgresStorage(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return c, nil
	case DriverNone:
		return NewNopCatalog(), nil
	default:
		return nil, fmt.Errorf("unknown catalog driver %q", opts.Driver)
	}
}
