package store

import (
	"context"
	"fmt"
	"time"
)

// Open returns the store for driver: "" is in-memory, "postgres" and
// "sqlite" open dsn and optionally apply the schema.
func Open(driver, dsn string, migrate bool) (Store, error) {
	var (
		sq  *SQL
		err error
	)
	switch driver {
	case "":
		return NewMemory(), nil
	case "postgres":
		sq, err = NewPostgres(dsn)
	case "sqlite":
		sq, err = NewSQLite(dsn)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if migrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := sq.Migrate(ctx); err != nil {
			_ = sq.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return sq, nil
}
