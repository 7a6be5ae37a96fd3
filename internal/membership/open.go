package membership

import (
	"context"

	pebblestore "github.com/rzbill/pulse/internal/storage/pebble"
)

// Open returns the Postgres store when databaseURL is set, migrating its
// schema, and the Pebble store over db otherwise.
func Open(ctx context.Context, databaseURL string, db *pebblestore.DB) (Admin, error) {
	if databaseURL == "" {
		return NewPebble(db), nil
	}
	pg, err := OpenPostgres(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		_ = pg.Close()
		return nil, err
	}
	return pg, nil
}
