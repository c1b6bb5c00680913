package app

import (
	"context"
	"errors"

	"mortgage-rate-alerts/internal/storage"
)

// Migrate applies the embedded schema.
func (a *App) Migrate(ctx context.Context) ([]string, error) {
	store, closeStore, err := a.openStore(ctx, false)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	pg, ok := store.(*storage.Store)
	if !ok {
		return nil, errors.New("migrations require a PostgreSQL store")
	}

	applied, err := pg.Migrate(ctx)
	if err != nil {
		return nil, err
	}
	a.Logger.Info().Strs("migrations", applied).Msg("schema migrated")
	return applied, nil
}
