package main

import (
	"context"
	"fmt"

	"poolfund/internal/config"
	"poolfund/internal/storage"
	"poolfund/internal/storage/postgres"
)

type stores struct {
	state    storage.StateStore
	recorder storage.Recorder
	pg       *postgres.Store
}

// openStores picks Postgres when a DSN is configured, otherwise the state file
// and a JSONL trail at out.
func openStores(ctx context.Context, cfg config.StoreConfig, out string) (*stores, error) {
	if cfg.PGDSN == "" {
		return &stores{
			state:    &storage.FileStateStore{Path: cfg.StateFile},
			recorder: storage.NewJsonlRecorder(out),
		}, nil
	}

	pg, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	return &stores{
		state:    &storage.DBStateStore{Store: pg, Name: cfg.StateName},
		recorder: pg,
		pg:       pg,
	}, nil
}

func (s *stores) Close() {
	if s.pg != nil {
		s.pg.Close()
	}
}
