package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"poolfund/internal/model"
	"poolfund/internal/storage/postgres"
)

// DBStateStore stores the ledger in the fund_state table under Name.
type DBStateStore struct {
	Store *postgres.Store
	Name  string
}

func (s *DBStateStore) Load(ctx context.Context) (*model.FundState, bool, error) {
	if s == nil || s.Store == nil {
		return nil, false, nil
	}
	data, ok, err := s.Store.LoadState(ctx, s.Name)
	if err != nil || !ok {
		return nil, ok, err
	}
	var state model.FundState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, false, fmt.Errorf("parse state %s: %w", s.Name, err)
	}
	return &state, true, nil
}

func (s *DBStateStore) Save(ctx context.Context, state *model.FundState) error {
	if s == nil || s.Store == nil {
		return nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.Store.SaveState(ctx, s.Name, data); err != nil {
		return err
	}
	return s.Store.UpsertAssets(ctx, state.Address.Hex(), state.Assets)
}

var _ Recorder = (*postgres.Store)(nil)
