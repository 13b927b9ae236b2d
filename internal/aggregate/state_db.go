package aggregate

import (
	"context"
	"fmt"
)

// CursorTable is the slice of the Postgres store that tracks named
// processing cursors. *postgres.Store implements it.
type CursorTable interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, ts uint64) error
}

// DBStateStore keeps the aggregation cursor in the protocol_state table.
// Each window size gets its own row so a 5m and a 1h aggregation over the
// same events resume independently.
type DBStateStore struct {
	table CursorTable
	name  string
}

func NewDBStateStore(table CursorTable, windowSeconds uint64) *DBStateStore {
	return &DBStateStore{table: table, name: fmt.Sprintf("aggregate/%ds", windowSeconds)}
}

func (s *DBStateStore) Name() string { return s.name }

func (s *DBStateStore) Load(ctx context.Context) (uint64, bool, error) {
	if s == nil || s.table == nil {
		return 0, false, nil
	}
	ts, ok, err := s.table.LoadState(ctx, s.name)
	if err != nil {
		return 0, false, fmt.Errorf("load cursor %s: %w", s.name, err)
	}
	return ts, ok, nil
}

func (s *DBStateStore) Save(ctx context.Context, ts uint64) error {
	if s == nil || s.table == nil {
		return nil
	}
	if err := s.table.SaveState(ctx, s.name, ts); err != nil {
		return fmt.Errorf("save cursor %s at %d: %w", s.name, ts, err)
	}
	return nil
}
