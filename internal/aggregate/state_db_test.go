package aggregate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeCursors struct {
	rows map[string]uint64
	err  error
}

func (c *fakeCursors) LoadState(_ context.Context, name string) (uint64, bool, error) {
	if c.err != nil {
		return 0, false, c.err
	}
	ts, ok := c.rows[name]
	return ts, ok, nil
}

func (c *fakeCursors) SaveState(_ context.Context, name string, ts uint64) error {
	if c.err != nil {
		return c.err
	}
	c.rows[name] = ts
	return nil
}

func TestDBStateStoreKeysByWindow(t *testing.T) {
	ctx := context.Background()
	table := &fakeCursors{rows: make(map[string]uint64)}
	fiveMin := NewDBStateStore(table, 300)
	hourly := NewDBStateStore(table, 3600)
	require.Equal(t, "aggregate/300s", fiveMin.Name())

	_, ok, err := fiveMin.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, fiveMin.Save(ctx, 1250))
	ts, ok, err := fiveMin.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1250), ts)

	_, ok, err = hourly.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDBStateStoreWrapsErrors(t *testing.T) {
	down := errors.New("connection refused")
	store := NewDBStateStore(&fakeCursors{err: down}, 300)

	_, _, err := store.Load(context.Background())
	require.ErrorIs(t, err, down)
	require.Contains(t, err.Error(), "aggregate/300s")
	require.ErrorIs(t, store.Save(context.Background(), 10), down)

	var unset *DBStateStore
	require.NoError(t, unset.Save(context.Background(), 10))
}
