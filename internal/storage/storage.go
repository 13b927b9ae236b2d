package storage

import (
	"context"

	"blxProtocol/internal/model"
)

// Storage defines a sink for event records.
type Storage interface {
	PutEventBatch(ctx context.Context, records []model.EventRecord) error
}

// MetricsSink receives aggregation output.
type MetricsSink interface {
	UpsertPairs(ctx context.Context, pairs []model.Pair) error
	UpsertWindowMetrics(ctx context.Context, metrics []model.PairWindowMetrics) error
}

// SnapshotSink receives protocol snapshots.
type SnapshotSink interface {
	PutSnapshots(ctx context.Context, snapshots []model.ProtocolSnapshot) error
}
