package model

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/holiman/uint256"
	"github.com/zeebo/blake3"

	"blxProtocol/internal/events"
)

// EventRecord is the normalized representation of a protocol event for
// storage. Seq orders records within a run.
type EventRecord struct {
	ID         string            `json:"id"`
	RunID      string            `json:"run_id"`
	Seq        uint64            `json:"seq"`
	Source     string            `json:"source"`
	Type       string            `json:"type"`
	Timestamp  uint64            `json:"timestamp"`
	Attributes map[string]string `json:"attributes"`
	IngestedAt string            `json:"ingested_at"`
}

// NewEventRecord stamps ev with its run and position. The ID is stable for
// a given run, position and event type.
func NewEventRecord(runID string, seq uint64, ev events.Event, ingestedAt time.Time) EventRecord {
	attrs := make(map[string]string, len(ev.Attributes))
	for k, v := range ev.Attributes {
		attrs[k] = v
	}
	return EventRecord{
		ID:         RecordID(runID, seq, ev.Type),
		RunID:      runID,
		Seq:        seq,
		Source:     ev.Source.Hex(),
		Type:       ev.Type,
		Timestamp:  ev.Timestamp,
		Attributes: attrs,
		IngestedAt: ingestedAt.UTC().Format(time.RFC3339Nano),
	}
}

// RecordID hashes the identifying fields of a record.
func RecordID(runID string, seq uint64, eventType string) string {
	sum := blake3.Sum256([]byte(runID + ":" + strconv.FormatUint(seq, 10) + ":" + eventType))
	return hex.EncodeToString(sum[:16])
}

// Amount parses a decimal amount attribute. A missing key is zero.
func (r EventRecord) Amount(key string) (*uint256.Int, error) {
	value, ok := r.Attributes[key]
	if !ok || value == "" {
		return new(uint256.Int), nil
	}
	parsed, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, fmt.Errorf("%s %s=%q: %w", r.Type, key, value, err)
	}
	return parsed, nil
}

// Uint parses an integer attribute. A missing key is zero.
func (r EventRecord) Uint(key string) (uint64, error) {
	value, ok := r.Attributes[key]
	if !ok || value == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %s=%q: %w", r.Type, key, value, err)
	}
	return parsed, nil
}
