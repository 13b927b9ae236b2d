package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"blxProtocol/internal/events"
	"blxProtocol/internal/metrics"
	"blxProtocol/internal/model"
	"blxProtocol/internal/protocol"
	"blxProtocol/internal/storage"
)

var (
	ErrStepFailed       = errors.New("scenario: step failed")
	ErrUnexpectedResult = errors.New("scenario: step succeeded but an error was expected")
)

// StepResult records what one step did.
type StepResult struct {
	Index     int
	Op        string
	As        string
	Timestamp uint64
	Outcome   Outcome
	Err       error
	Expected  bool
}

// Result is a finished (or aborted) run.
type Result struct {
	RunID     string
	Steps     []StepResult
	Records   []model.EventRecord
	Snapshots []model.ProtocolSnapshot
	World     *World
}

// Failed returns the first step whose outcome did not match the script.
func (r *Result) Failed() (StepResult, bool) {
	for _, step := range r.Steps {
		if step.Err != nil && !step.Expected {
			return step, true
		}
	}
	return StepResult{}, false
}

type Runner struct {
	doc       *Document
	runID     string
	store     storage.Storage
	snapshots storage.SnapshotSink
	metrics   *metrics.ProtocolMetrics
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Runner)

// WithRunID pins the run id; by default a random UUID is used.
func WithRunID(id string) Option { return func(r *Runner) { r.runID = id } }

// WithStorage persists event records after every step.
func WithStorage(s storage.Storage) Option { return func(r *Runner) { r.store = s } }

// WithSnapshots persists per-step protocol snapshots.
func WithSnapshots(s storage.SnapshotSink) Option { return func(r *Runner) { r.snapshots = s } }

func WithMetrics(m *metrics.ProtocolMetrics) Option { return func(r *Runner) { r.metrics = m } }

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRunner(doc *Document, opts ...Option) *Runner {
	r := &Runner{
		doc:    doc,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	return r
}

func (r *Runner) RunID() string { return r.runID }

// Run deploys the scenario and executes its steps in order. A step that
// fails without a matching expect_error, or succeeds despite one, stops
// the run; the partial result is returned alongside the error.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	log := events.NewLog()
	world, err := Build(ctx, r.doc, log, r.metrics, r.logger)
	if err != nil {
		return nil, fmt.Errorf("deploy scenario: %w", err)
	}
	result := &Result{RunID: r.runID, World: world}
	cursor := 0
	seq := uint64(0)

	flush := func(step int, ts uint64) error {
		pending := log.Since(cursor)
		cursor += len(pending)
		ingested := r.now().UTC()
		records := make([]model.EventRecord, 0, len(pending))
		for _, ev := range pending {
			records = append(records, model.NewEventRecord(r.runID, seq, ev, ingested))
			seq++
		}
		result.Records = append(result.Records, records...)
		if r.store != nil && len(records) > 0 {
			if err := r.store.PutEventBatch(ctx, records); err != nil {
				return fmt.Errorf("store events: %w", err)
			}
		}
		snap, err := world.Snapshot(r.runID, step, ts)
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		result.Snapshots = append(result.Snapshots, snap)
		if r.snapshots != nil {
			if err := r.snapshots.PutSnapshots(ctx, []model.ProtocolSnapshot{snap}); err != nil {
				return fmt.Errorf("store snapshot: %w", err)
			}
		}
		return nil
	}

	// Deployment events are recorded under step -1.
	if err := flush(-1, r.doc.Start); err != nil {
		return result, err
	}

	r.logger.Info("scenario start",
		zap.String("name", r.doc.Name),
		zap.String("run_id", r.runID),
		zap.Int("steps", len(r.doc.Steps)),
	)
	for i := range r.doc.Steps {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		step := &r.doc.Steps[i]
		as := step.As
		if as == "" {
			as = Deployer
		}
		ts := r.doc.Start + step.At
		call := protocol.Call{Context: ctx, Caller: Account(as), Timestamp: ts}

		op, ok := operations[step.Op]
		if !ok {
			return result, fmt.Errorf("%w: step %d unknown op %q", ErrInvalidScenario, i, step.Op)
		}
		outcome, opErr := op(world, call, &step.Args)
		sr := StepResult{Index: i, Op: step.Op, As: as, Timestamp: ts, Outcome: outcome, Err: opErr}

		var stepErr error
		switch {
		case opErr != nil && step.ExpectError != "" && matchesError(opErr, step.ExpectError):
			sr.Expected = true
			r.logger.Debug("step rejected as expected", zap.Int("step", i), zap.String("op", step.Op), zap.Error(opErr))
		case opErr != nil:
			stepErr = fmt.Errorf("%w: step %d (%s as %s): %v", ErrStepFailed, i, step.Op, as, opErr)
		case step.ExpectError != "":
			sr.Err = fmt.Errorf("%w: %q", ErrUnexpectedResult, step.ExpectError)
			stepErr = fmt.Errorf("%w: step %d (%s): wanted %q", ErrUnexpectedResult, i, step.Op, step.ExpectError)
		default:
			r.logger.Debug("step ok", zap.Int("step", i), zap.String("op", step.Op), zap.Any("outcome", outcome))
		}
		result.Steps = append(result.Steps, sr)

		if err := flush(i, ts); err != nil {
			return result, err
		}
		if stepErr != nil {
			r.logger.Warn("scenario aborted", zap.Int("step", i), zap.Error(stepErr))
			return result, stepErr
		}
	}

	r.logger.Info("scenario done",
		zap.String("run_id", r.runID),
		zap.Int("events", len(result.Records)),
		zap.Int("snapshots", len(result.Snapshots)),
	)
	return result, nil
}
