package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ramonehamilton/duelmeta/internal/events"
	"github.com/ramonehamilton/duelmeta/internal/meta"
	"github.com/ramonehamilton/duelmeta/internal/metrics"
)

var tracer = otel.Tracer("duelmeta/batch")

// EngineConfig configures the batch engine.
type EngineConfig struct {
	// Source is the tournament site adapter. Only checkpoint maintenance
	// (Cancel, Clean, Snapshot) works without one.
	Source meta.Source

	// Store persists the checkpoint. Required.
	Store Store

	// Dispatcher receives state, unit and log events. Optional.
	Dispatcher *events.EventDispatcher

	// Metrics records fetch latencies and outcomes. Optional.
	Metrics *metrics.RunMetrics

	// YieldDelay is the pause between units.
	YieldDelay time.Duration

	// BatchSize is the number of tournaments consumed per step.
	BatchSize int

	// Discover parameterizes the discovery pass.
	Discover meta.DiscoverOptions

	// Now returns the current time; nil means time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// DefaultEngineConfig returns default configuration without a source or store.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		YieldDelay: 500 * time.Millisecond,
		BatchSize:  1,
		Discover:   meta.DefaultDiscoverOptions(),
	}
}

// Engine is the single driver of a run. Only the driving goroutine mutates
// the batch state; Cancel and Snapshot are safe to call from elsewhere.
// Another process may cancel the run by deleting the stored checkpoint; the
// driver notices at the next unit boundary.
type Engine struct {
	config *EngineConfig
	logger *slog.Logger

	mu      sync.RWMutex
	state   State
	current BatchState

	driving         atomic.Bool
	cancelRequested atomic.Bool
}

// NewEngine creates an idle engine.
func NewEngine(config *EngineConfig) (*Engine, error) {
	if config == nil {
		config = DefaultEngineConfig()
	}
	if config.Store == nil {
		return nil, errors.New("batch engine requires a checkpoint store")
	}
	if config.BatchSize < 1 {
		config.BatchSize = 1
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Discover.Logger == nil {
		config.Discover.Logger = logger
	}

	return &Engine{
		config: config,
		logger: logger,
		state:  StateIdle,
	}, nil
}

// State returns the current machine state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Snapshot returns a copy of the current batch state.
func (e *Engine) Snapshot() BatchState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current.Clone()
}

func (e *Engine) now() time.Time {
	if e.config.Now != nil {
		return e.config.Now()
	}
	return time.Now()
}

func (e *Engine) transition(ctx context.Context, next State) error {
	e.mu.Lock()
	prev := e.state
	if err := prev.checkTransition(next); err != nil {
		e.mu.Unlock()
		return err
	}
	e.state = next
	e.mu.Unlock()

	e.logger.Debug("State changed", "from", prev, "to", next)
	e.config.Dispatcher.Dispatch(events.NewTypedEvent(events.TypeStateChanged,
		events.StateChangedEvent{From: string(prev), To: string(next)}, ctx))
	return nil
}

func (e *Engine) runID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current.RunID
}

// checkStored returns ErrCancelled, with the engine reset to idle, when the
// stored checkpoint was deleted or now holds a different run.
func (e *Engine) checkStored(ctx context.Context) error {
	id, err := e.config.Store.RunID(ctx)
	if err != nil && !errors.Is(err, ErrNoCheckpoint) {
		return fmt.Errorf("read checkpoint: %w", err)
	}
	run := e.runID()
	if err == nil && id == run {
		return nil
	}

	e.logger.Info("Checkpoint removed by another process, stopping", "run", run, "stored", id)
	if err := e.reset(ctx); err != nil {
		return err
	}
	return ErrCancelled
}

// commit persists next and only then makes it the current state.
func (e *Engine) commit(ctx context.Context, next BatchState) error {
	if err := e.config.Store.Save(ctx, next); err != nil {
		return fmt.Errorf("persist checkpoint: %w", err)
	}
	e.mu.Lock()
	e.current = next
	e.mu.Unlock()
	return nil
}

func (e *Engine) emitLogs(ctx context.Context, lines []string) {
	for _, line := range lines {
		e.config.Dispatcher.Dispatch(events.NewTypedEvent(events.TypeLogLine, events.LogLineEvent{Line: line}, ctx))
	}
}

// Start resumes from a stored checkpoint when there is one, otherwise it
// runs discovery. It reports whether a checkpoint was resumed.
func (e *Engine) Start(ctx context.Context) (bool, error) {
	if e.State() != StateIdle {
		return false, ErrRunActive
	}
	if e.config.Source == nil {
		return false, ErrNoSource
	}
	e.cancelRequested.Store(false)

	stored, err := e.config.Store.Load(ctx)
	switch {
	case err == nil:
		next := StateDraining
		if len(stored.Queue) == 0 {
			next = StateFinalizing
		}
		e.mu.Lock()
		e.current = stored
		e.mu.Unlock()
		if err := e.transition(ctx, next); err != nil {
			return false, err
		}
		e.logger.Info("Resumed checkpoint", "run", stored.RunID, "remaining", len(stored.Queue), "total", stored.Total)
		return true, nil
	case errors.Is(err, ErrNoCheckpoint):
		return false, e.Discover(ctx)
	default:
		return false, fmt.Errorf("load checkpoint: %w", err)
	}
}

// Discover runs the discovery stage and persists the new run. A discovery
// failure or an empty result leaves the engine idle without a checkpoint.
func (e *Engine) Discover(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "batch.Discover")
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	if e.config.Source == nil {
		return ErrNoSource
	}
	if err := e.transition(ctx, StateDiscovering); err != nil {
		return err
	}

	refs, err := meta.Discover(ctx, e.config.Source, e.config.Discover)
	if err != nil {
		_ = e.transition(ctx, StateIdle)
		return err
	}
	if len(refs) == 0 {
		_ = e.transition(ctx, StateIdle)
		return ErrNoTournaments
	}

	line := fmt.Sprintf("Discovery completed: %d tournaments", len(refs))
	next := BatchState{
		RunID:     uuid.NewString(),
		Source:    e.config.Source.Name(),
		StartedAt: e.now().UTC().Format(time.RFC3339),
		Queue:     refs,
		Results:   []meta.DeckRecord{},
		Logs:      []string{line},
		Total:     len(refs),
	}
	if err := e.commit(ctx, next); err != nil {
		_ = e.transition(ctx, StateIdle)
		return err
	}
	e.emitLogs(ctx, next.Logs)
	span.SetAttributes(attribute.Int("tournaments", len(refs)))

	return e.transition(ctx, StateDraining)
}

// Step consumes the next unit of the queue and persists the result before
// returning. It reports whether the queue is now empty. When ctx is
// cancelled while the unit is in flight, the unit's results are discarded
// and it stays queued. When the stored checkpoint no longer belongs to this
// run, the unit is discarded and Step returns ErrCancelled.
func (e *Engine) Step(ctx context.Context) (bool, error) {
	if s := e.State(); s != StateDraining {
		return false, fmt.Errorf("%w: step in %s", ErrInvalidTransition, s)
	}
	if e.config.Source == nil {
		return false, ErrNoSource
	}
	if err := e.checkStored(ctx); err != nil {
		return false, err
	}

	current := e.Snapshot()
	if len(current.Queue) == 0 {
		return true, nil
	}

	n := min(e.config.BatchSize, len(current.Queue))
	unit := current.Queue[:n]

	next := current
	next.Queue = current.Queue[n:]
	type unitOutcome struct {
		ref     meta.TournamentReference
		records int
		failed  bool
		elapsed time.Duration
	}
	outcomes := make([]unitOutcome, 0, n)
	var newLogs []string

	for _, ref := range unit {
		start := time.Now()
		records, logs := e.ProcessOne(ctx, ref)
		if err := ctx.Err(); err != nil {
			return false, err
		}
		next.Results = append(next.Results, records...)
		next.Logs = append(next.Logs, logs...)
		newLogs = append(newLogs, logs...)
		outcomes = append(outcomes, unitOutcome{
			ref:     ref,
			records: len(records),
			failed:  len(records) == 0 && hasError(logs),
			elapsed: time.Since(start),
		})
	}

	if err := e.checkStored(ctx); err != nil {
		return false, err
	}
	if err := e.commit(ctx, next); err != nil {
		return false, err
	}

	e.emitLogs(ctx, newLogs)
	processed := current.Processed()
	for _, o := range outcomes {
		processed++
		e.config.Metrics.RecordUnit(o.elapsed, o.records, o.failed)
		e.logger.Info("Tournament processed", "event", o.ref.Name, "records", o.records,
			"processed", processed, "total", next.Total)
		e.config.Dispatcher.Dispatch(events.NewTypedEvent(events.TypeUnitProcessed, events.UnitProcessedEvent{
			URL:       o.ref.URL,
			Name:      o.ref.Name,
			Records:   o.records,
			Processed: processed,
			Total:     next.Total,
			Failed:    o.failed,
		}, ctx))
	}

	return len(next.Queue) == 0, nil
}

func hasError(logs []string) bool {
	for _, l := range logs {
		if strings.HasPrefix(l, "Error:") {
			return true
		}
	}
	return false
}

// Drain steps until the queue is empty. Cancel requests and context
// cancellation are honoured between units only. A cancelled context pauses
// the run: the engine goes idle and the checkpoint is kept for resume.
func (e *Engine) Drain(ctx context.Context) error {
	if !e.driving.CompareAndSwap(false, true) {
		return ErrRunActive
	}
	defer e.driving.Store(false)
	return e.drain(ctx)
}

func (e *Engine) drain(ctx context.Context) error {
	for {
		if err := e.honourCancel(ctx); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return e.pause(err)
		}

		done, err := e.Step(ctx)
		if errors.Is(err, ErrCancelled) {
			return err
		}
		if err != nil {
			if ctx.Err() != nil {
				return e.pause(ctx.Err())
			}
			return err
		}
		if err := e.honourCancel(ctx); err != nil {
			return err
		}
		if done {
			return nil
		}

		if e.config.YieldDelay > 0 {
			timer := time.NewTimer(e.config.YieldDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
	}
}

// honourCancel clears the run and returns ErrCancelled when Cancel was
// called while the engine was driving.
func (e *Engine) honourCancel(ctx context.Context) error {
	if !e.cancelRequested.Load() {
		return nil
	}
	if err := e.clear(ctx); err != nil {
		return err
	}
	return ErrCancelled
}

func (e *Engine) pause(cause error) error {
	snap := e.Snapshot()
	e.logger.Info("Run paused", "remaining", len(snap.Queue), "total", snap.Total)
	if err := e.transition(context.Background(), StateIdle); err != nil {
		return err
	}
	return cause
}

// Finalize closes a drained run. The checkpoint is kept until Clean. A
// pending cancel request clears the run instead.
func (e *Engine) Finalize(ctx context.Context) error {
	if err := e.honourCancel(ctx); err != nil {
		return err
	}
	if e.State() == StateDraining {
		if err := e.transition(ctx, StateFinalizing); err != nil {
			return err
		}
	}
	if s := e.State(); s != StateFinalizing {
		return fmt.Errorf("%w: finalize in %s", ErrInvalidTransition, s)
	}

	next := e.Snapshot()
	line := fmt.Sprintf("Run complete: %d records from %d tournaments", len(next.Results), next.Total)
	next.Logs = append(next.Logs, line)
	if err := e.checkStored(ctx); err != nil {
		return err
	}
	if err := e.commit(ctx, next); err != nil {
		return err
	}
	e.emitLogs(ctx, []string{line})
	e.logger.Info("Run complete", "records", len(next.Results), "tournaments", next.Total)

	return e.transition(ctx, StateIdle)
}

// Cancel abandons the run. While Run or Drain is driving, the request takes
// effect at the next unit boundary; otherwise the checkpoint is cleared
// immediately.
func (e *Engine) Cancel(ctx context.Context) error {
	if e.driving.Load() {
		e.cancelRequested.Store(true)
		e.logger.Info("Cancel requested")
		return nil
	}
	return e.clear(ctx)
}

// clear deletes the checkpoint and empties the in-memory state.
func (e *Engine) clear(ctx context.Context) error {
	defer e.cancelRequested.Store(false)

	if err := e.config.Store.Delete(ctx); err != nil {
		return err
	}
	if err := e.reset(ctx); err != nil {
		return err
	}

	e.logger.Info("Run cancelled, checkpoint cleared")
	return nil
}

// reset moves an active run through CANCELLED to IDLE and empties the
// in-memory state. The store is left untouched.
func (e *Engine) reset(ctx context.Context) error {
	defer e.cancelRequested.Store(false)

	if s := e.State(); s == StateDraining || s == StateFinalizing {
		if err := e.transition(ctx, StateCancelled); err != nil {
			return err
		}
		if err := e.transition(ctx, StateIdle); err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.current = BatchState{}
	e.mu.Unlock()
	return nil
}

// Clean acknowledges a completed run and deletes its checkpoint.
func (e *Engine) Clean(ctx context.Context) error {
	if e.State().Active() {
		return ErrRunActive
	}
	if err := e.config.Store.Delete(ctx); err != nil {
		return err
	}
	e.mu.Lock()
	e.current = BatchState{}
	e.mu.Unlock()
	return nil
}

// Run starts or resumes a run, drains it and finalizes it. Cancel may be
// called at any point while Run is in progress.
func (e *Engine) Run(ctx context.Context) (BatchState, error) {
	if !e.driving.CompareAndSwap(false, true) {
		return BatchState{}, ErrRunActive
	}
	defer e.driving.Store(false)

	if _, err := e.Start(ctx); err != nil {
		return BatchState{}, err
	}
	if e.State() == StateDraining {
		if err := e.drain(ctx); err != nil {
			return e.Snapshot(), err
		}
	}
	if err := e.Finalize(ctx); err != nil {
		return e.Snapshot(), err
	}
	return e.Snapshot(), nil
}
