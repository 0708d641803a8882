package compaction

import (
	"context"
	"log/slog"
	"sync"

	"github.com/strata-db/strata/model"
)

// CompactFunc performs horizontal compaction of the given segments.
// Implementations take the Compaction lock themselves.
type CompactFunc func(ctx context.Context, segments []model.SegmentID) error

// Scheduler runs compaction evaluation in the background. Requests are
// coalesced: any number of Request calls while an evaluation is running
// or pending results in at most one further run, so a burst of mutation
// commits triggers one compaction pass.
type Scheduler struct {
	trigger *Trigger
	compact CompactFunc
	logger  *slog.Logger

	pending chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// NewScheduler builds a Scheduler. compact may be nil, in which case
// candidates are only logged.
func NewScheduler(trigger *Trigger, compact CompactFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		trigger: trigger,
		compact: compact,
		logger:  logger,
		pending: make(chan struct{}, 1),
	}
}

// Start launches the background worker. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(ctx)
}

// Request asks for a compaction evaluation. Never blocks; requests
// arriving while one is already pending are absorbed.
func (s *Scheduler) Request() {
	select {
	case s.pending <- struct{}{}:
	default:
	}
}

// Close stops the worker and waits for an in-flight run to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.pending:
		}

		candidates, err := s.trigger.Candidates(ctx)
		if err != nil {
			s.logger.Warn("compaction evaluation failed", "error", err)
			continue
		}
		if len(candidates) == 0 {
			continue
		}

		s.logger.Info("horizontal compaction requested", "segments", len(candidates))
		if s.compact == nil {
			continue
		}
		if err := s.compact(ctx, candidates); err != nil {
			s.logger.Warn("compaction failed", "error", err)
		}
	}
}
