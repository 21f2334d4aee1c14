// Package scheduler runs the periodic due-check loop: every tick it
// probes each watch whose interval has elapsed, persists the result
// and hands it to the notification gate.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"terminwatch/lib/timezone"
	"terminwatch/services/booking"
	"terminwatch/services/notify"
	"terminwatch/services/watches"
	"terminwatch/services/watches/db"
)

var tracer = otel.Tracer("services/scheduler")

// ErrTargetInactive marks a watch whose target was taken out of
// rotation. The watch is skipped, no probe runs.
var ErrTargetInactive = errors.New("target is inactive")

// Prober runs one availability check against a booking target.
type Prober interface {
	Probe(ctx context.Context, target booking.Target) booking.Outcome
}

type Options struct {
	// Tick is the interval between due sweeps. Defaults to 5 minutes.
	Tick time.Duration
	// ProbeDelay is inserted between consecutive probes in one sweep
	// so the booking site never sees back-to-back sessions. Defaults
	// to 2 seconds.
	ProbeDelay time.Duration
	// Retain bounds the check history kept in sqlite. Defaults to 30
	// days.
	Retain time.Duration
}

type TickStats struct {
	StartedAt time.Time
	Due       int
	Probed    int
	Failed    int
}

type Scheduler struct {
	cron     *cron.Cron
	store    watches.Service
	prober   Prober
	notifier notify.Service
	opts     Options

	tickMu sync.Mutex

	mu   sync.Mutex
	last TickStats
}

func New(store watches.Service, prober Prober, notifier notify.Service, opts Options) *Scheduler {
	if opts.Tick <= 0 {
		opts.Tick = 5 * time.Minute
	}
	if opts.ProbeDelay <= 0 {
		opts.ProbeDelay = 2 * time.Second
	}
	if opts.Retain <= 0 {
		opts.Retain = 30 * 24 * time.Hour
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(timezone.Location)),
		store:    store,
		prober:   prober,
		notifier: notifier,
		opts:     opts,
	}
}

// Start registers the sweep job and runs one sweep immediately so a
// fresh deployment does not wait a full tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.opts.Tick), func() {
		s.RunTick(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	slog.InfoContext(ctx, "scheduler started", "tick", s.opts.Tick.String())

	go s.RunTick(ctx)
	return nil
}

// Stop halts the tick schedule. A sweep already in flight finishes.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Status returns a snapshot of the most recent sweep.
func (s *Scheduler) Status() TickStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// RunTick performs one due sweep. Overlapping ticks are collapsed: if
// a sweep is still running when the next fires, the new one returns
// immediately.
func (s *Scheduler) RunTick(ctx context.Context) {
	if !s.tickMu.TryLock() {
		slog.WarnContext(ctx, "previous sweep still running, skipping tick")
		return
	}
	defer s.tickMu.Unlock()

	ctx, span := tracer.Start(ctx, "RunTick")
	defer span.End()

	stats := TickStats{StartedAt: timezone.Now()}

	due, err := s.store.DueWatches(ctx, stats.StartedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list due watches")
		slog.ErrorContext(ctx, "failed to list due watches", "err", err)
		return
	}
	stats.Due = len(due)
	slog.InfoContext(ctx, "due sweep", "due", len(due))

	for i, watch := range due {
		if ctx.Err() != nil {
			break
		}
		if i > 0 {
			select {
			case <-time.After(s.opts.ProbeDelay):
			case <-ctx.Done():
			}
		}

		_, err := s.checkWatch(ctx, watch)
		if errors.Is(err, ErrTargetInactive) {
			continue
		}
		stats.Probed++
		if err != nil {
			stats.Failed++
			slog.WarnContext(ctx, "watch check failed", "watch", watch.ID, "err", err)
		}
	}

	if _, _, err := s.store.PruneHistory(ctx, s.opts.Retain); err != nil {
		slog.WarnContext(ctx, "failed to prune history", "err", err)
	}

	s.mu.Lock()
	s.last = stats
	s.mu.Unlock()
}

// CheckNow probes a single watch immediately, ignoring its interval.
func (s *Scheduler) CheckNow(ctx context.Context, watchID int64) (booking.Outcome, error) {
	watch, err := s.store.GetWatch(ctx, watchID)
	if err != nil {
		return booking.Outcome{}, fmt.Errorf("get watch: %w", err)
	}
	return s.checkWatch(ctx, watch)
}

// checkWatch runs the full pipeline for one watch: probe, persist,
// notify. A panic anywhere inside is contained to this watch so the
// rest of the sweep continues.
func (s *Scheduler) checkWatch(ctx context.Context, watch db.Watch) (outcome booking.Outcome, err error) {
	ctx, span := tracer.Start(ctx, "checkWatch")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic checking watch %d: %v", watch.ID, r)
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
		}
	}()

	target, err := s.store.GetTarget(ctx, watch.TargetID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load target")
		return booking.Outcome{}, fmt.Errorf("get target: %w", err)
	}
	if target.Active == 0 {
		slog.DebugContext(ctx, "target inactive, skipping", "watch", watch.ID, "target", target.ID)
		return booking.Outcome{}, ErrTargetInactive
	}

	outcome = s.prober.Probe(ctx, watches.BookingTarget(target))

	checkID, err := s.store.SaveOutcome(ctx, watch, outcome)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save outcome")
		return outcome, fmt.Errorf("save outcome: %w", err)
	}

	user, err := s.store.GetUser(ctx, watch.UserID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load user")
		return outcome, fmt.Errorf("get user: %w", err)
	}

	err = s.notifier.HandleOutcome(ctx, user, watch, target, checkID, outcome)
	if err != nil {
		// delivery failures are retried implicitly on the next cycle
		slog.WarnContext(ctx, "notification failed", "watch", watch.ID, "err", err)
	}

	slog.InfoContext(ctx, "watch checked",
		"watch", watch.ID,
		"target", target.Service,
		"kind", string(outcome.Kind),
		"slots", len(outcome.Slots),
		"duration", outcome.Duration.String())
	return outcome, nil
}
