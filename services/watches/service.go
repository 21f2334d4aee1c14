// Package watches persists targets, per-user watches, probe results and
// notification state in sqlite.
package watches

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"terminwatch/lib/timezone"
	"terminwatch/services/booking"
	"terminwatch/services/watches/db"
)

var tracer = otel.Tracer("services/watches")

// ErrNoTarget is returned when a fuzzy lookup finds no target close
// enough to the query.
var ErrNoTarget = errors.New("no matching target")

// similarityThreshold is the minimum Jaro-Winkler score for a fuzzy
// target match.
const similarityThreshold = 0.78

type Service struct {
	database *sql.DB
	qry      *db.Queries
}

func NewService(database *sql.DB) Service {
	return Service{
		database: database,
		qry:      db.New(database),
	}
}

func (s Service) RegisterUser(ctx context.Context, telegramID int64, username, firstName, lastName string) (db.User, error) {
	now := timezone.Now().Unix()
	return s.qry.UpsertUser(ctx, db.UpsertUserParams{
		TelegramID: telegramID,
		Username:   username,
		FirstName:  firstName,
		LastName:   lastName,
		Language:   "de",
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func (s Service) GetUser(ctx context.Context, id int64) (db.User, error) {
	return s.qry.GetUser(ctx, id)
}

func (s Service) GetUserByTelegramID(ctx context.Context, telegramID int64) (db.User, error) {
	return s.qry.GetUserByTelegramID(ctx, telegramID)
}

func (s Service) SetUserEmail(ctx context.Context, userID int64, address string) error {
	return s.qry.SetUserEmail(ctx, address, timezone.Now().Unix(), userID)
}

// TargetSeed describes a bookable service that should exist in the
// catalog on startup.
type TargetSeed struct {
	Category string `json:"category"`
	Service  string `json:"service"`
	BaseURL  string `json:"base_url"`
	Quantity int    `json:"quantity"`
}

// SeedTargets upserts the configured catalog. Quantities below 1 are
// coerced to 1.
func (s Service) SeedTargets(ctx context.Context, seeds []TargetSeed) error {
	for _, seed := range seeds {
		quantity := int64(seed.Quantity)
		if quantity < 1 {
			quantity = 1
		}
		_, err := s.qry.UpsertTarget(ctx, db.UpsertTargetParams{
			Category: seed.Category,
			Service:  seed.Service,
			BaseUrl:  seed.BaseURL,
			Quantity: quantity,
		})
		if err != nil {
			return fmt.Errorf("seed target %q/%q: %w", seed.Category, seed.Service, err)
		}
	}
	return nil
}

func (s Service) GetTarget(ctx context.Context, id int64) (db.Target, error) {
	return s.qry.GetTarget(ctx, id)
}

func (s Service) ListActiveTargets(ctx context.Context) ([]db.Target, error) {
	return s.qry.ListActiveTargets(ctx)
}

func (s Service) ListTargets(ctx context.Context) ([]db.Target, error) {
	return s.qry.ListTargets(ctx)
}

func (s Service) SetTargetActive(ctx context.Context, id int64, active bool) error {
	var flag int64
	if active {
		flag = 1
	}
	return s.qry.SetTargetActive(ctx, flag, id)
}

// FindTarget resolves a free-form user query against the active
// catalog. Exact substring matches win, otherwise the closest
// Jaro-Winkler match above the threshold is used.
func (s Service) FindTarget(ctx context.Context, query string) (db.Target, error) {
	targets, err := s.qry.ListActiveTargets(ctx)
	if err != nil {
		return db.Target{}, err
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return db.Target{}, ErrNoTarget
	}

	var best db.Target
	bestScore := 0.0
	for _, t := range targets {
		haystack := strings.ToLower(t.Category + " " + t.Service)
		if strings.Contains(haystack, needle) {
			return t, nil
		}
		score := matchr.JaroWinkler(needle, strings.ToLower(t.Service), false)
		if score > bestScore {
			bestScore = score
			best = t
		}
	}
	if bestScore < similarityThreshold {
		return db.Target{}, ErrNoTarget
	}
	return best, nil
}

// BookingTarget converts a catalog row into the shape the prober
// drives against.
func BookingTarget(t db.Target) booking.Target {
	return booking.Target{
		ID:       t.ID,
		Category: t.Category,
		Service:  t.Service,
		Quantity: int(t.Quantity),
		BaseURL:  t.BaseUrl,
	}
}

func (s Service) CreateWatch(ctx context.Context, userID, targetID int64, interval time.Duration, notifyFailures bool) (db.Watch, error) {
	var failures int64
	if notifyFailures {
		failures = 1
	}
	return s.qry.CreateWatch(ctx, db.CreateWatchParams{
		UserID:          userID,
		TargetID:        targetID,
		IntervalSeconds: int64(interval.Seconds()),
		NotifyFailures:  failures,
		CreatedAt:       timezone.Now().Unix(),
	})
}

func (s Service) GetWatch(ctx context.Context, id int64) (db.Watch, error) {
	return s.qry.GetWatch(ctx, id)
}

func (s Service) ListWatchesByUser(ctx context.Context, userID int64) ([]db.Watch, error) {
	return s.qry.ListWatchesByUser(ctx, userID)
}

func (s Service) CountActiveWatchesByUser(ctx context.Context, userID int64) (int64, error) {
	return s.qry.CountActiveWatchesByUser(ctx, userID)
}

func (s Service) ListAllWatches(ctx context.Context) ([]db.ListAllWatchesRow, error) {
	return s.qry.ListAllWatches(ctx)
}

func (s Service) DeactivateWatch(ctx context.Context, id, userID int64) error {
	return s.qry.DeactivateWatch(ctx, id, userID)
}

func (s Service) SetWatchNotifyFailures(ctx context.Context, id, userID int64, enabled bool) error {
	var flag int64
	if enabled {
		flag = 1
	}
	return s.qry.SetWatchNotifyFailures(ctx, flag, id, userID)
}

// DueWatches returns every active watch whose interval has fully
// elapsed at the given instant. A watch that has never been probed is
// always due.
func (s Service) DueWatches(ctx context.Context, now time.Time) ([]db.Watch, error) {
	return s.qry.ListDueWatches(ctx, now.Unix())
}

// SaveOutcome records a probe result atomically: the check row, its
// slots, the watch probe state and the target stats all commit
// together. The watch's last probe time never moves backwards.
func (s Service) SaveOutcome(ctx context.Context, watch db.Watch, outcome booking.Outcome) (int64, error) {
	ctx, span := tracer.Start(ctx, "SaveOutcome")
	defer span.End()

	tx, err := s.database.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin tx")
		return 0, err
	}
	defer tx.Rollback()

	qtx := s.qry.WithTx(tx)

	checkID, err := qtx.CreateCheck(ctx, db.CreateCheckParams{
		WatchID:       watch.ID,
		AttemptID:     outcome.AttemptID,
		Kind:          string(outcome.Kind),
		FailureReason: outcome.FailureReason,
		ScreenshotRef: outcome.ScreenshotRef,
		DurationMs:    outcome.Duration.Milliseconds(),
		CapturedAt:    outcome.CapturedAt.Unix(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create check")
		return 0, fmt.Errorf("create check: %w", err)
	}

	for _, slot := range outcome.Slots {
		err := qtx.CreateSlot(ctx, db.CreateSlotParams{
			CheckID:  checkID,
			SlotDate: slot.Date,
			SlotTime: slot.Time,
			RawLabel: slot.RawLabel,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "create slot")
			return 0, fmt.Errorf("create slot %s: %w", slot.Key(), err)
		}
	}

	var isFailure int64
	if outcome.Kind == booking.KindFailed {
		isFailure = 1
	}
	err = qtx.UpdateWatchProbeState(ctx, db.UpdateWatchProbeStateParams{
		LastProbeAt:     outcome.CapturedAt.Unix(),
		LastOutcomeKind: string(outcome.Kind),
		IsFailure:       isFailure,
		ID:              watch.ID,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update watch")
		return 0, fmt.Errorf("update watch probe state: %w", err)
	}

	err = qtx.RecordTargetCheck(ctx, outcome.CapturedAt.Unix(), watch.TargetID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record target check")
		return 0, fmt.Errorf("record target check: %w", err)
	}
	if outcome.Kind == booking.KindSlotsFound {
		err = qtx.RecordTargetSlots(ctx, outcome.CapturedAt.Unix(), watch.TargetID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "record target slots")
			return 0, fmt.Errorf("record target slots: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit")
		return 0, err
	}
	return checkID, nil
}

// NotifiedKeys returns the set of slot keys already forwarded for a
// watch, keyed by "<date> <time>".
func (s Service) NotifiedKeys(ctx context.Context, watchID int64) (map[string]struct{}, error) {
	rows, err := s.qry.ListNotifiedSlots(ctx, watchID)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		keys[row.SlotDate+" "+row.SlotTime] = struct{}{}
	}
	return keys, nil
}

// MarkNotified extends the notified set for a watch. Replays of an
// already-recorded slot are no-ops.
func (s Service) MarkNotified(ctx context.Context, watchID int64, slots []booking.Slot, at time.Time) error {
	for _, slot := range slots {
		err := s.qry.InsertNotifiedSlot(ctx, db.InsertNotifiedSlotParams{
			WatchID:    watchID,
			SlotDate:   slot.Date,
			SlotTime:   slot.Time,
			NotifiedAt: at.Unix(),
		})
		if err != nil {
			return fmt.Errorf("mark notified %s: %w", slot.Key(), err)
		}
	}
	return nil
}

func (s Service) RecordNotification(ctx context.Context, arg db.CreateNotificationParams) error {
	return s.qry.CreateNotification(ctx, arg)
}

func (s Service) LatestCheck(ctx context.Context, watchID int64) (db.Check, []db.Slot, error) {
	check, err := s.qry.GetLatestCheck(ctx, watchID)
	if err != nil {
		return db.Check{}, nil, err
	}
	slots, err := s.qry.ListSlotsByCheck(ctx, check.ID)
	if err != nil {
		return db.Check{}, nil, err
	}
	return check, slots, nil
}

// PruneHistory drops check rows older than the retention window and
// notified-slot entries whose date is already in the past. Dates that
// have passed can never produce a duplicate notification, so their
// dedup entries are safe to drop.
func (s Service) PruneHistory(ctx context.Context, retain time.Duration) (checks, notified int64, err error) {
	ctx, span := tracer.Start(ctx, "PruneHistory")
	defer span.End()

	now := timezone.Now()
	checks, err = s.qry.PruneChecks(ctx, now.Add(-retain).Unix())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prune checks")
		return 0, 0, fmt.Errorf("prune checks: %w", err)
	}
	notified, err = s.qry.PruneNotifiedSlots(ctx, now.Format("2006-01-02"))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prune notified slots")
		return 0, 0, fmt.Errorf("prune notified slots: %w", err)
	}
	return checks, notified, nil
}
