// Package notify decides which probe outcomes reach the user. It is
// the only component that extends the per-watch notified set, and it
// does so strictly after a delivery succeeds.
package notify

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"terminwatch/lib/timezone"
	"terminwatch/services/booking"
	"terminwatch/services/watches"
	"terminwatch/services/watches/db"
)

var tracer = otel.Tracer("services/notify")

const (
	KindSlots   = "slots"
	KindFailure = "failure"
)

type Service struct {
	store      watches.Service
	transports []Transport
}

func NewService(store watches.Service, transports []Transport) Service {
	return Service{store: store, transports: transports}
}

// HandleOutcome forwards a saved probe result to the watch owner.
// Found slots are filtered against the watch's notified set and
// against the calendar, so only future, never-forwarded slots produce
// a message. A delivery failure leaves the notified set untouched and
// the slots eligible for the next cycle.
func (s Service) HandleOutcome(ctx context.Context, user db.User, watch db.Watch, target db.Target, checkID int64, outcome booking.Outcome) error {
	ctx, span := tracer.Start(ctx, "HandleOutcome")
	defer span.End()

	switch outcome.Kind {
	case booking.KindSlotsFound:
		return s.handleSlots(ctx, user, watch, target, checkID, outcome)
	case booking.KindFailed:
		if watch.NotifyFailures == 0 {
			return nil
		}
		message := RenderFailure(target, outcome.FailureReason, outcome.CapturedAt)
		return s.dispatch(ctx, user, watch, checkID, KindFailure, message)
	default:
		return nil
	}
}

func (s Service) handleSlots(ctx context.Context, user db.User, watch db.Watch, target db.Target, checkID int64, outcome booking.Outcome) error {
	ctx, span := tracer.Start(ctx, "handleSlots")
	defer span.End()

	notified, err := s.store.NotifiedKeys(ctx, watch.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load notified set")
		return err
	}

	today := timezone.Now().Format("2006-01-02")
	var novel []booking.Slot
	for _, slot := range outcome.Slots {
		if slot.Date < today {
			continue
		}
		if _, seen := notified[slot.Key()]; seen {
			continue
		}
		novel = append(novel, slot)
	}
	if len(novel) == 0 {
		slog.DebugContext(ctx, "no novel slots", "watch", watch.ID, "total", len(outcome.Slots))
		return nil
	}

	message := RenderSlots(target, novel, outcome.CapturedAt)
	err = s.dispatch(ctx, user, watch, checkID, KindSlots, message)
	if err != nil {
		return err
	}

	return s.store.MarkNotified(ctx, watch.ID, novel, timezone.Now())
}

// dispatch tries every configured transport the recipient has an
// address for. One success is enough; every attempt is logged to the
// notifications table either way.
func (s Service) dispatch(ctx context.Context, user db.User, watch db.Watch, checkID int64, kind, message string) error {
	to := Recipient{
		TelegramChatID: user.TelegramID,
		Email:          user.Email,
	}

	delivered := false
	var lastErr error
	for _, transport := range s.transports {
		err := transport.Deliver(ctx, to, message)
		if errors.Is(err, ErrNoAddress) {
			continue
		}

		errText := ""
		success := int64(1)
		if err != nil {
			errText = err.Error()
			success = 0
			lastErr = err
			slog.WarnContext(ctx, "notification delivery failed",
				"transport", transport.Name(), "user", user.ID, "err", err)
		} else {
			delivered = true
		}

		recordErr := s.store.RecordNotification(ctx, db.CreateNotificationParams{
			UserID:  user.ID,
			WatchID: sql.NullInt64{Int64: watch.ID, Valid: true},
			CheckID: sql.NullInt64{Int64: checkID, Valid: checkID != 0},
			Kind:    kind,
			Message: message,
			SentAt:  timezone.Now().Unix(),
			Success: success,
			Error:   errText,
		})
		if recordErr != nil {
			slog.WarnContext(ctx, "failed to record notification",
				"transport", transport.Name(), "err", recordErr)
		}
	}

	if delivered {
		return nil
	}
	// No hand-off happened, so the caller must not mark anything as
	// notified. This includes the everyone-skipped case: a user who
	// adds an address later should still get these slots.
	if lastErr != nil {
		return lastErr
	}
	return ErrNotDelivered
}
