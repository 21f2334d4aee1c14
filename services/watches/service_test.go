package watches

import (
	"context"
	"testing"
	"time"

	"terminwatch/lib/testutil"
	"terminwatch/lib/timezone"
	"terminwatch/services/booking"
	"terminwatch/services/watches/db"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setup(t *testing.T) (Service, func()) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/watches",
		DbSchema: db.Schema,
	})
	return NewService(res.DB), cleanup
}

func seedWatch(t *testing.T, ctx context.Context, service Service, interval time.Duration) (db.User, db.Target, db.Watch) {
	user, err := service.RegisterUser(ctx, 1000, "testuser", "Test", "User")
	require.NoError(t, err)

	err = service.SeedTargets(ctx, []TargetSeed{
		{Category: "Bürgerbüro", Service: "Reisepass beantragen", Quantity: 1},
	})
	require.NoError(t, err)
	targets, err := service.ListActiveTargets(ctx)
	require.NoError(t, err)
	require.Len(t, targets, 1)

	watch, err := service.CreateWatch(ctx, user.ID, targets[0].ID, interval, false)
	require.NoError(t, err)
	return user, targets[0], watch
}

func TestDueWatches(t *testing.T) {
	service, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	_, _, watch := seedWatch(t, ctx, service, time.Hour)

	now := timezone.Now()

	// never probed means always due
	due, err := service.DueWatches(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, watch.ID, due[0].ID)

	_, err = service.SaveOutcome(ctx, watch, booking.Outcome{
		AttemptID:  "a1",
		Kind:       booking.KindNoSlots,
		CapturedAt: now,
	})
	require.NoError(t, err)

	// one unit below the interval is not yet due
	due, err = service.DueWatches(ctx, now.Add(time.Hour-time.Second))
	require.NoError(t, err)
	require.Empty(t, due)

	// exact equality is due
	due, err = service.DueWatches(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
}

func TestDueSkipsInactive(t *testing.T) {
	service, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	user, target, watch := seedWatch(t, ctx, service, time.Hour)

	require.NoError(t, service.DeactivateWatch(ctx, watch.ID, user.ID))
	due, err := service.DueWatches(ctx, timezone.Now())
	require.NoError(t, err)
	require.Empty(t, due)

	// reactivate the watch, deactivate the target instead
	_, err = service.CreateWatch(ctx, user.ID, target.ID, time.Hour, false)
	require.NoError(t, err)
	require.NoError(t, service.SetTargetActive(ctx, target.ID, false))
	due, err = service.DueWatches(ctx, timezone.Now())
	require.NoError(t, err)
	require.Empty(t, due)
}

func TestSaveOutcomePersistsEverything(t *testing.T) {
	service, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	_, target, watch := seedWatch(t, ctx, service, time.Hour)

	capturedAt := timezone.Now()
	checkID, err := service.SaveOutcome(ctx, watch, booking.Outcome{
		AttemptID:  "attempt-1",
		Kind:       booking.KindSlotsFound,
		CapturedAt: capturedAt,
		Duration:   1500 * time.Millisecond,
		Slots: []booking.Slot{
			{Date: "2026-01-05", Time: "08:30", RawLabel: "Montag, 05.01.2026 08:30"},
			{Date: "2026-01-05", Time: "09:00", RawLabel: "Montag, 05.01.2026 09:00"},
		},
	})
	require.NoError(t, err)
	require.NotZero(t, checkID)

	check, slots, err := service.LatestCheck(ctx, watch.ID)
	require.NoError(t, err)
	require.Equal(t, checkID, check.ID)
	require.Equal(t, "attempt-1", check.AttemptID)
	require.Equal(t, string(booking.KindSlotsFound), check.Kind)
	require.EqualValues(t, 1500, check.DurationMs)
	require.Len(t, slots, 2)

	updated, err := service.GetWatch(ctx, watch.ID)
	require.NoError(t, err)
	require.True(t, updated.LastProbeAt.Valid)
	require.Equal(t, capturedAt.Unix(), updated.LastProbeAt.Int64)
	require.Equal(t, string(booking.KindSlotsFound), updated.LastOutcomeKind)
	require.Zero(t, updated.ConsecutiveFailures)

	stats, err := service.GetTarget(ctx, target.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.TotalChecks)
	require.True(t, stats.LastSlotsAt.Valid)
}

func TestSaveOutcomeLastProbeAtIsMonotonic(t *testing.T) {
	service, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	_, _, watch := seedWatch(t, ctx, service, time.Hour)

	later := timezone.Now()
	earlier := later.Add(-10 * time.Minute)

	_, err := service.SaveOutcome(ctx, watch, booking.Outcome{
		AttemptID: "a-late", Kind: booking.KindNoSlots, CapturedAt: later,
	})
	require.NoError(t, err)

	// a slow attempt that started before the fast one must not move
	// the probe clock backwards
	_, err = service.SaveOutcome(ctx, watch, booking.Outcome{
		AttemptID: "a-early", Kind: booking.KindNoSlots, CapturedAt: earlier,
	})
	require.NoError(t, err)

	updated, err := service.GetWatch(ctx, watch.ID)
	require.NoError(t, err)
	require.Equal(t, later.Unix(), updated.LastProbeAt.Int64)
}

func TestSaveOutcomeFailureCounter(t *testing.T) {
	service, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	_, _, watch := seedWatch(t, ctx, service, time.Hour)

	now := timezone.Now()
	for i := 0; i < 2; i++ {
		_, err := service.SaveOutcome(ctx, watch, booking.Outcome{
			AttemptID: "f", Kind: booking.KindFailed, FailureReason: "timeout", CapturedAt: now,
		})
		require.NoError(t, err)
	}
	updated, err := service.GetWatch(ctx, watch.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, updated.ConsecutiveFailures)

	_, err = service.SaveOutcome(ctx, watch, booking.Outcome{
		AttemptID: "ok", Kind: booking.KindNoSlots, CapturedAt: now,
	})
	require.NoError(t, err)
	updated, err = service.GetWatch(ctx, watch.ID)
	require.NoError(t, err)
	require.Zero(t, updated.ConsecutiveFailures)
}

func TestNotifiedSetIsIdempotent(t *testing.T) {
	service, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	_, _, watch := seedWatch(t, ctx, service, time.Hour)

	slots := []booking.Slot{
		{Date: "2026-02-01", Time: "10:00"},
		{Date: "2026-02-01", Time: "10:30"},
	}
	require.NoError(t, service.MarkNotified(ctx, watch.ID, slots, timezone.Now()))
	require.NoError(t, service.MarkNotified(ctx, watch.ID, slots, timezone.Now()))

	keys, err := service.NotifiedKeys(ctx, watch.ID)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	require.Contains(t, keys, "2026-02-01 10:00")
}

func TestFindTarget(t *testing.T) {
	service, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	err := service.SeedTargets(ctx, []TargetSeed{
		{Category: "Bürgerbüro", Service: "Reisepass beantragen", Quantity: 1},
		{Category: "Bürgerbüro", Service: "Personalausweis beantragen", Quantity: 1},
	})
	require.NoError(t, err)

	found, err := service.FindTarget(ctx, "reisepass")
	require.NoError(t, err)
	require.Equal(t, "Reisepass beantragen", found.Service)

	// close but misspelled still resolves
	found, err = service.FindTarget(ctx, "Personalausweiss beantragen")
	require.NoError(t, err)
	require.Equal(t, "Personalausweis beantragen", found.Service)

	_, err = service.FindTarget(ctx, "führerschein")
	require.ErrorIs(t, err, ErrNoTarget)
}

func TestPruneHistory(t *testing.T) {
	service, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	_, _, watch := seedWatch(t, ctx, service, time.Hour)

	old := timezone.Now().Add(-40 * 24 * time.Hour)
	_, err := service.SaveOutcome(ctx, watch, booking.Outcome{
		AttemptID: "old", Kind: booking.KindNoSlots, CapturedAt: old,
	})
	require.NoError(t, err)
	require.NoError(t, service.MarkNotified(ctx, watch.ID, []booking.Slot{
		{Date: "2001-01-01", Time: "08:00"},
		{Date: "2999-01-01", Time: "08:00"},
	}, old))

	checks, notified, err := service.PruneHistory(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, checks)
	require.EqualValues(t, 1, notified)

	keys, err := service.NotifiedKeys(ctx, watch.ID)
	require.NoError(t, err)
	require.Contains(t, keys, "2999-01-01 08:00")
	require.NotContains(t, keys, "2001-01-01 08:00")
}
