package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"terminwatch/lib/testutil"
	"terminwatch/lib/timezone"
	"terminwatch/services/booking"
	"terminwatch/services/watches"
	"terminwatch/services/watches/db"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

type fakeTransport struct {
	sent []string
	fail bool
	skip bool
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Deliver(ctx context.Context, to Recipient, message string) error {
	if f.skip {
		return ErrNoAddress
	}
	if f.fail {
		return errors.New("handoff refused")
	}
	f.sent = append(f.sent, message)
	return nil
}

type fixture struct {
	store     watches.Service
	transport *fakeTransport
	service   Service
	user      db.User
	target    db.Target
	watch     db.Watch
}

func newFixture(t *testing.T, notifyFailures bool) (fixture, func()) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/notify",
		DbSchema: db.Schema,
	})
	store := watches.NewService(res.DB)
	ctx := context.Background()

	user, err := store.RegisterUser(ctx, 2000, "watcher", "W", "A")
	require.NoError(t, err)
	err = store.SeedTargets(ctx, []watches.TargetSeed{
		{Category: "Bürgerbüro", Service: "Reisepass beantragen", Quantity: 1},
	})
	require.NoError(t, err)
	targets, err := store.ListActiveTargets(ctx)
	require.NoError(t, err)
	watch, err := store.CreateWatch(ctx, user.ID, targets[0].ID, time.Hour, notifyFailures)
	require.NoError(t, err)

	transport := &fakeTransport{}
	return fixture{
		store:     store,
		transport: transport,
		service:   NewService(store, []Transport{transport}),
		user:      user,
		target:    targets[0],
		watch:     watch,
	}, cleanup
}

func futureSlots(n int) []booking.Slot {
	base := timezone.Now().AddDate(0, 0, 7)
	slots := make([]booking.Slot, n)
	for i := range slots {
		slots[i] = booking.Slot{
			Date: base.AddDate(0, 0, i).Format("2006-01-02"),
			Time: "09:00",
		}
	}
	return slots
}

func slotsOutcome(slots []booking.Slot) booking.Outcome {
	return booking.Outcome{
		AttemptID:  "a",
		Kind:       booking.KindSlotsFound,
		Slots:      slots,
		CapturedAt: timezone.Now(),
	}
}

func TestSlotsForwardedOnce(t *testing.T) {
	f, cleanup := newFixture(t, false)
	defer cleanup()
	ctx := context.Background()

	outcome := slotsOutcome(futureSlots(2))
	require.NoError(t, f.service.HandleOutcome(ctx, f.user, f.watch, f.target, 1, outcome))
	require.Len(t, f.transport.sent, 1)

	// the same result on the next cycle is silent
	require.NoError(t, f.service.HandleOutcome(ctx, f.user, f.watch, f.target, 2, outcome))
	require.Len(t, f.transport.sent, 1)
}

func TestOnlyNovelSlotsForwarded(t *testing.T) {
	f, cleanup := newFixture(t, false)
	defer cleanup()
	ctx := context.Background()

	slots := futureSlots(3)
	require.NoError(t, f.service.HandleOutcome(ctx, f.user, f.watch, f.target, 1, slotsOutcome(slots[:2])))
	require.Len(t, f.transport.sent, 1)

	require.NoError(t, f.service.HandleOutcome(ctx, f.user, f.watch, f.target, 2, slotsOutcome(slots)))
	require.Len(t, f.transport.sent, 2)
	require.Contains(t, f.transport.sent[1], slots[2].Date)
	require.NotContains(t, f.transport.sent[1], slots[0].Date)
}

func TestPastSlotsAreNotForwarded(t *testing.T) {
	f, cleanup := newFixture(t, false)
	defer cleanup()
	ctx := context.Background()

	outcome := slotsOutcome([]booking.Slot{{Date: "2001-01-01", Time: "08:00"}})
	require.NoError(t, f.service.HandleOutcome(ctx, f.user, f.watch, f.target, 1, outcome))
	require.Empty(t, f.transport.sent)
}

func TestFailedDeliveryLeavesSetUntouched(t *testing.T) {
	f, cleanup := newFixture(t, false)
	defer cleanup()
	ctx := context.Background()

	outcome := slotsOutcome(futureSlots(1))

	f.transport.fail = true
	err := f.service.HandleOutcome(ctx, f.user, f.watch, f.target, 1, outcome)
	require.Error(t, err)

	keys, err2 := f.store.NotifiedKeys(ctx, f.watch.ID)
	require.NoError(t, err2)
	require.Empty(t, keys)

	// the next cycle retries and succeeds
	f.transport.fail = false
	require.NoError(t, f.service.HandleOutcome(ctx, f.user, f.watch, f.target, 2, outcome))
	require.Len(t, f.transport.sent, 1)
}

// A recipient without an address on any channel is not a delivery.
// The slots stay pending, so they go out as soon as an address exists.
func TestSkippedChannelsLeaveSetUntouched(t *testing.T) {
	f, cleanup := newFixture(t, false)
	defer cleanup()
	ctx := context.Background()

	outcome := slotsOutcome(futureSlots(1))

	f.transport.skip = true
	err := f.service.HandleOutcome(ctx, f.user, f.watch, f.target, 1, outcome)
	require.ErrorIs(t, err, ErrNotDelivered)

	keys, err := f.store.NotifiedKeys(ctx, f.watch.ID)
	require.NoError(t, err)
	require.Empty(t, keys)

	f.transport.skip = false
	require.NoError(t, f.service.HandleOutcome(ctx, f.user, f.watch, f.target, 2, outcome))
	require.Len(t, f.transport.sent, 1)
}

func TestNoTransportsConfigured(t *testing.T) {
	f, cleanup := newFixture(t, false)
	defer cleanup()
	ctx := context.Background()

	bare := NewService(f.store, nil)
	err := bare.HandleOutcome(ctx, f.user, f.watch, f.target, 1, slotsOutcome(futureSlots(1)))
	require.ErrorIs(t, err, ErrNotDelivered)

	keys, err := f.store.NotifiedKeys(ctx, f.watch.ID)
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestSlotCapInMessage(t *testing.T) {
	f, cleanup := newFixture(t, false)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, f.service.HandleOutcome(ctx, f.user, f.watch, f.target, 1, slotsOutcome(futureSlots(20))))
	require.Len(t, f.transport.sent, 1)
	require.Contains(t, f.transport.sent[0], fmt.Sprintf("und %d weitere Termine", 5))
}

func TestFailureNoticeRespectsOptIn(t *testing.T) {
	failed := booking.Outcome{
		AttemptID:     "f",
		Kind:          booking.KindFailed,
		FailureReason: "terminal_timeout",
		CapturedAt:    timezone.Now(),
	}

	t.Run("opted out stays silent", func(t *testing.T) {
		f, cleanup := newFixture(t, false)
		defer cleanup()
		require.NoError(t, f.service.HandleOutcome(context.Background(), f.user, f.watch, f.target, 1, failed))
		require.Empty(t, f.transport.sent)
	})

	t.Run("opted in gets a notice", func(t *testing.T) {
		f, cleanup := newFixture(t, true)
		defer cleanup()
		require.NoError(t, f.service.HandleOutcome(context.Background(), f.user, f.watch, f.target, 1, failed))
		require.Len(t, f.transport.sent, 1)
		require.Contains(t, f.transport.sent[0], "terminal_timeout")
	})
}

func TestNoSlotsIsSilent(t *testing.T) {
	f, cleanup := newFixture(t, true)
	defer cleanup()

	outcome := booking.Outcome{AttemptID: "n", Kind: booking.KindNoSlots, CapturedAt: timezone.Now()}
	require.NoError(t, f.service.HandleOutcome(context.Background(), f.user, f.watch, f.target, 1, outcome))
	require.Empty(t, f.transport.sent)
}
