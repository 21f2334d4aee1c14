package prober

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"terminwatch/lib/siteprofile"
	"terminwatch/lib/timezone"
	"terminwatch/services/booking"
	"terminwatch/services/booking/driver"

	"github.com/stretchr/testify/require"
)

func TestFailureReason(t *testing.T) {
	abort := &driver.AbortError{
		State:  driver.StateCategoryExpanded,
		Reason: driver.ReasonServiceNotFound,
		Err:    errors.New("node not found"),
	}
	require.Equal(t, "service_not_found", failureReason(abort))
	require.Equal(t, "timeout", failureReason(context.DeadlineExceeded))
	require.Equal(t, "some browser fault", failureReason(errors.New("some browser fault")))
}

// CapturedAt is the attempt's completion time. The scheduler persists
// it as the watch's last probe time, so stamping it at the start would
// shorten the effective interval by however long the probe ran.
func TestProbeStampsCompletionTime(t *testing.T) {
	p := New(Options{Profiles: siteprofile.Static(siteprofile.Default())})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	before := timezone.Now()
	outcome := p.Probe(ctx, booking.Target{Category: "Bürgerbüro", Service: "Reisepass", Quantity: 1})
	after := timezone.Now()

	require.Equal(t, booking.KindFailed, outcome.Kind)
	require.NotEmpty(t, outcome.AttemptID)
	require.False(t, outcome.CapturedAt.Before(before))
	require.False(t, outcome.CapturedAt.After(after))
	require.WithinDuration(t, before.Add(outcome.Duration), outcome.CapturedAt, 100*time.Millisecond)
}

func TestFileSinkNaming(t *testing.T) {
	dir := t.TempDir()
	sink := FileSink{Dir: filepath.Join(dir, "shots")}

	ref, err := sink.Store(context.Background(), "no_slots", []byte("png-bytes"))
	require.NoError(t, err)

	base := filepath.Base(ref)
	require.Regexp(t, regexp.MustCompile(`^no_slots_\d{8}_\d{6}_.{6}\.png$`), base)

	data, err := os.ReadFile(ref)
	require.NoError(t, err)
	require.Equal(t, []byte("png-bytes"), data)
}

// two captures within the same second must not collide
func TestFileSinkUniqueNames(t *testing.T) {
	sink := FileSink{Dir: t.TempDir()}

	a, err := sink.Store(context.Background(), "failed", []byte("a"))
	require.NoError(t, err)
	b, err := sink.Store(context.Background(), "failed", []byte("b"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
