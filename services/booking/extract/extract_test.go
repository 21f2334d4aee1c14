package extract

import (
	"context"
	"testing"

	"terminwatch/lib/siteprofile"
	"terminwatch/services/booking"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestExtractNoSlotsPhrase(t *testing.T) {
	html := `<html><body>
		<div class="message">Leider sind derzeit   keine
		Termine verfügbar.</div>
	</body></html>`

	res, err := Extract(context.Background(), html, siteprofile.Default())
	require.NoError(t, err)
	require.Equal(t, booking.KindNoSlots, res.Kind)
	require.Equal(t, "Leider sind derzeit keine Termine verfügbar", res.MatchedPhrase)
	require.Empty(t, res.Slots)
}

// the negative phrase must win even when stale accordion markup is
// still present on the page
func TestExtractPhraseBeatsStaleMarkup(t *testing.T) {
	html := `<html><body>
		<p>Zurzeit sind keine Termine frei.</p>
		<h3 class="ui-accordion-header">Montag, 01.01.2030</h3>
		<div><button class="suggest_btn">08:00</button></div>
	</body></html>`

	res, err := Extract(context.Background(), html, siteprofile.Default())
	require.NoError(t, err)
	require.Equal(t, booking.KindNoSlots, res.Kind)
	require.Empty(t, res.Slots)
}

func TestExtractSlots(t *testing.T) {
	html := `<html><body>
		<h3 class="ui-accordion-header" aria-controls="panel-1">Dienstag, 18.11.2025</h3>
		<div id="panel-1">
			<button class="suggest_btn">08:30</button>
			<button class="suggest_btn">09:00</button>
			<button class="suggest_btn">08:30</button>
		</div>
		<h3 class="ui-accordion-header">Mittwoch, 5.3.2026</h3>
		<div>
			<table><tr><td><button>14:30 Uhr</button></td></tr></table>
		</div>
	</body></html>`

	res, err := Extract(context.Background(), html, siteprofile.Default())
	require.NoError(t, err)
	require.Equal(t, booking.KindSlotsFound, res.Kind)

	want := []booking.Slot{
		{Date: "2025-11-18", Time: "08:30", RawLabel: "Dienstag, 18.11.2025 08:30"},
		{Date: "2025-11-18", Time: "09:00", RawLabel: "Dienstag, 18.11.2025 09:00"},
		{Date: "2026-03-05", Time: "14:30", RawLabel: "Mittwoch, 5.3.2026 14:30 Uhr"},
	}
	if diff := cmp.Diff(want, res.Slots); diff != "" {
		t.Fatalf("slots mismatch (-want +got):\n%s", diff)
	}
}

// a panel referenced by aria-controls may live anywhere in the
// document, not just next to its header
func TestExtractPanelByAriaControls(t *testing.T) {
	html := `<html><body>
		<h3 class="ui-accordion-header" aria-controls="elsewhere">Freitag, 02.01.2026</h3>
		<div><p>not the panel</p></div>
		<div id="elsewhere"><button class="suggest_btn">11:15</button></div>
	</body></html>`

	res, err := Extract(context.Background(), html, siteprofile.Default())
	require.NoError(t, err)
	require.Equal(t, booking.KindSlotsFound, res.Kind)
	require.Len(t, res.Slots, 1)
	require.Equal(t, "2026-01-02", res.Slots[0].Date)
	require.Equal(t, "11:15", res.Slots[0].Time)
}

func TestExtractIndeterminate(t *testing.T) {
	t.Run("no headers at all", func(t *testing.T) {
		res, err := Extract(context.Background(), "<html><body><p>Wartung</p></body></html>", siteprofile.Default())
		require.NoError(t, err)
		require.Equal(t, booking.KindIndeterminate, res.Kind)
	})

	t.Run("headers without parseable slots", func(t *testing.T) {
		html := `<html><body>
			<h3 class="ui-accordion-header">Donnerstag, 12.02.2026</h3>
			<div><button class="suggest_btn">ausgebucht</button></div>
		</body></html>`
		res, err := Extract(context.Background(), html, siteprofile.Default())
		require.NoError(t, err)
		require.Equal(t, booking.KindIndeterminate, res.Kind)
	})

	t.Run("header without a date is skipped", func(t *testing.T) {
		html := `<html><body>
			<h3 class="ui-accordion-header">Hinweise zur Buchung</h3>
			<div><button class="suggest_btn">10:00</button></div>
			<h3 class="ui-accordion-header">Montag, 09.02.2026</h3>
			<div><button class="suggest_btn">10:00</button></div>
		</body></html>`
		res, err := Extract(context.Background(), html, siteprofile.Default())
		require.NoError(t, err)
		require.Equal(t, booking.KindSlotsFound, res.Kind)
		require.Len(t, res.Slots, 1)
		require.Equal(t, "2026-02-09", res.Slots[0].Date)
	})
}

func TestParseHeaderDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Dienstag, 18.11.2025", "2025-11-18", true},
		{"5.3.2026", "2026-03-05", true},
		{"am 01.12.2025 vormittags", "2025-12-01", true},
		{"29.02.2028", "2028-02-29", true},
		{"Hinweise zur Buchung", "", false},
		{"", "", false},
		// days that do not exist on the calendar
		{"31.02.2026", "", false},
		{"29.02.2026", "", false},
		{"31.04.2026", "", false},
		{"18.13.2025", "", false},
		{"0.11.2025", "", false},
	}
	for _, c := range cases {
		got, ok := ParseHeaderDate(c.in)
		require.Equal(t, c.ok, ok, "input %q", c.in)
		require.Equal(t, c.want, got, "input %q", c.in)
	}
}

func TestParseTimeToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"14:30", "14:30", true},
		{"14:30 Uhr", "14:30", true},
		{"9:05", "09:05", true},
		{"23:59", "23:59", true},
		{"ausgebucht", "", false},
		// tokens that are not a time of day
		{"99:99", "", false},
		{"24:00", "", false},
		{"12:60", "", false},
	}
	for _, c := range cases {
		got, ok := ParseTimeToken(c.in)
		require.Equal(t, c.ok, ok, "input %q", c.in)
		require.Equal(t, c.want, got, "input %q", c.in)
	}
}
