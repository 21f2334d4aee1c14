package driver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"terminwatch/lib/siteprofile"

	"github.com/stretchr/testify/require"
)

func TestXpathLiteral(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Weiter", `"Weiter"`},
		{`An- und Abmeldung`, `"An- und Abmeldung"`},
		{`say "hi"`, `'say "hi"'`},
		{`it's "fine"`, `concat("it's ", '"', "fine", '"', "")`},
	}
	for _, c := range cases {
		require.Equal(t, c.want, xpathLiteral(c.in), "input %q", c.in)
	}
}

func TestClassify(t *testing.T) {
	t.Run("passes through an existing abort", func(t *testing.T) {
		orig := &AbortError{State: StateCategoryExpanded, Reason: ReasonServiceNotFound}
		got := classify(StateStart, fmt.Errorf("wrapped: %w", orig))
		require.Same(t, orig, got)
	})

	t.Run("deadline becomes terminal timeout", func(t *testing.T) {
		got := classify(StateStep2Submitted, context.DeadlineExceeded)
		require.Equal(t, ReasonTerminalTimeout, got.Reason)
		require.Equal(t, StateStep2Submitted, got.State)
	})

	t.Run("anything else is a navigation fault", func(t *testing.T) {
		got := classify(StateConsentResolved, errors.New("net::ERR_CONNECTION_RESET"))
		require.Equal(t, ReasonNavigation, got.Reason)
	})
}

func TestAbortErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	abort := &AbortError{State: StateQuantitySet, Reason: ReasonQuantityRejected, Err: inner}
	require.ErrorIs(t, abort, inner)
	require.Contains(t, abort.Error(), "QuantitySet")
	require.Contains(t, abort.Error(), "quantity_rejected")
}

func TestStateString(t *testing.T) {
	require.Equal(t, "Start", StateStart.String())
	require.Equal(t, "TerminalReached", StateTerminalReached.String())
	require.Equal(t, "State(99)", State(99).String())
}

func TestServiceRowXPathUsesProfile(t *testing.T) {
	d := New(siteprofile.Default(), 0)
	got := d.serviceRowXPath("Reisepass beantragen")
	require.Contains(t, got, "//li[")
	require.Contains(t, got, `"Reisepass beantragen"`)
}

func TestButtonXPathEscapesLabel(t *testing.T) {
	got := buttonXPath(`OK`)
	require.Equal(t, `//button[normalize-space(.)="OK"]`, got)

}
