// Package driver walks the booking site's multi step form inside a
// browser session until the results page is reached, or aborts with a
// classified reason. It is a state machine, not a script: every
// transition has an explicit timeout, optional dialogs are modeled as
// best effort candidate actions, and there are no internal retries.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"terminwatch/lib/siteprofile"
	"terminwatch/services/booking"

	"github.com/chromedp/chromedp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/booking/driver")

type State int

const (
	StateStart State = iota
	StateConsentResolved
	StateCategoryExpanded
	StateServiceSelected
	StateQuantitySet
	StateStep1Submitted
	StateInterstitialResolved
	StateStep2Submitted
	StateTerminalReached
)

var stateNames = map[State]string{
	StateStart:                "Start",
	StateConsentResolved:      "ConsentResolved",
	StateCategoryExpanded:     "CategoryExpanded",
	StateServiceSelected:      "ServiceSelected",
	StateQuantitySet:          "QuantitySet",
	StateStep1Submitted:       "Step1Submitted",
	StateInterstitialResolved: "InterstitialResolved",
	StateStep2Submitted:       "Step2Submitted",
	StateTerminalReached:      "TerminalReached",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Driver struct {
	profile siteprofile.Profile
	// bound on every wait for an element or page load
	navTimeout time.Duration
	// shorter bound used for optional best effort actions
	optionalTimeout time.Duration
}

func New(profile siteprofile.Profile, navTimeout time.Duration) Driver {
	if navTimeout <= 0 {
		navTimeout = time.Second * 30
	}
	return Driver{
		profile:         profile,
		navTimeout:      navTimeout,
		optionalTimeout: time.Second * 3,
	}
}

type transition struct {
	to  State
	run func(ctx context.Context, target booking.Target) error
}

// Run drives the session ctx (a chromedp context) from Start to
// TerminalReached. Any returned error is an *AbortError.
func (d Driver) Run(ctx context.Context, target booking.Target) error {
	ctx, span := tracer.Start(ctx, "driver:Run")
	defer span.End()

	transitions := []transition{
		{StateConsentResolved, d.resolveConsent},
		{StateCategoryExpanded, d.expandCategory},
		{StateServiceSelected, d.selectService},
		{StateQuantitySet, d.setQuantity},
		{StateStep1Submitted, d.submitStep1},
		{StateInterstitialResolved, d.resolveInterstitial},
		{StateStep2Submitted, d.submitStep2},
		{StateTerminalReached, d.awaitTerminal},
	}

	state := StateStart
	if err := d.open(ctx, target); err != nil {
		abort := classify(state, err)
		span.RecordError(abort)
		span.SetStatus(codes.Error, abort.Error())
		return abort
	}

	for _, t := range transitions {
		err := t.run(ctx, target)
		if err != nil {
			abort := classify(state, err)
			span.RecordError(abort)
			span.SetStatus(codes.Error, abort.Error())
			return abort
		}
		slog.DebugContext(ctx, "state transition", "from", state, "to", t.to)
		state = t.to
	}
	return nil
}

// classify wraps a transition failure into the absorbing abort state.
// Transition funcs that already decided on a reason pass through.
func classify(state State, err error) *AbortError {
	var abort *AbortError
	if errors.As(err, &abort) {
		return abort
	}
	reason := ReasonNavigation
	if errors.Is(err, context.DeadlineExceeded) {
		reason = ReasonTerminalTimeout
	}
	return &AbortError{State: state, Reason: reason, Err: err}
}

func (d Driver) open(ctx context.Context, target booking.Target) error {
	url := target.BaseURL
	if url == "" {
		url = d.profile.BaseURL
	}
	ctx, cancel := context.WithTimeout(ctx, d.navTimeout)
	defer cancel()
	return chromedp.Run(ctx, chromedp.Navigate(url))
}
