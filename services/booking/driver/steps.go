package driver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"terminwatch/services/booking"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// xpathLiteral quotes a string for embedding into an XPath expression.
// XPath 1.0 has no escaping inside string literals, so strings that mix
// both quote characters are stitched together with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	for i, p := range parts {
		parts[i] = `"` + p + `"`
	}
	return "concat(" + strings.Join(parts, `, '"', `) + ")"
}

func buttonXPath(label string) string {
	return fmt.Sprintf(`//button[normalize-space(.)=%s]`, xpathLiteral(label))
}

func (d Driver) categoryXPath(category string) string {
	return fmt.Sprintf(`//*[normalize-space(text())=%s]`, xpathLiteral(category))
}

func (d Driver) serviceRowXPath(service string) string {
	return fmt.Sprintf(
		`//%s[contains(normalize-space(.), %s)]`,
		d.profile.Selectors.ServiceRow,
		xpathLiteral(service),
	)
}

// Start -> ConsentResolved. A missing consent banner is not an error.
func (d Driver) resolveConsent(ctx context.Context, _ booking.Target) error {
	return d.tryOptional(ctx, "consent", d.profile.ConsentLabels)
}

// ConsentResolved -> CategoryExpanded. The category is matched by its
// exact text; failure within the navigation timeout is fatal for this
// attempt.
func (d Driver) expandCategory(ctx context.Context, target booking.Target) error {
	ctx, cancel := context.WithTimeout(ctx, d.navTimeout)
	defer cancel()

	err := chromedp.Run(ctx,
		chromedp.Click(d.categoryXPath(target.Category), chromedp.BySearch),
		// accordion animation
		chromedp.Sleep(time.Millisecond*500),
	)
	if err != nil {
		return &AbortError{State: StateConsentResolved, Reason: ReasonCategoryNotFound, Err: err}
	}
	return nil
}

// CategoryExpanded -> ServiceSelected. First row whose text contains
// the service name.
func (d Driver) selectService(ctx context.Context, target booking.Target) error {
	ctx, cancel := context.WithTimeout(ctx, d.navTimeout)
	defer cancel()

	err := chromedp.Run(ctx,
		chromedp.Click(d.serviceRowXPath(target.Service), chromedp.BySearch),
		chromedp.Sleep(time.Millisecond*300),
	)
	if err != nil {
		return &AbortError{State: StateCategoryExpanded, Reason: ReasonServiceNotFound, Err: err}
	}
	return nil
}

// ServiceSelected -> QuantitySet. Clear-then-type so a preset value is
// overwritten rather than appended to, commit with a focus change, and
// read the control back to verify instead of assuming.
func (d Driver) setQuantity(ctx context.Context, target booking.Target) error {
	ctx, cancel := context.WithTimeout(ctx, d.navTimeout)
	defer cancel()

	quantity := target.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	want := strconv.Itoa(quantity)
	qsel := d.serviceRowXPath(target.Service) + strings.TrimPrefix(d.profile.Selectors.QuantityInput, ".")

	var got string
	err := chromedp.Run(ctx,
		chromedp.WaitVisible(qsel, chromedp.BySearch),
		chromedp.SetValue(qsel, "", chromedp.BySearch),
		chromedp.SendKeys(qsel, want, chromedp.BySearch),
		chromedp.SendKeys(qsel, kb.Tab, chromedp.BySearch),
		chromedp.Value(qsel, &got, chromedp.BySearch),
	)
	if err != nil {
		return &AbortError{State: StateServiceSelected, Reason: ReasonQuantityRejected, Err: err}
	}
	if got != want {
		return &AbortError{
			State:  StateServiceSelected,
			Reason: ReasonQuantityRejected,
			Err:    fmt.Errorf("quantity control reads %q, want %q", got, want),
		}
	}
	return nil
}

// QuantitySet -> Step1Submitted. The continue control must become
// enabled before it is activated.
func (d Driver) submitStep1(ctx context.Context, _ booking.Target) error {
	ctx, cancel := context.WithTimeout(ctx, d.navTimeout)
	defer cancel()

	sel := buttonXPath(d.profile.ContinueLabel)
	err := chromedp.Run(ctx, chromedp.WaitEnabled(sel, chromedp.BySearch))
	if err != nil {
		return &AbortError{State: StateQuantitySet, Reason: ReasonContinueDisabled, Err: err}
	}
	err = chromedp.Run(ctx,
		chromedp.Click(sel, chromedp.BySearch),
		chromedp.WaitReady("body"),
	)
	if err != nil {
		return &AbortError{State: StateQuantitySet, Reason: ReasonNavigation, Err: err}
	}
	return nil
}

// Step1Submitted -> InterstitialResolved. Same best effort policy as
// the consent banner.
func (d Driver) resolveInterstitial(ctx context.Context, _ booking.Target) error {
	return d.tryOptional(ctx, "interstitial", d.profile.InterstitialLabels)
}

// InterstitialResolved -> Step2Submitted.
func (d Driver) submitStep2(ctx context.Context, _ booking.Target) error {
	ctx, cancel := context.WithTimeout(ctx, d.navTimeout)
	defer cancel()

	err := chromedp.Run(ctx,
		chromedp.Click(buttonXPath(d.profile.ContinueLabel), chromedp.BySearch),
		chromedp.WaitReady("body"),
	)
	if err != nil {
		return &AbortError{State: StateInterstitialResolved, Reason: ReasonNavigation, Err: err}
	}
	return nil
}

// Step2Submitted -> TerminalReached. Wait for the page to settle; the
// results accordion is filled in by late requests after the document
// itself is complete.
func (d Driver) awaitTerminal(ctx context.Context, _ booking.Target) error {
	ctx, cancel := context.WithTimeout(ctx, d.navTimeout)
	defer cancel()

	var ready bool
	err := chromedp.Run(ctx,
		chromedp.Poll(
			`document.readyState === "complete"`,
			&ready,
			chromedp.WithPollingInterval(time.Millisecond*200),
		),
		chromedp.Sleep(time.Second),
	)
	if err != nil {
		return &AbortError{State: StateStep2Submitted, Reason: ReasonTerminalTimeout, Err: err}
	}
	return nil
}
