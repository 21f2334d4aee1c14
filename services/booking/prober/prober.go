// Package prober wraps the driver and the extractor into a single
// Probe operation with timeout, failure classification and screenshot
// capture. Each attempt gets its own browser session which is torn
// down on every exit path.
package prober

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"terminwatch/lib/siteprofile"
	"terminwatch/lib/timezone"
	"terminwatch/services/booking"
	"terminwatch/services/booking/driver"
	"terminwatch/services/booking/extract"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/booking/prober")

type Options struct {
	Profiles *siteprofile.Source
	// aggregate bound on one probe attempt
	ProbeTimeout time.Duration
	// bound on each navigation wait inside the attempt
	NavTimeout time.Duration
	Headless   bool
	Sinks      []Sink
}

type Prober struct {
	profiles     *siteprofile.Source
	probeTimeout time.Duration
	navTimeout   time.Duration
	headless     bool
	sinks        []Sink
}

func New(opts Options) *Prober {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = time.Minute * 3
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = time.Second * 30
	}
	return &Prober{
		profiles:     opts.Profiles,
		probeTimeout: opts.ProbeTimeout,
		navTimeout:   opts.NavTimeout,
		headless:     opts.Headless,
		sinks:        opts.Sinks,
	}
}

// Probe runs one end to end attempt against the target. It never
// returns an error: every fault, timeout or panic inside the attempt
// is folded into a Failed outcome.
func (p *Prober) Probe(ctx context.Context, target booking.Target) booking.Outcome {
	ctx, span := tracer.Start(ctx, "Probe")
	defer span.End()
	span.SetAttributes(
		attribute.String("category", target.Category),
		attribute.String("service", target.Service),
	)

	outcome := booking.Outcome{
		AttemptID: uuid.NewString(),
	}
	started := time.Now()

	func() {
		defer func() {
			if r := recover(); r != nil {
				outcome.Kind = booking.KindFailed
				outcome.FailureReason = fmt.Sprintf("panic: %v", r)
			}
		}()
		p.attempt(ctx, target, &outcome)
	}()

	// CapturedAt is the completion time. The scheduler derives the next
	// due time from it, so stamping it before the attempt would shrink
	// the effective interval by the probe's own duration.
	outcome.CapturedAt = timezone.Now()
	outcome.Duration = time.Since(started)
	span.SetAttributes(
		attribute.String("kind", string(outcome.Kind)),
		attribute.Int("slot_count", len(outcome.Slots)),
	)
	if outcome.Kind == booking.KindFailed {
		span.SetStatus(codes.Error, outcome.FailureReason)
	}
	return outcome
}

func (p *Prober) attempt(ctx context.Context, target booking.Target, outcome *booking.Outcome) {
	ctx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.headless),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	// one isolated browser per attempt, torn down by the deferred
	// cancel regardless of how the attempt ends
	sessionCtx, cancelSession := chromedp.NewContext(allocCtx)
	defer cancelSession()

	profile := p.profiles.Current()
	d := driver.New(profile, p.navTimeout)

	err := d.Run(sessionCtx, target)
	if err != nil {
		outcome.Kind = booking.KindFailed
		outcome.FailureReason = failureReason(err)
		outcome.ScreenshotRef = p.capture(sessionCtx, string(booking.KindFailed))
		return
	}

	var html string
	err = chromedp.Run(sessionCtx, chromedp.OuterHTML("html", &html))
	if err != nil {
		outcome.Kind = booking.KindFailed
		outcome.FailureReason = failureReason(err)
		outcome.ScreenshotRef = p.capture(sessionCtx, string(booking.KindFailed))
		return
	}

	result, err := extract.Extract(ctx, html, profile)
	if err != nil {
		outcome.Kind = booking.KindFailed
		outcome.FailureReason = fmt.Sprintf("extract: %v", err)
		outcome.ScreenshotRef = p.capture(sessionCtx, string(booking.KindFailed))
		return
	}

	outcome.Kind = result.Kind
	outcome.Slots = result.Slots
	outcome.ScreenshotRef = p.capture(sessionCtx, string(result.Kind))
}

// failureReason maps a driver abort into its machine readable reason
// and everything else into a generic classification.
func failureReason(err error) string {
	var abort *driver.AbortError
	if errors.As(err, &abort) {
		return string(abort.Reason)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return err.Error()
}

// capture takes a full page screenshot labeled with the outcome kind
// and hands it to every configured sink. Diagnostics must never fail
// the probe, so all errors end here as warnings.
func (p *Prober) capture(sessionCtx context.Context, label string) string {
	if len(p.sinks) == 0 {
		return ""
	}

	shotCtx, cancel := context.WithTimeout(sessionCtx, time.Second*10)
	defer cancel()

	var buf []byte
	err := chromedp.Run(shotCtx, chromedp.FullScreenshot(&buf, 90))
	if err != nil {
		slog.WarnContext(sessionCtx, "screenshot capture failed", "label", label, "err", err)
		return ""
	}

	ref := ""
	for _, sink := range p.sinks {
		r, err := sink.Store(shotCtx, label, buf)
		if err != nil {
			slog.WarnContext(sessionCtx, "screenshot sink rejected capture", "label", label, "err", err)
			continue
		}
		if ref == "" {
			ref = r
		}
	}
	return ref
}
