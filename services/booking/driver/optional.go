package driver

import (
	"context"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
)

// tryOptional clicks the first of a list of candidate buttons that
// exists on the page. Optional dialogs (cookie banner, confirmation
// popup) may or may not appear, so not finding any candidate is
// success, and once one candidate matched the rest are left untried.
// Only cancellation of the session itself is propagated.
func (d Driver) tryOptional(ctx context.Context, kind string, labels []string) error {
	for _, label := range labels {
		attempt, cancel := context.WithTimeout(ctx, d.optionalTimeout)
		err := chromedp.Run(attempt,
			chromedp.Click(buttonXPath(label), chromedp.BySearch),
			chromedp.Sleep(time.Millisecond*500),
		)
		cancel()
		if err == nil {
			slog.DebugContext(ctx, "optional dialog dismissed", "kind", kind, "label", label)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	slog.DebugContext(ctx, "no optional dialog present", "kind", kind)
	return nil
}
