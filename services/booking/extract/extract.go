// Package extract turns the terminal results page into typed
// appointment slots, or into a definitive "no slots" / "structure
// unrecognized" verdict.
package extract

import (
	"context"
	"log/slog"
	"strings"

	"terminwatch/lib/htmlutil"
	"terminwatch/lib/siteprofile"
	"terminwatch/lib/textutil"
	"terminwatch/services/booking"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/booking/extract")

type Result struct {
	Kind  booking.OutcomeKind
	Slots []booking.Slot
	// the configured phrase that produced a NoSlots verdict, for audit
	MatchedPhrase string
}

// Extract parses the terminal page's HTML. The negative phrase check
// runs before any structural parsing: the "no appointments" message
// can coexist with stale slot markup and must win when it does. Zero
// recognizable date sections without a phrase match is Indeterminate,
// never NoSlots — the former means the page structure drifted and
// needs a profile update, the latter is a perfectly normal result.
func Extract(ctx context.Context, html string, profile siteprofile.Profile) (Result, error) {
	ctx, span := tracer.Start(ctx, "Extract")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return Result{}, err
	}

	if phrase, ok := textutil.ContainsPhrase(doc.Text(), profile.NoSlotPhrases); ok {
		span.SetAttributes(attribute.String("matched_phrase", phrase))
		return Result{Kind: booking.KindNoSlots, MatchedPhrase: phrase}, nil
	}

	headers := doc.Find(profile.Selectors.DateHeader)
	if headers.Length() == 0 {
		span.SetStatus(codes.Error, "no date section headers found")
		return Result{Kind: booking.KindIndeterminate}, nil
	}

	var slots []booking.Slot
	seen := map[string]bool{}

	headers.Each(func(_ int, header *goquery.Selection) {
		headerText := cleanText(header)
		date, ok := ParseHeaderDate(headerText)
		if !ok {
			slog.WarnContext(ctx, "skipping date header without recognizable date", "text", headerText)
			return
		}

		panel := resolvePanel(doc, header)
		panel.Find(profile.Selectors.TimeSlot).Each(func(_ int, control *goquery.Selection) {
			controlText := cleanText(control)
			timeOfDay, ok := ParseTimeToken(controlText)
			if !ok {
				return
			}
			slot := booking.Slot{
				Date:     date,
				Time:     timeOfDay,
				RawLabel: headerText + " " + controlText,
			}
			if seen[slot.Key()] {
				return
			}
			seen[slot.Key()] = true
			slots = append(slots, slot)
		})
	})

	span.SetAttributes(attribute.Int("slot_count", len(slots)))
	if len(slots) == 0 {
		// headers existed but none yielded a slot, the markup inside
		// the panels is not what the profile expects
		return Result{Kind: booking.KindIndeterminate}, nil
	}
	return Result{Kind: booking.KindSlotsFound, Slots: slots}, nil
}

// cleanText flattens a selection's visible text the same way a
// browser renders it, so label comparisons survive markup whitespace.
func cleanText(sel *goquery.Selection) string {
	if len(sel.Nodes) == 0 {
		return ""
	}
	return htmlutil.CleanText(sel.Nodes[0])
}

// resolvePanel finds the content panel belonging to an accordion
// header, preferring the explicit aria-controls reference and falling
// back to the next sibling element.
func resolvePanel(doc *goquery.Document, header *goquery.Selection) *goquery.Selection {
	if id, ok := header.Attr("aria-controls"); ok && id != "" {
		panel := doc.Find("#" + id)
		if panel.Length() > 0 {
			return panel
		}
	}
	return header.Next()
}
