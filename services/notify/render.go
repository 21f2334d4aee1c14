package notify

import (
	"fmt"
	"strings"
	"time"

	"terminwatch/services/booking"
	"terminwatch/services/watches/db"
)

// slotMessageCap bounds how many slots a single message spells out.
// Anything beyond it is summarized in one trailing line.
const slotMessageCap = 15

// RenderSlots builds the availability message for newly discovered
// slots.
func RenderSlots(target db.Target, slots []booking.Slot, checkedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎉 Termine verfügbar!\n\n")
	fmt.Fprintf(&b, "%s – %s\n\n", target.Category, target.Service)

	shown := slots
	if len(shown) > slotMessageCap {
		shown = shown[:slotMessageCap]
	}
	for _, slot := range shown {
		fmt.Fprintf(&b, "• %s um %s\n", slot.Date, slot.Time)
	}
	if rest := len(slots) - len(shown); rest > 0 {
		fmt.Fprintf(&b, "… und %d weitere Termine\n", rest)
	}

	fmt.Fprintf(&b, "\nJetzt buchen: %s\n", target.BaseUrl)
	fmt.Fprintf(&b, "Geprüft um %s", checkedAt.Format("02.01.2006 15:04"))
	return b.String()
}

// RenderFailure builds the notice sent to watchers who opted into
// failure reports.
func RenderFailure(target db.Target, reason string, checkedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ Prüfung fehlgeschlagen\n\n")
	fmt.Fprintf(&b, "%s – %s\n", target.Category, target.Service)
	fmt.Fprintf(&b, "Grund: %s\n\n", reason)
	fmt.Fprintf(&b, "Geprüft um %s", checkedAt.Format("02.01.2006 15:04"))
	return b.String()
}
