package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"terminwatch/lib/timezone"
)

// German date display: optional weekday prefix, then D.M.YYYY,
// e.g. "Dienstag, 18.11.2025" or "5.3.2026".
var dateRegex = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`)

// H:MM or HH:MM time token, e.g. "14:30 Uhr" or "9:05".
var timeRegex = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)

// ParseHeaderDate extracts a calendar date from a section header's
// text and normalizes it to YYYY-MM-DD, zero-padding single digit day
// and month. ok is false when the text carries no recognizable date or
// names a day that does not exist, like 31.02.
func ParseHeaderDate(text string) (string, bool) {
	match := dateRegex.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	day, _ := strconv.Atoi(match[1])
	month, _ := strconv.Atoi(match[2])
	year, _ := strconv.Atoi(match[3])

	// time.Date normalizes overflow (31.02. becomes 02.03. or 03.03.),
	// so a changed component means the display was not a real date
	parsed := time.Date(year, time.Month(month), day, 0, 0, 0, 0, timezone.Location)
	if parsed.Year() != year || parsed.Month() != time.Month(month) || parsed.Day() != day {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}

// ParseTimeToken extracts a time of day from a slot control's text and
// normalizes it to HH:MM. The site's displayed local time is kept
// verbatim, no timezone conversion happens here or anywhere else. ok
// is false for out of range tokens like 99:99.
func ParseTimeToken(text string) (string, bool) {
	match := timeRegex.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	hour, _ := strconv.Atoi(match[1])
	minute, _ := strconv.Atoi(match[2])
	if hour > 23 || minute > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%s", hour, match[2]), true
}
