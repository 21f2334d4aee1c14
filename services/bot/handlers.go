package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"terminwatch/lib/timezone"
	"terminwatch/services/booking"
	"terminwatch/services/scheduler"
	"terminwatch/services/watches"
	"terminwatch/services/watches/db"
)

const (
	defaultInterval = 30 * time.Minute
	minInterval     = 5 * time.Minute
)

func (b *Bot) handleServices(ctx context.Context, chatID int64) {
	targets, err := b.store.ListActiveTargets(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to list targets", "err", err)
		b.reply(chatID, "Interner Fehler, bitte später erneut versuchen.")
		return
	}
	if len(targets) == 0 {
		b.reply(chatID, "Es sind derzeit keine Dienstleistungen hinterlegt.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Überwachbare Dienstleistungen:\n")
	for _, t := range targets {
		fmt.Fprintf(&sb, "\n• %s – %s", t.Category, t.Service)
		if t.LastSlotsAt.Valid {
			at := time.Unix(t.LastSlotsAt.Int64, 0).In(timezone.Location)
			fmt.Fprintf(&sb, " (zuletzt frei: %s)", at.Format("02.01. 15:04"))
		}
	}
	b.reply(chatID, sb.String())
}

// handleSubscribe parses "<dienst> [intervall]". When the last word is
// a valid duration it is taken as the interval, everything before it
// as the service query.
func (b *Bot) handleSubscribe(ctx context.Context, user db.User, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		b.reply(chatID, "Beispiel: /abo reisepass 30m")
		return
	}

	interval := defaultInterval
	query := args
	if len(fields) > 1 {
		if d, err := time.ParseDuration(fields[len(fields)-1]); err == nil {
			interval = d
			query = strings.Join(fields[:len(fields)-1], " ")
		}
	}
	if interval < minInterval {
		interval = minInterval
	}

	count, err := b.store.CountActiveWatchesByUser(ctx, user.ID)
	if err != nil {
		slog.WarnContext(ctx, "failed to count watches", "err", err)
		b.reply(chatID, "Interner Fehler, bitte später erneut versuchen.")
		return
	}
	if count >= maxWatchesPerUser {
		b.reply(chatID, fmt.Sprintf("Maximal %d Überwachungen pro Nutzer.", maxWatchesPerUser))
		return
	}

	target, err := b.store.FindTarget(ctx, query)
	if errors.Is(err, watches.ErrNoTarget) {
		b.reply(chatID, fmt.Sprintf("Keine Dienstleistung zu %q gefunden. /dienste zeigt alle.", query))
		return
	}
	if err != nil {
		slog.WarnContext(ctx, "target lookup failed", "query", query, "err", err)
		b.reply(chatID, "Interner Fehler, bitte später erneut versuchen.")
		return
	}

	watch, err := b.store.CreateWatch(ctx, user.ID, target.ID, interval, false)
	if err != nil {
		slog.WarnContext(ctx, "failed to create watch", "err", err)
		b.reply(chatID, "Interner Fehler, bitte später erneut versuchen.")
		return
	}

	b.reply(chatID, fmt.Sprintf(
		"✅ Überwachung Nr. %d: %s – %s, alle %s.\nDu bekommst eine Nachricht, sobald Termine frei sind.",
		watch.ID, target.Category, target.Service, interval))
}

func (b *Bot) handleList(ctx context.Context, user db.User, chatID int64) {
	list, err := b.store.ListWatchesByUser(ctx, user.ID)
	if err != nil {
		slog.WarnContext(ctx, "failed to list watches", "err", err)
		b.reply(chatID, "Interner Fehler, bitte später erneut versuchen.")
		return
	}
	if len(list) == 0 {
		b.reply(chatID, "Keine aktiven Überwachungen. /abo startet eine.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Aktive Überwachungen:\n")
	for _, w := range list {
		target, err := b.store.GetTarget(ctx, w.TargetID)
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "\nNr. %d: %s – %s, alle %s",
			w.ID, target.Category, target.Service, (time.Duration(w.IntervalSeconds) * time.Second))
		if w.LastProbeAt.Valid {
			at := time.Unix(w.LastProbeAt.Int64, 0).In(timezone.Location)
			fmt.Fprintf(&sb, "\n  zuletzt geprüft %s: %s", at.Format("02.01. 15:04"), outcomeLabel(w.LastOutcomeKind))
		} else {
			sb.WriteString("\n  noch nicht geprüft")
		}
	}
	b.reply(chatID, sb.String())
}

func (b *Bot) handleUnsubscribe(ctx context.Context, user db.User, chatID int64, arg string) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		b.reply(chatID, "Beispiel: /stop 3 (Nummer aus /liste)")
		return
	}
	if err := b.store.DeactivateWatch(ctx, id, user.ID); err != nil {
		slog.WarnContext(ctx, "failed to deactivate watch", "watch", id, "err", err)
		b.reply(chatID, "Interner Fehler, bitte später erneut versuchen.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Überwachung Nr. %d beendet.", id))
}

func (b *Bot) handleCheck(ctx context.Context, user db.User, chatID int64, arg string) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		b.reply(chatID, "Beispiel: /check 3 (Nummer aus /liste)")
		return
	}
	watch, err := b.store.GetWatch(ctx, id)
	if err != nil || watch.UserID != user.ID || watch.Active == 0 {
		b.reply(chatID, "Diese Überwachung gibt es nicht.")
		return
	}

	b.reply(chatID, "Prüfe jetzt, das dauert einen Moment …")
	outcome, err := b.sched.CheckNow(ctx, id)
	if errors.Is(err, scheduler.ErrTargetInactive) {
		b.reply(chatID, "Diese Dienstleistung wird zurzeit nicht geprüft.")
		return
	}
	if err != nil {
		slog.WarnContext(ctx, "manual check failed", "watch", id, "err", err)
		b.reply(chatID, "Die Prüfung ist fehlgeschlagen, bitte später erneut versuchen.")
		return
	}
	b.reply(chatID, summarizeOutcome(outcome))
}

func (b *Bot) handleFailures(ctx context.Context, user db.User, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 || (fields[1] != "an" && fields[1] != "aus") {
		b.reply(chatID, "Beispiel: /fehler 3 an")
		return
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		b.reply(chatID, "Beispiel: /fehler 3 an")
		return
	}
	enabled := fields[1] == "an"
	if err := b.store.SetWatchNotifyFailures(ctx, id, user.ID, enabled); err != nil {
		slog.WarnContext(ctx, "failed to set notify_failures", "watch", id, "err", err)
		b.reply(chatID, "Interner Fehler, bitte später erneut versuchen.")
		return
	}
	if enabled {
		b.reply(chatID, fmt.Sprintf("Fehlermeldungen für Nr. %d eingeschaltet.", id))
	} else {
		b.reply(chatID, fmt.Sprintf("Fehlermeldungen für Nr. %d ausgeschaltet.", id))
	}
}

func (b *Bot) handleEmail(ctx context.Context, user db.User, chatID int64, arg string) {
	switch {
	case arg == "" || arg == "aus":
		if err := b.store.SetUserEmail(ctx, user.ID, ""); err != nil {
			b.reply(chatID, "Interner Fehler, bitte später erneut versuchen.")
			return
		}
		b.reply(chatID, "E-Mail-Benachrichtigungen ausgeschaltet.")
	case strings.Contains(arg, "@"):
		if err := b.store.SetUserEmail(ctx, user.ID, arg); err != nil {
			b.reply(chatID, "Interner Fehler, bitte später erneut versuchen.")
			return
		}
		b.reply(chatID, fmt.Sprintf("Benachrichtigungen gehen zusätzlich an %s.", arg))
	default:
		b.reply(chatID, "Beispiel: /email name@example.org oder /email aus")
	}
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	stats := b.sched.Status()
	if stats.StartedAt.IsZero() {
		b.reply(chatID, "Noch kein Prüflauf abgeschlossen.")
		return
	}
	b.reply(chatID, fmt.Sprintf(
		"Letzter Prüflauf: %s\nFällig: %d, geprüft: %d, fehlgeschlagen: %d",
		stats.StartedAt.Format("02.01.2006 15:04"), stats.Due, stats.Probed, stats.Failed))
}

func summarizeOutcome(outcome booking.Outcome) string {
	switch outcome.Kind {
	case booking.KindSlotsFound:
		var sb strings.Builder
		fmt.Fprintf(&sb, "🎉 %d Termine gefunden:\n", len(outcome.Slots))
		shown := outcome.Slots
		if len(shown) > 15 {
			shown = shown[:15]
		}
		for _, slot := range shown {
			fmt.Fprintf(&sb, "• %s um %s\n", slot.Date, slot.Time)
		}
		if rest := len(outcome.Slots) - len(shown); rest > 0 {
			fmt.Fprintf(&sb, "… und %d weitere\n", rest)
		}
		return sb.String()
	case booking.KindNoSlots:
		return "Zurzeit sind keine Termine frei."
	case booking.KindIndeterminate:
		return "Die Seite war nicht eindeutig lesbar, bitte später erneut prüfen."
	default:
		return fmt.Sprintf("Die Prüfung ist fehlgeschlagen (%s).", outcome.FailureReason)
	}
}

func outcomeLabel(kind string) string {
	switch kind {
	case string(booking.KindSlotsFound):
		return "Termine frei 🎉"
	case string(booking.KindNoSlots):
		return "keine Termine"
	case string(booking.KindIndeterminate):
		return "nicht eindeutig"
	case string(booking.KindFailed):
		return "fehlgeschlagen"
	default:
		return "unbekannt"
	}
}
