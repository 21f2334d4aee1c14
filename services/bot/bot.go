// Package bot is the Telegram front end: users manage their watches
// and trigger on-demand checks through chat commands.
package bot

import (
	"context"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"terminwatch/services/scheduler"
	"terminwatch/services/watches"
)

// maxWatchesPerUser caps how many active watches one user may hold.
const maxWatchesPerUser = 10

type Bot struct {
	api   *tgbotapi.BotAPI
	store watches.Service
	sched *scheduler.Scheduler
}

func New(api *tgbotapi.BotAPI, store watches.Service, sched *scheduler.Scheduler) *Bot {
	return &Bot{api: api, store: store, sched: sched}
}

// Run consumes the Telegram update stream until the context ends.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	slog.InfoContext(ctx, "bot running", "username", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			// a manual /check holds a browser session open for a
			// while, other users' commands must not wait behind it
			go b.handle(ctx, update)
		}
	}
}

func (b *Bot) handle(ctx context.Context, update tgbotapi.Update) {
	msg := strings.TrimSpace(update.Message.Text)
	chatID := update.Message.Chat.ID
	from := update.Message.From
	if from == nil || msg == "" {
		return
	}

	user, err := b.store.RegisterUser(ctx, chatID, from.UserName, from.FirstName, from.LastName)
	if err != nil {
		slog.WarnContext(ctx, "failed to register user", "chat", chatID, "err", err)
		b.reply(chatID, "Interner Fehler, bitte später erneut versuchen.")
		return
	}

	switch {
	case strings.HasPrefix(msg, "/start"), strings.HasPrefix(msg, "/help"):
		b.reply(chatID, helpText)
	case strings.HasPrefix(msg, "/dienste"):
		b.handleServices(ctx, chatID)
	case strings.HasPrefix(msg, "/abo "):
		b.handleSubscribe(ctx, user, chatID, strings.TrimSpace(strings.TrimPrefix(msg, "/abo ")))
	case strings.HasPrefix(msg, "/liste"):
		b.handleList(ctx, user, chatID)
	case strings.HasPrefix(msg, "/stop "):
		b.handleUnsubscribe(ctx, user, chatID, strings.TrimSpace(strings.TrimPrefix(msg, "/stop ")))
	case strings.HasPrefix(msg, "/check "):
		b.handleCheck(ctx, user, chatID, strings.TrimSpace(strings.TrimPrefix(msg, "/check ")))
	case strings.HasPrefix(msg, "/fehler "):
		b.handleFailures(ctx, user, chatID, strings.TrimSpace(strings.TrimPrefix(msg, "/fehler ")))
	case strings.HasPrefix(msg, "/email"):
		b.handleEmail(ctx, user, chatID, strings.TrimSpace(strings.TrimPrefix(msg, "/email")))
	case strings.HasPrefix(msg, "/status"):
		b.handleStatus(ctx, chatID)
	default:
		b.reply(chatID, "Unbekannter Befehl. /help zeigt alle Befehle.")
	}
}

const helpText = `Terminwatch überwacht freie Termine der Stadt Düsseldorf.

Befehle:
/dienste                   – verfügbare Dienstleistungen
/abo <dienst> [intervall]  – Termin-Überwachung starten, z.B. /abo reisepass 30m
/liste                     – aktive Überwachungen
/stop <nr>                 – Überwachung beenden
/check <nr>                – sofort prüfen
/fehler <nr> an|aus        – Fehlermeldungen ein- oder ausschalten
/email <adresse>|aus       – zusätzlich per E-Mail benachrichtigen
/status                    – Zustand des Prüf-Dienstes`

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		slog.Warn("failed to send reply", "chat", chatID, "err", err)
	}
}
