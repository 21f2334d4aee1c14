package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jordan-wright/email"
)

// ErrNoAddress signals that the recipient has no address for this
// channel. It is a skip, not a delivery failure.
var ErrNoAddress = errors.New("recipient has no address for transport")

// ErrNotDelivered is returned when no transport handed the message
// off, because every channel was skipped or failed.
var ErrNotDelivered = errors.New("no transport delivered the message")

// Recipient carries the delivery addresses known for a user. Zero
// values mean the channel is not configured for them.
type Recipient struct {
	TelegramChatID int64
	Email          string
}

// Transport delivers a rendered message over one channel.
type Transport interface {
	Name() string
	Deliver(ctx context.Context, to Recipient, message string) error
}

type TelegramTransport struct {
	api *tgbotapi.BotAPI
}

func NewTelegramTransport(api *tgbotapi.BotAPI) TelegramTransport {
	return TelegramTransport{api: api}
}

func (t TelegramTransport) Name() string { return "telegram" }

func (t TelegramTransport) Deliver(ctx context.Context, to Recipient, message string) error {
	if to.TelegramChatID == 0 {
		return ErrNoAddress
	}
	msg := tgbotapi.NewMessage(to.TelegramChatID, message)
	_, err := t.api.Send(msg)
	return err
}

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

type EmailTransport struct {
	config  SmtpConfig
	subject string
}

func NewEmailTransport(config SmtpConfig, subject string) EmailTransport {
	return EmailTransport{config: config, subject: subject}
}

func (t EmailTransport) Name() string { return "email" }

func (t EmailTransport) Deliver(ctx context.Context, to Recipient, message string) error {
	if to.Email == "" {
		return ErrNoAddress
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Terminwatch <%s>", t.config.EmailAddress)
	mail.To = []string{to.Email}
	mail.Subject = t.subject
	mail.Text = []byte(message)

	addr := fmt.Sprintf("%s:%d", t.config.Server, t.config.Port)
	err := mail.Send(addr, smtp.PlainAuth("", t.config.EmailAddress, t.config.Password, t.config.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	return err
}
