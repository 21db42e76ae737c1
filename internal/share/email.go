package share

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/gomail.v2"
)

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Email sends the share message with the PDF attached over SMTP.
type Email struct {
	from   string
	sender mailSender
}

// NewEmail returns a channel that is unavailable when no SMTP host is set.
func NewEmail(cfg EmailConfig) *Email {
	if cfg.Host == "" {
		return &Email{}
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &Email{
		from:   from,
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (e *Email) Name() string        { return "email" }
func (e *Email) Available() bool     { return e.sender != nil }
func (e *Email) NeedsDocument() bool { return true }

func (e *Email) Share(ctx context.Context, p Payload) (Outcome, error) {
	if !e.Available() {
		return Outcome{}, ErrChannelDisabled
	}
	if p.Recipient == "" {
		return Outcome{}, ErrRecipientRequired
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", p.Recipient)
	m.SetHeader("Subject", fmt.Sprintf("Invoice #%s", p.InvoiceNumber))
	m.SetBody("text/plain", p.Message)
	if len(p.Document) > 0 {
		doc := p.Document
		m.Attach(p.FileName,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(doc)
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {"application/pdf"}}),
		)
	}

	if err := e.sender.DialAndSend(m); err != nil {
		return Outcome{}, fmt.Errorf("send invoice email: %w", err)
	}
	return Outcome{}, nil
}
