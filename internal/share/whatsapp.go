package share

import (
	"context"
	"net/url"
	"strings"
	"unicode"
)

const whatsAppBase = "https://wa.me/"

// WhatsApp builds a click-to-chat link carrying the message. Opening the
// link is left to the caller.
type WhatsApp struct{}

func (WhatsApp) Name() string        { return "whatsapp" }
func (WhatsApp) Available() bool     { return true }
func (WhatsApp) NeedsDocument() bool { return false }

func (WhatsApp) Share(_ context.Context, p Payload) (Outcome, error) {
	return Outcome{URL: WhatsAppURL(p.Recipient, p.Message)}, nil
}

// WhatsAppURL returns the wa.me link for message. A recipient phone number,
// when given, is reduced to its digits.
func WhatsAppURL(recipient string, message string) string {
	phone := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			return r
		}
		return -1
	}, recipient)
	return whatsAppBase + phone + "?text=" + encodeComponent(message)
}

// encodeComponent percent-encodes s for a query value, spaces as %20.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
