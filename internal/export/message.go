package export

import (
	"fmt"
	"strings"
	"time"

	"billdesk/backend/internal/calculator"
	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/render"
)

// ShareMessage renders the plain-text invoice summary sent over chat
// channels. date is printed in long form.
func ShareMessage(bill domain.Bill, profile render.Profile, date time.Time) string {
	currency := profile.Currency
	var b strings.Builder
	fmt.Fprintf(&b, "*Invoice #%s*\n\n", bill.InvoiceNumber)
	fmt.Fprintf(&b, "Date: %s\n", render.LongDate(date))
	fmt.Fprintf(&b, "Customer: %s\n\n", bill.CustomerName)
	b.WriteString("Items:\n")
	for i, item := range bill.Items {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(item.Description)
		if item.Unit != nil && *item.Unit != "" {
			fmt.Fprintf(&b, " (Unit: %s)", *item.Unit)
		}
		if item.Kg != nil && *item.Kg != "" {
			fmt.Fprintf(&b, " (%s)", *item.Kg)
		}
		fmt.Fprintf(&b, ": %s %s", item.Price.Format(), currency)
	}
	fmt.Fprintf(&b, "\n\n*Total: %s %s*\n\n", calculator.Total(bill.Items).Format(), currency)
	fmt.Fprintf(&b, "From: %s\n%s\nMobile: %s", profile.NameEnglish, profile.TaglineEnglish, profile.Mobile)
	return b.String()
}

// MessageDate is the date a share message carries: the bill date once saved,
// otherwise now.
func MessageDate(bill domain.Bill, now time.Time) time.Time {
	if bill.Date.IsZero() {
		return now
	}
	return bill.Date
}

func FileName(invoiceNumber string) string {
	return fmt.Sprintf("Invoice-%s.pdf", invoiceNumber)
}
