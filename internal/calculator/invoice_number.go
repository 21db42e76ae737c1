package calculator

import (
	"strconv"
	"strings"

	"billdesk/backend/internal/domain"
)

// invoiceNumberFloor keeps the first generated number at 100.
const invoiceNumberFloor = 99

// NextInvoiceNumber returns max(existing numbers, 99) + 1. Numbers that do not
// start with an integer count as zero.
func NextInvoiceNumber(bills []domain.Bill) string {
	highest := int64(invoiceNumberFloor)
	for _, bill := range bills {
		if n := ParseInvoiceNumber(bill.InvoiceNumber); n > highest {
			highest = n
		}
	}
	return strconv.FormatInt(highest+1, 10)
}

// ParseInvoiceNumber reads the leading base-10 integer of raw, ignoring
// surrounding whitespace ("105", " 105", "105a" all yield 105).
func ParseInvoiceNumber(raw string) int64 {
	s := strings.TrimSpace(raw)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digitsStart := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return 0
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
