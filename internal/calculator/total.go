// Package calculator holds the pure arithmetic behind bills: line totals and
// invoice numbering.
package calculator

import "billdesk/backend/internal/domain"

// Total sums the line prices. Items whose price failed to parse already carry
// a zero amount.
func Total(items []domain.BillItem) domain.Amount {
	var sum domain.Amount
	for _, item := range items {
		sum = sum.Add(item.Price)
	}
	return sum
}

// WithTotal returns a copy of bill whose total matches its items.
func WithTotal(bill domain.Bill) domain.Bill {
	bill.Total = Total(bill.Items)
	return bill
}
