package domain

import (
	"strings"
	"time"
)

type BillItem struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Unit        *string `json:"unit,omitempty"`
	Kg          *string `json:"kg,omitempty"`
	Price       Amount  `json:"price"`
}

type Bill struct {
	StoreID       string     `json:"storeId,omitempty"`
	ID            string     `json:"id"`
	InvoiceNumber string     `json:"invoiceNumber"`
	CustomerName  string     `json:"customerName"`
	Items         []BillItem `json:"items"`
	Total         Amount     `json:"total"`
	Date          time.Time  `json:"date"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// BillUpdateRequest is the body of a PUT; nil fields keep the stored value.
type BillUpdateRequest struct {
	ID            *string     `json:"id,omitempty"`
	InvoiceNumber *string     `json:"invoiceNumber,omitempty"`
	CustomerName  *string     `json:"customerName,omitempty"`
	Items         *[]BillItem `json:"items,omitempty"`
	// Accepted for wire compatibility with full-document clients; total is
	// always recomputed and date is fixed at creation.
	Total *Amount    `json:"total,omitempty"`
	Date  *time.Time `json:"date,omitempty"`
	// Server-owned fields a client echoes back when it PUTs a fetched bill.
	StoreID   *string    `json:"storeId,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

type BillCreateResponse struct {
	Success bool   `json:"success"`
	StoreID string `json:"storeId"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type NextInvoiceNumberResponse struct {
	InvoiceNumber string `json:"invoiceNumber"`
}

type ShareRequest struct {
	Channel   string `json:"channel"`
	Recipient string `json:"recipient,omitempty"`
}

type ShareResponse struct {
	Channel string `json:"channel"`
	Shared  bool   `json:"shared"`
	URL     string `json:"url,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type ShareChannelInfo struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

type ShareLinkResponse struct {
	Token     string `json:"token"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expiresAt"`
}

// OptionalText returns nil for blank input so absent and empty labels share
// one representation.
func OptionalText(raw string) *string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func NormalizeOptional(val *string) *string {
	if val == nil {
		return nil
	}
	return OptionalText(*val)
}

func CloneBill(b Bill) Bill {
	clone := b
	clone.Items = CloneItems(b.Items)
	return clone
}

func CloneItems(items []BillItem) []BillItem {
	if items == nil {
		return nil
	}
	out := make([]BillItem, len(items))
	for i, item := range items {
		out[i] = item
		if item.Unit != nil {
			unit := *item.Unit
			out[i].Unit = &unit
		}
		if item.Kg != nil {
			kg := *item.Kg
			out[i].Kg = &kg
		}
	}
	return out
}
