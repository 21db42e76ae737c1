package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"billdesk/backend/internal/calculator"
	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/store"
	"billdesk/backend/internal/xid"
)

type Service struct {
	repo store.Repository
	now  func() time.Time
}

func New(repo store.Repository) *Service {
	return &Service{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// ListBills returns every bill, newest first, optionally narrowed by query.
func (s *Service) ListBills(ctx context.Context, query string) ([]domain.Bill, error) {
	bills, err := s.repo.ListBills(ctx)
	if err != nil {
		return nil, err
	}
	return FilterBills(bills, query), nil
}

// FilterBills keeps bills whose invoice number or customer name contains
// query, ignoring case. A blank query keeps everything.
func FilterBills(bills []domain.Bill, query string) []domain.Bill {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return bills
	}
	out := make([]domain.Bill, 0, len(bills))
	for _, b := range bills {
		if strings.Contains(strings.ToLower(b.InvoiceNumber), q) ||
			strings.Contains(strings.ToLower(b.CustomerName), q) {
			out = append(out, b)
		}
	}
	return out
}

func (s *Service) GetBill(ctx context.Context, storeID string) (domain.Bill, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return domain.Bill{}, store.ErrNotFound
	}
	b, err := s.repo.GetBill(ctx, storeID)
	if err != nil {
		return domain.Bill{}, err
	}
	return *b, nil
}

func (s *Service) NextInvoiceNumber(ctx context.Context) (string, error) {
	bills, err := s.repo.ListBills(ctx)
	if err != nil {
		return "", err
	}
	return calculator.NextInvoiceNumber(bills), nil
}

func (s *Service) CreateBill(ctx context.Context, bill domain.Bill) (domain.Bill, error) {
	bill.StoreID = ""
	bill.InvoiceNumber = strings.TrimSpace(bill.InvoiceNumber)
	bill.CustomerName = strings.TrimSpace(bill.CustomerName)
	if len(bill.Items) == 0 {
		return domain.Bill{}, fmt.Errorf("%w: at least one item is required", store.ErrInvalidBill)
	}
	bill.Items = normalizeItems(bill.Items)

	if bill.InvoiceNumber == "" {
		next, err := s.NextInvoiceNumber(ctx)
		if err != nil {
			return domain.Bill{}, err
		}
		bill.InvoiceNumber = next
	}
	if bill.ID == "" {
		bill.ID = xid.New("client")
	}
	if bill.Date.IsZero() {
		bill.Date = s.now()
	}
	bill = calculator.WithTotal(bill)

	created, err := s.repo.CreateBill(ctx, bill)
	if err != nil {
		return domain.Bill{}, err
	}
	slog.Info("bill created",
		"store_id", created.StoreID,
		"invoice_number", created.InvoiceNumber,
		"items", len(created.Items),
		"total", created.Total.Format(),
	)
	return *created, nil
}

// UpdateBill merges req onto the stored bill. Absent fields keep their stored
// value; the date never changes and the total is always recomputed.
func (s *Service) UpdateBill(ctx context.Context, storeID string, req domain.BillUpdateRequest) (domain.Bill, error) {
	existing, err := s.GetBill(ctx, storeID)
	if err != nil {
		return domain.Bill{}, err
	}

	updated := domain.CloneBill(existing)
	if req.ID != nil {
		updated.ID = *req.ID
	}
	if req.InvoiceNumber != nil {
		updated.InvoiceNumber = strings.TrimSpace(*req.InvoiceNumber)
	}
	if req.CustomerName != nil {
		updated.CustomerName = strings.TrimSpace(*req.CustomerName)
	}
	if req.Items != nil {
		if len(*req.Items) == 0 {
			return domain.Bill{}, fmt.Errorf("%w: at least one item is required", store.ErrInvalidBill)
		}
		updated.Items = normalizeItems(*req.Items)
	}
	updated = calculator.WithTotal(updated)

	saved, err := s.repo.UpdateBill(ctx, updated)
	if err != nil {
		return domain.Bill{}, err
	}
	slog.Info("bill updated",
		"store_id", saved.StoreID,
		"invoice_number", saved.InvoiceNumber,
		"total", saved.Total.Format(),
	)
	return *saved, nil
}

func (s *Service) DeleteBill(ctx context.Context, storeID string) error {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return store.ErrNotFound
	}
	if err := s.repo.DeleteBill(ctx, storeID); err != nil {
		return err
	}
	slog.Info("bill deleted", "store_id", storeID)
	return nil
}

func normalizeItems(items []domain.BillItem) []domain.BillItem {
	out := domain.CloneItems(items)
	seen := make(map[string]bool, len(out))
	for i := range out {
		out[i].Description = strings.TrimSpace(out[i].Description)
		out[i].Unit = domain.NormalizeOptional(out[i].Unit)
		out[i].Kg = domain.NormalizeOptional(out[i].Kg)
		if out[i].ID == "" || seen[out[i].ID] {
			out[i].ID = xid.New("item")
		}
		seen[out[i].ID] = true
	}
	return out
}
