package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/store"
	"billdesk/backend/internal/xid"
)

type Store struct {
	mu    sync.RWMutex
	bills map[string]domain.Bill
	now   func() time.Time
}

func New() *Store {
	return &Store{
		bills: make(map[string]domain.Bill),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// NewSeeded returns a store preloaded with the given bills; missing store IDs
// are generated.
func NewSeeded(bills ...domain.Bill) *Store {
	s := New()
	for _, b := range bills {
		if b.StoreID == "" {
			b.StoreID = xid.New("bill")
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = s.now()
		}
		if b.UpdatedAt.IsZero() {
			b.UpdatedAt = b.CreatedAt
		}
		s.bills[b.StoreID] = domain.CloneBill(b)
	}
	return s
}

func (s *Store) ListBills(_ context.Context) ([]domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Bill, 0, len(s.bills))
	for _, b := range s.bills {
		result = append(result, domain.CloneBill(b))
	}
	slices.SortFunc(result, func(a, b domain.Bill) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return result, nil
}

func (s *Store) GetBill(_ context.Context, storeID string) (*domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bills[storeID]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := domain.CloneBill(b)
	return &clone, nil
}

func (s *Store) CreateBill(_ context.Context, bill domain.Bill) (*domain.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	bill.StoreID = xid.New("bill")
	bill.CreatedAt = now
	bill.UpdatedAt = now
	s.bills[bill.StoreID] = domain.CloneBill(bill)

	saved := domain.CloneBill(bill)
	return &saved, nil
}

func (s *Store) UpdateBill(_ context.Context, bill domain.Bill) (*domain.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.bills[bill.StoreID]
	if !ok {
		return nil, store.ErrNotFound
	}
	bill.CreatedAt = existing.CreatedAt
	bill.UpdatedAt = s.now()
	s.bills[bill.StoreID] = domain.CloneBill(bill)

	saved := domain.CloneBill(bill)
	return &saved, nil
}

func (s *Store) DeleteBill(_ context.Context, storeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bills[storeID]; !ok {
		return store.ErrNotFound
	}
	delete(s.bills, storeID)
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}
