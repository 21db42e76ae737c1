package store

import (
	"context"
	"errors"

	"billdesk/backend/internal/domain"
)

var (
	ErrNotFound    = errors.New("bill not found")
	ErrUnavailable = errors.New("bill store unavailable")
	ErrInvalidBill = errors.New("invalid bill")
)

// Repository is the durable collection of bills keyed by StoreID.
type Repository interface {
	// ListBills returns every bill ordered by Date, newest first.
	ListBills(ctx context.Context) ([]domain.Bill, error)
	GetBill(ctx context.Context, storeID string) (*domain.Bill, error)
	// CreateBill assigns StoreID and stamps CreatedAt/UpdatedAt.
	CreateBill(ctx context.Context, bill domain.Bill) (*domain.Bill, error)
	// UpdateBill replaces the stored document, keeping CreatedAt and stamping UpdatedAt.
	UpdateBill(ctx context.Context, bill domain.Bill) (*domain.Bill, error)
	DeleteBill(ctx context.Context, storeID string) error
	Ping(ctx context.Context) error
	Close() error
}
