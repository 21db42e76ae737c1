package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/store"
	"billdesk/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

const billColumns = `store_id, client_id, invoice_number, customer_name, items, total, bill_date, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(row rowScanner) (domain.Bill, error) {
	var b domain.Bill
	var itemsRaw []byte
	if err := row.Scan(
		&b.StoreID,
		&b.ID,
		&b.InvoiceNumber,
		&b.CustomerName,
		&itemsRaw,
		&b.Total.Decimal,
		&b.Date,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return domain.Bill{}, err
	}
	b.Date = b.Date.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	if len(itemsRaw) > 0 {
		if err := json.Unmarshal(itemsRaw, &b.Items); err != nil {
			return domain.Bill{}, err
		}
	}
	return b, nil
}

func (s *Store) ListBills(ctx context.Context) ([]domain.Bill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+billColumns+`
		FROM bills
		ORDER BY bill_date DESC, created_at DESC
	`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	bills := make([]domain.Bill, 0, 64)
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return bills, nil
}

func (s *Store) GetBill(ctx context.Context, storeID string) (*domain.Bill, error) {
	b, err := scanBill(s.db.QueryRowContext(ctx, `
		SELECT `+billColumns+`
		FROM bills
		WHERE store_id = $1
	`, storeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, classify(err)
	}
	return &b, nil
}

func (s *Store) CreateBill(ctx context.Context, bill domain.Bill) (*domain.Bill, error) {
	itemsJSON, err := json.Marshal(itemsOrEmpty(bill.Items))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	bill.StoreID = xid.New("bill")
	bill.CreatedAt = now
	bill.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bills (`+billColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, bill.StoreID, bill.ID, bill.InvoiceNumber, bill.CustomerName, itemsJSON,
		bill.Total.Decimal, bill.Date.UTC(), bill.CreatedAt, bill.UpdatedAt)
	if err != nil {
		return nil, classify(err)
	}

	created := bill
	return &created, nil
}

func (s *Store) UpdateBill(ctx context.Context, bill domain.Bill) (*domain.Bill, error) {
	itemsJSON, err := json.Marshal(itemsOrEmpty(bill.Items))
	if err != nil {
		return nil, err
	}

	bill.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	err = s.db.QueryRowContext(ctx, `
		UPDATE bills
		SET client_id = $2, invoice_number = $3, customer_name = $4, items = $5,
			total = $6, bill_date = $7, updated_at = $8
		WHERE store_id = $1
		RETURNING created_at
	`, bill.StoreID, bill.ID, bill.InvoiceNumber, bill.CustomerName, itemsJSON,
		bill.Total.Decimal, bill.Date.UTC(), bill.UpdatedAt).Scan(&bill.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, classify(err)
	}
	bill.CreatedAt = bill.CreatedAt.UTC()

	updated := bill
	return &updated, nil
}

func (s *Store) DeleteBill(ctx context.Context, storeID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bills WHERE store_id = $1`, storeID)
	if err != nil {
		return classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func itemsOrEmpty(items []domain.BillItem) []domain.BillItem {
	if items == nil {
		return []domain.BillItem{}
	}
	return items
}

// classify marks connectivity failures as store.ErrUnavailable and leaves
// statement errors untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) || errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}
