// Package sqlite provides a SQLite-backed implementation of store.Repository
// for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	sqlitedriver "modernc.org/sqlite" // pure Go driver, no CGO
	sqlite3 "modernc.org/sqlite/lib"

	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/store"
	"billdesk/backend/internal/xid"
)

var _ store.Repository = (*Store)(nil)

// Fixed-width UTC timestamps keep lexical order equal to time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

type billRow struct {
	StoreID       string `db:"store_id"`
	ClientID      string `db:"client_id"`
	InvoiceNumber string `db:"invoice_number"`
	CustomerName  string `db:"customer_name"`
	Items         string `db:"items"`
	Total         string `db:"total"`
	BillDate      string `db:"bill_date"`
	CreatedAt     string `db:"created_at"`
	UpdatedAt     string `db:"updated_at"`
}

// New opens (creating if needed) the database at dbPath and applies the schema.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create database directory")
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "enable WAL")
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "run migrations")
	}

	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.Wrap(store.ErrUnavailable, err.Error())
	}
	return nil
}

func (s *Store) ListBills(ctx context.Context) ([]domain.Bill, error) {
	var rows []billRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT store_id, client_id, invoice_number, customer_name, items, total, bill_date, created_at, updated_at
		FROM bills
		ORDER BY bill_date DESC, created_at DESC
	`)
	if err != nil {
		return nil, classify(err, "list bills")
	}

	bills := make([]domain.Bill, 0, len(rows))
	for _, r := range rows {
		b, err := r.toBill()
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, nil
}

func (s *Store) GetBill(ctx context.Context, storeID string) (*domain.Bill, error) {
	var r billRow
	err := s.db.GetContext(ctx, &r, `
		SELECT store_id, client_id, invoice_number, customer_name, items, total, bill_date, created_at, updated_at
		FROM bills
		WHERE store_id = ?
	`, storeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, classify(err, "get bill")
	}

	b, err := r.toBill()
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) CreateBill(ctx context.Context, bill domain.Bill) (*domain.Bill, error) {
	now := s.now()
	bill.StoreID = xid.New("bill")
	bill.CreatedAt = now
	bill.UpdatedAt = now

	r, err := fromBill(bill)
	if err != nil {
		return nil, err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO bills (store_id, client_id, invoice_number, customer_name, items, total, bill_date, created_at, updated_at)
		VALUES (:store_id, :client_id, :invoice_number, :customer_name, :items, :total, :bill_date, :created_at, :updated_at)
	`, r)
	if err != nil {
		return nil, classify(err, "insert bill")
	}

	created := domain.CloneBill(bill)
	return &created, nil
}

func (s *Store) UpdateBill(ctx context.Context, bill domain.Bill) (*domain.Bill, error) {
	bill.UpdatedAt = s.now()
	r, err := fromBill(bill)
	if err != nil {
		return nil, err
	}

	var createdAt string
	err = s.db.QueryRowxContext(ctx, `
		UPDATE bills
		SET client_id = ?, invoice_number = ?, customer_name = ?, items = ?, total = ?, bill_date = ?, updated_at = ?
		WHERE store_id = ?
		RETURNING created_at
	`, r.ClientID, r.InvoiceNumber, r.CustomerName, r.Items, r.Total, r.BillDate, r.UpdatedAt, r.StoreID).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, classify(err, "update bill")
	}
	if bill.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	updated := domain.CloneBill(bill)
	return &updated, nil
}

func (s *Store) DeleteBill(ctx context.Context, storeID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bills WHERE store_id = ?`, storeID)
	if err != nil {
		return classify(err, "delete bill")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return classify(err, "delete bill")
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// classify wraps err with msg and marks lock, open and IO failures as
// store.ErrUnavailable.
func classify(err error, msg string) error {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return errors.Wrap(store.ErrUnavailable, msg+": "+err.Error())
	}
	var sqlErr *sqlitedriver.Error
	if errors.As(err, &sqlErr) {
		// Extended codes keep the primary code in the low byte.
		switch sqlErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CANTOPEN,
			sqlite3.SQLITE_IOERR, sqlite3.SQLITE_FULL:
			return errors.Wrap(store.ErrUnavailable, msg+": "+err.Error())
		}
	}
	return errors.Wrap(err, msg)
}

func fromBill(b domain.Bill) (billRow, error) {
	items := b.Items
	if items == nil {
		items = []domain.BillItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return billRow{}, errors.Wrap(err, "encode items")
	}
	return billRow{
		StoreID:       b.StoreID,
		ClientID:      b.ID,
		InvoiceNumber: b.InvoiceNumber,
		CustomerName:  b.CustomerName,
		Items:         string(raw),
		Total:         b.Total.String(),
		BillDate:      b.Date.UTC().Format(timeLayout),
		CreatedAt:     b.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:     b.UpdatedAt.UTC().Format(timeLayout),
	}, nil
}

func (r billRow) toBill() (domain.Bill, error) {
	b := domain.Bill{
		StoreID:       r.StoreID,
		ID:            r.ClientID,
		InvoiceNumber: r.InvoiceNumber,
		CustomerName:  r.CustomerName,
		Total:         domain.ParseAmount(r.Total),
	}
	if err := json.Unmarshal([]byte(r.Items), &b.Items); err != nil {
		return domain.Bill{}, errors.Wrapf(err, "decode items of %s", r.StoreID)
	}

	var err error
	if b.Date, err = parseTime(r.BillDate); err != nil {
		return domain.Bill{}, err
	}
	if b.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return domain.Bill{}, err
	}
	if b.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return domain.Bill{}, err
	}
	return b, nil
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse timestamp %q", raw)
	}
	return t.UTC(), nil
}
