package sqlite

import "github.com/jmoiron/sqlx"

// schema runs on every open; statements must stay idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS bills (
    store_id TEXT PRIMARY KEY,
    client_id TEXT NOT NULL DEFAULT '',
    invoice_number TEXT NOT NULL DEFAULT '',
    customer_name TEXT NOT NULL DEFAULT '',
    items TEXT NOT NULL DEFAULT '[]',
    total TEXT NOT NULL DEFAULT '0',
    bill_date TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bills_bill_date ON bills(bill_date DESC);
`

func runMigrations(db *sqlx.DB) error {
	_, err := db.Exec(schema)
	return err
}
