// Package storetest holds the behaviour every store.Repository backend must
// share. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/store"
)

func sampleBill(number string, customer string, date time.Time) domain.Bill {
	unit := "box"
	return domain.Bill{
		ID:            "client-" + number,
		InvoiceNumber: number,
		CustomerName:  customer,
		Items: []domain.BillItem{
			{ID: "1", Description: "Safety helmet", Unit: &unit, Price: domain.ParseAmount("45.50")},
			{ID: "2", Description: "Gloves", Price: domain.ParseAmount("12")},
		},
		Total: domain.ParseAmount("57.50"),
		Date:  date,
	}
}

// Run exercises the repository contract against a fresh, empty repository
// returned by newRepo.
func Run(t *testing.T, newRepo func(t *testing.T) store.Repository) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 12, 1, 9, 30, 0, 0, time.UTC)

	t.Run("create assigns identity and timestamps", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.CreateBill(ctx, sampleBill("100", "Acme", base))
		require.NoError(t, err)
		require.NotEmpty(t, created.StoreID)
		assert.False(t, created.CreatedAt.IsZero())
		assert.False(t, created.UpdatedAt.IsZero())

		got, err := repo.GetBill(ctx, created.StoreID)
		require.NoError(t, err)
		assert.Equal(t, "100", got.InvoiceNumber)
		assert.Equal(t, "Acme", got.CustomerName)
		assert.True(t, got.Total.Equal(domain.ParseAmount("57.50")))
		require.Len(t, got.Items, 2)
		require.NotNil(t, got.Items[0].Unit)
		assert.Equal(t, "box", *got.Items[0].Unit)
		assert.Nil(t, got.Items[0].Kg)
		assert.Nil(t, got.Items[1].Unit)
		assert.True(t, got.Date.Equal(base))
	})

	t.Run("duplicate invoice numbers are accepted", func(t *testing.T) {
		repo := newRepo(t)
		first, err := repo.CreateBill(ctx, sampleBill("100", "A", base))
		require.NoError(t, err)
		second, err := repo.CreateBill(ctx, sampleBill("100", "B", base))
		require.NoError(t, err)
		assert.NotEqual(t, first.StoreID, second.StoreID)
	})

	t.Run("list is ordered by date descending", func(t *testing.T) {
		repo := newRepo(t)
		for i, n := range []string{"100", "101", "102"} {
			_, err := repo.CreateBill(ctx, sampleBill(n, "C", base.Add(time.Duration(i)*time.Hour)))
			require.NoError(t, err)
		}

		bills, err := repo.ListBills(ctx)
		require.NoError(t, err)
		require.Len(t, bills, 3)
		assert.Equal(t, "102", bills[0].InvoiceNumber)
		assert.Equal(t, "101", bills[1].InvoiceNumber)
		assert.Equal(t, "100", bills[2].InvoiceNumber)
		for _, b := range bills {
			assert.NotEmpty(t, b.StoreID)
		}
	})

	t.Run("update replaces fields and keeps createdAt", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.CreateBill(ctx, sampleBill("100", "Before", base))
		require.NoError(t, err)

		changed := *created
		changed.CustomerName = "After"
		changed.Items = changed.Items[:1]
		changed.Total = domain.ParseAmount("45.50")
		updated, err := repo.UpdateBill(ctx, changed)
		require.NoError(t, err)
		assert.True(t, updated.CreatedAt.Equal(created.CreatedAt))
		assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

		got, err := repo.GetBill(ctx, created.StoreID)
		require.NoError(t, err)
		assert.Equal(t, "After", got.CustomerName)
		assert.Len(t, got.Items, 1)
		assert.True(t, got.Total.Equal(domain.ParseAmount("45.50")))
	})

	t.Run("missing ids report not found", func(t *testing.T) {
		repo := newRepo(t)
		missing := sampleBill("100", "Ghost", base)
		missing.StoreID = MissingID(repo)

		_, err := repo.UpdateBill(ctx, missing)
		assert.ErrorIs(t, err, store.ErrNotFound)

		err = repo.DeleteBill(ctx, missing.StoreID)
		assert.ErrorIs(t, err, store.ErrNotFound)

		_, err = repo.GetBill(ctx, missing.StoreID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("delete removes the record", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.CreateBill(ctx, sampleBill("100", "Gone", base))
		require.NoError(t, err)

		require.NoError(t, repo.DeleteBill(ctx, created.StoreID))
		bills, err := repo.ListBills(ctx)
		require.NoError(t, err)
		assert.Empty(t, bills)

		assert.ErrorIs(t, repo.DeleteBill(ctx, created.StoreID), store.ErrNotFound)
	})
}

// MissingID returns an identifier that is well-formed for the backend but not
// present in it.
func MissingID(repo store.Repository) string {
	if m, ok := repo.(interface{ MissingID() string }); ok {
		return m.MissingID()
	}
	return "bill-does-not-exist"
}
