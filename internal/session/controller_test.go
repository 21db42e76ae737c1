package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/service"
	"billdesk/backend/internal/store"
	"billdesk/backend/internal/store/memory"
)

// serviceStore adapts the in-process service to the controller's Store.
type serviceStore struct {
	svc *service.Service

	mu        sync.Mutex
	failWrite error
	gate      chan struct{}
}

func (s *serviceStore) ListBills(ctx context.Context, query string) ([]domain.Bill, error) {
	return s.svc.ListBills(ctx, query)
}

func (s *serviceStore) CreateBill(ctx context.Context, bill domain.Bill) (string, error) {
	if err := s.beforeWrite(); err != nil {
		return "", err
	}
	created, err := s.svc.CreateBill(ctx, bill)
	return created.StoreID, err
}

func (s *serviceStore) UpdateBill(ctx context.Context, storeID string, bill domain.Bill) error {
	if err := s.beforeWrite(); err != nil {
		return err
	}
	items := bill.Items
	_, err := s.svc.UpdateBill(ctx, storeID, domain.BillUpdateRequest{
		InvoiceNumber: &bill.InvoiceNumber,
		CustomerName:  &bill.CustomerName,
		Items:         &items,
	})
	return err
}

func (s *serviceStore) DeleteBill(ctx context.Context, storeID string) error {
	if err := s.beforeWrite(); err != nil {
		return err
	}
	return s.svc.DeleteBill(ctx, storeID)
}

func (s *serviceStore) beforeWrite() error {
	s.mu.Lock()
	gate, fail := s.gate, s.failWrite
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return fail
}

func newController(seed ...domain.Bill) (*Controller, *serviceStore) {
	st := &serviceStore{svc: service.New(memory.NewSeeded(seed...))}
	return New(st), st
}

func str(s string) *string { return &s }

func TestStartNewLocksNextNumberWithOneBlankItem(t *testing.T) {
	c, _ := newController(
		domain.Bill{StoreID: "a", InvoiceNumber: "105", Items: []domain.BillItem{{ID: "1"}}},
		domain.Bill{StoreID: "b", InvoiceNumber: "abc", Items: []domain.BillItem{{ID: "1"}}},
	)
	require.NoError(t, c.StartNew(context.Background()))

	assert.Equal(t, StateDraft, c.State())
	draft := c.Draft()
	assert.Equal(t, "106", draft.InvoiceNumber)
	assert.Len(t, draft.Items, 1)
	assert.Len(t, c.Bills(), 2)
	assert.ErrorIs(t, c.SetInvoiceNumber("999"), ErrNumberLocked)
}

func TestDraftEditsRecomputeTotal(t *testing.T) {
	c, _ := newController()
	require.NoError(t, c.StartNew(context.Background()))

	first := c.Draft().Items[0].ID
	require.NoError(t, c.EditItem(first, ItemEdit{Description: str("Helmet"), Price: str("40")}))
	second, err := c.AddItem()
	require.NoError(t, err)
	require.NoError(t, c.EditItem(second, ItemEdit{Description: str("Vest"), Unit: str(" "), Kg: str("3"), Price: str("12.5")}))
	assert.Equal(t, "52.50", c.Draft().Total.Format())

	require.NoError(t, c.EditItem(second, ItemEdit{Price: str("abc")}))
	assert.Equal(t, "40.00", c.Draft().Total.Format())

	draft := c.Draft()
	assert.Nil(t, draft.Items[1].Unit)
	require.NotNil(t, draft.Items[1].Kg)
	assert.Equal(t, "3", *draft.Items[1].Kg)

	require.NoError(t, c.RemoveItem(first))
	assert.Len(t, c.Draft().Items, 1)
	assert.Equal(t, "0.00", c.Draft().Total.Format())

	// The last item cannot be removed.
	require.NoError(t, c.RemoveItem(second))
	assert.Len(t, c.Draft().Items, 1)

	assert.ErrorIs(t, c.RemoveItem("missing"), ErrUnknownItem)
}

func TestPreviewDoesNotPersist(t *testing.T) {
	c, st := newController()
	ctx := context.Background()
	require.NoError(t, c.StartNew(ctx))
	require.NoError(t, c.SetCustomer("Acme"))

	snapshot, err := c.Preview()
	require.NoError(t, err)
	assert.Equal(t, StatePreview, c.State())
	assert.Equal(t, "Acme", snapshot.CustomerName)
	assert.False(t, snapshot.Date.IsZero())

	bills, err := st.ListBills(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, bills)
}

func TestBackFromDraftPreviewResumesDraft(t *testing.T) {
	c, _ := newController()
	ctx := context.Background()
	require.NoError(t, c.StartNew(ctx))
	require.NoError(t, c.SetCustomer("Acme"))
	id := c.Draft().Items[0].ID
	require.NoError(t, c.EditItem(id, ItemEdit{Description: str("Gloves"), Price: str("8")}))

	_, err := c.Preview()
	require.NoError(t, err)
	assert.True(t, c.PreviewingDraft())
	assert.ErrorIs(t, c.SetCustomer("blocked"), ErrInvalidState)

	require.NoError(t, c.Back(ctx))
	assert.Equal(t, StateDraft, c.State())
	draft := c.Draft()
	assert.Equal(t, "Acme", draft.CustomerName)
	assert.Equal(t, "100", draft.InvoiceNumber)
	assert.Equal(t, "8.00", draft.Total.Format())

	require.NoError(t, c.SetCustomer("Acme Ltd"))
	assert.Equal(t, "Acme Ltd", c.Draft().CustomerName)
}

func TestSaveFromDraftPreview(t *testing.T) {
	c, st := newController()
	ctx := context.Background()
	require.NoError(t, c.StartNew(ctx))
	require.NoError(t, c.SetCustomer("Acme"))

	_, err := c.Preview()
	require.NoError(t, err)
	saved, err := c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Acme", saved.CustomerName)
	assert.NotEmpty(t, saved.StoreID)
	assert.Equal(t, StatePreview, c.State())
	assert.False(t, c.PreviewingDraft())

	bills, err := st.ListBills(ctx, "")
	require.NoError(t, err)
	require.Len(t, bills, 1)

	// The saved preview has no draft behind it.
	_, err = c.Save(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)
	require.NoError(t, c.Back(ctx))
	assert.Equal(t, StateList, c.State())
}

func TestBackFromStoredBillPreviewGoesToList(t *testing.T) {
	c, _ := newController(domain.Bill{StoreID: "bill-1", InvoiceNumber: "120", Items: []domain.BillItem{{ID: "1"}}})
	ctx := context.Background()
	require.NoError(t, c.Refresh(ctx))
	require.NoError(t, c.View(c.Bills()[0]))
	assert.False(t, c.PreviewingDraft())

	_, err := c.Save(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)
	require.NoError(t, c.Back(ctx))
	assert.Equal(t, StateList, c.State())
}

func TestSaveNewBillRoundTrip(t *testing.T) {
	c, _ := newController()
	ctx := context.Background()
	require.NoError(t, c.StartNew(ctx))
	require.NoError(t, c.SetCustomer("Tabuk Steel"))
	id := c.Draft().Items[0].ID
	require.NoError(t, c.EditItem(id, ItemEdit{Description: str("Cone"), Unit: str("pcs"), Price: str("5")}))

	saved, err := c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatePreview, c.State())
	assert.NotEmpty(t, saved.StoreID)
	assert.Equal(t, saved, c.Previewed())

	bills := c.Bills()
	require.Len(t, bills, 1)
	got := bills[0]
	assert.Equal(t, "100", got.InvoiceNumber)
	assert.Equal(t, "Tabuk Steel", got.CustomerName)
	assert.Equal(t, "5.00", got.Total.Format())
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Cone", got.Items[0].Description)
	assert.Equal(t, "pcs", *got.Items[0].Unit)

	require.NoError(t, c.Back(ctx))
	assert.Equal(t, StateList, c.State())
}

func TestEditKeepsNumberUnlessChanged(t *testing.T) {
	date := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	c, _ := newController(domain.Bill{
		StoreID: "bill-1", InvoiceNumber: "120", CustomerName: "Before", Date: date,
		Items: []domain.BillItem{{ID: "1", Description: "Rope", Price: domain.ParseAmount("10")}},
	})
	ctx := context.Background()
	require.NoError(t, c.Refresh(ctx))

	require.NoError(t, c.StartEdit(c.Bills()[0]))
	assert.True(t, c.Editing())
	require.NoError(t, c.SetCustomer("After"))
	saved, err := c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, "120", saved.InvoiceNumber)
	assert.Equal(t, "After", c.Bills()[0].CustomerName)

	require.NoError(t, c.Back(ctx))
	require.NoError(t, c.StartEdit(c.Bills()[0]))
	require.NoError(t, c.SetInvoiceNumber("121"))
	_, err = c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, "121", c.Bills()[0].InvoiceNumber)
	assert.True(t, c.Bills()[0].Date.Equal(date))
}

func TestFailedSaveKeepsDraft(t *testing.T) {
	c, st := newController()
	ctx := context.Background()
	require.NoError(t, c.StartNew(ctx))
	require.NoError(t, c.SetCustomer("Retry Co"))

	st.failWrite = fmt.Errorf("%w: connection refused", store.ErrUnavailable)
	_, err := c.Save(ctx)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Equal(t, StateDraft, c.State())
	assert.Equal(t, "Retry Co", c.Draft().CustomerName)

	st.failWrite = nil
	_, err = c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatePreview, c.State())
}

func TestUpdateOfDeletedBillRefreshesList(t *testing.T) {
	c, st := newController(domain.Bill{StoreID: "bill-1", InvoiceNumber: "120", Items: []domain.BillItem{{ID: "1"}}})
	ctx := context.Background()
	require.NoError(t, c.Refresh(ctx))
	require.NoError(t, c.StartEdit(c.Bills()[0]))

	require.NoError(t, st.svc.DeleteBill(ctx, "bill-1"))
	_, err := c.Save(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, c.Bills())
	assert.Equal(t, StateDraft, c.State())
}

func TestDeleteMissingBillIsBenign(t *testing.T) {
	c, _ := newController(domain.Bill{StoreID: "bill-1", InvoiceNumber: "120", Items: []domain.BillItem{{ID: "1"}}})
	ctx := context.Background()

	require.NoError(t, c.Delete(ctx, "bill-1"))
	assert.Empty(t, c.Bills())
	require.NoError(t, c.Delete(ctx, "bill-1"))
	assert.Equal(t, StateList, c.State())
}

func TestMutationsDuringSaveReturnBusy(t *testing.T) {
	c, st := newController()
	ctx := context.Background()
	require.NoError(t, c.StartNew(ctx))

	gate := make(chan struct{})
	st.mu.Lock()
	st.gate = gate
	st.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := c.Save(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool {
		return c.SetCustomer("late") == ErrBusy
	}, time.Second, time.Millisecond)
	_, err := c.AddItem()
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, c.Back(ctx), ErrBusy)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, StatePreview, c.State())
}

func TestSearchNarrowsList(t *testing.T) {
	c, _ := newController(
		domain.Bill{StoreID: "a", InvoiceNumber: "130", CustomerName: "Tabuk Steel", Items: []domain.BillItem{{ID: "1"}}},
		domain.Bill{StoreID: "b", InvoiceNumber: "131", CustomerName: "Red Sea", Items: []domain.BillItem{{ID: "1"}}},
	)
	ctx := context.Background()
	require.NoError(t, c.Search(ctx, "red"))
	require.Len(t, c.Bills(), 1)
	assert.Equal(t, "131", c.Bills()[0].InvoiceNumber)

	// Numbering ignores the active search.
	require.NoError(t, c.StartNew(ctx))
	assert.Equal(t, "132", c.Draft().InvoiceNumber)
}

func TestInvalidTransitions(t *testing.T) {
	c, _ := newController()
	ctx := context.Background()

	_, err := c.Preview()
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = c.Save(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, c.SetCustomer("x"), ErrInvalidState)

	require.NoError(t, c.StartNew(ctx))
	assert.ErrorIs(t, c.Delete(ctx, "a"), ErrInvalidState)
	assert.ErrorIs(t, c.StartNew(ctx), ErrInvalidState)
}
