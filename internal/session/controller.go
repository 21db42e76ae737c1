// Package session drives one operator's bill editing flow: browse the list,
// draft a new or existing bill, preview it, save it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"billdesk/backend/internal/calculator"
	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/store"
	"billdesk/backend/internal/xid"
)

var (
	// ErrBusy is returned for any mutation while a save or delete is in flight.
	ErrBusy         = errors.New("a store operation is already in progress")
	ErrInvalidState = errors.New("operation not allowed in the current state")
	ErrNumberLocked = errors.New("invoice number is assigned automatically for new bills")
	ErrUnknownItem  = errors.New("no such item in the draft")
)

type State int

const (
	StateList State = iota
	StateDraft
	StatePreview
)

func (s State) String() string {
	switch s {
	case StateList:
		return "list"
	case StateDraft:
		return "draft"
	case StatePreview:
		return "preview"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Store is the remote bill collection the controller works against.
type Store interface {
	ListBills(ctx context.Context, query string) ([]domain.Bill, error)
	CreateBill(ctx context.Context, bill domain.Bill) (string, error)
	UpdateBill(ctx context.Context, storeID string, bill domain.Bill) error
	DeleteBill(ctx context.Context, storeID string) error
}

// ItemEdit changes the fields that are non-nil. Price is free-form input and
// coerces to zero when it is not a number.
type ItemEdit struct {
	Description *string
	Unit        *string
	Kg          *string
	Price       *string
}

type Controller struct {
	store Store
	now   func() time.Time

	mu    sync.Mutex
	busy  bool
	state State
	query string
	bills []domain.Bill

	// editing is the store ID of the bill being edited; empty for a new bill.
	editing string
	draft   domain.Bill
	preview domain.Bill
	// fromDraft marks a preview of the unsaved draft rather than a stored bill.
	fromDraft bool
}

func New(s Store) *Controller {
	return &Controller{
		store: s,
		now:   func() time.Time { return time.Now().UTC() },
		state: StateList,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Editing reports whether the draft belongs to an existing bill.
func (c *Controller) Editing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editing != ""
}

func (c *Controller) Bills() []domain.Bill {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Bill, len(c.bills))
	for i, b := range c.bills {
		out[i] = domain.CloneBill(b)
	}
	return out
}

// Draft returns a copy of the bill under edit with its current total.
func (c *Controller) Draft() domain.Bill {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.CloneBill(c.draft)
}

// PreviewingDraft reports whether the preview shows the unsaved draft.
func (c *Controller) PreviewingDraft() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StatePreview && c.fromDraft
}

// Previewed returns the snapshot shown in the preview state.
func (c *Controller) Previewed() domain.Bill {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.CloneBill(c.preview)
}

// Refresh reloads the list with the current search query.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	query := c.query
	c.mu.Unlock()
	return c.reload(ctx, query)
}

// Search narrows the list to bills whose invoice number or customer name
// contains query.
func (c *Controller) Search(ctx context.Context, query string) error {
	c.mu.Lock()
	c.query = strings.TrimSpace(query)
	c.mu.Unlock()
	return c.Refresh(ctx)
}

func (c *Controller) reload(ctx context.Context, query string) error {
	bills, err := c.store.ListBills(ctx, query)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.bills = bills
	c.mu.Unlock()
	return nil
}

// StartNew re-lists the store and opens a blank draft whose invoice number is
// the next free one. The number stays locked for the life of the draft.
func (c *Controller) StartNew(ctx context.Context) error {
	if err := c.enter(StateList); err != nil {
		return err
	}
	all, err := c.store.ListBills(ctx, "")
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}
	c.query = ""
	c.bills = all
	c.editing = ""
	c.draft = domain.Bill{
		InvoiceNumber: calculator.NextInvoiceNumber(all),
		Items:         []domain.BillItem{blankItem()},
	}
	c.draft = calculator.WithTotal(c.draft)
	c.state = StateDraft
	return nil
}

// StartEdit opens a draft over an existing bill.
func (c *Controller) StartEdit(bill domain.Bill) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(StateList); err != nil {
		return err
	}
	if bill.StoreID == "" {
		return fmt.Errorf("%w: bill has no store id", store.ErrNotFound)
	}
	c.editing = bill.StoreID
	c.draft = calculator.WithTotal(domain.CloneBill(bill))
	if len(c.draft.Items) == 0 {
		c.draft.Items = []domain.BillItem{blankItem()}
	}
	c.state = StateDraft
	return nil
}

// View shows a stored bill without editing it.
func (c *Controller) View(bill domain.Bill) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(StateList); err != nil {
		return err
	}
	c.preview = calculator.WithTotal(domain.CloneBill(bill))
	c.fromDraft = false
	c.state = StatePreview
	return nil
}

func (c *Controller) SetCustomer(name string) error {
	return c.mutateDraft(func(d *domain.Bill) error {
		d.CustomerName = name
		return nil
	})
}

// SetInvoiceNumber is only allowed while editing an existing bill.
func (c *Controller) SetInvoiceNumber(number string) error {
	c.mu.Lock()
	editing := c.editing
	c.mu.Unlock()
	if editing == "" {
		return ErrNumberLocked
	}
	return c.mutateDraft(func(d *domain.Bill) error {
		d.InvoiceNumber = strings.TrimSpace(number)
		return nil
	})
}

// AddItem appends a blank item and returns its ID.
func (c *Controller) AddItem() (string, error) {
	item := blankItem()
	err := c.mutateDraft(func(d *domain.Bill) error {
		d.Items = append(d.Items, item)
		return nil
	})
	if err != nil {
		return "", err
	}
	return item.ID, nil
}

// RemoveItem drops the item unless it is the only one left.
func (c *Controller) RemoveItem(id string) error {
	return c.mutateDraft(func(d *domain.Bill) error {
		idx := indexOf(d.Items, id)
		if idx < 0 {
			return ErrUnknownItem
		}
		if len(d.Items) <= 1 {
			return nil
		}
		d.Items = append(d.Items[:idx], d.Items[idx+1:]...)
		return nil
	})
}

func (c *Controller) EditItem(id string, edit ItemEdit) error {
	return c.mutateDraft(func(d *domain.Bill) error {
		idx := indexOf(d.Items, id)
		if idx < 0 {
			return ErrUnknownItem
		}
		item := &d.Items[idx]
		if edit.Description != nil {
			item.Description = *edit.Description
		}
		if edit.Unit != nil {
			item.Unit = domain.OptionalText(*edit.Unit)
		}
		if edit.Kg != nil {
			item.Kg = domain.OptionalText(*edit.Kg)
		}
		if edit.Price != nil {
			item.Price = domain.ParseAmount(*edit.Price)
		}
		return nil
	})
}

// Preview snapshots the draft without saving it. The draft is kept: Back
// returns to it and Save stores it.
func (c *Controller) Preview() (domain.Bill, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(StateDraft); err != nil {
		return domain.Bill{}, err
	}
	snapshot := calculator.WithTotal(domain.CloneBill(c.draft))
	if snapshot.Date.IsZero() {
		snapshot.Date = c.now()
	}
	c.preview = snapshot
	c.fromDraft = true
	c.state = StatePreview
	return domain.CloneBill(snapshot), nil
}

// Save creates or updates the draft, from the form or from its preview,
// re-lists, and shows the saved bill. On
// failure the draft and the state are left untouched so the caller can retry.
// Updating a bill that no longer exists refreshes the list and returns
// store.ErrNotFound.
func (c *Controller) Save(ctx context.Context) (domain.Bill, error) {
	c.mu.Lock()
	if err := c.checkDraft(); err != nil {
		c.mu.Unlock()
		return domain.Bill{}, err
	}
	c.busy = true
	editing := c.editing
	bill := calculator.WithTotal(domain.CloneBill(c.draft))
	query := c.query
	c.mu.Unlock()

	if bill.Date.IsZero() {
		bill.Date = c.now()
	}

	var err error
	if editing != "" {
		bill.StoreID = editing
		err = c.store.UpdateBill(ctx, editing, bill)
	} else {
		if bill.ID == "" {
			bill.ID = xid.New("client")
		}
		bill.StoreID, err = c.store.CreateBill(ctx, bill)
	}

	if err != nil {
		if editing != "" && errors.Is(err, store.ErrNotFound) {
			if rerr := c.reload(ctx, query); rerr != nil {
				slog.Warn("refresh after missing bill failed", "error", rerr)
			}
		}
		c.release()
		return domain.Bill{}, err
	}

	bills, listErr := c.store.ListBills(ctx, query)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	if listErr == nil {
		c.bills = bills
	} else {
		slog.Warn("refresh after save failed", "error", listErr)
	}
	c.editing = ""
	c.draft = domain.Bill{}
	c.preview = bill
	c.fromDraft = false
	c.state = StatePreview
	return domain.CloneBill(bill), nil
}

// Back returns from a draft preview to the draft with its edits intact. From
// anywhere else it discards unsaved changes and re-lists.
func (c *Controller) Back(ctx context.Context) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.state == StatePreview && c.fromDraft {
		c.fromDraft = false
		c.preview = domain.Bill{}
		c.state = StateDraft
		c.mu.Unlock()
		return nil
	}
	c.fromDraft = false
	c.state = StateList
	c.editing = ""
	c.draft = domain.Bill{}
	c.preview = domain.Bill{}
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// Delete removes a bill from the list view. A bill that is already gone is
// not an error; the list is refreshed either way.
func (c *Controller) Delete(ctx context.Context, storeID string) error {
	c.mu.Lock()
	if err := c.check(StateList); err != nil {
		c.mu.Unlock()
		return err
	}
	c.busy = true
	query := c.query
	c.mu.Unlock()

	err := c.store.DeleteBill(ctx, storeID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		c.release()
		return err
	}
	if err != nil {
		slog.Info("bill already deleted", "store_id", storeID)
	}

	c.release()
	return c.reload(ctx, query)
}

func (c *Controller) release() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

// enter checks the state without holding the lock across a store call.
func (c *Controller) enter(want State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.check(want)
}

// check must be called with mu held.
func (c *Controller) check(want State) error {
	if c.busy {
		return ErrBusy
	}
	if c.state != want {
		return fmt.Errorf("%w: in %s, need %s", ErrInvalidState, c.state, want)
	}
	return nil
}

// checkDraft accepts the draft form and the preview of that draft.
func (c *Controller) checkDraft() error {
	if c.state == StatePreview && c.fromDraft && !c.busy {
		return nil
	}
	return c.check(StateDraft)
}

func (c *Controller) mutateDraft(fn func(d *domain.Bill) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(StateDraft); err != nil {
		return err
	}
	next := domain.CloneBill(c.draft)
	if err := fn(&next); err != nil {
		return err
	}
	c.draft = calculator.WithTotal(next)
	return nil
}

func blankItem() domain.BillItem {
	return domain.BillItem{ID: xid.New("item")}
}

func indexOf(items []domain.BillItem, id string) int {
	for i, item := range items {
		if item.ID == id {
			return i
		}
	}
	return -1
}
