package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/store"
)

func (a *API) handleListBills(w http.ResponseWriter, r *http.Request) {
	bills, err := a.service.ListBills(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	if bills == nil {
		bills = []domain.Bill{}
	}
	writeJSON(w, http.StatusOK, bills)
}

func (a *API) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	var bill domain.Bill
	if err := decodeJSON(r, &bill); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", store.ErrInvalidBill, err))
		return
	}
	created, err := a.service.CreateBill(r.Context(), bill)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.BillCreateResponse{Success: true, StoreID: created.StoreID})
}

func (a *API) handleNextInvoiceNumber(w http.ResponseWriter, r *http.Request) {
	next, err := a.service.NextInvoiceNumber(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NextInvoiceNumberResponse{InvoiceNumber: next})
}

func (a *API) handleGetBill(w http.ResponseWriter, r *http.Request) {
	bill, ok := a.loadBill(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (a *API) handleUpdateBill(w http.ResponseWriter, r *http.Request) {
	var req domain.BillUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", store.ErrInvalidBill, err))
		return
	}
	if _, err := a.service.UpdateBill(r.Context(), mux.Vars(r)["storeId"], req); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.SuccessResponse{Success: true})
}

func (a *API) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	storeID := mux.Vars(r)["storeId"]
	if err := a.service.DeleteBill(r.Context(), storeID); err != nil {
		writeFailure(w, err)
		return
	}
	a.exporter.Forget(r.Context(), storeID)
	writeJSON(w, http.StatusOK, domain.SuccessResponse{Success: true})
}

func (a *API) loadBill(w http.ResponseWriter, r *http.Request) (domain.Bill, bool) {
	bill, err := a.service.GetBill(r.Context(), mux.Vars(r)["storeId"])
	if err != nil {
		writeFailure(w, err)
		return domain.Bill{}, false
	}
	return bill, true
}
