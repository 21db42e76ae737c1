// Package client talks to the bill HTTP API. Transport failures and 5xx
// answers surface as store.ErrUnavailable, 404 as store.ErrNotFound.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/store"
)

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the API rooted at baseURL. A nil httpClient gets
// a 30 second timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// StatusError is a non-2xx answer. It unwraps to the store sentinel matching
// its status, if any.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("bill api: status %d", e.Status)
	}
	return fmt.Sprintf("bill api: status %d: %s", e.Status, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound:
		return store.ErrNotFound
	case e.Status == http.StatusBadRequest:
		return store.ErrInvalidBill
	case e.Status >= 500:
		return store.ErrUnavailable
	default:
		return nil
	}
}

func (c *Client) ListBills(ctx context.Context, query string) ([]domain.Bill, error) {
	path := "/bills"
	if q := strings.TrimSpace(query); q != "" {
		path += "?q=" + url.QueryEscape(q)
	}
	var bills []domain.Bill
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &bills); err != nil {
		return nil, err
	}
	return bills, nil
}

func (c *Client) GetBill(ctx context.Context, storeID string) (domain.Bill, error) {
	var bill domain.Bill
	if err := c.doJSON(ctx, http.MethodGet, billPath(storeID), nil, &bill); err != nil {
		return domain.Bill{}, err
	}
	return bill, nil
}

// CreateBill stores bill and returns the assigned store ID.
func (c *Client) CreateBill(ctx context.Context, bill domain.Bill) (string, error) {
	bill.StoreID = ""
	var resp domain.BillCreateResponse
	if err := c.doJSON(ctx, http.MethodPost, "/bills", bill, &resp); err != nil {
		return "", err
	}
	if !resp.Success || resp.StoreID == "" {
		return "", fmt.Errorf("%w: create returned no store id", store.ErrUnavailable)
	}
	return resp.StoreID, nil
}

// UpdateBill replaces the editable fields of the stored bill.
func (c *Client) UpdateBill(ctx context.Context, storeID string, bill domain.Bill) error {
	items := domain.CloneItems(bill.Items)
	req := domain.BillUpdateRequest{
		ID:            &bill.ID,
		InvoiceNumber: &bill.InvoiceNumber,
		CustomerName:  &bill.CustomerName,
		Items:         &items,
		Total:         &bill.Total,
	}
	return c.doJSON(ctx, http.MethodPut, billPath(storeID), req, &domain.SuccessResponse{})
}

func (c *Client) DeleteBill(ctx context.Context, storeID string) error {
	return c.doJSON(ctx, http.MethodDelete, billPath(storeID), nil, &domain.SuccessResponse{})
}

func (c *Client) NextInvoiceNumber(ctx context.Context) (string, error) {
	var resp domain.NextInvoiceNumberResponse
	if err := c.doJSON(ctx, http.MethodGet, "/bills/next-invoice-number", nil, &resp); err != nil {
		return "", err
	}
	return resp.InvoiceNumber, nil
}

func (c *Client) ShareMessage(ctx context.Context, storeID string) (string, error) {
	body, _, err := c.fetch(ctx, billPath(storeID)+"/share-message")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// DownloadPDF returns the exported document and the file name the server
// suggests for it.
func (c *Client) DownloadPDF(ctx context.Context, storeID string) ([]byte, string, error) {
	body, header, err := c.fetch(ctx, billPath(storeID)+"/export.pdf")
	if err != nil {
		return nil, "", err
	}
	name := ""
	if _, params, err := mime.ParseMediaType(header.Get("Content-Disposition")); err == nil {
		name = params["filename"]
	}
	return body, name, nil
}

func billPath(storeID string) string {
	return "/bills/" + url.PathEscape(storeID)
}

func (c *Client) doJSON(ctx context.Context, method string, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, path string) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.send(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read response: %v", store.ErrUnavailable, err)
	}
	return body, resp.Header, nil
}

// send performs req and converts non-2xx answers into a *StatusError.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	var payload struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &payload) != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(raw))
	}
	return nil, &StatusError{Status: resp.StatusCode, Message: payload.Error}
}
