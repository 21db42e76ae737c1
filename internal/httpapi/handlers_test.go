package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/export"
	"billdesk/backend/internal/metrics"
	"billdesk/backend/internal/render"
	"billdesk/backend/internal/service"
	"billdesk/backend/internal/share"
	"billdesk/backend/internal/store"
	"billdesk/backend/internal/store/memory"
)

type solidRasterizer struct {
	err error
}

func (s solidRasterizer) Rasterize(_ context.Context, doc render.Document) (*image.RGBA, error) {
	if s.err != nil {
		return nil, s.err
	}
	img := image.NewRGBA(image.Rect(0, 0, doc.Width(), doc.Height()))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img, nil
}

var seedDate = time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func seedBill() domain.Bill {
	return domain.Bill{
		StoreID:       "bill-seed",
		ID:            "client-seed",
		InvoiceNumber: "105",
		CustomerName:  "Tabuk Steel",
		Items: []domain.BillItem{
			{ID: "1", Description: "Helmet", Unit: strPtr("pcs"), Price: domain.ParseAmount("40")},
			{ID: "2", Description: "Gloves", Kg: strPtr("2"), Price: domain.ParseAmount("12.5")},
		},
		Total: domain.ParseAmount("52.5"),
		Date:  seedDate,
	}
}

// newTestAPI builds a full API over an in-memory store so handler tests
// exercise the complete request path.
func newTestAPI(t *testing.T, opts Options) *API {
	t.Helper()
	return newTestAPIWith(t, memory.NewSeeded(seedBill()), solidRasterizer{}, opts)
}

func newTestAPIWith(t *testing.T, repo store.Repository, rasterizer export.Rasterizer, opts Options) *API {
	t.Helper()
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}
	exporter := export.NewExporter(rasterizer, export.Options{Profile: render.DefaultProfile()})
	return New(service.New(repo), exporter, opts)
}

func doRequest(t *testing.T, h http.Handler, method string, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "127.0.0.1:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v (raw %q)", err, rec.Body.String())
	}
	return out
}

func TestHandleHealth(t *testing.T) {
	rec := doRequest(t, newTestAPI(t, Options{}).Handler(), http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["ok"] != true || body["store"] != "up" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestBillLifecycleOverHTTP(t *testing.T) {
	h := newTestAPI(t, Options{}).Handler()

	rec := doRequest(t, h, http.MethodGet, "/bills/next-invoice-number", nil)
	if next := decodeBody[domain.NextInvoiceNumberResponse](t, rec); next.InvoiceNumber != "106" {
		t.Fatalf("expected next number 106, got %q", next.InvoiceNumber)
	}

	rec = doRequest(t, h, http.MethodPost, "/bills", domain.Bill{
		CustomerName: "Red Sea Trading",
		Items:        []domain.BillItem{{ID: "1", Description: "Vest", Price: domain.ParseAmount("15")}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[domain.BillCreateResponse](t, rec)
	if !created.Success || created.StoreID == "" {
		t.Fatalf("unexpected create response: %+v", created)
	}

	rec = doRequest(t, h, http.MethodGet, "/bills", nil)
	bills := decodeBody[[]domain.Bill](t, rec)
	if len(bills) != 2 {
		t.Fatalf("expected 2 bills, got %d", len(bills))
	}

	rec = doRequest(t, h, http.MethodPut, "/bills/"+created.StoreID, map[string]any{"customerName": "Red Sea Co"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/bills/"+created.StoreID, nil)
	got := decodeBody[domain.Bill](t, rec)
	if got.CustomerName != "Red Sea Co" || got.InvoiceNumber != "106" || got.Total.Format() != "15.00" {
		t.Fatalf("unexpected stored bill: %+v", got)
	}

	rec = doRequest(t, h, http.MethodDelete, "/bills/"+created.StoreID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodDelete, "/bills/"+created.StoreID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rec.Code)
	}
	if body := decodeBody[map[string]string](t, rec); body["error"] != "Bill not found" {
		t.Fatalf("expected Bill not found, got %q", body["error"])
	}
}

func TestListBillsSearchQuery(t *testing.T) {
	h := newTestAPI(t, Options{}).Handler()

	rec := doRequest(t, h, http.MethodGet, "/bills?q=steel", nil)
	if bills := decodeBody[[]domain.Bill](t, rec); len(bills) != 1 {
		t.Fatalf("expected 1 match, got %d", len(bills))
	}
	rec = doRequest(t, h, http.MethodGet, "/bills?q=nothing", nil)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty JSON array, got %q", rec.Body.String())
	}
}

func TestCreateBillRejectsBadBodies(t *testing.T) {
	h := newTestAPI(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/bills", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", rec.Code)
	}

	rec = doRequest(t, h.Handler(), http.MethodPost, "/bills", domain.Bill{CustomerName: "No items"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bill without items, got %d", rec.Code)
	}
}

func TestUpdateMissingBillReturns404(t *testing.T) {
	rec := doRequest(t, newTestAPI(t, Options{}).Handler(), http.MethodPut, "/bills/bill-missing", map[string]any{"customerName": "x"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDocumentAndShareMessage(t *testing.T) {
	h := newTestAPI(t, Options{}).Handler()

	rec := doRequest(t, h, http.MethodGet, "/bills/bill-seed/document", nil)
	doc := decodeBody[render.Document](t, rec)
	if doc.Header.InvoiceNumber != "105" || doc.Total != "52.50" || len(doc.Rows) != 10 {
		t.Fatalf("unexpected document: number=%s total=%s rows=%d", doc.Header.InvoiceNumber, doc.Total, len(doc.Rows))
	}

	rec = doRequest(t, h, http.MethodGet, "/bills/bill-seed/share-message", nil)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("expected text/plain, got %q", ct)
	}
	msg := rec.Body.String()
	if !strings.HasPrefix(msg, "*Invoice #105*\n\nDate: December 1, 2025\n") {
		t.Fatalf("unexpected message head: %q", msg)
	}
	if !strings.Contains(msg, "- Helmet (Unit: pcs): 40.00 SR\n- Gloves (2): 12.50 SR") {
		t.Fatalf("unexpected message items: %q", msg)
	}
}

func TestPrintEscapesCustomerName(t *testing.T) {
	bill := seedBill()
	bill.CustomerName = `<script>alert(1)</script>`
	h := newTestAPIWith(t, memory.NewSeeded(bill), solidRasterizer{}, Options{}).Handler()

	rec := doRequest(t, h, http.MethodGet, "/bills/bill-seed/print", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Fatalf("customer name was not escaped")
	}
	if !strings.Contains(body, "Invoice No: <strong>105</strong>") {
		t.Fatalf("expected invoice number in print view")
	}
}

func TestExportPDFAndConditionalGet(t *testing.T) {
	h := newTestAPI(t, Options{}).Handler()

	rec := doRequest(t, h, http.MethodGet, "/bills/bill-seed/export.pdf", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("expected application/pdf, got %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="Invoice-105.pdf"` {
		t.Fatalf("unexpected disposition %q", cd)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("body is not a PDF")
	}
	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected ETag header")
	}

	req := httptest.NewRequest(http.MethodGet, "/bills/bill-seed/export.pdf", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", rec.Code)
	}
}

func TestExportRenderFailureReturns422WithPrintHint(t *testing.T) {
	api := newTestAPIWith(t, memory.NewSeeded(seedBill()), solidRasterizer{err: errors.New("decode logo: bad png")}, Options{})

	rec := doRequest(t, api.Handler(), http.MethodGet, "/bills/bill-seed/export.pdf", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if body := decodeBody[map[string]string](t, rec); !strings.Contains(body["error"], "/bills/bill-seed/print") {
		t.Fatalf("expected print path hint, got %q", body["error"])
	}
}

func TestExportMissingBillReturns404(t *testing.T) {
	rec := doRequest(t, newTestAPI(t, Options{}).Handler(), http.MethodGet, "/bills/bill-missing/export.pdf", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

type recordingChannel struct {
	payloads []share.Payload
}

func (c *recordingChannel) Name() string        { return "outbox" }
func (c *recordingChannel) Available() bool     { return true }
func (c *recordingChannel) NeedsDocument() bool { return true }

func (c *recordingChannel) Share(_ context.Context, p share.Payload) (share.Outcome, error) {
	if p.Recipient == "" {
		return share.Outcome{}, share.ErrRecipientRequired
	}
	c.payloads = append(c.payloads, p)
	return share.Outcome{}, nil
}

func TestShareChannels(t *testing.T) {
	outbox := &recordingChannel{}
	h := newTestAPI(t, Options{
		Shares: share.NewRegistry(share.WhatsApp{}, share.NewEmail(share.EmailConfig{}), outbox),
	}).Handler()

	rec := doRequest(t, h, http.MethodGet, "/share/channels", nil)
	channels := decodeBody[[]domain.ShareChannelInfo](t, rec)
	if len(channels) != 3 || channels[0].Name != "email" || channels[0].Available {
		t.Fatalf("unexpected channels: %+v", channels)
	}

	rec = doRequest(t, h, http.MethodPost, "/bills/bill-seed/share", domain.ShareRequest{Channel: "whatsapp"})
	resp := decodeBody[domain.ShareResponse](t, rec)
	if !resp.Shared || !strings.HasPrefix(resp.URL, "https://wa.me/?text=%2AInvoice%20%23105%2A") {
		t.Fatalf("unexpected whatsapp response: %+v", resp)
	}

	rec = doRequest(t, h, http.MethodPost, "/bills/bill-seed/share", domain.ShareRequest{Channel: "email", Recipient: "a@b.c"})
	resp = decodeBody[domain.ShareResponse](t, rec)
	if rec.Code != http.StatusOK || resp.Shared || resp.Reason == "" {
		t.Fatalf("expected unavailable email to be reported, got %d %+v", rec.Code, resp)
	}

	rec = doRequest(t, h, http.MethodPost, "/bills/bill-seed/share", domain.ShareRequest{Channel: "fax"})
	if resp = decodeBody[domain.ShareResponse](t, rec); resp.Shared || resp.Reason != share.ErrUnknownChannel.Error() {
		t.Fatalf("expected unknown channel reason, got %+v", resp)
	}

	rec = doRequest(t, h, http.MethodPost, "/bills/bill-seed/share", domain.ShareRequest{Channel: "outbox"})
	if resp = decodeBody[domain.ShareResponse](t, rec); resp.Shared || resp.Reason != share.ErrRecipientRequired.Error() {
		t.Fatalf("expected recipient reason, got %+v", resp)
	}

	rec = doRequest(t, h, http.MethodPost, "/bills/bill-seed/share", domain.ShareRequest{Channel: "outbox", Recipient: "ops@example.com"})
	if resp = decodeBody[domain.ShareResponse](t, rec); !resp.Shared {
		t.Fatalf("expected outbox share to succeed, got %+v", resp)
	}
	if len(outbox.payloads) != 1 || outbox.payloads[0].FileName != "Invoice-105.pdf" || len(outbox.payloads[0].Document) == 0 {
		t.Fatalf("expected the PDF to be attached, got %+v", outbox.payloads)
	}
}

func TestShareLinkRoundTrip(t *testing.T) {
	h := newTestAPI(t, Options{
		Links:         NewShareLinkManager(strings.Repeat("s", 32), time.Hour),
		PublicBaseURL: "https://bills.example.com/",
	}).Handler()

	rec := doRequest(t, h, http.MethodPost, "/bills/bill-seed/share-link", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	link := decodeBody[domain.ShareLinkResponse](t, rec)
	if link.URL != "https://bills.example.com/shared/"+link.Token {
		t.Fatalf("unexpected link url %q", link.URL)
	}

	rec = doRequest(t, h, http.MethodGet, "/shared/"+link.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected shared PDF, got %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "inline;") {
		t.Fatalf("expected inline disposition, got %q", cd)
	}

	rec = doRequest(t, h, http.MethodGet, "/shared/"+link.Token+"x", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a tampered token, got %d", rec.Code)
	}
}

func TestShareLinksDisabledWithoutSecret(t *testing.T) {
	h := newTestAPI(t, Options{}).Handler()
	if rec := doRequest(t, h, http.MethodPost, "/bills/bill-seed/share-link", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/shared/anything", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestMetricsUseRouteTemplates(t *testing.T) {
	h := newTestAPI(t, Options{Metrics: metrics.New()}).Handler()

	doRequest(t, h, http.MethodGet, "/bills/bill-seed", nil)
	rec := doRequest(t, h, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `route="/bills/{storeId}"`) {
		t.Fatalf("expected route template label in metrics output")
	}
	if strings.Contains(body, "bill-seed") {
		t.Fatalf("store id leaked into metric labels")
	}
}

func TestUpdateAcceptsFetchedBillBody(t *testing.T) {
	h := newTestAPI(t, Options{}).Handler()

	rec := doRequest(t, h, http.MethodGet, "/bills/bill-seed", nil)
	body := decodeBody[map[string]any](t, rec)
	for _, field := range []string{"storeId", "createdAt", "updatedAt"} {
		if _, ok := body[field]; !ok {
			t.Fatalf("expected %s in fetched bill", field)
		}
	}
	body["customerName"] = "Tabuk Steel Co"
	body["storeId"] = "bill-other"

	rec = doRequest(t, h, http.MethodPut, "/bills/bill-seed", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for full bill body, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/bills/bill-seed", nil)
	got := decodeBody[domain.Bill](t, rec)
	if got.StoreID != "bill-seed" || got.CustomerName != "Tabuk Steel Co" || got.Total.Format() != "52.50" {
		t.Fatalf("unexpected bill after round trip: %+v", got)
	}
	if !got.Date.Equal(seedDate) {
		t.Fatalf("expected date to stay %v, got %v", seedDate, got.Date)
	}
}
