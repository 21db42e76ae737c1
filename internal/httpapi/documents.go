package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/export"
	"billdesk/backend/internal/render"
	"billdesk/backend/internal/share"
)

func (a *API) handleDocument(w http.ResponseWriter, r *http.Request) {
	bill, ok := a.loadBill(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.exporter.Document(bill))
}

func (a *API) handlePrint(w http.ResponseWriter, r *http.Request) {
	bill, ok := a.loadBill(w, r)
	if !ok {
		return
	}
	page, err := documentToPrintableHTML(a.exporter.Document(bill))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

func (a *API) handleShareMessage(w http.ResponseWriter, r *http.Request) {
	bill, ok := a.loadBill(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(a.shareMessage(bill)))
}

func (a *API) shareMessage(bill domain.Bill) string {
	return export.ShareMessage(bill, a.exporter.Profile(), export.MessageDate(bill, a.now()))
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	if !a.exportLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many export requests, try again later"))
		return
	}
	bill, ok := a.loadBill(w, r)
	if !ok {
		return
	}

	etag := strconv.Quote(a.exporter.ETag(bill))
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	a.servePDF(w, r, bill, "attachment")
}

func (a *API) servePDF(w http.ResponseWriter, r *http.Request, bill domain.Bill, disposition string) {
	result, err := a.exporter.Export(r.Context(), bill)
	if err != nil {
		a.writeRenderFailure(w, bill, err)
		return
	}

	cacheState := "MISS"
	if result.Cached {
		cacheState = "HIT"
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, result.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.Header().Set("ETag", strconv.Quote(result.Digest))
	w.Header().Set("X-Cache", cacheState)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (a *API) writeRenderFailure(w http.ResponseWriter, bill domain.Bill, err error) {
	if statusFor(err) != http.StatusUnprocessableEntity {
		writeFailure(w, err)
		return
	}
	writeError(w, http.StatusUnprocessableEntity,
		fmt.Errorf("could not generate the PDF; open /bills/%s/print and use the browser's print dialog instead", bill.StoreID))
}

func etagMatches(header string, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func (a *API) handleShare(w http.ResponseWriter, r *http.Request) {
	if !a.exportLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many share requests, try again later"))
		return
	}
	var req domain.ShareRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	bill, ok := a.loadBill(w, r)
	if !ok {
		return
	}

	name := strings.ToLower(strings.TrimSpace(req.Channel))
	resp := domain.ShareResponse{Channel: name}
	ch, err := a.shares.Lookup(name)
	if err != nil {
		resp.Reason = err.Error()
		writeJSON(w, http.StatusOK, resp)
		return
	}

	payload := share.Payload{
		InvoiceNumber: bill.InvoiceNumber,
		Message:       a.shareMessage(bill),
		Recipient:     strings.TrimSpace(req.Recipient),
	}
	if ch.NeedsDocument() {
		result, err := a.exporter.Export(r.Context(), bill)
		if err != nil {
			a.writeRenderFailure(w, bill, err)
			return
		}
		payload.FileName = result.FileName
		payload.Document = result.Data
	}

	outcome, err := ch.Share(r.Context(), payload)
	switch {
	case errors.Is(err, share.ErrRecipientRequired), errors.Is(err, share.ErrChannelDisabled):
		resp.Reason = err.Error()
	case err != nil:
		slog.Error("share failed", "channel", name, "store_id", bill.StoreID, "error", err)
		resp.Reason = "delivery failed"
	default:
		resp.Shared = true
		resp.URL = outcome.URL
		slog.Info("bill shared", "channel", name, "store_id", bill.StoreID)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleShareLink(w http.ResponseWriter, r *http.Request) {
	if a.links == nil {
		writeError(w, http.StatusNotFound, errors.New("share links are disabled"))
		return
	}
	bill, ok := a.loadBill(w, r)
	if !ok {
		return
	}
	token, expiresAt, err := a.links.Issue(bill.StoreID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.ShareLinkResponse{
		Token:     token,
		URL:       a.publicBaseURL + "/shared/" + token,
		ExpiresAt: expiresAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

func (a *API) handleSharedDocument(w http.ResponseWriter, r *http.Request) {
	if a.links == nil {
		writeError(w, http.StatusNotFound, errors.New("share links are disabled"))
		return
	}
	if !a.exportLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many export requests, try again later"))
		return
	}
	storeID, err := a.links.Parse(mux.Vars(r)["token"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	bill, err := a.service.GetBill(r.Context(), storeID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	a.servePDF(w, r, bill, "inline")
}

// printableTmpl lays the invoice out for the browser's print dialog, the
// fallback when PDF generation fails.
var printableTmpl = template.Must(template.New("invoice").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Invoice {{.Header.InvoiceNumber}}</title>
  <style>
    @page { size: A4; margin: 0; }
    body { font-family: sans-serif; margin: 0; background: #F5F1E8; }
    .sheet { width: 794px; margin: 0 auto; padding: 24px; box-sizing: border-box; background: #fff; }
    .head { display: flex; justify-content: space-between; border-bottom: 3px solid #C84B4B; padding-bottom: 12px; }
    .head h1 { color: #C84B4B; margin: 0; font-size: 22px; }
    .head p { margin: 2px 0; color: #4A5BAE; font-size: 13px; }
    .ar { direction: rtl; text-align: right; }
    .meta { display: flex; justify-content: space-between; margin: 16px 0; font-size: 14px; }
    table { width: 100%; border-collapse: collapse; }
    th { background: #4A5BAE; color: #fff; padding: 8px; font-size: 13px; }
    td { border: 1px solid #E8E5DC; height: 38px; padding: 0 8px; font-size: 13px; }
    td.num { text-align: right; }
    .total td { background: #E8E5DC; font-weight: bold; }
    .foot { margin-top: 24px; border-top: 3px solid #C84B4B; padding-top: 8px; font-size: 12px; color: #4A5BAE; }
  </style>
</head>
<body>
<div class="sheet">
  <div class="head">
    <div>
      <h1>{{.Header.NameEnglish}}</h1>
      <p>{{.Header.TaglineEnglish}}</p>
      <p>{{.Header.LocationEnglish}}</p>
      <p>Mobile: {{.Header.Mobile}}</p>
    </div>
    <div class="ar" dir="rtl" lang="ar">
      <h1>{{.Header.NameArabic}}</h1>
      <p>{{.Header.TaglineArabic}}</p>
      <p>{{.Header.LocationArabic}}</p>
      <p>{{.Header.MobileArabic}}</p>
    </div>
  </div>
  <div class="meta">
    <span>Invoice No: <strong>{{.Header.InvoiceNumber}}</strong></span>
    <span>Date: {{.Header.Date}}</span>
  </div>
  <div class="meta"><span>M/s: {{.Header.CustomerName}}</span></div>
  <table>
    <thead><tr><th>Description</th><th>Unit</th><th>Kg</th><th>Unit Price ({{.Currency}})</th><th>Price ({{.Currency}})</th></tr></thead>
    <tbody>
    {{- range .Rows}}
      {{- if .Filler}}<tr><td></td><td></td><td></td><td></td><td></td></tr>
      {{- else}}<tr><td>{{.Description}}</td><td>{{.Unit}}</td><td>{{.Kg}}</td><td class="num">{{.UnitPrice}}</td><td class="num">{{.Price}}</td></tr>
      {{- end}}
    {{- end}}
      <tr class="total"><td colspan="4">Total</td><td class="num">{{.Total}} {{.Currency}}</td></tr>
    </tbody>
  </table>
  <div class="foot">
    <p class="ar" dir="rtl" lang="ar">{{.Footer.AddressArabic}}</p>
    <p>{{.Footer.AddressEnglish}}</p>
    <p>Email: {{.Footer.Email}}</p>
  </div>
</div>
</body>
</html>
`))

func documentToPrintableHTML(doc render.Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := printableTmpl.Execute(&buf, doc); err != nil {
		return nil, fmt.Errorf("render printable invoice: %w", err)
	}
	return buf.Bytes(), nil
}
