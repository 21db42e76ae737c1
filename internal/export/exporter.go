package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"billdesk/backend/internal/archive"
	"billdesk/backend/internal/cache"
	"billdesk/backend/internal/calculator"
	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/metrics"
	"billdesk/backend/internal/render"
)

// ErrRender is returned for any failure between document and PDF bytes. The
// bill itself is never modified by an export.
var ErrRender = render.ErrRender

type Rasterizer interface {
	Rasterize(ctx context.Context, doc render.Document) (*image.RGBA, error)
}

type Options struct {
	Profile  render.Profile
	Page     PageSize
	Cache    cache.DocumentCache
	CacheTTL time.Duration
	Archive  archive.Archive
	Metrics  *metrics.Metrics
}

type Exporter struct {
	rasterizer Rasterizer
	profile    render.Profile
	page       PageSize
	cache      cache.DocumentCache
	cacheTTL   time.Duration
	archive    archive.Archive
	metrics    *metrics.Metrics
}

type Result struct {
	Data     []byte
	FileName string
	Digest   string
	// Pages is zero when the document came from the cache.
	Pages  int
	Cached bool
}

func NewExporter(rasterizer Rasterizer, opts Options) *Exporter {
	if opts.Page.Width == 0 || opts.Page.Height == 0 {
		opts.Page = A4
	}
	if opts.Cache == nil {
		opts.Cache = cache.NoopDocumentCache{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.Archive == nil {
		opts.Archive = archive.Noop{}
	}
	return &Exporter{
		rasterizer: rasterizer,
		profile:    opts.Profile,
		page:       opts.Page,
		cache:      opts.Cache,
		cacheTTL:   opts.CacheTTL,
		archive:    opts.Archive,
		metrics:    opts.Metrics,
	}
}

func (e *Exporter) Profile() render.Profile {
	return e.profile
}

// Document renders bill with the exporter's business profile.
func (e *Exporter) Document(bill domain.Bill) render.Document {
	return render.Render(calculator.WithTotal(bill), e.profile)
}

// ETag returns the digest Export would report for bill without rendering.
func (e *Exporter) ETag(bill domain.Bill) string {
	return Digest(e.Document(bill))
}

// Export produces the PDF for bill, from the cache when the same document was
// rendered before.
func (e *Exporter) Export(ctx context.Context, bill domain.Bill) (*Result, error) {
	doc := e.Document(bill)
	digest := Digest(doc)
	name := FileName(doc.Header.InvoiceNumber)

	data, ok, err := e.cache.Get(ctx, digest)
	if err != nil {
		slog.Warn("export cache read failed", "digest", digest, "error", err)
	} else if ok {
		e.metrics.ObserveExport("cached", 0)
		// Another bill may have rendered the same document first.
		e.archiveOnce(ctx, bill.StoreID, digest, name, data)
		return &Result{Data: data, FileName: name, Digest: digest, Cached: true}, nil
	}

	start := time.Now()
	pdf, pages, err := e.renderPDF(ctx, doc)
	if err != nil {
		e.metrics.ObserveExport("failed", 0)
		slog.Error("export failed", "store_id", bill.StoreID, "invoice_number", bill.InvoiceNumber, "error", err)
		return nil, err
	}
	e.metrics.ObserveExport("rendered", pages)
	slog.Info("export rendered",
		"store_id", bill.StoreID,
		"invoice_number", doc.Header.InvoiceNumber,
		"pages", pages,
		"bytes", len(pdf),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if err := e.cache.Set(ctx, digest, pdf, e.cacheTTL); err != nil {
		slog.Warn("export cache write failed", "digest", digest, "error", err)
	}
	e.archiveOnce(ctx, bill.StoreID, digest, name, pdf)

	return &Result{Data: pdf, FileName: name, Digest: digest, Pages: pages}, nil
}

func archivedKey(storeID string, digest string) string {
	return "archived:" + storeID + ":" + digest
}

// archiveOnce stores pdf under storeID unless the cache remembers that this
// bill already archived this exact document.
func (e *Exporter) archiveOnce(ctx context.Context, storeID string, digest string, name string, pdf []byte) {
	if storeID == "" {
		return
	}
	marker := archivedKey(storeID, digest)
	if _, done, err := e.cache.Get(ctx, marker); err == nil && done {
		return
	}
	key, err := e.archive.Put(ctx, storeID, name, pdf)
	if err != nil {
		slog.Warn("export archive failed", "store_id", storeID, "error", err)
		return
	}
	if key != "" {
		slog.Debug("export archived", "key", key)
	}
	if err := e.cache.Set(ctx, marker, []byte{1}, e.cacheTTL); err != nil {
		slog.Warn("export cache write failed", "digest", digest, "error", err)
	}
}

func (e *Exporter) renderPDF(ctx context.Context, doc render.Document) ([]byte, int, error) {
	img, err := e.rasterizer.Rasterize(ctx, doc)
	if err != nil {
		if errors.Is(err, ErrRender) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrRender, err)
	}

	b := img.Bounds()
	placements := Paginate(b.Dx(), b.Dy(), e.page)
	if len(placements) == 0 {
		return nil, 0, fmt.Errorf("%w: empty surface", ErrRender)
	}
	pages := SlicePages(img, placements, e.page)

	var buf bytes.Buffer
	if err := WritePDF(&buf, pages); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), len(pages), nil
}

// Forget drops archived documents of a deleted bill. Cache entries expire on
// their own.
func (e *Exporter) Forget(ctx context.Context, storeID string) {
	if err := e.archive.RemoveBill(ctx, storeID); err != nil {
		slog.Warn("archive cleanup failed", "store_id", storeID, "error", err)
	}
}
