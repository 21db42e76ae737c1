package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"billdesk/backend/internal/export"
	"billdesk/backend/internal/metrics"
	"billdesk/backend/internal/service"
	"billdesk/backend/internal/share"
	"billdesk/backend/internal/store"
)

const errBillNotFound = "Bill not found"

type Options struct {
	AllowedOrigin string
	// PublicBaseURL prefixes share link URLs; empty yields relative URLs.
	PublicBaseURL       string
	Shares              *share.Registry
	Links               *ShareLinkManager
	Metrics             *metrics.Metrics
	ExportRatePerMinute int
}

type API struct {
	service       *service.Service
	exporter      *export.Exporter
	shares        *share.Registry
	links         *ShareLinkManager
	metrics       *metrics.Metrics
	allowedOrigin string
	publicBaseURL string
	exportLimiter *attemptLimiter
	now           func() time.Time
}

func New(svc *service.Service, exporter *export.Exporter, opts Options) *API {
	if opts.Shares == nil {
		opts.Shares = share.NewRegistry()
	}
	if opts.ExportRatePerMinute < 1 {
		opts.ExportRatePerMinute = 30
	}
	return &API{
		service:       svc,
		exporter:      exporter,
		shares:        opts.Shares,
		links:         opts.Links,
		metrics:       opts.Metrics,
		allowedOrigin: opts.AllowedOrigin,
		publicBaseURL: strings.TrimRight(opts.PublicBaseURL, "/"),
		exportLimiter: newAttemptLimiter(opts.ExportRatePerMinute, time.Minute),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("not found"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeMethodNotAllowed(w)
	})
	r.Use(a.observe)

	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", a.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/share/channels", a.handleShareChannels).Methods(http.MethodGet)
	r.HandleFunc("/shared/{token}", a.handleSharedDocument).Methods(http.MethodGet)

	r.HandleFunc("/bills", a.handleListBills).Methods(http.MethodGet)
	r.HandleFunc("/bills", a.handleCreateBill).Methods(http.MethodPost)
	r.HandleFunc("/bills/next-invoice-number", a.handleNextInvoiceNumber).Methods(http.MethodGet)
	r.HandleFunc("/bills/{storeId}", a.handleGetBill).Methods(http.MethodGet)
	r.HandleFunc("/bills/{storeId}", a.handleUpdateBill).Methods(http.MethodPut)
	r.HandleFunc("/bills/{storeId}", a.handleDeleteBill).Methods(http.MethodDelete)
	r.HandleFunc("/bills/{storeId}/document", a.handleDocument).Methods(http.MethodGet)
	r.HandleFunc("/bills/{storeId}/print", a.handlePrint).Methods(http.MethodGet)
	r.HandleFunc("/bills/{storeId}/share-message", a.handleShareMessage).Methods(http.MethodGet)
	r.HandleFunc("/bills/{storeId}/export.pdf", a.handleExport).Methods(http.MethodGet)
	r.HandleFunc("/bills/{storeId}/share", a.handleShare).Methods(http.MethodPost)
	r.HandleFunc("/bills/{storeId}/share-link", a.handleShareLink).Methods(http.MethodPost)

	return a.withMiddleware(r)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	storeState := "up"
	if err := a.service.Ping(ctx); err != nil {
		slog.Warn("health check: store ping failed", "error", err)
		status = http.StatusServiceUnavailable
		storeState = "down"
	}
	writeJSON(w, status, map[string]any{
		"ok":    status == http.StatusOK,
		"at":    a.now().Format(time.RFC3339),
		"store": storeState,
	})
}

func (a *API) handleShareChannels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.shares.Channels())
}

// withMiddleware sets headers common to every response and answers CORS
// preflights before routing.
func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, If-None-Match")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, ETag")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// observe logs and counts matched requests under their route template so
// store IDs never become label values.
func (a *API) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		next.ServeHTTP(rec, r)
		elapsed := time.Since(startedAt)

		a.metrics.ObserveRequest(r.Method, route, rec.status, elapsed)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", rec.status,
			"duration", elapsed,
		)
	})
}

// statusFor maps a service or export error onto its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidBill):
		return http.StatusBadRequest
	case errors.Is(err, export.ErrRender):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusNotFound {
		err = errors.New(errBillNotFound)
	}
	writeError(w, status, err)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the cause goes to the log only.
	msg := err.Error()
	if status >= 500 {
		slog.Error("internal error", "status", status, "error", err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
