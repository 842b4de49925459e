package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"stockroom/backend/internal/domain"
	"stockroom/backend/internal/service"
	"stockroom/backend/internal/stock"
	"stockroom/backend/internal/store"
)

const maxBodyBytes = 1 << 20

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	logger        *logrus.Logger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger *logrus.Logger) *API {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		logger:        logger,
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

// Allow records an attempt for key and reports whether it fits the window.
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
	l.entries[key] = append(kept, now)
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
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(a.accessLog)
	router.Use(middleware.Recoverer)
	router.Use(a.securityHeaders)

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		a.writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		a.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})

	router.Get("/healthz", a.handleHealth)
	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)

		r.Get("/inventory", a.requireAuth(a.handleListInventory))
		r.Post("/inventory", a.requireAuth(a.handleCreateInventoryItem, domain.RoleAdmin, domain.RoleManager))
		r.Get("/inventory/{itemId}", a.requireAuth(a.handleGetInventoryItem))
		r.Post("/inventory/{itemId}/stock-events", a.requireAuth(a.handleStockEvent))

		r.Get("/suppliers", a.requireAuth(a.handleListSuppliers, domain.RoleAdmin, domain.RoleManager))
		r.Post("/suppliers", a.requireAuth(a.handleCreateSupplier, domain.RoleAdmin, domain.RoleManager))

		r.Get("/purchase-orders", a.requireAuth(a.handleListPurchaseOrders, domain.RoleAdmin, domain.RoleManager))
		r.Post("/purchase-orders", a.requireAuth(a.handleCreatePurchaseOrder, domain.RoleAdmin, domain.RoleManager))
		r.Get("/purchase-orders/{id}", a.requireAuth(a.handleGetPurchaseOrder, domain.RoleAdmin, domain.RoleManager))
		r.Post("/purchase-orders/{id}/receive", a.requireAuth(a.handleReceivePurchaseOrder, domain.RoleAdmin, domain.RoleManager))
		r.Post("/purchase-orders/{id}/cancel", a.requireAuth(a.handleCancelPurchaseOrder, domain.RoleAdmin, domain.RoleManager))

		r.Get("/acquisitions", a.requireAuth(a.handleListAcquisitions))
		r.Post("/acquisitions", a.requireAuth(a.handleCreateAcquisition))
		r.Get("/acquisitions/{id}", a.requireAuth(a.handleGetAcquisition))
		r.Post("/acquisitions/{id}/confirm", a.requireAuth(a.handleConfirmAcquisition, domain.RoleAdmin, domain.RoleManager))
		r.Post("/acquisitions/{id}/cancel", a.requireAuth(a.handleCancelAcquisition, domain.RoleAdmin, domain.RoleManager))

		r.Get("/notifications", a.requireAuth(a.handleNotifications))
		r.Get("/audit-logs", a.requireAuth(a.handleAuditLogs, domain.RoleAdmin))
	})

	return router
}

// requireAuth resolves the bearer token into an actor. With no roles any
// authenticated actor passes.
func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			a.writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(startedAt).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Info("http request")
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errors.New("request body too large")
		}
		return err
	}
	return nil
}

// decodeOptionalJSON accepts an empty body and leaves dest untouched.
func decodeOptionalJSON(r *http.Request, dest any) error {
	if err := decodeJSON(r, dest); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// parseListQuery reads the shared list parameters. Out-of-range paging is
// normalized by the service.
func parseListQuery(r *http.Request) domain.ListQuery {
	values := r.URL.Query()
	query := domain.ListQuery{
		Sort:   strings.TrimSpace(values.Get("sort")),
		Status: strings.TrimSpace(values.Get("status")),
		Search: strings.TrimSpace(values.Get("q")),
		Desc:   strings.EqualFold(strings.TrimSpace(values.Get("order")), "desc"),
	}
	if page, err := strconv.Atoi(values.Get("page")); err == nil {
		query.Page = page
	}
	if limit, err := strconv.Atoi(values.Get("limit")); err == nil {
		query.Limit = limit
	}
	return query
}

type errorBody struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// writeServiceError maps domain, ledger and persistence errors onto statuses.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "validation_error", Fields: validation.Fields})
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "validation_error"})
	case errors.Is(err, domain.ErrStateConflict):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "state_conflict"})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, stock.ErrInsufficientStock):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "insufficient_stock"})
	case errors.Is(err, store.ErrDuplicate):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "duplicate"})
	case errors.Is(err, store.ErrVersionConflict), errors.Is(err, stock.ErrLockBusy):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "conflict"})
	default:
		a.logger.WithError(err).WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).Error("request failed")
		a.writeError(w, http.StatusInternalServerError, err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; 4xx messages are user-facing.
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
