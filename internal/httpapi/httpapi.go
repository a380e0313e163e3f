package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"distledger/internal/domain"
	"distledger/internal/service"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	csrfSecret    []byte
	validate      *validator.Validate
	logger        *logrus.Logger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger *logrus.Logger) *API {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		logger.WithError(err).Warn("crypto/rand failed, using static csrf secret")
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
		validate:      newValidator(),
		logger:        logger,
	}
}

// newValidator reports failing fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// csrfTokenForHour is the hex HMAC of the hour bucket's Unix time.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	bucket := time.Now().UTC().Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken accepts the current and the previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	currentBucket := time.Now().UTC().Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(currentBucket))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(prevBucket)))
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

// actorHandler receives the authenticated caller explicitly.
type actorHandler func(w http.ResponseWriter, r *http.Request, actor domain.Actor)

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	everyone := []string{domain.RoleAdmin, domain.RoleRepresentative}

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("GET /api/v1/auth/csrf-token", a.handleCSRFToken)
	mux.HandleFunc("GET /api/v1/users", a.requireAuth(a.handleListUsers, domain.RoleAdmin))
	mux.HandleFunc("POST /api/v1/users", a.requireAuth(a.handleCreateUser, domain.RoleAdmin))

	mux.HandleFunc("GET /api/v1/groups", a.requireAuth(a.handleListGroups, everyone...))
	mux.HandleFunc("POST /api/v1/groups", a.requireAuth(a.handleCreateGroup, everyone...))
	mux.HandleFunc("GET /api/v1/groups/{id}", a.requireAuth(a.handleGetGroup, everyone...))
	mux.HandleFunc("DELETE /api/v1/groups/{id}", a.requireAuth(a.handleDeleteGroup, everyone...))
	mux.HandleFunc("GET /api/v1/groups/{id}/products", a.requireAuth(a.handleListProducts, everyone...))
	mux.HandleFunc("POST /api/v1/groups/{id}/products", a.requireAuth(a.handleCreateProduct, everyone...))
	mux.HandleFunc("GET /api/v1/groups/{id}/stock", a.requireAuth(a.handleStock, everyone...))
	mux.HandleFunc("GET /api/v1/groups/{id}/history", a.requireAuth(a.handleHistory, everyone...))
	mux.HandleFunc("GET /api/v1/groups/{id}/sales", a.requireAuth(a.handleGroupSales, everyone...))
	mux.HandleFunc("GET /api/v1/groups/{id}/ledgers/{kind}", a.requireAuth(a.handleLedger, everyone...))
	mux.HandleFunc("GET /api/v1/groups/{id}/due", a.requireAuth(a.handleGroupDue, everyone...))
	mux.HandleFunc("POST /api/v1/groups/{id}/commission/pay", a.requireAuth(a.handlePayCommission, everyone...))
	mux.HandleFunc("POST /api/v1/groups/{id}/remarks", a.requireAuth(a.handleAddRemark, everyone...))

	mux.HandleFunc("GET /api/v1/products/{id}", a.requireAuth(a.handleGetProduct, everyone...))
	mux.HandleFunc("DELETE /api/v1/products/{id}", a.requireAuth(a.handleDeleteProduct, everyone...))
	mux.HandleFunc("POST /api/v1/products/{id}/add", a.requireAuth(a.handleAddStock, everyone...))
	mux.HandleFunc("POST /api/v1/products/{id}/withdraw", a.requireAuth(a.handleWithdrawStock, everyone...))

	mux.HandleFunc("POST /api/v1/sales", a.requireAuth(a.handleSubmitSale, everyone...))
	mux.HandleFunc("POST /api/v1/sales/preview", a.requireAuth(a.handlePreviewSale, everyone...))
	mux.HandleFunc("GET /api/v1/sales/{id}", a.requireAuth(a.handleGetSale, everyone...))
	mux.HandleFunc("POST /api/v1/sales/{id}/confirm", a.requireAuth(a.handleConfirmSale, everyone...))
	mux.HandleFunc("POST /api/v1/sales/{id}/lock", a.requireAuth(a.handleLockSale, everyone...))

	mux.HandleFunc("POST /api/v1/remarks/{id}/pay", a.requireAuth(a.handlePayRemark, everyone...))
	mux.HandleFunc("POST /api/v1/product-taken", a.requireAuth(a.handleTakeProduct, everyone...))
	mux.HandleFunc("POST /api/v1/product-taken/{id}/pay", a.requireAuth(a.handlePayProductTaken, everyone...))
	mux.HandleFunc("POST /api/v1/product-taken/{id}/return", a.requireAuth(a.handleReturnProductTaken, everyone...))
	mux.HandleFunc("GET /api/v1/due", a.requireAuth(a.handleTotalDue, everyone...))

	mux.HandleFunc("GET /api/v1/reports/monthly", a.requireAuth(a.handleMonthlySales, everyone...))
	mux.HandleFunc("GET /api/v1/reports/yearly", a.requireAuth(a.handleYearlySales, everyone...))
	mux.HandleFunc("GET /api/v1/reports/profit", a.requireAuth(a.handleProfit, domain.RoleAdmin))
	mux.HandleFunc("GET /api/v1/reports/dashboard", a.requireAuth(a.handleDashboard, domain.RoleAdmin))
	mux.HandleFunc("GET /api/v1/expenses", a.requireAuth(a.handleListExpenses, domain.RoleAdmin))
	mux.HandleFunc("POST /api/v1/expenses", a.requireAuth(a.handleAddExpense, everyone...))
	mux.HandleFunc("POST /api/v1/targets", a.requireAuth(a.handleSetTarget, everyone...))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next actorHandler, roles ...string) http.HandlerFunc {
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

		next(w, r, actor)
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

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if !a.decode(w, r, &req) {
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns the token clients send as X-CSRF-Token on every
// mutating request.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	writeJSON(w, http.StatusOK, map[string]any{"users": a.auth.ListUsers(r.Context())})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	var req domain.CreateUserRequest
	if !a.decode(w, r, &req) {
		return
	}
	user, err := a.auth.CreateUser(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

// checkCSRF writes the error response itself when validation fails.
func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		a.writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.WithFields(logrus.Fields{
			"module":      "httpapi",
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(startedAt).Milliseconds(),
			"remote":      clientKey(r),
		}).Info("request")
	})
}

// decode reads a JSON body and runs struct validation on it. It writes the
// error response and returns false on failure.
func (a *API) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	if err := a.validate.Struct(dest); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := make(map[string]string, len(fieldErrs))
			for _, fe := range fieldErrs {
				fields[fe.Namespace()] = fe.Tag()
			}
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"kind":   "validation",
				"fields": fields,
			})
			return false
		}
		a.writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
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

// parseMonth splits "YYYY-MM".
func parseMonth(raw string) (int, int, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(raw))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: month %q must be YYYY-MM", domain.ErrInvalidQuantity, raw)
	}
	return t.Year(), int(t.Month()), nil
}

// statusFor maps the domain error taxonomy onto HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrSaleLocked),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrExceedsStock),
		errors.Is(err, domain.ErrExceedsRequest),
		errors.Is(err, domain.ErrExceedsTaken),
		errors.Is(err, domain.ErrOverPayment),
		errors.Is(err, domain.ErrInvalidStatus):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		a.writeError(w, status, err)
		return
	}
	body := map[string]any{
		"error": err.Error(),
		"kind":  domain.Kind(err),
	}
	var shortage *domain.ShortageError
	if errors.As(err, &shortage) {
		body["shortages"] = shortage.Items
	}
	writeJSON(w, status, body)
}

// writeError hides the message of 5xx responses from clients.
func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		a.logger.WithFields(logrus.Fields{"module": "httpapi", "status": status}).WithError(err).Error("internal error")
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
