package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"distledger/internal/domain"
	"distledger/internal/lock"
	"distledger/internal/logging"
	"distledger/internal/service"
	"distledger/internal/store/memory"
)

// newTestAPI wires the real service, auth manager and in-memory store so
// handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.New()
	for _, u := range []struct{ name, password, role string }{
		{"admin", "admin123", domain.RoleAdmin},
		{"rep", "rep12345", domain.RoleRepresentative},
	} {
		err := repo.CreateUser(context.Background(), domain.UserAccount{
			Username:  u.name,
			Password:  mustHashPassword(t, u.password),
			Role:      u.role,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("seed user %s: %v", u.name, err)
		}
	}

	logger := logging.Discard()
	svc := service.New(repo, lock.NewLocal(), nil, logger, service.Config{})
	auth := NewAuthManager("test-secret-key", time.Hour, repo, logger)
	return New(svc, auth, "*", logger)
}

func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func login(t *testing.T, api *API, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("login %s failed, status %d: %s", username, res.Code, res.Body.String())
	}
	var payload domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response failed: %v", err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		t.Fatalf("expected access token in login response")
	}
	return payload.AccessToken
}

func loginAsAdmin(t *testing.T, api *API) string {
	t.Helper()
	return login(t, api, "admin", "admin123")
}

func fetchCSRFToken(t *testing.T, api *API) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("csrf-token endpoint returned status %d", res.Code)
	}
	var payload map[string]string
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode csrf-token response failed: %v", err)
	}
	if strings.TrimSpace(payload["csrf_token"]) == "" {
		t.Fatalf("expected non-empty csrf_token in response")
	}
	return payload["csrf_token"]
}

// call sends an authenticated request with a valid CSRF token.
func call(t *testing.T, api *API, method, path, token string, body any) *httptest.ResponseRecorder {
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
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", fetchCSRFToken(t, api))
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	return res
}

func decodeInto(t *testing.T, res *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(res.Body).Decode(dest); err != nil {
		t.Fatalf("decode body %q: %v", res.Body.String(), err)
	}
}

func expectStatus(t *testing.T, res *httptest.ResponseRecorder, want int) {
	t.Helper()
	if res.Code != want {
		t.Fatalf("expected %d, got %d (body: %s)", want, res.Code, res.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	expectStatus(t, rec, http.StatusOK)
	var body map[string]any
	decodeInto(t, rec, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLoginInvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	payload, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrongpassword"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestGroupsRequireAuth(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/groups", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestUsersAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	repToken := login(t, api, "rep", "rep12345")
	expectStatus(t, call(t, api, http.MethodGet, "/api/v1/users", repToken, nil), http.StatusForbidden)

	admin := loginAsAdmin(t, api)
	res := call(t, api, http.MethodPost, "/api/v1/users", admin, domain.CreateUserRequest{Username: "route9", Password: "route9pass", Role: domain.RoleRepresentative})
	expectStatus(t, res, http.StatusCreated)
	login(t, api, "route9", "route9pass")

	res = call(t, api, http.MethodPost, "/api/v1/users", admin, domain.CreateUserRequest{Username: "route9", Password: "route9pass", Role: domain.RoleRepresentative})
	expectStatus(t, res, http.StatusConflict)
}

func TestValidationErrorsNameFields(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAsAdmin(t, api)

	res := call(t, api, http.MethodPost, "/api/v1/sales", admin, map[string]any{"group_id": "", "date": "yesterday"})
	expectStatus(t, res, http.StatusBadRequest)
	var body struct {
		Kind   string            `json:"kind"`
		Fields map[string]string `json:"fields"`
	}
	decodeInto(t, res, &body)
	if body.Kind != "validation" {
		t.Fatalf("expected validation kind, got %q", body.Kind)
	}
	if body.Fields["SaleSubmitRequest.group_id"] != "required" || body.Fields["SaleSubmitRequest.date"] != "datetime" {
		t.Fatalf("unexpected field errors %v", body.Fields)
	}

	res = call(t, api, http.MethodPost, "/api/v1/groups", admin, map[string]any{"name": "North", "color": "blue"})
	expectStatus(t, res, http.StatusBadRequest)
}

type flowIDs struct {
	group   string
	product string
}

func setupGroup(t *testing.T, api *API, admin string) flowIDs {
	t.Helper()
	res := call(t, api, http.MethodPost, "/api/v1/groups", admin, domain.GroupCreateRequest{Name: "North"})
	expectStatus(t, res, http.StatusCreated)
	var created struct {
		Group domain.Group `json:"group"`
	}
	decodeInto(t, res, &created)

	res = call(t, api, http.MethodPost, "/api/v1/groups/"+created.Group.ID+"/products", admin, map[string]any{
		"name":                "Biscuits",
		"quantity_type":       "Cartoon",
		"pieces_per_unit":     12,
		"initial_whole":       5,
		"avg_unit_cost":       "6",
		"sell_price_per_unit": "120",
	})
	expectStatus(t, res, http.StatusCreated)
	var product struct {
		Product domain.StockItem `json:"product"`
	}
	decodeInto(t, res, &product)
	if product.Product.TotalPieces != 60 {
		t.Fatalf("expected 60 pieces, got %d", product.Product.TotalPieces)
	}
	return flowIDs{group: created.Group.ID, product: product.Product.ID}
}

func TestSaleFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAsAdmin(t, api)
	rep := login(t, api, "rep", "rep12345")
	ids := setupGroup(t, api, admin)

	sale := map[string]any{
		"group_id":      ids.group,
		"date":          "2026-03-01",
		"items":         []map[string]any{{"product_id": ids.product, "request": map[string]int{"whole": 2, "pieces": 6}}},
		"cash_received": "200",
		"remarks":       []map[string]any{{"comment": "fuel", "amount": "30"}},
	}
	res := call(t, api, http.MethodPost, "/api/v1/sales", rep, sale)
	expectStatus(t, res, http.StatusOK)
	var submitted struct {
		Sale domain.Sale `json:"sale"`
	}
	decodeInto(t, res, &submitted)
	if submitted.Sale.Status != domain.SalePending || !submitted.Sale.TotalAmount.Equal(submitted.Sale.Items[0].Price) {
		t.Fatalf("unexpected submitted sale %+v", submitted.Sale)
	}

	withReturn := map[string]any{
		"group_id": ids.group,
		"date":     "2026-03-01",
		"items":    []map[string]any{{"product_id": ids.product, "request": map[string]int{"whole": 1}, "return": map[string]int{"pieces": 1}}},
	}
	res = call(t, api, http.MethodPost, "/api/v1/sales", rep, withReturn)
	expectStatus(t, res, http.StatusForbidden)

	lockPath := "/api/v1/sales/" + submitted.Sale.ID + "/lock"
	expectStatus(t, call(t, api, http.MethodPost, lockPath, rep, nil), http.StatusForbidden)
	expectStatus(t, call(t, api, http.MethodPost, "/api/v1/sales/"+submitted.Sale.ID+"/confirm", admin, nil), http.StatusOK)

	res = call(t, api, http.MethodPost, lockPath, admin, nil)
	expectStatus(t, res, http.StatusOK)
	var locked struct {
		Sale domain.Sale `json:"sale"`
	}
	decodeInto(t, res, &locked)
	if locked.Sale.Status != domain.SaleLocked || locked.Sale.Profit == nil {
		t.Fatalf("unexpected locked sale %+v", locked.Sale)
	}

	res = call(t, api, http.MethodPost, lockPath, admin, nil)
	expectStatus(t, res, http.StatusConflict)
	var failure map[string]any
	decodeInto(t, res, &failure)
	if failure["kind"] != "sale_locked" {
		t.Fatalf("expected sale_locked kind, got %v", failure)
	}

	res = call(t, api, http.MethodGet, "/api/v1/groups/"+ids.group+"/sales?date=2026-03-01", rep, nil)
	expectStatus(t, res, http.StatusOK)

	res = call(t, api, http.MethodGet, "/api/v1/groups/"+ids.group+"/ledgers/remarks", rep, nil)
	expectStatus(t, res, http.StatusOK)
	var remarks domain.RemarkLedger
	decodeInto(t, res, &remarks)
	if len(remarks.Active) != 1 {
		t.Fatalf("expected the sale remark on the ledger, got %+v", remarks)
	}

	res = call(t, api, http.MethodGet, "/api/v1/due", admin, nil)
	expectStatus(t, res, http.StatusOK)
	var due domain.DueSummary
	decodeInto(t, res, &due)
	if len(due.Groups) != 1 {
		t.Fatalf("expected one group in due summary, got %+v", due)
	}

	expectStatus(t, call(t, api, http.MethodGet, "/api/v1/groups/"+ids.group+"/ledgers/bogus", rep, nil), http.StatusNotFound)
	expectStatus(t, call(t, api, http.MethodGet, "/api/v1/reports/dashboard", rep, nil), http.StatusForbidden)
	expectStatus(t, call(t, api, http.MethodGet, "/api/v1/reports/profit?date=2026-03-01", admin, nil), http.StatusOK)
}

func TestErrorKindsMapToStatus(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAsAdmin(t, api)
	ids := setupGroup(t, api, admin)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		kind   string
	}{
		{
			name:   "exceeds stock",
			method: http.MethodPost,
			path:   "/api/v1/sales",
			body: map[string]any{
				"group_id": ids.group,
				"date":     "2026-03-01",
				"items":    []map[string]any{{"product_id": ids.product, "request": map[string]int{"whole": 6}}},
			},
			status: http.StatusUnprocessableEntity,
			kind:   "exceeds_stock",
		},
		{
			name:   "insufficient stock on withdraw",
			method: http.MethodPost,
			path:   "/api/v1/products/" + ids.product + "/withdraw",
			body:   map[string]any{"whole": 9},
			status: http.StatusConflict,
			kind:   "insufficient_stock",
		},
		{
			name:   "negative add",
			method: http.MethodPost,
			path:   "/api/v1/products/" + ids.product + "/add",
			body:   map[string]any{"whole": -1, "total_cost": "10"},
			status: http.StatusBadRequest,
			kind:   "invalid_quantity",
		},
		{
			name:   "unknown sale",
			method: http.MethodPost,
			path:   "/api/v1/sales/sale-missing/confirm",
			status: http.StatusNotFound,
			kind:   "not_found",
		},
		{
			name:   "duplicate group",
			method: http.MethodPost,
			path:   "/api/v1/groups",
			body:   domain.GroupCreateRequest{Name: "north"},
			status: http.StatusConflict,
			kind:   "conflict",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := call(t, api, tc.method, tc.path, admin, tc.body)
			expectStatus(t, res, tc.status)
			var body map[string]any
			decodeInto(t, res, &body)
			if body["kind"] != tc.kind {
				t.Fatalf("expected kind %q, got %v", tc.kind, body["kind"])
			}
		})
	}
}

func TestLockShortageListsProducts(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAsAdmin(t, api)
	ids := setupGroup(t, api, admin)

	res := call(t, api, http.MethodPost, "/api/v1/sales", admin, map[string]any{
		"group_id": ids.group,
		"date":     "2026-03-01",
		"items":    []map[string]any{{"product_id": ids.product, "request": map[string]int{"whole": 5}}},
	})
	expectStatus(t, res, http.StatusOK)
	var submitted struct {
		Sale domain.Sale `json:"sale"`
	}
	decodeInto(t, res, &submitted)

	expectStatus(t, call(t, api, http.MethodPost, "/api/v1/products/"+ids.product+"/withdraw", admin, map[string]any{"pieces": 1}), http.StatusOK)

	res = call(t, api, http.MethodPost, "/api/v1/sales/"+submitted.Sale.ID+"/lock", admin, nil)
	expectStatus(t, res, http.StatusConflict)
	var body struct {
		Kind      string            `json:"kind"`
		Shortages []domain.Shortage `json:"shortages"`
	}
	decodeInto(t, res, &body)
	if body.Kind != "insufficient_stock" || len(body.Shortages) != 1 || body.Shortages[0].Available != 59 {
		t.Fatalf("unexpected shortage body %+v", body)
	}
}

func TestProductTakenOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAsAdmin(t, api)
	rep := login(t, api, "rep", "rep12345")
	ids := setupGroup(t, api, admin)

	res := call(t, api, http.MethodPost, "/api/v1/product-taken", rep, map[string]any{
		"group_id":    ids.group,
		"product_id":  ids.product,
		"whole":       3,
		"total_price": "360",
	})
	expectStatus(t, res, http.StatusCreated)
	var taken struct {
		Record domain.ProductTaken `json:"record"`
	}
	decodeInto(t, res, &taken)

	res = call(t, api, http.MethodPost, "/api/v1/product-taken/"+taken.Record.ID+"/return", rep, map[string]any{"whole": 1})
	expectStatus(t, res, http.StatusOK)
	var returned struct {
		Record domain.ProductTaken `json:"record"`
	}
	decodeInto(t, res, &returned)
	if returned.Record.Whole != 2 || !returned.Record.TotalPrice.Equal(decimal.NewFromInt(240)) {
		t.Fatalf("unexpected record after return %+v", returned.Record)
	}

	res = call(t, api, http.MethodPost, "/api/v1/product-taken/"+taken.Record.ID+"/pay", rep, map[string]any{"amount": "500"})
	expectStatus(t, res, http.StatusUnprocessableEntity)

	res = call(t, api, http.MethodGet, "/api/v1/groups/"+ids.group+"/due", rep, nil)
	expectStatus(t, res, http.StatusOK)
	var due domain.GroupDue
	decodeInto(t, res, &due)
	if !due.ProductTaken.Equal(decimal.NewFromInt(240)) {
		t.Fatalf("expected 240 owed on product taken, got %s", due.ProductTaken)
	}
}
