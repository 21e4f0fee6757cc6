package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Ramivz11/aurum-gestion/internal/cache"
	"github.com/Ramivz11/aurum-gestion/internal/domain"
	"github.com/Ramivz11/aurum-gestion/internal/service"
	"github.com/Ramivz11/aurum-gestion/internal/store/memory"
)

func mustHashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(hash)
}

func newTestAPI(t *testing.T) *API {
	t.Helper()
	repo := memory.New()
	for _, u := range []domain.UserAccount{
		{Username: "admin", Password: mustHashPassword(t, "admin-pass-1"), Role: domain.RoleAdmin, Active: true, CreatedAt: time.Now().UTC()},
		{Username: "vendedor", Password: mustHashPassword(t, "seller-pass-1"), Role: domain.RoleSeller, Active: true, CreatedAt: time.Now().UTC()},
	} {
		if err := repo.CreateUser(context.Background(), u); err != nil {
			t.Fatalf("seed user %s: %v", u.Username, err)
		}
	}

	svc := service.New(repo, cache.NoopDashboardCache{}, time.Second)
	auth := NewAuthManager("test-secret-0123456789-0123456789", time.Hour, repo)
	return New(svc, auth, "http://localhost:5173")
}

func login(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s: status %d body %s", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("expected access token in login response")
	}
	return resp.AccessToken
}

// doJSON issues an authenticated request with a valid CSRF token attached.
func doJSON(t *testing.T, api *API, handler http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("X-CSRF-Token", api.generateCSRFToken())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected security headers on every response")
	}
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
}

func TestMutationsRequireCSRFToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "admin", "admin-pass-1")

	body, _ := json.Marshal(domain.BranchCreateRequest{Name: "Centro"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/branches", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d", rec.Code)
	}

	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/branches", token, domain.BranchCreateRequest{Name: "Centro"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 with CSRF token, got %d body %s", rec.Code, rec.Body.String())
	}
}

func TestSellerForbiddenFromAdminRoutes(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	seller := login(t, handler, "vendedor", "seller-pass-1")

	rec := doJSON(t, api, handler, http.MethodDelete, "/api/v1/products/Shaker", seller, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on admin-only route, got %d", rec.Code)
	}

	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/products", seller, domain.ProductCreateRequest{
		Name:       "Shaker 600ml",
		PriceCents: 80000,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for seller product create, got %d body %s", rec.Code, rec.Body.String())
	}
}

func TestSaleRoundTripAndShortfallPayload(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	admin := login(t, handler, "admin", "admin-pass-1")
	seller := login(t, handler, "vendedor", "seller-pass-1")

	rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/branches", admin, domain.BranchCreateRequest{Name: "Centro"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create branch: %d body %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/products", admin, domain.ProductCreateRequest{
		Name:       "Proteina Whey 1kg",
		CostCents:  250000,
		PriceCents: 400000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product: %d body %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/purchases", admin, domain.PurchaseCreateRequest{
		Product:        "Proteina Whey 1kg",
		Branch:         "Centro",
		Qty:            5,
		TotalCostCents: 1250000,
		Method:         domain.PayCash,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register purchase: %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/sales", seller, domain.SaleCreateRequest{
		Product:        "Proteina Whey 1kg",
		Branch:         "Centro",
		Qty:            3,
		UnitPriceCents: 400000,
		Method:         domain.PayCash,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register sale: %d body %s", rec.Code, rec.Body.String())
	}
	var saleResp struct {
		Sale domain.Sale `json:"sale"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &saleResp); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if saleResp.Sale.TotalCents != 1200000 {
		t.Fatalf("expected total 1200000, got %d", saleResp.Sale.TotalCents)
	}

	// Only 2 units remain; asking for 10 must fail with the shortfall detail.
	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/sales", seller, domain.SaleCreateRequest{
		Product:        "Proteina Whey 1kg",
		Branch:         "Centro",
		Qty:            10,
		UnitPriceCents: 400000,
		Method:         domain.PayCash,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on shortfall, got %d body %s", rec.Code, rec.Body.String())
	}
	var shortfall struct {
		Error     string `json:"error"`
		Requested int    `json:"requested"`
		Available int    `json:"available"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &shortfall); err != nil {
		t.Fatalf("decode shortfall: %v", err)
	}
	if shortfall.Requested != 10 || shortfall.Available != 2 {
		t.Fatalf("expected requested=10 available=2, got %+v", shortfall)
	}

	rec = doJSON(t, api, handler, http.MethodGet, "/api/v1/stock/quantity?product=Proteina+Whey+1kg&branch=Centro", seller, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("quantity lookup: %d body %s", rec.Code, rec.Body.String())
	}
	var qtyResp struct {
		Qty int `json:"qty"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &qtyResp); err != nil {
		t.Fatalf("decode quantity: %v", err)
	}
	if qtyResp.Qty != 2 {
		t.Fatalf("expected 2 units left, got %d", qtyResp.Qty)
	}
}

func TestUnknownJSONFieldsRejected(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	admin := login(t, handler, "admin", "admin-pass-1")

	rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/branches", admin, map[string]any{
		"name":     "Centro",
		"location": "surprise",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d body %s", rec.Code, rec.Body.String())
	}
}

func TestDuplicateProductReturnsConflict(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	admin := login(t, handler, "admin", "admin-pass-1")

	create := domain.ProductCreateRequest{Name: "Creatina Monohidrato 300g", PriceCents: 180000}
	if rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/products", admin, create); rec.Code != http.StatusCreated {
		t.Fatalf("first create: %d body %s", rec.Code, rec.Body.String())
	}
	rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/products", admin, create)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate name, got %d body %s", rec.Code, rec.Body.String())
	}
}

func TestUserManagement(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	admin := login(t, handler, "admin", "admin-pass-1")
	seller := login(t, handler, "vendedor", "seller-pass-1")

	rec := doJSON(t, api, handler, http.MethodGet, "/api/v1/users", seller, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for seller user list, got %d", rec.Code)
	}

	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/users", admin, domain.UserCreateRequest{
		Username: "cajero2",
		Password: "secret-123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create user: %d body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		User domain.UserInfo `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if created.User.Role != domain.RoleSeller {
		t.Fatalf("expected default seller role, got %q", created.User.Role)
	}

	if token := login(t, handler, "cajero2", "secret-123"); token == "" {
		t.Fatalf("expected new account to log in")
	}

	rec = doJSON(t, api, handler, http.MethodGet, "/api/v1/users", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list users: %d", rec.Code)
	}
	var listed struct {
		Users []domain.UserInfo `json:"users"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode users: %v", err)
	}
	if len(listed.Users) != 3 {
		t.Fatalf("expected 3 users, got %d", len(listed.Users))
	}
}

func TestDashboardEndpoint(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	admin := login(t, handler, "admin", "admin-pass-1")

	doJSON(t, api, handler, http.MethodPost, "/api/v1/branches", admin, domain.BranchCreateRequest{Name: "Centro"})
	doJSON(t, api, handler, http.MethodPost, "/api/v1/products", admin, domain.ProductCreateRequest{
		Name: "Pre Entreno 30 serv", CostCents: 150000, PriceCents: 260000,
	})
	doJSON(t, api, handler, http.MethodPost, "/api/v1/purchases", admin, domain.PurchaseCreateRequest{
		Product: "Pre Entreno 30 serv", Branch: "Centro", Qty: 4, TotalCostCents: 600000, Method: domain.PayTransfer,
	})

	rec := doJSON(t, api, handler, http.MethodGet, "/api/v1/dashboard", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard: %d body %s", rec.Code, rec.Body.String())
	}
	var report domain.DashboardReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.TotalUnits != 4 {
		t.Fatalf("expected 4 units on dashboard, got %d", report.TotalUnits)
	}
	if len(report.Rows) != 1 || report.Rows[0].ByBranch["Centro"] != 4 {
		t.Fatalf("unexpected dashboard rows: %+v", report.Rows)
	}
}

func TestSalesLimitIsCapped(t *testing.T) {
	if got := parsePositiveLimit("5000", 200, 1000); got != 1000 {
		t.Fatalf("expected cap at 1000, got %d", got)
	}
	if got := parsePositiveLimit("", 200, 1000); got != 200 {
		t.Fatalf("expected fallback 200, got %d", got)
	}
	if got := parsePositiveLimit("abc", 200, 1000); got != 200 {
		t.Fatalf("expected fallback on garbage, got %d", got)
	}
	if got := parsePositiveLimit("-3", 200, 1000); got != 200 {
		t.Fatalf("expected fallback on negative, got %d", got)
	}
}

func TestOptionsPreflightShortCircuits(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("expected configured origin, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestLoginRateLimit(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	for i := 0; i < 5; i++ {
		body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: fmt.Sprintf("wrong-%d", i)})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, rec.Code)
		}
	}

	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "admin-pass-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", rec.Code)
	}
}
