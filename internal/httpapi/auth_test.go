package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kasirtoko/backend/internal/domain"
	"kasirtoko/backend/internal/service"
	"kasirtoko/backend/internal/store/memory"
)

func newTestAPI(t *testing.T) (*API, *httptest.Server) {
	t.Helper()

	repo := memory.New()
	svc := service.New(repo, nil, 7*time.Hour, time.Minute)
	auth := NewAuthManager("test-secret", time.Hour, repo)
	api := New(svc, auth, "http://127.0.0.1:3000")
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)
	return api, server
}

func login(t *testing.T, server *httptest.Server, username, password string) domain.LoginResponse {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	resp, err := http.Post(server.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}

	var out domain.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return out
}

func doJSON(t *testing.T, server *httptest.Server, method, path, token string, payload any) *http.Response {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req, err := http.NewRequest(method, server.URL+path, &body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func TestLoginIssuesToken(t *testing.T) {
	_, server := newTestAPI(t)

	out := login(t, server, "admin", "admin123")
	if out.AccessToken == "" {
		t.Fatal("expected non-empty access token")
	}
	if out.Role != domain.RoleAdmin {
		t.Errorf("role = %q, want %q", out.Role, domain.RoleAdmin)
	}
	if _, err := time.Parse(time.RFC3339, out.ExpiresAt); err != nil {
		t.Errorf("expires_at %q is not RFC3339: %v", out.ExpiresAt, err)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	_, server := newTestAPI(t)

	resp := doJSON(t, server, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: "admin",
		Password: "wrong",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	api, _ := newTestAPI(t)

	token, err := api.auth.sign("admin", domain.RoleAdmin, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	actor, err := api.auth.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleAdmin {
		t.Errorf("actor = %+v, want admin/admin", actor)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	api, _ := newTestAPI(t)

	token, err := api.auth.sign("admin", domain.RoleAdmin, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := api.auth.ParseToken(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	api, _ := newTestAPI(t)

	other := NewAuthManager("another-secret", time.Hour, nil)
	token, err := other.sign("admin", domain.RoleAdmin, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := api.auth.ParseToken(token); err == nil {
		t.Fatal("expected token signed with another secret to be rejected")
	}
}

func TestRequestsWithoutTokenAreUnauthorized(t *testing.T) {
	_, server := newTestAPI(t)

	resp, err := http.Get(server.URL + "/api/v1/products")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestCashierCannotReachAdminEndpoints(t *testing.T) {
	_, server := newTestAPI(t)
	cashier := login(t, server, "kasir", "kasir123")

	for _, tc := range []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodPost, "/api/v1/products", domain.ProductCreateRequest{Name: "x", Unit: "pcs", SellingPrice: 100, Barcode: "1"}},
		{http.MethodPost, "/api/v1/stock/add", domain.AddStockRequest{ProductID: "p", CostPrice: 1}},
		{http.MethodGet, "/api/v1/reports/daily-summary", nil},
	} {
		resp := doJSON(t, server, tc.method, tc.path, cashier.AccessToken, tc.body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("%s %s: status = %d, want 403", tc.method, tc.path, resp.StatusCode)
		}
	}
}

func TestLoginRateLimited(t *testing.T) {
	_, server := newTestAPI(t)

	var last int
	for i := 0; i < 7; i++ {
		resp := doJSON(t, server, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
			Username: "admin",
			Password: "wrong",
		})
		resp.Body.Close()
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("status after repeated failures = %d, want 429", last)
	}
}
