package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"kasirtoko/backend/internal/domain"
)

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func createProduct(t *testing.T, server *httptest.Server, token string, req domain.ProductCreateRequest) domain.Product {
	t.Helper()

	resp := doJSON(t, server, http.MethodPost, "/api/v1/products", token, req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create product status = %d, want 201", resp.StatusCode)
	}
	out := decodeBody[struct {
		Product domain.Product `json:"product"`
	}](t, resp)
	return out.Product
}

func addStock(t *testing.T, server *httptest.Server, token string, req domain.AddStockRequest) domain.AddStockResult {
	t.Helper()

	resp := doJSON(t, server, http.MethodPost, "/api/v1/stock/add", token, req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add stock status = %d, want 201", resp.StatusCode)
	}
	return decodeBody[domain.AddStockResult](t, resp)
}

func TestSaleAndVoidOverHTTP(t *testing.T) {
	_, server := newTestAPI(t)
	admin := login(t, server, "admin", "admin123")
	cashier := login(t, server, "kasir", "kasir123")

	product := createProduct(t, server, admin.AccessToken, domain.ProductCreateRequest{
		Barcode:      "8991002100015",
		Name:         "Kopi Bubuk 200g",
		SellingPrice: 15000,
		Unit:         "pcs",
	})
	addStock(t, server, admin.AccessToken, domain.AddStockRequest{
		ProductID: product.ID,
		Quantity:  decimal.NewFromInt(10),
		CostPrice: 9000,
		StockDate: "2026-09-01",
	})

	resp := doJSON(t, server, http.MethodPost, "/api/v1/sales", cashier.AccessToken, domain.SaleRequest{
		CartItems: []domain.CartLine{
			{ProductID: product.ID, Quantity: decimal.NewFromInt(3), SellingPrice: 15000},
		},
		PaymentAmount: 50000,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("sale status = %d, want 201", resp.StatusCode)
	}
	sale := decodeBody[domain.SaleResult](t, resp)
	if sale.TotalAmount != 45000 {
		t.Errorf("total = %d, want 45000", sale.TotalAmount)
	}
	if sale.TotalProfit != 18000 {
		t.Errorf("profit = %d, want 18000", sale.TotalProfit)
	}
	if sale.ChangeAmount != 5000 {
		t.Errorf("change = %d, want 5000", sale.ChangeAmount)
	}
	if !strings.HasPrefix(sale.TransactionNumber, "TRX-") {
		t.Errorf("transaction number %q missing TRX- prefix", sale.TransactionNumber)
	}

	// Cashiers may read the detail but only admins may void.
	resp = doJSON(t, server, http.MethodGet, "/api/v1/transactions/"+sale.TransactionID, cashier.AccessToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("detail status = %d, want 200", resp.StatusCode)
	}
	detail := decodeBody[domain.TransactionDetail](t, resp)
	if len(detail.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(detail.Items))
	}

	resp = doJSON(t, server, http.MethodPost, "/api/v1/transactions/"+sale.TransactionID+"/void", cashier.AccessToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("cashier void status = %d, want 403", resp.StatusCode)
	}

	resp = doJSON(t, server, http.MethodPost, "/api/v1/transactions/"+sale.TransactionID+"/void", admin.AccessToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin void status = %d, want 200", resp.StatusCode)
	}
	void := decodeBody[domain.VoidResult](t, resp)
	if void.VoidTransactionID == "" {
		t.Fatal("expected void transaction id")
	}

	// Second void of the same sale conflicts.
	resp = doJSON(t, server, http.MethodPost, "/api/v1/transactions/"+sale.TransactionID+"/void", admin.AccessToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("double void status = %d, want 409", resp.StatusCode)
	}

	// Stock is back after the void.
	resp = doJSON(t, server, http.MethodGet, "/api/v1/stock/"+product.ID, admin.AccessToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stock detail status = %d, want 200", resp.StatusCode)
	}
	stock := decodeBody[domain.StockDetail](t, resp)
	if !stock.TotalStock.Equal(decimal.NewFromInt(10)) {
		t.Errorf("total stock after void = %s, want 10", stock.TotalStock)
	}
}

func TestSaleInsufficientStockConflicts(t *testing.T) {
	_, server := newTestAPI(t)
	admin := login(t, server, "admin", "admin123")

	product := createProduct(t, server, admin.AccessToken, domain.ProductCreateRequest{
		Barcode:      "8991002100022",
		Name:         "Gula Pasir 1kg",
		SellingPrice: 18000,
		Unit:         "pcs",
	})
	addStock(t, server, admin.AccessToken, domain.AddStockRequest{
		ProductID: product.ID,
		Quantity:  decimal.NewFromInt(2),
		CostPrice: 15000,
	})

	resp := doJSON(t, server, http.MethodPost, "/api/v1/sales", admin.AccessToken, domain.SaleRequest{
		CartItems: []domain.CartLine{
			{ProductID: product.ID, Quantity: decimal.NewFromInt(5), SellingPrice: 18000},
		},
		PaymentAmount: 100000,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestSaleUnknownProductNotFound(t *testing.T) {
	_, server := newTestAPI(t)
	admin := login(t, server, "admin", "admin123")

	resp := doJSON(t, server, http.MethodPost, "/api/v1/sales", admin.AccessToken, domain.SaleRequest{
		CartItems: []domain.CartLine{
			{ProductID: "missing", Quantity: decimal.NewFromInt(1), SellingPrice: 1000},
		},
		PaymentAmount: 1000,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestBarcodeLookup(t *testing.T) {
	_, server := newTestAPI(t)
	admin := login(t, server, "admin", "admin123")

	created := createProduct(t, server, admin.AccessToken, domain.ProductCreateRequest{
		Barcode:      "8991002100039",
		Name:         "Teh Celup 25s",
		SellingPrice: 9000,
		Unit:         "box",
	})

	resp := doJSON(t, server, http.MethodGet, "/api/v1/products/barcode/8991002100039", admin.AccessToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	out := decodeBody[struct {
		Product domain.Product `json:"product"`
	}](t, resp)
	if out.Product.ID != created.ID {
		t.Errorf("product id = %q, want %q", out.Product.ID, created.ID)
	}

	resp = doJSON(t, server, http.MethodGet, "/api/v1/products/barcode/0000000000000", admin.AccessToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing barcode status = %d, want 404", resp.StatusCode)
	}
}

func TestProductUpdateAndToggle(t *testing.T) {
	_, server := newTestAPI(t)
	admin := login(t, server, "admin", "admin123")

	product := createProduct(t, server, admin.AccessToken, domain.ProductCreateRequest{
		Barcode:      "8991002100046",
		Name:         "Sabun Mandi",
		SellingPrice: 4000,
		Unit:         "pcs",
	})

	newPrice := int64(4500)
	resp := doJSON(t, server, http.MethodPatch, "/api/v1/products/"+product.ID, admin.AccessToken, map[string]any{
		"selling_price": newPrice,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d, want 200", resp.StatusCode)
	}
	out := decodeBody[struct {
		Product domain.Product `json:"product"`
	}](t, resp)
	if out.Product.SellingPrice != newPrice {
		t.Errorf("selling price = %d, want %d", out.Product.SellingPrice, newPrice)
	}

	resp = doJSON(t, server, http.MethodPost, "/api/v1/products/"+product.ID+"/toggle-active", admin.AccessToken, map[string]any{
		"active": false,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("toggle status = %d, want 200", resp.StatusCode)
	}

	resp = doJSON(t, server, http.MethodGet, "/api/v1/products/barcode/8991002100046", admin.AccessToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("inactive barcode lookup status = %d, want 404", resp.StatusCode)
	}
}

func TestDailySummaryReport(t *testing.T) {
	_, server := newTestAPI(t)
	admin := login(t, server, "admin", "admin123")

	product := createProduct(t, server, admin.AccessToken, domain.ProductCreateRequest{
		Barcode:      "8991002100053",
		Name:         "Mie Instan",
		SellingPrice: 3500,
		Unit:         "pcs",
	})
	addStock(t, server, admin.AccessToken, domain.AddStockRequest{
		ProductID: product.ID,
		Quantity:  decimal.NewFromInt(20),
		CostPrice: 2500,
	})
	resp := doJSON(t, server, http.MethodPost, "/api/v1/sales", admin.AccessToken, domain.SaleRequest{
		CartItems: []domain.CartLine{
			{ProductID: product.ID, Quantity: decimal.NewFromInt(4), SellingPrice: 3500},
		},
		PaymentAmount: 14000,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("sale status = %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, server, http.MethodGet, "/api/v1/reports/daily-summary", admin.AccessToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("report status = %d, want 200", resp.StatusCode)
	}
	summary := decodeBody[domain.DailySummary](t, resp)
	if summary.TotalTransactions != 1 {
		t.Errorf("transactions = %d, want 1", summary.TotalTransactions)
	}
	if summary.TotalRevenue != 14000 {
		t.Errorf("revenue = %d, want 14000", summary.TotalRevenue)
	}
	if summary.TotalProfit != 4000 {
		t.Errorf("profit = %d, want 4000", summary.TotalProfit)
	}
}

func TestManualSaleWithoutBarcode(t *testing.T) {
	_, server := newTestAPI(t)
	cashier := login(t, server, "kasir", "kasir123")

	resp := doJSON(t, server, http.MethodPost, "/api/v1/sales", cashier.AccessToken, domain.SaleRequest{
		CartItems: []domain.CartLine{
			{Name: "Es Teh", Quantity: decimal.NewFromInt(2), SellingPrice: 3000, NonBarcode: true},
		},
		PaymentAmount: 6000,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	sale := decodeBody[domain.SaleResult](t, resp)
	if sale.TotalAmount != 6000 || sale.TotalProfit != 6000 {
		t.Errorf("total/profit = %d/%d, want 6000/6000", sale.TotalAmount, sale.TotalProfit)
	}
}

func TestRejectsUnknownJSONFields(t *testing.T) {
	_, server := newTestAPI(t)
	admin := login(t, server, "admin", "admin123")

	resp := doJSON(t, server, http.MethodPost, "/api/v1/products", admin.AccessToken, map[string]any{
		"name":          "x",
		"unit":          "pcs",
		"selling_price": 100,
		"barcode":       "1",
		"bogus":         true,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
