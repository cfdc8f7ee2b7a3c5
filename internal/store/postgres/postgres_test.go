package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"kasirtoko/backend/internal/domain"
	"kasirtoko/backend/internal/store"
)

// newTestStore connects to the database named by KASIRTOKO_TEST_DATABASE_URL
// and truncates all tables. Tests are skipped when the variable is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("KASIRTOKO_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("KASIRTOKO_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	s, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`TRUNCATE transaction_items, transactions, stock_batches, products, categories, users CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return s
}

func seedTestProduct(t *testing.T, s *Store, name string, price int64) domain.Product {
	t.Helper()

	p := domain.Product{
		ID:           uuid.NewString(),
		Barcode:      uuid.NewString()[:12],
		Name:         name,
		SellingPrice: price,
		Unit:         "pcs",
		Active:       true,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := s.CreateProduct(context.Background(), p); err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p
}

func seedTestBatch(t *testing.T, s *Store, productID, date string, qty int64, cost int64) domain.StockBatch {
	t.Helper()

	b := domain.StockBatch{
		ID:                uuid.NewString(),
		ProductID:         productID,
		StockDate:         date,
		QuantityInitial:   decimal.NewFromInt(qty),
		QuantityRemaining: decimal.NewFromInt(qty),
		CostPrice:         cost,
		CreatedAt:         time.Now().UTC(),
	}
	if _, err := s.AddStockBatch(context.Background(), b); err != nil {
		t.Fatalf("add batch: %v", err)
	}
	return b
}

func TestIntegrationSaleWalksFIFOAndVoidRestores(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	product := seedTestProduct(t, s, "Kopi Bubuk", 2000)
	seedTestBatch(t, s, product.ID, "2026-08-30", 10, 1000)
	seedTestBatch(t, s, product.ID, "2026-08-31", 5, 1200)

	now := time.Now().UTC()
	sale, err := s.ProcessSale(ctx, domain.SaleDraft{
		ID:            uuid.NewString(),
		Number:        "TRX-20260901-TEST01",
		PaymentAmount: 30000,
		CreatedAt:     now,
		Lines: []domain.CartLine{
			{ProductID: product.ID, Quantity: decimal.NewFromInt(12), SellingPrice: 2000},
		},
	})
	if err != nil {
		t.Fatalf("ProcessSale: %v", err)
	}
	if sale.TotalAmount != 24000 {
		t.Errorf("total = %d, want 24000", sale.TotalAmount)
	}
	// 10*(2000-1000) + 2*(2000-1200)
	if sale.TotalProfit != 11600 {
		t.Errorf("profit = %d, want 11600", sale.TotalProfit)
	}

	detail, err := s.GetTransactionDetail(ctx, sale.TransactionID)
	if err != nil {
		t.Fatalf("GetTransactionDetail: %v", err)
	}
	if len(detail.Items) != 2 {
		t.Fatalf("items = %d, want 2 (one per consumed batch)", len(detail.Items))
	}

	remaining, err := s.TotalStock(ctx, product.ID)
	if err != nil {
		t.Fatalf("TotalStock: %v", err)
	}
	if !remaining.Equal(decimal.NewFromInt(3)) {
		t.Errorf("remaining = %s, want 3", remaining)
	}

	void, err := s.VoidSale(ctx, domain.VoidDraft{
		ID:         uuid.NewString(),
		Number:     "TRX-20260901-TEST02",
		OriginalID: sale.TransactionID,
		CreatedAt:  now.Add(time.Minute),
		DayStart:   now.Add(-12 * time.Hour),
		DayEnd:     now.Add(12 * time.Hour),
	})
	if err != nil {
		t.Fatalf("VoidSale: %v", err)
	}
	if void.VoidTransactionID == "" {
		t.Fatal("expected void transaction id")
	}

	restored, err := s.TotalStock(ctx, product.ID)
	if err != nil {
		t.Fatalf("TotalStock after void: %v", err)
	}
	if !restored.Equal(decimal.NewFromInt(15)) {
		t.Errorf("restored = %s, want 15", restored)
	}

	_, err = s.VoidSale(ctx, domain.VoidDraft{
		ID:         uuid.NewString(),
		Number:     "TRX-20260901-TEST03",
		OriginalID: sale.TransactionID,
		CreatedAt:  now.Add(2 * time.Minute),
		DayStart:   now.Add(-12 * time.Hour),
		DayEnd:     now.Add(12 * time.Hour),
	})
	if !errors.Is(err, store.ErrVoidNotAllowed) {
		t.Fatalf("second void err = %v, want ErrVoidNotAllowed", err)
	}
}

func TestIntegrationInsufficientStockLeavesLedgerUntouched(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	product := seedTestProduct(t, s, "Gula Pasir", 18000)
	seedTestBatch(t, s, product.ID, "2026-08-31", 3, 15000)

	_, err := s.ProcessSale(ctx, domain.SaleDraft{
		ID:            uuid.NewString(),
		Number:        "TRX-20260901-TEST04",
		PaymentAmount: 100000,
		CreatedAt:     time.Now().UTC(),
		Lines: []domain.CartLine{
			{ProductID: product.ID, Quantity: decimal.NewFromInt(5), SellingPrice: 18000},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}

	var shortage *store.StockShortage
	if !errors.As(err, &shortage) {
		t.Fatalf("err %v does not carry shortage detail", err)
	}
	if !shortage.Available.Equal(decimal.NewFromInt(3)) {
		t.Errorf("available = %s, want 3", shortage.Available)
	}

	remaining, err := s.TotalStock(ctx, product.ID)
	if err != nil {
		t.Fatalf("TotalStock: %v", err)
	}
	if !remaining.Equal(decimal.NewFromInt(3)) {
		t.Errorf("remaining = %s, want 3", remaining)
	}
}

func TestIntegrationDailySummaryExcludesVoided(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	product := seedTestProduct(t, s, "Teh Celup", 9000)
	seedTestBatch(t, s, product.ID, "2026-08-31", 20, 6000)

	now := time.Now().UTC()
	dayStart := now.Add(-12 * time.Hour)
	dayEnd := now.Add(12 * time.Hour)

	first, err := s.ProcessSale(ctx, domain.SaleDraft{
		ID: uuid.NewString(), Number: "TRX-20260901-TEST05", PaymentAmount: 9000, CreatedAt: now,
		Lines: []domain.CartLine{{ProductID: product.ID, Quantity: decimal.NewFromInt(1), SellingPrice: 9000}},
	})
	if err != nil {
		t.Fatalf("first sale: %v", err)
	}
	if _, err := s.ProcessSale(ctx, domain.SaleDraft{
		ID: uuid.NewString(), Number: "TRX-20260901-TEST06", PaymentAmount: 18000, CreatedAt: now,
		Lines: []domain.CartLine{{ProductID: product.ID, Quantity: decimal.NewFromInt(2), SellingPrice: 9000}},
	}); err != nil {
		t.Fatalf("second sale: %v", err)
	}
	if _, err := s.VoidSale(ctx, domain.VoidDraft{
		ID: uuid.NewString(), Number: "TRX-20260901-TEST07", OriginalID: first.TransactionID,
		CreatedAt: now.Add(time.Minute), DayStart: dayStart, DayEnd: dayEnd,
	}); err != nil {
		t.Fatalf("void: %v", err)
	}

	summary, err := s.DailySummary(ctx, dayStart, dayEnd)
	if err != nil {
		t.Fatalf("DailySummary: %v", err)
	}
	if summary.TotalTransactions != 1 {
		t.Errorf("transactions = %d, want 1", summary.TotalTransactions)
	}
	if summary.TotalRevenue != 18000 {
		t.Errorf("revenue = %d, want 18000", summary.TotalRevenue)
	}
}
