// Package service validates and normalizes requests, assigns ids and
// transaction numbers, computes business-day windows, and delegates atomic
// execution to the store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"kasirtoko/backend/internal/cache"
	"kasirtoko/backend/internal/domain"
	"kasirtoko/backend/internal/store"
	"kasirtoko/backend/internal/trxno"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo      store.Repository
	reports   cache.ReportCache
	tzOffset  time.Duration
	reportTTL time.Duration
	now       func() time.Time
}

func New(repo store.Repository, reports cache.ReportCache, tzOffset time.Duration, reportTTL time.Duration) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if reportTTL <= 0 {
		reportTTL = 60 * time.Second
	}

	return &Service{
		repo:      repo,
		reports:   reports,
		tzOffset:  tzOffset,
		reportTTL: reportTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock. Tests use this to pin the business
// day.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ErrForbidden marks an operation the actor's role does not permit.
var ErrForbidden = errors.New("admin role required")

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

// businessDate is the calendar date of t in the store's local day, which
// starts tzOffset after midnight UTC.
func (s *Service) businessDate(t time.Time) string {
	return t.UTC().Add(s.tzOffset).Format("2006-01-02")
}

// businessDayWindow returns the UTC instants bounding the business day
// containing t.
func (s *Service) businessDayWindow(t time.Time) (time.Time, time.Time) {
	shifted := t.UTC().Add(s.tzOffset)
	day := time.Date(shifted.Year(), shifted.Month(), shifted.Day(), 0, 0, 0, 0, time.UTC)
	start := day.Add(-s.tzOffset)
	return start, start.Add(24 * time.Hour)
}

// dateWindow converts a YYYY-MM-DD business date to its UTC window.
func (s *Service) dateWindow(date string) (time.Time, time.Time, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid date %q", store.ErrValidation, date)
	}
	start := day.Add(-s.tzOffset)
	return start, start.Add(24 * time.Hour), nil
}

// rangeWindow converts an inclusive YYYY-MM-DD business date range to its UTC
// window.
func (s *Service) rangeWindow(from, to string) (time.Time, time.Time, error) {
	start, _, err := s.dateWindow(from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	_, end, err := s.dateWindow(to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: date range %s..%s is reversed", store.ErrValidation, from, to)
	}
	return start, end, nil
}

func (s *Service) CreateCategory(ctx context.Context, name string) (domain.Category, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, fmt.Errorf("%w: category name is required", store.ErrValidation)
	}

	category := domain.Category{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateCategory(ctx, category); err != nil {
		return domain.Category{}, err
	}
	return category, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Barcode = strings.TrimSpace(req.Barcode)
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Unit = strings.TrimSpace(req.Unit)

	if req.Name == "" || req.Unit == "" {
		return domain.Product{}, fmt.Errorf("%w: name and unit are required", store.ErrValidation)
	}
	if req.SellingPrice < 1 {
		return domain.Product{}, fmt.Errorf("%w: selling price must be positive", store.ErrValidation)
	}
	if req.MinStock.Sign() < 0 {
		return domain.Product{}, fmt.Errorf("%w: min stock cannot be negative", store.ErrValidation)
	}
	if !req.NonBarcode && req.Barcode == "" {
		return domain.Product{}, fmt.Errorf("%w: barcode is required for barcoded products", store.ErrValidation)
	}

	now := s.now()
	product := domain.Product{
		ID:           uuid.NewString(),
		SKU:          req.SKU,
		Barcode:      req.Barcode,
		Name:         req.Name,
		CategoryID:   req.CategoryID,
		SellingPrice: req.SellingPrice,
		Unit:         req.Unit,
		MinStock:     req.MinStock,
		NonBarcode:   req.NonBarcode,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("%w: name cannot be empty", store.ErrValidation)
		}
		updated.Name = name
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.CategoryID != nil {
		updated.CategoryID = *req.CategoryID
	}
	if req.SellingPrice != nil {
		if *req.SellingPrice < 1 {
			return domain.Product{}, fmt.Errorf("%w: selling price must be positive", store.ErrValidation)
		}
		updated.SellingPrice = *req.SellingPrice
	}
	if req.Unit != nil {
		unit := strings.TrimSpace(*req.Unit)
		if unit == "" {
			return domain.Product{}, fmt.Errorf("%w: unit cannot be empty", store.ErrValidation)
		}
		updated.Unit = unit
	}
	if req.MinStock != nil {
		if req.MinStock.Sign() < 0 {
			return domain.Product{}, fmt.Errorf("%w: min stock cannot be negative", store.ErrValidation)
		}
		updated.MinStock = *req.MinStock
	}
	if req.NonBarcode != nil {
		updated.NonBarcode = *req.NonBarcode
	}
	updated.UpdatedAt = s.now()

	if err := s.repo.UpdateProduct(ctx, updated); err != nil {
		return domain.Product{}, err
	}
	return updated, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) GetProductByBarcode(ctx context.Context, barcode string) (domain.Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.Product{}, fmt.Errorf("%w: barcode is required", store.ErrValidation)
	}
	return s.repo.GetProductByBarcode(ctx, barcode)
}

func (s *Service) ListProducts(ctx context.Context, search string, activeOnly bool) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, store.ProductFilter{Search: strings.TrimSpace(search), ActiveOnly: activeOnly})
}

func (s *Service) ListNonBarcodeProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, store.ProductFilter{ActiveOnly: true, NonBarcodeOnly: true})
}

// SetProductActive toggles visibility. Products are never deleted so past
// transactions keep their references.
func (s *Service) SetProductActive(ctx context.Context, id string, active bool) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.SetProductActive(ctx, id, active)
}

func (s *Service) GetStock(ctx context.Context, productID string) (domain.StockDetail, error) {
	return s.repo.GetStockDetail(ctx, productID)
}

func (s *Service) ListStock(ctx context.Context, search string) ([]domain.ProductStock, error) {
	return s.repo.ListStockSummaries(ctx, strings.TrimSpace(search))
}

func (s *Service) AddStock(ctx context.Context, req domain.AddStockRequest) (domain.AddStockResult, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.AddStockResult{}, err
	}

	if req.ProductID == "" {
		return domain.AddStockResult{}, fmt.Errorf("%w: product id is required", store.ErrValidation)
	}
	if req.Quantity.Sign() <= 0 {
		return domain.AddStockResult{}, fmt.Errorf("%w: quantity must be positive", store.ErrValidation)
	}
	if req.CostPrice < 1 {
		return domain.AddStockResult{}, fmt.Errorf("%w: cost price must be positive", store.ErrValidation)
	}

	now := s.now()
	stockDate := strings.TrimSpace(req.StockDate)
	if stockDate == "" {
		stockDate = s.businessDate(now)
	} else if _, err := time.Parse("2006-01-02", stockDate); err != nil {
		return domain.AddStockResult{}, fmt.Errorf("%w: invalid stock date %q", store.ErrValidation, req.StockDate)
	}

	return s.repo.AddStockBatch(ctx, domain.StockBatch{
		ID:                uuid.NewString(),
		ProductID:         req.ProductID,
		StockDate:         stockDate,
		QuantityInitial:   req.Quantity,
		QuantityRemaining: req.Quantity,
		CostPrice:         req.CostPrice,
		CreatedAt:         now,
	})
}

func (s *Service) RemoveStock(ctx context.Context, req domain.RemoveStockRequest) (domain.RemoveStockResult, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.RemoveStockResult{}, err
	}

	if req.ProductID == "" {
		return domain.RemoveStockResult{}, fmt.Errorf("%w: product id is required", store.ErrValidation)
	}
	if req.Quantity.Sign() <= 0 {
		return domain.RemoveStockResult{}, fmt.Errorf("%w: quantity must be positive", store.ErrValidation)
	}

	return s.repo.RemoveStock(ctx, req.ProductID, req.Quantity)
}

func (s *Service) UpdateStockBatch(ctx context.Context, batchID string, req domain.UpdateStockBatchRequest) (domain.StockBatchResult, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.StockBatchResult{}, err
	}

	if req.QuantityInitial.Sign() < 0 {
		return domain.StockBatchResult{}, fmt.Errorf("%w: quantity cannot be negative", store.ErrValidation)
	}
	if req.CostPrice < 1 {
		return domain.StockBatchResult{}, fmt.Errorf("%w: cost price must be positive", store.ErrValidation)
	}
	req.StockDate = strings.TrimSpace(req.StockDate)
	if _, err := time.Parse("2006-01-02", req.StockDate); err != nil {
		return domain.StockBatchResult{}, fmt.Errorf("%w: invalid stock date %q", store.ErrValidation, req.StockDate)
	}

	return s.repo.UpdateStockBatch(ctx, batchID, req)
}

func (s *Service) DeleteStockBatch(ctx context.Context, batchID string) (domain.StockBatchResult, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.StockBatchResult{}, err
	}
	return s.repo.DeleteStockBatch(ctx, batchID)
}

func (s *Service) ProcessSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResult, error) {
	if len(req.CartItems) == 0 {
		return domain.SaleResult{}, fmt.Errorf("%w: cart is empty", store.ErrValidation)
	}
	if req.PaymentAmount < 0 {
		return domain.SaleResult{}, fmt.Errorf("%w: payment amount cannot be negative", store.ErrValidation)
	}

	lines := make([]domain.CartLine, 0, len(req.CartItems))
	for i, line := range req.CartItems {
		line.Name = strings.TrimSpace(line.Name)
		if line.Quantity.Sign() <= 0 {
			return domain.SaleResult{}, fmt.Errorf("%w: line %d quantity must be positive", store.ErrValidation, i)
		}
		if line.SellingPrice < 1 {
			return domain.SaleResult{}, fmt.Errorf("%w: line %d selling price must be positive", store.ErrValidation, i)
		}
		if line.NonBarcode {
			if line.ProductID == "" && line.Name == "" {
				return domain.SaleResult{}, fmt.Errorf("%w: line %d manual item needs a name", store.ErrValidation, i)
			}
		} else if line.ProductID == "" {
			return domain.SaleResult{}, fmt.Errorf("%w: line %d product id is required", store.ErrValidation, i)
		}
		lines = append(lines, line)
	}

	now := s.now()
	draft := domain.SaleDraft{
		ID:            uuid.NewString(),
		Number:        trxno.New(now.Add(s.tzOffset)),
		PaymentAmount: req.PaymentAmount,
		CreatedAt:     now,
		Lines:         lines,
	}

	result, err := s.repo.ProcessSale(ctx, draft)
	if err != nil {
		return domain.SaleResult{}, err
	}

	if err := s.reports.InvalidateDay(ctx, s.businessDate(now)); err != nil {
		log.Printf("[service] WARN: failed to invalidate report cache: %v", err)
	}
	return result, nil
}

func (s *Service) VoidTransaction(ctx context.Context, transactionID string) (domain.VoidResult, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.VoidResult{}, err
	}
	if transactionID == "" {
		return domain.VoidResult{}, fmt.Errorf("%w: transaction id is required", store.ErrValidation)
	}

	now := s.now()
	dayStart, dayEnd := s.businessDayWindow(now)
	draft := domain.VoidDraft{
		ID:         uuid.NewString(),
		Number:     trxno.New(now.Add(s.tzOffset)),
		OriginalID: transactionID,
		CreatedAt:  now,
		DayStart:   dayStart,
		DayEnd:     dayEnd,
	}

	result, err := s.repo.VoidSale(ctx, draft)
	if err != nil {
		return domain.VoidResult{}, err
	}

	if err := s.reports.InvalidateDay(ctx, s.businessDate(now)); err != nil {
		log.Printf("[service] WARN: failed to invalidate report cache: %v", err)
	}
	return result, nil
}

func (s *Service) GetTransactionDetail(ctx context.Context, id string) (domain.TransactionDetail, error) {
	if id == "" {
		return domain.TransactionDetail{}, fmt.Errorf("%w: transaction id is required", store.ErrValidation)
	}
	return s.repo.GetTransactionDetail(ctx, id)
}

func (s *Service) ListTransactions(ctx context.Context, from, to string) ([]domain.TransactionSummary, error) {
	if from == "" || to == "" {
		today := s.businessDate(s.now())
		from, to = today, today
	}
	start, end, err := s.rangeWindow(from, to)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, start, end)
}

func (s *Service) DailySummary(ctx context.Context, date string) (domain.DailySummary, error) {
	if date == "" {
		date = s.businessDate(s.now())
	}
	start, end, err := s.dateWindow(date)
	if err != nil {
		return domain.DailySummary{}, err
	}

	if cached, ok, err := s.reports.GetDailySummary(ctx, date); err != nil {
		log.Printf("[service] WARN: report cache read failed: %v", err)
	} else if ok {
		return *cached, nil
	}

	summary, err := s.repo.DailySummary(ctx, start, end)
	if err != nil {
		return domain.DailySummary{}, err
	}
	summary.Date = date

	if err := s.reports.SetDailySummary(ctx, date, &summary, s.reportTTL); err != nil {
		log.Printf("[service] WARN: report cache write failed: %v", err)
	}
	return summary, nil
}

func (s *Service) HourlyAnalytics(ctx context.Context, date string) ([]domain.HourlyBucket, error) {
	if date == "" {
		date = s.businessDate(s.now())
	}
	start, end, err := s.dateWindow(date)
	if err != nil {
		return nil, err
	}
	return s.repo.HourlyAnalytics(ctx, start, end, s.tzOffset)
}

func (s *Service) TopProducts(ctx context.Context, date string, limit int) ([]domain.TopProduct, error) {
	if date == "" {
		date = s.businessDate(s.now())
	}
	start, end, err := s.dateWindow(date)
	if err != nil {
		return nil, err
	}
	return s.repo.TopProducts(ctx, start, end, limit)
}

func (s *Service) LowStockProducts(ctx context.Context, limit int) ([]domain.LowStockProduct, error) {
	return s.repo.LowStockProducts(ctx, limit)
}

func (s *Service) SalesSummary(ctx context.Context, from, to string) ([]domain.ProductSalesSummary, error) {
	if from == "" || to == "" {
		today := s.businessDate(s.now())
		from, to = today, today
	}
	start, end, err := s.rangeWindow(from, to)
	if err != nil {
		return nil, err
	}
	return s.repo.SalesSummary(ctx, start, end)
}

func (s *Service) ProductSalesDetail(ctx context.Context, productID string, from, to string) (domain.ProductSalesDetail, error) {
	if productID == "" {
		return domain.ProductSalesDetail{}, fmt.Errorf("%w: product id is required", store.ErrValidation)
	}
	if from == "" || to == "" {
		today := s.businessDate(s.now())
		from, to = today, today
	}
	start, end, err := s.rangeWindow(from, to)
	if err != nil {
		return domain.ProductSalesDetail{}, err
	}
	return s.repo.ProductSalesDetail(ctx, productID, start, end)
}

// TotalStock exposes the live ledger total for one product.
func (s *Service) TotalStock(ctx context.Context, productID string) (decimal.Decimal, error) {
	if productID == "" {
		return decimal.Zero, fmt.Errorf("%w: product id is required", store.ErrValidation)
	}
	return s.repo.TotalStock(ctx, productID)
}
