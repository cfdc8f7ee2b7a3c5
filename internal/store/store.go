// Package store defines the persistence contract for the POS ledger and the
// error kinds every implementation reports.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"kasirtoko/backend/internal/domain"
)

var (
	// ErrValidation marks rejected input: bad quantities, unknown fields,
	// malformed dates. Safe to retry with corrected input.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a missing entity (product, batch, transaction, user).
	ErrNotFound = errors.New("not found")

	// ErrInsufficientStock marks a sale or removal that asked for more than
	// the batch ledger holds. The operation had no effect.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrConsistency marks an internal invariant violation detected mid
	// operation, such as a FIFO walk that could not place the full quantity
	// after the availability check passed. The transaction is rolled back.
	ErrConsistency = errors.New("consistency fault")

	// ErrVoidNotAllowed marks a void rejected by business rule: wrong
	// transaction type, already voided, or outside the business day.
	ErrVoidNotAllowed = errors.New("void not allowed")
)

// StockShortage reports exactly which product ran short and by how much.
// It unwraps to ErrInsufficientStock.
type StockShortage struct {
	ProductID string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *StockShortage) Error() string {
	return fmt.Sprintf("%v: product %s requested %s available %s",
		ErrInsufficientStock, e.ProductID, e.Requested, e.Available)
}

func (e *StockShortage) Unwrap() error { return ErrInsufficientStock }

// ProductFilter narrows ListProducts.
type ProductFilter struct {
	Search         string
	ActiveOnly     bool
	NonBarcodeOnly bool
}

// Repository is the persistence surface the service layer talks to. The
// postgres implementation backs production; the memory implementation backs
// unit tests and dev mode. Every multi-step mutation is atomic inside the
// implementation: either all of its writes land or none do.
type Repository interface {
	// Catalog.
	CreateCategory(ctx context.Context, c domain.Category) error
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateProduct(ctx context.Context, p domain.Product) error
	UpdateProduct(ctx context.Context, p domain.Product) error
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (domain.Product, error)
	ListProducts(ctx context.Context, f ProductFilter) ([]domain.Product, error)
	SetProductActive(ctx context.Context, id string, active bool) error

	// Batch ledger.
	TotalStock(ctx context.Context, productID string) (decimal.Decimal, error)
	GetStockDetail(ctx context.Context, productID string) (domain.StockDetail, error)
	ListStockSummaries(ctx context.Context, search string) ([]domain.ProductStock, error)
	AddStockBatch(ctx context.Context, b domain.StockBatch) (domain.AddStockResult, error)
	RemoveStock(ctx context.Context, productID string, qty decimal.Decimal) (domain.RemoveStockResult, error)
	UpdateStockBatch(ctx context.Context, batchID string, req domain.UpdateStockBatchRequest) (domain.StockBatchResult, error)
	DeleteStockBatch(ctx context.Context, batchID string) (domain.StockBatchResult, error)

	// Transactions.
	ProcessSale(ctx context.Context, draft domain.SaleDraft) (domain.SaleResult, error)
	VoidSale(ctx context.Context, draft domain.VoidDraft) (domain.VoidResult, error)
	GetTransactionDetail(ctx context.Context, id string) (domain.TransactionDetail, error)
	ListTransactions(ctx context.Context, from, to time.Time) ([]domain.TransactionSummary, error)

	// Reporting. All exclude sales that have a referencing void.
	DailySummary(ctx context.Context, dayStart, dayEnd time.Time) (domain.DailySummary, error)
	HourlyAnalytics(ctx context.Context, dayStart, dayEnd time.Time, offset time.Duration) ([]domain.HourlyBucket, error)
	TopProducts(ctx context.Context, dayStart, dayEnd time.Time, limit int) ([]domain.TopProduct, error)
	LowStockProducts(ctx context.Context, limit int) ([]domain.LowStockProduct, error)
	SalesSummary(ctx context.Context, from, to time.Time) ([]domain.ProductSalesSummary, error)
	ProductSalesDetail(ctx context.Context, productID string, from, to time.Time) (domain.ProductSalesDetail, error)

	// Auth.
	GetUser(ctx context.Context, username string) (domain.UserAccount, error)
	CreateUser(ctx context.Context, u domain.UserAccount) error
}
