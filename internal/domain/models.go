package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID           string          `json:"id"`
	SKU          string          `json:"sku,omitempty"`
	Barcode      string          `json:"barcode,omitempty"`
	Name         string          `json:"name"`
	CategoryID   string          `json:"category_id,omitempty"`
	CategoryName string          `json:"category_name,omitempty"`
	SellingPrice int64           `json:"selling_price"`
	Unit         string          `json:"unit"`
	MinStock     decimal.Decimal `json:"min_stock"`
	NonBarcode   bool            `json:"non_barcode"`
	Active       bool            `json:"active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type ProductCreateRequest struct {
	SKU          string          `json:"sku"`
	Barcode      string          `json:"barcode"`
	Name         string          `json:"name" validate:"required"`
	CategoryID   string          `json:"category_id"`
	SellingPrice int64           `json:"selling_price" validate:"gt=0"`
	Unit         string          `json:"unit" validate:"required"`
	MinStock     decimal.Decimal `json:"min_stock"`
	NonBarcode   bool            `json:"non_barcode"`
}

type ProductUpdateRequest struct {
	Barcode      *string          `json:"barcode,omitempty"`
	Name         *string          `json:"name,omitempty"`
	CategoryID   *string          `json:"category_id,omitempty"`
	SellingPrice *int64           `json:"selling_price,omitempty"`
	Unit         *string          `json:"unit,omitempty"`
	MinStock     *decimal.Decimal `json:"min_stock,omitempty"`
	NonBarcode   *bool            `json:"non_barcode,omitempty"`
}

// StockBatch is one FIFO cost layer: a quantity of a product received at one
// cost price. quantity_remaining decreases through consumption and increases
// only through void restoration or an explicit correction.
type StockBatch struct {
	ID                string          `json:"id"`
	ProductID         string          `json:"product_id"`
	StockDate         string          `json:"stock_date"`
	QuantityInitial   decimal.Decimal `json:"quantity_initial"`
	QuantityRemaining decimal.Decimal `json:"quantity_remaining"`
	CostPrice         int64           `json:"cost_price"`
	CreatedAt         time.Time       `json:"created_at"`
}

// UsedQuantity is how much of the batch has been consumed and not restored.
func (b StockBatch) UsedQuantity() decimal.Decimal {
	return b.QuantityInitial.Sub(b.QuantityRemaining)
}

type AddStockRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
	CostPrice int64           `json:"cost_price" validate:"gt=0"`
	StockDate string          `json:"stock_date"`
}

type AddStockResult struct {
	BatchID    string          `json:"batch_id"`
	ProductID  string          `json:"product_id"`
	TotalStock decimal.Decimal `json:"total_stock"`
}

type RemoveStockRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// BatchUsage records how much of one batch a FIFO walk consumed.
type BatchUsage struct {
	BatchID    string          `json:"batch_id"`
	RemovedQty decimal.Decimal `json:"removed_qty"`
	CostPrice  int64           `json:"cost_price"`
}

type RemoveStockResult struct {
	ProductID  string          `json:"product_id"`
	RemovedQty decimal.Decimal `json:"removed_qty"`
	TotalStock decimal.Decimal `json:"total_stock"`
	Usages     []BatchUsage    `json:"usages"`
}

type UpdateStockBatchRequest struct {
	QuantityInitial decimal.Decimal `json:"quantity_initial"`
	CostPrice       int64           `json:"cost_price" validate:"gt=0"`
	StockDate       string          `json:"stock_date"`
}

type StockBatchResult struct {
	BatchID    string          `json:"batch_id"`
	ProductID  string          `json:"product_id"`
	TotalStock decimal.Decimal `json:"total_stock"`
}

// ProductStock is the per-product inventory summary row.
type ProductStock struct {
	ProductID    string          `json:"product_id"`
	Name         string          `json:"name"`
	Barcode      string          `json:"barcode,omitempty"`
	CategoryName string          `json:"category_name,omitempty"`
	Unit         string          `json:"unit"`
	Active       bool            `json:"active"`
	TotalStock   decimal.Decimal `json:"total_stock"`
	BatchCount   int             `json:"batch_count"`
}

type StockDetail struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	CategoryName string          `json:"category_name,omitempty"`
	Barcode      string          `json:"barcode,omitempty"`
	Unit         string          `json:"unit"`
	TotalStock   decimal.Decimal `json:"total_stock"`
	Batches      []StockBatch    `json:"batches"`
}

const (
	TxTypeSale = "sale"
	TxTypeVoid = "void"
)

type Transaction struct {
	ID            string    `json:"id"`
	Number        string    `json:"transaction_number"`
	TotalAmount   int64     `json:"total_amount"`
	TotalProfit   int64     `json:"total_profit"`
	PaymentAmount int64     `json:"payment_amount"`
	ChangeAmount  int64     `json:"change_amount"`
	Type          string    `json:"type"`
	ReferenceID   string    `json:"reference_transaction_id,omitempty"`
	Voided        bool      `json:"voided"`
	CreatedAt     time.Time `json:"created_at"`
}

type TransactionItem struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"`
	ProductID     string          `json:"product_id,omitempty"`
	BatchID       string          `json:"batch_id,omitempty"`
	Name          string          `json:"name,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	SellingPrice  int64           `json:"selling_price"`
	CostPrice     int64           `json:"cost_price"`
	Subtotal      int64           `json:"subtotal"`
	Profit        int64           `json:"profit"`
}

type TransactionDetail struct {
	Transaction Transaction       `json:"transaction"`
	Items       []TransactionItem `json:"items"`
}

// CartLine is one requested line on the cashier screen. NonBarcode lines are
// manual items sold outside the batch ledger: no stock check, no batch
// consumption, and no restoration when the sale is voided.
type CartLine struct {
	ProductID    string          `json:"product_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	SellingPrice int64           `json:"selling_price" validate:"gt=0"`
	Name         string          `json:"name,omitempty"`
	NonBarcode   bool            `json:"non_barcode"`
}

type SaleRequest struct {
	CartItems     []CartLine `json:"cart_items" validate:"required,min=1,dive"`
	PaymentAmount int64      `json:"payment_amount"`
}

type SaleResult struct {
	TransactionID     string `json:"transaction_id"`
	TransactionNumber string `json:"transaction_number"`
	TotalAmount       int64  `json:"total_amount"`
	TotalProfit       int64  `json:"total_profit"`
	ChangeAmount      int64  `json:"change_amount"`
}

type VoidResult struct {
	VoidTransactionID     string `json:"void_transaction_id"`
	VoidTransactionNumber string `json:"void_transaction_number"`
}

// SaleDraft is the fully validated sale handed to the store for atomic
// execution. The service fills ids and timestamps so stores stay
// deterministic under test.
type SaleDraft struct {
	ID            string
	Number        string
	PaymentAmount int64
	CreatedAt     time.Time
	Lines         []CartLine
}

// VoidDraft carries the business-day window the original transaction must
// fall into; the store re-checks every precondition inside its transaction.
type VoidDraft struct {
	ID         string
	Number     string
	OriginalID string
	CreatedAt  time.Time
	DayStart   time.Time
	DayEnd     time.Time
}

type TransactionSummary struct {
	ID          string    `json:"id"`
	Number      string    `json:"transaction_number"`
	TotalAmount int64     `json:"total_amount"`
	Voided      bool      `json:"is_voided"`
	CreatedAt   time.Time `json:"created_at"`
}

type DailySummary struct {
	Date              string `json:"date"`
	TotalTransactions int64  `json:"total_transactions"`
	TotalRevenue      int64  `json:"total_revenue"`
	TotalProfit       int64  `json:"total_profit"`
}

type HourlyBucket struct {
	Hour         string `json:"hour"`
	Transactions int64  `json:"transactions"`
	Revenue      int64  `json:"revenue"`
	Profit       int64  `json:"profit"`
}

type TopProduct struct {
	ProductName string          `json:"product_name"`
	TotalQty    decimal.Decimal `json:"total_qty"`
}

type LowStockProduct struct {
	ProductName string          `json:"product_name"`
	Unit        string          `json:"unit"`
	MinStock    decimal.Decimal `json:"min_stock"`
	TotalStock  decimal.Decimal `json:"total_stock"`
}

type ProductSalesSummary struct {
	ProductID    string          `json:"product_id"`
	Barcode      string          `json:"barcode,omitempty"`
	ProductName  string          `json:"product_name"`
	CategoryName string          `json:"category_name,omitempty"`
	TotalQty     decimal.Decimal `json:"total_qty"`
	TotalRevenue int64           `json:"total_revenue"`
	TotalProfit  int64           `json:"total_profit"`
}

type ProductSalesItem struct {
	TransactionID string          `json:"transaction_id"`
	Number        string          `json:"transaction_number"`
	CreatedAt     time.Time       `json:"created_at"`
	Quantity      decimal.Decimal `json:"quantity"`
	Subtotal      int64           `json:"subtotal"`
	Profit        int64           `json:"profit"`
}

type ProductSalesDetail struct {
	Product ProductSalesSummary `json:"product"`
	Items   []ProductSalesItem  `json:"items"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor identifies the authenticated caller of a request.
type Actor struct {
	Username string
	Role     string
}

// UserAccount holds auth credentials; Password is a bcrypt hash.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "kasir"
)
