// Package memory implements store.Repository in process memory. It mirrors
// the postgres store's semantics so service tests and dev mode run without a
// database.
package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"kasirtoko/backend/internal/domain"
	"kasirtoko/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	categories      map[string]domain.Category
	products        map[string]domain.Product
	batches         map[string]*domain.StockBatch
	transactions    map[string]*domain.Transaction
	itemsByTx       map[string][]domain.TransactionItem
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial user accounts for dev/demo mode. Credentials
// come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; hardcoded dev
// defaults are used with a warning when unset. Production runs against
// postgres and never touches these.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "kasir123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"kasir", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		categories:      make(map[string]domain.Category),
		products:        make(map[string]domain.Product),
		batches:         make(map[string]*domain.StockBatch),
		transactions:    make(map[string]*domain.Transaction),
		itemsByTx:       make(map[string][]domain.TransactionItem),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) CreateCategory(_ context.Context, c domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.categories {
		if strings.EqualFold(existing.Name, c.Name) {
			return fmt.Errorf("%w: category %q already exists", store.ErrValidation, c.Name)
		}
	}
	s.categories[c.ID] = c
	return nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories, nil
}

func (s *Store) CreateProduct(_ context.Context, p domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Barcode != "" {
		for _, existing := range s.products {
			if existing.Barcode == p.Barcode {
				return fmt.Errorf("%w: barcode %q already registered", store.ErrValidation, p.Barcode)
			}
		}
	}
	s.products[p.ID] = p
	return nil
}

func (s *Store) UpdateProduct(_ context.Context, p domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[p.ID]
	if !ok {
		return store.ErrNotFound
	}
	if p.Barcode != "" {
		for id, other := range s.products {
			if id != p.ID && other.Barcode == p.Barcode {
				return fmt.Errorf("%w: barcode %q already registered", store.ErrValidation, p.Barcode)
			}
		}
	}
	p.Active = existing.Active
	p.CreatedAt = existing.CreatedAt
	s.products[p.ID] = p
	return nil
}

func (s *Store) GetProduct(_ context.Context, id string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
	}
	return s.withCategoryName(p), nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if p.Barcode == barcode && p.Active {
			return s.withCategoryName(p), nil
		}
	}
	return domain.Product{}, fmt.Errorf("%w: barcode %s", store.ErrNotFound, barcode)
}

func (s *Store) ListProducts(_ context.Context, f store.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if f.ActiveOnly && !p.Active {
			continue
		}
		if f.NonBarcodeOnly && !p.NonBarcode {
			continue
		}
		if f.Search != "" {
			needle := strings.ToLower(f.Search)
			if !strings.Contains(strings.ToLower(p.Name), needle) && p.Barcode != f.Search && p.SKU != f.Search {
				continue
			}
		}
		products = append(products, s.withCategoryName(p))
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (s *Store) SetProductActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return fmt.Errorf("%w: product %s", store.ErrNotFound, id)
	}
	p.Active = active
	p.UpdatedAt = time.Now().UTC()
	s.products[id] = p
	return nil
}

func (s *Store) withCategoryName(p domain.Product) domain.Product {
	if c, ok := s.categories[p.CategoryID]; ok {
		p.CategoryName = c.Name
	}
	return p
}

func (s *Store) TotalStock(_ context.Context, productID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalStockLocked(productID), nil
}

func (s *Store) totalStockLocked(productID string) decimal.Decimal {
	total := decimal.Zero
	for _, b := range s.batches {
		if b.ProductID == productID {
			total = total.Add(b.QuantityRemaining)
		}
	}
	return total
}

// fifoBatchesLocked returns a product's batches with stock in consumption
// order: oldest stock date first, creation time then id breaking ties.
func (s *Store) fifoBatchesLocked(productID string) []*domain.StockBatch {
	batches := make([]*domain.StockBatch, 0, 8)
	for _, b := range s.batches {
		if b.ProductID == productID && b.QuantityRemaining.Sign() > 0 {
			batches = append(batches, b)
		}
	}
	sort.Slice(batches, func(i, j int) bool {
		if batches[i].StockDate != batches[j].StockDate {
			return batches[i].StockDate < batches[j].StockDate
		}
		if !batches[i].CreatedAt.Equal(batches[j].CreatedAt) {
			return batches[i].CreatedAt.Before(batches[j].CreatedAt)
		}
		return batches[i].ID < batches[j].ID
	})
	return batches
}

func (s *Store) GetStockDetail(_ context.Context, productID string) (domain.StockDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok {
		return domain.StockDetail{}, fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
	}
	p = s.withCategoryName(p)

	detail := domain.StockDetail{
		ProductID:    p.ID,
		ProductName:  p.Name,
		CategoryName: p.CategoryName,
		Barcode:      p.Barcode,
		Unit:         p.Unit,
		TotalStock:   decimal.Zero,
		Batches:      make([]domain.StockBatch, 0, 8),
	}
	for _, b := range s.fifoBatchesLocked(productID) {
		detail.TotalStock = detail.TotalStock.Add(b.QuantityRemaining)
		detail.Batches = append(detail.Batches, *b)
	}
	return detail, nil
}

func (s *Store) ListStockSummaries(_ context.Context, search string) ([]domain.ProductStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]domain.ProductStock, 0, len(s.products))
	for _, p := range s.products {
		if search != "" {
			needle := strings.ToLower(search)
			if !strings.Contains(strings.ToLower(p.Name), needle) && p.Barcode != search {
				continue
			}
		}
		p = s.withCategoryName(p)
		ps := domain.ProductStock{
			ProductID:    p.ID,
			Name:         p.Name,
			Barcode:      p.Barcode,
			CategoryName: p.CategoryName,
			Unit:         p.Unit,
			Active:       p.Active,
			TotalStock:   decimal.Zero,
		}
		for _, b := range s.batches {
			if b.ProductID == p.ID {
				ps.TotalStock = ps.TotalStock.Add(b.QuantityRemaining)
				if b.QuantityRemaining.Sign() > 0 {
					ps.BatchCount++
				}
			}
		}
		summaries = append(summaries, ps)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	return summaries, nil
}

func (s *Store) AddStockBatch(_ context.Context, b domain.StockBatch) (domain.AddStockResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[b.ProductID]
	if !ok {
		return domain.AddStockResult{}, fmt.Errorf("%w: product %s", store.ErrNotFound, b.ProductID)
	}
	if !p.Active {
		return domain.AddStockResult{}, fmt.Errorf("%w: product %s is inactive", store.ErrValidation, b.ProductID)
	}
	b.QuantityRemaining = b.QuantityInitial
	copied := b
	s.batches[b.ID] = &copied

	return domain.AddStockResult{
		BatchID:    b.ID,
		ProductID:  b.ProductID,
		TotalStock: s.totalStockLocked(b.ProductID),
	}, nil
}

func (s *Store) RemoveStock(_ context.Context, productID string, qty decimal.Decimal) (domain.RemoveStockResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[productID]; !ok {
		return domain.RemoveStockResult{}, fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
	}

	batches := s.fifoBatchesLocked(productID)
	available := decimal.Zero
	for _, b := range batches {
		available = available.Add(b.QuantityRemaining)
	}
	if available.Cmp(qty) < 0 {
		return domain.RemoveStockResult{}, &store.StockShortage{ProductID: productID, Requested: qty, Available: available}
	}

	remaining := qty
	usages := make([]domain.BatchUsage, 0, len(batches))
	for _, b := range batches {
		if remaining.Sign() == 0 {
			break
		}
		used := remaining
		if used.Cmp(b.QuantityRemaining) > 0 {
			used = b.QuantityRemaining
		}
		b.QuantityRemaining = b.QuantityRemaining.Sub(used)
		usages = append(usages, domain.BatchUsage{BatchID: b.ID, RemovedQty: used, CostPrice: b.CostPrice})
		remaining = remaining.Sub(used)
	}
	if remaining.Sign() > 0 {
		return domain.RemoveStockResult{}, fmt.Errorf("%w: fifo walk left %s unplaced for product %s", store.ErrConsistency, remaining, productID)
	}

	return domain.RemoveStockResult{
		ProductID:  productID,
		RemovedQty: qty,
		TotalStock: s.totalStockLocked(productID),
		Usages:     usages,
	}, nil
}

func (s *Store) UpdateStockBatch(_ context.Context, batchID string, req domain.UpdateStockBatchRequest) (domain.StockBatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[batchID]
	if !ok {
		return domain.StockBatchResult{}, fmt.Errorf("%w: batch %s", store.ErrNotFound, batchID)
	}

	used := b.QuantityInitial.Sub(b.QuantityRemaining)
	if req.QuantityInitial.Cmp(used) < 0 {
		return domain.StockBatchResult{}, fmt.Errorf("%w: new quantity %s below already used %s", store.ErrValidation, req.QuantityInitial, used)
	}

	b.QuantityInitial = req.QuantityInitial
	b.QuantityRemaining = req.QuantityInitial.Sub(used)
	b.CostPrice = req.CostPrice
	b.StockDate = req.StockDate

	return domain.StockBatchResult{
		BatchID:    batchID,
		ProductID:  b.ProductID,
		TotalStock: s.totalStockLocked(b.ProductID),
	}, nil
}

func (s *Store) DeleteStockBatch(_ context.Context, batchID string) (domain.StockBatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[batchID]
	if !ok {
		return domain.StockBatchResult{}, fmt.Errorf("%w: batch %s", store.ErrNotFound, batchID)
	}
	if b.QuantityInitial.Cmp(b.QuantityRemaining) != 0 {
		return domain.StockBatchResult{}, fmt.Errorf("%w: batch %s already partially consumed", store.ErrValidation, batchID)
	}
	// A fully restored batch looks untouched but keeps its item history.
	for _, items := range s.itemsByTx {
		for _, item := range items {
			if item.BatchID == batchID {
				return domain.StockBatchResult{}, fmt.Errorf("%w: batch %s is referenced by transactions", store.ErrValidation, batchID)
			}
		}
	}
	delete(s.batches, batchID)

	return domain.StockBatchResult{
		BatchID:    batchID,
		ProductID:  b.ProductID,
		TotalStock: s.totalStockLocked(b.ProductID),
	}, nil
}

func (s *Store) ProcessSale(_ context.Context, draft domain.SaleDraft) (domain.SaleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.transactions {
		if t.Number == draft.Number {
			return domain.SaleResult{}, fmt.Errorf("transaction number collision: %s", draft.Number)
		}
	}

	// Plan every mutation before applying any so a failed line leaves the
	// ledger untouched, matching the database transaction.
	type consumption struct {
		batch *domain.StockBatch
		used  decimal.Decimal
	}
	plans := make([]consumption, 0, len(draft.Lines))
	items := make([]domain.TransactionItem, 0, len(draft.Lines))
	totalAmount := int64(0)
	totalProfit := int64(0)

	planned := make(map[string]decimal.Decimal)
	for _, line := range draft.Lines {
		if line.NonBarcode {
			subtotal := mulMoney(line.Quantity, line.SellingPrice)
			items = append(items, domain.TransactionItem{
				ID:            newItemID(draft.ID, len(items)),
				TransactionID: draft.ID,
				ProductID:     line.ProductID,
				Name:          line.Name,
				Quantity:      line.Quantity,
				SellingPrice:  line.SellingPrice,
				Subtotal:      subtotal,
				Profit:        subtotal,
			})
			totalAmount += subtotal
			totalProfit += subtotal
			continue
		}

		if _, ok := s.products[line.ProductID]; !ok {
			return domain.SaleResult{}, fmt.Errorf("%w: product %s", store.ErrNotFound, line.ProductID)
		}

		batches := s.fifoBatchesLocked(line.ProductID)
		available := decimal.Zero
		for _, b := range batches {
			available = available.Add(b.QuantityRemaining.Sub(planned[b.ID]))
		}
		if available.Cmp(line.Quantity) < 0 {
			return domain.SaleResult{}, &store.StockShortage{ProductID: line.ProductID, Requested: line.Quantity, Available: available}
		}

		remaining := line.Quantity
		for _, b := range batches {
			if remaining.Sign() == 0 {
				break
			}
			free := b.QuantityRemaining.Sub(planned[b.ID])
			if free.Sign() <= 0 {
				continue
			}
			used := remaining
			if used.Cmp(free) > 0 {
				used = free
			}
			planned[b.ID] = planned[b.ID].Add(used)
			plans = append(plans, consumption{batch: b, used: used})

			subtotal := mulMoney(used, line.SellingPrice)
			profit := mulMoney(used, line.SellingPrice-b.CostPrice)
			items = append(items, domain.TransactionItem{
				ID:            newItemID(draft.ID, len(items)),
				TransactionID: draft.ID,
				ProductID:     line.ProductID,
				BatchID:       b.ID,
				Quantity:      used,
				SellingPrice:  line.SellingPrice,
				CostPrice:     b.CostPrice,
				Subtotal:      subtotal,
				Profit:        profit,
			})
			totalAmount += subtotal
			totalProfit += profit
			remaining = remaining.Sub(used)
		}
		if remaining.Sign() > 0 {
			return domain.SaleResult{}, fmt.Errorf("%w: fifo walk left %s unplaced for product %s", store.ErrConsistency, remaining, line.ProductID)
		}
	}

	for _, plan := range plans {
		plan.batch.QuantityRemaining = plan.batch.QuantityRemaining.Sub(plan.used)
	}

	changeAmount := draft.PaymentAmount - totalAmount
	s.transactions[draft.ID] = &domain.Transaction{
		ID:            draft.ID,
		Number:        draft.Number,
		TotalAmount:   totalAmount,
		TotalProfit:   totalProfit,
		PaymentAmount: draft.PaymentAmount,
		ChangeAmount:  changeAmount,
		Type:          domain.TxTypeSale,
		CreatedAt:     draft.CreatedAt,
	}
	s.itemsByTx[draft.ID] = items

	return domain.SaleResult{
		TransactionID:     draft.ID,
		TransactionNumber: draft.Number,
		TotalAmount:       totalAmount,
		TotalProfit:       totalProfit,
		ChangeAmount:      changeAmount,
	}, nil
}

func (s *Store) VoidSale(_ context.Context, draft domain.VoidDraft) (domain.VoidResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.transactions[draft.OriginalID]
	if !ok {
		return domain.VoidResult{}, fmt.Errorf("%w: transaction %s", store.ErrNotFound, draft.OriginalID)
	}
	if original.Type != domain.TxTypeSale {
		return domain.VoidResult{}, fmt.Errorf("%w: transaction %s is not a sale", store.ErrVoidNotAllowed, original.ID)
	}
	if s.voidedLocked(original.ID) {
		return domain.VoidResult{}, fmt.Errorf("%w: transaction %s already voided", store.ErrVoidNotAllowed, original.ID)
	}
	createdAt := original.CreatedAt.UTC()
	if createdAt.Before(draft.DayStart) || !createdAt.Before(draft.DayEnd) {
		return domain.VoidResult{}, fmt.Errorf("%w: transaction %s outside current business day", store.ErrVoidNotAllowed, original.ID)
	}

	// Validate all restorations before touching any batch.
	for _, item := range s.itemsByTx[original.ID] {
		if item.BatchID == "" {
			continue
		}
		b, ok := s.batches[item.BatchID]
		if !ok || b.QuantityRemaining.Add(item.Quantity).Cmp(b.QuantityInitial) > 0 {
			return domain.VoidResult{}, fmt.Errorf("%w: restoring batch %s would exceed its initial quantity", store.ErrConsistency, item.BatchID)
		}
	}

	voidItems := make([]domain.TransactionItem, 0, len(s.itemsByTx[original.ID]))
	for _, item := range s.itemsByTx[original.ID] {
		if item.BatchID != "" {
			b := s.batches[item.BatchID]
			b.QuantityRemaining = b.QuantityRemaining.Add(item.Quantity)
		}
		voidItems = append(voidItems, domain.TransactionItem{
			ID:            newItemID(draft.ID, len(voidItems)),
			TransactionID: draft.ID,
			ProductID:     item.ProductID,
			BatchID:       item.BatchID,
			Name:          item.Name,
			Quantity:      item.Quantity.Neg(),
			SellingPrice:  item.SellingPrice,
			CostPrice:     item.CostPrice,
			Subtotal:      -item.Subtotal,
			Profit:        -item.Profit,
		})
	}

	original.Voided = true
	s.transactions[draft.ID] = &domain.Transaction{
		ID:          draft.ID,
		Number:      draft.Number,
		TotalAmount: -original.TotalAmount,
		TotalProfit: -original.TotalProfit,
		Type:        domain.TxTypeVoid,
		ReferenceID: original.ID,
		CreatedAt:   draft.CreatedAt,
	}
	s.itemsByTx[draft.ID] = voidItems

	return domain.VoidResult{
		VoidTransactionID:     draft.ID,
		VoidTransactionNumber: draft.Number,
	}, nil
}

// voidedLocked derives voided status from the existence of a referencing void
// transaction, never from the cached flag.
func (s *Store) voidedLocked(txID string) bool {
	for _, t := range s.transactions {
		if t.Type == domain.TxTypeVoid && t.ReferenceID == txID {
			return true
		}
	}
	return false
}

func (s *Store) GetTransactionDetail(_ context.Context, id string) (domain.TransactionDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transactions[id]
	if !ok {
		return domain.TransactionDetail{}, fmt.Errorf("%w: transaction %s", store.ErrNotFound, id)
	}

	detail := domain.TransactionDetail{Transaction: *t}
	detail.Transaction.Voided = s.voidedLocked(id)
	detail.Items = make([]domain.TransactionItem, 0, len(s.itemsByTx[id]))
	for _, item := range s.itemsByTx[id] {
		item.Name = s.displayNameLocked(item)
		detail.Items = append(detail.Items, item)
	}
	return detail, nil
}

func (s *Store) displayNameLocked(item domain.TransactionItem) string {
	if p, ok := s.products[item.ProductID]; ok {
		return p.Name
	}
	if item.Name != "" {
		return item.Name
	}
	return "Item Manual"
}

func (s *Store) ListTransactions(_ context.Context, from, to time.Time) ([]domain.TransactionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]domain.TransactionSummary, 0, 64)
	for _, t := range s.transactions {
		if t.Type != domain.TxTypeSale {
			continue
		}
		if t.CreatedAt.Before(from) || !t.CreatedAt.Before(to) {
			continue
		}
		summaries = append(summaries, domain.TransactionSummary{
			ID:          t.ID,
			Number:      t.Number,
			TotalAmount: t.TotalAmount,
			Voided:      s.voidedLocked(t.ID),
			CreatedAt:   t.CreatedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].CreatedAt.After(summaries[j].CreatedAt) })
	return summaries, nil
}

// activeSalesLocked returns sale transactions in [from, to) with no
// referencing void.
func (s *Store) activeSalesLocked(from, to time.Time) []*domain.Transaction {
	sales := make([]*domain.Transaction, 0, 64)
	for _, t := range s.transactions {
		if t.Type != domain.TxTypeSale {
			continue
		}
		if t.CreatedAt.Before(from) || !t.CreatedAt.Before(to) {
			continue
		}
		if s.voidedLocked(t.ID) {
			continue
		}
		sales = append(sales, t)
	}
	return sales
}

func (s *Store) DailySummary(_ context.Context, dayStart, dayEnd time.Time) (domain.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summary domain.DailySummary
	for _, t := range s.activeSalesLocked(dayStart, dayEnd) {
		summary.TotalTransactions++
		summary.TotalRevenue += t.TotalAmount
		summary.TotalProfit += t.TotalProfit
	}
	return summary, nil
}

func (s *Store) HourlyAnalytics(_ context.Context, dayStart, dayEnd time.Time, offset time.Duration) ([]domain.HourlyBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byHour := make(map[string]*domain.HourlyBucket)
	for _, t := range s.activeSalesLocked(dayStart, dayEnd) {
		hour := t.CreatedAt.UTC().Add(offset).Format("15")
		bucket, ok := byHour[hour]
		if !ok {
			bucket = &domain.HourlyBucket{Hour: hour}
			byHour[hour] = bucket
		}
		bucket.Transactions++
		bucket.Revenue += t.TotalAmount
		bucket.Profit += t.TotalProfit
	}

	buckets := make([]domain.HourlyBucket, 0, len(byHour))
	for _, b := range byHour {
		buckets = append(buckets, *b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Hour < buckets[j].Hour })
	return buckets, nil
}

func (s *Store) TopProducts(_ context.Context, dayStart, dayEnd time.Time, limit int) ([]domain.TopProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 5
	}
	byName := make(map[string]decimal.Decimal)
	for _, t := range s.activeSalesLocked(dayStart, dayEnd) {
		for _, item := range s.itemsByTx[t.ID] {
			if item.Quantity.Sign() <= 0 {
				continue
			}
			name := s.displayNameLocked(item)
			byName[name] = byName[name].Add(item.Quantity)
		}
	}

	top := make([]domain.TopProduct, 0, len(byName))
	for name, qty := range byName {
		top = append(top, domain.TopProduct{ProductName: name, TotalQty: qty})
	}
	sort.Slice(top, func(i, j int) bool {
		if c := top[i].TotalQty.Cmp(top[j].TotalQty); c != 0 {
			return c > 0
		}
		return top[i].ProductName < top[j].ProductName
	})
	if len(top) > limit {
		top = top[:limit]
	}
	return top, nil
}

func (s *Store) LowStockProducts(_ context.Context, limit int) ([]domain.LowStockProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 10
	}
	low := make([]domain.LowStockProduct, 0, limit)
	for _, p := range s.products {
		if !p.Active || p.NonBarcode {
			continue
		}
		total := s.totalStockLocked(p.ID)
		if total.Cmp(p.MinStock) > 0 {
			continue
		}
		low = append(low, domain.LowStockProduct{
			ProductName: p.Name,
			Unit:        p.Unit,
			MinStock:    p.MinStock,
			TotalStock:  total,
		})
	}
	sort.Slice(low, func(i, j int) bool {
		if c := low[i].TotalStock.Cmp(low[j].TotalStock); c != 0 {
			return c < 0
		}
		return low[i].ProductName < low[j].ProductName
	})
	if len(low) > limit {
		low = low[:limit]
	}
	return low, nil
}

func (s *Store) SalesSummary(_ context.Context, from, to time.Time) ([]domain.ProductSalesSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byProduct := make(map[string]*domain.ProductSalesSummary)
	for _, t := range s.activeSalesLocked(from, to) {
		for _, item := range s.itemsByTx[t.ID] {
			if item.Quantity.Sign() <= 0 {
				continue
			}
			key := item.ProductID
			name := s.displayNameLocked(item)
			if key == "" {
				key = "manual:" + name
			}
			summary, ok := byProduct[key]
			if !ok {
				summary = &domain.ProductSalesSummary{ProductID: item.ProductID, ProductName: name}
				if p, exists := s.products[item.ProductID]; exists {
					summary.Barcode = p.Barcode
					summary.CategoryName = s.withCategoryName(p).CategoryName
				}
				byProduct[key] = summary
			}
			summary.TotalQty = summary.TotalQty.Add(item.Quantity)
			summary.TotalRevenue += item.Subtotal
			summary.TotalProfit += item.Profit
		}
	}

	summaries := make([]domain.ProductSalesSummary, 0, len(byProduct))
	for _, summary := range byProduct {
		summaries = append(summaries, *summary)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].TotalRevenue > summaries[j].TotalRevenue })
	return summaries, nil
}

func (s *Store) ProductSalesDetail(_ context.Context, productID string, from, to time.Time) (domain.ProductSalesDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok {
		return domain.ProductSalesDetail{}, fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
	}
	p = s.withCategoryName(p)

	detail := domain.ProductSalesDetail{
		Product: domain.ProductSalesSummary{
			ProductID:    p.ID,
			Barcode:      p.Barcode,
			ProductName:  p.Name,
			CategoryName: p.CategoryName,
		},
		Items: make([]domain.ProductSalesItem, 0, 32),
	}
	for _, t := range s.activeSalesLocked(from, to) {
		for _, item := range s.itemsByTx[t.ID] {
			if item.ProductID != productID || item.Quantity.Sign() <= 0 {
				continue
			}
			detail.Product.TotalQty = detail.Product.TotalQty.Add(item.Quantity)
			detail.Product.TotalRevenue += item.Subtotal
			detail.Product.TotalProfit += item.Profit
			detail.Items = append(detail.Items, domain.ProductSalesItem{
				TransactionID: t.ID,
				Number:        t.Number,
				CreatedAt:     t.CreatedAt,
				Quantity:      item.Quantity,
				Subtotal:      item.Subtotal,
				Profit:        item.Profit,
			})
		}
	}
	sort.Slice(detail.Items, func(i, j int) bool { return detail.Items[i].CreatedAt.Before(detail.Items[j].CreatedAt) })
	return detail, nil
}

func (s *Store) GetUser(_ context.Context, username string) (domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usersByUsername[username]
	if !ok {
		return domain.UserAccount{}, fmt.Errorf("%w: user %s", store.ErrNotFound, username)
	}
	return u, nil
}

func (s *Store) CreateUser(_ context.Context, u domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByUsername[u.Username]; ok {
		return nil
	}
	s.usersByUsername[u.Username] = u
	return nil
}

func mulMoney(qty decimal.Decimal, price int64) int64 {
	return qty.Mul(decimal.NewFromInt(price)).Round(0).IntPart()
}

func newItemID(txID string, n int) string {
	return fmt.Sprintf("%s-item-%d", txID, n)
}
