package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/logger"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

// Store keeps everything behind a single mutex, so every method is
// linearizable and CommitSale is trivially all-or-nothing.
type Store struct {
	mu               sync.RWMutex
	products         map[string]domain.Product
	counters         map[string]int64
	transactionsByID map[string]*domain.Transaction
	invoiceIndex     map[string]string
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:         make(map[string]domain.Product),
		counters:         make(map[string]int64),
		transactionsByID: make(map[string]*domain.Transaction),
		invoiceIndex:     make(map[string]string),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		usersByUsername:  make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Passwords come from SEED_OWNER_PASSWORD, SEED_ADMIN_PASSWORD and
// SEED_CASHIER_PASSWORD; unset values fall back to dev defaults with a warning.
func seedUsers() map[string]domain.UserAccount {
	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log := logger.WithComponent("memory-store")
		log.Warn().Msg("using default dev credentials; set SEED_OWNER_PASSWORD, SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
		stores   []string
	}{
		{"owner", ownerPwd, domain.RoleOwner, []string{"main-store", "east-store"}},
		{"admin", adminPwd, domain.RoleAdmin, []string{"main-store", "east-store"}},
		{"cashier", cashierPwd, domain.RoleStaff, []string{"main-store"}},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			panic(fmt.Sprintf("memory-store: hash seed password for %s: %v", u.username, err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			StoreIDs:  u.stores,
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

// NewSeeded returns a store with a demo catalog for two stores and the seed users.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	products := []domain.Product{
		{ID: "prod-mie-01", StoreID: "main-store", SKU: "SKU-MIE-01", Name: "Mie Goreng Instan", PriceCents: 3500, Stock: 120, MinimumStock: 10},
		{ID: "prod-telur-01", StoreID: "main-store", SKU: "SKU-TELUR-01", Name: "Telur 10 Butir", PriceCents: 26500, Stock: 120, MinimumStock: 10},
		{ID: "prod-susu-01", StoreID: "main-store", SKU: "SKU-SUSU-01", Name: "Susu UHT 1L", PriceCents: 18900, Stock: 120, MinimumStock: 10},
		{ID: "prod-roti-01", StoreID: "main-store", SKU: "SKU-ROTI-01", Name: "Roti Tawar", PriceCents: 17800, Stock: 120, MinimumStock: 10},
		{ID: "prod-kopi-01", StoreID: "main-store", SKU: "SKU-KOPI-01", Name: "Kopi Sachet", PriceCents: 2600, Stock: 120, MinimumStock: 20},
		{ID: "prod-gula-01", StoreID: "main-store", SKU: "SKU-GULA-01", Name: "Gula 1kg", PriceCents: 17400, Stock: 4, MinimumStock: 5},
		{ID: "prod-teh-01", StoreID: "east-store", SKU: "SKU-TEH-01", Name: "Teh Celup", PriceCents: 9800, Stock: 60, MinimumStock: 10},
		{ID: "prod-air-01", StoreID: "east-store", SKU: "SKU-AIR-01", Name: "Air Mineral 600ml", PriceCents: 3900, Stock: 60, MinimumStock: 10},
	}
	for _, p := range products {
		p.Unit = "pcs"
		p.Active = true
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}
	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}
	if product.Stock < 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrDuplicate
	}
	if s.skuTakenLocked(product.StoreID, product.SKU, "") {
		return nil, fmt.Errorf("%w: sku %s", store.ErrDuplicate, product.SKU)
	}

	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	product.DeletedAt = nil
	s.products[product.ID] = product

	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, storeID string, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.liveProductLocked(storeID, productID)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.liveProductLocked(product.StoreID, product.ID)
	if !ok {
		return nil, store.ErrNotFound
	}
	if s.skuTakenLocked(product.StoreID, product.SKU, product.ID) {
		return nil, fmt.Errorf("%w: sku %s", store.ErrDuplicate, product.SKU)
	}

	// stock only moves through the ledger
	product.Stock = existing.Stock
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	product.DeletedAt = nil
	s.products[product.ID] = product

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, storeID string, productID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.liveProductLocked(storeID, productID)
	if !ok {
		return store.ErrNotFound
	}
	at = at.UTC()
	product.Active = false
	product.DeletedAt = &at
	product.UpdatedAt = at
	s.products[productID] = product
	return nil
}

func (s *Store) ListProducts(_ context.Context, storeID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.StoreID != storeID || p.DeletedAt != nil {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return products, nil
}

func (s *Store) ListLowStock(_ context.Context, storeID string, limit int) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, 16)
	for _, p := range s.products {
		if p.StoreID != storeID || p.DeletedAt != nil || !p.Active {
			continue
		}
		if p.Stock <= p.MinimumStock {
			products = append(products, p)
		}
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Stock != b.Stock {
			return a.Stock - b.Stock
		}
		return strings.Compare(a.Name, b.Name)
	})
	if limit > 0 && len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

func (s *Store) ListStoreIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := make(map[string]struct{}, 4)
	for _, p := range s.products {
		if p.DeletedAt == nil {
			set[p.StoreID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *Store) DecrementStock(_ context.Context, storeID string, productID string, qty int) (int, error) {
	if qty < 1 {
		return 0, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.liveProductLocked(storeID, productID)
	if !ok {
		return 0, store.ErrNotFound
	}
	if product.Stock < qty {
		return product.Stock, store.ErrInsufficientStock
	}
	product.Stock -= qty
	product.UpdatedAt = time.Now().UTC()
	s.products[productID] = product
	return product.Stock, nil
}

func (s *Store) AdjustStock(_ context.Context, storeID string, productID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.liveProductLocked(storeID, productID)
	if !ok {
		return 0, store.ErrNotFound
	}
	if product.Stock+delta < 0 {
		return product.Stock, store.ErrInsufficientStock
	}
	product.Stock += delta
	product.UpdatedAt = time.Now().UTC()
	s.products[productID] = product
	return product.Stock, nil
}

func (s *Store) NextSequence(_ context.Context, storeID string, dateKey string) (int64, error) {
	if storeID == "" || dateKey == "" {
		return 0, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeID + "|" + dateKey
	s.counters[key]++
	return s.counters[key], nil
}

func (s *Store) CommitSale(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.ID == "" || tx.StoreID == "" || tx.InvoiceNumber == "" || len(tx.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	demand, order, err := aggregateDemand(tx.Items)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactionsByID[tx.ID]; exists {
		return nil, fmt.Errorf("%w: transaction %s", store.ErrDuplicate, tx.ID)
	}
	if _, exists := s.invoiceIndex[tx.InvoiceNumber]; exists {
		return nil, fmt.Errorf("%w: invoice number %s", store.ErrDuplicate, tx.InvoiceNumber)
	}

	for _, productID := range order {
		product, ok := s.liveProductLocked(tx.StoreID, productID)
		if !ok {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
		}
		if product.Stock < demand[productID] {
			return nil, fmt.Errorf("%w: product %s", store.ErrInsufficientStock, productID)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, productID := range order {
		product := s.products[productID]
		product.Stock -= demand[productID]
		product.UpdatedAt = now
		s.products[productID] = product
	}

	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	stored := cloneTransaction(&tx)
	s.transactionsByID[tx.ID] = stored
	s.invoiceIndex[tx.InvoiceNumber] = tx.ID
	return cloneTransaction(stored), nil
}

func (s *Store) FindTransaction(_ context.Context, storeID string, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[id]
	if !ok || tx.StoreID != storeID {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) ListTransactions(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, 32)
	for _, tx := range s.transactionsByID {
		if !inWindow(tx, storeID, from, to) {
			continue
		}
		result = append(result, *cloneTransaction(tx))
	}
	slices.SortFunc(result, func(a, b domain.Transaction) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.InvoiceNumber, a.InvoiceNumber)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) SummarizeSales(_ context.Context, storeID string, from time.Time, to time.Time) (int64, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := int64(0)
	count := 0
	for _, tx := range s.transactionsByID {
		if !inWindow(tx, storeID, from, to) {
			continue
		}
		total += tx.TotalCents
		count++
	}
	return total, count, nil
}

func (s *Store) VoidTransaction(_ context.Context, storeID string, id string, reason string, at time.Time) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[id]
	if !ok || tx.StoreID != storeID {
		return nil, store.ErrNotFound
	}
	if tx.DeletedAt != nil {
		return nil, store.ErrInvalidTransaction
	}

	at = at.UTC()
	for _, item := range tx.Items {
		product, ok := s.products[item.ProductID]
		if !ok || product.StoreID != storeID {
			continue
		}
		product.Stock += item.Qty
		product.UpdatedAt = at
		s.products[item.ProductID] = product
	}

	tx.VoidReason = reason
	tx.DeletedAt = &at
	return cloneTransaction(tx), nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 32)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if entry.StoreID != storeID || entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrDuplicate
	}
	user.StoreIDs = slices.Clone(user.StoreIDs)
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		user.StoreIDs = slices.Clone(user.StoreIDs)
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) liveProductLocked(storeID string, productID string) (domain.Product, bool) {
	product, ok := s.products[productID]
	if !ok || product.StoreID != storeID || product.DeletedAt != nil {
		return domain.Product{}, false
	}
	return product, true
}

func (s *Store) skuTakenLocked(storeID string, sku string, exceptID string) bool {
	for id, p := range s.products {
		if id == exceptID || p.StoreID != storeID || p.DeletedAt != nil {
			continue
		}
		if strings.EqualFold(p.SKU, sku) {
			return true
		}
	}
	return false
}

func validateProduct(p domain.Product) error {
	if strings.TrimSpace(p.StoreID) == "" || strings.TrimSpace(p.SKU) == "" || strings.TrimSpace(p.Name) == "" {
		return store.ErrInvalidTransaction
	}
	if p.PriceCents < 0 || p.MinimumStock < 0 {
		return store.ErrInvalidTransaction
	}
	return nil
}

// aggregateDemand sums quantities per product, keeping first-seen order.
func aggregateDemand(items []domain.TransactionItem) (map[string]int, []string, error) {
	demand := make(map[string]int, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" || item.Qty < 1 {
			return nil, nil, store.ErrInvalidTransaction
		}
		if _, seen := demand[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		demand[item.ProductID] += item.Qty
	}
	return demand, order, nil
}

func inWindow(tx *domain.Transaction, storeID string, from time.Time, to time.Time) bool {
	if tx.StoreID != storeID || tx.DeletedAt != nil {
		return false
	}
	return !tx.CreatedAt.Before(from) && tx.CreatedAt.Before(to)
}

func cloneTransaction(src *domain.Transaction) *domain.Transaction {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Items = slices.Clone(src.Items)
	if src.Discount != nil {
		d := *src.Discount
		dst.Discount = &d
	}
	if src.Tax != nil {
		t := *src.Tax
		dst.Tax = &t
	}
	if src.CashReceivedCents != nil {
		v := *src.CashReceivedCents
		dst.CashReceivedCents = &v
	}
	if src.ChangeCents != nil {
		v := *src.ChangeCents
		dst.ChangeCents = &v
	}
	if src.DeletedAt != nil {
		at := *src.DeletedAt
		dst.DeletedAt = &at
	}
	return &dst
}
