package domain

import "time"

const (
	RoleOwner = "OWNER"
	RoleAdmin = "ADMIN"
	RoleStaff = "STAFF"
)

const PaymentMethodCash = "CASH"

const (
	DiscountTypeAmount  = "AMOUNT"
	DiscountTypePercent = "PERCENT"
)

type Product struct {
	ID           string     `json:"id"`
	StoreID      string     `json:"store_id"`
	SKU          string     `json:"sku"`
	Name         string     `json:"name"`
	Unit         string     `json:"unit,omitempty"`
	CategoryID   string     `json:"category_id,omitempty"`
	PriceCents   int64      `json:"price_cents"`
	Stock        int        `json:"stock"`
	MinimumStock int        `json:"minimum_stock"`
	Active       bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

type ProductCreateRequest struct {
	StoreID      string `json:"store_id"`
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	Unit         string `json:"unit"`
	CategoryID   string `json:"category_id"`
	PriceCents   int64  `json:"price_cents"`
	InitialStock int    `json:"initial_stock"`
	MinimumStock int    `json:"minimum_stock"`
}

type ProductUpdateRequest struct {
	Name         *string `json:"name,omitempty"`
	SKU          *string `json:"sku,omitempty"`
	Unit         *string `json:"unit,omitempty"`
	CategoryID   *string `json:"category_id,omitempty"`
	PriceCents   *int64  `json:"price_cents,omitempty"`
	MinimumStock *int    `json:"minimum_stock,omitempty"`
	Active       *bool   `json:"is_active,omitempty"`
}

type StockAdjustRequest struct {
	StoreID string `json:"store_id"`
	Delta   int    `json:"delta"`
	Reason  string `json:"reason,omitempty"`
}

// InvoiceCounter is the persisted per-store, per-day sequence.
type InvoiceCounter struct {
	StoreID   string    `json:"store_id"`
	DateKey   string    `json:"date_key"`
	Seq       int64     `json:"seq"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DiscountPolicy is the caller-supplied discount. At most one of Amount and
// Percent may be set, and Type names which one.
type DiscountPolicy struct {
	Type    string   `json:"type"`
	Amount  *int64   `json:"amount,omitempty"`
	Percent *float64 `json:"percent,omitempty"`
}

type TaxPolicy struct {
	Rate      float64 `json:"rate"`
	Inclusive bool    `json:"inclusive"`
}

// CartItem is one requested line. PriceCents overrides the catalog price for
// this sale when present.
type CartItem struct {
	ProductID  string `json:"product_id"`
	Qty        int    `json:"qty"`
	PriceCents *int64 `json:"price_cents,omitempty"`
}

type CreateTransactionRequest struct {
	StoreID       string          `json:"store_id"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	Items         []CartItem      `json:"items"`
	Discount      *DiscountPolicy `json:"discount,omitempty"`
	Tax           *TaxPolicy      `json:"tax,omitempty"`
	PaymentMethod string          `json:"payment_method"`
	CashReceived  *int64          `json:"cash_received_cents,omitempty"`
}

// TransactionItem is a line snapshot: name, sku and unit price are copied from
// the product at sale time and never follow later catalog edits.
type TransactionItem struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	SKU            string `json:"sku"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

type Transaction struct {
	ID                string            `json:"id"`
	StoreID           string            `json:"store_id"`
	InvoiceNumber     string            `json:"invoice_number"`
	Items             []TransactionItem `json:"items"`
	SubtotalCents     int64             `json:"subtotal_cents"`
	Discount          *DiscountPolicy   `json:"discount,omitempty"`
	DiscountCents     int64             `json:"discount_cents"`
	Tax               *TaxPolicy        `json:"tax,omitempty"`
	TaxCents          int64             `json:"tax_cents"`
	TotalCents        int64             `json:"total_cents"`
	PaymentMethod     string            `json:"payment_method"`
	CashReceivedCents *int64            `json:"cash_received_cents,omitempty"`
	ChangeCents       *int64            `json:"change_cents,omitempty"`
	CashierID         string            `json:"cashier_id"`
	CreatedAt         time.Time         `json:"created_at"`
	VoidReason        string            `json:"void_reason,omitempty"`
	DeletedAt         *time.Time        `json:"deleted_at,omitempty"`
}

type TransactionListResponse struct {
	Transactions []Transaction `json:"transactions"`
	From         string        `json:"from"`
	To           string        `json:"to"`
}

type VoidTransactionRequest struct {
	StoreID       string `json:"store_id"`
	TransactionID string `json:"-"`
	Reason        string `json:"reason"`
}

type TodaySummary struct {
	StoreID          string `json:"store_id"`
	Date             string `json:"date"`
	TotalSalesCents  int64  `json:"total_sales_cents"`
	TransactionCount int    `json:"transaction_count"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string   `json:"access_token"`
	Role        string   `json:"role"`
	StoreIDs    []string `json:"store_ids"`
	ExpiresAt   string   `json:"expires_at"`
}

// Actor is the authenticated caller: subject id, role and the stores it may
// operate on.
type Actor struct {
	Username string   `json:"username"`
	Role     string   `json:"role"`
	StoreIDs []string `json:"store_ids"`
}

func (a Actor) CanAccessStore(storeID string) bool {
	for _, id := range a.StoreIDs {
		if id == storeID {
			return true
		}
	}
	return false
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	StoreIDs  []string  `json:"store_ids"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
