package store

import (
	"context"
	"errors"
	"time"

	"retailpos/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	// ErrConflict reports a transient write conflict; the operation may be retried.
	ErrConflict = errors.New("write conflict")
	// ErrDuplicate reports a uniqueness violation such as a reused invoice number.
	ErrDuplicate = errors.New("duplicate")
)

type ProductStore interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, storeID string, productID string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, storeID string, productID string, at time.Time) error
	ListProducts(ctx context.Context, storeID string) ([]domain.Product, error)
	ListLowStock(ctx context.Context, storeID string, limit int) ([]domain.Product, error)
	ListStoreIDs(ctx context.Context) ([]string, error)
}

// InventoryLedger mutates stock. Both operations are atomic with respect to
// concurrent callers and never leave stock negative.
type InventoryLedger interface {
	DecrementStock(ctx context.Context, storeID string, productID string, qty int) (int, error)
	AdjustStock(ctx context.Context, storeID string, productID string, delta int) (int, error)
}

// CounterStore allocates invoice sequence numbers. The first call for a
// (storeID, dateKey) pair returns 1.
type CounterStore interface {
	NextSequence(ctx context.Context, storeID string, dateKey string) (int64, error)
}

type TransactionStore interface {
	// CommitSale persists the transaction and decrements stock for every line
	// as one unit: either everything is applied or nothing is.
	CommitSale(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	FindTransaction(ctx context.Context, storeID string, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.Transaction, error)
	SummarizeSales(ctx context.Context, storeID string, from time.Time, to time.Time) (int64, int, error)
	// VoidTransaction soft-deletes the transaction and restocks its lines atomically.
	VoidTransaction(ctx context.Context, storeID string, id string, reason string, at time.Time) (*domain.Transaction, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}

type Repository interface {
	ProductStore
	InventoryLedger
	CounterStore
	TransactionStore
	UserStore
	AuditStore
}
