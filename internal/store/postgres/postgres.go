package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const productColumns = `id, store_id, sku, name, unit, category_id, price_cents, stock, minimum_stock, is_active, created_at, updated_at, deleted_at`

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}
	if product.Stock < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.Unit == "" {
		product.Unit = "pcs"
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO products (id, store_id, sku, name, unit, category_id, price_cents, stock, minimum_stock, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
		RETURNING `+productColumns,
		product.ID, product.StoreID, product.SKU, product.Name, product.Unit, nullIfEmpty(product.CategoryID),
		product.PriceCents, product.Stock, product.MinimumStock, product.Active,
	)
	created, err := scanProduct(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return created, nil
}

func (s *Store) GetProduct(ctx context.Context, storeID string, productID string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1 AND store_id = $2 AND deleted_at IS NULL
	`, productID, storeID)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}
	if product.Unit == "" {
		product.Unit = "pcs"
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET sku = $3, name = $4, unit = $5, category_id = $6, price_cents = $7,
			minimum_stock = $8, is_active = $9, updated_at = now()
		WHERE id = $1 AND store_id = $2 AND deleted_at IS NULL
		RETURNING `+productColumns,
		product.ID, product.StoreID, product.SKU, product.Name, product.Unit, nullIfEmpty(product.CategoryID),
		product.PriceCents, product.MinimumStock, product.Active,
	)
	updated, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapWriteError(err)
	}
	return updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, storeID string, productID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET deleted_at = $3, is_active = false, updated_at = $3
		WHERE id = $1 AND store_id = $2 AND deleted_at IS NULL
	`, productID, storeID, at.UTC())
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) ListProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE store_id = $1 AND deleted_at IS NULL
		ORDER BY name, id
	`, storeID)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

func (s *Store) ListLowStock(ctx context.Context, storeID string, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE store_id = $1 AND deleted_at IS NULL AND is_active AND stock <= minimum_stock
		ORDER BY stock ASC, name ASC
		LIMIT $2
	`, storeID, limit)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

func (s *Store) ListStoreIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT store_id
		FROM products
		WHERE deleted_at IS NULL
		ORDER BY store_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0, 8)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) DecrementStock(ctx context.Context, storeID string, productID string, qty int) (int, error) {
	if qty < 1 {
		return 0, store.ErrInvalidTransaction
	}
	return decrementStock(ctx, s.db, storeID, productID, qty)
}

// decrementStock is a single conditional UPDATE; the row lock it takes
// serializes concurrent decrements of the same product.
func decrementStock(ctx context.Context, q queryer, storeID string, productID string, qty int) (int, error) {
	var stock int
	err := q.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock - $3, updated_at = now()
		WHERE id = $1 AND store_id = $2 AND deleted_at IS NULL AND stock >= $3
		RETURNING stock
	`, productID, storeID, qty).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, mapWriteError(err)
	}
	return 0, missOrShort(ctx, q, storeID, productID)
}

func (s *Store) AdjustStock(ctx context.Context, storeID string, productID string, delta int) (int, error) {
	var stock int
	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock + $3, updated_at = now()
		WHERE id = $1 AND store_id = $2 AND deleted_at IS NULL AND stock + $3 >= 0
		RETURNING stock
	`, productID, storeID, delta).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, mapWriteError(err)
	}
	return 0, missOrShort(ctx, s.db, storeID, productID)
}

// missOrShort explains why a conditional stock update matched no row.
func missOrShort(ctx context.Context, q queryer, storeID string, productID string) error {
	var current int
	err := q.QueryRowContext(ctx, `
		SELECT stock FROM products
		WHERE id = $1 AND store_id = $2 AND deleted_at IS NULL
	`, productID, storeID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return store.ErrInsufficientStock
}

func (s *Store) NextSequence(ctx context.Context, storeID string, dateKey string) (int64, error) {
	if storeID == "" || dateKey == "" {
		return 0, store.ErrInvalidTransaction
	}
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO invoice_counters (store_id, date_key, seq, created_at, updated_at)
		VALUES ($1, $2, 1, now(), now())
		ON CONFLICT (store_id, date_key)
		DO UPDATE SET seq = invoice_counters.seq + 1, updated_at = now()
		RETURNING seq
	`, storeID, dateKey).Scan(&seq)
	if err != nil {
		return 0, mapWriteError(err)
	}
	return seq, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE store_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
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

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	for _, storeID := range uniqueStrings(user.StoreIDs) {
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO app_user_stores (username, store_id) VALUES ($1,$2)
		`, user.Username, storeID); err != nil {
			return mapWriteError(err)
		}
	}
	return pgTx.Commit()
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	index := make(map[string]int, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		index[user.Username] = len(users)
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	storeRows, err := s.db.QueryContext(ctx, `
		SELECT username, store_id
		FROM app_user_stores
		ORDER BY username, store_id
	`)
	if err != nil {
		return nil, err
	}
	defer storeRows.Close()
	for storeRows.Next() {
		var username, storeID string
		if err := storeRows.Scan(&username, &storeID); err != nil {
			return nil, err
		}
		if i, ok := index[username]; ok {
			users[i].StoreIDs = append(users[i].StoreIDs, storeID)
		}
	}
	return users, storeRows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p          domain.Product
		categoryID sql.NullString
		deletedAt  sql.NullTime
	)
	err := row.Scan(&p.ID, &p.StoreID, &p.SKU, &p.Name, &p.Unit, &categoryID, &p.PriceCents, &p.Stock,
		&p.MinimumStock, &p.Active, &p.CreatedAt, &p.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	p.CategoryID = categoryID.String
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	if deletedAt.Valid {
		at := deletedAt.Time.UTC()
		p.DeletedAt = &at
	}
	return &p, nil
}

func collectProducts(rows *sql.Rows) ([]domain.Product, error) {
	defer rows.Close()
	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
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

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// mapWriteError translates postgres error codes into store sentinels.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return fmt.Errorf("%w: %s", store.ErrDuplicate, pgErr.ConstraintName)
	case "40001", "40P01":
		return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
	case "23514":
		return fmt.Errorf("%w: %s", store.ErrInvalidTransaction, pgErr.ConstraintName)
	}
	return err
}

func uniqueStrings(values []string) []string {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			set[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullInt64(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullFloat64(val *float64) any {
	if val == nil {
		return nil
	}
	return *val
}
