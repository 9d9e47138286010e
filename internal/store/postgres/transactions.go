package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

const transactionColumns = `id, store_id, invoice_number, subtotal_cents, discount_type, discount_amount, discount_percent,
	discount_cents, tax_rate, tax_inclusive, tax_cents, total_cents, payment_method, cash_received_cents, change_cents,
	cashier_id, void_reason, created_at, deleted_at`

func (s *Store) CommitSale(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.ID == "" || tx.StoreID == "" || tx.InvoiceNumber == "" || len(tx.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	demand, err := aggregateDemand(tx.Items)
	if err != nil {
		return nil, err
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	// Sorted ids keep lock acquisition order stable across concurrent sales.
	productIDs := make([]string, 0, len(demand))
	for id := range demand {
		productIDs = append(productIDs, id)
	}
	sort.Strings(productIDs)
	for _, productID := range productIDs {
		if _, err := decrementStock(ctx, pgTx, tx.StoreID, productID, demand[productID]); err != nil {
			return nil, fmt.Errorf("%w: product %s", err, productID)
		}
	}

	var discountType, discountAmount, discountPercent, taxRate any
	if tx.Discount != nil {
		discountType = tx.Discount.Type
		discountAmount = nullInt64(tx.Discount.Amount)
		discountPercent = nullFloat64(tx.Discount.Percent)
	}
	taxInclusive := false
	if tx.Tax != nil {
		taxRate = tx.Tax.Rate
		taxInclusive = tx.Tax.Inclusive
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, store_id, invoice_number, subtotal_cents, discount_type, discount_amount, discount_percent,
			discount_cents, tax_rate, tax_inclusive, tax_cents, total_cents, payment_method,
			cash_received_cents, change_cents, cashier_id, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, tx.ID, tx.StoreID, tx.InvoiceNumber, tx.SubtotalCents, discountType, discountAmount, discountPercent,
		tx.DiscountCents, taxRate, taxInclusive, tx.TaxCents, tx.TotalCents, tx.PaymentMethod,
		nullInt64(tx.CashReceivedCents), nullInt64(tx.ChangeCents), tx.CashierID, tx.CreatedAt.UTC(),
	)
	if err != nil {
		return nil, mapWriteError(err)
	}

	for i, item := range tx.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO transaction_items (transaction_id, line_no, product_id, name, sku, qty, unit_price_cents, line_total_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, tx.ID, i+1, item.ProductID, item.Name, item.SKU, item.Qty, item.UnitPriceCents, item.LineTotalCents)
		if err != nil {
			return nil, mapWriteError(err)
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, mapWriteError(err)
	}

	tx.CreatedAt = tx.CreatedAt.UTC()
	return &tx, nil
}

func (s *Store) FindTransaction(ctx context.Context, storeID string, id string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = $1 AND store_id = $2
	`, id, storeID)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	itemsByTx, err := loadItems(ctx, s.db, []string{tx.ID})
	if err != nil {
		return nil, err
	}
	tx.Items = itemsByTx[tx.ID]
	return tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE store_id = $1 AND deleted_at IS NULL AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC, invoice_number DESC
		LIMIT $4
	`, storeID, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
		ids = append(ids, tx.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return txs, nil
	}

	itemsByTx, err := loadItems(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range txs {
		txs[i].Items = itemsByTx[txs[i].ID]
	}
	return txs, nil
}

func (s *Store) SummarizeSales(ctx context.Context, storeID string, from time.Time, to time.Time) (int64, int, error) {
	var (
		total int64
		count int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_cents), 0), COUNT(*)
		FROM transactions
		WHERE store_id = $1 AND deleted_at IS NULL AND created_at >= $2 AND created_at < $3
	`, storeID, from.UTC(), to.UTC()).Scan(&total, &count)
	if err != nil {
		return 0, 0, err
	}
	return total, count, nil
}

func (s *Store) VoidTransaction(ctx context.Context, storeID string, id string, reason string, at time.Time) (*domain.Transaction, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var deletedAt sql.NullTime
	err = pgTx.QueryRowContext(ctx, `
		SELECT deleted_at FROM transactions
		WHERE id = $1 AND store_id = $2
		FOR UPDATE
	`, id, storeID).Scan(&deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		return nil, store.ErrInvalidTransaction
	}

	itemsByTx, err := loadItems(ctx, pgTx, []string{id})
	if err != nil {
		return nil, err
	}
	restock := make(map[string]int, len(itemsByTx[id]))
	for _, item := range itemsByTx[id] {
		restock[item.ProductID] += item.Qty
	}
	productIDs := make([]string, 0, len(restock))
	for productID := range restock {
		productIDs = append(productIDs, productID)
	}
	sort.Strings(productIDs)
	for _, productID := range productIDs {
		// Products deleted since the sale are skipped; their stock is no longer tracked.
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock + $3, updated_at = $4
			WHERE id = $1 AND store_id = $2 AND deleted_at IS NULL
		`, productID, storeID, restock[productID], at.UTC()); err != nil {
			return nil, mapWriteError(err)
		}
	}

	if _, err := pgTx.ExecContext(ctx, `
		UPDATE transactions
		SET deleted_at = $3, void_reason = $4
		WHERE id = $1 AND store_id = $2
	`, id, storeID, at.UTC(), nullIfEmpty(reason)); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, mapWriteError(err)
	}
	return s.FindTransaction(ctx, storeID, id)
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		tx              domain.Transaction
		discountType    sql.NullString
		discountAmount  sql.NullInt64
		discountPercent sql.NullFloat64
		taxRate         sql.NullFloat64
		taxInclusive    bool
		cashReceived    sql.NullInt64
		change          sql.NullInt64
		voidReason      sql.NullString
		deletedAt       sql.NullTime
	)
	err := row.Scan(&tx.ID, &tx.StoreID, &tx.InvoiceNumber, &tx.SubtotalCents, &discountType, &discountAmount,
		&discountPercent, &tx.DiscountCents, &taxRate, &taxInclusive, &tx.TaxCents, &tx.TotalCents,
		&tx.PaymentMethod, &cashReceived, &change, &tx.CashierID, &voidReason, &tx.CreatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	if discountType.Valid {
		tx.Discount = &domain.DiscountPolicy{Type: discountType.String}
		if discountAmount.Valid {
			amount := discountAmount.Int64
			tx.Discount.Amount = &amount
		}
		if discountPercent.Valid {
			pct := discountPercent.Float64
			tx.Discount.Percent = &pct
		}
	}
	if taxRate.Valid {
		tx.Tax = &domain.TaxPolicy{Rate: taxRate.Float64, Inclusive: taxInclusive}
	}
	if cashReceived.Valid {
		v := cashReceived.Int64
		tx.CashReceivedCents = &v
	}
	if change.Valid {
		v := change.Int64
		tx.ChangeCents = &v
	}
	tx.VoidReason = voidReason.String
	tx.CreatedAt = tx.CreatedAt.UTC()
	if deletedAt.Valid {
		at := deletedAt.Time.UTC()
		tx.DeletedAt = &at
	}
	return &tx, nil
}

func loadItems(ctx context.Context, q queryer, transactionIDs []string) (map[string][]domain.TransactionItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT transaction_id, product_id, name, sku, qty, unit_price_cents, line_total_cents
		FROM transaction_items
		WHERE transaction_id = ANY($1)
		ORDER BY transaction_id, line_no
	`, transactionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make(map[string][]domain.TransactionItem, len(transactionIDs))
	for rows.Next() {
		var (
			txID string
			item domain.TransactionItem
		)
		if err := rows.Scan(&txID, &item.ProductID, &item.Name, &item.SKU, &item.Qty, &item.UnitPriceCents, &item.LineTotalCents); err != nil {
			return nil, err
		}
		items[txID] = append(items[txID], item)
	}
	return items, rows.Err()
}

func aggregateDemand(items []domain.TransactionItem) (map[string]int, error) {
	demand := make(map[string]int, len(items))
	for _, item := range items {
		if item.ProductID == "" || item.Qty < 1 {
			return nil, store.ErrInvalidTransaction
		}
		demand[item.ProductID] += item.Qty
	}
	return demand, nil
}
