package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/pricing"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

const (
	defaultHistoryLimit = 200
	maxHistoryLimit     = 500
	defaultTodayLimit   = 100
	defaultHistoryDays  = 30
)

// CreateTransaction validates the cart against the store's catalog, prices it,
// assigns an invoice number and commits the sale together with its stock
// decrements. Nothing is persisted when any step fails.
func (s *Service) CreateTransaction(ctx context.Context, req domain.CreateTransactionRequest) (domain.Transaction, error) {
	req.StoreID = strings.TrimSpace(req.StoreID)
	actor, err := s.requireStoreAccess(ctx, req.StoreID)
	if err != nil {
		return domain.Transaction{}, err
	}

	if len(req.Items) == 0 {
		return domain.Transaction{}, ErrEmptyCart
	}

	discount, err := pricing.DiscountFromPolicy(req.Discount)
	if err != nil {
		return domain.Transaction{}, err
	}
	tax, err := pricing.TaxFromPolicy(req.Tax)
	if err != nil {
		return domain.Transaction{}, err
	}

	method := strings.ToUpper(strings.TrimSpace(req.PaymentMethod))
	if method == "" {
		return domain.Transaction{}, fmt.Errorf("%w: payment_method is required", ErrInvalidRequest)
	}

	for i, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return domain.Transaction{}, fmt.Errorf("%w: line %d has no product_id", pricing.ErrInvalidLine, i+1)
		}
		if item.Qty < 1 {
			return domain.Transaction{}, fmt.Errorf("%w: line %d qty must be at least 1", pricing.ErrInvalidLine, i+1)
		}
		if item.PriceCents != nil && *item.PriceCents < 0 {
			return domain.Transaction{}, fmt.Errorf("%w: line %d price must not be negative", pricing.ErrInvalidLine, i+1)
		}
	}

	products, err := s.resolveProducts(ctx, req.StoreID, req.Items)
	if err != nil {
		return domain.Transaction{}, err
	}

	lines := make([]pricing.Line, 0, len(req.Items))
	items := make([]domain.TransactionItem, 0, len(req.Items))
	for _, item := range req.Items {
		product := products[strings.TrimSpace(item.ProductID)]
		unitPrice := product.PriceCents
		if item.PriceCents != nil {
			unitPrice = *item.PriceCents
		}
		line := pricing.Line{Qty: item.Qty, UnitPriceCents: unitPrice}
		lineTotal, err := pricing.LineTotal(line)
		if err != nil {
			return domain.Transaction{}, err
		}
		lines = append(lines, line)
		items = append(items, domain.TransactionItem{
			ProductID:      product.ID,
			Name:           product.Name,
			SKU:            product.SKU,
			Qty:            item.Qty,
			UnitPriceCents: unitPrice,
			LineTotalCents: lineTotal,
		})
	}

	payment := pricing.Payment{Method: method, CashReceived: req.CashReceived}
	breakdown, err := pricing.Calculate(lines, discount, tax, payment)
	if err != nil {
		return domain.Transaction{}, err
	}
	if s.settings.RejectUnderpayment {
		if short := breakdown.Shortfall(payment); short > 0 {
			return domain.Transaction{}, fmt.Errorf("%w: short by %d", ErrInsufficientPayment, short)
		}
	}

	createdAt := s.now().UTC()
	invoiceNumber := strings.TrimSpace(req.InvoiceNumber)
	if invoiceNumber == "" {
		invoiceNumber, err = s.sequencer.NextInvoiceNumber(ctx, req.StoreID, createdAt)
		if err != nil {
			s.log.Error().Err(err).Str("store_id", req.StoreID).Msg("invoice sequence allocation failed")
			return domain.Transaction{}, err
		}
	}

	tx := domain.Transaction{
		ID:                xid.New("tx"),
		StoreID:           req.StoreID,
		InvoiceNumber:     invoiceNumber,
		Items:             items,
		SubtotalCents:     breakdown.SubtotalCents,
		Discount:          normalizedDiscount(req.Discount),
		DiscountCents:     breakdown.DiscountCents,
		Tax:               normalizedTax(req.Tax),
		TaxCents:          breakdown.TaxCents,
		TotalCents:        breakdown.TotalCents,
		PaymentMethod:     method,
		CashReceivedCents: req.CashReceived,
		ChangeCents:       breakdown.ChangeCents,
		CashierID:         actor.Username,
		CreatedAt:         createdAt,
	}

	created, err := s.repo.CommitSale(ctx, tx)
	if err != nil {
		return domain.Transaction{}, s.commitError(err, tx)
	}

	s.invalidateSummary(ctx, created.StoreID, created.CreatedAt)
	s.logAudit(ctx, created.StoreID, "transaction_create", "transaction", created.ID,
		fmt.Sprintf("invoice=%s,total=%d,lines=%d", created.InvoiceNumber, created.TotalCents, len(created.Items)))
	s.log.Info().
		Str("store_id", created.StoreID).
		Str("invoice_number", created.InvoiceNumber).
		Int64("total_cents", created.TotalCents).
		Str("cashier", created.CashierID).
		Msg("transaction created")

	return *created, nil
}

// resolveProducts loads every referenced product from storeID and runs the
// stock pre-check on the per-product demand. CommitSale repeats the stock
// check atomically.
func (s *Service) resolveProducts(ctx context.Context, storeID string, items []domain.CartItem) (map[string]domain.Product, error) {
	demand := make(map[string]int, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if _, seen := demand[id]; !seen {
			order = append(order, id)
		}
		demand[id] += item.Qty
	}

	products := make(map[string]domain.Product, len(order))
	for _, id := range order {
		product, err := s.repo.GetProduct(ctx, storeID, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
		}
		if !product.Active {
			return nil, fmt.Errorf("%w: %s", ErrProductInactive, id)
		}
		if product.Stock < demand[id] {
			return nil, fmt.Errorf("%w: %s has %d, requested %d", ErrInsufficientStock, id, product.Stock, demand[id])
		}
		products[id] = *product
	}
	return products, nil
}

func (s *Service) commitError(err error, tx domain.Transaction) error {
	switch {
	case errors.Is(err, store.ErrInsufficientStock):
		return fmt.Errorf("%w: %w", ErrInsufficientStock, err)
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrProductNotFound, err)
	case errors.Is(err, store.ErrDuplicate):
		return fmt.Errorf("%w: %s", ErrDuplicateInvoiceNumber, tx.InvoiceNumber)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		s.log.Error().Err(err).Str("store_id", tx.StoreID).Str("invoice_number", tx.InvoiceNumber).Msg("commit sale failed")
		return fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
}

// normalizedTax drops a zero-rate policy so the record stores no tax.
func normalizedTax(p *domain.TaxPolicy) *domain.TaxPolicy {
	if p == nil || p.Rate == 0 {
		return nil
	}
	out := *p
	return &out
}

func normalizedDiscount(p *domain.DiscountPolicy) *domain.DiscountPolicy {
	if p == nil {
		return nil
	}
	out := *p
	out.Type = strings.ToUpper(strings.TrimSpace(out.Type))
	if out.Type == "" {
		switch {
		case out.Amount != nil:
			out.Type = domain.DiscountTypeAmount
		case out.Percent != nil:
			out.Type = domain.DiscountTypePercent
		default:
			return nil
		}
	}
	if out.Type == "NONE" {
		return nil
	}
	return &out
}

// ListTransactions returns live transactions created in [from, to), newest
// first. A zero to defaults to the end of the current reporting day and a
// zero from to 30 days before to.
func (s *Service) ListTransactions(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) (domain.TransactionListResponse, error) {
	if _, err := s.requireStoreAccess(ctx, storeID); err != nil {
		return domain.TransactionListResponse{}, err
	}
	if to.IsZero() {
		_, to = s.dayBounds(s.now())
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -defaultHistoryDays)
	}
	if !from.Before(to) {
		return domain.TransactionListResponse{}, fmt.Errorf("%w: from must be before to", ErrInvalidRequest)
	}
	limit = clampLimit(limit, defaultHistoryLimit, maxHistoryLimit)

	txs, err := s.repo.ListTransactions(ctx, storeID, from.UTC(), to.UTC(), limit)
	if err != nil {
		return domain.TransactionListResponse{}, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	return domain.TransactionListResponse{
		Transactions: txs,
		From:         from.UTC().Format(time.RFC3339),
		To:           to.UTC().Format(time.RFC3339),
	}, nil
}

// TodayTransactions lists the live transactions of the current reporting day.
func (s *Service) TodayTransactions(ctx context.Context, storeID string, limit int) (domain.TransactionListResponse, error) {
	from, to := s.dayBounds(s.now())
	return s.ListTransactions(ctx, storeID, from, to, clampLimit(limit, defaultTodayLimit, maxHistoryLimit))
}

func (s *Service) GetTransaction(ctx context.Context, storeID string, id string) (domain.Transaction, error) {
	if _, err := s.requireStoreAccess(ctx, storeID); err != nil {
		return domain.Transaction{}, err
	}
	tx, err := s.repo.FindTransaction(ctx, storeID, strings.TrimSpace(id))
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

// VoidTransaction soft-deletes a sale and returns its quantities to stock.
func (s *Service) VoidTransaction(ctx context.Context, req domain.VoidTransactionRequest) (domain.Transaction, error) {
	if _, err := s.requireManager(ctx, req.StoreID); err != nil {
		return domain.Transaction{}, err
	}
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.TransactionID == "" || req.Reason == "" {
		return domain.Transaction{}, fmt.Errorf("%w: transaction id and reason are required", ErrInvalidRequest)
	}

	voided, err := s.repo.VoidTransaction(ctx, req.StoreID, req.TransactionID, req.Reason, s.now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransaction) {
			return domain.Transaction{}, fmt.Errorf("%w: %s", ErrAlreadyVoided, req.TransactionID)
		}
		return domain.Transaction{}, err
	}

	s.invalidateSummary(ctx, voided.StoreID, voided.CreatedAt)
	s.logAudit(ctx, voided.StoreID, "transaction_void", "transaction", voided.ID,
		fmt.Sprintf("invoice=%s,reason=%s", voided.InvoiceNumber, req.Reason))
	s.log.Info().Str("store_id", voided.StoreID).Str("invoice_number", voided.InvoiceNumber).Msg("transaction voided")
	return *voided, nil
}
