package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/pricing"
	"retailpos/backend/internal/sequence"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/store/memory"
)

// testClock ticks one second per read so records get distinct timestamps.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

var wib = time.FixedZone("WIB", 7*60*60)

func newTestService(t *testing.T, settings Settings) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.NewSeeded()
	if settings.Location == nil {
		settings.Location = wib
	}
	if settings.SummaryTTL == 0 {
		settings.SummaryTTL = time.Minute
	}
	svc := New(repo, nil, cache.NewMemorySummaryCache(), settings)
	clock := &testClock{t: time.Date(2025, 1, 1, 3, 0, 0, 0, time.UTC)}
	svc.now = clock.Now
	return svc, repo
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		Username: "cashier",
		Role:     domain.RoleStaff,
		StoreIDs: []string{"main-store"},
	})
}

func ownerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		Username: "owner",
		Role:     domain.RoleOwner,
		StoreIDs: []string{"main-store", "east-store"},
	})
}

func cents(v int64) *int64 { return &v }

func percent(v float64) *float64 { return &v }

func stockOf(t *testing.T, repo *memory.Store, storeID string, productID string) int {
	t.Helper()
	p, err := repo.GetProduct(context.Background(), storeID, productID)
	if err != nil {
		t.Fatalf("get product %s: %v", productID, err)
	}
	return p.Stock
}

func TestCreateTransactionExclusiveTax(t *testing.T) {
	svc, repo := newTestService(t, Settings{})

	tx, err := svc.CreateTransaction(cashierCtx(), domain.CreateTransactionRequest{
		StoreID:       "main-store",
		Items:         []domain.CartItem{{ProductID: "prod-mie-01", Qty: 2, PriceCents: cents(10000)}},
		Tax:           &domain.TaxPolicy{Rate: 0.1},
		PaymentMethod: "qris",
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if tx.SubtotalCents != 20000 || tx.TaxCents != 2000 || tx.TotalCents != 22000 {
		t.Fatalf("unexpected amounts: subtotal=%d tax=%d total=%d", tx.SubtotalCents, tx.TaxCents, tx.TotalCents)
	}
	if tx.InvoiceNumber != "INV-TORE-20250101-0001" {
		t.Fatalf("unexpected invoice number %s", tx.InvoiceNumber)
	}
	if tx.PaymentMethod != "QRIS" || tx.ChangeCents != nil {
		t.Fatalf("expected non-cash sale without change, got %+v", tx)
	}
	if tx.CashierID != "cashier" {
		t.Fatalf("expected cashier id from caller, got %s", tx.CashierID)
	}
	if got := stockOf(t, repo, "main-store", "prod-mie-01"); got != 118 {
		t.Fatalf("expected stock 118, got %d", got)
	}
}

func TestCreateTransactionPercentDiscountAndChange(t *testing.T) {
	svc, _ := newTestService(t, Settings{})

	tx, err := svc.CreateTransaction(cashierCtx(), domain.CreateTransactionRequest{
		StoreID:       "main-store",
		Items:         []domain.CartItem{{ProductID: "prod-mie-01", Qty: 2, PriceCents: cents(10000)}},
		Discount:      &domain.DiscountPolicy{Type: "percent", Percent: percent(50)},
		Tax:           &domain.TaxPolicy{Rate: 0.1},
		PaymentMethod: "CASH",
		CashReceived:  cents(15000),
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if tx.DiscountCents != 10000 || tx.TaxCents != 1000 || tx.TotalCents != 11000 {
		t.Fatalf("unexpected amounts: discount=%d tax=%d total=%d", tx.DiscountCents, tx.TaxCents, tx.TotalCents)
	}
	if tx.ChangeCents == nil || *tx.ChangeCents != 4000 {
		t.Fatalf("expected change 4000, got %v", tx.ChangeCents)
	}
	if tx.Discount == nil || tx.Discount.Type != domain.DiscountTypePercent {
		t.Fatalf("expected normalized discount policy, got %+v", tx.Discount)
	}
}

func TestCreateTransactionUsesCatalogPriceByDefault(t *testing.T) {
	svc, _ := newTestService(t, Settings{})

	tx, err := svc.CreateTransaction(cashierCtx(), domain.CreateTransactionRequest{
		StoreID: "main-store",
		Items: []domain.CartItem{
			{ProductID: "prod-mie-01", Qty: 3},
			{ProductID: "prod-kopi-01", Qty: 1},
		},
		PaymentMethod: "card",
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if tx.SubtotalCents != 3*3500+2600 {
		t.Fatalf("unexpected subtotal %d", tx.SubtotalCents)
	}
	if tx.Items[0].Name != "Mie Goreng Instan" || tx.Items[0].UnitPriceCents != 3500 || tx.Items[0].LineTotalCents != 10500 {
		t.Fatalf("unexpected first line %+v", tx.Items[0])
	}
}

func TestConcurrentSalesOfLastUnit(t *testing.T) {
	svc, repo := newTestService(t, Settings{})
	product, err := repo.CreateProduct(context.Background(), domain.Product{
		StoreID:    "main-store",
		SKU:        "SKU-LAST-01",
		Name:       "Barang Terakhir",
		PriceCents: 5000,
		Stock:      1,
		Active:     true,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	start := make(chan struct{})
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.CreateTransaction(cashierCtx(), domain.CreateTransactionRequest{
				StoreID:       "main-store",
				Items:         []domain.CartItem{{ProductID: product.ID, Qty: 1}},
				PaymentMethod: "CASH",
				CashReceived:  cents(5000),
			})
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	successes := 0
	for err := range errs {
		if err == nil {
			successes++
			continue
		}
		if kind := ErrorKind(err); kind != KindInsufficientStock {
			t.Fatalf("expected %s, got %s (%v)", KindInsufficientStock, kind, err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one sale, got %d", successes)
	}
	if got := stockOf(t, repo, "main-store", product.ID); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
}

func TestTransactionSnapshotSurvivesCatalogEdits(t *testing.T) {
	svc, repo := newTestService(t, Settings{})

	tx, err := svc.CreateTransaction(cashierCtx(), domain.CreateTransactionRequest{
		StoreID:       "main-store",
		Items:         []domain.CartItem{{ProductID: "prod-susu-01", Qty: 1}},
		PaymentMethod: "CASH",
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	newName := "Susu Rebranded"
	newPrice := int64(99999)
	if _, err := svc.UpdateProduct(ownerCtx(), "main-store", "prod-susu-01", domain.ProductUpdateRequest{Name: &newName, PriceCents: &newPrice}); err != nil {
		t.Fatalf("update product: %v", err)
	}
	if err := svc.DeleteProduct(ownerCtx(), "main-store", "prod-susu-01"); err != nil {
		t.Fatalf("delete product: %v", err)
	}

	stored, err := repo.FindTransaction(context.Background(), "main-store", tx.ID)
	if err != nil {
		t.Fatalf("find transaction: %v", err)
	}
	item := stored.Items[0]
	if item.Name != "Susu UHT 1L" || item.SKU != "SKU-SUSU-01" || item.UnitPriceCents != 18900 {
		t.Fatalf("snapshot changed after catalog edit: %+v", item)
	}
}

func TestCreateTransactionRejections(t *testing.T) {
	svc, _ := newTestService(t, Settings{})
	inactive := false
	if _, err := svc.UpdateProduct(ownerCtx(), "main-store", "prod-roti-01", domain.ProductUpdateRequest{Active: &inactive}); err != nil {
		t.Fatalf("deactivate product: %v", err)
	}

	cases := []struct {
		name string
		ctx  context.Context
		req  domain.CreateTransactionRequest
		want string
	}{
		{
			name: "empty cart",
			ctx:  cashierCtx(),
			req:  domain.CreateTransactionRequest{StoreID: "main-store", PaymentMethod: "CASH"},
			want: KindEmptyCart,
		},
		{
			name: "product from another store",
			ctx:  cashierCtx(),
			req: domain.CreateTransactionRequest{StoreID: "main-store", PaymentMethod: "CASH",
				Items: []domain.CartItem{{ProductID: "prod-teh-01", Qty: 1}}},
			want: KindProductNotFound,
		},
		{
			name: "unknown product",
			ctx:  cashierCtx(),
			req: domain.CreateTransactionRequest{StoreID: "main-store", PaymentMethod: "CASH",
				Items: []domain.CartItem{{ProductID: "prod-none", Qty: 1}}},
			want: KindProductNotFound,
		},
		{
			name: "inactive product",
			ctx:  cashierCtx(),
			req: domain.CreateTransactionRequest{StoreID: "main-store", PaymentMethod: "CASH",
				Items: []domain.CartItem{{ProductID: "prod-roti-01", Qty: 1}}},
			want: KindProductInactive,
		},
		{
			name: "aggregated demand over stock",
			ctx:  cashierCtx(),
			req: domain.CreateTransactionRequest{StoreID: "main-store", PaymentMethod: "CASH",
				Items: []domain.CartItem{{ProductID: "prod-gula-01", Qty: 3}, {ProductID: "prod-gula-01", Qty: 2}}},
			want: KindInsufficientStock,
		},
		{
			name: "zero quantity",
			ctx:  cashierCtx(),
			req: domain.CreateTransactionRequest{StoreID: "main-store", PaymentMethod: "CASH",
				Items: []domain.CartItem{{ProductID: "prod-mie-01", Qty: 0}}},
			want: KindInvalidLine,
		},
		{
			name: "negative price override",
			ctx:  cashierCtx(),
			req: domain.CreateTransactionRequest{StoreID: "main-store", PaymentMethod: "CASH",
				Items: []domain.CartItem{{ProductID: "prod-mie-01", Qty: 1, PriceCents: cents(-1)}}},
			want: KindInvalidLine,
		},
		{
			name: "discount amount and percent",
			ctx:  cashierCtx(),
			req: domain.CreateTransactionRequest{StoreID: "main-store", PaymentMethod: "CASH",
				Items:    []domain.CartItem{{ProductID: "prod-mie-01", Qty: 1}},
				Discount: &domain.DiscountPolicy{Amount: cents(100), Percent: percent(10)}},
			want: KindInvalidPricingPolicy,
		},
		{
			name: "tax rate above one",
			ctx:  cashierCtx(),
			req: domain.CreateTransactionRequest{StoreID: "main-store", PaymentMethod: "CASH",
				Items: []domain.CartItem{{ProductID: "prod-mie-01", Qty: 1}},
				Tax:   &domain.TaxPolicy{Rate: 11}},
			want: KindInvalidPricingPolicy,
		},
		{
			name: "missing payment method",
			ctx:  cashierCtx(),
			req: domain.CreateTransactionRequest{StoreID: "main-store",
				Items: []domain.CartItem{{ProductID: "prod-mie-01", Qty: 1}}},
			want: KindInvalidRequest,
		},
		{
			name: "store outside caller access",
			ctx:  cashierCtx(),
			req: domain.CreateTransactionRequest{StoreID: "east-store", PaymentMethod: "CASH",
				Items: []domain.CartItem{{ProductID: "prod-teh-01", Qty: 1}}},
			want: KindForbidden,
		},
		{
			name: "anonymous caller",
			ctx:  context.Background(),
			req: domain.CreateTransactionRequest{StoreID: "main-store", PaymentMethod: "CASH",
				Items: []domain.CartItem{{ProductID: "prod-mie-01", Qty: 1}}},
			want: KindForbidden,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateTransaction(tc.ctx, tc.req)
			if err == nil {
				t.Fatalf("expected error")
			}
			if kind := ErrorKind(err); kind != tc.want {
				t.Fatalf("expected %s, got %s (%v)", tc.want, kind, err)
			}
		})
	}

	// None of the rejected requests may have consumed an invoice sequence.
	tx, err := svc.CreateTransaction(cashierCtx(), domain.CreateTransactionRequest{
		StoreID:       "main-store",
		Items:         []domain.CartItem{{ProductID: "prod-mie-01", Qty: 1}},
		PaymentMethod: "CASH",
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if tx.InvoiceNumber != "INV-TORE-20250101-0001" {
		t.Fatalf("expected first sequence, got %s", tx.InvoiceNumber)
	}
}

func TestCallerInvoiceNumberMustBeUnique(t *testing.T) {
	svc, repo := newTestService(t, Settings{})
	req := domain.CreateTransactionRequest{
		StoreID:       "main-store",
		InvoiceNumber: " POS-A1-0001 ",
		Items:         []domain.CartItem{{ProductID: "prod-telur-01", Qty: 1}},
		PaymentMethod: "CASH",
	}

	tx, err := svc.CreateTransaction(cashierCtx(), req)
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if tx.InvoiceNumber != "POS-A1-0001" {
		t.Fatalf("expected caller invoice number, got %s", tx.InvoiceNumber)
	}

	_, err = svc.CreateTransaction(cashierCtx(), req)
	if kind := ErrorKind(err); kind != KindDuplicateInvoiceNumber {
		t.Fatalf("expected %s, got %s (%v)", KindDuplicateInvoiceNumber, kind, err)
	}
	if got := stockOf(t, repo, "main-store", "prod-telur-01"); got != 119 {
		t.Fatalf("duplicate invoice must not touch stock, got %d", got)
	}
}

func TestUnderpaymentPolicy(t *testing.T) {
	req := domain.CreateTransactionRequest{
		StoreID:       "main-store",
		Items:         []domain.CartItem{{ProductID: "prod-mie-01", Qty: 1}},
		PaymentMethod: "cash",
		CashReceived:  cents(1000),
	}

	lenient, _ := newTestService(t, Settings{})
	tx, err := lenient.CreateTransaction(cashierCtx(), req)
	if err != nil {
		t.Fatalf("expected underpayment to be accepted by default: %v", err)
	}
	if tx.ChangeCents == nil || *tx.ChangeCents != 0 {
		t.Fatalf("expected zero change, got %v", tx.ChangeCents)
	}

	strict, repo := newTestService(t, Settings{RejectUnderpayment: true})
	_, err = strict.CreateTransaction(cashierCtx(), req)
	if kind := ErrorKind(err); kind != KindInsufficientPayment {
		t.Fatalf("expected %s, got %s (%v)", KindInsufficientPayment, kind, err)
	}
	if got := stockOf(t, repo, "main-store", "prod-mie-01"); got != 120 {
		t.Fatalf("rejected sale must not touch stock, got %d", got)
	}
}

type failingCounter struct{}

func (failingCounter) NextSequence(context.Context, string, string) (int64, error) {
	return 0, errors.New("counter offline")
}

func TestSequenceFailureAbortsSale(t *testing.T) {
	repo := memory.NewSeeded()
	svc := New(repo, sequence.NewGenerator(failingCounter{}, wib), nil, Settings{Location: wib})

	_, err := svc.CreateTransaction(cashierCtx(), domain.CreateTransactionRequest{
		StoreID:       "main-store",
		Items:         []domain.CartItem{{ProductID: "prod-mie-01", Qty: 1}},
		PaymentMethod: "CASH",
	})
	if kind := ErrorKind(err); kind != KindSequenceAllocationFailed {
		t.Fatalf("expected %s, got %s (%v)", KindSequenceAllocationFailed, kind, err)
	}
	if got := stockOf(t, repo, "main-store", "prod-mie-01"); got != 120 {
		t.Fatalf("failed sale must not touch stock, got %d", got)
	}
}

func TestVoidTransactionRestocksAndHidesSale(t *testing.T) {
	svc, repo := newTestService(t, Settings{})

	tx, err := svc.CreateTransaction(cashierCtx(), domain.CreateTransactionRequest{
		StoreID:       "main-store",
		Items:         []domain.CartItem{{ProductID: "prod-kopi-01", Qty: 5}},
		PaymentMethod: "CASH",
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	summary, err := svc.TodaySummary(cashierCtx(), "main-store")
	if err != nil {
		t.Fatalf("today summary: %v", err)
	}
	if summary.TransactionCount != 1 || summary.TotalSalesCents != 13000 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	voidReq := domain.VoidTransactionRequest{StoreID: "main-store", TransactionID: tx.ID, Reason: "salah input"}
	if _, err := svc.VoidTransaction(cashierCtx(), voidReq); ErrorKind(err) != KindForbidden {
		t.Fatalf("expected staff void to be forbidden, got %v", err)
	}

	voided, err := svc.VoidTransaction(ownerCtx(), voidReq)
	if err != nil {
		t.Fatalf("void: %v", err)
	}
	if voided.DeletedAt == nil || voided.VoidReason != "salah input" {
		t.Fatalf("expected voided record, got %+v", voided)
	}
	if got := stockOf(t, repo, "main-store", "prod-kopi-01"); got != 120 {
		t.Fatalf("expected stock restored to 120, got %d", got)
	}

	if _, err := svc.VoidTransaction(ownerCtx(), voidReq); ErrorKind(err) != KindConflict {
		t.Fatalf("expected second void to conflict, got %v", err)
	}

	history, err := svc.ListTransactions(cashierCtx(), "main-store", time.Time{}, time.Time{}, 0)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(history.Transactions) != 0 {
		t.Fatalf("expected voided sale to be hidden, got %d", len(history.Transactions))
	}

	summary, err = svc.TodaySummary(cashierCtx(), "main-store")
	if err != nil {
		t.Fatalf("today summary: %v", err)
	}
	if summary.TransactionCount != 0 {
		t.Fatalf("expected summary cache to be invalidated, got %+v", summary)
	}

	logs, err := svc.ListAuditLogs(ownerCtx(), "main-store", "", 10)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) == 0 || logs[0].Action != "transaction_void" {
		t.Fatalf("expected newest audit entry to be the void, got %+v", logs)
	}
}

func TestListTransactionsNewestFirstWithinWindow(t *testing.T) {
	svc, _ := newTestService(t, Settings{})

	invoices := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		tx, err := svc.CreateTransaction(cashierCtx(), domain.CreateTransactionRequest{
			StoreID:       "main-store",
			Items:         []domain.CartItem{{ProductID: "prod-mie-01", Qty: 1}},
			PaymentMethod: "CASH",
		})
		if err != nil {
			t.Fatalf("create transaction %d: %v", i, err)
		}
		invoices = append(invoices, tx.InvoiceNumber)
	}

	today, err := svc.TodayTransactions(cashierCtx(), "main-store", 2)
	if err != nil {
		t.Fatalf("today transactions: %v", err)
	}
	if len(today.Transactions) != 2 {
		t.Fatalf("expected limit 2, got %d", len(today.Transactions))
	}
	if today.Transactions[0].InvoiceNumber != invoices[2] || today.Transactions[1].InvoiceNumber != invoices[1] {
		t.Fatalf("expected newest first, got %s, %s", today.Transactions[0].InvoiceNumber, today.Transactions[1].InvoiceNumber)
	}

	past := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	old, err := svc.ListTransactions(cashierCtx(), "main-store", past, past.Add(24*time.Hour), 0)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(old.Transactions) != 0 {
		t.Fatalf("expected empty window, got %d", len(old.Transactions))
	}

	if _, err := svc.ListTransactions(cashierCtx(), "main-store", past.Add(time.Hour), past, 0); ErrorKind(err) != KindInvalidRequest {
		t.Fatalf("expected inverted window to be rejected, got %v", err)
	}
}

func TestCatalogManagement(t *testing.T) {
	svc, _ := newTestService(t, Settings{})

	req := domain.ProductCreateRequest{
		StoreID:      "main-store",
		SKU:          "sku-baru-01",
		Name:         "Produk Baru",
		PriceCents:   12000,
		InitialStock: 5,
		MinimumStock: 2,
	}
	if _, err := svc.CreateProduct(cashierCtx(), req); ErrorKind(err) != KindForbidden {
		t.Fatalf("expected staff create to be forbidden, got %v", err)
	}

	product, err := svc.CreateProduct(ownerCtx(), req)
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if product.SKU != "SKU-BARU-01" || product.Stock != 5 || !product.Active {
		t.Fatalf("unexpected product %+v", product)
	}
	if _, err := svc.CreateProduct(ownerCtx(), req); ErrorKind(err) != KindConflict {
		t.Fatalf("expected duplicate sku conflict, got %v", err)
	}

	adjusted, err := svc.AdjustStock(cashierCtx(), product.ID, domain.StockAdjustRequest{StoreID: "main-store", Delta: -3, Reason: "rusak"})
	if err != nil {
		t.Fatalf("adjust stock: %v", err)
	}
	if adjusted.Stock != 2 {
		t.Fatalf("expected stock 2, got %d", adjusted.Stock)
	}
	if _, err := svc.AdjustStock(cashierCtx(), product.ID, domain.StockAdjustRequest{StoreID: "main-store", Delta: -3}); ErrorKind(err) != KindInsufficientStock {
		t.Fatalf("expected negative adjustment to be rejected, got %v", err)
	}

	products, err := svc.ListProducts(cashierCtx(), "main-store")
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	found := false
	for _, p := range products {
		if p.ID == product.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected new product in listing")
	}
}

func TestLowStockAndScan(t *testing.T) {
	svc, _ := newTestService(t, Settings{})

	low, err := svc.LowStock(cashierCtx(), "main-store", 0)
	if err != nil {
		t.Fatalf("low stock: %v", err)
	}
	if len(low) != 1 || low[0].ID != "prod-gula-01" {
		t.Fatalf("expected only prod-gula-01, got %+v", low)
	}

	reports, err := svc.ScanLowStock(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected two stores, got %d", len(reports))
	}
	byStore := make(map[string]LowStockReport, len(reports))
	for _, r := range reports {
		byStore[r.StoreID] = r
	}
	if len(byStore["main-store"].Products) != 1 || len(byStore["east-store"].Products) != 0 {
		t.Fatalf("unexpected scan result %+v", reports)
	}
}

// racingRepo runs onSummarize once, right after the sales totals are read.
type racingRepo struct {
	*memory.Store
	onSummarize func()
}

func (r *racingRepo) SummarizeSales(ctx context.Context, storeID string, from time.Time, to time.Time) (int64, int, error) {
	total, count, err := r.Store.SummarizeSales(ctx, storeID, from, to)
	if fn := r.onSummarize; fn != nil {
		r.onSummarize = nil
		fn()
	}
	return total, count, err
}

func TestSummaryReadDuringCommitIsNotCached(t *testing.T) {
	repo := &racingRepo{Store: memory.NewSeeded()}
	svc := New(repo, nil, cache.NewMemorySummaryCache(), Settings{Location: wib, SummaryTTL: time.Hour})
	clock := &testClock{t: time.Date(2025, 1, 1, 3, 0, 0, 0, time.UTC)}
	svc.now = clock.Now

	repo.onSummarize = func() {
		if _, err := svc.CreateTransaction(cashierCtx(), domain.CreateTransactionRequest{
			StoreID:       "main-store",
			Items:         []domain.CartItem{{ProductID: "prod-mie-01", Qty: 1}},
			PaymentMethod: "CASH",
		}); err != nil {
			t.Errorf("create transaction: %v", err)
		}
	}

	first, err := svc.TodaySummary(cashierCtx(), "main-store")
	if err != nil {
		t.Fatalf("today summary: %v", err)
	}
	if first.TransactionCount != 0 {
		t.Fatalf("expected totals read before the sale, got %+v", first)
	}

	second, err := svc.TodaySummary(cashierCtx(), "main-store")
	if err != nil {
		t.Fatalf("today summary: %v", err)
	}
	if second.TransactionCount != 1 || second.TotalSalesCents != 3500 {
		t.Fatalf("expected the sale committed during the first read, got %+v", second)
	}
}

func TestZeroRateTaxIsNotStored(t *testing.T) {
	svc, _ := newTestService(t, Settings{})

	tx, err := svc.CreateTransaction(cashierCtx(), domain.CreateTransactionRequest{
		StoreID:       "main-store",
		Items:         []domain.CartItem{{ProductID: "prod-mie-01", Qty: 1}},
		Tax:           &domain.TaxPolicy{Rate: 0, Inclusive: true},
		PaymentMethod: "CASH",
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if tx.Tax != nil || tx.TaxCents != 0 {
		t.Fatalf("expected no tax policy on the record, got %+v", tx.Tax)
	}

	stored, err := svc.GetTransaction(cashierCtx(), "main-store", tx.ID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if stored.Tax != nil {
		t.Fatalf("expected stored record without tax policy, got %+v", stored.Tax)
	}
}

func TestListAuditLogsCapsLimit(t *testing.T) {
	svc, repo := newTestService(t, Settings{})

	at := time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC)
	for i := 0; i < maxHistoryLimit+20; i++ {
		if err := repo.CreateAuditLog(context.Background(), domain.AuditLog{
			StoreID:   "main-store",
			Action:    "stock_adjust",
			CreatedAt: at,
		}); err != nil {
			t.Fatalf("create audit log: %v", err)
		}
	}

	logs, err := svc.ListAuditLogs(ownerCtx(), "main-store", "", 100000)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) != maxHistoryLimit {
		t.Fatalf("expected %d entries, got %d", maxHistoryLimit, len(logs))
	}

	logs, err = svc.ListAuditLogs(ownerCtx(), "main-store", "", 0)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) != defaultAuditLimit {
		t.Fatalf("expected default %d entries, got %d", defaultAuditLimit, len(logs))
	}
}

func TestErrorKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrEmptyCart, KindEmptyCart},
		{fmt.Errorf("%w: p1", ErrProductNotFound), KindProductNotFound},
		{fmt.Errorf("%w: %w", ErrProductNotFound, store.ErrNotFound), KindProductNotFound},
		{fmt.Errorf("%w: %w", ErrInsufficientStock, store.ErrInsufficientStock), KindInsufficientStock},
		{store.ErrInsufficientStock, KindInsufficientStock},
		{pricing.ErrInvalidPricingPolicy, KindInvalidPricingPolicy},
		{fmt.Errorf("%w: x", sequence.ErrSequenceAllocationFailed), KindSequenceAllocationFailed},
		{fmt.Errorf("%w: %w", ErrPersistenceFailed, errors.New("db down")), KindPersistenceFailed},
		{store.ErrNotFound, KindNotFound},
		{store.ErrDuplicate, KindConflict},
		{context.Canceled, KindCanceled},
		{errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		if got := ErrorKind(tc.err); got != tc.want {
			t.Fatalf("ErrorKind(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}
