package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

func (s *Service) ListProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	if _, err := s.requireStoreAccess(ctx, storeID); err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, storeID)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.StoreID = strings.TrimSpace(req.StoreID)
	if _, err := s.requireManager(ctx, req.StoreID); err != nil {
		return domain.Product{}, err
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.Unit = strings.TrimSpace(req.Unit)
	if req.SKU == "" || req.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: sku and name are required", ErrInvalidRequest)
	}
	if req.PriceCents < 0 || req.InitialStock < 0 || req.MinimumStock < 0 {
		return domain.Product{}, fmt.Errorf("%w: price, stock and minimum stock must not be negative", ErrInvalidRequest)
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		StoreID:      req.StoreID,
		SKU:          req.SKU,
		Name:         req.Name,
		Unit:         req.Unit,
		CategoryID:   strings.TrimSpace(req.CategoryID),
		PriceCents:   req.PriceCents,
		Stock:        req.InitialStock,
		MinimumStock: req.MinimumStock,
		Active:       true,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, req.StoreID, "product_create", "product", created.ID,
		fmt.Sprintf("sku=%s,name=%s,price=%d,stock=%d", created.SKU, created.Name, created.PriceCents, created.Stock))
	return *created, nil
}

// UpdateProduct applies the non-nil fields of req. Stock is not editable here;
// use AdjustStock.
func (s *Service) UpdateProduct(ctx context.Context, storeID string, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := s.requireManager(ctx, storeID); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, storeID, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("%w: name must not be empty", ErrInvalidRequest)
		}
		updated.Name = name
	}
	if req.SKU != nil {
		sku := strings.ToUpper(strings.TrimSpace(*req.SKU))
		if sku == "" {
			return domain.Product{}, fmt.Errorf("%w: sku must not be empty", ErrInvalidRequest)
		}
		updated.SKU = sku
	}
	if req.Unit != nil {
		updated.Unit = strings.TrimSpace(*req.Unit)
	}
	if req.CategoryID != nil {
		updated.CategoryID = strings.TrimSpace(*req.CategoryID)
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return domain.Product{}, fmt.Errorf("%w: price must not be negative", ErrInvalidRequest)
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.MinimumStock != nil {
		if *req.MinimumStock < 0 {
			return domain.Product{}, fmt.Errorf("%w: minimum stock must not be negative", ErrInvalidRequest)
		}
		updated.MinimumStock = *req.MinimumStock
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	if existing.PriceCents != saved.PriceCents {
		s.logAudit(ctx, storeID, "product_price_change", "product", saved.ID,
			fmt.Sprintf("old_price=%d,new_price=%d", existing.PriceCents, saved.PriceCents))
	}
	s.logAudit(ctx, storeID, "product_update", "product", saved.ID,
		fmt.Sprintf("name=%s,sku=%s,active=%t", saved.Name, saved.SKU, saved.Active))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, storeID string, productID string) error {
	if _, err := s.requireManager(ctx, storeID); err != nil {
		return err
	}
	productID = strings.TrimSpace(productID)
	if err := s.repo.DeleteProduct(ctx, storeID, productID, s.now().UTC()); err != nil {
		return err
	}
	s.logAudit(ctx, storeID, "product_delete", "product", productID, "")
	return nil
}

// AdjustStock applies a signed stock correction. A correction that would
// leave stock negative fails with ErrInsufficientStock.
func (s *Service) AdjustStock(ctx context.Context, productID string, req domain.StockAdjustRequest) (domain.Product, error) {
	req.StoreID = strings.TrimSpace(req.StoreID)
	if _, err := s.requireStoreAccess(ctx, req.StoreID); err != nil {
		return domain.Product{}, err
	}
	if req.Delta == 0 {
		return domain.Product{}, fmt.Errorf("%w: delta must not be zero", ErrInvalidRequest)
	}
	productID = strings.TrimSpace(productID)

	stock, err := s.repo.AdjustStock(ctx, req.StoreID, productID, req.Delta)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientStock) {
			return domain.Product{}, fmt.Errorf("%w: %w", ErrInsufficientStock, err)
		}
		return domain.Product{}, err
	}

	s.logAudit(ctx, req.StoreID, "stock_adjust", "product", productID,
		fmt.Sprintf("delta=%d,stock=%d,reason=%s", req.Delta, stock, strings.TrimSpace(req.Reason)))

	product, err := s.repo.GetProduct(ctx, req.StoreID, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}
