package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"stockroom/backend/internal/domain"
	"stockroom/backend/internal/stock"
	"stockroom/backend/internal/xid"
)

func (s *Service) CreateInventoryItem(ctx context.Context, req domain.InventoryItemCreateRequest) (domain.InventoryItem, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.Supplier = strings.TrimSpace(req.Supplier)
	if err := validateRequest(req); err != nil {
		return domain.InventoryItem{}, err
	}

	threshold := s.defaultRestockThreshold
	if req.RestockThreshold != nil {
		threshold = *req.RestockThreshold
	}
	item := domain.InventoryItem{
		ID:               xid.New("inv"),
		ItemID:           xid.Short("ITM"),
		Name:             req.Name,
		Category:         defaultString(req.Category, "Uncategorized"),
		Supplier:         req.Supplier,
		UnitPrice:        req.UnitPrice,
		PurchasePrice:    req.PurchasePrice,
		RestockThreshold: threshold,
		ExpirationDate:   req.ExpirationDate,
	}

	created, err := s.ledger.Open(ctx, item, req.InitialStock, "opening stock")
	if err != nil {
		return domain.InventoryItem{}, err
	}
	s.invalidate(ctx, scopeInventory)
	s.logAudit(ctx, "inventory_create", "inventory", fmt.Sprintf("%s (%s) created with stock %d", created.Name, created.ItemID, created.CurrentStock))
	return *created, nil
}

func (s *Service) GetInventoryItem(ctx context.Context, itemID string) (domain.InventoryItem, error) {
	item, err := s.repo.GetInventoryItem(ctx, strings.TrimSpace(itemID))
	if err != nil {
		return domain.InventoryItem{}, err
	}
	return *item, nil
}

// RecordStockEvent books a sale, refund or manual adjustment. Sale and
// refund quantities are given as positive counts; adjustments are signed.
func (s *Service) RecordStockEvent(ctx context.Context, itemID string, req domain.StockEventRequest) (domain.InventoryItem, error) {
	req.Note = strings.TrimSpace(req.Note)
	if err := validateRequest(req); err != nil {
		return domain.InventoryItem{}, err
	}

	change := stock.Change{Type: req.Type, Quantity: req.Quantity, Note: req.Note}
	switch req.Type {
	case domain.StockEventSale:
		if req.Quantity < 0 {
			return domain.InventoryItem{}, fieldError("quantity", "gt")
		}
		change.Quantity = -req.Quantity
	case domain.StockEventRefund:
		if req.Quantity < 0 {
			return domain.InventoryItem{}, fieldError("quantity", "gt")
		}
	}

	item, err := s.ledger.ApplyStockEvent(ctx, strings.TrimSpace(itemID), change)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	s.invalidate(ctx, scopeInventory)
	s.logAudit(ctx, "stock_"+strings.ToLower(string(req.Type)), "inventory",
		fmt.Sprintf("%s %s %+d, stock now %d", item.Name, req.Type, change.Quantity, item.CurrentStock))
	return *item, nil
}

func (s *Service) ListInventory(ctx context.Context, query domain.ListQuery) (domain.Page[domain.InventoryItem], error) {
	if query.Sort == "" {
		query.Sort = "name"
	}
	return listPage(ctx, s, scopeInventory, query, s.repo.ListInventoryItems, func(item domain.InventoryItem) []string {
		return []string{item.ItemID, item.Name, item.Category, string(item.Status), item.Supplier, strconv.Itoa(item.CurrentStock)}
	})
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
