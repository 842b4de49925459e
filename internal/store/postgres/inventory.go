package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"stockroom/backend/internal/domain"
	"stockroom/backend/internal/store"
	"stockroom/backend/internal/xid"
)

const inventoryColumns = `id, item_id, name, category, supplier, unit_price, purchase_price,
	current_stock, restock_threshold, expiration_date, status, stock_history,
	version, created_at, updated_at`

var inventorySortColumns = map[string]string{
	"itemId":       "item_id",
	"category":     "category",
	"currentStock": "current_stock",
	"status":       "status",
	"createdAt":    "created_at",
	"updatedAt":    "updated_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInventoryItem(row rowScanner) (*domain.InventoryItem, error) {
	var item domain.InventoryItem
	var expiration sql.NullTime
	var history []byte
	err := row.Scan(
		&item.ID,
		&item.ItemID,
		&item.Name,
		&item.Category,
		&item.Supplier,
		&item.UnitPrice,
		&item.PurchasePrice,
		&item.CurrentStock,
		&item.RestockThreshold,
		&expiration,
		&item.Status,
		&history,
		&item.Version,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.ExpirationDate = timePtr(expiration)
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	if err := json.Unmarshal(history, &item.StockHistory); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	if strings.TrimSpace(item.ItemID) == "" {
		item.ItemID = xid.Short("ITM")
	}
	if item.ID == "" {
		item.ID = xid.New("inv")
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = now
	}
	if item.StockHistory == nil {
		item.StockHistory = []domain.StockEvent{}
	}
	item.Version = 1

	history, err := json.Marshal(item.StockHistory)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO inventory_items (`+inventoryColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, item.ID, item.ItemID, item.Name, item.Category, item.Supplier, item.UnitPrice, item.PurchasePrice,
		item.CurrentStock, item.RestockThreshold, nullTime(item.ExpirationDate), item.Status, string(history),
		item.Version, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetInventoryItem(ctx context.Context, itemID string) (*domain.InventoryItem, error) {
	item, err := scanInventoryItem(s.db.QueryRowContext(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory_items
		WHERE item_id = $1
	`, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return item, err
}

// FindInventoryItemByName matches the name exactly, case included. When
// several items share a name the oldest wins.
func (s *Store) FindInventoryItemByName(ctx context.Context, name string) (*domain.InventoryItem, error) {
	item, err := scanInventoryItem(s.db.QueryRowContext(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory_items
		WHERE name = $1
		ORDER BY created_at ASC, item_id ASC
		LIMIT 1
	`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return item, err
}

func (s *Store) SaveInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	history, err := json.Marshal(item.StockHistory)
	if err != nil {
		return nil, err
	}

	var createdAt time.Time
	var id string
	err = s.db.QueryRowContext(ctx, `
		UPDATE inventory_items
		SET name = $3, category = $4, supplier = $5, unit_price = $6, purchase_price = $7,
			current_stock = $8, restock_threshold = $9, expiration_date = $10, status = $11,
			stock_history = $12, updated_at = $13, version = version + 1
		WHERE item_id = $1 AND version = $2
		RETURNING id, created_at
	`, item.ItemID, item.Version, item.Name, item.Category, item.Supplier, item.UnitPrice, item.PurchasePrice,
		item.CurrentStock, item.RestockThreshold, nullTime(item.ExpirationDate), item.Status, string(history),
		item.UpdatedAt).Scan(&id, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.versionMiss(ctx, "inventory_items", "item_id", item.ItemID)
	}
	if err != nil {
		return nil, err
	}
	item.ID = id
	item.CreatedAt = createdAt.UTC()
	item.Version++
	return &item, nil
}

func (s *Store) ListInventoryItems(ctx context.Context, filter store.Filter) ([]domain.InventoryItem, int, error) {
	total, err := s.count(ctx, "inventory_items", filter.Status)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory_items
		WHERE ($1 = '' OR status = $1)`+listClause(filter, inventorySortColumns, "name", "item_id"),
		filter.Status)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]domain.InventoryItem, 0, 32)
	for rows.Next() {
		item, err := scanInventoryItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
