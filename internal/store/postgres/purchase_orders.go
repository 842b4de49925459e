package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"stockroom/backend/internal/domain"
	"stockroom/backend/internal/store"
	"stockroom/backend/internal/xid"
)

const purchaseOrderColumns = `id, po_number, supplier_id, supplier_name, items, status, total_amount,
	cancellation_note, created_by, version, created_at, updated_at`

var purchaseOrderSortColumns = map[string]string{
	"poNumber":    "po_number",
	"status":      "status",
	"totalAmount": "total_amount",
	"supplier":    "supplier_name",
	"updatedAt":   "updated_at",
}

func scanPurchaseOrder(row rowScanner) (*domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	var supplierID sql.NullString
	var items []byte
	err := row.Scan(
		&po.ID,
		&po.PONumber,
		&supplierID,
		&po.SupplierName,
		&items,
		&po.Status,
		&po.TotalAmount,
		&po.CancellationNote,
		&po.CreatedBy,
		&po.Version,
		&po.CreatedAt,
		&po.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if supplierID.Valid {
		id := supplierID.String
		po.SupplierID = &id
	}
	po.CreatedAt = po.CreatedAt.UTC()
	po.UpdatedAt = po.UpdatedAt.UTC()
	if err := json.Unmarshal(items, &po.Items); err != nil {
		return nil, err
	}
	return &po, nil
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if len(po.Items) == 0 || po.PONumber < 1 {
		return nil, domain.NewValidationError("purchase order needs a number and at least one line")
	}
	if po.ID == "" {
		po.ID = xid.New("po")
	}
	now := time.Now().UTC()
	if po.CreatedAt.IsZero() {
		po.CreatedAt = now
	}
	if po.UpdatedAt.IsZero() {
		po.UpdatedAt = now
	}
	po.Version = 1

	items, err := json.Marshal(po.Items)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO purchase_orders (`+purchaseOrderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, po.ID, po.PONumber, nullIfEmpty(po.SupplierID), po.SupplierName, string(items), po.Status, po.TotalAmount,
		po.CancellationNote, po.CreatedBy, po.Version, po.CreatedAt, po.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &po, nil
}

func (s *Store) GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	po, err := scanPurchaseOrder(s.db.QueryRowContext(ctx, `
		SELECT `+purchaseOrderColumns+`
		FROM purchase_orders
		WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return po, err
}

// SavePurchaseOrder writes lines, status and note. Number and authorship are
// fixed at creation.
func (s *Store) SavePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	items, err := json.Marshal(po.Items)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		UPDATE purchase_orders
		SET supplier_id = $3, supplier_name = $4, items = $5, status = $6, total_amount = $7,
			cancellation_note = $8, updated_at = $9, version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING po_number, created_by, created_at
	`, po.ID, po.Version, nullIfEmpty(po.SupplierID), po.SupplierName, string(items), po.Status, po.TotalAmount,
		po.CancellationNote, po.UpdatedAt).Scan(&po.PONumber, &po.CreatedBy, &po.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.versionMiss(ctx, "purchase_orders", "id", po.ID)
	}
	if err != nil {
		return nil, err
	}
	po.CreatedAt = po.CreatedAt.UTC()
	po.Version++
	return &po, nil
}

func (s *Store) ListPurchaseOrders(ctx context.Context, filter store.Filter) ([]domain.PurchaseOrder, int, error) {
	total, err := s.count(ctx, "purchase_orders", filter.Status)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+purchaseOrderColumns+`
		FROM purchase_orders
		WHERE ($1 = '' OR status = $1)`+listClause(filter, purchaseOrderSortColumns, "created_at", "po_number"),
		filter.Status)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders := make([]domain.PurchaseOrder, 0, 32)
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, *po)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (s *Store) MaxPONumber(ctx context.Context) (int64, error) {
	var highest sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(po_number) FROM purchase_orders`).Scan(&highest); err != nil {
		return 0, err
	}
	return highest.Int64, nil
}
