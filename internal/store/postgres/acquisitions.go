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

const acquisitionColumns = `id, acquisition_id, supplier, items, subtotal, total_amount, payment_method,
	status, created_by, resolved_by, version, created_at, updated_at, resolved_at`

var acquisitionSortColumns = map[string]string{
	"acquisitionId": "acquisition_id",
	"supplier":      "supplier",
	"status":        "status",
	"totalAmount":   "total_amount",
	"updatedAt":     "updated_at",
}

func scanAcquisition(row rowScanner) (*domain.Acquisition, error) {
	var acq domain.Acquisition
	var items []byte
	var resolvedAt sql.NullTime
	err := row.Scan(
		&acq.ID,
		&acq.AcquisitionID,
		&acq.Supplier,
		&items,
		&acq.Subtotal,
		&acq.TotalAmount,
		&acq.PaymentMethod,
		&acq.Status,
		&acq.CreatedBy,
		&acq.ResolvedBy,
		&acq.Version,
		&acq.CreatedAt,
		&acq.UpdatedAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	acq.CreatedAt = acq.CreatedAt.UTC()
	acq.UpdatedAt = acq.UpdatedAt.UTC()
	acq.ResolvedAt = timePtr(resolvedAt)
	if err := json.Unmarshal(items, &acq.Items); err != nil {
		return nil, err
	}
	return &acq, nil
}

func (s *Store) CreateAcquisition(ctx context.Context, acq domain.Acquisition) (*domain.Acquisition, error) {
	if strings.TrimSpace(acq.AcquisitionID) == "" {
		return nil, domain.NewValidationError("acquisitionId is required")
	}
	if acq.ID == "" {
		acq.ID = xid.New("acq")
	}
	now := time.Now().UTC()
	if acq.CreatedAt.IsZero() {
		acq.CreatedAt = now
	}
	if acq.UpdatedAt.IsZero() {
		acq.UpdatedAt = now
	}
	acq.Version = 1

	items, err := json.Marshal(acq.Items)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO acquisitions (`+acquisitionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, acq.ID, acq.AcquisitionID, acq.Supplier, string(items), acq.Subtotal, acq.TotalAmount, acq.PaymentMethod,
		acq.Status, acq.CreatedBy, acq.ResolvedBy, acq.Version, acq.CreatedAt, acq.UpdatedAt, nullTime(acq.ResolvedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &acq, nil
}

func (s *Store) GetAcquisition(ctx context.Context, acquisitionID string) (*domain.Acquisition, error) {
	acq, err := scanAcquisition(s.db.QueryRowContext(ctx, `
		SELECT `+acquisitionColumns+`
		FROM acquisitions
		WHERE acquisition_id = $1
	`, acquisitionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return acq, err
}

func (s *Store) SaveAcquisition(ctx context.Context, acq domain.Acquisition) (*domain.Acquisition, error) {
	items, err := json.Marshal(acq.Items)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		UPDATE acquisitions
		SET supplier = $3, items = $4, subtotal = $5, total_amount = $6, payment_method = $7,
			status = $8, resolved_by = $9, resolved_at = $10, updated_at = $11, version = version + 1
		WHERE acquisition_id = $1 AND version = $2
		RETURNING id, created_by, created_at
	`, acq.AcquisitionID, acq.Version, acq.Supplier, string(items), acq.Subtotal, acq.TotalAmount, acq.PaymentMethod,
		acq.Status, acq.ResolvedBy, nullTime(acq.ResolvedAt), acq.UpdatedAt).Scan(&acq.ID, &acq.CreatedBy, &acq.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.versionMiss(ctx, "acquisitions", "acquisition_id", acq.AcquisitionID)
	}
	if err != nil {
		return nil, err
	}
	acq.CreatedAt = acq.CreatedAt.UTC()
	acq.Version++
	return &acq, nil
}

func (s *Store) ListAcquisitions(ctx context.Context, filter store.Filter) ([]domain.Acquisition, int, error) {
	total, err := s.count(ctx, "acquisitions", filter.Status)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+acquisitionColumns+`
		FROM acquisitions
		WHERE ($1 = '' OR status = $1)`+listClause(filter, acquisitionSortColumns, "created_at", "acquisition_id"),
		filter.Status)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	acquisitions := make([]domain.Acquisition, 0, 32)
	for rows.Next() {
		acq, err := scanAcquisition(rows)
		if err != nil {
			return nil, 0, err
		}
		acquisitions = append(acquisitions, *acq)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return acquisitions, total, nil
}
