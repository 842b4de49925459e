package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"stockroom/backend/internal/domain"
	"stockroom/backend/internal/stock"
	"stockroom/backend/internal/store"
	"stockroom/backend/internal/xid"
)

func acquisitionLockKey(acquisitionID string) string {
	return "acq:" + acquisitionID
}

func itemNameLockKey(name string) string {
	return "item-name:" + name
}

// CreateAcquisition records goods already in hand. The acquisition always
// starts Pending whatever status the caller sent.
func (s *Service) CreateAcquisition(ctx context.Context, req domain.AcquisitionCreateRequest) (domain.Acquisition, error) {
	req.AcquisitionID = strings.TrimSpace(req.AcquisitionID)
	req.Supplier = strings.TrimSpace(req.Supplier)
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	for i := range req.Items {
		req.Items[i].Name = strings.TrimSpace(req.Items[i].Name)
		req.Items[i].Category = strings.TrimSpace(req.Items[i].Category)
	}
	if err := validateRequest(req); err != nil {
		return domain.Acquisition{}, err
	}

	actor := actorOrSystem(ctx)
	now := s.now()
	acq := domain.Acquisition{
		ID:            xid.New("acq"),
		AcquisitionID: req.AcquisitionID,
		Supplier:      req.Supplier,
		Items:         req.Items,
		Subtotal:      req.Subtotal,
		TotalAmount:   req.TotalAmount,
		PaymentMethod: req.PaymentMethod,
		Status:        domain.AcquisitionPending,
		CreatedBy:     actor.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	created, err := s.repo.CreateAcquisition(ctx, acq)
	if err != nil {
		return domain.Acquisition{}, err
	}
	s.invalidate(ctx, scopeAcquisitions)

	s.logAudit(ctx, "acquisition_create", "acquisitions",
		fmt.Sprintf("acquisition %s from %s with %d line(s), total %s", created.AcquisitionID, created.Supplier, len(created.Items), created.TotalAmount.StringFixed(2)))
	s.notify(ctx, fmt.Sprintf("Acquisition %s from %s is awaiting confirmation", created.AcquisitionID, created.Supplier),
		domain.SeverityInfo, domain.Audience{Roles: domain.ApproverRoles})
	s.notify(ctx, fmt.Sprintf("Acquisition %s was submitted for approval", created.AcquisitionID),
		domain.SeverityInfo, domain.Audience{UserID: actor.ID})
	return *created, nil
}

func (s *Service) GetAcquisition(ctx context.Context, acquisitionID string) (domain.Acquisition, error) {
	acq, err := s.repo.GetAcquisition(ctx, strings.TrimSpace(acquisitionID))
	if err != nil {
		return domain.Acquisition{}, err
	}
	return *acq, nil
}

// ConfirmAcquisition folds a pending acquisition into inventory. Lines are
// matched to items by exact name; a line with no matching item creates one.
func (s *Service) ConfirmAcquisition(ctx context.Context, acquisitionID string) (domain.Acquisition, error) {
	acquisitionID = strings.TrimSpace(acquisitionID)
	unlock, err := s.locker.Lock(ctx, acquisitionLockKey(acquisitionID))
	if err != nil {
		return domain.Acquisition{}, err
	}
	defer unlock()

	acq, err := s.repo.GetAcquisition(ctx, acquisitionID)
	if err != nil {
		return domain.Acquisition{}, err
	}
	next, err := acq.Status.Next(domain.AcquisitionConfirm)
	if err != nil {
		return domain.Acquisition{}, err
	}

	note := "Acquisition " + acq.AcquisitionID
	for i, line := range acq.Items {
		if err := s.stockAcquisitionLine(ctx, acq, line, note); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"acquisition_id": acq.AcquisitionID,
				"applied_lines":  i,
			}).Error("acquisition confirm stopped partway")
			return domain.Acquisition{}, fmt.Errorf("stock %q for acquisition %s: %w", line.Name, acq.AcquisitionID, err)
		}
	}

	actor := actorOrSystem(ctx)
	now := s.now()
	acq.Status = next
	acq.ResolvedBy = actor.Username
	acq.ResolvedAt = &now
	acq.UpdatedAt = now

	saved, err := s.repo.SaveAcquisition(ctx, *acq)
	if err != nil {
		return domain.Acquisition{}, err
	}
	s.invalidate(ctx, scopeAcquisitions)
	s.invalidate(ctx, scopeInventory)

	s.logAudit(ctx, "acquisition_confirm", "acquisitions",
		fmt.Sprintf("acquisition %s confirmed: %s", saved.AcquisitionID, acquisitionSummary(saved.Items)))
	s.notify(ctx, fmt.Sprintf("Acquisition %s was confirmed and added to inventory", saved.AcquisitionID),
		domain.SeverityInfo, domain.Audience{UserID: saved.CreatedBy})
	return *saved, nil
}

func (s *Service) stockAcquisitionLine(ctx context.Context, acq *domain.Acquisition, line domain.AcquisitionLine, note string) error {
	// Two acquisitions naming the same new item must not both create it.
	unlock, err := s.locker.Lock(ctx, itemNameLockKey(line.Name))
	if err != nil {
		return err
	}
	defer unlock()

	existing, err := s.repo.FindInventoryItemByName(ctx, line.Name)
	switch {
	case err == nil:
		_, err = s.ledger.ApplyStockEvent(ctx, existing.ItemID, stock.Change{
			Type:     domain.StockEventRestock,
			Quantity: line.Quantity,
			Note:     note,
		})
		return err
	case errors.Is(err, store.ErrNotFound):
		_, err = s.ledger.Open(ctx, domain.InventoryItem{
			ID:               xid.New("inv"),
			ItemID:           xid.Short("ITM"),
			Name:             line.Name,
			Category:         defaultString(line.Category, "Uncategorized"),
			Supplier:         acq.Supplier,
			UnitPrice:        line.UnitCost,
			PurchasePrice:    line.UnitCost,
			RestockThreshold: s.defaultRestockThreshold,
		}, line.Quantity, note)
		return err
	default:
		return err
	}
}

// CancelAcquisition resolves a pending acquisition without touching inventory.
func (s *Service) CancelAcquisition(ctx context.Context, acquisitionID string) (domain.Acquisition, error) {
	acquisitionID = strings.TrimSpace(acquisitionID)
	unlock, err := s.locker.Lock(ctx, acquisitionLockKey(acquisitionID))
	if err != nil {
		return domain.Acquisition{}, err
	}
	defer unlock()

	acq, err := s.repo.GetAcquisition(ctx, acquisitionID)
	if err != nil {
		return domain.Acquisition{}, err
	}
	next, err := acq.Status.Next(domain.AcquisitionCancel)
	if err != nil {
		return domain.Acquisition{}, err
	}

	now := s.now()
	acq.Status = next
	acq.ResolvedBy = actorOrSystem(ctx).Username
	acq.ResolvedAt = &now
	acq.UpdatedAt = now

	saved, err := s.repo.SaveAcquisition(ctx, *acq)
	if err != nil {
		return domain.Acquisition{}, err
	}
	s.invalidate(ctx, scopeAcquisitions)

	s.logAudit(ctx, "acquisition_cancel", "acquisitions", fmt.Sprintf("acquisition %s cancelled", saved.AcquisitionID))
	s.notify(ctx, fmt.Sprintf("Acquisition %s was cancelled", saved.AcquisitionID),
		domain.SeverityWarning, domain.Audience{UserID: saved.CreatedBy})
	return *saved, nil
}

func (s *Service) ListAcquisitions(ctx context.Context, query domain.ListQuery) (domain.Page[domain.Acquisition], error) {
	if query.Sort == "" {
		query.Sort = "createdAt"
		query.Desc = true
	}
	return listPage(ctx, s, scopeAcquisitions, query, s.repo.ListAcquisitions, acquisitionProjections)
}

func acquisitionProjections(acq domain.Acquisition) []string {
	names := make([]string, 0, len(acq.Items))
	for _, line := range acq.Items {
		names = append(names, line.Name)
	}
	return []string{
		acq.AcquisitionID,
		string(acq.Status),
		acq.TotalAmount.String(),
		acq.Supplier,
		strings.Join(names, " "),
	}
}

func acquisitionSummary(lines []domain.AcquisitionLine) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		parts = append(parts, fmt.Sprintf("%s +%d", line.Name, line.Quantity))
	}
	return strings.Join(parts, ", ")
}
