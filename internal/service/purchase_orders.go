package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"stockroom/backend/internal/domain"
	"stockroom/backend/internal/stock"
	"stockroom/backend/internal/store"
	"stockroom/backend/internal/xid"
)

func purchaseOrderLockKey(id string) string {
	return "po:" + id
}

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrder, error) {
	for i := range req.Items {
		req.Items[i].ItemID = strings.TrimSpace(req.Items[i].ItemID)
	}
	if err := validateRequest(req); err != nil {
		return domain.PurchaseOrder{}, err
	}

	po := domain.PurchaseOrder{
		ID:        xid.New("po"),
		Status:    domain.POStatusPending,
		CreatedBy: actorOrSystem(ctx).Username,
		CreatedAt: s.now(),
	}
	po.UpdatedAt = po.CreatedAt

	if req.SupplierID != nil && strings.TrimSpace(*req.SupplierID) != "" {
		supplier, err := s.repo.GetSupplier(ctx, strings.TrimSpace(*req.SupplierID))
		if errors.Is(err, store.ErrNotFound) {
			return domain.PurchaseOrder{}, fieldError("supplier", "exists")
		}
		if err != nil {
			return domain.PurchaseOrder{}, err
		}
		po.SupplierID = &supplier.ID
		po.SupplierName = supplier.Name
	}

	seen := make(map[string]bool, len(req.Items))
	po.Items = make([]domain.PurchaseOrderLine, 0, len(req.Items))
	for i, line := range req.Items {
		field := fmt.Sprintf("items[%d].item", i)
		if seen[line.ItemID] {
			return domain.PurchaseOrder{}, fieldError(field, "unique")
		}
		seen[line.ItemID] = true

		item, err := s.repo.GetInventoryItem(ctx, line.ItemID)
		if errors.Is(err, store.ErrNotFound) {
			return domain.PurchaseOrder{}, fieldError(field, "exists")
		}
		if err != nil {
			return domain.PurchaseOrder{}, err
		}
		po.Items = append(po.Items, domain.PurchaseOrderLine{
			ItemID:        item.ItemID,
			ItemName:      item.Name,
			OrderedQty:    line.OrderedQty,
			PurchasePrice: line.PurchasePrice,
		})
	}
	po.TotalAmount = domain.PurchaseOrderTotal(po.Items)

	created, err := s.createNumbered(ctx, po)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	s.invalidate(ctx, scopePurchaseOrders)
	s.logAudit(ctx, "purchase_order_create", "purchase_orders",
		fmt.Sprintf("PO #%d created with %d line(s), total %s", created.PONumber, len(created.Items), created.TotalAmount.StringFixed(2)))
	return *created, nil
}

// createNumbered allocates a PO number and inserts po, drawing a fresh
// number when the store reports the previous one as taken.
func (s *Service) createNumbered(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	var lastErr error
	for attempt := 0; attempt < poNumberAttempts; attempt++ {
		number, err := s.allocator.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("allocate po number: %w", err)
		}
		po.PONumber = number
		created, err := s.repo.CreatePurchaseOrder(ctx, po)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return nil, err
		}
		lastErr = err
		s.log.WithField("po_number", number).Warn("po number already taken, retrying")
	}
	return nil, fmt.Errorf("po number allocation exhausted: %w", lastErr)
}

func (s *Service) GetPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	po, err := s.repo.GetPurchaseOrder(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	return *po, nil
}

// checkStrictReceipt walks the request in order, so the entry that pushes an
// item past its remaining quantity is the one reported.
func checkStrictReceipt(lines []domain.PurchaseOrderLine, entries []domain.ReceiveLineRequest) error {
	remaining := make(map[string]int, len(lines))
	for _, line := range lines {
		remaining[line.ItemID] = line.Remaining()
	}
	claimed := make(map[string]int, len(entries))
	fields := map[string]string{}
	for j, entry := range entries {
		itemID := strings.TrimSpace(entry.ItemID)
		left, onOrder := remaining[itemID]
		if !onOrder {
			continue
		}
		if entry.ReceivedQty <= 0 {
			if entry.ExpirationDate != nil {
				fields[fmt.Sprintf("items[%d].expirationDate", j)] = "requires_received_qty"
			}
			continue
		}
		claimed[itemID] += entry.ReceivedQty
		if claimed[itemID] > left {
			fields[fmt.Sprintf("items[%d].receivedQty", j)] = "lte_remaining"
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return &domain.ValidationError{Fields: fields, Reason: "receipt does not fit the remaining quantities"}
}

type receipt struct {
	qty            int
	expirationDate *time.Time
}

// ReceivePurchaseOrder books a delivery against po. Each line takes at most
// its remaining quantity, the accepted amount is restocked through the
// ledger item by item, and the order's received quantities and status are
// saved last. Entries for items that are not on the order are ignored, and
// an expiration date only lands on the item when some quantity of that line
// is accepted. In strict mode both excess quantities and expiration dates on
// entries without a positive quantity are rejected, keyed by request entry.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, id string, req domain.PurchaseOrderReceiveRequest) (domain.PurchaseOrderReceiveResponse, error) {
	if err := validateRequest(req); err != nil {
		return domain.PurchaseOrderReceiveResponse{}, err
	}
	id = strings.TrimSpace(id)

	unlock, err := s.locker.Lock(ctx, purchaseOrderLockKey(id))
	if err != nil {
		return domain.PurchaseOrderReceiveResponse{}, err
	}
	defer unlock()

	po, err := s.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return domain.PurchaseOrderReceiveResponse{}, err
	}
	if _, err := po.Status.Next(domain.PurchaseOrderReceive, po.Items); err != nil {
		return domain.PurchaseOrderReceiveResponse{}, err
	}

	requested := make(map[string]receipt, len(req.Items))
	for _, entry := range req.Items {
		itemID := strings.TrimSpace(entry.ItemID)
		r := requested[itemID]
		if entry.ReceivedQty > 0 {
			r.qty += entry.ReceivedQty
		}
		if entry.ExpirationDate != nil {
			r.expirationDate = entry.ExpirationDate
		}
		requested[itemID] = r
	}

	if s.strictReceive {
		if err := checkStrictReceipt(po.Items, req.Items); err != nil {
			return domain.PurchaseOrderReceiveResponse{}, err
		}
	}

	var (
		booked   []string
		applyErr error
	)
	for i := range po.Items {
		line := &po.Items[i]
		r, ok := requested[line.ItemID]
		if !ok {
			continue
		}
		before := line.ReceivedQty
		accepted := line.Accept(r.qty)
		if accepted == 0 {
			continue
		}

		_, err := s.ledger.ApplyStockEvent(ctx, line.ItemID, stock.Change{
			Type:           domain.StockEventRestock,
			Quantity:       accepted,
			Note:           receiptNote(po.PONumber, r.expirationDate),
			ExpirationDate: r.expirationDate,
		})
		if err != nil {
			// Items already restocked stay restocked; record them on the
			// order so it agrees with inventory.
			line.ReceivedQty = before
			applyErr = fmt.Errorf("restock %s for PO #%d: %w", line.ItemID, po.PONumber, err)
			break
		}
		booked = append(booked, fmt.Sprintf("%s +%d", line.ItemName, accepted))
	}

	if len(booked) == 0 {
		if applyErr != nil {
			return domain.PurchaseOrderReceiveResponse{}, applyErr
		}
		return domain.PurchaseOrderReceiveResponse{Status: po.Status, PurchaseOrder: *po}, nil
	}

	next, err := po.Status.Next(domain.PurchaseOrderReceive, po.Items)
	if err != nil {
		return domain.PurchaseOrderReceiveResponse{}, err
	}
	po.Status = next
	po.UpdatedAt = s.now()

	saved, err := s.repo.SavePurchaseOrder(ctx, *po)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"po_number": po.PONumber,
			"booked":    booked,
		}).Error("inventory restocked but purchase order save failed")
		return domain.PurchaseOrderReceiveResponse{}, fmt.Errorf("save PO #%d: %w", po.PONumber, err)
	}
	s.invalidate(ctx, scopePurchaseOrders)
	s.invalidate(ctx, scopeInventory)

	summary := fmt.Sprintf("PO #%d received: %s (%s)", saved.PONumber, strings.Join(booked, ", "), saved.Status)
	s.logAudit(ctx, "purchase_order_receive", "purchase_orders", summary)
	s.notify(ctx, summary, domain.SeverityInfo, domain.Audience{Roles: domain.ApproverRoles})

	if applyErr != nil {
		return domain.PurchaseOrderReceiveResponse{}, applyErr
	}
	return domain.PurchaseOrderReceiveResponse{Status: saved.Status, PurchaseOrder: *saved}, nil
}

func receiptNote(poNumber int64, expirationDate *time.Time) string {
	note := "PO #" + strconv.FormatInt(poNumber, 10)
	if expirationDate != nil {
		note += ", expires " + expirationDate.UTC().Format(time.DateOnly)
	}
	return note
}

// CancelPurchaseOrder moves po to Cancelled from any other status. Stock that
// was already received stays in inventory.
func (s *Service) CancelPurchaseOrder(ctx context.Context, id string, req domain.PurchaseOrderCancelRequest) (domain.PurchaseOrder, error) {
	req.Note = strings.TrimSpace(req.Note)
	if err := validateRequest(req); err != nil {
		return domain.PurchaseOrder{}, err
	}
	id = strings.TrimSpace(id)

	unlock, err := s.locker.Lock(ctx, purchaseOrderLockKey(id))
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	defer unlock()

	po, err := s.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	next, err := po.Status.Next(domain.PurchaseOrderCancel, po.Items)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	previous := po.Status
	po.Status = next
	po.CancellationNote = req.Note
	po.UpdatedAt = s.now()

	saved, err := s.repo.SavePurchaseOrder(ctx, *po)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	s.invalidate(ctx, scopePurchaseOrders)

	summary := fmt.Sprintf("PO #%d cancelled (was %s)", saved.PONumber, previous)
	if saved.CancellationNote != "" {
		summary += ": " + saved.CancellationNote
	}
	s.logAudit(ctx, "purchase_order_cancel", "purchase_orders", summary)
	s.notify(ctx, summary, domain.SeverityWarning, domain.Audience{Roles: domain.ApproverRoles})
	return *saved, nil
}

func (s *Service) ListPurchaseOrders(ctx context.Context, query domain.ListQuery) (domain.Page[domain.PurchaseOrder], error) {
	if query.Sort == "" {
		query.Sort = "createdAt"
		query.Desc = true
	}
	return listPage(ctx, s, scopePurchaseOrders, query, s.repo.ListPurchaseOrders, purchaseOrderProjections)
}

func purchaseOrderProjections(po domain.PurchaseOrder) []string {
	names := make([]string, 0, len(po.Items))
	for _, line := range po.Items {
		names = append(names, line.ItemName)
	}
	return []string{
		po.ID,
		strconv.FormatInt(po.PONumber, 10),
		string(po.Status),
		po.TotalAmount.String(),
		po.SupplierName,
		strings.Join(names, " "),
	}
}
