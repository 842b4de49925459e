package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockroom/backend/internal/cache"
	"stockroom/backend/internal/domain"
	"stockroom/backend/internal/sequence"
	"stockroom/backend/internal/stock"
	"stockroom/backend/internal/store"
	"stockroom/backend/internal/store/memory"
)

type recorder struct {
	mu      sync.Mutex
	audits  []string
	notices []domain.Notification
}

func (r *recorder) Log(_ context.Context, action string, _ string, _ string, _ domain.Actor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audits = append(r.audits, action)
}

func (r *recorder) Notify(_ context.Context, message string, severity domain.Severity, audience domain.Audience) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, domain.Notification{Message: message, Severity: severity, Audience: audience})
}

func (r *recorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.audits...)
}

type fixture struct {
	svc      *Service
	repo     store.Repository
	recorder *recorder
	ctx      context.Context
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newFixture(t *testing.T, configure ...func(*Options)) fixture {
	t.Helper()
	return newFixtureOn(t, memory.New(), configure...)
}

func newFixtureOn(t *testing.T, repo store.Repository, configure ...func(*Options)) fixture {
	t.Helper()
	rec := &recorder{}
	logger := quietLogger()
	ledger := stock.NewLedger(repo, stock.Options{Notifier: rec, Logger: logger})
	opts := Options{Audit: rec, Notifier: rec, Logger: logger}
	for _, fn := range configure {
		fn(&opts)
	}
	svc := New(repo, ledger, sequence.NewCounter(repo), opts)
	ctx := WithActor(context.Background(), domain.Actor{ID: "usr-manager", Username: "manager", Role: domain.RoleManager})
	return fixture{svc: svc, repo: repo, recorder: rec, ctx: ctx}
}

func (f fixture) item(t *testing.T, name string, stockQty int) domain.InventoryItem {
	t.Helper()
	item, err := f.svc.CreateInventoryItem(f.ctx, domain.InventoryItemCreateRequest{
		Name:          name,
		Category:      "Dry Goods",
		UnitPrice:     decimal.NewFromInt(3),
		PurchasePrice: decimal.NewFromInt(2),
		InitialStock:  stockQty,
	})
	require.NoError(t, err)
	return item
}

func (f fixture) order(t *testing.T, lines ...domain.PurchaseOrderLineRequest) domain.PurchaseOrder {
	t.Helper()
	po, err := f.svc.CreatePurchaseOrder(f.ctx, domain.PurchaseOrderCreateRequest{Items: lines})
	require.NoError(t, err)
	return po
}

func line(itemID string, qty int, price int64) domain.PurchaseOrderLineRequest {
	return domain.PurchaseOrderLineRequest{ItemID: itemID, OrderedQty: qty, PurchasePrice: decimal.NewFromInt(price)}
}

func receive(entries ...domain.ReceiveLineRequest) domain.PurchaseOrderReceiveRequest {
	return domain.PurchaseOrderReceiveRequest{Items: entries}
}

func got(itemID string, qty int) domain.ReceiveLineRequest {
	return domain.ReceiveLineRequest{ItemID: itemID, ReceivedQty: qty}
}

func (f fixture) stockOf(t *testing.T, itemID string) domain.InventoryItem {
	t.Helper()
	item, err := f.svc.GetInventoryItem(f.ctx, itemID)
	require.NoError(t, err)
	require.NoError(t, stock.Verify(item))
	return item
}

func TestPurchaseOrderPartialThenCompleteDelivery(t *testing.T) {
	f := newFixture(t)
	a := f.item(t, "Bread Flour", 0)
	b := f.item(t, "Caster Sugar", 3)

	po := f.order(t, line(a.ItemID, 10, 2), line(b.ItemID, 5, 4))
	assert.Equal(t, domain.POStatusPending, po.Status)
	assert.True(t, decimal.NewFromInt(40).Equal(po.TotalAmount))

	resp, err := f.svc.ReceivePurchaseOrder(f.ctx, po.ID, receive(got(a.ItemID, 4)))
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusPartiallyDelivered, resp.Status)
	assert.Equal(t, 4, resp.PurchaseOrder.Items[0].ReceivedQty)
	assert.Equal(t, 0, resp.PurchaseOrder.Items[1].ReceivedQty)

	flour := f.stockOf(t, a.ItemID)
	assert.Equal(t, 4, flour.CurrentStock)
	require.Len(t, flour.StockHistory, 1)
	assert.Equal(t, domain.StockEventRestock, flour.StockHistory[0].Type)
	assert.Equal(t, 4, flour.StockHistory[0].Quantity)
	assert.Contains(t, flour.StockHistory[0].Note, "PO #1")

	resp, err = f.svc.ReceivePurchaseOrder(f.ctx, po.ID, receive(got(a.ItemID, 6), got(b.ItemID, 5)))
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusCompleted, resp.Status)
	assert.Equal(t, 10, resp.PurchaseOrder.Items[0].ReceivedQty)
	assert.Equal(t, 5, resp.PurchaseOrder.Items[1].ReceivedQty)

	assert.Equal(t, 10, f.stockOf(t, a.ItemID).CurrentStock)
	assert.Equal(t, 8, f.stockOf(t, b.ItemID).CurrentStock)
}

func TestReceiveCapsAtOrderedQuantity(t *testing.T) {
	f := newFixture(t)
	a := f.item(t, "Rye", 0)
	po := f.order(t, line(a.ItemID, 10, 1))

	resp, err := f.svc.ReceivePurchaseOrder(f.ctx, po.ID, receive(got(a.ItemID, 25)))
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusCompleted, resp.Status)
	assert.Equal(t, 10, resp.PurchaseOrder.Items[0].ReceivedQty)

	rye := f.stockOf(t, a.ItemID)
	assert.Equal(t, 10, rye.CurrentStock)

	resp, err = f.svc.ReceivePurchaseOrder(f.ctx, po.ID, receive(got(a.ItemID, 3)))
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusCompleted, resp.Status)
	assert.Equal(t, 10, f.stockOf(t, a.ItemID).CurrentStock)
}

func TestReceiveIgnoresUnknownAndNonPositiveEntries(t *testing.T) {
	f := newFixture(t)
	a := f.item(t, "Oats", 2)
	po := f.order(t, line(a.ItemID, 5, 1))

	resp, err := f.svc.ReceivePurchaseOrder(f.ctx, po.ID, receive(got("ITM-NOPE", 4), got(a.ItemID, 0), got(a.ItemID, -3)))
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusPending, resp.Status)
	assert.Equal(t, 0, resp.PurchaseOrder.Items[0].ReceivedQty)
	assert.Equal(t, 2, f.stockOf(t, a.ItemID).CurrentStock)
}

func TestReceiveUnknownPurchaseOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ReceivePurchaseOrder(f.ctx, "po-missing", receive())
	assert.ErrorContains(t, err, "not found")
}

func TestReceiveRecordsExpiration(t *testing.T) {
	f := newFixture(t)
	a := f.item(t, "Milk", 0)
	po := f.order(t, line(a.ItemID, 4, 1))
	expires := time.Date(2031, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err := f.svc.ReceivePurchaseOrder(f.ctx, po.ID, receive(domain.ReceiveLineRequest{ItemID: a.ItemID, ReceivedQty: 4, ExpirationDate: &expires}))
	require.NoError(t, err)

	milk := f.stockOf(t, a.ItemID)
	require.NotNil(t, milk.ExpirationDate)
	assert.True(t, expires.Equal(*milk.ExpirationDate))
	assert.Contains(t, milk.StockHistory[0].Note, "2031-05-01")
}

func TestStrictReceiveRejectsExcessWithoutMutation(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.StrictReceive = true })
	a := f.item(t, "Semolina", 0)
	b := f.item(t, "Malt", 0)
	po := f.order(t, line(a.ItemID, 5, 1), line(b.ItemID, 5, 1))

	_, err := f.svc.ReceivePurchaseOrder(f.ctx, po.ID, receive(got(a.ItemID, 2), got(b.ItemID, 6)))
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "lte_remaining", verr.Fields["items[1].receivedQty"])

	assert.Equal(t, 0, f.stockOf(t, a.ItemID).CurrentStock)
	stored, err := f.svc.GetPurchaseOrder(f.ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusPending, stored.Status)
	assert.Equal(t, 0, stored.Items[0].ReceivedQty)
}

func TestCancelPurchaseOrderTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	a := f.item(t, "Cocoa", 0)
	po := f.order(t, line(a.ItemID, 3, 5))

	cancelled, err := f.svc.CancelPurchaseOrder(f.ctx, po.ID, domain.PurchaseOrderCancelRequest{Note: "supplier closed"})
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusCancelled, cancelled.Status)
	assert.Equal(t, "supplier closed", cancelled.CancellationNote)

	_, err = f.svc.CancelPurchaseOrder(f.ctx, po.ID, domain.PurchaseOrderCancelRequest{Note: "again"})
	require.ErrorIs(t, err, domain.ErrStateConflict)

	stored, err := f.svc.GetPurchaseOrder(f.ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, cancelled, stored)
}

func TestReceiveOnCancelledPurchaseOrderConflicts(t *testing.T) {
	f := newFixture(t)
	a := f.item(t, "Honey", 1)
	po := f.order(t, line(a.ItemID, 3, 5))
	_, err := f.svc.CancelPurchaseOrder(f.ctx, po.ID, domain.PurchaseOrderCancelRequest{})
	require.NoError(t, err)

	_, err = f.svc.ReceivePurchaseOrder(f.ctx, po.ID, receive(got(a.ItemID, 3)))
	require.ErrorIs(t, err, domain.ErrStateConflict)
	assert.Equal(t, 1, f.stockOf(t, a.ItemID).CurrentStock)
}

func TestCancelPartiallyDeliveredKeepsReceivedStock(t *testing.T) {
	f := newFixture(t)
	a := f.item(t, "Raisins", 0)
	po := f.order(t, line(a.ItemID, 8, 1))
	_, err := f.svc.ReceivePurchaseOrder(f.ctx, po.ID, receive(got(a.ItemID, 3)))
	require.NoError(t, err)

	cancelled, err := f.svc.CancelPurchaseOrder(f.ctx, po.ID, domain.PurchaseOrderCancelRequest{})
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusCancelled, cancelled.Status)
	assert.Equal(t, 3, cancelled.Items[0].ReceivedQty)
	assert.Equal(t, 3, f.stockOf(t, a.ItemID).CurrentStock)
}

func TestCreatePurchaseOrderValidation(t *testing.T) {
	f := newFixture(t)
	a := f.item(t, "Salt", 0)
	unknownSupplier := "sup-missing"

	cases := []struct {
		name  string
		req   domain.PurchaseOrderCreateRequest
		field string
	}{
		{"no items", domain.PurchaseOrderCreateRequest{}, "items"},
		{"zero quantity", domain.PurchaseOrderCreateRequest{Items: []domain.PurchaseOrderLineRequest{line(a.ItemID, 0, 1)}}, "items[0].orderedQty"},
		{"negative price", domain.PurchaseOrderCreateRequest{Items: []domain.PurchaseOrderLineRequest{line(a.ItemID, 1, -1)}}, "items[0].purchasePrice"},
		{"unknown item", domain.PurchaseOrderCreateRequest{Items: []domain.PurchaseOrderLineRequest{line("ITM-NOPE", 1, 1)}}, "items[0].item"},
		{"repeated item", domain.PurchaseOrderCreateRequest{Items: []domain.PurchaseOrderLineRequest{line(a.ItemID, 1, 1), line(a.ItemID, 2, 1)}}, "items[1].item"},
		{"unknown supplier", domain.PurchaseOrderCreateRequest{SupplierID: &unknownSupplier, Items: []domain.PurchaseOrderLineRequest{line(a.ItemID, 1, 1)}}, "supplier"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreatePurchaseOrder(f.ctx, tc.req)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Contains(t, verr.Fields, tc.field)
		})
	}

	highest, err := f.repo.MaxPONumber(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, highest)
}

func TestCreatePurchaseOrderWithSupplier(t *testing.T) {
	f := newFixture(t)
	a := f.item(t, "Tea", 0)
	supplier, err := f.svc.CreateSupplier(f.ctx, domain.SupplierCreateRequest{Name: "Leafworks"})
	require.NoError(t, err)

	po, err := f.svc.CreatePurchaseOrder(f.ctx, domain.PurchaseOrderCreateRequest{
		SupplierID: &supplier.ID,
		Items:      []domain.PurchaseOrderLineRequest{line(a.ItemID, 2, 3)},
	})
	require.NoError(t, err)
	require.NotNil(t, po.SupplierID)
	assert.Equal(t, supplier.ID, *po.SupplierID)
	assert.Equal(t, "Leafworks", po.SupplierName)
	assert.Equal(t, "manager", po.CreatedBy)
	assert.Equal(t, "Tea", po.Items[0].ItemName)
}

func TestConcurrentPurchaseOrderCreationAssignsUniqueNumbers(t *testing.T) {
	f := newFixture(t)
	a := f.item(t, "Yeast", 0)

	const n = 32
	numbers := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			po, err := f.svc.CreatePurchaseOrder(f.ctx, domain.PurchaseOrderCreateRequest{
				Items: []domain.PurchaseOrderLineRequest{line(a.ItemID, 1, 1)},
			})
			if assert.NoError(t, err) {
				numbers <- po.PONumber
			}
		}()
	}
	wg.Wait()
	close(numbers)

	seen := map[int64]bool{}
	for number := range numbers {
		assert.False(t, seen[number], "duplicate po number %d", number)
		seen[number] = true
	}
	assert.Len(t, seen, n)
}

type scriptedAllocator struct {
	mu      sync.Mutex
	numbers []int64
}

func (s *scriptedAllocator) Next(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.numbers[0]
	s.numbers = s.numbers[1:]
	return next, nil
}

func TestCreatePurchaseOrderRetriesTakenNumber(t *testing.T) {
	repo := memory.New()
	logger := quietLogger()
	ledger := stock.NewLedger(repo, stock.Options{Logger: logger})
	allocator := &scriptedAllocator{numbers: []int64{1, 1, 2}}
	svc := New(repo, ledger, allocator, Options{Logger: logger})
	ctx := context.Background()

	item, err := svc.CreateInventoryItem(ctx, domain.InventoryItemCreateRequest{Name: "Barley"})
	require.NoError(t, err)
	req := domain.PurchaseOrderCreateRequest{Items: []domain.PurchaseOrderLineRequest{line(item.ItemID, 1, 1)}}

	first, err := svc.CreatePurchaseOrder(ctx, req)
	require.NoError(t, err)
	second, err := svc.CreatePurchaseOrder(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.PONumber)
	assert.Equal(t, int64(2), second.PONumber)
	assert.Equal(t, "system", second.CreatedBy)
}

func TestConcurrentReceivesNeverExceedOrdered(t *testing.T) {
	f := newFixture(t)
	a := f.item(t, "Spelt", 0)
	po := f.order(t, line(a.ItemID, 10, 1))

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ReceivePurchaseOrder(f.ctx, po.ID, receive(got(a.ItemID, 1)))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := f.svc.GetPurchaseOrder(f.ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stored.Items[0].ReceivedQty)
	assert.Equal(t, domain.POStatusCompleted, stored.Status)

	spelt := f.stockOf(t, a.ItemID)
	assert.Equal(t, 10, spelt.CurrentStock)
	assert.Len(t, spelt.StockHistory, 10)
}

func TestPurchaseOrderReceiveEmitsAuditAndNotification(t *testing.T) {
	f := newFixture(t)
	a := f.item(t, "Walnuts", 0)
	po := f.order(t, line(a.ItemID, 2, 1))

	_, err := f.svc.ReceivePurchaseOrder(f.ctx, po.ID, receive(got(a.ItemID, 2)))
	require.NoError(t, err)

	assert.Contains(t, f.recorder.actions(), "purchase_order_receive")
	var found bool
	for _, n := range f.recorder.notices {
		if n.Message == "PO #1 received: Walnuts +2 (Completed)" {
			found = true
			assert.Equal(t, domain.ApproverRoles, n.Audience.Roles)
		}
	}
	assert.True(t, found, "expected receipt notification, got %+v", f.recorder.notices)
}

func TestRecordStockEventSaleRefundAdjustment(t *testing.T) {
	f := newFixture(t)
	a := f.item(t, "Croissant", 5)

	item, err := f.svc.RecordStockEvent(f.ctx, a.ItemID, domain.StockEventRequest{Type: domain.StockEventSale, Quantity: 8, Note: "counter"})
	require.NoError(t, err)
	assert.Equal(t, 0, item.CurrentStock)
	assert.Equal(t, -8, item.StockHistory[1].Quantity)

	item, err = f.svc.RecordStockEvent(f.ctx, a.ItemID, domain.StockEventRequest{Type: domain.StockEventRefund, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, item.CurrentStock)

	item, err = f.svc.RecordStockEvent(f.ctx, a.ItemID, domain.StockEventRequest{Type: domain.StockEventAdjustment, Quantity: -1})
	require.NoError(t, err)
	assert.Equal(t, 1, item.CurrentStock)
	assert.NoError(t, stock.Verify(item))

	_, err = f.svc.RecordStockEvent(f.ctx, a.ItemID, domain.StockEventRequest{Type: domain.StockEventRestock, Quantity: 5})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.svc.RecordStockEvent(f.ctx, a.ItemID, domain.StockEventRequest{Type: domain.StockEventSale, Quantity: -2})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRecordStockEventStrictOverdraft(t *testing.T) {
	repo := memory.New()
	logger := quietLogger()
	ledger := stock.NewLedger(repo, stock.Options{Logger: logger, Strict: true})
	svc := New(repo, ledger, nil, Options{Logger: logger})
	ctx := context.Background()

	item, err := svc.CreateInventoryItem(ctx, domain.InventoryItemCreateRequest{Name: "Bagel", InitialStock: 2})
	require.NoError(t, err)

	_, err = svc.RecordStockEvent(ctx, item.ItemID, domain.StockEventRequest{Type: domain.StockEventSale, Quantity: 3})
	assert.ErrorIs(t, err, stock.ErrInsufficientStock)
}

func acquisitionRequest(id string, lines ...domain.AcquisitionLine) domain.AcquisitionCreateRequest {
	return domain.AcquisitionCreateRequest{
		AcquisitionID: id,
		Supplier:      "Millhouse Grains",
		Items:         lines,
		Subtotal:      decimal.NewFromInt(500),
		TotalAmount:   decimal.NewFromInt(500),
		PaymentMethod: "cash",
	}
}

func TestAcquisitionConfirmCreatesMissingItemOnce(t *testing.T) {
	f := newFixture(t)

	acq, err := f.svc.CreateAcquisition(f.ctx, acquisitionRequest("ACQ-100",
		domain.AcquisitionLine{Name: "Flour", Quantity: 50, UnitCost: decimal.NewFromInt(10)}))
	require.NoError(t, err)
	assert.Equal(t, domain.AcquisitionPending, acq.Status)

	confirmed, err := f.svc.ConfirmAcquisition(f.ctx, "ACQ-100")
	require.NoError(t, err)
	assert.Equal(t, domain.AcquisitionReceived, confirmed.Status)
	assert.Equal(t, "manager", confirmed.ResolvedBy)
	require.NotNil(t, confirmed.ResolvedAt)

	flour, err := f.repo.FindInventoryItemByName(f.ctx, "Flour")
	require.NoError(t, err)
	assert.Equal(t, 50, flour.CurrentStock)
	assert.True(t, decimal.NewFromInt(10).Equal(flour.PurchasePrice))
	assert.Equal(t, "Millhouse Grains", flour.Supplier)
	assert.Equal(t, "Uncategorized", flour.Category)
	assert.Equal(t, 20, flour.RestockThreshold)
	assert.NoError(t, stock.Verify(*flour))

	_, err = f.svc.ConfirmAcquisition(f.ctx, "ACQ-100")
	require.ErrorIs(t, err, domain.ErrStateConflict)

	flour, err = f.repo.FindInventoryItemByName(f.ctx, "Flour")
	require.NoError(t, err)
	assert.Equal(t, 50, flour.CurrentStock)
	assert.Len(t, flour.StockHistory, 1)
}

func TestAcquisitionConfirmRestocksExistingItemByExactName(t *testing.T) {
	f := newFixture(t)
	sugar := f.item(t, "Sugar", 10)

	_, err := f.svc.CreateAcquisition(f.ctx, acquisitionRequest("ACQ-200",
		domain.AcquisitionLine{Name: "Sugar", Quantity: 5, UnitCost: decimal.NewFromInt(2)},
		domain.AcquisitionLine{Name: "sugar", Quantity: 7, UnitCost: decimal.NewFromInt(2), Category: "Dry Goods"}))
	require.NoError(t, err)

	_, err = f.svc.ConfirmAcquisition(f.ctx, "ACQ-200")
	require.NoError(t, err)

	assert.Equal(t, 15, f.stockOf(t, sugar.ItemID).CurrentStock)

	lower, err := f.repo.FindInventoryItemByName(f.ctx, "sugar")
	require.NoError(t, err)
	assert.NotEqual(t, sugar.ItemID, lower.ItemID)
	assert.Equal(t, 7, lower.CurrentStock)
	assert.Equal(t, "Dry Goods", lower.Category)
}

func TestAcquisitionCreateForcesPendingAndRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	req := acquisitionRequest("ACQ-300", domain.AcquisitionLine{Name: "Eggs", Quantity: 12})
	req.Status = domain.AcquisitionReceived

	acq, err := f.svc.CreateAcquisition(f.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.AcquisitionPending, acq.Status)
	assert.Equal(t, "usr-manager", acq.CreatedBy)

	_, err = f.svc.CreateAcquisition(f.ctx, req)
	assert.ErrorContains(t, err, "already exists")

	var approvers, requester bool
	for _, n := range f.recorder.notices {
		if n.Audience.UserID == "usr-manager" {
			requester = true
		}
		if len(n.Audience.Roles) > 0 {
			approvers = true
		}
	}
	assert.True(t, approvers)
	assert.True(t, requester)
}

func TestAcquisitionCreateValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateAcquisition(f.ctx, acquisitionRequest("ACQ-400"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.CreateAcquisition(f.ctx, acquisitionRequest("", domain.AcquisitionLine{Name: "Eggs", Quantity: 1}))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.CreateAcquisition(f.ctx, acquisitionRequest("ACQ-401", domain.AcquisitionLine{Name: "Eggs", Quantity: 0}))
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "gte", verr.Fields["items[0].quantity"])
}

func TestAcquisitionCancelRules(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateAcquisition(f.ctx, acquisitionRequest("ACQ-500", domain.AcquisitionLine{Name: "Butter", Quantity: 3}))
	require.NoError(t, err)
	_, err = f.svc.CreateAcquisition(f.ctx, acquisitionRequest("ACQ-501", domain.AcquisitionLine{Name: "Cream", Quantity: 3}))
	require.NoError(t, err)

	cancelled, err := f.svc.CancelAcquisition(f.ctx, "ACQ-500")
	require.NoError(t, err)
	assert.Equal(t, domain.AcquisitionCancelled, cancelled.Status)

	_, err = f.svc.CancelAcquisition(f.ctx, "ACQ-500")
	assert.ErrorIs(t, err, domain.ErrStateConflict)
	_, err = f.svc.ConfirmAcquisition(f.ctx, "ACQ-500")
	assert.ErrorIs(t, err, domain.ErrStateConflict)

	_, err = f.repo.FindInventoryItemByName(f.ctx, "Butter")
	assert.Error(t, err)

	_, err = f.svc.ConfirmAcquisition(f.ctx, "ACQ-501")
	require.NoError(t, err)
	_, err = f.svc.CancelAcquisition(f.ctx, "ACQ-501")
	assert.ErrorIs(t, err, domain.ErrStateConflict)

	_, err = f.svc.CancelAcquisition(f.ctx, "ACQ-missing")
	assert.ErrorContains(t, err, "not found")
}

func TestConcurrentAcquisitionConfirmsCountOnce(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateAcquisition(f.ctx, acquisitionRequest("ACQ-600", domain.AcquisitionLine{Name: "Pecans", Quantity: 9}))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.ConfirmAcquisition(f.ctx, "ACQ-600"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	pecans, err := f.repo.FindInventoryItemByName(f.ctx, "Pecans")
	require.NoError(t, err)
	assert.Equal(t, 9, pecans.CurrentStock)
}

func TestListPurchaseOrdersPaginatesFiltersAndSearches(t *testing.T) {
	f := newFixture(t)
	flour := f.item(t, "Flour", 0)
	sugar := f.item(t, "Sugar", 0)

	for i := 0; i < 5; i++ {
		f.order(t, line(flour.ItemID, 1, 1))
	}
	sugarPO := f.order(t, line(sugar.ItemID, 4, 1))
	_, err := f.svc.ReceivePurchaseOrder(f.ctx, sugarPO.ID, receive(got(sugar.ItemID, 1)))
	require.NoError(t, err)

	page, err := f.svc.ListPurchaseOrders(f.ctx, domain.ListQuery{Page: 2, Limit: 4, Sort: "poNumber"})
	require.NoError(t, err)
	assert.Equal(t, 6, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(5), page.Items[0].PONumber)

	page, err = f.svc.ListPurchaseOrders(f.ctx, domain.ListQuery{Status: string(domain.POStatusPartiallyDelivered)})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, sugarPO.ID, page.Items[0].ID)

	page, err = f.svc.ListPurchaseOrders(f.ctx, domain.ListQuery{Search: "sugr"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, sugarPO.ID, page.Items[0].ID)

	page, err = f.svc.ListPurchaseOrders(f.ctx, domain.ListQuery{Search: "partialy delivered"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = f.svc.ListPurchaseOrders(f.ctx, domain.ListQuery{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, 100, page.Limit)
	assert.Equal(t, int64(6), page.Items[0].PONumber)
}

func TestListAcquisitionsSearchesSupplierAndItems(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateAcquisition(f.ctx, acquisitionRequest("ACQ-1", domain.AcquisitionLine{Name: "Almonds", Quantity: 1}))
	require.NoError(t, err)
	other := acquisitionRequest("ACQ-2", domain.AcquisitionLine{Name: "Cheddar", Quantity: 1})
	other.Supplier = "Dairy Lane"
	_, err = f.svc.CreateAcquisition(f.ctx, other)
	require.NoError(t, err)

	page, err := f.svc.ListAcquisitions(f.ctx, domain.ListQuery{Search: "dairy"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "ACQ-2", page.Items[0].AcquisitionID)

	page, err = f.svc.ListAcquisitions(f.ctx, domain.ListQuery{Search: "almond"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "ACQ-1", page.Items[0].AcquisitionID)
}

func TestListingCacheIsInvalidatedByMutations(t *testing.T) {
	listing := cache.NewMemoryListingCache()
	f := newFixture(t, func(o *Options) {
		o.Cache = listing
		o.ListingCacheTTL = time.Minute
	})
	a := f.item(t, "Poppy Seeds", 0)
	po := f.order(t, line(a.ItemID, 2, 1))

	page, err := f.svc.ListPurchaseOrders(f.ctx, domain.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusPending, page.Items[0].Status)

	_, err = f.svc.CancelPurchaseOrder(f.ctx, po.ID, domain.PurchaseOrderCancelRequest{})
	require.NoError(t, err)

	page, err = f.svc.ListPurchaseOrders(f.ctx, domain.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusCancelled, page.Items[0].Status)
}

func TestListInventoryDefaultsToNameOrder(t *testing.T) {
	f := newFixture(t)
	f.item(t, "Walnuts", 30)
	f.item(t, "Almonds", 1)

	page, err := f.svc.ListInventory(f.ctx, domain.ListQuery{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Almonds", page.Items[0].Name)
	assert.Equal(t, domain.ItemStatusCritical, page.Items[0].Status)

	page, err = f.svc.ListInventory(f.ctx, domain.ListQuery{Search: "walnut"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestNotificationsAreScopedToCaller(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	require.NoError(t, repo.CreateNotification(ctx, domain.Notification{Message: "approvers", Audience: domain.Audience{Roles: domain.ApproverRoles}}))
	require.NoError(t, repo.CreateNotification(ctx, domain.Notification{Message: "mine", Audience: domain.Audience{UserID: "usr-staff"}}))
	svc := New(repo, stock.NewLedger(repo, stock.Options{Logger: quietLogger()}), nil, Options{Logger: quietLogger()})

	staffCtx := WithActor(ctx, domain.Actor{ID: "usr-staff", Username: "staff", Role: domain.RoleStaff})
	notes, err := svc.ListNotifications(staffCtx, 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "mine", notes[0].Message)
}
