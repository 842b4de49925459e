package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"stockroom/backend/internal/domain"
	"stockroom/backend/internal/events"
	"stockroom/backend/internal/store"
)

var (
	ErrInvalidQuantity   = fmt.Errorf("%w: invalid stock quantity", domain.ErrValidation)
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Change describes one stock-affecting event. Quantity is signed: Restock and
// Refund must be positive, Sale negative, Adjustment either way.
type Change struct {
	Type           domain.StockEventType
	Quantity       int
	Note           string
	ExpirationDate *time.Time
}

// Apply books change on item in memory: it appends the history entry, moves
// CurrentStock and re-derives Status. Without strict, a result below zero is
// clamped to zero and recorded as such; with strict it is rejected with
// ErrInsufficientStock and item is left untouched.
func Apply(item *domain.InventoryItem, change Change, now time.Time, strict bool) (domain.StockEvent, error) {
	if err := checkSign(change); err != nil {
		return domain.StockEvent{}, err
	}

	previous := item.CurrentStock
	next := previous + change.Quantity
	if next < 0 {
		if strict {
			return domain.StockEvent{}, fmt.Errorf("%w: item %s has %d, change %d", ErrInsufficientStock, item.ItemID, previous, change.Quantity)
		}
		next = 0
	}

	if change.ExpirationDate != nil {
		exp := change.ExpirationDate.UTC()
		item.ExpirationDate = &exp
	}

	event := domain.StockEvent{
		Type:          change.Type,
		Quantity:      change.Quantity,
		PreviousStock: previous,
		NewStock:      next,
		Timestamp:     now,
		Note:          change.Note,
	}
	item.StockHistory = append(item.StockHistory, event)
	item.CurrentStock = next
	item.Status = DeriveStatus(next, item.RestockThreshold, item.ExpirationDate, now)
	item.UpdatedAt = now
	return event, nil
}

func checkSign(change Change) error {
	if change.Quantity == 0 {
		return fmt.Errorf("%w: quantity must be non-zero", ErrInvalidQuantity)
	}
	switch change.Type {
	case domain.StockEventRestock, domain.StockEventRefund:
		if change.Quantity < 0 {
			return fmt.Errorf("%w: %s quantity must be positive", ErrInvalidQuantity, change.Type)
		}
	case domain.StockEventSale:
		if change.Quantity > 0 {
			return fmt.Errorf("%w: sale quantity must be negative", ErrInvalidQuantity)
		}
	case domain.StockEventAdjustment:
	default:
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidQuantity, change.Type)
	}
	return nil
}

type Options struct {
	Locker   Locker
	Notifier events.Notifier
	Logger   *logrus.Logger
	// Strict rejects consuming events that would drive stock below zero.
	Strict bool
	Now    func() time.Time
}

// Ledger is the only writer of an item's CurrentStock and StockHistory.
// Each write loads the item under a per-item lock, applies the change and
// saves it with an optimistic version check.
type Ledger struct {
	items    store.InventoryStore
	locker   Locker
	notifier events.Notifier
	log      *logrus.Entry
	strict   bool
	now      func() time.Time
}

func NewLedger(items store.InventoryStore, opts Options) *Ledger {
	if opts.Locker == nil {
		opts.Locker = NewKeyedMutex()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Ledger{
		items:    items,
		locker:   opts.Locker,
		notifier: opts.Notifier,
		log:      opts.Logger.WithField("component", "stock-ledger"),
		strict:   opts.Strict,
		now:      opts.Now,
	}
}

func (l *Ledger) Locker() Locker {
	return l.locker
}

// ApplyStockEvent books change against the stored item identified by itemID.
func (l *Ledger) ApplyStockEvent(ctx context.Context, itemID string, change Change) (*domain.InventoryItem, error) {
	unlock, err := l.locker.Lock(ctx, ItemLockKey(itemID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	item, err := l.items.GetInventoryItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	before := item.Status

	event, err := Apply(item, change, l.now(), l.strict)
	if err != nil {
		return nil, err
	}

	saved, err := l.items.SaveInventoryItem(ctx, *item)
	if err != nil {
		return nil, fmt.Errorf("save item %s: %w", itemID, err)
	}

	l.log.WithFields(logrus.Fields{
		"item_id":  saved.ItemID,
		"type":     event.Type,
		"quantity": event.Quantity,
		"previous": event.PreviousStock,
		"new":      event.NewStock,
	}).Debug("stock event applied")
	l.alert(ctx, before, saved)
	return saved, nil
}

// Open creates item and books initialQty as its first Restock so the history
// replays to the stored stock from zero.
func (l *Ledger) Open(ctx context.Context, item domain.InventoryItem, initialQty int, note string) (*domain.InventoryItem, error) {
	if initialQty < 0 {
		return nil, fmt.Errorf("%w: initial stock must not be negative", ErrInvalidQuantity)
	}

	now := l.now()
	item.CurrentStock = 0
	item.StockHistory = nil
	item.Version = 0
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	item.Status = DeriveStatus(0, item.RestockThreshold, item.ExpirationDate, now)

	if initialQty > 0 {
		if _, err := Apply(&item, Change{Type: domain.StockEventRestock, Quantity: initialQty, Note: note}, now, l.strict); err != nil {
			return nil, err
		}
	}

	created, err := l.items.CreateInventoryItem(ctx, item)
	if err != nil {
		return nil, err
	}
	l.alert(ctx, "", created)
	return created, nil
}

func (l *Ledger) alert(ctx context.Context, before domain.ItemStatus, item *domain.InventoryItem) {
	if l.notifier == nil || item.Status == before || !item.Status.NeedsAttention() {
		return
	}
	severity := domain.SeverityWarning
	if item.Status == domain.ItemStatusOutOfStock || item.Status == domain.ItemStatusExpired {
		severity = domain.SeverityError
	}
	l.notifier.Notify(ctx,
		fmt.Sprintf("%s is %s (%d in stock, threshold %d)", item.Name, item.Status, item.CurrentStock, item.RestockThreshold),
		severity,
		domain.Audience{Roles: domain.ApproverRoles},
	)
}
