package store

import (
	"context"
	"errors"

	"stockroom/backend/internal/domain"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicate       = errors.New("already exists")
	ErrVersionConflict = errors.New("concurrent modification")
)

// Filter is the find-with-filter contract shared by every list query.
// SortBy must be one of the fields the store accepts for that collection;
// unknown fields fall back to the collection's default order.
type Filter struct {
	Status string
	SortBy string
	Desc   bool
	Skip   int
	Limit  int
}

type InventoryStore interface {
	CreateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error)
	GetInventoryItem(ctx context.Context, itemID string) (*domain.InventoryItem, error)
	FindInventoryItemByName(ctx context.Context, name string) (*domain.InventoryItem, error)
	// SaveInventoryItem persists the item if its Version still matches the
	// stored one and returns the saved copy with Version incremented.
	SaveInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error)
	ListInventoryItems(ctx context.Context, filter Filter) ([]domain.InventoryItem, int, error)
}

type PurchaseOrderStore interface {
	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error)
	SavePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, filter Filter) ([]domain.PurchaseOrder, int, error)
	MaxPONumber(ctx context.Context) (int64, error)
}

type AcquisitionStore interface {
	CreateAcquisition(ctx context.Context, acq domain.Acquisition) (*domain.Acquisition, error)
	GetAcquisition(ctx context.Context, acquisitionID string) (*domain.Acquisition, error)
	SaveAcquisition(ctx context.Context, acq domain.Acquisition) (*domain.Acquisition, error)
	ListAcquisitions(ctx context.Context, filter Filter) ([]domain.Acquisition, int, error)
}

type SupplierStore interface {
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
}

type ActivityStore interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)
	CreateNotification(ctx context.Context, n domain.Notification) error
	// ListNotifications returns the newest notifications addressed to actor.
	ListNotifications(ctx context.Context, actor domain.Actor, limit int) ([]domain.Notification, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Repository interface {
	InventoryStore
	PurchaseOrderStore
	AcquisitionStore
	SupplierStore
	ActivityStore
	UserStore
}

// Window clamps a filter's skip/limit against n results and returns the
// slice bounds.
func (f Filter) Window(n int) (int, int) {
	start := f.Skip
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := n
	if f.Limit > 0 && start+f.Limit < n {
		end = start + f.Limit
	}
	return start, end
}
