package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices and totals go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

type Actor struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleStaff   = "staff"
)

// ApproverRoles resolve pending acquisitions and receive stock alerts.
var ApproverRoles = []string{RoleAdmin, RoleManager}

type StockEventType string

const (
	StockEventRestock    StockEventType = "Restock"
	StockEventSale       StockEventType = "Sale"
	StockEventRefund     StockEventType = "Refund"
	StockEventAdjustment StockEventType = "Adjustment"
)

func (t StockEventType) Valid() bool {
	switch t {
	case StockEventRestock, StockEventSale, StockEventRefund, StockEventAdjustment:
		return true
	default:
		return false
	}
}

type ItemStatus string

const (
	ItemStatusWellStocked ItemStatus = "Well-stocked"
	ItemStatusLowStock    ItemStatus = "Low-stock"
	ItemStatusCritical    ItemStatus = "Critical"
	ItemStatusOutOfStock  ItemStatus = "Out of stock"
	ItemStatusExpired     ItemStatus = "Expired"
)

// NeedsAttention reports whether a status should raise a stock alert.
func (s ItemStatus) NeedsAttention() bool {
	return s != ItemStatusWellStocked && s != ""
}

// StockEvent is one immutable entry of an item's stock history.
type StockEvent struct {
	Type          StockEventType `json:"type"`
	Quantity      int            `json:"quantity"`
	PreviousStock int            `json:"previousStock"`
	NewStock      int            `json:"newStock"`
	Timestamp     time.Time      `json:"timestamp"`
	Note          string         `json:"note,omitempty"`
}

type InventoryItem struct {
	ID               string          `json:"id"`
	ItemID           string          `json:"itemId"`
	Name             string          `json:"name"`
	Category         string          `json:"category"`
	Supplier         string          `json:"supplier,omitempty"`
	UnitPrice        decimal.Decimal `json:"unitPrice"`
	PurchasePrice    decimal.Decimal `json:"purchasePrice"`
	CurrentStock     int             `json:"currentStock"`
	RestockThreshold int             `json:"restockThreshold"`
	ExpirationDate   *time.Time      `json:"expirationDate,omitempty"`
	Status           ItemStatus      `json:"status"`
	StockHistory     []StockEvent    `json:"stockHistory"`
	Version          int64           `json:"version"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

type InventoryItemCreateRequest struct {
	Name             string          `json:"name" validate:"required,max=120"`
	Category         string          `json:"category" validate:"max=60"`
	Supplier         string          `json:"supplier" validate:"max=120"`
	UnitPrice        decimal.Decimal `json:"unitPrice" validate:"gte=0"`
	PurchasePrice    decimal.Decimal `json:"purchasePrice" validate:"gte=0"`
	InitialStock     int             `json:"initialStock" validate:"gte=0"`
	RestockThreshold *int            `json:"restockThreshold,omitempty" validate:"omitempty,gte=0"`
	ExpirationDate   *time.Time      `json:"expirationDate,omitempty"`
}

type StockEventRequest struct {
	Type     StockEventType `json:"type" validate:"required,oneof=Sale Refund Adjustment"`
	Quantity int            `json:"quantity" validate:"ne=0"`
	Note     string         `json:"note" validate:"max=240"`
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type SupplierCreateRequest struct {
	Name  string `json:"name" validate:"required,max=120"`
	Phone string `json:"phone" validate:"max=40"`
}

type PurchaseOrderLine struct {
	ItemID        string          `json:"item"`
	ItemName      string          `json:"itemName"`
	OrderedQty    int             `json:"orderedQty"`
	ReceivedQty   int             `json:"receivedQty"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
}

type PurchaseOrder struct {
	ID               string              `json:"id"`
	PONumber         int64               `json:"poNumber"`
	SupplierID       *string             `json:"supplier,omitempty"`
	SupplierName     string              `json:"supplierName,omitempty"`
	Items            []PurchaseOrderLine `json:"items"`
	Status           PurchaseOrderStatus `json:"status"`
	TotalAmount      decimal.Decimal     `json:"totalAmount"`
	CancellationNote string              `json:"cancellationNote,omitempty"`
	CreatedBy        string              `json:"createdBy"`
	Version          int64               `json:"version"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

type PurchaseOrderLineRequest struct {
	ItemID        string          `json:"item" validate:"required"`
	OrderedQty    int             `json:"orderedQty" validate:"gte=1"`
	PurchasePrice decimal.Decimal `json:"purchasePrice" validate:"gte=0"`
}

type PurchaseOrderCreateRequest struct {
	SupplierID *string                    `json:"supplier,omitempty"`
	Items      []PurchaseOrderLineRequest `json:"items" validate:"required,min=1,dive"`
}

type ReceiveLineRequest struct {
	ItemID         string     `json:"itemId" validate:"required"`
	ReceivedQty    int        `json:"receivedQty"`
	ExpirationDate *time.Time `json:"expirationDate,omitempty"`
}

type PurchaseOrderReceiveRequest struct {
	Items []ReceiveLineRequest `json:"items" validate:"dive"`
}

type PurchaseOrderCancelRequest struct {
	Note string `json:"note" validate:"max=500"`
}

type PurchaseOrderReceiveResponse struct {
	Status        PurchaseOrderStatus `json:"status"`
	PurchaseOrder PurchaseOrder       `json:"purchaseOrder"`
}

type AcquisitionLine struct {
	Name     string          `json:"name" validate:"required,max=120"`
	Quantity int             `json:"quantity" validate:"gte=1"`
	UnitCost decimal.Decimal `json:"unitCost" validate:"gte=0"`
	Category string          `json:"category,omitempty" validate:"max=60"`
}

type Acquisition struct {
	ID            string            `json:"id"`
	AcquisitionID string            `json:"acquisitionId"`
	Supplier      string            `json:"supplier"`
	Items         []AcquisitionLine `json:"items"`
	Subtotal      decimal.Decimal   `json:"subtotal"`
	TotalAmount   decimal.Decimal   `json:"totalAmount"`
	PaymentMethod string            `json:"paymentMethod"`
	Status        AcquisitionStatus `json:"status"`
	CreatedBy     string            `json:"createdBy"`
	ResolvedBy    string            `json:"resolvedBy,omitempty"`
	Version       int64             `json:"version"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	ResolvedAt    *time.Time        `json:"resolvedAt,omitempty"`
}

type AcquisitionCreateRequest struct {
	AcquisitionID string            `json:"acquisitionId" validate:"required,max=64"`
	Supplier      string            `json:"supplier" validate:"required,max=120"`
	Items         []AcquisitionLine `json:"items" validate:"required,min=1,dive"`
	Subtotal      decimal.Decimal   `json:"subtotal" validate:"gte=0"`
	TotalAmount   decimal.Decimal   `json:"totalAmount" validate:"gte=0"`
	PaymentMethod string            `json:"paymentMethod" validate:"required,max=40"`
	// Status is accepted on the wire but always overwritten with Pending.
	Status AcquisitionStatus `json:"status,omitempty"`
}

type ListQuery struct {
	Page   int    `json:"page"`
	Limit  int    `json:"limit"`
	Sort   string `json:"sort"`
	Desc   bool   `json:"desc"`
	Status string `json:"status"`
	Search string `json:"q"`
}

type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expiresAt"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID        string
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	Action        string    `json:"action"`
	Module        string    `json:"module"`
	Description   string    `json:"description"`
	ActorID       string    `json:"actorId"`
	ActorUsername string    `json:"actorUsername"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Audience addresses a notification to roles, one user, or everyone.
type Audience struct {
	Roles  []string `json:"roles,omitempty"`
	UserID string   `json:"userId,omitempty"`
	Global bool     `json:"global,omitempty"`
}

func (a Audience) Includes(actor Actor) bool {
	if a.Global {
		return true
	}
	if a.UserID != "" && a.UserID == actor.ID {
		return true
	}
	for _, role := range a.Roles {
		if role == actor.Role {
			return true
		}
	}
	return false
}

type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Audience  Audience  `json:"audience"`
	CreatedAt time.Time `json:"createdAt"`
}
