package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"stockroom/backend/internal/domain"
	"stockroom/backend/internal/stock"
	"stockroom/backend/internal/store"
	"stockroom/backend/internal/xid"
)

type Store struct {
	mu                 sync.RWMutex
	itemsByItemID      map[string]domain.InventoryItem
	purchaseOrdersByID map[string]domain.PurchaseOrder
	poNumbers          map[int64]string
	acquisitionsByID   map[string]domain.Acquisition
	suppliersByID      map[string]domain.Supplier
	auditLogs          []domain.AuditLog
	notifications      []domain.Notification
	usersByUsername    map[string]domain.UserAccount
}

// New returns an empty store with no users.
func New() *Store {
	return &Store{
		itemsByItemID:      make(map[string]domain.InventoryItem),
		purchaseOrdersByID: make(map[string]domain.PurchaseOrder),
		poNumbers:          make(map[int64]string),
		acquisitionsByID:   make(map[string]domain.Acquisition),
		suppliersByID:      make(map[string]domain.Supplier),
		auditLogs:          make([]domain.AuditLog, 0, 128),
		notifications:      make([]domain.Notification, 0, 64),
		usersByUsername:    make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and
// SEED_STAFF_PASSWORD. If unset, hardcoded dev defaults are used with a
// warning. These credentials are never used in production (the backend uses
// PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	seeds := []struct {
		username string
		envKey   string
		fallback string
		role     string
	}{
		{"admin", "SEED_ADMIN_PASSWORD", "admin123", domain.RoleAdmin},
		{"manager", "SEED_MANAGER_PASSWORD", "manager123", domain.RoleManager},
		{"staff", "SEED_STAFF_PASSWORD", "staff123", domain.RoleStaff},
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	usingDefaults := false
	for _, u := range seeds {
		password := os.Getenv(u.envKey)
		if password == "" {
			password = u.fallback
			usingDefaults = true
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			logrus.WithError(err).WithField("username", u.username).Fatal("memory-store: failed to hash seed password")
		}
		users[u.username] = domain.UserAccount{
			ID:        xid.New("usr"),
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	if usingDefaults {
		logrus.Warn("memory-store: using default dev credentials. Set SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}
	return users
}

// NewSeeded returns a store with demo users, two suppliers and a small
// bakery stockroom. Every seeded item carries an opening Restock so its
// history replays to its stock.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	now := time.Now().UTC()
	for _, supplier := range []domain.Supplier{
		{ID: "SUP-MILLHOUSE", Name: "Millhouse Grains", Phone: "+1-555-0101", CreatedAt: now},
		{ID: "SUP-DAIRYLANE", Name: "Dairy Lane", Phone: "+1-555-0144", CreatedAt: now},
	} {
		s.suppliersByID[supplier.ID] = supplier
	}

	items := []struct {
		itemID    string
		name      string
		category  string
		supplier  string
		unit      string
		purchase  string
		stock     int
		threshold int
	}{
		{"ITM-SUGAR", "Sugar", "Dry Goods", "Millhouse Grains", "2.40", "1.80", 40, 20},
		{"ITM-BUTTER", "Butter", "Dairy", "Dairy Lane", "4.10", "3.20", 12, 30},
		{"ITM-EGGS", "Eggs", "Dairy", "Dairy Lane", "0.35", "0.22", 180, 60},
		{"ITM-YEAST", "Yeast", "Dry Goods", "Millhouse Grains", "1.20", "0.75", 4, 20},
	}
	for _, seed := range items {
		item := domain.InventoryItem{
			ID:               xid.New("inv"),
			ItemID:           seed.itemID,
			Name:             seed.name,
			Category:         seed.category,
			Supplier:         seed.supplier,
			UnitPrice:        decimal.RequireFromString(seed.unit),
			PurchasePrice:    decimal.RequireFromString(seed.purchase),
			RestockThreshold: seed.threshold,
			CreatedAt:        now,
			UpdatedAt:        now,
			Version:          1,
		}
		item.Status = stock.DeriveStatus(0, item.RestockThreshold, nil, now)
		if _, err := stock.Apply(&item, stock.Change{Type: domain.StockEventRestock, Quantity: seed.stock, Note: "opening stock"}, now, false); err != nil {
			logrus.WithError(err).WithField("item_id", seed.itemID).Fatal("memory-store: failed to seed item")
		}
		s.itemsByItemID[item.ItemID] = cloneItem(item)
	}
	return s
}

func (s *Store) CreateInventoryItem(_ context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(item.ItemID) == "" {
		item.ItemID = xid.Short("ITM")
	}
	if _, exists := s.itemsByItemID[item.ItemID]; exists {
		return nil, store.ErrDuplicate
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
	item.Version = 1

	s.itemsByItemID[item.ItemID] = cloneItem(item)
	saved := cloneItem(item)
	return &saved, nil
}

func (s *Store) GetInventoryItem(_ context.Context, itemID string) (*domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.itemsByItemID[itemID]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := cloneItem(item)
	return &found, nil
}

// FindInventoryItemByName matches the name exactly, case included. When
// several items share a name the oldest wins.
func (s *Store) FindInventoryItemByName(_ context.Context, name string) (*domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var match *domain.InventoryItem
	for _, item := range s.itemsByItemID {
		if item.Name != name {
			continue
		}
		if match == nil || item.CreatedAt.Before(match.CreatedAt) {
			found := cloneItem(item)
			match = &found
		}
	}
	if match == nil {
		return nil, store.ErrNotFound
	}
	return match, nil
}

func (s *Store) SaveInventoryItem(_ context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.itemsByItemID[item.ItemID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if current.Version != item.Version {
		return nil, store.ErrVersionConflict
	}
	item.ID = current.ID
	item.CreatedAt = current.CreatedAt
	item.Version++

	s.itemsByItemID[item.ItemID] = cloneItem(item)
	saved := cloneItem(item)
	return &saved, nil
}

func (s *Store) ListInventoryItems(_ context.Context, filter store.Filter) ([]domain.InventoryItem, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InventoryItem, 0, len(s.itemsByItemID))
	for _, item := range s.itemsByItemID {
		if filter.Status != "" && string(item.Status) != filter.Status {
			continue
		}
		result = append(result, cloneItem(item))
	}
	slices.SortFunc(result, func(a, b domain.InventoryItem) int {
		return directed(compareItems(a, b, filter.SortBy), filter.Desc)
	})
	start, end := filter.Window(len(result))
	return result[start:end], len(result), nil
}

func compareItems(a, b domain.InventoryItem, field string) int {
	var c int
	switch field {
	case "itemId":
		c = cmpString(a.ItemID, b.ItemID)
	case "category":
		c = cmpString(a.Category, b.Category)
	case "currentStock":
		c = cmpInt(a.CurrentStock, b.CurrentStock)
	case "status":
		c = cmpString(string(a.Status), string(b.Status))
	case "createdAt":
		c = a.CreatedAt.Compare(b.CreatedAt)
	case "updatedAt":
		c = a.UpdatedAt.Compare(b.UpdatedAt)
	default:
		c = cmpString(a.Name, b.Name)
	}
	if c == 0 {
		c = cmpString(a.ItemID, b.ItemID)
	}
	return c
}

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(po.Items) == 0 || po.PONumber < 1 {
		return nil, domain.NewValidationError("purchase order needs a number and at least one line")
	}
	if _, taken := s.poNumbers[po.PONumber]; taken {
		return nil, store.ErrDuplicate
	}
	if po.ID == "" {
		po.ID = xid.New("po")
	}
	if _, exists := s.purchaseOrdersByID[po.ID]; exists {
		return nil, store.ErrDuplicate
	}
	now := time.Now().UTC()
	if po.CreatedAt.IsZero() {
		po.CreatedAt = now
	}
	if po.UpdatedAt.IsZero() {
		po.UpdatedAt = now
	}
	po.Version = 1

	s.purchaseOrdersByID[po.ID] = clonePurchaseOrder(po)
	s.poNumbers[po.PONumber] = po.ID
	saved := clonePurchaseOrder(po)
	return &saved, nil
}

func (s *Store) GetPurchaseOrder(_ context.Context, id string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, exists := s.purchaseOrdersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := clonePurchaseOrder(po)
	return &found, nil
}

func (s *Store) SavePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.purchaseOrdersByID[po.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if current.Version != po.Version {
		return nil, store.ErrVersionConflict
	}
	// Numbers and authorship are fixed at creation.
	po.PONumber = current.PONumber
	po.CreatedBy = current.CreatedBy
	po.CreatedAt = current.CreatedAt
	po.Version++

	s.purchaseOrdersByID[po.ID] = clonePurchaseOrder(po)
	saved := clonePurchaseOrder(po)
	return &saved, nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, filter store.Filter) ([]domain.PurchaseOrder, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PurchaseOrder, 0, len(s.purchaseOrdersByID))
	for _, po := range s.purchaseOrdersByID {
		if filter.Status != "" && string(po.Status) != filter.Status {
			continue
		}
		result = append(result, clonePurchaseOrder(po))
	}
	slices.SortFunc(result, func(a, b domain.PurchaseOrder) int {
		return directed(comparePurchaseOrders(a, b, filter.SortBy), filter.Desc)
	})
	start, end := filter.Window(len(result))
	return result[start:end], len(result), nil
}

func comparePurchaseOrders(a, b domain.PurchaseOrder, field string) int {
	var c int
	switch field {
	case "poNumber":
		c = cmpInt64(a.PONumber, b.PONumber)
	case "status":
		c = cmpString(string(a.Status), string(b.Status))
	case "totalAmount":
		c = a.TotalAmount.Cmp(b.TotalAmount)
	case "supplier":
		c = cmpString(a.SupplierName, b.SupplierName)
	case "updatedAt":
		c = a.UpdatedAt.Compare(b.UpdatedAt)
	default:
		c = a.CreatedAt.Compare(b.CreatedAt)
	}
	if c == 0 {
		c = cmpInt64(a.PONumber, b.PONumber)
	}
	return c
}

func (s *Store) MaxPONumber(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var highest int64
	for number := range s.poNumbers {
		if number > highest {
			highest = number
		}
	}
	return highest, nil
}

func (s *Store) CreateAcquisition(_ context.Context, acq domain.Acquisition) (*domain.Acquisition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(acq.AcquisitionID) == "" {
		return nil, domain.NewValidationError("acquisitionId is required")
	}
	if _, exists := s.acquisitionsByID[acq.AcquisitionID]; exists {
		return nil, store.ErrDuplicate
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

	s.acquisitionsByID[acq.AcquisitionID] = cloneAcquisition(acq)
	saved := cloneAcquisition(acq)
	return &saved, nil
}

func (s *Store) GetAcquisition(_ context.Context, acquisitionID string) (*domain.Acquisition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acq, exists := s.acquisitionsByID[acquisitionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := cloneAcquisition(acq)
	return &found, nil
}

func (s *Store) SaveAcquisition(_ context.Context, acq domain.Acquisition) (*domain.Acquisition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.acquisitionsByID[acq.AcquisitionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if current.Version != acq.Version {
		return nil, store.ErrVersionConflict
	}
	acq.ID = current.ID
	acq.CreatedBy = current.CreatedBy
	acq.CreatedAt = current.CreatedAt
	acq.Version++

	s.acquisitionsByID[acq.AcquisitionID] = cloneAcquisition(acq)
	saved := cloneAcquisition(acq)
	return &saved, nil
}

func (s *Store) ListAcquisitions(_ context.Context, filter store.Filter) ([]domain.Acquisition, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Acquisition, 0, len(s.acquisitionsByID))
	for _, acq := range s.acquisitionsByID {
		if filter.Status != "" && string(acq.Status) != filter.Status {
			continue
		}
		result = append(result, cloneAcquisition(acq))
	}
	slices.SortFunc(result, func(a, b domain.Acquisition) int {
		return directed(compareAcquisitions(a, b, filter.SortBy), filter.Desc)
	})
	start, end := filter.Window(len(result))
	return result[start:end], len(result), nil
}

func compareAcquisitions(a, b domain.Acquisition, field string) int {
	var c int
	switch field {
	case "acquisitionId":
		c = cmpString(a.AcquisitionID, b.AcquisitionID)
	case "supplier":
		c = cmpString(a.Supplier, b.Supplier)
	case "status":
		c = cmpString(string(a.Status), string(b.Status))
	case "totalAmount":
		c = a.TotalAmount.Cmp(b.TotalAmount)
	case "updatedAt":
		c = a.UpdatedAt.Compare(b.UpdatedAt)
	default:
		c = a.CreatedAt.Compare(b.CreatedAt)
	}
	if c == 0 {
		c = cmpString(a.AcquisitionID, b.AcquisitionID)
	}
	return c
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, domain.NewValidationError("supplier name is required")
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if _, exists := s.suppliersByID[supplier.ID]; exists {
		return nil, store.ErrDuplicate
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	s.suppliersByID[supplier.ID] = supplier
	copySupplier := supplier
	return &copySupplier, nil
}

func (s *Store) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, exists := s.suppliersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySupplier := supplier
	return &copySupplier, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, supplier := range s.suppliersByID {
		suppliers = append(suppliers, supplier)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.Name, b.Name)
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return suppliers, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, len(s.auditLogs))
	copy(result, s.auditLogs)
	slices.SortStableFunc(result, func(a, b domain.AuditLog) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateNotification(_ context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = xid.New("ntf")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	n.Audience.Roles = slices.Clone(n.Audience.Roles)
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *Store) ListNotifications(_ context.Context, actor domain.Actor, limit int) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Notification, 0, 32)
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if !n.Audience.Includes(actor) {
			continue
		}
		n.Audience.Roles = slices.Clone(n.Audience.Roles)
		result = append(result, n)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return domain.NewValidationError("username and password are required")
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrDuplicate
	}
	user.Username = username
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return domain.NewValidationError("username and password are required")
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func directed(c int, desc bool) int {
	if desc {
		return -c
	}
	return c
}

func cmpString(a string, b string) int {
	return strings.Compare(a, b)
}

func cmpInt(a int, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt64(a int64, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cloneItem(src domain.InventoryItem) domain.InventoryItem {
	dup := src
	history := make([]domain.StockEvent, len(src.StockHistory))
	copy(history, src.StockHistory)
	dup.StockHistory = history
	if src.ExpirationDate != nil {
		expiry := src.ExpirationDate.UTC()
		dup.ExpirationDate = &expiry
	}
	return dup
}

func clonePurchaseOrder(src domain.PurchaseOrder) domain.PurchaseOrder {
	dup := src
	items := make([]domain.PurchaseOrderLine, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	if src.SupplierID != nil {
		supplierID := *src.SupplierID
		dup.SupplierID = &supplierID
	}
	return dup
}

func cloneAcquisition(src domain.Acquisition) domain.Acquisition {
	dup := src
	items := make([]domain.AcquisitionLine, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	if src.ResolvedAt != nil {
		resolved := *src.ResolvedAt
		dup.ResolvedAt = &resolved
	}
	return dup
}
