package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// SyncStatus marks a row's state for the (not yet implemented) remote sync.
// The core writes 'pending' on every insert and update; nothing reads it.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

type OrderStatus string

const (
	OrderDraft     OrderStatus = "draft"
	OrderConfirmed OrderStatus = "confirmed"
	OrderCancelled OrderStatus = "cancelled"
)

// PaymentStatus is fixed at order creation and never transitioned afterwards.
// The live balance (total minus recorded payments) is the settlement source
// of truth; this field records intent at the point of sale only.
type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentPartial PaymentStatus = "partial"
	PaymentCredit  PaymentStatus = "credit"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleStaff   Role = "staff"
)

type Category struct {
	ID          int
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Product struct {
	ID            int
	SKU           string
	Name          string
	Description   string
	CategoryID    *int
	Barcode       string
	Unit          string
	CostPrice     decimal.Decimal
	SellingPrice  decimal.Decimal
	MinStockLevel int
	MaxStockLevel int
	IsActive      bool
	IsFavorite    bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type StockLocation struct {
	ID          int
	Name        string
	Description string
	CreatedAt   time.Time
}

type StockLevel struct {
	ID         int
	ProductID  int
	LocationID int
	Quantity   int
	UpdatedAt  time.Time
}

// StockLevelView is a StockLevel joined with its location name for display.
type StockLevelView struct {
	StockLevel
	LocationName string
}

// StockMovement is one audit row per stock mutation. OrderID links movements
// caused by order fulfillment back to their sales order.
type StockMovement struct {
	ID         int
	ProductID  int
	LocationID int
	Delta      int
	Reason     string
	OrderID    *int
	CreatedAt  time.Time
}

// LowStockProduct is an active product whose total quantity across all
// locations has fallen strictly below its minimum threshold.
type LowStockProduct struct {
	ProductID     int
	SKU           string
	Name          string
	MinStockLevel int
	TotalQuantity int
}

type Customer struct {
	ID          int
	Name        string
	Email       string
	Phone       string
	Address     string
	CreditLimit decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type SalesOrder struct {
	ID             int
	CustomerID     *int // nil = walk-in sale
	TotalAmount    decimal.Decimal
	DiscountAmount decimal.Decimal
	Status         OrderStatus
	PaymentStatus  PaymentStatus
	DueDate        *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type SalesOrderItem struct {
	ID        int
	OrderID   int
	ProductID int
	Quantity  int
	UnitPrice decimal.Decimal // snapshot at sale time, independent of the product's current price
	Discount  decimal.Decimal
}

// OrderItemView is a SalesOrderItem joined with its product name for
// display and document rendering.
type OrderItemView struct {
	SalesOrderItem
	ProductName string
}

type Payment struct {
	ID      int
	OrderID int
	Amount  decimal.Decimal
	Method  string
	PaidAt  time.Time
}

type Expense struct {
	ID          int
	Category    string
	Amount      decimal.Decimal
	Description string
	Date        time.Time
	ReceiptRef  string
}

type User struct {
	ID           int
	Username     string
	FullName     string
	PasswordHash string
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
}

type Notification struct {
	ID        int
	Title     string
	Body      string
	IsRead    bool
	CreatedAt time.Time
}
