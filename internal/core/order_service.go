package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// defaultPaymentMethod is used when a sale is recorded as paid without an
// explicit method.
const defaultPaymentMethod = "cash"

// OrderItemInput is one line of a sale. LocationID is required: the caller
// decides which location fulfils each line, there is no implicit "first
// stock row" policy.
type OrderItemInput struct {
	ProductID  int
	LocationID int
	Quantity   int
	UnitPrice  decimal.Decimal
	Discount   decimal.Decimal
}

type CreateOrderInput struct {
	CustomerID     *int // nil = walk-in
	Items          []OrderItemInput
	DiscountAmount decimal.Decimal
	PaymentStatus  PaymentStatus // defaults to paid
	PaymentMethod  string        // defaults to cash, used only when PaymentStatus is paid
	DueDate        *time.Time
}

// ComputeOrderTotal is the pure total function:
// Σ(price×qty − itemDiscount) − orderDiscount. The result is fixed at
// creation time and never re-derived from current product prices.
func ComputeOrderTotal(items []OrderItemInput, orderDiscount decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		line := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Sub(item.Discount)
		total = total.Add(line)
	}
	return total.Sub(orderDiscount)
}

// OrderService creates sales orders atomically with their items, stock
// deduction, and initial payment, and records further payments against the
// running balance.
type OrderService interface {
	// CreateSalesOrder runs the whole sale as one transactional unit: order
	// row, item rows, per-line stock deduction, and (for paid sales) one
	// payment for the full total. Any failure leaves no trace.
	CreateSalesOrder(ctx context.Context, input CreateOrderInput) (*SalesOrder, error)

	// AddPayment records one payment against an order. Non-positive amounts
	// are rejected before any write.
	AddPayment(ctx context.Context, orderID int, amount decimal.Decimal, method string) (*Payment, error)

	// OrderBalance is total minus the sum of recorded payments, always
	// computed live. It, not the stored payment status, says whether an
	// order is settled.
	OrderBalance(ctx context.Context, orderID int) (decimal.Decimal, error)

	GetOrder(ctx context.Context, orderID int) (*SalesOrder, error)
	GetOrders(ctx context.Context) ([]SalesOrder, error)
	GetOrderItems(ctx context.Context, orderID int) ([]OrderItemView, error)
	GetPaymentsForOrder(ctx context.Context, orderID int) ([]Payment, error)

	// WatchOrderPayments yields the order's payment list again after every
	// committed payment write.
	WatchOrderPayments(ctx context.Context, orderID int) ([]Payment, <-chan []Payment, func(), error)
}

type orderService struct {
	store *Store
}

func NewOrderService(store *Store) OrderService {
	return &orderService{store: store}
}

func validateOrderInput(input CreateOrderInput) error {
	if len(input.Items) == 0 {
		return validationf("items", "order must have at least one item")
	}
	for i, item := range input.Items {
		if item.ProductID <= 0 {
			return validationf("items", "line %d: product id is required", i+1)
		}
		if item.LocationID <= 0 {
			return validationf("items", "line %d: fulfillment location is required", i+1)
		}
		if item.Quantity <= 0 {
			return validationf("items", "line %d: quantity must be positive, got %d", i+1, item.Quantity)
		}
		if item.UnitPrice.IsNegative() {
			return validationf("items", "line %d: unit price cannot be negative", i+1)
		}
		if item.Discount.IsNegative() {
			return validationf("items", "line %d: discount cannot be negative", i+1)
		}
	}
	if input.DiscountAmount.IsNegative() {
		return validationf("discountAmount", "order discount cannot be negative")
	}
	switch input.PaymentStatus {
	case "", PaymentPaid, PaymentPartial, PaymentCredit:
	default:
		return validationf("paymentStatus", "unknown payment status %q", input.PaymentStatus)
	}
	return nil
}

func (s *orderService) CreateSalesOrder(ctx context.Context, input CreateOrderInput) (*SalesOrder, error) {
	if err := validateOrderInput(input); err != nil {
		return nil, err
	}

	paymentStatus := input.PaymentStatus
	if paymentStatus == "" {
		paymentStatus = PaymentPaid
	}
	method := input.PaymentMethod
	if method == "" {
		method = defaultPaymentMethod
	}

	total := ComputeOrderTotal(input.Items, input.DiscountAmount)

	var orderID int
	err := s.store.WithinTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO sales_orders (customer_id, total_amount, discount_amount, status, payment_status, due_date)
			VALUES ($1, $2, $3, 'confirmed', $4, $5)
			RETURNING id
		`, input.CustomerID, total, input.DiscountAmount, paymentStatus, input.DueDate).Scan(&orderID)
		if err != nil {
			return fmt.Errorf("insert sales order: %w", err)
		}

		for i, item := range input.Items {
			if _, err := tx.Exec(ctx, `
				INSERT INTO sales_order_items (order_id, product_id, quantity, unit_price, discount)
				VALUES ($1, $2, $3, $4, $5)
			`, orderID, item.ProductID, item.Quantity, item.UnitPrice, item.Discount); err != nil {
				return fmt.Errorf("insert order item %d: %w", i+1, err)
			}

			if err := deductStockTx(ctx, tx, item.ProductID, item.LocationID, item.Quantity, orderID); err != nil {
				return err
			}
		}

		if paymentStatus == PaymentPaid {
			if _, err := tx.Exec(ctx, `
				INSERT INTO payments (order_id, amount, method)
				VALUES ($1, $2, $3)
			`, orderID, total, method); err != nil {
				return fmt.Errorf("insert initial payment: %w", err)
			}
		}

		return notifyChange(ctx, tx, "sales_orders", "sales_order_items", "payments")
	})
	if err != nil {
		return nil, err
	}

	return s.GetOrder(ctx, orderID)
}

func (s *orderService) AddPayment(ctx context.Context, orderID int, amount decimal.Decimal, method string) (*Payment, error) {
	if !amount.IsPositive() {
		return nil, validationf("amount", "payment amount must be positive, got %s", amount)
	}
	if method == "" {
		method = defaultPaymentMethod
	}

	var payment Payment
	err := s.store.WithinTx(ctx, func(tx pgx.Tx) error {
		var exists int
		err := tx.QueryRow(ctx, "SELECT id FROM sales_orders WHERE id = $1", orderID).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("fetch order %d: %w", orderID, err)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO payments (order_id, amount, method)
			VALUES ($1, $2, $3)
			RETURNING id, order_id, amount, method, paid_at
		`, orderID, amount, method).Scan(
			&payment.ID, &payment.OrderID, &payment.Amount, &payment.Method, &payment.PaidAt,
		)
		if err != nil {
			return fmt.Errorf("insert payment for order %d: %w", orderID, err)
		}

		return notifyChange(ctx, tx, "payments")
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *orderService) OrderBalance(ctx context.Context, orderID int) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.store.pool.QueryRow(ctx, `
		SELECT so.total_amount - COALESCE(SUM(p.amount), 0)
		FROM sales_orders so
		LEFT JOIN payments p ON p.order_id = so.id
		WHERE so.id = $1
		GROUP BY so.total_amount
	`, orderID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("compute balance for order %d: %w", orderID, err)
	}
	return balance, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID int) (*SalesOrder, error) {
	var o SalesOrder
	err := s.store.pool.QueryRow(ctx, `
		SELECT id, customer_id, total_amount, discount_amount, status, payment_status, due_date, created_at, updated_at
		FROM sales_orders
		WHERE id = $1
	`, orderID).Scan(
		&o.ID, &o.CustomerID, &o.TotalAmount, &o.DiscountAmount,
		&o.Status, &o.PaymentStatus, &o.DueDate, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch order %d: %w", orderID, err)
	}
	return &o, nil
}

func (s *orderService) GetOrders(ctx context.Context) ([]SalesOrder, error) {
	rows, err := s.store.pool.Query(ctx, `
		SELECT id, customer_id, total_amount, discount_amount, status, payment_status, due_date, created_at, updated_at
		FROM sales_orders
		ORDER BY id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []SalesOrder
	for rows.Next() {
		var o SalesOrder
		if err := rows.Scan(
			&o.ID, &o.CustomerID, &o.TotalAmount, &o.DiscountAmount,
			&o.Status, &o.PaymentStatus, &o.DueDate, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *orderService) GetOrderItems(ctx context.Context, orderID int) ([]OrderItemView, error) {
	return orderItemsQ(ctx, s.store.pool, orderID)
}

func orderItemsQ(ctx context.Context, q pgxQuerier, orderID int) ([]OrderItemView, error) {
	rows, err := q.Query(ctx, `
		SELECT soi.id, soi.order_id, soi.product_id, soi.quantity, soi.unit_price, soi.discount, p.name
		FROM sales_order_items soi
		JOIN products p ON p.id = soi.product_id
		WHERE soi.order_id = $1
		ORDER BY soi.id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query items for order %d: %w", orderID, err)
	}
	defer rows.Close()

	var items []OrderItemView
	for rows.Next() {
		var it OrderItemView
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.Discount, &it.ProductName); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *orderService) GetPaymentsForOrder(ctx context.Context, orderID int) ([]Payment, error) {
	return paymentsForOrderQ(ctx, s.store.pool, orderID)
}

func paymentsForOrderQ(ctx context.Context, q pgxQuerier, orderID int) ([]Payment, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, amount, method, paid_at
		FROM payments
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query payments for order %d: %w", orderID, err)
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.PaidAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *orderService) WatchOrderPayments(ctx context.Context, orderID int) ([]Payment, <-chan []Payment, func(), error) {
	return Watch(ctx, s.store, []string{"payments"}, func(ctx context.Context) ([]Payment, error) {
		return paymentsForOrderQ(ctx, s.store.pool, orderID)
	})
}
