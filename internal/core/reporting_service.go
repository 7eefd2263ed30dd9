package core

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Metrics are the aggregate financials for one time window, recomputed from
// raw rows on every call — nothing here is cached or incrementally
// maintained. TotalProducts and LowStockCount are point-in-time counts and
// ignore the window.
type Metrics struct {
	Period        Period
	TotalRevenue  decimal.Decimal
	COGS          decimal.Decimal
	GrossProfit   decimal.Decimal
	TotalExpenses decimal.Decimal
	NetProfit     decimal.Decimal
	MarginPct     decimal.Decimal
	LowStockCount int
	TotalProducts int
}

// CategorySales is the revenue attributed to one product category within a
// window. Amounts are gross price×quantity; item discounts are not
// subtracted here, unlike the order total.
type CategorySales struct {
	Category string
	Amount   decimal.Decimal
}

// MarginPercent is net profit over revenue as a percentage, with the
// mandatory zero-revenue guard: no revenue means zero margin, never a
// division by zero.
func MarginPercent(netProfit, revenue decimal.Decimal) decimal.Decimal {
	if revenue.IsZero() {
		return decimal.Zero
	}
	return netProfit.Div(revenue).Mul(decimal.NewFromInt(100))
}

// ReportingService derives financial metrics from the raw order, item,
// expense, and stock rows.
type ReportingService interface {
	ComputeMetrics(ctx context.Context, period Period) (*Metrics, error)
	SalesByCategory(ctx context.Context, period Period) ([]CategorySales, error)

	// WatchMetrics re-derives the metrics after every committed write to
	// any table they are computed from.
	WatchMetrics(ctx context.Context, period Period) (*Metrics, <-chan *Metrics, func(), error)
}

type reportingService struct {
	store *Store
	now   func() time.Time
}

func NewReportingService(store *Store) ReportingService {
	return &reportingService{store: store, now: time.Now}
}

func (s *reportingService) ComputeMetrics(ctx context.Context, period Period) (*Metrics, error) {
	if !period.valid() {
		return nil, validationf("period", "unknown period %q", period)
	}
	cutoff, bounded := period.Cutoff(s.now())
	m := &Metrics{Period: period}

	// Revenue: sum of order totals in the window.
	revenueQ := "SELECT COALESCE(SUM(total_amount), 0) FROM sales_orders"
	args := []any{}
	if bounded {
		revenueQ += " WHERE created_at >= $1"
		args = append(args, cutoff)
	}
	if err := s.store.pool.QueryRow(ctx, revenueQ, args...).Scan(&m.TotalRevenue); err != nil {
		return nil, fmt.Errorf("sum revenue: %w", err)
	}

	// COGS: each sold item at its product's current cost price (0 when the
	// product is gone).
	cogsQ := `
		SELECT COALESCE(SUM(soi.quantity * COALESCE(p.cost_price, 0)), 0)
		FROM sales_order_items soi
		JOIN sales_orders so ON so.id = soi.order_id
		LEFT JOIN products p ON p.id = soi.product_id`
	args = args[:0]
	if bounded {
		cogsQ += " WHERE so.created_at >= $1"
		args = append(args, cutoff)
	}
	if err := s.store.pool.QueryRow(ctx, cogsQ, args...).Scan(&m.COGS); err != nil {
		return nil, fmt.Errorf("sum cost of goods sold: %w", err)
	}

	// Expenses in the window. The cutoff is rendered as a date string
	// client-side; a timestamptz parameter would be cast in the server's
	// session time zone, which can shift the boundary by a day.
	expenseQ := "SELECT COALESCE(SUM(amount), 0) FROM expenses"
	args = args[:0]
	if bounded {
		expenseQ += " WHERE expense_date >= $1::date"
		args = append(args, cutoff.Format("2006-01-02"))
	}
	if err := s.store.pool.QueryRow(ctx, expenseQ, args...).Scan(&m.TotalExpenses); err != nil {
		return nil, fmt.Errorf("sum expenses: %w", err)
	}

	m.GrossProfit = m.TotalRevenue.Sub(m.COGS)
	m.NetProfit = m.GrossProfit.Sub(m.TotalExpenses)
	m.MarginPct = MarginPercent(m.NetProfit, m.TotalRevenue)

	lowStock, err := lowStockCountQ(ctx, s.store.pool)
	if err != nil {
		return nil, err
	}
	m.LowStockCount = lowStock

	if err := s.store.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM products WHERE is_active = true",
	).Scan(&m.TotalProducts); err != nil {
		return nil, fmt.Errorf("count active products: %w", err)
	}

	return m, nil
}

func (s *reportingService) SalesByCategory(ctx context.Context, period Period) ([]CategorySales, error) {
	if !period.valid() {
		return nil, validationf("period", "unknown period %q", period)
	}
	cutoff, bounded := period.Cutoff(s.now())

	q := `
		SELECT COALESCE(c.name, 'Uncategorized') AS category,
		       COALESCE(SUM(soi.quantity * soi.unit_price), 0) AS amount
		FROM sales_order_items soi
		JOIN sales_orders so ON so.id = soi.order_id
		JOIN products p ON p.id = soi.product_id
		LEFT JOIN categories c ON c.id = p.category_id`
	args := []any{}
	if bounded {
		q += " WHERE so.created_at >= $1"
		args = append(args, cutoff)
	}
	q += " GROUP BY category ORDER BY amount DESC"

	rows, err := s.store.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query sales by category: %w", err)
	}
	defer rows.Close()

	var breakdown []CategorySales
	for rows.Next() {
		var cs CategorySales
		if err := rows.Scan(&cs.Category, &cs.Amount); err != nil {
			return nil, fmt.Errorf("scan category sales: %w", err)
		}
		breakdown = append(breakdown, cs)
	}
	return breakdown, rows.Err()
}

// metricsSourceTables lists every table the metrics read from.
var metricsSourceTables = []string{
	"sales_orders", "sales_order_items", "payments", "expenses", "products", "stock_levels",
}

func (s *reportingService) WatchMetrics(ctx context.Context, period Period) (*Metrics, <-chan *Metrics, func(), error) {
	return Watch(ctx, s.store, metricsSourceTables, func(ctx context.Context) (*Metrics, error) {
		return s.ComputeMetrics(ctx, period)
	})
}
