package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ProductPatch is a partial update; nil fields are left untouched.
type ProductPatch struct {
	Name          *string
	Description   *string
	CategoryID    *int
	Barcode       *string
	Unit          *string
	CostPrice     *decimal.Decimal
	SellingPrice  *decimal.Decimal
	MinStockLevel *int
	MaxStockLevel *int
	IsActive      *bool
	IsFavorite    *bool
}

// CatalogService is CRUD over the master-data entities: products,
// categories, customers, and expenses. Duplicate SKUs and other integrity
// violations surface from the store unchanged.
type CatalogService interface {
	CreateProduct(ctx context.Context, p Product) (*Product, error)
	UpdateProduct(ctx context.Context, productID int, patch ProductPatch) (*Product, error)
	// DeleteProduct hard-deletes the row. Stock levels cascade; products
	// referenced by sales history are protected by the store and the
	// integrity error propagates.
	DeleteProduct(ctx context.Context, productID int) error
	GetProduct(ctx context.Context, productID int) (*Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*Product, error)
	ListProducts(ctx context.Context, activeOnly bool) ([]Product, error)

	CreateCategory(ctx context.Context, name, description string) (*Category, error)
	ListCategories(ctx context.Context) ([]Category, error)

	CreateCustomer(ctx context.Context, c Customer) (*Customer, error)
	ListCustomers(ctx context.Context) ([]Customer, error)
	DeleteCustomer(ctx context.Context, customerID int) error

	CreateExpense(ctx context.Context, e Expense) (*Expense, error)
	ListExpenses(ctx context.Context, period Period) ([]Expense, error)
	DeleteExpense(ctx context.Context, expenseID int) error
}

type catalogService struct {
	store *Store
	now   func() time.Time
}

func NewCatalogService(store *Store) CatalogService {
	return &catalogService{store: store, now: time.Now}
}

const productColumns = `id, sku, name, description, category_id, barcode, unit,
	cost_price, selling_price, min_stock_level, max_stock_level,
	is_active, is_favorite, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(
		&p.ID, &p.SKU, &p.Name, &p.Description, &p.CategoryID, &p.Barcode, &p.Unit,
		&p.CostPrice, &p.SellingPrice, &p.MinStockLevel, &p.MaxStockLevel,
		&p.IsActive, &p.IsFavorite, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, p Product) (*Product, error) {
	if strings.TrimSpace(p.SKU) == "" {
		return nil, validationf("sku", "sku is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, validationf("name", "name is required")
	}
	if p.CostPrice.IsNegative() || p.SellingPrice.IsNegative() {
		return nil, validationf("price", "prices cannot be negative")
	}
	if p.Unit == "" {
		p.Unit = "pcs"
	}

	var created *Product
	err := s.store.WithinTx(ctx, func(tx pgx.Tx) error {
		var txErr error
		created, txErr = scanProduct(tx.QueryRow(ctx, `
			INSERT INTO products (sku, name, description, category_id, barcode, unit,
				cost_price, selling_price, min_stock_level, max_stock_level, is_active, is_favorite)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING `+productColumns,
			p.SKU, p.Name, p.Description, p.CategoryID, p.Barcode, p.Unit,
			p.CostPrice, p.SellingPrice, p.MinStockLevel, p.MaxStockLevel, true, p.IsFavorite,
		))
		if txErr != nil {
			return fmt.Errorf("insert product %s: %w", p.SKU, txErr)
		}
		return notifyChange(ctx, tx, "products")
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, productID int, patch ProductPatch) (*Product, error) {
	sets := []string{"updated_at = NOW()", "sync_status = 'pending'"}
	args := []any{}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.CategoryID != nil {
		add("category_id", *patch.CategoryID)
	}
	if patch.Barcode != nil {
		add("barcode", *patch.Barcode)
	}
	if patch.Unit != nil {
		add("unit", *patch.Unit)
	}
	if patch.CostPrice != nil {
		add("cost_price", *patch.CostPrice)
	}
	if patch.SellingPrice != nil {
		add("selling_price", *patch.SellingPrice)
	}
	if patch.MinStockLevel != nil {
		add("min_stock_level", *patch.MinStockLevel)
	}
	if patch.MaxStockLevel != nil {
		add("max_stock_level", *patch.MaxStockLevel)
	}
	if patch.IsActive != nil {
		add("is_active", *patch.IsActive)
	}
	if patch.IsFavorite != nil {
		add("is_favorite", *patch.IsFavorite)
	}

	args = append(args, productID)
	query := fmt.Sprintf("UPDATE products SET %s WHERE id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args), productColumns)

	var updated *Product
	err := s.store.WithinTx(ctx, func(tx pgx.Tx) error {
		var txErr error
		updated, txErr = scanProduct(tx.QueryRow(ctx, query, args...))
		if errors.Is(txErr, pgx.ErrNoRows) {
			return fmt.Errorf("product %d: %w", productID, ErrNotFound)
		}
		if txErr != nil {
			return fmt.Errorf("update product %d: %w", productID, txErr)
		}
		return notifyChange(ctx, tx, "products")
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID int) error {
	return s.store.WithinTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM products WHERE id = $1", productID)
		if err != nil {
			return fmt.Errorf("delete product %d: %w", productID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("product %d: %w", productID, ErrNotFound)
		}
		return notifyChange(ctx, tx, "products", "stock_levels")
	})
}

func (s *catalogService) GetProduct(ctx context.Context, productID int) (*Product, error) {
	p, err := scanProduct(s.store.pool.QueryRow(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = $1", productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", productID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch product %d: %w", productID, err)
	}
	return p, nil
}

func (s *catalogService) GetProductBySKU(ctx context.Context, sku string) (*Product, error) {
	p, err := scanProduct(s.store.pool.QueryRow(ctx,
		"SELECT "+productColumns+" FROM products WHERE sku = $1", sku))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", sku, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch product %s: %w", sku, err)
	}
	return p, nil
}

func (s *catalogService) ListProducts(ctx context.Context, activeOnly bool) ([]Product, error) {
	query := "SELECT " + productColumns + " FROM products"
	if activeOnly {
		query += " WHERE is_active = true"
	}
	query += " ORDER BY sku"

	rows, err := s.store.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *catalogService) CreateCategory(ctx context.Context, name, description string) (*Category, error) {
	if strings.TrimSpace(name) == "" {
		return nil, validationf("name", "name is required")
	}

	var c Category
	err := s.store.WithinTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO categories (name, description)
			VALUES ($1, $2)
			RETURNING id, name, description, created_at, updated_at
		`, name, description).Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return fmt.Errorf("insert category %s: %w", name, err)
		}
		return notifyChange(ctx, tx, "categories")
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *catalogService) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.store.pool.Query(ctx,
		"SELECT id, name, description, created_at, updated_at FROM categories ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *catalogService) CreateCustomer(ctx context.Context, c Customer) (*Customer, error) {
	if strings.TrimSpace(c.Name) == "" {
		return nil, validationf("name", "name is required")
	}

	var created Customer
	err := s.store.WithinTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO customers (name, email, phone, address, credit_limit)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, name, email, phone, address, credit_limit, created_at, updated_at
		`, c.Name, c.Email, c.Phone, c.Address, c.CreditLimit).Scan(
			&created.ID, &created.Name, &created.Email, &created.Phone,
			&created.Address, &created.CreditLimit, &created.CreatedAt, &created.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert customer %s: %w", c.Name, err)
		}
		return notifyChange(ctx, tx, "customers")
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *catalogService) ListCustomers(ctx context.Context) ([]Customer, error) {
	rows, err := s.store.pool.Query(ctx, `
		SELECT id, name, email, phone, address, credit_limit, created_at, updated_at
		FROM customers
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("query customers: %w", err)
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address,
			&c.CreditLimit, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *catalogService) DeleteCustomer(ctx context.Context, customerID int) error {
	return s.store.WithinTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM customers WHERE id = $1", customerID)
		if err != nil {
			return fmt.Errorf("delete customer %d: %w", customerID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("customer %d: %w", customerID, ErrNotFound)
		}
		return notifyChange(ctx, tx, "customers")
	})
}

func (s *catalogService) CreateExpense(ctx context.Context, e Expense) (*Expense, error) {
	if !e.Amount.IsPositive() {
		return nil, validationf("amount", "expense amount must be positive, got %s", e.Amount)
	}
	if e.Date.IsZero() {
		e.Date = s.now()
	}

	var created Expense
	err := s.store.WithinTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO expenses (category, amount, description, expense_date, receipt_ref)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, category, amount, description, expense_date, receipt_ref
		`, e.Category, e.Amount, e.Description, e.Date, e.ReceiptRef).Scan(
			&created.ID, &created.Category, &created.Amount,
			&created.Description, &created.Date, &created.ReceiptRef,
		); err != nil {
			return fmt.Errorf("insert expense: %w", err)
		}
		return notifyChange(ctx, tx, "expenses")
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *catalogService) ListExpenses(ctx context.Context, period Period) ([]Expense, error) {
	if !period.valid() {
		return nil, validationf("period", "unknown period %q", period)
	}
	query := "SELECT id, category, amount, description, expense_date, receipt_ref FROM expenses"
	args := []any{}
	if cutoff, bounded := period.Cutoff(s.now()); bounded {
		// Date string, not timestamptz: the server session time zone must
		// not shift the boundary.
		query += " WHERE expense_date >= $1::date"
		args = append(args, cutoff.Format("2006-01-02"))
	}
	query += " ORDER BY expense_date DESC, id DESC"

	rows, err := s.store.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []Expense
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.Category, &e.Amount, &e.Description, &e.Date, &e.ReceiptRef); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (s *catalogService) DeleteExpense(ctx context.Context, expenseID int) error {
	return s.store.WithinTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM expenses WHERE id = $1", expenseID)
		if err != nil {
			return fmt.Errorf("delete expense %d: %w", expenseID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("expense %d: %w", expenseID, ErrNotFound)
		}
		return notifyChange(ctx, tx, "expenses")
	})
}
