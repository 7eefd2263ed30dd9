package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// StockService mutates and inspects per-location stock levels. All
// multi-step mutations run inside a single store transaction.
type StockService interface {
	// AdjustStock applies delta (positive or negative) to the (product,
	// location) level, creating the row lazily on first adjustment. The
	// resulting quantity may go negative: inventory count corrections are
	// allowed to record less than zero. reason lands in the movement audit
	// trail.
	AdjustStock(ctx context.Context, productID, locationID, delta int, reason string) (*StockLevel, error)

	// TransferStock moves quantity from one location to another. Both legs
	// run in one transaction: either both stock movements apply or neither
	// does.
	TransferStock(ctx context.Context, productID, fromLocationID, toLocationID, quantity int) error

	// LowStockProducts returns every active product whose summed quantity
	// across all locations is strictly below its minimum threshold. A zero
	// threshold never flags.
	LowStockProducts(ctx context.Context) ([]LowStockProduct, error)

	// GetStockForProduct returns the product's stock levels joined with
	// location names.
	GetStockForProduct(ctx context.Context, productID int) ([]StockLevelView, error)

	// WatchStockForProduct returns the current levels plus a live feed that
	// yields a fresh snapshot after every committed stock write.
	WatchStockForProduct(ctx context.Context, productID int) ([]StockLevelView, <-chan []StockLevelView, func(), error)
}

type stockService struct {
	store *Store
}

func NewStockService(store *Store) StockService {
	return &stockService{store: store}
}

// adjustStockTx upserts the (product, location) level by delta and records
// the movement, all within the caller's transaction. No floor is enforced
// here; order fulfillment uses deductStockTx instead.
func adjustStockTx(ctx context.Context, tx pgx.Tx, productID, locationID, delta int, reason string, orderID *int) (*StockLevel, error) {
	var level StockLevel
	err := tx.QueryRow(ctx, `
		INSERT INTO stock_levels (product_id, location_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id, location_id)
		DO UPDATE SET quantity    = stock_levels.quantity + EXCLUDED.quantity,
		              updated_at  = NOW(),
		              sync_status = 'pending'
		RETURNING id, product_id, location_id, quantity, updated_at
	`, productID, locationID, delta).Scan(
		&level.ID, &level.ProductID, &level.LocationID, &level.Quantity, &level.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("adjust stock for product %d at location %d: %w", productID, locationID, err)
	}

	if err := insertMovementTx(ctx, tx, productID, locationID, delta, reason, orderID); err != nil {
		return nil, err
	}
	if err := notifyChange(ctx, tx, "stock_levels", "stock_movements"); err != nil {
		return nil, err
	}
	return &level, nil
}

// deductStockTx removes quantity from the (product, location) level for an
// order, locking the row and rejecting the deduction if it would drive the
// level negative. A missing row means nothing is on hand at that location.
func deductStockTx(ctx context.Context, tx pgx.Tx, productID, locationID, quantity int, orderID int) error {
	var levelID, onHand int
	err := tx.QueryRow(ctx, `
		SELECT id, quantity FROM stock_levels
		WHERE product_id = $1 AND location_id = $2
		FOR UPDATE
	`, productID, locationID).Scan(&levelID, &onHand)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("product %d at location %d has no stock: %w", productID, locationID, ErrInsufficientStock)
	}
	if err != nil {
		return fmt.Errorf("lock stock level for product %d: %w", productID, err)
	}

	if onHand < quantity {
		return fmt.Errorf("product %d at location %d has %d on hand, need %d: %w",
			productID, locationID, onHand, quantity, ErrInsufficientStock)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE stock_levels
		SET quantity = quantity - $1, updated_at = NOW(), sync_status = 'pending'
		WHERE id = $2
	`, quantity, levelID); err != nil {
		return fmt.Errorf("deduct stock for product %d: %w", productID, err)
	}

	reason := fmt.Sprintf("sale: order %d", orderID)
	if err := insertMovementTx(ctx, tx, productID, locationID, -quantity, reason, &orderID); err != nil {
		return err
	}
	return notifyChange(ctx, tx, "stock_levels", "stock_movements")
}

func insertMovementTx(ctx context.Context, tx pgx.Tx, productID, locationID, delta int, reason string, orderID *int) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO stock_movements (product_id, location_id, delta, reason, order_id)
		VALUES ($1, $2, $3, $4, $5)
	`, productID, locationID, delta, reason, orderID); err != nil {
		return fmt.Errorf("record stock movement for product %d: %w", productID, err)
	}
	return nil
}

func (s *stockService) AdjustStock(ctx context.Context, productID, locationID, delta int, reason string) (*StockLevel, error) {
	var level *StockLevel
	err := s.store.WithinTx(ctx, func(tx pgx.Tx) error {
		var txErr error
		level, txErr = adjustStockTx(ctx, tx, productID, locationID, delta, reason, nil)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return level, nil
}

func (s *stockService) TransferStock(ctx context.Context, productID, fromLocationID, toLocationID, quantity int) error {
	if quantity <= 0 {
		return validationf("quantity", "transfer quantity must be positive, got %d", quantity)
	}
	if fromLocationID == toLocationID {
		return validationf("toLocationID", "transfer source and destination are the same location")
	}

	// Both legs in one unit: a failed credit rolls the debit back too.
	return s.store.WithinTx(ctx, func(tx pgx.Tx) error {
		debitReason := fmt.Sprintf("transfer to location %d", toLocationID)
		if _, err := adjustStockTx(ctx, tx, productID, fromLocationID, -quantity, debitReason, nil); err != nil {
			return err
		}
		creditReason := fmt.Sprintf("transfer from location %d", fromLocationID)
		if _, err := adjustStockTx(ctx, tx, productID, toLocationID, quantity, creditReason, nil); err != nil {
			return err
		}
		return nil
	})
}

// lowStockQuery flags active products whose total stock sits strictly below
// the minimum threshold. The Reporting Engine counts over the same query so
// both call sites always agree.
const lowStockQuery = `
	SELECT p.id, p.sku, p.name, p.min_stock_level, COALESCE(SUM(sl.quantity), 0) AS total_quantity
	FROM products p
	LEFT JOIN stock_levels sl ON sl.product_id = p.id
	WHERE p.is_active = true AND p.min_stock_level > 0
	GROUP BY p.id, p.sku, p.name, p.min_stock_level
	HAVING COALESCE(SUM(sl.quantity), 0) < p.min_stock_level`

func (s *stockService) LowStockProducts(ctx context.Context) ([]LowStockProduct, error) {
	rows, err := s.store.pool.Query(ctx, lowStockQuery+" ORDER BY p.sku")
	if err != nil {
		return nil, fmt.Errorf("query low stock products: %w", err)
	}
	defer rows.Close()

	var low []LowStockProduct
	for rows.Next() {
		var p LowStockProduct
		if err := rows.Scan(&p.ProductID, &p.SKU, &p.Name, &p.MinStockLevel, &p.TotalQuantity); err != nil {
			return nil, fmt.Errorf("scan low stock product: %w", err)
		}
		low = append(low, p)
	}
	return low, rows.Err()
}

// lowStockCountQ is shared with the Reporting Engine.
func lowStockCountQ(ctx context.Context, q pgxQuerier) (int, error) {
	var count int
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM ("+lowStockQuery+") low").Scan(&count); err != nil {
		return 0, fmt.Errorf("count low stock products: %w", err)
	}
	return count, nil
}

func (s *stockService) GetStockForProduct(ctx context.Context, productID int) ([]StockLevelView, error) {
	return stockForProductQ(ctx, s.store.pool, productID)
}

func stockForProductQ(ctx context.Context, q pgxQuerier, productID int) ([]StockLevelView, error) {
	rows, err := q.Query(ctx, `
		SELECT sl.id, sl.product_id, sl.location_id, sl.quantity, sl.updated_at, loc.name
		FROM stock_levels sl
		JOIN stock_locations loc ON loc.id = sl.location_id
		WHERE sl.product_id = $1
		ORDER BY loc.name
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("query stock for product %d: %w", productID, err)
	}
	defer rows.Close()

	var levels []StockLevelView
	for rows.Next() {
		var v StockLevelView
		if err := rows.Scan(&v.ID, &v.ProductID, &v.LocationID, &v.Quantity, &v.UpdatedAt, &v.LocationName); err != nil {
			return nil, fmt.Errorf("scan stock level: %w", err)
		}
		levels = append(levels, v)
	}
	return levels, rows.Err()
}

func (s *stockService) WatchStockForProduct(ctx context.Context, productID int) ([]StockLevelView, <-chan []StockLevelView, func(), error) {
	return Watch(ctx, s.store, []string{"stock_levels"}, func(ctx context.Context) ([]StockLevelView, error) {
		return stockForProductQ(ctx, s.store.pool, productID)
	})
}
