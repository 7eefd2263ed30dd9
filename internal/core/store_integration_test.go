package core_test

import (
	"context"
	"os"
	"testing"
	"time"

	"pos-core/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func setupTestDB(t *testing.T) (*pgxpool.Pool, *core.Store, context.Context) {
	t.Helper()
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	// Set TEST_DATABASE_URL in your .env or environment to run integration tests.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE sales_order_items, payments, stock_movements, sales_orders,
			stock_levels, products, expenses, customers, notifications,
			categories, stock_locations, users
		RESTART IDENTITY CASCADE
	`)
	if err != nil {
		t.Fatalf("Failed to clean test database: %v", err)
	}

	store, err := core.Open(ctx, pool, nil)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
		pool.Close()
	})
	return pool, store, ctx
}

// seedInventory inserts two locations, one category, and two products.
// Identities are restarted by setupTestDB, so the ids are deterministic:
// locations 1 and 2, category 1, products 1 and 2.
func seedInventory(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(ctx, `
		INSERT INTO stock_locations (name, description) VALUES
			('Main Warehouse', 'Default location'),
			('Backroom', 'Overflow shelving');

		INSERT INTO categories (name, description) VALUES ('Beverages', '');

		INSERT INTO products (sku, name, category_id, unit, cost_price, selling_price, min_stock_level) VALUES
			('SKU-001', 'Drip Coffee Beans', 1, 'pcs', 10, 25, 5),
			('SKU-002', 'Cold Brew Bottle', NULL, 'pcs', 4, 9, 0);
	`)
	if err != nil {
		t.Fatalf("Failed to seed inventory test data: %v", err)
	}
}

func countRows(t *testing.T, ctx context.Context, pool *pgxpool.Pool, table string) int {
	t.Helper()
	var n int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("Failed to count %s: %v", table, err)
	}
	return n
}

func stockQuantity(t *testing.T, ctx context.Context, pool *pgxpool.Pool, productID, locationID int) int {
	t.Helper()
	var qty int
	err := pool.QueryRow(ctx, `
		SELECT COALESCE((
			SELECT quantity FROM stock_levels WHERE product_id = $1 AND location_id = $2
		), 0)
	`, productID, locationID).Scan(&qty)
	if err != nil {
		t.Fatalf("Failed to read stock quantity: %v", err)
	}
	return qty
}

func TestStore_EnsureSeedDefaults(t *testing.T) {
	pool, store, ctx := setupTestDB(t)

	if err := store.EnsureSeed(ctx); err != nil {
		t.Fatalf("EnsureSeed failed: %v", err)
	}

	var locName string
	err := pool.QueryRow(ctx,
		"SELECT name FROM stock_locations WHERE name = $1", core.DefaultLocationName,
	).Scan(&locName)
	if err != nil {
		t.Fatalf("Default location missing after seed: %v", err)
	}

	var role string
	err = pool.QueryRow(ctx,
		"SELECT role FROM users WHERE username = 'admin'",
	).Scan(&role)
	if err != nil {
		t.Fatalf("Default admin missing after seed: %v", err)
	}
	if role != "admin" {
		t.Errorf("Expected admin role for default account, got %s", role)
	}

	// Seeding twice must not duplicate anything.
	if err := store.EnsureSeed(ctx); err != nil {
		t.Fatalf("Second EnsureSeed failed: %v", err)
	}
	if n := countRows(t, ctx, pool, "stock_locations"); n != 1 {
		t.Errorf("Expected 1 location after double seed, got %d", n)
	}
	if n := countRows(t, ctx, pool, "users"); n != 1 {
		t.Errorf("Expected 1 user after double seed, got %d", n)
	}
}

func TestStore_FactoryResetEmptiesEverything(t *testing.T) {
	pool, store, ctx := setupTestDB(t)
	seedInventory(t, ctx, pool)

	if err := store.EnsureSeed(ctx); err != nil {
		t.Fatalf("EnsureSeed failed: %v", err)
	}
	stockSvc := core.NewStockService(store)
	if _, err := stockSvc.AdjustStock(ctx, 1, 1, 10, "initial count"); err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}

	if err := store.FactoryReset(ctx); err != nil {
		t.Fatalf("FactoryReset failed: %v", err)
	}

	for _, table := range []string{
		"products", "stock_levels", "stock_movements", "stock_locations",
		"categories", "users", "sales_orders",
	} {
		if n := countRows(t, ctx, pool, table); n != 0 {
			t.Errorf("Expected %s to be empty after reset, got %d rows", table, n)
		}
	}

	// Reseed restores the defaults on the wiped store.
	if err := store.EnsureSeed(ctx); err != nil {
		t.Fatalf("EnsureSeed after reset failed: %v", err)
	}
	if n := countRows(t, ctx, pool, "users"); n != 1 {
		t.Errorf("Expected default admin back after reseed, got %d users", n)
	}
}

func TestWatch_DeliversFreshSnapshotAfterCommit(t *testing.T) {
	pool, store, ctx := setupTestDB(t)
	seedInventory(t, ctx, pool)

	stockSvc := core.NewStockService(store)
	snapshot, updates, stop, err := stockSvc.WatchStockForProduct(ctx, 1)
	if err != nil {
		t.Fatalf("WatchStockForProduct failed: %v", err)
	}
	defer stop()

	if len(snapshot) != 0 {
		t.Errorf("Expected empty initial snapshot, got %d levels", len(snapshot))
	}

	if _, err := stockSvc.AdjustStock(ctx, 1, 1, 7, "initial count"); err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}

	select {
	case levels, ok := <-updates:
		if !ok {
			t.Fatal("Updates channel closed before delivering a snapshot")
		}
		if len(levels) != 1 {
			t.Fatalf("Expected 1 stock level in refreshed snapshot, got %d", len(levels))
		}
		if levels[0].Quantity != 7 {
			t.Errorf("Expected quantity 7 in refreshed snapshot, got %d", levels[0].Quantity)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("No snapshot delivered within 5s of the committed write")
	}
}
