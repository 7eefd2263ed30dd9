package core_test

import (
	"errors"
	"testing"

	"pos-core/internal/core"
)

func TestStock_AdjustCreatesLevelLazily(t *testing.T) {
	pool, store, ctx := setupTestDB(t)
	seedInventory(t, ctx, pool)

	stockSvc := core.NewStockService(store)

	if n := countRows(t, ctx, pool, "stock_levels"); n != 0 {
		t.Fatalf("Expected no stock levels before first adjustment, got %d", n)
	}

	level, err := stockSvc.AdjustStock(ctx, 1, 1, 10, "initial count")
	if err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}
	if level.Quantity != 10 {
		t.Errorf("Expected quantity 10 after first adjustment, got %d", level.Quantity)
	}

	// Second adjustment hits the same row, not a new one.
	level, err = stockSvc.AdjustStock(ctx, 1, 1, 5, "restock")
	if err != nil {
		t.Fatalf("Second AdjustStock failed: %v", err)
	}
	if level.Quantity != 15 {
		t.Errorf("Expected quantity 15 after second adjustment, got %d", level.Quantity)
	}
	if n := countRows(t, ctx, pool, "stock_levels"); n != 1 {
		t.Errorf("Expected 1 stock level row, got %d", n)
	}
	if n := countRows(t, ctx, pool, "stock_movements"); n != 2 {
		t.Errorf("Expected 2 movement rows, got %d", n)
	}
}

func TestStock_AdjustmentMayGoNegative(t *testing.T) {
	pool, store, ctx := setupTestDB(t)
	seedInventory(t, ctx, pool)

	stockSvc := core.NewStockService(store)

	// A count correction can record less than zero on hand.
	level, err := stockSvc.AdjustStock(ctx, 1, 1, -3, "shrinkage")
	if err != nil {
		t.Fatalf("Negative adjustment failed: %v", err)
	}
	if level.Quantity != -3 {
		t.Errorf("Expected quantity -3, got %d", level.Quantity)
	}

	// The inverse adjustment restores zero.
	level, err = stockSvc.AdjustStock(ctx, 1, 1, 3, "recount")
	if err != nil {
		t.Fatalf("Inverse adjustment failed: %v", err)
	}
	if level.Quantity != 0 {
		t.Errorf("Expected quantity 0 after inverse, got %d", level.Quantity)
	}
}

func TestStock_TransferConservesTotal(t *testing.T) {
	pool, store, ctx := setupTestDB(t)
	seedInventory(t, ctx, pool)

	stockSvc := core.NewStockService(store)
	if _, err := stockSvc.AdjustStock(ctx, 1, 1, 10, "initial count"); err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}

	if err := stockSvc.TransferStock(ctx, 1, 1, 2, 4); err != nil {
		t.Fatalf("TransferStock failed: %v", err)
	}

	src := stockQuantity(t, ctx, pool, 1, 1)
	dst := stockQuantity(t, ctx, pool, 1, 2)
	if src != 6 || dst != 4 {
		t.Errorf("Expected 6 at source and 4 at destination, got %d and %d", src, dst)
	}
	if src+dst != 10 {
		t.Errorf("Transfer changed the total: %d + %d != 10", src, dst)
	}

	// One debit and one credit movement on top of the initial adjustment.
	if n := countRows(t, ctx, pool, "stock_movements"); n != 3 {
		t.Errorf("Expected 3 movement rows, got %d", n)
	}
}

func TestStock_TransferRollsBackBothLegs(t *testing.T) {
	pool, store, ctx := setupTestDB(t)
	seedInventory(t, ctx, pool)

	stockSvc := core.NewStockService(store)
	if _, err := stockSvc.AdjustStock(ctx, 1, 1, 10, "initial count"); err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}

	// Location 9999 does not exist, so the credit leg violates a foreign
	// key. The debit leg must roll back with it.
	err := stockSvc.TransferStock(ctx, 1, 1, 9999, 4)
	if err == nil {
		t.Fatal("Expected transfer to a missing location to fail")
	}

	if qty := stockQuantity(t, ctx, pool, 1, 1); qty != 10 {
		t.Errorf("Expected source untouched at 10 after failed transfer, got %d", qty)
	}
	if n := countRows(t, ctx, pool, "stock_movements"); n != 1 {
		t.Errorf("Expected only the initial movement row, got %d", n)
	}
}

func TestStock_TransferValidation(t *testing.T) {
	_, store, ctx := setupTestDB(t)

	stockSvc := core.NewStockService(store)

	if err := stockSvc.TransferStock(ctx, 1, 1, 2, 0); !core.IsValidation(err) {
		t.Errorf("Expected validation error for zero quantity, got %v", err)
	}
	if err := stockSvc.TransferStock(ctx, 1, 1, 1, 5); !core.IsValidation(err) {
		t.Errorf("Expected validation error for same-location transfer, got %v", err)
	}
}

func TestStock_LowStockBoundary(t *testing.T) {
	pool, store, ctx := setupTestDB(t)
	seedInventory(t, ctx, pool)

	stockSvc := core.NewStockService(store)

	// Product 1 has min_stock_level 5. At 4 on hand it is flagged.
	if _, err := stockSvc.AdjustStock(ctx, 1, 1, 4, "initial count"); err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}

	low, err := stockSvc.LowStockProducts(ctx)
	if err != nil {
		t.Fatalf("LowStockProducts failed: %v", err)
	}
	if len(low) != 1 {
		t.Fatalf("Expected 1 low stock product at 4 < 5, got %d", len(low))
	}
	if low[0].SKU != "SKU-001" || low[0].TotalQuantity != 4 {
		t.Errorf("Unexpected low stock entry: %+v", low[0])
	}

	// At exactly the threshold the product is no longer low.
	if _, err := stockSvc.AdjustStock(ctx, 1, 1, 1, "restock"); err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}
	low, err = stockSvc.LowStockProducts(ctx)
	if err != nil {
		t.Fatalf("LowStockProducts failed: %v", err)
	}
	if len(low) != 0 {
		t.Errorf("Expected no low stock products at 5 >= 5, got %d", len(low))
	}

	// Product 2 has a zero threshold and never flags, even with no stock.
	for _, p := range low {
		if p.SKU == "SKU-002" {
			t.Error("Product with zero min_stock_level must never be flagged")
		}
	}
}

func TestStock_LevelsSpanLocations(t *testing.T) {
	pool, store, ctx := setupTestDB(t)
	seedInventory(t, ctx, pool)

	stockSvc := core.NewStockService(store)
	if _, err := stockSvc.AdjustStock(ctx, 1, 1, 8, "initial count"); err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}
	if _, err := stockSvc.AdjustStock(ctx, 1, 2, 2, "initial count"); err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}

	levels, err := stockSvc.GetStockForProduct(ctx, 1)
	if err != nil {
		t.Fatalf("GetStockForProduct failed: %v", err)
	}
	if len(levels) != 2 {
		t.Fatalf("Expected 2 levels across locations, got %d", len(levels))
	}
	total := 0
	for _, l := range levels {
		total += l.Quantity
		if l.LocationName == "" {
			t.Error("Expected location name to be joined in")
		}
	}
	if total != 10 {
		t.Errorf("Expected total 10 across locations, got %d", total)
	}
}

func TestStock_DeductionViaOrderRejectsShortfall(t *testing.T) {
	pool, store, ctx := setupTestDB(t)
	seedInventory(t, ctx, pool)

	stockSvc := core.NewStockService(store)
	orderSvc := core.NewOrderService(store)
	if _, err := stockSvc.AdjustStock(ctx, 1, 1, 2, "initial count"); err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}

	_, err := orderSvc.CreateSalesOrder(ctx, core.CreateOrderInput{
		Items: []core.OrderItemInput{
			{ProductID: 1, LocationID: 1, Quantity: 3, UnitPrice: priceOf(t, ctx, pool, 1)},
		},
	})
	if !errors.Is(err, core.ErrInsufficientStock) {
		t.Fatalf("Expected ErrInsufficientStock, got %v", err)
	}

	// Nothing committed: stock and order tables untouched.
	if qty := stockQuantity(t, ctx, pool, 1, 1); qty != 2 {
		t.Errorf("Expected stock untouched at 2, got %d", qty)
	}
	if n := countRows(t, ctx, pool, "sales_orders"); n != 0 {
		t.Errorf("Expected no order rows, got %d", n)
	}
}
