package core_test

import (
	"testing"

	"pos-core/internal/core"

	"github.com/shopspring/decimal"
)

func TestExport_DumpProducts(t *testing.T) {
	pool, store, ctx := setupTestDB(t)
	seedInventory(t, ctx, pool)

	exportSvc := core.NewExportService(store)
	dump, err := exportSvc.DumpTable(ctx, "products")
	if err != nil {
		t.Fatalf("DumpTable failed: %v", err)
	}

	if dump.Table != "products" {
		t.Errorf("Expected table name products, got %s", dump.Table)
	}
	if len(dump.Rows) != 2 {
		t.Fatalf("Expected 2 product rows, got %d", len(dump.Rows))
	}
	for _, row := range dump.Rows {
		if len(row) != len(dump.Columns) {
			t.Fatalf("Row width %d does not match %d columns", len(row), len(dump.Columns))
		}
	}

	skuIdx := -1
	for i, col := range dump.Columns {
		if col == "sku" {
			skuIdx = i
		}
		if col == "password_hash" {
			t.Error("password_hash must never appear in a dump")
		}
	}
	if skuIdx < 0 {
		t.Fatal("Expected an sku column in the products dump")
	}
	// Rows come back ordered by id.
	if dump.Rows[0][skuIdx] != "SKU-001" || dump.Rows[1][skuIdx] != "SKU-002" {
		t.Errorf("Unexpected sku values: %s, %s", dump.Rows[0][skuIdx], dump.Rows[1][skuIdx])
	}
}

func TestExport_UsersOmitPasswordHash(t *testing.T) {
	_, store, ctx := setupTestDB(t)

	if err := store.EnsureSeed(ctx); err != nil {
		t.Fatalf("EnsureSeed failed: %v", err)
	}

	dump, err := core.NewExportService(store).DumpTable(ctx, "users")
	if err != nil {
		t.Fatalf("DumpTable failed: %v", err)
	}
	for _, col := range dump.Columns {
		if col == "password_hash" {
			t.Fatal("users dump leaks password_hash")
		}
	}
	if len(dump.Rows) != 1 {
		t.Errorf("Expected the seeded admin row, got %d rows", len(dump.Rows))
	}
}

func TestExport_UnknownTableRejected(t *testing.T) {
	_, store, ctx := setupTestDB(t)

	_, err := core.NewExportService(store).DumpTable(ctx, "pg_shadow")
	if !core.IsValidation(err) {
		t.Errorf("Expected validation error for a non-whitelisted table, got %v", err)
	}
}

func TestDocument_OrderDocument(t *testing.T) {
	pool, store, ctx := setupTestDB(t)
	seedInventory(t, ctx, pool)

	stockSvc := core.NewStockService(store)
	orderSvc := core.NewOrderService(store)
	catalogSvc := core.NewCatalogService(store)
	docSvc := core.NewDocumentService(store, orderSvc)

	if _, err := stockSvc.AdjustStock(ctx, 1, 1, 10, "initial count"); err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}
	customer, err := catalogSvc.CreateCustomer(ctx, core.Customer{Name: "Walk In Regular"})
	if err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}

	order, err := orderSvc.CreateSalesOrder(ctx, core.CreateOrderInput{
		CustomerID: &customer.ID,
		Items: []core.OrderItemInput{
			{ProductID: 1, LocationID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(25)},
		},
		PaymentStatus: core.PaymentPaid,
	})
	if err != nil {
		t.Fatalf("CreateSalesOrder failed: %v", err)
	}

	doc, err := docSvc.OrderDocument(ctx, order.ID)
	if err != nil {
		t.Fatalf("OrderDocument failed: %v", err)
	}
	if doc.CustomerName != "Walk In Regular" {
		t.Errorf("Expected customer name on the document, got %q", doc.CustomerName)
	}
	if len(doc.Items) != 1 || doc.Items[0].ProductName != "Drip Coffee Beans" {
		t.Errorf("Unexpected document items: %+v", doc.Items)
	}
	if len(doc.Payments) != 1 {
		t.Errorf("Expected 1 payment on the document, got %d", len(doc.Payments))
	}
	if !doc.Balance.IsZero() {
		t.Errorf("Expected zero balance on a paid sale, got %s", doc.Balance)
	}
}

func TestDocument_DeletedCustomerRendersWalkIn(t *testing.T) {
	pool, store, ctx := setupTestDB(t)
	seedInventory(t, ctx, pool)

	stockSvc := core.NewStockService(store)
	orderSvc := core.NewOrderService(store)
	catalogSvc := core.NewCatalogService(store)
	docSvc := core.NewDocumentService(store, orderSvc)

	if _, err := stockSvc.AdjustStock(ctx, 1, 1, 5, "initial count"); err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}
	customer, err := catalogSvc.CreateCustomer(ctx, core.Customer{Name: "Soon Gone"})
	if err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}
	order, err := orderSvc.CreateSalesOrder(ctx, core.CreateOrderInput{
		CustomerID: &customer.ID,
		Items: []core.OrderItemInput{
			{ProductID: 1, LocationID: 1, Quantity: 1, UnitPrice: decimal.NewFromInt(25)},
		},
	})
	if err != nil {
		t.Fatalf("CreateSalesOrder failed: %v", err)
	}

	if err := catalogSvc.DeleteCustomer(ctx, customer.ID); err != nil {
		t.Fatalf("DeleteCustomer failed: %v", err)
	}

	// The order's customer reference is nulled, so the document must still
	// assemble without error and read like a walk-in sale.
	doc, err := docSvc.OrderDocument(ctx, order.ID)
	if err != nil {
		t.Fatalf("OrderDocument after customer delete failed: %v", err)
	}
	if doc.CustomerName != "" {
		t.Errorf("Expected blank customer name after delete, got %q", doc.CustomerName)
	}
	if len(doc.Items) != 1 || len(doc.Payments) != 1 {
		t.Errorf("Document lost detail rows: %d items, %d payments", len(doc.Items), len(doc.Payments))
	}
}

func TestDocument_WalkInSale(t *testing.T) {
	pool, store, ctx := setupTestDB(t)
	seedInventory(t, ctx, pool)

	stockSvc := core.NewStockService(store)
	orderSvc := core.NewOrderService(store)
	docSvc := core.NewDocumentService(store, orderSvc)

	if _, err := stockSvc.AdjustStock(ctx, 1, 1, 5, "initial count"); err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}

	order, err := orderSvc.CreateSalesOrder(ctx, core.CreateOrderInput{
		Items: []core.OrderItemInput{
			{ProductID: 1, LocationID: 1, Quantity: 1, UnitPrice: decimal.NewFromInt(25)},
		},
	})
	if err != nil {
		t.Fatalf("CreateSalesOrder failed: %v", err)
	}

	doc, err := docSvc.OrderDocument(ctx, order.ID)
	if err != nil {
		t.Fatalf("OrderDocument failed: %v", err)
	}
	if doc.CustomerName != "" {
		t.Errorf("Expected blank customer name on a walk-in sale, got %q", doc.CustomerName)
	}
}
