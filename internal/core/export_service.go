package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// TableDump is one entity table flattened to ordered records, ready for a
// line-based serializer (the CSV command feeds it straight into
// encoding/csv). Values are pre-serialized strings; quoting and escaping
// belong to the output format, not here.
type TableDump struct {
	Table   string
	Columns []string
	Rows    [][]string
}

// exportableTables whitelists what can be dumped and fixes the column
// order. users deliberately omits password_hash.
var exportableTables = map[string][]string{
	"categories":        {"id", "name", "description", "created_at", "updated_at", "sync_status"},
	"products":          {"id", "sku", "name", "description", "category_id", "barcode", "unit", "cost_price", "selling_price", "min_stock_level", "max_stock_level", "is_active", "is_favorite", "created_at", "updated_at", "sync_status"},
	"stock_locations":   {"id", "name", "description", "created_at", "updated_at", "sync_status"},
	"stock_levels":      {"id", "product_id", "location_id", "quantity", "created_at", "updated_at", "sync_status"},
	"stock_movements":   {"id", "product_id", "location_id", "delta", "reason", "order_id", "created_at", "updated_at", "sync_status"},
	"customers":         {"id", "name", "email", "phone", "address", "credit_limit", "created_at", "updated_at", "sync_status"},
	"sales_orders":      {"id", "customer_id", "total_amount", "discount_amount", "status", "payment_status", "due_date", "created_at", "updated_at", "sync_status"},
	"sales_order_items": {"id", "order_id", "product_id", "quantity", "unit_price", "discount", "created_at", "updated_at", "sync_status"},
	"payments":          {"id", "order_id", "amount", "method", "paid_at", "created_at", "updated_at", "sync_status"},
	"expenses":          {"id", "category", "amount", "description", "expense_date", "receipt_ref", "created_at", "updated_at", "sync_status"},
	"users":             {"id", "username", "full_name", "role", "is_active", "created_at", "updated_at", "sync_status"},
	"notifications":     {"id", "title", "body", "is_read", "created_at", "updated_at", "sync_status"},
}

// ExportableTables returns the dumpable table names, sorted.
func ExportableTables() []string {
	names := make([]string, 0, len(exportableTables))
	for name := range exportableTables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExportService dumps entity tables as flat records for external
// serializers (CSV, spreadsheets, sync debugging).
type ExportService interface {
	DumpTable(ctx context.Context, table string) (*TableDump, error)
}

type exportService struct {
	store *Store
}

func NewExportService(store *Store) ExportService {
	return &exportService{store: store}
}

func (s *exportService) DumpTable(ctx context.Context, table string) (*TableDump, error) {
	columns, ok := exportableTables[table]
	if !ok {
		return nil, validationf("table", "table %q is not exportable", table)
	}

	// to_jsonb sidesteps per-column scan targets: every row arrives as one
	// JSON object keyed by column name. The table name is whitelisted above,
	// never caller-controlled SQL.
	rows, err := s.store.pool.Query(ctx, fmt.Sprintf("SELECT to_jsonb(t) FROM %s t ORDER BY t.id", table))
	if err != nil {
		return nil, fmt.Errorf("dump %s: %w", table, err)
	}
	defer rows.Close()

	dump := &TableDump{Table: table, Columns: columns}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}

		record := make(map[string]json.RawMessage)
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, fmt.Errorf("decode %s row: %w", table, err)
		}

		out := make([]string, len(columns))
		for i, col := range columns {
			out[i] = flattenValue(record[col])
		}
		dump.Rows = append(dump.Rows, out)
	}
	return dump, rows.Err()
}

// flattenValue turns one JSON-encoded column value into its flat string
// form: nulls become empty, strings are unquoted, numbers and booleans pass
// through as written.
func flattenValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}
