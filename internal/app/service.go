// Package app is the composition root: it wires the store and every engine
// together and owns their lifecycle. UI adapters and the cmd binaries talk
// to this facade; it contains no display logic of any kind.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"pos-core/internal/core"
)

// Service bundles the engines around one shared store handle.
type Service struct {
	Store     *core.Store
	Stock     core.StockService
	Orders    core.OrderService
	Reports   core.ReportingService
	Catalog   core.CatalogService
	Users     core.UserService
	Export    core.ExportService
	Documents core.DocumentService
}

// New opens the store on the given pool, seeds the defaults (location and
// admin account) if missing, and constructs every service. The caller
// closes the Service before closing the pool.
func New(ctx context.Context, pool *pgxpool.Pool, log logrus.FieldLogger) (*Service, error) {
	store, err := core.Open(ctx, pool, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.EnsureSeed(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("seed store: %w", err)
	}

	orders := core.NewOrderService(store)
	return &Service{
		Store:     store,
		Stock:     core.NewStockService(store),
		Orders:    orders,
		Reports:   core.NewReportingService(store),
		Catalog:   core.NewCatalogService(store),
		Users:     core.NewUserService(store),
		Export:    core.NewExportService(store),
		Documents: core.NewDocumentService(store, orders),
	}, nil
}

// Close tears down the change listener and all live subscriptions. The
// pool stays open; it belongs to the caller.
func (s *Service) Close() {
	s.Store.Close()
}
