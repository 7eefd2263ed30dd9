package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// OrderDocument is the plain data shape an external renderer (receipt PDF,
// invoice template) consumes: the order, its items with product names, its
// payments, and the live balance. No markup is produced here.
type OrderDocument struct {
	Order        SalesOrder
	CustomerName string // empty for walk-in sales
	Items        []OrderItemView
	Payments     []Payment
	Balance      decimal.Decimal
}

// DocumentService assembles renderer-ready views of ledger entities.
type DocumentService interface {
	OrderDocument(ctx context.Context, orderID int) (*OrderDocument, error)
}

type documentService struct {
	store  *Store
	orders OrderService
}

func NewDocumentService(store *Store, orders OrderService) DocumentService {
	return &documentService{store: store, orders: orders}
}

func (s *documentService) OrderDocument(ctx context.Context, orderID int) (*OrderDocument, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	doc := &OrderDocument{Order: *order}

	if order.CustomerID != nil {
		// A missing customer renders like a walk-in sale; any other store
		// failure surfaces to the caller.
		lookupErr := s.store.pool.QueryRow(ctx,
			"SELECT name FROM customers WHERE id = $1", *order.CustomerID,
		).Scan(&doc.CustomerName)
		if lookupErr != nil && !errors.Is(lookupErr, pgx.ErrNoRows) {
			return nil, fmt.Errorf("fetch customer %d: %w", *order.CustomerID, lookupErr)
		}
	}

	if doc.Items, err = s.orders.GetOrderItems(ctx, orderID); err != nil {
		return nil, err
	}
	if doc.Payments, err = s.orders.GetPaymentsForOrder(ctx, orderID); err != nil {
		return nil, err
	}
	if doc.Balance, err = s.orders.OrderBalance(ctx, orderID); err != nil {
		return nil, err
	}
	return doc, nil
}
