package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// DefaultLocationName is the stock location seeded on first run.
const DefaultLocationName = "Main Warehouse"

// Default admin account seeded on first run. The password must be changed
// through the user service before the store is used for anything real.
const (
	defaultAdminUsername = "admin"
	defaultAdminPassword = "admin123"
)

// changeChannel is the Postgres NOTIFY channel carrying table-change events.
// Notifications fired inside a transaction are delivered only on commit, so
// subscribers never observe in-flight state.
const changeChannel = "ledger_changed"

// pgxQuerier is satisfied by *pgxpool.Pool, pgx.Tx, and pgx.Conn, enabling
// shared query helpers across transactional and standalone call paths.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the single shared handle to durable state. It owns the
// connection pool and the change-notification listener; every engine
// receives it by reference instead of reaching for global state.
type Store struct {
	pool     *pgxpool.Pool
	notifier *notifier
	log      logrus.FieldLogger
	cancel   context.CancelFunc
	done     chan struct{}
}

// Open wires a Store around an existing pool and starts the change
// listener on a dedicated connection. Close releases the listener; the
// pool itself stays owned by the caller.
func Open(ctx context.Context, pool *pgxpool.Pool, log logrus.FieldLogger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listener connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+changeChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen on %s: %w", changeChannel, err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	s := &Store{
		pool:     pool,
		notifier: newNotifier(),
		log:      log,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.listen(listenCtx, conn)
	return s, nil
}

// Close stops the change listener and tears down all live subscriptions.
// It does not close the pool.
func (s *Store) Close() {
	s.cancel()
	<-s.done
	s.notifier.closeAll()
}

// Pool exposes the underlying pool for read paths that manage their own
// queries.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// listen pumps NOTIFY payloads (table names) into the in-process notifier
// until the store is closed.
func (s *Store) listen(ctx context.Context, conn *pgxpool.Conn) {
	defer close(s.done)
	defer conn.Release()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.WithError(err).Warn("change listener stopped")
			return
		}
		s.notifier.dispatch(n.Payload)
	}
}

// WithinTx is the transactional-unit primitive: it groups multiple writes so
// they either all commit or none do. Any error from fn rolls the whole unit
// back and is returned unchanged; commit failures are wrapped.
func (s *Store) WithinTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// notifyChange queues a table-change notification inside the current
// transaction. Postgres delivers it to listeners only if the transaction
// commits, which is exactly the visibility contract live queries need.
func notifyChange(ctx context.Context, q pgxQuerier, tables ...string) error {
	for _, table := range tables {
		if _, err := q.Exec(ctx, "SELECT pg_notify($1, $2)", changeChannel, table); err != nil {
			return fmt.Errorf("notify change on %s: %w", table, err)
		}
	}
	return nil
}

// EnsureSeed creates the default stock location and admin account if the
// store is empty of them. Called at initialization and after a factory
// reset.
func (s *Store) EnsureSeed(ctx context.Context) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(defaultAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash default admin password: %w", err)
	}

	return s.WithinTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO stock_locations (name, description)
			VALUES ($1, 'Default location')
			ON CONFLICT (name) DO NOTHING
		`, DefaultLocationName); err != nil {
			return fmt.Errorf("seed default location: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO users (username, full_name, password_hash, role)
			VALUES ($1, 'Administrator', $2, 'admin')
			ON CONFLICT (username) DO NOTHING
		`, defaultAdminUsername, string(hash)); err != nil {
			return fmt.Errorf("seed default admin: %w", err)
		}

		return notifyChange(ctx, tx, "stock_locations", "users")
	})
}

// resetTables lists every table in child-before-parent order so the factory
// reset never trips a foreign key.
var resetTables = []string{
	"sales_order_items",
	"payments",
	"stock_movements",
	"sales_orders",
	"stock_levels",
	"products",
	"expenses",
	"customers",
	"notifications",
	"categories",
	"stock_locations",
	"users",
}

// FactoryReset deletes every row from every table in one atomic unit,
// leaving the store empty. Re-seeding is EnsureSeed's job, deferred to the
// caller so initialization stays in one place.
func (s *Store) FactoryReset(ctx context.Context) error {
	return s.WithinTx(ctx, func(tx pgx.Tx) error {
		for _, table := range resetTables {
			if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return notifyChange(ctx, tx, resetTables...)
	})
}
