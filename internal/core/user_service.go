package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

// Capability names one thing a user is allowed to do. The mapping from role
// to capability is a static table; admins implicitly hold everything.
type Capability string

const (
	CapManageCatalog Capability = "manage_catalog"
	CapAdjustStock   Capability = "adjust_stock"
	CapCreateOrders  Capability = "create_orders"
	CapViewReports   Capability = "view_reports"
	CapManageUsers   Capability = "manage_users"
	CapFactoryReset  Capability = "factory_reset"
)

var roleCapabilities = map[Role][]Capability{
	RoleManager: {CapManageCatalog, CapAdjustStock, CapCreateOrders, CapViewReports},
	RoleStaff:   {CapCreateOrders, CapViewReports},
}

// Can reports whether the role holds the capability.
func (r Role) Can(c Capability) bool {
	if r == RoleAdmin {
		return true
	}
	for _, held := range roleCapabilities[r] {
		if held == c {
			return true
		}
	}
	return false
}

// ErrInvalidCredentials deliberately does not distinguish a missing user
// from a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserService manages local accounts. Passwords are stored as bcrypt
// hashes; duplicate usernames surface as integrity errors from the store.
type UserService interface {
	CreateUser(ctx context.Context, username, fullName, password string, role Role) (*User, error)
	Authenticate(ctx context.Context, username, password string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	SetPassword(ctx context.Context, username, password string) error
}

type userService struct {
	store *Store
}

func NewUserService(store *Store) UserService {
	return &userService{store: store}
}

func (s *userService) CreateUser(ctx context.Context, username, fullName, password string, role Role) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, validationf("username", "username is required")
	}
	if len(password) < 6 {
		return nil, validationf("password", "password must be at least 6 characters")
	}
	switch role {
	case RoleAdmin, RoleManager, RoleStaff:
	default:
		return nil, validationf("role", "unknown role %q", role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var u User
	err = s.store.WithinTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO users (username, full_name, password_hash, role)
			VALUES ($1, $2, $3, $4)
			RETURNING id, username, full_name, password_hash, role, is_active, created_at
		`, username, fullName, string(hash), role).Scan(
			&u.ID, &u.Username, &u.FullName, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert user %s: %w", username, err)
		}
		return notifyChange(ctx, tx, "users")
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *userService) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := s.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *userService) GetByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.store.pool.QueryRow(ctx, `
		SELECT id, username, full_name, password_hash, role, is_active, created_at
		FROM users
		WHERE username = $1 AND is_active = true
	`, username).Scan(&u.ID, &u.Username, &u.FullName, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch user %s: %w", username, err)
	}
	return &u, nil
}

func (s *userService) SetPassword(ctx context.Context, username, password string) error {
	if len(password) < 6 {
		return validationf("password", "password must be at least 6 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return s.store.WithinTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE users
			SET password_hash = $1, updated_at = NOW(), sync_status = 'pending'
			WHERE username = $2
		`, string(hash), username)
		if err != nil {
			return fmt.Errorf("update password for %s: %w", username, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("user %s: %w", username, ErrNotFound)
		}
		return notifyChange(ctx, tx, "users")
	})
}
