package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/ndunguloren96/ltronix-shop/internal/domain"
	"github.com/ndunguloren96/ltronix-shop/internal/guest"
	"github.com/ndunguloren96/ltronix-shop/internal/session"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	keyGuest  = "guest_session_key"
	keyToken  = "access_token"
	keyCartID = "cart_id"
)

// Repository keeps the client state that must survive a restart: the guest
// key, the bearer token and the cart.
type Repository struct {
	db *sql.DB
}

type RepoInterface interface {
	guest.KeyStore
	session.TokenSource
	LoadCart(ctx context.Context) (domain.Cart, error)
	SaveCart(ctx context.Context, cart domain.Cart) error
	RunMigrations() error
	Close() error
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// a single writer keeps :memory: databases on one connection
	db.SetMaxOpenConns(1)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations() error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) LoadGuestKey(ctx context.Context) (string, error) {
	v, err := r.get(ctx, keyGuest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", guest.ErrNoKey
	}
	return v, err
}

func (r *Repository) SaveGuestKey(ctx context.Context, key string) error {
	return r.put(ctx, keyGuest, key)
}

func (r *Repository) DeleteGuestKey(ctx context.Context) error {
	return r.delete(ctx, keyGuest)
}

func (r *Repository) LoadToken(ctx context.Context) (string, error) {
	v, err := r.get(ctx, keyToken)
	if errors.Is(err, sql.ErrNoRows) {
		return "", session.ErrNoToken
	}
	return v, err
}

func (r *Repository) SaveToken(ctx context.Context, token string) error {
	return r.put(ctx, keyToken, token)
}

func (r *Repository) DeleteToken(ctx context.Context) error {
	return r.delete(ctx, keyToken)
}

// LoadCart returns an empty cart when nothing was saved.
func (r *Repository) LoadCart(ctx context.Context) (domain.Cart, error) {
	var c domain.Cart

	id, err := r.get(ctx, keyCartID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return c, err
	default:
		if c.ID, err = strconv.ParseInt(id, 10, 64); err != nil {
			return c, fmt.Errorf("failed to parse cart id: %w", err)
		}
	}

	query := `
		SELECT product_id, name, unit_price, quantity
		FROM cart_items
		ORDER BY position
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return c, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item  domain.CartItem
			price string
		)
		if err := rows.Scan(&item.ProductID, &item.Name, &price, &item.Quantity); err != nil {
			return c, fmt.Errorf("failed to scan cart item: %w", err)
		}
		if item.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return c, fmt.Errorf("failed to parse price of product %d: %w", item.ProductID, err)
		}
		c.Items = append(c.Items, item)
	}

	if err := rows.Err(); err != nil {
		return c, fmt.Errorf("row iteration error: %w", err)
	}
	return c, nil
}

// SaveCart replaces the stored cart in one transaction.
func (r *Repository) SaveCart(ctx context.Context, c domain.Cart) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM cart_items`); err != nil {
		return fmt.Errorf("failed to clear cart items: %w", err)
	}
	for i, item := range c.Items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO cart_items (position, product_id, name, unit_price, quantity) VALUES (?, ?, ?, ?, ?)`,
			i, item.ProductID, item.Name, item.UnitPrice.String(), item.Quantity)
		if err != nil {
			return fmt.Errorf("failed to insert product %d: %w", item.ProductID, err)
		}
	}

	if c.ID == 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM client_state WHERE name = ?`, keyCartID)
	} else {
		_, err = tx.ExecContext(ctx, upsertState, keyCartID, strconv.FormatInt(c.ID, 10))
	}
	if err != nil {
		return fmt.Errorf("failed to save cart id: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cart: %w", err)
	}
	return nil
}

const upsertState = `
	INSERT INTO client_state (name, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`

func (r *Repository) get(ctx context.Context, name string) (string, error) {
	var v string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM client_state WHERE name = ?`, name).Scan(&v)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return v, err
}

func (r *Repository) put(ctx context.Context, name, value string) error {
	if _, err := r.db.ExecContext(ctx, upsertState, name, value); err != nil {
		return fmt.Errorf("failed to save %s: %w", name, err)
	}
	return nil
}

func (r *Repository) delete(ctx context.Context, name string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM client_state WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}
