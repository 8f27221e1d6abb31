package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrStoreUnavailable indicates the order store dependency is not configured.
	ErrStoreUnavailable = errors.New("order: store unavailable")
	// ErrNotFound indicates the order does not exist or belongs to another user.
	ErrNotFound = errors.New("order: not found")
	// ErrDuplicatePayment indicates an order already exists for the payment reference.
	ErrDuplicatePayment = errors.New("order: payment already recorded")
)

// Store provides database accessors for orders.
type Store interface {
	Insert(ctx context.Context, o Order) (Order, error)
	Get(ctx context.Context, userID string, id uuid.UUID) (Order, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Order, error)
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

// Insert persists an order with its line snapshot. The unique index on
// payment_ref makes a replayed confirmation surface as ErrDuplicatePayment
// instead of a second order.
func (s *pgStore) Insert(ctx context.Context, o Order) (Order, error) {
	if s == nil || s.pool == nil {
		return Order{}, ErrStoreUnavailable
	}
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return Order{}, fmt.Errorf("order: encode lines: %w", err)
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO orders (user_id, status, currency, charge_total, pay_later, promo_code, payment_ref, lines)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at`,
		o.UserID, o.Status, o.Currency, o.ChargeTotal, o.PayLater, o.PromoCode, o.PaymentRef, lines)
	if err := row.Scan(&o.ID, &o.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Order{}, ErrDuplicatePayment
		}
		return Order{}, err
	}
	return o, nil
}

// Get fetches one order scoped to its owner.
func (s *pgStore) Get(ctx context.Context, userID string, id uuid.UUID) (Order, error) {
	if s == nil || s.pool == nil {
		return Order{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT id, user_id, status, currency, charge_total, pay_later, promo_code, payment_ref, lines, created_at
FROM orders WHERE id = $1 AND user_id = $2`, id, userID)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	return o, nil
}

// ListByUser fetches a user's order history, newest first.
func (s *pgStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Order, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pool.Query(ctx, `SELECT id, user_id, status, currency, charge_total, pay_later, promo_code, payment_ref, lines, created_at
FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]Order, 0, limit)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var lines []byte
	if err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.Currency, &o.ChargeTotal, &o.PayLater, &o.PromoCode, &o.PaymentRef, &lines, &o.CreatedAt); err != nil {
		return Order{}, err
	}
	if len(lines) > 0 {
		if err := json.Unmarshal(lines, &o.Lines); err != nil {
			return Order{}, fmt.Errorf("order: decode lines: %w", err)
		}
	}
	return o, nil
}
