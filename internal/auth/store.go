package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrUserNotFound    = errors.New("auth: user not found")
	ErrEmailTaken      = errors.New("auth: email already registered")
	ErrSessionNotFound = errors.New("auth: session not found")
	ErrResetNotFound   = errors.New("auth: reset token not found")
)

// UserRecord is the stored user row, hash included. Handlers never see it;
// they get the public User type instead.
type UserRecord struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionRecord is one refresh session. RefreshHash is the sha256 of the
// opaque token handed to the client.
type SessionRecord struct {
	ID          string
	UserID      string
	RefreshHash string
	UserAgent   string
	IP          string
	ExpiresAt   time.Time
}

// ResetRecord is a pending password reset.
type ResetRecord struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	Used      bool
}

// Store persists users, refresh sessions and password resets.
type Store interface {
	CreateUser(ctx context.Context, name, email, passwordHash string) (UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, id string) (UserRecord, error)
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	PaymentCustomerID(ctx context.Context, userID string) (string, error)
	SetPaymentCustomerID(ctx context.Context, userID, customerID string) error

	CreateSession(ctx context.Context, s SessionRecord) error
	GetSessionByHash(ctx context.Context, refreshHash string) (SessionRecord, error)
	RotateSession(ctx context.Context, sessionID, refreshHash string, expiresAt time.Time) error
	DeleteSessionByHash(ctx context.Context, refreshHash string) error
	DeleteSessionsByUser(ctx context.Context, userID string) error

	CreatePasswordReset(ctx context.Context, r ResetRecord) error
	GetPasswordReset(ctx context.Context, token string) (ResetRecord, error)
	UsePasswordReset(ctx context.Context, token string) error
}

type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore returns the Postgres-backed Store.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) CreateUser(ctx context.Context, name, email, passwordHash string) (UserRecord, error) {
	var u UserRecord
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, name, email, password_hash, created_at, updated_at`,
		name, email, passwordHash,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return UserRecord{}, ErrEmailTaken
		}
		return UserRecord{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *pgStore) GetUserByEmail(ctx context.Context, email string) (UserRecord, error) {
	return s.getUser(ctx, `WHERE email = $1`, email)
}

func (s *pgStore) GetUserByID(ctx context.Context, id string) (UserRecord, error) {
	return s.getUser(ctx, `WHERE id = $1`, id)
}

func (s *pgStore) getUser(ctx context.Context, where string, arg any) (UserRecord, error) {
	var u UserRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at, updated_at FROM users `+where, arg,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *pgStore) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *pgStore) PaymentCustomerID(ctx context.Context, userID string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(payment_customer_id, '') FROM users WHERE id = $1`, userID,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("get payment customer: %w", err)
	}
	return id, nil
}

func (s *pgStore) SetPaymentCustomerID(ctx context.Context, userID, customerID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET payment_customer_id = $2, updated_at = now() WHERE id = $1`, userID, customerID)
	if err != nil {
		return fmt.Errorf("set payment customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *pgStore) CreateSession(ctx context.Context, sess SessionRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, refresh_hash, user_agent, ip, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.ID, sess.UserID, sess.RefreshHash, sess.UserAgent, sess.IP, sess.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *pgStore) GetSessionByHash(ctx context.Context, refreshHash string) (SessionRecord, error) {
	var sess SessionRecord
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, refresh_hash, user_agent, ip, expires_at
		FROM sessions WHERE refresh_hash = $1`, refreshHash,
	).Scan(&sess.ID, &sess.UserID, &sess.RefreshHash, &sess.UserAgent, &sess.IP, &sess.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SessionRecord{}, ErrSessionNotFound
		}
		return SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *pgStore) RotateSession(ctx context.Context, sessionID, refreshHash string, expiresAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET refresh_hash = $2, expires_at = $3 WHERE id = $1`,
		sessionID, refreshHash, expiresAt)
	if err != nil {
		return fmt.Errorf("rotate session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *pgStore) DeleteSessionByHash(ctx context.Context, refreshHash string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE refresh_hash = $1`, refreshHash)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *pgStore) DeleteSessionsByUser(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	return nil
}

func (s *pgStore) CreatePasswordReset(ctx context.Context, r ResetRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)`, r.Token, r.UserID, r.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *pgStore) GetPasswordReset(ctx context.Context, token string) (ResetRecord, error) {
	var r ResetRecord
	err := s.pool.QueryRow(ctx, `
		SELECT token, user_id, expires_at, used_at IS NOT NULL
		FROM password_resets WHERE token = $1`, token,
	).Scan(&r.Token, &r.UserID, &r.ExpiresAt, &r.Used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ResetRecord{}, ErrResetNotFound
		}
		return ResetRecord{}, fmt.Errorf("get password reset: %w", err)
	}
	return r, nil
}

func (s *pgStore) UsePasswordReset(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE password_resets SET used_at = now() WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("use password reset: %w", err)
	}
	return nil
}
