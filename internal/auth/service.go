// Package auth issues and validates access tokens for registered students.
// Guests can browse and fill a basket without an account; checkout for a
// credit-backed basket is where authentication becomes mandatory.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-dansa/internal/common"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour
	defaultResetTTL   = 24 * time.Hour
)

// Service coordinates registration, login and token lifecycle.
type Service struct {
	store      Store
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
	now        func() time.Time
	signer     jwa.SignatureAlgorithm
	validator  TokenValidator
	issuer     string
	audience   string
	clockSkew  time.Duration
}

// Config configures the auth service.
type Config struct {
	Store           Store
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ResetTokenTTL   time.Duration
	Issuer          string
	Audience        string
	ClockSkew       time.Duration
}

// User is the public view of an account.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// LoginResult bundles the token material issued after a successful login.
type LoginResult struct {
	User          User      `json:"user"`
	AccessToken   string    `json:"accessToken"`
	RefreshToken  string    `json:"refreshToken"`
	AccessExpiry  time.Time `json:"accessExpiresAt"`
	RefreshExpiry time.Time `json:"refreshExpiresAt"`
}

// RefreshResult is the outcome of a refresh rotation.
type RefreshResult struct {
	AccessToken   string    `json:"accessToken"`
	AccessExpiry  time.Time `json:"accessExpiresAt"`
	RefreshToken  string    `json:"refreshToken"`
	RefreshExpiry time.Time `json:"refreshExpiresAt"`
}

// NewService constructs a Service with sane defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("auth: store is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	resetTTL := cfg.ResetTokenTTL
	if resetTTL <= 0 {
		resetTTL = defaultResetTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "backend-dansa"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "dansa-frontend"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}

	return &Service{
		store:      cfg.Store,
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		resetTTL:   resetTTL,
		now:        time.Now,
		signer:     jwa.HS256,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: clockSkew,
			Algorithm: jwa.HS256,
		},
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
	}, nil
}

// WithNow lets tests override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Register creates a new account.
func (s *Service) Register(ctx context.Context, name, email, password string) (User, error) {
	if strings.TrimSpace(name) == "" {
		return User{}, common.NewAppError(common.CodeBadRequest, "name is required", http.StatusBadRequest, nil)
	}
	normalized := strings.TrimSpace(strings.ToLower(email))
	if normalized == "" {
		return User{}, common.NewAppError(common.CodeBadRequest, "email is required", http.StatusBadRequest, nil)
	}
	if len(password) < 8 {
		return User{}, common.NewAppError(common.CodeBadRequest, "password must be at least 8 characters", http.StatusBadRequest, nil)
	}

	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	created, err := s.store.CreateUser(ctx, strings.TrimSpace(name), normalized, hash)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return User{}, common.NewAppError("EMAIL_ALREADY_USED", "email is already registered", http.StatusConflict, err)
		}
		return User{}, err
	}
	return publicUser(created), nil
}

// Login verifies credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password, userAgent, ip string) (LoginResult, error) {
	normalized := strings.TrimSpace(strings.ToLower(email))
	if normalized == "" || password == "" {
		return LoginResult{}, invalidCredentials(nil)
	}
	rec, err := s.store.GetUserByEmail(ctx, normalized)
	if err != nil {
		return LoginResult{}, invalidCredentials(err)
	}
	ok, err := argon2id.ComparePasswordAndHash(password, rec.PasswordHash)
	if err != nil || !ok {
		return LoginResult{}, invalidCredentials(err)
	}

	accessToken, accessExpiry, err := s.signAccessToken(rec.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign access token: %w", err)
	}
	refreshToken, refreshExpiry, err := s.createSession(ctx, rec.ID, userAgent, ip)
	if err != nil {
		return LoginResult{}, fmt.Errorf("create session: %w", err)
	}

	return LoginResult{
		User:          publicUser(rec),
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		AccessExpiry:  accessExpiry,
		RefreshExpiry: refreshExpiry,
	}, nil
}

// Logout revokes the refresh token. Unknown tokens are a no-op.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	token := strings.TrimSpace(refreshToken)
	if token == "" {
		return nil
	}
	return s.store.DeleteSessionByHash(ctx, hashRefreshToken(token))
}

// Refresh rotates a refresh token and issues a fresh access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	token := strings.TrimSpace(refreshToken)
	if token == "" {
		return RefreshResult{}, invalidRefresh(nil)
	}
	hashed := hashRefreshToken(token)
	session, err := s.store.GetSessionByHash(ctx, hashed)
	if err != nil {
		return RefreshResult{}, invalidRefresh(err)
	}
	if s.now().After(session.ExpiresAt) {
		_ = s.store.DeleteSessionByHash(ctx, hashed)
		return RefreshResult{}, invalidRefresh(nil)
	}

	accessToken, accessExpiry, err := s.signAccessToken(session.UserID)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("sign access token: %w", err)
	}
	newToken, newHash, refreshExpiry, err := s.newRefreshToken()
	if err != nil {
		return RefreshResult{}, err
	}
	if err := s.store.RotateSession(ctx, session.ID, newHash, refreshExpiry); err != nil {
		_ = s.store.DeleteSessionByHash(ctx, hashed)
		return RefreshResult{}, fmt.Errorf("rotate session: %w", err)
	}

	return RefreshResult{
		AccessToken:   accessToken,
		AccessExpiry:  accessExpiry,
		RefreshToken:  newToken,
		RefreshExpiry: refreshExpiry,
	}, nil
}

// Me fetches the authenticated user.
func (s *Service) Me(ctx context.Context, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, common.NewAppError(common.CodeUnauthorized, "unauthorized", http.StatusUnauthorized, nil)
	}
	rec, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return User{}, common.NewAppError(common.CodeUnauthorized, "unauthorized", http.StatusUnauthorized, err)
	}
	return publicUser(rec), nil
}

// EmailForUser implements the worker's recipient lookup. A missing user
// resolves to an empty address rather than an error so deleted accounts do
// not keep a task retrying.
func (s *Service) EmailForUser(ctx context.Context, userID string) (string, error) {
	rec, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", nil
		}
		return "", err
	}
	return rec.Email, nil
}

// PaymentCustomerID returns the stored gateway customer reference.
func (s *Service) PaymentCustomerID(ctx context.Context, userID string) (string, error) {
	return s.store.PaymentCustomerID(ctx, userID)
}

// SetPaymentCustomerID records the gateway customer reference.
func (s *Service) SetPaymentCustomerID(ctx context.Context, userID, customerID string) error {
	return s.store.SetPaymentCustomerID(ctx, userID, customerID)
}

// Forgot creates a reset token and mails the link. The response never reveals
// whether the email exists.
func (s *Service) Forgot(ctx context.Context, email, baseURL string, sender common.EmailSender) error {
	normalized := strings.TrimSpace(strings.ToLower(email))
	if normalized == "" {
		return nil
	}
	rec, err := s.store.GetUserByEmail(ctx, normalized)
	if err != nil {
		return nil
	}
	token, err := generateToken(32)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	if err := s.store.CreatePasswordReset(ctx, ResetRecord{
		Token:     token,
		UserID:    rec.ID,
		ExpiresAt: s.now().Add(s.resetTTL),
	}); err != nil {
		return err
	}
	if sender == nil {
		return nil
	}
	link := fmt.Sprintf("%s/reset?token=%s", strings.TrimRight(baseURL, "/"), token)
	if err := sender.Send(rec.Email, "Reset your password", "Follow this link to reset your password: "+link); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

// Reset validates the token and replaces the user's password. All sessions
// are revoked afterwards.
func (s *Service) Reset(ctx context.Context, token, newPassword string) error {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return invalidResetToken(nil)
	}
	if len(newPassword) < 8 {
		return common.NewAppError(common.CodeBadRequest, "password must be at least 8 characters", http.StatusBadRequest, nil)
	}
	reset, err := s.store.GetPasswordReset(ctx, trimmed)
	if err != nil {
		return invalidResetToken(err)
	}
	if reset.Used || s.now().After(reset.ExpiresAt) {
		return invalidResetToken(nil)
	}
	hash, err := argon2id.CreateHash(newPassword, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdateUserPassword(ctx, reset.UserID, hash); err != nil {
		return err
	}
	if err := s.store.UsePasswordReset(ctx, trimmed); err != nil {
		return err
	}
	return s.store.DeleteSessionsByUser(ctx, reset.UserID)
}

// ParseAccessToken validates an access token and returns the subject.
func (s *Service) ParseAccessToken(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", common.NewAppError(common.CodeUnauthorized, "missing token", http.StatusUnauthorized, nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return "", common.NewAppError(common.CodeUnauthorized, "invalid token", http.StatusUnauthorized, err)
	}
	if s.validator.Algorithm != "" && algorithm != s.validator.Algorithm {
		return "", common.NewAppError(common.CodeUnauthorized, "invalid token", http.StatusUnauthorized, fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret))
	if err != nil {
		return "", common.NewAppError(common.CodeUnauthorized, "invalid token", http.StatusUnauthorized, err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return "", common.NewAppError(common.CodeUnauthorized, "invalid token", http.StatusUnauthorized, err)
	}
	return parsed.Subject(), nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}

func (s *Service) signAccessToken(userID string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	token, err := jwt.NewBuilder().
		Subject(userID).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

func (s *Service) createSession(ctx context.Context, userID, userAgent, ip string) (string, time.Time, error) {
	token, hashed, expiresAt, err := s.newRefreshToken()
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.store.CreateSession(ctx, SessionRecord{
		ID:          uuid.NewString(),
		UserID:      userID,
		RefreshHash: hashed,
		UserAgent:   strings.TrimSpace(userAgent),
		IP:          strings.TrimSpace(ip),
		ExpiresAt:   expiresAt,
	}); err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (s *Service) newRefreshToken() (string, string, time.Time, error) {
	token, err := generateToken(48)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return token, hashRefreshToken(token), s.now().Add(s.refreshTTL), nil
}

func generateToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func publicUser(rec UserRecord) User {
	return User{ID: rec.ID, Name: rec.Name, Email: rec.Email, CreatedAt: rec.CreatedAt}
}

func invalidCredentials(err error) error {
	return common.NewAppError("INVALID_CREDENTIALS", "invalid email or password", http.StatusUnauthorized, err)
}

func invalidRefresh(err error) error {
	return common.NewAppError(common.CodeUnauthorized, "invalid refresh token", http.StatusUnauthorized, err)
}

func invalidResetToken(err error) error {
	return common.NewAppError("INVALID_TOKEN", "invalid or expired token", http.StatusBadRequest, err)
}
