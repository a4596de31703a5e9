package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"

	"github.com/pkichain/pkichain/models"
)

var (
	ErrNotLoggedIn = errors.New("not logged in, run 'pkichain login' first")
	ErrExpired     = errors.New("session expired, run 'pkichain login' again")
)

// Authenticator is the part of the API that hands out tokens.
type Authenticator interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error)
}

type Credentials struct {
	Email    string
	Password string
	TOTPSeed string
}

// Manager owns the current session. It replaces direct access to the
// stored token so that callers never touch the storage mechanism.
type Manager struct {
	store Store
	now   func() time.Time
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(store Store, options ...Option) *Manager {
	m := &Manager{store: store, now: time.Now}
	for _, option := range options {
		option(m)
	}
	return m
}

func (m *Manager) Login(ctx context.Context, a Authenticator, creds Credentials) (*models.User, error) {
	req := models.LoginRequest{Email: strings.TrimSpace(creds.Email), Password: creds.Password}
	if creds.TOTPSeed != "" {
		code, err := totp.GenerateCode(creds.TOTPSeed, m.now())
		if err != nil {
			return nil, err
		}
		req.OTP = code
	}
	resp, err := a.Login(ctx, req)
	if err != nil {
		return nil, err
	}
	return m.save(resp)
}

func (m *Manager) Register(ctx context.Context, a Authenticator, name, email, password string) (*models.User, error) {
	resp, err := a.Register(ctx, models.RegisterRequest{Name: strings.TrimSpace(name), Email: strings.TrimSpace(email), Password: password})
	if err != nil {
		return nil, err
	}
	return m.save(resp)
}

func (m *Manager) save(resp *models.AuthResponse) (*models.User, error) {
	if err := m.store.Save(&Session{Token: resp.Token, User: resp.User}); err != nil {
		return nil, err
	}
	slog.Info("Logged in", slog.String("user", resp.User.Email))
	if exp, ok := expiration(resp.Token); ok {
		slog.Info("Token expires", slog.Time("exp", exp))
	}
	return &resp.User, nil
}

func (m *Manager) Logout() error {
	return m.store.Clear()
}

// Invalidate drops the session after the backend rejected it.
func (m *Manager) Invalidate() error {
	return m.store.Clear()
}

// Token returns the bearer token. A JWT past its expiry is dropped instead
// of being sent.
func (m *Manager) Token() (string, error) {
	s, err := m.store.Load()
	if err != nil {
		return "", err
	}
	if s == nil || s.Token == "" {
		return "", ErrNotLoggedIn
	}
	if exp, ok := expiration(s.Token); ok && !exp.After(m.now()) {
		slog.Info("Token expired", slog.Time("exp", exp))
		if err := m.store.Clear(); err != nil {
			return "", err
		}
		return "", ErrExpired
	}
	return s.Token, nil
}

func (m *Manager) User() (*models.User, error) {
	s, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	if s == nil || s.Token == "" {
		return nil, ErrNotLoggedIn
	}
	return &s.User, nil
}

// ExpiresAt reports the expiry of the stored token if it is a JWT with an
// exp claim.
func (m *Manager) ExpiresAt() (time.Time, bool) {
	s, err := m.store.Load()
	if err != nil || s == nil {
		return time.Time{}, false
	}
	return expiration(s.Token)
}

func expiration(token string) (time.Time, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
