package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"

	"github.com/onurcolak/bulk-dispatch-service/environments"
	"github.com/onurcolak/bulk-dispatch-service/pkg/logger"
)

var (
	ErrNotConfigured  = errors.New("directory credentials not configured")
	ErrAuthentication = errors.New("directory authentication failed")
)

// CachedToken is an immutable bearer token snapshot.
type CachedToken struct {
	Value     string
	CreatedAt time.Time
	TTL       time.Duration
}

// Valid reports whether the token is still usable at now, keeping margin of
// headroom before its nominal expiry.
func (t *CachedToken) Valid(now time.Time, margin time.Duration) bool {
	return t != nil && t.Value != "" && now.Sub(t.CreatedAt) < t.TTL-margin
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// TokenManager obtains and caches the directory bearer token. Concurrent
// refreshes share a single login.
type TokenManager struct {
	cfg        environments.DirectoryConfig
	httpClient *resty.Client

	mu     sync.Mutex
	cached *CachedToken
	group  singleflight.Group

	now func() time.Time
}

func NewTokenManager(cfg environments.DirectoryConfig) *TokenManager {
	client := resty.New().
		SetTimeout(cfg.LoginTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &TokenManager{
		cfg:        cfg,
		httpClient: client,
		now:        time.Now,
	}
}

func (m *TokenManager) configured() bool {
	return m.cfg.LoginURL != "" && m.cfg.Email != "" && m.cfg.Password != ""
}

// Token returns a valid token, logging in when the cache is empty, expired
// or forceRefresh is set.
func (m *TokenManager) Token(ctx context.Context, forceRefresh bool) (string, error) {
	if !m.configured() {
		return "", ErrNotConfigured
	}

	if !forceRefresh {
		m.mu.Lock()
		cached := m.cached
		m.mu.Unlock()

		if cached.Valid(m.now(), m.cfg.TokenMargin) {
			return cached.Value, nil
		}
	}

	// The shared login outlives any single caller; each caller still stops
	// waiting when its own context ends.
	loginCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan("login", func() (any, error) {
		return m.login(loginCtx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()

	logger.Debugf("Directory token cache cleared")
}

func (m *TokenManager) login(ctx context.Context) (string, error) {
	attempts := m.cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	logger.Infof("Requesting new directory token")

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		token, err := m.loginOnce(ctx)
		if err == nil {
			m.mu.Lock()
			m.cached = &CachedToken{Value: token, CreatedAt: m.now(), TTL: m.cfg.TokenTTL}
			m.mu.Unlock()

			logger.Infof("Directory token obtained (attempt %d)", attempt+1)
			return token, nil
		}

		lastErr = err
		logger.Warnf("Directory login attempt %d failed: %v", attempt+1, err)

		if attempt < attempts-1 {
			if err := wait(ctx, m.cfg.BackoffBase<<attempt); err != nil {
				return "", fmt.Errorf("%w: %w", ErrAuthentication, err)
			}
		}
	}

	return "", fmt.Errorf("%w after %d attempts: %w", ErrAuthentication, attempts, lastErr)
}

func (m *TokenManager) loginOnce(ctx context.Context) (string, error) {
	var body loginResponse

	resp, err := m.httpClient.R().
		SetContext(ctx).
		SetBody(loginRequest{Email: m.cfg.Email, Password: m.cfg.Password}).
		SetResult(&body).
		Post(m.cfg.LoginURL)
	if err != nil {
		return "", err
	}

	if !resp.IsSuccess() {
		return "", fmt.Errorf("login returned status %d", resp.StatusCode())
	}

	token := strings.TrimSpace(body.Token)
	if token == "" {
		return "", errors.New("no token in login response")
	}

	return token, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
