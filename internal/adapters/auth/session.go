package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/patricknitsch/grohe-smarthome/internal/ports"
)

const (
	defaultLoginAttempts = 3
	defaultRetryBackoff  = 2 * time.Second

	// Safety margin against clock skew and processing delay between the
	// provider stamping the lifetime and us computing the expiry.
	expirySkew = 60 * time.Second
)

// Config carries the provider addresses and the updatable failure-marker
// list for one session engine.
type Config struct {
	LoginURL   string
	RefreshURL string
	Markers    []MarkerRule
	// Attempts is the interactive login retry budget. Zero means the
	// default of 3.
	Attempts int
	// RetryBackoff is multiplied by the attempt index between attempts.
	// Zero means the default of 2s.
	RetryBackoff time.Duration
}

// Engine owns the session credentials and their expiry. It performs the
// interactive login, exchanges the refresh token for new access tokens,
// and hands out a currently valid access token on demand. All mutation
// happens under one mutex so concurrent callers share a single in-flight
// renewal.
type Engine struct {
	cfg      Config
	http     *http.Client
	clock    ports.Clock
	log      zerolog.Logger
	onRotate func(context.Context, string)

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithRotationHook registers a callback invoked with the newest refresh
// token whenever the provider rotates it. Callers persist the token there;
// the latest rotated value must always win over earlier ones.
func WithRotationHook(hook func(context.Context, string)) Option {
	return func(e *Engine) { e.onRotate = hook }
}

// NewEngine builds a session engine. The supplied client is cloned with
// automatic redirect handling disabled; the login protocol depends on
// observing every hop.
func NewEngine(cfg Config, client *http.Client, clock ports.Clock, log zerolog.Logger, opts ...Option) *Engine {
	if client == nil {
		client = http.DefaultClient
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultLoginAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if len(cfg.Markers) == 0 {
		cfg.Markers = DefaultMarkerRules()
	}

	noRedirect := *client
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	engine := &Engine{
		cfg:   cfg,
		http:  &noRedirect,
		clock: clock,
		log:   log.With().Str("component", "session").Logger(),
	}
	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Login runs the full interactive flow, retrying up to the configured
// budget with linearly increasing backoff. Each attempt starts from a
// fresh cookie jar. On success the session is populated and the refresh
// token returned so the caller can persist it.
func (e *Engine) Login(ctx context.Context, identity, secret string) (string, error) {
	if strings.TrimSpace(identity) == "" || secret == "" {
		return "", ErrInvalidInput
	}

	loginURL, err := url.Parse(e.cfg.LoginURL)
	if err != nil {
		return "", fmt.Errorf("parse login url: %w", err)
	}

	flow := &loginFlow{http: e.http, loginURL: loginURL, markers: e.cfg.Markers}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.Attempts; attempt++ {
		tokens, err := flow.run(ctx, identity, secret)
		if err == nil {
			e.mu.Lock()
			e.applyLocked(tokens)
			refreshToken := e.refreshToken
			e.mu.Unlock()

			e.notifyRotation(ctx, refreshToken)
			e.log.Info().Int("attempt", attempt).Msg("interactive login succeeded")

			return refreshToken, nil
		}

		lastErr = err
		e.log.Warn().Err(err).Int("attempt", attempt).Msg("login attempt failed")

		if attempt == e.cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt) * e.cfg.RetryBackoff):
		}
	}

	return "", fmt.Errorf("%w: %d attempts exhausted: %w", ErrAuthenticationFailed, e.cfg.Attempts, lastErr)
}

// AdoptRefreshToken installs a previously persisted refresh token without
// contacting the network. Any cached access token is dropped so the next
// access forces a renewal.
func (e *Engine) AdoptRefreshToken(token string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.refreshToken = token
	e.accessToken = ""
	e.expiresAt = time.Time{}
}

// RefreshToken returns the currently held refresh token.
func (e *Engine) RefreshToken() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refreshToken
}

// Renew exchanges the refresh token for a fresh access token.
func (e *Engine) Renew(ctx context.Context) error {
	e.mu.Lock()
	rotated, err := e.renewLocked(ctx)
	e.mu.Unlock()
	if err != nil {
		return err
	}

	e.notifyRotation(ctx, rotated)
	return nil
}

// ValidToken returns a currently valid access token, renewing first when
// the cached one is absent or past its expiry.
func (e *Engine) ValidToken(ctx context.Context) (string, error) {
	e.mu.Lock()

	if e.accessToken != "" && e.clock.Now().Before(e.expiresAt) {
		token := e.accessToken
		e.mu.Unlock()
		return token, nil
	}

	if e.refreshToken == "" {
		e.mu.Unlock()
		return "", ErrNotAuthenticated
	}

	rotated, err := e.renewLocked(ctx)
	token := e.accessToken
	e.mu.Unlock()
	if err != nil {
		return "", err
	}

	e.notifyRotation(ctx, rotated)
	return token, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// renewLocked must be called with e.mu held. It returns the rotated
// refresh token when the provider issued one, so the caller can notify
// persistence outside the lock.
func (e *Engine) renewLocked(ctx context.Context) (string, error) {
	if e.refreshToken == "" {
		return "", ErrNoRefreshToken
	}

	payload, err := json.Marshal(refreshRequest{RefreshToken: e.refreshToken})
	if err != nil {
		return "", fmt.Errorf("%w: encode refresh request: %v", ErrRenewalFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.RefreshURL, strings.NewReader(string(payload)))
	if err != nil {
		return "", fmt.Errorf("%w: create refresh request: %v", ErrRenewalFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRenewalFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return "", ErrInvalidCredential
	default:
		return "", fmt.Errorf("%w: refresh endpoint returned status %d", ErrRenewalFailed, resp.StatusCode)
	}

	var tokens tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxTokenResponseBytes)).Decode(&tokens); err != nil {
		return "", fmt.Errorf("%w: decode refresh response: %v", ErrRenewalFailed, err)
	}
	if tokens.AccessToken == "" {
		return "", fmt.Errorf("%w: refresh response missing access token", ErrRenewalFailed)
	}

	var rotated string
	if tokens.RefreshToken != "" && tokens.RefreshToken != e.refreshToken {
		rotated = tokens.RefreshToken
	}

	e.accessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		e.refreshToken = tokens.RefreshToken
	}
	e.expiresAt = e.clock.Now().Add(time.Duration(tokens.ExpiresIn)*time.Second - expirySkew)

	e.log.Debug().Time("expires_at", e.expiresAt).Bool("rotated", rotated != "").Msg("access token renewed")

	return rotated, nil
}

// applyLocked installs a freshly exchanged token pair. Must be called with
// e.mu held.
func (e *Engine) applyLocked(tokens tokenResponse) {
	e.accessToken = tokens.AccessToken
	e.refreshToken = tokens.RefreshToken
	e.expiresAt = e.clock.Now().Add(time.Duration(tokens.ExpiresIn)*time.Second - expirySkew)
}

func (e *Engine) notifyRotation(ctx context.Context, token string) {
	if token == "" || e.onRotate == nil {
		return
	}
	e.onRotate(ctx, token)
}
