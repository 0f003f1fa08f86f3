// Package auth obtains and caches provider session tokens.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/yourusername/racing-value/internal/clock"
	"github.com/yourusername/racing-value/internal/config"
	"github.com/yourusername/racing-value/internal/credentials"
	"github.com/yourusername/racing-value/internal/datasource"
	"github.com/yourusername/racing-value/internal/logger"
	"github.com/yourusername/racing-value/internal/metrics"
)

// Authentication modes
const (
	ModePassword = datasource.AuthModePassword
	ModeAPIKey   = datasource.AuthModeAPIKey
)

// DefaultTokenTTL is the session lifetime assumed when none is configured
const DefaultTokenTTL = 12 * time.Hour

// State is the lifecycle state of the cached token
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateExpired         State = "expired"
	StateFailed          State = "auth_failed"
)

// Token is a session token with its validity window
type Token struct {
	Value    string
	IssuedAt time.Time
	TTL      time.Duration
}

// ExpiresAt returns the instant the token stops being valid
func (t Token) ExpiresAt() time.Time {
	return t.IssuedAt.Add(t.TTL)
}

// ValidAt reports whether the token can be used at now
func (t Token) ValidAt(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt())
}

// Options configures a TokenManager
type Options struct {
	Credential string        // name in the credential store
	Mode       string        // ModePassword or ModeAPIKey
	TokenURL   string        // auth endpoint for ModePassword
	TTL        time.Duration
}

// OptionsFromConfig derives token manager options from the racing API configuration
func OptionsFromConfig(cfg *config.Config) Options {
	rc := cfg.Providers.RacingAPI
	tokenURL := rc.TokenPath
	if !strings.HasPrefix(tokenURL, "http://") && !strings.HasPrefix(tokenURL, "https://") {
		tokenURL = strings.TrimRight(rc.BaseURL, "/") + "/" + strings.TrimLeft(tokenURL, "/")
	}
	return Options{
		Credential: rc.Credential,
		Mode:       rc.AuthMode,
		TokenURL:   tokenURL,
		TTL:        cfg.Auth.TokenTTL,
	}
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
}

// TokenManager caches one session token per credential identity.
// Concurrent callers share a single in-flight authentication. After a failed
// authentication every call returns the same error until ResetFailure.
type TokenManager struct {
	fetcher datasource.Fetcher
	store   *credentials.Store
	opts    Options
	clock   clock.Clock
	logger  *logger.AuthLogger

	group singleflight.Group

	mu      sync.Mutex
	tokens  map[string]Token
	state   State
	failure error
}

// NewTokenManager creates a token manager. Authentication calls go through fetcher,
// so they share its pacing and retry budget.
func NewTokenManager(fetcher datasource.Fetcher, store *credentials.Store, opts Options, clk clock.Clock, log *logrus.Logger) *TokenManager {
	if opts.Mode == "" {
		opts.Mode = ModePassword
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTokenTTL
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &TokenManager{
		fetcher: fetcher,
		store:   store,
		opts:    opts,
		clock:   clk,
		logger:  logger.NewAuthLogger(log),
		tokens:  make(map[string]Token),
		state:   StateUnauthenticated,
	}
}

// GetToken returns the cached token, authenticating first when it is missing or expired
func (m *TokenManager) GetToken(ctx context.Context) (Token, error) {
	cred, err := m.store.Lookup(m.opts.Credential)
	if err != nil {
		return Token{}, err
	}
	key := identity(cred)

	m.mu.Lock()
	if m.failure != nil {
		err := m.failure
		m.mu.Unlock()
		return Token{}, err
	}
	if tok, ok := m.tokens[key]; ok {
		if tok.ValidAt(m.clock.Now()) {
			m.mu.Unlock()
			return tok, nil
		}
		delete(m.tokens, key)
		m.state = StateExpired
		m.logger.LogTokenInvalidated(cred.Name, "expired")
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do(key, func() (interface{}, error) {
		return m.authenticate(ctx, cred, key)
	})
	if err != nil {
		return Token{}, err
	}
	return v.(Token), nil
}

// AccessToken returns the current token value
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	tok, err := m.GetToken(ctx)
	if err != nil {
		return "", err
	}
	return tok.Value, nil
}

// Invalidate drops the cached token so the next GetToken re-authenticates
func (m *TokenManager) Invalidate(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.tokens) == 0 {
		return
	}
	m.tokens = make(map[string]Token)
	if m.failure == nil {
		m.state = StateExpired
	}
	m.logger.LogTokenInvalidated(m.opts.Credential, reason)
}

// ResetFailure clears a sticky authentication failure, starting a new invocation
func (m *TokenManager) ResetFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failure != nil {
		m.failure = nil
		m.state = StateUnauthenticated
	}
}

// State returns the current lifecycle state
func (m *TokenManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *TokenManager) authenticate(ctx context.Context, cred credentials.Credential, key string) (Token, error) {
	m.mu.Lock()
	if m.failure != nil {
		err := m.failure
		m.mu.Unlock()
		return Token{}, err
	}
	if tok, ok := m.tokens[key]; ok && tok.ValidAt(m.clock.Now()) {
		m.mu.Unlock()
		return tok, nil
	}
	m.state = StateAuthenticating
	m.mu.Unlock()

	var (
		value string
		err   error
	)
	switch m.opts.Mode {
	case ModeAPIKey:
		if !cred.HasAPIKey() {
			err = fmt.Errorf("%w: %s has no api_key", credentials.ErrCredentialMissing, cred.Name)
		}
		value = cred.APIKey
	case ModePassword:
		if !cred.HasPassword() {
			err = fmt.Errorf("%w: %s has no username and password", credentials.ErrCredentialMissing, cred.Name)
		} else {
			value, err = m.login(ctx, cred)
		}
	default:
		err = fmt.Errorf("unknown auth mode %q", m.opts.Mode)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			// cancelled by the caller, not a provider verdict
			m.state = StateUnauthenticated
			return Token{}, err
		}
		m.state = StateFailed
		m.failure = err
		metrics.RecordAuthFailure(cred.Name)
		m.logger.LogAuthFailure(cred.Name, err)
		return Token{}, err
	}

	tok := Token{
		Value:    value,
		IssuedAt: m.clock.Now(),
		TTL:      m.opts.TTL,
	}
	m.tokens[key] = tok
	m.state = StateAuthenticated
	metrics.RecordAuthRefresh(cred.Name, m.opts.Mode)
	m.logger.LogTokenIssued(cred.Name, m.opts.Mode, tok.ExpiresAt())
	return tok, nil
}

// login exchanges username and password for a session token
func (m *TokenManager) login(ctx context.Context, cred credentials.Credential) (string, error) {
	body, err := json.Marshal(tokenRequest{Username: cred.Username, Password: cred.Password})
	if err != nil {
		return "", NewAuthenticationError(cred.Name, "failed to encode login request", err)
	}

	resp, err := m.fetcher.Execute(ctx, datasource.Request{
		Method: http.MethodPost,
		URL:    m.opts.TokenURL,
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   body,
	})
	if err != nil {
		return "", NewAuthenticationError(cred.Name, "login request failed", err)
	}

	var out tokenResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", NewAuthenticationError(cred.Name, "failed to parse login response", err)
	}

	token := out.Token
	if token == "" {
		token = out.AccessToken
	}
	if token == "" {
		return "", NewAuthenticationError(cred.Name, "no session token in response", nil)
	}
	return token, nil
}

// identity is the token cache key of a credential
func identity(cred credentials.Credential) string {
	if cred.Username != "" {
		return cred.Name + "/" + cred.Username
	}
	return cred.Name
}
