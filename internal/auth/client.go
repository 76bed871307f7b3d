package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaenox/gigachat-bot/internal/transport"
)

const (
	DefaultURL   = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	DefaultScope = "GIGACHAT_API_PERS"

	// Values above this are treated as epoch milliseconds rather than seconds.
	millisThreshold = 1e12
)

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresAt        int64  `json:"expires_at"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Client exchanges the static API key for short-lived bearer tokens.
type Client struct {
	httpClient *http.Client
	url        string
	apiKey     string
	scope      string
	cache      *TokenCache
	defaultTTL time.Duration
	logger     *zap.Logger

	now   func() time.Time
	newID func() string

	// mu serialises the check-fetch-store sequence so concurrent callers
	// sharing one cache issue a single exchange.
	mu sync.Mutex
}

type Option func(*Client)

func WithURL(u string) Option {
	return func(c *Client) {
		if u = strings.TrimSpace(u); u != "" {
			c.url = u
		}
	}
}

func WithScope(scope string) Option {
	return func(c *Client) {
		if scope = strings.TrimSpace(scope); scope != "" {
			c.scope = scope
		}
	}
}

// WithDefaultTTL sets the lifetime assumed when the server omits expires_at.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

func NewClient(apiKey string, cache *TokenCache, httpClient *http.Client, logger *zap.Logger, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("auth: api key must not be empty")
	}
	if cache == nil {
		return nil, errors.New("auth: token cache must not be nil")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: transport.DefaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		httpClient: httpClient,
		url:        DefaultURL,
		apiKey:     apiKey,
		scope:      DefaultScope,
		cache:      cache,
		defaultTTL: DefaultTokenTTL,
		logger:     logger,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchToken returns a usable bearer token. Unless forceRefresh is set, a
// cached token that is not within a minute of expiry is returned without a
// network call. There are no retries here.
func (c *Client) FetchToken(ctx context.Context, forceRefresh bool) (AccessToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !forceRefresh {
		if token, ok := c.cache.Valid(c.now()); ok {
			return token, nil
		}
	}

	rqUID := c.newID()
	form := url.Values{}
	form.Set("scope", c.scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return AccessToken{}, &Error{Kind: KindNetwork, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("RqUID", rqUID)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	raw, err := transport.Do(c.httpClient, req)
	if err != nil {
		authErr := classify(err)
		c.logger.Error("Failed to fetch access token",
			zap.Error(authErr),
			zap.String("request_id", rqUID),
			zap.Bool("force_refresh", forceRefresh))
		return AccessToken{}, authErr
	}

	var payload tokenResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return AccessToken{}, &Error{Kind: KindEmptyToken, Err: fmt.Errorf("decode token response: %w", err)}
	}
	if payload.Error != "" {
		msg := payload.ErrorDescription
		if msg == "" {
			msg = payload.Error
		}
		c.logger.Error("OAuth server returned an error",
			zap.String("error", payload.Error),
			zap.String("request_id", rqUID))
		return AccessToken{}, &Error{Kind: KindRemote, Message: msg}
	}
	if payload.AccessToken == "" {
		return AccessToken{}, &Error{Kind: KindEmptyToken}
	}

	token := c.cache.Store(payload.AccessToken, c.expiry(payload.ExpiresAt))
	c.logger.Info("Fetched access token",
		zap.String("request_id", rqUID),
		zap.Bool("force_refresh", forceRefresh),
		zap.Time("expires_at", token.ExpiresAt))
	return token, nil
}

func (c *Client) expiry(expiresAt int64) time.Time {
	switch {
	case expiresAt <= 0:
		return c.now().Add(c.defaultTTL)
	case expiresAt >= millisThreshold:
		return time.UnixMilli(expiresAt)
	default:
		return time.Unix(expiresAt, 0)
	}
}

func classify(err error) *Error {
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		return &Error{
			Kind:       KindHTTP,
			StatusCode: statusErr.StatusCode,
			Message:    statusErr.Reason(),
			Err:        err,
		}
	}
	return &Error{Kind: KindNetwork, Err: err}
}
