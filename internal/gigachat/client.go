package gigachat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xaenox/gigachat-bot/internal/auth"
	"github.com/xaenox/gigachat-bot/internal/models"
	"github.com/xaenox/gigachat-bot/internal/reply"
	"github.com/xaenox/gigachat-bot/internal/transport"
)

const (
	DefaultBaseURL     = "https://gigachat.devices.sberbank.ru/api"
	DefaultModel       = "GigaChat"
	DefaultClientID    = "gigachat-bot"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000
)

// TokenSource hands out bearer tokens. *auth.Client satisfies it.
type TokenSource interface {
	FetchToken(ctx context.Context, forceRefresh bool) (auth.AccessToken, error)
}

// Config holds the completion call settings. Zero values select the
// package defaults.
type Config struct {
	BaseURL      string
	Model        string
	ClientID     string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// Client sends the conversation to the completion endpoint and parses the
// structured reply. One Client is one session: its session ID is fixed at
// construction and sent with every call.
type Client struct {
	httpClient *http.Client
	url        string
	tokens     TokenSource
	cfg        Config
	sessionID  string
	logger     *zap.Logger

	newID func() string
}

func NewClient(cfg Config, tokens TokenSource, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("gigachat: token source must not be nil")
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = DefaultSystemPrompt()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: transport.DefaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	newID := func() string { return uuid.New().String() }
	return &Client{
		httpClient: httpClient,
		url:        chatURL(cfg.BaseURL),
		tokens:     tokens,
		cfg:        cfg,
		sessionID:  newID(),
		logger:     logger,
		newID:      newID,
	}, nil
}

// SessionID returns the identifier sent as X-Session-ID on every call.
func (c *Client) SessionID() string {
	return c.sessionID
}

func chatURL(baseURL string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

// SendMessage sends history, prefixed with the system prompt, and returns
// the parsed reply. A 401 triggers one forced token refresh and one retry;
// every failure is returned as *Error.
func (c *Client) SendMessage(ctx context.Context, history []models.Message) (models.StructuredReply, error) {
	token, err := c.tokens.FetchToken(ctx, false)
	if err != nil {
		return models.StructuredReply{}, &Error{Kind: KindAuth, Err: err}
	}

	body, err := json.Marshal(c.buildRequest(history))
	if err != nil {
		return models.StructuredReply{}, &Error{Kind: KindNetwork, Err: fmt.Errorf("marshal request: %w", err)}
	}

	raw, err := c.complete(ctx, token.Value, body, 1)
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
		c.logger.Warn("Completion unauthorized, refreshing token",
			zap.String("session_id", c.sessionID))

		token, err = c.tokens.FetchToken(ctx, true)
		if err != nil {
			return models.StructuredReply{}, &Error{Kind: KindAuth, Err: err}
		}
		raw, err = c.complete(ctx, token.Value, body, 2)
	}
	if err != nil {
		chatErr := classify(err)
		c.logger.Error("Completion request failed",
			zap.Error(chatErr),
			zap.String("kind", chatErr.Kind.String()),
			zap.String("session_id", c.sessionID))
		return models.StructuredReply{}, chatErr
	}

	return c.decode(raw)
}

func (c *Client) buildRequest(history []models.Message) completionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: c.cfg.SystemPrompt,
	})
	for _, msg := range history {
		role := openai.ChatMessageRoleAssistant
		if msg.IsUser {
			role = openai.ChatMessageRoleUser
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Text,
		})
	}

	return completionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Stream:      false,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
}

func (c *Client) complete(ctx context.Context, token string, body []byte, attempt int) ([]byte, error) {
	requestID := c.newID()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, &transport.NetworkError{URL: c.url, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("X-Session-ID", c.sessionID)
	req.Header.Set("X-Client-ID", c.cfg.ClientID)

	c.logger.Debug("Sending completion request",
		zap.String("request_id", requestID),
		zap.String("session_id", c.sessionID),
		zap.Int("attempt", attempt))

	return transport.Do(c.httpClient, req)
}

func (c *Client) decode(raw []byte) (models.StructuredReply, error) {
	var payload completionResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.StructuredReply{}, &Error{Kind: KindEmptyResponse, Err: fmt.Errorf("decode completion response: %w", err)}
	}
	if msg, ok := remoteErrorMessage(payload.Error); ok {
		c.logger.Error("GigaChat returned an error",
			zap.String("message", msg),
			zap.String("session_id", c.sessionID))
		return models.StructuredReply{}, &Error{Kind: KindRemote, Message: msg}
	}
	if len(payload.Choices) == 0 || payload.Choices[0].Message.Content == "" {
		return models.StructuredReply{}, &Error{Kind: KindEmptyResponse}
	}

	content := payload.Choices[0].Message.Content
	parsed, structured := reply.Parse(content)
	if !structured {
		c.logger.Warn("Reply is not valid JSON, using raw text",
			zap.String("session_id", c.sessionID),
			zap.String("finish_reason", string(payload.Choices[0].FinishReason)))
	}
	if !parsed.HasResponse() {
		return models.StructuredReply{}, &Error{Kind: KindEmptyResponse}
	}
	return parsed, nil
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
