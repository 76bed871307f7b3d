// Package app wires the conversation stack from configuration. It is shared
// by the Telegram and terminal frontends.
package app

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xaenox/gigachat-bot/internal/auth"
	"github.com/xaenox/gigachat-bot/internal/conversation"
	"github.com/xaenox/gigachat-bot/internal/gigachat"
	"github.com/xaenox/gigachat-bot/internal/paramstore"
	"github.com/xaenox/gigachat-bot/internal/storage"
	"github.com/xaenox/gigachat-bot/internal/transport"
	"github.com/xaenox/gigachat-bot/pkg/config"
)

// App is a fully wired conversation.
type App struct {
	Session   *conversation.Session
	Storage   storage.Storage
	SessionID string
}

// Close waits for the in-flight exchange and releases the storage.
func (a *App) Close() error {
	a.Session.Wait()
	return a.Storage.Close()
}

// NewLogger builds the process logger. When cfg.File is set, output goes
// there instead of stderr.
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	if cfg.File != "" {
		zcfg.OutputPaths = []string{cfg.File}
		zcfg.ErrorOutputPaths = []string{cfg.File}
	}
	return zcfg.Build()
}

// Build resolves the API key and assembles transport, token cache, auth
// client, completion client, transcript storage and the session.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	apiKey, err := resolveAuthKey(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	httpClient, err := transport.NewHTTPClient(transport.HTTPConfig{
		ConnectTimeout:     cfg.HTTP.ConnectTimeout,
		ReadTimeout:        cfg.HTTP.ReadTimeout,
		WriteTimeout:       cfg.HTTP.WriteTimeout,
		CAFile:             cfg.HTTP.CAFile,
		InsecureSkipVerify: cfg.HTTP.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	if cfg.HTTP.InsecureSkipVerify {
		logger.Warn("TLS certificate verification is disabled")
	}

	authClient, err := auth.NewClient(apiKey, auth.NewTokenCache(), httpClient, logger,
		auth.WithURL(cfg.GigaChat.OAuthURL),
		auth.WithScope(cfg.GigaChat.Scope),
		auth.WithDefaultTTL(cfg.GigaChat.TokenTTLDefault),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth client: %w", err)
	}

	prompt, err := gigachat.LoadSystemPrompt(cfg.GigaChat.SystemPromptFile)
	if err != nil {
		return nil, err
	}

	chatClient, err := gigachat.NewClient(gigachat.Config{
		BaseURL:      cfg.GigaChat.APIURL,
		Model:        cfg.GigaChat.Model,
		ClientID:     cfg.GigaChat.ClientID,
		SystemPrompt: prompt,
		Temperature:  cfg.GigaChat.Temperature,
		MaxTokens:    cfg.GigaChat.MaxTokens,
	}, authClient, httpClient, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create GigaChat client: %w", err)
	}

	store, err := newStorage(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	sessionID := chatClient.SessionID()
	session := conversation.NewSession(chatClient, logger.With(zap.String("session_id", sessionID)))
	session.Subscribe(storage.TranscriptRecorder(store, sessionID, logger))

	logger.Info("Conversation ready",
		zap.String("session_id", sessionID),
		zap.String("model", cfg.GigaChat.Model),
		zap.Stringer("gigachat", cfg.GigaChat))

	return &App{Session: session, Storage: store, SessionID: sessionID}, nil
}

func resolveAuthKey(ctx context.Context, cfg *config.Config, logger *zap.Logger) (string, error) {
	if cfg.GigaChat.AuthKey != "" || cfg.GigaChat.AuthKeyParam == "" {
		return paramstore.ResolveAuthKey(ctx, cfg.GigaChat.AuthKey, nil, "")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWS.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWS.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to load AWS config: %w", err)
	}
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return "", err
	}

	logger.Info("Reading auth key from parameter store", zap.String("parameter", cfg.GigaChat.AuthKeyParam))
	key, err := paramstore.ResolveAuthKey(ctx, "", ssmClient, cfg.GigaChat.AuthKeyParam)
	if err != nil {
		return "", fmt.Errorf("failed to resolve auth key: %w", err)
	}
	return key, nil
}

func newStorage(cfg config.DatabaseConfig, logger *zap.Logger) (storage.Storage, error) {
	if cfg.UseInMemory {
		logger.Info("Using in-memory transcript storage")
		return storage.NewMemoryStorage(), nil
	}

	logger.Info("Using PostgreSQL transcript storage")
	store, err := storage.NewPostgresStorage(storage.DatabaseConfig{
		Host:        cfg.Host,
		Port:        cfg.Port,
		User:        cfg.User,
		Password:    cfg.Password,
		DBName:      cfg.DBName,
		SSLMode:     cfg.SSLMode,
		UseInMemory: cfg.UseInMemory,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}
