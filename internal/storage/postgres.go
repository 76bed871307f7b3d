package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/xaenox/gigachat-bot/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

func (c DatabaseConfig) connString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", config.connString())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("dbname", config.DBName))
	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

func (s *PostgresStorage) SaveMessage(ctx context.Context, sessionID string, msg models.Message) error {
	query := `
		INSERT INTO transcript (session_id, is_user, text, comment, emotion, confidence,
			topics, suggestions, raw_json, is_final_recommendation, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	var confidence sql.NullFloat64
	if msg.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *msg.Confidence, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		sessionID,
		msg.IsUser,
		msg.Text,
		msg.Comment,
		msg.Emotion,
		confidence,
		pq.Array(nonNil(msg.Topics)),
		pq.Array(nonNil(msg.Suggestions)),
		msg.RawJSON,
		msg.IsFinalRecommendation,
		msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("error saving message: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetSessionMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	query := `
		SELECT is_user, text, comment, emotion, confidence, topics, suggestions,
			raw_json, is_final_recommendation, created_at
		FROM (
			SELECT * FROM transcript
			WHERE session_id = $1
			ORDER BY id DESC
			LIMIT $2
		) recent
		ORDER BY id ASC`

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var (
			msg        models.Message
			confidence sql.NullFloat64
		)
		err := rows.Scan(
			&msg.IsUser,
			&msg.Text,
			&msg.Comment,
			&msg.Emotion,
			&confidence,
			pq.Array(&msg.Topics),
			pq.Array(&msg.Suggestions),
			&msg.RawJSON,
			&msg.IsFinalRecommendation,
			&msg.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		if confidence.Valid {
			c := confidence.Float64
			msg.Confidence = &c
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
