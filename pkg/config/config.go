package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	GigaChat GigaChatConfig `mapstructure:"gigachat"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	AWS      AWSConfig      `mapstructure:"aws"`
}

type GigaChatConfig struct {
	AuthKey          string        `mapstructure:"auth_key"`
	AuthKeyParam     string        `mapstructure:"auth_key_param"`
	OAuthURL         string        `mapstructure:"oauth_url"`
	APIURL           string        `mapstructure:"api_url"`
	Scope            string        `mapstructure:"scope"`
	Model            string        `mapstructure:"model"`
	Temperature      float64       `mapstructure:"temperature"`
	MaxTokens        int           `mapstructure:"max_tokens"`
	ClientID         string        `mapstructure:"client_id"`
	SystemPromptFile string        `mapstructure:"system_prompt_file"`
	TokenTTLDefault  time.Duration `mapstructure:"token_ttl_default"`
}

// String omits the auth key so the struct can be logged.
func (c GigaChatConfig) String() string {
	key := "<unset>"
	if c.AuthKey != "" {
		key = "<redacted>"
	}
	return fmt.Sprintf("GigaChatConfig{AuthKey:%s AuthKeyParam:%q OAuthURL:%q APIURL:%q Scope:%q Model:%q Temperature:%g MaxTokens:%d ClientID:%q}",
		key, c.AuthKeyParam, c.OAuthURL, c.APIURL, c.Scope, c.Model, c.Temperature, c.MaxTokens, c.ClientID)
}

type HTTPConfig struct {
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	CAFile             string        `mapstructure:"ca_file"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
}

type AWSConfig struct {
	Region string `mapstructure:"region"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		if _, err := fmt.Sscanf(u.Port(), "%d", &port); err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid port %q: %w", u.Port(), err)
		}
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

// LoadConfig reads path (when it exists) and overlays the environment.
// A .env file in the working directory is loaded first.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	v.SetDefault("gigachat.oauth_url", "https://ngw.devices.sberbank.ru:9443/api/v2/oauth")
	v.SetDefault("gigachat.api_url", "https://gigachat.devices.sberbank.ru/api")
	v.SetDefault("gigachat.scope", "GIGACHAT_API_PERS")
	v.SetDefault("gigachat.model", "GigaChat")
	v.SetDefault("gigachat.temperature", 0.7)
	v.SetDefault("gigachat.max_tokens", 2000)
	v.SetDefault("gigachat.client_id", "gigachat-bot")
	v.SetDefault("gigachat.token_ttl_default", 30*time.Minute)
	v.SetDefault("http.connect_timeout", 30*time.Second)
	v.SetDefault("http.read_timeout", 30*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", true)
	v.SetDefault("log.level", "info")

	// Enable environment variable support
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Database = dbConfig
	}

	if key := v.GetString("GIGACHAT_AUTH_KEY"); key != "" {
		config.GigaChat.AuthKey = key
	}

	if param := v.GetString("GIGACHAT_AUTH_KEY_PARAM"); param != "" {
		config.GigaChat.AuthKeyParam = param
	}

	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the settings every binary needs.
func (c *Config) Validate() error {
	g := c.GigaChat
	if strings.TrimSpace(g.AuthKey) == "" && strings.TrimSpace(g.AuthKeyParam) == "" {
		return errors.New("config: gigachat.auth_key or gigachat.auth_key_param is required")
	}
	if g.Temperature < 0 || g.Temperature > 2 {
		return fmt.Errorf("config: gigachat.temperature %g is outside [0, 2]", g.Temperature)
	}
	if g.MaxTokens <= 0 {
		return fmt.Errorf("config: gigachat.max_tokens must be positive, got %d", g.MaxTokens)
	}
	for name, raw := range map[string]string{"gigachat.oauth_url": g.OAuthURL, "gigachat.api_url": g.APIURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: %s %q is not an absolute URL", name, raw)
		}
	}
	return nil
}
