package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/kirillm/gap-pullback-bot/internal/domain"
)

// Config содержит все настройки приложения
type Config struct {
	Mode      string `validate:"oneof=LIVE DRY_RUN"`
	Storage   string `validate:"oneof=postgres memory"`
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json console"`
	Tracing   bool
	PaperCash float64 `validate:"gte=0"`

	Telegram TelegramConfig
	Broker   BrokerConfig
	Database DatabaseConfig
	HTTP     HTTPConfig
	Strategy StrategyConfig
}

type TelegramConfig struct {
	BotToken  string
	ChatID    int64
	AdminIDs  string
	Whitelist string
	Lang      string
}

// BrokerConfig ключи REST-шлюза. Пустые ключи не ошибка загрузки:
// бот просто откажется стартовать.
type BrokerConfig struct {
	BaseURL   string `validate:"omitempty,url"`
	AppKey    string
	AppSecret string
	AccountNo string
	Timeout   time.Duration `validate:"gt=0"`
}

type DatabaseConfig struct {
	Host            string
	Port            int `validate:"gt=0,lte=65535"`
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type HTTPConfig struct {
	Addr string
}

// Load загружает конфигурацию из .env и файла стратегии
func Load() (*Config, error) {
	// Загружаем .env файл (если есть)
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using environment variables")
	}

	chatID, err := strconv.ParseInt(getEnv("TELEGRAM_CHAT_ID", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
	}

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	maxOpenConns, err := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
	}

	maxIdleConns, err := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_IDLE_CONNS: %w", err)
	}

	connMaxLifetime, err := time.ParseDuration(getEnv("DB_CONN_MAX_LIFETIME", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME: %w", err)
	}

	brokerTimeout, err := time.ParseDuration(getEnv("BROKER_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid BROKER_TIMEOUT: %w", err)
	}

	tracing, err := strconv.ParseBool(getEnv("TRACING_ENABLED", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRACING_ENABLED: %w", err)
	}

	paperCash, err := strconv.ParseFloat(getEnv("PAPER_CASH", "10000000"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid PAPER_CASH: %w", err)
	}

	strategy, err := LoadStrategy(getEnv("STRATEGY_FILE", "configs/strategy.yaml"))
	if err != nil {
		return nil, err
	}

	config := &Config{
		Mode:      getEnv("MODE", domain.ModeDryRun),
		Storage:   getEnv("STORAGE", "postgres"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		Tracing:   tracing,
		PaperCash: paperCash,
		Telegram: TelegramConfig{
			BotToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:    chatID,
			AdminIDs:  getEnv("TELEGRAM_ADMIN_IDS", ""),
			Whitelist: getEnv("TELEGRAM_WHITELIST", ""),
			Lang:      getEnv("TELEGRAM_LANG", "ru"),
		},
		Broker: BrokerConfig{
			BaseURL:   getEnv("BROKER_BASE_URL", ""),
			AppKey:    getEnv("BROKER_APP_KEY", ""),
			AppSecret: getEnv("BROKER_APP_SECRET", ""),
			AccountNo: getEnv("BROKER_ACCOUNT_NO", ""),
			Timeout:   brokerTimeout,
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            dbPort,
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			DBName:          getEnv("DB_NAME", "gap_pullback_bot"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    maxOpenConns,
			MaxIdleConns:    maxIdleConns,
			ConnMaxLifetime: connMaxLifetime,
		},
		HTTP: HTTPConfig{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
		Strategy: *strategy,
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

var validate = validator.New()

// Validate проверяет конфигурацию по тегам validate
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if c.Storage == "postgres" && c.Database.Password == "" {
		return fmt.Errorf("%w: DB_PASSWORD is required for postgres storage", domain.ErrInvalidInput)
	}
	return nil
}

// BrokerConfigured true если заданы ключи брокера
func (c *Config) BrokerConfigured() bool {
	return c.Broker.BaseURL != "" && c.Broker.AppKey != "" && c.Broker.AppSecret != ""
}

// DSN строка подключения для lib/pq
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
