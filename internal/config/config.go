package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	DB struct {
		DSN string
	}
	API struct {
		Port     string
		BasePath string
	}
	Engine struct {
		MaxConcurrent  int
		StoreTimeoutMS int
	}
	Notification struct {
		QueueSize           int
		MaxWorkers          int
		SendTimeoutSeconds  int
		MaxRetries          int
		BreakerThreshold    int
		BreakerResetSeconds int
	}
	Email struct {
		SMTPServer string
		SMTPPort   int
		Username   string
		Password   string
		FromName   string
	}
	Twilio struct {
		AccountSID   string
		AuthToken    string
		WhatsAppFrom string
	}
	Telegram struct {
		RatePerSecond int
	}
	Logging struct {
		Dir   string
		Level string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	// Kafka settings
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	// Database DSN
	cfg.DB.DSN = os.Getenv("DB_DSN")

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	// Engine settings
	cfg.Engine.MaxConcurrent = envInt("ENGINE_MAX_CONCURRENT")
	cfg.Engine.StoreTimeoutMS = envInt("ENGINE_STORE_TIMEOUT_MS")

	// Notification worker settings
	cfg.Notification.QueueSize = envInt("QUEUE_SIZE")
	cfg.Notification.MaxWorkers = envInt("MAX_WORKERS")
	cfg.Notification.SendTimeoutSeconds = envInt("SEND_TIMEOUT_SECONDS")
	cfg.Notification.MaxRetries = envInt("SEND_MAX_RETRIES")
	cfg.Notification.BreakerThreshold = envInt("BREAKER_FAILURE_THRESHOLD")
	cfg.Notification.BreakerResetSeconds = envInt("BREAKER_RESET_SECONDS")

	// Email settings
	cfg.Email.SMTPServer = os.Getenv("EMAIL_SMTP_SERVER")
	cfg.Email.SMTPPort = envInt("EMAIL_SMTP_PORT")
	cfg.Email.Username = os.Getenv("EMAIL_USERNAME")
	cfg.Email.Password = os.Getenv("EMAIL_PASSWORD")
	cfg.Email.FromName = os.Getenv("EMAIL_FROM_NAME")

	// Twilio settings for the WhatsApp channel
	cfg.Twilio.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.Twilio.WhatsAppFrom = os.Getenv("TWILIO_WHATSAPP_FROM")

	// Telegram settings
	cfg.Telegram.RatePerSecond = envInt("TELEGRAM_RATE_PER_SECOND")

	// Logging settings
	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	// Validate required settings
	missing := []string{}
	if cfg.Kafka.Broker == "" {
		missing = append(missing, "KAFKA_BROKER")
	}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	// Apply defaults
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "telemetry_events"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "rule-engine-service"
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v1"
	}
	if cfg.Engine.MaxConcurrent == 0 {
		cfg.Engine.MaxConcurrent = 8
	}
	if cfg.Engine.StoreTimeoutMS == 0 {
		cfg.Engine.StoreTimeoutMS = 5000
	}
	if cfg.Notification.QueueSize == 0 {
		cfg.Notification.QueueSize = 500
	}
	if cfg.Notification.MaxWorkers == 0 {
		cfg.Notification.MaxWorkers = 10
	}
	if cfg.Notification.SendTimeoutSeconds == 0 {
		cfg.Notification.SendTimeoutSeconds = 10
	}
	if cfg.Notification.MaxRetries == 0 {
		cfg.Notification.MaxRetries = 3
	}
	if cfg.Notification.BreakerThreshold == 0 {
		cfg.Notification.BreakerThreshold = 3
	}
	if cfg.Notification.BreakerResetSeconds == 0 {
		cfg.Notification.BreakerResetSeconds = 60
	}
	if cfg.Telegram.RatePerSecond == 0 {
		cfg.Telegram.RatePerSecond = 20
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return cfg, nil
}

func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}
