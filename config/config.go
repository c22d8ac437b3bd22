package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Log        LogConfig
	Payment    PaymentConfig
	MTN        MTNConfig
	Airtel     AirtelConfig
	CardSwitch CardSwitchConfig
	Kafka      KafkaConfig
}

type ServerConfig struct {
	Port         string        `env:"APP_PORT" envDefault:"8099"`
	Env          string        `env:"APP_ENV" envDefault:"development"`
	ReadTimeout  time.Duration `env:"APP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout time.Duration `env:"APP_WRITE_TIMEOUT" envDefault:"60s"`
	RateLimit    int           `env:"APP_RATE_LIMIT" envDefault:"100"`
}

type DatabaseConfig struct {
	DSN             string        `env:"DB_DSN" envDefault:"ticketpay:ticketpay@tcp(localhost:3306)/ticketpay?charset=utf8mb4&parseTime=True&loc=Local"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"100"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`
}

type JWTConfig struct {
	AccessSecret string        `env:"JWT_ACCESS_SECRET" envDefault:"change-me-in-production"`
	AccessExpiry time.Duration `env:"JWT_ACCESS_EXPIRY" envDefault:"15m"`
	Issuer       string        `env:"JWT_ISSUER" envDefault:"ticketpay"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

type PaymentConfig struct {
	// TTL is how long a payment may stay unsettled before it reads as expired.
	TTL                time.Duration `env:"PAYMENT_TTL" envDefault:"15m"`
	WebhookSecret      string        `env:"PAYMENT_WEBHOOK_SECRET"`
	TokenSafetyMargin  time.Duration `env:"PAYMENT_TOKEN_SAFETY_MARGIN" envDefault:"30s"`
	TokenExchangeLimit time.Duration `env:"PAYMENT_TOKEN_EXCHANGE_TIMEOUT" envDefault:"15s"`
	WebhookBaseURL     string        `env:"PAYMENT_WEBHOOK_BASE_URL" envDefault:"http://localhost:8099"`
}

// CallbackURL is where a rail posts its settlement callbacks.
func (p PaymentConfig) CallbackURL(provider string) string {
	base := strings.TrimRight(p.WebhookBaseURL, "/")
	if base == "" {
		return ""
	}
	if !strings.HasPrefix(base, "http") {
		base = "https://" + base
	}
	return base + "/api/v1/webhooks/" + provider
}

type MTNConfig struct {
	Enabled           bool          `env:"MTN_ENABLED" envDefault:"true"`
	BaseURL           string        `env:"MTN_BASE_URL" envDefault:"https://sandbox.momodeveloper.mtn.com"`
	APIUser           string        `env:"MTN_API_USER"`
	APIKey            string        `env:"MTN_API_KEY"`
	SubscriptionKey   string        `env:"MTN_SUBSCRIPTION_KEY"`
	TargetEnvironment string        `env:"MTN_TARGET_ENVIRONMENT" envDefault:"sandbox"`
	Timeout           time.Duration `env:"MTN_TIMEOUT" envDefault:"30s"`
}

type AirtelConfig struct {
	Enabled      bool          `env:"AIRTEL_ENABLED" envDefault:"true"`
	BaseURL      string        `env:"AIRTEL_BASE_URL" envDefault:"https://openapiuat.airtel.africa"`
	ClientID     string        `env:"AIRTEL_CLIENT_ID"`
	ClientSecret string        `env:"AIRTEL_CLIENT_SECRET"`
	Country      string        `env:"AIRTEL_COUNTRY" envDefault:"RW"`
	Timeout      time.Duration `env:"AIRTEL_TIMEOUT" envDefault:"30s"`
}

type CardSwitchConfig struct {
	Enabled    bool          `env:"CARD_ENABLED" envDefault:"true"`
	BaseURL    string        `env:"CARD_BASE_URL" envDefault:"https://checkout.switch.example.rw"`
	MerchantID string        `env:"CARD_MERCHANT_ID"`
	SecretKey  string        `env:"CARD_SECRET_KEY"`
	ReturnURL  string        `env:"CARD_RETURN_URL"`
	Timeout    time.Duration `env:"CARD_TIMEOUT" envDefault:"30s"`
}

type KafkaConfig struct {
	// Brokers is a comma-separated list; empty disables event publishing.
	Brokers          string        `env:"KAFKA_BROKERS"`
	RetryMaxAttempts int           `env:"KAFKA_RETRY_MAX_ATTEMPTS" envDefault:"5"`
	RetryBaseDelay   time.Duration `env:"KAFKA_RETRY_BASE_DELAY" envDefault:"100ms"`
	RetryMaxDelay    time.Duration `env:"KAFKA_RETRY_MAX_DELAY" envDefault:"10s"`
	RetryJitter      bool          `env:"KAFKA_RETRY_JITTER" envDefault:"true"`
}

func (k KafkaConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Load reads .env if present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		logrus.Debug("no .env file, using process environment")
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigureLogging applies the log level and format to the standard logrus logger.
func (c *Config) ConfigureLogging() {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if c.Log.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}
