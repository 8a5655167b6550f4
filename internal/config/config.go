package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Gateway  GatewayConfig
	Checkout CheckoutConfig
	Kafka    KafkaConfig
	Telegram TelegramConfig
	Metrics  MetricsConfig
}

type ServerConfig struct {
	Port int
	Env  string // "development", "production"
}

type DatabaseConfig struct {
	Host    string
	Port    string
	Name    string
	User    string
	Pass    string
	Charset string
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
}

// GatewayConfig holds the hosted-gateway profile. SecretKey signs every request
// and verifies every reply.
type GatewayConfig struct {
	URL             string
	ProfileID       string
	AccessKey       string
	SecretKey       string
	Locale          string
	TransactionType string
	Sandbox         bool
}

type CheckoutConfig struct {
	Currency      string
	ShippingCode  string
	ThankYouURL   string
	FailureURL    string
	ReplyURL      string
	SessionTTL    time.Duration
	SessionCookie string
	SecureCookie  bool
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type TelegramConfig struct {
	Token         string
	ChannelReport string
}

type MetricsConfig struct {
	PushURL      string
	PushInterval time.Duration
	Labels       string
}

var ErrMissingSecretKey = errors.New("GATEWAY_SECRET_KEY is not set")

// Load reads configuration from .env file and environment variables.
func Load() (*Config, error) {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_ENV", "production")
	setDatabaseDefaults()
	viper.SetDefault("REDIS_ADDR", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("GATEWAY_URL", "https://testsecureacceptance.cybersource.com/silent/pay")
	viper.SetDefault("GATEWAY_LOCALE", "en")
	viper.SetDefault("GATEWAY_TRANSACTION_TYPE", "authorization,create_payment_token")
	viper.SetDefault("GATEWAY_SANDBOX", false)
	viper.SetDefault("CHECKOUT_CURRENCY", "USD")
	viper.SetDefault("CHECKOUT_SHIPPING_CODE", "free-shipping")
	viper.SetDefault("CHECKOUT_THANK_YOU_URL", "/checkout/thank-you/")
	viper.SetDefault("CHECKOUT_FAILURE_URL", "/checkout/")
	viper.SetDefault("CHECKOUT_REPLY_URL", "/cybersource/reply")
	viper.SetDefault("CHECKOUT_SESSION_TTL", "24h")
	viper.SetDefault("CHECKOUT_SESSION_COOKIE", "checkout_session")
	viper.SetDefault("CHECKOUT_SECURE_COOKIE", false)
	viper.SetDefault("KAFKA_TOPIC", "orders.placed")
	viper.SetDefault("METRICS_PUSH_INTERVAL", "10s")

	sessionTTL, err := time.ParseDuration(viper.GetString("CHECKOUT_SESSION_TTL"))
	if err != nil {
		sessionTTL = 24 * time.Hour
	}
	pushInterval, err := time.ParseDuration(viper.GetString("METRICS_PUSH_INTERVAL"))
	if err != nil {
		pushInterval = 10 * time.Second
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetInt("APP_PORT"),
			Env:  viper.GetString("APP_ENV"),
		},
		Database: databaseFromEnv(),
		Redis: RedisConfig{
			Addr: viper.GetString("REDIS_ADDR"),
			Pass: viper.GetString("REDIS_PASS"),
			DB:   viper.GetInt("REDIS_DB"),
		},
		Gateway: GatewayConfig{
			URL:             viper.GetString("GATEWAY_URL"),
			ProfileID:       viper.GetString("GATEWAY_PROFILE_ID"),
			AccessKey:       viper.GetString("GATEWAY_ACCESS_KEY"),
			SecretKey:       viper.GetString("GATEWAY_SECRET_KEY"),
			Locale:          viper.GetString("GATEWAY_LOCALE"),
			TransactionType: viper.GetString("GATEWAY_TRANSACTION_TYPE"),
			Sandbox:         viper.GetBool("GATEWAY_SANDBOX"),
		},
		Checkout: CheckoutConfig{
			Currency:      strings.ToUpper(viper.GetString("CHECKOUT_CURRENCY")),
			ShippingCode:  viper.GetString("CHECKOUT_SHIPPING_CODE"),
			ThankYouURL:   viper.GetString("CHECKOUT_THANK_YOU_URL"),
			FailureURL:    viper.GetString("CHECKOUT_FAILURE_URL"),
			ReplyURL:      viper.GetString("CHECKOUT_REPLY_URL"),
			SessionTTL:    sessionTTL,
			SessionCookie: viper.GetString("CHECKOUT_SESSION_COOKIE"),
			SecureCookie:  viper.GetBool("CHECKOUT_SECURE_COOKIE"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(viper.GetString("KAFKA_BROKERS")),
			Topic:   viper.GetString("KAFKA_TOPIC"),
		},
		Telegram: TelegramConfig{
			Token:         viper.GetString("TELEGRAM_TOKEN"),
			ChannelReport: viper.GetString("TELEGRAM_CHANNEL_REPORT"),
		},
		Metrics: MetricsConfig{
			PushURL:      viper.GetString("METRICS_PUSH_URL"),
			PushInterval: pushInterval,
			Labels:       viper.GetString("METRICS_LABELS"),
		},
	}

	if cfg.Database.Name == "" {
		log.Println("WARNING: DB_NAME is not set")
	}
	if cfg.Gateway.SecretKey == "" {
		return nil, ErrMissingSecretKey
	}
	if cfg.Gateway.Sandbox {
		log.Println("WARNING: sandbox gateway enabled, requests are not sent to a real processor")
	}

	return cfg, nil
}

// LoadDatabaseOnly reads just the database settings for --bootstrap-db.
func LoadDatabaseOnly() (*DatabaseConfig, error) {
	_ = godotenv.Load()
	viper.AutomaticEnv()
	setDatabaseDefaults()
	cfg := databaseFromEnv()
	return &cfg, nil
}

func setDatabaseDefaults() {
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "3306")
	viper.SetDefault("DB_CHARSET", "utf8mb4")
}

func databaseFromEnv() DatabaseConfig {
	return DatabaseConfig{
		Host:    viper.GetString("DB_HOST"),
		Port:    viper.GetString("DB_PORT"),
		Name:    viper.GetString("DB_NAME"),
		User:    viper.GetString("DB_USER"),
		Pass:    viper.GetString("DB_PASS"),
		Charset: viper.GetString("DB_CHARSET"),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// DSN returns the MySQL DSN string for GORM.
func (d *DatabaseConfig) DSN() string {
	return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + d.Port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=UTC"
}
