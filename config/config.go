package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	HTTP     ServerConfig
	MySQL    MySQLConfig
	Log      LogConfig
	Gateways GatewaysConfig
	Polling  PollingConfig
	Payments PaymentsConfig
	Jobs     JobsConfig
}

type AppConfig struct {
	ServiceName string
	AdminAPIKey string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

type GatewayCredentials struct {
	APIKey        string
	WebhookSecret string
	BaseURL       string
	HTTPTimeout   time.Duration
}

type GatewaysConfig struct {
	Plisio    GatewayCredentials
	Rapyd     GatewayCredentials
	Noda      GatewayCredentials
	CoinToPay GatewayCredentials
	KlymeEU   GatewayCredentials
	KlymeGB   GatewayCredentials
	KlymeDE   GatewayCredentials
}

type PollingConfig struct {
	Backoff       []time.Duration
	ExpiryHorizon time.Duration
	QueryTimeout  time.Duration
}

type PaymentsConfig struct {
	AmountToleranceCents  int64
	CallbackMaxAttempts   int32
	CallbackRetryInterval time.Duration
	CallbackHTTPTimeout   time.Duration
	JobBatchSize          int32
}

type JobsConfig struct {
	CallbackDispatchInterval time.Duration
	ExpirePendingInterval    time.Duration
}

var defaultPollBackoff = []time.Duration{
	time.Minute,
	2 * time.Minute,
	7 * time.Minute,
	12 * time.Minute,
	time.Hour,
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "gateway-hub"),
			AdminAPIKey: getEnv("APP_ADMIN_API_KEY", ""),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Gateways: GatewaysConfig{
			Plisio:    loadGatewayCredentials("PLISIO", "https://api.plisio.net"),
			Rapyd:     loadGatewayCredentials("RAPYD", "https://api.rapyd.net"),
			Noda:      loadGatewayCredentials("NODA", "https://api.noda.live"),
			CoinToPay: loadGatewayCredentials("COINTOPAY", "https://api.cointopay.com"),
			KlymeEU:   loadGatewayCredentials("KLYME_EU", "https://api.klyme.eu"),
			KlymeGB:   loadGatewayCredentials("KLYME_GB", "https://api.klyme.co.uk"),
			KlymeDE:   loadGatewayCredentials("KLYME_DE", "https://api.klyme.de"),
		},
		Polling: PollingConfig{
			Backoff:       getBackoffEnv("POLLING_BACKOFF_MINUTES", defaultPollBackoff),
			ExpiryHorizon: getHoursEnv("POLLING_EXPIRY_HORIZON_HOURS", 72*time.Hour),
			QueryTimeout:  getSecondsEnv("POLLING_QUERY_TIMEOUT_SECONDS", 15*time.Second),
		},
		Payments: PaymentsConfig{
			AmountToleranceCents:  int64(getIntEnv("PAYMENTS_AMOUNT_TOLERANCE_CENTS", 1)),
			CallbackMaxAttempts:   int32(getIntEnv("PAYMENTS_CALLBACK_MAX_ATTEMPTS", 10)),
			CallbackRetryInterval: getMinutesEnv("PAYMENTS_CALLBACK_RETRY_INTERVAL_MINUTES", 5*time.Minute),
			CallbackHTTPTimeout:   getSecondsEnv("PAYMENTS_CALLBACK_HTTP_TIMEOUT_SECONDS", 10*time.Second),
			JobBatchSize:          int32(getIntEnv("PAYMENTS_JOB_BATCH_SIZE", 100)),
		},
		Jobs: JobsConfig{
			CallbackDispatchInterval: getMinutesEnv("JOBS_CALLBACK_DISPATCH_INTERVAL_MINUTES", time.Minute),
			ExpirePendingInterval:    getMinutesEnv("JOBS_EXPIRE_PENDING_INTERVAL_MINUTES", 5*time.Minute),
		},
	}, nil
}

func loadGatewayCredentials(prefix, defaultBaseURL string) GatewayCredentials {
	return GatewayCredentials{
		APIKey:        getEnv(prefix+"_API_KEY", ""),
		WebhookSecret: getEnv(prefix+"_WEBHOOK_SECRET", ""),
		BaseURL:       getEnv(prefix+"_BASE_URL", defaultBaseURL),
		HTTPTimeout:   getSecondsEnv(prefix+"_HTTP_TIMEOUT_SECONDS", 10*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func getHoursEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if hours, err := strconv.Atoi(value); err == nil {
			return time.Duration(hours) * time.Hour
		}
	}
	return defaultValue
}

// getBackoffEnv parses a comma-separated list of minute counts, e.g. "1,2,7,12,60".
// The last entry repeats until the expiry horizon is reached.
func getBackoffEnv(key string, defaultValue []time.Duration) []time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	backoff := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		minutes, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || minutes <= 0 {
			return defaultValue
		}
		backoff = append(backoff, time.Duration(minutes)*time.Minute)
	}
	return backoff
}
