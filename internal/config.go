package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security" validate:"required"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Payment       PaymentConfig       `mapstructure:"payment"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Email         EmailConfig         `mapstructure:"email"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port" validate:"min=1,max=65535"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source" validate:"required"`
}

type SecurityConfig struct {
	JWTSecret           string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	JWTIssuer           string        `mapstructure:"jwt_issuer"`
	AccessTokenDuration time.Duration `mapstructure:"access_token_duration" validate:"required,min=1m,max=24h"`
}

// PaymentConfig drives the simulated gateway and the checkout flow.
type PaymentConfig struct {
	Currency         string        `mapstructure:"currency" validate:"required,len=3"`
	CurrencySymbol   string        `mapstructure:"currency_symbol" validate:"required"`
	Locale           string        `mapstructure:"locale" validate:"required"`
	InitDelay        time.Duration `mapstructure:"init_delay" validate:"min=0"`
	ValidateDelay    time.Duration `mapstructure:"validate_delay" validate:"min=0"`
	ProcessMinDelay  time.Duration `mapstructure:"process_min_delay" validate:"min=0"`
	ProcessMaxDelay  time.Duration `mapstructure:"process_max_delay" validate:"min=0"`
	VerifyDelay      time.Duration `mapstructure:"verify_delay" validate:"min=0"`
	SuccessRate      float64       `mapstructure:"success_rate" validate:"min=0,max=1"`
	Timeout          time.Duration `mapstructure:"timeout" validate:"required"`
	CommitRetries    uint64        `mapstructure:"commit_retries" validate:"max=10"`
	CommitRetryDelay time.Duration `mapstructure:"commit_retry_delay"`
	SessionTTL       time.Duration `mapstructure:"session_ttl" validate:"required"`
	LockTTL          time.Duration `mapstructure:"lock_ttl"`
	MaxWorkers       int           `mapstructure:"max_workers" validate:"min=0"`
	JobQueueSize     int           `mapstructure:"job_queue_size" validate:"min=0"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic" validate:"required_with=Brokers"`
}

type EmailConfig struct {
	SendGridAPIKey string `mapstructure:"sendgrid_api_key"`
	FromName       string `mapstructure:"from_name"`
	FromAddress    string `mapstructure:"from_address" validate:"required_with=SendGridAPIKey,omitempty,email"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name" validate:"required_if=Enabled true"`
	SamplingRate float64 `mapstructure:"sampling_rate" validate:"min=0,max=1"`
	Endpoint     string  `mapstructure:"endpoint" validate:"required_if=Enabled true"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// DefaultPaymentConfig mirrors the timings of the simulated gateway.
func DefaultPaymentConfig() PaymentConfig {
	return PaymentConfig{
		Currency:         "INR",
		CurrencySymbol:   "₹",
		Locale:           "en-IN",
		InitDelay:        500 * time.Millisecond,
		ValidateDelay:    time.Second,
		ProcessMinDelay:  2 * time.Second,
		ProcessMaxDelay:  5 * time.Second,
		VerifyDelay:      500 * time.Millisecond,
		SuccessRate:      0.9,
		Timeout:          30 * time.Second,
		CommitRetries:    3,
		CommitRetryDelay: 500 * time.Millisecond,
		SessionTTL:       30 * time.Minute,
		LockTTL:          time.Minute,
		MaxWorkers:       10,
		JobQueueSize:     100,
	}
}

// LoadConfigFromEnv builds the configuration for container deployments.
func LoadConfigFromEnv() *Config {
	p := DefaultPaymentConfig()

	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("PORT", 8080),
			BaseURL:           getEnv("BASE_URL", "http://localhost:8080"),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_URL", ""),
		},
		Security: SecurityConfig{
			JWTSecret:           getEnv("JWT_SECRET", ""),
			JWTIssuer:           getEnv("JWT_ISSUER", "course-checkout"),
			AccessTokenDuration: getEnvAsDuration("ACCESS_TOKEN_DURATION", time.Hour),
		},
		Payment: PaymentConfig{
			Currency:         getEnv("PAYMENT_CURRENCY", p.Currency),
			CurrencySymbol:   getEnv("PAYMENT_CURRENCY_SYMBOL", p.CurrencySymbol),
			Locale:           getEnv("PAYMENT_LOCALE", p.Locale),
			InitDelay:        getEnvAsDuration("PAYMENT_INIT_DELAY", p.InitDelay),
			ValidateDelay:    getEnvAsDuration("PAYMENT_VALIDATE_DELAY", p.ValidateDelay),
			ProcessMinDelay:  getEnvAsDuration("PAYMENT_PROCESS_MIN_DELAY", p.ProcessMinDelay),
			ProcessMaxDelay:  getEnvAsDuration("PAYMENT_PROCESS_MAX_DELAY", p.ProcessMaxDelay),
			VerifyDelay:      getEnvAsDuration("PAYMENT_VERIFY_DELAY", p.VerifyDelay),
			SuccessRate:      getEnvAsFloat("PAYMENT_SUCCESS_RATE", p.SuccessRate),
			Timeout:          getEnvAsDuration("PAYMENT_TIMEOUT", p.Timeout),
			CommitRetries:    uint64(getEnvAsInt("PAYMENT_COMMIT_RETRIES", int(p.CommitRetries))),
			CommitRetryDelay: getEnvAsDuration("PAYMENT_COMMIT_RETRY_DELAY", p.CommitRetryDelay),
			SessionTTL:       getEnvAsDuration("PAYMENT_SESSION_TTL", p.SessionTTL),
			LockTTL:          getEnvAsDuration("PAYMENT_LOCK_TTL", p.LockTTL),
			MaxWorkers:       getEnvAsInt("PAYMENT_MAX_WORKERS", p.MaxWorkers),
			JobQueueSize:     getEnvAsInt("PAYMENT_JOB_QUEUE_SIZE", p.JobQueueSize),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TOPIC", "checkout-events"),
		},
		Email: EmailConfig{
			SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
			FromName:       getEnv("EMAIL_FROM_NAME", "Course Checkout"),
			FromAddress:    getEnv("EMAIL_FROM_ADDRESS", ""),
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: getEnv("METRICS_ENABLED", "true") == "true",
				Path:    getEnv("METRICS_PATH", "/metrics"),
			},
			Tracing: TracingConfig{
				Enabled:      getEnv("TRACING_ENABLED", "false") == "true",
				ServiceName:  getEnv("TRACING_SERVICE_NAME", "course-checkout"),
				SamplingRate: getEnvAsFloat("TRACING_SAMPLING_RATE", 1),
				Endpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ----------------- VALIDATION -----------------

var configValidator = validator.New()

func (c *Config) Validate() error {
	var errs []string

	if err := configValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Payment.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("payment config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *PaymentConfig) Validate() error {
	if c.ProcessMaxDelay < c.ProcessMinDelay {
		return errors.New("process_max_delay must be >= process_min_delay")
	}
	staged := c.ValidateDelay + c.ProcessMaxDelay + c.VerifyDelay
	if c.Timeout <= staged {
		return fmt.Errorf("timeout %s must exceed the staged gateway latency %s", c.Timeout, staged)
	}
	return nil
}
