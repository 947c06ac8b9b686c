package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for our application
type Config struct {
	Port                      string
	Origin                    string
	Environment               string
	JWTSecret                 string
	JWTRefreshSecret          string
	JWTExpirationMinutes      int
	JWTRefreshExpirationHours int
	ResetCodeTTL              time.Duration
	UploadDir                 string
	RedisURL                  string
	Database                  DatabaseConfig
	Billing                   BillingConfig
	Push                      PushConfig
	Payment                   PaymentConfig
	Mailer                    MailerConfig
	Telemetry                 TelemetryConfig
}

// DatabaseConfig holds database connection details
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	Username string
	Password string
	Name     string
	SSLMode  string
	DSN      string
}

// BillingConfig holds appointment billing rules
type BillingConfig struct {
	// ChargeRate is the per-minute price for consultations.
	ChargeRate           float64
	AllowedTestFileTypes []string
}

// PushConfig holds push notification delivery settings. Delivery goes
// through Firebase Cloud Messaging when CredentialsFile is set.
type PushConfig struct {
	CredentialsFile string
	ProjectID       string
	TTL             time.Duration
	Workers   int
	QueueSize int
}

// PaymentConfig selects and configures the payment gateway
type PaymentConfig struct {
	Provider          string
	Currency          string
	StripeSecretKey   string
	RazorpayKeyID     string
	RazorpayKeySecret string
}

// TelemetryConfig points tracing at an OTLP collector. An empty Endpoint
// disables export.
type TelemetryConfig struct {
	Endpoint string
	Insecure bool
}

// MailerConfig holds email service configuration
type MailerConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	DefaultFrom string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "3001")
	v.SetDefault("ORIGIN", "http://localhost:4200")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("JWT_SECRET", "default_jwt_secret")
	v.SetDefault("JWT_REFRESH_SECRET", "default_refresh_secret")
	v.SetDefault("JWT_EXPIRATION_MINUTES", 15)
	v.SetDefault("JWT_REFRESH_EXPIRATION_HOURS", 168) // 7 days
	v.SetDefault("RESET_CODE_TTL", "48h")
	v.SetDefault("UPLOAD_DIR", "uploads")

	v.SetDefault("DB_DRIVER", "mysql")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_USERNAME", "root")
	v.SetDefault("DB_NAME", "careconnect")
	v.SetDefault("DB_SSLMODE", "disable")

	v.SetDefault("CHARGE_RATE", 1.0)
	v.SetDefault("ALLOWED_TEST_FILE_TYPES", "pdf,doc,docx,jpg,jpeg,png")

	v.SetDefault("NOTIFICATION_TTL", "72h")
	v.SetDefault("NOTIFICATION_WORKERS", 4)
	v.SetDefault("NOTIFICATION_QUEUE_SIZE", 256)

	v.SetDefault("PAYMENT_PROVIDER", "stripe")
	v.SetDefault("PAYMENT_CURRENCY", "usd")

	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 587)

	dbConfig := DatabaseConfig{
		Driver:   strings.ToLower(v.GetString("DB_DRIVER")),
		Host:     v.GetString("DB_HOST"),
		Port:     v.GetString("DB_PORT"),
		Username: v.GetString("DB_USERNAME"),
		Password: v.GetString("DB_PASSWORD"),
		Name:     v.GetString("DB_NAME"),
		SSLMode:  v.GetString("DB_SSLMODE"),
	}
	dbConfig.DSN = buildDSN(dbConfig)

	cfg := &Config{
		Port:                      v.GetString("PORT"),
		Origin:                    v.GetString("ORIGIN"),
		Environment:               v.GetString("ENVIRONMENT"),
		JWTSecret:                 v.GetString("JWT_SECRET"),
		JWTRefreshSecret:          v.GetString("JWT_REFRESH_SECRET"),
		JWTExpirationMinutes:      v.GetInt("JWT_EXPIRATION_MINUTES"),
		JWTRefreshExpirationHours: v.GetInt("JWT_REFRESH_EXPIRATION_HOURS"),
		ResetCodeTTL:              v.GetDuration("RESET_CODE_TTL"),
		UploadDir:                 v.GetString("UPLOAD_DIR"),
		RedisURL:                  v.GetString("REDIS_URL"),
		Database:                  dbConfig,
		Billing: BillingConfig{
			ChargeRate:           v.GetFloat64("CHARGE_RATE"),
			AllowedTestFileTypes: splitList(v.GetString("ALLOWED_TEST_FILE_TYPES")),
		},
		Push: PushConfig{
			CredentialsFile: v.GetString("FCM_CREDENTIALS_FILE"),
			ProjectID:       v.GetString("FCM_PROJECT_ID"),
			TTL:             v.GetDuration("NOTIFICATION_TTL"),
			Workers:         v.GetInt("NOTIFICATION_WORKERS"),
			QueueSize:       v.GetInt("NOTIFICATION_QUEUE_SIZE"),
		},
		Payment: PaymentConfig{
			Provider:          strings.ToLower(v.GetString("PAYMENT_PROVIDER")),
			Currency:          strings.ToLower(v.GetString("PAYMENT_CURRENCY")),
			StripeSecretKey:   v.GetString("STRIPE_SECRET_KEY"),
			RazorpayKeyID:     v.GetString("RAZORPAY_KEY_ID"),
			RazorpayKeySecret: v.GetString("RAZORPAY_KEY_SECRET"),
		},
		Mailer: MailerConfig{
			Host:        v.GetString("SMTP_HOST"),
			Port:        v.GetInt("SMTP_PORT"),
			Username:    v.GetString("SMTP_USERNAME"),
			Password:    v.GetString("SMTP_PASSWORD"),
			DefaultFrom: v.GetString("MAIL_FROM"),
		},
		Telemetry: TelemetryConfig{
			Endpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Insecure: v.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded values for settings the server cannot run without.
func (c *Config) Validate() error {
	if c.JWTExpirationMinutes <= 0 {
		return fmt.Errorf("invalid JWT_EXPIRATION_MINUTES: %d", c.JWTExpirationMinutes)
	}
	if c.JWTRefreshExpirationHours <= 0 {
		return fmt.Errorf("invalid JWT_REFRESH_EXPIRATION_HOURS: %d", c.JWTRefreshExpirationHours)
	}
	if c.Billing.ChargeRate <= 0 {
		return fmt.Errorf("invalid CHARGE_RATE: %v", c.Billing.ChargeRate)
	}
	if len(c.Billing.AllowedTestFileTypes) == 0 {
		return fmt.Errorf("ALLOWED_TEST_FILE_TYPES must list at least one extension")
	}
	if c.Push.TTL <= 0 {
		return fmt.Errorf("invalid NOTIFICATION_TTL: %v", c.Push.TTL)
	}
	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %q", c.Database.Driver)
	}
	switch c.Payment.Provider {
	case "stripe", "razorpay":
	default:
		return fmt.Errorf("unsupported PAYMENT_PROVIDER: %q", c.Payment.Provider)
	}
	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsTest reports whether the server runs against the test fixtures, which
// issue fixed password reset codes.
func (c *Config) IsTest() bool {
	return c.Environment == "test"
}

func buildDSN(db DatabaseConfig) string {
	if db.Driver == "postgres" {
		port := db.Port
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			db.Host, port, db.Username, db.Password, db.Name, db.SSLMode)
	}
	port := db.Port
	if port == "" {
		port = "3306"
	}
	// clientFoundRows makes conditional updates report matched rows.
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true",
		db.Username, db.Password, db.Host, port, db.Name)
}

// splitList turns "pdf, .PNG,jpg" into ["pdf", "png", "jpg"].
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(part), "."))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
