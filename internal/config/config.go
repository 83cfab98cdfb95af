package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Store      StoreConfig
	Lockout    LockoutConfig
	Session    SessionConfig
	OTP        OTPConfig
	Password   PasswordConfig
	MFA        MFAConfig
	Encryption EncryptionConfig
	Email      EmailConfig
}

type ServerConfig struct {
	Env      string `validate:"oneof=development staging production"`
	LogLevel string `validate:"oneof=debug info warn error"`
	Port     string `validate:"required"`

	// TrustedProxies are CIDR ranges whose forwarded-IP headers are
	// believed. Empty means only the socket peer address is used.
	TrustedProxies []string
}

// StoreConfig selects the backing store for sessions, attempt records and
// challenges. The memory backend is the default; redis and postgres exist
// for multi-instance deployments.
type StoreConfig struct {
	Backend string `validate:"oneof=memory redis postgres"`

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresName     string
	PostgresSSLMode  string
	MaxConns         int32 `validate:"gte=1"`
	MinConns         int32 `validate:"gte=0"`
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
}

type LockoutConfig struct {
	MaxLoginAttempts   int           `validate:"gte=1"`
	LockoutDuration    time.Duration `validate:"gt=0"`
	MaxLockoutDuration time.Duration `validate:"gt=0"`
}

type SessionConfig struct {
	// Timeout is both the initial and every renewed sliding-window lifetime.
	// The same value applies to credential and OTP sessions.
	Timeout       time.Duration `validate:"gt=0"`
	SweepInterval time.Duration `validate:"gt=0"`
}

type OTPConfig struct {
	Length      int           `validate:"gte=4,lte=10"`
	Expiry      time.Duration `validate:"gt=0"`
	MaxAttempts int           `validate:"gte=1"`
	Cooldown    time.Duration `validate:"gt=0"`

	// InitiatesPerWindow caps initiate calls per identifier within
	// RateWindow, independent of the per-channel quota.
	InitiatesPerWindow int           `validate:"gte=1"`
	RateWindow         time.Duration `validate:"gt=0"`
	ChannelQuota       int           `validate:"gte=1"`
}

type PasswordConfig struct {
	MinLength        int `validate:"gte=8"`
	RequireUppercase bool
	RequireNumbers   bool
	RequireSpecial   bool
}

type MFAConfig struct {
	Enabled     bool
	TokenSecret string
	TokenExpiry time.Duration `validate:"gt=0"`
	TOTPIssuer  string
	BaseDelayMs int `validate:"gte=0"`
	JitterMs    int `validate:"gte=0"`
}

type EncryptionConfig struct {
	// Key is the base64-encoded 256-bit field encryption key. Key
	// management and rotation happen outside this process.
	Key []byte `validate:"len=32"`
}

type EmailConfig struct {
	SESRegion   string
	FromAddress string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	encKey, err := parseEncryptionKey(getEnv("FIELD_ENCRYPTION_KEY", ""))
	if err != nil {
		return nil, err
	}

	mfaSecret := getEnv("MFA_TOKEN_SECRET", "")
	if mfaSecret == "" {
		return nil, fmt.Errorf("MFA_TOKEN_SECRET is required")
	}
	if err := validateSecret(mfaSecret, env); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			Port:           getEnv("PORT", "8080"),
			TrustedProxies: splitCSV(getEnv("TRUSTED_PROXIES", "")),
		},
		Store: StoreConfig{
			Backend:          getEnv("STORE_BACKEND", "memory"),
			RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword:    getEnv("REDIS_PASSWORD", ""),
			RedisDB:          getEnvAsInt("REDIS_DB", 0),
			PostgresHost:     getEnv("DB_HOST", "localhost"),
			PostgresPort:     getEnvAsInt("DB_PORT", 5432),
			PostgresUser:     getEnv("DB_USER", "postgres"),
			PostgresPassword: getEnv("DB_PASSWORD", ""),
			PostgresName:     getEnv("DB_NAME", "authguard"),
			PostgresSSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns:         int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:         int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
		},
		Lockout: LockoutConfig{
			MaxLoginAttempts:   getEnvAsInt("MAX_LOGIN_ATTEMPTS", 5),
			LockoutDuration:    getEnvAsDuration("LOCKOUT_DURATION", 15*time.Minute),
			MaxLockoutDuration: getEnvAsDuration("MAX_LOCKOUT_DURATION", 1*time.Hour),
		},
		Session: SessionConfig{
			Timeout:       getEnvAsDuration("SESSION_TIMEOUT", 1*time.Hour),
			SweepInterval: getEnvAsDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
		},
		OTP: OTPConfig{
			Length:             getEnvAsInt("OTP_LENGTH", 6),
			Expiry:             getEnvAsDuration("OTP_EXPIRY", 5*time.Minute),
			MaxAttempts:        getEnvAsInt("OTP_MAX_ATTEMPTS", 3),
			Cooldown:           getEnvAsDuration("OTP_COOLDOWN", 15*time.Minute),
			InitiatesPerWindow: getEnvAsInt("OTP_INITIATES_PER_WINDOW", 3),
			RateWindow:         getEnvAsDuration("OTP_RATE_WINDOW", 1*time.Minute),
			ChannelQuota:       getEnvAsInt("OTP_CHANNEL_QUOTA", 10),
		},
		Password: PasswordConfig{
			MinLength:        getEnvAsInt("PASSWORD_MIN_LENGTH", 12),
			RequireUppercase: getEnvAsBool("PASSWORD_REQUIRE_UPPERCASE", true),
			RequireNumbers:   getEnvAsBool("PASSWORD_REQUIRE_NUMBERS", true),
			RequireSpecial:   getEnvAsBool("PASSWORD_REQUIRE_SPECIAL", true),
		},
		MFA: MFAConfig{
			Enabled:     getEnvAsBool("MFA_ENABLED", false),
			TokenSecret: mfaSecret,
			TokenExpiry: getEnvAsDuration("MFA_TOKEN_EXPIRY", 5*time.Minute),
			TOTPIssuer:  getEnv("TOTP_ISSUER", "authguard"),
			BaseDelayMs: getEnvAsInt("AUTH_BASE_DELAY_MS", 100),
			JitterMs:    getEnvAsInt("AUTH_JITTER_MS", 100),
		},
		Encryption: EncryptionConfig{
			Key: encKey,
		},
		Email: EmailConfig{
			SESRegion:   getEnv("SES_REGION", "us-east-1"),
			FromAddress: getEnv("SES_FROM_ADDRESS", ""),
		},
	}

	if cfg.Store.Backend == "postgres" && cfg.Store.PostgresPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required for the postgres backend")
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// parseEncryptionKey decodes and length-checks the field encryption key.
// The key is assumed pre-validated 256-bit material injected by the deployer.
func parseEncryptionKey(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, fmt.Errorf("FIELD_ENCRYPTION_KEY is required")
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("FIELD_ENCRYPTION_KEY must be base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("FIELD_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// validateSecret enforces minimum strength for the MFA token signing secret
func validateSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("MFA_TOKEN_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("MFA_TOKEN_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *StoreConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresName, c.PostgresSSLMode,
	)
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

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

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}
