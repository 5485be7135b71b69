package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName        = "GameZone"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultMetricsPort    = "9090"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultTurnTimeout    = 2 * time.Minute
	defaultOTPTTL         = 5 * time.Minute
	defaultMaxWinTokens   = 4
	defaultAllowedStakes  = "20.00,50.00"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	MetricsPort    string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	KafkaBrokers   string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// AllowedStakes lists the stake denominations (in cents) a lobby may be
	// created with.
	AllowedStakes []int64
	// MaxWinTokens bounds the "tokens home" win condition.
	MaxWinTokens int
	// TurnTimeout is how long the turn owner has before forfeiting the game.
	TurnTimeout time.Duration
	// OTPTTL is how long a verification code stays valid.
	OTPTTL time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		MetricsPort:    getEnv("METRICS_PORT", defaultMetricsPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		KafkaBrokers:   os.Getenv("KAFKA_BROKERS"),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
		MaxWinTokens:   defaultMaxWinTokens,
		TurnTimeout:    defaultTurnTimeout,
		OTPTTL:         defaultOTPTTL,
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.TurnTimeout, err = durationEnv("TURN_TIMEOUT", cfg.TurnTimeout); err != nil {
		return Config{}, err
	}
	if cfg.OTPTTL, err = durationEnv("OTP_TTL", cfg.OTPTTL); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("MAX_WIN_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid MAX_WIN_TOKENS: %q", v)
		}
		cfg.MaxWinTokens = n
	}

	stakes, err := parseStakes(getEnv("ALLOWED_STAKES", defaultAllowedStakes))
	if err != nil {
		return Config{}, err
	}
	cfg.AllowedStakes = stakes

	// Development falls back to in-memory stores; everywhere else the
	// backing services are mandatory.
	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}

	return cfg, nil
}

// IsDev reports whether the app runs in a development-like environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// StakeAllowed reports whether the amount (cents) is a configured denomination.
func (c Config) StakeAllowed(amount int64) bool {
	for _, s := range c.AllowedStakes {
		if s == amount {
			return true
		}
	}
	return false
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key + "_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s_SECONDS: %w", key, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func parseStakes(raw string) ([]int64, error) {
	parts := strings.Split(raw, ",")
	stakes := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		cents, err := ParseAmount(p)
		if err != nil {
			return nil, fmt.Errorf("invalid ALLOWED_STAKES entry %q: %w", p, err)
		}
		stakes = append(stakes, cents)
	}
	if len(stakes) == 0 {
		return nil, fmt.Errorf("ALLOWED_STAKES must list at least one denomination")
	}
	return stakes, nil
}

// ParseAmount converts a decimal string with at most two fraction digits into
// cents without going through floating point.
func ParseAmount(s string) (int64, error) {
	whole, frac, _ := strings.Cut(strings.TrimSpace(s), ".")
	if whole == "" {
		whole = "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed amount %q", s)
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount %q has more than two fraction digits", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || cents < 0 {
		return 0, fmt.Errorf("malformed amount %q", s)
	}
	if units < 0 || strings.HasPrefix(whole, "-") {
		return units*100 - cents, nil
	}
	return units*100 + cents, nil
}

// FormatAmount renders cents as a two-fraction-digit decimal string.
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
