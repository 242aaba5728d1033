package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Strategy names accepted by STRATEGY.
const (
	StrategyMutex   = "mutex"
	StrategyAtomic  = "atomic"
	StrategyMailbox = "mailbox"
)

// Config holds all runtime configuration for the stock ledger.
type Config struct {
	Port     int
	LogLevel string

	Strategy        string
	StartingBalance float64 // dollars
	SymbolCount     int
	TickInterval    time.Duration

	ApproveThreshold int64
	ApprovalMinDelay time.Duration
	ApprovalMaxDelay time.Duration
	ApproveAlways    bool

	BreakerMaxFailures  uint
	BreakerCallTimeout  time.Duration
	BreakerResetTimeout time.Duration

	JournalPath string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	strategy := getStr("STRATEGY", StrategyMutex)
	switch strategy {
	case StrategyMutex, StrategyAtomic, StrategyMailbox:
	default:
		return nil, fmt.Errorf("invalid STRATEGY: %q, must be one of: mutex, atomic, mailbox", strategy)
	}

	startingBalance, err := getFloat("STARTING_BALANCE", 10_000)
	if err != nil {
		return nil, fmt.Errorf("invalid STARTING_BALANCE: %w", err)
	}
	if startingBalance < 0 {
		return nil, fmt.Errorf("invalid STARTING_BALANCE: must be >= 0")
	}

	symbolCount, err := getInt("SYMBOL_COUNT", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid SYMBOL_COUNT: %w", err)
	}
	if symbolCount < 1 {
		return nil, fmt.Errorf("invalid SYMBOL_COUNT: must be >= 1")
	}

	tickInterval, err := getDuration("TICK_INTERVAL", 1*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid TICK_INTERVAL: %w", err)
	}

	approveThreshold, err := getInt("APPROVE_THRESHOLD", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid APPROVE_THRESHOLD: %w", err)
	}

	approvalMinDelay, err := getDuration("APPROVAL_MIN_DELAY", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid APPROVAL_MIN_DELAY: %w", err)
	}

	approvalMaxDelay, err := getDuration("APPROVAL_MAX_DELAY", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid APPROVAL_MAX_DELAY: %w", err)
	}

	approveAlways, err := getBool("APPROVE_ALWAYS", false)
	if err != nil {
		return nil, fmt.Errorf("invalid APPROVE_ALWAYS: %w", err)
	}

	breakerMaxFailures, err := getInt("BREAKER_MAX_FAILURES", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid BREAKER_MAX_FAILURES: %w", err)
	}
	if breakerMaxFailures < 1 {
		return nil, fmt.Errorf("invalid BREAKER_MAX_FAILURES: must be >= 1")
	}

	breakerCallTimeout, err := getDuration("BREAKER_CALL_TIMEOUT", 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("invalid BREAKER_CALL_TIMEOUT: %w", err)
	}

	breakerResetTimeout, err := getDuration("BREAKER_RESET_TIMEOUT", 1*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid BREAKER_RESET_TIMEOUT: %w", err)
	}

	journalPath := getStr("JOURNAL_PATH", "data/balance.log")

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		Port:                port,
		LogLevel:            logLevel,
		Strategy:            strategy,
		StartingBalance:     startingBalance,
		SymbolCount:         symbolCount,
		TickInterval:        tickInterval,
		ApproveThreshold:    int64(approveThreshold),
		ApprovalMinDelay:    approvalMinDelay,
		ApprovalMaxDelay:    approvalMaxDelay,
		ApproveAlways:       approveAlways,
		BreakerMaxFailures:  uint(breakerMaxFailures),
		BreakerCallTimeout:  breakerCallTimeout,
		BreakerResetTimeout: breakerResetTimeout,
		JournalPath:         journalPath,
		ReadTimeout:         readTimeout,
		WriteTimeout:        writeTimeout,
		IdleTimeout:         idleTimeout,
		ShutdownTimeout:     shutdownTimeout,
	}, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseBool(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
