package config

import (
	"log"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Settlement holds the settings shared by the API and the worker.
type Settlement struct {
	SystemIncomeAccountID  string
	SystemExpenseAccountID string

	QueueName   string
	MaxAttempts int
	Concurrency int
	PollTimeout time.Duration
	LockTimeout time.Duration

	IdempotencyTTL     time.Duration
	IdempotencyLockTTL time.Duration

	BudgetLocation   *time.Location
	StrictBudgetLock bool

	ReversalWindow      time.Duration
	HighValueThreshold  decimal.Decimal
	EmbeddedWorker      bool
	TransactionListSize int
}

// Load reads .env (if present) and the environment into viper and applies defaults.
func Load() {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("server.port", "PORT")

	viper.BindEnv("system.income_account_id", "SYSTEM_INCOME_ACCOUNT_ID")
	viper.BindEnv("system.expense_account_id", "SYSTEM_EXPENSE_ACCOUNT_ID")

	viper.BindEnv("settlement.queue_name", "SETTLEMENT_QUEUE_NAME")
	viper.BindEnv("settlement.max_attempts", "SETTLEMENT_MAX_ATTEMPTS")
	viper.BindEnv("settlement.concurrency", "SETTLEMENT_CONCURRENCY")
	viper.BindEnv("settlement.poll_timeout", "SETTLEMENT_POLL_TIMEOUT")
	viper.BindEnv("settlement.lock_timeout", "SETTLEMENT_LOCK_TIMEOUT")
	viper.BindEnv("settlement.idempotency_ttl", "SETTLEMENT_IDEMPOTENCY_TTL")
	viper.BindEnv("settlement.idempotency_lock_ttl", "SETTLEMENT_IDEMPOTENCY_LOCK_TTL")
	viper.BindEnv("settlement.budget_timezone", "SETTLEMENT_BUDGET_TIMEZONE")
	viper.BindEnv("settlement.strict_budget_lock", "SETTLEMENT_STRICT_BUDGET_LOCK")
	viper.BindEnv("settlement.reversal_window", "SETTLEMENT_REVERSAL_WINDOW")
	viper.BindEnv("settlement.high_value_threshold", "SETTLEMENT_HIGH_VALUE_THRESHOLD")
	viper.BindEnv("settlement.embedded_worker", "SETTLEMENT_EMBEDDED_WORKER")
	viper.BindEnv("settlement.list_size", "SETTLEMENT_LIST_SIZE")

	SetDefaults()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}
}

// SetDefaults registers the settlement defaults without reading any file.
func SetDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("system.income_account_id", "system-income")
	viper.SetDefault("system.expense_account_id", "system-expense")

	viper.SetDefault("settlement.queue_name", "transaction-queue")
	viper.SetDefault("settlement.max_attempts", 5)
	viper.SetDefault("settlement.concurrency", 4)
	viper.SetDefault("settlement.poll_timeout", 5*time.Second)
	viper.SetDefault("settlement.lock_timeout", 5*time.Second)
	viper.SetDefault("settlement.idempotency_ttl", 24*time.Hour)
	viper.SetDefault("settlement.idempotency_lock_ttl", 10*time.Second)
	viper.SetDefault("settlement.budget_timezone", "UTC")
	viper.SetDefault("settlement.strict_budget_lock", true)
	viper.SetDefault("settlement.reversal_window", 30*24*time.Hour)
	viper.SetDefault("settlement.high_value_threshold", "10000")
	viper.SetDefault("settlement.embedded_worker", false)
	viper.SetDefault("settlement.list_size", 50)
}

// LoadSettlement builds Settlement from viper. Invalid values fall back to defaults.
func LoadSettlement() *Settlement {
	loc, err := time.LoadLocation(viper.GetString("settlement.budget_timezone"))
	if err != nil {
		log.Printf("Invalid budget timezone %q, using UTC: %v", viper.GetString("settlement.budget_timezone"), err)
		loc = time.UTC
	}

	threshold, err := decimal.NewFromString(viper.GetString("settlement.high_value_threshold"))
	if err != nil {
		log.Printf("Invalid high value threshold %q, using 10000: %v", viper.GetString("settlement.high_value_threshold"), err)
		threshold = decimal.NewFromInt(10000)
	}

	return &Settlement{
		SystemIncomeAccountID:  viper.GetString("system.income_account_id"),
		SystemExpenseAccountID: viper.GetString("system.expense_account_id"),
		QueueName:              viper.GetString("settlement.queue_name"),
		MaxAttempts:            atLeast(viper.GetInt("settlement.max_attempts"), 1),
		Concurrency:            atLeast(viper.GetInt("settlement.concurrency"), 1),
		PollTimeout:            viper.GetDuration("settlement.poll_timeout"),
		LockTimeout:            viper.GetDuration("settlement.lock_timeout"),
		IdempotencyTTL:         viper.GetDuration("settlement.idempotency_ttl"),
		IdempotencyLockTTL:     viper.GetDuration("settlement.idempotency_lock_ttl"),
		BudgetLocation:         loc,
		StrictBudgetLock:       viper.GetBool("settlement.strict_budget_lock"),
		ReversalWindow:         viper.GetDuration("settlement.reversal_window"),
		HighValueThreshold:     threshold,
		EmbeddedWorker:         viper.GetBool("settlement.embedded_worker"),
		TransactionListSize:    atLeast(viper.GetInt("settlement.list_size"), 1),
	}
}

func atLeast(v, min int) int {
	if v < min {
		return min
	}
	return v
}
