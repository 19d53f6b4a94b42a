package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestLoadSettlement_Defaults(t *testing.T) {
	viper.Reset()
	SetDefaults()

	cfg := LoadSettlement()
	assert.Equal(t, "transaction-queue", cfg.QueueName)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, 10*time.Second, cfg.IdempotencyLockTTL)
	assert.Equal(t, 720*time.Hour, cfg.ReversalWindow)
	assert.Equal(t, time.UTC, cfg.BudgetLocation)
	assert.True(t, cfg.StrictBudgetLock)
	assert.Equal(t, "10000", cfg.HighValueThreshold.String())
	assert.Equal(t, "system-income", cfg.SystemIncomeAccountID)
	assert.Equal(t, "system-expense", cfg.SystemExpenseAccountID)
}

func TestLoadSettlement_InvalidValuesFallBack(t *testing.T) {
	viper.Reset()
	SetDefaults()
	viper.Set("settlement.budget_timezone", "Mars/Olympus")
	viper.Set("settlement.high_value_threshold", "lots")
	viper.Set("settlement.concurrency", 0)

	cfg := LoadSettlement()
	assert.Equal(t, time.UTC, cfg.BudgetLocation)
	assert.Equal(t, "10000", cfg.HighValueThreshold.String())
	assert.Equal(t, 1, cfg.Concurrency)
}
