package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateFeeRate(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.FeeRate = "1.5"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fee_rate")

	cfg.Engine.FeeRate = "ten percent"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a decimal")
}

func TestValidateFeeSplit(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.FeeSplit[0].Percent = "0.16"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum to")

	cfg = Defaults()
	cfg.Engine.FeeSplit = nil
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fee_split")
}

func TestValidateNoWinnersPolicy(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.NoWinnersPolicy = "burn"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_winners_policy")
}

func TestValidateNotify(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notify")

	cfg.Notify.TelegramToken = "token"
	cfg.Notify.TelegramChatID = "chat"
	assert.NoError(t, cfg.Validate())
}

func TestSettlementParams(t *testing.T) {
	cfg := Defaults()
	params, err := cfg.SettlementParams()
	require.NoError(t, err)

	assert.Equal(t, "0.1", params.FeeRate.String())
	require.Len(t, params.Split, 4)
	assert.Equal(t, "leaderboard", params.Split[0].Name)
	assert.Equal(t, "treasury", params.Split[3].Name)
	assert.Equal(t, "treasury", params.TreasuryPool)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SETTLER_ENGINE_FEE_RATE", "0.05")
	t.Setenv("SETTLER_DATABASE_HOST", "db.internal")
	t.Setenv("SETTLER_WORKER_BATCH_SIZE", "50")
	t.Setenv("SETTLER_NOTIFY_EVENTS", "market_resolved, invariant_violation")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "0.05", cfg.Engine.FeeRate)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 50, cfg.Worker.BatchSize)
	assert.Equal(t, []string{"market_resolved", "invariant_violation"}, cfg.Notify.Events)
}
