package config

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
    t.Setenv("DATABASE_URL", "postgres://localhost/leakhound")

    cfg, err := Load()
    require.NoError(t, err)
    assert.Equal(t, ":8080", cfg.ListenAddr)
    assert.Equal(t, 60, cfg.Search.Budget)
    assert.Equal(t, 150*time.Millisecond, cfg.Search.MinDelay)
    assert.Equal(t, 3, cfg.Search.Concurrency)
    assert.Equal(t, 10*time.Second, cfg.Search.CallTimeout)
    assert.Equal(t, 12, cfg.PlatformBudgetCap)
    assert.Equal(t, 4*time.Minute, cfg.RunDeadline)
    assert.False(t, cfg.AI.FilterEnabled)
    assert.InDelta(t, 0.7, cfg.AI.Threshold, 1e-9)
    assert.Equal(t, "leakhound.events", cfg.AMQPExchange)
    assert.Empty(t, cfg.ShoutrrrURLs)
}

func TestLoadFromEnv(t *testing.T) {
    t.Setenv("DATABASE_URL", "postgres://localhost/leakhound")
    t.Setenv("SEARCH_BUDGET", "40")
    t.Setenv("RUN_DEADLINE", "90s")
    t.Setenv("AI_FILTER_ENABLED", "true")
    t.Setenv("AI_CONFIDENCE_THRESHOLD", "0.65")
    t.Setenv("SHOUTRRR_URLS", "discord://token@id, ,slack://a/b/c")

    cfg, err := Load()
    require.NoError(t, err)
    assert.Equal(t, 40, cfg.Search.Budget)
    assert.Equal(t, 90*time.Second, cfg.RunDeadline)
    assert.True(t, cfg.AI.FilterEnabled)
    assert.InDelta(t, 0.65, cfg.AI.Threshold, 1e-9)
    assert.Equal(t, []string{"discord://token@id", "slack://a/b/c"}, cfg.ShoutrrrURLs)
}

func TestLoadClampsInvalidValues(t *testing.T) {
    t.Setenv("DATABASE_URL", "postgres://localhost/leakhound")
    t.Setenv("SEARCH_BUDGET", "-3")
    t.Setenv("BATCH_CONCURRENCY", "0")
    t.Setenv("AI_CONFIDENCE_THRESHOLD", "7")

    cfg, err := Load()
    require.NoError(t, err)
    assert.Equal(t, 60, cfg.Search.Budget)
    assert.Equal(t, 3, cfg.Search.Concurrency)
    assert.InDelta(t, 0.7, cfg.AI.Threshold, 1e-9)
}

func TestLoadWithoutDatabase(t *testing.T) {
    t.Setenv("DATABASE_URL", "")

    cfg, err := Load()
    require.Error(t, err)
    assert.Equal(t, 60, cfg.Search.Budget)
}
