package config

import (
    "fmt"
    "strings"
    "time"

    "github.com/spf13/viper"
)

type SearchConfig struct {
    APIKey      string
    Endpoint    string
    Budget      int
    MinDelay    time.Duration
    Concurrency int
    CallTimeout time.Duration
}

type AIConfig struct {
    FilterEnabled bool
    Threshold     float64
    APIKey        string
    Model         string
}

type Config struct {
    Env         string
    ListenAddr  string
    DatabaseURL string
    ScanWorkers int
    LogLevel    string

    Search            SearchConfig
    PlatformBudgetCap int
    RunDeadline       time.Duration
    AI                AIConfig

    AMQPURL      string
    AMQPExchange string
    ShoutrrrURLs []string
    SentryDSN    string
}

var defaults = map[string]any{
    "APP_ENV":                 "development",
    "LISTEN_ADDR":             ":8080",
    "SCAN_WORKERS":            0,
    "LOG_LEVEL":               "info",
    "SEARCH_ENDPOINT":         "https://google.serper.dev/search",
    "SEARCH_BUDGET":           60,
    "PLATFORM_BUDGET_CAP":     12,
    "RUN_DEADLINE":            "4m",
    "MIN_CALL_DELAY":          "150ms",
    "BATCH_CONCURRENCY":       3,
    "CALL_TIMEOUT":            "10s",
    "AI_FILTER_ENABLED":       false,
    "AI_CONFIDENCE_THRESHOLD": 0.7,
    "OPENAI_MODEL":            "gpt-4o-mini",
    "AMQP_EXCHANGE":           "leakhound.events",
}

// Load reads configuration from the environment. A missing DATABASE_URL is
// reported as an error alongside a usable config; callers that need the
// database decide whether it is fatal.
func Load() (Config, error) {
    v := viper.New()
    v.AutomaticEnv()
    for k, def := range defaults {
        v.SetDefault(k, def)
    }

    cfg := Config{
        Env:         v.GetString("APP_ENV"),
        ListenAddr:  v.GetString("LISTEN_ADDR"),
        DatabaseURL: v.GetString("DATABASE_URL"),
        ScanWorkers: v.GetInt("SCAN_WORKERS"),
        LogLevel:    v.GetString("LOG_LEVEL"),
        Search: SearchConfig{
            APIKey:      v.GetString("SEARCH_API_KEY"),
            Endpoint:    v.GetString("SEARCH_ENDPOINT"),
            Budget:      v.GetInt("SEARCH_BUDGET"),
            MinDelay:    v.GetDuration("MIN_CALL_DELAY"),
            Concurrency: v.GetInt("BATCH_CONCURRENCY"),
            CallTimeout: v.GetDuration("CALL_TIMEOUT"),
        },
        PlatformBudgetCap: v.GetInt("PLATFORM_BUDGET_CAP"),
        RunDeadline:       v.GetDuration("RUN_DEADLINE"),
        AI: AIConfig{
            FilterEnabled: v.GetBool("AI_FILTER_ENABLED"),
            Threshold:     v.GetFloat64("AI_CONFIDENCE_THRESHOLD"),
            APIKey:        v.GetString("OPENAI_API_KEY"),
            Model:         v.GetString("OPENAI_MODEL"),
        },
        AMQPURL:      v.GetString("AMQP_URL"),
        AMQPExchange: v.GetString("AMQP_EXCHANGE"),
        ShoutrrrURLs: splitList(v.GetString("SHOUTRRR_URLS")),
        SentryDSN:    v.GetString("SENTRY_DSN"),
    }
    cfg.Validate()

    if cfg.DatabaseURL == "" {
        return cfg, fmt.Errorf("DATABASE_URL not set")
    }
    return cfg, nil
}

// Validate resets out-of-range values to their defaults.
func (c *Config) Validate() {
    if c.Search.Budget <= 0 {
        c.Search.Budget = defaults["SEARCH_BUDGET"].(int)
    }
    if c.Search.Concurrency <= 0 {
        c.Search.Concurrency = defaults["BATCH_CONCURRENCY"].(int)
    }
    if c.Search.MinDelay < 0 {
        c.Search.MinDelay = 150 * time.Millisecond
    }
    if c.Search.CallTimeout <= 0 {
        c.Search.CallTimeout = 10 * time.Second
    }
    if c.PlatformBudgetCap < 0 {
        c.PlatformBudgetCap = defaults["PLATFORM_BUDGET_CAP"].(int)
    }
    if c.RunDeadline <= 0 {
        c.RunDeadline = 4 * time.Minute
    }
    if c.AI.Threshold <= 0 || c.AI.Threshold > 1 {
        c.AI.Threshold = defaults["AI_CONFIDENCE_THRESHOLD"].(float64)
    }
    if c.ScanWorkers < 0 {
        c.ScanWorkers = 0
    }
}

func splitList(s string) []string {
    var out []string
    for _, part := range strings.Split(s, ",") {
        if part = strings.TrimSpace(part); part != "" {
            out = append(out, part)
        }
    }
    return out
}
