package config

import (
	"log"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// BoostTier is one purchasable promotion slot: a duration and its price in SUI.
type BoostTier struct {
	Hours    int     `mapstructure:"hours"`
	PriceSUI float64 `mapstructure:"price_sui"`
}

// PipelineConfig holds the tunables of the buy pipeline.
type PipelineConfig struct {
	QueueCapacity        int     `mapstructure:"queue_capacity"`
	WorkerPoolSize       int     `mapstructure:"worker_pool_size"`
	TrendingMinUSD       float64 `mapstructure:"trending_min_usd"`
	MarketTTLMinutes     int     `mapstructure:"market_ttl_minutes"`
	WindowMinutes        int     `mapstructure:"window_minutes"`
	TopN                 int     `mapstructure:"top_n"`
	DedupCapacity        int     `mapstructure:"dedup_capacity"`
	DeliveryMaxAttempts  int     `mapstructure:"delivery_max_attempts"`
	DeliveryRetrySeconds int     `mapstructure:"delivery_retry_seconds"`
	ShutdownGraceSeconds int     `mapstructure:"shutdown_grace_seconds"`
}

// BoostConfig holds the boost promotion tunables.
type BoostConfig struct {
	ScoreMultiplier       float64     `mapstructure:"score_multiplier"`
	PaymentTimeoutMinutes int         `mapstructure:"payment_timeout_minutes"`
	PaymentPollSeconds    int         `mapstructure:"payment_poll_seconds"`
	Tiers                 []BoostTier `mapstructure:"tiers"`
}

// Config defines the global configuration structure.
type Config struct {
	App struct {
		Port        string `mapstructure:"port"`
		Environment string `mapstructure:"environment"`
	} `mapstructure:"app"`

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`

	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Boost    BoostConfig    `mapstructure:"boost"`
}

var (
	globalConfig *Config
	configLock   sync.RWMutex
)

// MarketTTL returns the market cache freshness window.
func (p PipelineConfig) MarketTTL() time.Duration {
	return time.Duration(p.MarketTTLMinutes) * time.Minute
}

// Window returns the rolling leaderboard window.
func (p PipelineConfig) Window() time.Duration {
	return time.Duration(p.WindowMinutes) * time.Minute
}

// Tier returns the boost tier matching the requested duration in hours.
func (b BoostConfig) Tier(hours int) (BoostTier, bool) {
	for _, tier := range b.Tiers {
		if tier.Hours == hours {
			return tier, true
		}
	}
	return BoostTier{}, false
}

func setDefaults() {
	viper.SetDefault("app.port", "8080")
	viper.SetDefault("app.environment", "production")
	viper.SetDefault("logging.level", "info")

	viper.SetDefault("pipeline.queue_capacity", 256)
	viper.SetDefault("pipeline.worker_pool_size", 10)
	viper.SetDefault("pipeline.trending_min_usd", 200.0)
	viper.SetDefault("pipeline.market_ttl_minutes", 5)
	viper.SetDefault("pipeline.window_minutes", 30)
	viper.SetDefault("pipeline.top_n", 10)
	viper.SetDefault("pipeline.dedup_capacity", 4096)
	viper.SetDefault("pipeline.delivery_max_attempts", 3)
	viper.SetDefault("pipeline.delivery_retry_seconds", 2)
	viper.SetDefault("pipeline.shutdown_grace_seconds", 15)

	viper.SetDefault("boost.score_multiplier", 10.0)
	viper.SetDefault("boost.payment_timeout_minutes", 30)
	viper.SetDefault("boost.payment_poll_seconds", 15)
}

// LoadConfig loads configuration from the specified file path and merges it with environment variables.
func LoadConfig(path string) (*Config, error) {
	log.Printf("Loading configuration from file: %s", path)

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	viper.BindEnv("app.port", "PORT")
	viper.BindEnv("app.environment", "ENVIRONMENT")
	viper.BindEnv("logging.level", "LOG_LEVEL")

	setDefaults()

	var cfg Config

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file: %v. Using defaults.", err)
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		log.Printf("Error unmarshalling configuration: %v", err)
		return nil, err
	}

	if len(cfg.Boost.Tiers) == 0 {
		cfg.Boost.Tiers = []BoostTier{
			{Hours: 4, PriceSUI: 15},
			{Hours: 8, PriceSUI: 20},
			{Hours: 12, PriceSUI: 27},
			{Hours: 24, PriceSUI: 45},
			{Hours: 48, PriceSUI: 80},
			{Hours: 72, PriceSUI: 110},
			{Hours: 168, PriceSUI: 180},
		}
	}

	return &cfg, nil
}

// SetGlobalConfig sets the loaded configuration globally.
func SetGlobalConfig(cfg *Config) {
	configLock.Lock()
	defer configLock.Unlock()
	globalConfig = cfg
}

// GetGlobalConfig retrieves the globally set configuration.
func GetGlobalConfig() *Config {
	configLock.RLock()
	defer configLock.RUnlock()
	if globalConfig == nil {
		log.Println("GetGlobalConfig: Global configuration is nil.")
	}
	return globalConfig
}
