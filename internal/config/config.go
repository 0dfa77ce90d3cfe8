package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration struct
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Sync    SyncConfig    `mapstructure:"sync"`
	API     APIConfig     `mapstructure:"api"`
	REST    RESTConfig    `mapstructure:"rest"`
}

// StorageConfig holds durable-store settings
type StorageConfig struct {
	Path            string        `mapstructure:"path"`
	FreshnessWindow time.Duration `mapstructure:"freshnessWindow"`
	MaxRecordBytes  int           `mapstructure:"maxRecordBytes"`
	PurgeInterval   time.Duration `mapstructure:"purgeInterval"`
	LedgerRetention time.Duration `mapstructure:"ledgerRetention"`
}

// SyncConfig holds orchestrator timing and batching settings
type SyncConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	BatchSize       int           `mapstructure:"batchSize"`
	BatchDelay      time.Duration `mapstructure:"batchDelay"`
	CycleRetryDelay time.Duration `mapstructure:"cycleRetryDelay"`
	DispatchTimeout time.Duration `mapstructure:"dispatchTimeout"`
}

// APIConfig holds remote backend settings
type APIConfig struct {
	BaseURL        string        `mapstructure:"baseURL"`
	Timeout        time.Duration `mapstructure:"timeout"`
	HealthInterval time.Duration `mapstructure:"healthInterval"`
	HealthTimeout  time.Duration `mapstructure:"healthTimeout"`
}

// RESTConfig holds the local UI-facing server settings
type RESTConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads configuration from file and environment
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("storage.path", "/tmp/thornvale-offline")
	v.SetDefault("storage.freshnessWindow", time.Hour)
	v.SetDefault("storage.maxRecordBytes", 1<<20)
	v.SetDefault("storage.purgeInterval", 10*time.Minute)
	v.SetDefault("storage.ledgerRetention", 24*time.Hour)
	v.SetDefault("sync.interval", 30*time.Second)
	v.SetDefault("sync.batchSize", 10)
	v.SetDefault("sync.batchDelay", time.Second)
	v.SetDefault("sync.cycleRetryDelay", 5*time.Second)
	v.SetDefault("sync.dispatchTimeout", 10*time.Second)
	v.SetDefault("api.baseURL", "http://localhost:8000")
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("api.healthInterval", 15*time.Second)
	v.SetDefault("api.healthTimeout", 3*time.Second)
	v.SetDefault("rest.addr", "127.0.0.1:8099")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
