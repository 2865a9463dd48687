package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
// The live and backfill subcommands share one schema; fields a command does
// not use are ignored.
type Config struct {
	RPCURL           string
	Addresses        []string
	PostgresDSN      string
	StoreBackend     string
	CursorPath       string
	FromBlock        uint64
	ToBlock          uint64
	StartBlock       uint64
	ChunkSize        uint64
	ChunkTimeout     time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	ResubscribeDelay time.Duration
	MetricsAddr      string
	LogLevel         string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PREDICT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("store", "postgres")
	v.SetDefault("cursor-path", "./data/cursor.json")
	v.SetDefault("chunk-size", uint64(2000))
	v.SetDefault("chunk-timeout", 2*time.Minute)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("resubscribe-delay", 5*time.Second)
	v.SetDefault("metrics-addr", ":9091")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:           v.GetString("rpc"),
		Addresses:        getStringSlice(v, "address"),
		PostgresDSN:      v.GetString("pg-dsn"),
		StoreBackend:     v.GetString("store"),
		CursorPath:       v.GetString("cursor-path"),
		FromBlock:        v.GetUint64("from"),
		ToBlock:          v.GetUint64("to"),
		StartBlock:       v.GetUint64("start-block"),
		ChunkSize:        v.GetUint64("chunk-size"),
		ChunkTimeout:     v.GetDuration("chunk-timeout"),
		MaxRetries:       v.GetInt("max-retries"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		ResubscribeDelay: v.GetDuration("resubscribe-delay"),
		MetricsAddr:      v.GetString("metrics-addr"),
		LogLevel:         v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the settings every command needs.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if len(c.Addresses) == 0 {
		return fmt.Errorf("at least one contract address is required")
	}
	switch c.StoreBackend {
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("pg-dsn is required for the postgres store")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store backend: %s", c.StoreBackend)
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
