package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const DefaultRPCURL = "https://eth.llamarpc.com"

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL         string
	Token          string
	WatchFrom      string
	WatchTo        string
	LargeThreshold string
	Out            string
	KafkaBrokers   []string
	KafkaTopic     string
	MetricsAddr    string
	PollInterval   time.Duration
	MaxBlockRange  uint64
	ForcePolling   bool
	Resubscribe    bool
	MaxRetries     int
	RetryBackoff   time.Duration
	LogLevel       string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TOKENWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("rpc", DefaultRPCURL)
	v.SetDefault("large-threshold", "1000000")
	v.SetDefault("out", "-")
	v.SetDefault("kafka-topic", "token-transfers")
	v.SetDefault("poll-interval", 4*time.Second)
	v.SetDefault("max-block-range", uint64(300))
	v.SetDefault("resubscribe", true)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
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
		RPCURL:         strings.TrimSpace(v.GetString("rpc")),
		Token:          strings.TrimSpace(v.GetString("token")),
		WatchFrom:      strings.TrimSpace(v.GetString("watch-from")),
		WatchTo:        strings.TrimSpace(v.GetString("watch-to")),
		LargeThreshold: strings.TrimSpace(v.GetString("large-threshold")),
		Out:            v.GetString("out"),
		KafkaBrokers:   getStringSlice(v, "kafka-brokers"),
		KafkaTopic:     v.GetString("kafka-topic"),
		MetricsAddr:    v.GetString("metrics-addr"),
		PollInterval:   v.GetDuration("poll-interval"),
		MaxBlockRange:  v.GetUint64("max-block-range"),
		ForcePolling:   v.GetBool("force-polling"),
		Resubscribe:    v.GetBool("resubscribe"),
		MaxRetries:     v.GetInt("max-retries"),
		RetryBackoff:   v.GetDuration("retry-backoff"),
		LogLevel:       v.GetString("log-level"),
	}

	return cfg, nil
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
