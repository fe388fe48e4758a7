package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tokenWatch/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:          "tokenwatch",
		Short:        "ERC-20 transfer monitor",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch Transfer events of a token until interrupted",
		RunE:  runWatch,
	}

	watchCmd.Flags().String("rpc", config.DefaultRPCURL, "Ethereum RPC URL (ws:// for subscriptions, http:// for polling)")
	watchCmd.Flags().String("token", "", "ERC-20 token address")
	watchCmd.Flags().String("watch-from", "", "only report transfers from this address")
	watchCmd.Flags().String("watch-to", "", "only report transfers to this address")
	watchCmd.Flags().String("large-threshold", "1000000", "human-unit amount above which a transfer is large")
	watchCmd.Flags().String("out", "-", "JSONL output path, - for stdout, empty to disable")
	watchCmd.Flags().StringSlice("kafka-brokers", nil, "Kafka brokers (comma-separated)")
	watchCmd.Flags().String("kafka-topic", "token-transfers", "Kafka topic")
	watchCmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address")
	watchCmd.Flags().Duration("poll-interval", 4*time.Second, "polling interval when subscriptions are unavailable")
	watchCmd.Flags().Uint64("max-block-range", 300, "maximum blocks per eth_getLogs query when polling")
	watchCmd.Flags().Bool("force-polling", false, "poll eth_getLogs instead of subscribing")
	watchCmd.Flags().Bool("resubscribe", true, "start a new subscription after a transport error")
	watchCmd.Flags().Int("max-retries", 5, "maximum retry attempts when starting a session")
	watchCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	watchCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(watchCmd)

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Resolve and print token metadata",
		RunE:  runInfo,
	}

	infoCmd.Flags().String("rpc", config.DefaultRPCURL, "Ethereum RPC URL")
	infoCmd.Flags().String("token", "", "ERC-20 token address")
	infoCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(infoCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
