package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tokenWatch/internal/chain"
	"tokenWatch/internal/config"
	"tokenWatch/internal/metrics"
	"tokenWatch/internal/monitor"
	"tokenWatch/internal/notify"
	"tokenWatch/internal/source"
	"tokenWatch/internal/token"
	"tokenWatch/internal/watch"
)

func runWatch(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	tokenAddr, err := watch.ParseAddress("token", cfg.Token)
	if err != nil {
		return err
	}
	watchCfg, err := watch.ParseConfig(cfg.WatchFrom, cfg.WatchTo, cfg.LargeThreshold)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	sink, err := buildSink(cfg, tokenAddr.Hex(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("close sinks", zap.Error(err))
		}
	}()

	m := metrics.NewMonitorMetrics()
	if cfg.MetricsAddr != "" {
		shutdown, err := serveMetrics(cfg.MetricsAddr, m, logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	resolver := token.NewResolver(chainClient, token.NewCache(), logger)
	src := source.NewEthereum(chainClient, source.Config{
		PollInterval:  cfg.PollInterval,
		MaxBlockRange: cfg.MaxBlockRange,
		ForcePolling:  cfg.ForcePolling,
	}, logger)

	runner := monitor.NewRunner(monitor.RunConfig{
		Token:        tokenAddr,
		Watch:        watchCfg,
		Resubscribe:  cfg.Resubscribe,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, resolver, src, sink, logger, m)

	logger.Info("tokenwatch start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("chain_id", chainID.String()),
		zap.String("token", tokenAddr.Hex()),
		zap.String("watch", watchCfg.Predicate.Describe()),
		zap.String("large_threshold", watchCfg.LargeAmountThreshold.String()),
		zap.String("out", cfg.Out),
		zap.Strings("kafka_brokers", cfg.KafkaBrokers),
		zap.Bool("resubscribe", cfg.Resubscribe),
	)

	return runner.Run(ctx)
}

func buildSink(cfg config.Config, key string, logger *zap.Logger) (notify.Sink, error) {
	sinks := notify.Multi{notify.NewConsoleSink(logger)}

	switch cfg.Out {
	case "":
	case "-":
		sinks = append(sinks, notify.NewJSONLSink(os.Stdout))
	default:
		jsonl, err := notify.OpenJSONLFile(cfg.Out)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, jsonl)
	}

	if len(cfg.KafkaBrokers) > 0 {
		kcfg := sarama.NewConfig()
		kcfg.ClientID = "tokenwatch"
		kafka, err := notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, key, kcfg)
		if err != nil {
			_ = sinks.Close()
			return nil, fmt.Errorf("kafka sink: %w", err)
		}
		sinks = append(sinks, kafka)
	}

	return sinks, nil
}

func serveMetrics(addr string, m *metrics.MonitorMetrics, logger *zap.Logger) (func(), error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := m.Register(reg); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("metrics server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}, nil
}
