package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"tokenWatch/internal/metrics"
	"tokenWatch/internal/model"
	"tokenWatch/internal/notify"
	"tokenWatch/internal/watch"
)

// RunConfig holds the caller-side policy around monitoring sessions.
type RunConfig struct {
	Token        common.Address
	Watch        watch.Config
	Resubscribe  bool
	MaxRetries   int
	RetryBackoff time.Duration
}

// Runner drives sessions until ctx ends. Starting is retried; after a
// transport error the session is stopped and, if Resubscribe is set, a new
// session is started with the already resolved metadata.
type Runner struct {
	cfg      RunConfig
	resolver Resolver
	source   EventSource
	sink     notify.Sink
	logger   *zap.Logger
	metrics  *metrics.MonitorMetrics
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, resolver Resolver, source EventSource, sink notify.Sink, logger *zap.Logger, m *metrics.MonitorMetrics) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:      cfg,
		resolver: resolver,
		source:   source,
		sink:     sink,
		logger:   logger,
		metrics:  m,
	}
}

// Run blocks until ctx is done or a session cannot be (re)started. It
// returns nil on cancellation.
func (r *Runner) Run(ctx context.Context) error {
	if r.sink == nil {
		return fmt.Errorf("sink is nil")
	}

	var info *model.TokenInfo
	for sessions := 0; ; sessions++ {
		session := NewSession(r.cfg.Token, r.cfg.Watch)
		session.TokenInfo = info

		failures := make(chan error, 1)
		ctrl := NewController(session, r.resolver, r.source, &failureTap{Sink: r.sink, failures: failures}, Options{
			Logger:  r.logger,
			Metrics: r.metrics,
		})

		err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
			err := ctrl.Start(ctx)
			if err != nil && ctx.Err() == nil {
				r.logger.Warn("start monitoring failed", zap.Error(err))
			}
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("start monitoring: %w", err)
		}
		info = session.TokenInfo

		select {
		case <-ctx.Done():
			ctrl.Stop()
			<-ctrl.Done()
			return nil
		case err := <-failures:
			ctrl.Stop()
			<-ctrl.Done()
			if !r.cfg.Resubscribe {
				return &model.TransportError{Err: err}
			}
			r.logger.Info("resubscribing", zap.Int("sessions", sessions+1), zap.Duration("backoff", r.cfg.RetryBackoff))
			if err := sleep(ctx, r.cfg.RetryBackoff); err != nil {
				return nil
			}
		}
	}
}

// failureTap forwards notifications and signals the first transport error.
type failureTap struct {
	notify.Sink
	failures chan error
}

func (t *failureTap) Emit(ctx context.Context, typ string, v any) error {
	err := t.Sink.Emit(ctx, typ, v)
	if typ == model.KindSubscriptionError {
		msg := typ
		if n, ok := v.(model.ErrorNotification); ok {
			msg = n.Message
		}
		select {
		case t.failures <- errors.New(msg):
		default:
		}
	}
	return err
}
