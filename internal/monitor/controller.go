package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tokenWatch/internal/classify"
	"tokenWatch/internal/metrics"
	"tokenWatch/internal/model"
	"tokenWatch/internal/notify"
)

// ErrSessionStopped is returned by Start once the session has been stopped.
var ErrSessionStopped = errors.New("monitoring session stopped")

// Options configures optional Controller collaborators.
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.MonitorMetrics
	Now     func() time.Time
}

// Controller owns the lifecycle of one session: Idle -> Active -> Stopped.
//
// Sinks are invoked from the routing goroutine with a context that Stop
// cancels. Stop waits for that goroutine, so a Sink must not call Stop
// synchronously.
type Controller struct {
	session  *Session
	resolver Resolver
	source   EventSource
	sink     notify.Sink
	logger   *zap.Logger
	metrics  *metrics.MonitorMetrics
	now      func() time.Time

	startMu sync.Mutex
	mu      sync.Mutex
	state   atomic.Int32
	sub     Subscription
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewController(session *Session, resolver Resolver, source EventSource, sink notify.Sink, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	done := make(chan struct{})
	close(done)

	return &Controller{
		session:  session,
		resolver: resolver,
		source:   source,
		sink:     sink,
		logger:   logger.With(zap.String("session", session.ID.String()), zap.String("token", session.Token.Hex())),
		metrics:  opts.Metrics,
		now:      now,
		done:     done,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Session returns the controlled session.
func (c *Controller) Session() *Session {
	return c.session
}

// Done is closed once the routing goroutine has exited. It is closed from
// the start for a controller that never became active.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Start resolves token metadata if needed, attaches the subscription and
// begins routing. On any failure the session stays idle and nothing remains
// attached.
func (c *Controller) Start(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	switch c.State() {
	case StateActive:
		c.logger.Info("monitoring already running")
		return nil
	case StateStopped:
		return ErrSessionStopped
	}

	if c.session.TokenInfo == nil {
		if err := c.resolve(ctx); err != nil {
			return err
		}
	}

	if c.source == nil {
		return &model.TransportError{Err: fmt.Errorf("event source is nil")}
	}
	sub, err := c.source.Subscribe(ctx, c.session.Token)
	if err != nil {
		return &model.TransportError{Err: fmt.Errorf("subscribe transfers: %w", err)}
	}

	attached := false
	defer func() {
		if !attached {
			sub.Unsubscribe()
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	routeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	c.mu.Lock()
	c.sub = sub
	c.cancel = cancel
	c.done = done
	c.state.Store(int32(StateActive))
	c.mu.Unlock()
	attached = true

	c.metrics.SubscriptionAttached()
	c.logger.Info("monitoring started",
		zap.String("name", c.session.TokenInfo.Name),
		zap.String("symbol", c.session.TokenInfo.Symbol),
		zap.Uint8("decimals", c.session.TokenInfo.Decimals),
		zap.String("watch", c.describeWatch()),
		zap.String("large_threshold", c.session.Config.LargeAmountThreshold.String()),
	)

	go c.route(routeCtx, sub, *c.session.TokenInfo, done)
	return nil
}

// Stop detaches the subscription and moves the session to stopped. It is a
// no-op unless the session is active. Stop returns once the routing
// goroutine has exited, so no notification is emitted after it returns.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.State() != StateActive {
		c.mu.Unlock()
		return
	}
	c.state.Store(int32(StateStopped))
	sub, cancel, done := c.sub, c.cancel, c.done
	c.sub, c.cancel = nil, nil
	c.mu.Unlock()

	cancel()
	sub.Unsubscribe()
	<-done
	c.metrics.SubscriptionDetached()
	c.logger.Info("monitoring stopped")
}

func (c *Controller) resolve(ctx context.Context) error {
	if c.resolver == nil {
		return &model.ResolutionError{Token: c.session.Token.Hex(), Err: fmt.Errorf("resolver is nil")}
	}

	started := time.Now()
	info, err := c.resolver.Resolve(ctx, c.session.Token)
	c.metrics.ObserveResolve(time.Since(started).Seconds())
	if err != nil {
		var resErr *model.ResolutionError
		if !errors.As(err, &resErr) {
			err = &model.ResolutionError{Token: c.session.Token.Hex(), Err: err}
		}
		c.logger.Error("token metadata resolution failed", zap.Error(err))
		return err
	}

	c.session.TokenInfo = &info
	return nil
}

func (c *Controller) describeWatch() string {
	if c.session.Config.Predicate == nil {
		return "all transfers"
	}
	return c.session.Config.Predicate.Describe()
}

func (c *Controller) route(ctx context.Context, sub Subscription, info model.TokenInfo, done chan struct{}) {
	defer close(done)

	deliveries := sub.Deliveries()
	errs := sub.Err()
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				deliveries = nil
				continue
			}
			c.handleDelivery(ctx, info, d)
		case err, ok := <-errs:
			if !ok || err == nil {
				errs = nil
				continue
			}
			c.handleTransportError(ctx, err)
		}
	}
}

func (c *Controller) handleDelivery(ctx context.Context, info model.TokenInfo, d Delivery) {
	c.metrics.Received()

	err := d.Err
	if err == nil {
		err = d.Record.Validate()
	}
	if err != nil {
		c.handleInvalid(ctx, d.Record, err)
		return
	}

	if !c.session.Config.Matches(d.Record) {
		c.metrics.Filtered()
		return
	}

	ct := classify.Classify(d.Record, info, c.session.Config)
	n := model.NewTransferNotification(c.now(), c.session.ID.String(), info, ct)
	if c.emit(ctx, model.KindTransfer, n) {
		c.metrics.Notified(ct.Tags)
	}
}

func (c *Controller) handleInvalid(ctx context.Context, record model.TransferRecord, err error) {
	c.metrics.Invalid()

	var invalid *model.InvalidEventError
	if !errors.As(err, &invalid) {
		invalid = &model.InvalidEventError{TxHash: record.TxHash.Hex(), BlockNumber: record.BlockNumber, Err: err}
	}
	c.logger.Warn("invalid transfer event", zap.Error(invalid))

	c.emit(ctx, model.KindInvalidEvent, model.ErrorNotification{
		Timestamp:   c.now(),
		SessionID:   c.session.ID.String(),
		Kind:        model.KindInvalidEvent,
		Message:     invalid.Error(),
		TxHash:      invalid.TxHash,
		BlockNumber: invalid.BlockNumber,
	})
}

func (c *Controller) handleTransportError(ctx context.Context, err error) {
	c.metrics.SubscriptionError()
	c.logger.Warn("subscription error", zap.Error(err))

	c.emit(ctx, model.KindSubscriptionError, model.ErrorNotification{
		Timestamp: c.now(),
		SessionID: c.session.ID.String(),
		Kind:      model.KindSubscriptionError,
		Message:   err.Error(),
	})
}

// emit delivers to the sink only while the session is active. It runs on
// the routing goroutine only.
func (c *Controller) emit(ctx context.Context, typ string, v any) bool {
	if c.State() != StateActive || ctx.Err() != nil {
		return false
	}
	if err := c.sink.Emit(ctx, typ, v); err != nil {
		c.metrics.SinkError()
		c.logger.Error("notification delivery failed", zap.String("type", typ), zap.Error(err))
		return false
	}
	return true
}
