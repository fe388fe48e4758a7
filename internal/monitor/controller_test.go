package monitor

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tokenWatch/internal/metrics"
	"tokenWatch/internal/model"
	"tokenWatch/internal/watch"
)

const waitFor = 2 * time.Second

func newTestController(t *testing.T, cfg watch.Config) (*Controller, *fakeSource, *fakeResolver, *recordingSink) {
	t.Helper()
	source := &fakeSource{}
	resolver := &fakeResolver{info: usdcInfo}
	sink := &recordingSink{}
	ctrl := NewController(NewSession(tokenAddr, cfg), resolver, source, sink, Options{
		Logger: zap.NewNop(),
		Now:    func() time.Time { return time.Unix(1700000000, 0).UTC() },
	})
	t.Cleanup(ctrl.Stop)
	return ctrl, source, resolver, sink
}

func allTransfers() watch.Config {
	return watch.Config{Predicate: watch.None{}, LargeAmountThreshold: watch.DefaultLargeAmountThreshold}
}

func TestControllerStartRoutesAndClassifies(t *testing.T) {
	ctrl, source, resolver, sink := newTestController(t, allTransfers())

	require.NoError(t, ctrl.Start(context.Background()))
	require.Equal(t, StateActive, ctrl.State())
	require.Equal(t, int32(1), resolver.calls.Load())
	require.Equal(t, 1, source.count())

	raw, _ := new(big.Int).SetString("2000000000000", 10)
	d := transfer(common.Address{}, bob, 0, 10)
	d.Record.RawValue = raw
	source.sub(0).deliveries <- d

	require.Eventually(t, func() bool { return sink.len() == 1 }, waitFor, time.Millisecond)
	got := sink.snapshot()[0]
	assert.Equal(t, model.KindTransfer, got.typ)

	n, ok := got.v.(model.TransferNotification)
	require.True(t, ok)
	assert.Equal(t, "2000000", n.FormattedAmount)
	assert.Equal(t, "USDC", n.Symbol)
	assert.Equal(t, uint64(10), n.BlockNumber)
	assert.Equal(t, ctrl.Session().ID.String(), n.SessionID)
	assert.True(t, n.Tags.Has(model.TagMint))
	assert.True(t, n.Tags.Has(model.TagLargeAmount))
	assert.False(t, n.Tags.Has(model.TagBurn))
	assert.False(t, n.Tags.Has(model.TagDirectedMatch))
}

func TestControllerDropsFilteredAndPreservesOrder(t *testing.T) {
	cfg := watch.Config{Predicate: watch.Both{From: alice, To: bob}, LargeAmountThreshold: watch.DefaultLargeAmountThreshold}
	ctrl, source, _, sink := newTestController(t, cfg)
	require.NoError(t, ctrl.Start(context.Background()))
	sub := source.sub(0)

	sub.deliveries <- transfer(alice, carol, 1, 1)
	for block := uint64(2); block <= 6; block++ {
		sub.deliveries <- transfer(alice, bob, 1, block)
	}

	require.Eventually(t, func() bool { return sink.len() == 5 }, waitFor, time.Millisecond)
	for i, e := range sink.snapshot() {
		n := e.v.(model.TransferNotification)
		assert.Equal(t, uint64(i+2), n.BlockNumber)
		assert.True(t, n.Tags.Has(model.TagDirectedMatch))
	}
}

func TestControllerTransportErrorKeepsSessionActive(t *testing.T) {
	ctrl, source, _, sink := newTestController(t, allTransfers())
	require.NoError(t, ctrl.Start(context.Background()))
	sub := source.sub(0)

	sub.errs <- errors.New("websocket: close 1006 (abnormal closure)")
	require.Eventually(t, func() bool { return sink.len() == 1 }, waitFor, time.Millisecond)

	e := sink.snapshot()[0]
	assert.Equal(t, model.KindSubscriptionError, e.typ)
	n := e.v.(model.ErrorNotification)
	assert.Equal(t, "subscription_error", n.Kind)
	assert.Contains(t, n.Message, "abnormal closure")
	assert.Equal(t, StateActive, ctrl.State())

	sub.deliveries <- transfer(alice, bob, 1, 2)
	require.Eventually(t, func() bool { return sink.len() == 2 }, waitFor, time.Millisecond)
}

func TestControllerInvalidEventsAreIsolated(t *testing.T) {
	ctrl, source, _, sink := newTestController(t, allTransfers())
	require.NoError(t, ctrl.Start(context.Background()))
	sub := source.sub(0)

	sub.deliveries <- Delivery{Err: &model.InvalidEventError{TxHash: "0xdead", BlockNumber: 7, Err: errors.New("expected 3 topics, got 4")}}
	sub.deliveries <- Delivery{Record: model.TransferRecord{From: alice, To: bob, BlockNumber: 8}}
	sub.deliveries <- transfer(alice, bob, 5, 9)

	require.Eventually(t, func() bool { return sink.len() == 3 }, waitFor, time.Millisecond)
	events := sink.snapshot()

	assert.Equal(t, model.KindInvalidEvent, events[0].typ)
	first := events[0].v.(model.ErrorNotification)
	assert.Equal(t, "0xdead", first.TxHash)
	assert.Equal(t, uint64(7), first.BlockNumber)

	assert.Equal(t, model.KindInvalidEvent, events[1].typ)
	assert.Contains(t, events[1].v.(model.ErrorNotification).Message, "missing amount")

	assert.Equal(t, model.KindTransfer, events[2].typ)
	assert.Equal(t, StateActive, ctrl.State())
}

func TestControllerResolutionFailureStaysIdle(t *testing.T) {
	ctrl, source, resolver, sink := newTestController(t, allTransfers())
	resolver.err = errors.New("symbol(): execution reverted")

	err := ctrl.Start(context.Background())
	var resErr *model.ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, StateIdle, ctrl.State())
	assert.Equal(t, 0, source.count())
	assert.Nil(t, ctrl.Session().TokenInfo)
	assert.Equal(t, 0, sink.len())
}

func TestControllerSubscribeFailureStaysIdle(t *testing.T) {
	ctrl, source, _, _ := newTestController(t, allTransfers())
	source.err = errors.New("dial tcp: connection refused")

	err := ctrl.Start(context.Background())
	var transportErr *model.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, StateIdle, ctrl.State())
}

func TestControllerStartDetachesOnCancelledContext(t *testing.T) {
	ctrl, source, _, _ := newTestController(t, allTransfers())
	ctx, cancel := context.WithCancel(context.Background())
	source.onSubscribe = cancel

	err := ctrl.Start(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateIdle, ctrl.State())
	require.Equal(t, 1, source.count())
	assert.Equal(t, int32(1), source.sub(0).unsubscribed.Load())
}

func TestControllerStartUsesResolvedTokenInfo(t *testing.T) {
	ctrl, _, resolver, _ := newTestController(t, allTransfers())
	info := usdcInfo
	ctrl.Session().TokenInfo = &info

	require.NoError(t, ctrl.Start(context.Background()))
	assert.Equal(t, int32(0), resolver.calls.Load())
}

func TestControllerStartWhileActiveIsNoop(t *testing.T) {
	ctrl, source, resolver, _ := newTestController(t, allTransfers())
	require.NoError(t, ctrl.Start(context.Background()))
	require.NoError(t, ctrl.Start(context.Background()))

	assert.Equal(t, StateActive, ctrl.State())
	assert.Equal(t, 1, source.count())
	assert.Equal(t, int32(1), resolver.calls.Load())
}

func TestControllerStopWhileIdleIsNoop(t *testing.T) {
	ctrl, _, _, _ := newTestController(t, allTransfers())

	ctrl.Stop()
	assert.Equal(t, StateIdle, ctrl.State())

	require.NoError(t, ctrl.Start(context.Background()))
	assert.Equal(t, StateActive, ctrl.State())
}

func TestControllerStopIsIdempotentAndTerminal(t *testing.T) {
	ctrl, source, _, _ := newTestController(t, allTransfers())
	require.NoError(t, ctrl.Start(context.Background()))

	ctrl.Stop()
	ctrl.Stop()

	assert.Equal(t, StateStopped, ctrl.State())
	assert.Equal(t, int32(1), source.sub(0).unsubscribed.Load())
	select {
	case <-ctrl.Done():
	case <-time.After(waitFor):
		t.Fatalf("routing goroutine did not exit")
	}

	require.ErrorIs(t, ctrl.Start(context.Background()), ErrSessionStopped)
	assert.Equal(t, StateStopped, ctrl.State())
	assert.Equal(t, 1, source.count())
}

func TestControllerNoNotificationsAfterStop(t *testing.T) {
	ctrl, source, _, sink := newTestController(t, allTransfers())
	require.NoError(t, ctrl.Start(context.Background()))
	sub := source.sub(0)

	stopSending := make(chan struct{})
	sent := make(chan struct{})
	go func() {
		defer close(sent)
		for block := uint64(1); ; block++ {
			select {
			case sub.deliveries <- transfer(alice, bob, 1, block):
			case <-stopSending:
				return
			}
		}
	}()

	require.Eventually(t, func() bool { return sink.len() > 3 }, waitFor, time.Millisecond)
	ctrl.Stop()
	after := sink.len()

	time.Sleep(20 * time.Millisecond)
	close(stopSending)
	<-sent

	assert.Equal(t, after, sink.len())
}

func TestControllerMetrics(t *testing.T) {
	m := metrics.NewMonitorMetrics()
	source := &fakeSource{}
	sink := &recordingSink{}
	cfg := watch.Config{Predicate: watch.From{Address: alice}, LargeAmountThreshold: watch.DefaultLargeAmountThreshold}
	ctrl := NewController(NewSession(tokenAddr, cfg), &fakeResolver{info: usdcInfo}, source, sink, Options{Metrics: m})

	require.NoError(t, ctrl.Start(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSubscriptions))

	sub := source.sub(0)
	sub.deliveries <- transfer(alice, bob, 1, 1)
	sub.deliveries <- transfer(bob, alice, 1, 2)
	sub.deliveries <- Delivery{Err: errors.New("bad log")}
	sub.errs <- errors.New("read: connection reset")
	require.Eventually(t, func() bool { return sink.len() == 3 }, waitFor, time.Millisecond)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.EventsReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsFiltered))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvalidEvents))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubscriptionErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("directed_match")))

	ctrl.Stop()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveSubscriptions))
}

type blockingSink struct {
	entered chan struct{}
	once    sync.Once
}

func (b *blockingSink) Emit(ctx context.Context, _ string, _ any) error {
	b.once.Do(func() { close(b.entered) })
	<-ctx.Done()
	return ctx.Err()
}

func (b *blockingSink) Close() error { return nil }

func TestControllerStopCancelsInFlightEmit(t *testing.T) {
	source := &fakeSource{}
	sink := &blockingSink{entered: make(chan struct{})}
	ctrl := NewController(NewSession(tokenAddr, allTransfers()), &fakeResolver{info: usdcInfo}, source, sink, Options{})
	require.NoError(t, ctrl.Start(context.Background()))

	source.sub(0).deliveries <- transfer(alice, bob, 1, 1)
	select {
	case <-sink.entered:
	case <-time.After(waitFor):
		t.Fatalf("sink was not called")
	}

	assert.Equal(t, StateActive, ctrl.State())

	stopped := make(chan struct{})
	go func() {
		ctrl.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(waitFor):
		t.Fatalf("stop blocked on an in-flight emit")
	}

	assert.Equal(t, StateStopped, ctrl.State())
	select {
	case <-ctrl.Done():
	default:
		t.Fatalf("routing goroutine still running after stop")
	}
}

func TestControllerStartWithoutSourceIsTransportError(t *testing.T) {
	ctrl := NewController(NewSession(tokenAddr, allTransfers()), &fakeResolver{info: usdcInfo}, nil, &recordingSink{}, Options{})

	err := ctrl.Start(context.Background())
	var transportErr *model.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, StateIdle, ctrl.State())
}
