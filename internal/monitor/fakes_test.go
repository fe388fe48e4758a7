package monitor

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"tokenWatch/internal/model"
)

type fakeSubscription struct {
	deliveries   chan Delivery
	errs         chan error
	unsubscribed atomic.Int32
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{
		deliveries: make(chan Delivery),
		errs:       make(chan error),
	}
}

func (f *fakeSubscription) Deliveries() <-chan Delivery { return f.deliveries }

func (f *fakeSubscription) Err() <-chan error { return f.errs }

func (f *fakeSubscription) Unsubscribe() { f.unsubscribed.Add(1) }

type fakeSource struct {
	mu          sync.Mutex
	subs        []*fakeSubscription
	err         error
	onSubscribe func()
}

func (f *fakeSource) Subscribe(_ context.Context, _ common.Address) (Subscription, error) {
	if f.onSubscribe != nil {
		f.onSubscribe()
	}
	if f.err != nil {
		return nil, f.err
	}
	sub := newFakeSubscription()
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return sub, nil
}

func (f *fakeSource) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeSource) sub(i int) *fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[i]
}

type fakeResolver struct {
	info  model.TokenInfo
	err   error
	calls atomic.Int32
}

func (f *fakeResolver) Resolve(context.Context, common.Address) (model.TokenInfo, error) {
	f.calls.Add(1)
	if f.err != nil {
		return model.TokenInfo{}, f.err
	}
	return f.info, nil
}

type emitted struct {
	typ string
	v   any
}

type recordingSink struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recordingSink) Emit(_ context.Context, typ string, v any) error {
	r.mu.Lock()
	r.events = append(r.events, emitted{typ: typ, v: v})
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) snapshot() []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]emitted(nil), r.events...)
}

func (r *recordingSink) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

var (
	tokenAddr = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	alice     = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob       = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	carol     = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	usdcInfo  = model.TokenInfo{Address: tokenAddr.Hex(), Name: "USD Coin", Symbol: "USDC", Decimals: 6}
)

func transfer(from, to common.Address, raw int64, block uint64) Delivery {
	return Delivery{Record: model.TransferRecord{
		From:        from,
		To:          to,
		RawValue:    big.NewInt(raw),
		TxHash:      common.BigToHash(big.NewInt(int64(block))),
		BlockNumber: block,
	}}
}
