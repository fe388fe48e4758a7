package monitor

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"tokenWatch/internal/model"
	"tokenWatch/internal/watch"
)

// State is the lifecycle state of a monitoring session.
type State int32

const (
	StateIdle State = iota
	StateActive
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Session is one monitoring run over a token. TokenInfo is set once, before
// the session becomes active, and never changes afterwards.
type Session struct {
	ID        uuid.UUID
	Token     common.Address
	Config    watch.Config
	TokenInfo *model.TokenInfo
}

func NewSession(token common.Address, cfg watch.Config) *Session {
	return &Session{
		ID:     uuid.New(),
		Token:  token,
		Config: cfg,
	}
}

// Delivery is one item from an event source: a decoded record, or the
// decode failure for that event.
type Delivery struct {
	Record model.TransferRecord
	Err    error
}

// Subscription is an attached Transfer feed. Unsubscribe is idempotent.
type Subscription interface {
	Deliveries() <-chan Delivery
	Err() <-chan error
	Unsubscribe()
}

// EventSource attaches Transfer subscriptions for a token.
type EventSource interface {
	Subscribe(ctx context.Context, token common.Address) (Subscription, error)
}

// Resolver loads token metadata. *token.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, token common.Address) (model.TokenInfo, error)
}
