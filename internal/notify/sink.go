package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Sink receives notifications. typ is one of the model.Kind* constants.
type Sink interface {
	Emit(ctx context.Context, typ string, v any) error
	Close() error
}

// Envelope wraps a notification payload on the wire.
type Envelope struct {
	Type string          `json:"type"`
	TS   int64           `json:"ts"` // unix milli
	Data json.RawMessage `json:"data"`
}

func newEnvelope(typ string, v any, now time.Time) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: typ, TS: now.UnixMilli(), Data: data})
}

// Multi fans a notification out to every sink.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, typ string, v any) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, typ, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
