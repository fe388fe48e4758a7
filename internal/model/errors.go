package model

import "fmt"

// ConfigurationError reports an invalid configuration value found before a session starts.
type ConfigurationError struct {
	Field string
	Value string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ResolutionError reports a failed token metadata read.
type ResolutionError struct {
	Token string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve token %s: %v", e.Token, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// TransportError reports a failure of the event source feed.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("subscription: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// InvalidEventError reports a single malformed event.
type InvalidEventError struct {
	TxHash      string
	BlockNumber uint64
	Err         error
}

func (e *InvalidEventError) Error() string {
	if e.TxHash == "" {
		return fmt.Sprintf("invalid event: %v", e.Err)
	}
	return fmt.Sprintf("invalid event in tx %s (block %d): %v", e.TxHash, e.BlockNumber, e.Err)
}

func (e *InvalidEventError) Unwrap() error { return e.Err }
