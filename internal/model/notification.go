package model

import (
	"time"
)

// Notification types emitted to sinks.
const (
	KindTransfer          = "transfer"
	KindSubscriptionError = "subscription_error"
	KindInvalidEvent      = "invalid_event"
)

// TransferNotification is the sink payload for an accepted transfer.
type TransferNotification struct {
	Timestamp       time.Time `json:"timestamp"`
	SessionID       string    `json:"session_id"`
	Token           string    `json:"token"`
	From            string    `json:"from"`
	To              string    `json:"to"`
	FormattedAmount string    `json:"formatted_amount"`
	Symbol          string    `json:"symbol"`
	TxHash          string    `json:"tx_hash"`
	BlockNumber     uint64    `json:"block_number"`
	LogIndex        uint      `json:"log_index"`
	Tags            TagSet    `json:"tags"`
}

// ErrorNotification is the sink payload for transport and per-event failures.
type ErrorNotification struct {
	Timestamp   time.Time `json:"timestamp"`
	SessionID   string    `json:"session_id"`
	Kind        string    `json:"kind"`
	Message     string    `json:"message"`
	TxHash      string    `json:"tx_hash,omitempty"`
	BlockNumber uint64    `json:"block_number,omitempty"`
}

// NewTransferNotification flattens a classified transfer for sinks.
func NewTransferNotification(ts time.Time, sessionID string, info TokenInfo, ct ClassifiedTransfer) TransferNotification {
	return TransferNotification{
		Timestamp:       ts,
		SessionID:       sessionID,
		Token:           info.Address,
		From:            ct.Record.From.Hex(),
		To:              ct.Record.To.Hex(),
		FormattedAmount: ct.FormattedAmount,
		Symbol:          info.Symbol,
		TxHash:          ct.Record.TxHash.Hex(),
		BlockNumber:     ct.Record.BlockNumber,
		LogIndex:        ct.Record.LogIndex,
		Tags:            ct.Tags,
	}
}
