package notify

import (
	"context"

	"go.uber.org/zap"

	"tokenWatch/internal/model"
)

// ConsoleSink logs notifications in human-readable form.
type ConsoleSink struct {
	logger *zap.Logger
}

func NewConsoleSink(logger *zap.Logger) *ConsoleSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleSink{logger: logger}
}

func (s *ConsoleSink) Emit(_ context.Context, typ string, v any) error {
	switch n := v.(type) {
	case model.TransferNotification:
		s.transfer(n)
	case model.ErrorNotification:
		s.logger.Error(n.Kind,
			zap.String("message", n.Message),
			zap.String("tx_hash", n.TxHash),
			zap.Uint64("block_number", n.BlockNumber),
		)
	default:
		s.logger.Info(typ, zap.Any("payload", v))
	}
	return nil
}

func (s *ConsoleSink) transfer(n model.TransferNotification) {
	amount := n.FormattedAmount + " " + n.Symbol
	s.logger.Info("transfer",
		zap.String("from", n.From),
		zap.String("to", n.To),
		zap.String("amount", amount),
		zap.String("tx_hash", n.TxHash),
		zap.Uint64("block_number", n.BlockNumber),
		zap.Stringer("tags", n.Tags),
	)

	if n.Tags.Has(model.TagMint) {
		s.logger.Warn("mint detected", zap.String("amount", amount), zap.String("tx_hash", n.TxHash))
	}
	if n.Tags.Has(model.TagBurn) {
		s.logger.Warn("burn detected", zap.String("amount", amount), zap.String("tx_hash", n.TxHash))
	}
	if n.Tags.Has(model.TagLargeAmount) {
		s.logger.Warn("large transfer", zap.String("amount", amount), zap.String("tx_hash", n.TxHash))
	}
}

func (s *ConsoleSink) Close() error {
	return nil
}
