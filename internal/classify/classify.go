package classify

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"tokenWatch/internal/model"
	"tokenWatch/internal/watch"
)

// ZeroAddress marks mints (as sender) and burns (as recipient).
var ZeroAddress = common.Address{}

// ScaleAmount converts a raw token amount to its decimal-adjusted value exactly.
func ScaleAmount(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// FormatAmount renders a scaled amount without trailing zeros.
func FormatAmount(raw *big.Int, decimals uint8) string {
	return ScaleAmount(raw, decimals).String()
}

// Classify tags an accepted transfer. Tags are independent and may co-occur.
func Classify(record model.TransferRecord, info model.TokenInfo, cfg watch.Config) model.ClassifiedTransfer {
	amount := ScaleAmount(record.RawValue, info.Decimals)

	var tags model.TagSet
	if record.From == ZeroAddress {
		tags = tags.With(model.TagMint)
	}
	if record.To == ZeroAddress {
		tags = tags.With(model.TagBurn)
	}
	if amount.GreaterThan(cfg.LargeAmountThreshold) {
		tags = tags.With(model.TagLargeAmount)
	}
	if cfg.Directed() {
		tags = tags.With(model.TagDirectedMatch)
	}

	return model.ClassifiedTransfer{
		Record:          record,
		FormattedAmount: amount.String(),
		Tags:            tags,
	}
}
