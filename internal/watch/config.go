package watch

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"tokenWatch/internal/model"
)

// DefaultLargeAmountThreshold is used when no threshold is configured.
var DefaultLargeAmountThreshold = decimal.NewFromInt(1_000_000)

// Config is the immutable watch configuration of a session.
type Config struct {
	Predicate            Predicate
	LargeAmountThreshold decimal.Decimal
}

// Matches applies the configured predicate to a record.
func (c Config) Matches(record model.TransferRecord) bool {
	if c.Predicate == nil {
		return true
	}
	return c.Predicate.Matches(record.From, record.To)
}

// Directed reports whether the predicate restricts sender or recipient.
func (c Config) Directed() bool {
	return c.Predicate != nil && c.Predicate.Directed()
}

// ParseConfig validates the raw watch settings. Empty strings mean unset.
// Failures are *model.ConfigurationError.
func ParseConfig(watchFrom, watchTo, threshold string) (Config, error) {
	from, err := parseOptionalAddress("watch-from", watchFrom)
	if err != nil {
		return Config{}, err
	}
	to, err := parseOptionalAddress("watch-to", watchTo)
	if err != nil {
		return Config{}, err
	}
	limit, err := ParseThreshold(threshold)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Predicate:            NewPredicate(from, to),
		LargeAmountThreshold: limit,
	}, nil
}

// ParseThreshold parses a non-negative decimal threshold. Empty selects the default.
func ParseThreshold(input string) (decimal.Decimal, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return DefaultLargeAmountThreshold, nil
	}
	value, err := decimal.NewFromString(input)
	if err != nil {
		return decimal.Decimal{}, &model.ConfigurationError{Field: "large-threshold", Value: input, Err: err}
	}
	if value.IsNegative() {
		return decimal.Decimal{}, &model.ConfigurationError{Field: "large-threshold", Value: input, Err: fmt.Errorf("must not be negative")}
	}
	return value, nil
}

// ParseAddress validates a hex address. All-lowercase and all-uppercase hex
// are accepted as is; mixed case must carry a valid EIP-55 checksum.
func ParseAddress(field, input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return common.Address{}, &model.ConfigurationError{Field: field, Err: fmt.Errorf("address is required")}
	}
	if !common.IsHexAddress(input) {
		return common.Address{}, &model.ConfigurationError{Field: field, Value: input, Err: fmt.Errorf("not a 20-byte hex address")}
	}

	address := common.HexToAddress(input)
	digits := strings.TrimPrefix(strings.TrimPrefix(input, "0x"), "0X")
	if digits != strings.ToLower(digits) && digits != strings.ToUpper(digits) {
		if digits != address.Hex()[2:] {
			return common.Address{}, &model.ConfigurationError{Field: field, Value: input, Err: fmt.Errorf("bad checksum")}
		}
	}
	return address, nil
}

func parseOptionalAddress(field, input string) (*common.Address, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	address, err := ParseAddress(field, input)
	if err != nil {
		return nil, err
	}
	return &address, nil
}
