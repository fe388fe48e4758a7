package token

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"tokenWatch/internal/model"
)

// TransferTopic returns the topic0 of Transfer(address,address,uint256).
func TransferTopic() (common.Hash, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return common.Hash{}, err
	}
	return parsed.Events["Transfer"].ID, nil
}

// DecodeTransfer decodes a raw Transfer log. Malformed logs yield a
// *model.InvalidEventError.
func DecodeTransfer(log types.Log) (model.TransferRecord, error) {
	invalid := func(err error) (model.TransferRecord, error) {
		return model.TransferRecord{}, &model.InvalidEventError{
			TxHash:      log.TxHash.Hex(),
			BlockNumber: log.BlockNumber,
			Err:         err,
		}
	}

	parsed, err := ERC20ABI()
	if err != nil {
		return invalid(fmt.Errorf("parse erc20 abi: %w", err))
	}
	event := parsed.Events["Transfer"]

	// ERC721 shares the Transfer signature but indexes tokenId as a fourth topic.
	if len(log.Topics) != 3 {
		return invalid(fmt.Errorf("expected 3 topics, got %d", len(log.Topics)))
	}
	if log.Topics[0] != event.ID {
		return invalid(fmt.Errorf("unexpected topic0 %s", log.Topics[0].Hex()))
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return invalid(fmt.Errorf("unpack value: %w", err))
	}
	if len(values) != 1 {
		return invalid(fmt.Errorf("expected 1 data value, got %d", len(values)))
	}
	value, err := asBigInt(values[0])
	if err != nil {
		return invalid(err)
	}

	return model.TransferRecord{
		From:        common.BytesToAddress(log.Topics[1].Bytes()),
		To:          common.BytesToAddress(log.Topics[2].Bytes()),
		RawValue:    value,
		TxHash:      log.TxHash,
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
	}, nil
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
