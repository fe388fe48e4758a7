package model

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TransferRecord is one decoded Transfer event delivered by an event source.
type TransferRecord struct {
	From        common.Address
	To          common.Address
	RawValue    *big.Int
	TxHash      common.Hash
	BlockNumber uint64
	LogIndex    uint
}

// Validate reports malformed fields as an InvalidEventError.
func (r TransferRecord) Validate() error {
	if r.RawValue == nil {
		return &InvalidEventError{TxHash: r.TxHash.Hex(), BlockNumber: r.BlockNumber, Err: fmt.Errorf("missing amount")}
	}
	if r.RawValue.Sign() < 0 {
		return &InvalidEventError{TxHash: r.TxHash.Hex(), BlockNumber: r.BlockNumber, Err: fmt.Errorf("negative amount %s", r.RawValue)}
	}
	return nil
}
