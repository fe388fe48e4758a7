package token

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tokenWatch/internal/model"
)

// Caller performs read-only contract calls. *chain.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Resolver loads ERC20 metadata for a token.
type Resolver struct {
	caller Caller
	cache  *Cache
	logger *zap.Logger
}

// NewResolver builds a Resolver. cache may be nil.
func NewResolver(caller Caller, cache *Cache, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{caller: caller, cache: cache, logger: logger}
}

// Resolve reads name, symbol and decimals concurrently. Either all three
// succeed or a *model.ResolutionError is returned.
func (r *Resolver) Resolve(ctx context.Context, token common.Address) (model.TokenInfo, error) {
	if r.cache != nil {
		if info, ok := r.cache.Get(token); ok {
			return info, nil
		}
	}
	if r.caller == nil {
		return model.TokenInfo{}, &model.ResolutionError{Token: token.Hex(), Err: fmt.Errorf("caller is nil")}
	}

	parsed, err := ERC20ABI()
	if err != nil {
		return model.TokenInfo{}, &model.ResolutionError{Token: token.Hex(), Err: fmt.Errorf("parse erc20 abi: %w", err)}
	}

	var (
		name     string
		symbol   string
		decimals uint8
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		name, err = r.readText(gctx, token, parsed, "name")
		return err
	})
	g.Go(func() error {
		var err error
		symbol, err = r.readText(gctx, token, parsed, "symbol")
		return err
	})
	g.Go(func() error {
		values, err := r.call(gctx, token, parsed, "decimals")
		if err != nil {
			return err
		}
		decimals, err = asUint8(values[0])
		if err != nil {
			return fmt.Errorf("decimals: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.TokenInfo{}, &model.ResolutionError{Token: token.Hex(), Err: err}
	}

	info := model.TokenInfo{
		Address:  token.Hex(),
		Name:     name,
		Symbol:   symbol,
		Decimals: decimals,
	}
	if r.cache != nil {
		r.cache.Set(token, info)
	}
	return info, nil
}

func (r *Resolver) call(ctx context.Context, token common.Address, parsed abi.ABI, method string) ([]interface{}, error) {
	resp, err := r.rawCall(ctx, token, parsed, method)
	if err != nil {
		return nil, err
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return values, nil
}

func (r *Resolver) rawCall(ctx context.Context, token common.Address, parsed abi.ABI, method string) ([]byte, error) {
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &token, Data: data}
	resp, err := r.caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return resp, nil
}

// readText reads a string method and falls back to bytes32 decoding of the
// same response.
func (r *Resolver) readText(ctx context.Context, token common.Address, parsed abi.ABI, method string) (string, error) {
	resp, err := r.rawCall(ctx, token, parsed, method)
	if err != nil {
		return "", err
	}

	values, err := parsed.Unpack(method, resp)
	if err == nil && len(values) > 0 {
		if text, ok := values[0].(string); ok {
			return text, nil
		}
	}

	bytes32ABI, abiErr := erc20ABIBytes32Instance()
	if abiErr != nil {
		return "", fmt.Errorf("parse erc20 bytes32 abi: %w", abiErr)
	}
	values, fallbackErr := bytes32ABI.Unpack(method, resp)
	if fallbackErr == nil && len(values) > 0 {
		if text, ok := bytes32ToString(values[0]); ok {
			r.logger.Debug("bytes32 metadata fallback", zap.String("token", token.Hex()), zap.String("method", method))
			return text, nil
		}
	}

	if err == nil {
		err = fmt.Errorf("unexpected type")
	}
	return "", fmt.Errorf("unpack %s: %w", method, err)
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		if !v.IsUint64() || v.Uint64() > 255 {
			return 0, fmt.Errorf("decimals out of range: %s", v)
		}
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
