// Package validate holds the pure checks every adapter function runs before touching a
// provider or building a transaction.
package validate

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/id"
)

const (
	MsgWalletNotConnected = "Wallet not connected"
	MsgAmountNotPositive  = "Amount must be greater than 0"
)

// Account requires a connected, well-formed EVM account.
func Account(raw string) (common.Address, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return common.Address{}, clierr.New(clierr.CodeUsage, MsgWalletNotConnected)
	}
	if !common.IsHexAddress(clean) {
		return common.Address{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("Invalid account address: %s", clean))
	}
	return common.HexToAddress(clean), nil
}

// Chain maps name to a known chain and requires it in supported.
func Chain(name string, supported []int64) (id.Chain, error) {
	chain, err := id.ParseChainName(name)
	if err != nil {
		return id.Chain{}, err
	}
	for _, cid := range supported {
		if cid == chain.EVMChainID {
			return chain, nil
		}
	}
	return id.Chain{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("Protocol is not supported on %s", chain.Slug))
}

// Amount converts a decimal string into base units and rejects zero or unparsable input.
func Amount(raw string, decimals int) (*big.Int, error) {
	value, err := id.ParseUnits(raw, decimals)
	if err != nil {
		if typed, ok := clierr.As(err); ok && strings.HasPrefix(typed.Message, "Amount precision") {
			return nil, err
		}
		return nil, clierr.New(clierr.CodeUsage, MsgAmountNotPositive)
	}
	if value.Sign() <= 0 {
		return nil, clierr.New(clierr.CodeUsage, MsgAmountNotPositive)
	}
	return value, nil
}

// Address validates a non-account address parameter.
func Address(field, raw string) (common.Address, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return common.Address{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s is required", field))
	}
	if !common.IsHexAddress(clean) {
		return common.Address{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("Invalid %s: %s", field, clean))
	}
	return common.HexToAddress(clean), nil
}

// Request is the validated common part of every function request.
type Request struct {
	Chain   id.Chain
	Account common.Address
}

// Common runs the account and chain checks in that order.
func Common(chainName, account string, supported []int64) (Request, error) {
	acct, err := Account(account)
	if err != nil {
		return Request{}, err
	}
	chain, err := Chain(chainName, supported)
	if err != nil {
		return Request{}, err
	}
	return Request{Chain: chain, Account: acct}, nil
}

// NonNegativeInt parses an integer id or count (token id, withdraw id, bps). Zero is allowed.
func NonNegativeInt(field, raw string) (*big.Int, error) {
	clean := strings.TrimSpace(raw)
	n, ok := new(big.Int).SetString(clean, 10)
	if !ok || n.Sign() < 0 {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("Invalid %s: %s", field, raw))
	}
	return n, nil
}
