package host

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/registry"
)

var (
	policyERC20ABI        = mustPolicyABI(registry.ERC20ABI)
	policyApproveSelector = policyERC20ABI.Methods["approve"].ID
)

type PolicyOptions struct {
	// AllowUnlimitedApproval lets batches approve type(uint256).max.
	AllowUnlimitedApproval bool
	MaxTransactions        int
}

// validateBatch is the host's last look at a batch before anything is signed or stored.
func validateBatch(req adapter.SendTransactionsRequest, opts PolicyOptions) error {
	if req.ChainID <= 0 {
		return clierr.New(clierr.CodeUsage, "batch has no chain id")
	}
	if req.Account == (common.Address{}) {
		return clierr.New(clierr.CodeUsage, "batch has no account")
	}
	if len(req.Transactions) == 0 {
		return clierr.New(clierr.CodeUsage, "batch has no transactions")
	}
	if opts.MaxTransactions > 0 && len(req.Transactions) > opts.MaxTransactions {
		return clierr.New(clierr.CodeBlocked, fmt.Sprintf("batch has %d transactions, the limit is %d", len(req.Transactions), opts.MaxTransactions))
	}
	for i, tx := range req.Transactions {
		if tx.Target == (common.Address{}) {
			return clierr.New(clierr.CodeUsage, fmt.Sprintf("transaction %d has no target", i+1))
		}
		if tx.Value != nil && tx.Value.Sign() < 0 {
			return clierr.New(clierr.CodeUsage, fmt.Sprintf("transaction %d has a negative value", i+1))
		}
		if len(tx.Data) >= 4 && bytes.Equal(tx.Data[:4], policyApproveSelector) {
			if err := validateApprovalPolicy(i, tx.Data, opts); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateApprovalPolicy(i int, data []byte, opts PolicyOptions) error {
	args, err := policyERC20ABI.Methods["approve"].Inputs.Unpack(data[4:])
	if err != nil || len(args) != 2 {
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("transaction %d has invalid approve calldata", i+1))
	}
	spender, ok := args[0].(common.Address)
	if !ok || spender == (common.Address{}) {
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("transaction %d approves the zero address", i+1))
	}
	amount, ok := args[1].(*big.Int)
	if !ok || amount == nil {
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("transaction %d has invalid approval amount", i+1))
	}
	if !opts.AllowUnlimitedApproval && amount.Cmp(math.MaxBig256) == 0 {
		return clierr.New(clierr.CodeBlocked, fmt.Sprintf("transaction %d is an unlimited approval for %s", i+1, spender.Hex()))
	}
	return nil
}

func mustPolicyABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
