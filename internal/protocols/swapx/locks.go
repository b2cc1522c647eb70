package swapx

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
	"github.com/ggonzalez94/defi-adapters/internal/execution"
	"github.com/ggonzalez94/defi-adapters/internal/id"
	"github.com/ggonzalez94/defi-adapters/internal/validate"
)

// Lock is one veSWPx position.
type Lock struct {
	TokenID   *big.Int `json:"tokenId"`
	Amount    *big.Int `json:"amount"`
	End       *big.Int `json:"end"`
	Voted     bool     `json:"voted"`
	IsVesting bool     `json:"isVesting"`
}

// readLocks lists the locks of owner in enumeration order. Lock state and the block
// timestamp used for IsVesting come from a single batch.
func (s *swapx) readLocks(ctx context.Context, p adapter.Provider, ve, owner common.Address) ([]Lock, error) {
	count, err := execution.ReadBig(ctx, p, execution.NewCall(ve, votingEscrowABI, "balanceOf", owner))
	if err != nil {
		return nil, err
	}
	n := int(count.Int64())
	if n == 0 {
		return nil, nil
	}
	idCalls := make([]execution.ViewCall, 0, n)
	for i := 0; i < n; i++ {
		idCalls = append(idCalls, execution.NewCall(ve, votingEscrowABI, "tokenOfOwnerByIndex", owner, big.NewInt(int64(i))))
	}
	idResults, err := execution.Aggregate(ctx, p, s.cfg.Multicall, idCalls)
	if err != nil {
		return nil, err
	}

	ids := make([]*big.Int, 0, n)
	stateCalls := make([]execution.ViewCall, 0, 2*n)
	for _, r := range idResults {
		tokenID := r.Big(0)
		if tokenID == nil {
			return nil, fmt.Errorf("missing lock token id")
		}
		ids = append(ids, tokenID)
		stateCalls = append(stateCalls,
			execution.NewCall(ve, votingEscrowABI, "locked", tokenID),
			execution.NewCall(ve, votingEscrowABI, "voted", tokenID),
		)
	}
	results, now, err := execution.AggregateWithTimestamp(ctx, p, s.cfg.Multicall, stateCalls)
	if err != nil {
		return nil, err
	}

	locks := make([]Lock, 0, n)
	for i, tokenID := range ids {
		amount, end := results[2*i].Big(0), results[2*i].Big(1)
		if amount == nil || end == nil {
			return nil, fmt.Errorf("missing lock state for %s", tokenID)
		}
		voted, _ := results[2*i+1].Values[0].(bool)
		locks = append(locks, Lock{
			TokenID:   tokenID,
			Amount:    amount,
			End:       end,
			Voted:     voted,
			IsVesting: end.Cmp(now) > 0,
		})
	}
	return locks, nil
}

func formatTimestamp(ts *big.Int) string {
	return time.Unix(ts.Int64(), 0).UTC().Format(time.RFC3339)
}

func (s *swapx) getLocks(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
	ctx, inv := execution.Begin(ctx, Name, "getLocks", opts)
	inv.Enter(execution.StageValidating)
	req, err := validate.Common(props.String("chainName"), props.String("account"), s.chains())
	if err != nil {
		return inv.Fail(err)
	}

	inv.Enter(execution.StageReading)
	provider, err := execution.Provider(opts, req.Chain.EVMChainID)
	if err != nil {
		return inv.Fail(err)
	}
	locks, err := s.readLocks(ctx, provider, s.contracts(req.Chain.EVMChainID).ve, req.Account)
	if err != nil {
		return inv.Fail(clierr.Wrap(clierr.CodeUnavailable, "failed to fetch locks", err))
	}

	inv.Enter(execution.StageFormatting)
	if len(locks) == 0 {
		return inv.Done("No veSWPx locks found")
	}
	lines := []string{fmt.Sprintf("Found %s:", execution.Pluralize(big.NewInt(int64(len(locks))), "lock", "locks"))}
	for _, l := range locks {
		status := "expired"
		if l.IsVesting {
			status = "vesting until " + formatTimestamp(l.End)
		}
		voted := "not voted"
		if l.Voted {
			voted = "voted"
		}
		lines = append(lines, fmt.Sprintf("- #%s: %s SWPx, %s, %s", l.TokenID, id.FormatUnitsPrecision(l.Amount, 18, 6), status, voted))
	}
	return inv.Done(strings.Join(lines, "\n"))
}

// lockRequest is the validated common part of every tokenId function.
type lockRequest struct {
	validate.Request
	tokenID *big.Int
}

func (s *swapx) validateLock(props adapter.Props) (lockRequest, error) {
	req, err := validate.Common(props.String("chainName"), props.String("account"), s.chains())
	if err != nil {
		return lockRequest{}, err
	}
	tokenID, err := validate.NonNegativeInt("tokenId", props.String("tokenId"))
	if err != nil {
		return lockRequest{}, err
	}
	return lockRequest{Request: req, tokenID: tokenID}, nil
}

// lockState is the on-chain state of one lock read against a single block.
type lockState struct {
	owner       common.Address
	amount      *big.Int
	end         *big.Int
	voted       bool
	attachments *big.Int
	now         *big.Int
}

func (s *swapx) readLockState(ctx context.Context, p adapter.Provider, ve common.Address, tokenID *big.Int) (lockState, error) {
	results, now, err := execution.AggregateWithTimestamp(ctx, p, s.cfg.Multicall, []execution.ViewCall{
		execution.NewCall(ve, votingEscrowABI, "ownerOf", tokenID),
		execution.NewCall(ve, votingEscrowABI, "locked", tokenID),
		execution.NewCall(ve, votingEscrowABI, "voted", tokenID),
		execution.NewCall(ve, votingEscrowABI, "attachments", tokenID),
	})
	if err != nil {
		return lockState{}, clierr.Wrap(clierr.CodeUnavailable, "failed to fetch lock", err)
	}
	owner, _ := results[0].Values[0].(common.Address)
	voted, _ := results[2].Values[0].(bool)
	return lockState{
		owner:       owner,
		amount:      results[1].Big(0),
		end:         results[1].Big(1),
		voted:       voted,
		attachments: results[3].Big(0),
		now:         now,
	}, nil
}

func (l lockRequest) requireOwner(state lockState) error {
	if state.owner != l.Account {
		return clierr.New(clierr.CodePrecondition, fmt.Sprintf("Lock #%s is not owned by %s", l.tokenID, l.Account.Hex()))
	}
	return nil
}
