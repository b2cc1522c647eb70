package signer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Signer holds the key the wallet submitter sends from.
type Signer interface {
	Address() common.Address
	SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error)
	// SignMessage returns an EIP-191 personal_sign signature over message.
	SignMessage(message []byte) ([]byte, error)
}
