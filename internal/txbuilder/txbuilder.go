// Package txbuilder assembles and signs legacy ledger transactions.
//
// Transactions are built fresh for each submission, signed exactly once for
// a chain id (EIP-155) and never modified afterwards.
package txbuilder

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
)

// CreationMargin is the fixed safety margin added to the creation gas limit.
const CreationMargin uint64 = 100_000

var (
	// ErrChainID is returned when signing for chain id zero.
	ErrChainID = errors.New("chain id must be non-zero")
	// ErrNoKey is returned when signing without a private key.
	ErrNoKey = errors.New("signing key is required")
)

// UnsignedTransaction holds the fields of a transaction before signing.
// A nil To denotes contract creation.
type UnsignedTransaction struct {
	Nonce    uint64
	To       *common.Address
	Value    *big.Int
	GasPrice *big.Int
	GasLimit uint64
	Data     []byte
}

// Build assembles an unsigned transaction. Nil amounts are treated as zero.
func Build(nonce uint64, to *common.Address, value, gasPrice *big.Int, gasLimit uint64, data []byte) UnsignedTransaction {
	tx := UnsignedTransaction{
		Nonce:    nonce,
		Value:    new(big.Int),
		GasPrice: new(big.Int),
		GasLimit: gasLimit,
		Data:     common.CopyBytes(data),
	}
	if to != nil {
		addr := *to
		tx.To = &addr
	}
	if value != nil {
		tx.Value.Set(value)
	}
	if gasPrice != nil {
		tx.GasPrice.Set(gasPrice)
	}
	return tx
}

// IsCreation reports whether the transaction deploys a contract.
func (u UnsignedTransaction) IsCreation() bool { return u.To == nil }

// SignedTransaction is an immutable, encoded, signed transaction.
type SignedTransaction struct {
	raw     []byte
	hash    common.Hash
	chainID uint64
}

// Bytes returns the RLP wire encoding.
func (s *SignedTransaction) Bytes() []byte { return common.CopyBytes(s.raw) }

// Hash returns the transaction hash.
func (s *SignedTransaction) Hash() common.Hash { return s.hash }

// ChainID returns the chain the signature is bound to.
func (s *SignedTransaction) ChainID() uint64 { return s.chainID }

// Sign signs u for chainID. Signatures are deterministic (RFC 6979), so the
// same inputs always yield the same bytes.
func Sign(u UnsignedTransaction, key *ecdsa.PrivateKey, chainID uint64) (*SignedTransaction, error) {
	if key == nil {
		return nil, ErrNoKey
	}
	if chainID == 0 {
		return nil, ErrChainID
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    u.Nonce,
		To:       u.To,
		Value:    u.Value,
		GasPrice: u.GasPrice,
		Gas:      u.GasLimit,
		Data:     u.Data,
	})
	signer := types.NewEIP155Signer(new(big.Int).SetUint64(chainID))
	signed, err := types.SignTx(tx, signer, key)
	if err != nil {
		return nil, fmt.Errorf("signing transaction: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encoding transaction: %w", err)
	}
	return &SignedTransaction{raw: raw, hash: signed.Hash(), chainID: chainID}, nil
}

// CreationGasLimit returns the gas limit used to deploy code: the intrinsic
// creation cost, the per-byte code deposit charge and CreationMargin.
func CreationGasLimit(code []byte) uint64 {
	gas := params.TxGasContractCreation
	for _, b := range code {
		if b == 0 {
			gas += params.TxDataZeroGas
		} else {
			gas += params.TxDataNonZeroGasEIP2028
		}
	}
	gas += params.CreateDataGas * uint64(len(code))
	return gas + CreationMargin
}
