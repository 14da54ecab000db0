package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Client is the set of ledger requests used by the anchoring workflow.
type Client interface {
	// GasPrice returns the node's suggested gas price.
	GasPrice(ctx context.Context) (*big.Int, error)

	// PendingNonce returns the next nonce for account, counting pending transactions.
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)

	// EstimateGas returns the gas a call would consume.
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)

	// Call executes msg read-only against the latest block and returns its output.
	Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)

	// SubmitConfirmed sends a signed transaction and waits for its receipt.
	SubmitConfirmed(ctx context.Context, rawTx []byte) (*Receipt, error)
}

// Status is the outcome recorded in a receipt.
type Status int

const (
	// StatusAbsent means the receipt carried no status field.
	StatusAbsent Status = iota
	// StatusSuccess means the transaction executed successfully.
	StatusSuccess
	// StatusFailure means the transaction was included but reverted.
	StatusFailure
	// StatusUnrecognized means the status field held an unknown value.
	StatusUnrecognized
)

func (s Status) String() string {
	switch s {
	case StatusAbsent:
		return "absent"
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusUnrecognized:
		return "unrecognized"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Receipt is the ledger's confirmation record for a transaction.
type Receipt struct {
	TxHash          common.Hash
	Status          Status
	RawStatus       *uint64 // value as reported by the node, nil when absent
	ContractAddress *common.Address
	BlockNumber     *big.Int
}

// StatusFromRaw classifies a receipt status field.
func StatusFromRaw(raw *uint64) Status {
	switch {
	case raw == nil:
		return StatusAbsent
	case *raw == 1:
		return StatusSuccess
	case *raw == 0:
		return StatusFailure
	default:
		return StatusUnrecognized
	}
}

// RPCError reports a failed ledger request.
type RPCError struct {
	Method string
	Err    error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Method, e.Err)
}

func (e *RPCError) Unwrap() error { return e.Err }

// IsRPCError reports whether err came from a ledger request.
func IsRPCError(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr)
}
