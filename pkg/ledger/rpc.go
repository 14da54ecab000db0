package ledger

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultPollInterval is the receipt polling interval used by SubmitConfirmed.
const DefaultPollInterval = time.Second

// Caller is the JSON-RPC transport. *rpc.Client satisfies it.
type Caller interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
	Close()
}

// RequestObserver is an optional callback invoked after every request.
type RequestObserver func(method string, err error)

// RPCClient implements Client over JSON-RPC.
type RPCClient struct {
	caller        Caller
	pollInterval  time.Duration
	confirmations uint64
	dialOpts      []rpc.ClientOption
	onRequest     RequestObserver
	logger        *zap.Logger
}

// Option is a functional option for configuring an RPCClient.
type Option func(*RPCClient) error

// WithPollInterval sets the receipt polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *RPCClient) error {
		if d <= 0 {
			return fmt.Errorf("poll interval must be positive, got %s", d)
		}
		c.pollInterval = d
		return nil
	}
}

// WithConfirmations sets how many blocks must follow the including block
// before SubmitConfirmed returns. The default is zero.
func WithConfirmations(n uint64) Option {
	return func(c *RPCClient) error {
		c.confirmations = n
		return nil
	}
}

// WithHTTPClient sets the http.Client used for http(s) endpoints. Only
// effective with Dial.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *RPCClient) error {
		c.dialOpts = append(c.dialOpts, rpc.WithHTTPClient(hc))
		return nil
	}
}

// WithRequestObserver registers a callback invoked after every request.
func WithRequestObserver(fn RequestObserver) Option {
	return func(c *RPCClient) error {
		c.onRequest = fn
		return nil
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *RPCClient) error {
		c.logger = logger
		return nil
	}
}

// Dial connects to the JSON-RPC endpoint at target (http, https, ws, wss or
// an IPC path).
func Dial(ctx context.Context, target string, opts ...Option) (*RPCClient, error) {
	c, err := newClient(opts)
	if err != nil {
		return nil, err
	}
	rc, err := rpc.DialOptions(ctx, target, c.dialOpts...)
	if err != nil {
		return nil, &RPCError{Method: "dial", Err: err}
	}
	c.caller = rc
	return c, nil
}

// New wraps an existing transport.
func New(caller Caller, opts ...Option) (*RPCClient, error) {
	c, err := newClient(opts)
	if err != nil {
		return nil, err
	}
	c.caller = caller
	return c, nil
}

func newClient(opts []Option) (*RPCClient, error) {
	c := &RPCClient{
		pollInterval: DefaultPollInterval,
		logger:       zap.NewNop(),
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Close releases the transport.
func (c *RPCClient) Close() {
	c.caller.Close()
}

func (c *RPCClient) call(ctx context.Context, result any, method string, args ...any) error {
	err := c.caller.CallContext(ctx, result, method, args...)
	if c.onRequest != nil {
		c.onRequest(method, err)
	}
	if err != nil {
		c.logger.Debug("ledger request failed", zap.String("method", method), zap.Error(err))
		return &RPCError{Method: method, Err: err}
	}
	c.logger.Debug("ledger request", zap.String("method", method))
	return nil
}

// GasPrice implements Client.
func (c *RPCClient) GasPrice(ctx context.Context) (*big.Int, error) {
	var price hexutil.Big
	if err := c.call(ctx, &price, "eth_gasPrice"); err != nil {
		return nil, err
	}
	return (*big.Int)(&price), nil
}

// PendingNonce implements Client.
func (c *RPCClient) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	var nonce hexutil.Uint64
	if err := c.call(ctx, &nonce, "eth_getTransactionCount", account, "pending"); err != nil {
		return 0, err
	}
	return uint64(nonce), nil
}

// EstimateGas implements Client.
func (c *RPCClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var gas hexutil.Uint64
	if err := c.call(ctx, &gas, "eth_estimateGas", toCallArg(msg)); err != nil {
		return 0, err
	}
	return uint64(gas), nil
}

// Call implements Client.
func (c *RPCClient) Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	var out hexutil.Bytes
	if err := c.call(ctx, &out, "eth_call", toCallArg(msg), "latest"); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitConfirmed implements Client.
func (c *RPCClient) SubmitConfirmed(ctx context.Context, rawTx []byte) (*Receipt, error) {
	var hash common.Hash
	if err := c.call(ctx, &hash, "eth_sendRawTransaction", hexutil.Bytes(rawTx)); err != nil {
		return nil, err
	}
	c.logger.Debug("transaction submitted", zap.String("tx_hash", hash.Hex()))
	return c.waitForReceipt(ctx, hash)
}

// rpcReceipt keeps the status optional; go-ethereum's types.Receipt reads a
// missing status as failure.
type rpcReceipt struct {
	TransactionHash common.Hash     `json:"transactionHash"`
	Status          *hexutil.Uint64 `json:"status"`
	ContractAddress *common.Address `json:"contractAddress"`
	BlockNumber     *hexutil.Big    `json:"blockNumber"`
}

func (c *RPCClient) waitForReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	limiter := rate.NewLimiter(rate.Every(c.pollInterval), 1)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil, &RPCError{Method: "eth_getTransactionReceipt", Err: err}
		}

		var r *rpcReceipt
		if err := c.call(ctx, &r, "eth_getTransactionReceipt", hash); err != nil {
			return nil, err
		}
		if r == nil || r.BlockNumber == nil {
			continue
		}

		included := (*big.Int)(r.BlockNumber)
		if c.confirmations > 0 {
			var head hexutil.Big
			if err := c.call(ctx, &head, "eth_blockNumber"); err != nil {
				return nil, err
			}
			depth := new(big.Int).Sub((*big.Int)(&head), included)
			if depth.Cmp(new(big.Int).SetUint64(c.confirmations)) < 0 {
				continue
			}
		}

		receipt := &Receipt{
			TxHash:          r.TransactionHash,
			ContractAddress: r.ContractAddress,
			BlockNumber:     included,
		}
		if receipt.TxHash == (common.Hash{}) {
			receipt.TxHash = hash
		}
		if r.Status != nil {
			raw := uint64(*r.Status)
			receipt.RawStatus = &raw
		}
		receipt.Status = StatusFromRaw(receipt.RawStatus)
		return receipt, nil
	}
}

// toCallArg mirrors the call object accepted by eth_call and eth_estimateGas.
// Calldata goes under both "input" and "data"; older nodes read only "data".
func toCallArg(msg ethereum.CallMsg) any {
	arg := map[string]any{
		"from": msg.From,
		"to":   msg.To,
	}
	if len(msg.Data) > 0 {
		arg["input"] = hexutil.Bytes(msg.Data)
		arg["data"] = hexutil.Bytes(msg.Data)
	}
	if msg.Value != nil {
		arg["value"] = (*hexutil.Big)(msg.Value)
	}
	if msg.Gas != 0 {
		arg["gas"] = hexutil.Uint64(msg.Gas)
	}
	if msg.GasPrice != nil {
		arg["gasPrice"] = (*hexutil.Big)(msg.GasPrice)
	}
	return arg
}
