// Package ledger is the git-audit view of a ledger node.
//
// Client is the capability the anchoring workflow consumes: gas price, account
// nonce, gas estimation, read-only calls, and submission of a signed transaction
// followed by a wait for its receipt. RPCClient implements it over JSON-RPC:
//
//	c, err := ledger.Dial(ctx, "http://localhost:8545",
//	    ledger.WithPollInterval(500*time.Millisecond),
//	    ledger.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	price, err := c.GasPrice(ctx)
//
// Requests are issued one at a time by the caller; the client adds no retries.
// Any transport or RPC failure is returned as an *RPCError naming the method.
//
// # Receipts
//
// SubmitConfirmed returns once the transaction has been included and the
// configured number of additional blocks (zero by default) has been mined.
// The receipt status is reported as-is: a node that omits the status field
// yields StatusAbsent and an unknown value yields StatusUnrecognized. Neither is
// ever folded into StatusSuccess.
package ledger
