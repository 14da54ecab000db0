package workflow

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"go.uber.org/zap"

	"github.com/jmerrifield20/git-audit/internal/contract"
	"github.com/jmerrifield20/git-audit/internal/identity"
	"github.com/jmerrifield20/git-audit/internal/journal"
	"github.com/jmerrifield20/git-audit/internal/txbuilder"
)

// Anchor records the current tip in the audit contract.
func (w *Workflow) Anchor(ctx context.Context) (int, error) {
	r := w.begin(journal.ActionAnchor)

	c, ok := w.settings.Contract()
	if !ok {
		return r.refuse(ctx, "repository isn't initialized")
	}
	r.payload["contract"] = c.Address.Hex()

	secret, err := w.settings.PrivateKey()
	if err != nil {
		return r.fail(ctx, err)
	}
	chainID, err := w.settings.ChainID()
	if err != nil {
		return r.fail(ctx, err)
	}
	id, err := identity.Derive(secret, r.logger)
	if err != nil {
		return r.fail(ctx, err)
	}
	if id.Address() != c.Owner {
		r.logger.Warn("signing account is not the contract owner",
			zap.String("account", id.Address().Hex()),
			zap.String("owner", c.Owner.Hex()),
		)
	}

	tip, ok, err := w.history.Tip()
	if err != nil {
		return r.fail(ctx, err)
	}
	if !ok {
		return r.refuse(ctx, "nothing to anchor: the history is empty")
	}
	r.payload["tip"] = tip.String()

	iface, err := contract.LoadABI(string(c.ABI))
	if err != nil {
		return r.fail(ctx, err)
	}
	data, err := iface.EncodeAnchor(tip)
	if err != nil {
		return r.fail(ctx, err)
	}

	client, err := w.connectLedger(ctx)
	if err != nil {
		return r.fail(ctx, err)
	}
	gasPrice, err := client.GasPrice(ctx)
	if err != nil {
		return r.fail(ctx, err)
	}
	nonce, err := client.PendingNonce(ctx, id.Address())
	if err != nil {
		return r.fail(ctx, err)
	}
	to := c.Address
	gas, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From:     id.Address(),
		To:       &to,
		GasPrice: gasPrice,
		Data:     data,
	})
	if err != nil {
		return r.fail(ctx, err)
	}

	signed, err := txbuilder.Sign(txbuilder.Build(nonce, &to, nil, gasPrice, gas, data), id.PrivateKey(), chainID)
	if err != nil {
		return r.fail(ctx, err)
	}
	r.logger.Info("anchoring commit",
		zap.Stringer("commit", tip),
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("gas_limit", gas),
	)

	receipt, err := client.SubmitConfirmed(ctx, signed.Bytes())
	if err != nil {
		return r.fail(ctx, err)
	}
	if !r.accepted(receipt, "anchor") {
		r.printf("anchoring %s was rejected by the ledger (transaction %s)", tip, receipt.TxHash.Hex())
		return r.finish(ctx, journal.OutcomeRejected, ExitFailure, nil)
	}

	r.printf("anchored %s", tip)
	return r.ok(ctx)
}
