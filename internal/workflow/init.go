package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"github.com/jmerrifield20/git-audit/internal/contract"
	"github.com/jmerrifield20/git-audit/internal/identity"
	"github.com/jmerrifield20/git-audit/internal/journal"
	"github.com/jmerrifield20/git-audit/internal/settings"
	"github.com/jmerrifield20/git-audit/internal/txbuilder"
)

// CommitMessagePrefix starts the message of the settings commit.
const CommitMessagePrefix = "git-audit: initialize contract "

// Initialize deploys the audit contract, records it in the repository
// settings and, unless noCommit is set, commits the settings file.
func (w *Workflow) Initialize(ctx context.Context, noCommit bool) (int, error) {
	r := w.begin(journal.ActionInit)

	if c, ok := w.settings.Contract(); ok {
		return r.refuse(ctx, "repository is already initialized (contract %s)", c.Address.Hex())
	}
	path := settings.RepositoryPath(w.history.Root())
	if _, err := os.Stat(path); err == nil {
		return r.refuse(ctx, "%s already exists; remove it to initialize again", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return r.fail(ctx, fmt.Errorf("checking %s: %w", path, err))
	}

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

	artifact := contract.Audit()
	iface, err := contract.LoadABI(artifact.ABI)
	if err != nil {
		return r.fail(ctx, err)
	}
	code, err := iface.EncodeDeploy(artifact.Bytecode)
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

	unsigned := txbuilder.Build(nonce, nil, nil, gasPrice, txbuilder.CreationGasLimit(code), code)
	signed, err := txbuilder.Sign(unsigned, id.PrivateKey(), chainID)
	if err != nil {
		return r.fail(ctx, err)
	}
	r.logger.Info("deploying audit contract",
		zap.String("deployer", id.Address().Hex()),
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("gas_limit", unsigned.GasLimit),
	)

	receipt, err := client.SubmitConfirmed(ctx, signed.Bytes())
	if err != nil {
		return r.fail(ctx, err)
	}
	if !r.accepted(receipt, "contract deployment") {
		r.printf("contract deployment was rejected by the ledger (transaction %s)", receipt.TxHash.Hex())
		return r.finish(ctx, journal.OutcomeRejected, ExitFailure, nil)
	}
	if receipt.ContractAddress == nil {
		return r.fail(ctx, fmt.Errorf("transaction %s: %w", receipt.TxHash.Hex(), ErrNoContractAddress))
	}
	address := *receipt.ContractAddress
	r.payload["contract"] = address.Hex()

	if err := w.settings.SetContract(address, id.Address(), artifact.ABI); err != nil {
		return r.fail(ctx, err)
	}
	written, err := w.settings.WriteRepositorySettings(w.history.Root())
	if err != nil {
		return r.fail(ctx, err)
	}

	if !noCommit {
		commit, err := w.history.CommitFile(written, CommitMessagePrefix+address.Hex())
		if err != nil {
			return r.fail(ctx, err)
		}
		r.payload["commit"] = commit.String()
	}

	r.printf("initialized audit contract %s", address.Hex())
	return r.ok(ctx)
}
