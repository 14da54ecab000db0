package workflow

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"go.uber.org/zap"

	"github.com/jmerrifield20/git-audit/internal/contract"
	"github.com/jmerrifield20/git-audit/internal/journal"
	"github.com/jmerrifield20/git-audit/internal/metrics"
	"github.com/jmerrifield20/git-audit/internal/reconcile"
	"github.com/jmerrifield20/git-audit/pkg/revision"
)

// Validate checks that every anchored commit exists in the local history.
// No transaction is signed.
func (w *Workflow) Validate(ctx context.Context) (int, error) {
	r := w.begin(journal.ActionValidate)

	c, ok := w.settings.Contract()
	if !ok {
		return r.refuse(ctx, "repository isn't initialized")
	}
	r.payload["contract"] = c.Address.Hex()

	iface, err := contract.LoadABI(string(c.ABI))
	if err != nil {
		return r.fail(ctx, err)
	}
	data, err := iface.EncodeCommits()
	if err != nil {
		return r.fail(ctx, err)
	}

	client, err := w.connectLedger(ctx)
	if err != nil {
		return r.fail(ctx, err)
	}
	to := c.Address
	raw, err := client.Call(ctx, ethereum.CallMsg{To: &to, Data: data})
	if err != nil {
		return r.fail(ctx, err)
	}
	onchain, err := iface.DecodeCommits(raw)
	if err != nil {
		return r.fail(ctx, err)
	}

	local := revision.NewSet()
	tip, ok, err := w.history.Tip()
	if err != nil {
		return r.fail(ctx, err)
	}
	if ok {
		if local, err = w.history.Ancestry(tip); err != nil {
			return r.fail(ctx, err)
		}
		r.payload["tip"] = tip.String()
	}
	r.logger.Debug("commit sets loaded", zap.Int("onchain", len(onchain)), zap.Int("local", len(local)))

	res := reconcile.Reconcile(onchain, local, r.logger)
	metrics.RecordReconcile(res.Good, res.Bad)
	r.payload["good"] = res.Good
	r.payload["bad"] = res.Bad

	if !res.OK() {
		for _, id := range res.Missing {
			r.printf("missing: %s", id)
		}
		r.printf("validation failed: %d of %d anchored commits are missing from the local history", res.Bad, res.Good+res.Bad)
		return r.finish(ctx, journal.OutcomeMismatch, ExitFailure, nil)
	}
	r.printf("validated %d anchored commits", res.Good)
	return r.ok(ctx)
}
