// Package reconcile compares the anchored commit set with local history.
package reconcile

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jmerrifield20/git-audit/pkg/revision"
)

// Result classifies the entries of an on-chain commit set.
type Result struct {
	Good    int
	Bad     int
	Missing []revision.ID // on-chain entries absent locally, in on-chain order
}

// OK reports whether every on-chain entry exists locally.
func (r Result) OK() bool { return r.Bad == 0 }

// Reconcile checks each entry of onchain for membership in local. Duplicate
// on-chain entries are counted each time they appear. Neither input is
// modified.
func Reconcile(onchain []revision.ID, local revision.Set, logger *zap.Logger) Result {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ce := logger.Check(zapcore.DebugLevel, "reconciling commit sets"); ce != nil {
		ce.Write(
			zap.Strings("onchain", revision.Strings(onchain)),
			zap.Strings("local", revision.Strings(local.Sorted())),
		)
	}

	var res Result
	for _, id := range onchain {
		if local.Has(id) {
			res.Good++
			continue
		}
		res.Bad++
		res.Missing = append(res.Missing, id)
		logger.Warn("anchored commit missing from local history", zap.Stringer("commit", id))
	}

	logger.Info("reconciliation complete",
		zap.Int("good", res.Good),
		zap.Int("bad", res.Bad),
	)
	return res
}
