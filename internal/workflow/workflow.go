// Package workflow implements the init, anchor and validate operations.
//
// Each operation returns a process exit code and an error. A nil error with
// ExitFailure means the failure was already reported to the user (refused
// operation, rejected transaction, validation mismatch); a non-nil error is
// left to the caller to report.
//
// A receipt without a recognizable status is a broken node or transport and
// is never read as success: the operation panics.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmerrifield20/git-audit/internal/journal"
	"github.com/jmerrifield20/git-audit/internal/metrics"
	"github.com/jmerrifield20/git-audit/internal/settings"
	"github.com/jmerrifield20/git-audit/pkg/ledger"
	"github.com/jmerrifield20/git-audit/pkg/revision"
)

// Exit codes.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitUnexpected = 2
)

// ErrNoContractAddress is returned when a successful deployment receipt does
// not name the created contract.
var ErrNoContractAddress = errors.New("deployment receipt has no contract address")

// History is the version-control collaborator.
type History interface {
	// Root returns the work tree root.
	Root() string
	// Tip returns the current head commit; ok is false for an empty history.
	Tip() (id revision.ID, ok bool, err error)
	// Ancestry returns tip and every commit reachable from it.
	Ancestry(tip revision.ID) (revision.Set, error)
	// CommitFile commits one work tree file on top of the tip.
	CommitFile(rel, message string) (revision.ID, error)
}

// Connector opens a ledger client for the configured RPC target. It is
// called at most once per workflow, and only when a request is needed.
type Connector func(ctx context.Context, rpcTarget string) (ledger.Client, error)

// Workflow runs operations against one repository.
type Workflow struct {
	settings *settings.Settings
	history  History
	connect  Connector
	client   ledger.Client
	journal  journal.Journal
	logger   *zap.Logger
	out      io.Writer
}

// Option is a functional option for configuring a Workflow.
type Option func(*Workflow)

// WithJournal records every finished operation in j.
func WithJournal(j journal.Journal) Option {
	return func(w *Workflow) { w.journal = j }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Workflow) { w.logger = logger }
}

// WithOutput sets where user-facing messages are printed. Defaults to stdout.
func WithOutput(out io.Writer) Option {
	return func(w *Workflow) { w.out = out }
}

// New creates a Workflow.
func New(s *settings.Settings, h History, connect Connector, opts ...Option) *Workflow {
	w := &Workflow{
		settings: s,
		history:  h,
		connect:  connect,
		logger:   zap.NewNop(),
		out:      os.Stdout,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// connectLedger returns the client, connecting on first use.
func (w *Workflow) connectLedger(ctx context.Context) (ledger.Client, error) {
	if w.client != nil {
		return w.client, nil
	}
	target, err := w.settings.RPCTarget()
	if err != nil {
		return nil, err
	}
	client, err := w.connect(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", target, err)
	}
	w.client = client
	return client, nil
}

// ── Runs ─────────────────────────────────────────────────────────────────────

// run carries the per-operation context: id, logger and the record that ends
// up in the journal.
type run struct {
	w       *Workflow
	id      uuid.UUID
	action  string
	start   time.Time
	logger  *zap.Logger
	payload map[string]any
}

func (w *Workflow) begin(action string) *run {
	id := uuid.New()
	r := &run{
		w:       w,
		id:      id,
		action:  action,
		start:   time.Now(),
		logger:  w.logger.Named("workflow").With(zap.String("run_id", id.String()), zap.String("action", action)),
		payload: map[string]any{},
	}
	r.logger.Debug("run started", zap.String("repository", w.history.Root()))
	return r
}

// printf writes a user-facing message.
func (r *run) printf(format string, args ...any) {
	fmt.Fprintf(r.w.out, format+"\n", args...)
}

// finish records the outcome and passes code and err through.
func (r *run) finish(ctx context.Context, outcome string, code int, err error) (int, error) {
	elapsed := time.Since(r.start)
	metrics.RecordWorkflow(r.action, outcome, elapsed)

	fields := []zap.Field{zap.String("outcome", outcome), zap.Duration("elapsed", elapsed)}
	if err != nil {
		r.logger.Debug("run failed", append(fields, zap.Error(err))...)
		r.payload["error"] = err.Error()
	} else {
		r.logger.Debug("run finished", fields...)
	}

	if r.w.journal != nil {
		_, jerr := r.w.journal.Append(ctx, journal.Record{
			RunID:      r.id,
			Repository: r.w.history.Root(),
			Action:     r.action,
			Outcome:    outcome,
			Payload:    r.payload,
		})
		if jerr != nil {
			r.logger.Warn("journal append failed", zap.Error(jerr))
		} else {
			metrics.RecordJournalAppend()
		}
	}
	return code, err
}

func (r *run) ok(ctx context.Context) (int, error) {
	return r.finish(ctx, journal.OutcomeOK, ExitOK, nil)
}

func (r *run) refuse(ctx context.Context, format string, args ...any) (int, error) {
	r.printf(format, args...)
	return r.finish(ctx, journal.OutcomeRefused, ExitFailure, nil)
}

func (r *run) fail(ctx context.Context, err error) (int, error) {
	return r.finish(ctx, journal.OutcomeError, ExitUnexpected, err)
}

// accepted interprets a receipt. It reports whether the transaction
// succeeded and panics when the status is absent or unrecognized.
func (r *run) accepted(receipt *ledger.Receipt, what string) bool {
	r.payload["tx_hash"] = receipt.TxHash.Hex()
	switch receipt.Status {
	case ledger.StatusSuccess:
		r.logger.Info(what+" confirmed",
			zap.String("tx_hash", receipt.TxHash.Hex()),
			zap.Stringer("block", receipt.BlockNumber),
		)
		return true
	case ledger.StatusFailure:
		r.logger.Warn(what+" failed", zap.String("tx_hash", receipt.TxHash.Hex()))
		return false
	default:
		raw := "absent"
		if receipt.RawStatus != nil {
			raw = fmt.Sprintf("%#x", *receipt.RawStatus)
		}
		r.logger.Error(what+" receipt has no usable status",
			zap.String("tx_hash", receipt.TxHash.Hex()),
			zap.String("status", raw),
		)
		panic(fmt.Sprintf("%s: transaction %s: receipt status %s (%s), block %v, run %s",
			what, receipt.TxHash.Hex(), receipt.Status, raw, receipt.BlockNumber, r.id))
	}
}
