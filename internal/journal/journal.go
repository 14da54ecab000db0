// Package journal keeps a local hash-chained record of workflow outcomes.
//
// The chain begins with a genesis entry whose Hash equals GenesisHash (64 hex
// zeros). Every later entry records the hash of its predecessor, so editing
// or dropping a record is detected by Verify.
//
// Two implementations of the Journal interface are provided:
//   - Memory: in-process, for tests and runs without a database.
//   - Postgres: durable, enabled by the journal.database_url setting.
package journal

import (
	"context"

	"github.com/google/uuid"
)

// Actions recorded by the workflow.
const (
	ActionGenesis  = "genesis"
	ActionInit     = "init"
	ActionAnchor   = "anchor"
	ActionValidate = "validate"
)

// Outcomes recorded by the workflow.
const (
	OutcomeOK       = "ok"
	OutcomeRefused  = "refused"
	OutcomeRejected = "rejected"
	OutcomeMismatch = "mismatch"
	OutcomeError    = "error"
)

// Record is the input to Append.
type Record struct {
	RunID      uuid.UUID
	Repository string
	Action     string
	Outcome    string
	Payload    any // JSON-marshalled; only its SHA-256 is kept
}

// Journal is an append-only chain of workflow records.
type Journal interface {
	// Append adds a new entry chained to the previous one.
	Append(ctx context.Context, rec Record) (*Entry, error)

	// Get returns the entry at the given zero-based index.
	Get(ctx context.Context, index int) (*Entry, error)

	// Len returns the number of entries, genesis included.
	Len(ctx context.Context) (int, error)

	// Verify walks the chain and checks hash consistency.
	Verify(ctx context.Context) error

	// Root returns the hash of the most recent entry.
	Root(ctx context.Context) (string, error)
}
