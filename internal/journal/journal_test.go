package journal_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/jmerrifield20/git-audit/internal/journal"
)

var ctx = context.Background()

func record(action, outcome string) journal.Record {
	return journal.Record{
		RunID:      uuid.New(),
		Repository: "/srv/repo",
		Action:     action,
		Outcome:    outcome,
		Payload:    map[string]string{"tip": "f572d396fae9206628714fb2ce00f72e94f2258f"},
	}
}

func TestNewMemory_genesisEntry(t *testing.T) {
	j := journal.NewMemory()

	n, err := j.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 genesis entry, got %d", n)
	}

	entry, err := j.Get(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Action != journal.ActionGenesis {
		t.Errorf("expected action %q, got %q", journal.ActionGenesis, entry.Action)
	}
	if entry.Hash != journal.GenesisHash {
		t.Errorf("genesis hash: got %q, want GenesisHash", entry.Hash)
	}
}

func TestAppend_chainsCorrectly(t *testing.T) {
	j := journal.NewMemory()

	rec := record(journal.ActionInit, journal.OutcomeOK)
	e1, err := j.Append(ctx, rec)
	if err != nil {
		t.Fatal(err)
	}
	e2, err := j.Append(ctx, record(journal.ActionAnchor, journal.OutcomeRejected))
	if err != nil {
		t.Fatal(err)
	}

	if e1.PrevHash != journal.GenesisHash {
		t.Errorf("first entry should chain from genesis, got %q", e1.PrevHash)
	}
	if e2.PrevHash != e1.Hash {
		t.Errorf("chain broken: e2.PrevHash=%q, want e1.Hash=%q", e2.PrevHash, e1.Hash)
	}
	if e1.RunID != rec.RunID || e1.Repository != rec.Repository {
		t.Errorf("entry fields not copied from record: %+v", e1)
	}
	if e2.Index != 2 {
		t.Errorf("e2.Index = %d, want 2", e2.Index)
	}

	n, _ := j.Len(ctx)
	if n != 3 {
		t.Errorf("expected 3 entries, got %d", n)
	}
}

func TestAppend_payloadHash(t *testing.T) {
	j := journal.NewMemory()
	a, _ := j.Append(ctx, record(journal.ActionValidate, journal.OutcomeOK))

	other := record(journal.ActionValidate, journal.OutcomeOK)
	other.Payload = map[string]int{"good": 3}
	b, _ := j.Append(ctx, other)

	if a.DataHash == b.DataHash {
		t.Error("different payloads produced the same data hash")
	}
}

func TestAppend_unmarshalablePayload(t *testing.T) {
	j := journal.NewMemory()
	rec := record(journal.ActionAnchor, journal.OutcomeOK)
	rec.Payload = make(chan int)

	if _, err := j.Append(ctx, rec); err == nil {
		t.Fatal("expected marshal error")
	}
	if n, _ := j.Len(ctx); n != 1 {
		t.Errorf("failed append changed the journal length to %d", n)
	}
}

func TestVerify_valid(t *testing.T) {
	j := journal.NewMemory()
	_, _ = j.Append(ctx, record(journal.ActionInit, journal.OutcomeOK))
	_, _ = j.Append(ctx, record(journal.ActionAnchor, journal.OutcomeOK))
	_, _ = j.Append(ctx, record(journal.ActionValidate, journal.OutcomeMismatch))

	if err := j.Verify(ctx); err != nil {
		t.Errorf("Verify() failed on valid chain: %v", err)
	}
}

func TestVerify_genesisOnly(t *testing.T) {
	if err := journal.NewMemory().Verify(ctx); err != nil {
		t.Errorf("Verify() on genesis-only chain should pass: %v", err)
	}
}

func TestRoot_returnsLastHash(t *testing.T) {
	j := journal.NewMemory()
	root, _ := j.Root(ctx)
	if root != journal.GenesisHash {
		t.Errorf("Root() on genesis-only: got %q, want GenesisHash", root)
	}

	e, _ := j.Append(ctx, record(journal.ActionAnchor, journal.OutcomeOK))
	root, err := j.Root(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if root != e.Hash {
		t.Errorf("Root(): got %q, want %q", root, e.Hash)
	}
}

func TestGet_outOfRange(t *testing.T) {
	j := journal.NewMemory()
	for _, i := range []int{-1, 1} {
		if _, err := j.Get(ctx, i); err == nil {
			t.Errorf("Get(%d): expected error", i)
		}
	}
}
