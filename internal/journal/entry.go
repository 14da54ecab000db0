package journal

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenesisHash is the hash of the genesis entry. It is a constant, not computed.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Entry is a single journal record.
type Entry struct {
	Index      int       `json:"index"`
	Timestamp  time.Time `json:"timestamp"`
	RunID      uuid.UUID `json:"run_id"`
	Repository string    `json:"repository"`
	Action     string    `json:"action"`
	Outcome    string    `json:"outcome"`
	DataHash   string    `json:"data_hash"`
	PrevHash   string    `json:"prev_hash"`
	Hash       string    `json:"hash"`
}

func genesis() *Entry {
	return &Entry{
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
		Action:    ActionGenesis,
		DataHash:  GenesisHash,
		PrevHash:  GenesisHash,
		Hash:      GenesisHash,
	}
}

// chain builds the entry following prev for rec.
func chain(prev *Entry, rec Record, now time.Time) (*Entry, error) {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	e := &Entry{
		Index:      prev.Index + 1,
		Timestamp:  now.UTC().Truncate(time.Microsecond),
		RunID:      rec.RunID,
		Repository: rec.Repository,
		Action:     rec.Action,
		Outcome:    rec.Outcome,
		DataHash:   sha256Sum(payload),
		PrevHash:   prev.Hash,
	}
	e.Hash = hashEntry(e)
	return e, nil
}

// check validates curr against its predecessor. prev is nil for genesis.
func check(prev, curr *Entry) error {
	if prev == nil {
		if curr.Hash != GenesisHash {
			return fmt.Errorf("genesis entry has wrong hash: got %q", curr.Hash)
		}
		return nil
	}
	if curr.PrevHash != prev.Hash {
		return fmt.Errorf("hash chain broken at index %d", curr.Index)
	}
	if curr.Hash != hashEntry(curr) {
		return fmt.Errorf("entry %d has invalid hash", curr.Index)
	}
	return nil
}

// hashEntry must never be called on the genesis entry. Timestamps are hashed
// in UTC at microsecond precision, the resolution PostgreSQL stores.
func hashEntry(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s|%s|%s",
		e.Index, e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.RunID, e.Repository, e.Action, e.Outcome, e.DataHash, e.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

func sha256Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
