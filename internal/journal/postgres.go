package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey serialises concurrent appends across processes.
const advisoryLockKey = int64(1_702_517_331)

const schema = `
CREATE TABLE IF NOT EXISTS git_audit_journal (
	idx        integer     PRIMARY KEY,
	timestamp  timestamptz NOT NULL,
	run_id     text        NOT NULL,
	repository text        NOT NULL,
	action     text        NOT NULL,
	outcome    text        NOT NULL,
	data_hash  text        NOT NULL,
	prev_hash  text        NOT NULL,
	hash       text        NOT NULL
)`

const selectColumns = `SELECT idx, timestamp, run_id, repository, action, outcome, data_hash, prev_hash, hash
	FROM git_audit_journal`

// Postgres persists the journal to a PostgreSQL table.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres creates a Postgres journal backed by pool. Call Migrate before
// the first Append.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *Postgres {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Postgres{pool: pool, logger: logger}
}

// Open connects to databaseURL and prepares the journal table.
func Open(ctx context.Context, databaseURL string, logger *zap.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect journal database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping journal database: %w", err)
	}
	p := NewPostgres(pool, logger)
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() { p.pool.Close() }

// Migrate creates the journal table and its genesis entry if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create journal table: %w", err)
	}
	g := genesis()
	if _, err := p.pool.Exec(ctx,
		`INSERT INTO git_audit_journal (idx, timestamp, run_id, repository, action, outcome, data_hash, prev_hash, hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT (idx) DO NOTHING`,
		g.Index, g.Timestamp, g.RunID.String(), g.Repository,
		g.Action, g.Outcome, g.DataHash, g.PrevHash, g.Hash,
	); err != nil {
		return fmt.Errorf("insert journal genesis: %w", err)
	}
	return nil
}

// Append implements Journal. The tail read and insert run in one transaction
// holding an advisory lock.
func (p *Postgres) Append(ctx context.Context, rec Record) (*Entry, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	prev, err := scanEntry(tx.QueryRow(ctx, selectColumns+" ORDER BY idx DESC LIMIT 1"))
	if err != nil {
		return nil, fmt.Errorf("read journal tail: %w", err)
	}

	entry, err := chain(prev, rec, time.Now())
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO git_audit_journal (idx, timestamp, run_id, repository, action, outcome, data_hash, prev_hash, hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.Index, entry.Timestamp, entry.RunID.String(), entry.Repository,
		entry.Action, entry.Outcome, entry.DataHash, entry.PrevHash, entry.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert journal entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit journal tx: %w", err)
	}

	p.logger.Debug("journal entry appended",
		zap.Int("idx", entry.Index),
		zap.String("action", entry.Action),
		zap.String("outcome", entry.Outcome),
	)
	return entry, nil
}

// Get implements Journal.
func (p *Postgres) Get(ctx context.Context, index int) (*Entry, error) {
	e, err := scanEntry(p.pool.QueryRow(ctx, selectColumns+" WHERE idx = $1", index))
	if err != nil {
		return nil, fmt.Errorf("get journal entry %d: %w", index, err)
	}
	return e, nil
}

// Len implements Journal.
func (p *Postgres) Len(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM git_audit_journal").Scan(&n); err != nil {
		return 0, fmt.Errorf("count journal entries: %w", err)
	}
	return n, nil
}

// Verify implements Journal. It streams all rows ordered by idx.
func (p *Postgres) Verify(ctx context.Context) error {
	rows, err := p.pool.Query(ctx, selectColumns+" ORDER BY idx ASC")
	if err != nil {
		return fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var prev *Entry
	for rows.Next() {
		curr, err := scanEntry(rows)
		if err != nil {
			return fmt.Errorf("scan journal row: %w", err)
		}
		if err := check(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return rows.Err()
}

// Root implements Journal.
func (p *Postgres) Root(ctx context.Context) (string, error) {
	var hash string
	if err := p.pool.QueryRow(ctx,
		"SELECT hash FROM git_audit_journal ORDER BY idx DESC LIMIT 1",
	).Scan(&hash); err != nil {
		return "", fmt.Errorf("get journal root: %w", err)
	}
	return hash, nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		e     Entry
		runID string
	)
	if err := row.Scan(
		&e.Index, &e.Timestamp, &runID, &e.Repository,
		&e.Action, &e.Outcome, &e.DataHash, &e.PrevHash, &e.Hash,
	); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(runID)
	if err != nil {
		return nil, fmt.Errorf("run id %q: %w", runID, err)
	}
	e.RunID = id
	return &e, nil
}
