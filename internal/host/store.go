package host

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
)

// ProposalStore persists multisig proposals. Writers across processes are serialized
// by a file lock next to the database.
type ProposalStore struct {
	db   *sql.DB
	lock *flock.Flock
}

func OpenProposalStore(path, lockPath string) (*ProposalStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create proposal store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create proposal lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open proposal sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS proposals (
			proposal_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			chain_id INTEGER NOT NULL,
			account TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_proposals_status_updated ON proposals(status, updated_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init proposal schema: %w", err)
		}
	}
	return &ProposalStore{db: db, lock: flock.New(lockPath)}, nil
}

func (s *ProposalStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *ProposalStore) Save(p Proposal) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("save proposal: missing proposal id")
	}
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock proposal store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock proposal store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal proposal: %w", err)
	}
	createdUnix := parseRFC3339Unix(p.CreatedAt)
	updatedUnix := parseRFC3339Unix(p.UpdatedAt)

	_, err = s.db.Exec(`
		INSERT INTO proposals (proposal_id, status, chain_id, account, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(proposal_id) DO UPDATE SET
			status=excluded.status,
			updated_at=excluded.updated_at,
			payload=excluded.payload
	`, p.ID, string(p.Status), p.ChainID, p.Account, createdUnix, updatedUnix, payload)
	if err != nil {
		return fmt.Errorf("save proposal: %w", err)
	}
	return nil
}

func (s *ProposalStore) Get(proposalID string) (Proposal, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM proposals WHERE proposal_id = ?", proposalID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Proposal{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("proposal not found: %s", proposalID))
		}
		return Proposal{}, fmt.Errorf("read proposal: %w", err)
	}
	var p Proposal
	if err := json.Unmarshal(payload, &p); err != nil {
		return Proposal{}, fmt.Errorf("decode proposal payload: %w", err)
	}
	return p, nil
}

func (s *ProposalStore) List(status string, limit int) ([]Proposal, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(status) == "" {
		rows, err = s.db.Query("SELECT payload FROM proposals ORDER BY updated_at DESC, rowid DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.Query("SELECT payload FROM proposals WHERE status = ? ORDER BY updated_at DESC, rowid DESC LIMIT ?", status, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	out := make([]Proposal, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan proposal row: %w", err)
		}
		var p Proposal
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode proposal row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposal rows: %w", err)
	}
	return out, nil
}

// SetStatus resolves a pending proposal. Resolved proposals are final.
func (s *ProposalStore) SetStatus(proposalID string, status ProposalStatus) (Proposal, error) {
	if status != ProposalExecuted && status != ProposalRejected {
		return Proposal{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("status must be one of: %s,%s", ProposalExecuted, ProposalRejected))
	}
	p, err := s.Get(proposalID)
	if err != nil {
		return Proposal{}, err
	}
	if p.Status != ProposalPending {
		return Proposal{}, clierr.New(clierr.CodePrecondition, fmt.Sprintf("proposal %s is already %s", p.ID, p.Status))
	}
	p.Status = status
	p.Touch()
	if err := s.Save(p); err != nil {
		return Proposal{}, err
	}
	return p, nil
}

func parseRFC3339Unix(v string) int64 {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Now().UTC().Unix()
	}
	return t.UTC().Unix()
}

// ProposalSubmitter queues batches instead of executing them.
type ProposalSubmitter struct {
	store *ProposalStore
}

func NewProposalSubmitter(store *ProposalStore) *ProposalSubmitter {
	return &ProposalSubmitter{store: store}
}

func (p *ProposalSubmitter) Mode() string { return ModeProposal }

func (p *ProposalSubmitter) Submit(ctx context.Context, req adapter.SendTransactionsRequest) (adapter.SubmissionResult, error) {
	proposal := NewProposal(req, CallerFrom(ctx).String())
	if err := p.store.Save(proposal); err != nil {
		return adapter.SubmissionResult{}, err
	}
	noun := "transactions"
	if len(proposal.Transactions) == 1 {
		noun = "transaction"
	}
	msg := fmt.Sprintf("Created multisig proposal %s with %d %s on chain %d for %s. It executes once the required owners approve it",
		proposal.ID, len(proposal.Transactions), noun, proposal.ChainID, proposal.Account)
	return adapter.SubmissionResult{
		IsMultisigProposal: true,
		Data:               []adapter.TransactionOutcome{{Message: msg}},
	}, nil
}
