package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/policysmith/internal/types"
)

/*
 * Store persists the authored inputs (rules, clauses, templates) and the
 * generated documents. Structured fields are stored as JSON text so both
 * drivers share one schema; rules keep their full wire JSON in definition
 * and are re-decoded with the tolerant Rule decoder on load.
 *
 * Timestamps are RFC3339 UTC text.
 */

// ErrDocumentNotFound indicates no document is stored under an id.
var ErrDocumentNotFound = errors.New("document not found")

// Store is the sqlx-backed repository.
type Store struct {
	db  *sqlx.DB
	q   *Queries
	now func() time.Time
}

// NewStore creates a Store over an open, migrated database.
func NewStore(db *sqlx.DB) (*Store, error) {
	q, err := LoadQueries(db)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, q: q, now: time.Now}, nil
}

type ruleRow struct {
	ID         string        `db:"rule_id"`
	PolicyID   string        `db:"policy_id"`
	Name       string        `db:"name"`
	Priority   sql.NullInt64 `db:"priority"`
	Position   int           `db:"position"`
	IsActive   int           `db:"is_active"`
	Definition string        `db:"definition"`
	UpdatedAt  string        `db:"updated_at"`
}

type clauseRow struct {
	ID        string `db:"clause_id"`
	PolicyKey string `db:"policy_key"`
	Title     string `db:"title"`
	BodyMD    string `db:"body_md"`
	Tags      string `db:"tags"`
	Variables string `db:"variables"`
	Version   int    `db:"version"`
	Status    string `db:"status"`
	UpdatedAt string `db:"updated_at"`
}

type templateRow struct {
	ID         string `db:"template_id"`
	PolicyKey  string `db:"policy_key"`
	Name       string `db:"name"`
	Definition string `db:"definition"`
	UpdatedAt  string `db:"updated_at"`
}

// DocumentRecord is a stored generated document.
type DocumentRecord struct {
	ID          string `db:"document_id" json:"id"`
	PolicyKey   string `db:"policy_key" json:"policy_key"`
	TemplateID  string `db:"template_id" json:"template_id"`
	FirmID      string `db:"firm_id" json:"firm_id"`
	Fingerprint string `db:"fingerprint" json:"fingerprint"`
	Content     string `db:"content" json:"content"`
	CreatedAt   string `db:"created_at" json:"created_at"`
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// ReplaceRules replaces every stored rule of policyID with rules, keeping
// their order. Rules with another policy_id are rejected.
func (s *Store) ReplaceRules(ctx context.Context, policyID string, rules []types.Rule) error {
	if policyID == "" {
		return types.ErrPolicyRequired
	}
	if len(rules) > types.MaxRulesPerPack {
		return fmt.Errorf("%w: %d rules", types.ErrTooManyRules, len(rules))
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.q.ExecTx(ctx, tx, "delete-rules-by-policy", policyID); err != nil {
		return fmt.Errorf("failed to clear rules for %s: %w", policyID, err)
	}

	ts := s.timestamp()
	for i, r := range rules {
		if r.PolicyID != policyID {
			return fmt.Errorf("%w: rule %q belongs to policy %q, not %q", types.ErrInvalidPack, r.ID, r.PolicyID, policyID)
		}
		def, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode rule %s: %w", r.ID, err)
		}
		var priority sql.NullInt64
		if r.Priority.Valid {
			priority = sql.NullInt64{Int64: int64(r.Priority.Value), Valid: true}
		}
		active := 0
		if r.IsActive {
			active = 1
		}
		if _, err := s.q.ExecTx(ctx, tx, "upsert-rule",
			string(r.ID), r.PolicyID, r.Name, priority, i, active, string(def), ts); err != nil {
			return fmt.Errorf("failed to store rule %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// Rules returns the stored rules of policyID in authored order.
func (s *Store) Rules(ctx context.Context, policyID string) ([]types.Rule, error) {
	var rows []ruleRow
	if err := s.q.Select(ctx, "list-rules-by-policy", &rows, policyID); err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	rules := make([]types.Rule, 0, len(rows))
	for _, row := range rows {
		var r types.Rule
		if err := json.Unmarshal([]byte(row.Definition), &r); err != nil {
			return nil, fmt.Errorf("failed to decode rule %s: %w", row.ID, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// SaveClause inserts or updates a clause. The stored version increments
// when the body changes.
func (s *Store) SaveClause(ctx context.Context, c types.Clause) error {
	if len(c.BodyMD) > types.MaxClauseBodyLength {
		return fmt.Errorf("%w: %s", types.ErrClauseTooLarge, c.ID)
	}
	tags, err := json.Marshal(nonNil(c.Tags))
	if err != nil {
		return err
	}
	vars := c.Variables
	if vars == nil {
		vars = []types.ClauseVariable{}
	}
	variables, err := json.Marshal(vars)
	if err != nil {
		return err
	}
	status := c.Status
	if status == "" {
		status = types.ClauseDraft
	}
	version := c.Version
	if version <= 0 {
		version = 1
	}

	if _, err := s.q.Exec(ctx, "upsert-clause",
		string(c.ID), c.PolicyKey, c.Title, c.BodyMD, string(tags), string(variables),
		version, string(status), s.timestamp()); err != nil {
		return fmt.Errorf("failed to store clause %s: %w", c.ID, err)
	}
	return nil
}

// Clause returns one clause by id.
func (s *Store) Clause(ctx context.Context, id types.ClauseID) (types.Clause, error) {
	var row clauseRow
	if err := s.q.Get(ctx, "get-clause", &row, string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Clause{}, fmt.Errorf("clause %s: %w", id, sql.ErrNoRows)
		}
		return types.Clause{}, fmt.Errorf("failed to get clause: %w", err)
	}
	return row.clause()
}

// Clauses returns the clause library of policyKey, or every clause when
// policyKey is empty.
func (s *Store) Clauses(ctx context.Context, policyKey string) ([]types.Clause, error) {
	var rows []clauseRow
	var err error
	if policyKey == "" {
		err = s.q.Select(ctx, "list-clauses", &rows)
	} else {
		err = s.q.Select(ctx, "list-clauses-by-policy", &rows, policyKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list clauses: %w", err)
	}

	out := make([]types.Clause, 0, len(rows))
	for _, row := range rows {
		c, err := row.clause()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (row clauseRow) clause() (types.Clause, error) {
	c := types.Clause{
		ID:        types.ClauseID(row.ID),
		PolicyKey: row.PolicyKey,
		Title:     row.Title,
		BodyMD:    row.BodyMD,
		Version:   row.Version,
		Status:    types.ClauseStatus(row.Status),
	}
	if err := json.Unmarshal([]byte(row.Tags), &c.Tags); err != nil {
		return types.Clause{}, fmt.Errorf("failed to decode tags of %s: %w", row.ID, err)
	}
	if err := json.Unmarshal([]byte(row.Variables), &c.Variables); err != nil {
		return types.Clause{}, fmt.Errorf("failed to decode variables of %s: %w", row.ID, err)
	}
	return c, nil
}

// SaveTemplate stores t as the template of its policy key.
func (s *Store) SaveTemplate(ctx context.Context, t types.Template) error {
	def, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode template %s: %w", t.ID, err)
	}
	if _, err := s.q.Exec(ctx, "upsert-template", t.ID, t.PolicyKey, t.Name, string(def), s.timestamp()); err != nil {
		return fmt.Errorf("failed to store template %s: %w", t.ID, err)
	}
	return nil
}

// Template returns the template of policyKey or types.ErrTemplateNotFound.
func (s *Store) Template(ctx context.Context, policyKey string) (types.Template, error) {
	var row templateRow
	if err := s.q.Get(ctx, "get-template-by-policy", &row, policyKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Template{}, fmt.Errorf("%w: %s", types.ErrTemplateNotFound, policyKey)
		}
		return types.Template{}, fmt.Errorf("failed to get template: %w", err)
	}

	var t types.Template
	if err := json.Unmarshal([]byte(row.Definition), &t); err != nil {
		return types.Template{}, fmt.Errorf("failed to decode template %s: %w", row.ID, err)
	}
	return t, nil
}

// SaveDocument stores a generated document. CreatedAt is set when empty.
func (s *Store) SaveDocument(ctx context.Context, rec DocumentRecord) error {
	if rec.CreatedAt == "" {
		rec.CreatedAt = s.timestamp()
	}
	if _, err := s.q.Exec(ctx, "insert-document",
		rec.ID, rec.PolicyKey, rec.TemplateID, rec.FirmID, rec.Fingerprint, rec.Content, rec.CreatedAt); err != nil {
		return fmt.Errorf("failed to store document %s: %w", rec.ID, err)
	}
	return nil
}

// Document returns a stored document or ErrDocumentNotFound.
func (s *Store) Document(ctx context.Context, id string) (DocumentRecord, error) {
	var rec DocumentRecord
	if err := s.q.Get(ctx, "get-document", &rec, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DocumentRecord{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
		}
		return DocumentRecord{}, fmt.Errorf("failed to get document: %w", err)
	}
	return rec, nil
}

// FirmDocuments returns up to limit documents for firmID, newest first.
func (s *Store) FirmDocuments(ctx context.Context, firmID string, limit int) ([]DocumentRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []DocumentRecord
	if err := s.q.Select(ctx, "list-documents-by-firm", &recs, firmID, limit); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return recs, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
