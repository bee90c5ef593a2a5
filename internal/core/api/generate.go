package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/policysmith/internal/core/db"
	"github.com/solatis/policysmith/internal/document"
	"github.com/solatis/policysmith/internal/pack"
	"github.com/solatis/policysmith/internal/types"
)

// GenerateDocumentRequest produces one document. Template, Clauses and
// Rules absent or null in the request are loaded from the store. Persist
// records the document in the store (when configured) and the daily
// documents log.
type GenerateDocumentRequest struct {
	PolicyKey string            `json:"policy_key"`
	Template  *types.Template   `json:"template,omitempty"`
	Clauses   []types.Clause    `json:"clauses"`
	Rules     []types.Rule      `json:"rules"`
	Answers   types.Answers     `json:"answers"`
	Firm      types.FirmProfile `json:"firm"`
	Persist   bool              `json:"persist"`
}

// GenerateDocumentResponse carries the document and, when persisted, its id.
type GenerateDocumentResponse struct {
	DocumentID string            `json:"document_id,omitempty"`
	Document   document.Document `json:"document"`
}

// GenerateDocument implements PolicyEngineServer.
func (s *PolicyEngineService) GenerateDocument(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req GenerateDocumentRequest
	if err := decode(in, &req); err != nil {
		return nil, toStatus(err)
	}
	key, err := policyKeyOf(req.PolicyKey, req.Template)
	if err != nil {
		return nil, toStatus(err)
	}
	if req.Clauses != nil {
		if err := pack.ValidateClauses(req.Clauses); err != nil {
			return nil, toStatus(err)
		}
	}

	tmpl, err := s.loadTemplate(ctx, key, req.Template)
	if err != nil {
		return nil, toStatus(err)
	}
	library, err := s.loadClauses(ctx, key, req.Clauses)
	if err != nil {
		return nil, toStatus(err)
	}
	var ruleSet []types.Rule
	if !s.registry.Declarative(key) {
		if ruleSet, err = s.loadRules(ctx, key, req.Rules); err != nil {
			return nil, toStatus(err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, toStatus(err)
	}

	doc := document.Generate(document.Input{
		Template: tmpl,
		Clauses:  library,
		Rules:    ruleSet,
		Answers:  req.Answers,
		Firm:     req.Firm,
		Registry: s.registry,
	})
	if s.metrics != nil {
		s.metrics.ObserveRules(key, doc.RulesFired)
		s.metrics.ObserveDocument(key, len(doc.MissingClauses), len(doc.DroppedMandatory), len(doc.UnresolvedVariables))
	}

	resp := GenerateDocumentResponse{Document: doc}
	if req.Persist {
		rec, err := s.persist(ctx, doc)
		if err != nil {
			return nil, toStatus(err)
		}
		resp.DocumentID = rec.ID
	}

	s.logger.InfoContext(ctx, "document generated",
		"policy_key", key,
		"firm_id", doc.FirmID,
		"document_id", resp.DocumentID,
		"fingerprint", doc.Fingerprint,
		"missing", len(doc.MissingClauses),
		"dropped_mandatory", len(doc.DroppedMandatory),
		"unresolved", len(doc.UnresolvedVariables))

	out, err := encode(resp)
	if err != nil {
		return nil, toStatus(err)
	}
	return out, nil
}

// persist saves doc to the store and appends it to the documents log.
func (s *PolicyEngineService) persist(ctx context.Context, doc document.Document) (db.DocumentRecord, error) {
	content, err := json.Marshal(doc)
	if err != nil {
		return db.DocumentRecord{}, fmt.Errorf("failed to encode document: %w", err)
	}
	now := s.now().UTC()
	rec := db.DocumentRecord{
		ID:          string(types.NewDocumentID()),
		PolicyKey:   doc.PolicyKey,
		TemplateID:  doc.TemplateID,
		FirmID:      doc.FirmID,
		Fingerprint: doc.Fingerprint,
		Content:     string(content),
		CreatedAt:   now.Format(time.RFC3339),
	}

	if s.store != nil {
		if err := s.store.SaveDocument(ctx, rec); err != nil {
			return db.DocumentRecord{}, fmt.Errorf("failed to save document: %w", err)
		}
	}
	if err := s.appendDocumentLog(rec, now.Format(time.DateOnly)); err != nil {
		return db.DocumentRecord{}, err
	}
	return rec, nil
}

// appendDocumentLog appends rec to <DataDir>/documents/<day>.jsonl.
func (s *PolicyEngineService) appendDocumentLog(rec db.DocumentRecord, day string) error {
	filename := filepath.Join(s.cfg.DataDir, "documents", day+".jsonl")

	mu := s.getJSONLMutex(filename)
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filename, err)
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode document record: %w", err)
	}

	w := bufio.NewWriter(f)
	if _, err := w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", filename, err)
	}
	return f.Sync()
}
