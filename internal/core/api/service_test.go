package api

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/policysmith/internal/assembler"
	"github.com/solatis/policysmith/internal/core/config"
	"github.com/solatis/policysmith/internal/core/db"
	"github.com/solatis/policysmith/internal/core/metrics"
	"github.com/solatis/policysmith/internal/types"
)

type fakeStore struct {
	mu        sync.Mutex
	rules     map[string][]types.Rule
	clauses   map[string][]types.Clause
	templates map[string]types.Template
	saved     []db.DocumentRecord
	err       error
}

func (f *fakeStore) Rules(_ context.Context, policyID string) ([]types.Rule, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rules[policyID], nil
}

func (f *fakeStore) Clauses(_ context.Context, policyKey string) ([]types.Clause, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.clauses[policyKey], nil
}

func (f *fakeStore) Template(_ context.Context, policyKey string) (types.Template, error) {
	if f.err != nil {
		return types.Template{}, f.err
	}
	t, ok := f.templates[policyKey]
	if !ok {
		return types.Template{}, types.ErrTemplateNotFound
	}
	return t, nil
}

func (f *fakeStore) SaveDocument(_ context.Context, rec db.DocumentRecord) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, rec)
	return nil
}

func amlTemplate() types.Template {
	return types.Template{
		ID: "tpl_aml", PolicyKey: "aml", Name: "AML/CTF Policy",
		Sections: []types.Section{
			{ID: "cdd", Title: "Customer due diligence", SectionType: types.SectionProcedure,
				SuggestedClauses: []string{"aml_cdd_standard"}},
			{ID: "governance", Title: "Governance", SectionType: types.SectionPolicy,
				SuggestedClauses: []string{"aml_mlro"}},
		},
	}
}

func amlRules() []types.Rule {
	return []types.Rule{
		{
			ID: "r1", PolicyID: "aml", Name: "Domestic PEP", Priority: types.NewPriority(10), IsActive: true,
			Condition: types.NewCondition("pep_domestic", "eq", true),
			Action: &types.RuleAction{
				IncludeClauseCodes: []string{"aml_edd_domestic_pep"},
				SetVars:            map[string]any{"approver_role": "SMF17"},
			},
		},
		{
			ID: "r2", PolicyID: "aml", Name: "High turnover", Priority: types.NewPriority(5), IsActive: true,
			Condition: types.NewCondition("turnover", "gt", 1000000),
			Action:    &types.RuleAction{SuggestClauseCodes: []string{"aml_tm_enhanced"}, Reason: "large firm"},
		},
	}
}

func amlClauses() []types.Clause {
	return []types.Clause{
		{ID: "aml_cdd_standard", Title: "Standard CDD", BodyMD: "{{firm.name}} verifies every customer."},
		{ID: "aml_edd_domestic_pep", Title: "Domestic PEPs", BodyMD: "Approved by {{approver_role}}."},
		{ID: "aml_mlro", Title: "MLRO", BodyMD: "The MLRO is {{mlro_name}}."},
	}
}

func newTestService(t *testing.T, store Store) (*PolicyEngineService, *prometheus.Registry) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	reg := prometheus.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc, err := NewPolicyEngineService(store, cfg, metrics.New(reg), logger)
	if err != nil {
		t.Fatalf("NewPolicyEngineService() error = %v", err)
	}
	return svc, reg
}

func mustEncode(t *testing.T, v any) *structpb.Struct {
	t.Helper()
	s, err := encode(v)
	if err != nil {
		t.Fatalf("encode() error = %v", err)
	}
	return s
}

func mustDecode(t *testing.T, s *structpb.Struct, v any) {
	t.Helper()
	if err := decode(s, v); err != nil {
		t.Fatalf("decode() error = %v", err)
	}
}

func assertCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	if got := status.Code(err); got != want {
		t.Fatalf("status code = %v, want %v (err = %v)", got, want, err)
	}
}

func TestNewPolicyEngineService_RequiresConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := NewPolicyEngineService(nil, nil, nil, logger); err == nil {
		t.Error("expected error for nil cfg")
	}
	if _, err := NewPolicyEngineService(nil, config.DefaultConfig(), nil, nil); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestEvaluateRules_InlineRules(t *testing.T) {
	svc, reg := newTestService(t, nil)

	out, err := svc.EvaluateRules(context.Background(), mustEncode(t, EvaluateRulesRequest{
		PolicyID:       "aml",
		Rules:          amlRules(),
		Answers:        types.Answers{"pep_domestic": true},
		FirmAttributes: types.FirmAttributes{"turnover": 5000000},
	}))
	if err != nil {
		t.Fatalf("EvaluateRules() error = %v", err)
	}

	var result types.RulesEngineResult
	mustDecode(t, out, &result)

	if len(result.IncludedClauses) != 1 || result.IncludedClauses[0] != "aml_edd_domestic_pep" {
		t.Errorf("included = %v", result.IncludedClauses)
	}
	if len(result.SuggestedClauses) != 1 || result.SuggestedClauses[0].Reason != "large firm" {
		t.Errorf("suggested = %+v", result.SuggestedClauses)
	}
	if result.Variables["approver_role"] != "SMF17" {
		t.Errorf("variables = %v", result.Variables)
	}
	if len(result.RulesFired) != 2 {
		t.Errorf("rules_fired = %+v, want 2 entries", result.RulesFired)
	}
	if got, err := testutil.GatherAndCount(reg, "policysmith_rules_considered_total"); err != nil || got != 1 {
		t.Errorf("rules_considered series = %d, want 1", got)
	}
}

func TestEvaluateRules_StoredRules(t *testing.T) {
	store := &fakeStore{rules: map[string][]types.Rule{"aml": amlRules()}}
	svc, _ := newTestService(t, store)

	out, err := svc.EvaluateRules(context.Background(), mustEncode(t, EvaluateRulesRequest{
		PolicyID: "aml",
		Answers:  types.Answers{"pep_domestic": false},
	}))
	if err != nil {
		t.Fatalf("EvaluateRules() error = %v", err)
	}

	var result types.RulesEngineResult
	mustDecode(t, out, &result)
	if len(result.IncludedClauses) != 0 {
		t.Errorf("included = %v, want none", result.IncludedClauses)
	}
	if len(result.RulesFired) != 2 {
		t.Errorf("rules_fired = %+v, want 2 entries", result.RulesFired)
	}
}

func TestEvaluateRules_ExplicitEmptyRules(t *testing.T) {
	store := &fakeStore{rules: map[string][]types.Rule{"aml": amlRules()}}
	svc, _ := newTestService(t, store)

	in := mustEncode(t, EvaluateRulesRequest{
		PolicyID: "aml",
		Rules:    []types.Rule{},
		Answers:  types.Answers{"pep_domestic": true},
	})
	if v, ok := in.GetFields()["rules"]; !ok || v.GetListValue() == nil {
		t.Fatalf("encoded request rules = %v, want an empty list", v)
	}

	out, err := svc.EvaluateRules(context.Background(), in)
	if err != nil {
		t.Fatalf("EvaluateRules() error = %v", err)
	}
	var result types.RulesEngineResult
	mustDecode(t, out, &result)
	if len(result.RulesFired) != 0 || len(result.IncludedClauses) != 0 {
		t.Errorf("result = %+v, want no rules considered", result)
	}

	var back EvaluateRulesRequest
	mustDecode(t, mustEncode(t, EvaluateRulesRequest{PolicyID: "aml"}), &back)
	if back.Rules != nil {
		t.Errorf("omitted rules decoded as %v, want nil", back.Rules)
	}
}

func TestEvaluateRules_Errors(t *testing.T) {
	tests := []struct {
		name     string
		store    *fakeStore
		maxRules int
		req      EvaluateRulesRequest
		want     codes.Code
	}{
		{
			name: "missing policy",
			req:  EvaluateRulesRequest{Rules: amlRules()},
			want: codes.InvalidArgument,
		},
		{
			name:     "too many rules",
			maxRules: 1,
			req:      EvaluateRulesRequest{PolicyID: "aml", Rules: amlRules()},
			want:     codes.InvalidArgument,
		},
		{
			name:  "store failure",
			store: &fakeStore{err: errors.New("connection refused")},
			req:   EvaluateRulesRequest{PolicyID: "aml"},
			want:  codes.Unavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var store Store
			if tt.store != nil {
				store = tt.store
			}
			svc, _ := newTestService(t, store)
			if tt.maxRules > 0 {
				svc.cfg.Engine.MaxRules = tt.maxRules
			}
			_, err := svc.EvaluateRules(context.Background(), mustEncode(t, tt.req))
			assertCode(t, err, tt.want)
		})
	}
}

func TestAssemble_BuiltinComplaintsTemplate(t *testing.T) {
	svc, _ := newTestService(t, nil)

	out, err := svc.Assemble(context.Background(), mustEncode(t, AssembleRequest{
		PolicyKey: assembler.ComplaintsPolicyKey,
		Answers: types.Answers{
			"detailLevel":  "focused",
			"paymentRails": []any{"stripe"},
		},
	}))
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	var resp AssembleResponse
	mustDecode(t, out, &resp)

	process := resp.SectionClauses[assembler.SectionProcess]
	if len(process) != 4 || process[3] != "cmp_rail_stripe_disputes" {
		t.Errorf("process = %v, want 3 static clauses then cmp_rail_stripe_disputes", process)
	}
	if _, ok := resp.SectionClauses[assembler.SectionFOS]; ok {
		t.Error("appendix assembled without opt-in")
	}
	if resp.Rules != nil {
		t.Errorf("declarative policy returned rule result %+v", resp.Rules)
	}
}

func TestAssemble_RuleBackedPolicy(t *testing.T) {
	store := &fakeStore{
		rules:     map[string][]types.Rule{"aml": amlRules()},
		templates: map[string]types.Template{"aml": amlTemplate()},
	}
	svc, _ := newTestService(t, store)

	out, err := svc.Assemble(context.Background(), mustEncode(t, AssembleRequest{
		PolicyKey: "aml",
		Answers:   types.Answers{"pep_domestic": true},
	}))
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	var resp AssembleResponse
	mustDecode(t, out, &resp)

	governance := resp.SectionClauses["governance"]
	if len(governance) != 2 || governance[1] != "aml_edd_domestic_pep" {
		t.Errorf("governance = %v, want rule clause appended to last section", governance)
	}
	if resp.Rules == nil || len(resp.Rules.RulesFired) != 2 {
		t.Errorf("rules = %+v, want two rules_fired entries", resp.Rules)
	}
}

func TestAssemble_Errors(t *testing.T) {
	mismatched := amlTemplate()
	mismatched.PolicyKey = "other"
	invalid := amlTemplate()
	invalid.Sections = nil

	tests := []struct {
		name string
		req  AssembleRequest
		want codes.Code
	}{
		{"missing policy", AssembleRequest{}, codes.InvalidArgument},
		{"unknown policy", AssembleRequest{PolicyKey: "aml"}, codes.NotFound},
		{"template key mismatch", AssembleRequest{PolicyKey: "aml", Template: &mismatched}, codes.InvalidArgument},
		{"invalid template", AssembleRequest{PolicyKey: "aml", Template: &invalid}, codes.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t, &fakeStore{})
			_, err := svc.Assemble(context.Background(), mustEncode(t, tt.req))
			assertCode(t, err, tt.want)
		})
	}
}

func TestGenerateDocument_InlineInputs(t *testing.T) {
	svc, reg := newTestService(t, nil)
	tmpl := amlTemplate()

	out, err := svc.GenerateDocument(context.Background(), mustEncode(t, GenerateDocumentRequest{
		Template: &tmpl,
		Clauses:  amlClauses(),
		Rules:    amlRules(),
		Answers:  types.Answers{"pep_domestic": true},
		Firm:     types.FirmProfile{ID: "firm_1", Name: "Acme Ltd"},
	}))
	if err != nil {
		t.Fatalf("GenerateDocument() error = %v", err)
	}

	var resp GenerateDocumentResponse
	mustDecode(t, out, &resp)

	if resp.DocumentID != "" {
		t.Errorf("document_id = %q, want empty without persist", resp.DocumentID)
	}
	doc := resp.Document
	if doc.PolicyKey != "aml" || doc.FirmID != "firm_1" {
		t.Errorf("document identity = %q/%q", doc.PolicyKey, doc.FirmID)
	}
	if len(doc.Sections) != 2 {
		t.Fatalf("sections = %d, want 2", len(doc.Sections))
	}
	if got := doc.Sections[0].Clauses[0].BodyMD; got != "Acme Ltd verifies every customer." {
		t.Errorf("cdd body = %q", got)
	}
	gov := doc.Sections[1].Clauses
	if len(gov) != 2 || gov[1].BodyMD != "Approved by SMF17." {
		t.Errorf("governance clauses = %+v", gov)
	}
	if len(doc.UnresolvedVariables) != 1 || doc.UnresolvedVariables[0] != "mlro_name" {
		t.Errorf("unresolved = %v, want [mlro_name]", doc.UnresolvedVariables)
	}
	if doc.Fingerprint == "" {
		t.Error("fingerprint empty")
	}
	if got, err := testutil.GatherAndCount(reg, "policysmith_documents_generated_total"); err != nil || got != 1 {
		t.Errorf("documents series = %d, want 1", got)
	}
}

func TestGenerateDocument_Persist(t *testing.T) {
	store := &fakeStore{
		rules:     map[string][]types.Rule{"aml": amlRules()},
		clauses:   map[string][]types.Clause{"aml": amlClauses()},
		templates: map[string]types.Template{"aml": amlTemplate()},
	}
	svc, _ := newTestService(t, store)
	fixed := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	req := GenerateDocumentRequest{
		PolicyKey: "aml",
		Answers:   types.Answers{"pep_domestic": true},
		Firm:      types.FirmProfile{ID: "firm_1", Name: "Acme Ltd"},
		Persist:   true,
	}
	for i := 0; i < 2; i++ {
		out, err := svc.GenerateDocument(context.Background(), mustEncode(t, req))
		if err != nil {
			t.Fatalf("GenerateDocument() error = %v", err)
		}
		var resp GenerateDocumentResponse
		mustDecode(t, out, &resp)
		if _, err := types.ParseDocumentID(resp.DocumentID); err != nil {
			t.Errorf("document_id %q is not a UUID: %v", resp.DocumentID, err)
		}
	}

	if len(store.saved) != 2 {
		t.Fatalf("saved = %d documents, want 2", len(store.saved))
	}
	rec := store.saved[0]
	if rec.FirmID != "firm_1" || rec.TemplateID != "tpl_aml" || rec.CreatedAt != "2026-03-14T09:30:00Z" {
		t.Errorf("record = %+v", rec)
	}
	if store.saved[0].Fingerprint != store.saved[1].Fingerprint {
		t.Error("identical inputs produced different fingerprints")
	}

	f, err := os.Open(filepath.Join(svc.cfg.DataDir, "documents", "2026-03-14.jsonl"))
	if err != nil {
		t.Fatalf("documents log: %v", err)
	}
	defer f.Close()
	lines := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		lines++
	}
	if lines != 2 {
		t.Errorf("documents log lines = %d, want 2", lines)
	}
}

func TestGenerateDocument_Errors(t *testing.T) {
	tmpl := amlTemplate()
	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	tests := []struct {
		name  string
		ctx   context.Context
		store *fakeStore
		req   GenerateDocumentRequest
		want  codes.Code
	}{
		{
			name: "oversized clause",
			ctx:  context.Background(),
			req: GenerateDocumentRequest{Template: &tmpl, Clauses: []types.Clause{
				{ID: "big", BodyMD: string(make([]byte, types.MaxClauseBodyLength+1))},
			}},
			want: codes.InvalidArgument,
		},
		{
			name:  "store failure",
			ctx:   context.Background(),
			store: &fakeStore{err: errors.New("disk I/O error")},
			req:   GenerateDocumentRequest{PolicyKey: "aml"},
			want:  codes.Unavailable,
		},
		{
			name: "deadline exceeded",
			ctx:  expired,
			req:  GenerateDocumentRequest{Template: &tmpl, Clauses: amlClauses()},
			want: codes.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var store Store
			if tt.store != nil {
				store = tt.store
			}
			svc, _ := newTestService(t, store)
			_, err := svc.GenerateDocument(tt.ctx, mustEncode(t, tt.req))
			assertCode(t, err, tt.want)
		})
	}
}

func TestExtractVariables(t *testing.T) {
	svc, _ := newTestService(t, nil)

	out, err := svc.ExtractVariables(context.Background(), mustEncode(t, ExtractVariablesRequest{
		Body: "XYZ Limited appoints [Name of MLRO] as MLRO.",
	}))
	if err != nil {
		t.Fatalf("ExtractVariables() error = %v", err)
	}

	var resp ExtractVariablesResponse
	mustDecode(t, out, &resp)
	if resp.Template != "{{firm.name}} appoints {{name_of_mlro}} as MLRO." {
		t.Errorf("template = %q", resp.Template)
	}
	if len(resp.Variables) != 2 || resp.Variables[0].Name != "name_of_mlro" {
		t.Errorf("variables = %+v", resp.Variables)
	}

	_, err = svc.ExtractVariables(context.Background(), mustEncode(t, ExtractVariablesRequest{
		Body: string(make([]byte, types.MaxClauseBodyLength+1)),
	}))
	assertCode(t, err, codes.InvalidArgument)
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{types.ErrInvalidPack, codes.InvalidArgument},
		{types.ErrPolicyRequired, codes.InvalidArgument},
		{errBadRequest, codes.InvalidArgument},
		{types.ErrTemplateNotFound, codes.NotFound},
		{db.ErrDocumentNotFound, codes.NotFound},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{context.Canceled, codes.Canceled},
		{errors.New("boom"), codes.Unavailable},
		{status.Error(codes.PermissionDenied, "x"), codes.PermissionDenied},
	}
	for _, tt := range tests {
		if got := status.Code(toStatus(tt.err)); got != tt.want {
			t.Errorf("toStatus(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
	if toStatus(nil) != nil {
		t.Error("toStatus(nil) != nil")
	}
}
