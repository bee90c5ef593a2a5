package api

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/policysmith/internal/clauses"
	"github.com/solatis/policysmith/internal/rules"
	"github.com/solatis/policysmith/internal/types"
)

// EvaluateRulesRequest runs one policy's rules. Rules absent or null in the
// request are loaded from the store; an empty list means no rules.
type EvaluateRulesRequest struct {
	PolicyID       string               `json:"policy_id"`
	Rules          []types.Rule         `json:"rules"`
	Answers        types.Answers        `json:"answers"`
	FirmAttributes types.FirmAttributes `json:"firm_attributes"`
}

// EvaluateRules implements PolicyEngineServer.
func (s *PolicyEngineService) EvaluateRules(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req EvaluateRulesRequest
	if err := decode(in, &req); err != nil {
		return nil, toStatus(err)
	}
	if req.PolicyID == "" {
		return nil, toStatus(types.ErrPolicyRequired)
	}

	ruleSet, err := s.loadRules(ctx, req.PolicyID, req.Rules)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, toStatus(err)
	}

	result := s.rulesEngine.Evaluate(ruleSet, rules.RunContext{
		PolicyID:       req.PolicyID,
		Answers:        req.Answers,
		FirmAttributes: req.FirmAttributes,
	})
	if s.metrics != nil {
		s.metrics.ObserveRules(req.PolicyID, result.RulesFired)
	}

	s.logger.DebugContext(ctx, "rules evaluated",
		"policy_id", req.PolicyID,
		"considered", len(result.RulesFired),
		"included", len(result.IncludedClauses),
		"excluded", len(result.ExcludedClauses))

	out, err := encode(result)
	if err != nil {
		return nil, toStatus(err)
	}
	return out, nil
}

// ExtractVariablesRequest carries one raw clause body. FirmAliases
// overrides the configured aliases when non-nil.
type ExtractVariablesRequest struct {
	Body        string   `json:"body"`
	FirmAliases []string `json:"firm_aliases,omitempty"`
}

// ExtractVariablesResponse is the templated body and its declarations.
type ExtractVariablesResponse struct {
	Template  string                 `json:"template"`
	Variables []types.ClauseVariable `json:"variables"`
}

// ExtractVariables implements PolicyEngineServer.
func (s *PolicyEngineService) ExtractVariables(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ExtractVariablesRequest
	if err := decode(in, &req); err != nil {
		return nil, toStatus(err)
	}
	if len(req.Body) > types.MaxClauseBodyLength {
		return nil, toStatus(fmt.Errorf("%w: %d bytes", types.ErrClauseTooLarge, len(req.Body)))
	}

	ex := s.extractor
	if req.FirmAliases != nil {
		ex = clauses.Extractor{FirmAliases: req.FirmAliases}
	}
	extraction := ex.Extract(req.Body)

	resp := ExtractVariablesResponse{
		Template:  extraction.Template,
		Variables: extraction.Variables,
	}
	if resp.Variables == nil {
		resp.Variables = []types.ClauseVariable{}
	}
	out, err := encode(resp)
	if err != nil {
		return nil, toStatus(err)
	}
	return out, nil
}
