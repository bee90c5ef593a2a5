package api

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/policysmith/internal/assembler"
	"github.com/solatis/policysmith/internal/pack"
	"github.com/solatis/policysmith/internal/rules"
	"github.com/solatis/policysmith/internal/types"
)

// AssembleRequest selects clauses for one policy. Template and Rules
// absent or null in the request are loaded from the store.
type AssembleRequest struct {
	PolicyKey      string               `json:"policy_key"`
	Template       *types.Template      `json:"template,omitempty"`
	Rules          []types.Rule         `json:"rules"`
	Answers        types.Answers        `json:"answers"`
	FirmAttributes types.FirmAttributes `json:"firm_attributes"`
}

// AssembleResponse is the assembly plus the rule result for rule-backed
// policies.
type AssembleResponse struct {
	assembler.Assembly
	Rules *types.RulesEngineResult `json:"rules,omitempty"`
}

// policyKeyOf returns the request key, falling back to the supplied
// template's key.
func policyKeyOf(key string, tmpl *types.Template) (string, error) {
	if key == "" && tmpl != nil {
		key = tmpl.PolicyKey
	}
	if key == "" {
		return "", types.ErrPolicyRequired
	}
	if tmpl != nil {
		if err := pack.ValidateTemplate(*tmpl); err != nil {
			return "", err
		}
		if tmpl.PolicyKey != key {
			return "", fmt.Errorf("%w: template policy_key %q does not match %q", errBadRequest, tmpl.PolicyKey, key)
		}
	}
	return key, nil
}

// Assemble implements PolicyEngineServer.
func (s *PolicyEngineService) Assemble(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req AssembleRequest
	if err := decode(in, &req); err != nil {
		return nil, toStatus(err)
	}
	key, err := policyKeyOf(req.PolicyKey, req.Template)
	if err != nil {
		return nil, toStatus(err)
	}

	tmpl, err := s.loadTemplate(ctx, key, req.Template)
	if err != nil {
		return nil, toStatus(err)
	}

	resp := AssembleResponse{}
	resp.Assembly = s.registry.For(key).Assemble(tmpl, req.Answers)

	if !s.registry.Declarative(key) {
		ruleSet, err := s.loadRules(ctx, key, req.Rules)
		if err != nil {
			return nil, toStatus(err)
		}
		if len(ruleSet) > 0 {
			result := s.rulesEngine.Evaluate(ruleSet, rules.RunContext{
				PolicyID:       key,
				Answers:        req.Answers,
				FirmAttributes: req.FirmAttributes,
			})
			if s.metrics != nil {
				s.metrics.ObserveRules(key, result.RulesFired)
			}
			resp.Assembly = assembler.ApplyRules(resp.Assembly, tmpl, result)
			resp.Rules = &result
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, toStatus(err)
	}

	s.logger.DebugContext(ctx, "policy assembled",
		"policy_key", key,
		"template_id", tmpl.ID,
		"modules", len(resp.Modules))

	out, err := encode(resp)
	if err != nil {
		return nil, toStatus(err)
	}
	return out, nil
}
