package pack

import (
	"fmt"
	"strconv"

	"github.com/solatis/policysmith/internal/types"
)

// RulePack is a rule file. Rules without a policy_id inherit PolicyID;
// rules without an id get "<policy_id>-<n>".
type RulePack struct {
	PolicyID string       `json:"policy_id" yaml:"policy_id"`
	Rules    []types.Rule `json:"rules" yaml:"rules"`
}

// LoadRules reads a rule pack. The file may be a RulePack object or a bare
// list of rules.
func LoadRules(path string) (RulePack, error) {
	data, format, err := readFile(path)
	if err != nil {
		return RulePack{}, err
	}

	var pack RulePack
	if isSequence(data, format) {
		err = Decode(data, format, &pack.Rules)
	} else {
		err = Decode(data, format, &pack)
	}
	if err != nil {
		return RulePack{}, fmt.Errorf("%w: %s: %v", types.ErrInvalidPack, path, err)
	}

	if err := pack.Normalize(); err != nil {
		return RulePack{}, fmt.Errorf("%s: %w", path, err)
	}
	return pack, nil
}

// Normalize fills inherited policy ids and generated rule ids, then checks
// pack limits. Malformed conditions and priorities are left alone.
func (p *RulePack) Normalize() error {
	if len(p.Rules) > types.MaxRulesPerPack {
		return fmt.Errorf("%w: %d rules", types.ErrTooManyRules, len(p.Rules))
	}

	seen := make(map[types.RuleID]struct{}, len(p.Rules))
	for i := range p.Rules {
		r := &p.Rules[i]
		if r.PolicyID == "" {
			r.PolicyID = p.PolicyID
		}
		if r.PolicyID == "" {
			return fmt.Errorf("%w: rule %d: %v", types.ErrInvalidPack, i, types.ErrPolicyRequired)
		}
		if r.ID == "" {
			r.ID = types.RuleID(r.PolicyID + "-" + strconv.Itoa(i+1))
		}
		if _, ok := seen[r.ID]; ok {
			return fmt.Errorf("%w: duplicate rule id %q", types.ErrInvalidPack, r.ID)
		}
		seen[r.ID] = struct{}{}

		if src, ok := r.Condition.Operands["expr"].(string); ok && len(src) > types.MaxExprLength {
			return fmt.Errorf("%w: rule %q: expr longer than %d bytes", types.ErrInvalidPack, r.ID, types.MaxExprLength)
		}
	}
	return nil
}

// Policies returns the distinct policy ids in the pack, in first-seen order.
func (p RulePack) Policies() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range p.Rules {
		if _, ok := seen[r.PolicyID]; ok {
			continue
		}
		seen[r.PolicyID] = struct{}{}
		out = append(out, r.PolicyID)
	}
	return out
}
