package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/policysmith/internal/pack"
	"github.com/solatis/policysmith/internal/rules"
	"github.com/solatis/policysmith/internal/types"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run a rule pack against answers and firm attributes",
	RunE:  runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().String("rules", "", "rule pack file (yaml or json)")
	evaluateCmd.Flags().String("answers", "", "answers file")
	evaluateCmd.Flags().String("attributes", "", "firm attributes file")
	evaluateCmd.Flags().String("policy", "", "policy id (defaults to the pack's policy_id)")
	_ = evaluateCmd.MarkFlagRequired("rules")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	rulesPath, _ := cmd.Flags().GetString("rules")
	answersPath, _ := cmd.Flags().GetString("answers")
	attributesPath, _ := cmd.Flags().GetString("attributes")
	policyID, _ := cmd.Flags().GetString("policy")

	rp, err := pack.LoadRules(rulesPath)
	if err != nil {
		return err
	}
	if len(rp.Rules) > cfg.Engine.MaxRules {
		return fmt.Errorf("%w: %d rules (max %d)", types.ErrTooManyRules, len(rp.Rules), cfg.Engine.MaxRules)
	}
	if policyID == "" {
		policyID = rp.PolicyID
	}
	if policyID == "" {
		if policies := rp.Policies(); len(policies) == 1 {
			policyID = policies[0]
		}
	}
	if policyID == "" {
		return fmt.Errorf("--policy required: %w", types.ErrPolicyRequired)
	}

	answers, err := optionalAnswers(answersPath)
	if err != nil {
		return err
	}
	attributes, err := optionalAnswers(attributesPath)
	if err != nil {
		return err
	}

	result := rules.EvaluateRules(rp.Rules, rules.RunContext{
		PolicyID:       policyID,
		Answers:        answers,
		FirmAttributes: types.FirmAttributes(attributes),
	})
	logger.Debug("rules evaluated",
		"policy_id", policyID,
		"considered", len(result.RulesFired),
		"included", len(result.IncludedClauses))
	return writeJSON(cmd, result)
}

// optionalAnswers loads path, or returns an empty bag when path is empty.
func optionalAnswers(path string) (types.Answers, error) {
	if path == "" {
		return types.Answers{}, nil
	}
	return pack.LoadAnswers(path)
}
