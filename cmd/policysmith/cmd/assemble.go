package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/policysmith/internal/assembler"
	"github.com/solatis/policysmith/internal/pack"
	"github.com/solatis/policysmith/internal/rules"
	"github.com/solatis/policysmith/internal/types"
)

var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Select each section's clauses for a template and answers",
	RunE:  runAssemble,
}

func init() {
	rootCmd.AddCommand(assembleCmd)
	assembleCmd.Flags().String("template", "", "template file (defaults to the stored or built-in template for --policy)")
	assembleCmd.Flags().String("policy", "", "policy key")
	assembleCmd.Flags().String("answers", "", "answers file")
	assembleCmd.Flags().String("attributes", "", "firm attributes file")
	assembleCmd.Flags().String("rules", "", "rule pack for rule-backed policies")
}

type assembleResult struct {
	assembler.Assembly
	Rules *types.RulesEngineResult `json:"rules,omitempty"`
}

func runAssemble(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	templatePath, _ := cmd.Flags().GetString("template")
	policyKey, _ := cmd.Flags().GetString("policy")
	answersPath, _ := cmd.Flags().GetString("answers")
	attributesPath, _ := cmd.Flags().GetString("attributes")
	rulesPath, _ := cmd.Flags().GetString("rules")

	tmpl, err := resolveTemplate(ctx, templatePath, policyKey)
	if err != nil {
		return err
	}
	answers, err := optionalAnswers(answersPath)
	if err != nil {
		return err
	}
	attributes, err := optionalAnswers(attributesPath)
	if err != nil {
		return err
	}

	registry := assembler.NewRegistry()
	out := assembleResult{Assembly: registry.For(tmpl.PolicyKey).Assemble(tmpl, answers)}

	if rulesPath != "" && !registry.Declarative(tmpl.PolicyKey) {
		rp, err := pack.LoadRules(rulesPath)
		if err != nil {
			return err
		}
		result := rules.EvaluateRules(rp.Rules, rules.RunContext{
			PolicyID:       tmpl.PolicyKey,
			Answers:        answers,
			FirmAttributes: types.FirmAttributes(attributes),
		})
		out.Assembly = assembler.ApplyRules(out.Assembly, tmpl, result)
		out.Rules = &result
	}

	logger.Debug("policy assembled", "policy_key", tmpl.PolicyKey, "modules", len(out.Modules))
	return writeJSON(cmd, out)
}

// resolveTemplate loads the template file when given. Otherwise it reads
// the stored template for policyKey when a database is configured, falling
// back to the built-in template.
func resolveTemplate(ctx context.Context, path, policyKey string) (types.Template, error) {
	if path != "" {
		return pack.LoadTemplate(path)
	}
	if policyKey == "" {
		return types.Template{}, fmt.Errorf("--template or --policy required")
	}
	if cfg.Database.URL != "" {
		store, closeDB, err := openStore(ctx)
		if err != nil {
			return types.Template{}, err
		}
		defer closeDB()
		t, err := store.Template(ctx, policyKey)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, types.ErrTemplateNotFound) {
			return types.Template{}, err
		}
	}
	if policyKey == assembler.ComplaintsPolicyKey {
		return assembler.ComplaintsTemplate(), nil
	}
	return types.Template{}, fmt.Errorf("%w: %s", types.ErrTemplateNotFound, policyKey)
}
