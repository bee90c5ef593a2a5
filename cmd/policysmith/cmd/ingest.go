package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/policysmith/internal/clauses"
	"github.com/solatis/policysmith/internal/pack"
	"github.com/solatis/policysmith/internal/types"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Extract variables from a clause source and build its template",
	Long: `ingest reads raw clause text grouped by section, rewrites bracket
placeholders and firm aliases into {{variables}}, and prints the resulting
template and clause library. With --store the template, the clauses and an
optional rule pack are written to the database.`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().String("source", "", "clause source file (yaml or json)")
	ingestCmd.Flags().String("rules", "", "rule pack to store alongside the template")
	ingestCmd.Flags().Bool("store", false, "write the result to the database")
	_ = ingestCmd.MarkFlagRequired("source")
}

type ingestResult struct {
	Template types.Template `json:"template"`
	Clauses  []types.Clause `json:"clauses"`
	Rules    []types.Rule   `json:"rules,omitempty"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sourcePath, _ := cmd.Flags().GetString("source")
	rulesPath, _ := cmd.Flags().GetString("rules")
	persist, _ := cmd.Flags().GetBool("store")

	src, err := pack.LoadSource(sourcePath)
	if err != nil {
		return err
	}
	tmpl, library, err := src.Ingest(clauses.Extractor{FirmAliases: cfg.Engine.FirmAliases})
	if err != nil {
		return err
	}
	result := ingestResult{Template: tmpl, Clauses: library}

	if rulesPath != "" {
		rp, err := pack.LoadRules(rulesPath)
		if err != nil {
			return err
		}
		for _, p := range rp.Policies() {
			if p != tmpl.PolicyKey {
				return fmt.Errorf("%w: rule pack policy %q does not match source %q", types.ErrInvalidPack, p, tmpl.PolicyKey)
			}
		}
		result.Rules = rp.Rules
	}

	logger.Info("source ingested",
		"policy_key", tmpl.PolicyKey,
		"sections", len(tmpl.Sections),
		"clauses", len(library),
		"rules", len(result.Rules))

	if persist {
		store, closeDB, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeDB()

		if err := store.SaveTemplate(ctx, tmpl); err != nil {
			return err
		}
		for _, c := range library {
			if err := store.SaveClause(ctx, c); err != nil {
				return err
			}
		}
		if rulesPath != "" {
			if err := store.ReplaceRules(ctx, tmpl.PolicyKey, result.Rules); err != nil {
				return err
			}
		}
		logger.Info("ingest stored", "policy_key", tmpl.PolicyKey)
	}

	return writeJSON(cmd, result)
}
