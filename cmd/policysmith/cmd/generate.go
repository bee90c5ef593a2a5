package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/policysmith/internal/assembler"
	"github.com/solatis/policysmith/internal/core/db"
	"github.com/solatis/policysmith/internal/document"
	"github.com/solatis/policysmith/internal/pack"
	"github.com/solatis/policysmith/internal/types"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a policy document for a firm",
	Long: `generate runs the policy's rules, assembles its sections, binds the
firm's variables and prints the rendered document. Inputs not given as files
are read from the database when one is configured.`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().String("template", "", "template file")
	generateCmd.Flags().String("policy", "", "policy key (when --template is omitted)")
	generateCmd.Flags().String("clauses", "", "clause library file")
	generateCmd.Flags().String("rules", "", "rule pack file")
	generateCmd.Flags().String("answers", "", "answers file")
	generateCmd.Flags().String("firm", "", "firm profile file")
	generateCmd.Flags().Bool("store", false, "record the document in the database")
}

type generateResult struct {
	DocumentID string            `json:"document_id,omitempty"`
	Document   document.Document `json:"document"`
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	templatePath, _ := cmd.Flags().GetString("template")
	policyKey, _ := cmd.Flags().GetString("policy")
	clausesPath, _ := cmd.Flags().GetString("clauses")
	rulesPath, _ := cmd.Flags().GetString("rules")
	answersPath, _ := cmd.Flags().GetString("answers")
	firmPath, _ := cmd.Flags().GetString("firm")
	persist, _ := cmd.Flags().GetBool("store")

	tmpl, err := resolveTemplate(ctx, templatePath, policyKey)
	if err != nil {
		return err
	}
	answers, err := optionalAnswers(answersPath)
	if err != nil {
		return err
	}
	var firm types.FirmProfile
	if firmPath != "" {
		if firm, err = pack.LoadFirm(firmPath); err != nil {
			return err
		}
	}

	var store *db.Store
	if cfg.Database.URL != "" {
		s, closeDB, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeDB()
		store = s
	} else if persist {
		return fmt.Errorf("--store requires --db-url or PS_DATABASE_URL")
	}

	var library []types.Clause
	switch {
	case clausesPath != "":
		if library, err = pack.LoadClauses(clausesPath); err != nil {
			return err
		}
	case store != nil:
		if library, err = store.Clauses(ctx, tmpl.PolicyKey); err != nil {
			return err
		}
	}

	registry := assembler.NewRegistry()
	var ruleSet []types.Rule
	if !registry.Declarative(tmpl.PolicyKey) {
		switch {
		case rulesPath != "":
			rp, err := pack.LoadRules(rulesPath)
			if err != nil {
				return err
			}
			ruleSet = rp.Rules
		case store != nil:
			if ruleSet, err = store.Rules(ctx, tmpl.PolicyKey); err != nil {
				return err
			}
		}
		if len(ruleSet) > cfg.Engine.MaxRules {
			return fmt.Errorf("%w: %d rules (max %d)", types.ErrTooManyRules, len(ruleSet), cfg.Engine.MaxRules)
		}
	}

	doc := document.Generate(document.Input{
		Template: tmpl,
		Clauses:  library,
		Rules:    ruleSet,
		Answers:  answers,
		Firm:     firm,
		Registry: registry,
	})
	out := generateResult{Document: doc}

	if len(doc.MissingClauses) > 0 || len(doc.DroppedMandatory) > 0 {
		logger.Warn("document has gaps",
			"policy_key", doc.PolicyKey,
			"missing", doc.MissingClauses,
			"dropped_mandatory", doc.DroppedMandatory)
	}

	if persist {
		content, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
		rec := db.DocumentRecord{
			ID:          string(types.NewDocumentID()),
			PolicyKey:   doc.PolicyKey,
			TemplateID:  doc.TemplateID,
			FirmID:      doc.FirmID,
			Fingerprint: doc.Fingerprint,
			Content:     string(content),
			CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		}
		if err := store.SaveDocument(ctx, rec); err != nil {
			return err
		}
		out.DocumentID = rec.ID
		logger.Info("document stored", "document_id", rec.ID, "fingerprint", rec.Fingerprint)
	}

	return writeJSON(cmd, out)
}
