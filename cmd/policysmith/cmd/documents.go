package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/policysmith/internal/types"
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Inspect stored documents",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a firm's documents, newest first",
	RunE:  runDocumentsList,
}

var documentsShowCmd = &cobra.Command{
	Use:   "show <document-id>",
	Short: "Print a stored document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsShow,
}

func init() {
	rootCmd.AddCommand(documentsCmd)
	documentsCmd.AddCommand(documentsListCmd, documentsShowCmd)
	documentsListCmd.Flags().String("firm", "", "firm id")
	documentsListCmd.Flags().Int("limit", 20, "maximum documents to list")
	_ = documentsListCmd.MarkFlagRequired("firm")
}

type documentSummary struct {
	ID          string `json:"id"`
	PolicyKey   string `json:"policy_key"`
	TemplateID  string `json:"template_id"`
	Fingerprint string `json:"fingerprint"`
	CreatedAt   string `json:"created_at"`
}

func runDocumentsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	firmID, _ := cmd.Flags().GetString("firm")
	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		return fmt.Errorf("--limit must be positive")
	}

	store, closeDB, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	recs, err := store.FirmDocuments(ctx, firmID, limit)
	if err != nil {
		return err
	}
	out := make([]documentSummary, 0, len(recs))
	for _, r := range recs {
		out = append(out, documentSummary{
			ID:          r.ID,
			PolicyKey:   r.PolicyKey,
			TemplateID:  r.TemplateID,
			Fingerprint: r.Fingerprint,
			CreatedAt:   r.CreatedAt,
		})
	}
	return writeJSON(cmd, out)
}

func runDocumentsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := types.ParseDocumentID(args[0])
	if err != nil {
		return fmt.Errorf("invalid document id %q: %w", args[0], err)
	}

	store, closeDB, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	rec, err := store.Document(ctx, string(id))
	if err != nil {
		return err
	}
	return writeJSON(cmd, json.RawMessage(rec.Content))
}
