package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/docsift/docsift/internal/rag"
)

var (
	queryDocs []string
	queryTopK int
	queryJSON bool
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask a question across processed documents",
	Long: `Retrieves the closest passages of each document, answers per document
with page and paragraph citations, then summarizes themes across documents.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringSliceVar(&queryDocs, "doc", nil, "restrict to these document ids (repeatable)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "passages per document (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the result as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := strings.Join(args, " ")

	docIDs, err := parseDocIDs(queryDocs)
	if err != nil {
		return err
	}

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer teardown(a)

	result, err := a.Engine.ProcessUserQuery(ctx, question, docIDs, queryTopK)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	printResult(cmd, result)
	return nil
}

// parseDocIDs returns nil when no ids were given so every document is searched
func parseDocIDs(raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("invalid document id %q", s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printResult(cmd *cobra.Command, result *rag.QueryResult) {
	if len(result.DocumentResponses) == 0 {
		cmd.Println("No relevant passages found.")
		return
	}

	names := make([]string, 0, len(result.DocumentResponses))
	for name := range result.DocumentResponses {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		answer := result.DocumentResponses[name]
		cmd.Printf("== %s\n%s\n", name, answer.Response)
		refs := make([]string, len(answer.Citations))
		for i, c := range answer.Citations {
			refs[i] = rag.Citation(c.Page, c.Paragraph)
		}
		if len(refs) > 0 {
			cmd.Printf("Sources: %s\n", strings.Join(refs, " "))
		}
		cmd.Println()
	}

	if len(result.Themes) > 0 {
		cmd.Println("Themes:")
		for _, t := range result.Themes {
			cmd.Printf("  * %s\n", t.Theme)
			if t.Description != "" {
				cmd.Printf("    %s\n", t.Description)
			}
			if len(t.Documents) > 0 {
				cmd.Printf("    Documents: %s\n", strings.Join(t.Documents, ", "))
			}
		}
	}
}
