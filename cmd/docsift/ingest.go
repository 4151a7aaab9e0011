package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docsift/docsift/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <pdf>...",
	Short: "Upload and process PDFs synchronously",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	for _, path := range args {
		if ext := strings.ToLower(filepath.Ext(path)); ext != ".pdf" {
			return fmt.Errorf("%s: only .pdf files are supported", path)
		}
	}

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer teardown(a)

	failed := 0
	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		doc, err := ingest.Register(ctx, a.Documents, a.Blobs, path, f)
		f.Close()
		if err != nil {
			return err
		}

		if err := a.Processor.ProcessDocument(ctx, doc.ID); err != nil {
			cmd.Printf("%s  %s  failed: %v\n", doc.ID, doc.OriginalFilename, err)
			failed++
			continue
		}
		processed, err := a.Documents.GetDocument(ctx, doc.ID)
		if err != nil {
			return err
		}
		pages := 0
		if processed.PageCount != nil {
			pages = *processed.PageCount
		}
		cmd.Printf("%s  %s  processed (%d pages)\n", doc.ID, doc.OriginalFilename, pages)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(args))
	}
	return nil
}
