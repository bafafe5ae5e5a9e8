package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/parity/internal/ingest"
	"github.com/sells-group/parity/internal/model"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <deal-id> <file>...",
	Short: "Ingest statement files for a deal",
	Long:  "Parses CSV, XLSX, or PDF bank statements into canonical transaction records. Files are processed concurrently; a failed file is recorded on its own document and never blocks the others.",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		createdBy, _ := cmd.Flags().GetString("created-by")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		if concurrency <= 0 {
			concurrency = cfg.Ingest.Concurrency
		}

		dealID := args[0]
		uploads := make([]ingest.Upload, 0, len(args)-1)
		for _, path := range args[1:] {
			ft, err := fileTypeFor(path)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return eris.Wrapf(err, "ingest: read %s", path)
			}
			uploads = append(uploads, ingest.Upload{
				DealID:    dealID,
				FileName:  filepath.Base(path),
				FileType:  ft,
				FileBytes: data,
				CreatedBy: createdBy,
			})
		}

		svc := newIngestService(st)
		res, err := svc.IngestBatch(ctx, uploads, concurrency)
		if err != nil {
			return eris.Wrap(err, "ingest")
		}

		out := cmd.OutOrStdout()
		for _, d := range res.Documents {
			if d.ID == "" {
				continue
			}
			if d.Status == model.DocStatusFailed {
				fmt.Fprintf(out, "%s: %s (%s @ %s, next: %s)\n", d.FileName, d.Status, d.ErrorType, d.ErrorStage, d.NextAction)
			} else {
				fmt.Fprintf(out, "%s: %s\n", d.FileName, d.Status)
			}
		}
		fmt.Fprintf(out, "%d completed, %d failed\n", res.Completed, res.Failed)
		if res.Failed > 0 {
			return eris.Errorf("%d document(s) failed", res.Failed)
		}
		return nil
	},
}

func fileTypeFor(path string) (model.FileType, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return model.FileTypeCSV, nil
	case ".xlsx":
		return model.FileTypeXLSX, nil
	case ".pdf":
		return model.FileTypePDF, nil
	default:
		return "", eris.Errorf("unsupported file extension: %s", path)
	}
}

func init() {
	ingestCmd.Flags().String("created-by", "", "uploader identifier")
	ingestCmd.Flags().Int("concurrency", 0, "parallel documents (default from config)")
	rootCmd.AddCommand(ingestCmd)
}
