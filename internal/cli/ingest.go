package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/ingestion/batch"
	"github.com/yungbote/evidence-backend/internal/ingestion/pipeline"
)

func newIngestCmd(open Opener) *cobra.Command {
	var bucket string
	var keys []string
	cmd := &cobra.Command{
		Use:   "ingest --bucket BUCKET --key KEY [--key KEY...]",
		Short: "Run objects through the pipeline and print one result per object",
		Long: `Processes each object synchronously with the same stages, limits and
duplicate checks as the storage-event consumer. Exits non-zero when any
object ends in error; skipped and rejected objects are not failures.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bucket = strings.TrimSpace(bucket)
			if bucket == "" {
				return fmt.Errorf("--bucket is required")
			}
			refs := make([]evidence.Reference, 0, len(keys))
			for _, k := range keys {
				if k = strings.TrimSpace(k); k != "" {
					refs = append(refs, evidence.Reference{Bucket: bucket, Key: k})
				}
			}
			if len(refs) == 0 {
				return fmt.Errorf("at least one --key is required")
			}

			b, err := connect(cmd.Context(), open)
			if err != nil {
				return err
			}
			defer b.Close()

			results := b.Batch.Run(cmd.Context(), refs)
			tally := batch.Tally(results)
			if err := writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"results": results,
				"tally":   tally,
			}); err != nil {
				return err
			}
			if n := tally[pipeline.StatusError]; n > 0 {
				return fmt.Errorf("%d of %d objects failed", n, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "bucket holding the objects")
	cmd.Flags().StringArrayVar(&keys, "key", nil, "object key (repeatable)")
	return cmd
}
