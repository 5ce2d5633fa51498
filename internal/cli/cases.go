package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newClearCaseCmd(open Opener) *cobra.Command {
	var keepCollection bool
	cmd := &cobra.Command{
		Use:   "clear-case CASE_ID",
		Short: "Delete every record and index entry of a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caseID := strings.TrimSpace(args[0])
			if caseID == "" {
				return fmt.Errorf("case id required")
			}
			b, err := connect(cmd.Context(), open)
			if err != nil {
				return err
			}
			defer b.Close()

			res, cerr := b.Cases.ClearCaseData(cmd.Context(), caseID, !keepCollection)
			// Partial clears still print what was removed.
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if cerr != nil {
				return fmt.Errorf("clear case %s: %w", caseID, cerr)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepCollection, "keep-collection", false, "delete the case's entries but keep its index collection")
	return cmd
}

func newDeleteRecordCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-record CASE_ID RECORD_ID",
		Short: "Delete one record and its index entries",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			recordID, err := uuid.Parse(strings.TrimSpace(args[1]))
			if err != nil {
				return fmt.Errorf("invalid record id %q: %w", args[1], err)
			}
			b, err := connect(cmd.Context(), open)
			if err != nil {
				return err
			}
			defer b.Close()

			res, err := b.Cases.DeleteWithIndex(cmd.Context(), strings.TrimSpace(args[0]), recordID)
			if err != nil {
				return fmt.Errorf("delete record %s: %w", recordID, err)
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newReindexCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex RECORD_ID",
		Short: "Rebuild the record-level index entry from stored metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recordID, err := uuid.Parse(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("invalid record id %q: %w", args[0], err)
			}
			b, err := connect(cmd.Context(), open)
			if err != nil {
				return err
			}
			defer b.Close()

			rec, err := b.Cases.Reindex(cmd.Context(), recordID)
			if err != nil {
				return fmt.Errorf("reindex %s: %w", recordID, err)
			}
			return writeJSON(cmd.OutOrStdout(), rec)
		},
	}
}
