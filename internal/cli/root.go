// Package cli implements evidencectl, the operator tool for one-off ingests
// and multi-store maintenance against the same backends the ingestor uses.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/evidence-backend/internal/consistency"
	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/ingestion/pipeline"
)

type BatchRunner interface {
	Run(ctx context.Context, refs []evidence.Reference) []pipeline.Result
}

type CaseStore interface {
	ClearCaseData(ctx context.Context, caseID string, deleteCollection bool) (consistency.ClearResult, error)
	DeleteWithIndex(ctx context.Context, caseID string, recordID uuid.UUID) (consistency.DeleteResult, error)
	Reindex(ctx context.Context, recordID uuid.UUID) (*evidence.Record, error)
}

// Backend is what a command needs once the stores are connected. Close
// releases every connection.
type Backend struct {
	Batch BatchRunner
	Cases CaseStore
	Close func()
}

// Opener connects the backends. It runs only for commands that need them,
// so --help and usage errors work without any configuration.
type Opener func(ctx context.Context) (*Backend, error)

var errNotConfigured = errors.New("backend not configured")

func NewRootCmd(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "evidencectl",
		Short:         "Operate the evidence ingestion pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newIngestCmd(open),
		newClearCaseCmd(open),
		newDeleteRecordCmd(open),
		newReindexCmd(open),
	)
	return root
}

func connect(ctx context.Context, open Opener) (*Backend, error) {
	if open == nil {
		return nil, errNotConfigured
	}
	b, err := open(ctx)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errNotConfigured
	}
	if b.Close == nil {
		b.Close = func() {}
	}
	return b, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
