package testutil

import (
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
)

// NewRecord builds an unsaved pending record with unique natural keys.
func NewRecord(tb testing.TB, caseID string) *evidence.Record {
	tb.Helper()
	suffix := uuid.NewString()
	return &evidence.Record{
		CaseID:      caseID,
		FileName:    "chat-" + suffix[:8] + ".txt",
		ContentType: "text/plain",
		FileHash:    "hash-" + suffix,
		OriginRef:   "gs://bucket/" + caseID + "/" + suffix + ".txt",
		Status:      evidence.StatusPending,
		Tags:        evidence.TagsJSON(nil),
	}
}
