package tracker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/evidence-backend/internal/platform/errkind"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

func TestTrackerRecordsStagesAndErrors(t *testing.T) {
	tr, ctx := New(context.Background(), logger.Nop(), "bucket1/case42/chat.txt")
	require.NotEmpty(t, tr.JobID())

	_, end := tr.Begin(ctx, StageDownload)
	tr.Info("downloaded", "size_bytes", 12)
	end(nil)

	_, end = tr.Begin(ctx, StageAnalyze)
	kind := tr.Error(errkind.Wrap(errkind.Dependency, "graph", errors.New("neo4j down")), false)
	end(nil)
	assert.Equal(t, errkind.Dependency, kind)

	_, end = tr.Begin(ctx, StageIndex)
	err := errors.New("qdrant unavailable")
	tr.Error(err, true)
	end(err)

	tr.SetCaseID("case42")
	tr.Set("chunks", 3)

	s := tr.Finish("error")
	assert.Equal(t, "case42", s.CaseID)
	assert.Equal(t, StageIndex, s.FinalStage)
	require.Len(t, s.Stages, 3)
	assert.Equal(t, StageDownload, s.Stages[0].Stage)
	assert.True(t, s.Stages[0].OK)
	assert.False(t, s.Stages[2].OK)

	require.Len(t, s.Errors, 2)
	assert.Equal(t, StageAnalyze, s.Errors[0].Stage)
	assert.False(t, s.Errors[0].Fatal)
	assert.Equal(t, errkind.Infrastructure, s.Errors[1].Kind)
	assert.True(t, s.Errors[1].Fatal)
	assert.Equal(t, 3, s.Metadata["chunks"])

	logs := tr.Logs()
	require.NotEmpty(t, logs)
	var found bool
	for _, l := range logs {
		if l.Message == "downloaded" {
			found = true
			assert.Equal(t, StageDownload, l.Stage)
			assert.Equal(t, 12, l.Fields["size_bytes"])
		}
	}
	assert.True(t, found)
}

func TestErrorNilIsIgnored(t *testing.T) {
	tr, _ := New(context.Background(), logger.Nop(), "b/k")
	assert.Equal(t, errkind.Kind(""), tr.Error(nil, true))
	assert.Empty(t, tr.Errors())
}
