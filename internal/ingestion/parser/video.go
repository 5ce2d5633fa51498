package parser

import (
	"context"
	"fmt"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/platform/gcp"
)

// VideoParser annotates the object in place by its bucket URI; the local
// copy is only used for hashing and size checks.
type VideoParser struct {
	Video        gcp.Video
	LanguageCode string
}

func (VideoParser) Name() string    { return "video" }
func (VideoParser) Kinds() []string { return []string{"mp4", "mov", "webm", "mkv", "avi"} }

func (p VideoParser) Parse(ctx context.Context, _ string, src Source) ([]evidence.ParsedUnit, error) {
	if p.Video == nil {
		return nil, fmt.Errorf("video: video intelligence not configured")
	}
	uri := src.GCSURI()
	if uri == "" {
		return nil, fmt.Errorf("video: bucket and key required")
	}
	segs, err := p.Video.AnnotateGCS(ctx, uri, p.LanguageCode)
	if err != nil {
		return nil, fmt.Errorf("video: annotate: %w", err)
	}
	units := unitsFromSegments(segs, src.FileName, "gcp_videointelligence")
	if len(units) == 0 {
		return nil, ErrNoContent
	}
	return units, nil
}
