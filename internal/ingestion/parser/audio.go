package parser

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/platform/gcp"
)

// Inline recognition requests are capped by the Speech API; larger files
// are transcribed from their bucket URI.
const inlineAudioMaxBytes = 10 << 20

// AudioParser transcribes recordings into one unit per speaker turn.
type AudioParser struct {
	Speech gcp.Speech
	Config gcp.SpeechConfig
}

func (AudioParser) Name() string    { return "audio" }
func (AudioParser) Kinds() []string { return []string{"wav", "mp3", "flac", "ogg", "opus"} }

func (p AudioParser) Parse(ctx context.Context, path string, src Source) ([]evidence.ParsedUnit, error) {
	if p.Speech == nil {
		return nil, fmt.Errorf("audio: speech-to-text not configured")
	}
	var (
		segs []gcp.Segment
		err  error
	)
	if uri := src.GCSURI(); uri != "" && src.SizeBytes > inlineAudioMaxBytes {
		segs, err = p.Speech.TranscribeGCS(ctx, uri, p.Config)
	} else {
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil, fmt.Errorf("audio: read: %w", rerr)
		}
		segs, err = p.Speech.TranscribeBytes(ctx, data, src.FileName, p.Config)
	}
	if err != nil {
		return nil, fmt.Errorf("audio: transcribe: %w", err)
	}
	units := unitsFromSegments(segs, src.FileName, "gcp_speech")
	if len(units) == 0 {
		return nil, ErrNoContent
	}
	return units, nil
}
