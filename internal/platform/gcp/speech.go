package gcp

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/yungbote/evidence-backend/internal/platform/ctxutil"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

// Speech transcribes recorded calls and voice notes with speaker turns.
type Speech interface {
	TranscribeBytes(ctx context.Context, audio []byte, fileName string, cfg SpeechConfig) ([]Segment, error)
	TranscribeGCS(ctx context.Context, gcsURI string, cfg SpeechConfig) ([]Segment, error)
	Close() error
}

type SpeechConfig struct {
	LanguageCode    string
	Model           string
	MinSpeakerCount int
	MaxSpeakerCount int
}

type speechService struct {
	log    *logger.Logger
	client *speech.Client
}

func NewSpeech(ctx context.Context, log *logger.Logger) (Speech, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	c, err := speech.NewClient(ctx, ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return &speechService{log: log.With("service", "gcp.Speech"), client: c}, nil
}

func (s *speechService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *speechService) TranscribeBytes(ctx context.Context, audio []byte, fileName string, cfg SpeechConfig) ([]Segment, error) {
	if len(audio) == 0 {
		return nil, nil
	}
	return s.recognize(ctx, &speechpb.LongRunningRecognizeRequest{
		Config: buildRecognitionConfig(fileName, cfg),
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	})
}

func (s *speechService) TranscribeGCS(ctx context.Context, gcsURI string, cfg SpeechConfig) ([]Segment, error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return nil, fmt.Errorf("gcsURI must be gs://... got %q", gcsURI)
	}
	return s.recognize(ctx, &speechpb.LongRunningRecognizeRequest{
		Config: buildRecognitionConfig(gcsURI, cfg),
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Uri{Uri: gcsURI}},
	})
}

func (s *speechService) recognize(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) ([]Segment, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 20*time.Minute)
	defer cancel()

	resp, err := callTransient(ctx, s.log, "speech.recognize", func(ctx context.Context) (*speechpb.LongRunningRecognizeResponse, error) {
		op, err := s.client.LongRunningRecognize(ctx, req)
		if err != nil {
			return nil, err
		}
		return op.Wait(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("speech LongRunningRecognize: %w", err)
	}
	return speechSegments(resp), nil
}

func buildRecognitionConfig(name string, cfg SpeechConfig) *speechpb.RecognitionConfig {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	minSpk, maxSpk := cfg.MinSpeakerCount, cfg.MaxSpeakerCount
	if minSpk <= 0 {
		minSpk = 1
	}
	if maxSpk < minSpk {
		maxSpk = minSpk + 5
	}
	return &speechpb.RecognitionConfig{
		Encoding:                   inferEncoding(name),
		LanguageCode:               cfg.LanguageCode,
		Model:                      cfg.Model,
		EnableAutomaticPunctuation: true,
		EnableWordTimeOffsets:      true,
		EnableWordConfidence:       true,
		DiarizationConfig: &speechpb.SpeakerDiarizationConfig{
			EnableSpeakerDiarization: true,
			MinSpeakerCount:          int32(minSpk),
			MaxSpeakerCount:          int32(maxSpk),
		},
	}
}

func inferEncoding(name string) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "wav":
		return speechpb.RecognitionConfig_LINEAR16
	case "flac":
		return speechpb.RecognitionConfig_FLAC
	case "mp3":
		return speechpb.RecognitionConfig_MP3
	case "ogg", "opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

// With diarization enabled the final result carries every word with its
// speaker tag, so only the last alternative list with words is grouped.
func speechSegments(resp *speechpb.LongRunningRecognizeResponse) []Segment {
	if resp == nil || len(resp.Results) == 0 {
		return nil
	}
	var words []timedWord
	var plain []Segment
	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		alt := r.Alternatives[0]
		if len(alt.Words) == 0 {
			if t := strings.TrimSpace(alt.Transcript); t != "" {
				plain = append(plain, Segment{Text: t, Confidence: float64(alt.Confidence), Kind: "transcript"})
			}
			continue
		}
		ws := make([]timedWord, 0, len(alt.Words))
		for _, w := range alt.Words {
			if w == nil {
				continue
			}
			ws = append(ws, timedWord{
				text:    w.Word,
				start:   durToSec(w.StartTime),
				end:     durToSec(w.EndTime),
				speaker: int(w.SpeakerTag),
				conf:    float64(w.Confidence),
			})
		}
		words = ws
	}
	if len(words) > 0 {
		return groupBySpeaker(words, "transcript")
	}
	return plain
}
