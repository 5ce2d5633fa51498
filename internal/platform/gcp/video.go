package gcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	videointelligence "cloud.google.com/go/videointelligence/apiv1"
	vipb "cloud.google.com/go/videointelligence/apiv1/videointelligencepb"

	"github.com/yungbote/evidence-backend/internal/platform/ctxutil"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

// Video pulls the spoken transcript and on-screen text out of a video that
// already lives in a bucket.
type Video interface {
	AnnotateGCS(ctx context.Context, gcsURI string, languageCode string) ([]Segment, error)
	Close() error
}

type videoService struct {
	log    *logger.Logger
	client *videointelligence.Client
}

func NewVideo(ctx context.Context, log *logger.Logger) (Video, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	c, err := videointelligence.NewClient(ctx, ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("videointelligence client: %w", err)
	}
	return &videoService{log: log.With("service", "gcp.Video"), client: c}, nil
}

func (s *videoService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *videoService) AnnotateGCS(ctx context.Context, gcsURI string, languageCode string) ([]Segment, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	if !strings.HasPrefix(gcsURI, "gs://") {
		return nil, fmt.Errorf("gcsURI must be gs://... got %q", gcsURI)
	}
	if languageCode == "" {
		languageCode = "en-US"
	}
	req := &vipb.AnnotateVideoRequest{
		InputUri: gcsURI,
		Features: []vipb.Feature{vipb.Feature_SPEECH_TRANSCRIPTION, vipb.Feature_TEXT_DETECTION},
		VideoContext: &vipb.VideoContext{
			SpeechTranscriptionConfig: &vipb.SpeechTranscriptionConfig{
				LanguageCode:               languageCode,
				EnableAutomaticPunctuation: true,
				EnableSpeakerDiarization:   true,
				EnableWordConfidence:       true,
			},
			TextDetectionConfig: &vipb.TextDetectionConfig{},
		},
	}
	resp, err := callTransient(ctx, s.log, "video.annotate", func(ctx context.Context) (*vipb.AnnotateVideoResponse, error) {
		op, err := s.client.AnnotateVideo(ctx, req)
		if err != nil {
			return nil, err
		}
		return op.Wait(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("videointelligence AnnotateVideo: %w", err)
	}
	if resp == nil || len(resp.AnnotationResults) == 0 || resp.AnnotationResults[0] == nil {
		s.log.Warn("video annotation returned no results", "uri", gcsURI)
		return nil, nil
	}
	ar := resp.AnnotationResults[0]
	out := videoTranscript(ar.SpeechTranscriptions)
	return append(out, videoText(ar.TextAnnotations)...), nil
}

func videoTranscript(st []*vipb.SpeechTranscription) []Segment {
	var words []timedWord
	var plain []Segment
	for _, tr := range st {
		if tr == nil || len(tr.Alternatives) == 0 || tr.Alternatives[0] == nil {
			continue
		}
		alt := tr.Alternatives[0]
		if len(alt.Words) == 0 {
			if t := strings.TrimSpace(alt.Transcript); t != "" {
				plain = append(plain, Segment{Text: t, Confidence: float64(alt.Confidence), Kind: "transcript"})
			}
			continue
		}
		for _, w := range alt.Words {
			if w == nil {
				continue
			}
			words = append(words, timedWord{
				text:    w.Word,
				start:   durToSec(w.StartTime),
				end:     durToSec(w.EndTime),
				speaker: int(w.SpeakerTag),
				conf:    float64(w.Confidence),
			})
		}
	}
	return append(plain, groupBySpeaker(words, "transcript")...)
}

func videoText(ann []*vipb.TextAnnotation) []Segment {
	var out []Segment
	for _, ta := range ann {
		if ta == nil || strings.TrimSpace(ta.Text) == "" {
			continue
		}
		for _, seg := range ta.Segments {
			if seg == nil || seg.Segment == nil {
				continue
			}
			s := durToSec(seg.Segment.StartTimeOffset)
			e := durToSec(seg.Segment.EndTimeOffset)
			out = append(out, Segment{
				Text:       ta.Text,
				StartSec:   &s,
				EndSec:     &e,
				Confidence: float64(seg.Confidence),
				Kind:       "frame_ocr",
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return *out[i].StartSec < *out[j].StartSec })
	return out
}
