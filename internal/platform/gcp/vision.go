package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/yungbote/evidence-backend/internal/platform/ctxutil"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

const providerVision = "gcp_vision"

// Vision extracts printed or handwritten text from screenshots and photos.
type Vision interface {
	OCRImage(ctx context.Context, img []byte) ([]Segment, error)
	Close() error
}

type visionService struct {
	log    *logger.Logger
	client *vision.ImageAnnotatorClient
}

func NewVision(ctx context.Context, log *logger.Logger) (Vision, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	c, err := vision.NewImageAnnotatorClient(ctx, ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &visionService{log: log.With("service", "gcp.Vision"), client: c}, nil
}

func (s *visionService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *visionService) OCRImage(ctx context.Context, img []byte) ([]Segment, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if len(img) == 0 {
		return nil, nil
	}
	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: img},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
		}},
	}
	resp, err := callTransient(ctx, s.log, "vision.annotate", func(ctx context.Context) (*visionpb.BatchAnnotateImagesResponse, error) {
		return s.client.BatchAnnotateImages(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return nil, nil
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return nil, fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}
	return visionSegments(r0.FullTextAnnotation), nil
}

// visionSegments yields one segment per text block so that distinct chat
// bubbles in a screenshot stay separate.
func visionSegments(fta *visionpb.TextAnnotation) []Segment {
	if fta == nil || strings.TrimSpace(fta.Text) == "" {
		return nil
	}
	var out []Segment
	for i, pg := range fta.Pages {
		if pg == nil {
			continue
		}
		for _, b := range pg.Blocks {
			txt := blockText(b)
			if txt == "" {
				continue
			}
			out = append(out, Segment{
				Text:       txt,
				Page:       i + 1,
				Confidence: float64(b.Confidence),
				Kind:       "ocr_block",
			})
		}
	}
	if len(out) == 0 {
		out = append(out, Segment{Text: collapseWhitespace(fta.Text), Page: 1, Kind: "ocr_text"})
	}
	return out
}

func blockText(b *visionpb.Block) string {
	if b == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range b.Paragraphs {
		if p == nil {
			continue
		}
		for _, w := range p.Words {
			if w == nil {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteString(" ")
			}
			for _, sym := range w.Symbols {
				if sym != nil {
					sb.WriteString(sym.Text)
				}
			}
		}
	}
	return collapseWhitespace(sb.String())
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
