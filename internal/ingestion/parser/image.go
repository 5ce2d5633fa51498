package parser

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/platform/gcp"
)

// ImageParser OCRs screenshots and photos of messages.
type ImageParser struct {
	Vision gcp.Vision
}

func (ImageParser) Name() string { return "image" }
func (ImageParser) Kinds() []string {
	return []string{"png", "jpg", "jpeg", "webp", "gif", "bmp", "tif", "tiff"}
}

func (p ImageParser) Parse(ctx context.Context, path string, src Source) ([]evidence.ParsedUnit, error) {
	if p.Vision == nil {
		return nil, fmt.Errorf("image: vision OCR not configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("image: read: %w", err)
	}
	segs, err := p.Vision.OCRImage(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("image: ocr: %w", err)
	}
	units := unitsFromSegments(segs, src.FileName, "gcp_vision")
	if len(units) == 0 {
		return nil, ErrNoContent
	}
	return units, nil
}
