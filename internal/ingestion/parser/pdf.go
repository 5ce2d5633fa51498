package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dslipak/pdf"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/platform/gcp"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

const pdfPageTimeout = 10 * time.Second

// PDFParser yields one unit per page with text. When the text layer is
// missing or unreadable and Document AI is configured, the page images are
// OCRed instead.
type PDFParser struct {
	OCR gcp.Document
	Log *logger.Logger
}

func (PDFParser) Name() string    { return "pdf" }
func (PDFParser) Kinds() []string { return []string{"pdf"} }

func (p PDFParser) Parse(ctx context.Context, path string, src Source) ([]evidence.ParsedUnit, error) {
	units, nativeErr := p.native(path, src.FileName)
	if len(units) > 0 {
		return units, nil
	}
	if p.OCR == nil {
		if nativeErr != nil {
			return nil, nativeErr
		}
		return nil, ErrNoContent
	}
	if p.Log != nil {
		p.Log.Info("pdf has no text layer, running OCR", "file", src.FileName, "native_error", nativeErr)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pdf: read: %w", err)
	}
	segs, err := p.OCR.OCRPDF(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("pdf: ocr: %w", err)
	}
	units = unitsFromSegments(segs, src.FileName, "gcp_documentai")
	if len(units) == 0 {
		return nil, ErrNoContent
	}
	return units, nil
}

func (p PDFParser) native(path, fileName string) ([]evidence.ParsedUnit, error) {
	r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pdf: open: %w", err)
	}
	var out []evidence.ParsedUnit
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := pageText(page)
		if err != nil {
			if p.Log != nil {
				p.Log.Warn("pdf page extraction failed", "file", fileName, "page", i, "error", err)
			}
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		out = append(out, evidence.ParsedUnit{
			Content:  text,
			Location: evidence.Location{File: fileName, Page: i},
			Metadata: map[string]any{"format": "pdf_text"},
		})
	}
	return normalizeUnits(out, fileName), nil
}

// pageText bounds GetPlainText, which can spin on malformed content streams.
func pageText(page pdf.Page) (text string, err error) {
	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("pdf: page panic: %v", r)}
			}
		}()
		t, err := page.GetPlainText(nil)
		ch <- result{text: t, err: err}
	}()
	select {
	case r := <-ch:
		return r.text, r.err
	case <-time.After(pdfPageTimeout):
		return "", errors.New("pdf: page extraction timed out")
	}
}
