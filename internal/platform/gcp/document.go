package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/yungbote/evidence-backend/internal/platform/ctxutil"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

// Document runs Document AI OCR over scanned PDFs whose text layer is
// empty.
type Document interface {
	OCRPDF(ctx context.Context, data []byte) ([]Segment, error)
	Close() error
}

type DocumentConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
}

func (c DocumentConfig) processorName() string {
	base := fmt.Sprintf("projects/%s/locations/%s/processors/%s", c.ProjectID, c.Location, c.ProcessorID)
	if strings.TrimSpace(c.ProcessorVersion) != "" {
		return base + "/processorVersions/" + c.ProcessorVersion
	}
	return base
}

type documentService struct {
	log    *logger.Logger
	cfg    DocumentConfig
	client *documentai.DocumentProcessorClient
}

func NewDocument(ctx context.Context, log *logger.Logger, cfg DocumentConfig) (Document, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.ProjectID == "" || cfg.ProcessorID == "" {
		return nil, fmt.Errorf("documentai: project and processor id required")
	}
	if cfg.Location == "" {
		cfg.Location = "us"
	}
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)
	opts := append([]option.ClientOption{option.WithEndpoint(endpoint)}, ClientOptionsFromEnv()...)
	c, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}
	slog := log.With("service", "gcp.Document")
	slog.Info("Document AI initialized", "endpoint", endpoint)
	return &documentService{log: slog, cfg: cfg, client: c}, nil
}

func (s *documentService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *documentService) OCRPDF(ctx context.Context, data []byte) ([]Segment, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	if len(data) == 0 {
		return nil, nil
	}
	req := &documentaipb.ProcessRequest{
		Name: s.cfg.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{Content: data, MimeType: "application/pdf"},
		},
	}
	resp, err := callTransient(ctx, s.log, "documentai.process", func(ctx context.Context) (*documentaipb.ProcessResponse, error) {
		return s.client.ProcessDocument(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil {
		return nil, nil
	}
	return documentSegments(resp.Document), nil
}

// documentSegments yields one segment per page; a processor that returns
// only doc.Text still produces a single unpaged segment.
func documentSegments(doc *documentaipb.Document) []Segment {
	if doc == nil {
		return nil
	}
	var out []Segment
	for _, p := range doc.Pages {
		if p == nil {
			continue
		}
		var pageText strings.Builder
		for _, para := range p.Paragraphs {
			if para == nil || para.Layout == nil {
				continue
			}
			t := strings.TrimSpace(textFromAnchor(doc.Text, para.Layout.TextAnchor))
			if t == "" {
				continue
			}
			pageText.WriteString(t)
			pageText.WriteString("\n")
		}
		if pt := strings.TrimSpace(pageText.String()); pt != "" {
			out = append(out, Segment{Text: pt, Page: int(p.PageNumber), Kind: "docai_page_text"})
		}
	}
	if len(out) == 0 {
		if t := strings.TrimSpace(doc.Text); t != "" {
			out = append(out, Segment{Text: t, Kind: "docai_primary_text"})
		}
	}
	return out
}

func textFromAnchor(full string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil || full == "" {
		return ""
	}
	var b strings.Builder
	for _, seg := range anchor.TextSegments {
		if seg == nil {
			continue
		}
		start, end := int(seg.StartIndex), int(seg.EndIndex)
		if start < 0 {
			start = 0
		}
		if end > len(full) {
			end = len(full)
		}
		if start >= end {
			continue
		}
		b.WriteString(full[start:end])
	}
	return b.String()
}
