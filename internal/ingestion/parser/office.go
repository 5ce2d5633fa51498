package parser

import (
	"context"
	"fmt"

	"github.com/lu4p/cat"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
)

// OfficeParser extracts text from word-processor documents and splits it
// into paragraphs.
type OfficeParser struct{}

func (OfficeParser) Name() string    { return "office" }
func (OfficeParser) Kinds() []string { return []string{"docx", "odt", "rtf"} }

func (OfficeParser) Parse(ctx context.Context, path string, src Source) ([]evidence.ParsedUnit, error) {
	text, err := cat.File(path)
	if err != nil {
		return nil, fmt.Errorf("office: extract: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	units := paragraphs(text, src.FileName)
	if len(units) == 0 {
		return nil, ErrNoContent
	}
	for i := range units {
		units[i].Metadata = map[string]any{"format": "office"}
	}
	return units, nil
}
