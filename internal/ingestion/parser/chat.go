package parser

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
)

var (
	// [1/2/24, 9:15 PM] Alex: text
	bracketedLine = regexp.MustCompile(`^\[(\d{1,2}[/.]\d{1,2}[/.]\d{2,4}),?\s+(\d{1,2}:\d{2}(?::\d{2})?(?:\s?[AaPp][Mm])?)\]\s+([^:]{1,80}):\s?(.*)$`)
	// 1/2/24, 21:15 - Alex: text
	dashedLine = regexp.MustCompile(`^(\d{1,2}[/.]\d{1,2}[/.]\d{2,4}),?\s+(\d{1,2}:\d{2}(?::\d{2})?(?:\s?[AaPp][Mm])?)\s+-\s+([^:]{1,80}):\s?(.*)$`)

	chatLineSpaces = strings.NewReplacer("\u202f", " ", "\u00a0", " ", "\u200e", "", "\u200f", "")

	chatDateLayouts = []string{"1/2/06", "1/2/2006", "2.1.06", "2.1.2006"}
	chatTimeLayouts = []string{"3:04 PM", "3:04:05 PM", "3:04PM", "3:04:05PM", "15:04", "15:04:05"}
)

// ChatParser reads plain-text chat exports (WhatsApp and SMS backup style).
// Lines that start a new message carry a date, time and sender; any other
// line continues the previous message. A file with no recognisable message
// lines is split into paragraphs without timestamps.
type ChatParser struct {
	Location *time.Location
}

func (ChatParser) Name() string    { return "chat" }
func (ChatParser) Kinds() []string { return []string{"txt", "text"} }

func (p ChatParser) Parse(ctx context.Context, path string, src Source) ([]evidence.ParsedUnit, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("chat: read: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fileName := src.FileName
	text := sanitizeUTF8(string(raw))

	units := p.parseMessages(text, fileName)
	if len(units) == 0 {
		units = paragraphs(text, fileName)
	}
	if len(units) == 0 {
		return nil, ErrNoContent
	}
	return units, nil
}

func (p ChatParser) parseMessages(text, fileName string) []evidence.ParsedUnit {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var out []evidence.ParsedUnit
	for i, rawLine := range lines {
		line := chatLineSpaces.Replace(rawLine)
		m := bracketedLine.FindStringSubmatch(line)
		if m == nil {
			m = dashedLine.FindStringSubmatch(line)
		}
		if m != nil {
			u := evidence.ParsedUnit{
				Content:  m[4],
				Sender:   strings.TrimSpace(m[3]),
				Location: evidence.Location{File: fileName, LineStart: i + 1, LineEnd: i + 1},
				Metadata: map[string]any{"format": "chat_export"},
			}
			if ts, ok := parseChatTime(m[1], m[2], loc); ok {
				u.Timestamp = &ts
			}
			out = append(out, u)
			continue
		}
		if len(out) == 0 || strings.TrimSpace(line) == "" {
			continue
		}
		last := &out[len(out)-1]
		last.Content += "\n" + strings.TrimRight(line, " \t")
		last.Location.LineEnd = i + 1
	}
	return normalizeUnits(out, fileName)
}

func parseChatTime(date, clock string, loc *time.Location) (time.Time, bool) {
	date = strings.ReplaceAll(date, ".", "/")
	clock = strings.ToUpper(strings.TrimSpace(clock))
	for _, dl := range chatDateLayouts {
		dl = strings.ReplaceAll(dl, ".", "/")
		for _, tl := range chatTimeLayouts {
			if t, err := time.ParseInLocation(dl+" "+tl, date+" "+clock, loc); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}
