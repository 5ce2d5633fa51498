package parser

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/platform/gcp"
)

func sanitizeUTF8(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, " ")
}

func collapseWhitespace(s string) string {
	s = strings.NewReplacer("\u00a0", " ", "\u202f", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// normalizeUnits trims content, drops empty units and stamps the origin
// file name on every location.
func normalizeUnits(in []evidence.ParsedUnit, fileName string) []evidence.ParsedUnit {
	out := make([]evidence.ParsedUnit, 0, len(in))
	for _, u := range in {
		u.Content = strings.TrimSpace(sanitizeUTF8(u.Content))
		if u.Content == "" {
			continue
		}
		u.Sender = strings.TrimSpace(u.Sender)
		if u.Location.File == "" {
			u.Location.File = fileName
		}
		out = append(out, u)
	}
	return out
}

func unitsFromSegments(segs []gcp.Segment, fileName, provider string) []evidence.ParsedUnit {
	out := make([]evidence.ParsedUnit, 0, len(segs))
	for _, s := range segs {
		u := evidence.ParsedUnit{
			Content: s.Text,
			Location: evidence.Location{
				File:     fileName,
				Page:     s.Page,
				StartSec: s.StartSec,
				EndSec:   s.EndSec,
			},
			Metadata: map[string]any{"kind": s.Kind, "provider": provider},
		}
		if s.SpeakerTag > 0 {
			u.Sender = speakerLabel(s.SpeakerTag)
		}
		if s.Confidence > 0 {
			u.Metadata["confidence"] = s.Confidence
		}
		out = append(out, u)
	}
	return normalizeUnits(out, fileName)
}

func speakerLabel(tag int) string {
	return "Speaker " + strconv.Itoa(tag)
}

// paragraphs splits text on blank lines, keeping 1-based line ranges.
func paragraphs(text, fileName string) []evidence.ParsedUnit {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var out []evidence.ParsedUnit
	var buf []string
	start := 0
	flush := func(end int) {
		if len(buf) == 0 {
			return
		}
		out = append(out, evidence.ParsedUnit{
			Content:  strings.Join(buf, "\n"),
			Location: evidence.Location{File: fileName, LineStart: start, LineEnd: end},
		})
		buf = buf[:0]
	}
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush(i)
			continue
		}
		if len(buf) == 0 {
			start = i + 1
		}
		buf = append(buf, strings.TrimRight(line, " \t"))
	}
	flush(len(lines))
	return normalizeUnits(out, fileName)
}
