package qdrant

import (
	"time"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
)

func entryPayload(e evidence.IndexEntry) map[string]any {
	kind := e.Kind
	if kind == "" {
		kind = evidence.EntryKindChunk
	}
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	p := map[string]any{
		PayloadChunkID:    e.ChunkID,
		PayloadRecordID:   e.RecordID,
		PayloadCaseID:     e.CaseID,
		PayloadKind:       kind,
		PayloadContent:    e.Content,
		PayloadTags:       tags,
		PayloadConfidence: e.Confidence,
		PayloadFallback:   e.IsFallbackEmbedding,
		PayloadSource:     e.Location.File,
	}
	if e.Sender != "" {
		p[PayloadSender] = e.Sender
	}
	if e.Timestamp != nil {
		p[PayloadTimestamp] = e.Timestamp.UTC().Format(time.RFC3339)
		p[PayloadTimeUnix] = float64(e.Timestamp.Unix())
	}
	if e.Location.LineStart > 0 {
		p[PayloadLineStart] = e.Location.LineStart
		p[PayloadLineEnd] = e.Location.LineEnd
	}
	if e.Location.Page > 0 {
		p[PayloadPage] = e.Location.Page
	}
	if e.Location.StartSec != nil {
		p[PayloadStartSec] = *e.Location.StartSec
	}
	if e.Location.EndSec != nil {
		p[PayloadEndSec] = *e.Location.EndSec
	}
	return p
}

func payloadEntry(p map[string]any) evidence.IndexEntry {
	e := evidence.IndexEntry{
		ChunkID:             str(p[PayloadChunkID]),
		RecordID:            str(p[PayloadRecordID]),
		CaseID:              str(p[PayloadCaseID]),
		Kind:                str(p[PayloadKind]),
		Content:             str(p[PayloadContent]),
		Sender:              str(p[PayloadSender]),
		Confidence:          num(p[PayloadConfidence]),
		IsFallbackEmbedding: p[PayloadFallback] == true,
		Location: evidence.Location{
			File:      str(p[PayloadSource]),
			LineStart: int(num(p[PayloadLineStart])),
			LineEnd:   int(num(p[PayloadLineEnd])),
			Page:      int(num(p[PayloadPage])),
		},
	}
	if raw, ok := p[PayloadTags].([]any); ok {
		for _, t := range raw {
			if s := str(t); s != "" {
				e.Tags = append(e.Tags, s)
			}
		}
	}
	if ts := str(p[PayloadTimestamp]); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			e.Timestamp = &t
		}
	}
	if v, ok := p[PayloadStartSec].(float64); ok {
		e.Location.StartSec = &v
	}
	if v, ok := p[PayloadEndSec].(float64); ok {
		e.Location.EndSec = &v
	}
	return e
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	default:
		return 0
	}
}
