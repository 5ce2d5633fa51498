package caseref

import (
	"strings"
)

// CaseExtractor derives the case id from an object key and its bucket.
type CaseExtractor func(key, bucket string) string

// EvidenceExtractor derives an externally issued evidence id, "" when the
// key carries none.
type EvidenceExtractor func(key string) string

// Resolver bundles the two extractors so alternative key layouts can be
// plugged in without touching the pipeline.
type Resolver struct {
	CaseID     CaseExtractor
	EvidenceID EvidenceExtractor
}

func Default() Resolver {
	return Resolver{CaseID: CaseIDFromKey, EvidenceID: EvidenceIDFromKey}
}

// CaseIDFromKey takes the segment after "cases/" when present, otherwise the
// first path segment of a nested key. A bare file name has no case.
func CaseIDFromKey(key, _ string) string {
	parts := segments(key)
	if v := after(parts, "cases"); v != "" {
		return v
	}
	if len(parts) < 2 {
		return ""
	}
	return parts[0]
}

// EvidenceIDFromKey takes the segment after "evidence/" when it is not the
// file name itself.
func EvidenceIDFromKey(key string) string {
	parts := segments(key)
	for i := 0; i < len(parts)-2; i++ {
		if parts[i] == "evidence" {
			return parts[i+1]
		}
	}
	return ""
}

func segments(key string) []string {
	raw := strings.Split(strings.Trim(strings.TrimSpace(key), "/"), "/")
	out := raw[:0]
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func after(parts []string, marker string) string {
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == marker {
			return parts[i+1]
		}
	}
	return ""
}
