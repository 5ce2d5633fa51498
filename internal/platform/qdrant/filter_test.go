package qdrant

import (
	"errors"
	"testing"
	"time"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
)

func TestTranslateFilterMapSubset(t *testing.T) {
	filter := map[string]any{
		"kind": "chunk",
		"tags": map[string]any{
			"$in": []any{"threat", "custody"},
		},
	}

	got, err := translateFilterMap(filter)
	if err != nil {
		t.Fatalf("translateFilterMap: %v", err)
	}
	if len(got.Must) != 2 {
		t.Fatalf("must length: want=2 got=%d", len(got.Must))
	}

	kindCond := findConditionByKey(got.Must, "kind")
	if kindCond == nil {
		t.Fatalf("missing kind condition")
	}
	kindMatch, ok := kindCond["match"].(map[string]any)
	if !ok || kindMatch["value"] != "chunk" {
		t.Fatalf("kind match: got=%v", kindCond["match"])
	}

	tagCond := findConditionByKey(got.Must, "tags")
	if tagCond == nil {
		t.Fatalf("missing tags condition")
	}
	anyVals, _ := tagCond["match"].(map[string]any)["any"].([]any)
	if len(anyVals) != 2 || anyVals[0] != "threat" || anyVals[1] != "custody" {
		t.Fatalf("tags any values: got=%v", anyVals)
	}
}

func TestTranslateFilterMapRangeCollapses(t *testing.T) {
	got, err := translateFilterMap(map[string]any{
		"timestamp_unix": map[string]any{"$gte": 100, "$lt": 200.5},
	})
	if err != nil {
		t.Fatalf("translateFilterMap: %v", err)
	}
	if len(got.Must) != 1 {
		t.Fatalf("must length: want=1 got=%d", len(got.Must))
	}
	rng, ok := findConditionByKey(got.Must, "timestamp_unix")["range"].(map[string]any)
	if !ok {
		t.Fatalf("range: missing")
	}
	if rng["gte"] != float64(100) || rng["lt"] != 200.5 {
		t.Fatalf("range values: got=%v", rng)
	}
}

func TestTranslateFilterMapUnsupportedOperator(t *testing.T) {
	_, err := translateFilterMap(map[string]any{
		"sender": map[string]any{"$regex": "^A"},
	})
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opErr.Code != OperationErrorUnsupportedFilter {
		t.Fatalf("error code: want=%q got=%q", OperationErrorUnsupportedFilter, opErr.Code)
	}
}

func TestEntryFilterMap(t *testing.T) {
	from := time.Unix(1000, 0)
	m := EntryFilterMap(evidence.EntryFilter{
		Sender:        "Alice",
		From:          &from,
		Tags:          []string{"threat"},
		MinConfidence: 0.5,
	})
	got, err := translateFilterMap(m)
	if err != nil {
		t.Fatalf("translateFilterMap: %v", err)
	}
	if len(got.Must) != 4 {
		t.Fatalf("must length: want=4 got=%d", len(got.Must))
	}
	rng := findConditionByKey(got.Must, PayloadTimeUnix)["range"].(map[string]any)
	if rng["gte"] != float64(1000) {
		t.Fatalf("timestamp range: got=%v", rng)
	}
	if _, ok := rng["lte"]; ok {
		t.Fatalf("timestamp range: lte should be absent")
	}
}

func findConditionByKey(items []any, key string) map[string]any {
	for _, raw := range items {
		cond, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if condKey, _ := cond["key"].(string); condKey == key {
			return cond
		}
	}
	return nil
}
