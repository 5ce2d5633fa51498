package qdrant

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
)

const (
	filterOpAnd = "$and"
	filterOpOr  = "$or"
	filterOpNot = "$not"
	filterOpIn  = "$in"
	filterOpEq  = "$eq"
	filterOpNe  = "$ne"
	filterOpGt  = "$gt"
	filterOpGte = "$gte"
	filterOpLt  = "$lt"
	filterOpLte = "$lte"
)

// Payload keys written for every entry.
const (
	PayloadChunkID    = "_ev_chunk_id"
	PayloadRecordID   = "record_id"
	PayloadCaseID     = "case_id"
	PayloadKind       = "kind"
	PayloadContent    = "content"
	PayloadSender     = "sender"
	PayloadTimestamp  = "timestamp"
	PayloadTimeUnix   = "timestamp_unix"
	PayloadTags       = "tags"
	PayloadConfidence = "confidence"
	PayloadSource     = "source_file"
	PayloadLineStart  = "line_start"
	PayloadLineEnd    = "line_end"
	PayloadPage       = "page"
	PayloadStartSec   = "start_sec"
	PayloadEndSec     = "end_sec"
	PayloadFallback   = "is_fallback_embedding"
)

type translatedFilter struct {
	Must    []any
	Should  []any
	MustNot []any
}

func (f translatedFilter) asMap() map[string]any {
	out := map[string]any{}
	if len(f.Must) > 0 {
		out["must"] = f.Must
	}
	if len(f.Should) > 0 {
		out["should"] = f.Should
	}
	if len(f.MustNot) > 0 {
		out["must_not"] = f.MustNot
	}
	return out
}

func (f *translatedFilter) merge(src translatedFilter) {
	f.Must = append(f.Must, src.Must...)
	f.Should = append(f.Should, src.Should...)
	f.MustNot = append(f.MustNot, src.MustNot...)
}

func filterErr(code OperationErrorCode, format string, args ...any) error {
	return opErr("filter_translate", code, fmt.Sprintf(format, args...), nil)
}

// EntryFilterMap expresses an EntryFilter in the operator map understood by
// translateFilterMap.
func EntryFilterMap(f evidence.EntryFilter) map[string]any {
	out := map[string]any{}
	if f.RecordID != "" {
		out[PayloadRecordID] = f.RecordID
	}
	if f.Kind != "" {
		out[PayloadKind] = f.Kind
	}
	if f.Sender != "" {
		out[PayloadSender] = f.Sender
	}
	if len(f.Tags) > 0 {
		out[PayloadTags] = map[string]any{filterOpIn: f.Tags}
	}
	if f.From != nil || f.To != nil {
		rng := map[string]any{}
		if f.From != nil {
			rng[filterOpGte] = float64(f.From.Unix())
		}
		if f.To != nil {
			rng[filterOpLte] = float64(f.To.Unix())
		}
		out[PayloadTimeUnix] = rng
	}
	if f.MinConfidence > 0 {
		out[PayloadConfidence] = map[string]any{filterOpGte: f.MinConfidence}
	}
	if f.FallbackOnly {
		out[PayloadFallback] = true
	}
	return out
}

func translateFilterMap(filter map[string]any) (translatedFilter, error) {
	out := translatedFilter{}
	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := filter[key]
		k := strings.TrimSpace(key)
		if k == "" {
			continue
		}
		if !strings.HasPrefix(k, "$") {
			part, err := translateFieldFilter(k, value)
			if err != nil {
				return translatedFilter{}, err
			}
			out.merge(part)
			continue
		}

		switch op := strings.ToLower(k); op {
		case filterOpAnd, filterOpOr:
			items, err := toObjectSlice(value)
			if err != nil {
				return translatedFilter{}, opErr("filter_translate", OperationErrorValidation,
					fmt.Sprintf("operator %s expects array of objects", op), err)
			}
			for _, item := range items {
				sub, err := translateFilterMap(item)
				if err != nil {
					return translatedFilter{}, err
				}
				if op == filterOpAnd {
					out.Must = append(out.Must, sub.asMap())
				} else {
					out.Should = append(out.Should, sub.asMap())
				}
			}
		case filterOpNot:
			item, ok := value.(map[string]any)
			if !ok {
				return translatedFilter{}, filterErr(OperationErrorValidation, "operator %s expects an object", filterOpNot)
			}
			sub, err := translateFilterMap(item)
			if err != nil {
				return translatedFilter{}, err
			}
			out.MustNot = append(out.MustNot, sub.asMap())
		default:
			return translatedFilter{}, filterErr(OperationErrorUnsupportedFilter, "unsupported top-level filter operator %q", k)
		}
	}
	return out, nil
}

func translateFieldFilter(field string, value any) (translatedFilter, error) {
	out := translatedFilter{}

	ops, isOpMap := value.(map[string]any)
	if !isOpMap {
		scalar, ok := toScalarValue(value)
		if !ok {
			return translatedFilter{}, filterErr(OperationErrorValidation, "field %q expects scalar value or operator object", field)
		}
		out.Must = append(out.Must, matchCondition(field, scalar))
		return out, nil
	}
	if len(ops) == 0 {
		return translatedFilter{}, filterErr(OperationErrorValidation, "field %q has empty operator map", field)
	}

	names := make([]string, 0, len(ops))
	for op := range ops {
		names = append(names, op)
	}
	sort.Strings(names)

	// All range operators on one field collapse into a single range condition.
	rng := map[string]any{}
	for _, name := range names {
		opVal := ops[name]
		switch op := strings.ToLower(strings.TrimSpace(name)); op {
		case filterOpEq, filterOpNe:
			scalar, ok := toScalarValue(opVal)
			if !ok {
				return translatedFilter{}, filterErr(OperationErrorValidation, "operator %s for field %q expects scalar value", op, field)
			}
			if op == filterOpEq {
				out.Must = append(out.Must, matchCondition(field, scalar))
			} else {
				out.MustNot = append(out.MustNot, matchCondition(field, scalar))
			}
		case filterOpIn:
			values, err := toScalarSlice(opVal)
			if err != nil {
				return translatedFilter{}, opErr("filter_translate", OperationErrorValidation,
					fmt.Sprintf("operator %s for field %q expects scalar array", op, field), err)
			}
			if len(values) == 0 {
				return translatedFilter{}, filterErr(OperationErrorValidation, "operator %s for field %q cannot be empty", op, field)
			}
			out.Must = append(out.Must, map[string]any{
				"key":   field,
				"match": map[string]any{"any": values},
			})
		case filterOpGt, filterOpGte, filterOpLt, filterOpLte:
			num, ok := toNumber(opVal)
			if !ok {
				return translatedFilter{}, filterErr(OperationErrorValidation, "operator %s for field %q expects a number", op, field)
			}
			rng[strings.TrimPrefix(op, "$")] = num
		default:
			return translatedFilter{}, filterErr(OperationErrorUnsupportedFilter, "unsupported filter operator %q for field %q", name, field)
		}
	}
	if len(rng) > 0 {
		out.Must = append(out.Must, map[string]any{"key": field, "range": rng})
	}
	return out, nil
}

func matchCondition(key string, value any) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"value": value},
	}
}

func toObjectSlice(value any) ([]map[string]any, error) {
	rawSlice, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("expected []any, got %T", value)
	}
	out := make([]map[string]any, 0, len(rawSlice))
	for _, item := range rawSlice {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected map[string]any in array, got %T", item)
		}
		out = append(out, obj)
	}
	return out, nil
}

func toScalarSlice(value any) ([]any, error) {
	switch typed := value.(type) {
	case []any:
		out := make([]any, 0, len(typed))
		for _, v := range typed {
			scalar, ok := toScalarValue(v)
			if !ok {
				return nil, fmt.Errorf("expected scalar, got %T", v)
			}
			out = append(out, scalar)
		}
		return out, nil
	case []string:
		out := make([]any, 0, len(typed))
		for _, v := range typed {
			out = append(out, v)
		}
		return out, nil
	case []int:
		out := make([]any, 0, len(typed))
		for _, v := range typed {
			out = append(out, v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected scalar array, got %T", value)
	}
}

func toScalarValue(value any) (any, bool) {
	switch typed := value.(type) {
	case string, bool, int, int64, uint, uint64, float64:
		return typed, true
	case int32:
		return int(typed), true
	case float32:
		return float64(typed), true
	case json.Number:
		if i, err := typed.Int64(); err == nil {
			return i, true
		}
		if f, err := typed.Float64(); err == nil {
			return f, true
		}
		return nil, false
	default:
		return nil, false
	}
}

func toNumber(value any) (float64, bool) {
	switch typed := value.(type) {
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case float32:
		return float64(typed), true
	case float64:
		return typed, true
	case json.Number:
		f, err := typed.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
