package docstore

import (
	"reflect"
	"time"
)

type serverTimestamp struct{}

// ServerTimestamp is a patch value meaning "the store's clock at commit".
var ServerTimestamp any = serverTimestamp{}

// IsServerTimestamp reports whether v is the ServerTimestamp sentinel.
func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// Union is the patch value produced by ArrayUnion.
type Union struct {
	Elems []any
}

// ArrayUnion appends each element to the existing array field unless an equal
// element is already present. A missing or non-array field is treated as empty.
func ArrayUnion(elems ...any) Union {
	out := make([]any, 0, len(elems))
	for _, e := range elems {
		out = append(out, Normalize(e))
	}
	return Union{Elems: out}
}

// ApplyPatch returns the document that results from writing patch on top of
// existing. Without merge the result holds only the patch fields.
// Sentinels are resolved against now; existing is not modified.
func ApplyPatch(existing map[string]any, patch Patch, merge bool, now time.Time) map[string]any {
	out := make(map[string]any, len(existing)+len(patch))
	if merge {
		for k, v := range existing {
			out[k] = Normalize(v)
		}
	}
	for k, v := range patch {
		switch pv := v.(type) {
		case serverTimestamp:
			out[k] = now
		case Union:
			var current []any
			if merge {
				current, _ = out[k].([]any)
			}
			out[k] = unionInto(current, pv.Elems)
		default:
			out[k] = Normalize(v)
		}
	}
	return out
}

func unionInto(current []any, elems []any) []any {
	out := make([]any, 0, len(current)+len(elems))
	out = append(out, current...)
	for _, e := range elems {
		if !containsEqual(out, e) {
			out = append(out, Normalize(e))
		}
	}
	return out
}

func containsEqual(list []any, v any) bool {
	for _, item := range list {
		if reflect.DeepEqual(item, v) {
			return true
		}
	}
	return false
}

// Normalize deep-copies a field value into the canonical in-store shape:
// maps become map[string]any and slices become []any.
func Normalize(v any) any {
	switch tv := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			out[k] = Normalize(e)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			out[k] = e
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = Normalize(e)
		}
		return out
	case []string:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = e
		}
		return out
	case []map[string]any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = Normalize(e)
		}
		return out
	default:
		return v
	}
}

// CopyData deep-copies a document body.
func CopyData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	return Normalize(data).(map[string]any)
}
