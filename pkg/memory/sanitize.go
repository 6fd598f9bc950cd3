package memory

import (
	"fmt"
	"sort"

	"github.com/parley-ai/parley/pkg/models"
)

// Bounds applied to every memory write. Records are read back into every
// future pipeline run for the same business or user, so growth has to be
// capped here no matter how much raw data a stage tries to persist.
const (
	MaxArrayElements      = 10
	MaxNestedScalarFields = 5
)

// Sanitize returns a bounded copy of a memory snapshot: nil fields dropped,
// scalars passed through, arrays truncated to MaxArrayElements with elements
// reduced to scalar sub-fields or stringified, nested maps flattened to their
// scalar-valued top-level properties. Sanitize is idempotent.
func Sanitize(fields models.MemoryMap) models.MemoryMap {
	out := make(models.MemoryMap, len(fields))

	for key, value := range fields {
		if value == nil {
			continue
		}

		switch v := value.(type) {
		case []any:
			out[key] = sanitizeArray(v)
		case map[string]any:
			if flat := scalarFields(v, 0); len(flat) > 0 {
				out[key] = flat
			}
		case models.MemoryMap:
			if flat := scalarFields(v, 0); len(flat) > 0 {
				out[key] = flat
			}
		default:
			if isScalar(v) {
				out[key] = v
			} else {
				out[key] = fmt.Sprint(v)
			}
		}
	}

	return out
}

func sanitizeArray(values []any) []any {
	if len(values) > MaxArrayElements {
		values = values[:MaxArrayElements]
	}

	out := make([]any, 0, len(values))

	for _, element := range values {
		if element == nil {
			continue
		}

		switch e := element.(type) {
		case map[string]any:
			out = append(out, scalarFields(e, MaxNestedScalarFields))
		case models.MemoryMap:
			out = append(out, scalarFields(e, MaxNestedScalarFields))
		default:
			if isScalar(e) {
				out = append(out, e)
			} else {
				out = append(out, fmt.Sprint(e))
			}
		}
	}

	return out
}

// scalarFields reduces a map to its scalar-valued properties, at most limit
// of them (0 means unbounded). Keys are visited in sorted order so repeated
// sanitization picks the same subset.
func scalarFields[M ~map[string]any](in M, limit int) map[string]any {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	out := make(map[string]any)

	for _, k := range keys {
		if limit > 0 && len(out) >= limit {
			break
		}

		if v := in[k]; v != nil && isScalar(v) {
			out[k] = v
		}
	}

	return out
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}
