package memory

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/pkg/models"
)

func TestSanitize_DropsNilFields(t *testing.T) {
	out := Sanitize(models.MemoryMap{
		"name":  "Ana",
		"phone": nil,
	})

	assert.Equal(t, "Ana", out["name"])
	assert.NotContains(t, out, "phone")
}

func TestSanitize_ScalarsPassThrough(t *testing.T) {
	out := Sanitize(models.MemoryMap{
		"name":    "Ana",
		"visits":  7,
		"vip":     true,
		"balance": 12.5,
	})

	assert.Equal(t, "Ana", out["name"])
	assert.Equal(t, 7, out["visits"])
	assert.Equal(t, true, out["vip"])
	assert.Equal(t, 12.5, out["balance"])
}

func TestSanitize_ArraysTruncatedToCap(t *testing.T) {
	orders := make([]any, 0, 25)
	for i := range 25 {
		orders = append(orders, fmt.Sprintf("order-%d", i))
	}

	out := Sanitize(models.MemoryMap{"orders": orders})

	truncated, ok := out["orders"].([]any)
	require.True(t, ok)
	assert.Len(t, truncated, MaxArrayElements)
	assert.Equal(t, "order-0", truncated[0])
	assert.Equal(t, "order-9", truncated[9])
}

func TestSanitize_NestedObjectFlattenedToScalarProps(t *testing.T) {
	out := Sanitize(models.MemoryMap{
		"preferences": map[string]any{
			"seating": "window",
			"party":   2,
			"history": []any{"a", "b"},
			"contact": map[string]any{"email": "ana@example.com"},
		},
	})

	flat, ok := out["preferences"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "window", flat["seating"])
	assert.Equal(t, 2, flat["party"])
	assert.NotContains(t, flat, "history")
	assert.NotContains(t, flat, "contact")
}

func TestSanitize_NestedObjectWithNoScalarsDropped(t *testing.T) {
	out := Sanitize(models.MemoryMap{
		"raw": map[string]any{
			"payload": map[string]any{"deep": true},
		},
	})

	assert.NotContains(t, out, "raw")
}

// A stage persists 25 reservation objects, each with 8 fields some of which
// are nested. The stored record ends up with at most 10 elements of at most
// 5 scalar sub-fields each.
func TestSanitize_OversizedObjectArray(t *testing.T) {
	reservations := make([]any, 0, 25)
	for i := range 25 {
		reservations = append(reservations, map[string]any{
			"id":       fmt.Sprintf("res-%d", i),
			"date":     "2026-09-01",
			"time":     "19:00",
			"party":    4,
			"status":   "confirmed",
			"notes":    "anniversary",
			"contact":  map[string]any{"phone": "555-0100"},
			"payments": []any{"deposit"},
		})
	}

	out := Sanitize(models.MemoryMap{"reservations": reservations})

	elements, ok := out["reservations"].([]any)
	require.True(t, ok)
	require.Len(t, elements, MaxArrayElements)

	for _, element := range elements {
		fields, ok := element.(map[string]any)
		require.True(t, ok)
		assert.LessOrEqual(t, len(fields), MaxNestedScalarFields)

		for _, v := range fields {
			assert.True(t, isScalar(v), "sub-field %v should be scalar", v)
		}
	}
}

func TestSanitize_NonScalarArrayElementStringified(t *testing.T) {
	out := Sanitize(models.MemoryMap{
		"mixed": []any{"plain", []any{"nested"}},
	})

	elements, ok := out["mixed"].([]any)
	require.True(t, ok)
	require.Len(t, elements, 2)
	assert.Equal(t, "plain", elements[0])
	assert.IsType(t, "", elements[1])
}

func TestSanitize_Idempotent(t *testing.T) {
	in := models.MemoryMap{
		"name":  "Ana",
		"phone": nil,
		"preferences": map[string]any{
			"seating": "window",
			"contact": map[string]any{"email": "ana@example.com"},
		},
		"reservations": []any{
			map[string]any{"a": 1, "b": 2, "c": 3, "d": 4, "e": 5, "f": 6},
			nil,
			"walk-in",
		},
	}

	once := Sanitize(in)
	twice := Sanitize(once)

	assert.Equal(t, once, twice)
}
