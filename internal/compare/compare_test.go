package compare

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func ptr[T any](v T) *T { return &v }

func TestEqualNulls(t *testing.T) {
	assert.True(t, Equal(nil, nil))
	assert.True(t, Equal((*string)(nil), nil))
	assert.True(t, Equal((*float64)(nil), (*float64)(nil)))
	assert.False(t, Equal(nil, "x"))
	assert.False(t, Equal(ptr("x"), (*string)(nil)))
	assert.True(t, Equal([]int(nil), nil))
}

func TestEqualReflexive(t *testing.T) {
	now := time.Now()
	values := []any{
		"title", 3, 2.5, true, now, ptr(now), ptr("loc"), ptr(48.8566),
		[]int{15, 60}, datatypes.JSONSlice[int]{5}, map[string]any{"k": 1},
		math.Inf(1), math.Inf(-1), math.NaN(), ptr(math.NaN()), []float64{math.NaN(), 1},
	}
	for _, v := range values {
		assert.True(t, Equal(v, v), "%#v", v)
	}
}

func TestEqualTimestampsIgnoreSubSecond(t *testing.T) {
	base := time.Date(2026, 2, 23, 9, 0, 0, 0, time.UTC)

	assert.True(t, Equal(base, base.Add(999*time.Millisecond)))
	assert.False(t, Equal(base, base.Add(time.Second)))
	assert.True(t, Equal(base, base.In(time.FixedZone("CET", 3600))))
	assert.True(t, Equal(ptr(base), base.Add(10*time.Microsecond)))
}

func TestEqualNonFiniteFloats(t *testing.T) {
	assert.False(t, Equal(math.Inf(1), math.Inf(-1)))
	assert.False(t, Equal(math.NaN(), 0.0))
	assert.False(t, Equal(math.Inf(1), math.MaxFloat64))
}

func TestEqualFloatTolerance(t *testing.T) {
	assert.True(t, Equal(48.8566, 48.8566+0.9e-6))
	assert.False(t, Equal(48.8566, 48.8566+1.1e-6))
	assert.True(t, Equal(ptr(2.3522), 2.3522))
	assert.True(t, Equal(float32(1.5), 1.5))
}

func TestEqualListsAsMultisets(t *testing.T) {
	assert.True(t, Equal([]int{60, 15}, []int{15, 60}))
	assert.True(t, Equal(datatypes.JSONSlice[int]{15, 60}, []int{60, 15}))
	assert.False(t, Equal([]int{15, 15, 60}, []int{15, 60, 60}))
	assert.False(t, Equal([]int{15}, []int{15, 60}))
	assert.True(t, Equal([]int{}, []int{}))
}

func TestEqualFallsBackToValueEquality(t *testing.T) {
	assert.True(t, Equal("a", "a"))
	assert.False(t, Equal("a", "b"))
	assert.False(t, Equal(1, "1"))
	assert.True(t, Equal(ptr("https://x"), "https://x"))
}
