package loadshape

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZipfianPickerStaysInRange(t *testing.T) {
	p := NewZipfian(10, 42)
	for i := 0; i < 1000; i++ {
		v := p.Next()
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 10)
	}
}

func TestUniformPickerStaysInRange(t *testing.T) {
	p := NewUniform(5, 7)
	seen := make(map[int]bool)
	for i := 0; i < 1000; i++ {
		v := p.Next()
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 5)
		seen[v] = true
	}
	// with 1000 draws over 5 buckets we expect to have hit every bucket at least once.
	assert.Len(t, seen, 5)
}
