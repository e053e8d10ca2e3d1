package floatutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaxSlice(t *testing.T) {
	max, indices := MaxSlice([]float64{1, 4, 2, 4})
	assert.Equal(t, 4.0, max)
	assert.Equal(t, []int{1, 3}, indices)

	max, indices = MaxSlice([]float64{3, 1})
	assert.Equal(t, 3.0, max)
	assert.Equal(t, []int{0}, indices)

	max, indices = MaxSlice([]float64{-2, -5})
	assert.Equal(t, -2.0, max)
	assert.Equal(t, []int{0}, indices)
}
