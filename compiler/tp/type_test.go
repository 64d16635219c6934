package tp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for _, x := range All {
		y, err := Parse(x.String())
		require.NoError(t, err)
		assert.Equal(t, x, y)
	}

	_, err := Parse("complex64")
	assert.Error(t, err)
}

func TestSize(t *testing.T) {
	assert.Equal(t, 1, Int8.Size())
	assert.Equal(t, 2, Int16.Size())
	assert.Equal(t, 4, Float32.Size())
	assert.Equal(t, 8, Float64.Size())
	assert.Equal(t, 64, Int64.Bits())

	assert.True(t, Float64.IsFloat())
	assert.False(t, Int32.IsFloat())
	assert.True(t, Int32.IsInt())
	assert.False(t, Invalid.Valid())
}
