package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	f, err := Parse("sse, avx ,fma")
	require.NoError(t, err)

	assert.True(t, f.Has(SSE))
	assert.True(t, f.Has(AVX))
	assert.True(t, f.Has(FMA3))
	assert.False(t, f.Has(AVX2))

	assert.Equal(t, "sse,avx,fma3", f.String())

	f, err = Parse("none")
	require.NoError(t, err)
	assert.Equal(t, None, f)
	assert.Equal(t, "none", f.String())

	f, err = Parse("all")
	require.NoError(t, err)
	assert.Equal(t, All, f)

	_, err = Parse("sse,neon")
	assert.Error(t, err)
}

func TestWithout(t *testing.T) {
	f := Haswell.Without(FMA3, AVX2)

	assert.False(t, f.Has(FMA3))
	assert.False(t, f.Has(AVX2))
	assert.True(t, f.Has(AVX))

	assert.Equal(t, Haswell, f.With(FMA3, AVX2))
}

func TestRoundTrip(t *testing.T) {
	f, err := Parse(All.String())
	require.NoError(t, err)
	assert.Equal(t, All, f)

	assert.Equal(t, "unknown", Feature(0).String())
}
