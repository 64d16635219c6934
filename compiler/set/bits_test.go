package set

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBits(t *testing.T) {
	var s Bits[int]

	assert.True(t, s.Empty())
	assert.Equal(t, -1, s.First())

	s.SetAll(3, 70, 5, 3)

	assert.Equal(t, 3, s.Size())
	assert.True(t, s.IsSet(70))
	assert.False(t, s.IsSet(4))
	assert.False(t, s.IsSet(-1))
	assert.Equal(t, 3, s.First())
	assert.Equal(t, []int{3, 5, 70}, s.Keys())

	s.Clear(3)
	assert.Equal(t, []int{5, 70}, s.Keys())

	c := s.Copy()
	c.Set(1)
	assert.False(t, s.IsSet(1), "copy must not alias")

	assert.True(t, c.Contains(s))
	assert.False(t, s.Contains(c))

	assert.Equal(t, []int{1}, c.Without(s).Keys())

	s.Reset()
	assert.True(t, s.Empty())
}

func TestBitsMerge(t *testing.T) {
	a := Of[int8](1, 2)
	b := Of[int8](2, 100)

	a.Merge(b)
	assert.Equal(t, []int8{1, 2, 100}, a.Keys())

	a.Substract(Of[int8](1))
	assert.Equal(t, []int8{2, 100}, a.Keys())
}
