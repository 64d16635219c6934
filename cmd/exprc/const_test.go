package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConstants(t *testing.T) {
	r, err := parseConstants("1, 2.5,-3")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2.5, -3}, r)

	r, err = parseConstants("")
	require.NoError(t, err)
	assert.Empty(t, r)

	_, err = parseConstants("1,x")
	assert.Error(t, err)
}
