package simd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type vec struct {
	w    int
	mask bool
}

func (v vec) VectorWidth() int      { return v.w }
func (v vec) SupportsMasking() bool { return v.mask }

func TestPlanScenario(t *testing.T) {
	cascade := []vec{{w: 8}, {w: 4}, {w: 1, mask: true}}

	ph, err := Plan(cascade, 19, 4)
	require.NoError(t, err)
	require.NoError(t, Covers(ph, 19))

	require.Len(t, ph, 2)
	assert.Equal(t, Phase[vec]{Gen: vec{w: 8}, Unroll: 2, Repeat: 1, Offset: 0}, ph[0])
	assert.Equal(t, 16, ph[0].Elements())
	assert.Equal(t, 3, ph[1].Elements())
	assert.Equal(t, 16, ph[1].Offset)
}

func TestPlanMasked(t *testing.T) {
	cascade := []vec{{w: 8, mask: true}, {w: 1}}

	ph, err := Plan(cascade, 19, 2)
	require.NoError(t, err)
	require.NoError(t, Covers(ph, 19))

	require.Len(t, ph, 2)
	assert.Equal(t, Phase[vec]{Gen: cascade[0], Unroll: 2, Repeat: 1, Offset: 0}, ph[0])
	assert.Equal(t, Phase[vec]{Gen: cascade[0], Unroll: 1, Repeat: 1, Offset: 16, Masked: 3}, ph[1])
}

func TestPlanLoop(t *testing.T) {
	ph, err := Plan([]vec{{w: 8}, {w: 1}}, 1000, 4)
	require.NoError(t, err)
	require.NoError(t, Covers(ph, 1000))

	assert.Equal(t, 4, ph[0].Unroll)
	assert.Equal(t, 31, ph[0].Repeat)
	assert.True(t, ph[0].Loop())
	assert.Equal(t, 32, ph[0].Step())
}

func TestPlanSmall(t *testing.T) {
	ph, err := Plan([]vec{{w: 8}, {w: 4}, {w: 1}}, 3, 4)
	require.NoError(t, err)
	require.NoError(t, Covers(ph, 3))

	require.Len(t, ph, 1)
	assert.Equal(t, 1, ph[0].Gen.w)

	ph, err = Plan([]vec{{w: 8}}, 0, 4)
	require.NoError(t, err)
	assert.Empty(t, ph)
}

func TestPlanUntileable(t *testing.T) {
	_, err := Plan([]vec{{w: 8}, {w: 4}}, 19, 4)
	assert.Error(t, err)

	_, err = Plan([]vec{}, 19, 4)
	assert.Error(t, err)
}

func TestPlanTiles(t *testing.T) {
	cascades := [][]vec{
		{{w: 16}, {w: 8}, {w: 1}},
		{{w: 8, mask: true}, {w: 1}},
		{{w: 4}, {w: 1}},
		{{w: 16, mask: true}},
		{{w: 1}},
	}

	for _, c := range cascades {
		for n := 0; n < 300; n++ {
			for _, u := range []int{1, 2, 3, 4, 8} {
				ph, err := Plan(c, n, u)
				require.NoError(t, err, "n %d unroll %d", n, u)
				require.NoError(t, Covers(ph, n), "n %d unroll %d", n, u)

				for _, p := range ph {
					assert.LessOrEqual(t, p.Unroll, u)
				}
			}
		}
	}
}

func TestCovers(t *testing.T) {
	g := vec{w: 4}

	assert.Error(t, Covers([]Phase[vec]{{Gen: g, Unroll: 1, Repeat: 1, Offset: 4}}, 8))
	assert.Error(t, Covers([]Phase[vec]{{Gen: g, Unroll: 1, Repeat: 1}}, 8))
	assert.Error(t, Covers([]Phase[vec]{{Gen: g, Unroll: 1, Repeat: 1, Masked: 4}}, 4))
	assert.NoError(t, Covers([]Phase[vec]{{Gen: g, Unroll: 1, Repeat: 2}}, 8))
}
