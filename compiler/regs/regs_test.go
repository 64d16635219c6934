package regs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringgaard/sling-sub003/compiler/asm"
	"github.com/ringgaard/sling-sub003/compiler/cpu"
)

func TestBudget(t *testing.T) {
	b := BudgetFor(cpu.Haswell)
	assert.Equal(t, Budget{GP: 14, Vector: 16}, b)

	b = BudgetFor(cpu.All)
	assert.Equal(t, Budget{GP: 14, Vector: 32, Mask: 7}, b)
}

func TestAllocOrder(t *testing.T) {
	p := NewPool(BudgetFor(cpu.Haswell))

	assert.Equal(t, asm.Q(asm.R8), p.Alloc())
	assert.Equal(t, asm.Q(asm.R9), p.Alloc())
	assert.Equal(t, asm.Y(1), p.AllocVector(asm.YMM))

	seen := map[int8]bool{}

	for p.Free(GPFile) != 0 {
		r := p.Alloc()
		require.True(t, r.Valid())
		assert.NotEqual(t, int8(asm.RSP), r.N)
		assert.NotEqual(t, int8(asm.RBP), r.N)
		assert.False(t, seen[r.N])

		seen[r.N] = true
	}

	assert.False(t, p.Overflow())
	assert.False(t, p.Alloc().Valid())
	assert.True(t, p.Overflow())
}

func TestReserveOrder(t *testing.T) {
	p := NewPool(BudgetFor(cpu.Haswell))

	r, ok := p.Reserve(Demand{
		Fixed:   []asm.Reg{asm.Q(asm.RAX), asm.Q(asm.RDX), asm.X(0)},
		Temps:   2,
		Vectors: 3,
		Aux:     1,
	}, asm.XMM)
	require.True(t, ok)

	assert.Equal(t, []asm.Reg{asm.Q(asm.RAX), asm.Q(asm.RDX), asm.X(0)}, r.Fixed)
	assert.Equal(t, []asm.Reg{asm.Q(asm.R8), asm.Q(asm.R9)}, r.Temps)
	assert.Equal(t, []asm.Reg{asm.X(1), asm.X(2), asm.X(3)}, r.Vectors)
	assert.Equal(t, []asm.Reg{asm.Q(asm.R10)}, r.Aux)

	assert.Equal(t, 5, p.Used(GPFile))
	assert.Equal(t, 4, p.Used(VectorFile))
}

func TestOverflow(t *testing.T) {
	p := NewPool(BudgetFor(cpu.Haswell))

	_, ok := p.Reserve(Demand{Vectors: 16}, asm.YMM)
	require.True(t, ok)
	assert.False(t, p.Overflow())
	assert.Equal(t, 0, p.Free(VectorFile))

	_, ok = p.Reserve(Demand{Temps: 1}, asm.YMM)
	assert.True(t, ok, "gp file is independent")

	p = NewPool(BudgetFor(cpu.Haswell))

	r, ok := p.Reserve(Demand{Vectors: 17}, asm.YMM)
	assert.False(t, ok)
	assert.Len(t, r.Vectors, 16)
	assert.True(t, p.Overflow())

	r.Release(p)
	assert.Equal(t, 16, p.Free(VectorFile))

	_, ok = p.Reserve(Demand{Temps: 1, Vectors: 1}, asm.YMM)
	assert.False(t, ok, "overflow is sticky")
	assert.True(t, p.Overflow())

	p = NewPool(BudgetFor(cpu.Haswell))

	_, ok = p.Reserve(Demand{Masks: 1}, asm.YMM)
	assert.False(t, ok, "no opmask registers without avx512")
}

func TestDemandAdd(t *testing.T) {
	k := Demand{Fixed: []asm.Reg{asm.Q(asm.RDI)}, Temps: 3}
	g := Demand{Fixed: []asm.Reg{asm.Q(asm.RAX)}, Temps: 1, Vectors: 2, AuxVectors: 1}

	d := k.Add(g)
	assert.Equal(t, Demand{Fixed: []asm.Reg{asm.Q(asm.RDI), asm.Q(asm.RAX)}, Temps: 4, Vectors: 2, AuxVectors: 1}, d)
	assert.Len(t, k.Fixed, 1)

	p := NewPool(BudgetFor(cpu.Haswell))

	r, ok := p.Reserve(d, asm.YMM)
	require.True(t, ok)
	assert.Equal(t, d.Fixed, r.Fixed)
	assert.Equal(t, 6, p.Used(GPFile))
	assert.Equal(t, 3, p.Used(VectorFile))
}

func TestFixedConflict(t *testing.T) {
	p := NewPool(BudgetFor(cpu.Haswell))

	require.True(t, p.ReserveFixed(asm.Q(asm.RDI)))
	assert.False(t, p.ReserveFixed(asm.Q(asm.RDI)))
	assert.True(t, p.Overflow())

	p = NewPool(BudgetFor(cpu.Haswell))
	assert.False(t, p.ReserveFixed(asm.Q(asm.RSP)))
}

func TestFixedSkippedByAlloc(t *testing.T) {
	p := NewPool(Budget{GP: 2})

	require.True(t, p.ReserveFixed(asm.Q(asm.R8)))
	assert.Equal(t, asm.Q(asm.R9), p.Alloc())
	assert.False(t, p.Alloc().Valid())
}

func TestCheckpoint(t *testing.T) {
	p := NewPool(BudgetFor(cpu.All))

	base := p.Alloc()
	c := p.Checkpoint()

	r := p.ReserveVectors(asm.ZMM, 20)
	require.Len(t, r, 20)
	assert.Equal(t, 20, p.Used(VectorFile))

	p.Restore(c)

	assert.Equal(t, 0, p.Used(VectorFile))
	assert.Equal(t, 20, p.Peak(VectorFile))
	assert.Equal(t, 1, p.Used(GPFile))
	assert.NotEqual(t, base, p.Alloc())
}

func TestRelease(t *testing.T) {
	p := NewPool(Budget{Vector: 2})

	a := p.AllocVector(asm.XMM)
	b := p.AllocVector(asm.XMM)

	p.Release(a)
	p.Release(a)

	assert.Equal(t, a, p.AllocVector(asm.XMM))
	assert.False(t, p.AllocVector(asm.XMM).Valid())

	p.Release(b)
	assert.Equal(t, 1, p.Used(VectorFile))
}

func TestMasks(t *testing.T) {
	p := NewPool(BudgetFor(cpu.All))

	r, ok := p.Reserve(Demand{Masks: 2}, asm.ZMM)
	require.True(t, ok)
	assert.Equal(t, []asm.Reg{asm.Mask(1), asm.Mask(2)}, r.Masks)

	r.Release(p)
	assert.Equal(t, 0, p.Used(MaskFile))
}
