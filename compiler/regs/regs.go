// Package regs hands out machine registers to generators.
//
// A Pool has a fixed budget per register file. Reservations that do not
// fit mark the pool as overflowed, which is how trial allocation detects
// that a generator needs more registers than the target has.
package regs

import (
	"nikand.dev/go/heap"
	"tlog.app/go/tlog/tlwire"

	"github.com/ringgaard/sling-sub003/compiler/asm"
	"github.com/ringgaard/sling-sub003/compiler/cpu"
	"github.com/ringgaard/sling-sub003/compiler/set"
)

type (
	File int8

	Budget struct {
		GP     int
		Vector int
		Mask   int
	}

	// Demand is what a generator or kernel needs reserved.
	Demand struct {
		Fixed      []asm.Reg
		Temps      int
		Vectors    int
		Aux        int
		AuxVectors int
		Masks      int
	}

	Reservation struct {
		Fixed      []asm.Reg
		Temps      []asm.Reg
		Vectors    []asm.Reg
		Aux        []asm.Reg
		AuxVectors []asm.Reg
		Masks      []asm.Reg
	}

	Pool struct {
		budget Budget

		free [NumFiles]heap.Heap[int8]
		used [NumFiles]set.Bits[int8]
		peak [NumFiles]int

		overflow bool
	}

	Checkpoint struct {
		used     [NumFiles]set.Bits[int8]
		overflow bool
	}
)

const (
	GPFile File = iota
	VectorFile
	MaskFile

	NumFiles
)

// Allocation preference. rsp and rbp are never handed out,
// rax, rdx, rdi and xmm0 go last as they are wanted as fixed registers.
var (
	gpOrder = []int8{
		asm.R8, asm.R9, asm.R10, asm.R11, asm.R12, asm.R13, asm.R14, asm.R15,
		asm.RSI, asm.RBX, asm.RCX, asm.RDX, asm.RAX, asm.RDI,
	}

	rank [NumFiles][]int8
)

// Unlimited is a budget no expression exhausts. Registers beyond the
// real files get numbers that only make sense for counting.
var Unlimited = Budget{GP: 100, Vector: 100, Mask: 100}

func init() {
	r := make([]int8, 128)

	for i := range r {
		r[i] = int8(i)
	}

	for i, n := range gpOrder {
		r[n] = int8(i)
	}

	r[asm.RSP], r[asm.RBP] = 126, 127

	rank[GPFile] = r

	r = make([]int8, 128)
	for i := range r {
		r[i] = int8(i - 1)
	}

	r[0] = 127

	rank[VectorFile] = r

	r = make([]int8, 128)
	for i := range r {
		r[i] = int8(i)
	}

	rank[MaskFile] = r
}

// BudgetFor is the register budget of a target.
func BudgetFor(f cpu.Features) Budget {
	b := Budget{GP: len(gpOrder), Vector: 16}

	if f.Has(cpu.AVX512F) {
		b.Vector = 32
		b.Mask = 7
	}

	return b
}

func NewPool(b Budget) *Pool {
	p := &Pool{budget: b}

	p.reset()

	return p
}

func (p *Pool) reset() {
	for f := GPFile; f < NumFiles; f++ {
		f := f

		p.free[f] = heap.Heap[int8]{
			Less: func(d []int8, i, j int) bool {
				return rank[f][d[i]] < rank[f][d[j]]
			},
		}

		for _, n := range p.numbers(f) {
			if !p.used[f].IsSet(n) {
				p.free[f].Push(n)
			}
		}
	}
}

// numbers lists the register numbers of a file within the budget.
func (p *Pool) numbers(f File) (r []int8) {
	switch f {
	case GPFile:
		n := min(p.budget.GP, len(gpOrder))
		r = append(r, gpOrder[:n]...)

		for i := len(gpOrder); i < p.budget.GP; i++ {
			r = append(r, int8(i+2))
		}
	case VectorFile:
		for i := 0; i < p.budget.Vector; i++ {
			r = append(r, int8(i))
		}
	case MaskFile:
		for i := 0; i < p.budget.Mask; i++ {
			r = append(r, int8(i+1))
		}
	}

	return r
}

func FileOf(r asm.Reg) File {
	switch r.Class {
	case asm.GP:
		return GPFile
	case asm.K:
		return MaskFile
	}

	return VectorFile
}

func (p *Pool) Budget() Budget { return p.budget }

func (p *Pool) Overflow() bool { return p.overflow }

func (p *Pool) Used(f File) int { return p.used[f].Size() }

func (p *Pool) Peak(f File) int { return p.peak[f] }

func (p *Pool) Free(f File) int { return p.size(f) - p.Used(f) }

func (p *Pool) size(f File) int {
	switch f {
	case GPFile:
		return p.budget.GP
	case VectorFile:
		return p.budget.Vector
	case MaskFile:
		return p.budget.Mask
	}

	return 0
}

func (p *Pool) take(f File) (int8, bool) {
	for p.free[f].Len() != 0 {
		n := p.free[f].Pop()

		if p.used[f].IsSet(n) {
			continue
		}

		p.mark(f, n)

		return n, true
	}

	p.overflow = true

	return -1, false
}

func (p *Pool) mark(f File, n int8) {
	p.used[f].Set(n)

	if u := p.used[f].Size(); u > p.peak[f] {
		p.peak[f] = u
	}
}

// Alloc takes the next free general purpose register.
func (p *Pool) Alloc() asm.Reg {
	n, ok := p.take(GPFile)
	if !ok {
		return asm.NoReg
	}

	return asm.Q(int(n))
}

// AllocVector takes the next free vector register seen as class c.
func (p *Pool) AllocVector(c asm.Class) asm.Reg {
	n, ok := p.take(VectorFile)
	if !ok {
		return asm.NoReg
	}

	return asm.Reg{Class: c, N: n}
}

func (p *Pool) AllocMask() asm.Reg {
	n, ok := p.take(MaskFile)
	if !ok {
		return asm.NoReg
	}

	return asm.Mask(int(n))
}

// Release returns a register to its file.
func (p *Pool) Release(r asm.Reg) {
	if !r.Valid() {
		return
	}

	f := FileOf(r)
	if !p.used[f].IsSet(r.N) {
		return
	}

	p.used[f].Clear(r.N)
	p.free[f].Push(r.N)
}

// ReserveFixed takes a specific register.
// Asking for a busy or out of budget register is an overflow.
func (p *Pool) ReserveFixed(r asm.Reg) bool {
	f := FileOf(r)

	in := false
	for _, n := range p.numbers(f) {
		in = in || n == r.N
	}

	if !in || p.used[f].IsSet(r.N) {
		p.overflow = true
		return false
	}

	p.mark(f, r.N)

	return true
}

func (p *Pool) ReserveTemps(n int) []asm.Reg {
	return p.reserve(n, p.Alloc)
}

func (p *Pool) ReserveVectors(c asm.Class, n int) []asm.Reg {
	return p.reserve(n, func() asm.Reg { return p.AllocVector(c) })
}

func (p *Pool) ReserveAux(n int) []asm.Reg {
	return p.reserve(n, p.Alloc)
}

func (p *Pool) ReserveAuxVectors(c asm.Class, n int) []asm.Reg {
	return p.reserve(n, func() asm.Reg { return p.AllocVector(c) })
}

func (p *Pool) ReserveMasks(n int) []asm.Reg {
	return p.reserve(n, p.AllocMask)
}

func (p *Pool) reserve(n int, alloc func() asm.Reg) (r []asm.Reg) {
	for i := 0; i < n; i++ {
		x := alloc()
		if !x.Valid() {
			return r
		}

		r = append(r, x)
	}

	return r
}

// Reserve satisfies d in order: fixed registers, temps, vector temps,
// auxiliaries, auxiliary vectors, masks. Vector registers are seen as class c.
// It reports false if the pool overflowed, now or before.
func (p *Pool) Reserve(d Demand, c asm.Class) (r Reservation, ok bool) {
	for _, x := range d.Fixed {
		if p.ReserveFixed(x) {
			r.Fixed = append(r.Fixed, x)
		}
	}

	r.Temps = p.ReserveTemps(d.Temps)
	r.Vectors = p.ReserveVectors(c, d.Vectors)
	r.Aux = p.ReserveAux(d.Aux)
	r.AuxVectors = p.ReserveAuxVectors(c, d.AuxVectors)
	r.Masks = p.ReserveMasks(d.Masks)

	return r, !p.overflow
}

// Release gives back everything reserved.
func (r Reservation) Release(p *Pool) {
	for _, l := range [][]asm.Reg{r.Fixed, r.Temps, r.Vectors, r.Aux, r.AuxVectors, r.Masks} {
		for _, x := range l {
			p.Release(x)
		}
	}
}

func (p *Pool) Checkpoint() Checkpoint {
	var c Checkpoint

	for f := range p.used {
		c.used[f] = p.used[f].Copy()
	}

	c.overflow = p.overflow

	return c
}

// Restore returns the pool to the checkpoint state. Peaks are kept.
func (p *Pool) Restore(c Checkpoint) {
	for f := range p.used {
		p.used[f] = c.used[f].Copy()
	}

	p.overflow = c.overflow

	p.reset()
}

// Add sums two demands. Fixed registers are concatenated.
func (d Demand) Add(x Demand) Demand {
	d.Fixed = append(append([]asm.Reg{}, d.Fixed...), x.Fixed...)
	d.Temps += x.Temps
	d.Vectors += x.Vectors
	d.Aux += x.Aux
	d.AuxVectors += x.AuxVectors
	d.Masks += x.Masks

	return d
}

func (d Demand) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 6)
	b = e.AppendKeyInt(b, "fixed", len(d.Fixed))
	b = e.AppendKeyInt(b, "temps", d.Temps)
	b = e.AppendKeyInt(b, "vectors", d.Vectors)
	b = e.AppendKeyInt(b, "aux", d.Aux)
	b = e.AppendKeyInt(b, "aux_vectors", d.AuxVectors)
	b = e.AppendKeyInt(b, "masks", d.Masks)

	return b
}

func (f File) String() string {
	switch f {
	case GPFile:
		return "gp"
	case VectorFile:
		return "vector"
	case MaskFile:
		return "mask"
	}

	return "unknown"
}
