// Package gen holds the code generators: one per instruction set level
// and register width, each described by a capability model, plus the
// selector choosing among them.
package gen

import (
	"github.com/ringgaard/sling-sub003/compiler/asm"
	"github.com/ringgaard/sling-sub003/compiler/cpu"
	"github.com/ringgaard/sling-sub003/compiler/express"
	"github.com/ringgaard/sling-sub003/compiler/regs"
	"github.com/ringgaard/sling-sub003/compiler/set"
	"github.com/ringgaard/sling-sub003/compiler/tp"
	"tlog.app/go/errors"
)

type (
	Kind int8

	// Model is the capability model of a generator:
	// which instruction shapes it may emit and which opcodes it implements.
	Model struct {
		MovRegReg bool
		MovRegImm bool
		MovRegMem bool
		MovMemReg bool

		OpRegReg    bool
		OpRegImm    bool
		OpRegMem    bool
		OpRegRegReg bool
		OpRegRegMem bool

		FMA     bool
		Masking bool

		Class asm.Class
		Ops   set.Bits[express.Opcode]
	}

	Generator interface {
		Name() string
		Kind() Kind
		Type() tp.Type
		VectorWidth() int
		Model() *Model
		SupportsMasking() bool

		// Available reports the features missing to run the generator.
		Available(f cpu.Features) error

		// Demand is the registers the body needs for unroll copies.
		Demand(e *express.Expression, unroll int, masked bool) (regs.Demand, error)

		fixed(e *express.Expression) []asm.Reg
		op(em *Emitter, code express.Opcode, dst asm.Reg, args []asm.Operand, vars []express.VarID) error
		load(em *Emitter, dst asm.Reg, src asm.Operand)
		store(em *Emitter, dst asm.Mem, src asm.Reg)
		constant(em *Emitter, v float64) (asm.Operand, error)
		bytes() int
		view(r asm.Reg) asm.Reg
	}

	base struct {
		kind  Kind
		typ   tp.Type
		width int
		need  cpu.Features
		model Model
	}
)

const (
	ScalarInt Kind = iota
	ScalarFltSSE
	ScalarFltAVX
	VectorFltSSE
	VectorFltAVX128
	VectorFltAVX256
	VectorFltAVX512
	VectorIntAVX128
	VectorIntAVX256
	VectorIntAVX512

	NumKinds
)

var kindNames = [NumKinds]string{
	ScalarInt:       "scalar-int",
	ScalarFltSSE:    "scalar-flt-sse",
	ScalarFltAVX:    "scalar-flt-avx",
	VectorFltSSE:    "vector-flt-sse",
	VectorFltAVX128: "vector-flt-avx128",
	VectorFltAVX256: "vector-flt-avx256",
	VectorFltAVX512: "vector-flt-avx512",
	VectorIntAVX128: "vector-int-avx128",
	VectorIntAVX256: "vector-int-avx256",
	VectorIntAVX512: "vector-int-avx512",
}

// Candidate order, widest first.
var (
	floatKinds = []Kind{VectorFltAVX512, VectorFltAVX256, VectorFltAVX128, VectorFltSSE, ScalarFltAVX, ScalarFltSSE}
	intKinds   = []Kind{VectorIntAVX512, VectorIntAVX256, VectorIntAVX128, ScalarInt}
)

func (k Kind) String() string {
	if k < 0 || k >= NumKinds {
		return "unknown"
	}

	return kindNames[k]
}

func (k Kind) IsFloat() bool {
	return k >= ScalarFltSSE && k <= VectorFltAVX512
}

// Class is the register class the kind keeps values in.
func (k Kind) Class() asm.Class {
	switch k {
	case ScalarInt:
		return asm.GP
	case VectorFltAVX256, VectorIntAVX256:
		return asm.YMM
	case VectorFltAVX512, VectorIntAVX512:
		return asm.ZMM
	}

	return asm.XMM
}

// Catalog lists generators for t, widest first. Models reflect what f
// offers, generators unavailable on f are still listed.
func Catalog(t tp.Type, f cpu.Features) (r []Generator) {
	kinds := intKinds
	if t.IsFloat() {
		kinds = floatKinds
	}

	for _, k := range kinds {
		g, err := New(k, t, f)
		if err != nil {
			continue
		}

		r = append(r, g)
	}

	return r
}

// New creates a generator of kind k for element type t.
func New(k Kind, t tp.Type, f cpu.Features) (Generator, error) {
	if !t.Valid() {
		return nil, errors.New("invalid element type: %v", t)
	}

	if k.IsFloat() != t.IsFloat() {
		return nil, errors.New("%v does not handle %v", k, t)
	}

	b := base{
		kind:  k,
		typ:   t,
		width: 1,
	}

	if c := k.Class(); c != asm.GP && k != ScalarFltSSE && k != ScalarFltAVX {
		b.width = c.Bytes() / t.Size()
	}

	b.need = required(k, t)
	b.model = model(k, t, f)

	switch {
	case k == ScalarInt:
		return &scalarInt{base: b}, nil
	case k.IsFloat():
		return &float{base: b}, nil
	default:
		return &intVec{base: b}, nil
	}
}

func required(k Kind, t tp.Type) cpu.Features {
	switch k {
	case ScalarFltSSE, VectorFltSSE:
		if t == tp.Float64 {
			return cpu.Set(cpu.SSE2)
		}

		return cpu.Set(cpu.SSE)
	case ScalarFltAVX, VectorFltAVX128, VectorFltAVX256, VectorIntAVX128:
		return cpu.Set(cpu.AVX)
	case VectorIntAVX256:
		return cpu.Set(cpu.AVX2)
	case VectorFltAVX512:
		return cpu.Set(cpu.AVX512F)
	case VectorIntAVX512:
		if t.Size() < 4 {
			return cpu.Set(cpu.AVX512F, cpu.AVX512BW)
		}

		return cpu.Set(cpu.AVX512F)
	}

	return cpu.None
}

func (g *base) Name() string { return g.kind.String() }

func (g *base) Kind() Kind { return g.kind }

func (g *base) Type() tp.Type { return g.typ }

func (g *base) VectorWidth() int { return g.width }

func (g *base) Model() *Model { return &g.model }

func (g *base) SupportsMasking() bool { return g.model.Masking }

func (g *base) class() asm.Class { return g.model.Class }

func (g *base) scalar() bool { return g.width == 1 }

func (g *base) vex() bool { return g.model.OpRegRegReg }

func (g *base) zmm() bool { return g.model.Class == asm.ZMM }

// bytes is the size of one vector in memory.
func (g *base) bytes() int { return g.width * g.typ.Size() }

func (g *base) Available(f cpu.Features) error {
	if miss := g.need &^ f; miss != cpu.None {
		return errors.New("missing %v", miss)
	}

	return nil
}

func (g *base) fixed(e *express.Expression) []asm.Reg { return nil }

func (g *base) view(r asm.Reg) asm.Reg { return r }

// Supports reports whether the model implements every opcode of e.
// It returns the first one missing otherwise.
func (m *Model) Supports(e *express.Expression) (express.Opcode, bool) {
	miss := e.OpsUsed().Without(m.Ops)
	if miss.Empty() {
		return 0, true
	}

	return miss.First(), false
}

func demand(g Generator, e *express.Expression, unroll int, masked bool) (d regs.Demand, err error) {
	p := regs.NewPool(regs.Unlimited)

	d.Fixed = g.fixed(e)

	for _, r := range d.Fixed {
		p.ReserveFixed(r)
	}

	em := &Emitter{
		Prog:      asm.New(),
		Pool:      p,
		Expr:      e,
		Constants: make([]float64, e.MaxID(express.Constant)),
		Inputs:    e.MaxID(express.Input),
		Outputs:   e.MaxID(express.Output),
		Ofs:       asm.NoReg,
	}

	for i := 0; i < em.Inputs+em.Outputs; i++ {
		em.Bases = append(em.Bases, asm.Q(asm.RDI))
	}

	lanes := 0
	if masked {
		lanes = 1
	}

	err = em.Body(g, unroll, lanes)
	if err != nil {
		return d, err
	}

	d.Temps = em.peak[valGP]
	d.Vectors = em.peak[valVec]
	d.Aux = em.peak[auxGP]
	d.AuxVectors = em.peak[auxVec]
	d.Masks = em.peak[maskK]

	return d, nil
}

// Fixed lists the registers g addresses by name when emitting e.
// They must be reserved before any body is emitted.
func Fixed(g Generator, e *express.Expression) []asm.Reg {
	return g.fixed(e)
}
