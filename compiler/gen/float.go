package gen

import (
	"math"
	"strconv"

	"tlog.app/go/errors"

	"github.com/ringgaard/sling-sub003/compiler/asm"
	"github.com/ringgaard/sling-sub003/compiler/express"
	"github.com/ringgaard/sling-sub003/compiler/regs"
	"github.com/ringgaard/sling-sub003/compiler/tp"
)

// float generates SSE, AVX and AVX-512 floating point code,
// scalar or packed.
type float struct {
	base
}

// Compare predicates of cmpps.
var cmpImm = map[express.Opcode]asm.Imm{
	express.CmpEq: 0,
	express.CmpLt: 1,
	express.CmpLe: 2,
	express.CmpNe: 4,
	express.CmpGe: 13,
	express.CmpGt: 14,
}

// Rounding modes of roundps, exceptions suppressed.
var roundImm = map[express.Opcode]asm.Imm{
	express.Round: 8,
	express.Floor: 9,
	express.Ceil:  10,
	express.Trunc: 11,
}

var floatOps = map[express.Opcode]string{
	express.Add: "add",
	express.Sub: "sub",
	express.Mul: "mul",
	express.Div: "div",
	express.Min: "min",
	express.Max: "max",
}

func floatSuffix(t tp.Type, scalar bool) string {
	switch {
	case scalar && t == tp.Float64:
		return "sd"
	case scalar:
		return "ss"
	case t == tp.Float64:
		return "pd"
	}

	return "ps"
}

func itoa(x int) string { return strconv.Itoa(x) }

func (g *float) Demand(e *express.Expression, unroll int, masked bool) (regs.Demand, error) {
	return demand(g, e, unroll, masked)
}

func (g *float) fixed(e *express.Expression) []asm.Reg {
	if !g.vex() && e.OpsUsed().IsSet(express.Cond) {
		return []asm.Reg{asm.X(0)}
	}

	return nil
}

// mn builds a mnemonic: VEX prefix, name and type suffix.
func (g *float) mn(name string) string {
	return g.prefix() + name + floatSuffix(g.typ, g.scalar())
}

// pmn is mn with the packed suffix whatever the width.
func (g *float) pmn(name string) string {
	return g.prefix() + name + floatSuffix(g.typ, false)
}

func (g *float) prefix() string {
	if g.vex() {
		return "v"
	}

	return ""
}

// logic returns the bitwise instruction: andps and friends,
// AVX-512F only has the integer forms.
func (g *float) logic(name string) string {
	if !g.zmm() {
		return g.pmn(name)
	}

	sfx := "d"
	if g.typ == tp.Float64 {
		sfx = "q"
	}

	switch name {
	case "andn":
		return "vpandn" + sfx
	case "xor":
		return "vpxor" + sfx
	case "or":
		return "vpor" + sfx
	}

	return "vpand" + sfx
}

func (g *float) constant(em *Emitter, v float64) (asm.Operand, error) {
	lanes := max(g.width, 16/g.typ.Size())

	c, err := em.Prog.Broadcast(g.typ, v, lanes)
	if err != nil {
		return nil, err
	}

	c.Size = int8(g.bytes())

	return c, nil
}

// pattern pools a full register of repeated element bits.
func (g *float) pattern(em *Emitter, bits uint64) asm.Const {
	lanes := max(g.width, 16/g.typ.Size())

	pat := make([]uint64, lanes)
	for i := range pat {
		pat[i] = bits
	}

	c := em.Prog.Pattern(g.typ, pat)
	c.Size = int8(max(g.bytes(), 16))

	return c
}

func (g *float) signBit() uint64 {
	if g.typ == tp.Float64 {
		return 1 << 63
	}

	return 1 << 31
}

func (g *float) ones() uint64 {
	if g.typ == tp.Float64 {
		return math.MaxUint64
	}

	return math.MaxUint32
}

func (g *float) load(em *Emitter, dst asm.Reg, src asm.Operand) {
	switch x := src.(type) {
	case asm.Reg:
		if x == dst {
			return
		}

		em.Emit(g.prefix()+"movaps", dst, x)
	case asm.Const:
		if g.scalar() {
			x.Size = int8(g.typ.Size())
			em.Emit(g.mn("mov"), dst, x)

			return
		}

		em.Emit(g.pmn("movu"), dst, x)
	default:
		if g.scalar() {
			em.Emit(g.mn("mov"), dst, src)
			return
		}

		em.Emit(g.pmn("movu"), dst, src)
	}
}

func (g *float) store(em *Emitter, dst asm.Mem, src asm.Reg) {
	if g.scalar() {
		em.Emit(g.mn("mov"), dst, src)
		return
	}

	em.Emit(g.pmn("movu"), dst, src)
}

// mop returns x as the memory or register last operand.
func (g *float) mop(em *Emitter, x asm.Operand) asm.Operand {
	if _, ok := x.(asm.Reg); ok {
		return x
	}

	if g.model.OpRegMem || g.model.OpRegRegMem {
		return x
	}

	return em.reg(x)
}

// wide returns x as an operand of a full register packed instruction.
// Scalar memory operands are loaded as the instruction would read past them.
func (g *float) wide(em *Emitter, x asm.Operand) asm.Operand {
	if c, ok := x.(asm.Const); ok && int(c.Size) >= 16 {
		return g.mop(em, x)
	}

	if g.scalar() {
		return em.reg(x)
	}

	return g.mop(em, x)
}

// binary emits dst = a op b. Extra operands, immediates, go last.
func (g *float) binary(em *Emitter, name string, dst asm.Reg, a, b asm.Operand, extra ...asm.Operand) {
	if g.vex() {
		ra, ok := a.(asm.Reg)
		if !ok {
			g.load(em, dst, a)
			ra = dst
		}

		em.Emit(name, append([]asm.Operand{dst, ra, b}, extra...)...)

		return
	}

	g.load(em, dst, a)
	em.Emit(name, append([]asm.Operand{dst, b}, extra...)...)
}

// unary emits dst = op a for instructions with no destructive source.
func (g *float) unary(em *Emitter, name string, dst asm.Reg, a asm.Operand, imm ...asm.Operand) {
	args := []asm.Operand{dst}

	if g.vex() && g.scalar() {
		args = append(args, dst)
	}

	args = append(args, g.mop(em, a))
	args = append(args, imm...)

	em.Emit(name, args...)
}

func (g *float) op(em *Emitter, code express.Opcode, dst asm.Reg, args []asm.Operand, vars []express.VarID) error {
	switch code {
	case express.Id:
		g.load(em, dst, args[0])
	case express.Add, express.Sub, express.Mul, express.Div, express.Min, express.Max:
		g.binary(em, g.mn(floatOps[code]), dst, args[0], g.mop(em, args[1]))
	case express.Square:
		g.binary(em, g.mn("mul"), dst, args[0], g.mop(em, args[0]))
	case express.Sqrt:
		g.unary(em, g.mn("sqrt"), dst, args[0])
	case express.Relu:
		zero, err := g.constant(em, 0)
		if err != nil {
			return err
		}

		g.binary(em, g.mn("max"), dst, args[0], g.mop(em, zero))
	case express.Reciprocal:
		one, err := g.constant(em, 1)
		if err != nil {
			return err
		}

		g.binary(em, g.mn("div"), dst, one, g.mop(em, args[0]))
	case express.Neg:
		g.binary(em, g.logic("xor"), dst, args[0], g.wide(em, g.pattern(em, g.signBit())))
	case express.Abs:
		g.binary(em, g.logic("and"), dst, args[0], g.wide(em, g.pattern(em, g.ones()&^g.signBit())))
	case express.Not:
		g.binary(em, g.logic("xor"), dst, args[0], g.wide(em, g.pattern(em, g.ones())))
	case express.And, express.Select:
		g.binary(em, g.logic("and"), dst, args[0], g.wide(em, args[1]))
	case express.Or:
		g.binary(em, g.logic("or"), dst, args[0], g.wide(em, args[1]))
	case express.Xor:
		g.binary(em, g.logic("xor"), dst, args[0], g.wide(em, args[1]))
	case express.AndNot:
		g.binary(em, g.logic("andn"), dst, args[0], g.wide(em, args[1]))
	case express.CmpEq, express.CmpNe, express.CmpLt, express.CmpLe, express.CmpGt, express.CmpGe:
		g.compare(em, code, dst, args[0], args[1])
	case express.Cond:
		g.cond(em, dst, args[0], args[1], args[2])
	case express.Floor, express.Ceil, express.Round, express.Trunc:
		name := g.mn("round")
		if g.zmm() {
			name = g.mn("rndscale")
		}

		g.unary(em, name, dst, args[0], roundImm[code])
	case express.MulAdd132, express.MulAdd213, express.MulAdd231:
		if !g.model.FMA {
			return errors.New("no fma on %v", g.Name())
		}

		form := code.String()[len("MulAdd"):]

		g.load(em, dst, args[0])
		em.Emit("vfmadd"+form+floatSuffix(g.typ, g.scalar()), dst, em.reg(args[1]), g.mop(em, args[2]))
	default:
		return errors.New("unsupported on %v", g.Name())
	}

	return nil
}

func (g *float) compare(em *Emitter, code express.Opcode, dst asm.Reg, a, b asm.Operand) {
	if !g.vex() {
		// No greater-than predicates before AVX.
		switch code {
		case express.CmpGt:
			a, b, code = b, a, express.CmpLt
		case express.CmpGe:
			a, b, code = b, a, express.CmpLe
		}
	}

	g.binary(em, g.mn("cmp"), dst, a, g.mop(em, b), cmpImm[code])
}

// cond emits dst = m ? a : b.
func (g *float) cond(em *Emitter, dst asm.Reg, m, a, b asm.Operand) {
	if g.vex() {
		rb := em.reg(b)
		em.Emit(g.pmn("blendv"), dst, rb, g.wide(em, a), em.reg(m))

		return
	}

	x0 := asm.X(0)

	g.load(em, dst, b)
	g.load(em, x0, m)
	em.Emit(g.pmn("blendv"), dst, g.wide(em, a), x0)
}
