package gen

import (
	"math"

	"tlog.app/go/errors"

	"github.com/ringgaard/sling-sub003/compiler/asm"
	"github.com/ringgaard/sling-sub003/compiler/express"
	"github.com/ringgaard/sling-sub003/compiler/regs"
)

// intVec generates AVX, AVX2 and AVX-512 packed integer code.
type intVec struct {
	base
}

var intVecOps = map[express.Opcode]string{
	express.Add: "vpadd",
	express.Sub: "vpsub",
	express.Mul: "vpmull",
	express.Min: "vpmins",
	express.Max: "vpmaxs",
}

func (g *intVec) Demand(e *express.Expression, unroll int, masked bool) (regs.Demand, error) {
	return demand(g, e, unroll, masked)
}

// sfx is the element size suffix.
func (g *intVec) sfx() string {
	switch g.typ.Size() {
	case 1:
		return "b"
	case 2:
		return "w"
	case 4:
		return "d"
	}

	return "q"
}

// logic names bitwise instructions, AVX-512 wants an element size.
func (g *intVec) logic(name string) string {
	if !g.zmm() {
		return "vp" + name
	}

	if g.typ.Size() == 8 {
		return "vp" + name + "q"
	}

	return "vp" + name + "d"
}

func (g *intVec) mov(aligned bool) string {
	n := "vmovdqu"
	if aligned {
		n = "vmovdqa"
	}

	if !g.zmm() {
		return n
	}

	if aligned {
		return n + itoa(max(32, g.typ.Bits()))
	}

	return n + itoa(g.typ.Bits())
}

func (g *intVec) load(em *Emitter, dst asm.Reg, src asm.Operand) {
	if r, ok := src.(asm.Reg); ok {
		if r != dst {
			em.Emit(g.mov(true), dst, r)
		}

		return
	}

	em.Emit(g.mov(false), dst, src)
}

func (g *intVec) store(em *Emitter, dst asm.Mem, src asm.Reg) {
	em.Emit(g.mov(false), dst, src)
}

func (g *intVec) constant(em *Emitter, v float64) (asm.Operand, error) {
	c, err := em.Prog.Broadcast(g.typ, v, g.width)
	if err != nil {
		return nil, err
	}

	c.Size = int8(g.bytes())

	return c, nil
}

func (g *intVec) pattern(em *Emitter, bits uint64) asm.Const {
	pat := make([]uint64, g.width)
	for i := range pat {
		pat[i] = bits
	}

	c := em.Prog.Pattern(g.typ, pat)
	c.Size = int8(g.bytes())

	return c
}

// binary emits dst = a op b, b may stay in memory.
func (g *intVec) binary(em *Emitter, name string, dst asm.Reg, a, b asm.Operand, extra ...asm.Operand) {
	ra, ok := a.(asm.Reg)
	if !ok {
		g.load(em, dst, a)
		ra = dst
	}

	em.Emit(name, append([]asm.Operand{dst, ra, b}, extra...)...)
}

func (g *intVec) op(em *Emitter, code express.Opcode, dst asm.Reg, args []asm.Operand, vars []express.VarID) error {
	if !g.model.Implements(code) {
		return errors.New("unsupported on %v %v", g.Name(), g.typ)
	}

	ones := uint64(math.MaxUint64) >> (64 - g.typ.Bits())

	switch code {
	case express.Id:
		g.load(em, dst, args[0])
	case express.Add, express.Sub, express.Mul, express.Min, express.Max:
		g.binary(em, intVecOps[code]+g.sfx(), dst, args[0], args[1])
	case express.Square:
		g.binary(em, intVecOps[express.Mul]+g.sfx(), dst, args[0], args[0])
	case express.Neg:
		zero := em.scratch()
		em.Emit(g.logic("xor"), zero, zero, zero)
		em.Emit("vpsub"+g.sfx(), dst, zero, args[0])
	case express.Abs:
		em.Emit("vpabs"+g.sfx(), dst, args[0])
	case express.Relu:
		g.binary(em, "vpmaxs"+g.sfx(), dst, args[0], g.pattern(em, 0))
	case express.And, express.Select:
		g.binary(em, g.logic("and"), dst, args[0], args[1])
	case express.Or:
		g.binary(em, g.logic("or"), dst, args[0], args[1])
	case express.Xor:
		g.binary(em, g.logic("xor"), dst, args[0], args[1])
	case express.AndNot:
		g.binary(em, g.logic("andn"), dst, args[0], args[1])
	case express.Not:
		g.binary(em, g.logic("xor"), dst, args[0], g.pattern(em, ones))
	case express.CmpEq:
		g.binary(em, "vpcmpeq"+g.sfx(), dst, args[0], args[1])
	case express.CmpGt:
		g.binary(em, "vpcmpgt"+g.sfx(), dst, args[0], args[1])
	case express.CmpLt:
		g.binary(em, "vpcmpgt"+g.sfx(), dst, args[1], args[0])
	case express.CmpNe, express.CmpLe, express.CmpGe:
		switch code {
		case express.CmpNe:
			g.binary(em, "vpcmpeq"+g.sfx(), dst, args[0], args[1])
		case express.CmpLe:
			g.binary(em, "vpcmpgt"+g.sfx(), dst, args[0], args[1])
		default:
			g.binary(em, "vpcmpgt"+g.sfx(), dst, args[1], args[0])
		}

		em.Emit(g.logic("xor"), dst, dst, g.pattern(em, ones))
	case express.Cond:
		em.Emit("vpblendvb", dst, em.reg(args[2]), args[1], em.reg(args[0]))
	case express.Shl, express.Shr:
		n, err := em.shiftCount(vars[1])
		if err != nil {
			return err
		}

		name := "vpsll" + g.sfx()
		if code == express.Shr {
			name = "vpsra" + g.sfx()
		}

		em.Emit(name, dst, em.reg(args[0]), asm.Imm(n))
	default:
		return errors.New("unsupported on %v", g.Name())
	}

	return nil
}
