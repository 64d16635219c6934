package gen

import (
	"math"

	"tlog.app/go/errors"

	"github.com/ringgaard/sling-sub003/compiler/asm"
	"github.com/ringgaard/sling-sub003/compiler/express"
	"github.com/ringgaard/sling-sub003/compiler/regs"
)

// scalarInt generates general purpose register code, one element at a time.
// 8, 16 and 32 bit elements are sign extended into 32 bit registers.
type scalarInt struct {
	base
}

var (
	scalarOps = map[express.Opcode]string{
		express.Add: "add",
		express.Sub: "sub",
		express.Mul: "imul",
		express.And: "and",
		express.Or:  "or",
		express.Xor: "xor",
	}

	setcc = map[express.Opcode]string{
		express.CmpEq: "sete",
		express.CmpNe: "setne",
		express.CmpLt: "setl",
		express.CmpLe: "setle",
		express.CmpGt: "setg",
		express.CmpGe: "setge",
	}
)

func (g *scalarInt) Demand(e *express.Expression, unroll int, masked bool) (regs.Demand, error) {
	return demand(g, e, unroll, masked)
}

func (g *scalarInt) fixed(e *express.Expression) []asm.Reg {
	if e.OpsUsed().IsSet(express.Div) {
		return []asm.Reg{asm.Q(asm.RAX), asm.Q(asm.RDX)}
	}

	return nil
}

func (g *scalarInt) regSize() int {
	return max(4, g.typ.Size())
}

func (g *scalarInt) view(r asm.Reg) asm.Reg {
	return r.As(g.regSize())
}

func (g *scalarInt) constant(em *Emitter, v float64) (asm.Operand, error) {
	if v != math.Trunc(v) {
		return nil, errors.New("%v is not an integer", v)
	}

	return asm.Imm(int64(v)), nil
}

func (g *scalarInt) load(em *Emitter, dst asm.Reg, src asm.Operand) {
	switch x := src.(type) {
	case asm.Reg:
		if x.N != dst.N {
			em.Emit("mov", dst, x.As(int(dst.Size)))
		}
	case asm.Mem:
		if x.Size < 4 {
			em.Emit("movsx", dst, x)
			return
		}

		em.Emit("mov", dst, x)
	default:
		em.Emit("mov", dst, src)
	}
}

func (g *scalarInt) store(em *Emitter, dst asm.Mem, src asm.Reg) {
	em.Emit("mov", dst, src.As(g.typ.Size()))
}

func fitsInt32(x asm.Imm) bool {
	return x >= math.MinInt32 && x <= math.MaxInt32
}

// src returns x usable as the source of a two operand instruction.
func (g *scalarInt) src(em *Emitter, x asm.Operand, imm bool) asm.Operand {
	switch x := x.(type) {
	case asm.Reg:
		return x
	case asm.Imm:
		if imm && fitsInt32(x) {
			return x
		}
	case asm.Mem:
		if g.model.OpRegMem {
			return x
		}
	}

	return em.reg(x)
}

func (g *scalarInt) op(em *Emitter, code express.Opcode, dst asm.Reg, args []asm.Operand, vars []express.VarID) error {
	switch code {
	case express.Id:
		g.load(em, dst, args[0])
	case express.Add, express.Sub, express.Mul, express.And, express.Or, express.Xor, express.Select:
		name := scalarOps[code]
		if code == express.Select {
			name = "and"
		}

		b := g.src(em, args[1], true)

		g.load(em, dst, args[0])
		em.Emit(name, dst, b)
	case express.AndNot:
		b := g.src(em, args[1], true)

		g.load(em, dst, args[0])
		em.Emit("not", dst)
		em.Emit("and", dst, b)
	case express.Square:
		g.load(em, dst, args[0])
		em.Emit("imul", dst, dst)
	case express.Neg:
		g.load(em, dst, args[0])
		em.Emit("neg", dst)
	case express.Not:
		g.load(em, dst, args[0])
		em.Emit("not", dst)
	case express.Div:
		b := g.src(em, args[1], false)
		ax := asm.Q(asm.RAX).As(g.regSize())

		g.load(em, ax, args[0])

		if g.regSize() == 8 {
			em.Emit("cqo")
		} else {
			em.Emit("cdq")
		}

		em.Emit("idiv", b)
		em.Emit("mov", dst, ax)
	case express.Min, express.Max:
		b := g.src(em, args[1], false)

		cc := "cmovg"
		if code == express.Max {
			cc = "cmovl"
		}

		g.load(em, dst, args[0])
		em.Emit("cmp", dst, b)
		em.Emit(cc, dst, b)
	case express.Abs:
		aux := em.scratch()

		g.load(em, dst, args[0])
		em.Emit("mov", aux, dst)
		em.Emit("neg", aux)
		em.Emit("cmovns", dst, aux)
	case express.Relu:
		aux := em.scratch()

		g.load(em, dst, args[0])
		em.Emit("xor", aux, aux)
		em.Emit("test", dst, dst)
		em.Emit("cmovs", dst, aux)
	case express.CmpEq, express.CmpNe, express.CmpLt, express.CmpLe, express.CmpGt, express.CmpGe:
		a := em.reg(args[0])
		b := g.src(em, args[1], true)

		em.Emit("xor", dst, dst)
		em.Emit("cmp", a, b)
		em.Emit(setcc[code], dst.As(1))
		em.Emit("neg", dst)
	case express.Cond:
		m := em.reg(args[0])
		a := g.src(em, args[1], false)

		g.load(em, dst, args[2])
		em.Emit("test", m, m)
		em.Emit("cmovnz", dst, a)
	case express.Shl, express.Shr:
		n, err := em.shiftCount(vars[1])
		if err != nil {
			return err
		}

		name := "shl"
		if code == express.Shr {
			name = "sar"
		}

		g.load(em, dst, args[0])
		em.Emit(name, dst, asm.Imm(n))
	default:
		return errors.New("unsupported on %v", g.Name())
	}

	return nil
}
