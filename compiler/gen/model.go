package gen

import (
	"github.com/ringgaard/sling-sub003/compiler/cpu"
	"github.com/ringgaard/sling-sub003/compiler/express"
	"github.com/ringgaard/sling-sub003/compiler/set"
	"github.com/ringgaard/sling-sub003/compiler/tp"
)

var (
	movs = Model{MovRegReg: true, MovRegMem: true, MovMemReg: true}

	logic = set.Of(express.Id, express.And, express.Or, express.Xor, express.AndNot, express.Not, express.Select)

	compares = set.Of(express.CmpEq, express.CmpNe, express.CmpLt, express.CmpLe, express.CmpGt, express.CmpGe)

	rounding = set.Of(express.Floor, express.Ceil, express.Round, express.Trunc)

	fma = set.Of(express.MulAdd132, express.MulAdd213, express.MulAdd231)

	floatArith = set.Of(express.Add, express.Sub, express.Mul, express.Div, express.Min, express.Max,
		express.Neg, express.Abs, express.Relu, express.Square, express.Sqrt, express.Reciprocal)
)

func model(k Kind, t tp.Type, f cpu.Features) (m Model) {
	m = movs
	m.Class = k.Class()

	switch k {
	case ScalarInt:
		m.MovRegImm = true
		m.OpRegReg = true
		m.OpRegImm = true
		m.OpRegMem = t.Size() >= 4

		m.Ops = logic.Copy()
		m.Ops.Merge(compares)
		m.Ops.SetAll(express.Add, express.Sub, express.Mul, express.Div, express.Min, express.Max,
			express.Neg, express.Abs, express.Relu, express.Square, express.Cond, express.Shl, express.Shr)
	case ScalarFltSSE, VectorFltSSE:
		m.OpRegReg = true
		m.OpRegMem = k == ScalarFltSSE

		m.Ops = logic.Copy()
		m.Ops.Merge(floatArith)
		m.Ops.Merge(compares)

		if f.Has(cpu.SSE41) {
			m.Ops.Merge(rounding)
			m.Ops.Set(express.Cond)
		}
	case ScalarFltAVX, VectorFltAVX128, VectorFltAVX256:
		m.OpRegRegReg = true
		m.OpRegRegMem = true
		m.FMA = f.Has(cpu.FMA3)
		m.Masking = k != ScalarFltAVX && f.Has(cpu.MaskMove)

		m.Ops = logic.Copy()
		m.Ops.Merge(floatArith)
		m.Ops.Merge(compares)
		m.Ops.Merge(rounding)
		m.Ops.Set(express.Cond)
	case VectorFltAVX512:
		m.OpRegRegReg = true
		m.OpRegRegMem = true
		m.FMA = true
		m.Masking = true

		m.Ops = logic.Copy()
		m.Ops.Merge(floatArith)
		m.Ops.Merge(rounding)
	case VectorIntAVX128, VectorIntAVX256, VectorIntAVX512:
		wide := k == VectorIntAVX512
		sz := t.Size()

		m.OpRegRegReg = true
		m.OpRegRegMem = true
		m.Masking = wide || sz >= 4 && f.Has(cpu.AVX2) && f.Has(cpu.MaskMove)

		m.Ops = logic.Copy()
		m.Ops.SetAll(express.Add, express.Sub, express.Neg)

		if sz == 2 || sz == 4 {
			m.Ops.SetAll(express.Mul, express.Square)
		}

		if sz < 8 || wide {
			m.Ops.SetAll(express.Min, express.Max, express.Abs, express.Relu)
		}

		if sz >= 2 {
			m.Ops.Set(express.Shl)
		}

		if sz == 2 || sz == 4 || wide && sz == 8 {
			m.Ops.Set(express.Shr)
		}

		if !wide {
			m.Ops.Merge(compares)
			m.Ops.Set(express.Cond)
		}
	}

	if m.FMA {
		m.Ops.Merge(fma)
	}

	return m
}

// Implements reports whether the model has code.
func (m *Model) Implements(code express.Opcode) bool {
	return m.Ops.IsSet(code)
}
