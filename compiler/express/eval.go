package express

import (
	"math"
)

var allOnes = math.Float64frombits(^uint64(0))

// Eval interprets the expression over float64 scalars.
// Compares yield a value with all bits set or zero, the bitwise ops
// work on the IEEE bits, so masks behave as they do in vector registers.
// The result has one value per output id.
func (e *Expression) Eval(inputs, constants []float64) ([]float64, error) {
	val := make([]float64, len(e.vars))

	for _, v := range e.decl {
		x := &e.vars[v]

		var src []float64

		switch x.Kind {
		case Input:
			src = inputs
		case Constant:
			src = constants
		case Number:
			src = Numbers
		default:
			continue
		}

		if x.ID < 0 || x.ID >= len(src) {
			return nil, newContractError(v, Nil, "%s out of range (%d values)", e.VarName(v), len(src))
		}

		val[v] = src[x.ID]
	}

	for _, o := range e.seq {
		op := &e.ops[o]

		var a, b, c float64

		switch len(op.Args) {
		case 3:
			c = val[op.Args[2]]
			fallthrough
		case 2:
			b = val[op.Args[1]]
			fallthrough
		case 1:
			a = val[op.Args[0]]
		}

		r, err := eval(op.Code, a, b, c)
		if err != nil {
			return nil, err
		}

		val[op.Result] = r
	}

	out := make([]float64, e.MaxID(Output))

	for _, v := range e.decl {
		if x := &e.vars[v]; x.Kind == Output {
			out[x.ID] = val[v]
		}
	}

	return out, nil
}

func eval(code Opcode, a, b, c float64) (float64, error) {
	bits := func(x float64) uint64 { return math.Float64bits(x) }
	float := math.Float64frombits
	mask := func(ok bool) float64 {
		if ok {
			return allOnes
		}

		return 0
	}

	switch code {
	case Id:
		return a, nil
	case Add:
		return a + b, nil
	case Sub:
		return a - b, nil
	case Mul:
		return a * b, nil
	case Div:
		return a / b, nil
	case Min:
		return math.Min(a, b), nil
	case Max:
		return math.Max(a, b), nil
	case Neg:
		return -a, nil
	case Abs:
		return math.Abs(a), nil
	case Relu:
		return math.Max(a, 0), nil
	case Square:
		return a * a, nil
	case Sqrt:
		return math.Sqrt(a), nil
	case Reciprocal:
		return 1 / a, nil
	case MulAdd132:
		return a*c + b, nil
	case MulAdd213:
		return a*b + c, nil
	case MulAdd231:
		return b*c + a, nil
	case CmpEq:
		return mask(a == b), nil
	case CmpNe:
		return mask(a != b), nil
	case CmpLt:
		return mask(a < b), nil
	case CmpLe:
		return mask(a <= b), nil
	case CmpGt:
		return mask(a > b), nil
	case CmpGe:
		return mask(a >= b), nil
	case And:
		return float(bits(a) & bits(b)), nil
	case Or:
		return float(bits(a) | bits(b)), nil
	case Xor:
		return float(bits(a) ^ bits(b)), nil
	case AndNot:
		return float(^bits(a) & bits(b)), nil
	case Not:
		return float(^bits(a)), nil
	case Cond:
		if bits(a) != 0 {
			return b, nil
		}

		return c, nil
	case Select:
		return float(bits(a) & bits(b)), nil
	case Shl:
		return float64(int64(a) << uint(b)), nil
	case Shr:
		return float64(int64(a) >> uint(b)), nil
	case Floor:
		return math.Floor(a), nil
	case Ceil:
		return math.Ceil(a), nil
	case Round:
		return math.RoundToEven(a), nil
	case Trunc:
		return math.Trunc(a), nil
	}

	return 0, newContractError(Nil, Nil, "eval: unsupported opcode %v", code)
}
