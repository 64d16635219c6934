package express

import "math"

type Opcode int8

const (
	Id Opcode = iota
	Add
	Sub
	Mul
	Div
	Min
	Max
	Neg
	Abs
	Relu
	Square
	Sqrt
	Reciprocal
	MulAdd132
	MulAdd213
	MulAdd231
	CmpEq
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
	And
	Or
	Xor
	AndNot
	Not
	Cond
	Select
	Shl
	Shr
	Floor
	Ceil
	Round
	Trunc

	NumOpcodes
)

var opcodes = [NumOpcodes]struct {
	name  string
	arity int
}{
	Id:         {"Id", 1},
	Add:        {"Add", 2},
	Sub:        {"Sub", 2},
	Mul:        {"Mul", 2},
	Div:        {"Div", 2},
	Min:        {"Min", 2},
	Max:        {"Max", 2},
	Neg:        {"Neg", 1},
	Abs:        {"Abs", 1},
	Relu:       {"Relu", 1},
	Square:     {"Square", 1},
	Sqrt:       {"Sqrt", 1},
	Reciprocal: {"Reciprocal", 1},
	MulAdd132:  {"MulAdd132", 3},
	MulAdd213:  {"MulAdd213", 3},
	MulAdd231:  {"MulAdd231", 3},
	CmpEq:      {"CmpEq", 2},
	CmpNe:      {"CmpNe", 2},
	CmpLt:      {"CmpLt", 2},
	CmpLe:      {"CmpLe", 2},
	CmpGt:      {"CmpGt", 2},
	CmpGe:      {"CmpGe", 2},
	And:        {"And", 2},
	Or:         {"Or", 2},
	Xor:        {"Xor", 2},
	AndNot:     {"AndNot", 2},
	Not:        {"Not", 1},
	Cond:       {"Cond", 3},
	Select:     {"Select", 2},
	Shl:        {"Shl", 2},
	Shr:        {"Shr", 2},
	Floor:      {"Floor", 1},
	Ceil:       {"Ceil", 1},
	Round:      {"Round", 1},
	Trunc:      {"Trunc", 1},
}

// Numbers are the predefined constants addressed by _n variables.
var Numbers = []float64{
	0,
	1,
	2,
	0.5,
	-1,
	3,
	10,
	math.Ln2,
	math.Log2E,
	math.Pi,
}

const (
	NumZero = iota
	NumOne
	NumTwo
	NumHalf
	NumMinusOne
	NumThree
	NumTen
	NumLn2
	NumLog2E
	NumPi
)

func LookupOpcode(name string) (Opcode, bool) {
	for i, x := range opcodes {
		if x.name == name {
			return Opcode(i), true
		}
	}

	return 0, false
}

func (c Opcode) Arity() int {
	if !c.Valid() {
		return 0
	}

	return opcodes[c].arity
}

func (c Opcode) Valid() bool {
	return c >= 0 && c < NumOpcodes
}

// IsFMA reports fused multiply-add opcodes.
func (c Opcode) IsFMA() bool {
	return c == MulAdd132 || c == MulAdd213 || c == MulAdd231
}

func (c Opcode) IsCompare() bool {
	return c >= CmpEq && c <= CmpGe
}

func (c Opcode) String() string {
	if !c.Valid() {
		return "?"
	}

	return opcodes[c].name
}
