package asm

import (
	"encoding/binary"
	"math"

	"github.com/ringgaard/sling-sub003/compiler/tp"
	"tlog.app/go/errors"
)

type (
	Label int

	// Operand is one of Reg, Mem, Imm, Const, Label, Masked.
	Operand interface {
		isOperand()
	}

	Imm int64

	// Mem is [Base + Index*Scale + Disp].
	Mem struct {
		Base  Reg
		Index Reg
		Scale int8
		Disp  int32
		Size  int8 // access size in bytes
	}

	// Const is a rip relative reference to pooled data.
	Const struct {
		Label Label
		Size  int8
	}

	// Masked applies an AVX-512 opmask to a register or memory operand.
	Masked struct {
		X    Operand
		K    Reg
		Zero bool
	}

	Instr struct {
		Label   Label // bound here if not NoLabel
		Op      string
		Args    []Operand
		Comment string
	}

	Datum struct {
		Label Label
		Align int
		Elem  int
		Bytes []byte
	}

	// Program is a linear instruction list plus the data it references.
	Program struct {
		Code []Instr
		Data []Datum

		labels Label
		pool   map[string]Label
	}
)

const NoLabel Label = -1

func (Reg) isOperand()    {}
func (Mem) isOperand()    {}
func (Imm) isOperand()    {}
func (Const) isOperand()  {}
func (Label) isOperand()  {}
func (Masked) isOperand() {}

func New() *Program {
	return &Program{
		pool: map[string]Label{},
	}
}

func (p *Program) Emit(op string, args ...Operand) {
	p.Code = append(p.Code, Instr{Label: NoLabel, Op: op, Args: args})
}

// Note adds a standalone comment line.
func (p *Program) Note(c string) {
	p.Code = append(p.Code, Instr{Label: NoLabel, Comment: c})
}

func (p *Program) NewLabel() Label {
	l := p.labels
	p.labels++

	return l
}

func (p *Program) Bind(l Label) {
	p.Code = append(p.Code, Instr{Label: l})
}

// Pool adds bytes to the constant pool. Identical data is shared.
func (p *Program) Pool(b []byte, align, elem int) Const {
	key := string(b) + string(rune(align))

	if l, ok := p.pool[key]; ok {
		return Const{Label: l, Size: int8(min(len(b), 64))}
	}

	l := p.NewLabel()
	p.pool[key] = l

	p.Data = append(p.Data, Datum{
		Label: l,
		Align: align,
		Elem:  elem,
		Bytes: append([]byte{}, b...),
	})

	return Const{Label: l, Size: int8(min(len(b), 64))}
}

// Broadcast pools value v of type t repeated lanes times.
func (p *Program) Broadcast(t tp.Type, v float64, lanes int) (Const, error) {
	e, err := Encode(t, v)
	if err != nil {
		return Const{}, err
	}

	b := make([]byte, 0, len(e)*lanes)

	for i := 0; i < lanes; i++ {
		b = append(b, e...)
	}

	return p.Pool(b, max(len(b), t.Size()), t.Size()), nil
}

// Pattern pools raw element bit patterns, one per lane.
func (p *Program) Pattern(t tp.Type, lanes []uint64) Const {
	b := make([]byte, 0, len(lanes)*t.Size())

	for _, x := range lanes {
		b = appendElem(b, t.Size(), x)
	}

	return p.Pool(b, max(len(b), t.Size()), t.Size())
}

// Encode returns little endian bytes of v as element type t.
func Encode(t tp.Type, v float64) ([]byte, error) {
	switch t {
	case tp.Float32:
		return appendElem(nil, 4, uint64(math.Float32bits(float32(v)))), nil
	case tp.Float64:
		return appendElem(nil, 8, math.Float64bits(v)), nil
	}

	if !t.IsInt() {
		return nil, errors.New("unsupported type: %v", t)
	}

	if v != math.Trunc(v) {
		return nil, errors.New("%v is not an integer", v)
	}

	return appendElem(nil, t.Size(), uint64(int64(v))), nil
}

func appendElem(b []byte, size int, x uint64) []byte {
	var buf [8]byte

	binary.LittleEndian.PutUint64(buf[:], x)

	return append(b, buf[:size]...)
}

// Mnemonics lists instruction names in order, labels and notes skipped.
func (p *Program) Mnemonics() (r []string) {
	for _, in := range p.Code {
		if in.Op != "" {
			r = append(r, in.Op)
		}
	}

	return r
}

func (p *Program) Count(op string) (n int) {
	for _, in := range p.Code {
		if in.Op == op {
			n++
		}
	}

	return n
}
