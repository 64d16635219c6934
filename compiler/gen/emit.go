package gen

import (
	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"
	"tlog.app/go/loc"

	"github.com/ringgaard/sling-sub003/compiler/asm"
	"github.com/ringgaard/sling-sub003/compiler/express"
	"github.com/ringgaard/sling-sub003/compiler/regs"
)

type (
	// Emitter is the state of one phase body emission.
	Emitter struct {
		Prog *asm.Program
		Pool *regs.Pool
		Expr *express.Expression

		Constants []float64
		Inputs    int
		Outputs   int

		// Bases hold tensor addresses, inputs first.
		Bases []asm.Reg

		// Ofs is the running loop offset in bytes, NoReg out of loops.
		Ofs asm.Reg

		// Disp is the phase offset in bytes.
		Disp int32

		g     Generator
		lanes int
		mask  asm.Reg

		vals map[express.VarID][]asm.Reg
		tmp  []tmpReg

		live [numCats]int
		peak [numCats]int
	}

	tmpReg struct {
		r   asm.Reg
		cat cat
	}

	cat int8
)

const (
	valGP cat = iota
	valVec
	auxGP
	auxVec
	maskK

	numCats
)

// Body emits all ops of the expression for unroll consecutive vectors.
// lanes > 0 makes a masked body for a single partial vector.
func (em *Emitter) Body(g Generator, unroll, lanes int) (err error) {
	if unroll < 1 {
		return errors.New("bad unroll: %d", unroll)
	}

	if lanes != 0 && (unroll != 1 || !g.SupportsMasking()) {
		return errors.New("%v: can't mask %d lanes unrolled %d times", g.Name(), lanes, unroll)
	}

	em.g = g
	em.lanes = lanes
	em.mask = asm.NoReg
	em.vals = map[express.VarID][]asm.Reg{}

	uses := map[express.VarID]int{}

	for _, v := range em.Expr.Vars() {
		uses[v] = em.Expr.Consumers(v)
	}

	if lanes != 0 {
		err = em.loadMask(lanes)
		if err != nil {
			return errors.Wrap(err, "load mask")
		}

		defer em.free(em.mask, maskCat(em.mask))
	}

	for _, o := range em.Expr.Ops() {
		op := em.Expr.Op(o)

		dst := make([]asm.Reg, unroll)
		for u := range dst {
			dst[u] = em.value()
		}

		for u := 0; u < unroll; u++ {
			args := make([]asm.Operand, len(op.Args))

			for i, a := range op.Args {
				if i == 1 && (op.Code == express.Shl || op.Code == express.Shr) {
					continue
				}

				args[i], err = em.addr(a, u)
				if err != nil {
					return errors.Wrap(err, "%v arg %d", op.Code, i)
				}
			}

			err = g.op(em, op.Code, dst[u], args, op.Args)
			if err != nil {
				return errors.Wrap(err, "%v", op.Code)
			}

			if em.Expr.Kind(op.Result) == express.Output {
				err = em.storeOutput(op.Result, u, dst[u])
				if err != nil {
					return err
				}
			}

			em.releaseTemps()
		}

		em.vals[op.Result] = dst

		for _, a := range op.Args {
			uses[a]--

			if uses[a] == 0 {
				em.drop(a)
			}
		}

		if uses[op.Result] == 0 {
			em.drop(op.Result)
		}
	}

	return nil
}

func (em *Emitter) drop(v express.VarID) {
	for _, r := range em.vals[v] {
		em.free(r, em.valCat())
	}

	delete(em.vals, v)
}

// addr resolves a var to an operand for copy u.
func (em *Emitter) addr(v express.VarID, u int) (asm.Operand, error) {
	x := em.Expr.Var(v)

	switch x.Kind {
	case express.Number:
		if x.ID < 0 || x.ID >= len(express.Numbers) {
			return nil, contractError(v, "number %d out of range", x.ID)
		}

		return em.g.constant(em, express.Numbers[x.ID])
	case express.Constant:
		if x.ID < 0 || x.ID >= len(em.Constants) {
			return nil, contractError(v, "constant %d out of range (%d declared)", x.ID, len(em.Constants))
		}

		return em.g.constant(em, em.Constants[x.ID])
	case express.Input:
		if x.ID < 0 || x.ID >= em.Inputs {
			return nil, contractError(v, "input %d out of range (%d declared)", x.ID, em.Inputs)
		}

		m := em.mem(x.ID, u)

		if em.lanes != 0 {
			r := em.scratch()
			em.maskedLoad(r, m)

			return r, nil
		}

		return m, nil
	}

	if r, ok := em.vals[v]; ok {
		return r[u], nil
	}

	return nil, contractError(v, "%v %d is not materialized", x.Kind, x.ID)
}

// shiftCount is the compile time value of a shift count argument.
func (em *Emitter) shiftCount(v express.VarID) (int, error) {
	x := em.Expr.Var(v)

	var f float64

	switch {
	case x.Kind == express.Number && x.ID >= 0 && x.ID < len(express.Numbers):
		f = express.Numbers[x.ID]
	case x.Kind == express.Constant && x.ID >= 0 && x.ID < len(em.Constants):
		f = em.Constants[x.ID]
	default:
		return 0, contractError(v, "shift count must be a known number or constant")
	}

	n := int(f)
	if float64(n) != f || n < 0 || n >= em.g.Type().Bits() {
		return 0, errors.New("bad shift count: %v", f)
	}

	return n, nil
}

// mem is the memory operand of tensor i, copy u.
func (em *Emitter) mem(i, u int) asm.Mem {
	n := em.g.bytes()

	m := asm.Mem{
		Base: em.Bases[i],
		Disp: em.Disp + int32(u*n),
		Size: int8(min(n, 64)),
	}

	if em.Ofs.Valid() {
		m.Index = em.Ofs
		m.Scale = 1
	}

	return m
}

func (em *Emitter) storeOutput(v express.VarID, u int, r asm.Reg) error {
	id := em.Expr.Var(v).ID

	if id < 0 || id >= em.Outputs {
		return contractError(v, "output %d out of range (%d declared)", id, em.Outputs)
	}

	m := em.mem(em.Inputs+id, u)

	if em.lanes != 0 {
		em.maskedStore(m, r)
		return nil
	}

	em.g.store(em, m, r)

	return nil
}

// Emit appends an instruction.
func (em *Emitter) Emit(op string, args ...asm.Operand) {
	em.Prog.Emit(op, args...)
}

func (em *Emitter) valCat() cat {
	if em.g.Model().Class == asm.GP {
		return valGP
	}

	return valVec
}

func (em *Emitter) value() asm.Reg {
	c := em.valCat()
	r := em.alloc(c)

	return em.view(r)
}

// scratch is a register of the value class living until the op is done.
func (em *Emitter) scratch() asm.Reg {
	c := auxVec
	if em.g.Model().Class == asm.GP {
		c = auxGP
	}

	r := em.view(em.alloc(c))
	em.tmp = append(em.tmp, tmpReg{r: r, cat: c})

	return r
}

// scratchGP is a general purpose scratch register.
func (em *Emitter) scratchGP() asm.Reg {
	r := em.alloc(auxGP)
	em.tmp = append(em.tmp, tmpReg{r: r, cat: auxGP})

	return r
}

// reg returns x in a register, loading it into a scratch one if needed.
func (em *Emitter) reg(x asm.Operand) asm.Reg {
	if r, ok := x.(asm.Reg); ok {
		return r
	}

	r := em.scratch()
	em.g.load(em, r, x)

	return r
}

func (em *Emitter) view(r asm.Reg) asm.Reg {
	if !r.Valid() {
		return r
	}

	return em.g.view(r)
}

func (em *Emitter) alloc(c cat) (r asm.Reg) {
	switch c {
	case valGP, auxGP:
		r = em.Pool.Alloc()
	case valVec, auxVec:
		r = em.Pool.AllocVector(em.g.Model().Class)
	case maskK:
		r = em.Pool.AllocMask()
	}

	em.live[c]++

	if em.live[c] > em.peak[c] {
		em.peak[c] = em.live[c]
	}

	return r
}

func (em *Emitter) free(r asm.Reg, c cat) {
	em.Pool.Release(r)
	em.live[c]--
}

func (em *Emitter) releaseTemps() {
	for _, t := range em.tmp {
		em.free(t.r, t.cat)
	}

	em.tmp = em.tmp[:0]
}

func maskCat(r asm.Reg) cat {
	if r.Class == asm.K {
		return maskK
	}

	return auxVec
}

func contractError(v express.VarID, f string, args ...any) error {
	return express.ContractError{
		Msg:  string(hfmt.Appendf(nil, f, args...)),
		Var:  v,
		Op:   express.Nil,
		From: loc.Caller(1),
	}
}
