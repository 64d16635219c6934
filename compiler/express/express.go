// Package express is the intermediate representation of fused
// elementwise expressions.
//
// An Expression owns an arena of variables and operations addressed
// by integer handles. Operation order is significant: it is the
// emission order, and every operation follows the producers of its
// arguments.
package express

import (
	"slices"

	"tlog.app/go/tlog/tlwire"

	"github.com/ringgaard/sling-sub003/compiler/set"
)

type (
	Kind int8

	VarID int32
	OpID  int32

	Var struct {
		Kind Kind
		ID   int

		Producer  OpID
		Consumers []OpID // one entry per argument reference

		dead bool
	}

	Op struct {
		Code   Opcode
		Result VarID
		Args   []VarID

		dead bool
	}

	varKey struct {
		kind Kind
		id   int
	}

	Expression struct {
		vars []Var
		ops  []Op

		decl []VarID // live vars in declaration order
		seq  []OpID  // live ops in emission order

		index map[varKey]VarID
	}
)

const (
	Input Kind = iota
	Output
	Temp
	Constant
	Number

	NumKinds
)

const (
	Nil = -1

	// Unassigned is the id of a fresh temp until compaction.
	Unassigned = -1
)

var sigils = [NumKinds]byte{
	Input:    '%',
	Output:   '@',
	Temp:     '$',
	Constant: '#',
	Number:   '_',
}

func New() *Expression {
	return &Expression{
		index: map[varKey]VarID{},
	}
}

func (k Kind) Sigil() byte {
	if k < 0 || k >= NumKinds {
		return '?'
	}

	return sigils[k]
}

func (k Kind) String() string {
	switch k {
	case Input:
		return "input"
	case Output:
		return "output"
	case Temp:
		return "temp"
	case Constant:
		return "constant"
	case Number:
		return "number"
	}

	return "unknown"
}

func kindOf(c byte) (Kind, bool) {
	for k, s := range sigils {
		if s == c {
			return Kind(k), true
		}
	}

	return 0, false
}

// Variable returns the var of the given kind and id, creating it if needed.
func (e *Expression) Variable(kind Kind, id int) VarID {
	if v, ok := e.index[varKey{kind, id}]; ok {
		return v
	}

	v := e.newVar(kind, id)
	e.index[varKey{kind, id}] = v

	return v
}

// NewTemp always creates a new temp with an unassigned id.
func (e *Expression) NewTemp() VarID {
	return e.newVar(Temp, Unassigned)
}

func (e *Expression) newVar(kind Kind, id int) VarID {
	v := VarID(len(e.vars))

	e.vars = append(e.vars, Var{
		Kind:     kind,
		ID:       id,
		Producer: Nil,
	})

	e.decl = append(e.decl, v)

	return v
}

// Operation appends a new op to the end of the sequence.
func (e *Expression) Operation(code Opcode) OpID {
	o := OpID(len(e.ops))

	e.ops = append(e.ops, Op{
		Code:   code,
		Result: Nil,
	})

	e.seq = append(e.seq, o)

	return o
}

func (e *Expression) AddArgument(o OpID, v VarID) {
	e.ops[o].Args = append(e.ops[o].Args, v)
	e.vars[v].Consumers = append(e.vars[v].Consumers, o)
}

// Assign sets the result of op o.
func (e *Expression) Assign(o OpID, v VarID) error {
	op := &e.ops[o]
	x := &e.vars[v]

	switch {
	case op.Result != Nil:
		return newContractError(v, o, "%v already assigned to %s", op.Code, e.VarName(op.Result))
	case x.Kind != Temp && x.Kind != Output:
		return newContractError(v, o, "assignment to %v %s", x.Kind, e.VarName(v))
	case x.Producer != Nil:
		return newContractError(v, o, "%s already produced by %v", e.VarName(v), e.ops[x.Producer].Code)
	}

	op.Result = v
	x.Producer = o

	return nil
}

// ReplaceArgument sets argument i of op o to v keeping both sides in sync.
func (e *Expression) ReplaceArgument(o OpID, i int, v VarID) {
	old := e.ops[o].Args[i]
	if old == v {
		return
	}

	e.removeConsumer(old, o)

	e.ops[o].Args[i] = v
	e.vars[v].Consumers = append(e.vars[v].Consumers, o)
}

// Redirect makes every consumer of from read to instead.
func (e *Expression) Redirect(from, to VarID) {
	if from == to {
		return
	}

	consumers := slices.Clone(e.vars[from].Consumers)

	for _, o := range consumers {
		for i, a := range e.ops[o].Args {
			if a == from {
				e.ReplaceArgument(o, i, to)
			}
		}
	}
}

func (e *Expression) clearArguments(o OpID) {
	for _, a := range e.ops[o].Args {
		e.removeConsumer(a, o)
	}

	e.ops[o].Args = e.ops[o].Args[:0]
}

func (e *Expression) unassign(o OpID) {
	r := e.ops[o].Result
	if r == Nil {
		return
	}

	e.vars[r].Producer = Nil
	e.ops[o].Result = Nil
}

// RemoveOp unlinks the op from its result and arguments and drops it.
func (e *Expression) RemoveOp(o OpID) {
	e.unassign(o)
	e.clearArguments(o)

	e.ops[o].dead = true

	if i := slices.Index(e.seq, o); i >= 0 {
		e.seq = slices.Delete(e.seq, i, i+1)
	}
}

// RemoveVar drops a var. It must be neither produced nor consumed.
func (e *Expression) RemoveVar(v VarID) error {
	x := &e.vars[v]

	if x.Producer != Nil || len(x.Consumers) != 0 {
		return newContractError(v, Nil, "removing %s still in use", e.VarName(v))
	}

	if id, ok := e.index[varKey{x.Kind, x.ID}]; ok && id == v {
		delete(e.index, varKey{x.Kind, x.ID})
	}

	x.dead = true

	if i := slices.Index(e.decl, v); i >= 0 {
		e.decl = slices.Delete(e.decl, i, i+1)
	}

	return nil
}

func (e *Expression) removeConsumer(v VarID, o OpID) {
	c := e.vars[v].Consumers

	if i := slices.Index(c, o); i >= 0 {
		e.vars[v].Consumers = slices.Delete(c, i, i+1)
	}
}

// Var returns a copy of the var.
func (e *Expression) Var(v VarID) Var {
	x := e.vars[v]
	x.Consumers = slices.Clone(x.Consumers)

	return x
}

// Op returns a copy of the op.
func (e *Expression) Op(o OpID) Op {
	x := e.ops[o]
	x.Args = slices.Clone(x.Args)

	return x
}

func (e *Expression) Kind(v VarID) Kind { return e.vars[v].Kind }

func (e *Expression) Producer(v VarID) OpID { return e.vars[v].Producer }

func (e *Expression) Consumers(v VarID) int { return len(e.vars[v].Consumers) }

// Ops returns live ops in sequence order.
func (e *Expression) Ops() []OpID { return slices.Clone(e.seq) }

// Vars returns live vars in declaration order.
func (e *Expression) Vars() []VarID { return slices.Clone(e.decl) }

func (e *Expression) NumOps() int { return len(e.seq) }

// NumVars counts live vars of a kind.
func (e *Expression) NumVars(kind Kind) (n int) {
	for _, v := range e.decl {
		if e.vars[v].Kind == kind {
			n++
		}
	}

	return n
}

// MaxID is one more than the largest id of the kind, 0 if none.
func (e *Expression) MaxID(kind Kind) (n int) {
	for _, v := range e.decl {
		if x := e.vars[v]; x.Kind == kind && x.ID >= n {
			n = x.ID + 1
		}
	}

	return n
}

// Inlined reports whether v is a temp with exactly one consumer.
// Such a var is printed in place and never gets a memory slot.
func (e *Expression) Inlined(v VarID) bool {
	x := &e.vars[v]

	return x.Kind == Temp && len(x.Consumers) == 1
}

// OpsUsed is the set of opcodes the expression contains.
func (e *Expression) OpsUsed() (s set.Bits[Opcode]) {
	for _, o := range e.seq {
		s.Set(e.ops[o].Code)
	}

	return s
}

// CompactTempVars renumbers temps 0..k in declaration order.
func (e *Expression) CompactTempVars() {
	n := 0

	for _, v := range e.decl {
		x := &e.vars[v]
		if x.Kind != Temp {
			continue
		}

		if id, ok := e.index[varKey{Temp, x.ID}]; ok && id == v {
			delete(e.index, varKey{Temp, x.ID})
		}

		x.ID = n
		n++
	}

	for _, v := range e.decl {
		if x := e.vars[v]; x.Kind == Temp {
			e.index[varKey{Temp, x.ID}] = v
		}
	}
}

// Clone makes an independent copy. Handles stay valid in the copy.
func (e *Expression) Clone() *Expression {
	c := &Expression{
		vars:  make([]Var, len(e.vars)),
		ops:   make([]Op, len(e.ops)),
		decl:  slices.Clone(e.decl),
		seq:   slices.Clone(e.seq),
		index: make(map[varKey]VarID, len(e.index)),
	}

	for i, x := range e.vars {
		x.Consumers = slices.Clone(x.Consumers)
		c.vars[i] = x
	}

	for i, x := range e.ops {
		x.Args = slices.Clone(x.Args)
		c.ops[i] = x
	}

	for k, v := range e.index {
		c.index[k] = v
	}

	return c
}

// Validate checks the def/use graph for consistency.
func (e *Expression) Validate() error {
	pos := make(map[OpID]int, len(e.seq))
	refs := map[VarID]map[OpID]int{}

	for i, o := range e.seq {
		op := &e.ops[o]

		if op.dead {
			return newContractError(Nil, o, "dead op in sequence")
		}

		if len(op.Args) != op.Code.Arity() {
			return newContractError(Nil, o, "%v takes %d arguments, got %d", op.Code, op.Code.Arity(), len(op.Args))
		}

		for _, a := range op.Args {
			if e.vars[a].dead {
				return newContractError(a, o, "dead argument")
			}

			if p := e.vars[a].Producer; p != Nil {
				if _, ok := pos[p]; !ok {
					return newContractError(a, o, "%s used before definition", e.VarName(a))
				}
			} else if k := e.vars[a].Kind; k == Temp || k == Output {
				return newContractError(a, o, "%s is never produced", e.VarName(a))
			}

			if refs[a] == nil {
				refs[a] = map[OpID]int{}
			}

			refs[a][o]++
		}

		if op.Result == Nil {
			return newContractError(Nil, o, "%v has no result", op.Code)
		}

		r := &e.vars[op.Result]

		if r.Kind != Temp && r.Kind != Output {
			return newContractError(op.Result, o, "%v result is %v", op.Code, r.Kind)
		}

		if r.Producer != o {
			return newContractError(op.Result, o, "producer mismatch")
		}

		pos[o] = i
	}

	for _, v := range e.decl {
		x := &e.vars[v]

		if x.dead {
			return newContractError(v, Nil, "dead var declared")
		}

		if x.Producer != Nil {
			if e.ops[x.Producer].dead || e.ops[x.Producer].Result != v {
				return newContractError(v, x.Producer, "stale producer")
			}
		}

		got := map[OpID]int{}
		for _, o := range x.Consumers {
			got[o]++
		}

		if len(got) != len(refs[v]) {
			return newContractError(v, Nil, "consumer list mismatch")
		}

		for o, n := range refs[v] {
			if got[o] != n {
				return newContractError(v, o, "consumer list mismatch")
			}
		}
	}

	return nil
}

func (e *Expression) VarName(v VarID) string {
	if v == Nil {
		return "<nil>"
	}

	return string(e.appendVar(nil, v))
}

func (x Var) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 3)
	b = e.AppendKeyString(b, "kind", x.Kind.String())
	b = e.AppendKeyInt(b, "id", x.ID)
	b = e.AppendKeyInt(b, "consumers", len(x.Consumers))

	return b
}
