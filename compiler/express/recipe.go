package express

import (
	"github.com/nikandfor/hacked/hfmt"
)

// Recipe renders the expression as recipe text.
// Inlined temps are printed in place of their single use
// when that keeps the op order on reparse.
func (e *Expression) Recipe() string {
	return string(e.AppendRecipe(nil))
}

func (e *Expression) AppendRecipe(b []byte) []byte {
	in := e.nested()
	first := true

	for _, o := range e.seq {
		if in[o] {
			continue
		}

		if !first {
			b = append(b, ';')
		}

		first = false

		op := &e.ops[o]

		b = e.appendVar(b, op.Result)
		b = append(b, '=')

		if op.Code == Id && len(op.Args) == 1 && !in[e.vars[op.Args[0]].Producer] {
			b = e.appendVar(b, op.Args[0])
			continue
		}

		b = e.appendOp(b, o, in)
	}

	return b
}

// nested returns the ops printed inside their consumer.
// The parser creates nested ops in post order right before the consumer,
// so a temp is nested only if its producer subtree sits exactly there.
func (e *Expression) nested() map[OpID]bool {
	pos := make(map[OpID]int, len(e.seq))

	for i, o := range e.seq {
		pos[o] = i
	}

	in := map[OpID]bool{}

	var walk func(o OpID, cur int) int

	walk = func(o OpID, cur int) int {
		args := e.ops[o].Args

		for i := len(args) - 1; i >= 0; i-- {
			a := args[i]
			if !e.Inlined(a) {
				continue
			}

			p := e.vars[a].Producer
			if p == Nil || pos[p] != cur-1 {
				continue
			}

			in[p] = true
			cur = walk(p, pos[p])
		}

		return cur
	}

	for _, o := range e.seq {
		walk(o, pos[o])
	}

	return in
}

func (e *Expression) appendOp(b []byte, o OpID, in map[OpID]bool) []byte {
	op := &e.ops[o]

	b = append(b, op.Code.String()...)
	b = append(b, '(')

	for i, a := range op.Args {
		if i != 0 {
			b = append(b, ',')
		}

		if p := e.vars[a].Producer; p != Nil && in[p] {
			b = e.appendOp(b, p, in)
			continue
		}

		b = e.appendVar(b, a)
	}

	return append(b, ')')
}

func (e *Expression) appendVar(b []byte, v VarID) []byte {
	if v == Nil {
		return append(b, '?')
	}

	x := &e.vars[v]

	b = append(b, x.Kind.Sigil())

	if x.ID == Unassigned {
		return hfmt.Appendf(b, "?%d", int(v))
	}

	return hfmt.Appendf(b, "%d", x.ID)
}

func (e *Expression) String() string {
	return e.Recipe()
}
