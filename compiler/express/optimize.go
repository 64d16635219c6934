package express

import (
	"slices"

	"tlog.app/go/tlog"
)

// EliminateCommonSubexpressions folds structurally equal ops
// until no pair is left. It reports whether anything changed.
//
// Ops are equal when they have the same opcode and identical argument lists.
// For a pair (i, j) with i earlier:
//   - j yields a temp: consumers of j read i's result, j is removed;
//   - i yields a temp, j an output: i is retargeted to the output, j is removed;
//   - both yield non-temps: j becomes Id of i's result.
func (e *Expression) EliminateCommonSubexpressions() (changed bool) {
	for e.eliminateOne() {
		changed = true
	}

	if changed {
		e.CompactTempVars()
	}

	return changed
}

func (e *Expression) eliminateOne() bool {
	for i := 0; i < len(e.seq); i++ {
		for j := i + 1; j < len(e.seq); j++ {
			a, b := e.seq[i], e.seq[j]

			if !e.equalOps(a, b) {
				continue
			}

			ra, rb := e.ops[a].Result, e.ops[b].Result

			if tlog.If("cse") {
				tlog.Printw("cse", "keep", e.VarName(ra), "fold", e.VarName(rb), "op", e.ops[a].Code)
			}

			switch {
			case e.vars[rb].Kind == Temp:
				e.Redirect(rb, ra)
				e.RemoveOp(b)
				_ = e.RemoveVar(rb)
			case e.vars[ra].Kind == Temp:
				e.RemoveOp(b)

				e.unassign(a)
				e.ops[a].Result = rb
				e.vars[rb].Producer = a

				e.Redirect(ra, rb)
				_ = e.RemoveVar(ra)
			default:
				e.clearArguments(b)
				e.ops[b].Code = Id
				e.AddArgument(b, ra)
			}

			return true
		}
	}

	return false
}

func (e *Expression) equalOps(a, b OpID) bool {
	x, y := &e.ops[a], &e.ops[b]

	if x.Result == Nil || y.Result == Nil || x.Result == y.Result {
		return false
	}

	return x.Code == y.Code && slices.Equal(x.Args, y.Args)
}

// Merge splices other into e. Vars of other found in mapping are
// replaced by the mapped vars of e, the rest are adopted: temps get new
// ids, other kinds keep theirs and join the existing var of the same
// kind and id if there is one.
//
// A mapped var that is already produced in e does not get a second
// producer. The incoming op is dropped if it is equal to the existing
// producer, and it is an error otherwise.
//
// other is consumed and left empty.
func (e *Expression) Merge(other *Expression, mapping map[VarID]VarID) error {
	remap := make(map[VarID]VarID, len(other.decl))

	for from, to := range mapping {
		if int(from) >= len(other.vars) || from < 0 || other.vars[from].dead {
			return newContractError(from, Nil, "mapping from unknown var")
		}

		if int(to) >= len(e.vars) || to < 0 || e.vars[to].dead {
			return newContractError(to, Nil, "mapping to unknown var")
		}
	}

	adopted := false

	for _, v := range other.decl {
		if to, ok := mapping[v]; ok {
			remap[v] = to
			continue
		}

		x := &other.vars[v]

		switch x.Kind {
		case Temp:
			remap[v] = e.NewTemp()
			adopted = true
		default:
			remap[v] = e.Variable(x.Kind, x.ID)
		}
	}

	for _, o := range other.seq {
		x := &other.ops[o]
		if x.Result == Nil {
			return newContractError(Nil, o, "merged %v has no result", x.Code)
		}

		res := remap[x.Result]

		args := make([]VarID, len(x.Args))
		for i, a := range x.Args {
			args[i] = remap[a]
		}

		if p := e.vars[res].Producer; p != Nil {
			if e.ops[p].Code == x.Code && slices.Equal(e.ops[p].Args, args) {
				continue
			}

			return newContractError(res, p, "merged %v would produce %s twice", x.Code, e.VarName(res))
		}

		n := e.Operation(x.Code)

		for _, a := range args {
			e.AddArgument(n, a)
		}

		err := e.Assign(n, res)
		if err != nil {
			return err
		}
	}

	// Unmapped adopted temps nobody ended up using were produced by dropped ops.
	for _, v := range other.decl {
		r := remap[v]

		if _, ok := mapping[v]; ok || e.vars[r].Kind != Temp {
			continue
		}

		if e.vars[r].Producer == Nil && len(e.vars[r].Consumers) == 0 {
			_ = e.RemoveVar(r)
		}
	}

	if adopted {
		e.CompactTempVars()
	}

	*other = *New()

	return nil
}

// FuseMulAdd rewrites Add(Mul(a, b), c) and Add(c, Mul(a, b))
// into MulAdd213(a, b, c) when the product is not used elsewhere.
// It returns the number of rewrites.
func (e *Expression) FuseMulAdd() (n int) {
	for _, o := range slices.Clone(e.seq) {
		if e.ops[o].dead || e.ops[o].Code != Add {
			continue
		}

		for k := 0; k < 2; k++ {
			t := e.ops[o].Args[k]
			p := e.vars[t].Producer

			if p == Nil || !e.Inlined(t) || e.ops[p].Code != Mul {
				continue
			}

			a, b := e.ops[p].Args[0], e.ops[p].Args[1]
			c := e.ops[o].Args[1-k]

			e.clearArguments(o)
			e.ops[o].Code = MulAdd213

			e.AddArgument(o, a)
			e.AddArgument(o, b)
			e.AddArgument(o, c)

			e.RemoveOp(p)
			_ = e.RemoveVar(t)

			n++

			break
		}
	}

	if n != 0 {
		e.CompactTempVars()
	}

	return n
}
