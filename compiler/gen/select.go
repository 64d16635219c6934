package gen

import (
	"context"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/ringgaard/sling-sub003/compiler/cpu"
	"github.com/ringgaard/sling-sub003/compiler/express"
	"github.com/ringgaard/sling-sub003/compiler/regs"
	"github.com/ringgaard/sling-sub003/compiler/tp"
)

type (
	Request struct {
		Expr     *express.Expression
		Type     tp.Type
		Count    int // elements, 0 if unknown
		Features cpu.Features

		// Budget defaults to regs.BudgetFor(Features).
		Budget *regs.Budget

		// Kernel is reserved before the generator demand in trial allocation.
		Kernel regs.Demand

		// Unroll is the number of copies to fit. Defaults to 1.
		Unroll int
	}

	// Selection is the chosen generator and the narrower ones
	// usable for the remainder, widest first.
	Selection struct {
		Main     Generator
		Cascade  []Generator
		Rejected []Rejection
	}

	Rejection struct {
		Generator string
		Reason    string
	}

	// CapabilityError means the target can't run the expression at all.
	CapabilityError struct {
		Type     tp.Type
		Rejected []Rejection
	}
)

// Select picks the widest generator which supports every opcode of the
// expression and fits into the register budget.
func Select(ctx context.Context, req Request) (s *Selection, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "select generator", "type", req.Type, "count", req.Count, "features", req.Features)
	defer tr.Finish("err", &err)

	if req.Expr == nil {
		return nil, errors.New("no expression")
	}

	s = &Selection{}
	lastWidth := 0

	for _, g := range Catalog(req.Type, req.Features) {
		if s.Main != nil && g.VectorWidth() >= lastWidth {
			continue
		}

		unroll := req.Unroll
		if s.Main != nil {
			unroll = 1
		}

		reason := check(g, req, unroll)
		if reason != "" {
			tr.V("select").Printw("rejected", "gen", g.Name(), "reason", reason)

			if s.Main == nil {
				s.Rejected = append(s.Rejected, Rejection{Generator: g.Name(), Reason: reason})
			}

			continue
		}

		if s.Main == nil {
			s.Main = g
		}

		s.Cascade = append(s.Cascade, g)
		lastWidth = g.VectorWidth()
	}

	if s.Main == nil {
		return nil, CapabilityError{Type: req.Type, Rejected: s.Rejected}
	}

	tr.Printw("selected", "gen", s.Main.Name(), "width", s.Main.VectorWidth(), "cascade", len(s.Cascade))

	return s, nil
}

// check returns the reason g can't be used, empty if it can.
func check(g Generator, req Request, unroll int) string {
	if err := g.Available(req.Features); err != nil {
		return err.Error()
	}

	if code, ok := g.Model().Supports(req.Expr); !ok {
		return "unsupported opcode " + code.String()
	}

	w := g.VectorWidth()
	masked := req.Count != 0 && w > req.Count

	if masked && !g.SupportsMasking() {
		return "wider than the tensor and no masking"
	}

	if unroll < 1 {
		unroll = 1
	}

	ok, err := Fits(g, req.Expr, unroll, masked, req.Kernel, budget(req))
	if err != nil {
		return err.Error()
	}

	if !ok {
		return "register overflow"
	}

	return ""
}

// Fits runs trial allocation of the kernel reservation plus
// the generator demand against a fresh pool.
func Fits(g Generator, e *express.Expression, unroll int, masked bool, kernel regs.Demand, b regs.Budget) (bool, error) {
	d, err := g.Demand(e, unroll, masked)
	if err != nil {
		return false, err
	}

	_, ok := regs.NewPool(b).Reserve(kernel.Add(d), g.Model().Class)

	if ok && g.SupportsMasking() && !masked {
		d, err = g.Demand(e, 1, true)
		if err != nil {
			return false, err
		}

		_, ok = regs.NewPool(b).Reserve(kernel.Add(d), g.Model().Class)
	}

	return ok, nil
}

func budget(req Request) regs.Budget {
	if req.Budget != nil {
		return *req.Budget
	}

	return regs.BudgetFor(req.Features)
}

func (e CapabilityError) Error() string {
	var b strings.Builder

	b.WriteString("no generator for ")
	b.WriteString(e.Type.String())

	for i, r := range e.Rejected {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}

		b.WriteString(r.Generator)
		b.WriteString(" (")
		b.WriteString(r.Reason)
		b.WriteString(")")
	}

	return b.String()
}
