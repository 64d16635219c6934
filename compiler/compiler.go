package compiler

import (
	"context"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/ringgaard/sling-sub003/compiler/asm"
	"github.com/ringgaard/sling-sub003/compiler/cpu"
	"github.com/ringgaard/sling-sub003/compiler/express"
	"github.com/ringgaard/sling-sub003/compiler/gen"
	"github.com/ringgaard/sling-sub003/compiler/regs"
	"github.com/ringgaard/sling-sub003/compiler/simd"
	"github.com/ringgaard/sling-sub003/compiler/tp"
)

type (
	// Kernel is an elementwise computation over Count elements of Type.
	// Inputs and Outputs default to the arity the expression uses.
	Kernel struct {
		Expr  *express.Expression
		Type  tp.Type
		Count int

		Inputs    int
		Outputs   int
		Constants []float64
	}

	Options struct {
		Features  cpu.Features
		MaxUnroll int // 0 means DefaultMaxUnroll
		NoFuse    bool

		// Budget overrides the register budget of Features.
		Budget *regs.Budget
	}

	// Plan is everything decided before emission.
	Plan struct {
		Expr      *express.Expression
		Selection *gen.Selection
		Unroll    int
		Fused     int
		Phases    []simd.Phase[gen.Generator]

		kernel regs.Demand
		budget regs.Budget
	}

	phase = simd.Phase[gen.Generator]
)

const DefaultMaxUnroll = 4

// Compile turns a kernel into x86-64 code.
// The code expects rdi to point to the tensor base addresses, inputs first.
func Compile(ctx context.Context, k Kernel, opts Options) (p *asm.Program, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile kernel", "type", k.Type, "count", k.Count)
	defer tr.Finish("err", &err)

	k, err = k.withDefaults()
	if err != nil {
		return nil, err
	}

	pl, err := Prepare(ctx, k, opts)
	if err != nil {
		return nil, err
	}

	p, err = emit(ctx, k, pl)
	if err != nil {
		return nil, errors.Wrap(err, "emit")
	}

	tr.Printw("compiled", "gen", pl.Selection.Main.Name(), "unroll", pl.Unroll, "phases", len(pl.Phases), "instrs", len(p.Code), "data", len(p.Data))

	return p, nil
}

// CompileRecipe parses recipe and compiles it.
func CompileRecipe(ctx context.Context, recipe string, t tp.Type, n int, opts Options) (*asm.Program, error) {
	e, err := express.Parse(recipe)
	if err != nil {
		return nil, errors.Wrap(err, "parse")
	}

	return Compile(ctx, Kernel{Expr: e, Type: t, Count: n}, opts)
}

// Prepare optimizes the expression, selects generators and plans phases.
// The kernel expression is left untouched.
func Prepare(ctx context.Context, k Kernel, opts Options) (pl *Plan, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "prepare kernel")
	defer tr.Finish("err", &err)

	k, err = k.withDefaults()
	if err != nil {
		return nil, err
	}

	err = k.Expr.Validate()
	if err != nil {
		return nil, errors.Wrap(err, "validate")
	}

	e := k.Expr.Clone()

	if e.EliminateCommonSubexpressions() {
		tr.V("cse").Printw("cse", "recipe", e.Recipe())
	}

	pl = &Plan{
		Expr: e,
		kernel: regs.Demand{
			Fixed: []asm.Reg{asm.Q(asm.RDI)},
			Temps: k.Inputs + k.Outputs + 1,
		},
		budget: regs.BudgetFor(opts.Features),
	}

	if opts.Budget != nil {
		pl.budget = *opts.Budget
	}

	pl.Selection, err = pl.selectGen(ctx, k, e, opts)
	if err != nil {
		return nil, err
	}

	if pl.Selection.Main.Model().FMA && !opts.NoFuse {
		pl.fuse(ctx, k, opts)
	}

	maxUnroll := opts.MaxUnroll
	if maxUnroll <= 0 {
		maxUnroll = DefaultMaxUnroll
	}

	pl.Unroll, err = pl.chooseUnroll(maxUnroll)
	if err != nil {
		return nil, errors.Wrap(err, "choose unroll")
	}

	pl.Phases, err = simd.Plan(pl.Selection.Cascade, k.Count, pl.Unroll)
	if err != nil {
		return nil, errors.Wrap(err, "plan phases")
	}

	if tr.If("phases") {
		for i, ph := range pl.Phases {
			tr.Printw("phase", "i", i, "gen", ph.Gen.Name(), "phase", ph)
		}
	}

	return pl, nil
}

func (pl *Plan) selectGen(ctx context.Context, k Kernel, e *express.Expression, opts Options) (*gen.Selection, error) {
	return gen.Select(ctx, gen.Request{
		Expr:     e,
		Type:     k.Type,
		Count:    k.Count,
		Features: opts.Features,
		Budget:   &pl.budget,
		Kernel:   pl.kernel,
	})
}

// fuse replaces Add(Mul) pairs by MulAdd if a generator still fits then.
func (pl *Plan) fuse(ctx context.Context, k Kernel, opts Options) {
	e := pl.Expr.Clone()

	n := e.FuseMulAdd()
	if n == 0 {
		return
	}

	s, err := pl.selectGen(ctx, k, e, opts)
	if err != nil {
		tlog.SpanFromContext(ctx).Printw("keep unfused", "fused", n, "err", err)
		return
	}

	if !s.Main.Model().FMA {
		tlog.SpanFromContext(ctx).Printw("keep unfused", "fused", n, "gen", s.Main.Name())
		return
	}

	pl.Expr = e
	pl.Selection = s
	pl.Fused = n
}

func (pl *Plan) chooseUnroll(maxUnroll int) (int, error) {
	g := pl.Selection.Main

	for u := maxUnroll; u > 1; u-- {
		ok, err := gen.Fits(g, pl.Expr, u, false, pl.kernel, pl.budget)
		if err != nil {
			return 0, err
		}

		if ok {
			return u, nil
		}
	}

	return 1, nil
}

func (k Kernel) withDefaults() (Kernel, error) {
	if k.Expr == nil {
		return k, errors.New("no expression")
	}

	if !k.Type.Valid() {
		return k, errors.New("bad element type: %v", k.Type)
	}

	if k.Count < 0 {
		return k, errors.New("negative element count: %d", k.Count)
	}

	if k.Inputs == 0 {
		k.Inputs = k.Expr.MaxID(express.Input)
	}

	if k.Outputs == 0 {
		k.Outputs = k.Expr.MaxID(express.Output)
	}

	return k, nil
}

func emit(ctx context.Context, k Kernel, pl *Plan) (p *asm.Program, err error) {
	tr := tlog.SpanFromContext(ctx)

	p = asm.New()
	pool := regs.NewPool(pl.budget)

	pool.ReserveFixed(asm.Q(asm.RDI))

	fixed := map[asm.Reg]bool{}

	for _, g := range pl.Selection.Cascade {
		for _, r := range gen.Fixed(g, pl.Expr) {
			if !fixed[r] {
				pool.ReserveFixed(r)
				fixed[r] = true
			}
		}
	}

	bases := pool.ReserveTemps(k.Inputs + k.Outputs)
	ofs := pool.Alloc()

	if pool.Overflow() {
		return nil, errors.New("register overflow in kernel prologue")
	}

	for i, b := range bases {
		p.Emit("mov", b, asm.Mem{Base: asm.Q(asm.RDI), Disp: int32(8 * i), Size: 8})
	}

	size := k.Type.Size()
	vex := false

	for i, ph := range pl.Phases {
		tr.V("emit").Printw("emit phase", "i", i, "gen", ph.Gen.Name(), "phase", ph)

		p.Note(string(hfmt.Appendf(nil, "%v unroll %d repeat %d offset %d masked %d",
			ph.Gen.Name(), ph.Unroll, ph.Repeat, ph.Offset, ph.Masked)))

		em := &gen.Emitter{
			Prog:      p,
			Pool:      pool,
			Expr:      pl.Expr,
			Constants: k.Constants,
			Inputs:    k.Inputs,
			Outputs:   k.Outputs,
			Bases:     bases,
			Ofs:       asm.NoReg,
		}

		err = emitPhase(em, ph, ofs, size)
		if err != nil {
			return nil, errors.Wrap(err, "phase %d", i)
		}

		c := ph.Gen.Model().Class
		vex = vex || c == asm.YMM || c == asm.ZMM
	}

	if vex {
		p.Emit("vzeroupper")
	}

	p.Emit("ret")

	return p, nil
}

func emitPhase(em *gen.Emitter, ph phase, ofs asm.Reg, size int) (err error) {
	pool := em.Pool

	cp := pool.Checkpoint()
	defer pool.Restore(cp)

	step := ph.Step() * size
	em.Disp = int32(ph.Offset * size)

	switch {
	case ph.Masked != 0:
		err = em.Body(ph.Gen, 1, ph.Masked)
	case ph.Loop():
		end := int64(ph.Repeat) * int64(step)
		if int64(ph.Offset*size)+end > 1<<31-1 {
			return errors.New("tensor too big: %d bytes", end)
		}

		l := em.Prog.NewLabel()
		em.Ofs = ofs

		em.Emit("xor", ofs, ofs)
		em.Prog.Bind(l)

		err = em.Body(ph.Gen, ph.Unroll, 0)
		if err != nil {
			return err
		}

		em.Emit("add", ofs, asm.Imm(step))
		em.Emit("cmp", ofs, asm.Imm(end))
		em.Emit("jb", l)
	default:
		for r := 0; r < ph.Repeat && err == nil; r++ {
			err = em.Body(ph.Gen, ph.Unroll, 0)
			em.Disp += int32(step)
		}
	}

	if err != nil {
		return err
	}

	if pool.Overflow() {
		return errors.New("%v: register overflow", ph.Gen.Name())
	}

	return nil
}
