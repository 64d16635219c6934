package express

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		In, Out string
	}{
		{In: "@0=Add(%0,%1)"},
		{In: "@0=%1"},
		{In: "$0=Sqrt(%0);@0=Add($0,$0);@1=Max($0,_0)"},
		{In: "@0=Mul(Add(%0,%1),Sub(%0,#0))"},
		{In: "@0=Cond(CmpLt(%0,%1),%0,Neg(%1));@1=Square(@0)"},
		{In: "$0=Add(%0,%1);@0=Mul($0,%2)", Out: "@0=Mul(Add(%0,%1),%2)"},
		{In: " @0 = Add( %0 , %1 ) ; ", Out: "@0=Add(%0,%1)"},
		{In: "@0=Add(Neg(%0),%1);$5=Mul(%0,%1);@1=Add($5,$5)", Out: "@0=Add(Neg(%0),%1);$1=Mul(%0,%1);@1=Add($1,$1)"},
	} {
		t.Run(tc.In, func(t *testing.T) {
			e, err := Parse(tc.In)
			require.NoError(t, err)
			require.NoError(t, e.Validate())

			out := tc.Out
			if out == "" {
				out = tc.In
			}

			assert.Equal(t, out, e.Recipe())

			e2, err := Parse(e.Recipe())
			require.NoError(t, err)
			assert.Equal(t, e.Recipe(), e2.Recipe())
			assert.Equal(t, e.NumOps(), e2.NumOps())

			for k := Kind(0); k < NumKinds; k++ {
				assert.Equal(t, e.NumVars(k), e2.NumVars(k), "kind %v", k)
			}
		})
	}
}

// shape lists each op as its opcode followed by result and argument sigils.
func shape(e *Expression) (r []string) {
	for _, o := range e.Ops() {
		op := e.Op(o)

		s := op.Code.String() + " " + string(e.Kind(op.Result).Sigil())
		for _, a := range op.Args {
			s += string(e.Kind(a).Sigil())
		}

		r = append(r, s)
	}

	return r
}

func TestRoundTripShape(t *testing.T) {
	for _, tc := range []struct {
		In, Out string
	}{
		{In: "$0=Add(%0,%1);@0=$0", Out: "@0=Id(Add(%0,%1))"},
		{In: "$0=Add(%0,%1);@1=Sub(%0,%1);@0=Mul($0,%2)"},
		{In: "$0=Neg(%1);$1=Sqrt(%0);@0=Add($1,$0)", Out: "$0=Neg(%1);@0=Add(Sqrt(%0),$0)"},
		{In: "$0=Neg(%1);@0=Add(Sqrt(%0),$0)"},
		{In: "@0=Mul(Add(%0,%1),Sub(%0,#0))"},
		{In: "$0=Abs(%0);@1=Square(%1);@0=Max(Neg($0),_0)"},
		{In: "@0=Id(Id(%0))"},
	} {
		t.Run(tc.In, func(t *testing.T) {
			e, err := Parse(tc.In)
			require.NoError(t, err)

			out := tc.Out
			if out == "" {
				out = tc.In
			}

			assert.Equal(t, out, e.Recipe())

			e2, err := Parse(e.Recipe())
			require.NoError(t, err)

			assert.Equal(t, shape(e), shape(e2))

			for k := Kind(0); k < NumKinds; k++ {
				assert.Equal(t, e.NumVars(k), e2.NumVars(k), "kind %v", k)
			}
		})
	}
}

func TestParseStructure(t *testing.T) {
	e, err := Parse("@0=Add(%0,%1)")
	require.NoError(t, err)

	ops := e.Ops()
	require.Len(t, ops, 1)

	op := e.Op(ops[0])
	assert.Equal(t, Add, op.Code)
	assert.Equal(t, Output, e.Kind(op.Result))
	assert.Equal(t, ops[0], e.Producer(op.Result))

	for i, a := range op.Args {
		x := e.Var(a)
		assert.Equal(t, Input, x.Kind)
		assert.Equal(t, i, x.ID)
		assert.Equal(t, []OpID{ops[0]}, x.Consumers)
	}

	assert.Equal(t, 2, e.MaxID(Input))
	assert.Equal(t, 1, e.MaxID(Output))
	assert.Equal(t, 0, e.MaxID(Temp))
}

func TestParseNested(t *testing.T) {
	e, err := Parse("@0=Mul(Add(%0,%1),%2)")
	require.NoError(t, err)

	ops := e.Ops()
	require.Len(t, ops, 2)

	add, mul := e.Op(ops[0]), e.Op(ops[1])
	assert.Equal(t, Add, add.Code)
	assert.Equal(t, Mul, mul.Code)
	assert.Equal(t, add.Result, mul.Args[0])
	assert.True(t, e.Inlined(add.Result))
	assert.Equal(t, 0, e.Var(add.Result).ID)
}

func TestDoubleReference(t *testing.T) {
	e, err := Parse("@0=Mul(%0,%0)")
	require.NoError(t, err)

	x := e.Variable(Input, 0)
	assert.Equal(t, 2, e.Consumers(x))

	o := e.Ops()[0]
	e.ReplaceArgument(o, 1, e.Variable(Input, 1))
	assert.Equal(t, 1, e.Consumers(x))
	assert.Equal(t, "@0=Mul(%0,%1)", e.Recipe())
	require.NoError(t, e.Validate())
}

func TestGrammarErrors(t *testing.T) {
	for _, r := range []string{
		"@0=Add(%0)",
		"@0=Foo(%0)",
		"%0=Add(%1,%2)",
		"#0=Neg(%0)",
		"@0=Add($0,%1)",
		"@0=Add(%0,%1",
		"@0 Add(%0,%1)",
		"@0=Add(%0,%1);@0=Sub(%0,%1)",
		"@0=Id(_12)",
		"@0=Add(%0,%1)x",
		"@=Neg(%0)",
		"@0=Add(%0;%1)",
		"@0=",
	} {
		_, err := Parse(r)

		var ge GrammarError
		if assert.ErrorAs(t, err, &ge, "recipe %q", r) {
			assert.Equal(t, r, ge.Consumed+ge.Rest)
		}
	}
}

func TestGrammarErrorPosition(t *testing.T) {
	_, err := Parse("@0=Add($0,%1)")

	var ge GrammarError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "@0=Add(", ge.Consumed)
	assert.Equal(t, "$0,%1)", ge.Rest)
}

func TestErrorText(t *testing.T) {
	g := GrammarError{Msg: "'=' expected", Consumed: "@0", Rest: "Add(%0)"}
	assert.Equal(t, `recipe: '=' expected: "@0" <- here -> "Add(%0)"`, g.Error())

	c := newContractError(3, Nil, "output %d out of range", 5)
	assert.Equal(t, "contract violation: output 5 out of range (var 3)", c.Error())

	c = newContractError(Nil, 2, "no result")
	assert.Equal(t, "contract violation: no result (op 2)", c.Error())
}

func TestAssignContract(t *testing.T) {
	e := New()

	o := e.Operation(Neg)
	e.AddArgument(o, e.Variable(Input, 0))

	var ce ContractError

	err := e.Assign(o, e.Variable(Input, 1))
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, o, ce.Op)

	r := e.Variable(Output, 0)
	require.NoError(t, e.Assign(o, r))

	err = e.Assign(o, e.NewTemp())
	assert.ErrorAs(t, err, &ce)

	o2 := e.Operation(Abs)
	e.AddArgument(o2, e.Variable(Input, 0))

	err = e.Assign(o2, r)
	assert.ErrorAs(t, err, &ce)

	err = e.RemoveVar(r)
	assert.ErrorAs(t, err, &ce)
}

func TestRemove(t *testing.T) {
	e, err := Parse("@0=Add(%0,%1);@1=Neg(%0)")
	require.NoError(t, err)

	o := e.Ops()[1]
	r := e.Op(o).Result

	e.RemoveOp(o)
	require.NoError(t, e.RemoveVar(r))
	require.NoError(t, e.Validate())

	assert.Equal(t, "@0=Add(%0,%1)", e.Recipe())
	assert.Equal(t, 1, e.Consumers(e.Variable(Input, 0)))
}

func TestCSEScenario(t *testing.T) {
	const r = "$0=Add(%0,%1);@0=Mul($0,%2)"

	a, err := Parse(r)
	require.NoError(t, err)

	b, err := Parse(r)
	require.NoError(t, err)

	assert.False(t, a.EliminateCommonSubexpressions())
	assert.False(t, b.EliminateCommonSubexpressions())

	assert.Equal(t, 2, a.NumOps())
	assert.Equal(t, a.NumOps(), b.NumOps())
	assert.Equal(t, a.Recipe(), b.Recipe())
}

func TestCSE(t *testing.T) {
	for _, tc := range []struct {
		In, Out string
	}{
		{"@0=Add(%0,%1);@1=Mul(Add(%0,%1),%2)", "@0=Add(%0,%1);@1=Mul(@0,%2)"},
		{"@0=Mul(Add(%0,%1),%2);@1=Add(%0,%1)", "@1=Add(%0,%1);@0=Mul(@1,%2)"},
		{"@0=Add(%0,%1);@1=Add(%0,%1)", "@0=Add(%0,%1);@1=@0"},
		{"@0=Mul(Add(%0,%1),Add(%0,%1))", "$0=Add(%0,%1);@0=Mul($0,$0)"},
		{"@0=Sub(Mul(Neg(%0),%1),Mul(Neg(%0),%1))", "$0=Mul(Neg(%0),%1);@0=Sub($0,$0)"},
		{"@0=Add(%0,%1);@1=Add(%1,%0)", "@0=Add(%0,%1);@1=Add(%1,%0)"},
	} {
		t.Run(tc.In, func(t *testing.T) {
			e, err := Parse(tc.In)
			require.NoError(t, err)

			before, err := e.Eval([]float64{1.5, -2, 7}, nil)
			require.NoError(t, err)

			changed := e.EliminateCommonSubexpressions()
			assert.Equal(t, tc.In != tc.Out, changed)
			require.NoError(t, e.Validate())
			assert.Equal(t, tc.Out, e.Recipe())

			after, err := e.Eval([]float64{1.5, -2, 7}, nil)
			require.NoError(t, err)
			assert.Equal(t, before, after)

			assert.False(t, e.EliminateCommonSubexpressions(), "idempotent")
		})
	}
}

func TestMergeScenario(t *testing.T) {
	a, err := Parse("@0=Add(%0,%1)")
	require.NoError(t, err)

	b, err := Parse("@0=Add(%0,%1)")
	require.NoError(t, err)

	err = a.Merge(b, map[VarID]VarID{
		b.Variable(Input, 0): a.Variable(Input, 0),
		b.Variable(Input, 1): a.Variable(Input, 1),
	})
	require.NoError(t, err)

	a.EliminateCommonSubexpressions()
	require.NoError(t, a.Validate())

	assert.Equal(t, 1, a.NumOps())
	assert.Equal(t, 1, a.NumVars(Output))
	assert.Equal(t, "@0=Add(%0,%1)", a.Recipe())
	assert.Equal(t, 0, b.NumOps())
}

func TestMergeChain(t *testing.T) {
	a, err := Parse("@0=Mul(%0,%1)")
	require.NoError(t, err)

	b, err := Parse("@0=Add(Neg(%0),%1)")
	require.NoError(t, err)

	err = a.Merge(b, map[VarID]VarID{
		b.Variable(Input, 0):  a.Variable(Output, 0),
		b.Variable(Input, 1):  a.Variable(Input, 2),
		b.Variable(Output, 0): a.Variable(Output, 1),
	})
	require.NoError(t, err)
	require.NoError(t, a.Validate())

	assert.Equal(t, "@0=Mul(%0,%1);@1=Add(Neg(@0),%2)", a.Recipe())

	out, err := a.Eval([]float64{2, 3, 4}, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{6, -2}, out)
}

func TestMergeTemps(t *testing.T) {
	a, err := Parse("$0=Add(%0,%1);@0=Mul($0,$0)")
	require.NoError(t, err)

	b, err := Parse("$0=Sqrt(%0);@1=Sub($0,$0)")
	require.NoError(t, err)

	require.NoError(t, a.Merge(b, nil))
	require.NoError(t, a.Validate())

	assert.Equal(t, "$0=Add(%0,%1);@0=Mul($0,$0);$1=Sqrt(%0);@1=Sub($1,$1)", a.Recipe())
}

func TestMergeConflict(t *testing.T) {
	a, err := Parse("@0=Add(%0,%1)")
	require.NoError(t, err)

	b, err := Parse("@0=Sub(%0,%1)")
	require.NoError(t, err)

	var ce ContractError

	err = a.Merge(b, nil)
	assert.ErrorAs(t, err, &ce)
}

func TestFuseMulAdd(t *testing.T) {
	for _, tc := range []struct {
		In, Out string
		N       int
	}{
		{"@0=Add(Mul(%0,%1),%2)", "@0=MulAdd213(%0,%1,%2)", 1},
		{"@0=Add(%2,Mul(%0,%1))", "@0=MulAdd213(%0,%1,%2)", 1},
		{"$0=Mul(%0,%1);@0=Add($0,%2);@1=Sub($0,%2)", "$0=Mul(%0,%1);@0=Add($0,%2);@1=Sub($0,%2)", 0},
		{"@0=Add(Mul(%0,%1),Mul(%1,%2))", "@0=MulAdd213(%0,%1,Mul(%1,%2))", 1},
	} {
		t.Run(tc.In, func(t *testing.T) {
			e, err := Parse(tc.In)
			require.NoError(t, err)

			before, err := e.Eval([]float64{1.5, -2, 7}, nil)
			require.NoError(t, err)

			assert.Equal(t, tc.N, e.FuseMulAdd())
			require.NoError(t, e.Validate())
			assert.Equal(t, tc.Out, e.Recipe())

			after, err := e.Eval([]float64{1.5, -2, 7}, nil)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestEval(t *testing.T) {
	e, err := Parse("@0=Cond(CmpLt(%0,%1),%0,%1);@1=Select(CmpGt(%0,_0),%0);@2=MulAdd231(#0,%0,%1)")
	require.NoError(t, err)

	out, err := e.Eval([]float64{3, 2}, []float64{10})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3, 16}, out)

	out, err = e.Eval([]float64{-1, 2}, []float64{0})
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 0, -2}, out)

	_, err = e.Eval([]float64{1}, []float64{0})
	var ce ContractError
	assert.ErrorAs(t, err, &ce)
}

func TestClone(t *testing.T) {
	e, err := Parse("@0=Add(Mul(%0,%1),%2)")
	require.NoError(t, err)

	c := e.Clone()
	c.FuseMulAdd()

	assert.Equal(t, "@0=Add(Mul(%0,%1),%2)", e.Recipe())
	assert.Equal(t, "@0=MulAdd213(%0,%1,%2)", c.Recipe())
	require.NoError(t, e.Validate())
}

func TestOpsUsed(t *testing.T) {
	e, err := Parse("@0=Add(Mul(%0,%1),Sqrt(%2))")
	require.NoError(t, err)

	s := e.OpsUsed()
	assert.True(t, s.IsSet(Add))
	assert.True(t, s.IsSet(Mul))
	assert.True(t, s.IsSet(Sqrt))
	assert.False(t, s.IsSet(Sub))
	assert.Equal(t, 3, s.Size())
}
