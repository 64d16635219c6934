package express

import "github.com/nikandfor/hacked/hfmt"

type parser struct {
	e *Expression
	b string
}

// Parse builds a new expression from recipe text.
func Parse(recipe string) (*Expression, error) {
	e := New()

	err := e.Parse(recipe)
	if err != nil {
		return nil, err
	}

	return e, nil
}

// Parse appends the recipe's operations to e.
// Nested operations get fresh temps, compacted at the end.
func (e *Expression) Parse(recipe string) (err error) {
	p := parser{e: e, b: recipe}

	i := skipSpaces(p.b, 0)

	for i < len(p.b) {
		i, err = p.assignment(i)
		if err != nil {
			return err
		}

		i = skipSpaces(p.b, i)
		if i == len(p.b) {
			break
		}

		if p.b[i] != ';' {
			return p.errorf(i, "';' expected")
		}

		i = skipSpaces(p.b, i+1)
	}

	e.CompactTempVars()

	return nil
}

func (p *parser) assignment(st int) (i int, err error) {
	v, i, err := p.variable(st)
	if err != nil {
		return st, err
	}

	if k := p.e.vars[v].Kind; k != Temp && k != Output {
		return st, p.errorf(st, "assignment to %v", k)
	}

	if p.e.vars[v].Producer != Nil {
		return st, p.errorf(st, "%s assigned twice", p.e.VarName(v))
	}

	i = skipSpaces(p.b, i)
	if i == len(p.b) || p.b[i] != '=' {
		return i, p.errorf(i, "'=' expected")
	}

	return p.expr(skipSpaces(p.b, i+1), v)
}

// expr parses an operation or a bare variable and assigns it to res.
func (p *parser) expr(st int, res VarID) (i int, err error) {
	if st < len(p.b) {
		if _, ok := kindOf(p.b[st]); ok {
			a, i, err := p.operand(st)
			if err != nil {
				return st, err
			}

			o := p.e.Operation(Id)
			p.e.AddArgument(o, a)

			return i, p.assign(st, o, res)
		}
	}

	i = skipIdent(p.b, st)
	if i == st {
		return st, p.errorf(st, "operation expected")
	}

	name := p.b[st:i]

	code, ok := LookupOpcode(name)
	if !ok {
		return st, p.errorf(st, "unknown operation %q", name)
	}

	i = skipSpaces(p.b, i)
	if i == len(p.b) || p.b[i] != '(' {
		return i, p.errorf(i, "'(' expected")
	}

	var args []VarID

	i = skipSpaces(p.b, i+1)

	for i < len(p.b) && p.b[i] != ')' {
		if len(args) != 0 {
			if p.b[i] != ',' {
				return i, p.errorf(i, "',' or ')' expected")
			}

			i = skipSpaces(p.b, i+1)
		}

		var a VarID

		a, i, err = p.argument(i)
		if err != nil {
			return i, err
		}

		args = append(args, a)

		i = skipSpaces(p.b, i)
	}

	if i == len(p.b) {
		return i, p.errorf(i, "')' expected")
	}

	if len(args) != code.Arity() {
		return i, p.errorf(st, "%v takes %d arguments, got %d", code, code.Arity(), len(args))
	}

	o := p.e.Operation(code)

	for _, a := range args {
		p.e.AddArgument(o, a)
	}

	return i + 1, p.assign(st, o, res)
}

func (p *parser) assign(st int, o OpID, res VarID) error {
	err := p.e.Assign(o, res)
	if err != nil {
		return p.errorf(st, "%v", err)
	}

	return nil
}

// argument is either a variable or a nested operation.
func (p *parser) argument(st int) (v VarID, i int, err error) {
	if st < len(p.b) {
		if _, ok := kindOf(p.b[st]); ok {
			return p.operand(st)
		}
	}

	t := p.e.NewTemp()

	i, err = p.expr(st, t)
	if err != nil {
		return Nil, st, err
	}

	return t, i, nil
}

// operand is a variable used as an argument. It must be defined already.
func (p *parser) operand(st int) (v VarID, i int, err error) {
	v, i, err = p.variable(st)
	if err != nil {
		return
	}

	x := &p.e.vars[v]

	if (x.Kind == Temp || x.Kind == Output) && x.Producer == Nil {
		return Nil, st, p.errorf(st, "%s used before definition", p.e.VarName(v))
	}

	return v, i, nil
}

func (p *parser) variable(st int) (v VarID, i int, err error) {
	if st == len(p.b) {
		return Nil, st, p.errorf(st, "variable expected")
	}

	kind, ok := kindOf(p.b[st])
	if !ok {
		return Nil, st, p.errorf(st, "variable expected")
	}

	i = st + 1
	id := 0

	for i < len(p.b) && p.b[i] >= '0' && p.b[i] <= '9' {
		if id > 1<<24 {
			return Nil, st, p.errorf(st, "variable id too big")
		}

		id = id*10 + int(p.b[i]-'0')
		i++
	}

	if i == st+1 {
		return Nil, st, p.errorf(i, "variable id expected")
	}

	if kind == Number && id >= len(Numbers) {
		return Nil, st, p.errorf(st, "unknown number _%d", id)
	}

	return p.e.Variable(kind, id), i, nil
}

func (p *parser) errorf(i int, f string, args ...any) error {
	return GrammarError{
		Msg:      string(hfmt.Appendf(nil, f, args...)),
		Consumed: p.b[:i],
		Rest:     p.b[i:],
	}
}

func skipSpaces(b string, i int) int {
	for i < len(b) {
		switch b[i] {
		case ' ', '\t', '\n', '\r':
			i++
			continue
		}

		break
	}

	return i
}

func skipIdent(b string, st int) int {
	i := st

	for i < len(b) {
		c := b[i]

		if c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || i != st && c >= '0' && c <= '9' {
			i++
			continue
		}

		break
	}

	return i
}
