package express

import (
	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/loc"
)

type (
	// GrammarError reports malformed recipe text.
	// Consumed is the text accepted before the failure, Rest is what remained.
	GrammarError struct {
		Msg      string
		Consumed string
		Rest     string
	}

	// ContractError reports a broken IR invariant: bad variable reference,
	// assignment to an immutable variable, double assignment and alike.
	ContractError struct {
		Msg  string
		Var  VarID
		Op   OpID
		From loc.PC
	}
)

func newContractError(v VarID, o OpID, f string, args ...any) ContractError {
	return ContractError{
		Msg:  string(hfmt.Appendf(nil, f, args...)),
		Var:  v,
		Op:   o,
		From: loc.Caller(1),
	}
}

func (e GrammarError) Error() string {
	return string(hfmt.Appendf(nil, "recipe: %s: %q <- here -> %q", e.Msg, e.Consumed, e.Rest))
}

func (e ContractError) Error() string {
	b := append([]byte("contract violation: "), e.Msg...)

	if e.Var != Nil {
		b = hfmt.Appendf(b, " (var %d)", int(e.Var))
	}

	if e.Op != Nil {
		b = hfmt.Appendf(b, " (op %d)", int(e.Op))
	}

	return string(b)
}
