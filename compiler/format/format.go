package format

import (
	"context"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"

	"github.com/ringgaard/sling-sub003/compiler/asm"
)

// Program renders p as Intel syntax assembly.
func Program(ctx context.Context, b []byte, p *asm.Program) (_ []byte, err error) {
	b = append(b, "\t.text\n"...)

	for i, in := range p.Code {
		b, err = formatInstr(b, in)
		if err != nil {
			return nil, errors.Wrap(err, "instr %d", i)
		}
	}

	if len(p.Data) == 0 {
		return b, nil
	}

	b = append(b, "\n\t.data\n"...)

	for _, d := range p.Data {
		b = formatDatum(b, d)
	}

	return b, nil
}

func formatInstr(b []byte, in asm.Instr) (_ []byte, err error) {
	if in.Label != asm.NoLabel {
		return hfmt.Appendf(b, "L%d:\n", in.Label), nil
	}

	if in.Op == "" {
		return app(b, 1, "// %s\n", in.Comment), nil
	}

	b = app(b, 1, "%s", in.Op)

	for i, a := range in.Args {
		if i == 0 {
			b = append(b, '\t')
		} else {
			b = append(b, ", "...)
		}

		b, err = Operand(b, a)
		if err != nil {
			return nil, errors.Wrap(err, "%v arg %d", in.Op, i)
		}
	}

	if in.Comment != "" {
		b = hfmt.Appendf(b, "\t// %s", in.Comment)
	}

	b = append(b, '\n')

	return b, nil
}

// Operand appends a single operand.
func Operand(b []byte, x asm.Operand) (_ []byte, err error) {
	switch x := x.(type) {
	case asm.Reg:
		if !x.Valid() {
			return nil, errors.New("invalid register")
		}

		b = append(b, x.String()...)
	case asm.Imm:
		b = hfmt.Appendf(b, "%d", int64(x))
	case asm.Label:
		b = hfmt.Appendf(b, "L%d", int(x))
	case asm.Const:
		b = appendPtr(b, int(x.Size))
		b = hfmt.Appendf(b, "[rip+L%d]", int(x.Label))
	case asm.Mem:
		b = appendPtr(b, int(x.Size))
		b = append(b, '[')
		b = append(b, x.Base.String()...)

		if x.Index.Valid() {
			b = append(b, '+')
			b = append(b, x.Index.String()...)

			if x.Scale > 1 {
				b = hfmt.Appendf(b, "*%d", x.Scale)
			}
		}

		if x.Disp != 0 {
			b = hfmt.Appendf(b, "%+d", x.Disp)
		}

		b = append(b, ']')
	case asm.Masked:
		b, err = Operand(b, x.X)
		if err != nil {
			return nil, err
		}

		b = hfmt.Appendf(b, "{%s}", x.K.String())

		if x.Zero {
			b = append(b, "{z}"...)
		}
	default:
		return nil, errors.New("unsupported operand: %T", x)
	}

	return b, nil
}

func formatDatum(b []byte, d asm.Datum) []byte {
	b = app(b, 1, ".align %d\n", d.Align)
	b = hfmt.Appendf(b, "L%d:\n", d.Label)

	dir := map[int]string{1: ".byte", 2: ".short", 4: ".long", 8: ".quad"}[d.Elem]
	if dir == "" {
		dir, d.Elem = ".byte", 1
	}

	const perLine = 16

	for i := 0; i < len(d.Bytes); i += perLine {
		end := min(i+perLine, len(d.Bytes))

		b = app(b, 1, "%s\t", dir)

		for j := i; j < end; j += d.Elem {
			if j != i {
				b = append(b, ", "...)
			}

			var x uint64
			for k := d.Elem - 1; k >= 0; k-- {
				x = x<<8 | uint64(d.Bytes[j+k])
			}

			b = hfmt.Appendf(b, hexFormat[d.Elem], x)
		}

		b = append(b, '\n')
	}

	return b
}

var hexFormat = map[int]string{
	1: "0x%02x",
	2: "0x%04x",
	4: "0x%08x",
	8: "0x%016x",
}

func appendPtr(b []byte, size int) []byte {
	switch size {
	case 1:
		return append(b, "byte ptr "...)
	case 2:
		return append(b, "word ptr "...)
	case 4:
		return append(b, "dword ptr "...)
	case 8:
		return append(b, "qword ptr "...)
	case 16:
		return append(b, "xmmword ptr "...)
	case 32:
		return append(b, "ymmword ptr "...)
	case 64:
		return append(b, "zmmword ptr "...)
	}

	return b
}

func app(b []byte, d int, f string, args ...any) []byte {
	const tabs = "\t\t\t\t\t\t\t\t"
	b = append(b, tabs[:d]...)
	b = hfmt.Appendf(b, f, args...)
	return b
}
