// Package simd splits an element range into phases,
// each run by one generator of a cascade.
package simd

import (
	"tlog.app/go/errors"
	"tlog.app/go/tlog/tlwire"
)

type (
	// Vector is what the planner needs to know about a generator.
	Vector interface {
		VectorWidth() int
		SupportsMasking() bool
	}

	// Phase covers Elements() elements starting at Offset.
	// A masked phase runs once and handles Masked lanes of a single vector.
	Phase[G Vector] struct {
		Gen    G
		Unroll int
		Repeat int
		Offset int
		Masked int
	}
)

// Plan tiles [0, n) with phases. The first generator of the cascade
// runs the bulk loop with up to maxUnroll vectors per iteration, the
// rest, narrower ones, mop up what remains. Masking is used for a
// remainder narrower than the generator supporting it.
func Plan[G Vector](cascade []G, n, maxUnroll int) (ph []Phase[G], err error) {
	if len(cascade) == 0 {
		return nil, errors.New("empty generator cascade")
	}

	if n < 0 {
		return nil, errors.New("negative element count: %d", n)
	}

	if maxUnroll < 1 {
		maxUnroll = 1
	}

	for i, g := range cascade {
		if g.VectorWidth() < 1 {
			return nil, errors.New("generator %d: bad vector width %d", i, g.VectorWidth())
		}
	}

	ofs := 0
	main := cascade[0]

	if w := main.VectorWidth(); n >= w {
		u := min(n/w, maxUnroll)
		r := n / (w * u)

		ph = append(ph, Phase[G]{Gen: main, Unroll: u, Repeat: r, Offset: ofs})
		ofs += w * u * r
	}

	for _, g := range cascade {
		w := g.VectorWidth()

		for n-ofs >= w {
			k := (n - ofs) / w
			u := min(k, maxUnroll)
			r := k / u

			ph = append(ph, Phase[G]{Gen: g, Unroll: u, Repeat: r, Offset: ofs})
			ofs += w * u * r
		}

		if left := n - ofs; left > 0 && g.SupportsMasking() {
			ph = append(ph, Phase[G]{Gen: g, Unroll: 1, Repeat: 1, Offset: ofs, Masked: left})
			ofs = n
		}

		if ofs == n {
			break
		}
	}

	if ofs != n {
		return ph, errors.New("can't cover %d trailing elements of %d: no narrow or masking generator", n-ofs, n)
	}

	return ph, nil
}

// Elements is the number of elements the phase handles.
func (p Phase[G]) Elements() int {
	if p.Masked != 0 {
		return p.Masked
	}

	return p.Gen.VectorWidth() * p.Unroll * p.Repeat
}

// Step is the number of elements one iteration handles.
func (p Phase[G]) Step() int {
	return p.Gen.VectorWidth() * p.Unroll
}

// Loop reports whether the phase needs a loop.
func (p Phase[G]) Loop() bool {
	return p.Masked == 0 && p.Repeat > 1
}

// Covers checks phases tile [0, n) exactly, in order.
func Covers[G Vector](ph []Phase[G], n int) error {
	ofs := 0

	for i, p := range ph {
		if p.Offset != ofs {
			return errors.New("phase %d: offset %d, expected %d", i, p.Offset, ofs)
		}

		if p.Elements() <= 0 {
			return errors.New("phase %d: empty", i)
		}

		if p.Masked >= p.Gen.VectorWidth() {
			return errors.New("phase %d: masked %d lanes of %d", i, p.Masked, p.Gen.VectorWidth())
		}

		ofs += p.Elements()
	}

	if ofs != n {
		return errors.New("phases cover %d of %d", ofs, n)
	}

	return nil
}

func (p Phase[G]) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 6)
	b = e.AppendKeyInt(b, "width", p.Gen.VectorWidth())
	b = e.AppendKeyInt(b, "unroll", p.Unroll)
	b = e.AppendKeyInt(b, "repeat", p.Repeat)
	b = e.AppendKeyInt(b, "offset", p.Offset)
	b = e.AppendKeyInt(b, "masked", p.Masked)
	b = e.AppendKeyInt(b, "elements", p.Elements())

	return b
}
