// Package cpu describes the x86-64 instruction set extensions
// generators may rely on.
//
// Compilation is a pure function of a Features value. Host detection
// lives here too but only command line tools call it.
package cpu

import (
	"math/bits"
	"strings"

	"tlog.app/go/errors"
)

type (
	Feature  uint32
	Features uint32
)

const (
	SSE Feature = 1 << iota
	SSE2
	SSE41
	AVX
	AVX2
	FMA3
	AVX512F
	AVX512BW
	MaskMove

	numFeatures = iota
)

const None Features = 0

var featureNames = [numFeatures]string{
	"sse",
	"sse2",
	"sse41",
	"avx",
	"avx2",
	"fma3",
	"avx512f",
	"avx512bw",
	"maskmove",
}

// All is every known feature. Handy for tests exploring hypothetical targets.
var All = Set(SSE, SSE2, SSE41, AVX, AVX2, FMA3, AVX512F, AVX512BW, MaskMove)

// Haswell is a typical AVX2 machine without AVX-512.
var Haswell = Set(SSE, SSE2, SSE41, AVX, AVX2, FMA3, MaskMove)

// Baseline is what every x86-64 CPU has.
var Baseline = Set(SSE, SSE2)

func Set(f ...Feature) (s Features) {
	for _, f := range f {
		s |= Features(f)
	}

	return s
}

func (s Features) Has(f Feature) bool {
	return s&Features(f) == Features(f)
}

func (s Features) With(f ...Feature) Features {
	return s | Set(f...)
}

func (s Features) Without(f ...Feature) Features {
	return s &^ Set(f...)
}

func (s Features) List() (r []Feature) {
	for x := uint32(s); x != 0; {
		j := bits.TrailingZeros32(x)
		x &^= 1 << j

		r = append(r, Feature(1<<j))
	}

	return r
}

func (s Features) String() string {
	if s == None {
		return "none"
	}

	var b strings.Builder

	for i, f := range s.List() {
		if i != 0 {
			b.WriteByte(',')
		}

		b.WriteString(f.String())
	}

	return b.String()
}

func (f Feature) String() string {
	j := bits.TrailingZeros32(uint32(f))
	if j >= numFeatures || f != 1<<j {
		return "unknown"
	}

	return featureNames[j]
}

// Parse reads a comma separated feature list.
// "fma" is accepted for fma3, "none" and "" give an empty set.
func Parse(s string) (r Features, err error) {
	for _, n := range strings.Split(s, ",") {
		n = strings.ToLower(strings.TrimSpace(n))

		switch n {
		case "", "none":
			continue
		case "fma":
			n = "fma3"
		case "all":
			r |= All
			continue
		}

		f, ok := lookup(n)
		if !ok {
			return None, errors.New("unknown cpu feature: %q", n)
		}

		r |= Features(f)
	}

	return r, nil
}

func lookup(n string) (Feature, bool) {
	for j, name := range featureNames {
		if name == n {
			return Feature(1 << j), true
		}
	}

	return 0, false
}
