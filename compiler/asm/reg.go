package asm

import "github.com/nikandfor/hacked/hfmt"

type (
	Class int8

	// Reg is a machine register. Size is in bytes and only matters
	// for general purpose registers, vector width follows the class.
	Reg struct {
		Class Class
		N     int8
		Size  int8
	}
)

const (
	NoClass Class = iota
	GP
	XMM
	YMM
	ZMM
	K
)

// General purpose register numbers.
const (
	RAX = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

var NoReg = Reg{}

var gpNames = [16][4]string{
	{"al", "ax", "eax", "rax"},
	{"cl", "cx", "ecx", "rcx"},
	{"dl", "dx", "edx", "rdx"},
	{"bl", "bx", "ebx", "rbx"},
	{"spl", "sp", "esp", "rsp"},
	{"bpl", "bp", "ebp", "rbp"},
	{"sil", "si", "esi", "rsi"},
	{"dil", "di", "edi", "rdi"},
}

func init() {
	for n := 8; n < 16; n++ {
		gpNames[n] = [4]string{
			string(hfmt.Appendf(nil, "r%db", n)),
			string(hfmt.Appendf(nil, "r%dw", n)),
			string(hfmt.Appendf(nil, "r%dd", n)),
			string(hfmt.Appendf(nil, "r%d", n)),
		}
	}
}

func Q(n int) Reg { return Reg{Class: GP, N: int8(n), Size: 8} }

func X(n int) Reg { return Reg{Class: XMM, N: int8(n)} }
func Y(n int) Reg { return Reg{Class: YMM, N: int8(n)} }
func Z(n int) Reg { return Reg{Class: ZMM, N: int8(n)} }

func Mask(n int) Reg { return Reg{Class: K, N: int8(n)} }

func (r Reg) Valid() bool { return r.Class != NoClass }

// As returns the same general purpose register with a different access size.
func (r Reg) As(size int) Reg {
	r.Size = int8(size)
	return r
}

// View returns the same vector register seen through another class.
func (r Reg) View(c Class) Reg {
	r.Class = c
	return r
}

// Bytes is the register width.
func (r Reg) Bytes() int {
	switch r.Class {
	case GP:
		return int(r.Size)
	case XMM:
		return 16
	case YMM:
		return 32
	case ZMM:
		return 64
	case K:
		return 8
	}

	return 0
}

func (c Class) Bytes() int {
	return Reg{Class: c, Size: 8}.Bytes()
}

func (c Class) Vector() bool {
	return c == XMM || c == YMM || c == ZMM
}

func (c Class) String() string {
	switch c {
	case GP:
		return "gp"
	case XMM:
		return "xmm"
	case YMM:
		return "ymm"
	case ZMM:
		return "zmm"
	case K:
		return "k"
	}

	return "none"
}

func (r Reg) String() string {
	switch r.Class {
	case GP:
		sz := 3
		switch r.Size {
		case 1:
			sz = 0
		case 2:
			sz = 1
		case 4:
			sz = 2
		}

		return gpNames[r.N&15][sz]
	case XMM, YMM, ZMM, K:
		return string(hfmt.Appendf(nil, "%s%d", r.Class.String(), r.N))
	}

	return "noreg"
}
