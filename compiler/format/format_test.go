package format

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringgaard/sling-sub003/compiler/asm"
	"github.com/ringgaard/sling-sub003/compiler/tp"
)

func TestProgram(t *testing.T) {
	p := asm.New()

	c, err := p.Broadcast(tp.Float32, 1, 4)
	require.NoError(t, err)

	l := p.NewLabel()

	p.Emit("mov", asm.Q(asm.RSI), asm.Mem{Base: asm.Q(asm.RDI), Disp: 8, Size: 8})
	p.Bind(l)
	p.Emit("vaddps", asm.Y(0), asm.Y(1), asm.Mem{Base: asm.Q(asm.RSI), Index: asm.Q(asm.RCX), Scale: 1, Disp: 32, Size: 32})
	p.Emit("vmulps", asm.Y(0), asm.Y(0), c)
	p.Emit("vmovups", asm.Masked{X: asm.Z(1), K: asm.Mask(1), Zero: true}, asm.Mem{Base: asm.Q(asm.RSI), Size: 64})
	p.Emit("jb", l)
	p.Note("done")

	b, err := Program(context.Background(), nil, p)
	require.NoError(t, err)

	s := string(b)

	assert.Contains(t, s, "\tmov\trsi, qword ptr [rdi+8]\n")
	assert.Contains(t, s, "\tvaddps\tymm0, ymm1, ymmword ptr [rsi+rcx+32]\n")
	assert.Contains(t, s, "\tvmulps\tymm0, ymm0, xmmword ptr [rip+L0]\n")
	assert.Contains(t, s, "zmm1{k1}{z}")
	assert.Contains(t, s, "L1:\n")
	assert.Contains(t, s, "\tjb\tL1\n")
	assert.Contains(t, s, "// done")
	assert.Contains(t, s, ".long\t0x3f800000, 0x3f800000, 0x3f800000, 0x3f800000\n")
}

func TestBadOperand(t *testing.T) {
	p := asm.New()
	p.Emit("mov", asm.NoReg, asm.Imm(1))

	_, err := Program(context.Background(), nil, p)
	assert.Error(t, err)
}
