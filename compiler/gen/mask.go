package gen

import (
	"github.com/ringgaard/sling-sub003/compiler/asm"
	"tlog.app/go/errors"
)

// loadMask prepares the mask enabling the first lanes elements.
// AVX-512 generators use an opmask register, AVX ones a vector of
// all-ones and zero elements.
func (em *Emitter) loadMask(lanes int) error {
	k := em.g.Kind()
	w := em.g.VectorWidth()

	if lanes <= 0 || lanes >= w {
		return errors.New("%d lanes of %d", lanes, w)
	}

	if k == VectorFltAVX512 || k == VectorIntAVX512 {
		em.mask = em.alloc(maskK)

		bits := uint64(1)<<lanes - 1
		r := em.scratchGP()

		switch {
		case w <= 16:
			em.Emit("mov", r.As(4), asm.Imm(bits))
			em.Emit("kmovw", em.mask, r.As(4))
		case w <= 32:
			em.Emit("mov", r.As(4), asm.Imm(bits))
			em.Emit("kmovd", em.mask, r.As(4))
		default:
			em.Emit("mov", r, asm.Imm(bits))
			em.Emit("kmovq", em.mask, r)
		}

		em.releaseTemps()

		return nil
	}

	t := em.g.Type()
	if t.Size() < 4 {
		return errors.New("%v: no masked moves for %v", em.g.Name(), t)
	}

	pat := make([]uint64, w)
	for i := 0; i < lanes; i++ {
		pat[i] = ^uint64(0)
	}

	c := em.Prog.Pattern(t, pat)
	c.Size = int8(em.g.bytes())

	em.mask = em.alloc(auxVec)

	em.Emit("vmovdqu", em.mask, c)

	return nil
}

func (em *Emitter) maskedLoad(dst asm.Reg, src asm.Mem) {
	if em.mask.Class == asm.K {
		em.Emit(em.maskedMov(), asm.Masked{X: dst, K: em.mask, Zero: true}, src)
		return
	}

	em.Emit(em.maskMove(), dst, em.mask, src)
}

func (em *Emitter) maskedStore(dst asm.Mem, src asm.Reg) {
	if em.mask.Class == asm.K {
		em.Emit(em.maskedMov(), asm.Masked{X: dst, K: em.mask}, src)
		return
	}

	em.Emit(em.maskMove(), dst, em.mask, src)
}

// maskedMov is the AVX-512 move taking an opmask.
func (em *Emitter) maskedMov() string {
	t := em.g.Type()

	if t.IsFloat() {
		return "vmovu" + floatSuffix(t, false)
	}

	return "vmovdqu" + itoa(t.Bits())
}

// maskMove is the AVX move taking a vector mask.
func (em *Emitter) maskMove() string {
	t := em.g.Type()

	if t.IsFloat() {
		return "vmaskmov" + floatSuffix(t, false)
	}

	if t.Size() == 8 {
		return "vpmaskmovq"
	}

	return "vpmaskmovd"
}
