package cpu

import (
	"sync"

	"github.com/xyproto/env/v2"
	xcpu "golang.org/x/sys/cpu"
	"tlog.app/go/tlog"
)

var host struct {
	once sync.Once
	f    Features
}

// Host returns features of the machine we are running on.
// Detection runs once, the result is read only afterwards.
//
// EXPRC_NOSIMD disables every vector extension.
// EXPRC_FEATURES replaces detection with an explicit list.
func Host() Features {
	host.once.Do(func() {
		host.f = detect()
	})

	return host.f
}

func detect() Features {
	if env.Bool("EXPRC_NOSIMD") {
		tlog.V("cpu").Printw("simd disabled by environment")

		return None
	}

	if s := env.Str("EXPRC_FEATURES"); s != "" {
		f, err := Parse(s)
		if err == nil {
			tlog.V("cpu").Printw("features from environment", "features", f)

			return f
		}

		tlog.Printw("bad EXPRC_FEATURES, detecting", "err", err)
	}

	var f Features

	x := xcpu.X86

	if x.HasSSE2 {
		f |= Set(SSE, SSE2)
	}
	if x.HasSSE41 {
		f |= Set(SSE41)
	}
	if x.HasAVX {
		f |= Set(AVX, MaskMove)
	}
	if x.HasAVX2 {
		f |= Set(AVX2)
	}
	if x.HasFMA {
		f |= Set(FMA3)
	}
	if x.HasAVX512F {
		f |= Set(AVX512F)
	}
	if x.HasAVX512BW {
		f |= Set(AVX512BW)
	}

	tlog.V("cpu").Printw("detected host features", "features", f)

	return f
}
