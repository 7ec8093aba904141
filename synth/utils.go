package synth

import (
	"math"

	"github.com/cwbudde/algo-approx"
)

func pow2Approx(x float32) float32 {
	const ln2 = 0.69314718055994530942
	return approx.FastExp(x * ln2)
}

func centsToRatio(cents float32) float32 {
	return pow2Approx(cents / 1200.0)
}

func isFinite(x float32) bool {
	return !math.IsNaN(float64(x)) && !math.IsInf(float64(x), 0)
}

func clampf(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func clampi(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

// softLimit applies a bounded saturating nonlinearity. The transfer is
// identity up to the knee, then approaches the ceiling of 1.0 asymptotically,
// so arbitrarily hot input never exceeds the representable range.
func softLimit(v float32) float32 {
	const knee = 0.8
	const slope = 5.0
	if v > knee {
		v = knee + (1.0-knee)*(1.0-1.0/(1.0+(v-knee)*slope))
	} else if v < -knee {
		v = -knee - (1.0-knee)*(1.0-1.0/(1.0+(-v-knee)*slope))
	}
	if v > 1.0 {
		return 1.0
	}
	if v < -1.0 {
		return -1.0
	}
	return v
}

// sanitize maps non-finite samples into the representable range: NaN becomes
// silence, infinities clip to full scale.
func sanitize(v float32) float32 {
	f := float64(v)
	if math.IsNaN(f) {
		return 0
	}
	if math.IsInf(f, 1) {
		return 1.0
	}
	if math.IsInf(f, -1) {
		return -1.0
	}
	return v
}
