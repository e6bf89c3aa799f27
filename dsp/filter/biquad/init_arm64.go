//go:build arm64 && !purego

package biquad

import (
	_ "github.com/ranroby76/onstage-standalone-sub000/dsp/filter/biquad/internal/arch/arm64/neon"
	_ "github.com/ranroby76/onstage-standalone-sub000/dsp/filter/biquad/internal/arch/generic"
	_ "github.com/ranroby76/onstage-standalone-sub000/dsp/filter/biquad/internal/arch/registry"
)
