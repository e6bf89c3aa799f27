//go:build !amd64 && !arm64

package biquad

import (
	_ "github.com/ranroby76/onstage-standalone-sub000/dsp/filter/biquad/internal/arch/generic"
	_ "github.com/ranroby76/onstage-standalone-sub000/dsp/filter/biquad/internal/arch/registry"
)
