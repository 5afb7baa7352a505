package plan

import (
	"github.com/dyluth/flexprep/internal/layout"
)

// MinReliableVolume is the smallest volume in µL the low-volume pipette
// dispenses reliably. Component volumes below it cannot be pipetted
// directly and go through the intermediate-dilution scheme instead.
const MinReliableVolume = 0.8

// IsSmall reports whether an original component volume is below the
// reliable minimum. Smallness is always judged on original volumes, never
// on rescaled ones.
func IsSmall(volume float64) bool {
	return volume > 0 && volume < MinReliableVolume
}

// SmallCount returns how many non-NaCl components of the mix are small.
// This count decides the intermediate-vessel strategy: 0 = none, 1 = final
// vessel only, 2+ = small staging vessel plus final vessel.
func SmallCount(mix *layout.Mix) int {
	n := 0
	for _, c := range mix.Plasmids() {
		if IsSmall(c.Volume) {
			n++
		}
	}
	return n
}

// Rescale fixes the mix's scale factor so its below-threshold volumes
// become pipettable, and returns the factor.
//
// With one small volume the factor lifts it exactly to the minimum. With
// several, the factor lifts their COMBINED volume to the minimum, because
// they will be pooled in a staging vessel and transferred together. The
// NaCl volume never participates in choosing the factor, but like every
// component it is multiplied by it, so component ratios are preserved.
func Rescale(mix *layout.Mix) float64 {
	var smallest, sum float64
	count := 0
	for _, c := range mix.Plasmids() {
		if !IsSmall(c.Volume) {
			continue
		}
		if count == 0 || c.Volume < smallest {
			smallest = c.Volume
		}
		sum += c.Volume
		count++
	}

	switch count {
	case 0:
		mix.ScaleFactor = 1
	case 1:
		mix.ScaleFactor = MinReliableVolume / smallest
	default:
		mix.ScaleFactor = MinReliableVolume / sum
	}
	return mix.ScaleFactor
}

// RescaleAll rescales every mix in place and returns the indices of the
// mixes whose factor is not 1, for progress commentary.
func RescaleAll(mixes []layout.Mix) []int {
	var rescaled []int
	for i := range mixes {
		if Rescale(&mixes[i]) != 1 {
			rescaled = append(rescaled, i)
		}
	}
	return rescaled
}
