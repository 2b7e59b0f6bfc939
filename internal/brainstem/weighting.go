package brainstem

import "math"

// Innervation density along the partition. Apical sections carry fewer
// fibers than mid and basal ones.
const (
	weightFloor = 0.5
	weightMidCF = 500.0 // Hz
	weightSlope = 0.15  // decades
)

// cfWeight returns the relative fiber count innervating a section with
// characteristic frequency cf.
func cfWeight(cf float64) float64 {
	if !(cf > 0) {
		return weightFloor
	}
	x := (math.Log10(cf) - math.Log10(weightMidCF)) / weightSlope
	return weightFloor + (1-weightFloor)/(1+math.Exp(-x))
}
