package params

// Knees holds the compression knee points of the pole nonlinearity for one
// compression slope.
type Knees struct {
	Yknee1, Vknee1 float64 // onset of compression, displacement and velocity
	Yknee2, Vknee2 float64 // end of compression
	EndLevel       float64 // dB SPL at which the pole reaches its maximum
}

var compressionKnees = map[float64]Knees{
	0.2: {Yknee1: 6.9183e-10, Vknee1: 4.3652e-6, Yknee2: 3.228e-9, Vknee2: 2.037e-5, EndLevel: 80.59},
	0.3: {Yknee1: 6.9183e-10, Vknee1: 4.3652e-6, Yknee2: 7.015e-9, Vknee2: 4.426e-5, EndLevel: 87.77},
	0.4: {Yknee1: 6.9183e-10, Vknee1: 4.3652e-6, Yknee2: 1.5488e-8, Vknee2: 9.7836e-5, EndLevel: 97.4},
	0.5: {Yknee1: 6.9183e-10, Vknee1: 4.3652e-6, Yknee2: 1.766e-8, Vknee2: 1.114e-4, EndLevel: 97.82},
}

// CompressionKnees returns the knee points for slope, falling back to the
// default slope when it is not tabulated.
func CompressionKnees(slope float64) Knees {
	if k, ok := compressionKnees[slope]; ok {
		return k
	}
	return compressionKnees[DefaultCompressionSlope]
}

// MaxPole returns the saturated pole for a starting pole: the pole rises
// linearly from 0.06 at 30 dB to 0.7 at the knee's end level.
func (k Knees) MaxPole(start float64) float64 {
	ax := (0.7 - 0.06) / (k.EndLevel - 30)
	bx := start - ax*30
	return ax*k.EndLevel + bx
}
