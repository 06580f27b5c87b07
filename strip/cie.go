package strip

import "math"

// Color values are luminance corrected per CIE 1931 before they go on
// the wire, so perceived brightness tracks the 0..255 input linearly.
// The table holds 16-bit values; luminance scales them down to the
// strip's channel depth.

const cieBits = 16

var cieTable = makeCIETable()

func makeCIETable() [256]int {
	var t [256]int
	out := float64(int(1)<<cieBits - 1)
	for i := range t {
		v := 100.0 * float64(i) / 255.0
		if v <= 8 {
			t[i] = int(out * v / 902.3)
		} else {
			t[i] = int(out * math.Pow((v+16)/116.0, 3))
		}
	}
	return t
}

// luminance returns the corrected value of c scaled to bits output
// bits.
func luminance(bits uint, c uint8) int {
	return cieTable[c] >> (cieBits - bits)
}
