/*
Package bitint provides the power-of-two helpers used to size FFT buffers.

All functions are O(1), allocation free and safe to call from the audio path.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size. Powers of two are
// returned unchanged and non-positive sizes map to 1.
//
// Subtracting 1 before taking the bit length keeps exact powers of two in
// place: bits.Len(7) = 3 gives 8, whereas bits.Len(8) = 4 would give 16.
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2.
// A power of two has a single bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
