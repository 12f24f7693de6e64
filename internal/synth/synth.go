// Package synth draws deterministic face stand-ins for tests. Each identity
// is a diagonal intensity ramp with its own direction; variants of the same
// identity differ in low-amplitude noise and a small phase shift.
package synth

import (
	"image"
	"math/rand/v2"
)

// Slopes gives each test identity a distinct ramp direction. Neighbouring
// pixels always differ by at least 2 so one-level noise never flips a
// local binary pattern bit.
var Slopes = map[string][2]int{
	"alice": {3, 5},
	"bob":   {5, 3},
	"carol": {-3, 5},
	"dave":  {5, -3},
}

// Face renders a size x size sample of identity. variant selects noise and
// phase.
func Face(identity string, variant, size int) *image.Gray {
	s, ok := Slopes[identity]
	if !ok {
		s = [2]int{3, 5}
	}
	rng := rand.New(rand.NewPCG(uint64(variant)+1, uint64(len(identity))))
	phase := variant * 7

	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := (s[0]*x+s[1]*y+phase)%256 + 256
			img.Pix[y*img.Stride+x] = uint8(v%256) + uint8(rng.IntN(2))
		}
	}
	return img
}
