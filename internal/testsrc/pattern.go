// Package testsrc generates deterministic synthetic media: a moving color
// pattern and a sine tone, packaged as fMP4 sources.
package testsrc

import (
	"github.com/jmylchreest/brickify/internal/frame"
)

// bars are the SMPTE-style colors of the pattern background.
var bars = [...][3]uint8{
	{192, 192, 192},
	{192, 192, 0},
	{0, 192, 192},
	{0, 192, 0},
	{192, 0, 192},
	{192, 0, 0},
	{0, 0, 192},
}

// Pattern paints frame number n of the test pattern into dst: vertical color
// bars with a bright square that moves one block per frame.
func Pattern(dst *frame.Frame, n int) {
	if dst.Validate() != nil {
		return
	}
	w, h := dst.Width, dst.Height
	sq := max(1, min(w, h)/6)
	travel := max(1, w-sq)
	sqX := (n * sq / 2) % travel
	sqY := (h - sq) / 2

	for y := 0; y < h; y++ {
		row := dst.Offset(0, y)
		for x := 0; x < w; x++ {
			c := bars[x*len(bars)/w]
			if x >= sqX && x < sqX+sq && y >= sqY && y < sqY+sq {
				c = [3]uint8{255, 255, 255}
			}
			o := row + x*4
			dst.Data[o], dst.Data[o+1], dst.Data[o+2], dst.Data[o+3] = c[0], c[1], c[2], 255
		}
	}
}
