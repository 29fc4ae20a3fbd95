package nobg

import (
	"strconv"
)

// RGB defines structure of Color. Memory representation is 0x00RRGGBB.
type RGB uint32

// String returns string representation of color like #RRGGBB.
func (rgb RGB) String() string {
	rgb = (rgb & 0x00FFFFFF) | 0x0F000000
	buf := make([]byte, 0, 8)
	buf = strconv.AppendUint(buf, uint64(rgb), 16)
	buf[0] = '#'
	return string(buf)
}

// ToRGB converts separate 8 bit R, G, B components into RGB type.
func ToRGB(r, g, b uint32) RGB {
	return RGB((r&0x00FF)<<16 | (g&0x00FF)<<8 | (b & 0x00FF))
}

// Components returns 8 bit R, G, B components.
func (rgb RGB) Components() (r, g, b uint8) {
	return uint8(rgb >> 16), uint8(rgb >> 8), uint8(rgb)
}

// distance returns the largest per-channel difference between two colors.
func distance(a, b RGB) uint8 {
	ar, ag, ab := a.Components()
	br, bg, bb := b.Components()
	return maxu8(absdiff(ar, br), absdiff(ag, bg), absdiff(ab, bb))
}

func absdiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

func maxu8(v ...uint8) uint8 {
	var m uint8
	for _, x := range v {
		if x > m {
			m = x
		}
	}
	return m
}
