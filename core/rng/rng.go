// Package rng implements the deterministic random source handed to
// contracts. It is an ARC4 keystream generator producing doubles in [0,1)
// with 52 bits of entropy, bit-compatible with the widely used "seedrandom"
// generator so that replays on any node yield the same sequence.
package rng

import "unicode/utf16"

const (
	width       = 256
	mask        = width - 1
	chunks      = 6
	startDenom  = float64(1 << 48)
	significant = float64(1 << 52)
	overflow    = float64(1 << 53)
)

// Source is a seeded ARC4 generator. It is not safe for concurrent use.
type Source struct {
	s    [width]int
	i, j int
}

// Seed builds the per-transaction seed.
func Seed(prevBlockID, blockID, txID string) string {
	return prevBlockID + blockID + txID
}

// New returns a generator keyed by seed.
func New(seed string) *Source {
	key := mixKey(seed)
	src := new(Source)
	for i := 0; i < width; i++ {
		src.s[i] = i
	}
	j := 0
	for i := 0; i < width; i++ {
		t := src.s[i]
		j = mask & (j + key[i%len(key)] + t)
		src.s[i] = src.s[j]
		src.s[j] = t
	}
	// Drop the first 256 bytes of keystream.
	src.next(width)
	return src
}

// mixKey spreads the UTF-16 code units of seed over a key of at most 256
// bytes.
func mixKey(seed string) []int {
	units := utf16.Encode([]rune(seed))
	n := len(units)
	if n > width {
		n = width
	}
	if n == 0 {
		return []int{0}
	}
	key := make([]int, n)
	smear := 0
	for j, u := range units {
		smear ^= key[mask&j] * 19
		key[mask&j] = mask & (smear + int(u))
	}
	return key
}

func (src *Source) next(count int) float64 {
	r := 0.0
	i, j, s := src.i, src.j, &src.s
	for ; count > 0; count-- {
		i = mask & (i + 1)
		t := s[i]
		j = mask & (j + t)
		s[i] = s[j]
		s[j] = t
		r = r*width + float64(s[mask&(s[i]+s[j])])
	}
	src.i, src.j = i, j
	return r
}

// Float64 returns the next value in [0,1).
func (src *Source) Float64() float64 {
	n := src.next(chunks)
	d := startDenom
	x := 0.0
	for n < significant {
		n = (n + x) * width
		d *= width
		x = src.next(1)
	}
	for n >= overflow {
		n /= 2
		d /= 2
		x = float64(uint32(x) >> 1)
	}
	return (n + x) / d
}
