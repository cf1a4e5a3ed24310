package geo

// DefaultPrecision is the geohash length used for map clustering cells.
// Six characters is roughly a 1.2 km x 0.6 km cell.
const DefaultPrecision = 6

const geohashAlphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// interval is a half-open range narrowed one bit at a time.
type interval struct{ lo, hi float64 }

// bisect halves the interval toward v and reports whether v fell in the upper half.
func (iv *interval) bisect(v float64) bool {
	mid := (iv.lo + iv.hi) / 2
	if v > mid {
		iv.lo = mid
		return true
	}
	iv.hi = mid
	return false
}

// Encode returns the geohash of (lat, lng) with the given number of characters.
// A precision below 1 falls back to DefaultPrecision.
func Encode(lat, lng float64, precision int) string {
	if precision < 1 {
		precision = DefaultPrecision
	}

	lats := interval{-90, 90}
	lngs := interval{-180, 180}
	out := make([]byte, precision)

	// Bits alternate longitude, latitude, starting with longitude; five bits per character.
	bit := 0
	for i := range out {
		var idx byte
		for range 5 {
			var upper bool
			if bit%2 == 0 {
				upper = lngs.bisect(lng)
			} else {
				upper = lats.bisect(lat)
			}
			idx <<= 1
			if upper {
				idx |= 1
			}
			bit++
		}
		out[i] = geohashAlphabet[idx]
	}
	return string(out)
}
