package timers

import (
	"math"
	"strconv"
	"strings"
)

const (
	msPerSecond = 1000.0
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute
	msPerDay    = 24 * msPerHour
)

// FormatDuration formats a duration in milliseconds for humans.
//
//	0        -> "0"
//	0.4      -> "400μs"
//	12.3     -> "12ms"
//	1500     -> "1.5s"
//	120000   -> "2m"
func FormatDuration(milliseconds float64) string {
	var n, suffix string

	switch {
	case milliseconds == 0:
		return "0"
	case milliseconds < 1:
		n, suffix = formatNumber(milliseconds*1000, 0), "μs"
	case milliseconds < msPerSecond:
		n, suffix = formatNumber(milliseconds, 0), "ms"
	case milliseconds < msPerMinute:
		n, suffix = formatNumber(milliseconds/msPerSecond, 1), "s"
	case milliseconds < msPerHour:
		n, suffix = formatNumber(milliseconds/msPerMinute, 1), "m"
	case milliseconds < msPerDay:
		n, suffix = formatNumber(milliseconds/msPerHour, 1), "h"
	default:
		n, suffix = formatNumber(milliseconds/msPerDay, 1), "d"
	}

	n = strings.TrimSuffix(n, ".0")
	return n + suffix
}

// formatNumber rounds half away from zero and groups thousands with commas.
func formatNumber(v float64, decimals int) string {
	pow := math.Pow(10, float64(decimals))
	v = math.Round(v*pow) / pow

	s := strconv.FormatFloat(math.Abs(v), 'f', decimals, 64)
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	if v < 0 {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteString(frac)
	return b.String()
}
