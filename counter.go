package scraper

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	// the suffix must not run on into a letter of any script: "12 bình" is not 12 billion
	counterRe   = regexp.MustCompile(`(\d[\d.,]*)\s*(thousand|million|billion|mill|mil|k|m|b|tsd|mio|mrd)?(?:$|[^\p{L}\d])`)
	thousandsRe = regexp.MustCompile(`^\d{1,3}([.,]\d{3})+$`)
)

var counterScale = map[string]float64{
	"":         1,
	"k":        1e3,
	"thousand": 1e3,
	"tsd":      1e3,
	"mil":      1e3, // es/pt thousands
	"m":        1e6,
	"mill":     1e6,
	"million":  1e6,
	"mio":      1e6,
	"b":        1e9,
	"billion":  1e9,
	"mrd":      1e9,
}

// ParseCounter converts an abbreviated engagement counter such as "1.2K" or "3M reactions"
// into an integer. It reports false when no number can be read; callers must then omit
// the value rather than store zero.
func ParseCounter(s string) (int64, bool) {
	m := counterRe.FindStringSubmatch(FoldText(s))
	if m == nil {
		return 0, false
	}
	digits, suffix := strings.TrimRight(m[1], ".,"), m[2]
	if digits == "" {
		return 0, false
	}

	switch {
	case thousandsRe.MatchString(digits) && suffix == "":
		digits = stripchars(digits, ".,")
	case strings.Contains(digits, ".") && strings.Contains(digits, ","):
		// the last separator is the decimal mark
		if strings.LastIndex(digits, ",") > strings.LastIndex(digits, ".") {
			digits = strings.ReplaceAll(stripchars(digits, "."), ",", ".")
		} else {
			digits = stripchars(digits, ",")
		}
	default:
		digits = strings.ReplaceAll(digits, ",", ".")
	}

	f, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, false
	}
	return int64(math.Round(f * counterScale[suffix])), true
}
