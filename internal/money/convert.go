package money

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Unit is the amount representation a connector expects on the wire.
// Processors disagree on unit and encoding; every connector declares its own
// and the resolver pairs it with the matching converter.
type Unit string

const (
	UnitMinor       Unit = "minor"        // integer minor units, e.g. 1000 for $10.00
	UnitFloatMajor  Unit = "float_major"  // float major units, e.g. 10.00
	UnitStringMajor Unit = "string_major" // decimal string major units, e.g. "10.00"
	UnitStringMinor Unit = "string_minor" // decimal string minor units, e.g. "1000"
)

// Amount is a converted, connector-ready amount. Exactly one of the value
// fields is meaningful, selected by Unit.
type Amount struct {
	Unit    Unit
	Int64   int64
	Float64 float64
	String  string
}

var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {},
	"KRW": {}, "MGA": {}, "PYG": {}, "RWF": {}, "UGX": {}, "VND": {},
	"VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

var threeDecimalCurrencies = map[string]struct{}{
	"BHD": {}, "IQD": {}, "JOD": {}, "KWD": {}, "LYD": {}, "OMR": {}, "TND": {},
}

// Decimals returns the number of minor-unit digits for an ISO currency code.
func Decimals(currency string) int {
	code := strings.ToUpper(currency)
	if _, ok := zeroDecimalCurrencies[code]; ok {
		return 0
	}
	if _, ok := threeDecimalCurrencies[code]; ok {
		return 3
	}
	return 2
}

// Convert maps an internal minor-unit amount into the given connector unit.
func Convert(minor int64, currency string, unit Unit) (Amount, error) {
	decimals := Decimals(currency)
	switch unit {
	case UnitMinor:
		return Amount{Unit: unit, Int64: minor}, nil
	case UnitStringMinor:
		return Amount{Unit: unit, String: strconv.FormatInt(minor, 10)}, nil
	case UnitFloatMajor:
		return Amount{Unit: unit, Float64: float64(minor) / math.Pow10(decimals)}, nil
	case UnitStringMajor:
		return Amount{Unit: unit, String: formatMajor(minor, decimals)}, nil
	}
	return Amount{}, fmt.Errorf("money: unknown amount unit %q", unit)
}

// Inverse maps a converted amount back to internal minor units. It must be an
// exact inverse of Convert for every supported currency.
func Inverse(a Amount, currency string) (int64, error) {
	decimals := Decimals(currency)
	switch a.Unit {
	case UnitMinor:
		return a.Int64, nil
	case UnitStringMinor:
		minor, err := strconv.ParseInt(a.String, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("money: invalid string minor amount %q: %w", a.String, err)
		}
		return minor, nil
	case UnitFloatMajor:
		return int64(math.Round(a.Float64 * math.Pow10(decimals))), nil
	case UnitStringMajor:
		return parseMajor(a.String, decimals)
	}
	return 0, fmt.Errorf("money: unknown amount unit %q", a.Unit)
}

// formatMajor renders minor units as a fixed-point decimal string without
// going through floating point.
func formatMajor(minor int64, decimals int) string {
	if decimals == 0 {
		return strconv.FormatInt(minor, 10)
	}
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	pow := int64(math.Pow10(decimals))
	whole := minor / pow
	frac := minor % pow
	return fmt.Sprintf("%s%d.%0*d", sign, whole, decimals, frac)
}

func parseMajor(s string, decimals int) (int64, error) {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if len(frac) > decimals {
		return 0, fmt.Errorf("money: amount %q has more than %d decimal places", s, decimals)
	}
	for len(frac) < decimals {
		frac += "0"
	}
	digits := whole + frac
	minor, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("money: invalid major amount %q: %w", s, err)
	}
	if neg {
		minor = -minor
	}
	return minor, nil
}
