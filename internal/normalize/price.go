package normalize

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParsePrice reads a locale formatted market price such as "$12.34",
// "10,50€", "1.234,56 pуб.", "¥ 8.5" or "12,--€". The last separator
// followed by one or two digits is the decimal mark; other separators group
// thousands.
func ParsePrice(s string) (decimal.Decimal, bool) {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			b.WriteRune(r)
		}
	}
	kept := b.String()

	// "12,--€" marks a whole amount.
	wholeOnly := false
	if i := strings.Index(kept, "--"); i > 0 && (kept[i-1] == ',' || kept[i-1] == '.') {
		kept = kept[:i-1]
		wholeOnly = true
	}
	cleaned := strings.Trim(strings.ReplaceAll(kept, "-", ""), ".,")
	if cleaned == "" {
		return decimal.Zero, false
	}

	intPart, fracPart := cleaned, ""
	if i := strings.LastIndexAny(cleaned, ".,"); i >= 0 && !wholeOnly {
		tail := cleaned[i+1:]
		if len(tail) <= 2 || (cleaned[i] == '.' && strings.Count(cleaned, ".") == 1 && !strings.Contains(cleaned, ",")) {
			intPart, fracPart = cleaned[:i], tail
		}
	}
	intPart = strings.NewReplacer(",", "", ".", "").Replace(intPart)
	if intPart == "" {
		intPart = "0"
	}

	num := intPart
	if fracPart != "" {
		num += "." + fracPart
	}
	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseVolume reads an integer count with optional grouping ("1,234").
func ParseVolume(s string) (int64, bool) {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	d, err := decimal.NewFromString(b.String())
	if err != nil {
		return 0, false
	}
	return d.IntPart(), true
}

func pricePtr(s string) *float64 {
	d, ok := ParsePrice(s)
	if !ok {
		return nil
	}
	v := d.InexactFloat64()
	return &v
}
