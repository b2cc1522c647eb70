package id

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
)

var decimalPattern = regexp.MustCompile(`^[0-9]*(\.[0-9]+)?$`)

// ParseUnits converts a decimal string such as "1000.42" into base units.
func ParseUnits(decimal string, decimals int) (*big.Int, error) {
	clean := strings.TrimSpace(decimal)
	if clean == "" || clean == "." || !decimalPattern.MatchString(clean) {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("Invalid amount %q", decimal))
	}
	if decimals < 0 {
		return nil, clierr.New(clierr.CodeUsage, "decimals must be >= 0")
	}
	base, err := decimalToBaseUnits(clean, decimals)
	if err != nil {
		return nil, err
	}
	out, _ := new(big.Int).SetString(base, 10)
	return out, nil
}

// FormatUnits renders base units as a trimmed decimal string.
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	if amount.Sign() < 0 {
		return "-" + formatDecimal(new(big.Int).Neg(amount).String(), decimals)
	}
	return formatDecimal(amount.String(), decimals)
}

// FormatUnitsPrecision renders base units keeping at most precision fractional digits.
func FormatUnitsPrecision(amount *big.Int, decimals, precision int) string {
	full := FormatUnits(amount, decimals)
	dot := strings.IndexByte(full, '.')
	if dot < 0 || len(full)-dot-1 <= precision {
		return full
	}
	if precision <= 0 {
		return full[:dot]
	}
	trimmed := strings.TrimRight(full[:dot+1+precision], "0")
	return strings.TrimSuffix(trimmed, ".")
}

func formatDecimal(baseUnits string, decimals int) string {
	n := new(big.Int)
	n.SetString(baseUnits, 10)
	if decimals == 0 {
		return n.String()
	}

	s := n.String()
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	intPart := s[:len(s)-decimals]
	fracPart := strings.TrimRight(s[len(s)-decimals:], "0")
	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}

func decimalToBaseUnits(decimal string, decimals int) (string, error) {
	parts := strings.SplitN(decimal, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = strings.TrimRight(parts[1], "0")
	}
	if len(fracPart) > decimals {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("Amount precision exceeds token decimals (%d)", decimals))
	}

	fracPart = fracPart + strings.Repeat("0", decimals-len(fracPart))
	combined := strings.TrimLeft(intPart+fracPart, "0")
	if combined == "" {
		return "0", nil
	}
	if _, ok := new(big.Int).SetString(combined, 10); !ok {
		return "", clierr.New(clierr.CodeUsage, "Invalid decimal amount")
	}
	return combined, nil
}
