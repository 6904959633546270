package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Money represents a monetary amount in atomic units for a specific asset.
// All arithmetic is performed on int64 to avoid floating-point precision issues.
//
// Examples:
//   - 1.5 USDC    = Money{Asset: USDC, Atomic: 1500000}   // 1.5 × 10^6
//   - 0.5 SOL     = Money{Asset: SOL, Atomic: 500000000}  // 0.5 × 10^9
type Money struct {
	Asset  Asset // The currency/token
	Atomic int64 // Amount in smallest unit (micro-USDC, lamports, etc.)
}

var (
	// ErrOverflow occurs when an operation would exceed int64 capacity.
	ErrOverflow = errors.New("money: arithmetic overflow")

	// ErrInvalidFormat occurs when parsing fails.
	ErrInvalidFormat = errors.New("money: invalid format")
)

// Zero returns a zero amount for the given asset.
func Zero(asset Asset) Money {
	return Money{Asset: asset, Atomic: 0}
}

// New creates a Money from atomic units.
func New(asset Asset, atomic int64) Money {
	return Money{Asset: asset, Atomic: atomic}
}

// FromMajor creates Money from a major unit string (e.g., "10.50").
// Uses half-up rounding for fractional atomic units.
//
// Examples:
//   - FromMajor(USDC, "1.5")   → 1500000 micro-USDC
//   - FromMajor(SOL, "0.5")    → 500000000 lamports
func FromMajor(asset Asset, major string) (Money, error) {
	parts := strings.Split(major, ".")
	if len(parts) > 2 {
		return Money{}, fmt.Errorf("%w: too many decimal points", ErrInvalidFormat)
	}

	integerPart := parts[0]
	fractionalPart := ""
	if len(parts) == 2 {
		fractionalPart = parts[1]
	}

	integerVal, err := strconv.ParseInt(integerPart, 10, 64)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	var atomicFromFraction int64
	if fractionalPart != "" {
		if len(fractionalPart) > int(asset.Decimals) {
			// Truncate and round (half-up)
			roundDigit := fractionalPart[asset.Decimals] - '0'
			fractionalPart = fractionalPart[:asset.Decimals]

			parsed, _ := strconv.ParseInt(fractionalPart, 10, 64)
			atomicFromFraction = parsed

			if roundDigit >= 5 {
				atomicFromFraction++
			}
		} else {
			for len(fractionalPart) < int(asset.Decimals) {
				fractionalPart += "0"
			}
			atomicFromFraction, _ = strconv.ParseInt(fractionalPart, 10, 64)
		}
	}

	multiplier := int64(math.Pow10(int(asset.Decimals)))

	if integerVal > 0 && multiplier > math.MaxInt64/integerVal {
		return Money{}, ErrOverflow
	}
	if integerVal < 0 && multiplier > math.MaxInt64/(-integerVal) {
		return Money{}, ErrOverflow
	}

	atomicFromInteger := integerVal * multiplier

	if integerVal < 0 {
		atomicFromFraction = -atomicFromFraction
	}

	return Money{Asset: asset, Atomic: atomicFromInteger + atomicFromFraction}, nil
}

// FromAtomic creates Money from an atomic units string.
//
// Example:
//   - FromAtomic(USDC, "1500000")  → 1.5 USDC
func FromAtomic(asset Asset, atomic string) (Money, error) {
	value, err := strconv.ParseInt(atomic, 10, 64)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return Money{Asset: asset, Atomic: value}, nil
}

// ToMajor converts Money to major unit string with proper decimal places.
//
// Examples:
//   - Money{USDC, 1500000}.ToMajor()  → "1.500000"
func (m Money) ToMajor() string {
	if m.Atomic == 0 {
		if m.Asset.Decimals == 0 {
			return "0"
		}
		return "0." + strings.Repeat("0", int(m.Asset.Decimals))
	}

	divisor := int64(math.Pow10(int(m.Asset.Decimals)))
	integerPart := m.Atomic / divisor
	fractionalPart := m.Atomic % divisor

	if fractionalPart < 0 {
		fractionalPart = -fractionalPart
	}

	if m.Asset.Decimals == 0 {
		return strconv.FormatInt(integerPart, 10)
	}

	var buf strings.Builder
	buf.WriteString(strconv.FormatInt(integerPart, 10))
	buf.WriteByte('.')

	fractionalStr := strconv.FormatInt(fractionalPart, 10)
	leadingZeros := int(m.Asset.Decimals) - len(fractionalStr)
	for i := 0; i < leadingZeros; i++ {
		buf.WriteByte('0')
	}
	buf.WriteString(fractionalStr)

	return buf.String()
}

// ToAtomic returns the atomic units as a string.
func (m Money) ToAtomic() string {
	return strconv.FormatInt(m.Atomic, 10)
}

// Equal returns true if m == other (same asset and amount).
func (m Money) Equal(other Money) bool {
	return m.Asset.Code == other.Asset.Code && m.Atomic == other.Atomic
}

// String returns a human-readable representation.
// Example: Money{USDC, 1500000} → "1.500000 USDC"
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.ToMajor(), m.Asset.Code)
}
