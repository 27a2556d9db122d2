package pricing

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents an amount in the store currency (INR). Values keep full
// float precision; rounding happens only at presentation and API boundaries.
type Money = float64

// ParsePrice converts the heterogeneous price shapes found in cart and catalog
// payloads into Money. Numbers pass through unchanged, strings are stripped of
// everything except ASCII digits and '.', and anything unparsable yields 0.
func ParsePrice(input any) Money {
	switch v := input.(type) {
	case nil:
		return 0
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return Money(v)
	case int32:
		return Money(v)
	case int64:
		return Money(v)
	case json.Number:
		return parsePriceString(string(v))
	case string:
		return parsePriceString(v)
	case *string:
		if v == nil {
			return 0
		}
		return parsePriceString(*v)
	default:
		return 0
	}
}

func parsePriceString(raw string) Money {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	// Read the longest numeric prefix so "1.299.00" reads as 1.299.
	cleaned := b.String()
	end := 0
	seenDot := false
	for end < len(cleaned) {
		if cleaned[end] == '.' {
			if seenDot {
				break
			}
			seenDot = true
		}
		end++
	}
	prefix := strings.TrimSuffix(cleaned[:end], ".")
	if prefix == "" {
		return 0
	}
	v, err := strconv.ParseFloat(prefix, 64)
	if err != nil {
		return 0
	}
	return finite(v)
}

func finite(v float64) Money {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Round2 rounds half away from zero to two decimals. Only call it when a value
// leaves the engine (JSON responses, order payloads).
func Round2(m Money) float64 {
	return decimal.NewFromFloat(finite(m)).Round(2).InexactFloat64()
}

// MinorUnits converts an amount into paise, rounding to the nearest paisa.
func MinorUnits(m Money) int64 {
	return decimal.NewFromFloat(finite(m)).Round(2).Shift(2).IntPart()
}

func nonNegative(m Money) Money {
	if m < 0 {
		return 0
	}
	return m
}
