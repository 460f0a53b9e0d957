package ocrmath

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// amountPattern matches currency-like tokens: optional dollar sign, digits
// with optional , or . group separators, and a two-digit decimal tail.
var amountPattern = regexp.MustCompile(`\$?\d+[,.]?\d*\.?\d{2}`)

// parseAmounts finds currency-like tokens in OCR text and normalizes each to
// a numeric value. Tokens that fail to normalize are dropped.
func parseAmounts(text string) []Amount {
	matches := amountPattern.FindAllString(text, -1)
	amounts := make([]Amount, 0, len(matches))
	for _, raw := range matches {
		value, ok := normalizeAmount(raw)
		if !ok {
			continue
		}
		amounts = append(amounts, Amount{Raw: raw, Value: value})
	}
	return amounts
}

// normalizeAmount converts an OCR currency token to a float.
//
// The separator handling is a locale heuristic: when both , and . appear the
// comma is assumed to be a thousands separator; a lone comma is assumed to be
// the decimal separator. A lone comma is genuinely ambiguous across locales;
// the heuristic is kept as-is absent a locale requirement.
func normalizeAmount(raw string) (float64, bool) {
	cleaned := strings.NewReplacer("$", "", " ", "").Replace(raw)
	hasComma := strings.Contains(cleaned, ",")
	hasDot := strings.Contains(cleaned, ".")
	switch {
	case hasComma && hasDot:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case hasComma:
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

func toCents(value float64) int64 {
	return int64(math.Round(value * 100))
}
