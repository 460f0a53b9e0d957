// Package ocrmath extracts visible text from an invoice image and checks that
// the monetary amounts on it reconcile: enough amounts present, no suspicious
// duplicates, and line items summing to the stated total within a tolerance.
package ocrmath

import (
	"context"
	"fmt"
	"image"
	"sort"
	"strings"

	"github.com/tamperlens/tamperlens/observability"
	"github.com/tamperlens/tamperlens/ocr"
	"github.com/tamperlens/tamperlens/risk"
)

// DefaultTolerance is the maximum allowed relative deviation between the
// stated total and the sum of line items.
const DefaultTolerance = 0.15

// maxTextChars bounds the extracted text echoed back in reports.
const maxTextChars = 500

// Amount is one currency-like token found in the OCR text with its normalized
// numeric value.
type Amount struct {
	Raw   string  `json:"raw"`
	Value float64 `json:"value"`
}

// Result is the self-contained OCR validation report.
type Result struct {
	Score         float64  `json:"score"`
	Verdict       string   `json:"verdict"`
	Flags         []string `json:"flags"`
	ExtractedText string   `json:"extracted_text"`
	Amounts       []Amount `json:"amounts"`
	Error         *string  `json:"error"`
}

// Inconclusive builds the fixed fallback result for a run that could not
// complete. The fallback score is 40.
func Inconclusive(verdict string, flags []string, reason string) Result {
	return Result{
		Score:         40,
		Verdict:       verdict,
		Flags:         flags,
		ExtractedText: "",
		Amounts:       []Amount{},
		Error:         &reason,
	}
}

// Validator runs OCR extraction and arithmetic consistency scoring.
type Validator struct {
	engine    ocr.Engine
	tolerance float64
	log       observability.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithEngine replaces the default OCR engine.
func WithEngine(e ocr.Engine) Option {
	return func(v *Validator) { v.engine = e }
}

// WithTolerance sets the sum-mismatch tolerance ratio.
func WithTolerance(ratio float64) Option {
	return func(v *Validator) {
		if ratio > 0 {
			v.tolerance = ratio
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(log observability.Logger) Option {
	return func(v *Validator) { v.log = log }
}

// NewValidator constructs a Validator using the package default OCR engine
// and tolerance unless overridden.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		engine:    ocr.DefaultEngine(),
		tolerance: DefaultTolerance,
		log:       observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate extracts text from the image and scores arithmetic consistency.
// It never returns an error: preflight or extraction failures yield the fixed
// inconclusive fallback.
func (v *Validator) Validate(ctx context.Context, img image.Image) Result {
	if checker, ok := v.engine.(ocr.AvailabilityChecker); ok {
		if avail := checker.Availability(); !avail.Available {
			reason := avail.Reason
			if reason == "" {
				reason = "Tesseract not found"
			}
			return Inconclusive(
				"INCONCLUSIVE - Tesseract not installed",
				[]string{"Tesseract OCR is not available; install it to enable OCR checks."},
				reason,
			)
		}
	}

	text, err := v.extractText(ctx, img)
	if err != nil {
		return Inconclusive(
			"INCONCLUSIVE - OCR extraction failed",
			[]string{"OCR extraction failed; poor scan quality can trigger this."},
			err.Error(),
		)
	}

	amounts := parseAmounts(text)
	values := make([]float64, len(amounts))
	for i, a := range amounts {
		values[i] = a.Value
	}

	score, flags := scoreConsistency(values, v.tolerance)
	score = risk.Clamp100(score)

	v.log.Debug("ocr validation complete",
		observability.Float64("score", score),
		observability.Int("amounts", len(amounts)))

	return Result{
		Score:         score,
		Verdict:       risk.Verdict(score, "OCR"),
		Flags:         flags,
		ExtractedText: displayText(text),
		Amounts:       amounts,
		Error:         nil,
	}
}

func (v *Validator) extractText(ctx context.Context, img image.Image) (string, error) {
	preprocessed := Preprocess(img)
	input, err := ocr.FromImage(preprocessed)
	if err != nil {
		return "", err
	}
	result, err := v.engine.Recognize(ctx, input)
	if err != nil {
		return "", fmt.Errorf("ocr recognize: %w", err)
	}
	return result.PlainText, nil
}

// scoreConsistency applies the additive arithmetic checks:
//
//	+40 fewer than two amounts parsed
//	+20 duplicate amounts (rounded to cents)
//	+35 line items deviate from the stated total beyond tolerance
func scoreConsistency(values []float64, tolerance float64) (float64, []string) {
	flags := []string{}
	score := 0.0

	if len(values) < 2 {
		score += 40
		flags = append(flags, "Too few amounts detected by OCR (< 2).")
	}

	if dups := duplicateValues(values); len(dups) > 0 {
		score += 20
		flags = append(flags, "Duplicate amounts detected: "+strings.Join(dups, ", "))
	}

	if sumMismatch(values, tolerance) {
		score += 35
		flags = append(flags, "Line items do not sum to the total within the allowed tolerance.")
	}

	return score, flags
}

// duplicateValues reports repeated amounts after rounding to cents, sorted
// ascending and formatted to two decimals.
func duplicateValues(values []float64) []string {
	counts := make(map[int64]int, len(values))
	for _, v := range values {
		counts[toCents(v)]++
	}
	var dups []int64
	for cents, n := range counts {
		if n > 1 {
			dups = append(dups, cents)
		}
	}
	sort.Slice(dups, func(i, j int) bool { return dups[i] < dups[j] })
	out := make([]string, len(dups))
	for i, cents := range dups {
		out[i] = fmt.Sprintf("%.2f", float64(cents)/100)
	}
	return out
}

// sumMismatch treats the largest amount as the claimed total and the rest as
// line items. It needs at least three amounts and a positive total to compute
// a meaningful ratio.
func sumMismatch(values []float64, tolerance float64) bool {
	if len(values) < 3 {
		return false
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	total := sorted[len(sorted)-1]
	if total <= 0 {
		return false
	}
	var lineItems float64
	for _, v := range sorted[:len(sorted)-1] {
		lineItems += v
	}
	ratio := (lineItems - total) / total
	if ratio < 0 {
		ratio = -ratio
	}
	return ratio > tolerance
}

// displayText strips null bytes and caps the echoed text at maxTextChars.
func displayText(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	runes := []rune(text)
	if len(runes) > maxTextChars {
		return string(runes[:maxTextChars])
	}
	return text
}
