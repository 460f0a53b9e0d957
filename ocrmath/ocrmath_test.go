package ocrmath

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"

	"github.com/tamperlens/tamperlens/ocr"
)

type fakeEngine struct {
	text  string
	err   error
	avail ocr.Availability
}

func (f fakeEngine) Name() string { return "fake" }

func (f fakeEngine) Recognize(_ context.Context, in ocr.Input) (ocr.Result, error) {
	if f.err != nil {
		return ocr.Result{}, f.err
	}
	return ocr.Result{InputID: in.ID, PlainText: f.text}, nil
}

func (f fakeEngine) Availability() ocr.Availability { return f.avail }

func available() ocr.Availability {
	return ocr.Availability{Available: true, Version: "5.0.0"}
}

func testImage() image.Image {
	return image.NewGray(image.Rect(0, 0, 8, 8))
}

func TestValidateConsistentInvoice(t *testing.T) {
	engine := fakeEngine{
		text:  "Item A $50.00\nItem B $50.00\nTOTAL $100.00",
		avail: available(),
	}
	res := NewValidator(WithEngine(engine)).Validate(context.Background(), testImage())

	if res.Error != nil {
		t.Fatalf("unexpected error: %v", *res.Error)
	}
	if len(res.Amounts) != 3 {
		t.Fatalf("parsed %d amounts, want 3: %+v", len(res.Amounts), res.Amounts)
	}
	// Duplicates add 20; the line items match the total so no mismatch flag.
	if res.Score != 20 {
		t.Fatalf("score = %v, want 20", res.Score)
	}
	for _, flag := range res.Flags {
		if strings.Contains(flag, "do not sum") {
			t.Fatalf("unexpected sum-mismatch flag: %v", res.Flags)
		}
	}
	if res.Verdict != "LOW OCR RISK" {
		t.Fatalf("verdict = %q", res.Verdict)
	}
}

func TestValidateSumMismatch(t *testing.T) {
	engine := fakeEngine{
		text:  "Item A $40.00\nItem B $40.00\nTOTAL $100.00",
		avail: available(),
	}
	res := NewValidator(WithEngine(engine)).Validate(context.Background(), testImage())

	// |80-100|/100 = 0.20 > 0.15: +35; duplicate 40.00: +20.
	if res.Score != 55 {
		t.Fatalf("score = %v, want 55", res.Score)
	}
	found := false
	for _, flag := range res.Flags {
		if strings.Contains(flag, "do not sum") {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing sum-mismatch flag: %v", res.Flags)
	}
	if res.Verdict != "MEDIUM OCR RISK" {
		t.Fatalf("verdict = %q", res.Verdict)
	}
}

func TestValidateTooFewAmounts(t *testing.T) {
	engine := fakeEngine{text: "no currency here", avail: available()}
	res := NewValidator(WithEngine(engine)).Validate(context.Background(), testImage())
	if res.Score != 40 {
		t.Fatalf("score = %v, want 40", res.Score)
	}
	if !strings.Contains(res.Flags[0], "Too few amounts") {
		t.Fatalf("flag = %q", res.Flags[0])
	}
	if res.Verdict != "MEDIUM OCR RISK" {
		t.Fatalf("verdict = %q", res.Verdict)
	}
}

func TestValidateEngineUnavailable(t *testing.T) {
	engine := fakeEngine{avail: ocr.Availability{Available: false, Reason: "libtesseract missing"}}
	res := NewValidator(WithEngine(engine)).Validate(context.Background(), testImage())
	if res.Score != 40 {
		t.Fatalf("score = %v, want 40", res.Score)
	}
	if res.Verdict != "INCONCLUSIVE - Tesseract not installed" {
		t.Fatalf("verdict = %q", res.Verdict)
	}
	if res.Error == nil || *res.Error != "libtesseract missing" {
		t.Fatalf("error = %+v", res.Error)
	}
}

func TestValidateExtractionFailure(t *testing.T) {
	engine := fakeEngine{err: errors.New("segfault adjacent"), avail: available()}
	res := NewValidator(WithEngine(engine)).Validate(context.Background(), testImage())
	if res.Score != 40 {
		t.Fatalf("score = %v, want 40", res.Score)
	}
	if res.Verdict != "INCONCLUSIVE - OCR extraction failed" {
		t.Fatalf("verdict = %q", res.Verdict)
	}
	if res.Error == nil {
		t.Fatalf("expected error message")
	}
}

func TestValidateTruncatesText(t *testing.T) {
	engine := fakeEngine{
		text:  strings.Repeat("x", 600) + "\x00tail",
		avail: available(),
	}
	res := NewValidator(WithEngine(engine)).Validate(context.Background(), testImage())
	if len([]rune(res.ExtractedText)) != maxTextChars {
		t.Fatalf("text length = %d, want %d", len([]rune(res.ExtractedText)), maxTextChars)
	}
	if strings.Contains(res.ExtractedText, "\x00") {
		t.Fatalf("null bytes not stripped")
	}
}

func TestValidateCustomTolerance(t *testing.T) {
	// Same amounts, looser tolerance: ratio 0.20 <= 0.25 means no mismatch.
	engine := fakeEngine{
		text:  "Item A $40.00\nItem B $40.00\nTOTAL $100.00",
		avail: available(),
	}
	res := NewValidator(WithEngine(engine), WithTolerance(0.25)).Validate(context.Background(), testImage())
	if res.Score != 20 {
		t.Fatalf("score = %v, want 20 (duplicates only)", res.Score)
	}
}

func TestScoreConsistencyEmpty(t *testing.T) {
	score, flags := scoreConsistency(nil, DefaultTolerance)
	if score != 40 || len(flags) != 1 {
		t.Fatalf("empty input: score=%v flags=%v", score, flags)
	}
}

func TestDuplicateValuesSortedFormatted(t *testing.T) {
	dups := duplicateValues([]float64{100.0, 12.5, 12.5, 3.004, 3.0, 100.0})
	want := []string{"3.00", "12.50", "100.00"}
	if len(dups) != len(want) {
		t.Fatalf("dups = %v, want %v", dups, want)
	}
	for i := range want {
		if dups[i] != want[i] {
			t.Fatalf("dups = %v, want %v", dups, want)
		}
	}
}

func TestSumMismatch(t *testing.T) {
	cases := []struct {
		values []float64
		want   bool
	}{
		{[]float64{100, 50, 50}, false},         // exact
		{[]float64{100, 40, 40}, true},          // ratio 0.20
		{[]float64{100, 90}, false},             // fewer than 3 amounts
		{[]float64{0, 0, 0}, false},             // non-positive total
		{[]float64{100, 44, 44}, false},         // ratio 0.12 within tolerance
	}
	for _, c := range cases {
		if got := sumMismatch(c.values, DefaultTolerance); got != c.want {
			t.Fatalf("sumMismatch(%v) = %v, want %v", c.values, got, c.want)
		}
	}
}
