// Package tesseract provides the default OCR engine backed by the gosseract
// binding to libtesseract.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/tamperlens/tamperlens/ocr"
)

func init() {
	ocr.SetDefaultEngine(NewEngine())
}

// Engine implements ocr.Engine and ocr.AvailabilityChecker using the
// gosseract client.
type Engine struct {
	clientFactory func() *gosseract.Client
}

// NewEngine constructs a Tesseract-backed OCR engine.
func NewEngine() *Engine {
	return &Engine{clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

// Availability probes the linked Tesseract library. The probe is wrapped in a
// recover guard because a broken installation can fault inside cgo instead of
// returning an error.
func (e *Engine) Availability() (avail ocr.Availability) {
	defer func() {
		if r := recover(); r != nil {
			avail = ocr.Availability{Available: false, Reason: fmt.Sprintf("tesseract probe failed: %v", r)}
		}
	}()
	c := e.clientFactory()
	defer c.Close()
	version := c.Version()
	if version == "" {
		return ocr.Availability{Available: false, Reason: "tesseract reported no version"}
	}
	return ocr.Availability{Available: true, Version: version}
}

// Recognize performs OCR on a single image input.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	select {
	case <-ctx.Done():
		return ocr.Result{}, ctx.Err()
	default:
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(in.Image); err != nil {
		return ocr.Result{}, fmt.Errorf("set image: %w", err)
	}
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return ocr.Result{}, fmt.Errorf("set languages: %w", err)
		}
	}
	if in.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(in.DPI)); err != nil {
			return ocr.Result{}, fmt.Errorf("set dpi: %w", err)
		}
	}
	for k, v := range in.Variables {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return ocr.Result{}, fmt.Errorf("set variable %s: %w", k, err)
		}
	}

	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize text: %w", err)
	}

	words, avgConf := extractWords(c)
	return ocr.Result{
		InputID:    in.ID,
		PlainText:  strings.TrimSpace(text),
		Words:      words,
		Confidence: avgConf,
	}, nil
}

func extractWords(c *gosseract.Client) ([]ocr.Word, float64) {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return nil, 0
	}
	words := make([]ocr.Word, 0, len(boxes))
	var sum float64
	for _, b := range boxes {
		conf := b.Confidence / 100.0
		sum += conf
		words = append(words, ocr.Word{Text: b.Word, Confidence: conf})
	}
	return words, sum / float64(len(words))
}
