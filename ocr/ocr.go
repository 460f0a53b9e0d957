// Package ocr defines a small abstraction for plugging OCR engines into the
// invoice analysis pipeline. The interface is transport-agnostic so engines
// can be backed by native libraries (the default Tesseract binding) or remote
// services without leaking provider-specific concerns into callers.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
)

// ImageFormat identifies the content type of an OCR input image.
type ImageFormat string

const (
	ImageFormatPNG  ImageFormat = "image/png"
	ImageFormatJPEG ImageFormat = "image/jpeg"
	ImageFormatTIFF ImageFormat = "image/tiff"
)

// Input encapsulates a single image submitted for OCR.
type Input struct {
	// ID is an optional caller-provided identifier that is echoed back in the
	// corresponding Result.
	ID string
	// Image is the encoded image payload in the format specified by Format.
	Image []byte
	// Format declares the image content type (e.g., image/png).
	Format ImageFormat
	// DPI carries the effective dots-per-inch for the image. Providers such as
	// Tesseract use this for scaling and layout heuristics; zero means unknown.
	DPI int
	// Languages is a list of trained-data hints (e.g., "eng", "deu").
	Languages []string
	// Variables allows callers to pass through engine-specific knobs (e.g.,
	// "tessedit_pageseg_mode" for Tesseract) without hard-coding them into the
	// API surface.
	Variables map[string]string
}

// Word is a single recognized token with its engine confidence in [0,1].
type Word struct {
	Text       string
	Confidence float64
}

// Result captures OCR output for a single input image.
type Result struct {
	// InputID mirrors the Input.ID that produced this result.
	InputID string
	// PlainText contains the linearized text extracted from the image.
	PlainText string
	// Words carries per-token confidences when the engine reports them.
	Words []Word
	// Confidence is the mean word confidence in [0,1]; zero when unknown.
	Confidence float64
}

// Engine is the OCR provider contract: one image in, one result out.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, input Input) (Result, error)
}

// Availability describes whether an engine can actually run on this host.
type Availability struct {
	Available bool
	Version   string
	Reason    string
}

// AvailabilityChecker is implemented by engines that can report host-level
// availability (installed binaries, trained data) before recognition is
// attempted.
type AvailabilityChecker interface {
	Availability() Availability
}

// InputOption mutates an OCR input built by FromImage.
type InputOption func(*Input)

// WithLanguages sets language hints on the OCR input.
func WithLanguages(langs ...string) InputOption {
	return func(in *Input) { in.Languages = append([]string(nil), langs...) }
}

// WithDPI overrides the DPI value on the OCR input.
func WithDPI(dpi int) InputOption {
	return func(in *Input) { in.DPI = dpi }
}

// WithVariables sets provider-specific variables for the input.
func WithVariables(vars map[string]string) InputOption {
	return func(in *Input) {
		if len(vars) == 0 {
			in.Variables = nil
			return
		}
		in.Variables = make(map[string]string, len(vars))
		for k, v := range vars {
			in.Variables[k] = v
		}
	}
}

// WithPageSegMode sets the Tesseract page segmentation mode (PSM) variable.
// See https://tesseract-ocr.github.io/tessdoc/ImproveQuality.html#page-segmentation-method
// for values.
func WithPageSegMode(mode int) InputOption {
	return func(in *Input) {
		if in.Variables == nil {
			in.Variables = make(map[string]string)
		}
		in.Variables["tessedit_pageseg_mode"] = fmt.Sprint(mode)
	}
}

// FromImage converts a decoded raster into an OCR input using PNG encoding.
func FromImage(img image.Image, opts ...InputOption) (Input, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Input{}, fmt.Errorf("encode ocr input: %w", err)
	}
	in := Input{
		Image:  buf.Bytes(),
		Format: ImageFormatPNG,
	}
	for _, opt := range opts {
		opt(&in)
	}
	return in, nil
}
