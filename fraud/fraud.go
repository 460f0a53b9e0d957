// Package fraud combines the three forensic detectors (ELA, capture-metadata
// inspection, OCR arithmetic validation) into one weighted tampering-risk
// report for a single invoice image.
package fraud

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/tamperlens/tamperlens/ela"
	"github.com/tamperlens/tamperlens/exifmeta"
	"github.com/tamperlens/tamperlens/observability"
	"github.com/tamperlens/tamperlens/ocr"
	"github.com/tamperlens/tamperlens/ocrmath"
	"github.com/tamperlens/tamperlens/risk"
)

// Detector weights. ELA carries the most signal; metadata and OCR split the
// remainder evenly.
const (
	weightELA      = 0.4
	weightMetadata = 0.3
	weightOCR      = 0.3
)

// Fallback scores substituted when a detector cannot produce a usable number.
const (
	fallbackELA      = 50.0
	fallbackMetadata = 50.0
	fallbackOCR      = 40.0
)

// Final verdict labels.
const (
	VerdictHigh   = "HIGH RISK - Likely Tampered"
	VerdictMedium = "MEDIUM RISK - Requires Review"
	VerdictLow    = "LOW RISK - Appears Authentic"
)

// DefaultMaxImageWidth bounds detector cost on very large scans.
const DefaultMaxImageWidth = 2000

// Report is the complete three-part analysis result. Created fresh per call
// and never mutated afterwards.
type Report struct {
	FinalScore float64         `json:"final_score"`
	Verdict    string          `json:"verdict"`
	ELA        ela.Result      `json:"ela"`
	Metadata   exifmeta.Result `json:"metadata"`
	OCR        ocrmath.Result  `json:"ocr"`
}

// Config controls scorer construction. Zero values take documented defaults.
type Config struct {
	// ResultsDir receives the ELA visualization PNGs.
	ResultsDir string
	// PublicPrefix, when set, is used instead of ResultsDir in reported
	// visualization paths.
	PublicPrefix string
	// MaxImageWidth triggers aspect-preserving downscaling before analysis;
	// zero means DefaultMaxImageWidth.
	MaxImageWidth int
	// JPEGQuality is the ELA re-encode quality; zero means ela.DefaultQuality.
	JPEGQuality int
	// Tolerance is the OCR sum-mismatch tolerance ratio; zero means
	// ocrmath.DefaultTolerance.
	Tolerance float64
	// OCREngine overrides the default OCR engine.
	OCREngine ocr.Engine
	// MetadataExtractor overrides the default EXIF extractor.
	MetadataExtractor exifmeta.Extractor
	// Logger receives stage diagnostics; nil means silent.
	Logger observability.Logger
}

type elaAnalyzer interface {
	Analyze(img image.Image) ela.Result
}

type metadataInspector interface {
	Inspect(r io.Reader) exifmeta.Result
	InspectFields(fields exifmeta.Fields) exifmeta.Result
}

type ocrValidator interface {
	Validate(ctx context.Context, img image.Image) ocrmath.Result
}

// Scorer fans one decoded invoice image out to the three detectors and
// combines their scores. Scorers are stateless across calls and safe for
// concurrent use.
type Scorer struct {
	cfg      Config
	log      observability.Logger
	ela      elaAnalyzer
	metadata metadataInspector
	ocr      ocrValidator
}

// NewScorer constructs a Scorer with initialized detectors.
func NewScorer(cfg Config) *Scorer {
	if cfg.MaxImageWidth == 0 {
		cfg.MaxImageWidth = DefaultMaxImageWidth
	}
	log := cfg.Logger
	if log == nil {
		log = observability.NopLogger{}
	}

	metaOpts := []exifmeta.Option{exifmeta.WithLogger(log)}
	if cfg.MetadataExtractor != nil {
		metaOpts = append(metaOpts, exifmeta.WithExtractor(cfg.MetadataExtractor))
	}
	ocrOpts := []ocrmath.Option{ocrmath.WithLogger(log)}
	if cfg.Tolerance > 0 {
		ocrOpts = append(ocrOpts, ocrmath.WithTolerance(cfg.Tolerance))
	}
	if cfg.OCREngine != nil {
		ocrOpts = append(ocrOpts, ocrmath.WithEngine(cfg.OCREngine))
	}

	return &Scorer{
		cfg: cfg,
		log: log,
		ela: ela.New(ela.Config{
			ResultsDir:   cfg.ResultsDir,
			PublicPrefix: cfg.PublicPrefix,
			Quality:      cfg.JPEGQuality,
			Logger:       log,
		}),
		metadata: exifmeta.NewInspector(metaOpts...),
		ocr:      ocrmath.NewValidator(ocrOpts...),
	}
}

type analysisConfig struct {
	pdfOrigin      bool
	metadataResult *exifmeta.Result
}

// AnalysisOption adjusts a single analysis call.
type AnalysisOption func(*analysisConfig)

// FromPDF marks the image as a rendered PDF page. Rendered pages carry no
// capture metadata, so metadata inspection is replaced with a fixed result.
func FromPDF() AnalysisOption {
	return func(c *analysisConfig) { c.pdfOrigin = true }
}

// WithMetadataResult substitutes a pre-computed metadata inspection, used
// when the caller extracted EXIF from the encoded bytes before decoding.
func WithMetadataResult(r exifmeta.Result) AnalysisOption {
	return func(c *analysisConfig) { c.metadataResult = &r }
}

// AnalyzeFile reads, decodes and analyzes an invoice image file. Capture
// metadata is extracted from the raw bytes before decoding discards it.
// Unreadable or undecodable input is rejected before any detector runs.
func (s *Scorer) AnalyzeFile(ctx context.Context, path string) (Report, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return Report{}, fmt.Errorf("PDF input must be rasterized before analysis; pass the rendered page with FromPDF")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("read invoice image: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Report{}, fmt.Errorf("decode invoice image: %w", err)
	}

	metaRes := runGuarded(metadataFallback, func() exifmeta.Result {
		return s.metadata.Inspect(bytes.NewReader(data))
	})
	return s.AnalyzeImage(ctx, img, WithMetadataResult(metaRes)), nil
}

// AnalyzeImage runs all three detectors on a decoded image and combines the
// scores. The detectors run concurrently; each is isolated so that a panic in
// one is replaced with its documented fallback payload and never disturbs the
// other two.
func (s *Scorer) AnalyzeImage(ctx context.Context, img image.Image, opts ...AnalysisOption) Report {
	var ac analysisConfig
	for _, opt := range opts {
		opt(&ac)
	}

	analysis := downscale(img, s.cfg.MaxImageWidth)

	var (
		elaRes  ela.Result
		metaRes exifmeta.Result
		ocrRes  ocrmath.Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		elaRes = runGuarded(elaFallback, func() ela.Result {
			return s.ela.Analyze(analysis)
		})
		return nil
	})
	g.Go(func() error {
		metaRes = s.metadataResult(ac)
		return nil
	})
	g.Go(func() error {
		ocrRes = runGuarded(ocrFallback, func() ocrmath.Result {
			return s.ocr.Validate(gctx, analysis)
		})
		return nil
	})
	// Detector goroutines never return errors; failures surface as fallback
	// payloads inside their results.
	_ = g.Wait()

	final := risk.Round2(
		weightELA*scoreOr(elaRes.Score, fallbackELA) +
			weightMetadata*scoreOr(metaRes.Score, fallbackMetadata) +
			weightOCR*scoreOr(ocrRes.Score, fallbackOCR))

	report := Report{
		FinalScore: final,
		Verdict:    FinalVerdict(final),
		ELA:        elaRes,
		Metadata:   metaRes,
		OCR:        ocrRes,
	}

	s.log.Info("invoice analysis complete",
		observability.Float64("final_score", final),
		observability.String("verdict", report.Verdict))

	return report
}

func (s *Scorer) metadataResult(ac analysisConfig) exifmeta.Result {
	if ac.pdfOrigin {
		return exifmeta.ForPDF()
	}
	if ac.metadataResult != nil {
		return *ac.metadataResult
	}
	// A bare decoded raster carries no embedded metadata to inspect.
	return runGuarded(metadataFallback, func() exifmeta.Result {
		return s.metadata.InspectFields(nil)
	})
}

// FinalVerdict maps the combined score to the final verdict labels using the
// shared thresholds.
func FinalVerdict(score float64) string {
	switch {
	case score >= risk.ThresholdHigh:
		return VerdictHigh
	case score >= risk.ThresholdMedium:
		return VerdictMedium
	default:
		return VerdictLow
	}
}

func elaFallback(reason string) ela.Result {
	return ela.Inconclusive("INCONCLUSIVE - ELA failed", reason)
}

func metadataFallback(reason string) exifmeta.Result {
	return exifmeta.Inconclusive(reason)
}

func ocrFallback(reason string) ocrmath.Result {
	return ocrmath.Inconclusive("INCONCLUSIVE - OCR failed",
		[]string{"OCR validation failed unexpectedly."}, reason)
}

// runGuarded executes one detector invocation, converting a panic into that
// detector's fallback payload so one failing stage never aborts the others.
func runGuarded[T any](fallback func(reason string) T, fn func() T) (out T) {
	defer func() {
		if r := recover(); r != nil {
			out = fallback(fmt.Sprintf("panic: %v", r))
		}
	}()
	return fn()
}

// scoreOr substitutes the fallback for non-finite scores. With typed detector
// results a missing score cannot occur, so this guards only NaN/Inf leaking
// from arithmetic.
func scoreOr(score, fallback float64) float64 {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return fallback
	}
	return score
}

// downscale shrinks img to maxWidth preserving aspect ratio using CatmullRom
// resampling; images at or under the limit pass through untouched.
func downscale(img image.Image, maxWidth int) image.Image {
	if maxWidth <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= maxWidth {
		return img
	}
	ratio := float64(maxWidth) / float64(b.Dx())
	height := int(float64(b.Dy()) * ratio)
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
