// Package ela implements Error Level Analysis for invoice image forensics.
//
// ELA re-encodes an image through lossy JPEG compression and inspects the
// per-pixel residual. Regions that were edited after the original encode
// compress differently from their surroundings and show up as bright,
// high-variance areas in the difference image.
package ela

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tamperlens/tamperlens/observability"
	"github.com/tamperlens/tamperlens/risk"
)

// DefaultQuality is the JPEG quality used for the re-encode round trip.
const DefaultQuality = 90

// Metrics are the measured ELA statistics used for scoring. Immutable once
// produced.
type Metrics struct {
	BrightnessMean     float64 `json:"brightness_mean"`
	BrightnessVariance float64 `json:"brightness_variance"`
	MaxPixelDifference int     `json:"max_pixel_difference"`
	JPEGQuality        int     `json:"jpeg_quality"`
}

// Result is the self-contained ELA report. Error is non-nil only when the
// analysis could not complete, in which case Score holds the fixed fallback
// value 50.
type Result struct {
	Score             float64  `json:"score"`
	Verdict           string   `json:"verdict"`
	VisualizationPath *string  `json:"visualization_path"`
	Metrics           *Metrics `json:"metrics"`
	Error             *string  `json:"error"`
}

// Inconclusive builds the fixed fallback result for a failed analysis.
func Inconclusive(verdict, reason string) Result {
	return Result{Score: 50, Verdict: verdict, Error: &reason}
}

// Config controls where visualizations are persisted and how the re-encode
// runs.
type Config struct {
	// ResultsDir receives one PNG visualization per analysis. Created if
	// missing.
	ResultsDir string
	// PublicPrefix, when non-empty, replaces the filesystem directory in the
	// returned visualization path (prefix + "/" + filename). Empty means the
	// raw file path is returned.
	PublicPrefix string
	// Quality is the JPEG re-encode quality; zero means DefaultQuality.
	Quality int
	// Logger receives stage diagnostics; nil means silent.
	Logger observability.Logger
}

// Analyzer runs ELA and persists a visualization image per call.
type Analyzer struct {
	cfg   Config
	log   observability.Logger
	now   func() time.Time
	newID func() string
}

// New constructs an Analyzer from cfg, applying defaults for zero values.
func New(cfg Config) *Analyzer {
	if cfg.Quality <= 0 {
		cfg.Quality = DefaultQuality
	}
	log := cfg.Logger
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Analyzer{
		cfg:   cfg,
		log:   log,
		now:   time.Now,
		newID: func() string { return uuid.NewString()[:8] },
	}
}

// AnalyzeFile opens and decodes an image file, then analyzes it. A file that
// cannot be read or decoded yields the fixed read-failure fallback instead of
// an error.
func (a *Analyzer) AnalyzeFile(path string) Result {
	f, err := os.Open(path)
	if err != nil {
		return Inconclusive("INCONCLUSIVE - ELA read failed", err.Error())
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return Inconclusive("INCONCLUSIVE - ELA read failed", err.Error())
	}
	return a.Analyze(img)
}

// Analyze runs ELA on a decoded image. It never returns an error: any
// internal failure yields the fixed processing-failure fallback.
func (a *Analyzer) Analyze(img image.Image) Result {
	if err := os.MkdirAll(a.cfg.ResultsDir, 0o755); err != nil {
		return Inconclusive("INCONCLUSIVE - ELA processing failed",
			fmt.Sprintf("create results directory: %v", err))
	}

	original := toRGB(img)
	recompressed, err := a.recompress(original)
	if err != nil {
		return Inconclusive("INCONCLUSIVE - ELA processing failed", err.Error())
	}

	diff, maxDiff := difference(original, recompressed)
	if maxDiff > 0 {
		amplify(diff, 255.0/float64(maxDiff))
	}

	mean, variance := luminanceStats(diff)
	metrics := &Metrics{
		BrightnessMean:     mean,
		BrightnessVariance: variance,
		MaxPixelDifference: maxDiff,
		JPEGQuality:        a.cfg.Quality,
	}

	score, verdict := scoreFromMetrics(metrics)

	visPath, err := a.persistVisualization(diff)
	if err != nil {
		return Inconclusive("INCONCLUSIVE - ELA processing failed", err.Error())
	}

	a.log.Debug("ela analysis complete",
		observability.Float64("score", score),
		observability.Int("max_pixel_difference", maxDiff),
		observability.String("visualization", visPath))

	return Result{
		Score:             risk.Round2(score),
		Verdict:           verdict,
		VisualizationPath: &visPath,
		Metrics:           metrics,
		Error:             nil,
	}
}

// scoreFromMetrics converts measured ELA statistics into a 0-100 score and
// verdict. A zero max difference means the recompression was a pixel-exact
// no-op, which real JPEG round trips essentially never produce; that case is
// flagged as suspicious on its own rather than scored low.
func scoreFromMetrics(m *Metrics) (float64, string) {
	if m.MaxPixelDifference == 0 {
		return 50.0, "SUSPICIOUS - No compression artifacts detected"
	}
	brightness := (m.BrightnessMean / 255.0) * 50.0
	variance := (m.BrightnessVariance / 1000.0) * 50.0
	score := risk.Clamp100(brightness + variance)
	return score, risk.Verdict(score, "ELA")
}

// recompress round-trips the image through an in-memory JPEG encode at the
// configured quality and decodes it back. The encoded copy is transient and
// released with the buffer.
func (a *Analyzer) recompress(src *image.RGBA) (*image.RGBA, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: a.cfg.Quality}); err != nil {
		return nil, fmt.Errorf("jpeg re-encode: %w", err)
	}
	decoded, err := jpeg.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("decode recompressed image: %w", err)
	}
	return toRGB(decoded), nil
}

func (a *Analyzer) persistVisualization(diff *image.RGBA) (string, error) {
	filename := fmt.Sprintf("ela_%s_%s.png", a.now().UTC().Format("20060102_150405"), a.newID())
	fullPath := filepath.Join(a.cfg.ResultsDir, filename)

	f, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("create visualization: %w", err)
	}
	if err := png.Encode(f, diff); err != nil {
		f.Close()
		return "", fmt.Errorf("save visualization: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("save visualization: %w", err)
	}

	if a.cfg.PublicPrefix != "" {
		return strings.TrimRight(a.cfg.PublicPrefix, "/") + "/" + filename, nil
	}
	return fullPath, nil
}

// toRGB normalizes any decoded image to an opaque RGBA buffer anchored at the
// origin.
func toRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// difference returns the per-pixel absolute difference of the color channels
// and the maximum single-channel difference observed.
func difference(a, b *image.RGBA) (*image.RGBA, int) {
	bounds := a.Bounds()
	diff := image.NewRGBA(bounds)
	maxDiff := 0
	for i := 0; i < len(a.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			d := int(a.Pix[i+c]) - int(b.Pix[i+c])
			if d < 0 {
				d = -d
			}
			if d > maxDiff {
				maxDiff = d
			}
			diff.Pix[i+c] = uint8(d)
		}
		diff.Pix[i+3] = 0xff
	}
	return diff, maxDiff
}

// amplify linearly rescales the color channels in place, clamping at 255, so
// the brightest residual maps to full intensity.
func amplify(img *image.RGBA, scale float64) {
	for i := 0; i < len(img.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			v := float64(img.Pix[i+c]) * scale
			if v > 255 {
				v = 255
			}
			img.Pix[i+c] = uint8(v)
		}
	}
}

// luminanceStats computes the mean and population variance of the ITU-R 601-2
// luminance of the image.
func luminanceStats(img *image.RGBA) (mean, variance float64) {
	n := len(img.Pix) / 4
	if n == 0 {
		return 0, 0
	}
	var sum, sumSq float64
	for i := 0; i < len(img.Pix); i += 4 {
		l := (299.0*float64(img.Pix[i]) + 587.0*float64(img.Pix[i+1]) + 114.0*float64(img.Pix[i+2])) / 1000.0
		sum += l
		sumSq += l * l
	}
	mean = sum / float64(n)
	variance = sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, variance
}
