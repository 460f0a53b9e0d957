package ela

import (
	"image"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func noiseImage(w, h int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img
}

func TestScoreFromMetricsZeroDifference(t *testing.T) {
	score, verdict := scoreFromMetrics(&Metrics{MaxPixelDifference: 0})
	if score != 50.0 {
		t.Fatalf("zero-diff score = %v, want 50", score)
	}
	if !strings.Contains(strings.ToLower(verdict), "no compression artifacts") {
		t.Fatalf("zero-diff verdict = %q", verdict)
	}
}

func TestScoreFromMetricsFormula(t *testing.T) {
	// mean/255*50 + variance/1000*50 = 25 + 25 = 50
	score, verdict := scoreFromMetrics(&Metrics{
		BrightnessMean:     127.5,
		BrightnessVariance: 500,
		MaxPixelDifference: 10,
	})
	if score != 50 {
		t.Fatalf("score = %v, want 50", score)
	}
	if verdict != "MEDIUM ELA RISK" {
		t.Fatalf("verdict = %q", verdict)
	}

	score, _ = scoreFromMetrics(&Metrics{
		BrightnessMean:     255,
		BrightnessVariance: 5000,
		MaxPixelDifference: 10,
	})
	if score != 100 {
		t.Fatalf("score should cap at 100, got %v", score)
	}
}

func TestDifference(t *testing.T) {
	a := image.NewRGBA(image.Rect(0, 0, 2, 1))
	b := image.NewRGBA(image.Rect(0, 0, 2, 1))
	a.SetRGBA(0, 0, color.RGBA{100, 100, 100, 255})
	b.SetRGBA(0, 0, color.RGBA{100, 100, 100, 255})
	a.SetRGBA(1, 0, color.RGBA{200, 50, 10, 255})
	b.SetRGBA(1, 0, color.RGBA{180, 60, 10, 255})

	diff, maxDiff := difference(a, b)
	if maxDiff != 20 {
		t.Fatalf("maxDiff = %d, want 20", maxDiff)
	}
	got := diff.RGBAAt(1, 0)
	if got.R != 20 || got.G != 10 || got.B != 0 {
		t.Fatalf("unexpected diff pixel: %+v", got)
	}
	if p := diff.RGBAAt(0, 0); p.R != 0 || p.G != 0 || p.B != 0 {
		t.Fatalf("identical pixels should diff to zero, got %+v", p)
	}
}

func TestDifferenceIdenticalIsZero(t *testing.T) {
	img := noiseImage(16, 16, 1)
	diff, maxDiff := difference(img, img)
	if maxDiff != 0 {
		t.Fatalf("identical images should have zero max difference, got %d", maxDiff)
	}
	mean, variance := luminanceStats(diff)
	if mean != 0 || variance != 0 {
		t.Fatalf("zero diff should have zero stats, got mean=%v variance=%v", mean, variance)
	}
}

func TestAmplifyClamps(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.SetRGBA(0, 0, color.RGBA{100, 2, 0, 255})
	amplify(img, 255.0/100.0)
	got := img.RGBAAt(0, 0)
	if got.R != 255 {
		t.Fatalf("brightest channel should scale to 255, got %d", got.R)
	}
	if got.G != 5 {
		t.Fatalf("G = %d, want 5", got.G)
	}
}

func TestAnalyzeProducesBoundedScoreAndVisualization(t *testing.T) {
	dir := t.TempDir()
	a := New(Config{ResultsDir: dir})
	res := a.Analyze(noiseImage(64, 64, 42))

	if res.Error != nil {
		t.Fatalf("unexpected error: %v", *res.Error)
	}
	if res.Score < 0 || res.Score > 100 {
		t.Fatalf("score out of range: %v", res.Score)
	}
	if res.Metrics == nil || res.Metrics.JPEGQuality != DefaultQuality {
		t.Fatalf("unexpected metrics: %+v", res.Metrics)
	}
	if res.Metrics.MaxPixelDifference == 0 {
		t.Fatalf("jpeg round trip on noise should perturb pixels")
	}
	if res.VisualizationPath == nil {
		t.Fatalf("missing visualization path")
	}
	if _, err := os.Stat(*res.VisualizationPath); err != nil {
		t.Fatalf("visualization not written: %v", err)
	}
}

func TestAnalyzePublicPrefixPath(t *testing.T) {
	a := New(Config{ResultsDir: t.TempDir(), PublicPrefix: "/static/results/"})
	res := a.Analyze(noiseImage(32, 32, 7))
	if res.VisualizationPath == nil {
		t.Fatalf("missing visualization path")
	}
	if !strings.HasPrefix(*res.VisualizationPath, "/static/results/ela_") {
		t.Fatalf("unexpected public path: %q", *res.VisualizationPath)
	}
	if strings.Contains(*res.VisualizationPath, "//ela_") {
		t.Fatalf("trailing slash not trimmed: %q", *res.VisualizationPath)
	}
}

func TestVisualizationFilenamesUnique(t *testing.T) {
	dir := t.TempDir()
	a := New(Config{ResultsDir: dir})
	img := noiseImage(16, 16, 3)
	a.Analyze(img)
	a.Analyze(img)
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read results dir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 visualizations, found %d", len(entries))
	}
}

func TestAnalyzeFileReadFailure(t *testing.T) {
	a := New(Config{ResultsDir: t.TempDir()})
	res := a.AnalyzeFile(filepath.Join(t.TempDir(), "missing.png"))
	if res.Score != 50 {
		t.Fatalf("fallback score = %v, want 50", res.Score)
	}
	if res.Verdict != "INCONCLUSIVE - ELA read failed" {
		t.Fatalf("verdict = %q", res.Verdict)
	}
	if res.Error == nil {
		t.Fatalf("expected non-nil error message")
	}
	if res.VisualizationPath != nil {
		t.Fatalf("read failure should not produce a visualization")
	}
}

func TestInconclusive(t *testing.T) {
	res := Inconclusive("INCONCLUSIVE - ELA processing failed", "boom")
	if res.Score != 50 || res.Error == nil || *res.Error != "boom" {
		t.Fatalf("unexpected fallback: %+v", res)
	}
}
