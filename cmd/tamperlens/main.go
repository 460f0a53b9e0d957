// Command tamperlens scores a single invoice image (or the first page of a
// scanned PDF) for tampering risk and prints the full JSON report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/fatih/color"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/tamperlens/tamperlens/ela"
	"github.com/tamperlens/tamperlens/fraud"
	"github.com/tamperlens/tamperlens/observability"
	"github.com/tamperlens/tamperlens/ocrmath"

	// Register the Tesseract engine as the OCR default.
	_ "github.com/tamperlens/tamperlens/ocr/tesseract"
)

func main() {
	resultsDir := flag.String("results", "results", "directory for ELA visualization images")
	publicPrefix := flag.String("public-prefix", "", "prefix to report instead of the results directory in visualization paths")
	quality := flag.Int("quality", ela.DefaultQuality, "JPEG re-encode quality for ELA")
	maxWidth := flag.Int("max-width", fraud.DefaultMaxImageWidth, "downscale images wider than this before analysis")
	tolerance := flag.Float64("tolerance", ocrmath.DefaultTolerance, "OCR sum-mismatch tolerance ratio")
	verbose := flag.Bool("v", false, "log stage diagnostics to stderr")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: tamperlens [flags] <invoice.(png|jpg|tiff|bmp|webp|pdf)>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	path := flag.Arg(0)

	var logger observability.Logger = observability.NopLogger{}
	if *verbose {
		logger = observability.NewTextLogger(os.Stderr)
	}

	scorer := fraud.NewScorer(fraud.Config{
		ResultsDir:    *resultsDir,
		PublicPrefix:  *publicPrefix,
		MaxImageWidth: *maxWidth,
		JPEGQuality:   *quality,
		Tolerance:     *tolerance,
		Logger:        logger,
	})

	ctx := context.Background()
	var report fraud.Report
	var err error
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		report, err = analyzePDF(ctx, scorer, path)
	} else {
		report, err = scorer.AnalyzeFile(ctx, path)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "tamperlens: %v\n", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "tamperlens: encode report: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
	printVerdict(report)
}

// analyzePDF pulls the first-page embedded image out of a scanned PDF and
// runs it through the scorer with the PDF-origin flag set. Scanned invoices
// are typically a single full-page image per page.
func analyzePDF(ctx context.Context, scorer *fraud.Scorer, path string) (fraud.Report, error) {
	tmpDir, err := os.MkdirTemp("", "tamperlens-pdf-*")
	if err != nil {
		return fraud.Report{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := api.ExtractImagesFile(path, tmpDir, []string{"1"}, model.NewDefaultConfiguration()); err != nil {
		return fraud.Report{}, fmt.Errorf("extract PDF page image: %w", err)
	}

	imgPath, err := largestFile(tmpDir)
	if err != nil {
		return fraud.Report{}, fmt.Errorf("no image found on PDF page 1: %w", err)
	}
	f, err := os.Open(imgPath)
	if err != nil {
		return fraud.Report{}, fmt.Errorf("open extracted image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return fraud.Report{}, fmt.Errorf("decode extracted image: %w", err)
	}

	return scorer.AnalyzeImage(ctx, img, fraud.FromPDF()), nil
}

// largestFile picks the biggest extracted image; auxiliary assets like logos
// and stamps are smaller than the page scan.
func largestFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var best string
	var bestSize int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			bestSize = info.Size()
			best = filepath.Join(dir, e.Name())
		}
	}
	if best == "" {
		return "", fmt.Errorf("no files extracted")
	}
	return best, nil
}

func printVerdict(report fraud.Report) {
	line := fmt.Sprintf("%s (score %.2f)", report.Verdict, report.FinalScore)
	switch report.Verdict {
	case fraud.VerdictHigh:
		color.New(color.FgRed, color.Bold).Fprintln(os.Stderr, line)
	case fraud.VerdictMedium:
		color.New(color.FgYellow).Fprintln(os.Stderr, line)
	default:
		color.New(color.FgGreen).Fprintln(os.Stderr, line)
	}
}
