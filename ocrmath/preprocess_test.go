package ocrmath

import (
	"image"
	"image/color"
	"testing"
)

// bimodalGray builds a half dark, half bright test card.
func bimodalGray(dark, bright uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			v := dark
			if x >= 8 {
				v = bright
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestOtsuThresholdSplitsBimodal(t *testing.T) {
	img := bimodalGray(20, 220)
	threshold := otsuThreshold(img)
	if threshold < 20 || threshold >= 220 {
		t.Fatalf("threshold %d does not separate modes 20/220", threshold)
	}
}

func TestBinarize(t *testing.T) {
	img := bimodalGray(20, 220)
	binarize(img, otsuThreshold(img))
	for i, p := range img.Pix {
		if p != 0 && p != 255 {
			t.Fatalf("pixel %d not binary: %d", i, p)
		}
	}
	if img.GrayAt(0, 0).Y != 0 {
		t.Fatalf("dark side should binarize to 0")
	}
	if img.GrayAt(15, 0).Y != 255 {
		t.Fatalf("bright side should binarize to 255")
	}
}

func TestMedianFilterRemovesSpeckle(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 9, 9))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	// Isolated dark speckle in a white field.
	img.SetGray(4, 4, color.Gray{Y: 0})

	out := medianFilter3(img)
	if out.GrayAt(4, 4).Y != 255 {
		t.Fatalf("speckle survived median filter: %d", out.GrayAt(4, 4).Y)
	}
}

func TestMedianFilterPreservesEdges(t *testing.T) {
	img := bimodalGray(0, 255)
	out := medianFilter3(img)
	if out.GrayAt(0, 0).Y != 0 || out.GrayAt(15, 15).Y != 255 {
		t.Fatalf("median filter destroyed a clean edge region")
	}
}

func TestPreprocessOutputIsBinary(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 12, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 12; x++ {
			v := uint8(30)
			if y > 6 {
				v = 200
			}
			src.SetRGBA(x, y, color.RGBA{v, v, v, 255})
		}
	}
	out := Preprocess(src)
	for i, p := range out.Pix {
		if p != 0 && p != 255 {
			t.Fatalf("pixel %d not binary after preprocess: %d", i, p)
		}
	}
}

func TestMedian9(t *testing.T) {
	if got := median9([9]uint8{9, 1, 8, 2, 7, 3, 6, 4, 5}); got != 5 {
		t.Fatalf("median9 = %d, want 5", got)
	}
}
