package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// encodePNG renders an image to PNG bytes for decode tests
func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

// syntheticScreenshot draws dark horizontal bars on a light background,
// roughly the shape of text lines in a dialog
func syntheticScreenshot(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: 230})
		}
	}
	for line := 0; line < 3; line++ {
		y0 := 20 + line*30
		for y := y0; y < y0+10 && y < h; y++ {
			for x := 15; x < w-15; x++ {
				img.SetGray(x, y, color.Gray{Y: 20})
			}
		}
	}
	return img
}

func TestPreprocessProducesBinaryImage(t *testing.T) {
	p := NewPreprocessor(800)
	data := encodePNG(t, syntheticScreenshot(400, 200))

	result, err := p.Preprocess(data)
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}

	if result.Bounds().Dx() < 800 {
		t.Errorf("expected upscale to min width 800, got %d", result.Bounds().Dx())
	}

	// Binarized output should only contain near-black and near-white pixels
	bounds := result.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y += 10 {
		for x := bounds.Min.X; x < bounds.Max.X; x += 10 {
			v := result.GrayAt(x, y).Y
			if v > 10 && v < 245 {
				t.Fatalf("pixel (%d,%d)=%d is not binarized", x, y, v)
			}
		}
	}
}

func TestPreprocessKeepsLargeImageSize(t *testing.T) {
	p := NewPreprocessor(800)
	data := encodePNG(t, syntheticScreenshot(1200, 300))

	result, err := p.Preprocess(data)
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	if result.Bounds().Dx() != 1200 {
		t.Errorf("expected width preserved at 1200, got %d", result.Bounds().Dx())
	}
}

func TestPreprocessRejectsInvalidData(t *testing.T) {
	p := NewPreprocessor(800)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("not an image at all")},
		{"truncated png header", []byte{0x89, 0x50, 0x4E, 0x47}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Preprocess(tt.data); err == nil {
				t.Error("expected decode error, got nil")
			}
		})
	}
}

func TestDetectTextRegionsFiltersShape(t *testing.T) {
	img := syntheticScreenshot(400, 200)
	regions := DetectTextRegions(img)

	if len(regions) == 0 {
		t.Fatal("expected at least one text region")
	}
	for _, r := range regions {
		if r.Area() <= 100 {
			t.Errorf("region %+v has area %d, filter should require > 100", r, r.Area())
		}
		if r.Width <= r.Height {
			t.Errorf("region %+v is taller than wide, should be filtered", r)
		}
		if r.Width <= 20 || r.Height <= 10 {
			t.Errorf("region %+v below minimum dimensions", r)
		}
	}
}

func TestMergeOverlappingRegions(t *testing.T) {
	tests := []struct {
		name    string
		regions []Region
		want    int
	}{
		{
			"disjoint stay separate",
			[]Region{{X: 0, Y: 0, Width: 50, Height: 20}, {X: 100, Y: 100, Width: 50, Height: 20}},
			2,
		},
		{
			"overlapping pair merges",
			[]Region{{X: 0, Y: 0, Width: 50, Height: 20}, {X: 40, Y: 10, Width: 50, Height: 20}},
			1,
		},
		{
			"chain collapses transitively",
			[]Region{
				{X: 0, Y: 0, Width: 30, Height: 20},
				{X: 25, Y: 0, Width: 30, Height: 20},
				{X: 50, Y: 0, Width: 30, Height: 20},
			},
			1,
		},
		{"empty input", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeOverlappingRegions(tt.regions)
			if len(got) != tt.want {
				t.Errorf("got %d regions, want %d: %+v", len(got), tt.want, got)
			}
		})
	}
}

func TestMergeOverlappingRegionsUnionBounds(t *testing.T) {
	merged := MergeOverlappingRegions([]Region{
		{X: 10, Y: 10, Width: 40, Height: 20},
		{X: 30, Y: 15, Width: 40, Height: 25},
	})
	if len(merged) != 1 {
		t.Fatalf("expected single merged region, got %d", len(merged))
	}
	r := merged[0]
	if r.X != 10 || r.Y != 10 || r.X+r.Width != 70 || r.Y+r.Height != 40 {
		t.Errorf("merged bounds wrong: %+v", r)
	}
}

func TestCropRegionClampsPadding(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 50))

	// Region at the corner: padding must clamp to image bounds
	crop := CropRegion(img, Region{X: 0, Y: 0, Width: 20, Height: 10})
	if crop.Bounds().Dx() != 25 || crop.Bounds().Dy() != 15 {
		t.Errorf("corner crop got %dx%d, want 25x15", crop.Bounds().Dx(), crop.Bounds().Dy())
	}

	// Interior region: padding applies on all sides
	crop = CropRegion(img, Region{X: 40, Y: 20, Width: 20, Height: 10})
	if crop.Bounds().Dx() != 30 || crop.Bounds().Dy() != 20 {
		t.Errorf("interior crop got %dx%d, want 30x20", crop.Bounds().Dx(), crop.Bounds().Dy())
	}
}

func countDark(img *image.Gray) int {
	bounds := img.Bounds()
	count := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if img.GrayAt(x, y).Y < 128 {
				count++
			}
		}
	}
	return count
}

// thinLineScreenshot draws thin dark bars, narrower than the adaptive
// threshold window, so binarization keeps them solid
func thinLineScreenshot(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: 230})
		}
	}
	for line := 0; line < 4; line++ {
		y0 := 25 + line*35
		for y := y0; y < y0+4 && y < h; y++ {
			for x := 15; x < w-15; x++ {
				img.SetGray(x, y, color.Gray{Y: 20})
			}
		}
	}
	return img
}

func TestPreprocessIdempotentOnBinarizedInput(t *testing.T) {
	p := NewPreprocessor(200)

	first, err := p.Preprocess(encodePNG(t, thinLineScreenshot(400, 200)))
	if err != nil {
		t.Fatalf("first pass failed: %v", err)
	}

	second, err := p.Preprocess(encodePNG(t, first))
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}

	if second.Bounds() != first.Bounds() {
		t.Fatalf("second pass changed dimensions: %v -> %v", first.Bounds(), second.Bounds())
	}

	// Re-binarizing binary input must not wipe the text strokes; morphology
	// is allowed to nudge the stroke edges, nothing more
	darkFirst := countDark(first)
	darkSecond := countDark(second)
	if darkFirst == 0 {
		t.Fatal("first pass lost all dark content")
	}
	if darkSecond < darkFirst/2 || darkSecond > darkFirst*2 {
		t.Errorf("second pass changed dark pixel count too much: %d -> %d", darkFirst, darkSecond)
	}
}

func TestEstimateSkewDetectsRotatedLines(t *testing.T) {
	const slope = 0.1763 // tan(10 degrees)

	img := image.NewGray(image.Rect(0, 0, 400, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 400; x++ {
			img.SetGray(x, y, color.Gray{Y: 230})
		}
	}
	for line := 0; line < 4; line++ {
		baseY := 40 + line*40
		for x := 10; x < 390; x++ {
			y := baseY + int(slope*float64(x-10))
			for dy := 0; dy < 3; dy++ {
				img.SetGray(x, y+dy, color.Gray{Y: 20})
			}
		}
	}

	angle := EstimateSkew(img)
	if angle < 8 || angle > 12 {
		t.Errorf("expected skew near 10 degrees, got %.1f", angle)
	}
}

func TestEstimateSkewOnStraightImage(t *testing.T) {
	angle := EstimateSkew(syntheticScreenshot(400, 200))
	if angle > 5 || angle < -5 {
		t.Errorf("straight image should report near-zero skew, got %.1f", angle)
	}
}

func TestEstimateSkewEmptyImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	if angle := EstimateSkew(img); angle != 0 {
		t.Errorf("featureless image should report 0 skew, got %.1f", angle)
	}
	if angle := EstimateSkew(nil); angle != 0 {
		t.Errorf("nil image should report 0 skew, got %.1f", angle)
	}
}
