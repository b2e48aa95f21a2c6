/**
 * Image Preprocessor for ErrorScope Analysis Worker
 *
 * Prepares error screenshots for OCR: orientation correction, upscaling,
 * grayscale conversion, denoising, contrast equalization, binarization and
 * morphological cleanup. Every enhancement stage degrades to pass-through;
 * only a failed decode is fatal.
 */

package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
)

const (
	// Skew beyond this many degrees triggers rotation
	skewThresholdDeg = 5.0

	claheTiles    = 8
	claheClip     = 2.0
	adaptiveBlock = 11
	adaptiveC     = 2
)

// Preprocessor runs the OCR preparation pipeline
type Preprocessor struct {
	MinWidth int
}

// NewPreprocessor creates a preprocessor with the given minimum width
func NewPreprocessor(minWidth int) *Preprocessor {
	if minWidth <= 0 {
		minWidth = 800
	}
	return &Preprocessor{MinWidth: minWidth}
}

// Preprocess decodes raw image bytes and runs the full enhancement pipeline.
// Returns a binarized grayscale image ready for OCR.
func (p *Preprocessor) Preprocess(data []byte) (*image.Gray, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("image data is required")
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	// Step 1: orientation correction
	if angle := EstimateSkew(toGray(img)); math.Abs(angle) > skewThresholdDeg {
		img = imaging.Rotate(img, -angle, color.White)
	}

	// Step 2: upscale small screenshots
	if img.Bounds().Dx() < p.MinWidth {
		img = imaging.Resize(img, p.MinWidth, 0, imaging.Lanczos)
	}

	// Step 3: grayscale
	gray := toGray(imaging.Grayscale(img))

	// Step 4: denoise
	gray = toGray(blur.Gaussian(gray, 1.0))

	// Step 5: local contrast equalization
	gray = equalizeCLAHE(gray, claheTiles, claheClip)

	// Step 6: adaptive binarization
	gray = adaptiveThreshold(gray, adaptiveBlock, adaptiveC)

	// Step 7: morphological close then open to heal glyph strokes
	gray = toGray(effect.Erode(effect.Dilate(gray, 1), 1))
	gray = toGray(effect.Dilate(effect.Erode(gray, 1), 1))

	return gray, nil
}

// toGray converts any image to *image.Gray
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, img.At(x, y))
		}
	}
	return gray
}

// equalizeCLAHE applies contrast-limited adaptive histogram equalization.
// The image is divided into tiles x tiles regions; each tile's histogram is
// clipped at clipLimit times the uniform bin height before building its
// mapping, and pixel values are bilinearly interpolated between the mappings
// of the four surrounding tile centers.
func equalizeCLAHE(src *image.Gray, tiles int, clipLimit float64) *image.Gray {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < tiles || h < tiles {
		return src
	}

	tileW := w / tiles
	tileH := h / tiles

	// Per-tile lookup tables
	luts := make([][][]uint8, tiles)
	for ty := 0; ty < tiles; ty++ {
		luts[ty] = make([][]uint8, tiles)
		for tx := 0; tx < tiles; tx++ {
			x0 := bounds.Min.X + tx*tileW
			y0 := bounds.Min.Y + ty*tileH
			x1 := x0 + tileW
			y1 := y0 + tileH
			if tx == tiles-1 {
				x1 = bounds.Max.X
			}
			if ty == tiles-1 {
				y1 = bounds.Max.Y
			}
			luts[ty][tx] = tileLUT(src, x0, y0, x1, y1, clipLimit)
		}
	}

	dst := image.NewGray(bounds)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y

			// Position relative to tile centers
			fx := float64(x)/float64(tileW) - 0.5
			fy := float64(y)/float64(tileH) - 0.5

			tx0 := int(math.Floor(fx))
			ty0 := int(math.Floor(fy))
			wx := fx - float64(tx0)
			wy := fy - float64(ty0)

			tx1 := clampInt(tx0+1, 0, tiles-1)
			ty1 := clampInt(ty0+1, 0, tiles-1)
			tx0 = clampInt(tx0, 0, tiles-1)
			ty0 = clampInt(ty0, 0, tiles-1)

			v00 := float64(luts[ty0][tx0][v])
			v01 := float64(luts[ty0][tx1][v])
			v10 := float64(luts[ty1][tx0][v])
			v11 := float64(luts[ty1][tx1][v])

			top := v00*(1-wx) + v01*wx
			bot := v10*(1-wx) + v11*wx
			dst.SetGray(bounds.Min.X+x, bounds.Min.Y+y, color.Gray{Y: uint8(top*(1-wy) + bot*wy + 0.5)})
		}
	}
	return dst
}

// tileLUT builds a clipped-histogram equalization mapping for one tile
func tileLUT(src *image.Gray, x0, y0, x1, y1 int, clipLimit float64) []uint8 {
	var hist [256]int
	total := 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			hist[src.GrayAt(x, y).Y]++
			total++
		}
	}

	lut := make([]uint8, 256)
	if total == 0 {
		for i := range lut {
			lut[i] = uint8(i)
		}
		return lut
	}

	// Clip the histogram and redistribute the excess uniformly
	limit := int(clipLimit * float64(total) / 256.0)
	if limit < 1 {
		limit = 1
	}
	excess := 0
	for i := 0; i < 256; i++ {
		if hist[i] > limit {
			excess += hist[i] - limit
			hist[i] = limit
		}
	}
	perBin := excess / 256
	for i := 0; i < 256; i++ {
		hist[i] += perBin
	}

	cum := 0
	scale := 255.0 / float64(total)
	for i := 0; i < 256; i++ {
		cum += hist[i]
		lut[i] = uint8(math.Min(255, float64(cum)*scale))
	}
	return lut
}

// adaptiveThreshold binarizes using a local mean over a block x block window
// minus constant c. Pixels above the local threshold become white.
func adaptiveThreshold(src *image.Gray, block, c int) *image.Gray {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return src
	}

	// Integral image for O(1) window sums
	integral := make([][]int64, h+1)
	for i := range integral {
		integral[i] = make([]int64, w+1)
	}
	for y := 0; y < h; y++ {
		var rowSum int64
		for x := 0; x < w; x++ {
			rowSum += int64(src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			integral[y+1][x+1] = integral[y][x+1] + rowSum
		}
	}

	half := block / 2
	dst := image.NewGray(bounds)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0 := clampInt(x-half, 0, w-1)
			x1 := clampInt(x+half, 0, w-1)
			y0 := clampInt(y-half, 0, h-1)
			y1 := clampInt(y+half, 0, h-1)

			area := int64((x1 - x0 + 1) * (y1 - y0 + 1))
			sum := integral[y1+1][x1+1] - integral[y0][x1+1] - integral[y1+1][x0] + integral[y0][x0]
			mean := sum / area

			v := int64(src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			if v > mean-int64(c) {
				dst.SetGray(bounds.Min.X+x, bounds.Min.Y+y, color.Gray{Y: 255})
			} else {
				dst.SetGray(bounds.Min.X+x, bounds.Min.Y+y, color.Gray{Y: 0})
			}
		}
	}
	return dst
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
