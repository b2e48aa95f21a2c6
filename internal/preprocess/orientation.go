package preprocess

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
)

const (
	// Angles scanned around horizontal when estimating skew
	skewScanRangeDeg = 45
	skewScanStepDeg  = 0.5

	// Edge pixels darker than this are ignored
	edgeThreshold = 128

	// Downscale target for the Hough vote, keeps the accumulator cheap
	houghMaxWidth = 400
)

// EstimateSkew returns the dominant text-line angle of the image in degrees.
// Positive angles mean the content is rotated counter-clockwise. Returns 0
// when no dominant line is found.
func EstimateSkew(gray *image.Gray) float64 {
	if gray == nil {
		return 0
	}

	work := gray
	if work.Bounds().Dx() > houghMaxWidth {
		work = toGray(imaging.Resize(work, houghMaxWidth, 0, imaging.Linear))
	}

	edges := toGray(effect.Sobel(work))
	bounds := edges.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return 0
	}

	// Hough vote over near-horizontal angles: rho = x*cos(theta) + y*sin(theta)
	steps := int(2*skewScanRangeDeg/skewScanStepDeg) + 1
	maxRho := int(math.Hypot(float64(w), float64(h)))
	accumulator := make([][]int, steps)
	for i := range accumulator {
		accumulator[i] = make([]int, 2*maxRho+1)
	}

	sin := make([]float64, steps)
	cos := make([]float64, steps)
	for i := 0; i < steps; i++ {
		// Theta near 90 deg corresponds to horizontal lines
		theta := (90 - skewScanRangeDeg + float64(i)*skewScanStepDeg) * math.Pi / 180
		sin[i] = math.Sin(theta)
		cos[i] = math.Cos(theta)
	}

	edgeCount := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if edges.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y < edgeThreshold {
				continue
			}
			edgeCount++
			for i := 0; i < steps; i++ {
				rho := int(float64(x)*cos[i]+float64(y)*sin[i]) + maxRho
				if rho >= 0 && rho <= 2*maxRho {
					accumulator[i][rho]++
				}
			}
		}
	}

	if edgeCount < 50 {
		return 0
	}

	bestVotes := 0
	bestStep := steps / 2
	for i := 0; i < steps; i++ {
		for _, votes := range accumulator[i] {
			if votes > bestVotes {
				bestVotes = votes
				bestStep = i
			}
		}
	}

	// Require a meaningful peak before claiming a skew angle
	if bestVotes < w/4 {
		return 0
	}

	return -skewScanRangeDeg + float64(bestStep)*skewScanStepDeg
}
