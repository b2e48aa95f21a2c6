package preprocess

import (
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/effect"
)

// Region is a rectangular text candidate area in image coordinates
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Area returns the region's pixel area
func (r Region) Area() int {
	return r.Width * r.Height
}

// DetectTextRegions finds likely text areas: horizontal gradient response,
// Otsu binarization, connected components, then shape filtering. Text blocks
// are wider than tall, so narrow or tiny components are rejected.
func DetectTextRegions(gray *image.Gray) []Region {
	if gray == nil {
		return nil
	}

	edges := toGray(effect.Sobel(gray))
	binary := otsuThreshold(edges)

	components := connectedComponents(binary)

	regions := make([]Region, 0, len(components))
	for _, r := range components {
		if r.Area() > 100 && r.Width > r.Height && r.Width > 20 && r.Height > 10 {
			regions = append(regions, r)
		}
	}
	return regions
}

// MergeOverlappingRegions collapses intersecting regions into their union.
// Repeats until no two regions overlap.
func MergeOverlappingRegions(regions []Region) []Region {
	if len(regions) <= 1 {
		return regions
	}

	merged := append([]Region(nil), regions...)
	for {
		changed := false
		result := make([]Region, 0, len(merged))
		used := make([]bool, len(merged))

		for i := 0; i < len(merged); i++ {
			if used[i] {
				continue
			}
			current := merged[i]
			for j := i + 1; j < len(merged); j++ {
				if used[j] {
					continue
				}
				if regionsOverlap(current, merged[j]) {
					current = mergeBounds(current, merged[j])
					used[j] = true
					changed = true
				}
			}
			result = append(result, current)
		}

		merged = result
		if !changed {
			return merged
		}
	}
}

// CropRegion extracts a region with 5px padding, clamped to the image bounds
func CropRegion(gray *image.Gray, r Region) *image.Gray {
	bounds := gray.Bounds()
	const pad = 5

	x0 := clampInt(r.X-pad, bounds.Min.X, bounds.Max.X)
	y0 := clampInt(r.Y-pad, bounds.Min.Y, bounds.Max.Y)
	x1 := clampInt(r.X+r.Width+pad, bounds.Min.X, bounds.Max.X)
	y1 := clampInt(r.Y+r.Height+pad, bounds.Min.Y, bounds.Max.Y)

	crop := image.NewGray(image.Rect(0, 0, x1-x0, y1-y0))
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			crop.SetGray(x-x0, y-y0, gray.GrayAt(x, y))
		}
	}
	return crop
}

func regionsOverlap(a, b Region) bool {
	return a.X < b.X+b.Width && a.X+a.Width > b.X &&
		a.Y < b.Y+b.Height && a.Y+a.Height > b.Y
}

func mergeBounds(a, b Region) Region {
	x0 := minInt(a.X, b.X)
	y0 := minInt(a.Y, b.Y)
	x1 := maxInt(a.X+a.Width, b.X+b.Width)
	y1 := maxInt(a.Y+a.Height, b.Y+b.Height)
	return Region{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// otsuThreshold binarizes with the global threshold that maximizes
// between-class variance
func otsuThreshold(gray *image.Gray) *image.Gray {
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	var hist [256]int
	total := w * h
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			hist[gray.GrayAt(x, y).Y]++
		}
	}

	var sum float64
	for i := 0; i < 256; i++ {
		sum += float64(i) * float64(hist[i])
	}

	var sumB, wB, wF float64
	var maxVariance float64
	threshold := 0

	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF = float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])

		mB := sumB / wB
		mF := (sum - sumB) / wF
		variance := wB * wF * (mB - mF) * (mB - mF)
		if variance > maxVariance {
			maxVariance = variance
			threshold = t
		}
	}

	binary := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if int(gray.GrayAt(x, y).Y) > threshold {
				binary.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return binary
}

// connectedComponents labels 8-connected white components with a flood fill
// and returns their bounding boxes
func connectedComponents(binary *image.Gray) []Region {
	bounds := binary.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	visited := make([]bool, w*h)
	var regions []Region

	type point struct{ x, y int }

	for sy := 0; sy < h; sy++ {
		for sx := 0; sx < w; sx++ {
			idx := sy*w + sx
			if visited[idx] || binary.GrayAt(bounds.Min.X+sx, bounds.Min.Y+sy).Y == 0 {
				continue
			}

			minX, minY, maxX, maxY := sx, sy, sx, sy
			stack := []point{{sx, sy}}
			visited[idx] = true

			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]

				if p.x < minX {
					minX = p.x
				}
				if p.x > maxX {
					maxX = p.x
				}
				if p.y < minY {
					minY = p.y
				}
				if p.y > maxY {
					maxY = p.y
				}

				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := p.x+dx, p.y+dy
						if nx < 0 || ny < 0 || nx >= w || ny >= h {
							continue
						}
						nIdx := ny*w + nx
						if visited[nIdx] || binary.GrayAt(bounds.Min.X+nx, bounds.Min.Y+ny).Y == 0 {
							continue
						}
						visited[nIdx] = true
						stack = append(stack, point{nx, ny})
					}
				}
			}

			regions = append(regions, Region{
				X:      bounds.Min.X + minX,
				Y:      bounds.Min.Y + minY,
				Width:  maxX - minX + 1,
				Height: maxY - minY + 1,
			})
		}
	}
	return regions
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
