package ocr

import (
	"context"
	"image"
)

// Engine recognizes text in a preprocessed screenshot.
// Implementations must honor ctx cancellation and return an error rather
// than an empty hypothesis when recognition fails outright.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, img *image.Gray) (*Hypothesis, error)
}
