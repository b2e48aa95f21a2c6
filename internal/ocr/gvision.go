/**
 * Google Cloud Vision OCR Engine
 *
 * Document text detection through the Cloud Vision API. Credentials come
 * from Application Default Credentials. Page confidence is reported on a
 * 0-1 scale by the API and rescaled to the ensemble's 0-100 range.
 */

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"unicode"

	vision "cloud.google.com/go/vision/apiv1"
)

// GoogleVisionEngine handles OCR via the Cloud Vision API
type GoogleVisionEngine struct {
	client *vision.ImageAnnotatorClient
}

// NewGoogleVisionEngine creates the engine using ambient credentials
func NewGoogleVisionEngine(ctx context.Context) (*GoogleVisionEngine, error) {
	client, err := vision.NewImageAnnotatorClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	return &GoogleVisionEngine{client: client}, nil
}

func (g *GoogleVisionEngine) Name() string {
	return "google-vision"
}

func (g *GoogleVisionEngine) Recognize(ctx context.Context, img *image.Gray) (*Hypothesis, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image for vision API: %w", err)
	}

	visionImg, err := vision.NewImageFromReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("failed to build vision image: %w", err)
	}

	annotation, err := g.client.DetectDocumentText(ctx, visionImg, nil)
	if err != nil {
		return nil, fmt.Errorf("document text detection failed: %w", err)
	}
	if annotation == nil || annotation.Text == "" {
		return nil, fmt.Errorf("vision API returned no text")
	}

	var confSum float64
	for _, page := range annotation.Pages {
		confSum += float64(page.Confidence)
	}
	confidence := 0.0
	if len(annotation.Pages) > 0 {
		confidence = confSum / float64(len(annotation.Pages)) * 100.0
	}

	return &Hypothesis{
		Text:       annotation.Text,
		Confidence: confidence,
		Engine:     "google-vision",
		Language:   detectLanguage(annotation.Text),
	}, nil
}

// Close releases the underlying API client
func (g *GoogleVisionEngine) Close() error {
	return g.client.Close()
}

// detectLanguage guesses rus vs eng by script character counts
func detectLanguage(text string) string {
	cyrillic, latin := 0, 0
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}
	if cyrillic > latin {
		return "rus"
	}
	return "eng"
}

var _ Engine = (*GoogleVisionEngine)(nil)
