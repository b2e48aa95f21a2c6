/**
 * OCR Types for ErrorScope Analysis Worker
 *
 * Shared types for the OCR ensemble: per-engine hypotheses, word boxes and
 * the structured error info extracted from recognized text.
 */

package ocr

import "image"

// Hypothesis is one engine's reading of a screenshot
type Hypothesis struct {
	Text       string
	Confidence float64 // 0-100
	Engine     string
	Language   string
	Boxes      []WordBox
}

// WordBox is a recognized word with position and confidence
type WordBox struct {
	Word       string
	Confidence float64
	Bounds     image.Rectangle
}

// StructuredErrorInfo is what the pipeline extracts from the best hypothesis
type StructuredErrorInfo struct {
	PrimaryCode     string
	Codes           []string
	ApplicationHint string
	ErrorMessage    string
}
