/**
 * Tesseract OCR Engine
 *
 * Offline OCR using Tesseract. Runs each configured language separately and
 * keeps the higher-yield reading; confidence is the mean of word-level
 * confidences reported by Tesseract (native 0-100 scale).
 */

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"unicode/utf8"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine handles OCR using a local Tesseract installation
type TesseractEngine struct {
	languages []string
}

// NewTesseractEngine creates a Tesseract engine for the given languages
func NewTesseractEngine(languages []string) (*TesseractEngine, error) {
	if len(languages) == 0 {
		return nil, fmt.Errorf("at least one OCR language is required")
	}
	return &TesseractEngine{languages: languages}, nil
}

func (t *TesseractEngine) Name() string {
	return "tesseract"
}

// Recognize runs Tesseract once per language and returns the reading that
// produced the most text
func (t *TesseractEngine) Recognize(ctx context.Context, img *image.Gray) (*Hypothesis, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image for tesseract: %w", err)
	}
	data := buf.Bytes()

	var best *Hypothesis
	var lastErr error

	for _, lang := range t.languages {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		hyp, err := t.recognizeLanguage(data, lang)
		if err != nil {
			lastErr = err
			continue
		}
		if best == nil || textYield(hyp.Text) > textYield(best.Text) {
			best = hyp
		}
	}

	if best == nil {
		if lastErr != nil {
			return nil, fmt.Errorf("tesseract OCR failed: %w", lastErr)
		}
		return nil, fmt.Errorf("tesseract produced no output")
	}
	return best, nil
}

func (t *TesseractEngine) recognizeLanguage(data []byte, lang string) (*Hypothesis, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("failed to set language %s: %w", lang, err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("text extraction failed for %s: %w", lang, err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		// Text without boxes is still usable, fall back to a flat confidence
		return &Hypothesis{
			Text:       text,
			Confidence: 50.0,
			Engine:     "tesseract",
			Language:   lang,
		}, nil
	}

	words := make([]WordBox, 0, len(boxes))
	var confSum float64
	for _, box := range boxes {
		words = append(words, WordBox{
			Word:       box.Word,
			Confidence: box.Confidence,
			Bounds:     box.Box,
		})
		confSum += box.Confidence
	}

	confidence := 0.0
	if len(words) > 0 {
		confidence = confSum / float64(len(words))
	}

	return &Hypothesis{
		Text:       text,
		Confidence: confidence,
		Engine:     "tesseract",
		Language:   lang,
		Boxes:      words,
	}, nil
}

// textYield measures a reading in characters rather than bytes, so
// multibyte Cyrillic output is not overweighted against Latin
func textYield(text string) int {
	return utf8.RuneCountInString(text)
}

var _ Engine = (*TesseractEngine)(nil)
