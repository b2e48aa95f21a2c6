/**
 * Vision LLM OCR Engine
 *
 * Sends the screenshot to an OpenAI-compatible chat-completions endpoint as
 * a base64 image_url part and treats the reply as the recognized text. The
 * endpoint is interchangeable; only the wire contract is fixed. Confidence
 * is a fixed engine-level value since chat APIs report none.
 */

package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"
)

const visionOCRPrompt = "Extract ALL text visible in this error screenshot. " +
	"Return only the text content, preserving line breaks. Do not describe the image."

// VisionLLMEngine handles OCR through a hosted vision model
type VisionLLMEngine struct {
	endpoint   string
	model      string
	apiKey     string
	confidence float64
	httpClient *http.Client
}

// NewVisionLLMEngine creates the engine; endpoint is required. confidence
// is the fixed score reported for every reading, since chat APIs report
// none; values outside (0, 100] fall back to 80.
func NewVisionLLMEngine(endpoint, model, apiKey string, confidence float64) (*VisionLLMEngine, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("vision LLM endpoint is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if confidence <= 0 || confidence > 100 {
		confidence = 80.0
	}
	return &VisionLLMEngine{
		endpoint:   endpoint,
		model:      model,
		apiKey:     apiKey,
		confidence: confidence,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (v *VisionLLMEngine) Name() string {
	return "vision-llm"
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (v *VisionLLMEngine) Recognize(ctx context.Context, img *image.Gray) (*Hypothesis, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	reqBody := chatRequest{
		Model:       v.model,
		Temperature: 0.0,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: visionOCRPrompt},
					{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
				},
			},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.apiKey)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision LLM request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vision LLM returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("vision LLM returned no choices")
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return nil, fmt.Errorf("vision LLM returned empty text")
	}

	return &Hypothesis{
		Text:       text,
		Confidence: v.confidence,
		Engine:     "vision-llm",
		Language:   detectLanguage(text),
	}, nil
}

var _ Engine = (*VisionLLMEngine)(nil)
