/**
 * LLM Classification Client
 *
 * Talks to an OpenAI-compatible chat-completions endpoint (OpenRouter by
 * default) and recovers the classification JSON from the reply by locating
 * the first balanced brace span. Malformed or missing fields fall back to
 * defaults instead of failing the call.
 */

package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultChatEndpoint = "https://openrouter.ai/api/v1/chat/completions"

const classificationPrompt = `Analyze the error below and return the result as JSON.

Error text: %s
Application hint: %s

Determine:
1. application_type: application type (1c, windows, office, browser, other)
2. error_category: error category (sql, config, rights, system, connection, etc.)
3. severity: severity level (low, medium, high, critical)
4. keywords: search keywords for finding a solution (array of strings)
5. confidence: classification confidence (0-100)
6. suggested_actions: suggested actions (array of strings)

Answer strictly in JSON:
{
    "application_type": "string",
    "error_category": "string",
    "severity": "string",
    "keywords": ["string"],
    "confidence": number,
    "suggested_actions": ["string"]
}`

// LLMClient classifies errors through a hosted chat model
type LLMClient struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

// NewLLMClient creates the client; apiKey is required
func NewLLMClient(endpoint, model, apiKey string) (*LLMClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if endpoint == "" {
		endpoint = defaultChatEndpoint
	}
	if model == "" {
		model = "meta-llama/llama-3.1-8b-instruct"
	}
	return &LLMClient{
		endpoint:   endpoint,
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type llmRequest struct {
	Model       string       `json:"model"`
	Temperature float64      `json:"temperature"`
	Messages    []llmMessage `json:"messages"`
}

type llmMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type llmResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Classify asks the model to classify the error text
func (c *LLMClient) Classify(ctx context.Context, errorText string, applicationHint string) (*Classification, error) {
	if applicationHint == "" {
		applicationHint = "none"
	}

	reqBody := llmRequest{
		Model:       c.model,
		Temperature: 0.1,
		Messages: []llmMessage{
			{Role: "user", Content: fmt.Sprintf(classificationPrompt, errorText, applicationHint)},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classification request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("LLM API returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed llmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	return parseClassificationJSON(parsed.Choices[0].Message.Content)
}

// parseClassificationJSON recovers a Classification from model output that
// may wrap the JSON in prose or code fences
func parseClassificationJSON(content string) (*Classification, error) {
	span := extractJSONSpan(content)
	if span == "" {
		return nil, fmt.Errorf("no JSON object found in LLM response")
	}

	var raw struct {
		ApplicationType  string      `json:"application_type"`
		ErrorCategory    string      `json:"error_category"`
		Severity         string      `json:"severity"`
		Keywords         []string    `json:"keywords"`
		Confidence       json.Number `json:"confidence"`
		SuggestedActions []string    `json:"suggested_actions"`
	}

	decoder := json.NewDecoder(bytes.NewReader([]byte(span)))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode classification JSON: %w", err)
	}

	result := &Classification{
		ApplicationType:  raw.ApplicationType,
		ErrorCategory:    raw.ErrorCategory,
		Severity:         raw.Severity,
		Keywords:         raw.Keywords,
		SuggestedActions: raw.SuggestedActions,
	}

	// Missing fields get defaults rather than failing the classification
	if result.ApplicationType == "" {
		result.ApplicationType = "unknown"
	}
	if result.ErrorCategory == "" {
		result.ErrorCategory = "unknown"
	}
	if result.Severity == "" {
		result.Severity = "medium"
	}
	if result.Keywords == nil {
		result.Keywords = []string{}
	}
	if result.SuggestedActions == nil {
		result.SuggestedActions = []string{}
	}
	if conf, err := raw.Confidence.Float64(); err == nil {
		result.Confidence = conf
	} else {
		result.Confidence = 50.0
	}

	return result, nil
}

// extractJSONSpan returns the first balanced {...} span in the text, or ""
func extractJSONSpan(text string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}

		switch r {
		case '"':
			if start >= 0 {
				inString = true
			}
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start >= 0 {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}

var _ LLMClassifier = (*LLMClient)(nil)
