package ocr

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewVisionLLMEngineValidation(t *testing.T) {
	if _, err := NewVisionLLMEngine("", "model", "key", 80); err == nil {
		t.Error("expected error for missing endpoint")
	}

	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"configured value kept", 65.5, 65.5},
		{"zero falls back", 0, 80.0},
		{"negative falls back", -5, 80.0},
		{"above scale falls back", 150, 80.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := NewVisionLLMEngine("http://localhost/v1/chat/completions", "", "", tt.in)
			if err != nil {
				t.Fatalf("constructor failed: %v", err)
			}
			if engine.confidence != tt.want {
				t.Errorf("confidence = %.1f, want %.1f", engine.confidence, tt.want)
			}
		})
	}
}

func TestVisionLLMEngineReportsConfiguredConfidence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"Ошибка 1045: доступ запрещен"}}]}`)
	}))
	defer server.Close()

	engine, err := NewVisionLLMEngine(server.URL, "test-model", "", 65.5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	hyp, err := engine.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 20, 20)))
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}

	if hyp.Confidence != 65.5 {
		t.Errorf("confidence = %.1f, want the configured 65.5", hyp.Confidence)
	}
	if hyp.Text != "Ошибка 1045: доступ запрещен" {
		t.Errorf("unexpected text: %q", hyp.Text)
	}
	if hyp.Language != "rus" {
		t.Errorf("language = %q, want rus", hyp.Language)
	}
}
