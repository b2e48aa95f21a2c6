package apperrors

import (
	"fmt"
	"time"
)

/**
 * Custom error types for ErrorScope Analysis Worker
 *
 * Only decode failures, all-engines failures and relational write failures
 * reach the caller; everything else is an internal degradation that gets
 * logged and absorbed by the component that saw it.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Pipeline errors surfaced to the caller
	ErrorDecodeFailed     ErrorCode = "DECODE_FAILED"
	ErrorNoTextRecognized ErrorCode = "NO_TEXT_RECOGNIZED"
	ErrorStorageFailed    ErrorCode = "STORAGE_FAILED"

	// Internal degradations (logged, absorbed)
	ErrorEngineFailed      ErrorCode = "OCR_ENGINE_FAILED"
	ErrorClassifyFallback  ErrorCode = "CLASSIFY_FALLBACK"
	ErrorIndexDegraded     ErrorCode = "INDEX_DEGRADED"
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
)

// AnalysisError represents a structured analysis error
type AnalysisError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *AnalysisError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AnalysisError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

func NewDecodeFailedError(jobID string, cause error) *AnalysisError {
	return &AnalysisError{
		Code:      ErrorDecodeFailed,
		Message:   "Image could not be decoded",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewNoTextRecognizedError(jobID string, enginesTried int) *AnalysisError {
	return &AnalysisError{
		Code:      ErrorNoTextRecognized,
		Message:   "No text recognized by any OCR engine",
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"engines_tried": enginesTried,
		},
	}
}

func NewEngineFailedError(jobID string, engine string, cause error) *AnalysisError {
	return &AnalysisError{
		Code:      ErrorEngineFailed,
		Message:   fmt.Sprintf("OCR engine failed: %s", engine),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"engine": engine,
		},
		Cause: cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *AnalysisError {
	return &AnalysisError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to persist analysis results",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *AnalysisError {
	return &AnalysisError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

// ToMap converts error to map for database storage
func (e *AnalysisError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
