package domain

import (
	"fmt"
	"time"
)

// ServiceError represents a standardized error response
type ServiceError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrInvalidInput = "INVALID_INPUT"
	ErrPredictor    = "PREDICTOR_ERROR"
	ErrStorage      = "STORAGE_ERROR"
	ErrProcessing   = "PROCESSING_ERROR"
	ErrRateLimit    = "RATE_LIMIT_EXCEEDED"
	ErrValidation   = "VALIDATION_ERROR"
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewServiceError creates a new ServiceError with timestamp
func NewServiceError(code, message, details, requestID string) *ServiceError {
	return &ServiceError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// ErrorAnalysis builds the fallback analysis returned for a row that failed to process.
func ErrorAnalysis(err error) AnalysisResult {
	return AnalysisResult{
		Probability: 0.5,
		RiskLevel:   RISK_ERROR,
		Diagnoses: []Diagnosis{
			{Condition: "Processing Error", Confidence: 0.0},
		},
		Anomalies:       []string{fmt.Sprintf("Error: %v", err)},
		Recommendations: []string{"Please check input data"},
		Confidence:      LOW,
	}
}
