package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeConfiguration represents missing or invalid configuration
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeFetch represents bulk feed download errors
	ErrorTypeFetch ErrorType = "fetch"
	// ErrorTypeNavigation represents browser navigation errors
	ErrorTypeNavigation ErrorType = "navigation"
	// ErrorTypeRateLimit represents rate limiting by the remote site
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeBlocked represents anti-bot detection responses
	ErrorTypeBlocked ErrorType = "blocked"
	// ErrorTypePersistence represents storage errors
	ErrorTypePersistence ErrorType = "persistence"
)

// WorkerError represents a typed error raised by one of the worker components
type WorkerError struct {
	Type      ErrorType
	Component string
	Message   string
	Err       error
	Time      time.Time
}

// Error implements the error interface
func (e *WorkerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Component, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Component, e.Message)
}

// Unwrap returns the underlying error
func (e *WorkerError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *WorkerError) IsRetryable() bool {
	return e.Type == ErrorTypeRateLimit
}

// New creates a new WorkerError
func New(errType ErrorType, component, message string, err error) *WorkerError {
	return &WorkerError{
		Type:      errType,
		Component: component,
		Message:   message,
		Err:       err,
		Time:      time.Now(),
	}
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *WorkerError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// NewFetch creates a new feed fetch error
func NewFetch(component, message string, err error) *WorkerError {
	return New(ErrorTypeFetch, component, message, err)
}

// NewNavigation creates a new browser navigation error
func NewNavigation(component, message string, err error) *WorkerError {
	return New(ErrorTypeNavigation, component, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(component string, retries int) *WorkerError {
	message := fmt.Sprintf("rate limited after %d retries", retries)
	return New(ErrorTypeRateLimit, component, message, nil)
}

// NewBlocked creates a new anti-bot detection error
func NewBlocked(component string, status int) *WorkerError {
	message := fmt.Sprintf("blocked with status %d", status)
	return New(ErrorTypeBlocked, component, message, nil)
}

// NewPersistence creates a new storage error
func NewPersistence(component, message string, err error) *WorkerError {
	return New(ErrorTypePersistence, component, message, err)
}

// TypeOf returns the ErrorType of err, or an empty type for untyped errors
func TypeOf(err error) ErrorType {
	var we *WorkerError
	if errors.As(err, &we) {
		return we.Type
	}
	return ""
}
