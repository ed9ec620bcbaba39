// Package core provides the shared types and errors of the chat gateway.
package core

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// ErrorType represents the type of error that occurred
type ErrorType string

const (
	// ErrorTypeUnknownProvider indicates the requested provider id is not registered
	ErrorTypeUnknownProvider ErrorType = "unknown_provider"
	// ErrorTypeMissingCredential indicates the provider has no API key configured
	ErrorTypeMissingCredential ErrorType = "missing_credential"
	// ErrorTypeInvalidRequest indicates the request envelope failed validation
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
	// ErrorTypeUpstream indicates the provider answered with a non-2xx status
	ErrorTypeUpstream ErrorType = "upstream_error"
	// ErrorTypeTransport indicates a connect, timeout or read failure
	ErrorTypeTransport ErrorType = "transport_failure"
	// ErrorTypeMalformedChunk indicates an undecodable stream payload
	ErrorTypeMalformedChunk ErrorType = "malformed_chunk"
	// ErrorTypeAuthentication indicates a rejected access code (401)
	ErrorTypeAuthentication ErrorType = "authentication_error"
	// ErrorTypeNotFound indicates a missing resource (404)
	ErrorTypeNotFound ErrorType = "not_found"
)

// GatewayError is the base error type for all gateway errors
type GatewayError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	Provider   string    `json:"provider,omitempty"`

	// UpstreamStatus and UpstreamBody are set for ErrorTypeUpstream only.
	UpstreamStatus int    `json:"upstream_status,omitempty"`
	UpstreamBody   []byte `json:"-"`

	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *GatewayError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *GatewayError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeUnknownProvider, ErrorTypeMissingCredential, ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeUpstream, ErrorTypeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to a JSON-compatible map
func (e *GatewayError) ToJSON() map[string]interface{} {
	body := map[string]interface{}{
		"type":    e.Type,
		"message": e.Message,
	}
	if e.Provider != "" {
		body["provider"] = e.Provider
	}
	if e.UpstreamStatus != 0 {
		body["upstream_status"] = e.UpstreamStatus
	}
	return map[string]interface{}{"error": body}
}

// NewUnknownProviderError is returned when the registry has no profile for id.
func NewUnknownProviderError(id string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeUnknownProvider,
		Message:    fmt.Sprintf("unknown provider %q", id),
		StatusCode: http.StatusBadRequest,
		Provider:   id,
	}
}

// NewMissingCredentialError is returned when a provider profile has an empty API key.
func NewMissingCredentialError(provider string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeMissingCredential,
		Message:    "no API key configured for provider",
		StatusCode: http.StatusBadRequest,
		Provider:   provider,
	}
}

// NewInvalidRequestError creates a new invalid request error (400)
func NewInvalidRequestError(message string, err error) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

// NewUpstreamError carries the upstream status and body unchanged.
// Client status is the upstream status when it is an error code, 502 otherwise.
func NewUpstreamError(provider string, status int, body []byte) *GatewayError {
	statusCode := status
	if status < 400 || status > 599 {
		statusCode = http.StatusBadGateway
	}
	return &GatewayError{
		Type:           ErrorTypeUpstream,
		Message:        upstreamMessage(status, body),
		StatusCode:     statusCode,
		Provider:       provider,
		UpstreamStatus: status,
		UpstreamBody:   body,
	}
}

// NewTransportError wraps connect, timeout and read failures.
func NewTransportError(provider, message string, err error) *GatewayError {
	if err != nil {
		message = message + ": " + err.Error()
	}
	return &GatewayError{
		Type:       ErrorTypeTransport,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Provider:   provider,
		Err:        err,
	}
}

// NewMalformedChunkError describes a stream payload that could not be decoded.
func NewMalformedChunkError(provider string, payload []byte, err error) *GatewayError {
	return &GatewayError{
		Type:     ErrorTypeMalformedChunk,
		Message:  fmt.Sprintf("undecodable stream payload (%d bytes)", len(payload)),
		Provider: provider,
		Err:      err,
	}
}

// NewAuthenticationError creates a new authentication error (401)
func NewAuthenticationError(message string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewNotFoundError creates a new not found error (404)
func NewNotFoundError(message string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// IsErrorType reports whether err is a GatewayError of type t.
func IsErrorType(err error, t ErrorType) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr) && gwErr.Type == t
}

// upstreamMessage prefers the provider's own error message when the body is
// an OpenAI or Anthropic style error object.
func upstreamMessage(status int, body []byte) string {
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "error.message"); msg.Exists() && msg.String() != "" {
			return fmt.Sprintf("upstream returned %d: %s", status, msg.String())
		}
	}
	if len(body) == 0 {
		return fmt.Sprintf("upstream returned %d", status)
	}
	const maxLen = 512
	text := string(body)
	if len(text) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	return fmt.Sprintf("upstream returned %d: %s", status, text)
}
