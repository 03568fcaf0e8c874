package errors

import (
	"fmt"
)

// Common error creators for frequent use cases

// NewValidationError creates a validation error with field context
func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewSMTPError creates a transport error for the outbound (submission) leg
func NewSMTPError(relayHost string, err error) *AppError {
	return Wrap(err, ErrCodeSMTPSend, "SMTP submission failed").
		WithContext("relay_host", relayHost).
		WithUserMessage("Failed to send probe message")
}

// NewIMAPError creates a transport error for the inbound (retrieval) leg
func NewIMAPError(relayHost string, err error) *AppError {
	return Wrap(err, ErrCodeIMAPFetch, "IMAP retrieval failed").
		WithContext("relay_host", relayHost).
		WithUserMessage("Failed to inspect relay inbox")
}

// NewTimeoutError creates a timeout error with context
func NewTimeoutError(operation string, duration string) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out after %s", operation, duration)).
		WithContext("operation", operation).
		WithContext("timeout", duration).
		WithUserMessage("Operation timed out, please try again")
}

// NewAuthError creates an authentication error
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage("Authentication failed")
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(limit int, window string) *AppError {
	return New(ErrCodeRateLimit, "rate limit exceeded").
		WithContext("limit", limit).
		WithContext("window", window).
		WithUserMessage("Too many requests, please try again later")
}

// HTTP helpers

// HTTPStatusCode maps error codes to appropriate HTTP status codes
func HTTPStatusCode(err error) int {
	code := GetCode(err)

	switch code {
	case ErrCodeValidationFailed, ErrCodeInvalidInput, ErrCodeInvalidConfig:
		return 400 // Bad Request
	case ErrCodeAuthentication:
		return 401 // Unauthorized
	case ErrCodeNotFound:
		return 404 // Not Found
	case ErrCodeRelayUnavailable, ErrCodeTemplateUnavailable, ErrCodeQuotaExhausted:
		return 404 // Not Found (no usable resource)
	case ErrCodeRateLimit:
		return 429 // Too Many Requests
	case ErrCodeTimeout:
		return 408 // Request Timeout
	case ErrCodeSMTPSend, ErrCodeIMAPFetch:
		if IsRetryable(err) {
			return 502 // Bad Gateway
		}
		return 500 // Internal Server Error
	case ErrCodeDatabaseConnection, ErrCodeDatabaseQuery, ErrCodeDatabaseMigration:
		return 503 // Service Unavailable
	default:
		return 500 // Internal Server Error
	}
}

// HTTPErrorResponse is a standardized HTTP error response body
type HTTPErrorResponse struct {
	Error struct {
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Context interface{} `json:"context,omitempty"`
	} `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an error to a standardized HTTP response
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	response := HTTPErrorResponse{
		RequestID: requestID,
	}

	if appErr, ok := err.(*AppError); ok {
		response.Error.Code = appErr.Code
		response.Error.Message = GetUserMessage(err)
		if len(appErr.Context) > 0 {
			// Credentials never leave the process in HTTP responses
			publicContext := make(map[string]interface{})
			for k, v := range appErr.Context {
				if k != "password" && k != "token" && k != "secret" && k != "username" {
					publicContext[k] = v
				}
			}
			if len(publicContext) > 0 {
				response.Error.Context = publicContext
			}
		}
	} else {
		response.Error.Code = ErrCodeInternalError
		response.Error.Message = GetUserMessage(err)
	}

	return response
}
