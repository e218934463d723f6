package types

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeSubscriptionRequired = "SUBSCRIPTION_REQUIRED"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeUnknown              = "UNKNOWN_ERROR"
)

// APIError is a structured failure reported by the generation endpoint. Its
// Message is meant to be shown to the user verbatim.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	Status  int            `json:"-"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(status int, code string, message string, data map[string]any) *APIError {
	return &APIError{Code: code, Message: message, Data: data, Status: status}
}

func ValidationError(message string, data map[string]any) *APIError {
	return NewAPIError(http.StatusBadRequest, CodeValidation, message, data)
}

func SubscriptionRequired(message string, requestsRemaining int) *APIError {
	return NewAPIError(http.StatusPaymentRequired, CodeSubscriptionRequired, message, map[string]any{
		"requestsRemaining": requestsRemaining,
	})
}

func Unauthorized(message string) *APIError {
	return NewAPIError(http.StatusUnauthorized, CodeUnauthorized, message, nil)
}

// AsAPIError unwraps err to an *APIError when one is in the chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr, true
	}
	return nil, false
}

// CodeFromError returns the API error code, or "" for other errors.
func CodeFromError(err error) string {
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.Code
	}
	return ""
}
