package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeInternal     ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal     ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed  ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount     ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidCardNumber ErrorCode = "INVALID_CARD_NUMBER"
	ErrCodeInvalidExpiry     ErrorCode = "INVALID_EXPIRY"
	ErrCodeInvalidCVV        ErrorCode = "INVALID_CVV"
	ErrCodeInvalidName       ErrorCode = "INVALID_CARDHOLDER_NAME"
	ErrCodeInvalidUPI        ErrorCode = "INVALID_UPI_ID"
	ErrCodeInvalidUPIApp     ErrorCode = "INVALID_UPI_APP"
	ErrCodeUnsupportedMethod ErrorCode = "UNSUPPORTED_METHOD"

	ErrCodeEnrollmentNotFound ErrorCode = "ENROLLMENT_NOT_FOUND"
	ErrCodeSessionNotFound    ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeTransactionMissing ErrorCode = "TRANSACTION_NOT_FOUND"
	ErrCodeUnauthorizedAccess ErrorCode = "UNAUTHORIZED_ACCESS"
	ErrCodeAlreadyPaid        ErrorCode = "ALREADY_PAID"

	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired ErrorCode = "TOKEN_EXPIRED"

	ErrCodeSessionInitFailed ErrorCode = "SESSION_INIT_FAILED"
	ErrCodePaymentDeclined   ErrorCode = "PAYMENT_DECLINED"
	ErrCodeGatewayTimeout    ErrorCode = "GATEWAY_TIMEOUT"
	ErrCodeGatewayError      ErrorCode = "GATEWAY_ERROR"
	ErrCodePaymentInProgress ErrorCode = "PAYMENT_IN_PROGRESS"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeCancelNotAllowed  ErrorCode = "CANCEL_NOT_ALLOWED"
	ErrCodeCommitFailed      ErrorCode = "COMMIT_FAILED"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCause returns a copy so shared sentinel values are never mutated.
func (e *AppError) WithCause(cause error) *AppError {
	cp := *e
	cp.Cause = cause
	return &cp
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// Is matches on error code so callers can compare against sentinels after WithCause.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// NewFieldErrors builds the 422 returned when a checkout input does not pass its validators.
func NewFieldErrors(errs []ValidationError) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusUnprocessableEntity,
		Details:    ValidationErrors{Errors: errs},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewExternalError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadGateway,
	}
}

var (
	ErrEnrollmentNotFound = NewNotFoundError("Enrollment not found", ErrCodeEnrollmentNotFound)
	ErrSessionNotFound    = NewNotFoundError("Checkout session not found", ErrCodeSessionNotFound)
	ErrUnauthorizedAccess = NewForbiddenError("unauthorized access to enrollment", ErrCodeUnauthorizedAccess)
	ErrAlreadyPaid        = NewConflictError("Enrollment is already paid", ErrCodeAlreadyPaid)

	ErrInvalidToken = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired = NewUnauthorizedError("Token has expired", ErrCodeTokenExpired)
	ErrMissingToken = NewUnauthorizedError("Authorization header required", ErrCodeInvalidToken)
	ErrRoleDenied   = NewForbiddenError("Role is not allowed to perform this action", ErrCodeUnauthorizedAccess)

	ErrSessionInitFailed = NewExternalError("Unable to start the payment session", ErrCodeSessionInitFailed)
	ErrPaymentDeclined   = NewExternalError("Payment was declined by the bank. Please try again or use a different payment method.", ErrCodePaymentDeclined)
	ErrGatewayTimeout    = NewExternalError("Payment gateway did not respond in time", ErrCodeGatewayTimeout)
	ErrGatewayError      = NewExternalError("Payment could not be processed", ErrCodeGatewayError)
	ErrPaymentInProgress = NewConflictError("Payment is already being processed", ErrCodePaymentInProgress)
	ErrInvalidTransition = NewConflictError("Action not allowed in the current checkout state", ErrCodeInvalidTransition)
	ErrCancelNotAllowed  = NewConflictError("Checkout cannot be cancelled while payment is processing", ErrCodeCancelNotAllowed)
	ErrCommitFailed      = &AppError{
		Type:       ErrorTypeInternal,
		Code:       ErrCodeCommitFailed,
		Message:    "Payment succeeded but could not be saved",
		StatusCode: http.StatusInternalServerError,
	}
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
