package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	domain "recordbridge/internal/domain/pipeline"
)

// APIError is the JSON error body every endpoint returns.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// toAPIError maps domain sentinel errors onto HTTP statuses. Anything
// unrecognized is a 500 with the raw detail kept out of the response body.
func toAPIError(err error) *APIError {
	switch {
	case errors.Is(err, domain.ErrJobNotFound),
		errors.Is(err, domain.ErrReviewItemNotFound),
		errors.Is(err, domain.ErrTransferNotFound),
		errors.Is(err, domain.ErrConfigNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, domain.ErrReviewConflict),
		errors.Is(err, domain.ErrJobAlreadyTransferred):
		return &APIError{Status: http.StatusConflict, Code: "CONFLICT", Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrTransferNotPending),
		errors.Is(err, domain.ErrTransferNotFailed):
		return &APIError{Status: http.StatusUnprocessableEntity, Code: "INVALID_STATE", Message: err.Error()}
	case errors.Is(err, domain.ErrRequiredFieldsInvalid),
		errors.Is(err, domain.ErrRejectReasonRequired),
		errors.Is(err, domain.ErrUnknownRecordType),
		errors.Is(err, domain.ErrInvalidRuleSet):
		return &APIError{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: err.Error()}
	case errors.Is(err, domain.ErrTransferWrite):
		return &APIError{Status: http.StatusBadGateway, Code: "TRANSFER_FAILED", Message: err.Error()}
	default:
		return &APIError{Status: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Message: "an unexpected error occurred"}
	}
}

// ErrorHandler is installed as the echo HTTPErrorHandler.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &httpErr):
		apiErr = &APIError{Status: httpErr.Code, Code: "HTTP_ERROR", Message: http.StatusText(httpErr.Code)}
	default:
		apiErr = toAPIError(err)
	}
	_ = c.JSON(apiErr.Status, apiErr)
}
