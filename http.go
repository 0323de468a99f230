package auth

import (
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// ErrorBody is the error part of the JSON envelope
type ErrorBody struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	TextCode string `json:"text_code,omitempty"`
}

// ErrorResponse is the JSON envelope of every failed request
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

// NewErrorResponse builds the envelope, internal error details are never exposed
func NewErrorResponse(err error) ErrorResponse {
	var richErr *errors.Error
	if !errors.As(err, &richErr) || richErr.Code == 0 || richErr.Code >= errors.CodeInternal {
		return ErrorResponse{
			Error: ErrorBody{
				Code:    errors.CodeInternal,
				Message: "An unexpected server error occurred",
			},
		}
	}

	return ErrorResponse{
		Error: ErrorBody{
			Code:     richErr.Code,
			Message:  richErr.Message,
			TextCode: richErr.TextCode,
		},
	}
}

// RenderError writes the JSON error envelope with the status from the error code
func RenderError(ctx router.Context, err error) error {
	res := NewErrorResponse(err)
	return ctx.JSON(res.Error.Code, res)
}
