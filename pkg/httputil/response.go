package httputil

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/appointment-engine/pkg/errors"
	"github.com/jwalitptl/appointment-engine/pkg/validator"
)

// Response wraps all API responses
type Response struct {
	Status    string                 `json:"status"`
	Data      interface{}            `json:"data,omitempty"`
	Code      string                 `json:"code,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Errors    []validator.FieldError `json:"errors,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"

func RespondWithSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{
		Status: StatusSuccess,
		Data:   data,
	})
}

// RespondWithError renders err. Application errors keep their code and
// message; anything else is reported as an opaque internal error.
func RespondWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(StatusOf(err), ErrorBody(c, err))
}

func StatusOf(err error) int {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code.HTTPStatus()
	}
	return http.StatusInternalServerError
}

func ErrorBody(c *gin.Context, err error) Response {
	body := Response{
		Status:    StatusError,
		Code:      errors.CodeInternal.String(),
		Message:   "internal server error",
		RequestID: c.GetString(RequestIDKey),
	}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		body.Code = appErr.Code.String()
		body.Message = appErr.Message
		body.Errors = validator.Fields(appErr.Err)
	}
	return body
}
