package response

import (
	"net/http"

	"fintrack/internal/apperr"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess      = 0
	CodeParamError   = 400
	CodeUnauthorized = 401
	CodeNotFound     = 404
	CodeConflict     = 409
	CodeServerError  = 500
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

// ErrorWithData is used when a failure still carries a useful payload,
// e.g. the partial result of a cancelled bulk apply.
func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, CodeUnauthorized, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

// CodeOf maps a service error to its envelope code.
func CodeOf(err error) int {
	switch {
	case apperr.IsValidation(err):
		return CodeParamError
	case apperr.IsNotFound(err):
		return CodeNotFound
	case apperr.IsConflict(err):
		return CodeConflict
	default:
		return CodeServerError
	}
}

// FromError writes err with its mapped code. Internal errors are not echoed.
func FromError(c *gin.Context, err error) {
	code := CodeOf(err)
	if code == CodeServerError {
		Error(c, code, "internal error")
		return
	}
	Error(c, code, err.Error())
}
