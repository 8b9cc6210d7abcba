package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/challengehub/errutil"
)

// JSONResponse defines the uniform structure for API responses.
type JSONResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Respond writes a JSON response with the given status code.
func Respond(ctx *gin.Context, status int, code int, message string, data interface{}) {
	ctx.JSON(status, JSONResponse{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// Success returns a standard success response.
func Success(ctx *gin.Context, data interface{}) {
	Respond(ctx, http.StatusOK, 0, "success", data)
}

// Error returns a standard error response.
func Error(ctx *gin.Context, status int, code int, message string) {
	Respond(ctx, status, code, message, nil)
}

// RespondError maps a service error onto status, business code and message.
// Internal errors are logged and answered with a generic message.
func RespondError(ctx *gin.Context, err error) {
	status := errutil.HTTPStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		zap.L().Error("request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
		Error(ctx, status, errutil.Code(err), "internal server error")
		return
	}
	msg := err.Error()
	if e, ok := errutil.As(err); ok {
		msg = e.Message
	}
	Error(ctx, status, errutil.Code(err), msg)
}
