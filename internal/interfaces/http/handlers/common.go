// Package handlers implements the HTTP API endpoints.
package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stratlens/stratlens/pkg/errors"
)

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// respondError maps an error to its HTTP status via the error-code
// table.  Server-side failures are masked; the code survives so the
// client can still distinguish categories.
func respondError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)

	resp := ErrorResponse{Code: code.String()}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		resp.Message = appErr.Message
		if status < http.StatusInternalServerError {
			resp.Detail = appErr.Detail
		}
	} else {
		resp.Message = errors.DefaultMessageForCode(code)
	}
	if status >= http.StatusInternalServerError {
		resp.Message = errors.DefaultMessageForCode(code)
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}
