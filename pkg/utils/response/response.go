// Package response writes the JSON bodies returned by the HTTP API.
//
// Successful calls return the resource payload as the top-level object.
// Failures always carry the same envelope so clients can rely on `detail`.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	infralogger "github.com/kart-io/learning-rag/pkg/infra/logger"
	"github.com/kart-io/learning-rag/pkg/infra/middleware/common"
	"github.com/kart-io/learning-rag/pkg/utils/errors"
)

// ErrorBody is the JSON envelope written for any failed request.
type ErrorBody struct {
	// Code is the business error code
	Code int `json:"code"`

	// Message is the short, stable description of the error kind
	Message string `json:"message"`

	// Detail explains what went wrong, including the underlying cause
	Detail string `json:"detail"`

	// RequestID is the unique request identifier for tracing
	RequestID string `json:"request_id,omitempty"`
}

// OK writes data with status 200.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Err builds the error envelope for e.
func Err(e *errors.Errno, requestID string) *ErrorBody {
	return &ErrorBody{
		Code:      e.Code,
		Message:   e.MessageEN,
		Detail:    e.Detail(),
		RequestID: requestID,
	}
}

// Fail translates err to an Errno and writes the error envelope.
// Server side failures are logged, client errors are not.
func Fail(c *gin.Context, err error) {
	e := errors.FromError(err)
	requestID := common.GetRequestID(c.Request.Context())

	if e.HTTPStatus() >= http.StatusInternalServerError {
		infralogger.LogError(c.Request.Context(), "request failed", err,
			"code", e.Code,
			"path", c.Request.URL.Path,
		)
	}

	c.AbortWithStatusJSON(e.HTTPStatus(), Err(e, requestID))
}
