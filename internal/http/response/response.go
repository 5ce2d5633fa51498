// Package response writes the ops API's JSON bodies. Errors always use the
// same envelope and echo the request's trace id so operators can find the
// matching job logs.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/evidence-backend/internal/platform/apierr"
	"github.com/yungbote/evidence-backend/internal/platform/ctxutil"
)

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	body := APIError{Code: code, Message: http.StatusText(status)}
	if err != nil {
		body.Message = err.Error()
	}
	if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
		body.TraceID = td.TraceID
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: body})
}

// RespondKind derives status and code from the error's errkind.
func RespondKind(c *gin.Context, err error) {
	if ae := apierr.FromError(err); ae != nil {
		RespondError(c, ae.Status, ae.Code, ae.Err)
		return
	}
	RespondError(c, http.StatusInternalServerError, "internal", err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
