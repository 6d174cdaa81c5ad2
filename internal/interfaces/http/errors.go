package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	domainwf "github.com/garyjia/demande-workflow/internal/domain/workflow"
)

var statusByKind = map[domainwf.Kind]int{
	domainwf.KindNotFound:               http.StatusNotFound,
	domainwf.KindPermissionDenied:       http.StatusForbidden,
	domainwf.KindInvalidTransition:      http.StatusConflict,
	domainwf.KindRejectionLimitExceeded: http.StatusUnprocessableEntity,
	domainwf.KindValidationFailed:       http.StatusBadRequest,
	domainwf.KindOverDelivery:           http.StatusConflict,
}

// statusForError maps a workflow error kind to an HTTP status. Untyped errors are 500.
func statusForError(err error) int {
	if status, ok := statusByKind[domainwf.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// writeError renders err in the standard envelope. Internal failures are logged and masked.
func (h *Handlers) writeError(c *gin.Context, op string, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			"operation", op,
			"request_id", c.GetString(ctxRequestID),
			"error", err,
		)
		c.JSON(status, Response{Success: false, Error: "internal error"})
		return
	}

	c.JSON(status, Response{
		Success: false,
		Error:   err.Error(),
		Code:    string(domainwf.KindOf(err)),
	})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   msg,
		Code:    string(domainwf.KindValidationFailed),
	})
}
