package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/fieldops/request-service/internal/errs"
	"github.com/fieldops/request-service/internal/model"
	"github.com/gin-gonic/gin"
)

var kindStatus = map[errs.Kind]int{
	errs.KindValidation:    http.StatusBadRequest,
	errs.KindAuthorization: http.StatusForbidden,
	errs.KindInvalidState:  http.StatusConflict,
	errs.KindNotFound:      http.StatusNotFound,
	errs.KindUnavailable:   http.StatusServiceUnavailable,
	errs.KindBusinessRule:  http.StatusUnprocessableEntity,
}

// writeError maps the boundary taxonomy onto HTTP. Untyped errors are logged
// and surfaced as an opaque 500; no internals cross the boundary.
func writeError(c *gin.Context, err error) {
	var e *errs.Error
	if errors.As(err, &e) {
		c.JSON(kindStatus[e.Kind], gin.H{"error": e.Msg, "kind": string(e.Kind)})
		return
	}
	log.Printf("handler: unhandled error: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "kind": "internal"})
}

func writeRequest(c *gin.Context, status int, msg string, r *model.Request) {
	c.JSON(status, gin.H{"message": msg, "request": r})
}
