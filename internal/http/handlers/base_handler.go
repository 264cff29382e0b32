// README: Base handler utilities (JSON helpers, error mapping, caller lookup).
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"campuspool/internal/apperr"
	"campuspool/internal/http/middleware"
	"campuspool/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindInvalidArgument:  http.StatusBadRequest,
	apperr.KindUnauthenticated:  http.StatusUnauthorized,
	apperr.KindForbidden:        http.StatusForbidden,
	apperr.KindNotFound:         http.StatusNotFound,
	apperr.KindConflict:         http.StatusConflict,
	apperr.KindCapacityExceeded: http.StatusConflict,
	apperr.KindInvalidPin:       http.StatusUnprocessableEntity,
	apperr.KindUnavailable:      http.StatusServiceUnavailable,
	apperr.KindInternal:         http.StatusInternalServerError,
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, kind apperr.Kind, msg string) {
	writeJSON(c, status, errorResponse{Error: msg, Kind: kind.String()})
}

func badRequest(c *gin.Context, msg string) {
	writeError(c, http.StatusBadRequest, apperr.KindInvalidArgument, msg)
}

// writeAppError maps a core error to its HTTP status. Causes of storage
// failures are logged, never returned.
func writeAppError(c *gin.Context, log *logrus.Logger, err error) {
	kind := apperr.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	writeError(c, status, kind, apperr.ReasonOf(err))
}

// caller returns the authenticated identity or writes a 401.
func caller(c *gin.Context) (types.Caller, bool) {
	who, ok := middleware.Caller(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, apperr.KindUnauthenticated, "authentication required")
		return types.Caller{}, false
	}
	return who, true
}

// pathID reads and validates an identifier path parameter.
func pathID(c *gin.Context, name string) (types.ID, bool) {
	v := c.Param(name)
	if !types.ValidID(v) {
		badRequest(c, "invalid "+name)
		return "", false
	}
	return types.ID(v), true
}

// bindJSON decodes the body; an empty body leaves dst untouched when optional.
func bindJSON(c *gin.Context, dst any, optional bool) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		badRequest(c, "invalid json")
		return false
	}
	return true
}
