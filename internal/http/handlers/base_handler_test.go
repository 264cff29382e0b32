package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuspool/internal/apperr"
)

func TestWriteAppErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(io.Discard)

	for _, tc := range []struct {
		err    error
		status int
		kind   string
		reason string
	}{
		{apperr.InvalidArgument("bad seats"), http.StatusBadRequest, "invalid_argument", "bad seats"},
		{apperr.Unauthenticated("who"), http.StatusUnauthorized, "unauthenticated", "who"},
		{apperr.Forbidden("nope"), http.StatusForbidden, "forbidden", "nope"},
		{apperr.NotFound("ride not found"), http.StatusNotFound, "not_found", "ride not found"},
		{apperr.Conflict("already processed"), http.StatusConflict, "conflict", "already processed"},
		{apperr.CapacityExceeded("full"), http.StatusConflict, "capacity_exceeded", "full"},
		{apperr.InvalidPin("invalid PIN"), http.StatusUnprocessableEntity, "invalid_pin", "invalid PIN"},
		{apperr.Unavailable("get ride", errors.New("dial tcp: refused")), http.StatusServiceUnavailable, "unavailable", "storage unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal", "internal error"},
	} {
		t.Run(tc.kind, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			writeAppError(c, log, tc.err)

			assert.Equal(t, tc.status, w.Code)
			var body errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.kind, body.Kind)
			assert.Equal(t, tc.reason, body.Error)
			assert.NotContains(t, w.Body.String(), "dial tcp")
		})
	}
}

func TestPathIDRejectsMalformed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "../../etc"}}

	_, ok := pathID(c, "id")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
