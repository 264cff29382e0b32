// README: API gateway; holds module services and builds the gin engine.
package http

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"campuspool/internal/http/middleware"
	"campuspool/internal/infra"
	"campuspool/internal/modules/ride"
	"campuspool/internal/modules/sos"
	"campuspool/internal/modules/view"
)

type ServerDeps struct {
	Rides     *ride.RideService
	Requests  *ride.RequestService
	SOS       *sos.Service
	Views     *view.Composer
	Verifier  infra.TokenVerifier
	Log       *logrus.Logger
	RateLimit *middleware.RateLimiter
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	return &Server{deps: deps}
}

// Routes builds the engine. Middleware order: request id, recovery, metrics,
// access log, then auth and rate limiting on the authenticated group.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Recovery(s.deps.Log),
		middleware.Metrics(),
		middleware.Logging(s.deps.Log),
	)
	registerRoutes(r, s.deps)
	return r
}
