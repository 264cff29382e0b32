// README: HTTP router registration.
package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campuspool/internal/http/handlers"
	"campuspool/internal/http/middleware"
)

func registerRoutes(r *gin.Engine, d ServerDeps) {
	r.GET("/api/health", handlers.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", middleware.Auth(d.Verifier))
	if d.RateLimit != nil {
		api.Use(d.RateLimit.Middleware())
	}

	rides := handlers.NewRideHandler(d.Rides, d.Views, d.Log)
	api.POST("/rides", rides.Create)
	api.GET("/rides", rides.Discover)
	api.GET("/rides/driver/my-rides", rides.MyRides)
	api.GET("/rides/:id", rides.Get)
	api.PUT("/rides/:id", rides.Update)
	api.PUT("/rides/:id/complete", rides.Complete)
	api.DELETE("/rides/:id", rides.Delete)

	reqs := handlers.NewRequestHandler(d.Requests, d.Views, d.Log)
	api.POST("/ride-requests", reqs.Create)
	api.GET("/ride-requests/my-requests", reqs.MyRequests)
	api.GET("/ride-requests/driver/pending", reqs.DriverPending)
	api.GET("/ride-requests/ride/:ride_id", reqs.ForRide)
	api.GET("/ride-requests/:id", reqs.Get)
	api.PUT("/ride-requests/:id", reqs.Act)
	api.POST("/ride-requests/:id/start", reqs.Start)
	api.POST("/ride-requests/:id/reached-safely", reqs.ReachedSafely)

	sosH := handlers.NewSOSHandler(d.SOS, d.Views, d.Log)
	api.POST("/sos", sosH.Trigger)
	api.GET("/sos/my-active", sosH.MyActive)
	api.GET("/sos/:id", sosH.Get)

	admin := api.Group("/admin")
	admin.GET("/rides", rides.ListAll)
	admin.GET("/sos", sosH.AdminList)
	admin.PUT("/sos/:id/review", sosH.Review)
	admin.PUT("/sos/:id/resolve", sosH.Resolve)
}
