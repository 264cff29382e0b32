// README: Ride handlers: create, discover, get, update, complete, delete.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"campuspool/internal/modules/ride"
	"campuspool/internal/modules/view"
	"campuspool/internal/types"
)

type RideHandler struct {
	rides *ride.RideService
	views *view.Composer
	log   *logrus.Logger
}

func NewRideHandler(rides *ride.RideService, views *view.Composer, log *logrus.Logger) *RideHandler {
	return &RideHandler{rides: rides, views: views, log: log}
}

type createRideReq struct {
	Source           string       `json:"source"`
	Destination      string       `json:"destination"`
	SourcePoint      *types.Point `json:"source_point"`
	DestinationPoint *types.Point `json:"destination_point"`
	Date             string       `json:"date"`
	Time             string       `json:"time"`
	AvailableSeats   int          `json:"available_seats"`
	EstimatedCost    float64      `json:"estimated_cost"`
}

type updateRideReq struct {
	Source           *string      `json:"source"`
	Destination      *string      `json:"destination"`
	SourcePoint      *types.Point `json:"source_point"`
	DestinationPoint *types.Point `json:"destination_point"`
	Date             *string      `json:"date"`
	Time             *string      `json:"time"`
	AvailableSeats   *int         `json:"available_seats"`
	EstimatedCost    *float64     `json:"estimated_cost"`
}

func (h *RideHandler) Create(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	var req createRideReq
	if !bindJSON(c, &req, false) {
		return
	}
	r, err := h.rides.Create(c.Request.Context(), ride.CreateRideCommand{
		Caller:           who,
		Source:           req.Source,
		Destination:      req.Destination,
		SourcePoint:      req.SourcePoint,
		DestinationPoint: req.DestinationPoint,
		Date:             req.Date,
		Time:             req.Time,
		AvailableSeats:   req.AvailableSeats,
		EstimatedCost:    req.EstimatedCost,
	})
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	h.respondRide(c, http.StatusCreated, "Ride created successfully", r)
}

func (h *RideHandler) Discover(c *gin.Context) {
	rides, err := h.rides.Discover(c.Request.Context(), ride.DiscoverQuery{
		Destination: c.Query("destination"),
		Date:        c.Query("date"),
	})
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	h.respondRides(c, rides)
}

func (h *RideHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := h.rides.Get(c.Request.Context(), id)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	h.respondRide(c, http.StatusOK, "", r)
}

func (h *RideHandler) MyRides(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	rides, err := h.rides.ListByDriver(c.Request.Context(), who)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	h.respondRides(c, rides)
}

func (h *RideHandler) ListAll(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	rides, err := h.rides.ListAll(c.Request.Context(), who)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	h.respondRides(c, rides)
}

func (h *RideHandler) Update(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateRideReq
	if !bindJSON(c, &req, false) {
		return
	}
	r, err := h.rides.Update(c.Request.Context(), ride.UpdateRideCommand{
		Caller: who,
		RideID: id,
		Patch: ride.RidePatch{
			Source:           req.Source,
			Destination:      req.Destination,
			SourcePoint:      req.SourcePoint,
			DestinationPoint: req.DestinationPoint,
			Date:             req.Date,
			Time:             req.Time,
			AvailableSeats:   req.AvailableSeats,
			EstimatedCost:    req.EstimatedCost,
		},
	})
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	h.respondRide(c, http.StatusOK, "Ride updated", r)
}

func (h *RideHandler) Complete(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := h.rides.Close(c.Request.Context(), who, id)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	h.respondRide(c, http.StatusOK, "Ride completed", r)
}

func (h *RideHandler) Delete(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.rides.Delete(c.Request.Context(), who, id); err != nil {
		writeAppError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"message": "Ride deleted successfully"})
}

func (h *RideHandler) respondRide(c *gin.Context, status int, msg string, r *ride.Ride) {
	v, err := h.views.Ride(c.Request.Context(), r)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	body := gin.H{"ride": v}
	if msg != "" {
		body["message"] = msg
	}
	writeJSON(c, status, body)
}

func (h *RideHandler) respondRides(c *gin.Context, rides []*ride.Ride) {
	vs, err := h.views.Rides(c.Request.Context(), rides)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"rides": vs})
}
