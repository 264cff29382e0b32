// README: Ride request handlers: submit, accept/reject, PIN start, reached-safely, listings.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"campuspool/internal/modules/ride"
	"campuspool/internal/modules/view"
	"campuspool/internal/types"
)

type RequestHandler struct {
	reqs  *ride.RequestService
	views *view.Composer
	log   *logrus.Logger
}

func NewRequestHandler(reqs *ride.RequestService, views *view.Composer, log *logrus.Logger) *RequestHandler {
	return &RequestHandler{reqs: reqs, views: views, log: log}
}

type createRequestReq struct {
	RideID string `json:"ride_id"`
}

type requestActionReq struct {
	Action string `json:"action"`
}

type startReq struct {
	Pin string `json:"pin"`
}

func (h *RequestHandler) Create(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	var req createRequestReq
	if !bindJSON(c, &req, false) {
		return
	}
	if !types.ValidID(req.RideID) {
		badRequest(c, "invalid ride_id")
		return
	}
	r, err := h.reqs.Create(c.Request.Context(), who, types.ID(req.RideID))
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	h.respondRequest(c, http.StatusCreated, "Ride request submitted", who, r)
}

// Act handles {"action": "accept"|"reject"} from the ride's driver.
func (h *RequestHandler) Act(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req requestActionReq
	if !bindJSON(c, &req, false) {
		return
	}
	var (
		r   *ride.Request
		err error
		msg string
	)
	switch req.Action {
	case "accept":
		r, err = h.reqs.Accept(c.Request.Context(), who, id)
		msg = "Request accepted"
	case "reject":
		r, err = h.reqs.Reject(c.Request.Context(), who, id)
		msg = "Request rejected"
	default:
		badRequest(c, "action must be accept or reject")
		return
	}
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	h.respondRequest(c, http.StatusOK, msg, who, r)
}

func (h *RequestHandler) Start(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req startReq
	if !bindJSON(c, &req, false) {
		return
	}
	r, err := h.reqs.Start(c.Request.Context(), who, id, req.Pin)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	h.respondRequest(c, http.StatusOK, "Ride started", who, r)
}

func (h *RequestHandler) ReachedSafely(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := h.reqs.MarkReachedSafely(c.Request.Context(), who, id)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	h.respondRequest(c, http.StatusOK, "Marked as reached safely", who, r)
}

// Get is visible to the request's rider, the ride's driver and administrators.
func (h *RequestHandler) Get(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := h.reqs.Get(c.Request.Context(), who, id)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	v, err := h.views.Request(c.Request.Context(), who, r)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"request": v})
}

func (h *RequestHandler) MyRequests(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	list, err := h.reqs.MyRequests(c.Request.Context(), who)
	h.respondRequests(c, who, list, err)
}

func (h *RequestHandler) DriverPending(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	list, err := h.reqs.PendingForDriver(c.Request.Context(), who)
	h.respondRequests(c, who, list, err)
}

func (h *RequestHandler) ForRide(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	rideID, ok := pathID(c, "ride_id")
	if !ok {
		return
	}
	list, err := h.reqs.ForRide(c.Request.Context(), who, rideID)
	h.respondRequests(c, who, list, err)
}

func (h *RequestHandler) respondRequest(c *gin.Context, status int, msg string, who types.Caller, r *ride.Request) {
	v, err := h.views.Request(c.Request.Context(), who, r)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	writeJSON(c, status, gin.H{"message": msg, "request": v})
}

func (h *RequestHandler) respondRequests(c *gin.Context, who types.Caller, list []*ride.Request, err error) {
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	vs, err := h.views.Requests(c.Request.Context(), who, list)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"requests": vs})
}
