// README: SOS handlers for trip participants and the admin dashboard.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"campuspool/internal/modules/sos"
	"campuspool/internal/modules/view"
	"campuspool/internal/types"
)

type SOSHandler struct {
	sos   *sos.Service
	views *view.Composer
	log   *logrus.Logger
}

func NewSOSHandler(svc *sos.Service, views *view.Composer, log *logrus.Logger) *SOSHandler {
	return &SOSHandler{sos: svc, views: views, log: log}
}

type triggerReq struct {
	RideRequestID string   `json:"ride_request_id"`
	Lat           *float64 `json:"lat"`
	Lng           *float64 `json:"lng"`
	Message       string   `json:"message"`
}

type notesReq struct {
	Notes *string `json:"notes"`
}

func (h *SOSHandler) Trigger(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	var req triggerReq
	if !bindJSON(c, &req, false) {
		return
	}
	if !types.ValidID(req.RideRequestID) {
		badRequest(c, "invalid ride_request_id")
		return
	}
	if (req.Lat == nil) != (req.Lng == nil) {
		badRequest(c, "lat and lng must be given together")
		return
	}
	var loc *types.Point
	if req.Lat != nil {
		loc = &types.Point{Lat: *req.Lat, Lng: *req.Lng}
	}
	e, err := h.sos.Trigger(c.Request.Context(), sos.TriggerCommand{
		Caller:    who,
		RequestID: types.ID(req.RideRequestID),
		Location:  loc,
		Message:   req.Message,
	})
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	h.respondEvent(c, http.StatusCreated, "SOS alert sent", e)
}

func (h *SOSHandler) MyActive(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	list, err := h.sos.MyActive(c.Request.Context(), who)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	vs, err := h.views.SOSList(c.Request.Context(), list)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"sos_events": vs})
}

func (h *SOSHandler) Get(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	e, err := h.sos.Get(c.Request.Context(), who, id)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	v, err := h.views.SOS(c.Request.Context(), e)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"sos_event": v})
}

// AdminList accepts an optional ?status= filter and always returns counts.
func (h *SOSHandler) AdminList(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	var status *sos.Status
	if raw := c.Query("status"); raw != "" {
		st, err := sos.ParseStatus(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		status = &st
	}
	list, counts, err := h.sos.AdminList(c.Request.Context(), who, status)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	vs, err := h.views.SOSList(c.Request.Context(), list)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"sos_events": vs, "counts": counts})
}

func (h *SOSHandler) Review(c *gin.Context)  { h.move(c, h.sos.Review, "SOS marked as reviewed") }
func (h *SOSHandler) Resolve(c *gin.Context) { h.move(c, h.sos.Resolve, "SOS resolved") }

type moveFunc func(ctx context.Context, caller types.Caller, id types.ID, notes *string) (*sos.Event, error)

func (h *SOSHandler) move(c *gin.Context, fn moveFunc, msg string) {
	who, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req notesReq
	if !bindJSON(c, &req, true) {
		return
	}
	e, err := fn(c.Request.Context(), who, id, req.Notes)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	h.respondEvent(c, http.StatusOK, msg, e)
}

func (h *SOSHandler) respondEvent(c *gin.Context, status int, msg string, e *sos.Event) {
	v, err := h.views.SOS(c.Request.Context(), e)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	writeJSON(c, status, gin.H{"message": msg, "sos_event": v})
}
