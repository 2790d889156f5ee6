package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tom474/fleetbooking/internal/domain"
	"github.com/tom474/fleetbooking/internal/service/booking"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type bookingRequestPayload struct {
	RequesterID        string   `json:"requester_id"`
	Type               string   `json:"type"`
	Priority           string   `json:"priority"`
	TripPurpose        string   `json:"trip_purpose"`
	Note               string   `json:"note"`
	NumberOfPassengers int      `json:"number_of_passengers"`
	PassengerIDs       []string `json:"passenger_ids"`
	IsReserved         bool     `json:"is_reserved"`
	ContactName        string   `json:"contact_name"`
	ContactPhone       string   `json:"contact_phone"`

	DepartureLocationID string    `json:"departure_location_id"`
	ArrivalLocationID   string    `json:"arrival_location_id"`
	DepartureTime       time.Time `json:"departure_time"`
	ArrivalDeadline     time.Time `json:"arrival_deadline"`

	ReturnDepartureLocationID string    `json:"return_departure_location_id,omitempty"`
	ReturnArrivalLocationID   string    `json:"return_arrival_location_id,omitempty"`
	ReturnDepartureTime       time.Time `json:"return_departure_time,omitempty"`
	ReturnArrivalDeadline     time.Time `json:"return_arrival_deadline,omitempty"`
}

type reasonPayload struct {
	Reason string `json:"reason"`
}

type bookingResponse struct {
	ID                 string   `json:"id"`
	RequesterID        string   `json:"requester_id"`
	Type               string   `json:"type"`
	Status             string   `json:"status"`
	Priority           string   `json:"priority"`
	TripPurpose        string   `json:"trip_purpose,omitempty"`
	Note               string   `json:"note,omitempty"`
	NumberOfPassengers int      `json:"number_of_passengers"`
	PassengerIDs       []string `json:"passenger_ids"`
	IsReserved         bool     `json:"is_reserved"`
	ContactName        string   `json:"contact_name"`
	ContactPhone       string   `json:"contact_phone"`

	DepartureLocationID string    `json:"departure_location_id"`
	ArrivalLocationID   string    `json:"arrival_location_id"`
	DepartureTime       time.Time `json:"departure_time"`
	ArrivalDeadline     time.Time `json:"arrival_deadline"`

	ReturnDepartureLocationID string     `json:"return_departure_location_id,omitempty"`
	ReturnArrivalLocationID   string     `json:"return_arrival_location_id,omitempty"`
	ReturnDepartureTime       *time.Time `json:"return_departure_time,omitempty"`
	ReturnArrivalDeadline     *time.Time `json:"return_arrival_deadline,omitempty"`

	CancelReason string `json:"cancel_reason,omitempty"`
	RejectReason string `json:"reject_reason,omitempty"`
	LastError    string `json:"last_error,omitempty"`
	Version      int64  `json:"version"`
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("/", h.create)
	router.GET("/:id", h.get)
	router.PUT("/:id", h.modify)
	router.POST("/:id/approve", h.approve)
	router.POST("/:id/reject", h.reject)
	router.POST("/:id/cancel", h.cancel)
}

func (h *BookingHandler) create(c *gin.Context) {
	var req bookingRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.service.Create(c.Request.Context(), req.toDomain())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toBookingResponse(created))
}

func (h *BookingHandler) get(c *gin.Context) {
	br, err := h.service.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(br))
}

func (h *BookingHandler) modify(c *gin.Context) {
	var req bookingRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	modified, err := h.service.Modify(c.Request.Context(), c.Param("id"), req.toDomain())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(modified))
}

func (h *BookingHandler) approve(c *gin.Context) {
	approved, err := h.service.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(approved))
}

func (h *BookingHandler) reject(c *gin.Context) {
	var req reasonPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rejected, err := h.service.Reject(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(rejected))
}

func (h *BookingHandler) cancel(c *gin.Context) {
	var req reasonPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cancelled, err := h.service.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(cancelled))
}

func (p bookingRequestPayload) toDomain() *domain.BookingRequest {
	return &domain.BookingRequest{
		RequesterID:               p.RequesterID,
		Type:                      domain.BookingType(p.Type),
		Priority:                  domain.Priority(p.Priority),
		TripPurpose:               p.TripPurpose,
		Note:                      p.Note,
		NumberOfPassengers:        p.NumberOfPassengers,
		PassengerIDs:              p.PassengerIDs,
		IsReserved:                p.IsReserved,
		ContactName:               p.ContactName,
		ContactPhone:              p.ContactPhone,
		DepartureLocationID:       p.DepartureLocationID,
		ArrivalLocationID:         p.ArrivalLocationID,
		DepartureTime:             p.DepartureTime,
		ArrivalDeadline:           p.ArrivalDeadline,
		ReturnDepartureLocationID: p.ReturnDepartureLocationID,
		ReturnArrivalLocationID:   p.ReturnArrivalLocationID,
		ReturnDepartureTime:       p.ReturnDepartureTime,
		ReturnArrivalDeadline:     p.ReturnArrivalDeadline,
	}
}

func toBookingResponse(br *domain.BookingRequest) bookingResponse {
	resp := bookingResponse{
		ID:                        br.ID,
		RequesterID:               br.RequesterID,
		Type:                      string(br.Type),
		Status:                    string(br.Status),
		Priority:                  string(br.Priority),
		TripPurpose:               br.TripPurpose,
		Note:                      br.Note,
		NumberOfPassengers:        br.NumberOfPassengers,
		PassengerIDs:              br.PassengerIDs,
		IsReserved:                br.IsReserved,
		ContactName:               br.ContactName,
		ContactPhone:              br.ContactPhone,
		DepartureLocationID:       br.DepartureLocationID,
		ArrivalLocationID:         br.ArrivalLocationID,
		DepartureTime:             br.DepartureTime,
		ArrivalDeadline:           br.ArrivalDeadline,
		ReturnDepartureLocationID: br.ReturnDepartureLocationID,
		ReturnArrivalLocationID:   br.ReturnArrivalLocationID,
		CancelReason:              br.CancelReason,
		RejectReason:              br.RejectReason,
		LastError:                 br.LastError,
		Version:                   br.Version,
	}
	if !br.ReturnDepartureTime.IsZero() {
		t := br.ReturnDepartureTime
		resp.ReturnDepartureTime = &t
	}
	if !br.ReturnArrivalDeadline.IsZero() {
		t := br.ReturnArrivalDeadline
		resp.ReturnArrivalDeadline = &t
	}
	return resp
}
