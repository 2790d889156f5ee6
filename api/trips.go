package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tom474/fleetbooking/internal/domain"
	"github.com/tom474/fleetbooking/internal/service/booking"
	"github.com/tom474/fleetbooking/internal/service/trips"
)

type TripHandler struct {
	service  trips.TripUseCase
	bookings booking.BookingUseCase
}

type assignRequest struct {
	DriverID   string             `json:"driver_id"`
	VehicleID  string             `json:"vehicle_id"`
	Outsourced *outsourcedPayload `json:"outsourced"`
}

type outsourcedPayload struct {
	VendorName  string `json:"vendor_name"`
	PlateNumber string `json:"plate_number"`
	DriverName  string `json:"driver_name"`
	DriverPhone string `json:"driver_phone"`
}

type addBookingRequest struct {
	BookingRequestID string `json:"booking_request_id"`
}

type groupActionRequest struct {
	BookingRequestID string `json:"booking_request_id"`
	Reason           string `json:"reason"`
}

type groupResponse struct {
	BookingRequestID string   `json:"booking_request_id"`
	UserIDs          []string `json:"user_ids"`
	ContactName      string   `json:"contact_name,omitempty"`
	ContactPhone     string   `json:"contact_phone,omitempty"`
	Status           string   `json:"status"`
	SkipReason       string   `json:"skip_reason,omitempty"`
}

type stopResponse struct {
	ID                string          `json:"id"`
	Order             int             `json:"order"`
	Type              string          `json:"type"`
	LocationID        string          `json:"location_id"`
	ArrivalTime       time.Time       `json:"arrival_time"`
	ActualArrivalTime *time.Time      `json:"actual_arrival_time,omitempty"`
	Group             []groupResponse `json:"group"`
}

type ticketResponse struct {
	ID               string `json:"id"`
	BookingRequestID string `json:"booking_request_id"`
	Status           string `json:"status"`
	TicketStatus     string `json:"ticket_status"`
	NoShowReason     string `json:"no_show_reason,omitempty"`
}

type tripResponse struct {
	ID               string             `json:"id"`
	BookingRequestID string             `json:"booking_request_id"`
	Status           string             `json:"status"`
	DepartureTime    time.Time          `json:"departure_time"`
	ArrivalDeadline  time.Time          `json:"arrival_deadline"`
	DriverID         string             `json:"driver_id,omitempty"`
	VehicleID        string             `json:"vehicle_id,omitempty"`
	Outsourced       *outsourcedPayload `json:"outsourced,omitempty"`
	Stops            []stopResponse     `json:"stops"`
	Tickets          []ticketResponse   `json:"tickets"`
	Version          int64              `json:"version"`
}

func NewTripHandler(service trips.TripUseCase, bookings booking.BookingUseCase) *TripHandler {
	return &TripHandler{service: service, bookings: bookings}
}

func (h *TripHandler) Register(router *gin.RouterGroup) {
	router.GET("/:id", h.get)
	router.POST("/:id/assign", h.assign)
	router.POST("/:id/start", h.start)
	router.POST("/:id/cancel", h.cancel)
	router.POST("/:id/bookings", h.addBooking)
	router.POST("/:id/stops/:stopId/advance", h.advanceGroup)
	router.POST("/:id/stops/:stopId/skip", h.skipGroup)
	router.POST("/:id/stops/:stopId/skip-all", h.skipAllGroups)
}

func (h *TripHandler) get(c *gin.Context) {
	trip, err := h.service.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTripResponse(trip))
}

func (h *TripHandler) assign(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := trips.AssignInput{DriverID: req.DriverID, VehicleID: req.VehicleID}
	if req.Outsourced != nil {
		input.Outsourced = &domain.OutsourcedVehicle{
			VendorName:  req.Outsourced.VendorName,
			PlateNumber: req.Outsourced.PlateNumber,
			DriverName:  req.Outsourced.DriverName,
			DriverPhone: req.Outsourced.DriverPhone,
		}
	}

	trip, err := h.service.Assign(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTripResponse(trip))
}

func (h *TripHandler) start(c *gin.Context) {
	trip, err := h.service.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTripResponse(trip))
}

func (h *TripHandler) cancel(c *gin.Context) {
	var req reasonPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trip, err := h.service.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTripResponse(trip))
}

func (h *TripHandler) addBooking(c *gin.Context) {
	var req addBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	br, err := h.bookings.GetByID(c.Request.Context(), req.BookingRequestID)
	if err != nil {
		writeError(c, err)
		return
	}

	trip, err := h.service.AddBookingToTrip(c.Request.Context(), c.Param("id"), br)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTripResponse(trip))
}

func (h *TripHandler) advanceGroup(c *gin.Context) {
	var req groupActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trip, err := h.service.AdvanceGroup(c.Request.Context(), c.Param("id"), c.Param("stopId"), req.BookingRequestID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTripResponse(trip))
}

func (h *TripHandler) skipGroup(c *gin.Context) {
	var req groupActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trip, err := h.service.SkipGroup(c.Request.Context(), c.Param("id"), c.Param("stopId"), req.BookingRequestID, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTripResponse(trip))
}

func (h *TripHandler) skipAllGroups(c *gin.Context) {
	var req reasonPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trip, err := h.service.SkipAllGroups(c.Request.Context(), c.Param("id"), c.Param("stopId"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTripResponse(trip))
}

func toTripResponse(trip *domain.Trip) tripResponse {
	resp := tripResponse{
		ID:               trip.ID,
		BookingRequestID: trip.BookingRequestID,
		Status:           string(trip.Status),
		DepartureTime:    trip.DepartureTime,
		ArrivalDeadline:  trip.ArrivalDeadline,
		DriverID:         trip.DriverID,
		VehicleID:        trip.VehicleID,
		Version:          trip.Version,
	}
	if trip.Outsourced != nil {
		resp.Outsourced = &outsourcedPayload{
			VendorName:  trip.Outsourced.VendorName,
			PlateNumber: trip.Outsourced.PlateNumber,
			DriverName:  trip.Outsourced.DriverName,
			DriverPhone: trip.Outsourced.DriverPhone,
		}
	}
	for _, stop := range trip.Stops {
		sr := stopResponse{
			ID:                stop.ID,
			Order:             stop.Order,
			Type:              string(stop.Type),
			LocationID:        stop.LocationID,
			ArrivalTime:       stop.ArrivalTime,
			ActualArrivalTime: stop.ActualArrivalTime,
		}
		for _, group := range stop.Group {
			sr.Group = append(sr.Group, groupResponse{
				BookingRequestID: group.BookingRequestID,
				UserIDs:          group.UserIDs,
				ContactName:      group.ContactName,
				ContactPhone:     group.ContactPhone,
				Status:           string(group.Status),
				SkipReason:       group.SkipReason,
			})
		}
		resp.Stops = append(resp.Stops, sr)
	}
	for _, ticket := range trip.Tickets {
		resp.Tickets = append(resp.Tickets, ticketResponse{
			ID:               ticket.ID,
			BookingRequestID: ticket.BookingRequestID,
			Status:           string(ticket.Status),
			TicketStatus:     string(ticket.TicketStatus),
			NoShowReason:     ticket.NoShowReason,
		})
	}
	return resp
}
