package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tom474/fleetbooking/internal/domain"
	"github.com/tom474/fleetbooking/internal/service/schedules"
)

type ScheduleHandler struct {
	service schedules.ScheduleUseCase
}

type checkConflictRequest struct {
	DriverID  string    `json:"driver_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	ExcludeID string    `json:"exclude_id"`
}

type createLeaveRequest struct {
	DriverID  string    `json:"driver_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Reason    string    `json:"reason"`
	Notes     string    `json:"notes"`
}

type createVehicleServiceRequest struct {
	DriverID    string    `json:"driver_id"`
	VehicleID   string    `json:"vehicle_id"`
	ServiceType string    `json:"service_type"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Reason      string    `json:"reason"`
	Description string    `json:"description"`
}

type createActivityRequest struct {
	DriverID    string    `json:"driver_id"`
	ExecutiveID string    `json:"executive_id"`
	VehicleID   string    `json:"vehicle_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Notes       string    `json:"notes"`
}

type modifyWindowRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type auxiliaryResponse struct {
	ID        string    `json:"id"`
	DriverID  string    `json:"driver_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`

	RejectReason string `json:"reject_reason,omitempty"`
	CancelReason string `json:"cancel_reason,omitempty"`
	Version      int64  `json:"version"`

	// Leave fields.
	Reason string `json:"reason,omitempty"`
	Notes  string `json:"notes,omitempty"`

	// Vehicle service fields.
	VehicleID   string `json:"vehicle_id,omitempty"`
	ServiceType string `json:"service_type,omitempty"`
	Description string `json:"description,omitempty"`

	// Executive activity fields.
	ExecutiveID   string `json:"executive_id,omitempty"`
	WorkedMinutes int    `json:"worked_minutes,omitempty"`
}

func NewScheduleHandler(service schedules.ScheduleUseCase) *ScheduleHandler {
	return &ScheduleHandler{service: service}
}

func (h *ScheduleHandler) Register(router *gin.RouterGroup) {
	router.POST("/check-conflict", h.checkConflict)

	router.POST("/leaves", h.createLeave)
	router.GET("/leaves/:id", h.getLeave)
	router.PUT("/leaves/:id", h.modifyLeave)
	router.POST("/leaves/:id/approve", h.approveLeave)
	router.POST("/leaves/:id/reject", h.rejectLeave)
	router.POST("/leaves/:id/cancel", h.cancelLeave)

	router.POST("/vehicle-services", h.createVehicleService)
	router.GET("/vehicle-services/:id", h.getVehicleService)
	router.PUT("/vehicle-services/:id", h.modifyVehicleService)
	router.POST("/vehicle-services/:id/approve", h.approveVehicleService)
	router.POST("/vehicle-services/:id/reject", h.rejectVehicleService)
	router.POST("/vehicle-services/:id/cancel", h.cancelVehicleService)

	router.POST("/activities", h.createActivity)
	router.GET("/activities/:id", h.getActivity)
	router.PUT("/activities/:id", h.modifyActivity)
	router.POST("/activities/:id/approve", h.approveActivity)
	router.POST("/activities/:id/reject", h.rejectActivity)
	router.POST("/activities/:id/cancel", h.cancelActivity)
}

func (h *ScheduleHandler) checkConflict(c *gin.Context) {
	var req checkConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ids, err := h.service.CheckConflict(c.Request.Context(), req.DriverID, req.StartTime, req.EndTime, req.ExcludeID)
	if err != nil {
		writeError(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"conflicting_ids": ids})
}

// ---- Leave ----

func (h *ScheduleHandler) createLeave(c *gin.Context) {
	var req createLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	leave, err := h.service.CreateLeave(c.Request.Context(), &domain.LeaveSchedule{
		AuxiliaryRequest: domain.AuxiliaryRequest{
			DriverID:  req.DriverID,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
		},
		Reason: req.Reason,
		Notes:  req.Notes,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toLeaveResponse(leave))
}

func (h *ScheduleHandler) getLeave(c *gin.Context) {
	leave, err := h.service.GetLeave(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLeaveResponse(leave))
}

func (h *ScheduleHandler) modifyLeave(c *gin.Context) {
	var req modifyWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	leave, err := h.service.ModifyLeave(c.Request.Context(), c.Param("id"), req.StartTime, req.EndTime)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLeaveResponse(leave))
}

func (h *ScheduleHandler) approveLeave(c *gin.Context) {
	leave, err := h.service.ApproveLeave(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLeaveResponse(leave))
}

func (h *ScheduleHandler) rejectLeave(c *gin.Context) {
	var req reasonPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	leave, err := h.service.RejectLeave(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLeaveResponse(leave))
}

func (h *ScheduleHandler) cancelLeave(c *gin.Context) {
	var req reasonPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	leave, err := h.service.CancelLeave(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLeaveResponse(leave))
}

// ---- Vehicle service ----

func (h *ScheduleHandler) createVehicleService(c *gin.Context) {
	var req createVehicleServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	service, err := h.service.CreateVehicleService(c.Request.Context(), &domain.VehicleService{
		AuxiliaryRequest: domain.AuxiliaryRequest{
			DriverID:  req.DriverID,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
		},
		VehicleID:   req.VehicleID,
		ServiceType: domain.VehicleServiceType(req.ServiceType),
		Reason:      req.Reason,
		Description: req.Description,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toVehicleServiceResponse(service))
}

func (h *ScheduleHandler) getVehicleService(c *gin.Context) {
	service, err := h.service.GetVehicleService(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toVehicleServiceResponse(service))
}

func (h *ScheduleHandler) modifyVehicleService(c *gin.Context) {
	var req modifyWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	service, err := h.service.ModifyVehicleService(c.Request.Context(), c.Param("id"), req.StartTime, req.EndTime)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toVehicleServiceResponse(service))
}

func (h *ScheduleHandler) approveVehicleService(c *gin.Context) {
	service, err := h.service.ApproveVehicleService(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toVehicleServiceResponse(service))
}

func (h *ScheduleHandler) rejectVehicleService(c *gin.Context) {
	var req reasonPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	service, err := h.service.RejectVehicleService(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toVehicleServiceResponse(service))
}

func (h *ScheduleHandler) cancelVehicleService(c *gin.Context) {
	var req reasonPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	service, err := h.service.CancelVehicleService(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toVehicleServiceResponse(service))
}

// ---- Executive daily activity ----

func (h *ScheduleHandler) createActivity(c *gin.Context) {
	var req createActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	activity, err := h.service.CreateActivity(c.Request.Context(), &domain.ExecutiveDailyActivity{
		AuxiliaryRequest: domain.AuxiliaryRequest{
			DriverID:  req.DriverID,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
		},
		ExecutiveID: req.ExecutiveID,
		VehicleID:   req.VehicleID,
		Notes:       req.Notes,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toActivityResponse(activity))
}

func (h *ScheduleHandler) getActivity(c *gin.Context) {
	activity, err := h.service.GetActivity(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toActivityResponse(activity))
}

func (h *ScheduleHandler) modifyActivity(c *gin.Context) {
	var req modifyWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	activity, err := h.service.ModifyActivity(c.Request.Context(), c.Param("id"), req.StartTime, req.EndTime)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toActivityResponse(activity))
}

func (h *ScheduleHandler) approveActivity(c *gin.Context) {
	activity, err := h.service.ApproveActivity(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toActivityResponse(activity))
}

func (h *ScheduleHandler) rejectActivity(c *gin.Context) {
	var req reasonPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	activity, err := h.service.RejectActivity(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toActivityResponse(activity))
}

func (h *ScheduleHandler) cancelActivity(c *gin.Context) {
	var req reasonPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	activity, err := h.service.CancelActivity(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toActivityResponse(activity))
}

func baseResponse(a domain.AuxiliaryRequest) auxiliaryResponse {
	return auxiliaryResponse{
		ID:           a.ID,
		DriverID:     a.DriverID,
		StartTime:    a.StartTime,
		EndTime:      a.EndTime,
		Status:       string(a.Status),
		RejectReason: a.RejectReason,
		CancelReason: a.CancelReason,
		Version:      a.Version,
	}
}

func toLeaveResponse(leave *domain.LeaveSchedule) auxiliaryResponse {
	resp := baseResponse(leave.AuxiliaryRequest)
	resp.Reason = leave.Reason
	resp.Notes = leave.Notes
	return resp
}

func toVehicleServiceResponse(service *domain.VehicleService) auxiliaryResponse {
	resp := baseResponse(service.AuxiliaryRequest)
	resp.VehicleID = service.VehicleID
	resp.ServiceType = string(service.ServiceType)
	resp.Reason = service.Reason
	resp.Description = service.Description
	return resp
}

func toActivityResponse(activity *domain.ExecutiveDailyActivity) auxiliaryResponse {
	resp := baseResponse(activity.AuxiliaryRequest)
	resp.ExecutiveID = activity.ExecutiveID
	resp.VehicleID = activity.VehicleID
	resp.Notes = activity.Notes
	resp.WorkedMinutes = activity.WorkedMinutes
	return resp
}
