package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/tom474/fleetbooking/internal/domain"
)

type MockScheduleUseCase struct {
	mock.Mock
}

func (m *MockScheduleUseCase) CheckConflict(ctx context.Context, driverID string, start, end time.Time, excludeID string) ([]string, error) {
	args := m.Called(ctx, driverID, start, end, excludeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockScheduleUseCase) CreateLeave(ctx context.Context, leave *domain.LeaveSchedule) (*domain.LeaveSchedule, error) {
	return m.leaveResult(m.Called(ctx, leave))
}

func (m *MockScheduleUseCase) GetLeave(ctx context.Context, id string) (*domain.LeaveSchedule, error) {
	return m.leaveResult(m.Called(ctx, id))
}

func (m *MockScheduleUseCase) ApproveLeave(ctx context.Context, id string) (*domain.LeaveSchedule, error) {
	return m.leaveResult(m.Called(ctx, id))
}

func (m *MockScheduleUseCase) RejectLeave(ctx context.Context, id, reason string) (*domain.LeaveSchedule, error) {
	return m.leaveResult(m.Called(ctx, id, reason))
}

func (m *MockScheduleUseCase) CancelLeave(ctx context.Context, id, reason string) (*domain.LeaveSchedule, error) {
	return m.leaveResult(m.Called(ctx, id, reason))
}

func (m *MockScheduleUseCase) ModifyLeave(ctx context.Context, id string, start, end time.Time) (*domain.LeaveSchedule, error) {
	return m.leaveResult(m.Called(ctx, id, start, end))
}

func (m *MockScheduleUseCase) leaveResult(args mock.Arguments) (*domain.LeaveSchedule, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LeaveSchedule), args.Error(1)
}

func (m *MockScheduleUseCase) CreateVehicleService(ctx context.Context, service *domain.VehicleService) (*domain.VehicleService, error) {
	return m.serviceResult(m.Called(ctx, service))
}

func (m *MockScheduleUseCase) GetVehicleService(ctx context.Context, id string) (*domain.VehicleService, error) {
	return m.serviceResult(m.Called(ctx, id))
}

func (m *MockScheduleUseCase) ApproveVehicleService(ctx context.Context, id string) (*domain.VehicleService, error) {
	return m.serviceResult(m.Called(ctx, id))
}

func (m *MockScheduleUseCase) RejectVehicleService(ctx context.Context, id, reason string) (*domain.VehicleService, error) {
	return m.serviceResult(m.Called(ctx, id, reason))
}

func (m *MockScheduleUseCase) CancelVehicleService(ctx context.Context, id, reason string) (*domain.VehicleService, error) {
	return m.serviceResult(m.Called(ctx, id, reason))
}

func (m *MockScheduleUseCase) ModifyVehicleService(ctx context.Context, id string, start, end time.Time) (*domain.VehicleService, error) {
	return m.serviceResult(m.Called(ctx, id, start, end))
}

func (m *MockScheduleUseCase) serviceResult(args mock.Arguments) (*domain.VehicleService, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VehicleService), args.Error(1)
}

func (m *MockScheduleUseCase) CreateActivity(ctx context.Context, activity *domain.ExecutiveDailyActivity) (*domain.ExecutiveDailyActivity, error) {
	return m.activityResult(m.Called(ctx, activity))
}

func (m *MockScheduleUseCase) GetActivity(ctx context.Context, id string) (*domain.ExecutiveDailyActivity, error) {
	return m.activityResult(m.Called(ctx, id))
}

func (m *MockScheduleUseCase) ApproveActivity(ctx context.Context, id string) (*domain.ExecutiveDailyActivity, error) {
	return m.activityResult(m.Called(ctx, id))
}

func (m *MockScheduleUseCase) RejectActivity(ctx context.Context, id, reason string) (*domain.ExecutiveDailyActivity, error) {
	return m.activityResult(m.Called(ctx, id, reason))
}

func (m *MockScheduleUseCase) CancelActivity(ctx context.Context, id, reason string) (*domain.ExecutiveDailyActivity, error) {
	return m.activityResult(m.Called(ctx, id, reason))
}

func (m *MockScheduleUseCase) ModifyActivity(ctx context.Context, id string, start, end time.Time) (*domain.ExecutiveDailyActivity, error) {
	return m.activityResult(m.Called(ctx, id, start, end))
}

func (m *MockScheduleUseCase) activityResult(args mock.Arguments) (*domain.ExecutiveDailyActivity, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExecutiveDailyActivity), args.Error(1)
}

func (m *MockScheduleUseCase) CompleteElapsed(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func TestScheduleHandler_checkConflict(t *testing.T) {
	mockService := &MockScheduleUseCase{}
	handler := NewScheduleHandler(mockService)

	start := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	c, w := newBookingContext(t, "POST", "/schedules/check-conflict", checkConflictRequest{
		DriverID:  "driver-1",
		StartTime: start,
		EndTime:   end,
	})
	mockService.On("CheckConflict", mock.Anything, "driver-1", start, end, "").
		Return([]string{"trip-1"}, nil)

	handler.checkConflict(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		ConflictingIDs []string `json:"conflicting_ids"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"trip-1"}, resp.ConflictingIDs)
}

func TestScheduleHandler_checkConflictEmptyList(t *testing.T) {
	mockService := &MockScheduleUseCase{}
	handler := NewScheduleHandler(mockService)

	start := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	c, w := newBookingContext(t, "POST", "/schedules/check-conflict", checkConflictRequest{
		DriverID:  "driver-1",
		StartTime: start,
		EndTime:   end,
	})
	mockService.On("CheckConflict", mock.Anything, "driver-1", start, end, "").Return(nil, nil)

	handler.checkConflict(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"conflicting_ids":[]}`, w.Body.String())
}

func TestScheduleHandler_createLeave(t *testing.T) {
	mockService := &MockScheduleUseCase{}
	handler := NewScheduleHandler(mockService)

	start := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(8 * time.Hour)
	c, w := newBookingContext(t, "POST", "/schedules/leaves", createLeaveRequest{
		DriverID:  "driver-1",
		StartTime: start,
		EndTime:   end,
		Reason:    "medical appointment",
	})

	created := &domain.LeaveSchedule{
		AuxiliaryRequest: domain.AuxiliaryRequest{
			ID:        "leave-1",
			DriverID:  "driver-1",
			StartTime: start,
			EndTime:   end,
			Status:    domain.RequestStatusPending,
		},
		Reason: "medical appointment",
	}
	mockService.On("CreateLeave", mock.Anything, mock.Anything).Return(created, nil)

	handler.createLeave(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp auxiliaryResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "leave-1", resp.ID)
	assert.Equal(t, "pending", resp.Status)
}

func TestScheduleHandler_approveLeaveConflict(t *testing.T) {
	mockService := &MockScheduleUseCase{}
	handler := NewScheduleHandler(mockService)

	c, w := newBookingContext(t, "POST", "/schedules/leaves/leave-1/approve", nil)
	c.Params = gin.Params{{Key: "id", Value: "leave-1"}}
	mockService.On("ApproveLeave", mock.Anything, "leave-1").
		Return(nil, domain.ScheduleConflictError{ConflictingIDs: []string{"trip-1"}})

	handler.approveLeave(c)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestScheduleHandler_modifyActivity(t *testing.T) {
	mockService := &MockScheduleUseCase{}
	handler := NewScheduleHandler(mockService)

	start := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(6 * time.Hour)
	c, w := newBookingContext(t, "PUT", "/schedules/activities/act-1", modifyWindowRequest{
		StartTime: start,
		EndTime:   end,
	})
	c.Params = gin.Params{{Key: "id", Value: "act-1"}}

	modified := &domain.ExecutiveDailyActivity{
		AuxiliaryRequest: domain.AuxiliaryRequest{
			ID:        "act-1",
			DriverID:  "driver-1",
			StartTime: start,
			EndTime:   end,
			Status:    domain.RequestStatusPending,
		},
		ExecutiveID:   "exec-1",
		WorkedMinutes: 360,
	}
	mockService.On("ModifyActivity", mock.Anything, "act-1", start, end).Return(modified, nil)

	handler.modifyActivity(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp auxiliaryResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 360, resp.WorkedMinutes)
}
