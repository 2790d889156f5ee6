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
	"github.com/tom474/fleetbooking/internal/service/trips"
)

type MockTripUseCase struct {
	mock.Mock
}

func (m *MockTripUseCase) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Trip), args.Error(1)
}

func (m *MockTripUseCase) GenerateForBooking(ctx context.Context, br *domain.BookingRequest) ([]domain.Trip, error) {
	args := m.Called(ctx, br)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Trip), args.Error(1)
}

func (m *MockTripUseCase) AddBookingToTrip(ctx context.Context, tripID string, br *domain.BookingRequest) (*domain.Trip, error) {
	args := m.Called(ctx, tripID, br)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Trip), args.Error(1)
}

func (m *MockTripUseCase) Assign(ctx context.Context, tripID string, input trips.AssignInput) (*domain.Trip, error) {
	args := m.Called(ctx, tripID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Trip), args.Error(1)
}

func (m *MockTripUseCase) Start(ctx context.Context, tripID string) (*domain.Trip, error) {
	args := m.Called(ctx, tripID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Trip), args.Error(1)
}

func (m *MockTripUseCase) Cancel(ctx context.Context, tripID, reason string) (*domain.Trip, error) {
	args := m.Called(ctx, tripID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Trip), args.Error(1)
}

func (m *MockTripUseCase) AdvanceGroup(ctx context.Context, tripID, stopID, bookingRequestID string) (*domain.Trip, error) {
	args := m.Called(ctx, tripID, stopID, bookingRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Trip), args.Error(1)
}

func (m *MockTripUseCase) SkipGroup(ctx context.Context, tripID, stopID, bookingRequestID, reason string) (*domain.Trip, error) {
	args := m.Called(ctx, tripID, stopID, bookingRequestID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Trip), args.Error(1)
}

func (m *MockTripUseCase) SkipAllGroups(ctx context.Context, tripID, stopID, reason string) (*domain.Trip, error) {
	args := m.Called(ctx, tripID, stopID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Trip), args.Error(1)
}

func TestTripHandler_assignConflict(t *testing.T) {
	mockService := &MockTripUseCase{}
	handler := NewTripHandler(mockService, &MockBookingUseCase{})

	c, w := newBookingContext(t, "POST", "/trips/trip-1/assign", assignRequest{
		DriverID:  "driver-1",
		VehicleID: "vehicle-1",
	})
	c.Params = gin.Params{{Key: "id", Value: "trip-1"}}
	mockService.On("Assign", mock.Anything, "trip-1", trips.AssignInput{DriverID: "driver-1", VehicleID: "vehicle-1"}).
		Return(nil, domain.ScheduleConflictError{ConflictingIDs: []string{"leave-1", "trip-9"}})

	handler.assign(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	var resp struct {
		ConflictingIDs []string `json:"conflicting_ids"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"leave-1", "trip-9"}, resp.ConflictingIDs)
}

func TestTripHandler_assignSuccess(t *testing.T) {
	mockService := &MockTripUseCase{}
	handler := NewTripHandler(mockService, &MockBookingUseCase{})

	c, w := newBookingContext(t, "POST", "/trips/trip-1/assign", assignRequest{
		Outsourced: &outsourcedPayload{VendorName: "Acme Transport", PlateNumber: "51A-12345"},
	})
	c.Params = gin.Params{{Key: "id", Value: "trip-1"}}

	trip := &domain.Trip{
		ID:     "trip-1",
		Status: domain.TripStatusScheduled,
		Outsourced: &domain.OutsourcedVehicle{
			VendorName:  "Acme Transport",
			PlateNumber: "51A-12345",
		},
		DepartureTime:   time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC),
		ArrivalDeadline: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	}
	mockService.On("Assign", mock.Anything, "trip-1", mock.Anything).Return(trip, nil)

	handler.assign(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp tripResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "scheduled", resp.Status)
	assert.NotNil(t, resp.Outsourced)
	assert.Equal(t, "Acme Transport", resp.Outsourced.VendorName)
}

func TestTripHandler_skipGroupBadReason(t *testing.T) {
	mockService := &MockTripUseCase{}
	handler := NewTripHandler(mockService, &MockBookingUseCase{})

	c, w := newBookingContext(t, "POST", "/trips/trip-1/stops/stop-1/skip", groupActionRequest{
		BookingRequestID: "br-1",
		Reason:           "late",
	})
	c.Params = gin.Params{{Key: "id", Value: "trip-1"}, {Key: "stopId", Value: "stop-1"}}
	mockService.On("SkipGroup", mock.Anything, "trip-1", "stop-1", "br-1", "late").
		Return(nil, domain.ValidationError{Field: "skip_reason", Msg: "reason must be at least 8 characters"})

	handler.skipGroup(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTripHandler_addBooking(t *testing.T) {
	mockService := &MockTripUseCase{}
	mockBookings := &MockBookingUseCase{}
	handler := NewTripHandler(mockService, mockBookings)

	c, w := newBookingContext(t, "POST", "/trips/trip-1/bookings", addBookingRequest{BookingRequestID: "br-2"})
	c.Params = gin.Params{{Key: "id", Value: "trip-1"}}

	br := &domain.BookingRequest{ID: "br-2", PassengerIDs: []string{"user-3"}}
	trip := &domain.Trip{ID: "trip-1", Status: domain.TripStatusScheduling}
	mockBookings.On("GetByID", mock.Anything, "br-2").Return(br, nil)
	mockService.On("AddBookingToTrip", mock.Anything, "trip-1", br).Return(trip, nil)

	handler.addBooking(c)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestTripHandler_advanceGroup(t *testing.T) {
	mockService := &MockTripUseCase{}
	handler := NewTripHandler(mockService, &MockBookingUseCase{})

	c, w := newBookingContext(t, "POST", "/trips/trip-1/stops/stop-1/advance", groupActionRequest{BookingRequestID: "br-1"})
	c.Params = gin.Params{{Key: "id", Value: "trip-1"}, {Key: "stopId", Value: "stop-1"}}

	now := time.Date(2026, 9, 1, 9, 5, 0, 0, time.UTC)
	trip := &domain.Trip{
		ID:     "trip-1",
		Status: domain.TripStatusOnGoing,
		Stops: []domain.Stop{{
			ID:                "stop-1",
			Type:              domain.StopTypePickup,
			ActualArrivalTime: &now,
			Group:             []domain.UserGroup{{BookingRequestID: "br-1", Status: domain.GroupStatusPickedUp}},
		}},
	}
	mockService.On("AdvanceGroup", mock.Anything, "trip-1", "stop-1", "br-1").Return(trip, nil)

	handler.advanceGroup(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp tripResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "picked_up", resp.Stops[0].Group[0].Status)
	assert.NotNil(t, resp.Stops[0].ActualArrivalTime)
}
