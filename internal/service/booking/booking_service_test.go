package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/tom474/fleetbooking/internal/domain"
)

type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) Create(ctx context.Context, br *domain.BookingRequest) error {
	args := m.Called(ctx, br)
	return args.Error(0)
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id string) (*domain.BookingRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BookingRequest), args.Error(1)
}

func (m *MockBookingRepository) Update(ctx context.Context, br *domain.BookingRequest) error {
	args := m.Called(ctx, br)
	return args.Error(0)
}

type MockTripRepository struct {
	mock.Mock
}

func (m *MockTripRepository) Create(ctx context.Context, trip *domain.Trip) error {
	args := m.Called(ctx, trip)
	return args.Error(0)
}

func (m *MockTripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Trip), args.Error(1)
}

func (m *MockTripRepository) ListByBookingRequest(ctx context.Context, bookingRequestID string) ([]domain.Trip, error) {
	args := m.Called(ctx, bookingRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Trip), args.Error(1)
}

func (m *MockTripRepository) Update(ctx context.Context, trip *domain.Trip) error {
	args := m.Called(ctx, trip)
	return args.Error(0)
}

type MockTripPlanner struct {
	mock.Mock
}

func (m *MockTripPlanner) GenerateForBooking(ctx context.Context, br *domain.BookingRequest) ([]domain.Trip, error) {
	args := m.Called(ctx, br)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Trip), args.Error(1)
}

func (m *MockTripPlanner) Cancel(ctx context.Context, tripID, reason string) (*domain.Trip, error) {
	args := m.Called(ctx, tripID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Trip), args.Error(1)
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) AcquireBookingLock(ctx context.Context, bookingID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, bookingID, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockLocker) ReleaseBookingLock(ctx context.Context, bookingID string) error {
	args := m.Called(ctx, bookingID)
	return args.Error(0)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

type fixture struct {
	bookings *MockBookingRepository
	trips    *MockTripRepository
	planner  *MockTripPlanner
	locker   *MockLocker
	producer *MockProducer
	svc      *BookingService
}

func newFixture() *fixture {
	f := &fixture{
		bookings: &MockBookingRepository{},
		trips:    &MockTripRepository{},
		planner:  &MockTripPlanner{},
		locker:   &MockLocker{},
		producer: &MockProducer{},
	}
	f.svc = NewBookingService(f.bookings, f.trips, f.planner, f.locker, f.producer, "notifications", 10*time.Second)
	return f
}

func (f *fixture) allowLock(id string) {
	f.locker.On("AcquireBookingLock", mock.Anything, id, mock.Anything).Return(true, nil)
	f.locker.On("ReleaseBookingLock", mock.Anything, id).Return(nil)
}

func validRequest() *domain.BookingRequest {
	return &domain.BookingRequest{
		ID:                  "br-1",
		RequesterID:         "user-1",
		Type:                domain.BookingTypeOneWay,
		Status:              domain.RequestStatusPending,
		Priority:            domain.PriorityNormal,
		NumberOfPassengers:  2,
		PassengerIDs:        []string{"user-1", "user-2"},
		ContactName:         "Alice Nguyen",
		ContactPhone:        "+84900000001",
		DepartureLocationID: "loc-a",
		ArrivalLocationID:   "loc-b",
		DepartureTime:       time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC),
		ArrivalDeadline:     time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestCreate_Success(t *testing.T) {
	f := newFixture()
	br := validRequest()
	br.ID = ""

	f.bookings.On("Create", mock.Anything, br).Return(nil)
	f.planner.On("GenerateForBooking", mock.Anything, br).Return([]domain.Trip{{ID: "trip-1"}}, nil)

	created, err := f.svc.Create(context.Background(), br)

	assert.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, domain.RequestStatusPending, created.Status)
	f.planner.AssertNumberOfCalls(t, "GenerateForBooking", 1)
}

func TestCreate_ValidationFailure(t *testing.T) {
	f := newFixture()
	br := validRequest()
	br.ContactPhone = ""

	_, err := f.svc.Create(context.Background(), br)

	assert.True(t, domain.IsValidation(err))
	f.bookings.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreate_HighPriorityNeedsPurpose(t *testing.T) {
	f := newFixture()
	br := validRequest()
	br.Priority = domain.PriorityHigh
	br.TripPurpose = "  "

	_, err := f.svc.Create(context.Background(), br)

	assert.True(t, domain.IsValidation(err))
}

func TestCreate_GenerationFailureKeepsRequestPending(t *testing.T) {
	f := newFixture()
	br := validRequest()

	f.bookings.On("Create", mock.Anything, br).Return(nil)
	f.planner.On("GenerateForBooking", mock.Anything, br).
		Return(nil, domain.LocationResolutionError{LocationID: "loc-a"})
	f.bookings.On("Update", mock.Anything, br).Return(nil)

	saved, err := f.svc.Create(context.Background(), br)

	var lre domain.LocationResolutionError
	assert.ErrorAs(t, err, &lre)
	assert.Equal(t, domain.RequestStatusPending, saved.Status)
	assert.Contains(t, saved.LastError, "loc-a")
	f.bookings.AssertCalled(t, "Update", mock.Anything, br)
}

func TestApprove_Success(t *testing.T) {
	f := newFixture()
	br := validRequest()
	f.allowLock("br-1")
	f.bookings.On("GetByID", mock.Anything, "br-1").Return(br, nil)
	f.trips.On("ListByBookingRequest", mock.Anything, "br-1").
		Return([]domain.Trip{{ID: "trip-1", Status: domain.TripStatusScheduled}}, nil)
	f.bookings.On("Update", mock.Anything, br).Return(nil)
	f.producer.On("Publish", mock.Anything, "notifications", mock.Anything, mock.Anything).Return(nil)

	approved, err := f.svc.Approve(context.Background(), "br-1")

	assert.NoError(t, err)
	assert.Equal(t, domain.RequestStatusApproved, approved.Status)
	f.producer.AssertNumberOfCalls(t, "Publish", 1)
}

func TestApprove_TripStillScheduling(t *testing.T) {
	f := newFixture()
	br := validRequest()
	f.allowLock("br-1")
	f.bookings.On("GetByID", mock.Anything, "br-1").Return(br, nil)
	f.trips.On("ListByBookingRequest", mock.Anything, "br-1").
		Return([]domain.Trip{
			{ID: "trip-1", Status: domain.TripStatusScheduled},
			{ID: "trip-2", Status: domain.TripStatusScheduling},
		}, nil)

	_, err := f.svc.Approve(context.Background(), "br-1")

	assert.True(t, domain.IsInvalidAssignment(err))
	assert.Equal(t, domain.RequestStatusPending, br.Status)
	f.bookings.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestApprove_NoTrips(t *testing.T) {
	f := newFixture()
	f.allowLock("br-1")
	f.bookings.On("GetByID", mock.Anything, "br-1").Return(validRequest(), nil)
	f.trips.On("ListByBookingRequest", mock.Anything, "br-1").Return([]domain.Trip{}, nil)

	_, err := f.svc.Approve(context.Background(), "br-1")

	assert.True(t, domain.IsInvalidAssignment(err))
}

func TestApprove_AlreadyApproved(t *testing.T) {
	f := newFixture()
	br := validRequest()
	br.Status = domain.RequestStatusApproved
	f.allowLock("br-1")
	f.bookings.On("GetByID", mock.Anything, "br-1").Return(br, nil)
	f.trips.On("ListByBookingRequest", mock.Anything, "br-1").
		Return([]domain.Trip{{ID: "trip-1", Status: domain.TripStatusScheduled}}, nil)

	_, err := f.svc.Approve(context.Background(), "br-1")

	assert.True(t, domain.IsInvalidTransition(err))
}

func TestApprove_LockHeld(t *testing.T) {
	f := newFixture()
	f.locker.On("AcquireBookingLock", mock.Anything, "br-1", mock.Anything).Return(false, nil)

	_, err := f.svc.Approve(context.Background(), "br-1")

	assert.ErrorIs(t, err, domain.ErrLocked)
	f.bookings.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestApprove_RetriesOnceOnStaleWrite(t *testing.T) {
	f := newFixture()
	stale := validRequest()
	fresh := validRequest()
	fresh.Version = 4

	f.allowLock("br-1")
	f.bookings.On("GetByID", mock.Anything, "br-1").Return(stale, nil).Once()
	f.trips.On("ListByBookingRequest", mock.Anything, "br-1").
		Return([]domain.Trip{{ID: "trip-1", Status: domain.TripStatusScheduled}}, nil)
	f.bookings.On("Update", mock.Anything, stale).Return(domain.ErrStaleWrite).Once()
	f.bookings.On("GetByID", mock.Anything, "br-1").Return(fresh, nil).Once()
	f.bookings.On("Update", mock.Anything, fresh).Return(nil).Once()
	f.producer.On("Publish", mock.Anything, "notifications", mock.Anything, mock.Anything).Return(nil)

	approved, err := f.svc.Approve(context.Background(), "br-1")

	assert.NoError(t, err)
	assert.Equal(t, domain.RequestStatusApproved, approved.Status)
	assert.Equal(t, int64(4), approved.Version)
	f.bookings.AssertNumberOfCalls(t, "Update", 2)
}

func TestReject_RequiresReason(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Reject(context.Background(), "br-1", "   ")

	assert.True(t, domain.IsValidation(err))
}

func TestReject_CascadesToTrips(t *testing.T) {
	f := newFixture()
	br := validRequest()
	f.allowLock("br-1")
	f.bookings.On("GetByID", mock.Anything, "br-1").Return(br, nil)
	f.bookings.On("Update", mock.Anything, br).Return(nil)
	f.trips.On("ListByBookingRequest", mock.Anything, "br-1").
		Return([]domain.Trip{
			{ID: "trip-1", Status: domain.TripStatusScheduling},
			{ID: "trip-2", Status: domain.TripStatusCancelled},
		}, nil)
	f.planner.On("Cancel", mock.Anything, "trip-1", "no vehicles available that day").
		Return(&domain.Trip{ID: "trip-1", Status: domain.TripStatusCancelled}, nil)
	f.producer.On("Publish", mock.Anything, "notifications", mock.Anything, mock.Anything).Return(nil)

	rejected, err := f.svc.Reject(context.Background(), "br-1", "no vehicles available that day")

	assert.NoError(t, err)
	assert.Equal(t, domain.RequestStatusRejected, rejected.Status)
	assert.Equal(t, "no vehicles available that day", rejected.RejectReason)
	f.planner.AssertNumberOfCalls(t, "Cancel", 1)
}

func TestCancel_ReasonTooShort(t *testing.T) {
	f := newFixture()
	f.allowLock("br-1")
	f.bookings.On("GetByID", mock.Anything, "br-1").Return(validRequest(), nil)

	_, err := f.svc.Cancel(context.Background(), "br-1", "done")

	assert.True(t, domain.IsValidation(err))
	f.bookings.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestCancel_Idempotent(t *testing.T) {
	f := newFixture()
	br := validRequest()
	br.Status = domain.RequestStatusCancelled
	br.CancelReason = "plans changed last week"
	f.allowLock("br-1")
	f.bookings.On("GetByID", mock.Anything, "br-1").Return(br, nil)

	got, err := f.svc.Cancel(context.Background(), "br-1", "plans changed again today")

	assert.NoError(t, err)
	assert.Equal(t, "plans changed last week", got.CancelReason)
	f.bookings.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

// A repeat cancel returns the terminal state even when its reason would
// not pass validation.
func TestCancel_IdempotentWithShortReason(t *testing.T) {
	f := newFixture()
	br := validRequest()
	br.Status = domain.RequestStatusCancelled
	br.CancelReason = "plans changed last week"
	f.allowLock("br-1")
	f.bookings.On("GetByID", mock.Anything, "br-1").Return(br, nil)

	got, err := f.svc.Cancel(context.Background(), "br-1", "again")

	assert.NoError(t, err)
	assert.Equal(t, domain.RequestStatusCancelled, got.Status)
	assert.Equal(t, "plans changed last week", got.CancelReason)
	f.bookings.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestCancel_ApprovedRequest(t *testing.T) {
	f := newFixture()
	br := validRequest()
	br.Status = domain.RequestStatusApproved
	f.allowLock("br-1")
	f.bookings.On("GetByID", mock.Anything, "br-1").Return(br, nil)
	f.bookings.On("Update", mock.Anything, br).Return(nil)
	f.trips.On("ListByBookingRequest", mock.Anything, "br-1").
		Return([]domain.Trip{{ID: "trip-1", Status: domain.TripStatusScheduled}}, nil)
	f.planner.On("Cancel", mock.Anything, "trip-1", mock.Anything).
		Return(&domain.Trip{ID: "trip-1", Status: domain.TripStatusCancelled}, nil)
	f.producer.On("Publish", mock.Anything, "notifications", mock.Anything, mock.Anything).Return(nil)

	cancelled, err := f.svc.Cancel(context.Background(), "br-1", "meeting was called off")

	assert.NoError(t, err)
	assert.Equal(t, domain.RequestStatusCancelled, cancelled.Status)
	assert.Equal(t, "meeting was called off", cancelled.CancelReason)
	f.planner.AssertNumberOfCalls(t, "Cancel", 1)
}

func TestCancel_CompletedRequest(t *testing.T) {
	f := newFixture()
	br := validRequest()
	br.Status = domain.RequestStatusCompleted
	f.allowLock("br-1")
	f.bookings.On("GetByID", mock.Anything, "br-1").Return(br, nil)

	_, err := f.svc.Cancel(context.Background(), "br-1", "meeting was called off")

	assert.True(t, domain.IsInvalidTransition(err))
}

func TestModify_OnlyPending(t *testing.T) {
	f := newFixture()
	br := validRequest()
	br.Status = domain.RequestStatusApproved
	f.allowLock("br-1")
	f.bookings.On("GetByID", mock.Anything, "br-1").Return(br, nil)

	_, err := f.svc.Modify(context.Background(), "br-1", validRequest())

	assert.True(t, domain.IsInvalidTransition(err))
}

func TestModify_RegeneratesTrips(t *testing.T) {
	f := newFixture()
	br := validRequest()
	br.LastError = "location 'loc-x' could not be resolved"

	changes := validRequest()
	changes.DepartureLocationID = "loc-c"
	changes.NumberOfPassengers = 3
	changes.PassengerIDs = []string{"user-1", "user-2", "user-3"}

	f.allowLock("br-1")
	f.bookings.On("GetByID", mock.Anything, "br-1").Return(br, nil)
	f.bookings.On("Update", mock.Anything, br).Return(nil)
	f.trips.On("ListByBookingRequest", mock.Anything, "br-1").
		Return([]domain.Trip{{ID: "trip-1", Status: domain.TripStatusScheduling}}, nil)
	f.planner.On("Cancel", mock.Anything, "trip-1", mock.Anything).
		Return(&domain.Trip{ID: "trip-1", Status: domain.TripStatusCancelled}, nil)
	f.planner.On("GenerateForBooking", mock.Anything, br).Return([]domain.Trip{{ID: "trip-2"}}, nil)

	modified, err := f.svc.Modify(context.Background(), "br-1", changes)

	assert.NoError(t, err)
	assert.Equal(t, "loc-c", modified.DepartureLocationID)
	assert.Equal(t, 3, modified.NumberOfPassengers)
	assert.Empty(t, modified.LastError)
	f.planner.AssertNumberOfCalls(t, "Cancel", 1)
	f.planner.AssertNumberOfCalls(t, "GenerateForBooking", 1)
}

func TestModify_RevalidatesChanges(t *testing.T) {
	f := newFixture()
	br := validRequest()
	changes := validRequest()
	changes.ArrivalDeadline = changes.DepartureTime

	f.allowLock("br-1")
	f.bookings.On("GetByID", mock.Anything, "br-1").Return(br, nil)

	_, err := f.svc.Modify(context.Background(), "br-1", changes)

	assert.True(t, domain.IsValidation(err))
	f.bookings.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}
