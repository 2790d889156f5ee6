package booking

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tom474/fleetbooking/internal/domain"
	"github.com/tom474/fleetbooking/internal/kafka"
	"github.com/tom474/fleetbooking/internal/repository"
)

type BookingUseCase interface {
	Create(ctx context.Context, br *domain.BookingRequest) (*domain.BookingRequest, error)
	GetByID(ctx context.Context, id string) (*domain.BookingRequest, error)
	Approve(ctx context.Context, id string) (*domain.BookingRequest, error)
	Reject(ctx context.Context, id, reason string) (*domain.BookingRequest, error)
	Cancel(ctx context.Context, id, reason string) (*domain.BookingRequest, error)
	Modify(ctx context.Context, id string, changes *domain.BookingRequest) (*domain.BookingRequest, error)
}

// TripPlanner is the slice of the trip use case this service depends on:
// generating trips for a new or modified request and cancelling them when
// the request is withdrawn.
type TripPlanner interface {
	GenerateForBooking(ctx context.Context, br *domain.BookingRequest) ([]domain.Trip, error)
	Cancel(ctx context.Context, tripID, reason string) (*domain.Trip, error)
}

type Locker interface {
	AcquireBookingLock(ctx context.Context, bookingID string, ttl time.Duration) (bool, error)
	ReleaseBookingLock(ctx context.Context, bookingID string) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type BookingService struct {
	bookings repository.BookingRequestRepository
	trips    repository.TripRepository
	planner  TripPlanner
	locker   Locker
	producer Producer
	topic    string
	lockTTL  time.Duration
}

func NewBookingService(
	bookings repository.BookingRequestRepository,
	trips repository.TripRepository,
	planner TripPlanner,
	locker Locker,
	producer Producer,
	topic string,
	lockTTL time.Duration,
) *BookingService {
	return &BookingService{
		bookings: bookings,
		trips:    trips,
		planner:  planner,
		locker:   locker,
		producer: producer,
		topic:    topic,
		lockTTL:  lockTTL,
	}
}

func (s *BookingService) GetByID(ctx context.Context, id string) (*domain.BookingRequest, error) {
	return s.bookings.GetByID(ctx, id)
}

// Create validates and persists a new request, then generates its trips.
// A fatal generation failure leaves the request pending with the failure
// recorded for operator review; nothing is rolled back.
func (s *BookingService) Create(ctx context.Context, br *domain.BookingRequest) (*domain.BookingRequest, error) {
	if err := br.Validate(); err != nil {
		return nil, err
	}
	if len(br.PassengerIDs) == 0 {
		return nil, domain.ErrEmptyPassengerList
	}

	if br.ID == "" {
		br.ID = uuid.NewString()
	}
	br.Status = domain.RequestStatusPending
	br.LastError = ""

	if err := s.bookings.Create(ctx, br); err != nil {
		return nil, err
	}

	if _, err := s.planner.GenerateForBooking(ctx, br); err != nil {
		br.LastError = err.Error()
		if uerr := s.bookings.Update(ctx, br); uerr != nil {
			log.Printf("WARNING: failed to record generation error on booking %s: %v", br.ID, uerr)
		}
		return br, err
	}
	return br, nil
}

// Approve moves a pending request to approved. Every trip of the request
// must already carry resources; scheduling is the coordinator's job and
// happens before approval, not after.
func (s *BookingService) Approve(ctx context.Context, id string) (*domain.BookingRequest, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	br, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	trips, err := s.trips.ListByBookingRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	scheduled := 0
	for _, trip := range trips {
		switch trip.Status {
		case domain.TripStatusScheduling:
			return nil, domain.InvalidAssignmentError{Reason: "every trip needs assigned resources before approval"}
		case domain.TripStatusScheduled, domain.TripStatusOnGoing:
			scheduled++
		}
	}
	if scheduled == 0 {
		return nil, domain.InvalidAssignmentError{Reason: "booking request has no scheduled trip"}
	}

	br, err = s.updateBooking(ctx, br, func(b *domain.BookingRequest) error {
		return b.Transition(domain.RequestStatusApproved)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, "RequesterBookingApproved", br.RequesterID, br.ID, map[string]string{
		"bookingId": br.ID,
	})
	return br, nil
}

// Reject declines a pending request with a mandatory reason and cancels
// any trips generated for it.
func (s *BookingService) Reject(ctx context.Context, id, reason string) (*domain.BookingRequest, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, domain.ValidationError{Field: "reject_reason", Msg: "reject reason is required"}
	}

	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	br, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	br, err = s.updateBooking(ctx, br, func(b *domain.BookingRequest) error {
		if err := b.Transition(domain.RequestStatusRejected); err != nil {
			return err
		}
		b.RejectReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cancelTrips(ctx, id, reason)
	s.publish(ctx, "RequesterBookingRejected", br.RequesterID, br.ID, map[string]string{
		"bookingId": br.ID,
		"reason":    reason,
	})
	return br, nil
}

// Cancel withdraws a pending or approved request and cascades to its
// trips. Cancelling an already cancelled request is a no-op and keeps the
// original reason.
func (s *BookingService) Cancel(ctx context.Context, id, reason string) (*domain.BookingRequest, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	br, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if br.Status == domain.RequestStatusCancelled {
		return br, nil
	}
	if err := domain.ValidateReason("cancel_reason", reason); err != nil {
		return nil, err
	}

	br, err = s.updateBooking(ctx, br, func(b *domain.BookingRequest) error {
		if b.Status == domain.RequestStatusCancelled {
			return nil
		}
		if err := b.Transition(domain.RequestStatusCancelled); err != nil {
			return err
		}
		b.CancelReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cancelTrips(ctx, id, reason)
	s.publish(ctx, "RequesterBookingCancelled", br.RequesterID, br.ID, map[string]string{
		"bookingId": br.ID,
	})
	return br, nil
}

// Modify replaces the mutable details of a still-pending request,
// re-validates, and regenerates its trips from scratch. Requests past
// pending are immutable except through cancel.
func (s *BookingService) Modify(ctx context.Context, id string, changes *domain.BookingRequest) (*domain.BookingRequest, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	br, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if br.Status != domain.RequestStatusPending {
		return nil, domain.InvalidTransitionError{Entity: "booking_request", From: string(br.Status), To: "modified"}
	}

	applyChanges(br, changes)
	if err := br.Validate(); err != nil {
		return nil, err
	}
	if len(br.PassengerIDs) == 0 {
		return nil, domain.ErrEmptyPassengerList
	}

	br, err = s.updateBooking(ctx, br, func(b *domain.BookingRequest) error {
		if b.Status != domain.RequestStatusPending {
			return domain.InvalidTransitionError{Entity: "booking_request", From: string(b.Status), To: "modified"}
		}
		applyChanges(b, changes)
		b.LastError = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cancelTrips(ctx, id, "booking request details were modified")
	if _, err := s.planner.GenerateForBooking(ctx, br); err != nil {
		br.LastError = err.Error()
		if uerr := s.bookings.Update(ctx, br); uerr != nil {
			log.Printf("WARNING: failed to record generation error on booking %s: %v", br.ID, uerr)
		}
		return br, err
	}
	return br, nil
}

func applyChanges(dst, src *domain.BookingRequest) {
	dst.Type = src.Type
	dst.Priority = src.Priority
	dst.TripPurpose = src.TripPurpose
	dst.Note = src.Note
	dst.NumberOfPassengers = src.NumberOfPassengers
	dst.PassengerIDs = append([]string(nil), src.PassengerIDs...)
	dst.IsReserved = src.IsReserved
	dst.ContactName = src.ContactName
	dst.ContactPhone = src.ContactPhone
	dst.DepartureLocationID = src.DepartureLocationID
	dst.ArrivalLocationID = src.ArrivalLocationID
	dst.DepartureTime = src.DepartureTime
	dst.ArrivalDeadline = src.ArrivalDeadline
	dst.ReturnDepartureLocationID = src.ReturnDepartureLocationID
	dst.ReturnArrivalLocationID = src.ReturnArrivalLocationID
	dst.ReturnDepartureTime = src.ReturnDepartureTime
	dst.ReturnArrivalDeadline = src.ReturnArrivalDeadline
}

// cancelTrips cascades a request-level rejection or cancellation to every
// still-open trip. Failures are logged, not surfaced; the request status
// is already committed.
func (s *BookingService) cancelTrips(ctx context.Context, bookingRequestID, reason string) {
	trips, err := s.trips.ListByBookingRequest(ctx, bookingRequestID)
	if err != nil {
		log.Printf("WARNING: failed to list trips of booking %s for cascade cancel: %v", bookingRequestID, err)
		return
	}
	for _, trip := range trips {
		if trip.Status.IsTerminal() {
			continue
		}
		if _, err := s.planner.Cancel(ctx, trip.ID, reason); err != nil {
			log.Printf("WARNING: failed to cancel trip %s of booking %s: %v", trip.ID, bookingRequestID, err)
		}
	}
}

func (s *BookingService) lock(ctx context.Context, id string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	ok, err := s.locker.AcquireBookingLock(ctx, id, s.lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrLocked
	}
	return func() {
		_ = s.locker.ReleaseBookingLock(ctx, id)
	}, nil
}

// updateBooking applies a mutation and persists it, retrying once on a
// stale write after re-reading the current state.
func (s *BookingService) updateBooking(ctx context.Context, br *domain.BookingRequest, apply func(*domain.BookingRequest) error) (*domain.BookingRequest, error) {
	for attempt := 0; ; attempt++ {
		if err := apply(br); err != nil {
			return nil, err
		}
		err := s.bookings.Update(ctx, br)
		if err == nil {
			return br, nil
		}
		if !errors.Is(err, domain.ErrStaleWrite) || attempt > 0 {
			return nil, err
		}
		fresh, readErr := s.bookings.GetByID(ctx, br.ID)
		if readErr != nil {
			return nil, readErr
		}
		br = fresh
	}
}

func (s *BookingService) publish(ctx context.Context, templateKey, recipientID, entityID string, params map[string]string) {
	if s.producer == nil || s.topic == "" {
		return
	}
	event := kafka.NotificationEvent{
		TemplateKey: templateKey,
		Params:      params,
		Role:        "requester",
		RecipientID: recipientID,
		EntityID:    entityID,
		Priority:    "normal",
		OccurredAt:  time.Now(),
	}
	if err := s.producer.Publish(ctx, s.topic, entityID, event); err != nil {
		log.Printf("WARNING: failed to publish %s event for %s: %v", templateKey, entityID, err)
	}
}

var _ BookingUseCase = (*BookingService)(nil)
