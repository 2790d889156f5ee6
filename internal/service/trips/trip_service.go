package trips

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/tom474/fleetbooking/internal/domain"
	"github.com/tom474/fleetbooking/internal/kafka"
	"github.com/tom474/fleetbooking/internal/repository"
)

type TripUseCase interface {
	GetByID(ctx context.Context, id string) (*domain.Trip, error)
	GenerateForBooking(ctx context.Context, br *domain.BookingRequest) ([]domain.Trip, error)
	AddBookingToTrip(ctx context.Context, tripID string, br *domain.BookingRequest) (*domain.Trip, error)
	Assign(ctx context.Context, tripID string, input AssignInput) (*domain.Trip, error)
	Start(ctx context.Context, tripID string) (*domain.Trip, error)
	Cancel(ctx context.Context, tripID, reason string) (*domain.Trip, error)
	AdvanceGroup(ctx context.Context, tripID, stopID, bookingRequestID string) (*domain.Trip, error)
	SkipGroup(ctx context.Context, tripID, stopID, bookingRequestID, reason string) (*domain.Trip, error)
	SkipAllGroups(ctx context.Context, tripID, stopID, reason string) (*domain.Trip, error)
}

// AssignInput selects the trip's resources: either an owned driver+vehicle
// pair or an outsourced vehicle, never both.
type AssignInput struct {
	DriverID   string
	VehicleID  string
	Outsourced *domain.OutsourcedVehicle
}

type Locker interface {
	AcquireDriverLock(ctx context.Context, driverID string, ttl time.Duration) (bool, error)
	ReleaseDriverLock(ctx context.Context, driverID string) error
}

type LocationCache interface {
	GetLocation(ctx context.Context, id string) (*domain.Location, error)
	SetLocation(ctx context.Context, location *domain.Location) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type TripService struct {
	trips     repository.TripRepository
	bookings  repository.BookingRequestRepository
	schedules repository.ScheduleRepository
	locations repository.LocationRepository
	locker    Locker
	cache     LocationCache
	producer  Producer
	topic     string
	lockTTL   time.Duration
}

func NewTripService(
	trips repository.TripRepository,
	bookings repository.BookingRequestRepository,
	schedules repository.ScheduleRepository,
	locations repository.LocationRepository,
	locker Locker,
	cache LocationCache,
	producer Producer,
	topic string,
	lockTTL time.Duration,
) *TripService {
	return &TripService{
		trips:     trips,
		bookings:  bookings,
		schedules: schedules,
		locations: locations,
		locker:    locker,
		cache:     cache,
		producer:  producer,
		topic:     topic,
		lockTTL:   lockTTL,
	}
}

func (s *TripService) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	return s.trips.GetByID(ctx, id)
}

// GenerateForBooking expands a booking request into its trips: one for a
// one-way request, two independently schedulable trips for a round trip.
func (s *TripService) GenerateForBooking(ctx context.Context, br *domain.BookingRequest) ([]domain.Trip, error) {
	if len(br.PassengerIDs) == 0 {
		return nil, domain.ErrEmptyPassengerList
	}

	legs := []struct {
		departureLocationID string
		arrivalLocationID   string
		departureTime       time.Time
		arrivalDeadline     time.Time
	}{
		{br.DepartureLocationID, br.ArrivalLocationID, br.DepartureTime, br.ArrivalDeadline},
	}
	if br.Type == domain.BookingTypeRoundTrip {
		legs = append(legs, struct {
			departureLocationID string
			arrivalLocationID   string
			departureTime       time.Time
			arrivalDeadline     time.Time
		}{br.ReturnDepartureLocationID, br.ReturnArrivalLocationID, br.ReturnDepartureTime, br.ReturnArrivalDeadline})
	}

	trips := make([]domain.Trip, 0, len(legs))
	for _, leg := range legs {
		if _, err := s.resolveLocation(ctx, leg.departureLocationID); err != nil {
			return nil, err
		}
		if _, err := s.resolveLocation(ctx, leg.arrivalLocationID); err != nil {
			return nil, err
		}

		trip := domain.Trip{
			ID:               uuid.NewString(),
			BookingRequestID: br.ID,
			Status:           domain.TripStatusScheduling,
			DepartureTime:    leg.departureTime,
			ArrivalDeadline:  leg.arrivalDeadline,
			Stops: []domain.Stop{
				{
					ID:          uuid.NewString(),
					Order:       0,
					Type:        domain.StopTypePickup,
					LocationID:  leg.departureLocationID,
					ArrivalTime: leg.departureTime,
					Group:       []domain.UserGroup{newGroup(br)},
				},
				{
					ID:          uuid.NewString(),
					Order:       1,
					Type:        domain.StopTypeDropOff,
					LocationID:  leg.arrivalLocationID,
					ArrivalTime: leg.arrivalDeadline,
					Group:       []domain.UserGroup{newGroup(br)},
				},
			},
			Tickets: []domain.TripTicket{
				{
					ID:               uuid.NewString(),
					BookingRequestID: br.ID,
					Status:           domain.TripStatusScheduling,
					TicketStatus:     domain.GroupStatusPending,
				},
			},
		}
		trip.Tickets[0].TripID = trip.ID

		if err := s.trips.Create(ctx, &trip); err != nil {
			return nil, err
		}
		trips = append(trips, trip)
	}
	return trips, nil
}

// AddBookingToTrip pools another booking request onto an existing trip.
// Stops are reused when locations match, otherwise inserted and the stop
// order resequenced.
func (s *TripService) AddBookingToTrip(ctx context.Context, tripID string, br *domain.BookingRequest) (*domain.Trip, error) {
	if len(br.PassengerIDs) == 0 {
		return nil, domain.ErrEmptyPassengerList
	}
	if _, err := s.resolveLocation(ctx, br.DepartureLocationID); err != nil {
		return nil, err
	}
	if _, err := s.resolveLocation(ctx, br.ArrivalLocationID); err != nil {
		return nil, err
	}

	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}

	return s.updateTrip(ctx, trip, func(t *domain.Trip) error {
		if t.Status != domain.TripStatusScheduling && t.Status != domain.TripStatusScheduled {
			return domain.InvalidTransitionError{Entity: "trip", From: string(t.Status), To: "pooled"}
		}
		if t.TicketByBooking(br.ID) != nil {
			return domain.ValidationError{Field: "booking_request_id", Msg: "booking already on this trip"}
		}
		mergeStop(t, domain.StopTypePickup, br.DepartureLocationID, br.DepartureTime, newGroup(br))
		mergeStop(t, domain.StopTypeDropOff, br.ArrivalLocationID, br.ArrivalDeadline, newGroup(br))
		t.Tickets = append(t.Tickets, domain.TripTicket{
			ID:               uuid.NewString(),
			TripID:           t.ID,
			BookingRequestID: br.ID,
			Status:           t.Status,
			TicketStatus:     domain.GroupStatusPending,
		})
		t.ResequenceStops()
		return nil
	})
}

// Assign commits resources to a trip. For an owned pair the driver's
// committed windows (trips, approved leave, approved vehicle service) are
// checked for overlap under a per-driver lock before anything is written.
// The caller's booking request status is untouched so round-trip legs can
// be assigned independently.
func (s *TripService) Assign(ctx context.Context, tripID string, input AssignInput) (*domain.Trip, error) {
	owned := input.DriverID != "" || input.VehicleID != ""
	if input.Outsourced != nil && owned {
		return nil, domain.InvalidAssignmentError{Reason: "supply either a driver and vehicle or an outsourced vehicle, not both"}
	}
	if input.Outsourced == nil {
		if input.DriverID == "" || input.VehicleID == "" {
			return nil, domain.InvalidAssignmentError{Reason: "both driver and vehicle are required for an owned assignment"}
		}
	} else if input.Outsourced.VendorName == "" || input.Outsourced.PlateNumber == "" {
		return nil, domain.InvalidAssignmentError{Reason: "outsourced vehicle requires vendor name and plate number"}
	}

	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}

	if input.Outsourced != nil {
		trip, err = s.updateTrip(ctx, trip, func(t *domain.Trip) error {
			if err := t.Transition(domain.TripStatusScheduled); err != nil {
				return err
			}
			t.DriverID = ""
			t.VehicleID = ""
			t.Outsourced = input.Outsourced
			return nil
		})
		return trip, err
	}

	if s.locker != nil {
		ok, err := s.locker.AcquireDriverLock(ctx, input.DriverID, s.lockTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrLocked
		}
		defer func() {
			_ = s.locker.ReleaseDriverLock(ctx, input.DriverID)
		}()
	}

	commitments, err := s.schedules.GetDriverCommitments(ctx, input.DriverID, trip.DepartureTime, trip.ArrivalDeadline)
	if err != nil {
		return nil, err
	}
	candidate := domain.Window{ID: trip.ID, Start: trip.DepartureTime, End: trip.ArrivalDeadline}
	if ids := domain.FindConflicts(candidate, commitments.Exclude(trip.ID).Windows()); len(ids) > 0 {
		return nil, domain.ScheduleConflictError{ConflictingIDs: ids}
	}

	trip, err = s.updateTrip(ctx, trip, func(t *domain.Trip) error {
		if err := t.Transition(domain.TripStatusScheduled); err != nil {
			return err
		}
		t.DriverID = input.DriverID
		t.VehicleID = input.VehicleID
		t.Outsourced = nil
		for i := range t.Tickets {
			t.Tickets[i].Status = domain.TripStatusScheduled
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, "DriverNewTripAssigned", "driver", trip.DriverID, trip.ID, map[string]string{
		"date": trip.DepartureTime.Format("02/01/2006"),
		"time": trip.DepartureTime.Format("15:04"),
	})
	return trip, nil
}

// Start is the driver's confirmation that the trip is under way.
func (s *TripService) Start(ctx context.Context, tripID string) (*domain.Trip, error) {
	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return s.updateTrip(ctx, trip, func(t *domain.Trip) error {
		if !t.HasResources() {
			return domain.InvalidAssignmentError{Reason: "trip has no assigned resources"}
		}
		if err := t.Transition(domain.TripStatusOnGoing); err != nil {
			return err
		}
		for i := range t.Tickets {
			t.Tickets[i].Status = domain.TripStatusOnGoing
		}
		return nil
	})
}

// Cancel soft-cancels a trip and everything still open under it.
// Cancelling an already terminal trip is a no-op.
func (s *TripService) Cancel(ctx context.Context, tripID, reason string) (*domain.Trip, error) {
	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.Status.IsTerminal() {
		return trip, nil
	}

	driverID := trip.DriverID
	departure := trip.DepartureTime
	trip, err = s.updateTrip(ctx, trip, func(t *domain.Trip) error {
		if t.Status.IsTerminal() {
			return nil
		}
		if err := t.Transition(domain.TripStatusCancelled); err != nil {
			return err
		}
		for i := range t.Tickets {
			t.Tickets[i].Status = domain.TripStatusCancelled
			if !t.Tickets[i].TicketStatus.IsTerminal() {
				t.Tickets[i].TicketStatus = domain.GroupStatusCancelled
			}
		}
		for i := range t.Stops {
			for j := range t.Stops[i].Group {
				group := &t.Stops[i].Group[j]
				if !group.Status.IsTerminal() {
					group.Status = domain.GroupStatusCancelled
					group.SkipReason = reason
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if driverID != "" {
		s.publish(ctx, "DriverTripCancelled", "driver", driverID, trip.ID, map[string]string{
			"date": departure.Format("02/01/2006"),
		})
	}
	return trip, nil
}

// AdvanceGroup steps one booking's party through the stop's status chain:
// pending -> picked_up -> dropped_off at pickup stops, pending ->
// dropping_off -> dropped_off at drop-off stops.
func (s *TripService) AdvanceGroup(ctx context.Context, tripID, stopID, bookingRequestID string) (*domain.Trip, error) {
	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	trip, err = s.updateTrip(ctx, trip, func(t *domain.Trip) error {
		stop, group, err := findGroup(t, stopID, bookingRequestID)
		if err != nil {
			return err
		}
		next, ok := nextGroupStatus(stop.Type, group.Status)
		if !ok {
			return domain.InvalidTransitionError{Entity: "user_group", From: string(group.Status), To: "advanced"}
		}
		touchStop(stop)
		group.Status = next
		if next.IsTerminal() {
			propagateBookingStatus(t, bookingRequestID, next, "")
		}
		recomputeDerivedState(t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trip, s.completeBookingIfDone(ctx, trip)
}

// SkipGroup marks one still-pending party a no-show with a mandatory
// justification.
func (s *TripService) SkipGroup(ctx context.Context, tripID, stopID, bookingRequestID, reason string) (*domain.Trip, error) {
	if err := domain.ValidateReason("skip_reason", reason); err != nil {
		return nil, err
	}
	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	trip, err = s.updateTrip(ctx, trip, func(t *domain.Trip) error {
		stop, group, err := findGroup(t, stopID, bookingRequestID)
		if err != nil {
			return err
		}
		if group.Status != domain.GroupStatusPending {
			return domain.InvalidTransitionError{Entity: "user_group", From: string(group.Status), To: string(domain.GroupStatusNoShow)}
		}
		touchStop(stop)
		group.Status = domain.GroupStatusNoShow
		group.SkipReason = reason
		propagateBookingStatus(t, bookingRequestID, domain.GroupStatusNoShow, reason)
		recomputeDerivedState(t)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, "StopSkipped", "coordinator", "", trip.ID, map[string]string{
		"stopId": stopID,
		"reason": reason,
	})
	return trip, s.completeBookingIfDone(ctx, trip)
}

// SkipAllGroups cancels every still-pending party at the stop with a
// shared justification. Groups already past pending are untouched.
func (s *TripService) SkipAllGroups(ctx context.Context, tripID, stopID, reason string) (*domain.Trip, error) {
	if err := domain.ValidateReason("skip_reason", reason); err != nil {
		return nil, err
	}
	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	trip, err = s.updateTrip(ctx, trip, func(t *domain.Trip) error {
		stop := t.StopByID(stopID)
		if stop == nil {
			return domain.NotFoundError{Resource: "trip_stop", ID: stopID}
		}
		if err := requireExecutable(t); err != nil {
			return err
		}
		touchStop(stop)
		var skipped []string
		for i := range stop.Group {
			if stop.Group[i].Status != domain.GroupStatusPending {
				continue
			}
			stop.Group[i].Status = domain.GroupStatusCancelled
			stop.Group[i].SkipReason = reason
			skipped = append(skipped, stop.Group[i].BookingRequestID)
		}
		for _, bookingID := range skipped {
			propagateBookingStatus(t, bookingID, domain.GroupStatusCancelled, reason)
		}
		recomputeDerivedState(t)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, "StopSkipped", "coordinator", "", trip.ID, map[string]string{
		"stopId": stopID,
		"reason": reason,
	})
	return trip, s.completeBookingIfDone(ctx, trip)
}

// updateTrip applies a mutation and persists it, retrying once on a stale
// write after re-reading the current state.
func (s *TripService) updateTrip(ctx context.Context, trip *domain.Trip, apply func(*domain.Trip) error) (*domain.Trip, error) {
	for attempt := 0; ; attempt++ {
		if err := apply(trip); err != nil {
			return nil, err
		}
		err := s.trips.Update(ctx, trip)
		if err == nil {
			return trip, nil
		}
		if !errors.Is(err, domain.ErrStaleWrite) || attempt > 0 {
			return nil, err
		}
		fresh, readErr := s.trips.GetByID(ctx, trip.ID)
		if readErr != nil {
			return nil, readErr
		}
		trip = fresh
	}
}

// completeBookingIfDone moves the booking request to completed once every
// one of its trips has finished.
func (s *TripService) completeBookingIfDone(ctx context.Context, trip *domain.Trip) error {
	if trip.Status != domain.TripStatusCompleted {
		return nil
	}
	siblings, err := s.trips.ListByBookingRequest(ctx, trip.BookingRequestID)
	if err != nil {
		return err
	}
	for _, sibling := range siblings {
		if sibling.Status != domain.TripStatusCompleted && sibling.Status != domain.TripStatusCancelled {
			return nil
		}
	}

	booking, err := s.bookings.GetByID(ctx, trip.BookingRequestID)
	if err != nil {
		return err
	}
	if booking.Status != domain.RequestStatusApproved {
		return nil
	}
	if err := booking.Transition(domain.RequestStatusCompleted); err != nil {
		return err
	}
	if err := s.bookings.Update(ctx, booking); err != nil {
		if errors.Is(err, domain.ErrStaleWrite) {
			fresh, readErr := s.bookings.GetByID(ctx, trip.BookingRequestID)
			if readErr != nil {
				return readErr
			}
			if fresh.Status != domain.RequestStatusApproved {
				return nil
			}
			if err := fresh.Transition(domain.RequestStatusCompleted); err != nil {
				return err
			}
			return s.bookings.Update(ctx, fresh)
		}
		return err
	}
	return nil
}

func (s *TripService) resolveLocation(ctx context.Context, id string) (*domain.Location, error) {
	if id == "" {
		return nil, domain.LocationResolutionError{LocationID: id}
	}
	if s.cache != nil {
		if location, err := s.cache.GetLocation(ctx, id); err == nil && location != nil {
			return location, nil
		}
	}
	location, err := s.locations.GetByID(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.LocationResolutionError{LocationID: id}
		}
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetLocation(ctx, location)
	}
	return location, nil
}

func (s *TripService) publish(ctx context.Context, templateKey, role, recipientID, entityID string, params map[string]string) {
	if s.producer == nil || s.topic == "" {
		return
	}
	event := kafka.NotificationEvent{
		TemplateKey: templateKey,
		Params:      params,
		Role:        role,
		RecipientID: recipientID,
		EntityID:    entityID,
		Priority:    "high",
		OccurredAt:  time.Now(),
	}
	if err := s.producer.Publish(ctx, s.topic, entityID, event); err != nil {
		log.Printf("WARNING: failed to publish %s event for %s: %v", templateKey, entityID, err)
	}
}

func newGroup(br *domain.BookingRequest) domain.UserGroup {
	return domain.UserGroup{
		BookingRequestID: br.ID,
		UserIDs:          append([]string(nil), br.PassengerIDs...),
		ContactName:      br.ContactName,
		ContactPhone:     br.ContactPhone,
		Status:           domain.GroupStatusPending,
	}
}

func mergeStop(trip *domain.Trip, stopType domain.StopType, locationID string, arrivalTime time.Time, group domain.UserGroup) {
	for i := range trip.Stops {
		if trip.Stops[i].Type == stopType && trip.Stops[i].LocationID == locationID {
			trip.Stops[i].Group = append(trip.Stops[i].Group, group)
			return
		}
	}
	trip.Stops = append(trip.Stops, domain.Stop{
		ID:          uuid.NewString(),
		Type:        stopType,
		LocationID:  locationID,
		ArrivalTime: arrivalTime,
		Group:       []domain.UserGroup{group},
	})
}

func findGroup(trip *domain.Trip, stopID, bookingRequestID string) (*domain.Stop, *domain.UserGroup, error) {
	if err := requireExecutable(trip); err != nil {
		return nil, nil, err
	}
	stop := trip.StopByID(stopID)
	if stop == nil {
		return nil, nil, domain.NotFoundError{Resource: "trip_stop", ID: stopID}
	}
	for i := range stop.Group {
		if stop.Group[i].BookingRequestID == bookingRequestID {
			return stop, &stop.Group[i], nil
		}
	}
	return nil, nil, domain.NotFoundError{Resource: "user_group", ID: bookingRequestID}
}

func requireExecutable(trip *domain.Trip) error {
	if trip.Status != domain.TripStatusOnGoing {
		return domain.InvalidTransitionError{Entity: "trip", From: string(trip.Status), To: "executing"}
	}
	return nil
}

// touchStop records the actual arrival the first time any group status
// changes at the stop. The timestamp is immutable afterwards.
func touchStop(stop *domain.Stop) {
	if stop.ActualArrivalTime == nil {
		now := time.Now()
		stop.ActualArrivalTime = &now
	}
}

func nextGroupStatus(stopType domain.StopType, current domain.GroupStatus) (domain.GroupStatus, bool) {
	switch stopType {
	case domain.StopTypePickup:
		switch current {
		case domain.GroupStatusPending:
			return domain.GroupStatusPickedUp, true
		case domain.GroupStatusPickedUp:
			return domain.GroupStatusDroppedOff, true
		}
	case domain.StopTypeDropOff:
		switch current {
		case domain.GroupStatusPending:
			return domain.GroupStatusDroppingOff, true
		case domain.GroupStatusDroppingOff:
			return domain.GroupStatusDroppedOff, true
		}
	}
	return "", false
}

// propagateBookingStatus mirrors a terminal outcome onto the booking's
// remaining open groups at other stops, so the denormalized copies cannot
// drift apart.
func propagateBookingStatus(trip *domain.Trip, bookingRequestID string, status domain.GroupStatus, reason string) {
	if !status.IsTerminal() {
		return
	}
	for _, group := range trip.GroupsByBooking(bookingRequestID) {
		if group.Status.IsTerminal() {
			continue
		}
		group.Status = status
		if reason != "" && group.SkipReason == "" {
			group.SkipReason = reason
		}
	}
}

// recomputeDerivedState recalculates every ticket's status from its user
// groups and the trip's status from its tickets. Single source of truth is
// the group statuses; everything else is derived.
func recomputeDerivedState(trip *domain.Trip) {
	for i := range trip.Tickets {
		ticket := &trip.Tickets[i]
		groups := trip.GroupsByBooking(ticket.BookingRequestID)
		if len(groups) == 0 {
			continue
		}
		ticket.TicketStatus = deriveTicketStatus(groups)
		if ticket.TicketStatus == domain.GroupStatusNoShow && ticket.NoShowReason == "" {
			for _, group := range groups {
				if group.SkipReason != "" {
					ticket.NoShowReason = group.SkipReason
					break
				}
			}
		}
	}

	for _, ticket := range trip.Tickets {
		if !ticket.TicketStatus.IsTerminal() {
			return
		}
	}
	if trip.Status == domain.TripStatusOnGoing {
		trip.Status = domain.TripStatusCompleted
		for i := range trip.Tickets {
			trip.Tickets[i].Status = domain.TripStatusCompleted
		}
	}
}

func deriveTicketStatus(groups []*domain.UserGroup) domain.GroupStatus {
	allTerminal := true
	for _, group := range groups {
		if !group.Status.IsTerminal() {
			allTerminal = false
			break
		}
	}
	if allTerminal {
		allDropped := true
		anyNoShow := false
		for _, group := range groups {
			if group.Status != domain.GroupStatusDroppedOff {
				allDropped = false
			}
			if group.Status == domain.GroupStatusNoShow {
				anyNoShow = true
			}
		}
		switch {
		case allDropped:
			return domain.GroupStatusDroppedOff
		case anyNoShow:
			return domain.GroupStatusNoShow
		default:
			return domain.GroupStatusCancelled
		}
	}

	for _, group := range groups {
		if group.Status == domain.GroupStatusDroppingOff {
			return domain.GroupStatusDroppingOff
		}
	}
	for _, group := range groups {
		if group.Status == domain.GroupStatusPickedUp {
			return domain.GroupStatusPickedUp
		}
	}
	return domain.GroupStatusPending
}

var _ TripUseCase = (*TripService)(nil)
