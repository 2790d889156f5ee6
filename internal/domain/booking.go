package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusCancelled RequestStatus = "cancelled"
	RequestStatusCompleted RequestStatus = "completed"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusRejected || s == RequestStatusCancelled || s == RequestStatusCompleted
}

type BookingType string

const (
	BookingTypeOneWay    BookingType = "one_way"
	BookingTypeRoundTrip BookingType = "round_trip"
)

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

type BookingRequest struct {
	ID                 string
	RequesterID        string
	Type               BookingType
	Status             RequestStatus
	Priority           Priority
	TripPurpose        string
	Note               string
	NumberOfPassengers int
	PassengerIDs       []string
	IsReserved         bool
	ContactName        string
	ContactPhone       string

	DepartureLocationID string
	ArrivalLocationID   string
	DepartureTime       time.Time
	ArrivalDeadline     time.Time

	// Return leg, round-trip only.
	ReturnDepartureLocationID string
	ReturnArrivalLocationID   string
	ReturnDepartureTime       time.Time
	ReturnArrivalDeadline     time.Time

	CancelReason string
	RejectReason string

	// LastError records a fatal trip-generation failure for operator review
	// while the request stays pending.
	LastError string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

var bookingTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusPending:  {RequestStatusApproved, RequestStatusRejected, RequestStatusCancelled},
	RequestStatusApproved: {RequestStatusCancelled, RequestStatusCompleted},
}

// Transition moves the request to the target status or fails with
// InvalidTransitionError. All status changes go through here.
func (b *BookingRequest) Transition(to RequestStatus) error {
	for _, allowed := range bookingTransitions[b.Status] {
		if allowed == to {
			b.Status = to
			return nil
		}
	}
	return InvalidTransitionError{Entity: "booking_request", From: string(b.Status), To: string(to)}
}

// Validate checks field-level invariants shared by create and modify.
func (b *BookingRequest) Validate() error {
	if b.RequesterID == "" {
		return ValidationError{Field: "requester_id", Msg: "requester is required"}
	}
	if b.Type != BookingTypeOneWay && b.Type != BookingTypeRoundTrip {
		return ValidationError{Field: "type", Msg: "type must be one_way or round_trip"}
	}
	if b.Priority != PriorityNormal && b.Priority != PriorityHigh {
		return ValidationError{Field: "priority", Msg: "priority must be normal or high"}
	}
	if b.Priority == PriorityHigh && strings.TrimSpace(b.TripPurpose) == "" {
		return ValidationError{Field: "trip_purpose", Msg: "trip purpose is required for high priority requests"}
	}
	if b.NumberOfPassengers < 1 {
		return ValidationError{Field: "number_of_passengers", Msg: "at least one passenger is required"}
	}
	if b.ContactName == "" {
		return ValidationError{Field: "contact_name", Msg: "contact name is required"}
	}
	if b.ContactPhone == "" {
		return ValidationError{Field: "contact_phone", Msg: "contact phone is required"}
	}
	if b.DepartureLocationID == "" || b.ArrivalLocationID == "" {
		return ValidationError{Field: "locations", Msg: "departure and arrival locations are required"}
	}
	if !b.DepartureTime.Before(b.ArrivalDeadline) {
		return ValidationError{Field: "departure_time", Msg: "departure time must be before arrival deadline"}
	}
	if b.Type == BookingTypeRoundTrip {
		if b.ReturnDepartureLocationID == "" || b.ReturnArrivalLocationID == "" {
			return ValidationError{Field: "return_locations", Msg: "return locations are required for round trips"}
		}
		if !b.ReturnDepartureTime.Before(b.ReturnArrivalDeadline) {
			return ValidationError{Field: "return_departure_time", Msg: "return departure time must be before return arrival deadline"}
		}
	}
	return nil
}

// ValidateReason enforces the 8-500 character rule used for cancel and
// skip justifications.
func ValidateReason(field, reason string) error {
	length := utf8.RuneCountInString(strings.TrimSpace(reason))
	if length < 8 {
		return ValidationError{Field: field, Msg: "reason must be at least 8 characters"}
	}
	if length > 500 {
		return ValidationError{Field: field, Msg: "reason must be at most 500 characters"}
	}
	return nil
}
