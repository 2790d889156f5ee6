package domain

import (
	"sort"
	"time"
)

type TripStatus string

const (
	TripStatusScheduling TripStatus = "scheduling"
	TripStatusScheduled  TripStatus = "scheduled"
	TripStatusOnGoing    TripStatus = "on_going"
	TripStatusCompleted  TripStatus = "completed"
	TripStatusCancelled  TripStatus = "cancelled"
)

func (s TripStatus) IsTerminal() bool {
	return s == TripStatusCompleted || s == TripStatusCancelled
}

type StopType string

const (
	StopTypePickup  StopType = "pickup"
	StopTypeDropOff StopType = "drop_off"
)

type GroupStatus string

const (
	GroupStatusPending     GroupStatus = "pending"
	GroupStatusPickedUp    GroupStatus = "picked_up"
	GroupStatusDroppingOff GroupStatus = "dropping_off"
	GroupStatusDroppedOff  GroupStatus = "dropped_off"
	GroupStatusNoShow      GroupStatus = "no_show"
	GroupStatusCancelled   GroupStatus = "cancelled"
)

func (s GroupStatus) IsTerminal() bool {
	return s == GroupStatusDroppedOff || s == GroupStatusNoShow || s == GroupStatusCancelled
}

// UserGroup is the party of one booking request serviced at a stop.
type UserGroup struct {
	BookingRequestID string
	UserIDs          []string
	ContactName      string
	ContactPhone     string
	Status           GroupStatus
	SkipReason       string
}

type Stop struct {
	ID                string
	Order             int
	Type              StopType
	LocationID        string
	ArrivalTime       time.Time
	ActualArrivalTime *time.Time
	Group             []UserGroup
}

// TripTicket is the per-booking view of a trip. Status mirrors the trip's
// lifecycle while TicketStatus is recomputed from the booking's user groups.
type TripTicket struct {
	ID               string
	TripID           string
	BookingRequestID string
	Status           TripStatus
	TicketStatus     GroupStatus
	NoShowReason     string
}

// OutsourcedVehicle is a non-fleet vehicle fulfilling a trip without
// internal resource assignment.
type OutsourcedVehicle struct {
	VendorName  string
	PlateNumber string
	DriverName  string
	DriverPhone string
}

type Trip struct {
	ID               string
	BookingRequestID string
	Status           TripStatus
	DepartureTime    time.Time
	ArrivalDeadline  time.Time
	DriverID         string
	VehicleID        string
	Outsourced       *OutsourcedVehicle
	Stops            []Stop
	Tickets          []TripTicket

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

var tripTransitions = map[TripStatus][]TripStatus{
	TripStatusScheduling: {TripStatusScheduled, TripStatusCancelled},
	TripStatusScheduled:  {TripStatusOnGoing, TripStatusCancelled},
	TripStatusOnGoing:    {TripStatusCompleted, TripStatusCancelled},
}

func (t *Trip) Transition(to TripStatus) error {
	for _, allowed := range tripTransitions[t.Status] {
		if allowed == to {
			t.Status = to
			return nil
		}
	}
	return InvalidTransitionError{Entity: "trip", From: string(t.Status), To: string(to)}
}

// HasResources reports whether the trip carries either an owned
// driver+vehicle pair or an outsourced vehicle. Required for any status
// beyond scheduling.
func (t *Trip) HasResources() bool {
	if t.Outsourced != nil {
		return t.DriverID == "" && t.VehicleID == ""
	}
	return t.DriverID != "" && t.VehicleID != ""
}

// ResequenceStops restores the stop order invariant: stops sorted by
// planned arrival time, order values contiguous from zero. Called after
// every stop insertion or removal.
func (t *Trip) ResequenceStops() {
	sort.SliceStable(t.Stops, func(i, j int) bool {
		return t.Stops[i].ArrivalTime.Before(t.Stops[j].ArrivalTime)
	})
	for i := range t.Stops {
		t.Stops[i].Order = i
	}
}

// StopByID returns a pointer into the trip's stop slice, or nil.
func (t *Trip) StopByID(stopID string) *Stop {
	for i := range t.Stops {
		if t.Stops[i].ID == stopID {
			return &t.Stops[i]
		}
	}
	return nil
}

// TicketByBooking returns the ticket for a contributing booking, or nil.
func (t *Trip) TicketByBooking(bookingRequestID string) *TripTicket {
	for i := range t.Tickets {
		if t.Tickets[i].BookingRequestID == bookingRequestID {
			return &t.Tickets[i]
		}
	}
	return nil
}

// GroupsByBooking collects every user group of one booking across the
// trip's stops.
func (t *Trip) GroupsByBooking(bookingRequestID string) []*UserGroup {
	var groups []*UserGroup
	for i := range t.Stops {
		for j := range t.Stops[i].Group {
			if t.Stops[i].Group[j].BookingRequestID == bookingRequestID {
				groups = append(groups, &t.Stops[i].Group[j])
			}
		}
	}
	return groups
}

type Location struct {
	ID        string
	Name      string
	Address   string
	Latitude  float64
	Longitude float64
}
