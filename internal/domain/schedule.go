package domain

import "time"

// AuxiliaryRequest carries the fields shared by the three driver-commitment
// lifecycles (leave, vehicle service, executive activity). They follow one
// state machine: pending -> approved|rejected, pending|approved -> cancelled,
// approved -> completed once the window has elapsed.
type AuxiliaryRequest struct {
	ID        string
	DriverID  string
	StartTime time.Time
	EndTime   time.Time
	Status    RequestStatus

	RejectReason string
	CancelReason string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

var auxiliaryTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusPending:  {RequestStatusApproved, RequestStatusRejected, RequestStatusCancelled},
	RequestStatusApproved: {RequestStatusCancelled, RequestStatusCompleted},
}

func (a *AuxiliaryRequest) Transition(to RequestStatus) error {
	for _, allowed := range auxiliaryTransitions[a.Status] {
		if allowed == to {
			a.Status = to
			return nil
		}
	}
	return InvalidTransitionError{Entity: "auxiliary_request", From: string(a.Status), To: string(to)}
}

func (a *AuxiliaryRequest) Validate() error {
	if a.DriverID == "" {
		return ValidationError{Field: "driver_id", Msg: "driver is required"}
	}
	if !a.StartTime.Before(a.EndTime) {
		return ValidationError{Field: "start_time", Msg: "start time must be before end time"}
	}
	return nil
}

// Window is the driver-commitment view of the request.
func (a *AuxiliaryRequest) Window() Window {
	return Window{ID: a.ID, Start: a.StartTime, End: a.EndTime}
}

type LeaveSchedule struct {
	AuxiliaryRequest
	Reason string
	Notes  string
}

type VehicleServiceType string

const (
	VehicleServiceMaintenance VehicleServiceType = "maintenance"
	VehicleServiceRepair      VehicleServiceType = "repair"
	VehicleServiceInspection  VehicleServiceType = "inspection"
)

type VehicleService struct {
	AuxiliaryRequest
	VehicleID   string
	ServiceType VehicleServiceType
	Reason      string
	Description string
}

// ExecutiveDailyActivity logs a dedicated driver's day with an executive.
type ExecutiveDailyActivity struct {
	AuxiliaryRequest
	ExecutiveID   string
	VehicleID     string
	Notes         string
	WorkedMinutes int
}

// RecalculateWorkedMinutes derives the logged duration from the window.
func (a *ExecutiveDailyActivity) RecalculateWorkedMinutes() {
	a.WorkedMinutes = int(a.EndTime.Sub(a.StartTime).Minutes())
}
