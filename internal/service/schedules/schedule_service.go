package schedules

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

type ScheduleUseCase interface {
	// CheckConflict is the read-only preview used by coordinators before
	// committing an assignment or approval. excludeID drops the entity's
	// own window when re-checking a modification.
	CheckConflict(ctx context.Context, driverID string, start, end time.Time, excludeID string) ([]string, error)

	CreateLeave(ctx context.Context, leave *domain.LeaveSchedule) (*domain.LeaveSchedule, error)
	GetLeave(ctx context.Context, id string) (*domain.LeaveSchedule, error)
	ApproveLeave(ctx context.Context, id string) (*domain.LeaveSchedule, error)
	RejectLeave(ctx context.Context, id, reason string) (*domain.LeaveSchedule, error)
	CancelLeave(ctx context.Context, id, reason string) (*domain.LeaveSchedule, error)
	ModifyLeave(ctx context.Context, id string, start, end time.Time) (*domain.LeaveSchedule, error)

	CreateVehicleService(ctx context.Context, service *domain.VehicleService) (*domain.VehicleService, error)
	GetVehicleService(ctx context.Context, id string) (*domain.VehicleService, error)
	ApproveVehicleService(ctx context.Context, id string) (*domain.VehicleService, error)
	RejectVehicleService(ctx context.Context, id, reason string) (*domain.VehicleService, error)
	CancelVehicleService(ctx context.Context, id, reason string) (*domain.VehicleService, error)
	ModifyVehicleService(ctx context.Context, id string, start, end time.Time) (*domain.VehicleService, error)

	CreateActivity(ctx context.Context, activity *domain.ExecutiveDailyActivity) (*domain.ExecutiveDailyActivity, error)
	GetActivity(ctx context.Context, id string) (*domain.ExecutiveDailyActivity, error)
	ApproveActivity(ctx context.Context, id string) (*domain.ExecutiveDailyActivity, error)
	RejectActivity(ctx context.Context, id, reason string) (*domain.ExecutiveDailyActivity, error)
	CancelActivity(ctx context.Context, id, reason string) (*domain.ExecutiveDailyActivity, error)
	ModifyActivity(ctx context.Context, id string, start, end time.Time) (*domain.ExecutiveDailyActivity, error)

	// CompleteElapsed flips approved requests whose window has fully
	// passed to completed. Called by the worker sweep.
	CompleteElapsed(ctx context.Context, now time.Time) (int64, error)
}

type Locker interface {
	AcquireDriverLock(ctx context.Context, driverID string, ttl time.Duration) (bool, error)
	ReleaseDriverLock(ctx context.Context, driverID string) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type ScheduleService struct {
	schedules repository.ScheduleRepository
	locker    Locker
	producer  Producer
	topic     string
	lockTTL   time.Duration
}

func NewScheduleService(
	schedules repository.ScheduleRepository,
	locker Locker,
	producer Producer,
	topic string,
	lockTTL time.Duration,
) *ScheduleService {
	return &ScheduleService{
		schedules: schedules,
		locker:    locker,
		producer:  producer,
		topic:     topic,
		lockTTL:   lockTTL,
	}
}

func (s *ScheduleService) CheckConflict(ctx context.Context, driverID string, start, end time.Time, excludeID string) ([]string, error) {
	if driverID == "" {
		return nil, domain.ValidationError{Field: "driver_id", Msg: "driver is required"}
	}
	if !start.Before(end) {
		return nil, domain.ValidationError{Field: "start_time", Msg: "start time must be before end time"}
	}
	commitments, err := s.schedules.GetDriverCommitments(ctx, driverID, start, end)
	if err != nil {
		return nil, err
	}
	candidate := domain.Window{Start: start, End: end}
	return domain.FindConflicts(candidate, commitments.Exclude(excludeID).Windows()), nil
}

// approveWindow runs the same conflict check used for trip assignment
// before an auxiliary request may enter the driver's committed schedule.
// Held under the per-driver lock by the callers.
func (s *ScheduleService) approveWindow(ctx context.Context, driverID string, window domain.Window) error {
	commitments, err := s.schedules.GetDriverCommitments(ctx, driverID, window.Start, window.End)
	if err != nil {
		return err
	}
	if ids := domain.FindConflicts(window, commitments.Exclude(window.ID).Windows()); len(ids) > 0 {
		return domain.ScheduleConflictError{ConflictingIDs: ids}
	}
	return nil
}

func (s *ScheduleService) lockDriver(ctx context.Context, driverID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	ok, err := s.locker.AcquireDriverLock(ctx, driverID, s.lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrLocked
	}
	return func() {
		_ = s.locker.ReleaseDriverLock(ctx, driverID)
	}, nil
}

func (s *ScheduleService) CompleteElapsed(ctx context.Context, now time.Time) (int64, error) {
	return s.schedules.CompleteElapsedApproved(ctx, now)
}

// ---- Leave ----

func (s *ScheduleService) CreateLeave(ctx context.Context, leave *domain.LeaveSchedule) (*domain.LeaveSchedule, error) {
	if err := leave.Validate(); err != nil {
		return nil, err
	}
	if leave.Reason == "" {
		return nil, domain.ValidationError{Field: "reason", Msg: "leave reason is required"}
	}
	if leave.ID == "" {
		leave.ID = uuid.NewString()
	}
	leave.Status = domain.RequestStatusPending
	if err := s.schedules.CreateLeave(ctx, leave); err != nil {
		return nil, err
	}
	return leave, nil
}

func (s *ScheduleService) GetLeave(ctx context.Context, id string) (*domain.LeaveSchedule, error) {
	return s.schedules.GetLeave(ctx, id)
}

func (s *ScheduleService) ApproveLeave(ctx context.Context, id string) (*domain.LeaveSchedule, error) {
	leave, err := s.schedules.GetLeave(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lockDriver(ctx, leave.DriverID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.approveWindow(ctx, leave.DriverID, leave.Window()); err != nil {
		return nil, err
	}
	leave, err = s.updateLeave(ctx, leave, func(l *domain.LeaveSchedule) error {
		return l.Transition(domain.RequestStatusApproved)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, "LeaveApproved", leave.DriverID, leave.ID, map[string]string{"requestId": leave.ID})
	return leave, nil
}

func (s *ScheduleService) RejectLeave(ctx context.Context, id, reason string) (*domain.LeaveSchedule, error) {
	if err := requireReason("reject_reason", reason); err != nil {
		return nil, err
	}
	leave, err := s.schedules.GetLeave(ctx, id)
	if err != nil {
		return nil, err
	}
	leave, err = s.updateLeave(ctx, leave, func(l *domain.LeaveSchedule) error {
		if err := l.Transition(domain.RequestStatusRejected); err != nil {
			return err
		}
		l.RejectReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, "LeaveRejected", leave.DriverID, leave.ID, map[string]string{"requestId": leave.ID, "reason": reason})
	return leave, nil
}

func (s *ScheduleService) CancelLeave(ctx context.Context, id, reason string) (*domain.LeaveSchedule, error) {
	leave, err := s.schedules.GetLeave(ctx, id)
	if err != nil {
		return nil, err
	}
	if leave.Status == domain.RequestStatusCancelled {
		return leave, nil
	}
	if err := domain.ValidateReason("cancel_reason", reason); err != nil {
		return nil, err
	}
	return s.updateLeave(ctx, leave, func(l *domain.LeaveSchedule) error {
		if l.Status == domain.RequestStatusCancelled {
			return nil
		}
		if err := l.Transition(domain.RequestStatusCancelled); err != nil {
			return err
		}
		l.CancelReason = reason
		return nil
	})
}

// ModifyLeave moves the window of a pending or approved leave. The new
// window is re-checked against the driver's other commitments, excluding
// the leave's own committed window.
func (s *ScheduleService) ModifyLeave(ctx context.Context, id string, start, end time.Time) (*domain.LeaveSchedule, error) {
	leave, err := s.schedules.GetLeave(ctx, id)
	if err != nil {
		return nil, err
	}
	if leave.Status.IsTerminal() {
		return nil, domain.InvalidTransitionError{Entity: "leave_schedule", From: string(leave.Status), To: "modified"}
	}

	unlock, err := s.lockDriver(ctx, leave.DriverID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.approveWindow(ctx, leave.DriverID, domain.Window{ID: leave.ID, Start: start, End: end}); err != nil {
		return nil, err
	}
	return s.updateLeave(ctx, leave, func(l *domain.LeaveSchedule) error {
		if l.Status.IsTerminal() {
			return domain.InvalidTransitionError{Entity: "leave_schedule", From: string(l.Status), To: "modified"}
		}
		l.StartTime = start
		l.EndTime = end
		return l.Validate()
	})
}

func (s *ScheduleService) updateLeave(ctx context.Context, leave *domain.LeaveSchedule, apply func(*domain.LeaveSchedule) error) (*domain.LeaveSchedule, error) {
	for attempt := 0; ; attempt++ {
		if err := apply(leave); err != nil {
			return nil, err
		}
		err := s.schedules.UpdateLeave(ctx, leave)
		if err == nil {
			return leave, nil
		}
		if !errors.Is(err, domain.ErrStaleWrite) || attempt > 0 {
			return nil, err
		}
		fresh, readErr := s.schedules.GetLeave(ctx, leave.ID)
		if readErr != nil {
			return nil, readErr
		}
		leave = fresh
	}
}

// ---- Vehicle service ----

func (s *ScheduleService) CreateVehicleService(ctx context.Context, service *domain.VehicleService) (*domain.VehicleService, error) {
	if err := service.Validate(); err != nil {
		return nil, err
	}
	if service.VehicleID == "" {
		return nil, domain.ValidationError{Field: "vehicle_id", Msg: "vehicle is required"}
	}
	switch service.ServiceType {
	case domain.VehicleServiceMaintenance, domain.VehicleServiceRepair, domain.VehicleServiceInspection:
	default:
		return nil, domain.ValidationError{Field: "service_type", Msg: "service type must be maintenance, repair or inspection"}
	}
	if service.ID == "" {
		service.ID = uuid.NewString()
	}
	service.Status = domain.RequestStatusPending
	if err := s.schedules.CreateVehicleService(ctx, service); err != nil {
		return nil, err
	}
	return service, nil
}

func (s *ScheduleService) GetVehicleService(ctx context.Context, id string) (*domain.VehicleService, error) {
	return s.schedules.GetVehicleService(ctx, id)
}

func (s *ScheduleService) ApproveVehicleService(ctx context.Context, id string) (*domain.VehicleService, error) {
	service, err := s.schedules.GetVehicleService(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lockDriver(ctx, service.DriverID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.approveWindow(ctx, service.DriverID, service.Window()); err != nil {
		return nil, err
	}
	service, err = s.updateVehicleService(ctx, service, func(v *domain.VehicleService) error {
		return v.Transition(domain.RequestStatusApproved)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, "VehicleServiceApproved", service.DriverID, service.ID, map[string]string{"requestId": service.ID})
	return service, nil
}

func (s *ScheduleService) RejectVehicleService(ctx context.Context, id, reason string) (*domain.VehicleService, error) {
	if err := requireReason("reject_reason", reason); err != nil {
		return nil, err
	}
	service, err := s.schedules.GetVehicleService(ctx, id)
	if err != nil {
		return nil, err
	}
	service, err = s.updateVehicleService(ctx, service, func(v *domain.VehicleService) error {
		if err := v.Transition(domain.RequestStatusRejected); err != nil {
			return err
		}
		v.RejectReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, "VehicleServiceRejected", service.DriverID, service.ID, map[string]string{"requestId": service.ID, "reason": reason})
	return service, nil
}

func (s *ScheduleService) CancelVehicleService(ctx context.Context, id, reason string) (*domain.VehicleService, error) {
	service, err := s.schedules.GetVehicleService(ctx, id)
	if err != nil {
		return nil, err
	}
	if service.Status == domain.RequestStatusCancelled {
		return service, nil
	}
	if err := domain.ValidateReason("cancel_reason", reason); err != nil {
		return nil, err
	}
	return s.updateVehicleService(ctx, service, func(v *domain.VehicleService) error {
		if v.Status == domain.RequestStatusCancelled {
			return nil
		}
		if err := v.Transition(domain.RequestStatusCancelled); err != nil {
			return err
		}
		v.CancelReason = reason
		return nil
	})
}

func (s *ScheduleService) ModifyVehicleService(ctx context.Context, id string, start, end time.Time) (*domain.VehicleService, error) {
	service, err := s.schedules.GetVehicleService(ctx, id)
	if err != nil {
		return nil, err
	}
	if service.Status.IsTerminal() {
		return nil, domain.InvalidTransitionError{Entity: "vehicle_service", From: string(service.Status), To: "modified"}
	}

	unlock, err := s.lockDriver(ctx, service.DriverID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.approveWindow(ctx, service.DriverID, domain.Window{ID: service.ID, Start: start, End: end}); err != nil {
		return nil, err
	}
	return s.updateVehicleService(ctx, service, func(v *domain.VehicleService) error {
		if v.Status.IsTerminal() {
			return domain.InvalidTransitionError{Entity: "vehicle_service", From: string(v.Status), To: "modified"}
		}
		v.StartTime = start
		v.EndTime = end
		return v.Validate()
	})
}

func (s *ScheduleService) updateVehicleService(ctx context.Context, service *domain.VehicleService, apply func(*domain.VehicleService) error) (*domain.VehicleService, error) {
	for attempt := 0; ; attempt++ {
		if err := apply(service); err != nil {
			return nil, err
		}
		err := s.schedules.UpdateVehicleService(ctx, service)
		if err == nil {
			return service, nil
		}
		if !errors.Is(err, domain.ErrStaleWrite) || attempt > 0 {
			return nil, err
		}
		fresh, readErr := s.schedules.GetVehicleService(ctx, service.ID)
		if readErr != nil {
			return nil, readErr
		}
		service = fresh
	}
}

// ---- Executive daily activity ----

func (s *ScheduleService) CreateActivity(ctx context.Context, activity *domain.ExecutiveDailyActivity) (*domain.ExecutiveDailyActivity, error) {
	if err := activity.Validate(); err != nil {
		return nil, err
	}
	if activity.ExecutiveID == "" {
		return nil, domain.ValidationError{Field: "executive_id", Msg: "executive is required"}
	}
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	activity.Status = domain.RequestStatusPending
	activity.RecalculateWorkedMinutes()
	if err := s.schedules.CreateActivity(ctx, activity); err != nil {
		return nil, err
	}
	return activity, nil
}

func (s *ScheduleService) GetActivity(ctx context.Context, id string) (*domain.ExecutiveDailyActivity, error) {
	return s.schedules.GetActivity(ctx, id)
}

func (s *ScheduleService) ApproveActivity(ctx context.Context, id string) (*domain.ExecutiveDailyActivity, error) {
	activity, err := s.schedules.GetActivity(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lockDriver(ctx, activity.DriverID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.approveWindow(ctx, activity.DriverID, activity.Window()); err != nil {
		return nil, err
	}
	activity, err = s.updateActivity(ctx, activity, func(a *domain.ExecutiveDailyActivity) error {
		return a.Transition(domain.RequestStatusApproved)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, "ActivityApproved", activity.DriverID, activity.ID, map[string]string{"requestId": activity.ID})
	return activity, nil
}

func (s *ScheduleService) RejectActivity(ctx context.Context, id, reason string) (*domain.ExecutiveDailyActivity, error) {
	if err := requireReason("reject_reason", reason); err != nil {
		return nil, err
	}
	activity, err := s.schedules.GetActivity(ctx, id)
	if err != nil {
		return nil, err
	}
	activity, err = s.updateActivity(ctx, activity, func(a *domain.ExecutiveDailyActivity) error {
		if err := a.Transition(domain.RequestStatusRejected); err != nil {
			return err
		}
		a.RejectReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, "ActivityRejected", activity.DriverID, activity.ID, map[string]string{"requestId": activity.ID, "reason": reason})
	return activity, nil
}

func (s *ScheduleService) CancelActivity(ctx context.Context, id, reason string) (*domain.ExecutiveDailyActivity, error) {
	activity, err := s.schedules.GetActivity(ctx, id)
	if err != nil {
		return nil, err
	}
	if activity.Status == domain.RequestStatusCancelled {
		return activity, nil
	}
	if err := domain.ValidateReason("cancel_reason", reason); err != nil {
		return nil, err
	}
	return s.updateActivity(ctx, activity, func(a *domain.ExecutiveDailyActivity) error {
		if a.Status == domain.RequestStatusCancelled {
			return nil
		}
		if err := a.Transition(domain.RequestStatusCancelled); err != nil {
			return err
		}
		a.CancelReason = reason
		return nil
	})
}

// ModifyActivity moves the logged window and rederives worked minutes.
func (s *ScheduleService) ModifyActivity(ctx context.Context, id string, start, end time.Time) (*domain.ExecutiveDailyActivity, error) {
	activity, err := s.schedules.GetActivity(ctx, id)
	if err != nil {
		return nil, err
	}
	if activity.Status.IsTerminal() {
		return nil, domain.InvalidTransitionError{Entity: "executive_daily_activity", From: string(activity.Status), To: "modified"}
	}

	unlock, err := s.lockDriver(ctx, activity.DriverID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.approveWindow(ctx, activity.DriverID, domain.Window{ID: activity.ID, Start: start, End: end}); err != nil {
		return nil, err
	}
	return s.updateActivity(ctx, activity, func(a *domain.ExecutiveDailyActivity) error {
		if a.Status.IsTerminal() {
			return domain.InvalidTransitionError{Entity: "executive_daily_activity", From: string(a.Status), To: "modified"}
		}
		a.StartTime = start
		a.EndTime = end
		if err := a.Validate(); err != nil {
			return err
		}
		a.RecalculateWorkedMinutes()
		return nil
	})
}

func (s *ScheduleService) updateActivity(ctx context.Context, activity *domain.ExecutiveDailyActivity, apply func(*domain.ExecutiveDailyActivity) error) (*domain.ExecutiveDailyActivity, error) {
	for attempt := 0; ; attempt++ {
		if err := apply(activity); err != nil {
			return nil, err
		}
		err := s.schedules.UpdateActivity(ctx, activity)
		if err == nil {
			return activity, nil
		}
		if !errors.Is(err, domain.ErrStaleWrite) || attempt > 0 {
			return nil, err
		}
		fresh, readErr := s.schedules.GetActivity(ctx, activity.ID)
		if readErr != nil {
			return nil, readErr
		}
		activity = fresh
	}
}

func requireReason(field, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return domain.ValidationError{Field: field, Msg: "reason is required"}
	}
	return nil
}

func (s *ScheduleService) publish(ctx context.Context, templateKey, recipientID, entityID string, params map[string]string) {
	if s.producer == nil || s.topic == "" {
		return
	}
	event := kafka.NotificationEvent{
		TemplateKey: templateKey,
		Params:      params,
		Role:        "driver",
		RecipientID: recipientID,
		EntityID:    entityID,
		Priority:    "normal",
		OccurredAt:  time.Now(),
	}
	if err := s.producer.Publish(ctx, s.topic, entityID, event); err != nil {
		log.Printf("WARNING: failed to publish %s event for %s: %v", templateKey, entityID, err)
	}
}

var _ ScheduleUseCase = (*ScheduleService)(nil)
