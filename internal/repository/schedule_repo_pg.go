package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tom474/fleetbooking/internal/domain"
)

// ScheduleRepository persists the auxiliary lifecycles and answers the
// driver-commitment query used by every conflict check. Cancelled and
// rejected windows never appear in commitment results.
type ScheduleRepository interface {
	GetDriverCommitments(ctx context.Context, driverID string, from, to time.Time) (*domain.Commitments, error)

	CreateLeave(ctx context.Context, leave *domain.LeaveSchedule) error
	GetLeave(ctx context.Context, id string) (*domain.LeaveSchedule, error)
	UpdateLeave(ctx context.Context, leave *domain.LeaveSchedule) error

	CreateVehicleService(ctx context.Context, service *domain.VehicleService) error
	GetVehicleService(ctx context.Context, id string) (*domain.VehicleService, error)
	UpdateVehicleService(ctx context.Context, service *domain.VehicleService) error

	CreateActivity(ctx context.Context, activity *domain.ExecutiveDailyActivity) error
	GetActivity(ctx context.Context, id string) (*domain.ExecutiveDailyActivity, error)
	UpdateActivity(ctx context.Context, activity *domain.ExecutiveDailyActivity) error

	// CompleteElapsedApproved sweeps approved windows whose end time has
	// passed into completed, across all three lifecycles.
	CompleteElapsedApproved(ctx context.Context, deadline time.Time) (int64, error)
}

type PGScheduleRepository struct {
	db *pgxpool.Pool
}

func NewScheduleRepository(db *pgxpool.Pool) ScheduleRepository {
	return &PGScheduleRepository{db: db}
}

func (r *PGScheduleRepository) GetDriverCommitments(ctx context.Context, driverID string, from, to time.Time) (*domain.Commitments, error) {
	var c domain.Commitments

	collect := func(query string, out *[]domain.Window) error {
		rows, err := r.db.Query(ctx, query, driverID, from, to)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var w domain.Window
			if err := rows.Scan(&w.ID, &w.Start, &w.End); err != nil {
				return err
			}
			*out = append(*out, w)
		}
		return rows.Err()
	}

	if err := collect(`SELECT id, departure_time, arrival_deadline FROM trips
		WHERE driver_id=$1 AND status IN ('scheduled', 'on_going')
		AND departure_time < $3 AND arrival_deadline > $2
		ORDER BY departure_time`, &c.Trips); err != nil {
		return nil, err
	}
	if err := collect(`SELECT id, start_time, end_time FROM leave_schedules
		WHERE driver_id=$1 AND status='approved'
		AND start_time < $3 AND end_time > $2
		ORDER BY start_time`, &c.Leaves); err != nil {
		return nil, err
	}
	if err := collect(`SELECT id, start_time, end_time FROM vehicle_services
		WHERE driver_id=$1 AND status='approved'
		AND start_time < $3 AND end_time > $2
		ORDER BY start_time`, &c.Services); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PGScheduleRepository) CreateLeave(ctx context.Context, leave *domain.LeaveSchedule) error {
	leave.Version = 1
	return r.db.QueryRow(ctx, `INSERT INTO leave_schedules (id, driver_id, start_time, end_time, status, reason, notes, reject_reason, cancel_reason, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		leave.ID, leave.DriverID, leave.StartTime, leave.EndTime, leave.Status,
		nullIfEmpty(leave.Reason), nullIfEmpty(leave.Notes), nullIfEmpty(leave.RejectReason), nullIfEmpty(leave.CancelReason), leave.Version).
		Scan(&leave.CreatedAt, &leave.UpdatedAt)
}

func (r *PGScheduleRepository) GetLeave(ctx context.Context, id string) (*domain.LeaveSchedule, error) {
	row := r.db.QueryRow(ctx, `SELECT id, driver_id, start_time, end_time, status, reason, notes, reject_reason, cancel_reason, version, created_at, updated_at
		FROM leave_schedules WHERE id=$1`, id)
	var l domain.LeaveSchedule
	var reason, notes, rejectReason, cancelReason *string
	if err := row.Scan(&l.ID, &l.DriverID, &l.StartTime, &l.EndTime, &l.Status,
		&reason, &notes, &rejectReason, &cancelReason, &l.Version, &l.CreatedAt, &l.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFoundError{Resource: "leave_schedule", ID: id}
		}
		return nil, err
	}
	l.Reason = deref(reason)
	l.Notes = deref(notes)
	l.RejectReason = deref(rejectReason)
	l.CancelReason = deref(cancelReason)
	return &l, nil
}

func (r *PGScheduleRepository) UpdateLeave(ctx context.Context, leave *domain.LeaveSchedule) error {
	row := r.db.QueryRow(ctx, `UPDATE leave_schedules SET
			start_time=$3, end_time=$4, status=$5, reason=$6, notes=$7, reject_reason=$8, cancel_reason=$9,
			version = version + 1, updated_at = now()
		WHERE id=$1 AND version=$2
		RETURNING version, updated_at`,
		leave.ID, leave.Version, leave.StartTime, leave.EndTime, leave.Status,
		nullIfEmpty(leave.Reason), nullIfEmpty(leave.Notes), nullIfEmpty(leave.RejectReason), nullIfEmpty(leave.CancelReason))
	if err := row.Scan(&leave.Version, &leave.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrStaleWrite
		}
		return err
	}
	return nil
}

func (r *PGScheduleRepository) CreateVehicleService(ctx context.Context, service *domain.VehicleService) error {
	service.Version = 1
	return r.db.QueryRow(ctx, `INSERT INTO vehicle_services (id, driver_id, vehicle_id, service_type, start_time, end_time, status, reason, description, reject_reason, cancel_reason, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		service.ID, service.DriverID, service.VehicleID, service.ServiceType, service.StartTime, service.EndTime, service.Status,
		nullIfEmpty(service.Reason), nullIfEmpty(service.Description), nullIfEmpty(service.RejectReason), nullIfEmpty(service.CancelReason), service.Version).
		Scan(&service.CreatedAt, &service.UpdatedAt)
}

func (r *PGScheduleRepository) GetVehicleService(ctx context.Context, id string) (*domain.VehicleService, error) {
	row := r.db.QueryRow(ctx, `SELECT id, driver_id, vehicle_id, service_type, start_time, end_time, status, reason, description, reject_reason, cancel_reason, version, created_at, updated_at
		FROM vehicle_services WHERE id=$1`, id)
	var s domain.VehicleService
	var reason, description, rejectReason, cancelReason *string
	if err := row.Scan(&s.ID, &s.DriverID, &s.VehicleID, &s.ServiceType, &s.StartTime, &s.EndTime, &s.Status,
		&reason, &description, &rejectReason, &cancelReason, &s.Version, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFoundError{Resource: "vehicle_service", ID: id}
		}
		return nil, err
	}
	s.Reason = deref(reason)
	s.Description = deref(description)
	s.RejectReason = deref(rejectReason)
	s.CancelReason = deref(cancelReason)
	return &s, nil
}

func (r *PGScheduleRepository) UpdateVehicleService(ctx context.Context, service *domain.VehicleService) error {
	row := r.db.QueryRow(ctx, `UPDATE vehicle_services SET
			start_time=$3, end_time=$4, status=$5, reason=$6, description=$7, reject_reason=$8, cancel_reason=$9,
			version = version + 1, updated_at = now()
		WHERE id=$1 AND version=$2
		RETURNING version, updated_at`,
		service.ID, service.Version, service.StartTime, service.EndTime, service.Status,
		nullIfEmpty(service.Reason), nullIfEmpty(service.Description), nullIfEmpty(service.RejectReason), nullIfEmpty(service.CancelReason))
	if err := row.Scan(&service.Version, &service.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrStaleWrite
		}
		return err
	}
	return nil
}

func (r *PGScheduleRepository) CreateActivity(ctx context.Context, activity *domain.ExecutiveDailyActivity) error {
	activity.Version = 1
	return r.db.QueryRow(ctx, `INSERT INTO executive_activities (id, driver_id, executive_id, vehicle_id, start_time, end_time, status, notes, worked_minutes, reject_reason, cancel_reason, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		activity.ID, activity.DriverID, activity.ExecutiveID, activity.VehicleID, activity.StartTime, activity.EndTime, activity.Status,
		nullIfEmpty(activity.Notes), activity.WorkedMinutes, nullIfEmpty(activity.RejectReason), nullIfEmpty(activity.CancelReason), activity.Version).
		Scan(&activity.CreatedAt, &activity.UpdatedAt)
}

func (r *PGScheduleRepository) GetActivity(ctx context.Context, id string) (*domain.ExecutiveDailyActivity, error) {
	row := r.db.QueryRow(ctx, `SELECT id, driver_id, executive_id, vehicle_id, start_time, end_time, status, notes, worked_minutes, reject_reason, cancel_reason, version, created_at, updated_at
		FROM executive_activities WHERE id=$1`, id)
	var a domain.ExecutiveDailyActivity
	var notes, rejectReason, cancelReason *string
	if err := row.Scan(&a.ID, &a.DriverID, &a.ExecutiveID, &a.VehicleID, &a.StartTime, &a.EndTime, &a.Status,
		&notes, &a.WorkedMinutes, &rejectReason, &cancelReason, &a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFoundError{Resource: "executive_activity", ID: id}
		}
		return nil, err
	}
	a.Notes = deref(notes)
	a.RejectReason = deref(rejectReason)
	a.CancelReason = deref(cancelReason)
	return &a, nil
}

func (r *PGScheduleRepository) UpdateActivity(ctx context.Context, activity *domain.ExecutiveDailyActivity) error {
	row := r.db.QueryRow(ctx, `UPDATE executive_activities SET
			start_time=$3, end_time=$4, status=$5, notes=$6, worked_minutes=$7, reject_reason=$8, cancel_reason=$9,
			version = version + 1, updated_at = now()
		WHERE id=$1 AND version=$2
		RETURNING version, updated_at`,
		activity.ID, activity.Version, activity.StartTime, activity.EndTime, activity.Status,
		nullIfEmpty(activity.Notes), activity.WorkedMinutes, nullIfEmpty(activity.RejectReason), nullIfEmpty(activity.CancelReason))
	if err := row.Scan(&activity.Version, &activity.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrStaleWrite
		}
		return err
	}
	return nil
}

func (r *PGScheduleRepository) CompleteElapsedApproved(ctx context.Context, deadline time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"leave_schedules", "vehicle_services", "executive_activities"} {
		cmd, err := r.db.Exec(ctx, `UPDATE `+table+` SET status=$1, version = version + 1, updated_at = now()
			WHERE status=$2 AND end_time <= $3`,
			domain.RequestStatusCompleted, domain.RequestStatusApproved, deadline)
		if err != nil {
			return total, err
		}
		total += cmd.RowsAffected()
	}
	return total, nil
}

var _ ScheduleRepository = (*PGScheduleRepository)(nil)
