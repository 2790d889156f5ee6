package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tom474/fleetbooking/internal/domain"
)

type BookingRequestRepository interface {
	Create(ctx context.Context, br *domain.BookingRequest) error
	GetByID(ctx context.Context, id string) (*domain.BookingRequest, error)
	// Update persists the request with optimistic concurrency; it returns
	// domain.ErrStaleWrite when the stored version no longer matches.
	Update(ctx context.Context, br *domain.BookingRequest) error
}

type PGBookingRequestRepository struct {
	db *pgxpool.Pool
}

func NewBookingRequestRepository(db *pgxpool.Pool) BookingRequestRepository {
	return &PGBookingRequestRepository{db: db}
}

const bookingColumns = `id, requester_id, type, status, priority, trip_purpose, note,
	number_of_passengers, passenger_ids, is_reserved, contact_name, contact_phone,
	departure_location_id, arrival_location_id, departure_time, arrival_deadline,
	return_departure_location_id, return_arrival_location_id, return_departure_time, return_arrival_deadline,
	cancel_reason, reject_reason, last_error, version, created_at, updated_at`

func (r *PGBookingRequestRepository) Create(ctx context.Context, br *domain.BookingRequest) error {
	br.Version = 1
	return r.db.QueryRow(ctx, `INSERT INTO booking_requests (id, requester_id, type, status, priority, trip_purpose, note,
			number_of_passengers, passenger_ids, is_reserved, contact_name, contact_phone,
			departure_location_id, arrival_location_id, departure_time, arrival_deadline,
			return_departure_location_id, return_arrival_location_id, return_departure_time, return_arrival_deadline,
			cancel_reason, reject_reason, last_error, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
		RETURNING created_at, updated_at`,
		br.ID, br.RequesterID, br.Type, br.Status, br.Priority, nullIfEmpty(br.TripPurpose), nullIfEmpty(br.Note),
		br.NumberOfPassengers, br.PassengerIDs, br.IsReserved, br.ContactName, br.ContactPhone,
		br.DepartureLocationID, br.ArrivalLocationID, br.DepartureTime, br.ArrivalDeadline,
		nullIfEmpty(br.ReturnDepartureLocationID), nullIfEmpty(br.ReturnArrivalLocationID),
		nullIfZeroTime(br.ReturnDepartureTime), nullIfZeroTime(br.ReturnArrivalDeadline),
		nullIfEmpty(br.CancelReason), nullIfEmpty(br.RejectReason), nullIfEmpty(br.LastError), br.Version).
		Scan(&br.CreatedAt, &br.UpdatedAt)
}

func (r *PGBookingRequestRepository) GetByID(ctx context.Context, id string) (*domain.BookingRequest, error) {
	row := r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM booking_requests WHERE id=$1`, id)
	br, err := scanBookingRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFoundError{Resource: "booking_request", ID: id}
	}
	return br, err
}

func (r *PGBookingRequestRepository) Update(ctx context.Context, br *domain.BookingRequest) error {
	row := r.db.QueryRow(ctx, `UPDATE booking_requests SET
			status=$3, priority=$4, trip_purpose=$5, note=$6, number_of_passengers=$7, passenger_ids=$8,
			is_reserved=$9, contact_name=$10, contact_phone=$11,
			departure_location_id=$12, arrival_location_id=$13, departure_time=$14, arrival_deadline=$15,
			return_departure_location_id=$16, return_arrival_location_id=$17, return_departure_time=$18, return_arrival_deadline=$19,
			cancel_reason=$20, reject_reason=$21, last_error=$22,
			version = version + 1, updated_at = now()
		WHERE id=$1 AND version=$2
		RETURNING version, updated_at`,
		br.ID, br.Version,
		br.Status, br.Priority, nullIfEmpty(br.TripPurpose), nullIfEmpty(br.Note), br.NumberOfPassengers, br.PassengerIDs,
		br.IsReserved, br.ContactName, br.ContactPhone,
		br.DepartureLocationID, br.ArrivalLocationID, br.DepartureTime, br.ArrivalDeadline,
		nullIfEmpty(br.ReturnDepartureLocationID), nullIfEmpty(br.ReturnArrivalLocationID),
		nullIfZeroTime(br.ReturnDepartureTime), nullIfZeroTime(br.ReturnArrivalDeadline),
		nullIfEmpty(br.CancelReason), nullIfEmpty(br.RejectReason), nullIfEmpty(br.LastError))
	if err := row.Scan(&br.Version, &br.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrStaleWrite
		}
		return err
	}
	return nil
}

func scanBookingRequest(row pgx.Row) (*domain.BookingRequest, error) {
	var br domain.BookingRequest
	var tripPurpose, note, retDepLoc, retArrLoc, cancelReason, rejectReason, lastError *string
	var retDepTime, retArrTime *time.Time
	if err := row.Scan(&br.ID, &br.RequesterID, &br.Type, &br.Status, &br.Priority, &tripPurpose, &note,
		&br.NumberOfPassengers, &br.PassengerIDs, &br.IsReserved, &br.ContactName, &br.ContactPhone,
		&br.DepartureLocationID, &br.ArrivalLocationID, &br.DepartureTime, &br.ArrivalDeadline,
		&retDepLoc, &retArrLoc, &retDepTime, &retArrTime,
		&cancelReason, &rejectReason, &lastError, &br.Version, &br.CreatedAt, &br.UpdatedAt); err != nil {
		return nil, err
	}
	br.TripPurpose = deref(tripPurpose)
	br.Note = deref(note)
	br.ReturnDepartureLocationID = deref(retDepLoc)
	br.ReturnArrivalLocationID = deref(retArrLoc)
	if retDepTime != nil {
		br.ReturnDepartureTime = *retDepTime
	}
	if retArrTime != nil {
		br.ReturnArrivalDeadline = *retArrTime
	}
	br.CancelReason = deref(cancelReason)
	br.RejectReason = deref(rejectReason)
	br.LastError = deref(lastError)
	return &br, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ BookingRequestRepository = (*PGBookingRequestRepository)(nil)
