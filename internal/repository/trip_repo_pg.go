package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tom474/fleetbooking/internal/domain"
)

type TripRepository interface {
	// Create persists the trip together with its stops, groups and tickets.
	Create(ctx context.Context, trip *domain.Trip) error
	GetByID(ctx context.Context, id string) (*domain.Trip, error)
	ListByBookingRequest(ctx context.Context, bookingRequestID string) ([]domain.Trip, error)
	// Update rewrites the trip and all child rows under the trip's version
	// guard; returns domain.ErrStaleWrite on a version mismatch.
	Update(ctx context.Context, trip *domain.Trip) error
}

type PGTripRepository struct {
	db *pgxpool.Pool
}

func NewTripRepository(db *pgxpool.Pool) TripRepository {
	return &PGTripRepository{db: db}
}

func (r *PGTripRepository) Create(ctx context.Context, trip *domain.Trip) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	trip.Version = 1
	if err := tx.QueryRow(ctx, `INSERT INTO trips (id, booking_request_id, status, departure_time, arrival_deadline,
			driver_id, vehicle_id, outsourced_vendor, outsourced_plate, outsourced_driver_name, outsourced_driver_phone, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		trip.ID, trip.BookingRequestID, trip.Status, trip.DepartureTime, trip.ArrivalDeadline,
		nullIfEmpty(trip.DriverID), nullIfEmpty(trip.VehicleID),
		outsourcedField(trip, func(o *domain.OutsourcedVehicle) string { return o.VendorName }),
		outsourcedField(trip, func(o *domain.OutsourcedVehicle) string { return o.PlateNumber }),
		outsourcedField(trip, func(o *domain.OutsourcedVehicle) string { return o.DriverName }),
		outsourcedField(trip, func(o *domain.OutsourcedVehicle) string { return o.DriverPhone }),
		trip.Version).
		Scan(&trip.CreatedAt, &trip.UpdatedAt); err != nil {
		return err
	}

	if err := insertChildren(ctx, tx, trip); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGTripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	row := r.db.QueryRow(ctx, `SELECT id, booking_request_id, status, departure_time, arrival_deadline,
			driver_id, vehicle_id, outsourced_vendor, outsourced_plate, outsourced_driver_name, outsourced_driver_phone,
			version, created_at, updated_at
		FROM trips WHERE id=$1`, id)
	trip, err := scanTrip(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFoundError{Resource: "trip", ID: id}
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, trip); err != nil {
		return nil, err
	}
	return trip, nil
}

func (r *PGTripRepository) ListByBookingRequest(ctx context.Context, bookingRequestID string) ([]domain.Trip, error) {
	rows, err := r.db.Query(ctx, `SELECT id, booking_request_id, status, departure_time, arrival_deadline,
			driver_id, vehicle_id, outsourced_vendor, outsourced_plate, outsourced_driver_name, outsourced_driver_phone,
			version, created_at, updated_at
		FROM trips WHERE booking_request_id=$1 ORDER BY departure_time`, bookingRequestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trips := make([]domain.Trip, 0)
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, *trip)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range trips {
		if err := r.loadChildren(ctx, &trips[i]); err != nil {
			return nil, err
		}
	}
	return trips, nil
}

func (r *PGTripRepository) Update(ctx context.Context, trip *domain.Trip) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `UPDATE trips SET
			status=$3, departure_time=$4, arrival_deadline=$5, driver_id=$6, vehicle_id=$7,
			outsourced_vendor=$8, outsourced_plate=$9, outsourced_driver_name=$10, outsourced_driver_phone=$11,
			version = version + 1, updated_at = now()
		WHERE id=$1 AND version=$2
		RETURNING version, updated_at`,
		trip.ID, trip.Version,
		trip.Status, trip.DepartureTime, trip.ArrivalDeadline, nullIfEmpty(trip.DriverID), nullIfEmpty(trip.VehicleID),
		outsourcedField(trip, func(o *domain.OutsourcedVehicle) string { return o.VendorName }),
		outsourcedField(trip, func(o *domain.OutsourcedVehicle) string { return o.PlateNumber }),
		outsourcedField(trip, func(o *domain.OutsourcedVehicle) string { return o.DriverName }),
		outsourcedField(trip, func(o *domain.OutsourcedVehicle) string { return o.DriverPhone }))
	if err := row.Scan(&trip.Version, &trip.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrStaleWrite
		}
		return err
	}

	// Child rows are rewritten wholesale; the parent version guard above
	// serializes concurrent writers.
	for _, stmt := range []string{
		`DELETE FROM stop_groups WHERE trip_id=$1`,
		`DELETE FROM trip_stops WHERE trip_id=$1`,
		`DELETE FROM trip_tickets WHERE trip_id=$1`,
	} {
		if _, err := tx.Exec(ctx, stmt, trip.ID); err != nil {
			return err
		}
	}
	if err := insertChildren(ctx, tx, trip); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertChildren(ctx context.Context, tx pgx.Tx, trip *domain.Trip) error {
	for _, stop := range trip.Stops {
		if _, err := tx.Exec(ctx, `INSERT INTO trip_stops (id, trip_id, stop_order, type, location_id, arrival_time, actual_arrival_time)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			stop.ID, trip.ID, stop.Order, stop.Type, stop.LocationID, stop.ArrivalTime, stop.ActualArrivalTime); err != nil {
			return err
		}
		for _, group := range stop.Group {
			if _, err := tx.Exec(ctx, `INSERT INTO stop_groups (trip_id, stop_id, booking_request_id, user_ids, contact_name, contact_phone, status, skip_reason)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				trip.ID, stop.ID, group.BookingRequestID, group.UserIDs,
				nullIfEmpty(group.ContactName), nullIfEmpty(group.ContactPhone), group.Status, nullIfEmpty(group.SkipReason)); err != nil {
				return err
			}
		}
	}
	for _, ticket := range trip.Tickets {
		if _, err := tx.Exec(ctx, `INSERT INTO trip_tickets (id, trip_id, booking_request_id, status, ticket_status, no_show_reason)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			ticket.ID, trip.ID, ticket.BookingRequestID, ticket.Status, ticket.TicketStatus, nullIfEmpty(ticket.NoShowReason)); err != nil {
			return err
		}
	}
	return nil
}

func (r *PGTripRepository) loadChildren(ctx context.Context, trip *domain.Trip) error {
	stopRows, err := r.db.Query(ctx, `SELECT id, stop_order, type, location_id, arrival_time, actual_arrival_time
		FROM trip_stops WHERE trip_id=$1 ORDER BY stop_order`, trip.ID)
	if err != nil {
		return err
	}
	defer stopRows.Close()

	trip.Stops = trip.Stops[:0]
	for stopRows.Next() {
		var stop domain.Stop
		if err := stopRows.Scan(&stop.ID, &stop.Order, &stop.Type, &stop.LocationID, &stop.ArrivalTime, &stop.ActualArrivalTime); err != nil {
			return err
		}
		trip.Stops = append(trip.Stops, stop)
	}
	if err := stopRows.Err(); err != nil {
		return err
	}

	groupRows, err := r.db.Query(ctx, `SELECT stop_id, booking_request_id, user_ids, contact_name, contact_phone, status, skip_reason
		FROM stop_groups WHERE trip_id=$1 ORDER BY id`, trip.ID)
	if err != nil {
		return err
	}
	defer groupRows.Close()

	for groupRows.Next() {
		var stopID string
		var group domain.UserGroup
		var contactName, contactPhone, skipReason *string
		if err := groupRows.Scan(&stopID, &group.BookingRequestID, &group.UserIDs, &contactName, &contactPhone, &group.Status, &skipReason); err != nil {
			return err
		}
		group.ContactName = deref(contactName)
		group.ContactPhone = deref(contactPhone)
		group.SkipReason = deref(skipReason)
		if stop := trip.StopByID(stopID); stop != nil {
			stop.Group = append(stop.Group, group)
		}
	}
	if err := groupRows.Err(); err != nil {
		return err
	}

	ticketRows, err := r.db.Query(ctx, `SELECT id, booking_request_id, status, ticket_status, no_show_reason
		FROM trip_tickets WHERE trip_id=$1 ORDER BY id`, trip.ID)
	if err != nil {
		return err
	}
	defer ticketRows.Close()

	trip.Tickets = trip.Tickets[:0]
	for ticketRows.Next() {
		ticket := domain.TripTicket{TripID: trip.ID}
		var noShowReason *string
		if err := ticketRows.Scan(&ticket.ID, &ticket.BookingRequestID, &ticket.Status, &ticket.TicketStatus, &noShowReason); err != nil {
			return err
		}
		ticket.NoShowReason = deref(noShowReason)
		trip.Tickets = append(trip.Tickets, ticket)
	}
	return ticketRows.Err()
}

func scanTrip(row pgx.Row) (*domain.Trip, error) {
	var t domain.Trip
	var driverID, vehicleID, vendor, plate, driverName, driverPhone *string
	if err := row.Scan(&t.ID, &t.BookingRequestID, &t.Status, &t.DepartureTime, &t.ArrivalDeadline,
		&driverID, &vehicleID, &vendor, &plate, &driverName, &driverPhone,
		&t.Version, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.DriverID = deref(driverID)
	t.VehicleID = deref(vehicleID)
	if vendor != nil {
		t.Outsourced = &domain.OutsourcedVehicle{
			VendorName:  *vendor,
			PlateNumber: deref(plate),
			DriverName:  deref(driverName),
			DriverPhone: deref(driverPhone),
		}
	}
	return &t, nil
}

func outsourcedField(trip *domain.Trip, pick func(*domain.OutsourcedVehicle) string) *string {
	if trip.Outsourced == nil {
		return nil
	}
	return nullIfEmpty(pick(trip.Outsourced))
}

var _ TripRepository = (*PGTripRepository)(nil)
