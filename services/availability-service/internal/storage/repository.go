package storage

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/slotreflow/libs/db"
	"github.com/md-rashed-zaman/slotreflow/services/availability-service/internal/model"
)

// Repository reads the schedule day that availability is computed from. It
// never writes slots or bookings.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListSlots returns every slot of the schedule on date (YYYY-MM-DD), booked or
// not. Times are returned as HH:MM:SS text.
func (r *Repository) ListSlots(ctx context.Context, scheduleID, date string) ([]model.TimeSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, schedule_id::text, to_char(slot_date, 'YYYY-MM-DD'),
			to_char(start_time, 'HH24:MI:SS'), to_char(end_time, 'HH24:MI:SS'), is_booked
		FROM time_slots
		WHERE schedule_id = $1 AND slot_date = $2::date
		ORDER BY start_time ASC
	`, scheduleID, date)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var slots []model.TimeSlot
	for rows.Next() {
		var s model.TimeSlot
		if err := rows.Scan(&s.ID, &s.ScheduleID, &s.SlotDate, &s.StartTime, &s.EndTime, &s.IsBooked); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return slots, nil
}

// ListBookings returns the booked (not cancelled) bookings of the schedule on
// date.
func (r *Repository) ListBookings(ctx context.Context, scheduleID, date string) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, schedule_id::text, to_char(booking_date, 'YYYY-MM-DD'),
			to_char(start_time, 'HH24:MI:SS'), to_char(end_time, 'HH24:MI:SS'), duration_minutes
		FROM bookings
		WHERE schedule_id = $1 AND booking_date = $2::date AND status = 'booked'
		ORDER BY start_time ASC
	`, scheduleID, date)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(&b.ID, &b.ScheduleID, &b.Date, &b.StartTime, &b.EndTime, &b.DurationMinutes); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return bookings, nil
}

// ListServices returns the services with the given ids. Unknown ids are
// skipped; an empty id list returns no services.
func (r *Repository) ListServices(ctx context.Context, serviceIDs []string) ([]model.Service, error) {
	if len(serviceIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, duration_minutes
		FROM services
		WHERE id::text = ANY($1)
		ORDER BY duration_minutes ASC, id ASC
	`, serviceIDs)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.DurationMinutes); err != nil {
			return nil, err
		}
		services = append(services, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return services, nil
}
