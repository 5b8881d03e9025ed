package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository implements SlotRepository, AppointmentRepository and Directory
// on a pgx pool. Reservation and status changes are conditional updates, so
// the database is the final arbiter even if the distributed lock is down.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const slotColumns = `id, doctor_id, slot_date, start_time, end_time, reserved_by, created_at, updated_at`

func scanSlot(row pgx.Row) (*TimeSlot, error) {
	var s TimeSlot
	var reservedBy *uuid.UUID

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.Date,
		&s.StartTime,
		&s.EndTime,
		&reservedBy,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.ReservedBy = reservedBy
	return &s, nil
}

const appointmentColumns = `id, patient_id, patient_name, doctor_id, doctor_name, department,
	appt_date, time_slot_id, start_time, end_time, symptoms, urgency, status,
	queue_number, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.PatientName,
		&a.DoctorID,
		&a.DoctorName,
		&a.Department,
		&a.Date,
		&a.TimeSlotID,
		&a.StartTime,
		&a.EndTime,
		&a.Symptoms,
		&a.Urgency,
		&a.Status,
		&a.QueueNumber,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// SlotRepository

func (r *PgRepository) UpsertSlots(ctx context.Context, slots []TimeSlot) error {
	if len(slots) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert slots: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, s := range slots {
		_, err := tx.Exec(ctx, `
			INSERT INTO time_slots (id, doctor_id, slot_date, start_time, end_time, reserved_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NULL, now(), now())
			ON CONFLICT (id) DO NOTHING
		`, s.ID, s.DoctorID, s.Date, s.StartTime, s.EndTime)
		if err != nil {
			return fmt.Errorf("upsert slot %s: %w", s.ID, err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) ListSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]TimeSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE doctor_id = $1 AND slot_date = $2
		ORDER BY start_time
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TimeSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	return result, rows.Err()
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

// Reserve is the check-and-set at the heart of the no-double-booking
// guarantee: the WHERE clause only matches a free slot, so of two concurrent
// callers exactly one row-updates and the other falls through to
// ErrSlotReserved.
func (r *PgRepository) Reserve(ctx context.Context, slotID, appointmentID uuid.UUID) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE time_slots
		SET reserved_by = $2,
		    updated_at = now()
		WHERE id = $1
		  AND reserved_by IS NULL
		RETURNING `+slotColumns+`
	`, slotID, appointmentID)

	slot, err := scanSlot(row)
	if err == nil {
		return slot, nil
	}
	if !errors.Is(err, ErrSlotNotFound) {
		return nil, err
	}

	// No free row matched: distinguish missing from taken.
	if _, getErr := r.GetSlotByID(ctx, slotID); getErr != nil {
		return nil, getErr
	}
	return nil, ErrSlotReserved
}

func (r *PgRepository) Release(ctx context.Context, slotID uuid.UUID) error {
	row := r.pool.QueryRow(ctx, `
		UPDATE time_slots
		SET reserved_by = NULL,
		    updated_at = now()
		WHERE id = $1
		RETURNING id
	`, slotID)

	var id uuid.UUID
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSlotNotFound
		}
		return err
	}
	return nil
}

// AppointmentRepository

func (r *PgRepository) CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, patient_name, doctor_id, doctor_name, department,
			appt_date, time_slot_id, start_time, end_time, symptoms, urgency, status,
			queue_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.PatientID, appt.PatientName, appt.DoctorID, appt.DoctorName, appt.Department,
		appt.Date, appt.TimeSlotID, appt.StartTime, appt.EndTime, appt.Symptoms, appt.Urgency,
		appt.Status, appt.QueueNumber)

	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) ListByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date time.Time, statuses []Status) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND appt_date = $2 AND status = ANY($3)
		ORDER BY queue_number
	`, doctorID, date, statusStrings(statuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListByDepartmentAndDate(ctx context.Context, department string, date time.Time, statuses []Status) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE department = $1 AND appt_date = $2 AND status = ANY($3)
		ORDER BY queue_number
	`, department, date, statusStrings(statuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) FindOverdueScheduled(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'scheduled'
		  AND end_time < $1
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

// Directory

func (r *PgRepository) LookupDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var d Doctor
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, department
		FROM doctors
		WHERE id = $1
	`, id).Scan(&d.ID, &d.Name, &d.Department)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *PgRepository) LookupPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := r.pool.QueryRow(ctx, `
		SELECT id, name
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
