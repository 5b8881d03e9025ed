package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSlotNotFound        = errors.New("slot not found")
	ErrSlotReserved        = errors.New("slot already reserved")
	ErrSlotBusy            = errors.New("slot is currently being booked, please retry")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrAlreadyTerminal     = errors.New("appointment is already completed or cancelled")
)

// ValidationError rejects a malformed booking request with an actionable
// field-level reason. Validation failures are never retried automatically.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// SlotRepository owns durable TimeSlot state. Reserve is the only place a
// slot gains a reservation and must behave as an atomic compare-and-set:
// of two concurrent callers exactly one wins, the other sees ErrSlotReserved.
type SlotRepository interface {
	UpsertSlots(ctx context.Context, slots []TimeSlot) error
	ListSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]TimeSlot, error)
	GetSlotByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error)
	Reserve(ctx context.Context, slotID, appointmentID uuid.UUID) (*TimeSlot, error)

	// Release clears the reservation. Releasing an already-free slot is a
	// no-op so that cancel paths can be retried safely after a crash.
	Release(ctx context.Context, slotID uuid.UUID) error
}

// AppointmentRepository owns durable Appointment state. UpdateStatus is a
// conditional update on the from-status so racing writers cannot skip the
// state machine.
type AppointmentRepository interface {
	CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	ListByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date time.Time, statuses []Status) ([]Appointment, error)
	ListByDepartmentAndDate(ctx context.Context, department string, date time.Time, statuses []Status) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// No-show sweep: scheduled appointments whose end time passed before cutoff.
	FindOverdueScheduled(ctx context.Context, cutoff time.Time) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}

// Directory resolves display names for doctors and patients. Lookup failure
// degrades to a placeholder and never blocks booking.
type Directory interface {
	LookupDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	LookupPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
}

// Notifier receives fire-and-forget events after a state change commits.
// Delivery failures are the dispatcher's problem; the core never retries.
type Notifier interface {
	Dispatch(ctx context.Context, ev Event) error
}

// QueueCounter hands out queue numbers: strictly increasing, never reused,
// shared by every scheduler in the deployment.
type QueueCounter interface {
	Next(ctx context.Context) (int64, error)
}
