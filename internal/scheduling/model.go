package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// Status is the canonical appointment status. All callers and collaborators
// map their own labels into this enum at the boundary; string literals never
// cross component boundaries.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Urgency classifies how quickly a patient should be seen. Higher ranks are
// served ahead of arrival order.
type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyMedium    Urgency = "medium"
	UrgencyHigh      Urgency = "high"
	UrgencyEmergency Urgency = "emergency"
)

var urgencyRanks = map[Urgency]int{
	UrgencyLow:       0,
	UrgencyMedium:    1,
	UrgencyHigh:      2,
	UrgencyEmergency: 3,
}

// Rank returns the priority rank of the urgency, higher meaning sooner.
// Unknown urgencies rank lowest.
func (u Urgency) Rank() int {
	return urgencyRanks[u]
}

// Valid reports whether u is one of the four known urgency levels.
func (u Urgency) Valid() bool {
	_, ok := urgencyRanks[u]
	return ok
}

// TimeSlot is one bookable interval for one doctor on one date. ReservedBy is
// nil while the slot is free and holds the reserving appointment ID otherwise.
// Slots are mutated only through reserve/release.
type TimeSlot struct {
	ID         uuid.UUID
	DoctorID   uuid.UUID
	Date       time.Time
	StartTime  time.Time
	EndTime    time.Time
	ReservedBy *uuid.UUID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Available reports whether the slot has no active reservation.
func (s *TimeSlot) Available() bool {
	return s.ReservedBy == nil
}

// Appointment is a patient's booking of a time slot. PatientName and
// DoctorName are denormalized from the directory at creation time.
// Appointments are never deleted, only transitioned to a terminal status.
type Appointment struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	PatientName string
	DoctorID    uuid.UUID
	DoctorName  string
	Department  string
	Date        time.Time
	TimeSlotID  uuid.UUID
	StartTime   time.Time
	EndTime     time.Time
	Symptoms    string
	Urgency     Urgency
	Status      Status
	QueueNumber int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BookingRequest is the input to appointment creation.
type BookingRequest struct {
	PatientID  uuid.UUID
	DoctorID   uuid.UUID
	Department string
	Date       time.Time
	TimeSlotID uuid.UUID
	Symptoms   string
	Urgency    Urgency
}

// QueueEntry is a derived view of one appointment's place in a doctor's or
// department's queue. It is recomputed on every read and never persisted.
// Position 0 means the appointment is currently being served.
type QueueEntry struct {
	AppointmentID        uuid.UUID
	PatientName          string
	Urgency              Urgency
	Status               Status
	QueueNumber          int64
	Position             int
	EstimatedWaitMinutes int
}

// Doctor is the directory view of a clinician.
type Doctor struct {
	ID         uuid.UUID
	Name       string
	Department string
}

// Patient is the directory view of a patient.
type Patient struct {
	ID   uuid.UUID
	Name string
}

// Event types dispatched to the notification collaborator.
const (
	EventAppointmentCreated   = "created"
	EventAppointmentCancelled = "cancelled"
	EventStatusChanged        = "status_changed"
)

// Event is the fire-and-forget payload handed to the notification
// dispatcher after a state change commits.
type Event struct {
	Type          string    `json:"type"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	Date          time.Time `json:"date"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
}

// EventLog is a best-effort audit row recorded alongside notifications.
type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// DayOf truncates t to midnight UTC, the canonical form for Date fields.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
