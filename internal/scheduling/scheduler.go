package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/carelinehq/clinic-queue/internal/redis"
)

// unknownName stands in for display fields when the directory cannot
// resolve a doctor or patient. Lookup failure never blocks booking.
const unknownName = "unknown"

// Scheduler is the only entry point for creating and cancelling appointments.
// It composes the slot registry and appointment store under one logical
// transaction: a per-slot lock guards the reserve/persist critical section,
// and any failure after a successful reservation triggers a compensating
// release so slots never leak.
type Scheduler struct {
	registry    *SlotRegistry
	appts       AppointmentRepository
	dir         Directory
	notifier    Notifier
	counter     QueueCounter
	locker      redisclient.Locker
	log         zerolog.Logger
	noShowGrace time.Duration
}

func NewScheduler(
	registry *SlotRegistry,
	appts AppointmentRepository,
	dir Directory,
	notifier Notifier,
	counter QueueCounter,
	locker redisclient.Locker,
	log zerolog.Logger,
	noShowGrace time.Duration,
) *Scheduler {
	return &Scheduler{
		registry:    registry,
		appts:       appts,
		dir:         dir,
		notifier:    notifier,
		counter:     counter,
		locker:      locker,
		log:         log,
		noShowGrace: noShowGrace,
	}
}

// ListSlots returns a doctor's slots for a date, generating the day's grid
// on first access.
func (s *Scheduler) ListSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]TimeSlot, error) {
	return s.registry.ListSlots(ctx, doctorID, date)
}

// CreateAppointment books a slot for a patient. Reservation conflicts are
// expected normal-path outcomes: the caller re-queries available slots and
// retries with a different one; no fallback slot is chosen here.
func (s *Scheduler) CreateAppointment(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	slot, err := s.registry.GetSlot(ctx, req.TimeSlotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if slot.DoctorID != req.DoctorID {
		return nil, &ValidationError{Field: "time_slot_id", Reason: "slot belongs to a different doctor"}
	}
	if !slot.Date.Equal(req.Date) {
		return nil, &ValidationError{Field: "time_slot_id", Reason: "slot is not on the requested date"}
	}

	doctorName, department := s.resolveDoctor(ctx, req.DoctorID, req.Department)
	patientName := s.resolvePatient(ctx, req.PatientID)

	apptID := uuid.New()
	var created *Appointment

	err = s.locker.WithSlotLock(ctx, req.TimeSlotID, func(lockCtx context.Context) error {
		reserved, err := s.registry.Reserve(lockCtx, req.TimeSlotID, apptID)
		if err != nil {
			return err
		}

		queueNumber, err := s.counter.Next(lockCtx)
		if err != nil {
			s.compensateRelease(lockCtx, req.TimeSlotID)
			return fmt.Errorf("assign queue number: %w", err)
		}

		appt := &Appointment{
			ID:          apptID,
			PatientID:   req.PatientID,
			PatientName: patientName,
			DoctorID:    req.DoctorID,
			DoctorName:  doctorName,
			Department:  department,
			Date:        req.Date,
			TimeSlotID:  reserved.ID,
			StartTime:   reserved.StartTime,
			EndTime:     reserved.EndTime,
			Symptoms:    req.Symptoms,
			Urgency:     req.Urgency,
			Status:      StatusScheduled,
			QueueNumber: queueNumber,
		}

		created, err = s.appts.CreateAppointment(lockCtx, appt)
		if err != nil {
			s.compensateRelease(lockCtx, req.TimeSlotID)
			return fmt.Errorf("persist appointment: %w", err)
		}

		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBusy
		}
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"slot_id":      created.TimeSlotID.String(),
		"patient_id":   created.PatientID.String(),
		"queue_number": created.QueueNumber,
	})
	s.dispatch(ctx, EventAppointmentCreated, created)

	return created, nil
}

// CancelAppointment transitions an appointment to cancelled and frees its
// slot. The status write commits before the release: a crash in between
// leaves a cancelled appointment holding a reserved slot, never a freed slot
// with a live booking. Release is idempotent, so re-running the cancel heals
// the leak.
func (s *Scheduler) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.appts.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	target, err := Transition(appt.Status, StatusCancelled)
	if err != nil {
		return nil, err
	}

	updated, err := s.appts.UpdateStatus(ctx, appt.ID, appt.Status, target)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost a race with another status writer.
			return nil, ErrAlreadyTerminal
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	if err := s.registry.Release(ctx, updated.TimeSlotID); err != nil {
		// Over-reservation, not double-booking: the cancellation stands.
		s.log.Error().Err(err).
			Str("appointment_id", updated.ID.String()).
			Str("slot_id", updated.TimeSlotID.String()).
			Msg("failed to release slot after cancellation")
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{
		"slot_id": updated.TimeSlotID.String(),
	})
	s.dispatch(ctx, EventAppointmentCancelled, updated)

	return updated, nil
}

// ChangeStatus applies a staff-driven transition. Completing or cancelling
// an appointment releases its slot.
func (s *Scheduler) ChangeStatus(ctx context.Context, id uuid.UUID, target Status) (*Appointment, error) {
	if !ValidStatus(target) {
		return nil, ErrInvalidTransition
	}

	appt, err := s.appts.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := Transition(appt.Status, target)
	if err != nil {
		return nil, err
	}

	updated, err := s.appts.UpdateStatus(ctx, appt.ID, appt.Status, next)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	if IsTerminal(next) {
		if err := s.registry.Release(ctx, updated.TimeSlotID); err != nil {
			s.log.Error().Err(err).
				Str("appointment_id", updated.ID.String()).
				Str("slot_id", updated.TimeSlotID.String()).
				Msg("failed to release slot after terminal transition")
		}
	}

	eventType := EventStatusChanged
	if next == StatusCancelled {
		eventType = EventAppointmentCancelled
	}
	s.logEvent(ctx, updated.ID, eventType, map[string]any{
		"from": string(appt.Status),
		"to":   string(next),
	})
	s.dispatch(ctx, eventType, updated)

	return updated, nil
}

// GetAppointment loads one appointment by ID.
func (s *Scheduler) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appts.GetAppointmentByID(ctx, id)
}

// ListAppointmentsByPatient returns a patient's appointments, newest first.
func (s *Scheduler) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.appts.ListByPatient(ctx, patientID, limit, offset)
}

// SweepNoShows cancels scheduled appointments whose slot ended more than the
// grace period before now, releasing their slots. Intended for the periodic
// worker. Returns the number of appointments cancelled.
func (s *Scheduler) SweepNoShows(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.noShowGrace)

	overdue, err := s.appts.FindOverdueScheduled(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find overdue appointments: %w", err)
	}

	cancelled := 0
	for _, appt := range overdue {
		updated, err := s.appts.UpdateStatus(ctx, appt.ID, StatusScheduled, StatusCancelled)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				// Status moved since the query; someone else handled it.
				continue
			}
			s.log.Error().Err(err).
				Str("appointment_id", appt.ID.String()).
				Msg("failed to cancel no-show")
			continue
		}

		if err := s.registry.Release(ctx, updated.TimeSlotID); err != nil {
			s.log.Error().Err(err).
				Str("slot_id", updated.TimeSlotID.String()).
				Msg("failed to release no-show slot")
		}

		s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{
			"reason": "no_show",
		})
		s.dispatch(ctx, EventAppointmentCancelled, updated)
		cancelled++
	}

	return cancelled, nil
}

func (s *Scheduler) validate(req *BookingRequest) error {
	if req.PatientID == uuid.Nil {
		return &ValidationError{Field: "patient_id", Reason: "required"}
	}
	if req.DoctorID == uuid.Nil {
		return &ValidationError{Field: "doctor_id", Reason: "required"}
	}
	if req.TimeSlotID == uuid.Nil {
		return &ValidationError{Field: "time_slot_id", Reason: "required"}
	}
	if req.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "required"}
	}
	req.Date = DayOf(req.Date)
	if req.Date.Before(DayOf(time.Now())) {
		return &ValidationError{Field: "date", Reason: "must not be in the past"}
	}
	if req.Urgency == "" {
		req.Urgency = UrgencyMedium
	}
	if !req.Urgency.Valid() {
		return &ValidationError{Field: "urgency", Reason: "must be one of low, medium, high, emergency"}
	}
	return nil
}

func (s *Scheduler) resolveDoctor(ctx context.Context, id uuid.UUID, requested string) (name, department string) {
	doc, err := s.dir.LookupDoctor(ctx, id)
	if err != nil {
		s.log.Warn().Err(err).Str("doctor_id", id.String()).Msg("doctor lookup failed, using placeholder")
		department = requested
		if department == "" {
			department = unknownName
		}
		return unknownName, department
	}
	department = requested
	if department == "" {
		department = doc.Department
	}
	return doc.Name, department
}

func (s *Scheduler) resolvePatient(ctx context.Context, id uuid.UUID) string {
	p, err := s.dir.LookupPatient(ctx, id)
	if err != nil {
		s.log.Warn().Err(err).Str("patient_id", id.String()).Msg("patient lookup failed, using placeholder")
		return unknownName
	}
	return p.Name
}

func (s *Scheduler) compensateRelease(ctx context.Context, slotID uuid.UUID) {
	if err := s.registry.Release(ctx, slotID); err != nil {
		s.log.Error().Err(err).
			Str("slot_id", slotID.String()).
			Msg("compensating slot release failed, slot may leak")
	}
}

func (s *Scheduler) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.appts.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}

// dispatch hands the event to the notification collaborator. Failure is
// logged and swallowed: the booking already committed.
func (s *Scheduler) dispatch(ctx context.Context, eventType string, appt *Appointment) {
	ev := Event{
		Type:          eventType,
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		DoctorID:      appt.DoctorID,
		Date:          appt.Date,
		StartTime:     appt.StartTime,
		EndTime:       appt.EndTime,
	}
	if err := s.notifier.Dispatch(ctx, ev); err != nil {
		s.log.Warn().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appt.ID.String()).
			Msg("notification dispatch failed")
	}
}
