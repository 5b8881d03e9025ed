package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// slotNamespace seeds deterministic slot IDs so regenerating a day's grid
// yields the same IDs every time.
var slotNamespace = uuid.MustParse("6f1f64d2-6b3e-4f6e-9dd0-6c1b2a8f4e21")

// SlotRegistry owns the set of bookable time slots per (doctor, date). Slots
// are generated lazily on first listing at a fixed granularity across the
// configured working hours; reservation state lives in the repository and is
// changed only through Reserve/Release.
type SlotRegistry struct {
	repo     SlotRepository
	dayStart time.Duration
	dayEnd   time.Duration
	slotLen  time.Duration
}

func NewSlotRegistry(repo SlotRepository, dayStart, dayEnd, slotLen time.Duration) *SlotRegistry {
	return &SlotRegistry{
		repo:     repo,
		dayStart: dayStart,
		dayEnd:   dayEnd,
		slotLen:  slotLen,
	}
}

// GenerateDaySlots builds the slot grid for one doctor on one date.
// Deterministic IDs plus the repository upsert make generation idempotent:
// concurrent first calls converge on the same grid.
func (r *SlotRegistry) GenerateDaySlots(doctorID uuid.UUID, date time.Time) []TimeSlot {
	day := DayOf(date)
	var slots []TimeSlot

	for start := r.dayStart; start+r.slotLen <= r.dayEnd; start += r.slotLen {
		startTime := day.Add(start)
		slots = append(slots, TimeSlot{
			ID:        slotID(doctorID, startTime),
			DoctorID:  doctorID,
			Date:      day,
			StartTime: startTime,
			EndTime:   startTime.Add(r.slotLen),
		})
	}

	return slots
}

// ListSlots returns the day's slots for a doctor, generating them if this is
// the first time the day is queried. Calling twice without a reservation in
// between returns identical slot sets and availability.
func (r *SlotRegistry) ListSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]TimeSlot, error) {
	day := DayOf(date)

	if err := r.repo.UpsertSlots(ctx, r.GenerateDaySlots(doctorID, day)); err != nil {
		return nil, fmt.Errorf("generate slots: %w", err)
	}

	slots, err := r.repo.ListSlots(ctx, doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

// GetSlot loads one slot by ID.
func (r *SlotRegistry) GetSlot(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	return r.repo.GetSlotByID(ctx, id)
}

// Reserve atomically claims a free slot for an appointment. Exactly one of
// two concurrent callers succeeds; the other receives ErrSlotReserved
// immediately, never blocking on the winner.
func (r *SlotRegistry) Reserve(ctx context.Context, slotID, appointmentID uuid.UUID) (*TimeSlot, error) {
	return r.repo.Reserve(ctx, slotID, appointmentID)
}

// Release frees a slot. Releasing an already-free slot is a no-op.
func (r *SlotRegistry) Release(ctx context.Context, slotID uuid.UUID) error {
	return r.repo.Release(ctx, slotID)
}

func slotID(doctorID uuid.UUID, start time.Time) uuid.UUID {
	return uuid.NewSHA1(slotNamespace, []byte(doctorID.String()+"/"+start.UTC().Format(time.RFC3339)))
}
