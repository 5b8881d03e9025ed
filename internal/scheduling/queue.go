package scheduling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// queueStatuses are the statuses that appear in a live queue.
var queueStatuses = []Status{StatusScheduled, StatusInProgress}

// QueueManager derives the ordered queue for a doctor or department on a
// given day. It owns no state: every call is a total recomputation from the
// appointment store's current snapshot, O(n log n) in the appointments in
// scope, which avoids any drift between stored and derived ordering.
type QueueManager struct {
	appts           AppointmentRepository
	avgConsultation time.Duration
}

func NewQueueManager(appts AppointmentRepository, avgConsultation time.Duration) *QueueManager {
	return &QueueManager{
		appts:           appts,
		avgConsultation: avgConsultation,
	}
}

// DoctorQueue returns the live queue for one doctor on one date.
func (q *QueueManager) DoctorQueue(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]QueueEntry, error) {
	appts, err := q.appts.ListByDoctorAndDate(ctx, doctorID, DayOf(date), queueStatuses)
	if err != nil {
		return nil, fmt.Errorf("load doctor queue: %w", err)
	}
	return q.build(appts), nil
}

// DepartmentQueue returns the live queue for a whole department on one date.
func (q *QueueManager) DepartmentQueue(ctx context.Context, department string, date time.Time) ([]QueueEntry, error) {
	appts, err := q.appts.ListByDepartmentAndDate(ctx, department, DayOf(date), queueStatuses)
	if err != nil {
		return nil, fmt.Errorf("load department queue: %w", err)
	}
	return q.build(appts), nil
}

// build orders appointments and assigns positions and wait estimates.
// Ordering: in_progress entries first (they are already being served), then
// urgency rank descending, then queue number ascending as the arrival-order
// tie-break. Position is 1-based among waiting entries; an in_progress entry
// has position 0. The wait estimate is entries-strictly-ahead times the
// average consultation duration; an in_progress entry counts as one full
// consultation. It is an approximation, not a guarantee.
func (q *QueueManager) build(appts []Appointment) []QueueEntry {
	sorted := make([]Appointment, len(appts))
	copy(sorted, appts)

	sort.Slice(sorted, func(i, j int) bool {
		a, b := &sorted[i], &sorted[j]
		if (a.Status == StatusInProgress) != (b.Status == StatusInProgress) {
			return a.Status == StatusInProgress
		}
		if a.Urgency.Rank() != b.Urgency.Rank() {
			return a.Urgency.Rank() > b.Urgency.Rank()
		}
		return a.QueueNumber < b.QueueNumber
	})

	avgMinutes := int(q.avgConsultation.Minutes())
	entries := make([]QueueEntry, 0, len(sorted))

	position := 0
	for i, appt := range sorted {
		entry := QueueEntry{
			AppointmentID: appt.ID,
			PatientName:   appt.PatientName,
			Urgency:       appt.Urgency,
			Status:        appt.Status,
			QueueNumber:   appt.QueueNumber,
		}
		if appt.Status == StatusInProgress {
			entry.Position = 0
		} else {
			position++
			entry.Position = position
		}
		entry.EstimatedWaitMinutes = i * avgMinutes
		entries = append(entries, entry)
	}

	return entries
}
