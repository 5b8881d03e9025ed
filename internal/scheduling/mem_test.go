package scheduling

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// memStore is a mutex-guarded in-memory implementation of SlotRepository,
// AppointmentRepository and Directory, faithful to the Postgres semantics:
// Reserve and UpdateStatus are compare-and-set under the lock, so concurrent
// tests exercise the same single-winner contract as the real store.
type memStore struct {
	mu       sync.Mutex
	slots    map[uuid.UUID]*TimeSlot
	appts    map[uuid.UUID]*Appointment
	events   []EventLog
	doctors  map[uuid.UUID]*Doctor
	patients map[uuid.UUID]*Patient

	createErr error // injected failure for CreateAppointment
}

func newMemStore() *memStore {
	return &memStore{
		slots:    make(map[uuid.UUID]*TimeSlot),
		appts:    make(map[uuid.UUID]*Appointment),
		doctors:  make(map[uuid.UUID]*Doctor),
		patients: make(map[uuid.UUID]*Patient),
	}
}

func (m *memStore) UpsertSlots(_ context.Context, slots []TimeSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range slots {
		if _, ok := m.slots[s.ID]; !ok {
			cp := s
			m.slots[s.ID] = &cp
		}
	}
	return nil
}

func (m *memStore) ListSlots(_ context.Context, doctorID uuid.UUID, date time.Time) ([]TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TimeSlot
	for _, s := range m.slots {
		if s.DoctorID == doctorID && s.Date.Equal(date) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *memStore) GetSlotByID(_ context.Context, id uuid.UUID) (*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) Reserve(_ context.Context, slotID, appointmentID uuid.UUID) (*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.ReservedBy != nil {
		return nil, ErrSlotReserved
	}
	id := appointmentID
	s.ReservedBy = &id
	cp := *s
	return &cp, nil
}

func (m *memStore) Release(_ context.Context, slotID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[slotID]
	if !ok {
		return ErrSlotNotFound
	}
	s.ReservedBy = nil
	return nil
}

func (m *memStore) CreateAppointment(_ context.Context, appt *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	cp := *appt
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.appts[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memStore) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *memStore) ListByDoctorAndDate(_ context.Context, doctorID uuid.UUID, date time.Time, statuses []Status) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(a *Appointment) bool {
		return a.DoctorID == doctorID && a.Date.Equal(date) && statusIn(a.Status, statuses)
	}), nil
}

func (m *memStore) ListByDepartmentAndDate(_ context.Context, department string, date time.Time, statuses []Status) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(a *Appointment) bool {
		return a.Department == department && a.Date.Equal(date) && statusIn(a.Status, statuses)
	}), nil
}

func (m *memStore) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.filter(func(a *Appointment) bool { return a.PatientID == patientID })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (m *memStore) FindOverdueScheduled(_ context.Context, cutoff time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(a *Appointment) bool {
		return a.Status == StatusScheduled && a.EndTime.Before(cutoff)
	}), nil
}

func (m *memStore) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memStore) LookupDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memStore) LookupPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

// filter must be called with m.mu held.
func (m *memStore) filter(keep func(*Appointment) bool) []Appointment {
	var out []Appointment
	for _, a := range m.appts {
		if keep(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueueNumber < out[j].QueueNumber })
	return out
}

func statusIn(s Status, set []Status) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

// memCounter is an atomic in-process queue counter.
type memCounter struct {
	n int64
}

func (c *memCounter) Next(_ context.Context) (int64, error) {
	return atomic.AddInt64(&c.n, 1), nil
}

// memNotifier records dispatched events and can be told to fail.
type memNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (n *memNotifier) Dispatch(_ context.Context, ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, ev)
	return nil
}

func (n *memNotifier) dispatched() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Event, len(n.events))
	copy(out, n.events)
	return out
}

// passthroughLocker runs the critical section without any locking, so tests
// exercise the repository compare-and-set as the final arbiter, the same
// guarantee the service relies on when Redis is down.
type passthroughLocker struct{}

func (passthroughLocker) WithSlotLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
