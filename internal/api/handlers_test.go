package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelinehq/clinic-queue/internal/scheduling"
)

type stubScheduler struct {
	listSlots      func(doctorID uuid.UUID, date time.Time) ([]scheduling.TimeSlot, error)
	create         func(req scheduling.BookingRequest) (*scheduling.Appointment, error)
	cancel         func(id uuid.UUID) (*scheduling.Appointment, error)
	changeStatus   func(id uuid.UUID, target scheduling.Status) (*scheduling.Appointment, error)
	get            func(id uuid.UUID) (*scheduling.Appointment, error)
	listForPatient func(patientID uuid.UUID, limit, offset int) ([]scheduling.Appointment, error)
}

func (s *stubScheduler) ListSlots(_ context.Context, doctorID uuid.UUID, date time.Time) ([]scheduling.TimeSlot, error) {
	return s.listSlots(doctorID, date)
}
func (s *stubScheduler) CreateAppointment(_ context.Context, req scheduling.BookingRequest) (*scheduling.Appointment, error) {
	return s.create(req)
}
func (s *stubScheduler) CancelAppointment(_ context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
	return s.cancel(id)
}
func (s *stubScheduler) ChangeStatus(_ context.Context, id uuid.UUID, target scheduling.Status) (*scheduling.Appointment, error) {
	return s.changeStatus(id, target)
}
func (s *stubScheduler) GetAppointment(_ context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
	return s.get(id)
}
func (s *stubScheduler) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]scheduling.Appointment, error) {
	return s.listForPatient(patientID, limit, offset)
}

type stubQueue struct {
	doctor     func(doctorID uuid.UUID, date time.Time) ([]scheduling.QueueEntry, error)
	department func(department string, date time.Time) ([]scheduling.QueueEntry, error)
}

func (s *stubQueue) DoctorQueue(_ context.Context, doctorID uuid.UUID, date time.Time) ([]scheduling.QueueEntry, error) {
	return s.doctor(doctorID, date)
}
func (s *stubQueue) DepartmentQueue(_ context.Context, department string, date time.Time) ([]scheduling.QueueEntry, error) {
	return s.department(department, date)
}

func testServer(scheduler SchedulerService, queue QueueService) *httptest.Server {
	return httptest.NewServer(NewRouter(RouterConfig{
		Scheduler: scheduler,
		Queue:     queue,
		Env:       "test",
		Version:   "test",
		Logger:    zerolog.Nop(),
	}))
}

func sampleAppointment() *scheduling.Appointment {
	return &scheduling.Appointment{
		ID:          uuid.New(),
		PatientID:   uuid.New(),
		PatientName: "Ada Okafor",
		DoctorID:    uuid.New(),
		DoctorName:  "Dr. Reyes",
		Department:  "Cardiology",
		Date:        scheduling.DayOf(time.Now().AddDate(0, 0, 1)),
		TimeSlotID:  uuid.New(),
		Urgency:     scheduling.UrgencyMedium,
		Status:      scheduling.StatusScheduled,
		QueueNumber: 7,
	}
}

func TestListSlotsHandler(t *testing.T) {
	doctorID := uuid.New()
	date := scheduling.DayOf(time.Now().AddDate(0, 0, 1))

	srv := testServer(&stubScheduler{
		listSlots: func(gotDoctor uuid.UUID, gotDate time.Time) ([]scheduling.TimeSlot, error) {
			assert.Equal(t, doctorID, gotDoctor)
			assert.Equal(t, date, gotDate)
			return []scheduling.TimeSlot{{
				ID:        uuid.New(),
				DoctorID:  doctorID,
				Date:      date,
				StartTime: date.Add(9 * time.Hour),
				EndTime:   date.Add(9*time.Hour + 30*time.Minute),
			}}, nil
		},
	}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/slots?doctor_id=" + doctorID.String() + "&date=" + date.Format(dateLayout))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var slots []SlotResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&slots))
	require.Len(t, slots, 1)
	assert.True(t, slots[0].Available)
}

func TestListSlotsHandlerRejectsBadInput(t *testing.T) {
	srv := testServer(&stubScheduler{}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/slots?doctor_id=nope&date=2024-06-01")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/slots?doctor_id=" + uuid.NewString() + "&date=June")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func TestCreateAppointmentHandler(t *testing.T) {
	appt := sampleAppointment()
	srv := testServer(&stubScheduler{
		create: func(req scheduling.BookingRequest) (*scheduling.Appointment, error) {
			assert.Equal(t, scheduling.UrgencyHigh, req.Urgency)
			return appt, nil
		},
	}, nil)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/appointments", BookAppointmentRequest{
		PatientID:  appt.PatientID.String(),
		DoctorID:   appt.DoctorID.String(),
		Date:       appt.Date.Format(dateLayout),
		TimeSlotID: appt.TimeSlotID.String(),
		Urgency:    "high",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var got AppointmentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, appt.ID, got.ID)
	assert.Equal(t, int64(7), got.QueueNumber)
	assert.Equal(t, "scheduled", got.Status)
}

func TestCreateAppointmentHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"slot reserved", scheduling.ErrSlotReserved, http.StatusConflict, "slot_unavailable"},
		{"slot busy", scheduling.ErrSlotBusy, http.StatusConflict, "slot_unavailable"},
		{"slot missing", scheduling.ErrSlotNotFound, http.StatusNotFound, "slot_not_found"},
		{"validation", &scheduling.ValidationError{Field: "date", Reason: "must not be in the past"}, http.StatusBadRequest, "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(&stubScheduler{
				create: func(scheduling.BookingRequest) (*scheduling.Appointment, error) {
					return nil, tt.err
				},
			}, nil)
			defer srv.Close()

			resp := postJSON(t, srv.URL+"/appointments", BookAppointmentRequest{
				PatientID:  uuid.NewString(),
				DoctorID:   uuid.NewString(),
				Date:       "2030-06-01",
				TimeSlotID: uuid.NewString(),
			})
			defer resp.Body.Close()
			require.Equal(t, tt.wantStatus, resp.StatusCode)

			var got ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
			assert.Equal(t, tt.wantCode, got.Error)
		})
	}
}

func TestCancelAppointmentHandler(t *testing.T) {
	appt := sampleAppointment()
	appt.Status = scheduling.StatusCancelled

	srv := testServer(&stubScheduler{
		cancel: func(id uuid.UUID) (*scheduling.Appointment, error) {
			switch id {
			case appt.ID:
				return appt, nil
			case uuid.Nil:
				return nil, scheduling.ErrAlreadyTerminal
			default:
				return nil, scheduling.ErrAppointmentNotFound
			}
		},
	}, nil)
	defer srv.Close()

	doDelete := func(id string) *http.Response {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/appointments/"+id, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := doDelete(appt.ID.String())
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doDelete(uuid.NewString())
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doDelete(uuid.Nil.String())
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestChangeStatusHandler(t *testing.T) {
	appt := sampleAppointment()
	appt.Status = scheduling.StatusInProgress

	srv := testServer(&stubScheduler{
		changeStatus: func(id uuid.UUID, target scheduling.Status) (*scheduling.Appointment, error) {
			if target != scheduling.StatusInProgress {
				return nil, scheduling.ErrInvalidTransition
			}
			return appt, nil
		},
	}, nil)
	defer srv.Close()

	doPatch := func(target string) *http.Response {
		raw, _ := json.Marshal(ChangeStatusRequest{Target: target})
		req, err := http.NewRequest(http.MethodPatch, srv.URL+"/appointments/"+appt.ID.String()+"/status", bytes.NewReader(raw))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := doPatch("in_progress")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got AppointmentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "in_progress", got.Status)

	resp = doPatch("completed")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetQueueHandler(t *testing.T) {
	doctorID := uuid.New()
	date := scheduling.DayOf(time.Now())
	entries := []scheduling.QueueEntry{
		{AppointmentID: uuid.New(), Urgency: scheduling.UrgencyEmergency, Status: scheduling.StatusScheduled, Position: 1, EstimatedWaitMinutes: 0},
		{AppointmentID: uuid.New(), Urgency: scheduling.UrgencyMedium, Status: scheduling.StatusScheduled, Position: 2, EstimatedWaitMinutes: 15},
	}

	queue := &stubQueue{
		doctor: func(gotDoctor uuid.UUID, gotDate time.Time) ([]scheduling.QueueEntry, error) {
			assert.Equal(t, doctorID, gotDoctor)
			return entries, nil
		},
		department: func(department string, _ time.Time) ([]scheduling.QueueEntry, error) {
			assert.Equal(t, "Cardiology", department)
			return entries[:1], nil
		},
	}
	srv := testServer(&stubScheduler{}, queue)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/queue?doctor_id=" + doctorID.String() + "&date=" + date.Format(dateLayout))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []QueueEntryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Position)
	assert.Equal(t, 15, got[1].EstimatedWaitMinutes)

	resp, err = http.Get(srv.URL + "/queue?department=Cardiology&date=" + date.Format(dateLayout))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// A scope is required.
	resp, err = http.Get(srv.URL + "/queue?date=" + date.Format(dateLayout))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetAppointmentHandler(t *testing.T) {
	appt := sampleAppointment()
	srv := testServer(&stubScheduler{
		get: func(id uuid.UUID) (*scheduling.Appointment, error) {
			if id == appt.ID {
				return appt, nil
			}
			return nil, scheduling.ErrAppointmentNotFound
		},
	}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/appointments/" + appt.ID.String())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/appointments/" + uuid.NewString())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
