package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/carelinehq/clinic-queue/internal/scheduling"
)

const dateLayout = "2006-01-02"

type BookAppointmentRequest struct {
	PatientID  string `json:"patient_id"`
	DoctorID   string `json:"doctor_id"`
	Department string `json:"department,omitempty"`
	Date       string `json:"date"`
	TimeSlotID string `json:"time_slot_id"`
	Symptoms   string `json:"symptoms,omitempty"`
	Urgency    string `json:"urgency,omitempty"`
}

type ChangeStatusRequest struct {
	Target string `json:"target"`
}

type AppointmentResponse struct {
	ID          uuid.UUID `json:"id"`
	PatientID   uuid.UUID `json:"patient_id"`
	PatientName string    `json:"patient_name"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	DoctorName  string    `json:"doctor_name"`
	Department  string    `json:"department"`
	Date        string    `json:"date"`
	TimeSlotID  uuid.UUID `json:"time_slot_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Symptoms    string    `json:"symptoms,omitempty"`
	Urgency     string    `json:"urgency"`
	Status      string    `json:"status"`
	QueueNumber int64     `json:"queue_number"`
	CreatedAt   time.Time `json:"created_at"`
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		PatientID:   a.PatientID,
		PatientName: a.PatientName,
		DoctorID:    a.DoctorID,
		DoctorName:  a.DoctorName,
		Department:  a.Department,
		Date:        a.Date.Format(dateLayout),
		TimeSlotID:  a.TimeSlotID,
		StartTime:   a.StartTime,
		EndTime:     a.EndTime,
		Symptoms:    a.Symptoms,
		Urgency:     string(a.Urgency),
		Status:      string(a.Status),
		QueueNumber: a.QueueNumber,
		CreatedAt:   a.CreatedAt,
	}
}

type SlotResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Available bool      `json:"available"`
}

func toSlotResponse(s *scheduling.TimeSlot) SlotResponse {
	return SlotResponse{
		ID:        s.ID,
		DoctorID:  s.DoctorID,
		Date:      s.Date.Format(dateLayout),
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Available: s.Available(),
	}
}

type QueueEntryResponse struct {
	AppointmentID        uuid.UUID `json:"appointment_id"`
	PatientName          string    `json:"patient_name"`
	Urgency              string    `json:"urgency"`
	Status               string    `json:"status"`
	QueueNumber          int64     `json:"queue_number"`
	Position             int       `json:"position"`
	EstimatedWaitMinutes int       `json:"estimated_wait_minutes"`
}

func toQueueEntryResponse(e *scheduling.QueueEntry) QueueEntryResponse {
	return QueueEntryResponse{
		AppointmentID:        e.AppointmentID,
		PatientName:          e.PatientName,
		Urgency:              string(e.Urgency),
		Status:               string(e.Status),
		QueueNumber:          e.QueueNumber,
		Position:             e.Position,
		EstimatedWaitMinutes: e.EstimatedWaitMinutes,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
