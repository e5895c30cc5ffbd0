package api

import (
	"github.com/medigo/appointment-service/internal/appointment"
)

// CreateAppointmentRequest is the body of POST /appointments.
type CreateAppointmentRequest = appointment.CreateInput

// UpdateAppointmentRequest is the body of PATCH /appointments/{id}.
type UpdateAppointmentRequest = appointment.DetailsUpdate

type RateAppointmentRequest struct {
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

type ListAppointmentsResponse struct {
	Appointments []appointment.Appointment `json:"appointments"`
	Count        int                       `json:"count"`
}

type ListProvidersResponse struct {
	Providers []appointment.Provider `json:"providers"`
	Count     int                    `json:"count"`
}

type SlotsResponse struct {
	ProviderID string                        `json:"providerId"`
	Date       string                        `json:"date"`
	Slots      []appointment.AppointmentSlot `json:"slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
