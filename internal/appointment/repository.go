package appointment

import (
	"context"

	"github.com/google/uuid"
)

type ProviderFilter struct {
	Specialty string
	Type      ProviderType
}

// Repository is the record store consumed by the service. Lookups that find
// nothing return ErrProviderNotFound or ErrAppointmentNotFound; backend
// failures are returned as *StoreError.
type Repository interface {
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	ListProviders(ctx context.Context, f ProviderFilter) ([]Provider, error)
	UpsertProvider(ctx context.Context, p Provider) (*Provider, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	QueryAppointments(ctx context.Context, f Filter) ([]Appointment, error)

	// InsertAppointment stores appt only if no blocking appointment of the
	// same provider overlaps it on the same date; otherwise ErrSlotUnavailable.
	InsertAppointment(ctx context.Context, appt Appointment) (*Appointment, error)

	// UpdateAppointment replaces the mutable fields of appt only if the stored
	// version still equals expectedVersion, and bumps the version; otherwise
	// ErrConcurrentUpdate.
	UpdateAppointment(ctx context.Context, appt Appointment, expectedVersion int64) (*Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
