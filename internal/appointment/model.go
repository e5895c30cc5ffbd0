package appointment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AppointmentStatus string

const (
	StatusPending    AppointmentStatus = "pending"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusNoShow     AppointmentStatus = "no_show"
)

// Blocking reports whether an appointment in this status occupies its time range.
func (s AppointmentStatus) Blocking() bool {
	return s != StatusCancelled && s != StatusNoShow
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type AppointmentType string

const (
	TypeInPerson  AppointmentType = "in_person"
	TypeVirtual   AppointmentType = "virtual"
	TypeHomeVisit AppointmentType = "home_visit"
)

func (t AppointmentType) Valid() bool {
	switch t {
	case TypeInPerson, TypeVirtual, TypeHomeVisit:
		return true
	}
	return false
}

type ProviderType string

const (
	ProviderDoctor     ProviderType = "doctor"
	ProviderNurse      ProviderType = "nurse"
	ProviderTherapist  ProviderType = "therapist"
	ProviderSpecialist ProviderType = "specialist"
)

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Location struct {
	Address     string      `json:"address"`
	Coordinates Coordinates `json:"coordinates"`
}

// ServiceOffering is a bookable offering of a provider. Duration is in minutes.
type ServiceOffering struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Duration    int             `json:"duration"`
}

// Availability maps a weekday name ("monday") to the slot start times offered
// that day, recurring weekly.
type Availability map[string][]string

type Provider struct {
	ID           uuid.UUID         `json:"id"`
	Name         string            `json:"name"`
	Email        string            `json:"email"`
	Phone        string            `json:"phone"`
	Status       string            `json:"status"`
	Type         ProviderType      `json:"type"`
	Specialty    string            `json:"specialty"`
	License      string            `json:"license"`
	Rating       float64           `json:"rating"`
	Location     Location          `json:"location"`
	Availability Availability      `json:"availability"`
	Services     []ServiceOffering `json:"services"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// Service looks up one of the provider's services. An empty id selects the
// provider's first service.
func (p *Provider) Service(id string) (ServiceOffering, bool) {
	if id == "" {
		if len(p.Services) == 0 {
			return ServiceOffering{}, false
		}
		return p.Services[0], true
	}
	for _, s := range p.Services {
		if s.ID == id {
			return s, true
		}
	}
	return ServiceOffering{}, false
}

type Rating struct {
	Score     int       `json:"score"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Appointment struct {
	ID             uuid.UUID         `json:"id"`
	PatientID      uuid.UUID         `json:"patientId"`
	ProviderID     uuid.UUID         `json:"providerId"`
	ServiceID      string            `json:"serviceId,omitempty"`
	Date           string            `json:"date"`
	StartTime      string            `json:"startTime"`
	EndTime        string            `json:"endTime"`
	Type           AppointmentType   `json:"type"`
	Status         AppointmentStatus `json:"status"`
	Price          decimal.Decimal   `json:"price"`
	PaymentStatus  PaymentStatus     `json:"paymentStatus"`
	Symptoms       string            `json:"symptoms,omitempty"`
	Notes          string            `json:"notes,omitempty"`
	Rating         *Rating           `json:"rating,omitempty"`
	PrescriptionID string            `json:"prescriptionId,omitempty"`
	Version        int64             `json:"version"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// AppointmentSlot is a bookable time derived from provider availability. It
// is never persisted.
type AppointmentSlot struct {
	ID          string          `json:"id"`
	ProviderID  uuid.UUID       `json:"providerId"`
	ServiceID   string          `json:"serviceId"`
	Date        string          `json:"date"`
	StartTime   string          `json:"startTime"`
	EndTime     string          `json:"endTime"`
	Type        AppointmentType `json:"type"`
	Price       decimal.Decimal `json:"price"`
	IsAvailable bool            `json:"isAvailable"`
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
