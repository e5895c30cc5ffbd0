package appointment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// 2024-01-01 and 2024-01-08 are Mondays.
const (
	monday     = "2024-01-08"
	nextMonday = "2024-01-15"
)

var fixedNow = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func testProvider(t *testing.T) *Provider {
	t.Helper()
	return &Provider{
		ID:        uuid.New(),
		Name:      "Dr. Ada Lovelace",
		Status:    "active",
		Type:      ProviderDoctor,
		Specialty: "Cardiology",
		Availability: Availability{
			"monday":  {"09:00", "09:30", "10:00"},
			"Tuesday": {"14:00"},
		},
		Services: []ServiceOffering{
			{ID: "consult", Name: "Consultation", Price: decimal.NewFromInt(50), Duration: 30},
			{ID: "extended", Name: "Extended", Price: decimal.RequireFromString("90.50"), Duration: 60},
		},
	}
}

func testInput(p *Provider, date, start string) CreateInput {
	return CreateInput{
		PatientID:  uuid.NewString(),
		ProviderID: p.ID.String(),
		ServiceID:  "consult",
		Date:       date,
		StartTime:  start,
		Type:       string(TypeInPerson),
	}
}

func testAppointment(p *Provider, date, start, end string, status AppointmentStatus) Appointment {
	return Appointment{
		ID:            uuid.New(),
		PatientID:     uuid.New(),
		ProviderID:    p.ID,
		ServiceID:     "consult",
		Date:          date,
		StartTime:     start,
		EndTime:       end,
		Type:          TypeInPerson,
		Status:        status,
		Price:         decimal.NewFromInt(50),
		PaymentStatus: PaymentPending,
		Version:       1,
		CreatedAt:     fixedNow,
		UpdatedAt:     fixedNow,
	}
}
