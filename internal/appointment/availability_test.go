package appointment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTimes(slots []AppointmentSlot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.StartTime)
	}
	return out
}

func TestAvailableSlots_ConfirmedBookingHidesOverlap(t *testing.T) {
	p := &Provider{
		ID:           uuid.New(),
		Availability: Availability{"monday": {"09:00", "10:00"}},
		Services:     []ServiceOffering{{ID: "consult", Price: decimal.NewFromInt(40), Duration: 30}},
	}
	existing := []Appointment{testAppointment(p, monday, "09:00", "09:30", StatusConfirmed)}

	slots, err := AvailableSlots(p, SlotQuery{Date: monday}, existing, fixedNow, time.UTC)
	require.NoError(t, err)
	require.Len(t, slots, 1)

	s := slots[0]
	assert.Equal(t, "10:00", s.StartTime)
	assert.Equal(t, "10:30", s.EndTime)
	assert.Equal(t, p.ID, s.ProviderID)
	assert.Equal(t, "consult", s.ServiceID)
	assert.Equal(t, TypeInPerson, s.Type)
	assert.True(t, s.IsAvailable)
	assert.True(t, s.Price.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, "slot-"+p.ID.String()+"-"+monday+"-10:00", s.ID)
}

func TestAvailableSlots_CancelledAndNoShowDoNotBlock(t *testing.T) {
	p := testProvider(t)
	existing := []Appointment{
		testAppointment(p, monday, "09:00", "09:30", StatusCancelled),
		testAppointment(p, monday, "09:30", "10:00", StatusNoShow),
	}

	slots, err := AvailableSlots(p, SlotQuery{Date: monday}, existing, fixedNow, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:30", "10:00"}, startTimes(slots))
}

func TestAvailableSlots_LongerServiceOverlapsNeighbours(t *testing.T) {
	p := testProvider(t)
	existing := []Appointment{testAppointment(p, monday, "10:00", "10:30", StatusPending)}

	slots, err := AvailableSlots(p, SlotQuery{Date: monday, ServiceID: "extended"}, existing, fixedNow, time.UTC)
	require.NoError(t, err)
	// 09:30-10:30 and 10:00-11:00 both hit the 10:00 booking.
	assert.Equal(t, []string{"09:00"}, startTimes(slots))
	assert.Equal(t, "10:00", slots[0].EndTime)
}

func TestAvailableSlots_IgnoresOtherProvidersAndDates(t *testing.T) {
	p := testProvider(t)
	other := testProvider(t)
	existing := []Appointment{
		testAppointment(other, monday, "09:00", "09:30", StatusConfirmed),
		testAppointment(p, nextMonday, "09:00", "09:30", StatusConfirmed),
	}

	slots, err := AvailableSlots(p, SlotQuery{Date: monday}, existing, fixedNow, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:30", "10:00"}, startTimes(slots))
}

func TestAvailableSlots_SortedAndDeduplicated(t *testing.T) {
	p := testProvider(t)
	p.Availability = Availability{"monday": {"15:00", "08:30", "15:00", "bogus"}}

	slots, err := AvailableSlots(p, SlotQuery{Date: monday}, nil, fixedNow, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, []string{"08:30", "15:00"}, startTimes(slots))
}

func TestAvailableSlots_PastAndToday(t *testing.T) {
	p := testProvider(t)

	t.Run("past date is empty", func(t *testing.T) {
		now := time.Date(2024, 1, 9, 8, 0, 0, 0, time.UTC)
		slots, err := AvailableSlots(p, SlotQuery{Date: monday}, nil, now, time.UTC)
		require.NoError(t, err)
		assert.NotNil(t, slots)
		assert.Empty(t, slots)
	})

	t.Run("today drops passed starts", func(t *testing.T) {
		now := time.Date(2024, 1, 8, 9, 10, 0, 0, time.UTC)
		slots, err := AvailableSlots(p, SlotQuery{Date: monday}, nil, now, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, []string{"09:30", "10:00"}, startTimes(slots))
	})

	t.Run("today is judged in the clinic zone", func(t *testing.T) {
		loc := time.FixedZone("UTC+2", 2*60*60)
		// 07:10 UTC is 09:10 local.
		now := time.Date(2024, 1, 8, 7, 10, 0, 0, time.UTC)
		slots, err := AvailableSlots(p, SlotQuery{Date: monday}, nil, now, loc)
		require.NoError(t, err)
		assert.Equal(t, []string{"09:30", "10:00"}, startTimes(slots))
	})
}

func TestAvailableSlots_Errors(t *testing.T) {
	p := testProvider(t)

	_, err := AvailableSlots(p, SlotQuery{Date: "2024-13-40"}, nil, fixedNow, time.UTC)
	assert.True(t, IsValidation(err))

	_, err = AvailableSlots(p, SlotQuery{Date: monday, ServiceID: "missing"}, nil, fixedNow, time.UTC)
	assert.ErrorIs(t, err, ErrServiceNotFound)

	_, err = AvailableSlots(p, SlotQuery{Date: monday, Type: "hologram"}, nil, fixedNow, time.UTC)
	assert.True(t, IsValidation(err))
}

func TestAvailableSlots_NoAvailabilityForWeekday(t *testing.T) {
	p := testProvider(t)

	// 2024-01-10 is a Wednesday.
	slots, err := AvailableSlots(p, SlotQuery{Date: "2024-01-10"}, nil, fixedNow, time.UTC)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestOverlaps(t *testing.T) {
	p := testProvider(t)

	a := testAppointment(p, monday, "09:00", "10:00", StatusConfirmed)
	assert.True(t, Overlaps(a, testAppointment(p, monday, "09:30", "10:30", StatusPending)))
	assert.False(t, Overlaps(a, testAppointment(p, monday, "10:00", "10:30", StatusPending)), "touching ranges do not overlap")
	assert.False(t, Overlaps(a, testAppointment(p, nextMonday, "09:00", "10:00", StatusPending)))
	assert.False(t, Overlaps(a, testAppointment(testProvider(t), monday, "09:00", "10:00", StatusPending)))
}
