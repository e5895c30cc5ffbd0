package appointment

import (
	"fmt"
	"sort"
	"time"
)

// SlotQuery selects the day and service to resolve slots for.
type SlotQuery struct {
	Date      string
	ServiceID string
	Type      AppointmentType
}

// AvailableSlots derives the bookable slots of provider for one date from its
// weekly availability, dropping every candidate that overlaps a blocking
// appointment in existing. Existing appointments of other providers or dates
// are ignored, so callers may pass a wider set.
func AvailableSlots(provider *Provider, q SlotQuery, existing []Appointment, now time.Time, loc *time.Location) ([]AppointmentSlot, error) {
	date, err := parseDate(q.Date)
	if err != nil {
		return nil, validationError("date", err.Error())
	}

	svc, ok := provider.Service(q.ServiceID)
	if !ok {
		return nil, fmt.Errorf("%w: %q for provider %s", ErrServiceNotFound, q.ServiceID, provider.ID)
	}

	apptType := q.Type
	if apptType == "" {
		apptType = TypeInPerson
	}
	if !apptType.Valid() {
		return nil, validationError("type", fmt.Sprintf("unknown appointment type %q", apptType))
	}

	slots := []AppointmentSlot{}

	day := today(now, loc)
	if date.Before(day) || svc.Duration <= 0 {
		return slots, nil
	}
	earliest := 0
	if date.Equal(day) {
		earliest = minutesOfDay(now, loc)
	}

	var busy []interval
	for _, a := range existing {
		if a.ProviderID != provider.ID || a.Date != q.Date || !a.Status.Blocking() {
			continue
		}
		if iv, ok := appointmentInterval(a); ok {
			busy = append(busy, iv)
		}
	}

	seen := make(map[int]struct{})
	for _, raw := range provider.Availability.startsFor(date) {
		start, err := parseClock(raw)
		if err != nil {
			continue
		}
		if _, dup := seen[start]; dup {
			continue
		}
		seen[start] = struct{}{}

		candidate := interval{start: start, end: start + svc.Duration}
		if candidate.start < earliest || candidate.end > 24*60 {
			continue
		}
		if overlapsAny(candidate, busy) {
			continue
		}

		startTime := formatClock(candidate.start)
		slots = append(slots, AppointmentSlot{
			ID:          fmt.Sprintf("slot-%s-%s-%s", provider.ID, q.Date, startTime),
			ProviderID:  provider.ID,
			ServiceID:   svc.ID,
			Date:        q.Date,
			StartTime:   startTime,
			EndTime:     formatClock(candidate.end),
			Type:        apptType,
			Price:       svc.Price,
			IsAvailable: true,
		})
	}

	sort.Slice(slots, func(i, j int) bool {
		return slots[i].StartTime < slots[j].StartTime
	})

	return slots, nil
}

func overlapsAny(c interval, busy []interval) bool {
	for _, b := range busy {
		if c.overlaps(b) {
			return true
		}
	}
	return false
}
