package appointment

import (
	"encoding/json"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// StatusSet matches any of its statuses. In JSON it may be written as a single
// string or as an array; both forms are validated like the query string.
type StatusSet []AppointmentStatus

func (s *StatusSet) UnmarshalJSON(data []byte) error {
	var values []string
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		values = []string{one}
	} else if err := json.Unmarshal(data, &values); err != nil {
		return err
	}

	set, err := ParseStatusSet(values)
	if err != nil {
		return err
	}
	*s = set
	return nil
}

// ParseStatusSet accepts repeated values and comma separated lists, e.g. the
// query string status=pending&status=confirmed,in_progress.
func ParseStatusSet(values []string) (StatusSet, error) {
	var set StatusSet
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			st := AppointmentStatus(part)
			if !st.Valid() {
				return nil, validationError("status", "unknown status "+part)
			}
			if !slices.Contains(set, st) {
				set = append(set, st)
			}
		}
	}
	return set, nil
}

func (s StatusSet) matches(st AppointmentStatus) bool {
	return len(s) == 0 || slices.Contains(s, st)
}

// Filter selects appointments. Zero-valued fields impose no constraint; set
// fields are combined with AND. StartDate and EndDate are inclusive.
type Filter struct {
	Status     StatusSet       `json:"status,omitempty"`
	Type       AppointmentType `json:"type,omitempty"`
	StartDate  string          `json:"startDate,omitempty"`
	EndDate    string          `json:"endDate,omitempty"`
	ProviderID uuid.UUID       `json:"providerId,omitempty"`
	PatientID  uuid.UUID       `json:"patientId,omitempty"`
}

func (f Filter) Match(a Appointment) bool {
	if !f.Status.matches(a.Status) {
		return false
	}
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	// ISO dates order lexicographically.
	if f.StartDate != "" && a.Date < f.StartDate {
		return false
	}
	if f.EndDate != "" && a.Date > f.EndDate {
		return false
	}
	if f.ProviderID != uuid.Nil && a.ProviderID != f.ProviderID {
		return false
	}
	if f.PatientID != uuid.Nil && a.PatientID != f.PatientID {
		return false
	}
	return true
}

// FilterAppointments returns the matching subset of appts ordered by date then
// start time. The result is never nil.
func FilterAppointments(appts []Appointment, f Filter) []Appointment {
	out := make([]Appointment, 0, len(appts))
	for _, a := range appts {
		if f.Match(a) {
			out = append(out, a)
		}
	}
	SortAppointments(out)
	return out
}

func SortAppointments(appts []Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		if appts[i].Date != appts[j].Date {
			return appts[i].Date < appts[j].Date
		}
		return appts[i].StartTime < appts[j].StartTime
	})
}
