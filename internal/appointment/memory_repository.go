package appointment

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps records in process. Every instance owns its own
// tables, so tests and single-node runs never share state.
type MemoryRepository struct {
	mu           sync.RWMutex
	providers    map[uuid.UUID]Provider
	appointments map[uuid.UUID]Appointment
	events       []EventLog
	nextEventID  int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		providers:    make(map[uuid.UUID]Provider),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

func (r *MemoryRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) ListProviders(ctx context.Context, f ProviderFilter) ([]Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		if f.Specialty != "" && !strings.EqualFold(p.Specialty, f.Specialty) {
			continue
		}
		if f.Type != "" && p.Type != f.Type {
			continue
		}
		out = append(out, p)
	}
	sortProviders(out)
	return out, nil
}

func (r *MemoryRepository) UpsertProvider(ctx context.Context, p Provider) (*Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if existing, ok := r.providers[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	r.providers[p.ID] = p
	return &p, nil
}

func (r *MemoryRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) QueryAppointments(ctx context.Context, f Filter) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]Appointment, 0, len(r.appointments))
	for _, a := range r.appointments {
		all = append(all, a)
	}
	return FilterAppointments(all, f), nil
}

func (r *MemoryRepository) InsertAppointment(ctx context.Context, appt Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.appointments[appt.ID]; ok {
		return nil, ErrConflict
	}
	if appt.Version == 0 {
		appt.Version = 1
	}
	if appt.Status.Blocking() {
		for _, other := range r.appointments {
			if other.Status.Blocking() && Overlaps(appt, other) {
				return nil, ErrSlotUnavailable
			}
		}
	}
	r.appointments[appt.ID] = appt
	return &appt, nil
}

func (r *MemoryRepository) UpdateAppointment(ctx context.Context, appt Appointment, expectedVersion int64) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.appointments[appt.ID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if current.Version != expectedVersion {
		return nil, ErrConcurrentUpdate
	}

	// Identity, schedule and creation fields are immutable.
	updated := current
	updated.Status = appt.Status
	updated.PaymentStatus = appt.PaymentStatus
	updated.Notes = appt.Notes
	updated.Rating = appt.Rating
	updated.PrescriptionID = appt.PrescriptionID
	updated.UpdatedAt = appt.UpdatedAt
	updated.Version = current.Version + 1

	r.appointments[appt.ID] = updated
	return &updated, nil
}

func (r *MemoryRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextEventID++
	ev.ID = r.nextEventID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]EventLog, len(r.events))
	copy(out, r.events)
	return out
}

func sortProviders(ps []Provider) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Name != ps[j].Name {
			return ps[i].Name < ps[j].Name
		}
		return ps[i].ID.String() < ps[j].ID.String()
	})
}
