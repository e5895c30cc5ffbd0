package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/medigo/appointment-service/internal/config"
	redisclient "github.com/medigo/appointment-service/internal/redis"
)

const (
	EventAppointmentCreated = "APPOINTMENT_CREATED"
	EventAppointmentUpdated = "APPOINTMENT_UPDATED"
	EventAppointmentRated   = "APPOINTMENT_RATED"
	EventPaymentCompleted   = "PAYMENT_COMPLETED"
	EventPaymentRefunded    = "PAYMENT_REFUNDED"
)

func statusEvent(to AppointmentStatus) string {
	return "APPOINTMENT_" + strings.ToUpper(string(to))
}

type Service struct {
	repo   Repository
	locker redisclient.Locker
	cfg    config.Config
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, log logrus.FieldLogger) *Service {
	if locker == nil {
		locker = redisclient.NewLocalSlotLocker(cfg.LockWait)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		log:    log.WithField("component", "appointment.service"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Intended for tests and simulations.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	p, err := s.repo.GetProviderByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get provider: %w", err)
	}
	return p, nil
}

func (s *Service) ListProviders(ctx context.Context, f ProviderFilter) ([]Provider, error) {
	ps, err := s.repo.ListProviders(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	return ps, nil
}

// GetAvailableSlots resolves the bookable slots of a provider from a fresh read
// of its bookings for that date. The result is a snapshot; CreateAppointment
// re-validates at commit time.
func (s *Service) GetAvailableSlots(ctx context.Context, providerID uuid.UUID, q SlotQuery) ([]AppointmentSlot, error) {
	provider, err := s.repo.GetProviderByID(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}

	if _, err := parseDate(q.Date); err != nil {
		return nil, validationError("date", err.Error())
	}

	existing, err := s.repo.QueryAppointments(ctx, Filter{
		ProviderID: providerID,
		StartDate:  q.Date,
		EndDate:    q.Date,
	})
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}

	return AvailableSlots(provider, q, existing, s.now(), s.cfg.Location)
}

// CreateAppointment books a slot for a patient. A per provider/date lock makes
// the overlap check and the insert atomic across nodes; the store's
// conditional insert backs it up. Losing the race yields an ErrConflict.
func (s *Service) CreateAppointment(ctx context.Context, in CreateInput) (*Appointment, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	providerID, _ := uuid.Parse(in.ProviderID)
	provider, err := s.repo.GetProviderByID(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}

	draft, err := NewAppointment(in, provider, s.now(), s.cfg.Location)
	if err != nil {
		return nil, err
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, draft.ProviderID, draft.Date, func(lockCtx context.Context) error {
		// Inside the critical section re-check the provider's bookings for that day
		existing, err := s.repo.QueryAppointments(lockCtx, Filter{
			ProviderID: draft.ProviderID,
			StartDate:  draft.Date,
			EndDate:    draft.Date,
		})
		if err != nil {
			return fmt.Errorf("check existing bookings: %w", err)
		}
		for _, other := range existing {
			if other.Status.Blocking() && Overlaps(draft, other) {
				return ErrSlotUnavailable
			}
		}

		appt, err := s.repo.InsertAppointment(lockCtx, draft)
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentCreated, map[string]any{
			"provider_id": appt.ProviderID.String(),
			"patient_id":  appt.PatientID.String(),
			"date":        appt.Date,
			"start_time":  appt.StartTime,
			"end_time":    appt.EndTime,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"appointment_id": created.ID,
		"provider_id":    created.ProviderID,
		"date":           created.Date,
		"start_time":     created.StartTime,
	}).Info("appointment created")

	return created, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListAppointments returns the appointments matching f ordered by date and
// start time.
func (s *Service) ListAppointments(ctx context.Context, f Filter) ([]Appointment, error) {
	for _, st := range f.Status {
		if !st.Valid() {
			return nil, validationError("status", "unknown status "+string(st))
		}
	}
	if f.Type != "" && !f.Type.Valid() {
		return nil, validationError("type", "unknown appointment type "+string(f.Type))
	}
	for field, d := range map[string]string{"startDate": f.StartDate, "endDate": f.EndDate} {
		if d == "" {
			continue
		}
		if _, err := parseDate(d); err != nil {
			return nil, validationError(field, err.Error())
		}
	}

	appts, err := s.repo.QueryAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	// Stores are free to return any order.
	out := FilterAppointments(appts, f)
	return out, nil
}

func (s *Service) Transition(ctx context.Context, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	return s.mutate(ctx, id, statusEvent(to), func(a Appointment, now time.Time) (Appointment, error) {
		return Transition(a, to, now)
	})
}

func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.Transition(ctx, id, StatusConfirmed)
}

func (s *Service) Start(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.Transition(ctx, id, StatusInProgress)
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.Transition(ctx, id, StatusCompleted)
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.Transition(ctx, id, StatusNoShow)
}

// Cancel cancels an appointment. Cancelling twice is a no-op.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.mutate(ctx, id, statusEvent(StatusCancelled), Cancel)
}

func (s *Service) Rate(ctx context.Context, id uuid.UUID, score int, comment string) (*Appointment, error) {
	return s.mutate(ctx, id, EventAppointmentRated, func(a Appointment, now time.Time) (Appointment, error) {
		return Rate(a, score, comment, now)
	})
}

func (s *Service) Pay(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.mutate(ctx, id, EventPaymentCompleted, Pay)
}

func (s *Service) Refund(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.mutate(ctx, id, EventPaymentRefunded, Refund)
}

func (s *Service) UpdateDetails(ctx context.Context, id uuid.UUID, upd DetailsUpdate) (*Appointment, error) {
	return s.mutate(ctx, id, EventAppointmentUpdated, func(a Appointment, now time.Time) (Appointment, error) {
		return UpdateDetails(a, upd, now)
	})
}

// mutate loads the appointment, applies fn and persists the result on the
// condition that nobody wrote it in between. A lost race is
// ErrConcurrentUpdate; callers re-read and retry.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, eventType string, fn func(Appointment, time.Time) (Appointment, error)) (*Appointment, error) {
	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	next, err := fn(*current, s.now())
	if err != nil {
		return nil, err
	}
	if reflect.DeepEqual(next, *current) {
		return current, nil
	}

	updated, err := s.repo.UpdateAppointment(ctx, next, current.Version)
	if err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	s.logEvent(ctx, updated.ID, eventType, map[string]any{
		"from_status":    string(current.Status),
		"to_status":      string(updated.Status),
		"payment_status": string(updated.PaymentStatus),
	})

	return updated, nil
}

// MarkOverdueNoShows moves pending and confirmed appointments whose end time
// passed more than the configured grace period ago to no-show. It is intended
// to be called by the worker periodically.
func (s *Service) MarkOverdueNoShows(ctx context.Context) (int, error) {
	now := s.now()
	cutoff := now.Add(-s.cfg.NoShowGrace)

	candidates, err := s.repo.QueryAppointments(ctx, Filter{
		Status:  StatusSet{StatusPending, StatusConfirmed},
		EndDate: cutoff.In(s.cfg.Location).Format(DateLayout),
	})
	if err != nil {
		return 0, fmt.Errorf("find overdue appointments: %w", err)
	}

	marked := 0
	for _, appt := range candidates {
		end, err := time.ParseInLocation(DateLayout+" "+ClockLayout, appt.Date+" "+appt.EndTime, s.cfg.Location)
		if err != nil {
			s.log.WithError(err).WithField("appointment_id", appt.ID).Warn("skipping appointment with malformed schedule")
			continue
		}
		if !end.Before(cutoff) {
			continue
		}

		next, err := Transition(appt, StatusNoShow, now)
		if err != nil {
			continue
		}
		if _, err := s.repo.UpdateAppointment(ctx, next, appt.Version); err != nil {
			if errors.Is(err, ErrConcurrentUpdate) || errors.Is(err, ErrAppointmentNotFound) {
				continue
			}
			s.log.WithError(err).WithField("appointment_id", appt.ID).Error("failed to mark appointment as no-show")
			continue
		}
		s.logEvent(ctx, appt.ID, statusEvent(StatusNoShow), map[string]any{
			"reason":      "worker",
			"from_status": string(appt.Status),
		})
		marked++
	}

	return marked, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.WithError(err).WithField("event_type", eventType).Warn("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"event_type":     eventType,
			"appointment_id": appointmentID,
		}).Warn("failed to insert event log")
	}
}
