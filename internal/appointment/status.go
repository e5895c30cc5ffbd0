package appointment

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	MinRatingScore = 1
	MaxRatingScore = 5
)

// transitions is the appointment lifecycle. Completed, cancelled and no-show
// are terminal.
var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:    {StatusConfirmed, StatusCancelled, StatusNoShow},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted, StatusCancelled, StatusNoShow},
}

func CanTransition(from, to AppointmentStatus) bool {
	return slices.Contains(transitions[from], to)
}

// CreateInput is the draft of a new appointment.
type CreateInput struct {
	PatientID  string `json:"patientId" validate:"required,uuid"`
	ProviderID string `json:"providerId" validate:"required,uuid"`
	ServiceID  string `json:"serviceId"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime  string `json:"startTime" validate:"required,datetime=15:04"`
	EndTime    string `json:"endTime" validate:"omitempty,datetime=15:04"`
	Type       string `json:"type" validate:"required,oneof=in_person virtual home_visit"`
	Symptoms   string `json:"symptoms" validate:"max=2000"`
	Notes      string `json:"notes" validate:"max=2000"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

func (in CreateInput) Validate() error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return validationError("", err.Error())
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return validationError(fe.Field(), "is required")
	case "uuid":
		return validationError(fe.Field(), "must be a valid UUID")
	case "datetime":
		return validationError(fe.Field(), "must match "+fe.Param())
	case "oneof":
		return validationError(fe.Field(), "must be one of "+fe.Param())
	default:
		return validationError(fe.Field(), "is invalid")
	}
}

// NewAppointment validates a draft against the provider's declared
// availability and returns a pending appointment. Price is copied from the
// selected service and does not follow later price changes.
func NewAppointment(in CreateInput, provider *Provider, now time.Time, loc *time.Location) (Appointment, error) {
	if err := in.Validate(); err != nil {
		return Appointment{}, err
	}
	providerID, _ := uuid.Parse(in.ProviderID)
	if provider == nil || provider.ID != providerID {
		return Appointment{}, ErrProviderNotFound
	}

	svc, ok := provider.Service(in.ServiceID)
	if !ok {
		if in.ServiceID == "" {
			return Appointment{}, validationError("serviceId", "provider offers no services")
		}
		return Appointment{}, fmt.Errorf("%w: %s", ErrServiceNotFound, in.ServiceID)
	}
	if svc.Duration <= 0 {
		return Appointment{}, validationError("serviceId", "service has no duration")
	}

	date, _ := parseDate(in.Date)
	start, _ := parseClock(in.StartTime)

	day := today(now, loc)
	if date.Before(day) || (date.Equal(day) && start < minutesOfDay(now, loc)) {
		return Appointment{}, validationError("date", "cannot book a time in the past")
	}

	if !slices.Contains(provider.Availability.startsFor(date), in.StartTime) {
		return Appointment{}, validationError("startTime", "provider is not available at "+in.StartTime+" on "+weekdayKeys[date.Weekday()])
	}

	end := start + svc.Duration
	if end > 24*60 {
		return Appointment{}, validationError("startTime", "service would end after midnight")
	}
	endTime := formatClock(end)
	if in.EndTime != "" && in.EndTime != endTime {
		return Appointment{}, validationError("endTime", "must be "+endTime+" for a "+fmt.Sprint(svc.Duration)+" minute service")
	}

	patientID, _ := uuid.Parse(in.PatientID)

	return Appointment{
		ID:            uuid.New(),
		PatientID:     patientID,
		ProviderID:    provider.ID,
		ServiceID:     svc.ID,
		Date:          in.Date,
		StartTime:     in.StartTime,
		EndTime:       endTime,
		Type:          AppointmentType(in.Type),
		Status:        StatusPending,
		Price:         svc.Price,
		PaymentStatus: PaymentPending,
		Symptoms:      in.Symptoms,
		Notes:         in.Notes,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Transition moves the appointment along one edge of the lifecycle.
func Transition(a Appointment, to AppointmentStatus, now time.Time) (Appointment, error) {
	if !to.Valid() {
		return Appointment{}, validationError("status", fmt.Sprintf("unknown status %q", to))
	}
	if !CanTransition(a.Status, to) {
		return Appointment{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, to)
	}
	a.Status = to
	a.UpdatedAt = now
	return a, nil
}

// Cancel is Transition to cancelled, except that cancelling an already
// cancelled appointment returns it untouched.
func Cancel(a Appointment, now time.Time) (Appointment, error) {
	if a.Status == StatusCancelled {
		return a, nil
	}
	return Transition(a, StatusCancelled, now)
}

// Rate records the patient's score for a completed appointment. An
// appointment can be rated once.
func Rate(a Appointment, score int, comment string, now time.Time) (Appointment, error) {
	if a.Status != StatusCompleted {
		return Appointment{}, fmt.Errorf("%w: only completed appointments can be rated (status %s)", ErrInvalidState, a.Status)
	}
	if score < MinRatingScore || score > MaxRatingScore {
		return Appointment{}, validationError("score", fmt.Sprintf("must be between %d and %d", MinRatingScore, MaxRatingScore))
	}
	if a.Rating != nil {
		return Appointment{}, fmt.Errorf("%w: appointment already rated", ErrInvalidState)
	}
	a.Rating = &Rating{Score: score, Comment: strings.TrimSpace(comment), CreatedAt: now}
	a.UpdatedAt = now
	return a, nil
}

// Pay marks the appointment as paid. Payment is accepted once the provider has
// confirmed the appointment.
func Pay(a Appointment, now time.Time) (Appointment, error) {
	switch a.Status {
	case StatusConfirmed, StatusInProgress, StatusCompleted:
	default:
		return Appointment{}, fmt.Errorf("%w: cannot take payment for a %s appointment", ErrInvalidState, a.Status)
	}
	if a.PaymentStatus != PaymentPending {
		return Appointment{}, fmt.Errorf("%w: payment is already %s", ErrInvalidState, a.PaymentStatus)
	}
	a.PaymentStatus = PaymentCompleted
	a.UpdatedAt = now
	return a, nil
}

// Refund returns a completed payment for an appointment that did not happen.
func Refund(a Appointment, now time.Time) (Appointment, error) {
	if a.Status != StatusCancelled && a.Status != StatusNoShow {
		return Appointment{}, fmt.Errorf("%w: only cancelled or no-show appointments can be refunded (status %s)", ErrInvalidState, a.Status)
	}
	if a.PaymentStatus != PaymentCompleted {
		return Appointment{}, fmt.Errorf("%w: payment is %s", ErrInvalidState, a.PaymentStatus)
	}
	a.PaymentStatus = PaymentRefunded
	a.UpdatedAt = now
	return a, nil
}

// DetailsUpdate carries the free-text fields that may change outside the
// status machine.
type DetailsUpdate struct {
	Notes          *string `json:"notes"`
	PrescriptionID *string `json:"prescriptionId"`
}

func UpdateDetails(a Appointment, upd DetailsUpdate, now time.Time) (Appointment, error) {
	if upd.Notes == nil && upd.PrescriptionID == nil {
		return Appointment{}, validationError("", "nothing to update")
	}
	if upd.Notes != nil {
		if len(*upd.Notes) > 2000 {
			return Appointment{}, validationError("notes", "must be at most 2000 characters")
		}
		a.Notes = *upd.Notes
	}
	if upd.PrescriptionID != nil {
		if a.Status != StatusCompleted && a.Status != StatusInProgress {
			return Appointment{}, fmt.Errorf("%w: prescriptions attach to in-progress or completed appointments", ErrInvalidState)
		}
		a.PrescriptionID = strings.TrimSpace(*upd.PrescriptionID)
	}
	a.UpdatedAt = now
	return a, nil
}
