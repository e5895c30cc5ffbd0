package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medigo/appointment-service/internal/appointment"
	"github.com/medigo/appointment-service/internal/config"
	"github.com/medigo/appointment-service/internal/logger"
	redisclient "github.com/medigo/appointment-service/internal/redis"
)

// 2024-01-08 is a Monday.
const monday = "2024-01-08"

type testEnv struct {
	handler  http.Handler
	provider appointment.Provider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := appointment.NewMemoryRepository()
	provider, err := repo.UpsertProvider(context.Background(), appointment.Provider{
		Name:      "Dr. Grace Hopper",
		Type:      appointment.ProviderDoctor,
		Specialty: "Cardiology",
		Availability: appointment.Availability{
			"monday": {"09:00", "10:00"},
		},
		Services: []appointment.ServiceOffering{
			{ID: "consult", Name: "Consultation", Price: decimal.NewFromInt(50), Duration: 30},
		},
	})
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	svc := appointment.NewService(repo, redisclient.NewLocalSlotLocker(0), config.Config{Location: time.UTC}, logger.Discard()).
		WithClock(func() time.Time { return now })

	return &testEnv{
		handler: NewRouter(RouterConfig{
			Service: svc,
			Logger:  logger.Discard(),
			Env:     "test",
			Version: "v0.0.0",
		}),
		provider: *provider,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) book(t *testing.T, start string) appointment.Appointment {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/appointments", map[string]string{
		"patientId":  uuid.NewString(),
		"providerId": e.provider.ID.String(),
		"date":       monday,
		"startTime":  start,
		"type":       "in_person",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var appt appointment.Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appt))
	return appt
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCreateAppointment(t *testing.T) {
	env := newTestEnv(t)

	appt := env.book(t, "09:00")
	assert.Equal(t, appointment.StatusPending, appt.Status)
	assert.Equal(t, "09:30", appt.EndTime)
	assert.Equal(t, "consult", appt.ServiceID)
	assert.True(t, appt.Price.Equal(decimal.NewFromInt(50)))

	rec := env.do(t, http.MethodPost, "/appointments", map[string]string{
		"patientId":  uuid.NewString(),
		"providerId": env.provider.ID.String(),
		"date":       monday,
		"startTime":  "09:00",
		"type":       "in_person",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_unavailable", decodeError(t, rec).Error)
}

func TestCreateAppointment_BadRequests(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request_body", decodeError(t, rec).Error)

	rec = env.do(t, http.MethodPost, "/appointments", map[string]string{
		"providerId": env.provider.ID.String(),
		"date":       monday,
		"startTime":  "09:00",
		"type":       "in_person",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeError(t, rec).Error)

	rec = env.do(t, http.MethodPost, "/appointments", map[string]string{
		"patientId":  uuid.NewString(),
		"providerId": uuid.NewString(),
		"date":       monday,
		"startTime":  "09:00",
		"type":       "in_person",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "provider_not_found", decodeError(t, rec).Error)
}

func TestAvailableSlots(t *testing.T) {
	env := newTestEnv(t)
	env.book(t, "09:00")

	rec := env.do(t, http.MethodGet, "/providers/"+env.provider.ID.String()+"/slots?date="+monday, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SlotsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Slots, 1)
	assert.Equal(t, "10:00", resp.Slots[0].StartTime)
	assert.Equal(t, "10:30", resp.Slots[0].EndTime)

	rec = env.do(t, http.MethodGet, "/providers/"+env.provider.ID.String()+"/slots", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/providers/"+env.provider.ID.String()+"/slots?date="+monday+"&serviceId=nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "service_not_found", decodeError(t, rec).Error)
}

func TestProviders(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/providers?specialty=cardiology", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list ListProvidersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	rec = env.do(t, http.MethodGet, "/providers?specialty=dermatology", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 0, list.Count)
	assert.NotNil(t, list.Providers)

	rec = env.do(t, http.MethodGet, "/providers/"+env.provider.ID.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/providers/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_provider_id", decodeError(t, rec).Error)
}

func TestLifecycleEndpoints(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, "09:00")
	base := "/appointments/" + appt.ID.String()

	rec := env.do(t, http.MethodPost, base+"/rate", RateAppointmentRequest{Score: 5})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_state", decodeError(t, rec).Error)

	rec = env.do(t, http.MethodPost, base+"/complete", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_status_transition", decodeError(t, rec).Error)

	for _, step := range []string{"confirm", "pay", "start", "complete"} {
		rec = env.do(t, http.MethodPost, base+"/"+step, nil)
		require.Equal(t, http.StatusOK, rec.Code, "%s: %s", step, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, base+"/rate", RateAppointmentRequest{Score: 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, base+"/rate", RateAppointmentRequest{Score: 4, Comment: "on time"})
	require.Equal(t, http.StatusOK, rec.Code)

	var rated appointment.Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rated))
	assert.Equal(t, appointment.StatusCompleted, rated.Status)
	assert.Equal(t, appointment.PaymentCompleted, rated.PaymentStatus)
	require.NotNil(t, rated.Rating)
	assert.Equal(t, 4, rated.Rating.Score)

	rx := "RX-77"
	rec = env.do(t, http.MethodPatch, base, UpdateAppointmentRequest{PrescriptionID: &rx})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got appointment.Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "RX-77", got.PrescriptionID)
}

func TestCancelAndRefund(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, "09:00")
	base := "/appointments/" + appt.ID.String()

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/confirm", nil).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/pay", nil).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/cancel", nil).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/cancel", nil).Code, "cancel is idempotent")

	rec := env.do(t, http.MethodPost, base+"/refund", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var refunded appointment.Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &refunded))
	assert.Equal(t, appointment.PaymentRefunded, refunded.PaymentStatus)

	// The cancelled slot is bookable again.
	env.book(t, "09:00")
}

func TestGetAppointment_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "appointment_not_found", decodeError(t, rec).Error)

	rec = env.do(t, http.MethodPost, "/appointments/xyz/confirm", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAppointments(t *testing.T) {
	env := newTestEnv(t)
	first := env.book(t, "10:00")
	second := env.book(t, "09:00")
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/appointments/"+second.ID.String()+"/confirm", nil).Code)

	rec := env.do(t, http.MethodGet, "/appointments?providerId="+env.provider.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list ListAppointmentsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 2, list.Count)
	assert.Equal(t, second.ID, list.Appointments[0].ID)
	assert.Equal(t, first.ID, list.Appointments[1].ID)

	rec = env.do(t, http.MethodGet, "/appointments?status=pending,cancelled", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, first.ID, list.Appointments[0].ID)

	rec = env.do(t, http.MethodGet, "/appointments?patient_id="+first.PatientID.String()+"&startDate=2024-01-01&endDate=2024-01-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	rec = env.do(t, http.MethodGet, "/appointments?status=archived", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/appointments?providerId=nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health/live", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = env.do(t, http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ready ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.Equal(t, "ok", ready.Status)
	assert.Equal(t, "memory", ready.Dependencies["store"])
	assert.Equal(t, "local", ready.Dependencies["lock"])
}

func TestRequestIDIsPropagated(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}
