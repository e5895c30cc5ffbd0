package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medigo/appointment-service/internal/appointment"
	"github.com/medigo/appointment-service/internal/config"
	"github.com/medigo/appointment-service/internal/logger"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*appointment.Provider, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*appointment.Provider)
	return p, args.Error(1)
}

func (m *mockRepository) ListProviders(ctx context.Context, f appointment.ProviderFilter) ([]appointment.Provider, error) {
	args := m.Called(ctx, f)
	ps, _ := args.Get(0).([]appointment.Provider)
	return ps, args.Error(1)
}

func (m *mockRepository) UpsertProvider(ctx context.Context, p appointment.Provider) (*appointment.Provider, error) {
	args := m.Called(ctx, p)
	out, _ := args.Get(0).(*appointment.Provider)
	return out, args.Error(1)
}

func (m *mockRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	args := m.Called(ctx, id)
	a, _ := args.Get(0).(*appointment.Appointment)
	return a, args.Error(1)
}

func (m *mockRepository) QueryAppointments(ctx context.Context, f appointment.Filter) ([]appointment.Appointment, error) {
	args := m.Called(ctx, f)
	as, _ := args.Get(0).([]appointment.Appointment)
	return as, args.Error(1)
}

func (m *mockRepository) InsertAppointment(ctx context.Context, a appointment.Appointment) (*appointment.Appointment, error) {
	args := m.Called(ctx, a)
	out, _ := args.Get(0).(*appointment.Appointment)
	return out, args.Error(1)
}

func (m *mockRepository) UpdateAppointment(ctx context.Context, a appointment.Appointment, expectedVersion int64) (*appointment.Appointment, error) {
	args := m.Called(ctx, a, expectedVersion)
	out, _ := args.Get(0).(*appointment.Appointment)
	return out, args.Error(1)
}

func (m *mockRepository) InsertEvent(ctx context.Context, ev appointment.EventLog) error {
	return m.Called(ctx, ev).Error(0)
}

func newMockedRouter(repo appointment.Repository) http.Handler {
	svc := appointment.NewService(repo, nil, config.Config{}, logger.Discard())
	return NewRouter(RouterConfig{Service: svc, Logger: logger.Discard()})
}

func TestStoreFailureMapsTo503(t *testing.T) {
	repo := &mockRepository{}
	storeDown := &appointment.StoreError{Op: "query appointments", Err: errors.New("connection refused")}
	repo.On("QueryAppointments", mock.Anything, mock.Anything).Return(nil, storeDown)

	rec := httptest.NewRecorder()
	newMockedRouter(repo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/appointments", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "store_unavailable", decodeError(t, rec).Error)
	repo.AssertExpectations(t)
}

func TestConcurrentUpdateMapsTo409(t *testing.T) {
	repo := &mockRepository{}
	id := uuid.New()
	current := &appointment.Appointment{ID: id, Status: appointment.StatusPending, PaymentStatus: appointment.PaymentPending, Version: 3}

	repo.On("GetAppointmentByID", mock.Anything, id).Return(current, nil)
	repo.On("UpdateAppointment", mock.Anything, mock.MatchedBy(func(a appointment.Appointment) bool {
		return a.Status == appointment.StatusConfirmed
	}), int64(3)).Return(nil, appointment.ErrConcurrentUpdate)

	rec := httptest.NewRecorder()
	newMockedRouter(repo).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/appointments/"+id.String()+"/confirm", nil))

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "concurrent_update", decodeError(t, rec).Error)
	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "InsertEvent", mock.Anything, mock.Anything)
}
