package appointment

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medigo/appointment-service/internal/db"
)

func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("MEDIGO_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("MEDIGO_TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool))
	return pool
}

func TestPgRepository_Integration(t *testing.T) {
	pool := openTestPool(t)
	repo := NewPgRepository(pool)
	ctx := context.Background()

	p := testProvider(t)
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = pool.Exec(cleanupCtx, `DELETE FROM event_logs WHERE appointment_id IN (SELECT id FROM appointments WHERE provider_id = $1)`, p.ID)
		_, _ = pool.Exec(cleanupCtx, `DELETE FROM appointments WHERE provider_id = $1`, p.ID)
		_, _ = pool.Exec(cleanupCtx, `DELETE FROM providers WHERE id = $1`, p.ID)
	})

	saved, err := repo.UpsertProvider(ctx, *p)
	require.NoError(t, err)
	assert.Equal(t, p.Availability, saved.Availability)
	require.Len(t, saved.Services, 2)
	assert.True(t, saved.Services[1].Price.Equal(decimal.RequireFromString("90.50")))

	found, err := repo.ListProviders(ctx, ProviderFilter{Specialty: "CARDIOLOGY"})
	require.NoError(t, err)
	var ids []uuid.UUID
	for _, f := range found {
		ids = append(ids, f.ID)
	}
	assert.Contains(t, ids, p.ID)

	_, err = repo.GetProviderByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrProviderNotFound)

	t.Run("insert and overlap", func(t *testing.T) {
		first := testAppointment(p, monday, "09:00", "10:00", StatusPending)
		created, err := repo.InsertAppointment(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, first.ID, created.ID)
		assert.True(t, created.Price.Equal(decimal.NewFromInt(50)))

		_, err = repo.InsertAppointment(ctx, testAppointment(p, monday, "09:30", "10:00", StatusPending))
		assert.ErrorIs(t, err, ErrSlotUnavailable)

		_, err = repo.InsertAppointment(ctx, testAppointment(p, monday, "10:00", "10:30", StatusPending))
		assert.NoError(t, err)
	})

	t.Run("concurrent inserts admit one", func(t *testing.T) {
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			success int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.InsertAppointment(ctx, testAppointment(p, nextMonday, "09:00", "09:30", StatusPending))
				if err == nil {
					mu.Lock()
					success++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, ErrConflict)
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, success)
	})

	t.Run("conditional update", func(t *testing.T) {
		a := testAppointment(p, monday, "11:00", "11:30", StatusCompleted)
		_, err := repo.InsertAppointment(ctx, a)
		require.NoError(t, err)

		a.Rating = &Rating{Score: 5, Comment: "excellent", CreatedAt: fixedNow}
		a.PrescriptionID = "RX-9"
		updated, err := repo.UpdateAppointment(ctx, a, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated.Version)
		require.NotNil(t, updated.Rating)
		assert.Equal(t, 5, updated.Rating.Score)
		assert.Equal(t, "excellent", updated.Rating.Comment)
		assert.Equal(t, "RX-9", updated.PrescriptionID)

		a.PaymentStatus = PaymentCompleted
		_, err = repo.UpdateAppointment(ctx, a, 1)
		assert.ErrorIs(t, err, ErrConcurrentUpdate, "same status, stale version")

		stored, err := repo.GetAppointmentByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, PaymentPending, stored.PaymentStatus)
		require.NotNil(t, stored.Rating)

		_, err = repo.UpdateAppointment(ctx, testAppointment(p, monday, "12:00", "12:30", StatusPending), 1)
		assert.ErrorIs(t, err, ErrAppointmentNotFound)
	})

	t.Run("query", func(t *testing.T) {
		got, err := repo.QueryAppointments(ctx, Filter{
			ProviderID: p.ID,
			Status:     StatusSet{StatusPending},
			StartDate:  monday,
			EndDate:    monday,
		})
		require.NoError(t, err)
		var starts []string
		for _, a := range got {
			starts = append(starts, a.StartTime)
		}
		assert.Equal(t, []string{"09:00", "10:00"}, starts)
	})

	t.Run("events", func(t *testing.T) {
		id := uuid.New()
		require.NoError(t, repo.InsertEvent(ctx, EventLog{EventType: "TEST", AppointmentID: &id, Payload: []byte(`{"k":"v"}`)}))
		_, _ = pool.Exec(ctx, `DELETE FROM event_logs WHERE appointment_id = $1`, id)
	})
}
