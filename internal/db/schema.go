package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the tables and indexes the appointment store needs. Every
// statement is idempotent, so it is safe to run on each start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		createProvidersTable,
		createAppointmentsTable,
		createEventLogsTable,
		addAppointmentsVersionColumn,
		createAppointmentsProviderDateIndex,
		createAppointmentsPatientIndex,
		createAppointmentsActiveSlotIndex,
		createProvidersSpecialtyIndex,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

const (
	createProvidersTable = `
		CREATE TABLE IF NOT EXISTS providers (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			type TEXT NOT NULL,
			specialty TEXT NOT NULL DEFAULT '',
			license TEXT NOT NULL DEFAULT '',
			rating DOUBLE PRECISION NOT NULL DEFAULT 0,
			location JSONB NOT NULL DEFAULT '{}'::jsonb,
			availability JSONB NOT NULL DEFAULT '{}'::jsonb,
			services JSONB NOT NULL DEFAULT '[]'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`

	// date and times are kept as ISO text; both order lexicographically.
	createAppointmentsTable = `
		CREATE TABLE IF NOT EXISTS appointments (
			id UUID PRIMARY KEY,
			patient_id UUID NOT NULL,
			provider_id UUID NOT NULL REFERENCES providers(id),
			service_id TEXT NOT NULL DEFAULT '',
			date TEXT NOT NULL CHECK (date ~ '^\d{4}-\d{2}-\d{2}$'),
			start_time TEXT NOT NULL CHECK (start_time ~ '^\d{2}:\d{2}$'),
			end_time TEXT NOT NULL CHECK (end_time ~ '^\d{2}:\d{2}$'),
			type TEXT NOT NULL CHECK (type IN ('in_person', 'virtual', 'home_visit')),
			status TEXT NOT NULL CHECK (status IN ('pending', 'confirmed', 'in_progress', 'completed', 'cancelled', 'no_show')),
			price NUMERIC(12, 2) NOT NULL DEFAULT 0,
			payment_status TEXT NOT NULL CHECK (payment_status IN ('pending', 'completed', 'refunded')),
			symptoms TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			rating_score INTEGER CHECK (rating_score BETWEEN 1 AND 5),
			rating_comment TEXT,
			rated_at TIMESTAMPTZ,
			prescription_id TEXT NOT NULL DEFAULT '',
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`

	// Every update bumps version; writers compare it to detect lost updates.
	addAppointmentsVersionColumn = `
		ALTER TABLE appointments ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 1;`

	createEventLogsTable = `
		CREATE TABLE IF NOT EXISTS event_logs (
			id BIGSERIAL PRIMARY KEY,
			event_type TEXT NOT NULL,
			appointment_id UUID,
			payload JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`

	createAppointmentsProviderDateIndex = `
		CREATE INDEX IF NOT EXISTS idx_appointments_provider_date ON appointments (provider_id, date);`

	createAppointmentsPatientIndex = `
		CREATE INDEX IF NOT EXISTS idx_appointments_patient ON appointments (patient_id, date);`

	// Last line of defence against two active bookings on the same start.
	createAppointmentsActiveSlotIndex = `
		CREATE UNIQUE INDEX IF NOT EXISTS uq_appointments_active_slot
		ON appointments (provider_id, date, start_time)
		WHERE status NOT IN ('cancelled', 'no_show');`

	createProvidersSpecialtyIndex = `
		CREATE INDEX IF NOT EXISTS idx_providers_specialty ON providers (lower(specialty));`
)
