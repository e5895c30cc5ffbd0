package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const pgUniqueViolation = "23505"

const providerColumns = `id, name, email, phone, status, type, specialty, license, rating, location, availability, services, created_at, updated_at`

const appointmentColumns = `id, patient_id, provider_id, service_id, date, start_time, end_time, type, status, price, payment_status,
	symptoms, notes, rating_score, rating_comment, rated_at, prescription_id, version, created_at, updated_at`

// Helpers

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var location, availability, services []byte

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.Status,
		&p.Type,
		&p.Specialty,
		&p.License,
		&p.Rating,
		&location,
		&availability,
		&services,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, storeError("scan provider", err)
	}

	if err := json.Unmarshal(location, &p.Location); err != nil {
		return nil, storeError("decode provider location", err)
	}
	if err := json.Unmarshal(availability, &p.Availability); err != nil {
		return nil, storeError("decode provider availability", err)
	}
	if err := json.Unmarshal(services, &p.Services); err != nil {
		return nil, storeError("decode provider services", err)
	}

	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var ratingScore *int
	var ratingComment *string
	var ratedAt *time.Time

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProviderID,
		&a.ServiceID,
		&a.Date,
		&a.StartTime,
		&a.EndTime,
		&a.Type,
		&a.Status,
		&a.Price,
		&a.PaymentStatus,
		&a.Symptoms,
		&a.Notes,
		&ratingScore,
		&ratingComment,
		&ratedAt,
		&a.PrescriptionID,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, storeError("scan appointment", err)
	}

	if ratingScore != nil {
		a.Rating = &Rating{Score: *ratingScore}
		if ratingComment != nil {
			a.Rating.Comment = *ratingComment
		}
		if ratedAt != nil {
			a.Rating.CreatedAt = *ratedAt
		}
	}

	return &a, nil
}

func ratingColumns(r *Rating) (*int, *string, *time.Time) {
	if r == nil {
		return nil, nil, nil
	}
	score, comment, at := r.Score, r.Comment, r.CreatedAt
	return &score, &comment, &at
}

// Interface methods

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (r *PgRepository) ListProviders(ctx context.Context, f ProviderFilter) ([]Provider, error) {
	var (
		where []string
		args  []any
	)
	if f.Specialty != "" {
		args = append(args, f.Specialty)
		where = append(where, fmt.Sprintf("lower(specialty) = lower($%d)", len(args)))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}

	query := `SELECT ` + providerColumns + ` FROM providers`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name, id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeError("list providers", err)
	}
	defer rows.Close()

	result := []Provider{}
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, storeError("list providers", err)
	}

	return result, nil
}

func (r *PgRepository) UpsertProvider(ctx context.Context, p Provider) (*Provider, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Availability == nil {
		p.Availability = Availability{}
	}
	if p.Services == nil {
		p.Services = []ServiceOffering{}
	}

	location, err := json.Marshal(p.Location)
	if err != nil {
		return nil, fmt.Errorf("encode provider location: %w", err)
	}
	availability, err := json.Marshal(p.Availability)
	if err != nil {
		return nil, fmt.Errorf("encode provider availability: %w", err)
	}
	services, err := json.Marshal(p.Services)
	if err != nil {
		return nil, fmt.Errorf("encode provider services: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO providers (id, name, email, phone, status, type, specialty, license, rating, location, availability, services, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			status = EXCLUDED.status,
			type = EXCLUDED.type,
			specialty = EXCLUDED.specialty,
			license = EXCLUDED.license,
			rating = EXCLUDED.rating,
			location = EXCLUDED.location,
			availability = EXCLUDED.availability,
			services = EXCLUDED.services,
			updated_at = now()
		RETURNING `+providerColumns,
		p.ID, p.Name, p.Email, p.Phone, p.Status, p.Type, p.Specialty, p.License, p.Rating,
		location, availability, services)

	return scanProvider(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) QueryAppointments(ctx context.Context, f Filter) ([]Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if len(f.Status) > 0 {
		statuses := make([]string, len(f.Status))
		for i, st := range f.Status {
			statuses[i] = string(st)
		}
		add("status = ANY($%d)", statuses)
	}
	if f.Type != "" {
		add("type = $%d", string(f.Type))
	}
	if f.StartDate != "" {
		add("date >= $%d", f.StartDate)
	}
	if f.EndDate != "" {
		add("date <= $%d", f.EndDate)
	}
	if f.ProviderID != uuid.Nil {
		add("provider_id = $%d", f.ProviderID)
	}
	if f.PatientID != uuid.Nil {
		add("patient_id = $%d", f.PatientID)
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date, start_time, created_at"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeError("query appointments", err)
	}
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, storeError("query appointments", err)
	}

	return result, nil
}

// InsertAppointment serializes inserts per provider and date with a
// transaction scoped advisory lock, then checks for an overlapping active
// booking before writing.
func (r *PgRepository) InsertAppointment(ctx context.Context, appt Appointment) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, storeError("begin insert appointment", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`,
		appt.ProviderID.String()+"/"+appt.Date); err != nil {
		return nil, storeError("lock provider day", err)
	}

	if appt.Status.Blocking() {
		var taken bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1
				FROM appointments
				WHERE provider_id = $1
				  AND date = $2
				  AND status NOT IN ('cancelled', 'no_show')
				  AND start_time < $4
				  AND end_time > $3
			)
		`, appt.ProviderID, appt.Date, appt.StartTime, appt.EndTime).Scan(&taken)
		if err != nil {
			return nil, storeError("check overlap", err)
		}
		if taken {
			return nil, ErrSlotUnavailable
		}
	}

	score, comment, ratedAt := ratingColumns(appt.Rating)
	if appt.Version == 0 {
		appt.Version = 1
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING `+appointmentColumns,
		appt.ID, appt.PatientID, appt.ProviderID, appt.ServiceID, appt.Date, appt.StartTime, appt.EndTime,
		appt.Type, appt.Status, appt.Price, appt.PaymentStatus, appt.Symptoms, appt.Notes,
		score, comment, ratedAt, appt.PrescriptionID, appt.Version, appt.CreatedAt, appt.UpdatedAt)

	created, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			if pgErr.ConstraintName == "appointments_pkey" {
				return nil, fmt.Errorf("%w: appointment %s already exists", ErrConflict, appt.ID)
			}
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storeError("commit insert appointment", err)
	}

	return created, nil
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, appt Appointment, expectedVersion int64) (*Appointment, error) {
	score, comment, ratedAt := ratingColumns(appt.Rating)

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    payment_status = $3,
		    notes = $4,
		    rating_score = $5,
		    rating_comment = $6,
		    rated_at = $7,
		    prescription_id = $8,
		    updated_at = $9,
		    version = version + 1
		WHERE id = $1
		  AND version = $10
		RETURNING `+appointmentColumns,
		appt.ID, appt.Status, appt.PaymentStatus, appt.Notes, score, comment, ratedAt,
		appt.PrescriptionID, appt.UpdatedAt, expectedVersion)

	updated, err := scanAppointment(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, err
	}

	// No row matched: either the appointment is gone or someone else wrote first.
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, appt.ID).Scan(&exists); err != nil {
		return nil, storeError("check appointment", err)
	}
	if !exists {
		return nil, ErrAppointmentNotFound
	}
	return nil, ErrConcurrentUpdate
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	var appID *uuid.UUID
	if ev.AppointmentID != nil {
		appID = ev.AppointmentID
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, appID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return storeError("insert event log", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
