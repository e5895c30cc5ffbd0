package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/medigo/appointment-service/internal/appointment"
	"github.com/medigo/appointment-service/internal/config"
	"github.com/medigo/appointment-service/internal/db"
	"github.com/medigo/appointment-service/internal/logger"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

var providerTypes = []appointment.ProviderType{
	appointment.ProviderDoctor,
	appointment.ProviderNurse,
	appointment.ProviderTherapist,
	appointment.ProviderSpecialist,
}

var serviceCatalog = []appointment.ServiceOffering{
	{ID: "consult", Name: "General Consultation", Description: "Initial assessment", Price: decimal.RequireFromString("50.00"), Duration: 30},
	{ID: "follow-up", Name: "Follow-up Visit", Description: "Review of an ongoing treatment", Price: decimal.RequireFromString("35.00"), Duration: 30},
	{ID: "extended", Name: "Extended Consultation", Description: "In-depth examination", Price: decimal.RequireFromString("90.00"), Duration: 60},
	{ID: "checkup", Name: "Routine Check-up", Description: "Vitals and screening", Price: decimal.RequireFromString("65.50"), Duration: 45},
}

var workdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday"}

func main() {
	log := logger.New(os.Getenv("LOG_LEVEL"))
	log.Info("seed starting")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config load error")
	}
	if cfg.StoreBackend != config.StoreBackendPostgres {
		log.Fatal("seed requires STORE_BACKEND=postgres")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.WithError(err).Fatal("migrate")
	}

	gofakeit.Seed(time.Now().UnixNano())

	repo := appointment.NewPgRepository(pool)
	count := getInt("SEED_PROVIDERS", 50)

	if err := seedProviders(ctx, repo, count, log); err != nil {
		log.WithError(err).Fatal("seed providers")
	}

	log.Info("seed complete")
}

func seedProviders(ctx context.Context, repo appointment.Repository, count int, log logrus.FieldLogger) error {
	log.WithField("count", count).Info("seeding providers")

	for i := 0; i < count; i++ {
		addr := gofakeit.Address()

		p := appointment.Provider{
			Name:      gofakeit.Name(),
			Email:     gofakeit.Email(),
			Phone:     gofakeit.Phone(),
			Status:    "active",
			Type:      providerTypes[gofakeit.Number(0, len(providerTypes)-1)],
			Specialty: specialties[gofakeit.Number(0, len(specialties)-1)],
			License:   fmt.Sprintf("LIC-%06d", gofakeit.Number(0, 999999)),
			Rating:    float64(gofakeit.Number(30, 50)) / 10,
			Location: appointment.Location{
				Address: addr.Address,
				Coordinates: appointment.Coordinates{
					Latitude:  addr.Latitude,
					Longitude: addr.Longitude,
				},
			},
			Availability: randomAvailability(),
			Services:     randomServices(),
		}

		if _, err := repo.UpsertProvider(ctx, p); err != nil {
			return fmt.Errorf("upsert provider %d: %w", i, err)
		}

		if (i+1)%10 == 0 {
			log.WithField("seeded", i+1).Info("providers seeded")
		}
	}

	return nil
}

// randomAvailability offers a random subset of half-hour starts between 08:00
// and 16:30 on a random subset of workdays.
func randomAvailability() appointment.Availability {
	av := appointment.Availability{}
	for _, day := range workdays {
		if gofakeit.Number(0, 4) == 0 {
			continue
		}
		var starts []string
		for m := 8 * 60; m <= 16*60+30; m += 30 {
			if gofakeit.Number(0, 2) == 0 {
				continue
			}
			starts = append(starts, fmt.Sprintf("%02d:%02d", m/60, m%60))
		}
		if len(starts) > 0 {
			av[day] = starts
		}
	}
	return av
}

func randomServices() []appointment.ServiceOffering {
	n := gofakeit.Number(1, len(serviceCatalog))
	offset := gofakeit.Number(0, len(serviceCatalog)-1)

	out := make([]appointment.ServiceOffering, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, serviceCatalog[(offset+i)%len(serviceCatalog)])
	}
	return out
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
