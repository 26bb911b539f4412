package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	appconfig "github.com/wolfman30/pro-marketplace/internal/config"
	"github.com/wolfman30/pro-marketplace/internal/directory"
	"github.com/wolfman30/pro-marketplace/internal/domain"
	httpmiddleware "github.com/wolfman30/pro-marketplace/internal/http/middleware"
	"github.com/wolfman30/pro-marketplace/internal/money"
	"github.com/wolfman30/pro-marketplace/internal/store"
	"github.com/wolfman30/pro-marketplace/internal/store/postgres"
	"github.com/wolfman30/pro-marketplace/internal/timeslot"
	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

var (
	serviceNames = []string{"Deep Tissue Massage", "Haircut & Style", "Personal Training", "Manicure", "Facial", "Yoga Session", "Physiotherapy"}
	timezones    = []string{"America/New_York", "America/Chicago", "America/Los_Angeles", "Europe/London", "UTC"}
	durations    = []int{30, 45, 60, 90}
)

func main() {
	count := flag.Int("professionals", 10, "number of professionals to create")
	out := flag.String("out", "", "write a DIRECTORY_FILE JSON seed here instead of inserting into Postgres")
	flag.Parse()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	gofakeit.Seed(time.Now().UnixNano())

	seed := generate(*count)
	if *out != "" {
		if err := writeFile(*out, seed); err != nil {
			logger.Error("write seed file failed", "error", err)
			os.Exit(1)
		}
		logger.Info("directory seed written", "path", *out, "professionals", len(seed.Professionals), "services", len(seed.Services))
	} else if err := insert(cfg, seed, logger); err != nil {
		logger.Error("seed failed", "error", err)
		os.Exit(1)
	}

	if cfg.JWTSecret != "" && len(seed.Professionals) > 0 {
		printTokens(cfg.JWTSecret, seed.Professionals[0].ID, logger)
	}
}

func generate(count int) directory.Seed {
	var seed directory.Seed
	for i := 0; i < count; i++ {
		pro := domain.Professional{
			ID:                  uuid.New(),
			Email:               gofakeit.Email(),
			BusinessName:        gofakeit.Company(),
			Timezone:            gofakeit.RandomString(timezones),
			BaseTravelFee:       money.Cents(gofakeit.Number(5, 30) * 100),
			TravelFeePerKm:      money.Cents(gofakeit.Number(0, 150)),
			MaxTravelDistanceKm: gofakeit.Number(5, 50),
			Active:              true,
		}
		seed.Professionals = append(seed.Professionals, pro)
		for j := 0; j < gofakeit.Number(1, 3); j++ {
			svc := domain.Service{
				ID:              uuid.New(),
				ProfessionalID:  pro.ID,
				Name:            gofakeit.RandomString(serviceNames),
				BasePrice:       money.Cents(gofakeit.Number(40, 200) * 100),
				DurationMinutes: durations[gofakeit.Number(0, len(durations)-1)],
				Active:          true,
			}
			if gofakeit.Bool() {
				discounted := svc.BasePrice * 9 / 10
				svc.DiscountedPrice = &discounted
			}
			seed.Services = append(seed.Services, svc)
		}
	}
	return seed
}

// weeklyRules opens Monday to Friday 09:00-17:00 with a lunch break.
func weeklyRules(professionalID uuid.UUID) []domain.AvailabilityRule {
	maxBookings := 8
	lunch := timeslot.Window{Start: timeslot.MustClock("12:00"), End: timeslot.MustClock("13:00")}
	var rules []domain.AvailabilityRule
	for day := time.Monday; day <= time.Friday; day++ {
		d := day
		rules = append(rules, domain.AvailabilityRule{
			ProfessionalID: professionalID,
			DayOfWeek:      &d,
			Window:         timeslot.Window{Start: timeslot.MustClock("09:00"), End: timeslot.MustClock("17:00")},
			Break:          &lunch,
			Status:         domain.RuleAvailable,
			MaxBookings:    &maxBookings,
			IsActive:       true,
		})
	}
	return rules
}

func writeFile(path string, seed directory.Seed) error {
	data, err := json.MarshalIndent(seed, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func insert(cfg *appconfig.Config, seed directory.Seed, logger *logging.Logger) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required unless -out is given")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	dir := directory.NewPostgres(pool)
	for _, pro := range seed.Professionals {
		if err := dir.UpsertProfessional(ctx, pro); err != nil {
			return err
		}
	}
	for _, svc := range seed.Services {
		if err := dir.UpsertService(ctx, svc); err != nil {
			return err
		}
	}

	st := postgres.New(pool)
	for _, pro := range seed.Professionals {
		err := st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			for _, rule := range weeklyRules(pro.ID) {
				if err := tx.InsertRule(ctx, &rule); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("seed rules for %s: %w", pro.ID, err)
		}
	}
	logger.Info("seed complete", "professionals", len(seed.Professionals), "services", len(seed.Services))
	return nil
}

func printTokens(secret string, professionalID uuid.UUID, logger *logging.Logger) {
	now := time.Now()
	actors := []domain.Actor{
		{ID: uuid.New(), Role: domain.RoleClient},
		{ID: professionalID, Role: domain.RoleProfessional},
		{ID: uuid.New(), Role: domain.RoleAdmin},
	}
	for _, actor := range actors {
		token, err := httpmiddleware.IssueToken(secret, actor, 24*time.Hour, now)
		if err != nil {
			logger.Warn("issue dev token failed", "role", actor.Role, "error", err)
			continue
		}
		fmt.Printf("%s %s\n%s\n\n", actor.Role, actor.ID, token)
	}
}
