package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"marketdata_backend/services/marketclock"
	"marketdata_backend/services/refresher"
	"marketdata_backend/services/symbols"

	"github.com/go-co-op/gocron"
)

// Job timing for the non-tier jobs
const (
	eodCronSpec       = "0 17 * * 1-5" // 17:00 ET on weekdays
	historyReloadDays = 30
	jobTimeout        = 30 * time.Minute
)

// Scheduler manages the refresh jobs. Each tier gets its own interval
// job; the orchestrator itself gates on market hours, so a tick outside
// trading hours is a cheap no-op.
type Scheduler struct {
	cron         *gocron.Scheduler
	registry     *symbols.Registry
	orchestrator *refresher.Orchestrator
}

// NewScheduler creates a scheduler running in the venue timezone.
func NewScheduler(registry *symbols.Registry, orchestrator *refresher.Orchestrator) (*Scheduler, error) {
	location, err := time.LoadLocation(marketclock.VenueTimezone)
	if err != nil {
		return nil, fmt.Errorf("load venue timezone: %w", err)
	}
	return &Scheduler{
		cron:         gocron.NewScheduler(location),
		registry:     registry,
		orchestrator: orchestrator,
	}, nil
}

// Start registers and starts all jobs.
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	for _, tier := range symbols.Tiers() {
		tier := tier
		minutes := int(s.registry.RefreshInterval(tier).Minutes())
		s.cron.Every(minutes).Minutes().Do(func() {
			s.runTier(tier)
		})
		log.Printf("Scheduled %s tier refresh every %d minutes", tier, minutes)
	}

	// End-of-day index snapshot after the close, weekdays only
	s.cron.Cron(eodCronSpec).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := s.orchestrator.RefreshIndexes(ctx); err != nil {
			log.Printf("End-of-day index snapshot failed: %v", err)
		}
	})

	// Periodic archive rebuild from the provider's daily series
	s.cron.Every(historyReloadDays).Days().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := s.orchestrator.ReloadHistory(ctx, historyReloadDays); err != nil {
			log.Printf("Historical reload failed: %v", err)
		}
	})

	s.cron.StartAsync()
	log.Println("Scheduler started successfully")
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}

func (s *Scheduler) runTier(tier symbols.Tier) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if _, err := s.orchestrator.RefreshTier(ctx, tier); err != nil {
		log.Printf("Scheduled %s refresh failed: %v", tier, err)
	}
}
