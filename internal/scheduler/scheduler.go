// Package scheduler runs the periodic background work: the nightly catalog
// refresh with follow-up capability probes, and expiry of dead connection
// registrations.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/quarterwave/parley/internal/catalog"
	"github.com/quarterwave/parley/internal/config"
	"github.com/quarterwave/parley/internal/llm"
	"github.com/quarterwave/parley/internal/models"
	"github.com/quarterwave/parley/internal/probe"
	"github.com/quarterwave/parley/internal/push"
	"github.com/robfig/cron/v3"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// purgeInterval is how often expired connection registrations are swept.
const purgeInterval = time.Hour

// Scheduler owns the background timers.
type Scheduler struct {
	refresher *catalog.Refresher
	prober    *probe.Prober
	registry  *llm.Registry
	creds     llm.CredentialSource
	hub       *push.Hub
	providers []config.ProviderConfig
	sched     cron.Schedule
}

// Opts holds parameters for creating a Scheduler.
type Opts struct {
	Refresher *catalog.Refresher
	Prober    *probe.Prober
	Registry  *llm.Registry
	Creds     llm.CredentialSource
	Hub       *push.Hub // optional; nil disables registration sweeps
	Providers []config.ProviderConfig
	Cron      string // 5-field refresh schedule
}

// New creates a Scheduler. The cron expression is validated here so a bad
// schedule fails startup instead of silently never firing.
func New(opts Opts) (*Scheduler, error) {
	if opts.Refresher == nil {
		return nil, fmt.Errorf("scheduler: refresher is required")
	}
	if opts.Prober == nil {
		return nil, fmt.Errorf("scheduler: prober is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("scheduler: registry is required")
	}
	if opts.Creds == nil {
		return nil, fmt.Errorf("scheduler: credential source is required")
	}
	sched, err := cronParser.Parse(opts.Cron)
	if err != nil {
		return nil, fmt.Errorf("scheduler: parse cron %q: %w", opts.Cron, err)
	}
	return &Scheduler{
		refresher: opts.Refresher,
		prober:    opts.Prober,
		registry:  opts.Registry,
		creds:     opts.Creds,
		hub:       opts.Hub,
		providers: opts.Providers,
		sched:     sched,
	}, nil
}

// Run blocks until ctx is cancelled, firing refreshes on the cron schedule
// and sweeping expired registrations hourly.
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(s.untilNext())
	defer timer.Stop()

	var purgeCh <-chan time.Time
	if s.hub != nil {
		ticker := time.NewTicker(purgeInterval)
		defer ticker.Stop()
		purgeCh = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.runRefresh(ctx)
			timer.Reset(s.untilNext())
		case <-purgeCh:
			if n, err := s.hub.PurgeExpired(); err != nil {
				log.Printf("scheduler: purge registrations: %v", err)
			} else if n > 0 {
				log.Printf("scheduler: purged %d expired registrations", n)
			}
		}
	}
}

// runRefresh refreshes every provider, then probes the ones that
// refreshed successfully. Probing happens after the refresh summary so a
// slow probe never delays catalog availability.
func (s *Scheduler) runRefresh(ctx context.Context) {
	log.Printf("scheduler: starting catalog refresh")
	results := s.refresher.RefreshAll(ctx, models.RefreshScheduled)

	for _, res := range results {
		if res.Err != nil {
			continue
		}
		p := s.provider(res.ProviderID)
		if p == nil {
			continue
		}
		client, err := s.registry.ClientFor(*p, s.creds)
		if err != nil {
			log.Printf("scheduler: client for %s: %v", p.ID, err)
			continue
		}
		if err := s.prober.ProbeProvider(ctx, client, p.ID); err != nil {
			log.Printf("scheduler: probe %s: %v", p.ID, err)
		}
	}
	log.Printf("scheduler: catalog refresh done")
}

func (s *Scheduler) untilNext() time.Duration {
	d := time.Until(s.sched.Next(time.Now()))
	if d < time.Second {
		d = time.Second
	}
	return d
}

func (s *Scheduler) provider(id string) *config.ProviderConfig {
	for i := range s.providers {
		if s.providers[i].ID == id {
			return &s.providers[i]
		}
	}
	return nil
}
