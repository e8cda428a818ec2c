package catalog

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/quarterwave/parley/internal/config"
	"github.com/quarterwave/parley/internal/llm"
	"github.com/quarterwave/parley/internal/models"
	"github.com/quarterwave/parley/internal/notify"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// DefaultRefreshConcurrency caps how many providers refresh at once. A
// bounded fan-out keeps refresh parallel without tripping provider rate
// limits.
const DefaultRefreshConcurrency = 4

// ProviderResult is the outcome of one provider's refresh.
type ProviderResult struct {
	ProviderID string
	Name       string
	ModelCount int
	Err        error
}

// Refresher runs the catalog refresh pipeline across configured providers.
type Refresher struct {
	db          *gorm.DB
	registry    *llm.Registry
	creds       llm.CredentialSource
	notifier    notify.Notifier
	providers   []config.ProviderConfig
	concurrency int
	now         func() time.Time
}

// RefresherOpts holds parameters for creating a Refresher.
type RefresherOpts struct {
	DB          *gorm.DB
	Registry    *llm.Registry
	Creds       llm.CredentialSource
	Notifier    notify.Notifier // optional; nil disables summaries
	Providers   []config.ProviderConfig
	Concurrency int              // defaults to DefaultRefreshConcurrency
	Now         func() time.Time // injectable clock for tests
}

// NewRefresher creates a Refresher.
func NewRefresher(opts RefresherOpts) (*Refresher, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("catalog: db is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("catalog: registry is required")
	}
	if opts.Creds == nil {
		return nil, fmt.Errorf("catalog: credential source is required")
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultRefreshConcurrency
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Refresher{
		db:          opts.DB,
		registry:    opts.Registry,
		creds:       opts.Creds,
		notifier:    notifier,
		providers:   opts.Providers,
		concurrency: concurrency,
		now:         now,
	}, nil
}

// RefreshAll refreshes every configured provider with bounded concurrency.
// One provider's failure never blocks or fails the others. After all
// providers finish, an aggregate summary goes to the notifier.
func (r *Refresher) RefreshAll(ctx context.Context, source string) []ProviderResult {
	results := make([]ProviderResult, len(r.providers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, p := range r.providers {
		i, p := i, p
		g.Go(func() error {
			count, err := r.RefreshProvider(gctx, p, source)
			results[i] = ProviderResult{
				ProviderID: p.ID,
				Name:       p.Name,
				ModelCount: count,
				Err:        err,
			}
			return nil
		})
	}
	g.Wait()

	if err := r.notifier.Send(ctx, Summary(results)); err != nil {
		log.Printf("catalog: send refresh summary: %v", err)
	}
	return results
}

// RefreshProvider runs the full pipeline for one provider: list, prefilter,
// curate, merge, persist. On any failure the previous cache entry's model
// list is left untouched and failure metadata is recorded.
func (r *Refresher) RefreshProvider(ctx context.Context, p config.ProviderConfig, source string) (int, error) {
	count, err := r.refresh(ctx, p, source)
	if err != nil {
		if recErr := RecordFailure(r.db, p.ID, r.now(), err); recErr != nil {
			log.Printf("catalog: record failure for %s: %v", p.ID, recErr)
		}
		return 0, err
	}
	return count, nil
}

func (r *Refresher) refresh(ctx context.Context, p config.ProviderConfig, source string) (int, error) {
	client, err := r.registry.ClientFor(p, r.creds)
	if err != nil {
		return 0, err
	}

	raw, err := client.ListModels(ctx)
	if err != nil {
		return 0, fmt.Errorf("catalog: list models for %s: %w", p.ID, err)
	}
	if len(raw) == 0 {
		return 0, fmt.Errorf("catalog: provider %s returned no models", p.ID)
	}

	filtered := Prefilter(llm.ParseKind(p.Kind), raw)

	curated, err := Curate(ctx, client, filtered, CuratorOpts{
		Model:         p.UtilityModel,
		FallbackModel: p.FallbackModel,
		Guidance:      p.Guidance,
	})
	if err != nil {
		return 0, err
	}

	var prevData []models.ModelData
	if entry, getErr := Get(r.db, p.ID); getErr == nil {
		if list, decErr := entry.Models(); decErr == nil {
			prevData = list
		} else {
			log.Printf("catalog: decode previous cache for %s: %v", p.ID, decErr)
		}
	}

	merged := Merge(curated, prevData)
	if err := SaveSuccess(r.db, p.ID, merged, source, r.now()); err != nil {
		return 0, err
	}
	return len(merged), nil
}

// Summary formats an aggregate refresh report: successes tallied with
// counts, failures enumerated individually.
func Summary(results []ProviderResult) string {
	var okCount, modelCount int
	var failures []string
	for _, res := range results {
		if res.Err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", res.ProviderID, res.Err))
			continue
		}
		okCount++
		modelCount += res.ModelCount
	}
	sort.Strings(failures)

	var b strings.Builder
	fmt.Fprintf(&b, "Catalog refresh: %d/%d providers ok, %d models cached", okCount, len(results), modelCount)
	if len(failures) > 0 {
		b.WriteString("\nFailures:")
		for _, f := range failures {
			b.WriteString("\n- ")
			b.WriteString(f)
		}
	}
	return b.String()
}
