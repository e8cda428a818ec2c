package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quarterwave/parley/internal/catalog"
	"github.com/quarterwave/parley/internal/config"
	"github.com/quarterwave/parley/internal/llm"
	"github.com/quarterwave/parley/internal/models"
	"github.com/quarterwave/parley/internal/probe"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type staticCreds struct{}

func (staticCreds) APIKey(providerID string) (string, error) { return providerID, nil }

func openSchedulerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.ModelCache{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func newSchedulerFixture(t *testing.T, db *gorm.DB, client llm.Client, cronExpr string) *Scheduler {
	t.Helper()
	registry := llm.NewRegistry()
	ctor := func(apiKey, baseURL string) (llm.Client, error) { return client, nil }
	registry.Register(llm.KindOpenAI, ctor)
	registry.Register(llm.KindCompatible, ctor)

	providers := []config.ProviderConfig{{
		ID: "openai", Name: "openai", Kind: "openai",
		UtilityModel: "gpt-4o-mini", FallbackModel: "gpt-4o-mini",
	}}
	refresher, err := catalog.NewRefresher(catalog.RefresherOpts{
		DB: db, Registry: registry, Creds: staticCreds{}, Providers: providers,
	})
	if err != nil {
		t.Fatalf("NewRefresher() error = %v", err)
	}
	prober, err := probe.NewProber(probe.ProberOpts{DB: db})
	if err != nil {
		t.Fatalf("NewProber() error = %v", err)
	}

	s, err := New(Opts{
		Refresher: refresher,
		Prober:    prober,
		Registry:  registry,
		Creds:     staticCreds{},
		Providers: providers,
		Cron:      cronExpr,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestNew_RejectsBadCron(t *testing.T) {
	db := openSchedulerTestDB(t)
	registry := llm.NewRegistry()
	refresher, _ := catalog.NewRefresher(catalog.RefresherOpts{
		DB: db, Registry: registry, Creds: staticCreds{},
	})
	prober, _ := probe.NewProber(probe.ProberOpts{DB: db})

	_, err := New(Opts{
		Refresher: refresher,
		Prober:    prober,
		Registry:  registry,
		Creds:     staticCreds{},
		Cron:      "not a cron expression",
	})
	if err == nil {
		t.Error("New() error = nil, want cron parse failure")
	}
}

func TestRunRefresh_RefreshesThenProbes(t *testing.T) {
	db := openSchedulerTestDB(t)
	client := &llm.Mock{
		ListModelsFunc: func(ctx context.Context) ([]string, error) {
			return []string{"gpt-4o"}, nil
		},
		CompleteFunc: func(ctx context.Context, model string, messages []llm.Message) (string, error) {
			return `[{"id":"gpt-4o","displayName":"GPT-4o"}]`, nil
		},
		GenerateImageFunc: func(ctx context.Context, model, prompt, size string) ([]byte, error) {
			return []byte{1}, nil
		},
		CreateSpeechFunc: func(ctx context.Context, model, text string) ([]byte, error) {
			return []byte{1}, nil
		},
		TranscribeFunc: func(ctx context.Context, model string, wav []byte) (string, error) {
			return "ok", nil
		},
		SendMessageFunc: func(ctx context.Context, model string, messages []llm.Message) (*llm.Stream, error) {
			return llm.NewScriptedStream(nil, llm.Result{Content: "ok"}, nil), nil
		},
	}

	s := newSchedulerFixture(t, db, client, "0 4 * * *")
	s.runRefresh(context.Background())

	entry, err := catalog.Get(db, "openai")
	if err != nil {
		t.Fatalf("Get() after refresh error = %v", err)
	}
	if entry.RefreshSource != models.RefreshScheduled {
		t.Errorf("RefreshSource = %q, want scheduled", entry.RefreshSource)
	}
	list, _ := entry.Models()
	if len(list) != 1 {
		t.Fatalf("cached models = %d, want 1", len(list))
	}
	// The probes ran right after the refresh.
	if list[0].SupportsImageGeneration != models.CapYes {
		t.Errorf("SupportsImageGeneration = %q, want yes after probing", list[0].SupportsImageGeneration)
	}
}

func TestRunRefresh_FailedProviderNotProbed(t *testing.T) {
	db := openSchedulerTestDB(t)
	probeCalls := 0
	client := &llm.Mock{
		ListModelsFunc: func(ctx context.Context) ([]string, error) {
			return nil, errors.New("connection refused")
		},
		GenerateImageFunc: func(ctx context.Context, model, prompt, size string) ([]byte, error) {
			probeCalls++
			return nil, nil
		},
	}

	s := newSchedulerFixture(t, db, client, "0 4 * * *")
	s.runRefresh(context.Background())

	if probeCalls != 0 {
		t.Errorf("probe calls = %d, want 0 for a failed refresh", probeCalls)
	}
}

func TestUntilNext_AlwaysPositive(t *testing.T) {
	db := openSchedulerTestDB(t)
	s := newSchedulerFixture(t, db, &llm.Mock{}, "* * * * *")
	if d := s.untilNext(); d < time.Second {
		t.Errorf("untilNext() = %v, want at least a second", d)
	}
}
