package catalog

import (
	"errors"
	"testing"
	"time"

	"github.com/quarterwave/parley/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openCatalogTestDB(t *testing.T) *gorm.DB {
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

func TestIsStale(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	if !IsStale(nil, now) {
		t.Error("IsStale(nil) = false, want true")
	}
	if !IsStale(&models.ModelCache{}, now) {
		t.Error("IsStale(never refreshed) = false, want true")
	}

	exactly := now.Add(-StaleAfter)
	if IsStale(&models.ModelCache{LastRefreshed: &exactly}, now) {
		t.Error("IsStale(exactly 7d) = true, want false: staleness is strict")
	}

	over := now.Add(-StaleAfter - time.Second)
	if !IsStale(&models.ModelCache{LastRefreshed: &over}, now) {
		t.Error("IsStale(7d + 1s) = false, want true")
	}
}

func TestMerge(t *testing.T) {
	previous := []models.ModelData{
		{ID: "gpt-4o", Source: models.SourceCurated, Blacklisted: true, SupportsTTS: models.CapYes},
		{ID: "my-manual", Source: models.SourceManual, Label: "Manual"},
		{ID: "gone-model", Source: models.SourceCurated},
	}
	curated := []CuratedModel{
		{ID: "gpt-4o", DisplayName: "GPT-4o"},
		{ID: "gpt-4.1", DisplayName: "GPT-4.1"},
	}

	out := Merge(curated, previous)
	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 2 curated + 1 manual", len(out))
	}

	// Curated entries come back with capabilities reset and the blacklist
	// re-applied by id.
	if out[0].ID != "gpt-4o" || !out[0].Blacklisted {
		t.Errorf("out[0] = %+v, want gpt-4o still blacklisted", out[0])
	}
	if out[0].SupportsTTS != models.CapUnknown {
		t.Errorf("SupportsTTS = %q, want reset to unknown", out[0].SupportsTTS)
	}
	if out[1].ID != "gpt-4.1" || out[1].Blacklisted {
		t.Errorf("out[1] = %+v, want fresh unblacklisted gpt-4.1", out[1])
	}

	// Manual entries survive unmodified; dropped curated entries do not.
	if out[2].ID != "my-manual" || out[2].Label != "Manual" {
		t.Errorf("out[2] = %+v, want the manual entry preserved", out[2])
	}
}

func TestSaveSuccess_GetRoundtrip(t *testing.T) {
	db := openCatalogTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)

	data := []models.ModelData{{ID: "gpt-4o", Label: "GPT-4o", Source: models.SourceCurated}}
	if err := SaveSuccess(db, "openai", data, models.RefreshScheduled, now); err != nil {
		t.Fatalf("SaveSuccess() error = %v", err)
	}

	entry, err := Get(db, "openai")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if entry.LastRefreshStatus != models.RefreshOK {
		t.Errorf("LastRefreshStatus = %q, want ok", entry.LastRefreshStatus)
	}
	if entry.RefreshSource != models.RefreshScheduled {
		t.Errorf("RefreshSource = %q, want scheduled", entry.RefreshSource)
	}
	list, err := entry.Models()
	if err != nil {
		t.Fatalf("Models() error = %v", err)
	}
	if len(list) != 1 || list[0].ID != "gpt-4o" {
		t.Errorf("Models() = %+v, want the saved list", list)
	}
}

func TestRecordFailure_PreservesModels(t *testing.T) {
	db := openCatalogTestDB(t)
	refreshedAt := time.Now().Add(-time.Hour)

	data := []models.ModelData{{ID: "gpt-4o", Source: models.SourceCurated}}
	if err := SaveSuccess(db, "openai", data, models.RefreshScheduled, refreshedAt); err != nil {
		t.Fatalf("SaveSuccess() error = %v", err)
	}

	if err := RecordFailure(db, "openai", time.Now(), errors.New("upstream 500")); err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}

	entry, _ := Get(db, "openai")
	if entry.LastRefreshStatus != models.RefreshError {
		t.Errorf("LastRefreshStatus = %q, want error", entry.LastRefreshStatus)
	}
	if entry.LastRefreshError == "" {
		t.Error("LastRefreshError is empty, want the cause recorded")
	}
	if entry.LastRefreshed == nil {
		t.Fatal("LastRefreshed cleared by failure, want preserved")
	}
	list, _ := entry.Models()
	if len(list) != 1 {
		t.Errorf("models after failure = %d entries, want previous list intact", len(list))
	}
}

func TestRecordFailure_NoPriorEntry(t *testing.T) {
	db := openCatalogTestDB(t)
	if err := RecordFailure(db, "fresh", time.Now(), errors.New("boom")); err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}
	entry, err := Get(db, "fresh")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if entry.LastRefreshed != nil {
		t.Error("LastRefreshed set on a never-successful entry, want nil")
	}
}

func TestUpdateModelCapabilities(t *testing.T) {
	db := openCatalogTestDB(t)
	data := []models.ModelData{
		{ID: "gpt-4o", Source: models.SourceCurated, SupportsTTS: models.CapUnknown},
		{ID: "gpt-4.1", Source: models.SourceCurated, SupportsTTS: models.CapUnknown},
	}
	SaveSuccess(db, "openai", data, models.RefreshManual, time.Now())

	updated := data[0]
	updated.SupportsTTS = models.CapYes
	if err := UpdateModelCapabilities(db, "openai", updated); err != nil {
		t.Fatalf("UpdateModelCapabilities() error = %v", err)
	}

	entry, _ := Get(db, "openai")
	list, _ := entry.Models()
	if list[0].SupportsTTS != models.CapYes {
		t.Errorf("gpt-4o SupportsTTS = %q, want yes", list[0].SupportsTTS)
	}
	if list[1].SupportsTTS != models.CapUnknown {
		t.Errorf("gpt-4.1 SupportsTTS = %q, want untouched", list[1].SupportsTTS)
	}

	err := UpdateModelCapabilities(db, "openai", models.ModelData{ID: "missing"})
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("UpdateModelCapabilities(missing) error = %v, want ErrModelNotFound", err)
	}
}

func TestAddManualModel_SetBlacklisted(t *testing.T) {
	db := openCatalogTestDB(t)

	if err := AddManualModel(db, "openai", "my-model", "My Model"); err != nil {
		t.Fatalf("AddManualModel() error = %v", err)
	}
	if err := AddManualModel(db, "openai", "my-model", ""); err == nil {
		t.Error("duplicate AddManualModel() error = nil, want rejection")
	}

	if err := SetBlacklisted(db, "openai", "my-model", true); err != nil {
		t.Fatalf("SetBlacklisted() error = %v", err)
	}
	entry, _ := Get(db, "openai")
	list, _ := entry.Models()
	if len(list) != 1 || !list[0].Blacklisted || list[0].Source != models.SourceManual {
		t.Errorf("list = %+v, want one blacklisted manual entry", list)
	}
}
