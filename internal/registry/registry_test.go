package registry

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/BadrRibzat/bookgen-ai/internal/models"
	"github.com/BadrRibzat/bookgen-ai/internal/repository"
)

func newTestRepo(t *testing.T) *repository.ArtifactRepository {
	t.Helper()
	logger := zap.NewNop()
	db, err := repository.NewSQLiteDB(":memory:", logger)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return repository.NewArtifactRepository(db, logger)
}

func writeDefaultModel(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	metrics := `{
		"model_id": "bookgen-distilgpt2-v1",
		"base_model": "distilgpt2",
		"training": {"examples": 1200, "epochs": 3},
		"metrics": {"training_loss": 2.1, "eval_loss": 2.4}
	}`
	if err := os.WriteFile(filepath.Join(dir, "metrics.json"), []byte(metrics), 0644); err != nil {
		t.Fatalf("write metrics: %v", err)
	}
	return dir
}

func insertArtifact(t *testing.T, repo *repository.ArtifactRepository, modelID, domainID string, nicheID *string, loss float64) {
	t.Helper()
	err := repo.InsertArtifact(&models.ModelArtifact{
		ModelID:          modelID,
		Name:             modelID,
		Version:          "1.0",
		DomainID:         domainID,
		DomainName:       domainID,
		NicheID:          nicheID,
		BaseModel:        "gpt2",
		TrainingJobID:    "train_" + domainID + "_1",
		TrainingExamples: 100,
		TrainingEpochs:   3,
		FinalLoss:        &loss,
		ModelPath:        "/models/" + modelID,
		TokenizerPath:    "/models/" + modelID,
		IsActive:         true,
	})
	if err != nil {
		t.Fatalf("insert artifact: %v", err)
	}
}

func TestFindBest_TierOrder(t *testing.T) {
	repo := newTestRepo(t)
	reg := NewRegistry(repo, writeDefaultModel(t), zap.NewNop())

	vegan := "vegan"
	insertArtifact(t, repo, "model_cooking_general", "cooking", nil, 1.8)
	insertArtifact(t, repo, "model_cooking_vegan", "cooking", &vegan, 2.2)

	// Exact niche match wins even with a worse loss.
	got, err := reg.FindBest("cooking", &vegan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ModelID != "model_cooking_vegan" {
		t.Errorf("niche tier: got %s, want model_cooking_vegan", got.ModelID)
	}

	// Unknown niche falls back to the domain-level artifact.
	keto := "keto"
	got, err = reg.FindBest("cooking", &keto)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ModelID != "model_cooking_general" {
		t.Errorf("domain tier: got %s, want model_cooking_general", got.ModelID)
	}

	// Unknown domain lands on the packaged default.
	got, err = reg.FindBest("astronomy", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsDefault {
		t.Errorf("expected packaged default, got %s", got.ModelID)
	}
	if got.DomainID != "astronomy" {
		t.Errorf("default artifact must report the requested domain, got %s", got.DomainID)
	}
	if got.BaseModel != "distilgpt2" {
		t.Errorf("base_model = %s, want distilgpt2", got.BaseModel)
	}
}

func TestFindBest_LowestLossWinsWithinTier(t *testing.T) {
	repo := newTestRepo(t)
	reg := NewRegistry(repo, "", zap.NewNop())

	insertArtifact(t, repo, "model_cooking_a", "cooking", nil, 2.5)
	insertArtifact(t, repo, "model_cooking_b", "cooking", nil, 1.2)

	got, err := reg.FindBest("cooking", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ModelID != "model_cooking_b" {
		t.Errorf("got %s, want the lower-loss model_cooking_b", got.ModelID)
	}
}

func TestFindBest_NoDefaultConfigured(t *testing.T) {
	repo := newTestRepo(t)
	reg := NewRegistry(repo, "", zap.NewNop())

	if _, err := reg.FindBest("cooking", nil); !errors.Is(err, models.ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}

func TestFindBest_DeactivatedArtifactSkipped(t *testing.T) {
	repo := newTestRepo(t)
	reg := NewRegistry(repo, "", zap.NewNop())

	insertArtifact(t, repo, "model_cooking_old", "cooking", nil, 1.0)
	if err := reg.DeactivateArtifact("model_cooking_old"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := reg.FindBest("cooking", nil); !errors.Is(err, models.ErrModelNotFound) {
		t.Fatalf("deactivated artifact must not resolve, got %v", err)
	}
}

func TestUpdateUsage_PersistsRollingAverage(t *testing.T) {
	repo := newTestRepo(t)
	reg := NewRegistry(repo, "", zap.NewNop())

	insertArtifact(t, repo, "model_cooking_x", "cooking", nil, 1.0)

	reg.UpdateUsage("model_cooking_x", 100*time.Millisecond)
	reg.UpdateUsage("model_cooking_x", 300*time.Millisecond)

	got, err := repo.GetArtifact("model_cooking_x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.GenerationCount != 2 {
		t.Errorf("generation_count = %d, want 2", got.GenerationCount)
	}
	if got.AvgGenerationTime < 0.19 || got.AvgGenerationTime > 0.21 {
		t.Errorf("avg_generation_time = %v, want ~0.2", got.AvgGenerationTime)
	}
	if got.LastUsed == nil {
		t.Error("last_used not recorded")
	}
}

func TestUpdateUsage_UnknownModelIsNoOp(t *testing.T) {
	repo := newTestRepo(t)
	reg := NewRegistry(repo, "", zap.NewNop())

	// Must not panic or create rows.
	reg.UpdateUsage("model_ghost", time.Second)

	artifacts, err := reg.ListArtifacts(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(artifacts) != 0 {
		t.Fatalf("no-op update created %d artifacts", len(artifacts))
	}
}

func TestUpdateUsage_DefaultArtifactStaysInMemory(t *testing.T) {
	repo := newTestRepo(t)
	reg := NewRegistry(repo, writeDefaultModel(t), zap.NewNop())

	def, err := reg.FindBest("astronomy", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reg.UpdateUsage(def.ModelID, 250*time.Millisecond)

	// Counters land on the cached default and show up on the next
	// resolution, not on copies already handed out.
	if def.GenerationCount != 0 {
		t.Errorf("resolved copy mutated: generation_count = %d, want 0", def.GenerationCount)
	}
	again, err := reg.FindBest("astronomy", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.GenerationCount != 1 {
		t.Errorf("generation_count = %d, want 1", again.GenerationCount)
	}
	if again.LastUsed == nil {
		t.Error("last_used not recorded on the cached default")
	}

	// Nothing reaches the catalog for the packaged default.
	artifacts, err := reg.ListArtifacts(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(artifacts) != 0 {
		t.Fatalf("default usage created %d catalog rows", len(artifacts))
	}
}

func TestUpdateUsage_DefaultArtifactConcurrent(t *testing.T) {
	repo := newTestRepo(t)
	reg := NewRegistry(repo, writeDefaultModel(t), zap.NewNop())

	def, err := reg.FindBest("astronomy", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				reg.UpdateUsage(def.ModelID, 10*time.Millisecond)
				if _, err := reg.FindBest("astronomy", nil); err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	got, err := reg.FindBest("astronomy", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.GenerationCount != workers*25 {
		t.Errorf("generation_count = %d, want %d", got.GenerationCount, workers*25)
	}
}

func TestDisplayName_MultiByteRunes(t *testing.T) {
	cases := map[string]string{
		"cooking":         "Cooking",
		"self_publishing": "Self Publishing",
		"économie_verte":  "Économie Verte",
		"ölgemälde":       "Ölgemälde",
	}
	for in, want := range cases {
		if got := displayName(in); got != want {
			t.Errorf("displayName(%q) = %q, want %q", in, got, want)
		}
	}
}
