package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/BadrRibzat/bookgen-ai/internal/models"
	"github.com/BadrRibzat/bookgen-ai/internal/registry"
	"github.com/BadrRibzat/bookgen-ai/internal/repository"
	"github.com/BadrRibzat/bookgen-ai/internal/runtime"
)

type stubHandle struct {
	generateFn func(ctx context.Context, prompt string, params runtime.SamplingParams) ([]string, error)
	closed     bool
}

func (h *stubHandle) Generate(ctx context.Context, prompt string, params runtime.SamplingParams) ([]string, error) {
	return h.generateFn(ctx, prompt, params)
}

func (h *stubHandle) Close() error {
	h.closed = true
	return nil
}

type stubRuntime struct {
	mu      sync.Mutex
	loads   int
	handles []*stubHandle
	loadErr error
}

func (r *stubRuntime) Train(ctx context.Context, spec runtime.TrainSpec, onEpoch func(runtime.EpochProgress)) (*runtime.TrainResult, error) {
	return nil, runtime.ErrTrainingUnsupported
}

func (r *stubRuntime) Load(ctx context.Context, modelPath, tokenizerPath string) (runtime.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	r.loads++
	handle := &stubHandle{
		generateFn: func(ctx context.Context, prompt string, params runtime.SamplingParams) ([]string, error) {
			return []string{prompt + " and the continuation follows."}, nil
		},
	}
	r.handles = append(r.handles, handle)
	return handle, nil
}

func (r *stubRuntime) loadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads
}

func newTestService(t *testing.T, rt runtime.Runtime, cacheSize int) (*Service, *repository.ArtifactRepository) {
	t.Helper()
	logger := zap.NewNop()
	db, err := repository.NewSQLiteDB(":memory:", logger)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := repository.NewArtifactRepository(db, logger)
	reg := registry.NewRegistry(repo, "", logger)

	svc, err := NewService(reg, rt, cacheSize, logger)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc, repo
}

func seedArtifact(t *testing.T, repo *repository.ArtifactRepository, modelID, domainID string) {
	t.Helper()
	loss := 1.5
	err := repo.InsertArtifact(&models.ModelArtifact{
		ModelID:          modelID,
		Name:             modelID,
		Version:          "1.0",
		DomainID:         domainID,
		DomainName:       domainID,
		BaseModel:        "gpt2",
		TrainingJobID:    "train_" + domainID + "_1",
		TrainingExamples: 80,
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

func TestGenerate_StripsPromptEcho(t *testing.T) {
	rt := &stubRuntime{}
	svc, repo := newTestService(t, rt, 2)
	seedArtifact(t, repo, "model_cooking_1", "cooking")

	resp, err := svc.Generate(context.Background(), &models.GenerateRequest{
		Prompt:   "Write about braising",
		DomainID: "cooking",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.GeneratedText) != 1 {
		t.Fatalf("sequences = %d, want 1", len(resp.GeneratedText))
	}
	if resp.GeneratedText[0] != "and the continuation follows." {
		t.Errorf("prompt echo not stripped: %q", resp.GeneratedText[0])
	}
	if resp.ModelUsed != "model_cooking_1" {
		t.Errorf("model_used = %s, want model_cooking_1", resp.ModelUsed)
	}
	if resp.GenerationTime < 0 {
		t.Errorf("generation_time = %v, want >= 0", resp.GenerationTime)
	}
}

func TestGenerate_ReusesCachedHandle(t *testing.T) {
	rt := &stubRuntime{}
	svc, repo := newTestService(t, rt, 2)
	seedArtifact(t, repo, "model_cooking_1", "cooking")

	req := &models.GenerateRequest{Prompt: "Write about knives", DomainID: "cooking"}
	for i := 0; i < 3; i++ {
		if _, err := svc.Generate(context.Background(), req); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := rt.loadCount(); got != 1 {
		t.Fatalf("model loaded %d times, want 1", got)
	}
}

func TestGenerate_EvictionClosesHandle(t *testing.T) {
	rt := &stubRuntime{}
	svc, repo := newTestService(t, rt, 1)
	seedArtifact(t, repo, "model_cooking_1", "cooking")
	seedArtifact(t, repo, "model_fitness_1", "fitness")

	if _, err := svc.Generate(context.Background(), &models.GenerateRequest{Prompt: "First", DomainID: "cooking"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Generate(context.Background(), &models.GenerateRequest{Prompt: "Second", DomainID: "fitness"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if len(rt.handles) != 2 {
		t.Fatalf("handles = %d, want 2", len(rt.handles))
	}
	if !rt.handles[0].closed {
		t.Error("evicted handle was not closed")
	}
	if rt.handles[1].closed {
		t.Error("live handle must stay open")
	}
}

func TestGenerate_NoModelAvailable(t *testing.T) {
	rt := &stubRuntime{}
	svc, _ := newTestService(t, rt, 2)

	_, err := svc.Generate(context.Background(), &models.GenerateRequest{Prompt: "Anything", DomainID: "unknown"})
	if !errors.Is(err, models.ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}

func TestGenerate_RuntimeFailureIsNotNotFound(t *testing.T) {
	rt := &stubRuntime{loadErr: fmt.Errorf("cuda out of memory")}
	svc, repo := newTestService(t, rt, 2)
	seedArtifact(t, repo, "model_cooking_1", "cooking")

	_, err := svc.Generate(context.Background(), &models.GenerateRequest{Prompt: "Anything", DomainID: "cooking"})
	if !errors.Is(err, models.ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	if errors.Is(err, models.ErrModelNotFound) {
		t.Fatal("runtime failure must not be reported as a missing model")
	}
}

func TestGenerate_FailedHandleDropsFromCache(t *testing.T) {
	rt := &stubRuntime{}
	svc, repo := newTestService(t, rt, 2)
	seedArtifact(t, repo, "model_cooking_1", "cooking")

	req := &models.GenerateRequest{Prompt: "Write about stock", DomainID: "cooking"}
	if _, err := svc.Generate(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rt.mu.Lock()
	rt.handles[0].generateFn = func(ctx context.Context, prompt string, params runtime.SamplingParams) ([]string, error) {
		return nil, fmt.Errorf("model crashed")
	}
	rt.mu.Unlock()

	if _, err := svc.Generate(context.Background(), req); !errors.Is(err, models.ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}

	// The next call reloads instead of reusing the broken handle.
	if _, err := svc.Generate(context.Background(), req); err != nil {
		t.Fatalf("unexpected error after reload: %v", err)
	}
	if got := rt.loadCount(); got != 2 {
		t.Fatalf("model loaded %d times, want 2", got)
	}
}

func TestGenerate_AppliesSamplingDefaults(t *testing.T) {
	var captured runtime.SamplingParams
	rt := &stubRuntime{}
	svc, repo := newTestService(t, rt, 2)
	seedArtifact(t, repo, "model_cooking_1", "cooking")

	// First call loads the stock handle; swap its generate to capture
	// the params the service passes down.
	if _, err := svc.Generate(context.Background(), &models.GenerateRequest{Prompt: "warmup", DomainID: "cooking"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rt.mu.Lock()
	rt.handles[0].generateFn = func(ctx context.Context, prompt string, params runtime.SamplingParams) ([]string, error) {
		captured = params
		return []string{"ok"}, nil
	}
	rt.mu.Unlock()

	if _, err := svc.Generate(context.Background(), &models.GenerateRequest{Prompt: "real", DomainID: "cooking"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if captured.MaxLength != DefaultMaxLength {
		t.Errorf("max_length = %d, want %d", captured.MaxLength, DefaultMaxLength)
	}
	if captured.Temperature != DefaultTemperature {
		t.Errorf("temperature = %v, want %v", captured.Temperature, DefaultTemperature)
	}
	if captured.NumReturnSequences != DefaultNumReturnSequences {
		t.Errorf("num_return_sequences = %d, want %d", captured.NumReturnSequences, DefaultNumReturnSequences)
	}
}
