// Package generation serves text generation requests, routing each one
// to the best artifact for its scope and keeping a bounded cache of
// loaded model handles.
package generation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/BadrRibzat/bookgen-ai/internal/models"
	"github.com/BadrRibzat/bookgen-ai/internal/registry"
	"github.com/BadrRibzat/bookgen-ai/internal/runtime"
)

// Sampling defaults applied when a request leaves a knob unset.
const (
	DefaultMaxLength          = 200
	DefaultTemperature        = 0.8
	DefaultTopP               = 0.9
	DefaultTopK               = 50
	DefaultRepetitionPenalty  = 1.2
	DefaultNumReturnSequences = 1

	DefaultCacheSize = 4
)

// Service generates text against registry-resolved artifacts.
type Service struct {
	registry *registry.Registry
	runtime  runtime.Runtime
	logger   *zap.Logger

	mu      sync.Mutex
	handles *lru.Cache[string, runtime.Handle]
}

// NewService builds a generation service. cacheSize bounds how many
// model handles stay loaded at once; zero or negative falls back to
// DefaultCacheSize.
func NewService(reg *registry.Registry, rt runtime.Runtime, cacheSize int, logger *zap.Logger) (*Service, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}

	handles, err := lru.NewWithEvict(cacheSize, func(modelID string, handle runtime.Handle) {
		if err := handle.Close(); err != nil {
			logger.Warn("Failed to close evicted model handle",
				zap.String("model_id", modelID), zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create handle cache: %w", err)
	}

	return &Service{
		registry: reg,
		runtime:  rt,
		logger:   logger,
		handles:  handles,
	}, nil
}

// Generate resolves the artifact for the request scope, loads it if
// needed and produces the requested sequences. Only an absent artifact
// surfaces models.ErrModelNotFound; runtime failures are reported as
// models.ErrGenerationFailed.
func (s *Service) Generate(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, error) {
	artifact, err := s.registry.FindBest(req.DomainID, req.NicheID)
	if err != nil {
		return nil, err
	}

	handle, err := s.handleFor(ctx, artifact)
	if err != nil {
		return nil, fmt.Errorf("%w: model %s: %v", models.ErrGenerationFailed, artifact.ModelID, err)
	}

	params := samplingParams(req)
	start := time.Now()
	sequences, err := handle.Generate(ctx, req.Prompt, params)
	if err != nil {
		// Drop the handle so a wedged model does not poison the cache.
		s.mu.Lock()
		s.handles.Remove(artifact.ModelID)
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: model %s: %v", models.ErrGenerationFailed, artifact.ModelID, err)
	}
	elapsed := time.Since(start)

	for i, seq := range sequences {
		sequences[i] = stripPromptEcho(req.Prompt, seq)
	}

	s.registry.UpdateUsage(artifact.ModelID, elapsed)
	s.logger.Info("Generation served",
		zap.String("model_id", artifact.ModelID),
		zap.String("domain_id", req.DomainID),
		zap.Int("sequences", len(sequences)),
		zap.Duration("elapsed", elapsed))

	return &models.GenerateResponse{
		GeneratedText:  sequences,
		Prompt:         req.Prompt,
		DomainID:       req.DomainID,
		NicheID:        req.NicheID,
		ModelUsed:      artifact.ModelID,
		GenerationTime: elapsed.Seconds(),
		Metadata: map[string]interface{}{
			"model_name":    artifact.Name,
			"model_version": artifact.Version,
			"base_model":    artifact.BaseModel,
			"is_default":    artifact.IsDefault,
			"temperature":   params.Temperature,
			"max_length":    params.MaxLength,
		},
	}, nil
}

// handleFor returns the cached handle for an artifact, loading it on a
// miss. Loading happens under the lock so a burst of requests for the
// same cold model loads it once.
func (s *Service) handleFor(ctx context.Context, artifact *models.ModelArtifact) (runtime.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if handle, ok := s.handles.Get(artifact.ModelID); ok {
		return handle, nil
	}

	s.logger.Info("Loading model",
		zap.String("model_id", artifact.ModelID),
		zap.String("path", artifact.ModelPath))

	handle, err := s.runtime.Load(ctx, artifact.ModelPath, artifact.TokenizerPath)
	if err != nil {
		return nil, err
	}
	s.handles.Add(artifact.ModelID, handle)
	return handle, nil
}

// Close releases every cached handle.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles.Purge()
}

func samplingParams(req *models.GenerateRequest) runtime.SamplingParams {
	params := runtime.SamplingParams{
		MaxLength:          req.MaxLength,
		Temperature:        req.Temperature,
		TopP:               req.TopP,
		TopK:               req.TopK,
		RepetitionPenalty:  req.RepetitionPenalty,
		NumReturnSequences: req.NumReturnSequences,
	}
	if params.MaxLength <= 0 {
		params.MaxLength = DefaultMaxLength
	}
	if params.Temperature <= 0 {
		params.Temperature = DefaultTemperature
	}
	if params.TopP <= 0 {
		params.TopP = DefaultTopP
	}
	if params.TopK <= 0 {
		params.TopK = DefaultTopK
	}
	if params.RepetitionPenalty <= 0 {
		params.RepetitionPenalty = DefaultRepetitionPenalty
	}
	if params.NumReturnSequences <= 0 {
		params.NumReturnSequences = DefaultNumReturnSequences
	}
	return params
}

// stripPromptEcho removes the leading prompt text that causal models
// repeat back before their continuation.
func stripPromptEcho(prompt, text string) string {
	if strings.HasPrefix(text, prompt) {
		return strings.TrimSpace(strings.TrimPrefix(text, prompt))
	}
	return strings.TrimSpace(text)
}
