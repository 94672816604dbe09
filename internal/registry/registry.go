// Package registry catalogs trained model artifacts and resolves the
// best one for a (domain, niche) scope, falling back to the packaged
// default model when no specialized artifact exists.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/BadrRibzat/bookgen-ai/internal/models"
	"github.com/BadrRibzat/bookgen-ai/internal/repository"
)

// usageWindowSize bounds the latency sample window per artifact.
const usageWindowSize = 100

// defaultModelMetadata mirrors the metrics.json shipped alongside the
// packaged default model.
type defaultModelMetadata struct {
	ModelID   string `json:"model_id"`
	BaseModel string `json:"base_model"`
	Training  struct {
		Examples int `json:"examples"`
		Epochs   int `json:"epochs"`
	} `json:"training"`
	Metrics struct {
		TrainingLoss *float64 `json:"training_loss"`
		EvalLoss     *float64 `json:"eval_loss"`
	} `json:"metrics"`
}

// Registry resolves artifacts and tracks their usage statistics.
type Registry struct {
	artifacts *repository.ArtifactRepository
	logger    *zap.Logger

	defaultPath string
	defaultMeta *defaultModelMetadata

	mu           sync.Mutex
	defaultCache map[string]*models.ModelArtifact
	usage        map[string]*usageWindow
}

// NewRegistry creates a registry. defaultModelPath names the packaged
// default model's install directory; an empty or missing path simply
// disables the terminal fallback tier.
func NewRegistry(artifacts *repository.ArtifactRepository, defaultModelPath string, logger *zap.Logger) *Registry {
	r := &Registry{
		artifacts:    artifacts,
		logger:       logger,
		defaultPath:  defaultModelPath,
		defaultCache: make(map[string]*models.ModelArtifact),
		usage:        make(map[string]*usageWindow),
	}
	r.defaultMeta = r.loadDefaultMetadata()
	return r
}

func (r *Registry) loadDefaultMetadata() *defaultModelMetadata {
	if r.defaultPath == "" {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(r.defaultPath, "metrics.json"))
	if err != nil {
		r.logger.Warn("Packaged default model unavailable",
			zap.String("path", r.defaultPath), zap.Error(err))
		return nil
	}

	meta := &defaultModelMetadata{}
	if err := json.Unmarshal(data, meta); err != nil {
		r.logger.Error("Failed to parse default model metrics.json", zap.Error(err))
		return nil
	}
	if meta.ModelID == "" {
		meta.ModelID = "bookgen-distilgpt2-v1"
	}
	if meta.BaseModel == "" {
		meta.BaseModel = "distilgpt2"
	}

	r.logger.Info("Packaged default model registered",
		zap.String("model_id", meta.ModelID), zap.String("path", r.defaultPath))
	return meta
}

// FindBest resolves the artifact for a scope in strict order:
// niche-exact, then domain-level, then the packaged default adapted to
// report the requested scope. Fails with models.ErrModelNotFound when
// even the default is unavailable.
func (r *Registry) FindBest(domainID string, nicheID *string) (*models.ModelArtifact, error) {
	if nicheID != nil {
		artifact, err := r.artifacts.FindBest(domainID, nicheID)
		if err != nil {
			return nil, err
		}
		if artifact != nil {
			return artifact, nil
		}
	}

	artifact, err := r.artifacts.FindBest(domainID, nil)
	if err != nil {
		return nil, err
	}
	if artifact != nil {
		return artifact, nil
	}

	if def := r.defaultArtifact(domainID, nicheID); def != nil {
		return def, nil
	}

	return nil, fmt.Errorf("%w: domain %s", models.ErrModelNotFound, domainID)
}

// defaultArtifact builds (once per scope) an adapted view of the
// packaged default model that reports the requested domain/niche.
// Callers receive a copy; the cached original stays private to the
// registry so UpdateUsage can fold counters into it under the lock.
func (r *Registry) defaultArtifact(domainID string, nicheID *string) *models.ModelArtifact {
	if r.defaultMeta == nil {
		return nil
	}

	key := domainID + ":general"
	if nicheID != nil {
		key = domainID + ":" + *nicheID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.defaultCache[key]; ok {
		view := *cached
		return &view
	}

	meta := r.defaultMeta
	now := time.Now().UTC()
	artifact := &models.ModelArtifact{
		ModelID:          fmt.Sprintf("%s-%s", meta.ModelID, domainID),
		Name:             fmt.Sprintf("BookGen Default (%s)", displayName(domainID)),
		Version:          "1.0.0",
		DomainID:         domainID,
		DomainName:       displayName(domainID),
		NicheID:          nicheID,
		BaseModel:        meta.BaseModel,
		TrainingJobID:    meta.ModelID,
		TrainingExamples: meta.Training.Examples,
		TrainingEpochs:   meta.Training.Epochs,
		FinalLoss:        meta.Metrics.TrainingLoss,
		ValidationLoss:   meta.Metrics.EvalLoss,
		ModelPath:        r.defaultPath,
		TokenizerPath:    r.defaultPath,
		IsActive:         true,
		IsDefault:        true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	r.defaultCache[key] = artifact
	view := *artifact
	return &view
}

// UpdateUsage records one generation against an artifact: it bumps the
// counter and folds the timing into a bounded rolling average. Unknown
// model ids are tolerated as a no-op to ride out races with
// deactivation; the packaged default (not a catalog row) keeps its
// counters on the cached artifact only.
func (r *Registry) UpdateUsage(modelID string, generationTime time.Duration) {
	r.mu.Lock()
	window, ok := r.usage[modelID]
	if !ok {
		window = newUsageWindow(usageWindowSize)
		r.usage[modelID] = window
	}
	window.add(generationTime.Seconds())
	count := window.count
	avg := window.average()

	now := time.Now().UTC()
	for _, cached := range r.defaultCache {
		if cached.ModelID == modelID {
			cached.GenerationCount = count
			cached.AvgGenerationTime = avg
			cached.LastUsed = &now
			r.mu.Unlock()
			return
		}
	}
	r.mu.Unlock()

	matched, err := r.artifacts.UpdateUsage(modelID, count, avg, now)
	if err != nil {
		r.logger.Error("Failed to persist usage stats", zap.String("model_id", modelID), zap.Error(err))
		return
	}
	if matched == 0 {
		r.logger.Debug("Usage update for unknown artifact ignored", zap.String("model_id", modelID))
	}
}

// GetArtifact retrieves a cataloged artifact by id.
func (r *Registry) GetArtifact(modelID string) (*models.ModelArtifact, error) {
	return r.artifacts.GetArtifact(modelID)
}

// ListArtifacts lists active artifacts, optionally by domain.
func (r *Registry) ListArtifacts(domainID *string) ([]*models.ModelArtifact, error) {
	return r.artifacts.ListArtifacts(domainID)
}

// DeactivateArtifact soft-deactivates an artifact.
func (r *Registry) DeactivateArtifact(modelID string) error {
	return r.artifacts.DeactivateArtifact(modelID)
}

func displayName(domainID string) string {
	parts := strings.Split(strings.ReplaceAll(domainID, "_", " "), " ")
	for i, p := range parts {
		if p == "" {
			continue
		}
		runes := []rune(p)
		runes[0] = unicode.ToUpper(runes[0])
		parts[i] = string(runes)
	}
	return strings.Join(parts, " ")
}

// usageWindow keeps the last n generation timings for the rolling
// average and the lifetime count.
type usageWindow struct {
	samples []float64
	next    int
	filled  bool
	count   int64
}

func newUsageWindow(size int) *usageWindow {
	return &usageWindow{samples: make([]float64, size)}
}

func (w *usageWindow) add(seconds float64) {
	w.samples[w.next] = seconds
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.filled = true
	}
	w.count++
}

func (w *usageWindow) average() float64 {
	n := w.next
	if w.filled {
		n = len(w.samples)
	}
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += w.samples[i]
	}
	return sum / float64(n)
}
