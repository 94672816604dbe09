package runtime

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// GeminiRuntime serves generation through the Gemini API. It cannot
// fine-tune, so it is only useful behind the packaged default artifact
// on deployments without a local runtime sidecar.
type GeminiRuntime struct {
	client    *genai.Client
	modelName string
	logger    *zap.Logger
}

// NewGeminiRuntime creates a Gemini-backed generate-only runtime.
func NewGeminiRuntime(ctx context.Context, apiKey, modelName string, logger *zap.Logger) (*GeminiRuntime, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.0-flash-exp"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	logger.Info("Gemini runtime initialized", zap.String("model", modelName))

	return &GeminiRuntime{
		client:    client,
		modelName: modelName,
		logger:    logger,
	}, nil
}

// Train is not available on this runtime.
func (r *GeminiRuntime) Train(ctx context.Context, spec TrainSpec, onEpoch func(EpochProgress)) (*TrainResult, error) {
	return nil, ErrTrainingUnsupported
}

// Load returns a handle bound to the configured Gemini model. The
// artifact paths are ignored; the hosted model is the same either way.
func (r *GeminiRuntime) Load(ctx context.Context, modelPath, tokenizerPath string) (Handle, error) {
	return &geminiHandle{runtime: r}, nil
}

// Close releases the underlying API client.
func (r *GeminiRuntime) Close() error {
	return r.client.Close()
}

type geminiHandle struct {
	runtime *GeminiRuntime
}

func (h *geminiHandle) Generate(ctx context.Context, prompt string, params SamplingParams) ([]string, error) {
	model := h.runtime.client.GenerativeModel(h.runtime.modelName)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr[float32](float32(params.Temperature)),
		TopP:            genai.Ptr[float32](float32(params.TopP)),
		TopK:            genai.Ptr[int32](int32(params.TopK)),
		MaxOutputTokens: genai.Ptr[int32](int32(params.MaxLength)),
	}
	if params.NumReturnSequences > 1 {
		model.CandidateCount = genai.Ptr[int32](int32(params.NumReturnSequences))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("gemini API error: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from gemini")
	}

	var texts []string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		text := ""
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text += string(t)
			}
		}
		if text != "" {
			texts = append(texts, text)
		}
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("no text candidates in gemini response")
	}
	return texts, nil
}

func (h *geminiHandle) Close() error {
	return nil
}
