package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPRuntime drives a model-runtime sidecar over its HTTP API. The
// sidecar owns the torch-level training loop; this client submits runs
// and polls their epoch progress.
type HTTPRuntime struct {
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewHTTPRuntime creates a client for the runtime sidecar.
func NewHTTPRuntime(baseURL string, pollInterval time.Duration, logger *zap.Logger) *HTTPRuntime {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &HTTPRuntime{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		pollInterval: pollInterval,
		logger:       logger,
	}
}

type trainStartResponse struct {
	RunID string `json:"run_id"`
}

type trainStatusResponse struct {
	Status         string   `json:"status"`
	Epoch          int      `json:"epoch"`
	TotalEpochs    int      `json:"total_epochs"`
	TrainLoss      *float64 `json:"train_loss,omitempty"`
	EvalLoss       *float64 `json:"eval_loss,omitempty"`
	FinalLoss      *float64 `json:"final_loss,omitempty"`
	ValidationLoss *float64 `json:"validation_loss,omitempty"`
	ModelPath      string   `json:"model_path,omitempty"`
	TokenizerPath  string   `json:"tokenizer_path,omitempty"`
	Error          string   `json:"error,omitempty"`
}

type generateRequest struct {
	ModelPath     string         `json:"model_path"`
	TokenizerPath string         `json:"tokenizer_path"`
	Prompt        string         `json:"prompt"`
	Params        SamplingParams `json:"params"`
}

type generateResponse struct {
	Texts []string `json:"texts"`
}

// Train submits the run, then polls its status until it reaches a
// terminal state, reporting each completed epoch through onEpoch.
func (r *HTTPRuntime) Train(ctx context.Context, spec TrainSpec, onEpoch func(EpochProgress)) (*TrainResult, error) {
	var started trainStartResponse
	if err := r.post(ctx, "/api/v1/train", spec, &started); err != nil {
		return nil, fmt.Errorf("failed to start training run: %w", err)
	}
	if started.RunID == "" {
		return nil, fmt.Errorf("runtime returned empty run id")
	}

	r.logger.Info("Training run submitted", zap.String("run_id", started.RunID))

	lastEpoch := 0
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Best effort stop; the run is abandoned either way.
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = r.post(stopCtx, "/api/v1/train/"+started.RunID+"/stop", nil, nil)
			cancel()
			return nil, ctx.Err()
		case <-ticker.C:
		}

		var status trainStatusResponse
		if err := r.get(ctx, "/api/v1/train/"+started.RunID, &status); err != nil {
			return nil, fmt.Errorf("failed to poll training run: %w", err)
		}

		if status.Epoch > lastEpoch && onEpoch != nil {
			lastEpoch = status.Epoch
			onEpoch(EpochProgress{
				Epoch:       status.Epoch,
				TotalEpochs: status.TotalEpochs,
				TrainLoss:   status.TrainLoss,
				EvalLoss:    status.EvalLoss,
			})
		}

		switch status.Status {
		case "completed":
			return &TrainResult{
				FinalLoss:      status.FinalLoss,
				ValidationLoss: status.ValidationLoss,
				ModelPath:      status.ModelPath,
				TokenizerPath:  status.TokenizerPath,
			}, nil
		case "failed":
			return nil, fmt.Errorf("training run failed: %s", status.Error)
		}
	}
}

// Load returns a handle that generates through the sidecar using the
// given artifact paths. The sidecar caches weights on its side; the
// handle itself is cheap.
func (r *HTTPRuntime) Load(ctx context.Context, modelPath, tokenizerPath string) (Handle, error) {
	req := struct {
		ModelPath     string `json:"model_path"`
		TokenizerPath string `json:"tokenizer_path"`
	}{ModelPath: modelPath, TokenizerPath: tokenizerPath}

	if err := r.post(ctx, "/api/v1/models/load", req, nil); err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	return &httpHandle{runtime: r, modelPath: modelPath, tokenizerPath: tokenizerPath}, nil
}

type httpHandle struct {
	runtime       *HTTPRuntime
	modelPath     string
	tokenizerPath string
}

func (h *httpHandle) Generate(ctx context.Context, prompt string, params SamplingParams) ([]string, error) {
	req := generateRequest{
		ModelPath:     h.modelPath,
		TokenizerPath: h.tokenizerPath,
		Prompt:        prompt,
		Params:        params,
	}

	var resp generateResponse
	if err := h.runtime.post(ctx, "/api/v1/generate", req, &resp); err != nil {
		return nil, err
	}
	return resp.Texts, nil
}

func (h *httpHandle) Close() error {
	req := struct {
		ModelPath string `json:"model_path"`
	}{ModelPath: h.modelPath}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return h.runtime.post(ctx, "/api/v1/models/unload", req, nil)
}

func (r *HTTPRuntime) post(ctx context.Context, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return r.do(req, out)
}

func (r *HTTPRuntime) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", r.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return r.do(req, out)
}

func (r *HTTPRuntime) do(req *http.Request, out interface{}) error {
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("runtime returned status %d: %s", resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
