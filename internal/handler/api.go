package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/BadrRibzat/bookgen-ai/internal/generation"
	"github.com/BadrRibzat/bookgen-ai/internal/importer"
	"github.com/BadrRibzat/bookgen-ai/internal/models"
	"github.com/BadrRibzat/bookgen-ai/internal/registry"
	"github.com/BadrRibzat/bookgen-ai/internal/repository"
	"github.com/BadrRibzat/bookgen-ai/internal/trainer"
)

// Handler handles HTTP requests
type Handler struct {
	importer   *importer.Importer
	trainer    *trainer.Trainer
	registry   *registry.Registry
	generation *generation.Service
	examples   *repository.ExampleRepository
	logger     *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(imp *importer.Importer, tr *trainer.Trainer, reg *registry.Registry, gen *generation.Service, examples *repository.ExampleRepository, logger *zap.Logger) *Handler {
	return &Handler{
		importer:   imp,
		trainer:    tr,
		registry:   reg,
		generation: gen,
		examples:   examples,
		logger:     logger,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		// Training data
		api.POST("/training-data/import", h.ImportRecords)
		api.POST("/training-data/import-file", h.ImportFile)
		api.POST("/training-data/import-directory", h.ImportDirectory)
		api.POST("/training-data/examples", h.AddExample)
		api.GET("/training-data/examples", h.ListExamples)
		api.PUT("/training-data/examples/:id/validate", h.ValidateExample)
		api.GET("/training-data/stats", h.GetStats)
		api.GET("/training-data/domains", h.ListDomains)
		api.DELETE("/training-data", h.ClearExamples)
		api.GET("/export/json", h.ExportJSON)

		// Training jobs
		api.POST("/train", h.StartTraining)
		api.GET("/train/jobs", h.ListJobs)
		api.GET("/train/jobs/:id", h.GetJob)
		api.DELETE("/train/jobs/:id", h.CancelJob)

		// Models
		api.GET("/models", h.ListModels)
		api.DELETE("/models/:id", h.DeactivateModel)

		// Generation
		api.POST("/generate", h.Generate)
	}

	// Health check
	r.GET("/health", h.HealthCheck)
}

// ImportRecords handles inline batch import
func (h *Handler) ImportRecords(c *gin.Context) {
	var req models.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.importer.Import(req.Records, scopeFromImport(&req), nil)
	if err != nil {
		h.logger.Error("Import failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "import failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

type fileImportRequest struct {
	Path        string  `json:"path" binding:"required"`
	DomainID    string  `json:"domain_id" binding:"required"`
	DomainName  string  `json:"domain_name" binding:"required"`
	NicheID     *string `json:"niche_id,omitempty"`
	NicheName   *string `json:"niche_name,omitempty"`
	ContentType string  `json:"content_type"`
	Pattern     string  `json:"pattern,omitempty"`
}

func (r *fileImportRequest) scope() importer.Scope {
	return importer.Scope{
		DomainID:    r.DomainID,
		DomainName:  r.DomainName,
		NicheID:     r.NicheID,
		NicheName:   r.NicheName,
		ContentType: r.ContentType,
	}
}

// ImportFile imports a single JSON file from the server filesystem
func (h *Handler) ImportFile(c *gin.Context) {
	var req fileImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.importer.ImportFile(req.Path, req.scope())
	if err != nil {
		h.logger.Error("File import failed", zap.String("path", req.Path), zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// ImportDirectory imports every matching JSON file in a directory
func (h *Handler) ImportDirectory(c *gin.Context) {
	var req fileImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pattern := req.Pattern
	if pattern == "" {
		pattern = "*.json"
	}

	results, err := h.importer.ImportDirectory(req.Path, pattern, req.scope())
	if err != nil {
		h.logger.Error("Directory import failed", zap.String("dir", req.Path), zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"files": results, "total_files": len(results)})
}

type addExampleRequest struct {
	models.RecordInput
	DomainID    string  `json:"domain_id" binding:"required"`
	DomainName  string  `json:"domain_name" binding:"required"`
	NicheID     *string `json:"niche_id,omitempty"`
	NicheName   *string `json:"niche_name,omitempty"`
	ContentType string  `json:"content_type"`
}

// AddExample inserts one training example
func (h *Handler) AddExample(c *gin.Context) {
	var req addExampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	scope := importer.Scope{
		DomainID:    req.DomainID,
		DomainName:  req.DomainName,
		NicheID:     req.NicheID,
		NicheName:   req.NicheName,
		ContentType: req.ContentType,
	}

	example, err := h.importer.AddExample(req.RecordInput, scope)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, example)
}

// ListExamples returns stored examples, optionally filtered by domain
func (h *Handler) ListExamples(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 100)

	examples, err := h.examples.ListExamples(optionalQuery(c, "domain_id"), limit)
	if err != nil {
		h.logger.Error("Failed to list examples", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list examples"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"examples": examples, "total": len(examples)})
}

// ValidateExample marks one example as human-reviewed
func (h *Handler) ValidateExample(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid example id"})
		return
	}

	var body struct {
		Notes *string `json:"notes,omitempty"`
	}
	// Body is optional, bind errors just mean no notes
	_ = c.ShouldBindJSON(&body)

	if err := h.importer.ValidateExample(id, body.Notes); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "example not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "validated": true})
}

// GetStats returns dataset statistics for a (domain, niche) scope
func (h *Handler) GetStats(c *gin.Context) {
	domainID := c.Query("domain_id")
	if domainID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "domain_id is required"})
		return
	}

	stats, err := h.importer.GetDatasetStats(domainID, optionalQuery(c, "niche_id"))
	if err != nil {
		if errors.Is(err, models.ErrNoDataset) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no dataset for this scope"})
			return
		}
		h.logger.Error("Failed to get stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ListDomains returns every domain with nested niches
func (h *Handler) ListDomains(c *gin.Context) {
	domains, err := h.importer.ListDomains()
	if err != nil {
		h.logger.Error("Failed to list domains", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list domains"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"domains": domains, "total": len(domains)})
}

// ClearExamples deletes examples in a scope, or everything when no
// scope is given
func (h *Handler) ClearExamples(c *gin.Context) {
	deleted, err := h.importer.ClearExamples(optionalQuery(c, "domain_id"), optionalQuery(c, "niche_id"))
	if err != nil {
		h.logger.Error("Failed to clear examples", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear examples"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// ExportJSON exports training examples to JSON
func (h *Handler) ExportJSON(c *gin.Context) {
	examples, err := h.examples.ListExamples(optionalQuery(c, "domain_id"), 0)
	if err != nil {
		h.logger.Error("Failed to export JSON", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}

	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", "attachment; filename=training_examples.json")

	encoder := json.NewEncoder(c.Writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(examples); err != nil {
		h.logger.Error("Failed to write export", zap.Error(err))
	}
}

// StartTraining launches a fine-tuning job
func (h *Handler) StartTraining(c *gin.Context) {
	var req models.TrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID, err := h.trainer.StartJob(req)
	if err != nil {
		if errors.Is(err, models.ErrJobConflict) {
			c.JSON(http.StatusConflict, gin.H{
				"error":      "a training job is already running",
				"active_job": h.trainer.ActiveJobID(),
			})
			return
		}
		h.logger.Error("Failed to start training job", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start training job"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":  jobID,
		"status":  models.JobStatusPending,
		"message": "Training started. Check /api/v1/train/jobs/" + jobID + " for status",
	})
}

// ListJobs returns training jobs, newest first
func (h *Handler) ListJobs(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 50)

	jobs, err := h.trainer.ListJobs(optionalQuery(c, "domain_id"), limit)
	if err != nil {
		h.logger.Error("Failed to list jobs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": len(jobs)})
}

// GetJob returns one training job
func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.trainer.GetJob(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	c.JSON(http.StatusOK, job)
}

// CancelJob requests cancellation of a running job
func (h *Handler) CancelJob(c *gin.Context) {
	jobID := c.Param("id")

	if err := h.trainer.CancelJob(jobID); err != nil {
		switch {
		case errors.Is(err, models.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		case errors.Is(err, models.ErrJobNotRunning):
			c.JSON(http.StatusConflict, gin.H{"error": "job is not running"})
		default:
			h.logger.Error("Failed to cancel job", zap.String("job_id", jobID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel job"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"job_id": jobID, "status": "cancelling"})
}

// ListModels returns active model artifacts
func (h *Handler) ListModels(c *gin.Context) {
	artifacts, err := h.registry.ListArtifacts(optionalQuery(c, "domain_id"))
	if err != nil {
		h.logger.Error("Failed to list models", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list models"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"models": artifacts, "total": len(artifacts)})
}

// DeactivateModel soft-deletes a model artifact
func (h *Handler) DeactivateModel(c *gin.Context) {
	modelID := c.Param("id")

	if err := h.registry.DeactivateArtifact(modelID); err != nil {
		if errors.Is(err, models.ErrModelNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "model not found"})
			return
		}
		h.logger.Error("Failed to deactivate model", zap.String("model_id", modelID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to deactivate model"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"model_id": modelID, "is_active": false})
}

// Generate produces text for a prompt against the best model for the
// requested scope
func (h *Handler) Generate(c *gin.Context) {
	var req models.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.generation.Generate(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, models.ErrModelNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no model available for this domain"})
			return
		}
		h.logger.Error("Generation failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "generation failed"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HealthCheck returns service health
func (h *Handler) HealthCheck(c *gin.Context) {
	status := gin.H{
		"status":  "healthy",
		"service": "bookgen-llm",
		"version": "1.0.0",
	}
	if active := h.trainer.ActiveJobID(); active != "" {
		status["active_training_job"] = active
	}

	c.JSON(http.StatusOK, status)
}

func scopeFromImport(req *models.ImportRequest) importer.Scope {
	return importer.Scope{
		DomainID:    req.DomainID,
		DomainName:  req.DomainName,
		NicheID:     req.NicheID,
		NicheName:   req.NicheName,
		ContentType: req.ContentType,
	}
}

func optionalQuery(c *gin.Context, key string) *string {
	if v := c.Query(key); v != "" {
		return &v
	}
	return nil
}

func parseLimit(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return fallback
	}
	return limit
}
