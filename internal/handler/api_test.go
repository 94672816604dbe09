package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/BadrRibzat/bookgen-ai/internal/importer"
	"github.com/BadrRibzat/bookgen-ai/internal/models"
	"github.com/BadrRibzat/bookgen-ai/internal/repository"
)

func newTestRouter(t *testing.T) (*gin.Engine, *importer.Importer) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	db, err := repository.NewSQLiteDB(":memory:", logger)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	examples := repository.NewExampleRepository(db, logger)
	imp := importer.NewImporter(examples, logger)
	h := NewHandler(imp, nil, nil, nil, examples, logger)

	r := gin.New()
	h.RegisterRoutes(r)
	return r, imp
}

func seedScope(t *testing.T, imp *importer.Importer, scope importer.Scope, n, offset int) {
	t.Helper()
	records := make([]models.RecordInput, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, models.RecordInput{
			Prompt: fmt.Sprintf("Outline chapter %d of a starter guide", offset+i),
			Completion: fmt.Sprintf("Chapter %d walks the reader through the first week step by step. "+
				"It opens with a short checklist, then expands each item into a daily routine "+
				"the reader can follow without any prior experience.", offset+i),
		})
	}
	if _, err := imp.Import(records, scope, nil); err != nil {
		t.Fatalf("seeding %s failed: %v", scope.DomainID, err)
	}
}

func TestExportJSON_WritesExamples(t *testing.T) {
	router, imp := newTestRouter(t)
	seedScope(t, imp, importer.Scope{DomainID: "cooking", DomainName: "Cooking"}, 3, 1)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/export/json", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Content-Disposition"); got != "attachment; filename=training_examples.json" {
		t.Errorf("content-disposition = %q", got)
	}

	var exported []models.TrainingExample
	if err := json.Unmarshal(w.Body.Bytes(), &exported); err != nil {
		t.Fatalf("export body is not valid JSON: %v", err)
	}
	if len(exported) != 3 {
		t.Errorf("exported %d examples, want 3", len(exported))
	}
}

func TestClearExamples_NicheQueryOnlyTouchesThatNiche(t *testing.T) {
	router, imp := newTestRouter(t)

	vegan := "vegan"
	veganName := "Vegan"
	seedScope(t, imp, importer.Scope{DomainID: "cooking", DomainName: "Cooking", NicheID: &vegan, NicheName: &veganName}, 2, 1)
	seedScope(t, imp, importer.Scope{DomainID: "cooking", DomainName: "Cooking"}, 3, 10)
	seedScope(t, imp, importer.Scope{DomainID: "nutrition", DomainName: "Nutrition"}, 2, 20)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/training-data?niche_id=vegan", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp.Deleted != 2 {
		t.Fatalf("deleted = %d, want only the 2 vegan examples", resp.Deleted)
	}

	stats, err := imp.GetDatasetStats("cooking", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalExamples != 3 {
		t.Errorf("cooking domain examples = %d, want 3", stats.TotalExamples)
	}
	if _, err := imp.GetDatasetStats("nutrition", nil); err != nil {
		t.Errorf("nutrition scope must survive a vegan-only clear: %v", err)
	}
}
