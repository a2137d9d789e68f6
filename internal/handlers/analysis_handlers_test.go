package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/jorgeLDmesa/pandas-ai-api/internal/analysis"
	"github.com/jorgeLDmesa/pandas-ai-api/internal/cost"
	"github.com/jorgeLDmesa/pandas-ai-api/internal/dataset"
	"github.com/jorgeLDmesa/pandas-ai-api/internal/models"
	"github.com/jorgeLDmesa/pandas-ai-api/internal/services"
	"github.com/jorgeLDmesa/pandas-ai-api/internal/storage"
)

const testAPIKey = "test-key"

type countingResolver struct {
	inner *dataset.Resolver
	calls int
}

func (r *countingResolver) Resolve(ctx context.Context, src dataset.Source) (*dataset.Dataset, error) {
	r.calls++
	return r.inner.Resolve(ctx, src)
}

// averageEngine answers every query with the mean of column A, or with a
// chart path when the query mentions "plot".
type averageEngine struct {
	chartDir string
	err      error
	calls    int
}

func (e *averageEngine) Chat(_ context.Context, ds *dataset.Dataset, query string) (*analysis.Answer, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	usage := cost.Usage{InputTokens: 500, OutputTokens: 80}
	if strings.Contains(strings.ToLower(query), "plot") {
		path := filepath.Join(e.chartDir, "chart_1.png")
		if err := os.WriteFile(path, []byte("\x89PNG"), 0644); err != nil {
			return nil, err
		}
		return &analysis.Answer{Value: path, Usage: usage}, nil
	}

	col, ok := ds.Column("A")
	if !ok {
		return nil, errors.New("column A not found")
	}
	sum := 0.0
	for i := 0; i < ds.Len(); i++ {
		v, _ := ds.Float(i, col)
		sum += v
	}
	return &analysis.Answer{Value: sum / float64(ds.Len()), Usage: usage}, nil
}

type bucketUploader struct {
	bucket string
}

func (u bucketUploader) UploadChart(_ context.Context, localPath string) (string, error) {
	return storage.PublicURL(u.bucket, storage.ObjectKey(localPath)), nil
}

type testEnv struct {
	router   *gin.Engine
	resolver *countingResolver
	engine   *averageEngine
}

func setupTestRouter(t *testing.T, client *http.Client) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	chartDir := t.TempDir()
	resolver := &countingResolver{inner: dataset.NewResolver(client, true)}
	engine := &averageEngine{chartDir: chartDir}
	service := services.NewAnalysisService(resolver, engine, bucketUploader{bucket: "my-bucket"}, services.Options{
		ChartDir: chartDir,
		Pricing:  cost.NewPricing(0.15, 0.60),
	}, zerolog.Nop())

	handler := NewAnalysisHandler(service, zerolog.Nop())
	router := SetupRouter(handler, RouterOptions{APIKey: testAPIKey, MaxUploadMB: 1}, zerolog.Nop())
	return &testEnv{router: router, resolver: resolver, engine: engine}
}

func workbookBase64(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	rows := [][]any{{"A", "B"}, {1, "x"}, {2, "y"}, {3, "z"}, {4, "w"}}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("Failed to write row: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("Failed to write workbook: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func formRequest(t *testing.T, fields url.Values, fileName string, file []byte, apiKey string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, values := range fields {
		for _, v := range values {
			writer.WriteField(key, v)
		}
	}
	if file != nil {
		part, err := writer.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		part.Write(file)
	}
	writer.Close()

	req := httptest.NewRequest("POST", "/analyze", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if apiKey != "" {
		req.Header.Set(APIKeyHeader, apiKey)
	}
	return req
}

func decodeResults(t *testing.T, w *httptest.ResponseRecorder) []models.QueryResult {
	t.Helper()
	var results []models.QueryResult
	if err := json.Unmarshal(w.Body.Bytes(), &results); err != nil {
		t.Fatalf("Failed to parse JSON response: %v (body: %s)", err, w.Body.String())
	}
	return results
}

func decodeDetail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var response models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse JSON response: %v (body: %s)", err, w.Body.String())
	}
	return response.Detail
}

func TestHealth(t *testing.T) {
	env := setupTestRouter(t, nil)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != `{"status":"healthy"}` {
		t.Errorf("Unexpected body: %s", w.Body.String())
	}
}

func TestAnalyzeInvalidAPIKey(t *testing.T) {
	for name, key := range map[string]string{"wrong": "nope", "missing": ""} {
		t.Run(name, func(t *testing.T) {
			env := setupTestRouter(t, nil)
			fields := url.Values{"queries": {"What is the average of column A?"}, "base64_file": {workbookBase64(t)}}

			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, formRequest(t, fields, "", nil, key))

			if w.Code != http.StatusForbidden {
				t.Errorf("Expected status 403, got %d", w.Code)
			}
			if detail := decodeDetail(t, w); detail != "Could not validate API Key" {
				t.Errorf("Unexpected detail: %s", detail)
			}
			if env.resolver.calls != 0 {
				t.Error("Dataset must not be resolved for a rejected key")
			}
		})
	}
}

func TestAnalyzeBase64Text(t *testing.T) {
	env := setupTestRouter(t, nil)
	fields := url.Values{"queries": {"What is the average of column A?"}, "base64_file": {workbookBase64(t)}}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, formRequest(t, fields, "", nil, testAPIKey))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	want := []models.QueryResult{models.TextResult("What is the average of column A?", "2.5", "$0.000123")}
	if diff := cmp.Diff(want, decodeResults(t, w)); diff != "" {
		t.Errorf("Results mismatch (-want +got):\n%s", diff)
	}

	var raw []map[string]string
	json.Unmarshal(w.Body.Bytes(), &raw)
	if diff := cmp.Diff([]map[string]string{{
		"type":    "text",
		"content": "2.5",
		"query":   "What is the average of column A?",
		"cost":    "$0.000123",
	}}, raw); diff != "" {
		t.Errorf("Wire shape mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeFileUploadWithChart(t *testing.T) {
	env := setupTestRouter(t, nil)
	fields := url.Values{"queries": {"Average of A", "Plot A by B"}}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, formRequest(t, fields, "data.csv", []byte("A,B\n10,x\n20,y\n"), testAPIKey))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	want := []models.QueryResult{
		models.TextResult("Average of A", "15", "$0.000123"),
		models.GraphResult("Plot A by B", "https://my-bucket.s3.amazonaws.com/graficas/chart_1.png", "$0.000123"),
	}
	if diff := cmp.Diff(want, decodeResults(t, w)); diff != "" {
		t.Errorf("Results mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeNoSource(t *testing.T) {
	env := setupTestRouter(t, nil)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, formRequest(t, url.Values{"queries": {"q"}}, "", nil, testAPIKey))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if decodeDetail(t, w) == "" {
		t.Error("Error response should carry a detail")
	}
	if env.engine.calls != 0 {
		t.Error("Engine must not run without a dataset")
	}
}

func TestAnalyzeAmbiguousSource(t *testing.T) {
	env := setupTestRouter(t, nil)
	fields := url.Values{"queries": {"q"}, "base64_file": {workbookBase64(t)}}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, formRequest(t, fields, "data.csv", []byte("A\n1\n"), testAPIKey))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if env.engine.calls != 0 {
		t.Error("Engine must not run for an ambiguous request")
	}
}

func TestAnalyzeNoQueries(t *testing.T) {
	env := setupTestRouter(t, nil)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, formRequest(t, url.Values{"base64_file": {workbookBase64(t)}}, "", nil, testAPIKey))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestAnalyzeEngineFailure(t *testing.T) {
	env := setupTestRouter(t, nil)
	env.engine.err = errors.New("language model error: quota exceeded")
	fields := url.Values{"queries": {"q"}, "base64_file": {workbookBase64(t)}}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, formRequest(t, fields, "", nil, testAPIKey))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
	if detail := decodeDetail(t, w); detail != "language model error: quota exceeded" {
		t.Errorf("Unexpected detail: %s", detail)
	}
}

func TestAnalyzeJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("A,B\n3,x\n5,y\n"))
	}))
	defer server.Close()

	env := setupTestRouter(t, server.Client())
	body, _ := json.Marshal(models.AnalyzeRequest{
		Queries:      []string{"What is the average of column A?"},
		DataframeURL: server.URL + "/data.csv",
	})

	req := httptest.NewRequest("POST", "/analyze", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(APIKeyHeader, testAPIKey)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	results := decodeResults(t, w)
	if len(results) != 1 || results[0].Content != "4" {
		t.Errorf("Unexpected results: %+v", results)
	}
}

func TestAnalyzeBodyTooLarge(t *testing.T) {
	env := setupTestRouter(t, nil)
	big := bytes.Repeat([]byte("A\n1\n"), 1<<19)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, formRequest(t, url.Values{"queries": {"q"}}, "big.csv", big, testAPIKey))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if env.resolver.calls != 0 {
		t.Error("Oversized body must be rejected before resolving")
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := setupTestRouter(t, nil)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("Response should carry a request id")
	}

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("Expected propagated request id, got %q", got)
	}
}
