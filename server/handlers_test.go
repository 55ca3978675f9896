package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kado/config"
	"kado/core"
)

func multipartUpload(t *testing.T, field, filename string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte("fake video content")); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func postAnalyze(t *testing.T, cfg *config.Config, field, filename string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, field, filename)
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	mux := http.NewServeMux()
	New(cfg).Routes(mux)
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	return body["error"]
}

func mockConfig() *config.Config {
	return &config.Config{MockMode: true, FixturesDir: "../fixtures"}
}

func TestHealth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux := http.NewServeMux()
	New(mockConfig()).Routes(mux)
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestAnalyzeRejectsNonPost(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/analyze", nil)
	rec := httptest.NewRecorder()
	mux := http.NewServeMux()
	New(mockConfig()).Routes(mux)
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestAnalyzeRejectsUnsupportedExtension(t *testing.T) {
	rec := postAnalyze(t, mockConfig(), "file", "notes.txt")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if msg := decodeError(t, rec); !strings.Contains(msg, ".txt") {
		t.Errorf("error %q should name the rejected extension", msg)
	}
}

func TestAnalyzeRejectsMissingFileField(t *testing.T) {
	rec := postAnalyze(t, mockConfig(), "video", "demo.mp4")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if msg := decodeError(t, rec); !strings.Contains(msg, "file") {
		t.Errorf("error %q should mention the expected field", msg)
	}
}

func TestAnalyzeReturns501WhenProviderUnconfigured(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.Config
		variable string
	}{
		{
			"openai key missing",
			config.Config{TranscribeProvider: "whisper", ExtractProvider: "openai"},
			"OPENAI_API_KEY",
		},
		{
			"gemini key missing",
			config.Config{TranscribeProvider: "mock", ExtractProvider: "gemini", FixturesDir: "../fixtures"},
			"GEMINI_API_KEY",
		},
		{
			"whispercpp model missing",
			config.Config{TranscribeProvider: "whispercpp", ExtractProvider: "mock"},
			"WHISPERCPP_MODEL_PATH",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postAnalyze(t, &tt.cfg, "file", "demo.mp4")
			if rec.Code != http.StatusNotImplemented {
				t.Fatalf("status = %d, want 501: %s", rec.Code, rec.Body.String())
			}
			if msg := decodeError(t, rec); !strings.Contains(msg, tt.variable) {
				t.Errorf("error %q should name %s", msg, tt.variable)
			}
		})
	}
}

func TestAnalyzeMockModeEndToEnd(t *testing.T) {
	rec := postAnalyze(t, mockConfig(), "file", "demo.mp4")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp core.AnalyzeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not an AnalyzeResponse: %v", err)
	}
	if resp.Mode != "mock" {
		t.Errorf("mode = %q, want mock", resp.Mode)
	}
	if resp.Debug != nil {
		t.Errorf("debug metadata should be absent when DEBUG is off, got %+v", resp.Debug)
	}
	if len(resp.Failures) == 0 {
		t.Fatal("expected fixture failures in mock mode")
	}
	for i, f := range resp.Failures {
		if f.Title == "" || f.Expected == "" || f.Actual == "" || f.Evidence == "" {
			t.Errorf("failure %d has empty fields: %+v", i, f)
		}
		if f.Confidence < 0 || f.Confidence > 1 {
			t.Errorf("failure %d confidence = %v, want within [0,1]", i, f.Confidence)
		}
	}
	for i := 1; i < len(resp.Failures); i++ {
		if resp.Failures[i].TimestampSeconds < resp.Failures[i-1].TimestampSeconds {
			t.Errorf("failures are not sorted by timestamp: %v", resp.Failures)
		}
	}
}

func TestAnalyzeDebugMode(t *testing.T) {
	cfg := mockConfig()
	cfg.Debug = true
	rec := postAnalyze(t, cfg, "file", "demo.mp4")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp core.AnalyzeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Debug == nil {
		t.Fatal("expected debug metadata when DEBUG is on")
	}
	if resp.Debug.NumSegments == 0 {
		t.Errorf("num_segments = 0, want the fixture segment count")
	}
	if resp.Debug.NumWindows != resp.Debug.NumCandidates {
		t.Errorf("one window per candidate expected, got %+v", resp.Debug)
	}

	// Debug metadata is observability only; the failure list must match
	// the non-debug run.
	plain := postAnalyze(t, mockConfig(), "file", "demo.mp4")
	var plainResp core.AnalyzeResponse
	if err := json.Unmarshal(plain.Body.Bytes(), &plainResp); err != nil {
		t.Fatal(err)
	}
	if len(plainResp.Failures) != len(resp.Failures) {
		t.Errorf("debug mode changed the result: %d vs %d failures", len(resp.Failures), len(plainResp.Failures))
	}
}
