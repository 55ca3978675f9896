package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"kado/config"
	"kado/core"
	"kado/processors"
)

// Allowed upload formats and the maximum clip length.
var allowedExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".webm": true,
}

const maxDurationSeconds = 300.0

const maxUploadBytes = 256 << 20

// Server holds the loaded configuration and exposes the HTTP surface.
type Server struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Routes registers the service endpoints on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/analyze", s.analyzeHandler)
	mux.HandleFunc("/health", s.healthHandler)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// analyzeHandler accepts a multipart video upload, runs the analysis
// pipeline and returns the deduplicated failure events.
func (s *Server) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing file field 'file'"})
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no filename provided"})
		return
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("unsupported format %q; allowed: .mp4, .mov, .webm", ext),
		})
		return
	}

	// Resolve providers before touching the upload so a deployment gap
	// fails fast with 501 instead of a late pipeline error.
	pipeline, err := processors.NewPipeline(s.cfg)
	if err != nil {
		var notConfigured config.NotConfiguredError
		if errors.As(err, &notConfigured) {
			writeJSON(w, http.StatusNotImplemented, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	tmpPath := filepath.Join(os.TempDir(), "kado-upload-"+core.NewID()+ext)
	out, err := os.Create(tmpPath)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("save upload: %v", err)})
		return
	}
	_, copyErr := io.Copy(out, file)
	out.Close()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			log.Printf("Failed to clean up temp upload %s: %v", tmpPath, err)
		}
	}()
	if copyErr != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("save upload: %v", copyErr)})
		return
	}

	// Fixture transcription never reads the file, so skip the probe
	// when mock data is in play.
	if !pipeline.SkipAudio {
		duration, err := core.ProbeDuration(tmpPath)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("cannot read video metadata: %v", err)})
			return
		}
		if duration > maxDurationSeconds {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("video is %.0fs, max allowed is %.0fs", duration, maxDurationSeconds),
			})
			return
		}
		log.Printf("Starting pipeline for %s (%.1fs)", header.Filename, duration)
	} else {
		log.Printf("Starting pipeline for %s (mock transcription)", header.Filename)
	}

	failures, debug, err := pipeline.Run(tmpPath)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("analysis failed: %v", err)})
		return
	}

	resp := core.AnalyzeResponse{Failures: failures, Mode: "real"}
	if s.cfg.MockMode {
		resp.Mode = "mock"
	}
	if s.cfg.Debug {
		resp.Debug = debug
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "write json error: %v", err)
	}
}
