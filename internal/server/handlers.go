package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KaramelBytes/retailmind-cli/internal/analysis"
	"github.com/KaramelBytes/retailmind-cli/internal/classifier"
	"github.com/KaramelBytes/retailmind-cli/internal/dataset"
	"github.com/KaramelBytes/retailmind-cli/internal/rag"
)

// AnalyzeRequest uploads one file as base64.
type AnalyzeRequest struct {
	FileData  string `json:"file_data"`
	FileName  string `json:"file_name"`
	DatasetID string `json:"dataset_id,omitempty"`
	Sheet     string `json:"sheet,omitempty"`
}

// AnalyzeResponse reports the analysis and what was indexed.
type AnalyzeResponse struct {
	Success        bool               `json:"success"`
	DatasetID      string             `json:"dataset_id"`
	Analysis       *analysis.Report   `json:"analysis"`
	Classification *classifier.Result `json:"classification"`
	Index          rag.IndexReport    `json:"index"`
	Message        string             `json:"message"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.FileData) == "" {
		s.respondError(w, http.StatusBadRequest, "file_data is required")
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.FileData)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file_data is not valid base64")
		return
	}
	opt := s.config.Load
	if req.Sheet != "" {
		opt.Sheet = req.Sheet
	}
	ds, err := dataset.LoadBytes(req.FileName, data, opt)
	if err != nil {
		status := http.StatusBadRequest
		msg := err.Error()
		if errors.Is(err, dataset.ErrUnsupported) {
			msg = "unsupported file format"
		}
		s.logger.Debug("load failed", zap.String("file", req.FileName), zap.Error(err))
		s.respondError(w, status, msg)
		return
	}
	id := strings.TrimSpace(req.DatasetID)
	if id == "" {
		id = uuid.NewString()
	}
	s.logger.Debug("analyze request",
		zap.String("dataset_id", id),
		zap.String("file", req.FileName),
		zap.Int("rows", ds.Rows),
		zap.Int("columns", len(ds.Columns)))
	out, err := s.svc.Ingest(r.Context(), id, ds)
	if err != nil {
		s.logger.Error("analysis failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, AnalyzeResponse{
		Success:        true,
		DatasetID:      id,
		Analysis:       out.Report,
		Classification: out.Roles,
		Index:          out.Index,
		Message:        "analysis completed",
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req rag.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.DatasetID) == "" {
		s.respondError(w, http.StatusBadRequest, "dataset_id is required")
		return
	}
	s.logger.Debug("query request", zap.String("dataset_id", req.DatasetID), zap.Int("top_k", req.TopK))
	s.respondJSON(w, http.StatusOK, s.svc.Ask(r.Context(), req))
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, ok := s.svc.Stats(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "dataset not found")
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete dataset request", zap.String("dataset_id", id))
	if !s.svc.Delete(id) {
		s.respondError(w, http.StatusNotFound, "dataset not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleRoles(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.svc.Classifier().Catalog())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]any{"success": false, "error": message})
}
