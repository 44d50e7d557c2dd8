package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen/internal/jobs"
	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// maxBodyBytes bounds POST /scrape bodies.
const maxBodyBytes = 64 << 10

const scrapeRequestSchema = `{
  "type": "object",
  "properties": {
    "category": {"type": "string", "minLength": 1},
    "region":   {"type": "string"},
    "state":    {"type": "string"},
    "country":  {"type": "string", "minLength": 1},
    "leads":    {"type": "integer"}
  },
  "required": ["category", "country"],
  "anyOf": [
    {"required": ["region"], "properties": {"region": {"minLength": 1}}},
    {"required": ["state"], "properties": {"state": {"minLength": 1}}}
  ]
}`

type scrapeRequest struct {
	Category string   `json:"category"`
	Region   string   `json:"region"`
	State    string   `json:"state"`
	Country  string   `json:"country"`
	// Leads is a float so integral values written as 5.0 decode; the schema
	// has already rejected fractions.
	Leads *float64 `json:"leads"`
}

type scrapeResponse struct {
	JobID string `json:"jobId"`
}

type statusResponse struct {
	Status      model.JobStatus         `json:"status"`
	Progress    int                     `json:"progress"`
	Message     string                  `json:"message"`
	ResultCount int                     `json:"resultCount"`
	Results     []model.ValidatedRecord `json:"results"`
	Error       string                  `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read request body")
		return
	}

	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}
	if !result.Valid() {
		writeError(w, http.StatusBadRequest, schemaMessage(result.Errors()))
		return
	}

	var req scrapeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.log.Warn("api: decode scrape request", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	q := model.ExtractionQuery{
		Category:   req.Category,
		Region:     req.Region,
		Country:    req.Country,
		MaxRecords: s.cfg.DefaultLeads,
	}
	if strings.TrimSpace(q.Region) == "" {
		q.Region = req.State
	}
	if req.Leads != nil {
		q.MaxRecords = leadCount(*req.Leads)
	}

	id, err := s.jobs.CreateJob(q)
	if errors.Is(err, jobs.ErrInvalidQuery) {
		writeError(w, http.StatusBadRequest, "category, region and country are required")
		return
	}
	if err != nil {
		s.log.Error("api: create job", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not start job")
		return
	}

	writeJSON(w, http.StatusOK, scrapeResponse{JobID: id})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetStatus(chi.URLParam(r, "jobId"))
	if errors.Is(err, jobs.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.log.Error("api: get status", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not read job")
		return
	}

	resp := statusResponse{
		Status:      job.Status,
		Progress:    job.Progress,
		Message:     job.Message,
		ResultCount: job.ResultCount,
		Results:     []model.ValidatedRecord{},
		Error:       job.Error,
	}
	if job.Status == model.JobStatusComplete {
		n := min(len(job.Results), s.cfg.PreviewLimit)
		resp.Results = job.Results[:n]
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobId")
	job, err := s.jobs.GetStatus(id)
	if errors.Is(err, jobs.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.log.Error("api: get status", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not read job")
		return
	}

	path, err := s.jobs.GetArtifact(id)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
		return
	case errors.Is(err, jobs.ErrNotReady):
		writeError(w, http.StatusBadRequest, fmt.Sprintf("job is %s, report not ready", job.Status))
		return
	case err != nil:
		s.log.Error("api: get artifact", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not read job")
		return
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		writeError(w, http.StatusNotFound, "report no longer available")
		return
	}
	if err != nil {
		s.log.Error("api: open report", zap.String("job_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not open report")
		return
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		s.log.Error("api: stat report", zap.String("job_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not open report")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.FileName(job.Query)))
	http.ServeContent(w, r, "", info.ModTime(), f)
}

// schemaMessage turns schema violations into one client-facing sentence.
func schemaMessage(errs []gojsonschema.ResultError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		switch e.Type() {
		case "number_any_of":
			msgs = append(msgs, "region or state is required")
		case "required":
			msgs = append(msgs, fmt.Sprintf("%v is required", e.Details()["property"]))
		default:
			msgs = append(msgs, e.String())
		}
	}
	return strings.Join(msgs, "; ")
}

// leadCount converts a schema-checked lead count to int, saturating values
// outside the int32 range. Clamping to the record bounds happens later.
func leadCount(f float64) int {
	return int(math.Max(math.MinInt32, math.Min(math.MaxInt32, f)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
