package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"nutrition-planner/internal/catalog"
	"nutrition-planner/internal/metrics"
	"nutrition-planner/internal/planner"
	"nutrition-planner/internal/storage"
	"nutrition-planner/internal/validation"
)

const maxBodyBytes = 64 << 10

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type planResponse struct {
	Success      bool                 `json:"success"`
	Source       planner.Source       `json:"source"`
	ModelVersion int                  `json:"model_version"`
	Plans        []planner.RankedPlan `json:"plans"`
}

type planErrorResponse struct {
	Success  bool               `json:"success"`
	Error    string             `json:"error"`
	Fallback catalog.PlanRecord `json:"fallback"`
}

type selectionResponse struct {
	Success      bool   `json:"success"`
	Saved        bool   `json:"saved"`
	Retrained    bool   `json:"retrained"`
	ModelVersion int    `json:"model_version"`
	Error        string `json:"error,omitempty"`
}

type healthResponse struct {
	planner.Health
	System metrics.SysHealth `json:"system"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error().Interface("panic", rec).Msg("recovered from panic in /plan")
			s.writePlanFailure(w)
		}
	}()

	var req planner.Request
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	rec, err := s.planner.Recommend(r.Context(), req)
	if err != nil {
		if validation.IsValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("recommendation failed")
		s.writePlanFailure(w)
		return
	}

	writeJSON(w, http.StatusOK, planResponse{
		Success:      true,
		Source:       rec.Source,
		ModelVersion: rec.ModelVersion,
		Plans:        rec.Plans,
	})
}

func (s *Server) writePlanFailure(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, planErrorResponse{
		Success:  false,
		Error:    "failed to generate recommendations",
		Fallback: s.planner.DefaultPlan(),
	})
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	var sel planner.Selection
	if err := decode(w, r, &sel); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := s.planner.Select(r.Context(), sel)
	switch {
	case err == nil:
	case validation.IsValidationError(err), errors.Is(err, catalog.ErrUnknownPlanID):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, planner.ErrTrainingFailed) && res != nil && res.Saved:
		writeJSON(w, http.StatusInternalServerError, selectionResponse{
			Saved: true,
			Error: "Selection saved but model update failed",
		})
		return
	default:
		s.logger.Error().Err(err).Msg("selection failed")
		writeJSON(w, http.StatusInternalServerError, selectionResponse{
			Error: "failed to save selection",
		})
		return
	}

	version := res.ModelVersion
	if !res.Retrained {
		version = s.planner.Health().ModelVersion
	}
	writeJSON(w, http.StatusOK, selectionResponse{
		Success:      true,
		Saved:        true,
		Retrained:    res.Retrained,
		ModelVersion: version,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Health: s.planner.Health(),
		System: metrics.GetSysHealth(s.opts.ModelDir),
	})
}

func (s *Server) handleRetrain(w http.ResponseWriter, r *http.Request) {
	m, err := s.planner.Retrain(r.Context(), planner.TriggerAdmin)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "manifest": m})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.planner.Reload(r.Context()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrNoArtifacts) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "model_version": s.planner.Health().ModelVersion})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.opts.Runs == nil {
		writeError(w, http.StatusNotFound, "run history is not enabled")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	runs, err := s.opts.Runs.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list training runs")
		writeError(w, http.StatusInternalServerError, "failed to list training runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "runs": runs})
}
