// Package api exposes the planning coordinator over HTTP JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/signalsfoundry/collection-planner/coordinator"
	"github.com/signalsfoundry/collection-planner/internal/logging"
	"github.com/signalsfoundry/collection-planner/model"
	"github.com/signalsfoundry/collection-planner/oracle"
	"github.com/signalsfoundry/collection-planner/orchestrator"
)

// Planner is the slice of the coordinator the HTTP surface drives.
type Planner interface {
	CreateCollectionPlan(ctx context.Context, searchID string, asset *model.Asset, requirements []*model.Requirement, start, end time.Time, params map[string]any) (*model.CollectionPlan, error)
	OptimizePlan(ctx context.Context, planID string) (*model.CollectionPlan, error)
	GetPlanStatus(planID string) (coordinator.StatusSummary, error)
	CancelOptimization(ctx context.Context, planID string) (bool, error)
}

// Server routes plan and optimization requests to a Planner.
type Server struct {
	planner Planner
	log     logging.Logger
	mux     *http.ServeMux
}

// Option customises a Server.
type Option func(*Server)

// WithLogger attaches a logger.
func WithLogger(log logging.Logger) Option {
	return func(s *Server) { s.log = log }
}

// NewServer builds the HTTP handler set over a planner.
func NewServer(planner Planner, opts ...Option) *Server {
	s := &Server{
		planner: planner,
		log:     logging.Noop(),
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mux.HandleFunc("POST /api/v1/plans", s.handleCreatePlan)
	s.mux.HandleFunc("GET /api/v1/plans/{plan_id}/status", s.handlePlanStatus)
	s.mux.HandleFunc("POST /api/v1/optimization/optimize", s.handleOptimize)
	s.mux.HandleFunc("GET /api/v1/optimization/status/{plan_id}", s.handlePlanStatus)
	s.mux.HandleFunc("DELETE /api/v1/optimization/cancel/{plan_id}", s.handleCancel)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// assetPayload is the wire form of an asset in a plan creation request.
type assetPayload struct {
	Name           string                `json:"name"`
	Type           model.AssetType       `json:"type"`
	MinSize        float64               `json:"min_size"`
	DetectionLimit float64               `json:"detection_limit"`
	Properties     model.AssetProperties `json:"properties"`
}

// requirementPayload is the wire form of a requirement; the asset id is
// filled in from the plan's asset after construction.
type requirementPayload struct {
	Parameter   model.ParameterKind `json:"parameter"`
	Value       float64             `json:"value"`
	Unit        string              `json:"unit"`
	StartTime   time.Time           `json:"start_time"`
	EndTime     time.Time           `json:"end_time"`
	Constraints map[string]any      `json:"constraints,omitempty"`
}

type createPlanRequest struct {
	SearchID               string               `json:"search_id"`
	Asset                  *assetPayload        `json:"asset"`
	Requirements           []requirementPayload `json:"requirements,omitempty"`
	StartTime              time.Time            `json:"start_time"`
	EndTime                time.Time            `json:"end_time"`
	OptimizationParameters map[string]any       `json:"optimization_parameters,omitempty"`
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(r, w, model.Validationf("invalid request body: %v", err))
		return
	}
	if req.Asset == nil {
		s.writeError(r, w, model.Validationf("plan must carry an asset"))
		return
	}

	asset, err := model.NewAsset(req.Asset.Name, req.Asset.Type, req.Asset.MinSize,
		req.Asset.DetectionLimit, req.Asset.Properties)
	if err != nil {
		s.writeError(r, w, err)
		return
	}

	requirements := make([]*model.Requirement, 0, len(req.Requirements))
	for _, rp := range req.Requirements {
		requirement, err := model.NewRequirement(asset.ID, rp.Parameter, rp.Value, rp.Unit,
			rp.StartTime, rp.EndTime, rp.Constraints)
		if err != nil {
			s.writeError(r, w, err)
			return
		}
		requirements = append(requirements, requirement)
	}

	plan, err := s.planner.CreateCollectionPlan(r.Context(), req.SearchID, asset, requirements,
		req.StartTime, req.EndTime, req.OptimizationParameters)
	if err != nil {
		s.writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

func (s *Server) handlePlanStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := s.planner.GetPlanStatus(r.PathValue("plan_id"))
	if err != nil {
		s.writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type optimizeRequest struct {
	PlanID string `json:"plan_id"`
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(r, w, model.Validationf("invalid request body: %v", err))
		return
	}
	if req.PlanID == "" {
		s.writeError(r, w, model.Validationf("plan_id is required"))
		return
	}
	plan, err := s.planner.OptimizePlan(r.Context(), req.PlanID)
	if err != nil {
		s.writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

type cancelResponse struct {
	PlanID    string `json:"plan_id"`
	Cancelled bool   `json:"cancelled"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	planID := r.PathValue("plan_id")
	cancelled, err := s.planner.CancelOptimization(r.Context(), planID)
	if err != nil {
		s.writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{PlanID: planID, Cancelled: cancelled})
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors onto HTTP status codes.
func (s *Server) writeError(r *http.Request, w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error(r.Context(), "request failed",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Err(err),
		)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusForError(err error) int {
	var (
		validation  *model.ValidationError
		notFound    *coordinator.NotFoundError
		oracleMiss  *oracle.NotFoundError
		unavailable *coordinator.ServiceUnavailableError
		timeout     *orchestrator.TimeoutError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound), errors.As(err, &oracleMiss):
		return http.StatusNotFound
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
