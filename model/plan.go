package model

import (
	"time"

	"github.com/google/uuid"
)

// PlanStatus is the lifecycle state of a collection plan.
type PlanStatus string

const (
	PlanDraft      PlanStatus = "DRAFT"
	PlanProcessing PlanStatus = "PROCESSING"
	PlanOptimized  PlanStatus = "OPTIMIZED"
	PlanFailed     PlanStatus = "FAILED"
)

// planTransitions holds the legal edges of the plan state machine.
// OPTIMIZED is terminal; FAILED can be re-armed back to DRAFT for a
// retry.
var planTransitions = map[PlanStatus][]PlanStatus{
	PlanDraft:      {PlanProcessing},
	PlanProcessing: {PlanOptimized, PlanFailed},
	PlanOptimized:  {},
	PlanFailed:     {PlanDraft},
}

// CollectionPlan is the aggregate root of the planner: a sensing asset,
// the requirements to satisfy, an overall time range, and the optimized
// collection windows. Windows are kept pairwise non-overlapping and
// inside the plan range; ConfidenceScore is the mean of the windows'
// scores.
type CollectionPlan struct {
	ID           string         `json:"id"`
	SearchID     string         `json:"search_id"`
	Asset        *Asset         `json:"asset"`
	Requirements []*Requirement `json:"requirements"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      time.Time      `json:"end_time"`
	Status       PlanStatus     `json:"status"`
	// Windows are ordered by insertion; the orchestrator inserts them in
	// merged start-time order.
	Windows         []*CollectionWindow `json:"collection_windows"`
	ConfidenceScore float64             `json:"confidence_score"`
	// OptimizationParameters are forwarded to the oracle and may carry a
	// "weights" override for plan confidence scoring.
	OptimizationParameters map[string]any `json:"optimization_parameters,omitempty"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
}

// NewCollectionPlan constructs a DRAFT plan and validates it.
func NewCollectionPlan(searchID string, asset *Asset, requirements []*Requirement, start, end time.Time, params map[string]any) (*CollectionPlan, error) {
	now := time.Now().UTC()
	p := &CollectionPlan{
		ID:                     uuid.NewString(),
		SearchID:               searchID,
		Asset:                  asset,
		Requirements:           requirements,
		StartTime:              start,
		EndTime:                end,
		Status:                 PlanDraft,
		OptimizationParameters: params,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the plan and everything it aggregates.
func (p *CollectionPlan) Validate() error {
	if p.SearchID == "" {
		return Validationf("plan must reference a search")
	}
	if p.Asset == nil {
		return Validationf("plan must carry an asset")
	}
	if err := p.Asset.Validate(); err != nil {
		return err
	}
	for _, r := range p.Requirements {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	if !p.StartTime.Before(p.EndTime) {
		return Validationf("plan start time must be before end time")
	}
	if _, ok := planTransitions[p.Status]; !ok {
		return &InvalidStateError{State: string(p.Status)}
	}
	if p.ConfidenceScore < 0 || p.ConfidenceScore > 1 {
		return Validationf("plan confidence score %g must be between 0 and 1", p.ConfidenceScore)
	}
	for _, w := range p.Windows {
		if err := p.checkWindowFits(w); err != nil {
			return err
		}
	}
	return nil
}

// AddWindow validates and appends a window, keeping the plan invariants:
// the window must lie inside the plan range and must not overlap any
// existing window. On success the plan confidence is recomputed as the
// mean of all window scores and UpdatedAt is bumped.
func (p *CollectionPlan) AddWindow(w *CollectionWindow) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if err := p.checkWindowFits(w); err != nil {
		return err
	}
	for _, existing := range p.Windows {
		if w.Overlaps(existing) {
			return Validationf("collection windows cannot overlap")
		}
	}
	p.Windows = append(p.Windows, w)
	p.ConfidenceScore = meanConfidence(p.Windows)
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (p *CollectionPlan) checkWindowFits(w *CollectionWindow) error {
	if w.StartTime.Before(p.StartTime) || w.EndTime.After(p.EndTime) {
		return Validationf("collection window must be within plan time range")
	}
	return nil
}

// Transition moves the plan to the target status if the edge is legal,
// bumping UpdatedAt. Unknown targets fail with InvalidStateError, illegal
// edges with InvalidTransitionError.
func (p *CollectionPlan) Transition(to PlanStatus) error {
	if _, known := planTransitions[to]; !known {
		return &InvalidStateError{State: string(to)}
	}
	for _, next := range planTransitions[p.Status] {
		if next == to {
			p.Status = to
			p.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return &InvalidTransitionError{From: string(p.Status), To: string(to)}
}

// SetConfidence overwrites the plan confidence, clamping to [0,1].
func (p *CollectionPlan) SetConfidence(score float64) {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	p.ConfidenceScore = score
	p.UpdatedAt = time.Now().UTC()
}

func meanConfidence(windows []*CollectionWindow) float64 {
	if len(windows) == 0 {
		return 0
	}
	sum := 0.0
	for _, w := range windows {
		sum += w.ConfidenceScore
	}
	return sum / float64(len(windows))
}
