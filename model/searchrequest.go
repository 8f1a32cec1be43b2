package model

import (
	"time"

	"github.com/google/uuid"
)

// SearchStatus is the lifecycle state of a search request. The search
// entity lives upstream of planning; its state machine is kept here so
// the coordinator can reason about search ids it is handed.
type SearchStatus string

const (
	SearchDraft      SearchStatus = "draft"
	SearchSubmitted  SearchStatus = "submitted"
	SearchProcessing SearchStatus = "processing"
	SearchCompleted  SearchStatus = "completed"
	SearchArchived   SearchStatus = "archived"
	SearchDeleted    SearchStatus = "deleted"
)

// searchTransitions holds the legal edges of the search state machine.
// Deletion is reachable only from draft or archived.
var searchTransitions = map[SearchStatus][]SearchStatus{
	SearchDraft:      {SearchSubmitted, SearchDeleted},
	SearchSubmitted:  {SearchProcessing, SearchArchived},
	SearchProcessing: {SearchCompleted, SearchArchived},
	SearchCompleted:  {SearchArchived},
	SearchArchived:   {SearchDeleted},
	SearchDeleted:    {},
}

// SearchRequest is the upstream entity a collection plan is created for.
type SearchRequest struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Status     SearchStatus   `json:"status"`
	Parameters map[string]any `json:"parameters,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	ArchivedAt *time.Time     `json:"archived_at,omitempty"`
}

// NewSearchRequest constructs a draft search request.
func NewSearchRequest(userID string, params map[string]any) *SearchRequest {
	now := time.Now().UTC()
	return &SearchRequest{
		ID:         uuid.NewString(),
		UserID:     userID,
		Status:     SearchDraft,
		Parameters: params,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Transition moves the search along a legal edge, recording the archive
// timestamp when entering the archived state.
func (s *SearchRequest) Transition(to SearchStatus) error {
	if _, known := searchTransitions[to]; !known {
		return &InvalidStateError{State: string(to)}
	}
	for _, next := range searchTransitions[s.Status] {
		if next == to {
			s.Status = to
			now := time.Now().UTC()
			s.UpdatedAt = now
			if to == SearchArchived {
				s.ArchivedAt = &now
			}
			return nil
		}
	}
	return &InvalidTransitionError{From: string(s.Status), To: string(to)}
}
