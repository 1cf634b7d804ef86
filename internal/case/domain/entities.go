package domain

import (
	"time"

	"github.com/rdss/casework/internal/shared/types"
)

// CaseStatus defines the status of a case
type CaseStatus string

const (
	CaseStatusOpen        CaseStatus = "open"
	CaseStatusActive      CaseStatus = "active"
	CaseStatusUnderReview CaseStatus = "under_review"
	CaseStatusInProgress  CaseStatus = "in_progress"
	CaseStatusClosed      CaseStatus = "closed"
	CaseStatusTransferred CaseStatus = "transferred"
)

// Terminal reports whether the status permits no further transitions and
// blocks new appointments. Compliance history is retained for audit.
func (s CaseStatus) Terminal() bool {
	return s == CaseStatusClosed || s == CaseStatusTransferred
}

// Valid reports whether s is a known status
func (s CaseStatus) Valid() bool {
	switch s {
	case CaseStatusOpen, CaseStatusActive, CaseStatusUnderReview,
		CaseStatusInProgress, CaseStatusClosed, CaseStatusTransferred:
		return true
	}
	return false
}

// RiskLevel defines the assessed risk of a case
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RequiresMitigationPlan reports whether this level mandates a non-empty
// risk mitigation plan.
func (r RiskLevel) RequiresMitigationPlan() bool {
	return r == RiskHigh || r == RiskCritical
}

// Valid reports whether r is a known risk level
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskModerate, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// CaseEventType defines types of case timeline events
type CaseEventType string

const (
	CaseEventTypeOpened          CaseEventType = "opened"
	CaseEventTypeStatusChanged   CaseEventType = "status_changed"
	CaseEventTypePriorityChanged CaseEventType = "priority_changed"
	CaseEventTypeRiskChanged     CaseEventType = "risk_changed"
	CaseEventTypeBudgetChanged   CaseEventType = "budget_changed"
	CaseEventTypeClosed          CaseEventType = "closed"
	CaseEventTypeTransferred     CaseEventType = "transferred"
)

// CaseEvent is an entry in the append-only case timeline
type CaseEvent struct {
	ID          types.ID       `json:"id"`
	CaseID      types.ID       `json:"case_id"`
	Type        CaseEventType  `json:"type"`
	ActorID     types.ID       `json:"actor_id"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Event is a domain event pending publication to the bus
type Event struct {
	Type      string
	CaseID    types.ID
	CaseEvent CaseEvent
}
