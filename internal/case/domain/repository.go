package domain

import (
	"context"

	"github.com/rdss/casework/internal/shared/types"
)

// Repository defines the interface for case persistence
type Repository interface {
	// Case operations
	Save(ctx context.Context, c *Case) error
	FindByID(ctx context.Context, id types.ID) (*Case, error)
	// Update persists the aggregate, failing with a conflict when the
	// stored version no longer matches (optimistic single-entity locking).
	Update(ctx context.Context, c *Case) error

	// Query operations
	List(ctx context.Context, filter ListFilter) ([]Case, int, error)
	// OpenCases returns the compliance view of every case whose status is
	// not terminal. Cases without a tier are included; the compliance
	// engine excludes them itself.
	OpenCases(ctx context.Context) ([]ComplianceView, error)

	// Timeline operations
	GetEvents(ctx context.Context, caseID types.ID, limit, offset int) ([]CaseEvent, error)
}

// ListFilter defines filters for listing cases
type ListFilter struct {
	Status        *CaseStatus `json:"status,omitempty"`
	RiskLevel     *RiskLevel  `json:"risk_level,omitempty"`
	PriorityCode  *string     `json:"priority_code,omitempty"`
	BeneficiaryID *types.ID   `json:"beneficiary_id,omitempty"`
	WorkerID      *types.ID   `json:"worker_id,omitempty"`
	Limit         int         `json:"limit,omitempty"`
	Offset        int         `json:"offset,omitempty"`
}

// ComplianceView is the slice of a case the compliance engine and the
// escalation dispatcher need; it avoids loading whole aggregates for the
// batch report.
type ComplianceView struct {
	CaseID          types.ID `json:"case_id"`
	BeneficiaryID   types.ID `json:"beneficiary_id"`
	Title           string   `json:"title"`
	PriorityCode    string   `json:"priority_code"`
	PrimaryWorkerID types.ID `json:"primary_worker_id"`
	SupervisorID    types.ID `json:"supervisor_id"`
}
