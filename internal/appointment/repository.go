package appointment

import (
	"context"
	"time"

	"github.com/rdss/casework/internal/shared/types"
)

// Repository defines the interface for appointment persistence
type Repository interface {
	Save(ctx context.Context, a *Appointment) error
	FindByID(ctx context.Context, id types.ID) (*Appointment, error)
	// Update persists the appointment, failing with a conflict when the
	// stored version no longer matches.
	Update(ctx context.Context, a *Appointment) error

	List(ctx context.Context, filter ListFilter) ([]Appointment, int, error)
	// PendingForAssigneeOn returns every pending (scheduled or confirmed)
	// appointment for an assignee on a date. Input for conflict detection.
	PendingForAssigneeOn(ctx context.Context, assigneeID types.ID, date time.Time) ([]Appointment, error)

	// LatestVisitOnOrBefore returns the most recent appointment date for a
	// beneficiary on or before asOf, excluding cancelled and no-show
	// appointments. Nil when the beneficiary has never been seen.
	LatestVisitOnOrBefore(ctx context.Context, beneficiaryID types.ID, asOf time.Time) (*time.Time, error)
	// EarliestVisitAfter returns the soonest appointment date strictly
	// after asOf with the same status exclusion. Nil when nothing is booked.
	EarliestVisitAfter(ctx context.Context, beneficiaryID types.ID, asOf time.Time) (*time.Time, error)
}

// ListFilter defines filters for listing appointments
type ListFilter struct {
	CaseID        *types.ID  `json:"case_id,omitempty"`
	BeneficiaryID *types.ID  `json:"beneficiary_id,omitempty"`
	AssigneeID    *types.ID  `json:"assignee_id,omitempty"`
	Status        *Status    `json:"status,omitempty"`
	DateFrom      *time.Time `json:"date_from,omitempty"`
	DateTo        *time.Time `json:"date_to,omitempty"`
	Limit         int        `json:"limit,omitempty"`
	Offset        int        `json:"offset,omitempty"`
}
