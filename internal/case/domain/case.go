package domain

import (
	"fmt"
	"time"

	"github.com/rdss/casework/internal/shared/clock"
	"github.com/rdss/casework/internal/shared/errors"
	"github.com/rdss/casework/internal/shared/types"
)

// Case is the aggregate root for a social-work case. All invariant checks
// run before any field is mutated, so a rejected transition leaves the
// aggregate untouched (atomic check-then-write).
type Case struct {
	ID               types.ID   `json:"id"`
	BeneficiaryID    types.ID   `json:"beneficiary_id"`
	Title            string     `json:"title"`
	PresentingIssues string     `json:"presenting_issues,omitempty"`
	PriorityCode     string     `json:"priority_code,omitempty"` // empty until triaged
	Status           CaseStatus `json:"status"`

	RiskLevel          RiskLevel `json:"risk_level"`
	RiskMitigationPlan string    `json:"risk_mitigation_plan,omitempty"`

	ServiceBudget *float64 `json:"service_budget,omitempty"`
	FundingSource string   `json:"funding_source,omitempty"`

	PrimaryWorkerID types.ID `json:"primary_worker_id"`
	SupervisorID    types.ID `json:"supervisor_id,omitempty"`

	OpenedDate     time.Time  `json:"opened_date"`
	ClosureDate    *time.Time `json:"closure_date,omitempty"`
	ClosureReason  string     `json:"closure_reason,omitempty"`
	ClosureSummary string     `json:"closure_summary,omitempty"`

	// Version guards single-entity optimistic locking.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Events []CaseEvent `json:"events,omitempty"`

	// Domain events pending publication (not persisted)
	domainEvents []Event
}

// NewCase opens a new case in the Open status. priorityCode may be empty
// for cases awaiting triage; when set it must already be validated against
// the tier registry by the caller.
func NewCase(beneficiaryID types.ID, title, presentingIssues, priorityCode string, primaryWorkerID, supervisorID types.ID, now time.Time) (*Case, error) {
	if beneficiaryID.IsZero() {
		return nil, errors.BadRequest("beneficiary is required")
	}
	if title == "" {
		return nil, errors.BadRequest("title is required")
	}
	if primaryWorkerID.IsZero() {
		return nil, errors.BadRequest("primary worker is required")
	}

	c := &Case{
		ID:               types.NewID(),
		BeneficiaryID:    beneficiaryID,
		Title:            title,
		PresentingIssues: presentingIssues,
		PriorityCode:     priorityCode,
		Status:           CaseStatusOpen,
		RiskLevel:        RiskLow,
		PrimaryWorkerID:  primaryWorkerID,
		SupervisorID:     supervisorID,
		OpenedDate:       clock.Midnight(now),
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	c.addEvent(CaseEventTypeOpened, primaryWorkerID, "Case opened", nil, now)

	return c, nil
}

// TransitionInput carries the optional fields a status transition may set.
type TransitionInput struct {
	ClosureReason  string `json:"closure_reason,omitempty"`
	ClosureSummary string `json:"closure_summary,omitempty"`
}

// Transition applies a status change, enforcing every case invariant before
// committing. Closed and Transferred are terminal.
func (c *Case) Transition(newStatus CaseStatus, in TransitionInput, actorID types.ID, now time.Time) error {
	if !newStatus.Valid() {
		return errors.Validation(errors.CodeInvalidTransition,
			fmt.Sprintf("unknown case status %q", newStatus))
	}
	if c.Status.Terminal() {
		return errors.Validation(errors.CodeInvalidTransition,
			fmt.Sprintf("case is %s; no further transitions permitted", c.Status))
	}
	if newStatus == c.Status {
		return errors.Validation(errors.CodeInvalidTransition,
			fmt.Sprintf("case is already %s", c.Status))
	}

	if newStatus == CaseStatusClosed && in.ClosureReason == "" {
		return errors.Validation(errors.CodeMissingClosureReason,
			"closure reason is required when closing a case")
	}

	oldStatus := c.Status
	c.Status = newStatus
	c.UpdatedAt = now

	switch newStatus {
	case CaseStatusClosed:
		d := clock.Midnight(now)
		c.ClosureDate = &d
		c.ClosureReason = in.ClosureReason
		c.ClosureSummary = in.ClosureSummary
		c.addEvent(CaseEventTypeClosed, actorID, in.ClosureReason, map[string]any{
			"old_status": oldStatus,
			"reason":     in.ClosureReason,
		}, now)
	case CaseStatusTransferred:
		// Recorded for the audit trail only; transfers do not escalate.
		// The receiving team owns the hand-off notice.
		c.addEvent(CaseEventTypeTransferred, actorID, "Case transferred", map[string]any{
			"old_status": oldStatus,
		}, now)
	default:
		// Moving among non-terminal states clears any stale closure fields.
		c.ClosureDate = nil
		c.ClosureReason = ""
		c.ClosureSummary = ""
		c.addEvent(CaseEventTypeStatusChanged, actorID, "Case status changed", map[string]any{
			"old_status": oldStatus,
			"new_status": newStatus,
		}, now)
	}

	return nil
}

// ChangePriority updates the tier pointer only. Past compliance results are
// not recomputed retroactively: the engine always evaluates the current
// tier at query time.
func (c *Case) ChangePriority(newCode string, actorID types.ID, now time.Time) error {
	if c.Status.Terminal() {
		return errors.Validation(errors.CodeInvalidTransition,
			fmt.Sprintf("cannot change priority of a %s case", c.Status))
	}

	oldCode := c.PriorityCode
	c.PriorityCode = newCode
	c.UpdatedAt = now

	c.addEvent(CaseEventTypePriorityChanged, actorID,
		fmt.Sprintf("Priority changed from %s to %s", emptyAsNone(oldCode), newCode),
		map[string]any{
			"old_priority": oldCode,
			"new_priority": newCode,
		}, now)

	return nil
}

// SetRisk updates the risk level. High and Critical require a non-empty
// mitigation plan.
func (c *Case) SetRisk(level RiskLevel, mitigationPlan string, actorID types.ID, now time.Time) error {
	if !level.Valid() {
		return errors.BadRequest(fmt.Sprintf("unknown risk level %q", level))
	}
	if c.Status.Terminal() {
		return errors.Validation(errors.CodeInvalidTransition,
			fmt.Sprintf("cannot change risk level of a %s case", c.Status))
	}

	if mitigationPlan == "" {
		mitigationPlan = c.RiskMitigationPlan
	}
	if level.RequiresMitigationPlan() && mitigationPlan == "" {
		return errors.Validation(errors.CodeMissingRiskPlan,
			"risk mitigation plan is required for high and critical risk cases")
	}

	oldLevel := c.RiskLevel
	c.RiskLevel = level
	c.RiskMitigationPlan = mitigationPlan
	c.UpdatedAt = now

	c.addEvent(CaseEventTypeRiskChanged, actorID,
		fmt.Sprintf("Risk level changed from %s to %s", oldLevel, level),
		map[string]any{
			"old_risk": oldLevel,
			"new_risk": level,
		}, now)

	return nil
}

// SetBudget records an authorized service budget. A positive budget
// requires a funding source.
func (c *Case) SetBudget(amount float64, fundingSource string, actorID types.ID, now time.Time) error {
	if amount < 0 {
		return errors.BadRequest("service budget cannot be negative")
	}
	if amount > 0 && fundingSource == "" {
		return errors.Validation(errors.CodeMissingFundingSource,
			"funding source is required when service budget is specified")
	}

	c.ServiceBudget = &amount
	c.FundingSource = fundingSource
	c.UpdatedAt = now

	c.addEvent(CaseEventTypeBudgetChanged, actorID, "Service budget updated", map[string]any{
		"budget":         amount,
		"funding_source": fundingSource,
	}, now)

	return nil
}

// Validate checks the cross-field invariants. Repositories call it before
// every write as a safety net behind the transition methods.
func (c *Case) Validate() error {
	closed := c.Status == CaseStatusClosed
	if closed != (c.ClosureDate != nil && c.ClosureReason != "") {
		return errors.Validation(errors.CodeInvalidTransition,
			"closure date and reason must be set exactly when the case is closed")
	}

	if c.RiskLevel.RequiresMitigationPlan() && c.RiskMitigationPlan == "" {
		return errors.Validation(errors.CodeMissingRiskPlan,
			"risk mitigation plan is required for high and critical risk cases")
	}

	if c.ServiceBudget != nil && *c.ServiceBudget > 0 && c.FundingSource == "" {
		return errors.Validation(errors.CodeMissingFundingSource,
			"funding source is required when service budget is specified")
	}

	return nil
}

// DurationDays is the number of days the case has been open as of asOf.
func (c *Case) DurationDays(asOf time.Time) int {
	end := clock.Midnight(asOf)
	if c.ClosureDate != nil {
		end = *c.ClosureDate
	}
	return int(end.Sub(c.OpenedDate).Hours() / 24)
}

// GetDomainEvents returns and clears domain events
func (c *Case) GetDomainEvents() []Event {
	events := c.domainEvents
	c.domainEvents = nil
	return events
}

func (c *Case) addEvent(eventType CaseEventType, actorID types.ID, description string, data map[string]any, now time.Time) {
	event := CaseEvent{
		ID:          types.NewID(),
		CaseID:      c.ID,
		Type:        eventType,
		ActorID:     actorID,
		Description: description,
		Data:        data,
		Timestamp:   now,
	}

	c.Events = append(c.Events, event)

	c.domainEvents = append(c.domainEvents, Event{
		Type:      string(eventType),
		CaseID:    c.ID,
		CaseEvent: event,
	})
}

func emptyAsNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
