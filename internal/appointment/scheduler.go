package appointment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	casedomain "github.com/rdss/casework/internal/case/domain"
	"github.com/rdss/casework/internal/shared/clock"
	"github.com/rdss/casework/internal/shared/errors"
	"github.com/rdss/casework/internal/shared/events"
	"github.com/rdss/casework/internal/shared/metrics"
	"github.com/rdss/casework/internal/shared/types"
)

// Scheduler owns appointment creation, state transitions and conflict
// detection. Conflicts are advisory: they are reported to the caller but
// never block the write.
type Scheduler struct {
	appts  Repository
	cases  casedomain.Repository
	bus    events.Publisher
	clock  clock.Clock
	logger *zap.Logger
}

// NewScheduler creates a new appointment scheduler
func NewScheduler(appts Repository, cases casedomain.Repository, bus events.Publisher, clk clock.Clock, logger *zap.Logger) *Scheduler {
	return &Scheduler{appts: appts, cases: cases, bus: bus, clock: clk, logger: logger}
}

// ScheduleInput carries the fields for a new appointment
type ScheduleInput struct {
	CaseID          types.ID `json:"case_id"`
	AssigneeID      types.ID `json:"assignee_id"`
	Date            string   `json:"date"` // YYYY-MM-DD
	StartTime       string   `json:"start_time"`
	Type            Type     `json:"appointment_type"`
	DurationMinutes int      `json:"duration_minutes,omitempty"` // 0 = type default
	Purpose         string   `json:"purpose,omitempty"`
	Location        string   `json:"location,omitempty"`
	Notes           string   `json:"notes,omitempty"`
}

// Conflict describes an existing pending appointment overlapping the slot
// of a newly scheduled one.
type Conflict struct {
	AppointmentID   types.ID `json:"appointment_id"`
	Type            Type     `json:"appointment_type"`
	StartTime       string   `json:"start_time"`
	DurationMinutes int      `json:"duration_minutes"`
}

// ScheduleResult is a created appointment plus any advisory conflicts
type ScheduleResult struct {
	Appointment *Appointment `json:"appointment"`
	Conflicts   []Conflict   `json:"conflicts,omitempty"`
}

// Schedule creates a new appointment in the Scheduled status. The slot is
// written even when it overlaps existing pending appointments; overlaps come
// back as advisory conflicts for the caller to resolve.
func (s *Scheduler) Schedule(ctx context.Context, in ScheduleInput, actorID types.ID) (*ScheduleResult, error) {
	if in.AssigneeID.IsZero() {
		return nil, errors.BadRequest("assignee is required")
	}

	c, err := s.cases.FindByID(ctx, in.CaseID)
	if err != nil {
		return nil, err
	}
	if c.Status.Terminal() {
		return nil, errors.Validation(errors.CodeClosedCase,
			fmt.Sprintf("cannot create appointment for %s case", c.Status))
	}

	date, err := parseDate(in.Date)
	if err != nil {
		return nil, err
	}
	if date.Before(s.clock.Today()) {
		return nil, errors.Validation(errors.CodePastDate,
			"cannot schedule appointment in the past")
	}

	if _, err := ParseTimeOfDay(in.StartTime); err != nil {
		return nil, err
	}

	duration := in.DurationMinutes
	if duration == 0 {
		duration = DefaultDuration(in.Type)
	}
	if duration < 0 {
		return nil, errors.BadRequest("duration cannot be negative")
	}

	now := s.clock.Now()
	appt := &Appointment{
		ID:              types.NewID(),
		CaseID:          c.ID,
		BeneficiaryID:   c.BeneficiaryID,
		AssigneeID:      in.AssigneeID,
		Date:            date,
		StartTime:       in.StartTime,
		DurationMinutes: duration,
		Type:            in.Type,
		Status:          StatusScheduled,
		Purpose:         in.Purpose,
		Location:        in.Location,
		Notes:           in.Notes,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.appts.Save(ctx, appt); err != nil {
		return nil, err
	}

	conflicts, err := s.detectConflicts(ctx, appt)
	if err != nil {
		// The appointment is already written; a failed conflict scan only
		// costs the advisory.
		s.logger.Warn("conflict detection failed",
			zap.String("appointment_id", appt.ID.String()), zap.Error(err))
		conflicts = nil
	}

	metrics.RecordAppointmentScheduled(string(appt.Type))
	if len(conflicts) > 0 {
		metrics.RecordAppointmentConflict()
	}

	s.publish(ctx, events.TypeAppointmentScheduled, appt, actorID, map[string]any{
		"appointment_type": appt.Type,
		"date":             in.Date,
		"start_time":       appt.StartTime,
		"conflicts":        len(conflicts),
	})

	return &ScheduleResult{Appointment: appt, Conflicts: conflicts}, nil
}

// TransitionInput carries the per-status fields a transition may require
type TransitionInput struct {
	Outcome            string           `json:"outcome,omitempty"`
	AttendanceStatus   AttendanceStatus `json:"attendance_status,omitempty"`
	NoShowReason       string           `json:"no_show_reason,omitempty"`
	CancellationReason string           `json:"cancellation_reason,omitempty"`
}

// Transition applies a status change to an appointment, enforcing the
// per-status required fields before any mutation.
func (s *Scheduler) Transition(ctx context.Context, id types.ID, newStatus Status, in TransitionInput, actorID types.ID) (*Appointment, error) {
	appt, err := s.appts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !newStatus.Valid() {
		return nil, errors.Validation(errors.CodeInvalidTransition,
			fmt.Sprintf("unknown appointment status %q", newStatus))
	}
	if appt.Status.Terminal() {
		return nil, errors.Validation(errors.CodeInvalidTransition,
			fmt.Sprintf("appointment is %s; no further transitions permitted", appt.Status))
	}
	if newStatus == appt.Status {
		return nil, errors.Validation(errors.CodeInvalidTransition,
			fmt.Sprintf("appointment is already %s", appt.Status))
	}

	switch newStatus {
	case StatusCompleted:
		if in.Outcome == "" {
			return nil, errors.Validation(errors.CodeMissingOutcome,
				"appointment outcome is required for completed appointments")
		}
		appt.Outcome = in.Outcome
		appt.AttendanceStatus = in.AttendanceStatus
		if appt.AttendanceStatus == "" {
			appt.AttendanceStatus = AttendanceAttended
		}
	case StatusNoShow:
		if in.NoShowReason == "" {
			return nil, errors.Validation(errors.CodeMissingNoShowReason,
				"no show reason is required")
		}
		appt.NoShowReason = in.NoShowReason
		appt.AttendanceStatus = AttendanceNoShow
	case StatusCancelled:
		if in.CancellationReason == "" {
			return nil, errors.Validation(errors.CodeMissingCancellationReason,
				"cancellation reason is required")
		}
		appt.CancellationReason = in.CancellationReason
		appt.AttendanceStatus = AttendanceCancelled
	case StatusRescheduled:
		// Direct transition leaves rescheduled_to_id unset; the link is
		// advisory. Reschedule sets it.
		appt.AttendanceStatus = AttendanceRescheduled
	}

	oldStatus := appt.Status
	appt.Status = newStatus
	appt.UpdatedAt = s.clock.Now()

	if err := s.appts.Update(ctx, appt); err != nil {
		return nil, err
	}

	metrics.RecordAppointmentStatusChange(string(newStatus))
	s.publish(ctx, events.TypeAppointmentTransition, appt, actorID, map[string]any{
		"old_status": oldStatus,
		"new_status": newStatus,
	})

	return appt, nil
}

// Reschedule creates a replacement appointment in the Scheduled status and
// marks the original Rescheduled, linking the two.
func (s *Scheduler) Reschedule(ctx context.Context, id types.ID, newDate, newTime, reason string, actorID types.ID) (*ScheduleResult, *Appointment, error) {
	old, err := s.appts.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if old.Status.Terminal() {
		return nil, nil, errors.Validation(errors.CodeInvalidTransition,
			fmt.Sprintf("appointment is %s; it cannot be rescheduled", old.Status))
	}

	notes := old.Notes
	if reason != "" {
		if notes != "" {
			notes += "\n\n"
		}
		notes += "Rescheduled: " + reason
	}

	result, err := s.Schedule(ctx, ScheduleInput{
		CaseID:          old.CaseID,
		AssigneeID:      old.AssigneeID,
		Date:            newDate,
		StartTime:       newTime,
		Type:            old.Type,
		DurationMinutes: old.DurationMinutes,
		Purpose:         old.Purpose,
		Location:        old.Location,
		Notes:           old.Notes,
	}, actorID)
	if err != nil {
		return nil, nil, err
	}

	old.Status = StatusRescheduled
	old.AttendanceStatus = AttendanceRescheduled
	old.RescheduledToID = &result.Appointment.ID
	old.Notes = notes
	old.UpdatedAt = s.clock.Now()

	if err := s.appts.Update(ctx, old); err != nil {
		return nil, nil, err
	}

	metrics.RecordAppointmentStatusChange(string(StatusRescheduled))
	s.publish(ctx, events.TypeAppointmentRescheduled, old, actorID, map[string]any{
		"rescheduled_to": result.Appointment.ID,
		"new_date":       newDate,
		"new_time":       newTime,
	})

	return result, old, nil
}

// Get returns a single appointment
func (s *Scheduler) Get(ctx context.Context, id types.ID) (*Appointment, error) {
	return s.appts.FindByID(ctx, id)
}

// List returns appointments matching a filter
func (s *Scheduler) List(ctx context.Context, filter ListFilter) ([]Appointment, int, error) {
	return s.appts.List(ctx, filter)
}

// DetectConflicts reruns conflict detection for an existing appointment,
// used when a caller wants to re-check a slot before confirming it.
func (s *Scheduler) DetectConflicts(ctx context.Context, id types.ID) ([]Conflict, error) {
	appt, err := s.appts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detectConflicts(ctx, appt)
}

func (s *Scheduler) detectConflicts(ctx context.Context, appt *Appointment) ([]Conflict, error) {
	others, err := s.appts.PendingForAssigneeOn(ctx, appt.AssigneeID, appt.Date)
	if err != nil {
		return nil, err
	}

	var conflicts []Conflict
	for i := range others {
		if appt.Overlaps(&others[i]) {
			conflicts = append(conflicts, Conflict{
				AppointmentID:   others[i].ID,
				Type:            others[i].Type,
				StartTime:       others[i].StartTime,
				DurationMinutes: others[i].DurationMinutes,
			})
		}
	}

	return conflicts, nil
}

func (s *Scheduler) publish(ctx context.Context, eventType string, appt *Appointment, actorID types.ID, data map[string]any) {
	if s.bus == nil {
		return
	}

	data["appointment_id"] = appt.ID
	event := events.NewEvent(eventType, "appointment", data).
		WithCase(appt.CaseID, appt.BeneficiaryID, "").
		WithActor(actorID)

	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish appointment event",
			zap.String("type", eventType),
			zap.String("appointment_id", appt.ID.String()),
			zap.Error(err))
	}
}

func parseDate(s string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, errors.BadRequest(
			fmt.Sprintf("date must be in YYYY-MM-DD format, got %q", s))
	}
	return d.UTC(), nil
}
