package appointment

import (
	"fmt"
	"time"

	"github.com/rdss/casework/internal/shared/errors"
	"github.com/rdss/casework/internal/shared/types"
)

// Status defines the status of an appointment
type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusConfirmed   Status = "confirmed"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusNoShow      Status = "no_show"
	StatusRescheduled Status = "rescheduled"
)

// Terminal reports whether the status permits no further transitions
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}

// Pending reports whether the appointment still occupies its slot. Only
// pending appointments participate in conflict detection.
func (s Status) Pending() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}

// AttendanceStatus records what happened to a closed-out appointment
type AttendanceStatus string

const (
	AttendanceAttended    AttendanceStatus = "attended"
	AttendanceNoShow      AttendanceStatus = "no_show"
	AttendanceCancelled   AttendanceStatus = "cancelled"
	AttendanceRescheduled AttendanceStatus = "rescheduled"
)

// Type defines the kind of contact an appointment represents
type Type string

const (
	TypePhoneConsultation   Type = "phone_consultation"
	TypeVideoCall           Type = "video_call"
	TypeOfficeVisit         Type = "office_visit"
	TypeHomeVisit           Type = "home_visit"
	TypeInitialAssessment   Type = "initial_assessment"
	TypeFollowUpAssessment  Type = "followup_assessment"
	TypeFamilyMeeting       Type = "family_meeting"
	TypeCrisisIntervention  Type = "crisis_intervention"
)

// defaultDurations maps each appointment type to its default length.
// Unknown types fall back to 60 minutes.
var defaultDurations = map[Type]int{
	TypePhoneConsultation:  30,
	TypeVideoCall:          45,
	TypeOfficeVisit:        60,
	TypeHomeVisit:          90,
	TypeInitialAssessment:  120,
	TypeFollowUpAssessment: 90,
	TypeFamilyMeeting:      90,
	TypeCrisisIntervention: 60,
}

// DefaultDuration returns the default duration in minutes for a type
func DefaultDuration(t Type) int {
	if d, ok := defaultDurations[t]; ok {
		return d
	}
	return 60
}

// TimeOfDay is a wall-clock time in "HH:MM" form, minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses an "HH:MM" string
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var t TimeOfDay
	if len(s) != 5 || s[2] != ':' {
		return t, errors.Validation(errors.CodeInvalidTime,
			fmt.Sprintf("time must be in HH:MM format, got %q", s))
	}

	n, err := fmt.Sscanf(s, "%02d:%02d", &t.Hour, &t.Minute)
	if err != nil || n != 2 {
		return t, errors.Validation(errors.CodeInvalidTime,
			fmt.Sprintf("time must be in HH:MM format, got %q", s))
	}

	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return t, errors.Validation(errors.CodeInvalidTime,
			fmt.Sprintf("time %q is out of range", s))
	}

	return t, nil
}

// Minutes is the offset from midnight in minutes
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Appointment is a scheduled contact between a worker and a beneficiary
type Appointment struct {
	ID            types.ID `json:"id"`
	CaseID        types.ID `json:"case_id"`
	BeneficiaryID types.ID `json:"beneficiary_id"`
	AssigneeID    types.ID `json:"assignee_id"`

	Date            time.Time `json:"date"` // midnight UTC
	StartTime       string    `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Type            Type      `json:"appointment_type"`
	Status          Status    `json:"status"`

	Purpose  string `json:"purpose,omitempty"`
	Location string `json:"location,omitempty"`
	Notes    string `json:"notes,omitempty"`

	Outcome            string           `json:"outcome,omitempty"`
	AttendanceStatus   AttendanceStatus `json:"attendance_status,omitempty"`
	NoShowReason       string           `json:"no_show_reason,omitempty"`
	CancellationReason string           `json:"cancellation_reason,omitempty"`
	RescheduledToID    *types.ID        `json:"rescheduled_to_id,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Interval is the half-open slot [Start, End) the appointment occupies,
// in minutes from midnight.
func (a *Appointment) Interval() (start, end int, err error) {
	t, err := ParseTimeOfDay(a.StartTime)
	if err != nil {
		return 0, 0, err
	}
	return t.Minutes(), t.Minutes() + a.DurationMinutes, nil
}

// Overlaps reports whether two appointments occupy overlapping slots on the
// same date for the same assignee. Half-open intervals: touching endpoints
// do not overlap, and an appointment never overlaps itself.
func (a *Appointment) Overlaps(other *Appointment) bool {
	if a.ID == other.ID {
		return false
	}
	if a.AssigneeID != other.AssigneeID || !a.Date.Equal(other.Date) {
		return false
	}

	s1, e1, err := a.Interval()
	if err != nil {
		return false
	}
	s2, e2, err := other.Interval()
	if err != nil {
		return false
	}

	return s1 < e2 && s2 < e1
}
