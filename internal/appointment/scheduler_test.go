package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	casedomain "github.com/rdss/casework/internal/case/domain"
	"github.com/rdss/casework/internal/shared/clock"
	"github.com/rdss/casework/internal/shared/errors"
	"github.com/rdss/casework/internal/shared/types"
)

// --- In-memory fakes ---

type fakeCaseRepo struct {
	cases map[types.ID]*casedomain.Case
}

func newFakeCaseRepo() *fakeCaseRepo {
	return &fakeCaseRepo{cases: make(map[types.ID]*casedomain.Case)}
}

func (r *fakeCaseRepo) Save(_ context.Context, c *casedomain.Case) error {
	r.cases[c.ID] = c
	return nil
}

func (r *fakeCaseRepo) FindByID(_ context.Context, id types.ID) (*casedomain.Case, error) {
	c, ok := r.cases[id]
	if !ok {
		return nil, errors.NotFound("case", id.String())
	}
	return c, nil
}

func (r *fakeCaseRepo) Update(_ context.Context, c *casedomain.Case) error {
	r.cases[c.ID] = c
	return nil
}

func (r *fakeCaseRepo) List(_ context.Context, _ casedomain.ListFilter) ([]casedomain.Case, int, error) {
	return nil, 0, nil
}

func (r *fakeCaseRepo) OpenCases(_ context.Context) ([]casedomain.ComplianceView, error) {
	var views []casedomain.ComplianceView
	for _, c := range r.cases {
		if !c.Status.Terminal() {
			views = append(views, casedomain.ComplianceView{
				CaseID:          c.ID,
				BeneficiaryID:   c.BeneficiaryID,
				Title:           c.Title,
				PriorityCode:    c.PriorityCode,
				PrimaryWorkerID: c.PrimaryWorkerID,
				SupervisorID:    c.SupervisorID,
			})
		}
	}
	return views, nil
}

func (r *fakeCaseRepo) GetEvents(_ context.Context, _ types.ID, _, _ int) ([]casedomain.CaseEvent, error) {
	return nil, nil
}

type fakeApptRepo struct {
	appts map[types.ID]*Appointment
}

func newFakeApptRepo() *fakeApptRepo {
	return &fakeApptRepo{appts: make(map[types.ID]*Appointment)}
}

func (r *fakeApptRepo) Save(_ context.Context, a *Appointment) error {
	cp := *a
	r.appts[a.ID] = &cp
	return nil
}

func (r *fakeApptRepo) FindByID(_ context.Context, id types.ID) (*Appointment, error) {
	a, ok := r.appts[id]
	if !ok {
		return nil, errors.NotFound("appointment", id.String())
	}
	cp := *a
	return &cp, nil
}

func (r *fakeApptRepo) Update(_ context.Context, a *Appointment) error {
	if _, ok := r.appts[a.ID]; !ok {
		return errors.NotFound("appointment", a.ID.String())
	}
	cp := *a
	r.appts[a.ID] = &cp
	return nil
}

func (r *fakeApptRepo) List(_ context.Context, _ ListFilter) ([]Appointment, int, error) {
	return nil, 0, nil
}

func (r *fakeApptRepo) PendingForAssigneeOn(_ context.Context, assigneeID types.ID, date time.Time) ([]Appointment, error) {
	var out []Appointment
	for _, a := range r.appts {
		if a.AssigneeID == assigneeID && a.Date.Equal(date) && a.Status.Pending() {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *fakeApptRepo) LatestVisitOnOrBefore(_ context.Context, beneficiaryID types.ID, asOf time.Time) (*time.Time, error) {
	var latest *time.Time
	for _, a := range r.appts {
		if a.BeneficiaryID != beneficiaryID || a.Status == StatusCancelled || a.Status == StatusNoShow {
			continue
		}
		if a.Date.After(asOf) {
			continue
		}
		if latest == nil || a.Date.After(*latest) {
			d := a.Date
			latest = &d
		}
	}
	return latest, nil
}

func (r *fakeApptRepo) EarliestVisitAfter(_ context.Context, beneficiaryID types.ID, asOf time.Time) (*time.Time, error) {
	var earliest *time.Time
	for _, a := range r.appts {
		if a.BeneficiaryID != beneficiaryID || a.Status == StatusCancelled || a.Status == StatusNoShow {
			continue
		}
		if !a.Date.After(asOf) {
			continue
		}
		if earliest == nil || a.Date.Before(*earliest) {
			d := a.Date
			earliest = &d
		}
	}
	return earliest, nil
}

// --- Fixture ---

var schedNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T) (*Scheduler, *fakeCaseRepo, *fakeApptRepo, *casedomain.Case) {
	t.Helper()

	cases := newFakeCaseRepo()
	appts := newFakeApptRepo()

	c, err := casedomain.NewCase(types.NewID(), "Support case", "", "P3", types.NewID(), types.NewID(), schedNow)
	require.NoError(t, err)
	require.NoError(t, cases.Save(context.Background(), c))

	sched := NewScheduler(appts, cases, nil, clock.At(schedNow), zap.NewNop())
	return sched, cases, appts, c
}

// --- Tests ---

func TestScheduleDefaults(t *testing.T) {
	sched, _, _, c := newTestScheduler(t)

	result, err := sched.Schedule(context.Background(), ScheduleInput{
		CaseID:     c.ID,
		AssigneeID: types.NewID(),
		Date:       "2024-06-10",
		StartTime:  "10:00",
		Type:       TypeHomeVisit,
	}, types.NewID())
	require.NoError(t, err)

	appt := result.Appointment
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, 90, appt.DurationMinutes, "home visit should default to 90 minutes")
	assert.Equal(t, c.BeneficiaryID, appt.BeneficiaryID, "beneficiary should come from the case")
	assert.Empty(t, result.Conflicts)
}

func TestScheduleExplicitDurationWins(t *testing.T) {
	sched, _, _, c := newTestScheduler(t)

	result, err := sched.Schedule(context.Background(), ScheduleInput{
		CaseID:          c.ID,
		AssigneeID:      types.NewID(),
		Date:            "2024-06-10",
		StartTime:       "10:00",
		Type:            TypeHomeVisit,
		DurationMinutes: 45,
	}, types.NewID())
	require.NoError(t, err)
	assert.Equal(t, 45, result.Appointment.DurationMinutes)
}

func TestScheduleOnClosedCase(t *testing.T) {
	sched, cases, _, c := newTestScheduler(t)

	require.NoError(t, c.Transition(casedomain.CaseStatusClosed,
		casedomain.TransitionInput{ClosureReason: "Resolved"}, c.PrimaryWorkerID, schedNow))
	require.NoError(t, cases.Update(context.Background(), c))

	_, err := sched.Schedule(context.Background(), ScheduleInput{
		CaseID:     c.ID,
		AssigneeID: types.NewID(),
		Date:       "2024-06-10",
		StartTime:  "10:00",
		Type:       TypeOfficeVisit,
	}, types.NewID())

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeClosedCase))
}

func TestSchedulePastDate(t *testing.T) {
	sched, _, _, c := newTestScheduler(t)

	_, err := sched.Schedule(context.Background(), ScheduleInput{
		CaseID:     c.ID,
		AssigneeID: types.NewID(),
		Date:       "2024-05-31",
		StartTime:  "10:00",
		Type:       TypeOfficeVisit,
	}, types.NewID())

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodePastDate))

	// Today is fine
	_, err = sched.Schedule(context.Background(), ScheduleInput{
		CaseID:     c.ID,
		AssigneeID: types.NewID(),
		Date:       "2024-06-01",
		StartTime:  "10:00",
		Type:       TypeOfficeVisit,
	}, types.NewID())
	assert.NoError(t, err)
}

func TestScheduleConflictWarning(t *testing.T) {
	sched, _, _, c := newTestScheduler(t)
	assignee := types.NewID()

	first, err := sched.Schedule(context.Background(), ScheduleInput{
		CaseID:          c.ID,
		AssigneeID:      assignee,
		Date:            "2024-06-10",
		StartTime:       "14:30",
		Type:            TypeOfficeVisit,
		DurationMinutes: 60,
	}, types.NewID())
	require.NoError(t, err)
	require.Empty(t, first.Conflicts)

	// Overlapping slot for the same assignee: write succeeds, conflict
	// comes back as an advisory.
	second, err := sched.Schedule(context.Background(), ScheduleInput{
		CaseID:          c.ID,
		AssigneeID:      assignee,
		Date:            "2024-06-10",
		StartTime:       "14:00",
		Type:            TypeOfficeVisit,
		DurationMinutes: 60,
	}, types.NewID())
	require.NoError(t, err)
	require.Len(t, second.Conflicts, 1)
	assert.Equal(t, first.Appointment.ID, second.Conflicts[0].AppointmentID)

	// Touching boundary is not a conflict
	third, err := sched.Schedule(context.Background(), ScheduleInput{
		CaseID:          c.ID,
		AssigneeID:      assignee,
		Date:            "2024-06-10",
		StartTime:       "15:30",
		Type:            TypeOfficeVisit,
		DurationMinutes: 60,
	}, types.NewID())
	require.NoError(t, err)
	assert.Empty(t, third.Conflicts)
}

func TestConflictIgnoresNonPending(t *testing.T) {
	sched, _, appts, c := newTestScheduler(t)
	assignee := types.NewID()

	first, err := sched.Schedule(context.Background(), ScheduleInput{
		CaseID:     c.ID,
		AssigneeID: assignee,
		Date:       "2024-06-10",
		StartTime:  "10:00",
		Type:       TypeOfficeVisit,
	}, types.NewID())
	require.NoError(t, err)

	// Cancel the slot; it no longer participates in conflict checks
	_, err = sched.Transition(context.Background(), first.Appointment.ID, StatusCancelled,
		TransitionInput{CancellationReason: "Beneficiary request"}, types.NewID())
	require.NoError(t, err)

	second, err := sched.Schedule(context.Background(), ScheduleInput{
		CaseID:     c.ID,
		AssigneeID: assignee,
		Date:       "2024-06-10",
		StartTime:  "10:00",
		Type:       TypeOfficeVisit,
	}, types.NewID())
	require.NoError(t, err)
	assert.Empty(t, second.Conflicts)

	stored, err := appts.FindByID(context.Background(), first.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)
	assert.Equal(t, AttendanceCancelled, stored.AttendanceStatus)
}

func TestTransitionRequiredFields(t *testing.T) {
	tests := []struct {
		name     string
		status   Status
		input    TransitionInput
		wantCode string
	}{
		{"Completed without outcome", StatusCompleted, TransitionInput{}, errors.CodeMissingOutcome},
		{"NoShow without reason", StatusNoShow, TransitionInput{}, errors.CodeMissingNoShowReason},
		{"Cancelled without reason", StatusCancelled, TransitionInput{}, errors.CodeMissingCancellationReason},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched, _, appts, c := newTestScheduler(t)

			result, err := sched.Schedule(context.Background(), ScheduleInput{
				CaseID:     c.ID,
				AssigneeID: types.NewID(),
				Date:       "2024-06-10",
				StartTime:  "10:00",
				Type:       TypeOfficeVisit,
			}, types.NewID())
			require.NoError(t, err)

			_, err = sched.Transition(context.Background(), result.Appointment.ID, tt.status, tt.input, types.NewID())
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.wantCode),
				"expected %s, got %s", tt.wantCode, errors.CodeOf(err))

			// Rejected transition leaves the appointment untouched
			stored, err := appts.FindByID(context.Background(), result.Appointment.ID)
			require.NoError(t, err)
			assert.Equal(t, StatusScheduled, stored.Status)
		})
	}
}

func TestTransitionCompleted(t *testing.T) {
	sched, _, _, c := newTestScheduler(t)

	result, err := sched.Schedule(context.Background(), ScheduleInput{
		CaseID:     c.ID,
		AssigneeID: types.NewID(),
		Date:       "2024-06-10",
		StartTime:  "10:00",
		Type:       TypeOfficeVisit,
	}, types.NewID())
	require.NoError(t, err)

	appt, err := sched.Transition(context.Background(), result.Appointment.ID, StatusConfirmed,
		TransitionInput{}, types.NewID())
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)

	appt, err = sched.Transition(context.Background(), appt.ID, StatusCompleted,
		TransitionInput{Outcome: "Beneficiary seen, plan reviewed"}, types.NewID())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, appt.Status)
	assert.Equal(t, AttendanceAttended, appt.AttendanceStatus, "attendance marker defaults to attended")

	// Terminal: no further transitions
	_, err = sched.Transition(context.Background(), appt.ID, StatusCancelled,
		TransitionInput{CancellationReason: "too late"}, types.NewID())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidTransition))
}

func TestReschedule(t *testing.T) {
	sched, _, appts, c := newTestScheduler(t)
	assignee := types.NewID()

	result, err := sched.Schedule(context.Background(), ScheduleInput{
		CaseID:          c.ID,
		AssigneeID:      assignee,
		Date:            "2024-06-10",
		StartTime:       "10:00",
		Type:            TypeHomeVisit,
		DurationMinutes: 90,
		Purpose:         "Quarterly home check",
	}, types.NewID())
	require.NoError(t, err)

	newResult, old, err := sched.Reschedule(context.Background(),
		result.Appointment.ID, "2024-06-17", "11:00", "Family unavailable", types.NewID())
	require.NoError(t, err)

	assert.Equal(t, StatusRescheduled, old.Status)
	assert.Equal(t, AttendanceRescheduled, old.AttendanceStatus)
	require.NotNil(t, old.RescheduledToID)
	assert.Equal(t, newResult.Appointment.ID, *old.RescheduledToID)
	assert.Contains(t, old.Notes, "Rescheduled: Family unavailable")

	replacement := newResult.Appointment
	assert.Equal(t, StatusScheduled, replacement.Status)
	assert.Equal(t, old.CaseID, replacement.CaseID)
	assert.Equal(t, assignee, replacement.AssigneeID)
	assert.Equal(t, 90, replacement.DurationMinutes)
	assert.Equal(t, "Quarterly home check", replacement.Purpose)
	assert.Equal(t, "11:00", replacement.StartTime)
	assert.Nil(t, replacement.RescheduledToID)

	// Both persisted
	stored, err := appts.FindByID(context.Background(), old.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRescheduled, stored.Status)

	_, err = appts.FindByID(context.Background(), replacement.ID)
	require.NoError(t, err)
}

func TestRescheduleTerminal(t *testing.T) {
	sched, _, _, c := newTestScheduler(t)

	result, err := sched.Schedule(context.Background(), ScheduleInput{
		CaseID:     c.ID,
		AssigneeID: types.NewID(),
		Date:       "2024-06-10",
		StartTime:  "10:00",
		Type:       TypeOfficeVisit,
	}, types.NewID())
	require.NoError(t, err)

	_, err = sched.Transition(context.Background(), result.Appointment.ID, StatusCompleted,
		TransitionInput{Outcome: "Done"}, types.NewID())
	require.NoError(t, err)

	_, _, err = sched.Reschedule(context.Background(), result.Appointment.ID,
		"2024-06-17", "11:00", "", types.NewID())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidTransition))
}
