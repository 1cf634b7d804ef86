package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	casedomain "github.com/rdss/casework/internal/case/domain"
	"github.com/rdss/casework/internal/priority"
	"github.com/rdss/casework/internal/shared/types"
)

// --- In-memory fakes ---

type fakeCaseSource struct {
	views []casedomain.ComplianceView
}

func (f *fakeCaseSource) Save(context.Context, *casedomain.Case) error   { return nil }
func (f *fakeCaseSource) Update(context.Context, *casedomain.Case) error { return nil }
func (f *fakeCaseSource) FindByID(context.Context, types.ID) (*casedomain.Case, error) {
	return nil, nil
}
func (f *fakeCaseSource) List(context.Context, casedomain.ListFilter) ([]casedomain.Case, int, error) {
	return nil, 0, nil
}
func (f *fakeCaseSource) GetEvents(context.Context, types.ID, int, int) ([]casedomain.CaseEvent, error) {
	return nil, nil
}
func (f *fakeCaseSource) OpenCases(context.Context) ([]casedomain.ComplianceView, error) {
	return f.views, nil
}

type fakeVisitSource struct {
	// per-beneficiary visit dates, any order
	visits map[types.ID][]time.Time
}

func (f *fakeVisitSource) LatestVisitOnOrBefore(_ context.Context, beneficiaryID types.ID, asOf time.Time) (*time.Time, error) {
	var latest *time.Time
	for _, d := range f.visits[beneficiaryID] {
		if d.After(asOf) {
			continue
		}
		if latest == nil || d.After(*latest) {
			cp := d
			latest = &cp
		}
	}
	return latest, nil
}

func (f *fakeVisitSource) EarliestVisitAfter(_ context.Context, beneficiaryID types.ID, asOf time.Time) (*time.Time, error) {
	var earliest *time.Time
	for _, d := range f.visits[beneficiaryID] {
		if !d.After(asOf) {
			continue
		}
		if earliest == nil || d.Before(*earliest) {
			cp := d
			earliest = &cp
		}
	}
	return earliest, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func view(code string) casedomain.ComplianceView {
	return casedomain.ComplianceView{
		CaseID:          types.NewID(),
		BeneficiaryID:   types.NewID(),
		Title:           "Case " + code,
		PriorityCode:    code,
		PrimaryWorkerID: types.NewID(),
		SupervisorID:    types.NewID(),
	}
}

func newTestEngine(views []casedomain.ComplianceView, visits map[types.ID][]time.Time) *Engine {
	return NewEngine(
		&fakeCaseSource{views: views},
		priority.NewStaticRegistry(priority.DefaultTiers()),
		[]VisitSource{&fakeVisitSource{visits: visits}},
		zap.NewNop(),
	)
}

// --- Tests ---

func TestAddMonths(t *testing.T) {
	tests := []struct {
		name   string
		start  time.Time
		months int
		want   time.Time
	}{
		{"Plain addition", day(2024, 1, 10), 3, day(2024, 4, 10)},
		{"Year rollover", day(2024, 11, 15), 3, day(2025, 2, 15)},
		{"Clamp to Feb in leap year", day(2024, 1, 31), 1, day(2024, 2, 29)},
		{"Clamp to Feb in common year", day(2023, 1, 31), 1, day(2023, 2, 28)},
		{"Clamp to 30-day month", day(2024, 10, 31), 1, day(2024, 11, 30)},
		{"Twelve months", day(2024, 2, 29), 12, day(2025, 2, 28)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AddMonths(tt.start, tt.months)
			assert.True(t, got.Equal(tt.want), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestNeverContactedSentinel(t *testing.T) {
	v := view("P4")
	engine := newTestEngine([]casedomain.ComplianceView{v}, nil)

	report, err := engine.ComputeReport(context.Background(), day(2024, 5, 1))
	require.NoError(t, err)
	require.Len(t, report.Records, 1)

	rec := report.Records[0]
	assert.Equal(t, StatusOverdue, rec.Status)
	assert.Equal(t, NeverContactedDays, rec.DaysOverdue)
	assert.Nil(t, rec.LastVisitDate)
	assert.Nil(t, rec.DueDate)
}

func TestOverdueCadenceBreach(t *testing.T) {
	// P3 cadence is 3 months. Last visit 2024-01-10, asOf 2024-05-01:
	// due 2024-04-10, 21 days overdue.
	v := view("P3")
	engine := newTestEngine([]casedomain.ComplianceView{v}, map[types.ID][]time.Time{
		v.BeneficiaryID: {day(2024, 1, 10)},
	})

	report, err := engine.ComputeReport(context.Background(), day(2024, 5, 1))
	require.NoError(t, err)
	require.Len(t, report.Records, 1)

	rec := report.Records[0]
	assert.Equal(t, StatusOverdue, rec.Status)
	assert.Equal(t, 21, rec.DaysOverdue)
	require.NotNil(t, rec.DueDate)
	assert.True(t, rec.DueDate.Equal(day(2024, 4, 10)))
	assert.Equal(t, 1, report.OverdueCount)
}

func TestScheduledOverride(t *testing.T) {
	// Same breach as above, but a future appointment on 2024-05-20 sits
	// inside the cadence window (asOf + 3 months = 2024-08-01), so the
	// case is Scheduled, not Overdue.
	v := view("P3")
	engine := newTestEngine([]casedomain.ComplianceView{v}, map[types.ID][]time.Time{
		v.BeneficiaryID: {day(2024, 1, 10), day(2024, 5, 20)},
	})

	report, err := engine.ComputeReport(context.Background(), day(2024, 5, 1))
	require.NoError(t, err)
	require.Len(t, report.Records, 1)

	rec := report.Records[0]
	assert.Equal(t, StatusScheduled, rec.Status)
	assert.Equal(t, 0, rec.DaysOverdue)
	require.NotNil(t, rec.NextVisitDate)
	assert.True(t, rec.NextVisitDate.Equal(day(2024, 5, 20)))
}

func TestOverrideOutsideWindow(t *testing.T) {
	// A future appointment past the cadence window does not rescue an
	// overdue classification.
	v := view("P3")
	engine := newTestEngine([]casedomain.ComplianceView{v}, map[types.ID][]time.Time{
		v.BeneficiaryID: {day(2024, 1, 10), day(2024, 9, 1)},
	})

	report, err := engine.ComputeReport(context.Background(), day(2024, 5, 1))
	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	assert.Equal(t, StatusOverdue, report.Records[0].Status)
	assert.Equal(t, 21, report.Records[0].DaysOverdue)
}

func TestDueDateBoundaryIsCompliant(t *testing.T) {
	// asOf exactly on the due date is not yet overdue
	v := view("P3")
	engine := newTestEngine([]casedomain.ComplianceView{v}, map[types.ID][]time.Time{
		v.BeneficiaryID: {day(2024, 1, 10)},
	})

	report, err := engine.ComputeReport(context.Background(), day(2024, 4, 10))
	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	assert.Equal(t, StatusCompliant, report.Records[0].Status)
	assert.Equal(t, 0, report.Records[0].DaysOverdue)
}

func TestUntriagedCasesExcluded(t *testing.T) {
	untriaged := view("")
	triaged := view("P5")

	engine := newTestEngine([]casedomain.ComplianceView{untriaged, triaged}, map[types.ID][]time.Time{
		triaged.BeneficiaryID: {day(2024, 4, 1)},
	})

	report, err := engine.ComputeReport(context.Background(), day(2024, 5, 1))
	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	assert.Equal(t, triaged.CaseID, report.Records[0].CaseID)
}

func TestReportOrdering(t *testing.T) {
	asOf := day(2024, 6, 1)

	compliant := view("P5") // visited recently, 12-month cadence
	neverSeen := view("P1") // sentinel overdue
	overdue := view("P2")   // breached by a few weeks
	scheduled := view("P3") // overdue but future visit booked

	engine := newTestEngine(
		[]casedomain.ComplianceView{compliant, neverSeen, overdue, scheduled},
		map[types.ID][]time.Time{
			compliant.BeneficiaryID: {day(2024, 5, 1)},
			overdue.BeneficiaryID:   {day(2024, 4, 1)},
			scheduled.BeneficiaryID: {day(2024, 1, 1), day(2024, 6, 15)},
		},
	)

	report, err := engine.ComputeReport(context.Background(), asOf)
	require.NoError(t, err)
	require.Len(t, report.Records, 4)

	// Overdue precede Scheduled precede Compliant; within Overdue, days
	// overdue are non-increasing.
	assert.Equal(t, StatusOverdue, report.Records[0].Status)
	assert.Equal(t, StatusOverdue, report.Records[1].Status)
	assert.Equal(t, StatusScheduled, report.Records[2].Status)
	assert.Equal(t, StatusCompliant, report.Records[3].Status)
	assert.GreaterOrEqual(t, report.Records[0].DaysOverdue, report.Records[1].DaysOverdue)

	// Never-contacted sorts above a dated breach
	assert.Equal(t, neverSeen.CaseID, report.Records[0].CaseID)
	assert.Equal(t, NeverContactedDays, report.Records[0].DaysOverdue)

	assert.Equal(t, 2, report.OverdueCount)
	assert.Equal(t, 1, report.ScheduledCount)
	assert.Equal(t, 1, report.CompliantCount)
}

func TestMergedVisitSources(t *testing.T) {
	// Two sources: the engine takes the latest last-visit and earliest
	// next-visit across them.
	v := view("P3")
	primary := &fakeVisitSource{visits: map[types.ID][]time.Time{
		v.BeneficiaryID: {day(2024, 2, 1), day(2024, 7, 1)},
	}}
	clinical := &fakeVisitSource{visits: map[types.ID][]time.Time{
		v.BeneficiaryID: {day(2024, 3, 15), day(2024, 6, 1)},
	}}

	engine := NewEngine(
		&fakeCaseSource{views: []casedomain.ComplianceView{v}},
		priority.NewStaticRegistry(priority.DefaultTiers()),
		[]VisitSource{primary, clinical},
		zap.NewNop(),
	)

	report, err := engine.ComputeReport(context.Background(), day(2024, 5, 1))
	require.NoError(t, err)
	require.Len(t, report.Records, 1)

	rec := report.Records[0]
	require.NotNil(t, rec.LastVisitDate)
	assert.True(t, rec.LastVisitDate.Equal(day(2024, 3, 15)))
	require.NotNil(t, rec.NextVisitDate)
	assert.True(t, rec.NextVisitDate.Equal(day(2024, 6, 1)))
	assert.Equal(t, StatusScheduled, rec.Status)
}
