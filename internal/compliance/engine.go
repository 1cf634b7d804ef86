package compliance

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	casedomain "github.com/rdss/casework/internal/case/domain"
	"github.com/rdss/casework/internal/priority"
	"github.com/rdss/casework/internal/shared/types"
)

// RecordStatus classifies one open case against its cadence
type RecordStatus string

const (
	StatusOverdue   RecordStatus = "overdue"
	StatusScheduled RecordStatus = "scheduled"
	StatusCompliant RecordStatus = "compliant"
)

// NeverContactedDays is the sentinel days-overdue value for a case whose
// beneficiary has no recorded contact at all, distinguishing "never
// contacted" from "breached cadence".
const NeverContactedDays = 9999

// Record is one row of the compliance report, derived per open case and
// never persisted.
type Record struct {
	CaseID        types.ID `json:"case_id"`
	BeneficiaryID types.ID `json:"beneficiary_id"`
	Title         string   `json:"title"`
	PriorityCode  string   `json:"priority_code"`
	CadenceMonths int      `json:"cadence_months"`

	LastVisitDate *time.Time `json:"last_visit_date,omitempty"`
	NextVisitDate *time.Time `json:"next_visit_date,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`

	Status      RecordStatus `json:"status"`
	DaysOverdue int          `json:"days_overdue"`

	PrimaryWorkerID types.ID `json:"primary_worker_id"`
	SupervisorID    types.ID `json:"supervisor_id,omitempty"`
}

// Report is an ordered compliance report over all open, triaged cases
type Report struct {
	AsOf        time.Time `json:"as_of"`
	GeneratedAt time.Time `json:"generated_at"`
	Records     []Record  `json:"records"`

	OverdueCount   int `json:"overdue_count"`
	ScheduledCount int `json:"scheduled_count"`
	CompliantCount int `json:"compliant_count"`
}

// Engine computes compliance reports. It is read-only: safe to run
// repeatedly and concurrently with mutation traffic.
type Engine struct {
	cases   casedomain.Repository
	tiers   *priority.Registry
	sources []VisitSource
	logger  *zap.Logger
}

// NewEngine creates a compliance engine reading from the case store and one
// or more visit sources.
func NewEngine(cases casedomain.Repository, tiers *priority.Registry, sources []VisitSource, logger *zap.Logger) *Engine {
	return &Engine{cases: cases, tiers: tiers, sources: sources, logger: logger}
}

// ComputeReport evaluates every open case with a tier assigned against its
// cadence as of the given instant. Untriaged cases are excluded: without a
// tier there is no cadence to evaluate.
func (e *Engine) ComputeReport(ctx context.Context, asOf time.Time) (*Report, error) {
	asOfDay := midnight(asOf)

	views, err := e.cases.OpenCases(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		AsOf:        asOfDay,
		GeneratedAt: time.Now().UTC(),
	}

	for _, v := range views {
		if v.PriorityCode == "" {
			continue
		}

		tier, err := e.tiers.Get(v.PriorityCode)
		if err != nil {
			// A tier pointer the registry does not know: skip the case
			// rather than failing the whole report.
			e.logger.Warn("case references unknown priority tier",
				zap.String("case_id", v.CaseID.String()),
				zap.String("priority_code", v.PriorityCode))
			continue
		}

		last, next, err := mergedVisits(ctx, e.sources, v.BeneficiaryID, asOfDay)
		if err != nil {
			return nil, err
		}

		rec := Classify(v, tier.CadenceMonths, last, next, asOfDay)
		report.Records = append(report.Records, rec)
	}

	sortRecords(report.Records)

	for _, rec := range report.Records {
		switch rec.Status {
		case StatusOverdue:
			report.OverdueCount++
		case StatusScheduled:
			report.ScheduledCount++
		case StatusCompliant:
			report.CompliantCount++
		}
	}

	return report, nil
}

// Classify derives a single compliance record. Pure function of its inputs.
func Classify(v casedomain.ComplianceView, cadenceMonths int, lastVisit, nextVisit *time.Time, asOf time.Time) Record {
	rec := Record{
		CaseID:          v.CaseID,
		BeneficiaryID:   v.BeneficiaryID,
		Title:           v.Title,
		PriorityCode:    v.PriorityCode,
		CadenceMonths:   cadenceMonths,
		LastVisitDate:   lastVisit,
		NextVisitDate:   nextVisit,
		PrimaryWorkerID: v.PrimaryWorkerID,
		SupervisorID:    v.SupervisorID,
	}

	if lastVisit == nil {
		rec.Status = StatusOverdue
		rec.DaysOverdue = NeverContactedDays
	} else {
		due := AddMonths(*lastVisit, cadenceMonths)
		rec.DueDate = &due

		if asOf.After(due) {
			rec.Status = StatusOverdue
			rec.DaysOverdue = daysBetween(due, asOf)
		} else {
			rec.Status = StatusCompliant
		}
	}

	// A future appointment already booked inside the cadence window takes
	// precedence over the classification computed from the past.
	if nextVisit != nil {
		windowEnd := AddMonths(asOf, cadenceMonths)
		if !nextVisit.After(windowEnd) {
			rec.Status = StatusScheduled
			rec.DaysOverdue = 0
		}
	}

	return rec
}

// AddMonths performs calendar-month addition, preserving the day of month
// where possible and clamping to the month end otherwise (Jan 31 + 1 month
// is Feb 28/29, not Mar 2/3).
func AddMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()

	total := int(m) - 1 + months
	year := y + total/12
	month := time.Month(total%12 + 1)
	if total < 0 {
		// Go's integer division truncates toward zero
		year = y + (total-11)/12
		month = time.Month((total%12+12)%12 + 1)
	}

	if last := lastDayOfMonth(year, month); d > last {
		d = last
	}

	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func daysBetween(from, to time.Time) int {
	return int(midnight(to).Sub(midnight(from)).Hours() / 24)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// sortRecords orders the report: Overdue first by days overdue descending,
// then Scheduled, then Compliant.
func sortRecords(records []Record) {
	rank := func(s RecordStatus) int {
		switch s {
		case StatusOverdue:
			return 0
		case StatusScheduled:
			return 1
		default:
			return 2
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		ri, rj := rank(records[i].Status), rank(records[j].Status)
		if ri != rj {
			return ri < rj
		}
		if records[i].Status == StatusOverdue {
			return records[i].DaysOverdue > records[j].DaysOverdue
		}
		return false
	})
}
