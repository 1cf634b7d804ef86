package compliance

import (
	"context"
	"time"

	"github.com/rdss/casework/internal/shared/types"
)

// VisitSource supplies contact dates for a beneficiary. The appointment
// store is the primary source; read-only adapters over external systems
// (legacy clinical records) can contribute additional dates.
type VisitSource interface {
	// LatestVisitOnOrBefore returns the most recent contact date on or
	// before asOf, excluding cancelled and no-show contacts. Nil when the
	// beneficiary has never been seen by this source.
	LatestVisitOnOrBefore(ctx context.Context, beneficiaryID types.ID, asOf time.Time) (*time.Time, error)
	// EarliestVisitAfter returns the soonest booked contact date strictly
	// after asOf. Nil when nothing is booked in this source.
	EarliestVisitAfter(ctx context.Context, beneficiaryID types.ID, asOf time.Time) (*time.Time, error)
}

// mergedVisits resolves last/next visit dates across every source: the
// latest of the lasts and the earliest of the nexts.
func mergedVisits(ctx context.Context, sources []VisitSource, beneficiaryID types.ID, asOf time.Time) (last, next *time.Time, err error) {
	for _, src := range sources {
		l, err := src.LatestVisitOnOrBefore(ctx, beneficiaryID, asOf)
		if err != nil {
			return nil, nil, err
		}
		if l != nil && (last == nil || l.After(*last)) {
			last = l
		}

		n, err := src.EarliestVisitAfter(ctx, beneficiaryID, asOf)
		if err != nil {
			return nil, nil, err
		}
		if n != nil && (next == nil || n.Before(*next)) {
			next = n
		}
	}
	return last, next, nil
}
