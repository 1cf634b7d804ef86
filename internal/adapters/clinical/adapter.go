// Package clinical is a read-only adapter over a legacy clinical records
// system (SQL Server). It contributes encounter dates to the compliance
// engine so contacts made outside the scheduler still count toward cadence.
package clinical

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver
	"github.com/rdss/casework/internal/shared/config"
	"github.com/rdss/casework/internal/shared/types"
)

// Adapter reads encounter dates from a clinical encounters view. It never
// writes: the clinical system is an upstream of record.
type Adapter struct {
	db   *sql.DB
	view string
}

// New opens a connection to the clinical database
func New(ctx context.Context, cfg config.ClinicalConfig) (*Adapter, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open clinical database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping clinical database: %w", err)
	}

	return &Adapter{db: db, view: cfg.EncounterView}, nil
}

// LatestVisitOnOrBefore returns the most recent completed encounter for a
// beneficiary on or before asOf
func (a *Adapter) LatestVisitOnOrBefore(ctx context.Context, beneficiaryID types.ID, asOf time.Time) (*time.Time, error) {
	query := fmt.Sprintf(`
		SELECT MAX(encounter_date)
		FROM %s
		WHERE beneficiary_ref = @p1
		AND encounter_date <= @p2
		AND encounter_status = 'completed'`, a.view)

	return a.queryDate(ctx, query, beneficiaryID.String(), asOf)
}

// EarliestVisitAfter returns the soonest booked encounter strictly after
// asOf
func (a *Adapter) EarliestVisitAfter(ctx context.Context, beneficiaryID types.ID, asOf time.Time) (*time.Time, error) {
	query := fmt.Sprintf(`
		SELECT MIN(encounter_date)
		FROM %s
		WHERE beneficiary_ref = @p1
		AND encounter_date > @p2
		AND encounter_status IN ('booked', 'completed')`, a.view)

	return a.queryDate(ctx, query, beneficiaryID.String(), asOf)
}

func (a *Adapter) queryDate(ctx context.Context, query string, args ...interface{}) (*time.Time, error) {
	var date sql.NullTime
	if err := a.db.QueryRowContext(ctx, query, args...).Scan(&date); err != nil {
		return nil, fmt.Errorf("clinical encounter query failed: %w", err)
	}

	if !date.Valid {
		return nil, nil
	}

	d := date.Time.UTC()
	d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return &d, nil
}

// Health checks the clinical database connection
func (a *Adapter) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close closes the database connection
func (a *Adapter) Close() error {
	return a.db.Close()
}
