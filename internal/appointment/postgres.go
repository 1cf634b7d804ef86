package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rdss/casework/internal/shared/errors"
	"github.com/rdss/casework/internal/shared/types"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Save saves a new appointment
func (r *PostgresRepository) Save(ctx context.Context, a *Appointment) error {
	query := `
		INSERT INTO casework.appointments (
			id, case_id, beneficiary_id, assignee_id,
			appointment_date, start_time, duration_minutes, appointment_type, status,
			purpose, location, notes,
			outcome, attendance_status, no_show_reason, cancellation_reason, rescheduled_to_id,
			version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.CaseID, a.BeneficiaryID, a.AssigneeID,
		a.Date, a.StartTime, a.DurationMinutes, a.Type, a.Status,
		a.Purpose, a.Location, a.Notes,
		nullIfEmpty(a.Outcome), nullIfEmpty(string(a.AttendanceStatus)),
		nullIfEmpty(a.NoShowReason), nullIfEmpty(a.CancellationReason), a.RescheduledToID,
		a.Version, a.CreatedAt, a.UpdatedAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("appointment already exists")
		}
		return errors.Wrap(err, "failed to save appointment")
	}

	return nil
}

// FindByID finds an appointment by ID
func (r *PostgresRepository) FindByID(ctx context.Context, id types.ID) (*Appointment, error) {
	query := selectColumns + ` FROM casework.appointments WHERE id = $1`

	row := r.pool.QueryRow(ctx, query, id)
	a, err := scanAppointment(row)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("appointment", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find appointment")
	}

	return a, nil
}

// Update persists the appointment with optimistic locking on the version
// column.
func (r *PostgresRepository) Update(ctx context.Context, a *Appointment) error {
	query := `
		UPDATE casework.appointments SET
			appointment_date = $2, start_time = $3, duration_minutes = $4, status = $5,
			purpose = $6, location = $7, notes = $8,
			outcome = $9, attendance_status = $10, no_show_reason = $11,
			cancellation_reason = $12, rescheduled_to_id = $13,
			version = version + 1, updated_at = $14
		WHERE id = $1 AND version = $15`

	result, err := r.pool.Exec(ctx, query,
		a.ID, a.Date, a.StartTime, a.DurationMinutes, a.Status,
		a.Purpose, a.Location, a.Notes,
		nullIfEmpty(a.Outcome), nullIfEmpty(string(a.AttendanceStatus)),
		nullIfEmpty(a.NoShowReason), nullIfEmpty(a.CancellationReason), a.RescheduledToID,
		a.UpdatedAt, a.Version,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update appointment")
	}

	if result.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM casework.appointments WHERE id = $1)`, a.ID).Scan(&exists); err != nil {
			return errors.Wrap(err, "failed to check appointment existence")
		}
		if exists {
			return errors.Conflict("appointment was modified concurrently")
		}
		return errors.NotFound("appointment", a.ID.String())
	}

	a.Version++
	return nil
}

// List lists appointments with filters
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]Appointment, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.CaseID != nil {
		conditions = append(conditions, fmt.Sprintf("case_id = $%d", argNum))
		args = append(args, *filter.CaseID)
		argNum++
	}
	if filter.BeneficiaryID != nil {
		conditions = append(conditions, fmt.Sprintf("beneficiary_id = $%d", argNum))
		args = append(args, *filter.BeneficiaryID)
		argNum++
	}
	if filter.AssigneeID != nil {
		conditions = append(conditions, fmt.Sprintf("assignee_id = $%d", argNum))
		args = append(args, *filter.AssigneeID)
		argNum++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, *filter.Status)
		argNum++
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("appointment_date >= $%d", argNum))
		args = append(args, *filter.DateFrom)
		argNum++
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("appointment_date <= $%d", argNum))
		args = append(args, *filter.DateTo)
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM casework.appointments %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count appointments")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`%s
		FROM casework.appointments
		%s
		ORDER BY appointment_date DESC, start_time DESC
		LIMIT $%d OFFSET $%d`, selectColumns, whereClause, argNum, argNum+1)

	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list appointments")
	}
	defer rows.Close()

	var appts []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan appointment")
		}
		appts = append(appts, *a)
	}

	return appts, total, nil
}

// PendingForAssigneeOn returns scheduled and confirmed appointments for an
// assignee on a date
func (r *PostgresRepository) PendingForAssigneeOn(ctx context.Context, assigneeID types.ID, date time.Time) ([]Appointment, error) {
	query := selectColumns + `
		FROM casework.appointments
		WHERE assignee_id = $1
		AND appointment_date = $2
		AND status IN ('scheduled', 'confirmed')
		ORDER BY start_time`

	rows, err := r.pool.Query(ctx, query, assigneeID, date)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query pending appointments")
	}
	defer rows.Close()

	var appts []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan appointment")
		}
		appts = append(appts, *a)
	}

	return appts, nil
}

// LatestVisitOnOrBefore returns the most recent contact date for a
// beneficiary, excluding cancelled and no-show appointments
func (r *PostgresRepository) LatestVisitOnOrBefore(ctx context.Context, beneficiaryID types.ID, asOf time.Time) (*time.Time, error) {
	query := `
		SELECT MAX(appointment_date)
		FROM casework.appointments
		WHERE beneficiary_id = $1
		AND appointment_date <= $2
		AND status NOT IN ('cancelled', 'no_show')`

	var date *time.Time
	if err := r.pool.QueryRow(ctx, query, beneficiaryID, asOf).Scan(&date); err != nil {
		return nil, errors.Wrap(err, "failed to query latest visit")
	}

	return date, nil
}

// EarliestVisitAfter returns the soonest booked contact date strictly after
// asOf with the same status exclusion
func (r *PostgresRepository) EarliestVisitAfter(ctx context.Context, beneficiaryID types.ID, asOf time.Time) (*time.Time, error) {
	query := `
		SELECT MIN(appointment_date)
		FROM casework.appointments
		WHERE beneficiary_id = $1
		AND appointment_date > $2
		AND status NOT IN ('cancelled', 'no_show')`

	var date *time.Time
	if err := r.pool.QueryRow(ctx, query, beneficiaryID, asOf).Scan(&date); err != nil {
		return nil, errors.Wrap(err, "failed to query next visit")
	}

	return date, nil
}

const selectColumns = `
	SELECT id, case_id, beneficiary_id, assignee_id,
		appointment_date, start_time, duration_minutes, appointment_type, status,
		purpose, location, notes,
		outcome, attendance_status, no_show_reason, cancellation_reason, rescheduled_to_id,
		version, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	a := &Appointment{}
	var outcome, attendance, noShowReason, cancellationReason *string

	err := row.Scan(
		&a.ID, &a.CaseID, &a.BeneficiaryID, &a.AssigneeID,
		&a.Date, &a.StartTime, &a.DurationMinutes, &a.Type, &a.Status,
		&a.Purpose, &a.Location, &a.Notes,
		&outcome, &attendance, &noShowReason, &cancellationReason, &a.RescheduledToID,
		&a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Outcome = derefString(outcome)
	a.AttendanceStatus = AttendanceStatus(derefString(attendance))
	a.NoShowReason = derefString(noShowReason)
	a.CancellationReason = derefString(cancellationReason)

	return a, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
