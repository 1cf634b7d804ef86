package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rdss/casework/internal/case/domain"
	"github.com/rdss/casework/internal/shared/errors"
	"github.com/rdss/casework/internal/shared/types"
)

// PostgresRepository implements domain.Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Save saves a new case together with its timeline events
func (r *PostgresRepository) Save(ctx context.Context, c *domain.Case) error {
	if err := c.Validate(); err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO casework.cases (
			id, beneficiary_id, title, presenting_issues, priority_code, status,
			risk_level, risk_mitigation_plan,
			service_budget, funding_source,
			primary_worker_id, supervisor_id,
			opened_date, closure_date, closure_reason, closure_summary,
			version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
		)`

	_, err = tx.Exec(ctx, query,
		c.ID, c.BeneficiaryID, c.Title, c.PresentingIssues, nullIfEmpty(c.PriorityCode), c.Status,
		c.RiskLevel, c.RiskMitigationPlan,
		c.ServiceBudget, nullIfEmpty(c.FundingSource),
		c.PrimaryWorkerID, nullIfZeroID(c.SupervisorID),
		c.OpenedDate, c.ClosureDate, nullIfEmpty(c.ClosureReason), nullIfEmpty(c.ClosureSummary),
		c.Version, c.CreatedAt, c.UpdatedAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("case already exists")
		}
		return errors.Wrap(err, "failed to save case")
	}

	for _, e := range c.Events {
		if err := r.saveEvent(ctx, tx, &e); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	return nil
}

// FindByID finds a case by ID
func (r *PostgresRepository) FindByID(ctx context.Context, id types.ID) (*domain.Case, error) {
	query := selectCaseColumns + ` FROM casework.cases WHERE id = $1`

	row := r.pool.QueryRow(ctx, query, id)
	c, err := scanCase(row)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("case", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find case")
	}

	return c, nil
}

// Update persists the aggregate with optimistic locking on the version
// column and appends any new timeline events in the same transaction.
func (r *PostgresRepository) Update(ctx context.Context, c *domain.Case) error {
	if err := c.Validate(); err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE casework.cases SET
			title = $2, presenting_issues = $3, priority_code = $4, status = $5,
			risk_level = $6, risk_mitigation_plan = $7,
			service_budget = $8, funding_source = $9,
			supervisor_id = $10,
			closure_date = $11, closure_reason = $12, closure_summary = $13,
			version = version + 1, updated_at = $14
		WHERE id = $1 AND version = $15`

	result, err := tx.Exec(ctx, query,
		c.ID, c.Title, c.PresentingIssues, nullIfEmpty(c.PriorityCode), c.Status,
		c.RiskLevel, c.RiskMitigationPlan,
		c.ServiceBudget, nullIfEmpty(c.FundingSource),
		nullIfZeroID(c.SupervisorID),
		c.ClosureDate, nullIfEmpty(c.ClosureReason), nullIfEmpty(c.ClosureSummary),
		c.UpdatedAt, c.Version,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update case")
	}

	if result.RowsAffected() == 0 {
		// Distinguish a stale version from a missing row
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM casework.cases WHERE id = $1)`, c.ID).Scan(&exists); err != nil {
			return errors.Wrap(err, "failed to check case existence")
		}
		if exists {
			return errors.Conflict("case was modified concurrently")
		}
		return errors.NotFound("case", c.ID.String())
	}

	// Persist events not yet stored (ON CONFLICT skips the ones saved earlier)
	for _, e := range c.Events {
		if err := r.saveEvent(ctx, tx, &e); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	c.Version++
	return nil
}

// List lists cases with filters
func (r *PostgresRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Case, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, *filter.Status)
		argNum++
	}

	if filter.RiskLevel != nil {
		conditions = append(conditions, fmt.Sprintf("risk_level = $%d", argNum))
		args = append(args, *filter.RiskLevel)
		argNum++
	}

	if filter.PriorityCode != nil {
		conditions = append(conditions, fmt.Sprintf("priority_code = $%d", argNum))
		args = append(args, *filter.PriorityCode)
		argNum++
	}

	if filter.BeneficiaryID != nil {
		conditions = append(conditions, fmt.Sprintf("beneficiary_id = $%d", argNum))
		args = append(args, *filter.BeneficiaryID)
		argNum++
	}

	if filter.WorkerID != nil {
		conditions = append(conditions, fmt.Sprintf("primary_worker_id = $%d", argNum))
		args = append(args, *filter.WorkerID)
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM casework.cases %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count cases")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`%s
		FROM casework.cases
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, selectCaseColumns, whereClause, argNum, argNum+1)

	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list cases")
	}
	defer rows.Close()

	var cases []domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan case")
		}
		cases = append(cases, *c)
	}

	return cases, total, nil
}

// OpenCases returns the compliance view of every non-terminal case
func (r *PostgresRepository) OpenCases(ctx context.Context) ([]domain.ComplianceView, error) {
	query := `
		SELECT id, beneficiary_id, title,
			COALESCE(priority_code, ''), primary_worker_id, COALESCE(supervisor_id::text, '')
		FROM casework.cases
		WHERE status NOT IN ('closed', 'transferred')
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query open cases")
	}
	defer rows.Close()

	var views []domain.ComplianceView
	for rows.Next() {
		var v domain.ComplianceView
		var supervisor string
		if err := rows.Scan(&v.CaseID, &v.BeneficiaryID, &v.Title, &v.PriorityCode, &v.PrimaryWorkerID, &supervisor); err != nil {
			return nil, errors.Wrap(err, "failed to scan open case")
		}
		v.SupervisorID = types.ID(supervisor)
		views = append(views, v)
	}

	return views, nil
}

// GetEvents returns the case timeline, newest first
func (r *PostgresRepository) GetEvents(ctx context.Context, caseID types.ID, limit, offset int) ([]domain.CaseEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `
		SELECT id, case_id, type, actor_id, description, data, occurred_at
		FROM casework.case_events
		WHERE case_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, caseID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get events")
	}
	defer rows.Close()

	var events []domain.CaseEvent
	for rows.Next() {
		var e domain.CaseEvent
		var actorID *types.ID
		var dataJSON []byte

		if err := rows.Scan(&e.ID, &e.CaseID, &e.Type, &actorID, &e.Description, &dataJSON, &e.Timestamp); err != nil {
			return nil, errors.Wrap(err, "failed to scan event")
		}

		if actorID != nil {
			e.ActorID = *actorID
		}
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &e.Data); err != nil {
				e.Data = nil
			}
		}

		events = append(events, e)
	}

	return events, nil
}

func (r *PostgresRepository) saveEvent(ctx context.Context, tx pgx.Tx, e *domain.CaseEvent) error {
	dataJSON, err := json.Marshal(e.Data)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event data")
	}

	query := `
		INSERT INTO casework.case_events (
			id, case_id, type, actor_id, description, data, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	_, err = tx.Exec(ctx, query,
		e.ID, e.CaseID, e.Type, nullIfZeroID(e.ActorID), e.Description, dataJSON, e.Timestamp,
	)

	if err != nil {
		return errors.Wrap(err, "failed to save event")
	}

	return nil
}

const selectCaseColumns = `
	SELECT id, beneficiary_id, title, presenting_issues, priority_code, status,
		risk_level, risk_mitigation_plan,
		service_budget, funding_source,
		primary_worker_id, supervisor_id,
		opened_date, closure_date, closure_reason, closure_summary,
		version, created_at, updated_at`

func scanCase(row pgx.Row) (*domain.Case, error) {
	c := &domain.Case{}
	var priorityCode, riskPlan, fundingSource, closureReason, closureSummary *string
	var supervisorID *types.ID

	err := row.Scan(
		&c.ID, &c.BeneficiaryID, &c.Title, &c.PresentingIssues, &priorityCode, &c.Status,
		&c.RiskLevel, &riskPlan,
		&c.ServiceBudget, &fundingSource,
		&c.PrimaryWorkerID, &supervisorID,
		&c.OpenedDate, &c.ClosureDate, &closureReason, &closureSummary,
		&c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.PriorityCode = derefString(priorityCode)
	c.RiskMitigationPlan = derefString(riskPlan)
	c.FundingSource = derefString(fundingSource)
	c.ClosureReason = derefString(closureReason)
	c.ClosureSummary = derefString(closureSummary)
	if supervisorID != nil {
		c.SupervisorID = *supervisorID
	}

	return c, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullIfZeroID(id types.ID) *types.ID {
	if id.IsZero() {
		return nil
	}
	return &id
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
