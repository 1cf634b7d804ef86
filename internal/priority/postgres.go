package priority

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rdss/casework/internal/shared/errors"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL tier store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// All returns every tier row
func (s *PostgresStore) All(ctx context.Context) ([]Tier, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT code, name, cadence_months, description, color_code, created_at
		FROM casework.case_priorities
		ORDER BY code`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query priority tiers")
	}
	defer rows.Close()

	var tiers []Tier
	for rows.Next() {
		var t Tier
		if err := rows.Scan(&t.Code, &t.Name, &t.CadenceMonths, &t.Description, &t.ColorCode, &t.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan priority tier")
		}
		tiers = append(tiers, t)
	}

	return tiers, rows.Err()
}

// Insert adds a tier row; used only for seeding
func (s *PostgresStore) Insert(ctx context.Context, t Tier) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO casework.case_priorities (code, name, cadence_months, description, color_code)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code) DO NOTHING`,
		t.Code, t.Name, t.CadenceMonths, t.Description, t.ColorCode,
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert priority tier")
	}
	return nil
}
