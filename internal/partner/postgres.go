package partner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/onnwee/nearby/internal/tracing"
)

// PostgresRepository implements Repository on the partners table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get implements Repository.
func (r *PostgresRepository) Get(ctx context.Context, id string) (p *Profile, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "partners", tracing.DBOperationQuery)
	defer func() {
		if errors.Is(err, ErrNotFound) {
			endSpan(nil)
			return
		}
		endSpan(err)
	}()

	query := `
		SELECT id, role, display_name,
		       COALESCE(venue_name, ''), COALESCE(venue_address, ''),
		       COALESCE(venue_city, ''), COALESCE(venue_zip, ''),
		       created_at, updated_at
		FROM partners
		WHERE id = $1
	`

	p = &Profile{}
	var role string
	err = r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &role, &p.DisplayName,
		&p.Venue.Name, &p.Venue.Address, &p.Venue.City, &p.Venue.Zip,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get partner profile: %w", err)
	}
	p.Role = ParseRole(role)
	return p, nil
}

// Upsert implements Repository.
func (r *PostgresRepository) Upsert(ctx context.Context, p *Profile) (err error) {
	if err := p.Validate(); err != nil {
		return err
	}
	ctx, endSpan := tracing.StartDBSpan(ctx, "partners", tracing.DBOperationUpsert)
	defer func() { endSpan(err) }()

	v := p.Venue.Trimmed()
	query := `
		INSERT INTO partners (id, role, display_name, venue_name, venue_address, venue_city, venue_zip)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			role = EXCLUDED.role,
			display_name = EXCLUDED.display_name,
			venue_name = EXCLUDED.venue_name,
			venue_address = EXCLUDED.venue_address,
			venue_city = EXCLUDED.venue_city,
			venue_zip = EXCLUDED.venue_zip,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRowContext(ctx, query,
		p.ID, string(p.Role), strings.TrimSpace(p.DisplayName),
		nullable(v.Name), nullable(v.Address), nullable(v.City), nullable(v.Zip),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert partner profile: %w", err)
	}
	p.Venue = v
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
