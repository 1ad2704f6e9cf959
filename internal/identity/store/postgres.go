package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"presence/internal/identity/models"
	id "presence/pkg/domain"
	"presence/pkg/platform/sentinel"
)

// uniqueViolation is the pq error code for unique constraint violations.
const uniqueViolation = "23505"

// Postgres persists principals in PostgreSQL. Pure I/O; validation and role
// rules belong to the models and service layers.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Create(ctx context.Context, p *models.Principal) error {
	query := `
		INSERT INTO principals (id, email, full_name, badge_code, unit, role, enrolled, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID.String(), p.Email, p.FullName, p.BadgeCode, p.Unit, string(p.Role), p.Enrolled, p.PasswordHash, p.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert principal: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, pid id.PrincipalID) (*models.Principal, error) {
	return s.findOne(ctx, `WHERE id = $1`, pid.String())
}

func (s *Postgres) FindByEmail(ctx context.Context, email string) (*models.Principal, error) {
	return s.findOne(ctx, `WHERE lower(email) = lower($1)`, email)
}

func (s *Postgres) findOne(ctx context.Context, where string, arg any) (*models.Principal, error) {
	query := `
		SELECT id, email, full_name, badge_code, unit, role, enrolled, password_hash, created_at
		FROM principals ` + where
	p, err := scanPrincipal(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find principal: %w", err)
	}
	return p, nil
}

func (s *Postgres) SetEnrolled(ctx context.Context, pid id.PrincipalID) (*models.Principal, error) {
	query := `
		UPDATE principals SET enrolled = TRUE
		WHERE id = $1
		RETURNING id, email, full_name, badge_code, unit, role, enrolled, password_hash, created_at
	`
	p, err := scanPrincipal(s.db.QueryRowContext(ctx, query, pid.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("set enrolled: %w", err)
	}
	return p, nil
}

func (s *Postgres) List(ctx context.Context) ([]*models.Principal, error) {
	query := `
		SELECT id, email, full_name, badge_code, unit, role, enrolled, password_hash, created_at
		FROM principals
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}
	defer rows.Close()

	var out []*models.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (*models.Principal, error) {
	var (
		p       models.Principal
		rawID   string
		rawRole string
	)
	if err := row.Scan(&rawID, &p.Email, &p.FullName, &p.BadgeCode, &p.Unit, &rawRole, &p.Enrolled, &p.PasswordHash, &p.CreatedAt); err != nil {
		return nil, err
	}
	pid, err := id.ParsePrincipalID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse principal id: %w", err)
	}
	p.ID = pid
	p.Role = models.Role(rawRole)
	return &p, nil
}
