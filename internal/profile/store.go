package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mesikahq/patient-monitoring/internal/rbac"
)

// Store persists profiles. List interprets the scope filter; implementations
// must return exactly the rows the filter matches.
type Store interface {
	Create(ctx context.Context, p *Profile) error
	Get(ctx context.Context, id string) (*Profile, error)
	GetByPrincipal(ctx context.Context, principalID string) (*Profile, error)
	Update(ctx context.Context, p *Profile) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter rbac.Filter) ([]*Profile, error)
}

type postgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) Store {
	return &postgresStore{db: db}
}

const profileColumns = `id, principal_id, role, department, license_number, phone, created_at, updated_at`

func (s *postgresStore) Create(ctx context.Context, p *Profile) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO profiles (id, principal_id, role, department, license_number, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.PrincipalID, p.Role, p.Department, p.LicenseNumber, p.Phone, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

func (s *postgresStore) Get(ctx context.Context, id string) (*Profile, error) {
	return s.scanOne(s.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
}

func (s *postgresStore) GetByPrincipal(ctx context.Context, principalID string) (*Profile, error) {
	return s.scanOne(s.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE principal_id = $1`, principalID))
}

func (s *postgresStore) Update(ctx context.Context, p *Profile) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE profiles
		SET role = $2, department = $3, license_number = $4, phone = $5, updated_at = $6
		WHERE id = $1`,
		p.ID, p.Role, p.Department, p.LicenseNumber, p.Phone, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (s *postgresStore) Delete(ctx context.Context, id string) error {
	// Dependent patient records cascade at the schema level.
	tag, err := s.db.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (s *postgresStore) List(ctx context.Context, filter rbac.Filter) ([]*Profile, error) {
	if filter.None {
		return nil, nil
	}

	query := `SELECT ` + profileColumns + ` FROM profiles`
	var args []interface{}
	switch {
	case filter.All:
	case filter.OwnerPrincipalID != "":
		query += ` WHERE principal_id = $1`
		args = append(args, filter.OwnerPrincipalID)
	default:
		return nil, nil
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.PrincipalID, &p.Role, &p.Department,
			&p.LicenseNumber, &p.Phone, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		profiles = append(profiles, &p)
	}
	return profiles, rows.Err()
}

func (s *postgresStore) scanOne(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.PrincipalID, &p.Role, &p.Department,
		&p.LicenseNumber, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &p, nil
}
