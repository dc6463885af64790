package group

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore returns a Store backed by the groups and group_members
// tables.
func NewPostgresStore(db *pgxpool.Pool) Store {
	return &postgresStore{db: db}
}

func (s *postgresStore) EnsureGroup(ctx context.Context, name string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO groups (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	if err != nil {
		return fmt.Errorf("ensure group %s: %w", name, err)
	}
	return nil
}

func (s *postgresStore) ReplaceMembership(ctx context.Context, principalID, groupName string) error {
	// Clearing and re-adding happen in one transaction so membership is
	// always exactly one group.
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM group_members WHERE principal_id = $1`, principalID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO group_members (principal_id, group_name)
			VALUES ($1, $2)
			ON CONFLICT (principal_id, group_name) DO NOTHING`,
			principalID, groupName)
		return err
	})
}

func (s *postgresStore) GroupsOf(ctx context.Context, principalID string) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT group_name FROM group_members WHERE principal_id = $1 ORDER BY group_name`,
		principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		groups = append(groups, name)
	}
	return groups, rows.Err()
}
