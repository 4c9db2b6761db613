package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spotseeker/apiserver/types"
)

func (d *PostgresDirectory) FindRoleByName(ctx context.Context, name string) (types.Role, error) {
	const query = `SELECT id, name FROM roles WHERE name = $1`
	var role types.Role
	if err := d.db.QueryRowContext(ctx, query, name).Scan(&role.ID, &role.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Role{}, ErrNotFound
		}
		return types.Role{}, err
	}
	return role, nil
}

// AssignRoles replaces the account's role set with roleIDs.
// Callers should run it inside WithTx so the delete and inserts commit together.
func (d *PostgresDirectory) AssignRoles(ctx context.Context, accountID int64, roleIDs ...int64) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM account_roles WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("clear roles: %w", err)
	}

	const query = `
		INSERT INTO account_roles (account_id, role_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`
	for _, roleID := range roleIDs {
		if _, err := d.db.ExecContext(ctx, query, accountID, roleID); err != nil {
			return fmt.Errorf("assign role %d: %w", roleID, err)
		}
	}
	return nil
}

func (d *PostgresDirectory) RoleNames(ctx context.Context, accountID int64) ([]string, error) {
	const query = `
		SELECT r.name
		FROM roles r
		JOIN account_roles ar ON ar.role_id = r.id
		WHERE ar.account_id = $1
		ORDER BY r.id`
	rows, err := d.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
