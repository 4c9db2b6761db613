package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spotseeker/apiserver/types"
)

func (d *PostgresDirectory) CreateSessionToken(ctx context.Context, token types.SessionToken) error {
	const query = `
		INSERT INTO session_tokens (id, account_id, name, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := d.db.ExecContext(
		ctx,
		query,
		token.ID,
		token.AccountID,
		token.Name,
		token.ExpiresAt,
		token.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert session token: %w", err)
	}
	return nil
}

func (d *PostgresDirectory) FindSessionToken(ctx context.Context, id string) (types.SessionToken, error) {
	const query = `
		SELECT id, account_id, name, expires_at, created_at
		FROM session_tokens
		WHERE id = $1`
	var token types.SessionToken
	err := d.db.QueryRowContext(ctx, query, id).Scan(
		&token.ID,
		&token.AccountID,
		&token.Name,
		&token.ExpiresAt,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.SessionToken{}, ErrNotFound
		}
		return types.SessionToken{}, err
	}
	return token, nil
}

// RevokeSessionTokens deletes every token of the account and reports how many were removed.
func (d *PostgresDirectory) RevokeSessionTokens(ctx context.Context, accountID int64) (int64, error) {
	result, err := d.db.ExecContext(ctx, `DELETE FROM session_tokens WHERE account_id = $1`, accountID)
	if err != nil {
		return 0, fmt.Errorf("revoke session tokens: %w", err)
	}
	return result.RowsAffected()
}
