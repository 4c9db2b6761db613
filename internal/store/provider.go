package store

import (
	"context"
	"fmt"
	"time"

	"github.com/spotseeker/apiserver/types"
)

func (d *PostgresDirectory) LinkedProviders(ctx context.Context, accountID int64) ([]types.LinkedProvider, error) {
	const query = `
		SELECT id, account_id, provider, provider_id, COALESCE(avatar, ''), created_at, updated_at
		FROM linked_providers
		WHERE account_id = $1
		ORDER BY id`
	rows, err := d.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []types.LinkedProvider
	for rows.Next() {
		var p types.LinkedProvider
		if err := rows.Scan(
			&p.ID,
			&p.AccountID,
			&p.Provider,
			&p.ProviderID,
			&p.Avatar,
			&p.CreatedAt,
			&p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// UpsertLinkedProvider inserts the (account, provider) link or refreshes its provider ID and avatar.
func (d *PostgresDirectory) UpsertLinkedProvider(ctx context.Context, p types.LinkedProvider) (types.LinkedProvider, error) {
	p.UpdatedAt = time.Now()

	const query = `
		INSERT INTO linked_providers (account_id, provider, provider_id, avatar, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $5)
		ON CONFLICT (account_id, provider) DO UPDATE
		SET provider_id = EXCLUDED.provider_id,
			avatar = EXCLUDED.avatar,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`
	err := d.db.QueryRowContext(
		ctx,
		query,
		p.AccountID,
		p.Provider,
		p.ProviderID,
		p.Avatar,
		p.UpdatedAt,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return types.LinkedProvider{}, fmt.Errorf("upsert linked provider: %w", err)
	}
	return p, nil
}
