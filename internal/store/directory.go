package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spotseeker/apiserver/types"
)

// Directory is the persistent record of accounts, roles, linked providers and session tokens.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (types.Account, error)
	FindByID(ctx context.Context, id int64) (types.Account, error)
	PhoneTaken(ctx context.Context, phoneNo string) (bool, error)
	Create(ctx context.Context, account types.Account) (types.Account, error)
	Save(ctx context.Context, account types.Account) (types.Account, error)

	FindRoleByName(ctx context.Context, name string) (types.Role, error)
	AssignRoles(ctx context.Context, accountID int64, roleIDs ...int64) error
	RoleNames(ctx context.Context, accountID int64) ([]string, error)

	LinkedProviders(ctx context.Context, accountID int64) ([]types.LinkedProvider, error)
	UpsertLinkedProvider(ctx context.Context, provider types.LinkedProvider) (types.LinkedProvider, error)

	CreateSessionToken(ctx context.Context, token types.SessionToken) error
	FindSessionToken(ctx context.Context, id string) (types.SessionToken, error)
	RevokeSessionTokens(ctx context.Context, accountID int64) (int64, error)

	// WithTx runs fn against a Directory bound to a single transaction.
	// The transaction is rolled back when fn returns an error.
	WithTx(ctx context.Context, fn func(tx Directory) error) error
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresDirectory implements Directory on PostgreSQL.
type PostgresDirectory struct {
	db dbtx
}

func NewDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) WithTx(ctx context.Context, fn func(tx Directory) error) error {
	db, ok := d.db.(*sql.DB)
	if !ok {
		return errors.New("already in transaction")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err = fn(&PostgresDirectory{db: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback: %v after: %w", rbErr, err)
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
