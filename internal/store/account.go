package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spotseeker/apiserver/types"
)

const accountColumns = `
	id, name, first_name, last_name, email, COALESCE(phone_no, ''), COALESCE(password_hash, ''),
	status, COALESCE(verification_method, ''), mobile_verified_at, email_verified_at,
	COALESCE(profile_photo_path, ''), COALESCE(remember_token, ''), created_at, updated_at`

func scanAccount(row *sql.Row) (types.Account, error) {
	var (
		account        types.Account
		mobileVerified sql.NullTime
		emailVerified  sql.NullTime
	)
	err := row.Scan(
		&account.ID,
		&account.Name,
		&account.FirstName,
		&account.LastName,
		&account.Email,
		&account.PhoneNo,
		&account.PasswordHash,
		&account.Status,
		&account.VerificationMethod,
		&mobileVerified,
		&emailVerified,
		&account.ProfilePhotoPath,
		&account.RememberToken,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}
	if mobileVerified.Valid {
		account.MobileVerifiedAt = &mobileVerified.Time
	}
	if emailVerified.Valid {
		account.EmailVerifiedAt = &emailVerified.Time
	}
	return account, nil
}

func (d *PostgresDirectory) FindByEmail(ctx context.Context, email string) (types.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccount(d.db.QueryRowContext(ctx, query, email))
}

func (d *PostgresDirectory) FindByID(ctx context.Context, id int64) (types.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(d.db.QueryRowContext(ctx, query, id))
}

func (d *PostgresDirectory) PhoneTaken(ctx context.Context, phoneNo string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM accounts WHERE phone_no = $1)`
	var taken bool
	if err := d.db.QueryRowContext(ctx, query, phoneNo).Scan(&taken); err != nil {
		return false, err
	}
	return taken, nil
}

func (d *PostgresDirectory) Create(ctx context.Context, account types.Account) (types.Account, error) {
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now
	if account.Status == "" {
		account.Status = types.StatusActive
	}

	const query = `
		INSERT INTO accounts (
			name, first_name, last_name, email, phone_no, password_hash, status,
			verification_method, mobile_verified_at, email_verified_at,
			profile_photo_path, remember_token, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, NULLIF($8, ''), $9, $10,
			NULLIF($11, ''), NULLIF($12, ''), $13, $14)
		RETURNING id`
	err := d.db.QueryRowContext(
		ctx,
		query,
		account.Name,
		account.FirstName,
		account.LastName,
		account.Email,
		account.PhoneNo,
		account.PasswordHash,
		account.Status,
		account.VerificationMethod,
		account.MobileVerifiedAt,
		account.EmailVerifiedAt,
		account.ProfilePhotoPath,
		account.RememberToken,
		account.CreatedAt,
		account.UpdatedAt,
	).Scan(&account.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return types.Account{}, ErrConflict
		}
		return types.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return account, nil
}

func (d *PostgresDirectory) Save(ctx context.Context, account types.Account) (types.Account, error) {
	account.UpdatedAt = time.Now()

	const query = `
		UPDATE accounts
		SET name = $1,
			first_name = $2,
			last_name = $3,
			email = $4,
			phone_no = NULLIF($5, ''),
			password_hash = NULLIF($6, ''),
			status = $7,
			verification_method = NULLIF($8, ''),
			mobile_verified_at = $9,
			email_verified_at = $10,
			profile_photo_path = NULLIF($11, ''),
			remember_token = NULLIF($12, ''),
			updated_at = $13
		WHERE id = $14`
	result, err := d.db.ExecContext(
		ctx,
		query,
		account.Name,
		account.FirstName,
		account.LastName,
		account.Email,
		account.PhoneNo,
		account.PasswordHash,
		account.Status,
		account.VerificationMethod,
		account.MobileVerifiedAt,
		account.EmailVerifiedAt,
		account.ProfilePhotoPath,
		account.RememberToken,
		account.UpdatedAt,
		account.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.Account{}, ErrConflict
		}
		return types.Account{}, fmt.Errorf("update account: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return types.Account{}, err
	}
	if rows == 0 {
		return types.Account{}, ErrNotFound
	}
	return account, nil
}
