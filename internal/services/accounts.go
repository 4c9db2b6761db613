package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/segmentio/ksuid"
	"github.com/spotseeker/apiserver/internal/store"
	"github.com/spotseeker/apiserver/types"
	"go.uber.org/zap"
)

// MaxPhotoBytes caps profile photo uploads.
const MaxPhotoBytes = 5 << 20

var photoExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

var ErrStorageDisabled = errors.New("object storage is not configured")

// PhotoStore persists uploaded objects and exposes them by URL.
type PhotoStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
	KeyOf(url string) (string, bool)
}

// PhotoUpload is a profile photo received from a client.
type PhotoUpload struct {
	Body        io.Reader
	Size        int64
	ContentType string
}

// Profile is the account as shown to its owner.
type Profile struct {
	types.Account
	Role      string   `json:"role"`
	Roles     []string `json:"roles"`
	Providers []string `json:"providers"`
	Verified  bool     `json:"verified"`
}

// AccountService encapsulates account administration use-cases.
type AccountService struct {
	dir    store.Directory
	photos PhotoStore
	logger *zap.Logger
}

func NewAccountService(dir store.Directory, photos PhotoStore, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{dir: dir, photos: photos, logger: logger}
}

func (s *AccountService) Profile(ctx context.Context, accountID int64) (Profile, error) {
	account, err := s.find(ctx, s.dir, accountID)
	if err != nil {
		return Profile{}, err
	}

	roles, err := s.dir.RoleNames(ctx, accountID)
	if err != nil {
		return Profile{}, fmt.Errorf("load roles: %w", err)
	}
	links, err := s.dir.LinkedProviders(ctx, accountID)
	if err != nil {
		return Profile{}, fmt.Errorf("load linked providers: %w", err)
	}

	providers := make([]string, 0, len(links))
	for _, l := range links {
		providers = append(providers, l.Provider)
	}
	if roles == nil {
		roles = []string{}
	}

	return Profile{
		Account:   account,
		Role:      PrimaryRole(roles),
		Roles:     roles,
		Providers: providers,
		Verified:  account.Verified(),
	}, nil
}

// UpdateProfilePhoto stores the image and points the account at it.
// A previous photo held in the same storage is removed once the account is saved.
func (s *AccountService) UpdateProfilePhoto(ctx context.Context, accountID int64, upload PhotoUpload) (types.Account, error) {
	if s.photos == nil {
		return types.Account{}, ErrStorageDisabled
	}

	contentType := strings.ToLower(strings.TrimSpace(upload.ContentType))
	if mediaType, _, ok := strings.Cut(contentType, ";"); ok {
		contentType = strings.TrimSpace(mediaType)
	}
	ext, ok := photoExtensions[contentType]
	if !ok {
		return types.Account{}, validationFailure(map[string][]string{
			"photo": {"The photo field must be an image."},
		})
	}
	if upload.Size <= 0 || upload.Size > MaxPhotoBytes {
		return types.Account{}, validationFailure(map[string][]string{
			"photo": {fmt.Sprintf("The photo field must not be greater than %d kilobytes.", MaxPhotoBytes>>10)},
		})
	}

	account, err := s.find(ctx, s.dir, accountID)
	if err != nil {
		return types.Account{}, err
	}

	key := fmt.Sprintf("profile-photos/%d/%s%s", accountID, ksuid.New().String(), ext)
	if err := s.photos.Put(ctx, key, upload.Body, upload.Size, contentType); err != nil {
		return types.Account{}, fmt.Errorf("upload photo: %w", err)
	}

	previous := account.ProfilePhotoPath
	account.ProfilePhotoPath = s.photos.URL(key)
	account, err = s.dir.Save(ctx, account)
	if err != nil {
		return types.Account{}, fmt.Errorf("save account: %w", err)
	}

	if old, ok := s.photos.KeyOf(previous); ok && old != key {
		if err := s.photos.Delete(ctx, old); err != nil {
			s.logger.Warn("remove replaced profile photo", zap.String("key", old), zap.Error(err))
		}
	}
	s.logger.Info("profile photo updated", zap.Int64("account_id", accountID), zap.String("key", key))
	return account, nil
}

// VerifyAdminPassword re-confirms an administrator's password before sensitive actions.
func (s *AccountService) VerifyAdminPassword(ctx context.Context, accountID int64, password string) error {
	account, err := s.find(ctx, s.dir, accountID)
	if err != nil {
		return err
	}
	roles, err := s.dir.RoleNames(ctx, accountID)
	if err != nil {
		return fmt.Errorf("load roles: %w", err)
	}

	if !HasRole(roles, types.RoleAdmin) || !passwordMatches(account, password) {
		return fail(Unauthorized, MsgNotAuthorized)
	}
	return nil
}

// SetStatus activates or suspends an account. Suspension also revokes every
// session token of the account in the same transaction.
func (s *AccountService) SetStatus(ctx context.Context, accountID int64, status string) (types.Account, error) {
	if status != types.StatusActive && status != types.StatusSuspended {
		return types.Account{}, validationFailure(map[string][]string{
			"status": {"The selected status is invalid."},
		})
	}

	var updated types.Account
	err := s.dir.WithTx(ctx, func(tx store.Directory) error {
		account, err := s.find(ctx, tx, accountID)
		if err != nil {
			return err
		}

		account.Status = status
		if updated, err = tx.Save(ctx, account); err != nil {
			return err
		}

		if status == types.StatusSuspended {
			if _, err := tx.RevokeSessionTokens(ctx, accountID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if _, ok := AsFailure(err); ok {
			return types.Account{}, err
		}
		return types.Account{}, fmt.Errorf("set status: %w", err)
	}

	s.logger.Info("account status changed", zap.Int64("account_id", accountID), zap.String("status", status))
	return updated, nil
}

func (s *AccountService) find(ctx context.Context, dir store.Directory, accountID int64) (types.Account, error) {
	account, err := dir.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Account{}, fail(NotFound, MsgAccountNotFound)
		}
		return types.Account{}, fmt.Errorf("find account: %w", err)
	}
	return account, nil
}
