package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spotseeker/apiserver/internal/identity"
	"github.com/spotseeker/apiserver/internal/resets"
	"github.com/spotseeker/apiserver/internal/session"
	"github.com/spotseeker/apiserver/internal/store"
	"github.com/spotseeker/apiserver/types"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const notifyTimeout = 5 * time.Second

var (
	consumerProviders = map[string]bool{"google": true, "apple": true, "facebook": true}
	managerProviders  = map[string]bool{"google": true, "apple": true}
)

// IdentityGateway resolves third-party tokens.
type IdentityGateway interface {
	Supports(provider string) bool
	Resolve(ctx context.Context, provider, token string) (identity.ExternalIdentity, error)
}

// TokenIssuer mints and parses bearer tokens.
type TokenIssuer interface {
	Mint(accountID int64) (types.SessionToken, string, error)
	Parse(raw string) (session.Claims, error)
}

// ResetBroker stores single-use password reset tokens.
type ResetBroker interface {
	Create(ctx context.Context, email string) (string, time.Time, error)
	Consume(ctx context.Context, email, token string) error
}

// Notifier receives fire-and-forget identity events.
type Notifier interface {
	Registered(ctx context.Context, account types.Account) error
	PasswordResetRequested(ctx context.Context, account types.Account, token string, expiresAt time.Time) error
	PasswordReset(ctx context.Context, account types.Account) error
}

// IdentityService owns credential verification, social linking, role assignment,
// session issuance and account-status gating.
type IdentityService struct {
	dir      store.Directory
	gateway  IdentityGateway
	issuer   TokenIssuer
	resets   ResetBroker
	notifier Notifier
	logger   *zap.Logger

	hashCost int
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

func NewIdentityService(
	dir store.Directory,
	gateway IdentityGateway,
	issuer TokenIssuer,
	resetBroker ResetBroker,
	notifier Notifier,
	logger *zap.Logger,
) *IdentityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityService{
		dir:      dir,
		gateway:  gateway,
		issuer:   issuer,
		resets:   resetBroker,
		notifier: notifier,
		logger:   logger,
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
	}
}

// Login authenticates a consumer with email and password.
func (s *IdentityService) Login(ctx context.Context, req LoginRequest) (AuthResult, error) {
	req.Email = normalizeEmail(req.Email)
	if fields := fieldErrors(req); fields != nil {
		return AuthResult{}, validationFailure(fields)
	}

	account, found, err := s.findByEmail(ctx, s.dir, req.Email)
	if err != nil {
		return AuthResult{}, err
	}

	if found {
		providers, err := s.dir.LinkedProviders(ctx, account.ID)
		if err != nil {
			return AuthResult{}, fmt.Errorf("load linked providers: %w", err)
		}
		if len(providers) > 0 {
			return AuthResult{}, fail(SocialLoginRequired, MsgSocialLoginRequired)
		}
	}

	if !s.checkPassword(account, found, req.Password) {
		f := fail(InvalidCredentials, MsgInvalidCredentials)
		f.Fields = map[string][]string{"email": {MsgInvalidCredentials}}
		return AuthResult{}, f
	}

	if account.Suspended() {
		s.revokeAll(ctx, account.ID)
		return AuthResult{}, fail(AccountSuspended, MsgAccountSuspended)
	}

	roles, err := s.dir.RoleNames(ctx, account.ID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("load roles: %w", err)
	}

	token, err := s.issue(ctx, s.dir, account.ID)
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		Account:  account,
		Role:     PrimaryRole(roles),
		Token:    token,
		Verified: account.Verified(),
	}, nil
}

// ManagerLogin authenticates a manager-console user with email and password.
// A valid login without a manager role is reported with the credential-mismatch message.
func (s *IdentityService) ManagerLogin(ctx context.Context, req LoginRequest) (ManagerAuthResult, error) {
	req.Email = normalizeEmail(req.Email)
	if fields := fieldErrors(req); fields != nil {
		return ManagerAuthResult{}, validationFailure(fields)
	}

	account, found, err := s.findByEmail(ctx, s.dir, req.Email)
	if err != nil {
		return ManagerAuthResult{}, err
	}
	if !s.checkPassword(account, found, req.Password) {
		return ManagerAuthResult{}, fail(InvalidCredentials, MsgManagerCredentials)
	}

	if account.Suspended() {
		s.revokeAll(ctx, account.ID)
		return ManagerAuthResult{}, fail(AccountSuspended, MsgAccountSuspended)
	}

	roles, err := s.dir.RoleNames(ctx, account.ID)
	if err != nil {
		return ManagerAuthResult{}, fmt.Errorf("load roles: %w", err)
	}
	if !HasManagerRole(roles) {
		return ManagerAuthResult{}, fail(InsufficientRole, MsgManagerCredentials)
	}

	token, err := s.issue(ctx, s.dir, account.ID)
	if err != nil {
		return ManagerAuthResult{}, err
	}

	return ManagerAuthResult{
		Username: account.Name,
		Email:    account.Email,
		Role:     PrimaryRole(roles),
		Token:    token,
	}, nil
}

// Register creates a credential account. Validation, including uniqueness,
// completes before anything is written; the writes share one transaction.
func (s *IdentityService) Register(ctx context.Context, req RegisterRequest, opts RegisterOptions) (RegisterResult, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalizeEmail(req.Email)
	req.PhoneNo = strings.TrimSpace(req.PhoneNo)
	req.Role = strings.TrimSpace(req.Role)

	fields := fieldErrors(req)
	if _, bad := fields["email"]; !bad {
		_, taken, err := s.findByEmail(ctx, s.dir, req.Email)
		if err != nil {
			return RegisterResult{}, err
		}
		if taken {
			fields = addFieldError(fields, "email", takenMessage("email"))
		}
	}
	if _, bad := fields["phone_no"]; !bad {
		taken, err := s.dir.PhoneTaken(ctx, req.PhoneNo)
		if err != nil {
			return RegisterResult{}, fmt.Errorf("check phone: %w", err)
		}
		if taken {
			fields = addFieldError(fields, "phone_no", takenMessage("phone_no"))
		}
	}
	if fields != nil {
		return RegisterResult{}, validationFailure(fields)
	}

	roleName := types.RoleUser
	if opts.AllowClientSuppliedRole && req.Role != "" {
		roleName = req.Role
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("hash password: %w", err)
	}

	first, last := splitName(req.Name)
	var result RegisterResult
	err = s.dir.WithTx(ctx, func(tx store.Directory) error {
		role, err := s.resolveRole(ctx, tx, roleName)
		if err != nil {
			return err
		}

		account, err := tx.Create(ctx, types.Account{
			Name:               req.Name,
			FirstName:          first,
			LastName:           last,
			Email:              req.Email,
			PhoneNo:            req.PhoneNo,
			PasswordHash:       string(hash),
			Status:             types.StatusActive,
			VerificationMethod: req.VerificationMethod,
		})
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return validationFailure(map[string][]string{
					"email": {takenMessage("email or phone_no")},
				})
			}
			return err
		}

		if err := tx.AssignRoles(ctx, account.ID, role.ID); err != nil {
			return err
		}

		token, err := s.issue(ctx, tx, account.ID)
		if err != nil {
			return err
		}

		result = RegisterResult{
			Account: account,
			Role:    role.Name,
			Roles:   []string{role.Name},
			Token:   token,
		}
		return nil
	})
	if err != nil {
		if _, ok := AsFailure(err); ok {
			return RegisterResult{}, err
		}
		return RegisterResult{}, fmt.Errorf("register: %w", err)
	}

	s.notify(ctx, "registered", func(ctx context.Context) error {
		return s.notifier.Registered(ctx, result.Account)
	})
	return result, nil
}

// SocialLogin signs a consumer in with a third-party token, provisioning the
// account on first sight. Lookup, provisioning, linking and token issuance are atomic.
func (s *IdentityService) SocialLogin(ctx context.Context, req SocialLoginRequest) (SocialAuthResult, error) {
	ident, err := s.resolveIdentity(ctx, req, consumerProviders)
	if err != nil {
		return SocialAuthResult{}, err
	}
	provider := strings.ToLower(strings.TrimSpace(req.Provider))

	var result SocialAuthResult
	err = s.dir.WithTx(ctx, func(tx store.Directory) error {
		account, found, err := s.findByEmail(ctx, tx, ident.Email)
		if err != nil {
			return err
		}

		if !found {
			account, err = s.provision(ctx, tx, ident)
		} else {
			account, err = s.refreshProfile(ctx, tx, account, ident)
		}
		if err != nil {
			return err
		}

		if err := s.link(ctx, tx, account.ID, provider, ident); err != nil {
			return err
		}

		roles, err := tx.RoleNames(ctx, account.ID)
		if err != nil {
			return fmt.Errorf("load roles: %w", err)
		}

		token, err := s.issue(ctx, tx, account.ID)
		if err != nil {
			return err
		}

		result = SocialAuthResult{
			FirstName:       account.FirstName,
			LastName:        account.LastName,
			Email:           account.Email,
			PhoneNo:         account.PhoneNo,
			Role:            PrimaryRole(roles),
			Token:           token,
			ProfilePhotoURL: account.ProfilePhotoPath,
			Verified:        account.Verified(),
		}
		return nil
	})
	if err != nil {
		return SocialAuthResult{}, fmt.Errorf("social login: %w", err)
	}
	return result, nil
}

// ManagerSocialLogin signs an existing manager-console user in with a third-party token.
// Accounts are never provisioned on this path.
func (s *IdentityService) ManagerSocialLogin(ctx context.Context, req SocialLoginRequest) (ManagerAuthResult, error) {
	ident, err := s.resolveIdentity(ctx, req, managerProviders)
	if err != nil {
		return ManagerAuthResult{}, err
	}
	provider := strings.ToLower(strings.TrimSpace(req.Provider))

	account, found, err := s.findByEmail(ctx, s.dir, ident.Email)
	if err != nil {
		return ManagerAuthResult{}, err
	}
	if !found {
		return ManagerAuthResult{}, fail(UserNotFound, MsgManagerCredentials)
	}

	if account.Suspended() {
		s.revokeAll(ctx, account.ID)
		return ManagerAuthResult{}, fail(AccountSuspended, MsgAccountSuspended)
	}

	roles, err := s.dir.RoleNames(ctx, account.ID)
	if err != nil {
		return ManagerAuthResult{}, fmt.Errorf("load roles: %w", err)
	}
	if !HasManagerRole(roles) {
		return ManagerAuthResult{}, fail(InsufficientRole, MsgManagerCredentials)
	}

	var result ManagerAuthResult
	err = s.dir.WithTx(ctx, func(tx store.Directory) error {
		account, err := s.refreshProfile(ctx, tx, account, ident)
		if err != nil {
			return err
		}
		if err := s.link(ctx, tx, account.ID, provider, ident); err != nil {
			return err
		}
		token, err := s.issue(ctx, tx, account.ID)
		if err != nil {
			return err
		}

		result = ManagerAuthResult{
			Username: account.Name,
			Email:    account.Email,
			Role:     PrimaryRole(roles),
			Token:    token,
		}
		return nil
	})
	if err != nil {
		return ManagerAuthResult{}, fmt.Errorf("manager social login: %w", err)
	}
	return result, nil
}

// Logout revokes every session token of the bearer's account.
func (s *IdentityService) Logout(ctx context.Context, bearer string) error {
	principal, err := s.resolveSession(ctx, bearer)
	if err != nil {
		if _, ok := AsFailure(err); ok {
			return failWith(NoActiveSession, MsgNoActiveSession, err)
		}
		return err
	}

	revoked, err := s.dir.RevokeSessionTokens(ctx, principal.Account.ID)
	if err != nil {
		return fmt.Errorf("revoke tokens: %w", err)
	}
	s.logger.Info("logged out",
		zap.Int64("account_id", principal.Account.ID),
		zap.Int64("revoked", revoked),
	)
	return nil
}

// Authenticate resolves a bearer token into the calling account.
// Suspended accounts are rejected even while they hold a live token.
func (s *IdentityService) Authenticate(ctx context.Context, bearer string) (Principal, error) {
	principal, err := s.resolveSession(ctx, bearer)
	if err != nil {
		return Principal{}, err
	}
	if principal.Account.Suspended() {
		return Principal{}, fail(AccountSuspended, MsgAccountSuspended)
	}
	return principal, nil
}

// RequestPasswordReset sends a reset token to the account's owner. Unknown
// emails and throttled requests report success like any other request.
func (s *IdentityService) RequestPasswordReset(ctx context.Context, req ForgotPasswordRequest) error {
	req.Email = normalizeEmail(req.Email)
	if fields := fieldErrors(req); fields != nil {
		return validationFailure(fields)
	}

	account, found, err := s.findByEmail(ctx, s.dir, req.Email)
	if err != nil {
		return err
	}
	if !found {
		s.logger.Debug("password reset for unknown email")
		return nil
	}

	token, expiresAt, err := s.resets.Create(ctx, account.Email)
	if err != nil {
		if errors.Is(err, resets.ErrThrottled) {
			s.logger.Info("password reset throttled", zap.Int64("account_id", account.ID))
			return nil
		}
		return fmt.Errorf("create reset token: %w", err)
	}

	s.notify(ctx, "password_reset_requested", func(ctx context.Context) error {
		return s.notifier.PasswordResetRequested(ctx, account, token, expiresAt)
	})
	return nil
}

// ResetPassword redeems a reset token, replaces the password and rotates the remember token.
func (s *IdentityService) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	req.Email = normalizeEmail(req.Email)
	if fields := fieldErrors(req); fields != nil {
		return validationFailure(fields)
	}

	account, found, err := s.findByEmail(ctx, s.dir, req.Email)
	if err != nil {
		return err
	}
	if !found {
		return fail(ResetFailed, MsgResetFailed)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	remember, err := randomString(rememberTokenLength)
	if err != nil {
		return fmt.Errorf("remember token: %w", err)
	}

	if err := s.resets.Consume(ctx, account.Email, req.Token); err != nil {
		if errors.Is(err, resets.ErrInvalidToken) {
			return failWith(ResetFailed, MsgResetFailed, err)
		}
		return fmt.Errorf("consume reset token: %w", err)
	}

	account.PasswordHash = string(hash)
	account.RememberToken = remember
	account, err = s.dir.Save(ctx, account)
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}

	s.notify(ctx, "password_reset", func(ctx context.Context) error {
		return s.notifier.PasswordReset(ctx, account)
	})
	return nil
}

func (s *IdentityService) resolveSession(ctx context.Context, bearer string) (Principal, error) {
	claims, err := s.issuer.Parse(strings.TrimSpace(bearer))
	if err != nil {
		return Principal{}, failWith(Unauthorized, MsgUnauthorized, err)
	}

	token, err := s.dir.FindSessionToken(ctx, claims.TokenID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Principal{}, fail(Unauthorized, MsgUnauthorized)
		}
		return Principal{}, fmt.Errorf("find session token: %w", err)
	}
	if token.AccountID != claims.AccountID || !token.ExpiresAt.After(s.now()) {
		return Principal{}, fail(Unauthorized, MsgUnauthorized)
	}

	account, err := s.dir.FindByID(ctx, token.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Principal{}, fail(Unauthorized, MsgUnauthorized)
		}
		return Principal{}, fmt.Errorf("find account: %w", err)
	}

	roles, err := s.dir.RoleNames(ctx, account.ID)
	if err != nil {
		return Principal{}, fmt.Errorf("load roles: %w", err)
	}
	return Principal{Account: account, TokenID: token.ID, Roles: roles}, nil
}

func (s *IdentityService) resolveIdentity(ctx context.Context, req SocialLoginRequest, allowed map[string]bool) (identity.ExternalIdentity, error) {
	req.Provider = strings.ToLower(strings.TrimSpace(req.Provider))
	req.Token = strings.TrimSpace(req.Token)
	if fields := fieldErrors(req); fields != nil {
		return identity.ExternalIdentity{}, validationFailure(fields)
	}
	if !allowed[req.Provider] || !s.gateway.Supports(req.Provider) {
		return identity.ExternalIdentity{}, fail(UnsupportedProvider, MsgUnsupportedProvider)
	}

	ident, err := s.gateway.Resolve(ctx, req.Provider, req.Token)
	if err != nil {
		if errors.Is(err, identity.ErrUnsupportedProvider) {
			return identity.ExternalIdentity{}, fail(UnsupportedProvider, MsgUnsupportedProvider)
		}
		s.logger.Warn("identity provider failed", zap.String("provider", req.Provider), zap.Error(err))
		return identity.ExternalIdentity{}, failWith(ProviderError, MsgProviderError, err)
	}

	ident.Email = normalizeEmail(ident.Email)
	if ident.Email == "" || ident.ID == "" {
		s.logger.Warn("identity provider returned incomplete identity",
			zap.String("provider", req.Provider),
			zap.Bool("has_email", ident.Email != ""),
			zap.Bool("has_id", ident.ID != ""),
		)
		return identity.ExternalIdentity{}, fail(ProviderError, MsgProviderError)
	}
	return ident, nil
}

// resolveRole looks name up in the catalog and falls back to User.
func (s *IdentityService) resolveRole(ctx context.Context, dir store.Directory, name string) (types.Role, error) {
	role, err := dir.FindRoleByName(ctx, name)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.Role{}, fmt.Errorf("find role %q: %w", name, err)
	}

	if name != types.RoleUser {
		s.logger.Info("role not in catalog, falling back to User", zap.String("role", name))
		role, err = dir.FindRoleByName(ctx, types.RoleUser)
		if err == nil {
			return role, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return types.Role{}, fmt.Errorf("find role %q: %w", types.RoleUser, err)
		}
	}
	return types.Role{}, ErrDefaultRoleMissing
}

func (s *IdentityService) provision(ctx context.Context, tx store.Directory, ident identity.ExternalIdentity) (types.Account, error) {
	role, err := s.resolveRole(ctx, tx, types.RoleUser)
	if err != nil {
		return types.Account{}, err
	}

	now := s.now()
	first, last := splitName(ident.Name)
	account, err := tx.Create(ctx, types.Account{
		Name:             ident.Name,
		FirstName:        first,
		LastName:         last,
		Email:            ident.Email,
		Status:           types.StatusActive,
		EmailVerifiedAt:  &now,
		ProfilePhotoPath: ident.Avatar,
	})
	if err != nil {
		return types.Account{}, fmt.Errorf("create account: %w", err)
	}

	if err := tx.AssignRoles(ctx, account.ID, role.ID); err != nil {
		return types.Account{}, err
	}
	return account, nil
}

func (s *IdentityService) refreshProfile(ctx context.Context, tx store.Directory, account types.Account, ident identity.ExternalIdentity) (types.Account, error) {
	if name := strings.TrimSpace(ident.Name); name != "" {
		account.Name = name
		account.FirstName, account.LastName = splitName(name)
	}
	if ident.Avatar != "" {
		account.ProfilePhotoPath = ident.Avatar
	}

	account, err := tx.Save(ctx, account)
	if err != nil {
		return types.Account{}, fmt.Errorf("save account: %w", err)
	}
	return account, nil
}

func (s *IdentityService) link(ctx context.Context, tx store.Directory, accountID int64, provider string, ident identity.ExternalIdentity) error {
	if provider == types.ProviderCredentials {
		return nil
	}
	_, err := tx.UpsertLinkedProvider(ctx, types.LinkedProvider{
		AccountID:  accountID,
		Provider:   provider,
		ProviderID: ident.ID,
		Avatar:     ident.Avatar,
	})
	return err
}

// issue mints a bearer token and persists its session row through dir.
func (s *IdentityService) issue(ctx context.Context, dir store.Directory, accountID int64) (string, error) {
	record, raw, err := s.issuer.Mint(accountID)
	if err != nil {
		return "", fmt.Errorf("mint token: %w", err)
	}
	if err := dir.CreateSessionToken(ctx, record); err != nil {
		return "", err
	}
	return raw, nil
}

func (s *IdentityService) revokeAll(ctx context.Context, accountID int64) {
	revoked, err := s.dir.RevokeSessionTokens(ctx, accountID)
	if err != nil {
		s.logger.Error("revoke tokens of suspended account", zap.Int64("account_id", accountID), zap.Error(err))
		return
	}
	s.logger.Info("suspended account tokens revoked", zap.Int64("account_id", accountID), zap.Int64("revoked", revoked))
}

func (s *IdentityService) findByEmail(ctx context.Context, dir store.Directory, email string) (types.Account, bool, error) {
	account, err := dir.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Account{}, false, nil
		}
		return types.Account{}, false, fmt.Errorf("find account: %w", err)
	}
	return account, true, nil
}

// notify publishes after the caller's work is committed. Failures are logged only.
func (s *IdentityService) notify(ctx context.Context, event string, publish func(context.Context) error) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := publish(ctx); err != nil {
		s.logger.Warn("notification not delivered", zap.String("event", event), zap.Error(err))
	}
}

// checkPassword compares password with the account's hash. Missing accounts and
// accounts without a password are compared against a throwaway hash of the same
// cost so every rejection spends one bcrypt comparison.
func (s *IdentityService) checkPassword(account types.Account, found bool, password string) bool {
	if found && account.HasPassword() {
		return bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) == nil
	}
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("no-account"), s.hashCost)
	})
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
	return false
}

func passwordMatches(account types.Account, password string) bool {
	if !account.HasPassword() {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) == nil
}
