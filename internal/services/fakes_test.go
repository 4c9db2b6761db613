package services

import (
	"context"
	"errors"
	"io"
	"maps"
	"slices"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/spotseeker/apiserver/internal/identity"
	"github.com/spotseeker/apiserver/internal/resets"
	"github.com/spotseeker/apiserver/internal/session"
	"github.com/spotseeker/apiserver/internal/store"
	"github.com/spotseeker/apiserver/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// memDirectory is an in-memory store.Directory. WithTx restores a snapshot when fn fails.
type memDirectory struct {
	accounts     map[int64]types.Account
	roles        map[string]types.Role
	accountRoles map[int64][]int64
	providers    map[int64]map[string]types.LinkedProvider
	tokens       map[string]types.SessionToken
	nextID       int64
	inTx         bool

	upsertErr      error
	createTokenErr error
}

func newMemDirectory() *memDirectory {
	d := &memDirectory{
		accounts:     map[int64]types.Account{},
		roles:        map[string]types.Role{},
		accountRoles: map[int64][]int64{},
		providers:    map[int64]map[string]types.LinkedProvider{},
		tokens:       map[string]types.SessionToken{},
	}
	for i, name := range []string{types.RoleAdmin, types.RoleManager, types.RoleUser, types.RoleCoordinator} {
		d.roles[name] = types.Role{ID: int64(i + 1), Name: name}
	}
	return d
}

func (d *memDirectory) id() int64 {
	d.nextID++
	return d.nextID
}

func (d *memDirectory) FindByEmail(_ context.Context, email string) (types.Account, error) {
	for _, a := range d.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return types.Account{}, store.ErrNotFound
}

func (d *memDirectory) FindByID(_ context.Context, id int64) (types.Account, error) {
	a, ok := d.accounts[id]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	return a, nil
}

func (d *memDirectory) PhoneTaken(_ context.Context, phoneNo string) (bool, error) {
	for _, a := range d.accounts {
		if a.PhoneNo != "" && a.PhoneNo == phoneNo {
			return true, nil
		}
	}
	return false, nil
}

func (d *memDirectory) Create(ctx context.Context, account types.Account) (types.Account, error) {
	if _, err := d.FindByEmail(ctx, account.Email); err == nil {
		return types.Account{}, store.ErrConflict
	}
	account.ID = d.id()
	account.CreatedAt = time.Now()
	account.UpdatedAt = account.CreatedAt
	d.accounts[account.ID] = account
	return account, nil
}

func (d *memDirectory) Save(_ context.Context, account types.Account) (types.Account, error) {
	if _, ok := d.accounts[account.ID]; !ok {
		return types.Account{}, store.ErrNotFound
	}
	account.UpdatedAt = time.Now()
	d.accounts[account.ID] = account
	return account, nil
}

func (d *memDirectory) FindRoleByName(_ context.Context, name string) (types.Role, error) {
	r, ok := d.roles[name]
	if !ok {
		return types.Role{}, store.ErrNotFound
	}
	return r, nil
}

func (d *memDirectory) AssignRoles(_ context.Context, accountID int64, roleIDs ...int64) error {
	d.accountRoles[accountID] = slices.Clone(roleIDs)
	return nil
}

func (d *memDirectory) RoleNames(_ context.Context, accountID int64) ([]string, error) {
	var names []string
	for _, id := range d.accountRoles[accountID] {
		for _, r := range d.roles {
			if r.ID == id {
				names = append(names, r.Name)
			}
		}
	}
	return names, nil
}

func (d *memDirectory) LinkedProviders(_ context.Context, accountID int64) ([]types.LinkedProvider, error) {
	var out []types.LinkedProvider
	for _, p := range d.providers[accountID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *memDirectory) UpsertLinkedProvider(_ context.Context, p types.LinkedProvider) (types.LinkedProvider, error) {
	if d.upsertErr != nil {
		return types.LinkedProvider{}, d.upsertErr
	}
	if d.providers[p.AccountID] == nil {
		d.providers[p.AccountID] = map[string]types.LinkedProvider{}
	}
	if existing, ok := d.providers[p.AccountID][p.Provider]; ok {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	} else {
		p.ID = d.id()
		p.CreatedAt = time.Now()
	}
	p.UpdatedAt = time.Now()
	d.providers[p.AccountID][p.Provider] = p
	return p, nil
}

func (d *memDirectory) CreateSessionToken(_ context.Context, token types.SessionToken) error {
	if d.createTokenErr != nil {
		return d.createTokenErr
	}
	d.tokens[token.ID] = token
	return nil
}

func (d *memDirectory) FindSessionToken(_ context.Context, id string) (types.SessionToken, error) {
	t, ok := d.tokens[id]
	if !ok {
		return types.SessionToken{}, store.ErrNotFound
	}
	return t, nil
}

func (d *memDirectory) RevokeSessionTokens(_ context.Context, accountID int64) (int64, error) {
	var n int64
	for id, t := range d.tokens {
		if t.AccountID == accountID {
			delete(d.tokens, id)
			n++
		}
	}
	return n, nil
}

func (d *memDirectory) WithTx(_ context.Context, fn func(tx store.Directory) error) error {
	if d.inTx {
		return errors.New("already in transaction")
	}
	snapshot := d.clone()
	d.inTx = true
	err := fn(d)
	d.inTx = false
	if err != nil {
		d.restore(snapshot)
	}
	return err
}

func (d *memDirectory) clone() *memDirectory {
	c := &memDirectory{
		accounts:     maps.Clone(d.accounts),
		roles:        maps.Clone(d.roles),
		accountRoles: map[int64][]int64{},
		providers:    map[int64]map[string]types.LinkedProvider{},
		tokens:       maps.Clone(d.tokens),
		nextID:       d.nextID,
	}
	for k, v := range d.accountRoles {
		c.accountRoles[k] = slices.Clone(v)
	}
	for k, v := range d.providers {
		c.providers[k] = maps.Clone(v)
	}
	return c
}

func (d *memDirectory) restore(c *memDirectory) {
	d.accounts = c.accounts
	d.roles = c.roles
	d.accountRoles = c.accountRoles
	d.providers = c.providers
	d.tokens = c.tokens
	d.nextID = c.nextID
}

func (d *memDirectory) providerRows() int {
	n := 0
	for _, m := range d.providers {
		n += len(m)
	}
	return n
}

func (d *memDirectory) tokensOf(accountID int64) int {
	n := 0
	for _, t := range d.tokens {
		if t.AccountID == accountID {
			n++
		}
	}
	return n
}

// seedAccount inserts an account with the given password and roles.
func (d *memDirectory) seedAccount(t *testing.T, account types.Account, password string, roles ...string) types.Account {
	t.Helper()
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		require.NoError(t, err)
		account.PasswordHash = string(hash)
	}
	if account.Status == "" {
		account.Status = types.StatusActive
	}
	created, err := d.Create(context.Background(), account)
	require.NoError(t, err)

	var ids []int64
	for _, name := range roles {
		ids = append(ids, d.roles[name].ID)
	}
	require.NoError(t, d.AssignRoles(context.Background(), created.ID, ids...))
	return created
}

func (d *memDirectory) link(t *testing.T, accountID int64, provider, providerID string) {
	t.Helper()
	_, err := d.UpsertLinkedProvider(context.Background(), types.LinkedProvider{
		AccountID: accountID, Provider: provider, ProviderID: providerID,
	})
	require.NoError(t, err)
}

// memResets is a ResetBroker keeping plain tokens per email.
type memResets struct {
	tokens    map[string]string
	throttled bool
}

func newMemResets() *memResets {
	return &memResets{tokens: map[string]string{}}
}

func (r *memResets) Create(_ context.Context, email string) (string, time.Time, error) {
	if r.throttled {
		return "", time.Time{}, resets.ErrThrottled
	}
	token := "reset-" + email
	r.tokens[email] = token
	return token, time.Now().Add(time.Hour), nil
}

func (r *memResets) Consume(_ context.Context, email, token string) error {
	stored, ok := r.tokens[email]
	if !ok || stored != token {
		return resets.ErrInvalidToken
	}
	delete(r.tokens, email)
	return nil
}

type sentEvent struct {
	name    string
	account types.Account
	token   string
}

// recordingNotifier remembers every event; err makes every publish fail.
type recordingNotifier struct {
	events []sentEvent
	err    error
}

func (n *recordingNotifier) Registered(_ context.Context, account types.Account) error {
	n.events = append(n.events, sentEvent{name: "registered", account: account})
	return n.err
}

func (n *recordingNotifier) PasswordResetRequested(_ context.Context, account types.Account, token string, _ time.Time) error {
	n.events = append(n.events, sentEvent{name: "password_reset_requested", account: account, token: token})
	return n.err
}

func (n *recordingNotifier) PasswordReset(_ context.Context, account types.Account) error {
	n.events = append(n.events, sentEvent{name: "password_reset", account: account})
	return n.err
}

const memPhotosURL = "https://cdn.test/"

type memPhotos struct {
	keys    map[string]int64
	deleted []string
}

func (m *memPhotos) Put(_ context.Context, key string, r io.Reader, size int64, _ string) error {
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return err
	}
	if n != size {
		return errors.New("short body")
	}
	if m.keys == nil {
		m.keys = map[string]int64{}
	}
	m.keys[key] = n
	return nil
}

func (m *memPhotos) Delete(_ context.Context, key string) error {
	delete(m.keys, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memPhotos) URL(key string) string {
	return memPhotosURL + key
}

func (m *memPhotos) KeyOf(url string) (string, bool) {
	key, ok := strings.CutPrefix(url, memPhotosURL)
	return key, ok && key != ""
}

type harness struct {
	svc      *IdentityService
	dir      *memDirectory
	gateway  *identity.Gateway
	resets   *memResets
	notifier *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		dir:      newMemDirectory(),
		gateway:  identity.NewGateway(time.Second),
		resets:   newMemResets(),
		notifier: &recordingNotifier{},
	}
	h.svc = NewIdentityService(h.dir, h.gateway, session.NewIssuer("test-secret", time.Hour), h.resets, h.notifier, zap.NewNop())
	h.svc.hashCost = bcrypt.MinCost
	return h
}

// stubProvider registers name on the gateway and answers every token with ident.
func (h *harness) stubProvider(t *testing.T, name string, ident identity.ExternalIdentity, err error) {
	t.Helper()
	require.NoError(t, h.gateway.Use(name, identity.ProviderFunc(func(context.Context, string) (identity.ExternalIdentity, error) {
		return ident, err
	})))
}

func requireKind(t *testing.T, err error, kind FailureKind) *Failure {
	t.Helper()
	require.Error(t, err)
	f, ok := AsFailure(err)
	require.Truef(t, ok, "expected *Failure, got %v", err)
	require.Equalf(t, kind, f.Kind, "got %s: %s", f.Kind, f.Message)
	return f
}
