package clients

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/gatehouse-api/gatehouse/models"
)

// MockStoreClient is an in-memory StoreClient for tests. It reproduces the
// filter semantics of the Mongo implementation, in particular the cap bound
// and the used-at-null guard, so lifecycle tests exercise the same race
// outcomes the real store produces.
type MockStoreClient struct {
	mu        sync.Mutex
	doBad     bool
	invites   map[string]*models.Invite
	reminders []*models.ReminderRecord
	accounts  map[string]*models.Account
}

func NewMockStoreClient() *MockStoreClient {
	return &MockStoreClient{
		invites:  map[string]*models.Invite{},
		accounts: map[string]*models.Account{},
	}
}

// FailAll makes every subsequent call return an error.
func (d *MockStoreClient) FailAll(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.doBad = fail
}

func (d *MockStoreClient) Ping(ctx context.Context) error {
	if d.failing() {
		return errors.New("ping failure")
	}
	return nil
}

func (d *MockStoreClient) Close(ctx context.Context) error { return nil }

func (d *MockStoreClient) failing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doBad
}

func copyInvite(i *models.Invite) *models.Invite {
	if i == nil {
		return nil
	}
	dup := *i
	if i.PendingKey != nil {
		key := *i.PendingKey
		dup.PendingKey = &key
	}
	dup.Channels = append([]models.Channel(nil), i.Channels...)
	return &dup
}

func (d *MockStoreClient) UpsertPendingInvite(ctx context.Context, invite *models.Invite) (*models.Invite, error) {
	if d.failing() {
		return nil, errors.New("upsert failure")
	}
	if invite.PendingKey == nil {
		return nil, errors.New("invite has no pending key")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	fresh := copyInvite(invite)
	for id, existing := range d.invites {
		if existing.PendingKey != nil && *existing.PendingKey == *invite.PendingKey {
			// overwrite in place, keeping the row id
			fresh.ID = id
			d.invites[id] = fresh
			return copyInvite(fresh), nil
		}
	}
	d.invites[fresh.ID] = fresh
	return copyInvite(fresh), nil
}

func (d *MockStoreClient) FindInviteByID(ctx context.Context, id string) (*models.Invite, error) {
	if d.failing() {
		return nil, errors.New("find failure")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return copyInvite(d.invites[id]), nil
}

func (d *MockStoreClient) FindInviteByDigest(ctx context.Context, digest string) (*models.Invite, error) {
	if d.failing() {
		return nil, errors.New("find failure")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, invite := range d.invites {
		if invite.CredentialDigest == digest {
			return copyInvite(invite), nil
		}
	}
	return nil, nil
}

func (d *MockStoreClient) FindInvitesByEmail(ctx context.Context, normalizedEmail string) ([]*models.Invite, error) {
	if d.failing() {
		return nil, errors.New("find failure")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var results []*models.Invite
	for _, invite := range d.invites {
		if invite.NormalizedEmail == normalizedEmail {
			results = append(results, copyInvite(invite))
		}
	}
	sort.Slice(results, func(a, b int) bool { return results[a].CreatedAt.After(results[b].CreatedAt) })
	return results, nil
}

func (d *MockStoreClient) ListInvites(ctx context.Context, params ListInvitesParams) ([]*models.Invite, int64, error) {
	if d.failing() {
		return nil, 0, errors.New("list failure")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var matched []*models.Invite
	for _, invite := range d.invites {
		if len(params.Statuses) > 0 && !statusIn(invite.Status, params.Statuses) {
			continue
		}
		if params.Search != "" && !matchesSearch(params.Search, invite.Email, invite.FullName) {
			continue
		}
		matched = append(matched, copyInvite(invite))
	}
	sort.Slice(matched, func(a, b int) bool { return matched[a].CreatedAt.After(matched[b].CreatedAt) })
	total := int64(len(matched))
	return paginate(matched, params.Offset, params.Limit), total, nil
}

func statusIn(s models.Status, set []models.Status) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

func matchesSearch(search string, fields ...string) bool {
	needle := strings.ToLower(search)
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, offset, limit int64) []T {
	if offset >= int64(len(items)) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < int64(len(items)) {
		items = items[:limit]
	}
	return items
}

func (d *MockStoreClient) RecordReminder(ctx context.Context, update ReminderUpdate) (*models.Invite, error) {
	if d.failing() {
		return nil, errors.New("reminder failure")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	invite, ok := d.invites[update.InviteID]
	if !ok {
		return nil, nil
	}
	if invite.IsTerminal() || invite.ReminderCount >= update.ReminderCap {
		return nil, nil
	}

	invite.ReminderCount++
	invite.Status = models.StatusPending
	invite.CredentialDigest = update.Digest
	sentAt := update.SentAt
	invite.LastSentAt = &sentAt
	invite.LastSentBy = update.Actor
	invite.ExpiresAt = update.ExpiresAt
	invite.Channels = append([]models.Channel(nil), update.Channels...)
	invite.RevokedAt = nil
	key := invite.NormalizedEmail
	invite.PendingKey = &key

	d.reminders = append(d.reminders,
		models.NewReminderRecord(update.InviteID, update.Actor, update.Channels, update.Reactivated, update.SentAt))

	return copyInvite(invite), nil
}

func (d *MockStoreClient) RevokeInvite(ctx context.Context, id string, now time.Time) (*models.Invite, error) {
	if d.failing() {
		return nil, errors.New("revoke failure")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	invite, ok := d.invites[id]
	if !ok || invite.IsTerminal() {
		return nil, nil
	}
	invite.Status = models.StatusRevoked
	revokedAt := now
	invite.RevokedAt = &revokedAt
	invite.PendingKey = nil
	return copyInvite(invite), nil
}

func (d *MockStoreClient) AcceptInvite(ctx context.Context, update AcceptUpdate) (*models.Invite, error) {
	if d.failing() {
		return nil, errors.New("accept failure")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	invite, ok := d.invites[update.InviteID]
	if !ok || invite.IsTerminal() || invite.UsedAt != nil ||
		invite.CredentialDigest != update.Digest ||
		!invite.ExpiresAt.After(update.UsedAt) {
		return nil, nil
	}
	// duplicate check first: a refused insert must leave the invite
	// untouched, matching the transaction rollback in the Mongo store
	if _, exists := d.accounts[update.Account.NormalizedEmail]; exists {
		return nil, errors.New("creating account: duplicate account")
	}

	invite.Status = models.StatusAccepted
	usedAt := update.UsedAt
	invite.UsedAt = &usedAt
	invite.PendingKey = nil
	account := *update.Account
	d.accounts[account.NormalizedEmail] = &account
	return copyInvite(invite), nil
}

func (d *MockStoreClient) MarkInvitesExpired(ctx context.Context, now time.Time) (int64, error) {
	if d.failing() {
		return 0, errors.New("expire failure")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var modified int64
	for _, invite := range d.invites {
		if invite.Status == models.StatusPending && now.After(invite.ExpiresAt) {
			invite.Status = models.StatusExpired
			modified++
		}
	}
	return modified, nil
}

func (d *MockStoreClient) FindRemindersByInvite(ctx context.Context, inviteID string) ([]*models.ReminderRecord, error) {
	if d.failing() {
		return nil, errors.New("find failure")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var results []*models.ReminderRecord
	for _, record := range d.reminders {
		if record.InviteID == inviteID {
			dup := *record
			results = append(results, &dup)
		}
	}
	return results, nil
}

func (d *MockStoreClient) CountRecentRemindersByActor(ctx context.Context, actor string, since time.Time) (int64, error) {
	if d.failing() {
		return 0, errors.New("count failure")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var count int64
	for _, record := range d.reminders {
		if record.SentBy == actor && !record.SentAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (d *MockStoreClient) FindAccountByEmail(ctx context.Context, normalizedEmail string) (*models.Account, error) {
	if d.failing() {
		return nil, errors.New("find failure")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	account, ok := d.accounts[normalizedEmail]
	if !ok {
		return nil, nil
	}
	dup := *account
	return &dup, nil
}

// SeedAccount inserts an account directly, bypassing the invite flow.
func (d *MockStoreClient) SeedAccount(account *models.Account) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dup := *account
	d.accounts[account.NormalizedEmail] = &dup
}

func (d *MockStoreClient) ListAccounts(ctx context.Context, params ListAccountsParams) ([]*models.Account, int64, error) {
	if d.failing() {
		return nil, 0, errors.New("list failure")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var matched []*models.Account
	for _, account := range d.accounts {
		if len(params.Statuses) > 0 && !accountStatusIn(account.Status, params.Statuses) {
			continue
		}
		if params.Search != "" && !matchesSearch(params.Search, account.Email, account.FullName) {
			continue
		}
		dup := *account
		matched = append(matched, &dup)
	}
	sort.Slice(matched, func(a, b int) bool { return matched[a].CreatedAt.After(matched[b].CreatedAt) })
	total := int64(len(matched))
	return paginate(matched, params.Offset, params.Limit), total, nil
}

func accountStatusIn(s models.AccountStatus, set []models.AccountStatus) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}
