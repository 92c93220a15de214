package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukekeith/makeready/internal/domain/entities"
	"github.com/lukekeith/makeready/internal/domain/repositories"
	"github.com/lukekeith/makeready/internal/infrastructure/authcode"
	"github.com/lukekeith/makeready/internal/oauth"
)

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]entities.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]entities.User)}
}

func (r *memUserRepo) Create(ctx context.Context, u *entities.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = *u
	return nil
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*entities.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	return &u, nil
}

func (r *memUserRepo) GetByGoogleID(ctx context.Context, googleID string) (*entities.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.GoogleID == googleID {
			u := u
			return &u, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r *memUserRepo) Update(ctx context.Context, u *entities.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; !ok {
		return repositories.ErrUserNotFound
	}
	r.users[u.ID] = *u
	return nil
}

func newTestService(t *testing.T) (*AuthService, *memUserRepo) {
	t.Helper()
	repo := newMemUserRepo()
	codes := authcode.NewMemoryStoreWithClock(time.Now)
	t.Cleanup(func() { codes.Close() })
	return NewAuthService(repo, codes), repo
}

func TestUpsertAccount_CreatesNewAccount(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	user, err := svc.UpsertAccount(ctx, &oauth.Identity{
		Subject: "google-1",
		Email:   "new@example.com",
		Name:    "New User",
		Picture: "https://example.com/pic.jpg",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "google-1", user.GoogleID)
	assert.Equal(t, "new@example.com", user.Email)
	require.NotNil(t, user.Picture)
	assert.Equal(t, "https://example.com/pic.jpg", *user.Picture)

	stored, err := repo.GetByGoogleID(ctx, "google-1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.ID)
}

func TestUpsertAccount_RefreshesExistingAccount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.UpsertAccount(ctx, &oauth.Identity{
		Subject: "google-1",
		Email:   "old@example.com",
		Name:    "Old Name",
	})
	require.NoError(t, err)

	second, err := svc.UpsertAccount(ctx, &oauth.Identity{
		Subject: "google-1",
		Email:   "new@example.com",
		Name:    "New Name",
		Picture: "https://example.com/pic.jpg",
	})
	require.NoError(t, err)

	// Same account, refreshed profile
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "new@example.com", second.Email)
	assert.Equal(t, "New Name", second.Name)
	require.NotNil(t, second.Picture)
}

func TestUpsertAccount_DistinctSubjectsGetDistinctAccounts(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	// Same email on two provider subjects stays two accounts; identity is
	// keyed on the subject, not the email
	_, err := svc.UpsertAccount(ctx, &oauth.Identity{Subject: "google-1", Email: "shared@example.com", Name: "A"})
	require.NoError(t, err)
	_, err = svc.UpsertAccount(ctx, &oauth.Identity{Subject: "google-2", Email: "shared@example.com", Name: "B"})
	require.NoError(t, err)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Len(t, repo.users, 2)
}

func TestAuthCode_IssueAndRedeem(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	code, err := svc.IssueAuthCode(ctx, "session-1", "user-1", 5*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, code)

	entry, err := svc.RedeemAuthCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "session-1", entry.SessionID)
	assert.Equal(t, "user-1", entry.UserID)

	// Second redemption fails: the code is gone
	_, err = svc.RedeemAuthCode(ctx, code)
	assert.ErrorIs(t, err, repositories.ErrAuthCodeNotFound)
}
