package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User // keyed by username
}

func newFakeUserRepo(users ...*domain.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: map[string]*domain.User{}}
	for _, user := range users {
		if user.ID == "" {
			user.ID = uuid.NewString()
		}
		repo.users[user.Username] = user
	}
	return repo
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.ID = uuid.NewString()
	r.users[user.Username] = user
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[username]; ok {
		return user, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) ListByRole(_ context.Context, role domain.Role) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.User
	for _, user := range r.users {
		if user.Role == role {
			out = append(out, *user)
		}
	}
	return out, nil
}

func newAuthFixture(users ...*domain.User) (*AuthService, *fakeUserRepo) {
	repo := newFakeUserRepo(users...)
	cfg := config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 60, BcryptCost: 4}
	return NewAuthService(cfg, repo), repo
}

func TestRegisterDefaultsToCustomer(t *testing.T) {
	svc, _ := newAuthFixture()

	user, err := svc.Register(context.Background(), "alice", "hunter2", "")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCustomer, user.Role)
	assert.NotEmpty(t, user.ID)
	assert.NotEqual(t, "hunter2", user.PasswordHash)
}

func TestRegisterRejectsTakenUsername(t *testing.T) {
	svc, _ := newAuthFixture(&domain.User{Username: "alice", Role: domain.RoleCustomer})

	_, err := svc.Register(context.Background(), "alice", "hunter2", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "CONFLICT"))
}

func TestLoginIssuesToken(t *testing.T) {
	svc, _ := newAuthFixture()
	_, err := svc.Register(context.Background(), "alice", "hunter2", domain.RoleSupport)
	require.NoError(t, err)

	session, err := svc.Login(context.Background(), "alice", "hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, domain.RoleSupport, session.User.Role)

	_, err = svc.Login(context.Background(), "alice", "wrong")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "UNAUTHORIZED"))
}

func TestUsersByRoleFilters(t *testing.T) {
	svc, _ := newAuthFixture(
		&domain.User{Username: "sam", Role: domain.RoleSupport},
		&domain.User{Username: "sue", Role: domain.RoleSupport},
		&domain.User{Username: "carl", Role: domain.RoleCustomer},
	)

	supporters, err := svc.UsersByRole(context.Background(), domain.RoleSupport)
	require.NoError(t, err)
	require.Len(t, supporters, 2)
	for _, user := range supporters {
		assert.Equal(t, domain.RoleSupport, user.Role)
	}
}

func TestUsersByRoleRejectsUnknownRole(t *testing.T) {
	svc, _ := newAuthFixture()

	_, err := svc.UsersByRole(context.Background(), "superuser")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
}
