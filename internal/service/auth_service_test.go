package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/acadhub/projhub-api/internal/models"
	appErrors "github.com/acadhub/projhub-api/pkg/errors"
)

type authRepoStub struct {
	users         map[string]*models.User
	refreshTokens map[string]*models.RefreshToken
	revoked       []string
}

func newAuthRepoStub() *authRepoStub {
	return &authRepoStub{
		users:         make(map[string]*models.User),
		refreshTokens: make(map[string]*models.RefreshToken),
	}
}

func (a *authRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range a.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (a *authRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := a.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (a *authRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (a *authRepoStub) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	a.refreshTokens[token.Token] = token
	return nil
}

func (a *authRepoStub) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if stored, ok := a.refreshTokens[token]; ok {
		return stored, nil
	}
	return nil, sql.ErrNoRows
}

func (a *authRepoStub) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	a.revoked = append(a.revoked, id)
	for _, stored := range a.refreshTokens {
		if stored.ID == id {
			stored.Revoked = true
		}
	}
	return nil
}

func (a *authRepoStub) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	return nil
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "unit-test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "projhub-api",
	}
}

func seedUser(t *testing.T, repo *authRepoStub, role models.UserRole) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		ID:           "user-1",
		Email:        "student@uni.example",
		PasswordHash: string(hash),
		FullName:     "Dana Student",
		Role:         role,
		Active:       true,
	}
	repo.users[user.ID] = user
	return user
}

func TestAuthServiceLogin(t *testing.T) {
	repo := newAuthRepoStub()
	user := seedUser(t, repo, models.RoleStudent)
	svc := NewAuthService(repo, &auditStub{}, nil, testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    user.Email,
		Password: "correct horse",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, user.ID, resp.User.ID)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
	require.Equal(t, models.RoleStudent, claims.Role)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := newAuthRepoStub()
	user := seedUser(t, repo, models.RoleStudent)
	svc := NewAuthService(repo, &auditStub{}, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    user.Email,
		Password: "wrong",
	})
	require.True(t, appErrors.IsCode(err, appErrors.ErrInvalidCredentials.Code))
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	repo := newAuthRepoStub()
	user := seedUser(t, repo, models.RoleStudent)
	user.Active = false
	svc := NewAuthService(repo, &auditStub{}, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    user.Email,
		Password: "correct horse",
	})
	require.True(t, appErrors.IsCode(err, appErrors.ErrInactiveAccount.Code))
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	repo := newAuthRepoStub()
	user := seedUser(t, repo, models.RoleSupervisor)
	svc := NewAuthService(repo, &auditStub{}, nil, testAuthConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    user.Email,
		Password: "correct horse",
	})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.NoError(t, err)
	require.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// the consumed token is revoked, replaying it fails
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.True(t, appErrors.IsCode(err, appErrors.ErrUnauthorized.Code))
}

func TestAuthServiceValidateTokenRejectsGarbage(t *testing.T) {
	svc := NewAuthService(newAuthRepoStub(), &auditStub{}, nil, testAuthConfig())
	_, err := svc.ValidateToken("not.a.token")
	require.True(t, appErrors.IsCode(err, appErrors.ErrUnauthorized.Code))
}

func TestAuthServiceLogout(t *testing.T) {
	repo := newAuthRepoStub()
	user := seedUser(t, repo, models.RoleStudent)
	svc := NewAuthService(repo, &auditStub{}, nil, testAuthConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    user.Email,
		Password: "correct horse",
	})
	require.NoError(t, err)

	err = svc.Logout(context.Background(), login.RefreshToken, "someone-else")
	require.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))

	require.NoError(t, svc.Logout(context.Background(), login.RefreshToken, user.ID))
	require.NotEmpty(t, repo.revoked)
}
