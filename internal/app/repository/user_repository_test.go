package repository

import (
	"testing"

	"github.com/ikkim/storefront-backend/internal/app/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestUserRepository_Create(t *testing.T) {
	testDB := setupRepoTest(t)
	repo := NewUserRepository(testDB)

	tests := []struct {
		name    string
		user    *model.User
		wantErr error
	}{
		{
			name: "Valid user",
			user: &model.User{Email: "test@example.com", PasswordHash: "hash", Name: "Test User", Role: model.RoleUser},
		},
		{
			name:    "Duplicate email",
			user:    &model.User{Email: "test@example.com", PasswordHash: "hash", Name: "Another User", Role: model.RoleUser},
			wantErr: gorm.ErrDuplicatedKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Create(tt.user)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, tt.user.ID)
		})
	}
}

func TestUserRepository_FindByEmail(t *testing.T) {
	testDB := setupRepoTest(t)
	repo := NewUserRepository(testDB)
	require.NoError(t, repo.Create(&model.User{Email: "test@example.com", PasswordHash: "hash", Name: "Test"}))

	found, err := repo.FindByEmail("TEST@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "test@example.com", found.Email)
	assert.Equal(t, model.RoleUser, found.Role)

	_, err = repo.FindByEmail("missing@example.com")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUserRepository_FindByID(t *testing.T) {
	testDB := setupRepoTest(t)
	repo := NewUserRepository(testDB)
	user := &model.User{Email: "test@example.com", PasswordHash: "hash", Name: "Test"}
	require.NoError(t, repo.Create(user))

	found, err := repo.FindByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, found.Email)

	_, err = repo.FindByID(9999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
