package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"academy/internal/models"
	"academy/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestUserRepository_GetByID(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	tests := []struct {
		name         string
		userID       uint
		mockBehavior func()
		expectedCode string
	}{
		{
			name:   "Success",
			userID: 1,
			mockBehavior: func() {
				rows := sqlmock.NewRows([]string{"id", "username", "email", "access_level"}).
					AddRow(1, "testuser", "test@example.com", "basic")
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE "users"."id" = $1 AND "users"."deleted_at" IS NULL ORDER BY "users"."id" LIMIT $2`)).
					WithArgs(1, 1).
					WillReturnRows(rows)
			},
		},
		{
			name:   "Not Found",
			userID: 99,
			mockBehavior: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE "users"."id" = $1 AND "users"."deleted_at" IS NULL ORDER BY "users"."id" LIMIT $2`)).
					WithArgs(99, 1).
					WillReturnError(gorm.ErrRecordNotFound)
			},
			expectedCode: models.CodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockBehavior()
			user, err := repo.GetByID(ctx, tt.userID)
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, models.ErrorCode(err))
				assert.Nil(t, user)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "testuser", user.Username)
				assert.Equal(t, models.AccessBasic, user.AccessLevel)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepository_CreateAndLookup(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	u := &models.User{Username: "masha", Email: "Masha@Example.com", Password: "x"}
	require.NoError(t, repo.Create(ctx, u))
	assert.Equal(t, models.AccessFree, u.AccessLevel)

	dup := &models.User{Username: "masha", Email: "other@example.com", Password: "x"}
	assert.Equal(t, models.CodeConflict, models.ErrorCode(repo.Create(ctx, dup)))

	byEmail, err := repo.GetByEmail(ctx, " masha@example.com ")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, u.ID, byEmail.ID)

	missing, err := repo.GetByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	other := testutil.CreateUser(t, db, "ion")
	users, err := repo.GetByIDs(ctx, []uint{other.ID, u.ID, 4242})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, u.ID, users[0].ID)

	page, err := repo.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, other.ID, page[0].ID)
}

func TestUserRepository_UpdateAccess(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	end := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)
	u := testutil.CreateUser(t, db, "ana")

	premium := models.AccessPremium
	active := models.SubscriptionActive
	updated, err := repo.UpdateAccess(ctx, u.ID, AccessUpdate{
		AccessLevel:         &premium,
		SubscriptionStatus:  &active,
		SubscriptionEndDate: &end,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AccessPremium, updated.AccessLevel)
	assert.Equal(t, models.SubscriptionActive, updated.SubscriptionStatus)
	require.NotNil(t, updated.SubscriptionEndDate)
	assert.True(t, end.Equal(*updated.SubscriptionEndDate))
	assert.Equal(t, models.RoleStudent, updated.Role)

	cleared, err := repo.UpdateAccess(ctx, u.ID, AccessUpdate{ClearEndDate: true})
	require.NoError(t, err)
	assert.Nil(t, cleared.SubscriptionEndDate)

	_, err = repo.UpdateAccess(ctx, 777, AccessUpdate{AccessLevel: &premium})
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}

func TestUserRepository_SaveAIUsageTouchesOnlyCounters(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	u := testutil.CreateUser(t, db, "vlad", testutil.WithAccess(models.AccessBasic))

	stale := *u
	// Another request upgrades the user meanwhile.
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", u.ID).Update("access_level", models.AccessPremium).Error)

	now := time.Now()
	stale.AIRequestsToday = 3
	stale.AILastRequestAt = &now
	require.NoError(t, repo.SaveAIUsage(ctx, &stale))

	fresh, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, fresh.AIRequestsToday)
	assert.NotNil(t, fresh.AILastRequestAt)
	assert.Equal(t, models.AccessPremium, fresh.AccessLevel)
}
