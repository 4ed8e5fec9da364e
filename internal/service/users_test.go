package service

import (
	"context"
	"testing"

	"ecoquest_miniapp/internal/model"
	"ecoquest_miniapp/internal/repository"
	"ecoquest_miniapp/internal/service/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestUserService_RegisterUser(t *testing.T) {
	ctx := context.Background()
	user := &model.User{UserID: 42, Username: "fern", RegistrationDate: testNow, AuthDate: testNow}

	t.Run("new user", func(t *testing.T) {
		f := newFixture(t)
		repo := &mocks.MockUserRepository{}
		svc := NewUserService(repo, f.stats)

		repo.On("CreateUser", mock.Anything, user).Return(nil)
		repo.On("GetUser", mock.Anything, int64(42)).Return(user, nil)

		got, err := svc.RegisterUser(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, user, got)
		repo.AssertNotCalled(t, "UpdateAuthDate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("returning user", func(t *testing.T) {
		f := newFixture(t)
		repo := &mocks.MockUserRepository{}
		svc := NewUserService(repo, f.stats)

		repo.On("CreateUser", mock.Anything, user).Return(repository.ErrAlreadyExists)
		repo.On("UpdateAuthDate", mock.Anything, int64(42), "fern", testNow).Return(nil)
		repo.On("GetUser", mock.Anything, int64(42)).Return(user, nil)

		_, err := svc.RegisterUser(ctx, user)
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("invalid", func(t *testing.T) {
		f := newFixture(t)
		svc := NewUserService(&mocks.MockUserRepository{}, f.stats)

		_, err := svc.RegisterUser(ctx, &model.User{})
		assert.ErrorIs(t, err, ErrValidation)
		_, err = svc.RegisterUser(ctx, nil)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("store failure", func(t *testing.T) {
		f := newFixture(t)
		repo := &mocks.MockUserRepository{}
		svc := NewUserService(repo, f.stats)

		repo.On("CreateUser", mock.Anything, user).Return(assert.AnError)

		_, err := svc.RegisterUser(ctx, user)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})
}

func TestUserService_GetUser(t *testing.T) {
	f := newFixture(t)
	repo := &mocks.MockUserRepository{}
	svc := NewUserService(repo, f.stats)

	repo.On("GetUser", mock.Anything, int64(7)).Return(nil, repository.ErrNotFound)

	_, err := svc.GetUser(context.Background(), 7)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserService_GetSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewUserService(&mocks.MockUserRepository{}, f.stats)

	stats := &model.UserStats{UserID: 1, TotalXP: 340, CurrentLevel: 4, Vitality: 60}
	f.statsRepo.On("GetUserStats", mock.Anything, int64(1)).Return(stats, nil).Once()
	f.statsRepo.On("TotalCO2Saved", mock.Anything, int64(1)).Return(12.5, nil).Once()

	for i := 0; i < 3; i++ {
		summary, err := svc.GetSummary(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, stats, summary.Stats)
		assert.Equal(t, 12.5, summary.CO2Saved)
	}
	f.statsRepo.AssertExpectations(t)
}

func TestUserService_GetLeaderboard(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{name: "default", limit: 0, want: 100},
		{name: "explicit", limit: 10, want: 10},
		{name: "capped", limit: 500, want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			repo := &mocks.MockUserRepository{}
			svc := NewUserService(repo, f.stats)

			entries := []*model.LeaderboardEntry{{UserID: 1, Username: "a", TotalXP: 500, CurrentLevel: 6}}
			repo.On("GetTopUsers", mock.Anything, tt.want).Return(entries, nil)

			got, err := svc.GetLeaderboard(context.Background(), tt.limit)
			require.NoError(t, err)
			assert.Equal(t, entries, got)
		})
	}
}
