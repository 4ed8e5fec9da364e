package service

import (
	"context"
	"math"
	"testing"

	"ecoquest_miniapp/internal/model"
	"ecoquest_miniapp/internal/repository"
	"ecoquest_miniapp/internal/service/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestActivityInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		in      ActivityInput
		wantErr bool
	}{
		{name: "today implied", in: ActivityInput{ActivityID: 110, CarbonSaved: 1.2}},
		{name: "backdated", in: ActivityInput{ActivityID: 110, LogDate: "2024-03-01"}},
		{name: "same day", in: ActivityInput{ActivityID: 110, LogDate: "2024-03-13"}},
		{name: "missing activity", in: ActivityInput{CarbonSaved: 1}, wantErr: true},
		{name: "negative amount", in: ActivityInput{ActivityID: 1, CarbonProduced: -1}, wantErr: true},
		{name: "nan", in: ActivityInput{ActivityID: 1, InputValue: math.NaN()}, wantErr: true},
		{name: "bad date", in: ActivityInput{ActivityID: 1, LogDate: "13/03/2024"}, wantErr: true},
		{name: "future", in: ActivityInput{ActivityID: 1, LogDate: "2024-03-14"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.validate("2024-03-13")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestActivityService_Log(t *testing.T) {
	ctx := context.Background()

	t.Run("refreshes caches", func(t *testing.T) {
		f := newFixture(t)
		repo := &mocks.MockActivityRepository{}
		svc := NewActivityService(repo, f.stats, f.calendar)

		updated := &model.UserStats{UserID: 1, TotalXP: 40, CurrentLevel: 1, Streak: 3}
		repo.On("InsertActivity", mock.Anything, mock.MatchedBy(func(e *model.ActivityLog) bool {
			return e.UserID == 1 && e.ActivityID == 110 && e.LogDate == "2024-03-13" &&
				e.CarbonSaved == 2.5 && e.CreatedAt.Equal(testNow)
		})).Return(updated, nil)

		f.statsRepo.On("TotalCO2Saved", mock.Anything, int64(1)).Return(1.0, nil).Once()
		saved, err := f.stats.CO2Saved(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, 1.0, saved)
		f.stats.SetMissions(ctx, 1, &model.MissionList{Track: model.TrackDaily, PeriodKey: "2024-03-13"})

		got, err := svc.Log(ctx, 1, ActivityInput{ActivityID: 110, CarbonSaved: 2.5}, testNow)
		require.NoError(t, err)
		assert.Equal(t, updated, got)

		cached, err := f.stats.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 3, cached.Streak)

		_, hit := f.stats.GetMissions(ctx, 1, model.TrackDaily)
		assert.False(t, hit)

		f.statsRepo.On("TotalCO2Saved", mock.Anything, int64(1)).Return(3.5, nil).Once()
		saved, err = f.stats.CO2Saved(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 3.5, saved)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		f := newFixture(t)
		repo := &mocks.MockActivityRepository{}
		svc := NewActivityService(repo, f.stats, f.calendar)

		_, err := svc.Log(ctx, 1, ActivityInput{ActivityID: 110, LogDate: "2024-04-01"}, testNow)
		assert.ErrorIs(t, err, ErrValidation)
		repo.AssertNotCalled(t, "InsertActivity", mock.Anything, mock.Anything)
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newFixture(t)
		repo := &mocks.MockActivityRepository{}
		svc := NewActivityService(repo, f.stats, f.calendar)

		repo.On("InsertActivity", mock.Anything, mock.Anything).Return(nil, repository.ErrNotFound)

		_, err := svc.Log(ctx, 9, ActivityInput{ActivityID: 110}, testNow)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}
