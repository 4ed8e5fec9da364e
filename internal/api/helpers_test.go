package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"ecoquest_miniapp/internal/model"
	"ecoquest_miniapp/internal/period"
	"ecoquest_miniapp/internal/service"
	"ecoquest_miniapp/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const botToken = "123456:TEST-TOKEN"

var testNow = time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)

func initData(t *testing.T, userID int64) string {
	t.Helper()

	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
	values.Set("user", fmt.Sprintf(`{"id":%d,"username":"user%d"}`, userID, userID))

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + values.Get(k)
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(pairs, "\n")))
	values.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return values.Encode()
}

type testServer struct {
	router     *gin.Engine
	users      *mockUserService
	missions   *mockMissionService
	claims     *mockClaimService
	vitality   *mockVitalityService
	activities *mockActivityService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &testServer{
		router:     gin.New(),
		users:      &mockUserService{},
		missions:   &mockMissionService{},
		claims:     &mockClaimService{},
		vitality:   &mockVitalityService{},
		activities: &mockActivityService{},
	}
	a := auth.NewTelegramAuth(botToken, false, time.Hour)
	clock := period.FixedClock{T: testNow}

	v1 := s.router.Group("/api/v1")
	NewUserRoutes(v1, s.users, a)
	NewMissionRoutes(v1, s.missions, s.claims, a, clock)
	NewVitalityRoutes(v1, s.vitality, a, clock)
	NewActivityRoutes(v1, s.activities, a, clock)
	return s
}

func (s *testServer) do(t *testing.T, method, path string, userID int64, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		req.Header.Set("Authorization", "Telegram "+initData(t, userID))
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

type mockUserService struct{ mock.Mock }

func (m *mockUserService) RegisterUser(ctx context.Context, user *model.User) (*model.User, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserService) GetSummary(ctx context.Context, userID int64) (*service.UserSummary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UserSummary), args.Error(1)
}

func (m *mockUserService) GetLeaderboard(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.LeaderboardEntry), args.Error(1)
}

type mockMissionService struct{ mock.Mock }

func (m *mockMissionService) ListMissions(ctx context.Context, userID int64, track model.Track, now time.Time) (*model.MissionList, error) {
	args := m.Called(ctx, userID, track, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MissionList), args.Error(1)
}

func (m *mockMissionService) ListAll(ctx context.Context, userID int64, now time.Time) ([]*model.MissionList, error) {
	args := m.Called(ctx, userID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.MissionList), args.Error(1)
}

type mockClaimService struct{ mock.Mock }

func (m *mockClaimService) Claim(ctx context.Context, userID int64, ref model.MissionRef) (*model.ClaimResult, error) {
	args := m.Called(ctx, userID, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ClaimResult), args.Error(1)
}

type mockVitalityService struct{ mock.Mock }

func (m *mockVitalityService) Get(ctx context.Context, userID int64, now time.Time) (*model.VitalityStatus, error) {
	args := m.Called(ctx, userID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VitalityStatus), args.Error(1)
}

func (m *mockVitalityService) Decay(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

type mockActivityService struct{ mock.Mock }

func (m *mockActivityService) Log(ctx context.Context, userID int64, in service.ActivityInput, now time.Time) (*model.UserStats, error) {
	args := m.Called(ctx, userID, in, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserStats), args.Error(1)
}
