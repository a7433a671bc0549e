package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Kaiettt/iot-fall-detection/internal/account"
	"github.com/Kaiettt/iot-fall-detection/internal/aggregator"
	"github.com/Kaiettt/iot-fall-detection/internal/assistant"
	"github.com/Kaiettt/iot-fall-detection/internal/identity"
	"github.com/Kaiettt/iot-fall-detection/internal/models"
	"github.com/Kaiettt/iot-fall-detection/internal/session"
	"github.com/Kaiettt/iot-fall-detection/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type envelope[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

func setupRouter(t *testing.T) (*store.MemoryStore, *Router) {
	t.Helper()
	logger := zap.NewNop()
	ms := store.NewMemoryStore()
	require.NoError(t, ms.CreateUser(context.Background(), models.User{UserID: "u-1", Username: "alice"}))

	resolver := identity.NewResolver(ms)
	opts := aggregator.Options{WindowSize: 100, SeriesSize: 20, Location: time.UTC}

	router := NewRouter(logger)
	router.RegisterAuthRoutes(NewAuthHandler(account.NewService(ms, logger), logger))
	router.RegisterDashboardRoutes(NewDashboardHandler(resolver, ms, opts, logger))
	router.RegisterAssistantRoutes(NewAssistantHandler(assistant.NewAssistant(resolver, ms, time.UTC, logger), logger))
	router.RegisterIngestRoutes(NewIngestHandler(ms, logger))
	router.RegisterOpsRoutes(nil)
	return ms, router
}

func doJSON(t *testing.T, h http.Handler, method, path, username string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if username != "" {
		req.Header.Set(session.HeaderUsername, username)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var out envelope[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestAuth_SignUpThenSignIn(t *testing.T) {
	_, router := setupRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"email": "bob@example.com", "password": "pw",
	})
	signup := decode[map[string]string](t, w)
	require.Equal(t, ResultSuccess, signup.Code, signup.Message)
	assert.Equal(t, "bob", signup.Result["username"])

	w = doJSON(t, router, http.MethodPost, "/api/v1/auth/signin", "", map[string]string{
		"email": "bob@example.com", "password": "pw",
	})
	signin := decode[map[string]string](t, w)
	require.Equal(t, ResultSuccess, signin.Code)
	assert.Equal(t, signup.Result["userId"], signin.Result["userId"])

	w = doJSON(t, router, http.MethodPost, "/api/v1/auth/signin", "", map[string]string{
		"email": "bob@example.com", "password": "nope",
	})
	failed := decode[any](t, w)
	assert.Equal(t, ResultError, failed.Code)
	assert.Equal(t, "invalid email or password", failed.Message)
}

func TestAuth_MethodNotAllowed(t *testing.T) {
	_, router := setupRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/auth/signup", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestDashboard_ComputesView(t *testing.T) {
	ms, router := setupRouter(t)
	ctx := context.Background()

	require.NoError(t, ms.AppendEvent(ctx, "u-1", models.FallEvent{ID: "e1", Timestamp: 1_700_000_000_000, HeartRate: 70}))
	require.NoError(t, ms.AppendEvent(ctx, "u-1", models.FallEvent{ID: "e2", Timestamp: 1_700_000_060_000, FallDetected: true, HeartRate: 110}))
	require.NoError(t, ms.AppendEvent(ctx, "u-1", models.FallEvent{ID: "e3", Timestamp: 1_700_000_120_000, HeartRate: 66}))

	w := doJSON(t, router, http.MethodGet, "/api/v1/dashboard", "alice@example.com", nil)
	res := decode[aggregator.View](t, w)

	require.Equal(t, ResultSuccess, res.Code, res.Message)
	assert.Equal(t, 1, res.Result.Stats.TotalFalls)
	assert.Equal(t, 82, res.Result.Stats.AvgHeartRate)
	assert.Equal(t, 66, res.Result.Stats.LatestHeartRate)
	require.NotNil(t, res.Result.Stats.LastFallTime)
	assert.Equal(t, int64(1_700_000_060_000), *res.Result.Stats.LastFallTime)
	assert.Len(t, res.Result.Series, 3)
	assert.Equal(t, "e3", res.Result.Window[0].ID)
}

func TestDashboard_IdentityFailures(t *testing.T) {
	_, router := setupRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/dashboard", "", nil)
	assert.Equal(t, "user ID is required", decode[any](t, w).Message)

	w = doJSON(t, router, http.MethodGet, "/api/v1/dashboard", "ghost", nil)
	assert.Equal(t, "account not found", decode[any](t, w).Message)
}

func TestExport_WritesWorkbook(t *testing.T) {
	ms, router := setupRouter(t)
	ctx := context.Background()

	require.NoError(t, ms.AppendEvent(ctx, "u-1", models.FallEvent{ID: "e1", Timestamp: 1_700_000_000_000, HeartRate: 70}))
	require.NoError(t, ms.AppendEvent(ctx, "u-1", models.FallEvent{ID: "e2", Timestamp: 1_700_000_060_000, FallDetected: true, HeartRate: 110}))

	w := doJSON(t, router, http.MethodGet, "/api/v1/fall-events/export", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "spreadsheetml")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(fallEventSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, FallEventExportHeader, rows[0])
	assert.Equal(t, []string{"11/14/2023, 10:14:20 PM", "Yes", "110", "e2"}, rows[1])
	assert.Equal(t, "e1", rows[2][3])
}

func TestAssistantQuery(t *testing.T) {
	ms, router := setupRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/assistant/query", "alice", map[string]string{"text": "Is grandma OK?"})
	res := decode[assistant.Reply](t, w)
	require.Equal(t, ResultSuccess, res.Code)
	assert.Equal(t, "I don't have any fall data for your family member at the moment.", res.Result.Text)

	require.NoError(t, ms.AppendEvent(context.Background(), "u-1", models.FallEvent{
		ID: "e1", Timestamp: 1_700_000_000_000, FallDetected: true, HeartRate: 80,
	}))

	w = doJSON(t, router, http.MethodPost, "/api/v1/assistant/query", "alice", map[string]string{"text": "Is grandma OK?"})
	res = decode[assistant.Reply](t, w)
	assert.Equal(t,
		"I'm concerned. There was a fall detected at 11/14/2023, 10:13:20 PM. Heart rate was 80 BPM. You might want to check on them.",
		res.Result.Text,
	)

	w = doJSON(t, router, http.MethodPost, "/api/v1/assistant/query", "ghost", map[string]string{"text": "grandpa"})
	res = decode[assistant.Reply](t, w)
	assert.Equal(t, "I couldn't find your account information. Please make sure you're logged in.", res.Result.Text)

	w = doJSON(t, router, http.MethodPost, "/api/v1/assistant/query", "alice", map[string]string{"text": "play music"})
	res = decode[assistant.Reply](t, w)
	assert.False(t, res.Result.Handled)
}

func TestIngest(t *testing.T) {
	ms, router := setupRouter(t)

	body := map[string]any{"id": "e1", "timestamp": 1_700_000_000_000, "fallDetected": true, "heartRate": 90}
	w := doJSON(t, router, http.MethodPost, "/api/v1/ingest/u-1", "", body)
	require.Equal(t, ResultSuccess, decode[any](t, w).Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/ingest/u-1", "", body)
	assert.Equal(t, ResultError, decode[any](t, w).Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/ingest/u-1", "", map[string]any{"heartRate": 90})
	invalid := decode[any](t, w)
	assert.Equal(t, ResultError, invalid.Code)
	assert.True(t, strings.Contains(invalid.Message, "invalid device payload"))

	w = doJSON(t, router, http.MethodPost, "/api/v1/ingest/", "", body)
	assert.Equal(t, "user ID is required", decode[any](t, w).Message)

	events, err := ms.GetLatest(context.Background(), "u-1", 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestOpsRoutes(t *testing.T) {
	_, router := setupRouter(t)

	w := doJSON(t, router, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
