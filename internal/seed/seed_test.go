package seed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Kaiettt/iot-fall-detection/internal/client"
	"github.com/Kaiettt/iot-fall-detection/internal/consumer"
	"github.com/Kaiettt/iot-fall-detection/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAPI struct {
	existing  bool
	signUpErr error
	ingested  map[string]bool
	ingestErr error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{ingested: make(map[string]bool)}
}

func (f *fakeAPI) SignUp(ctx context.Context, email, password string) (client.Account, error) {
	if f.signUpErr != nil {
		return client.Account{}, f.signUpErr
	}
	if f.existing {
		return client.Account{}, client.ErrUsernameTaken
	}
	f.existing = true
	return client.Account{UserID: "u-1", Username: email}, nil
}

func (f *fakeAPI) SignIn(ctx context.Context, email, password string) (client.Account, error) {
	return client.Account{UserID: "u-1", Username: email}, nil
}

func (f *fakeAPI) Ingest(ctx context.Context, userID string, p consumer.DevicePayload) (models.FallEvent, error) {
	if f.ingestErr != nil {
		return models.FallEvent{}, f.ingestErr
	}
	if f.ingested[p.ID] {
		return models.FallEvent{}, &client.APIError{Path: "/api/v1/ingest/" + userID, Message: "fall event already exists"}
	}
	f.ingested[p.ID] = true
	return models.FallEvent{ID: p.ID, Timestamp: p.Timestamp}, nil
}

func TestSampleEvents(t *testing.T) {
	now := time.Date(2024, 11, 14, 15, 0, 0, 0, time.UTC)
	events := SampleEvents(now)
	require.Len(t, events, 4)
	assert.Equal(t, now.UnixMilli(), events[3].Timestamp)
	assert.Equal(t, now.Add(-24*time.Hour).UnixMilli(), events[2].Timestamp)
	for _, e := range events {
		_, err := e.ToEvent()
		assert.NoError(t, err, e.ID)
	}
}

func TestRun_CreatesUserThenIsIdempotent(t *testing.T) {
	api := newFakeAPI()
	events := SampleEvents(time.Now())

	res, err := Run(context.Background(), api, "alice", "pw", events, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "u-1", res.UserID)
	assert.Equal(t, 4, res.Appended)

	res, err = Run(context.Background(), api, "alice", "pw", events, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, 0, res.Appended)
	assert.Equal(t, 4, res.Skipped)
}

func TestRun_TransportErrorStops(t *testing.T) {
	api := newFakeAPI()
	api.ingestErr = errors.New("connection refused")

	_, err := Run(context.Background(), api, "alice", "pw", SampleEvents(time.Now()), zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fallId1")
}

func TestRun_SignUpFailure(t *testing.T) {
	api := newFakeAPI()
	api.signUpErr = &client.APIError{Path: "/api/v1/auth/signup", Message: "missing username or password"}

	_, err := Run(context.Background(), api, "", "", nil, zap.NewNop())
	require.Error(t, err)
}
