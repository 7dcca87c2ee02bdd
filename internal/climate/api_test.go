package climate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoroom/autoroom/pkg/config"
	"github.com/autoroom/autoroom/pkg/mqtt"
	redislib "github.com/autoroom/autoroom/pkg/redis"
)

// fakeMQTT records published messages for assertions
type fakeMQTT struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{published: make(map[string][][]byte)}
}

func (f *fakeMQTT) Connect(ctx context.Context) error { return nil }
func (f *fakeMQTT) Disconnect()                       {}
func (f *fakeMQTT) IsConnected() bool                 { return true }

func (f *fakeMQTT) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	return nil
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[topic] = append(f.published[topic], payload)
	return nil
}

func (f *fakeMQTT) messages(topic string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published[topic]
}

// fakeRedis satisfies the redis.Client interface with in-memory storage
type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
	hashes map[string]map[string]string
	zsets  map[string][]redislib.ZMember
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		values: make(map[string]string),
		hashes: make(map[string]map[string]string),
		zsets:  make(map[string][]redislib.ZMember),
	}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := value.(string); ok {
		f.values[key] = s
	}
	return nil
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[key], nil
}

func (f *fakeRedis) HSet(ctx context.Context, key string, field string, value interface{}) error {
	return nil
}

func (f *fakeRedis) HGet(ctx context.Context, key string, field string) (string, error) {
	return "", nil
}

func (f *fakeRedis) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hashes[key], nil
}

func (f *fakeRedis) ZAdd(ctx context.Context, key string, score float64, member interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var s string
	switch v := member.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	}
	f.zsets[key] = append(f.zsets[key], redislib.ZMember{Score: score, Member: s})
	return nil
}

func (f *fakeRedis) ZRemRangeByScore(ctx context.Context, key string, min, max string) error {
	return nil
}

func (f *fakeRedis) ZCard(ctx context.Context, key string) (int64, error) { return 0, nil }

func (f *fakeRedis) ZRangeByScoreWithScores(ctx context.Context, key string, min, max float64) ([]redislib.ZMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var members []redislib.ZMember
	for _, m := range f.zsets[key] {
		if m.Score >= min && m.Score <= max {
			members = append(members, m)
		}
	}
	return members, nil
}

func (f *fakeRedis) LPush(ctx context.Context, key string, values ...interface{}) error { return nil }
func (f *fakeRedis) LTrim(ctx context.Context, key string, start, stop int64) error     { return nil }
func (f *fakeRedis) LLen(ctx context.Context, key string) (int64, error)                { return 0, nil }
func (f *fakeRedis) Expire(ctx context.Context, key string, ttl time.Duration) error    { return nil }
func (f *fakeRedis) Ping(ctx context.Context) error                                     { return nil }
func (f *fakeRedis) Close() error                                                       { return nil }

func newTestAgent(t *testing.T) (*Agent, *fakeMQTT, *fakeRedis) {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Location = "living_room"
	broker := newFakeMQTT()
	store := newFakeRedis()
	return NewAgent(broker, store, cfg, testLogger()), broker, store
}

func TestAPIStateEndpoint(t *testing.T) {
	agent, _, store := newTestAgent(t)
	server := httptest.NewServer(NewAPIServer(agent, testLogger()).Handler())
	defer server.Close()

	// Two recent crossings and one from yesterday
	eventsKey := redislib.CrossingEventsKey("living_room")
	now := time.Now().UTC()
	for _, age := range []time.Duration{5 * time.Minute, 30 * time.Minute, 25 * time.Hour} {
		at := now.Add(-age)
		require.NoError(t, store.ZAdd(context.Background(), eventsKey,
			float64(at.UnixMilli()), `{"direction":"entry"}`))
	}

	resp, err := http.Get(server.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap StateSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))

	assert.Equal(t, "living_room", snap.Location)
	assert.Equal(t, 0, snap.Occupancy.Count)
	assert.Equal(t, 2, snap.CrossingsLastHour)
	assert.Nil(t, snap.Override)
}

func TestAPIOverrideLifecycle(t *testing.T) {
	agent, broker, _ := newTestAgent(t)
	server := httptest.NewServer(NewAPIServer(agent, testLogger()).Handler())
	defer server.Close()

	client := &http.Client{}

	// Set an override
	req, err := http.NewRequest(http.MethodPut, server.URL+"/api/override",
		strings.NewReader(`{"setpoint_c": 22, "duration_minutes": 15}`))
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The state reflects the active override and the recommendation follows it
	resp, err = http.Get(server.URL + "/api/state")
	require.NoError(t, err)
	var snap StateSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	resp.Body.Close()

	require.NotNil(t, snap.Override)
	assert.Equal(t, 22.0, snap.Override.SetpointC)
	require.NotNil(t, snap.Recommendation)
	assert.Equal(t, ReasonOverride, snap.Recommendation.Reason)
	assert.Equal(t, 22.0, snap.Recommendation.SetpointC)

	// Setting the override re-evaluated and published a setpoint
	setpoints := broker.messages(mqtt.SetpointTopic("living_room"))
	require.NotEmpty(t, setpoints)

	// Clear the override
	req, err = http.NewRequest(http.MethodDelete, server.URL+"/api/override", nil)
	require.NoError(t, err)
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Clearing again reports not found
	req, err = http.NewRequest(http.MethodDelete, server.URL+"/api/override", nil)
	require.NoError(t, err)
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIOverrideValidation(t *testing.T) {
	agent, _, _ := newTestAgent(t)
	server := httptest.NewServer(NewAPIServer(agent, testLogger()).Handler())
	defer server.Close()

	req, err := http.NewRequest(http.MethodPut, server.URL+"/api/override",
		strings.NewReader(`{"duration_minutes": 15}`))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIRecalibrate(t *testing.T) {
	agent, broker, _ := newTestAgent(t)
	server := httptest.NewServer(NewAPIServer(agent, testLogger()).Handler())
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/recalibrate", "application/json",
		strings.NewReader(`{"count": 0}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	// The command was forwarded to the beam agent's topic
	commands := broker.messages(mqtt.RecalibrateTopic("living_room"))
	require.Len(t, commands, 1)
	assert.JSONEq(t, `{"count": 0}`, string(commands[0]))

	// Negative counts are rejected before anything is published
	resp, err = http.Post(server.URL+"/api/recalibrate", "application/json",
		strings.NewReader(`{"count": -2}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Len(t, broker.messages(mqtt.RecalibrateTopic("living_room")), 1)
}
