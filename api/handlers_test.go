package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	roomservice "github.com/julienbrs/blindtest-sub000/app/modules/room/application"
	storeevents "github.com/julienbrs/blindtest-sub000/app/shared/events"
	"github.com/julienbrs/blindtest-sub000/app/shared/testutils"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

type fakeBroadcaster struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, subject string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, payload)
	return nil
}

type fakeScheduler struct {
	mu        sync.Mutex
	scheduled []sharedtypes.RoomID
	cancelled []sharedtypes.RoomID
}

func (f *fakeScheduler) ScheduleRoomCleanup(_ context.Context, roomID sharedtypes.RoomID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, roomID)
	return nil
}

func (f *fakeScheduler) CancelRoomJobs(_ context.Context, roomID sharedtypes.RoomID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, roomID)
	return nil
}

var testSecret = []byte("test-secret")

func newTestServer(t *testing.T) (*httptest.Server, *fakeBroadcaster) {
	t.Helper()
	store := testutils.NewMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rooms := roomservice.NewRoomService(store, store, logger, nil, nil)
	broadcaster := &fakeBroadcaster{}
	handlers := NewHandlers(rooms, broadcaster, nil, testSecret, logger)
	server := httptest.NewServer(handlers.Router())
	t.Cleanup(server.Close)
	return server, broadcaster
}

func postJSON(t *testing.T, url, token string, body any) *http.Response {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(encoded))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func createRoomViaAPI(t *testing.T, server *httptest.Server) (code string, token string) {
	t.Helper()
	resp := postJSON(t, server.URL+"/rooms", "", map[string]any{"host_nickname": "host"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody(t, resp)
	room := body["room"].(map[string]any)
	return room["join_code"].(string), body["token"].(string)
}

func TestCreateRoomIssuesHostToken(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/rooms", "", map[string]any{"host_nickname": "host"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody(t, resp)

	require.NotEmpty(t, body["token"])
	claims, err := ParseToken(testSecret, body["token"].(string))
	require.NoError(t, err)
	player := body["player"].(map[string]any)
	assert.Equal(t, player["id"].(string), string(claims.PlayerID))
}

func TestJoinAndGetRoom(t *testing.T) {
	server, _ := newTestServer(t)
	code, _ := createRoomViaAPI(t, server)

	resp := postJSON(t, fmt.Sprintf("%s/rooms/%s/join", server.URL, code), "", map[string]any{"nickname": "guest"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	joined := decodeBody(t, resp)
	assert.NotEmpty(t, joined["token"])
	assert.Len(t, joined["players"].([]any), 2)

	getResp, err := http.Get(fmt.Sprintf("%s/rooms/%s", server.URL, code))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	state := decodeBody(t, getResp)
	assert.Len(t, state["players"].([]any), 2)
}

func TestJoinUnknownRoomIs404(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/rooms/ZZZZZZ/join", "", map[string]any{"nickname": "guest"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLeaveRequiresToken(t *testing.T) {
	server, _ := newTestServer(t)
	code, token := createRoomViaAPI(t, server)

	resp := postJSON(t, fmt.Sprintf("%s/rooms/%s/leave", server.URL, code), "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postJSON(t, fmt.Sprintf("%s/rooms/%s/leave", server.URL, code), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	left := decodeBody(t, resp)
	assert.Equal(t, true, left["ended"], "last player leaving ends the room")
}

func TestRoomLifecycleDrivesCleanupJobs(t *testing.T) {
	store := testutils.NewMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rooms := roomservice.NewRoomService(store, store, logger, nil, nil)
	scheduler := &fakeScheduler{}
	handlers := NewHandlers(rooms, &fakeBroadcaster{}, scheduler, testSecret, logger)
	server := httptest.NewServer(handlers.Router())
	t.Cleanup(server.Close)

	code, token := createRoomViaAPI(t, server)

	scheduler.mu.Lock()
	require.Len(t, scheduler.scheduled, 1)
	scheduler.mu.Unlock()

	resp := postJSON(t, fmt.Sprintf("%s/rooms/%s/leave", server.URL, code), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	left := decodeBody(t, resp)
	require.Equal(t, true, left["ended"])

	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	require.Len(t, scheduler.cancelled, 1)
	assert.Equal(t, scheduler.scheduled[0], scheduler.cancelled[0])
}

func TestReactRelaysAndRateLimits(t *testing.T) {
	server, broadcaster := newTestServer(t)
	code, token := createRoomViaAPI(t, server)
	url := fmt.Sprintf("%s/rooms/%s/react", server.URL, code)

	var lastStatus int
	for i := 0; i < reactionBurst+1; i++ {
		resp := postJSON(t, url, token, map[string]any{"emoji": "🔥"})
		resp.Body.Close()
		lastStatus = resp.StatusCode
	}
	assert.Equal(t, http.StatusTooManyRequests, lastStatus)

	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	require.Len(t, broadcaster.payloads, reactionBurst)

	var envelope storeevents.SignalEnvelopeV1
	require.NoError(t, json.Unmarshal(broadcaster.payloads[0], &envelope))
	assert.Equal(t, storeevents.SignalReaction, envelope.Type)
	var reaction storeevents.ReactionSignalV1
	require.NoError(t, json.Unmarshal(envelope.Payload, &reaction))
	assert.Equal(t, "🔥", reaction.Emoji)
}
