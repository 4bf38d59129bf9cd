package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/skill-wager-platform/internal/match-coordinator/dto"
	"github.com/radieske/skill-wager-platform/internal/match-coordinator/intake"
	"github.com/radieske/skill-wager-platform/internal/match-coordinator/match"
	"github.com/radieske/skill-wager-platform/internal/match-coordinator/registry"
)

type fakeIntake struct {
	got intake.Request
	res intake.Response
	err error
}

func (f *fakeIntake) RequestMatch(_ context.Context, req intake.Request) (intake.Response, error) {
	f.got = req
	return f.res, f.err
}

type fakeMatches struct {
	snap     match.Snapshot
	err      error
	lastOp   match.OpCode
	lastData string
	left     string
}

func (f *fakeMatches) Snapshot(_ context.Context, id string) (match.Snapshot, error) {
	if f.err != nil {
		return match.Snapshot{}, f.err
	}
	if id != f.snap.ID {
		return match.Snapshot{}, match.ErrMatchNotFound
	}
	return f.snap, nil
}

func (f *fakeMatches) Leave(_ context.Context, _, userID string) error {
	f.left = userID
	return f.err
}

func (f *fakeMatches) Submit(_ context.Context, _, _ string, op match.OpCode, data []byte) error {
	f.lastOp = op
	f.lastData = string(data)
	return f.err
}

type fakeLabels struct {
	labels map[string]match.Label
	err    error
}

func (f *fakeLabels) Lookup(_ context.Context, id string) (match.Label, bool, error) {
	if f.err != nil {
		return match.Label{}, false, f.err
	}
	l, ok := f.labels[id]
	return l, ok, nil
}

type fakeSockets struct{ matchID, userID string }

func (f *fakeSockets) ServeMatch(w http.ResponseWriter, _ *http.Request, matchID, userID string) {
	f.matchID, f.userID = matchID, userID
	w.WriteHeader(http.StatusTeapot)
}

func newTestAPI() (*API, *fakeIntake, *fakeMatches, *fakeSockets) {
	in := &fakeIntake{}
	mt := &fakeMatches{snap: match.Snapshot{ID: "m1", GameID: "g1", BetAmount: 100, Status: match.StatusWaiting}}
	so := &fakeSockets{}
	return &API{Intake: in, Matches: mt, Sockets: so}, in, mt, so
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequestMatchCreated(t *testing.T) {
	api, in, _, _ := newTestAPI()
	in.res = intake.Response{MatchID: "m9", Action: intake.ActionCreated}

	rec := do(t, api.Router(), http.MethodPost, "/v1/matches",
		`{"gameId":"g1","betAmount":100,"userId":"alice","displayName":"Alice"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var out dto.MatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, dto.MatchResponse{MatchID: "m9", Action: "created"}, out)
	assert.Equal(t, intake.Request{GameID: "g1", BetAmount: 100, UserID: "alice", DisplayName: "Alice"}, in.got)
}

func TestRequestMatchJoined(t *testing.T) {
	api, in, _, _ := newTestAPI()
	in.res = intake.Response{MatchID: "m1", Action: intake.ActionJoined}

	rec := do(t, api.Router(), http.MethodPost, "/v1/matches", `{"gameId":"g1","betAmount":100,"userId":"bob"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"matchId":"m1","action":"joined"}`, rec.Body.String())
}

func TestRequestMatchBadJSON(t *testing.T) {
	api, _, _, _ := newTestAPI()
	rec := do(t, api.Router(), http.MethodPost, "/v1/matches", `{"gameId":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid payload"}`, rec.Body.String())
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{match.ErrInvalidPayload, http.StatusBadRequest},
		{match.ErrInsufficientFunds, http.StatusPaymentRequired},
		{match.ErrNotParticipant, http.StatusForbidden},
		{match.ErrMatchNotFound, http.StatusNotFound},
		{match.ErrMatchFull, http.StatusConflict},
		{match.ErrAlreadyStarted, http.StatusConflict},
		{match.ErrAlreadyJoined, http.StatusConflict},
		{match.ErrAlreadySubmitted, http.StatusConflict},
		{match.ErrNotReady, http.StatusConflict},
		{fmt.Errorf("%w: timeout", match.ErrLedgerUnavailable), http.StatusServiceUnavailable},
		{registry.ErrClosed, http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			api, in, _, _ := newTestAPI()
			in.err = tc.err
			rec := do(t, api.Router(), http.MethodPost, "/v1/matches", `{"gameId":"g1","betAmount":50,"userId":"u"}`)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestGetMatch(t *testing.T) {
	api, _, _, _ := newTestAPI()
	h := api.Router()

	rec := do(t, h, http.MethodGet, "/v1/matches/m1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap match.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "g1", snap.GameID)
	assert.Equal(t, match.StatusWaiting, snap.Status)

	rec = do(t, h, http.MethodGet, "/v1/matches/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLeaveMatch(t *testing.T) {
	api, _, mt, _ := newTestAPI()
	h := api.Router()

	rec := do(t, h, http.MethodPost, "/v1/matches/m1/leave", `{"userId":"alice"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", mt.left)

	rec = do(t, h, http.MethodPost, "/v1/matches/m1/leave", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	mt.err = match.ErrNotParticipant
	rec = do(t, h, http.MethodPost, "/v1/matches/m1/leave", `{"userId":"mallory"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSubmitScore(t *testing.T) {
	api, _, mt, _ := newTestAPI()
	h := api.Router()

	rec := do(t, h, http.MethodPost, "/v1/matches/m1/scores", `{"userId":"alice","score":500,"elapsedMs":0}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, match.OpScoreSubmit, mt.lastOp)
	assert.JSONEq(t, `{"score":500,"elapsedMs":0}`, mt.lastData)

	rec = do(t, h, http.MethodPost, "/v1/matches/m1/scores", `{"userId":"alice","score":500}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	mt.err = match.ErrAlreadySubmitted
	rec = do(t, h, http.MethodPost, "/v1/matches/m1/scores", `{"userId":"alice","score":1,"elapsedMs":1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSocketRoute(t *testing.T) {
	api, _, _, so := newTestAPI()
	h := api.Router()

	rec := do(t, h, http.MethodGet, "/ws/matches/m1?userId=alice", "")
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "m1", so.matchID)
	assert.Equal(t, "alice", so.userID)

	rec = do(t, h, http.MethodGet, "/ws/matches/m1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	api, _, _, _ := newTestAPI()
	api.AllowedOrigins = []string{"https://play.example.com"}

	req := httptest.NewRequest(http.MethodOptions, "/v1/matches", nil)
	req.Header.Set("Origin", "https://play.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)

	assert.Equal(t, "https://play.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGetLabel(t *testing.T) {
	api, _, _, _ := newTestAPI()
	labels := &fakeLabels{labels: map[string]match.Label{
		"m1": {GameID: "g1", BetAmount: 100, Status: match.StatusWaiting},
	}}
	api.Labels = labels
	h := api.Router()

	rec := do(t, h, http.MethodGet, "/v1/matches/m1/label", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"gameId":"g1","betAmount":100,"status":"waiting"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/v1/matches/m2/label", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	labels.err = fmt.Errorf("redis down")
	rec = do(t, h, http.MethodGet, "/v1/matches/m1/label", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
