package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upstream devolve "<nome> <método> <caminho>?<query>"
func upstream(t *testing.T, name string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, name+" "+r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newGateway(t *testing.T) *httptest.Server {
	t.Helper()
	h, err := New(Targets{
		Coordinator:   upstream(t, "coord").URL,
		Wallet:        upstream(t, "wallet").URL,
		Notifications: upstream(t, "notif").URL,
	}, nil, nil)
	require.NoError(t, err)
	gw := httptest.NewServer(h)
	t.Cleanup(gw.Close)
	return gw
}

func call(t *testing.T, gw *httptest.Server, method, path string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, gw.URL+path, strings.NewReader("{}"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestRoutes(t *testing.T) {
	gw := newGateway(t)

	cases := []struct{ method, path, want string }{
		{http.MethodPost, "/api/matches", "coord POST /v1/matches?"},
		{http.MethodGet, "/api/matches/m1", "coord GET /v1/matches/m1?"},
		{http.MethodPost, "/api/matches/m1/scores", "coord POST /v1/matches/m1/scores?"},
		{http.MethodGet, "/api/ws/matches/m1?userId=alice", "coord GET /ws/matches/m1?userId=alice"},
		{http.MethodGet, "/api/wallet?userId=alice", "wallet GET /wallet?userId=alice"},
		{http.MethodPost, "/api/wallet/deposit", "wallet POST /wallet/deposit?"},
		{http.MethodGet, "/api/notifications?userId=alice", "notif GET /notifications?userId=alice"},
	}
	for _, tc := range cases {
		code, body := call(t, gw, tc.method, tc.path)
		assert.Equal(t, http.StatusOK, code, tc.path)
		assert.Equal(t, tc.want, body)
	}
}

func TestLedgerMovementsAreNotExposed(t *testing.T) {
	gw := newGateway(t)

	code, _ := call(t, gw, http.MethodPost, "/api/wallet/debit")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = call(t, gw, http.MethodPost, "/api/wallet/credit")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestUpstreamDown(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	url := dead.URL
	dead.Close()

	h, err := New(Targets{Coordinator: url, Wallet: url, Notifications: url}, nil, nil)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/matches/m1", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestInvalidTarget(t *testing.T) {
	_, err := New(Targets{Coordinator: "::", Wallet: "http://w", Notifications: "http://n"}, nil, nil)
	assert.Error(t, err)
}
