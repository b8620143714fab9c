package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestAPI(srv *httptest.Server) *PanelAPI {
	return &PanelAPI{
		baseURL: srv.URL + "/api/client",
		apiKey:  "test-key",
		http:    srv.Client(),
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
}

func TestSanitizePanelURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://panel.example.com", "https://panel.example.com"},
		{"https://panel.example.com/", "https://panel.example.com"},
		{"https://panel.example.com///", "https://panel.example.com"},
		{"http://panel.example.com", "https://panel.example.com"},
		{"panel.example.com", "https://panel.example.com"},
		{"  panel.example.com/  ", "https://panel.example.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizePanelURL(tt.in), "input %q", tt.in)
	}
}

func TestPanelAPIHeaders(t *testing.T) {
	var gotAuth, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		_ = json.NewEncoder(w).Encode(resourcesResponse{})
	}))
	defer srv.Close()

	api := newTestAPI(srv)
	_, err := api.GetResources(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "application/json", gotAccept)
}

func TestPanelAPIErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"errors":[{"detail":"The requested resource could not be found."}]}`)
	}))
	defer srv.Close()

	api := newTestAPI(srv)
	_, err := api.GetServer(context.Background(), "missing")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "could not be found")
}

func TestGetServerStatusSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	api := newTestAPI(srv)
	assert.Equal(t, StateUnknown, api.GetServerStatus(context.Background(), "abc123"))
}

func TestGetServerStatusRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var resp resourcesResponse
		resp.Attributes.CurrentState = "running"
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	api := newTestAPI(srv)
	assert.Equal(t, "running", api.GetServerStatus(context.Background(), "abc123"))
}

func TestFetchServersPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		var resp serverListResponse
		resp.Meta.Pagination.TotalPages = 2
		switch page {
		case "1":
			resp.Meta.Pagination.CurrentPage = 1
			resp.Data = []struct {
				Attributes Server `json:"attributes"`
			}{{Attributes: Server{Identifier: "aaa", Name: "One"}}}
		case "2":
			resp.Meta.Pagination.CurrentPage = 2
			resp.Data = []struct {
				Attributes Server `json:"attributes"`
			}{{Attributes: Server{Identifier: "bbb", Name: "Two"}}}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	api := newTestAPI(srv)
	servers, err := api.FetchServers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, "aaa", servers[0].Identifier)
	assert.Equal(t, "bbb", servers[1].Identifier)
}

func TestSendPowerBody(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	api := newTestAPI(srv)
	require.NoError(t, api.SendPower(context.Background(), "abc123", "restart"))
	assert.Equal(t, "/api/client/servers/abc123/power", gotPath)
	assert.Equal(t, map[string]string{"signal": "restart"}, gotBody)
}

func TestSendPowerRejectsUnknownSignal(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	api := newTestAPI(srv)
	err := api.SendPower(context.Background(), "abc123", "reboot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reboot")
	assert.Zero(t, requests, "invalid signal must not reach the panel")
}

func TestValidPowerSignal(t *testing.T) {
	for _, s := range PowerSignals {
		assert.True(t, ValidPowerSignal(s), "signal %q", s)
	}
	assert.False(t, ValidPowerSignal("reboot"))
	assert.False(t, ValidPowerSignal(""))
}

func TestGetServerDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/client/servers/abc123", r.URL.Path)
		fmt.Fprint(w, `{"attributes":{"identifier":"abc123","name":"Lobby","node":"node-1","limits":{"memory":4096,"disk":10240,"cpu":200}}}`)
	}))
	defer srv.Close()

	api := newTestAPI(srv)
	got, err := api.GetServer(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "Lobby", got.Name)
	assert.Equal(t, "node-1", got.Node)
	assert.Equal(t, int64(4096), got.Limits.Memory)
}

func TestSendCommandBody(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	api := newTestAPI(srv)
	require.NoError(t, api.SendCommand(context.Background(), "abc123", "say hello"))
	assert.Equal(t, map[string]string{"command": "say hello"}, gotBody)
}

func TestExpectedState(t *testing.T) {
	assert.Equal(t, "running", ExpectedState("start"))
	assert.Equal(t, "running", ExpectedState("restart"))
	assert.Equal(t, "offline", ExpectedState("stop"))
	assert.Equal(t, "offline", ExpectedState("kill"))
	assert.Equal(t, "", ExpectedState("bogus"))
}

func TestPollConfigMaxPolls(t *testing.T) {
	assert.Equal(t, 10, DefaultPollConfig.MaxPolls())
	assert.Equal(t, 3, PollConfig{Interval: 3 * time.Second, Deadline: 10 * time.Second}.MaxPolls())
	assert.Equal(t, 0, PollConfig{Interval: 0, Deadline: time.Second}.MaxPolls())
}

func TestRunPollerReached(t *testing.T) {
	cfg := PollConfig{Interval: time.Millisecond, Deadline: 20 * time.Millisecond}

	polls := 0
	fetch := func(ctx context.Context) string {
		polls++
		if polls < 3 {
			return "starting"
		}
		return "running"
	}

	var updates []PollUpdate
	outcome := RunPoller(context.Background(), cfg, "running", fetch, func(u PollUpdate) {
		updates = append(updates, u)
	})

	assert.Equal(t, PollReached, outcome)
	assert.Equal(t, 3, polls)
	require.Len(t, updates, 3)
	assert.False(t, updates[0].Done)
	assert.Equal(t, "starting", updates[0].State)
	assert.True(t, updates[2].Done)
	assert.Equal(t, PollReached, updates[2].Outcome)
	assert.Equal(t, "running", updates[2].State)
	// The terminal update carries the real poll count, not the budget.
	assert.Equal(t, 3, updates[2].Poll)
}

func TestRunPollerTimedOut(t *testing.T) {
	cfg := PollConfig{Interval: time.Millisecond, Deadline: 5 * time.Millisecond}

	polls := 0
	fetch := func(ctx context.Context) string {
		polls++
		return "offline"
	}

	var updates []PollUpdate
	outcome := RunPoller(context.Background(), cfg, "running", fetch, func(u PollUpdate) {
		updates = append(updates, u)
	})

	assert.Equal(t, PollTimedOut, outcome)
	assert.Equal(t, cfg.MaxPolls(), polls)
	require.Len(t, updates, cfg.MaxPolls())
	last := updates[len(updates)-1]
	assert.True(t, last.Done)
	assert.Equal(t, PollTimedOut, last.Outcome)
	assert.Equal(t, "offline", last.State)
	assert.Equal(t, cfg.MaxPolls(), last.Poll)
}

func TestRunPollerCancelled(t *testing.T) {
	cfg := PollConfig{Interval: 10 * time.Millisecond, Deadline: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := RunPoller(ctx, cfg, "running", func(ctx context.Context) string {
		return "offline"
	}, func(u PollUpdate) {
		t.Fatal("render should not run after cancellation")
	})
	assert.Equal(t, PollCancelled, outcome)
}

func TestStatusEmoji(t *testing.T) {
	assert.Equal(t, "🟢", StatusEmoji("running"))
	assert.Equal(t, "🔴", StatusEmoji("offline"))
	assert.Equal(t, "⚪", StatusEmoji(StateUnknown))
	assert.Equal(t, "⚪", StatusEmoji("anything-else"))
}
