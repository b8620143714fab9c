package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ============================================================================
// Panel API Client
// ============================================================================

// SanitizePanelURL normalizes a user-supplied panel URL: trailing slashes
// are stripped and the scheme is forced to https.
func SanitizePanelURL(raw string) string {
	url := strings.TrimRight(strings.TrimSpace(raw), "/")
	url = strings.TrimPrefix(url, "http://")
	if !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}
	return url
}

// APIError is a non-2xx response from the panel.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("panel returned HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("panel returned HTTP %d", e.StatusCode)
}

// PanelAPI talks to one panel's client API on behalf of one saved
// credential set. Outbound calls share a per-instance rate limiter so a
// pathological page fan-out cannot hammer the panel.
type PanelAPI struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

func NewPanelAPI(panel Panel) *PanelAPI {
	return &PanelAPI{
		baseURL: SanitizePanelURL(panel.PanelURL) + "/api/client",
		apiKey:  panel.APIKey,
		http:    HttpClient,
		limiter: rate.NewLimiter(rate.Limit(4), 10),
	}
}

func (a *PanelAPI) do(ctx context.Context, method, path string, body any, out any) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody struct {
			Errors []struct {
				Detail string `json:"detail"`
			} `json:"errors"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil && len(errBody.Errors) > 0 {
			apiErr.Message = errBody.Errors[0].Detail
		}
		return apiErr
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// --- Server Listing ---

// Server is a server the API key can see.
type Server struct {
	Identifier  string `json:"identifier"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Node        string `json:"node"`
	Limits      struct {
		Memory int64 `json:"memory"`
		Disk   int64 `json:"disk"`
		CPU    int64 `json:"cpu"`
	} `json:"limits"`
}

type serverListResponse struct {
	Data []struct {
		Attributes Server `json:"attributes"`
	} `json:"data"`
	Meta struct {
		Pagination struct {
			CurrentPage int `json:"current_page"`
			TotalPages  int `json:"total_pages"`
		} `json:"pagination"`
	} `json:"meta"`
}

// FetchServers walks every page of the server list.
func (a *PanelAPI) FetchServers(ctx context.Context) ([]Server, error) {
	var servers []Server
	for page := 1; ; page++ {
		var resp serverListResponse
		if err := a.do(ctx, http.MethodGet, fmt.Sprintf("?page=%d&per_page=100", page), nil, &resp); err != nil {
			return nil, err
		}
		for _, item := range resp.Data {
			servers = append(servers, item.Attributes)
		}
		if resp.Meta.Pagination.CurrentPage >= resp.Meta.Pagination.TotalPages {
			break
		}
	}
	return servers, nil
}

// GetServer fetches a single server's details.
func (a *PanelAPI) GetServer(ctx context.Context, serverID string) (*Server, error) {
	var resp struct {
		Attributes Server `json:"attributes"`
	}
	if err := a.do(ctx, http.MethodGet, "/servers/"+serverID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Attributes, nil
}

// --- Server Resources ---

// Resources is a point-in-time usage snapshot of one server.
type Resources struct {
	State       string
	MemoryBytes int64
	CPUPercent  float64
	DiskBytes   int64
	RxBytes     int64
	TxBytes     int64
	UptimeMs    int64
}

type resourcesResponse struct {
	Attributes struct {
		CurrentState string `json:"current_state"`
		Resources    struct {
			MemoryBytes    int64   `json:"memory_bytes"`
			CPUAbsolute    float64 `json:"cpu_absolute"`
			DiskBytes      int64   `json:"disk_bytes"`
			NetworkRxBytes int64   `json:"network_rx_bytes"`
			NetworkTxBytes int64   `json:"network_tx_bytes"`
			Uptime         int64   `json:"uptime"`
		} `json:"resources"`
	} `json:"attributes"`
}

// GetResources fetches the live usage snapshot for a server.
func (a *PanelAPI) GetResources(ctx context.Context, serverID string) (*Resources, error) {
	var resp resourcesResponse
	if err := a.do(ctx, http.MethodGet, "/servers/"+serverID+"/resources", nil, &resp); err != nil {
		return nil, err
	}
	return &Resources{
		State:       resp.Attributes.CurrentState,
		MemoryBytes: resp.Attributes.Resources.MemoryBytes,
		CPUPercent:  resp.Attributes.Resources.CPUAbsolute,
		DiskBytes:   resp.Attributes.Resources.DiskBytes,
		RxBytes:     resp.Attributes.Resources.NetworkRxBytes,
		TxBytes:     resp.Attributes.Resources.NetworkTxBytes,
		UptimeMs:    resp.Attributes.Resources.Uptime,
	}, nil
}

// StateUnknown is reported when a status read fails. A poll loop keeps
// running through unknowns instead of aborting.
const StateUnknown = "unknown"

// GetServerStatus returns the server's current state, or StateUnknown
// when the read fails for any reason.
func (a *PanelAPI) GetServerStatus(ctx context.Context, serverID string) string {
	res, err := a.GetResources(ctx, serverID)
	if err != nil {
		return StateUnknown
	}
	return res.State
}

// --- Actions ---

// PowerSignals is the set of signals the panel accepts.
var PowerSignals = []string{"start", "stop", "restart", "kill"}

// ValidPowerSignal reports whether signal is one of PowerSignals.
func ValidPowerSignal(signal string) bool {
	for _, s := range PowerSignals {
		if s == signal {
			return true
		}
	}
	return false
}

// SendPower sends a power signal. Unknown signals are rejected without
// touching the network.
func (a *PanelAPI) SendPower(ctx context.Context, serverID, signal string) error {
	if !ValidPowerSignal(signal) {
		return fmt.Errorf("invalid power signal %q", signal)
	}
	return a.do(ctx, http.MethodPost, "/servers/"+serverID+"/power", map[string]string{"signal": signal}, nil)
}

// SendCommand runs a console command on the server.
func (a *PanelAPI) SendCommand(ctx context.Context, serverID, command string) error {
	return a.do(ctx, http.MethodPost, "/servers/"+serverID+"/command", map[string]string{"command": command}, nil)
}

// --- Credential Probe ---

// ProbePanelKey validates a panel URL and API key before saving them.
// The application nodes endpoint requires a valid key, so any non-401
// success or failure tells us what we need.
func ProbePanelKey(ctx context.Context, panelURL, apiKey string) error {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := SanitizePanelURL(panelURL) + "/api/application/nodes"
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := HttpClient.Do(req)
	if err != nil {
		return fmt.Errorf(ErrPanelUnreachable, SanitizePanelURL(panelURL))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf(ErrPanelInvalidKey)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusForbidden:
		// Client keys cannot list nodes but the key itself is valid.
		return nil
	default:
		return fmt.Errorf(ErrPanelHTTPStatus, resp.StatusCode)
	}
}

// ============================================================================
// Status Poller
// ============================================================================

// ExpectedState maps a power signal to the state it should settle in.
func ExpectedState(signal string) string {
	switch signal {
	case "start", "restart":
		return "running"
	case "stop", "kill":
		return "offline"
	default:
		return ""
	}
}

type PollOutcome int

const (
	PollReached PollOutcome = iota
	PollTimedOut
	PollCancelled
)

// PollUpdate is one observation delivered to the render callback.
type PollUpdate struct {
	State    string
	Expected string
	Poll     int
	Done     bool
	Outcome  PollOutcome
}

// PollConfig sets the cadence of a status poll loop.
type PollConfig struct {
	Interval time.Duration
	Deadline time.Duration
}

var DefaultPollConfig = PollConfig{
	Interval: 3 * time.Second,
	Deadline: 30 * time.Second,
}

// MaxPolls is the number of status reads the loop will perform.
func (c PollConfig) MaxPolls() int {
	if c.Interval <= 0 {
		return 0
	}
	return int(math.Floor(float64(c.Deadline) / float64(c.Interval)))
}

// RunPoller repeatedly reads a server's state until it matches expected
// or the poll budget runs out. Every observation is handed to render,
// including the terminal one. Blocks until done.
func RunPoller(ctx context.Context, cfg PollConfig, expected string, fetch func(ctx context.Context) string, render func(u PollUpdate)) PollOutcome {
	maxPolls := cfg.MaxPolls()
	timer := time.NewTimer(cfg.Interval)
	defer timer.Stop()

	last := StateUnknown
	for poll := 1; poll <= maxPolls; poll++ {
		select {
		case <-ctx.Done():
			return PollCancelled
		case <-timer.C:
		}

		last = fetch(ctx)
		if last == expected {
			render(PollUpdate{State: last, Expected: expected, Poll: poll, Done: true, Outcome: PollReached})
			return PollReached
		}

		if poll == maxPolls {
			break
		}
		render(PollUpdate{State: last, Expected: expected, Poll: poll})
		timer.Reset(cfg.Interval)
	}

	render(PollUpdate{State: last, Expected: expected, Poll: maxPolls, Done: true, Outcome: PollTimedOut})
	return PollTimedOut
}

// ============================================================================
// Status Presentation
// ============================================================================

var statusEmoji = map[string]string{
	"running":    "🟢",
	"offline":    "🔴",
	"installing": "🟡",
	"starting":   "🟠",
	"stopping":   "🟠",
	"stopped":    "⚫",
}

// StatusEmoji returns the indicator for a server state.
func StatusEmoji(state string) string {
	if e, ok := statusEmoji[state]; ok {
		return e
	}
	return "⚪"
}

// FormatStatus renders a state with its indicator.
func FormatStatus(state string) string {
	return StatusEmoji(state) + " " + state
}

// ============================================================================
// API Cache
// ============================================================================

// apiCache reuses PanelAPI instances (and their limiters) per credential
// set, keyed by URL and key.
var apiCache = struct {
	sync.Mutex
	m map[string]*PanelAPI
}{m: map[string]*PanelAPI{}}

// APIFor returns the shared PanelAPI for a saved panel.
func APIFor(panel Panel) *PanelAPI {
	key := panel.PanelURL + "\x00" + panel.APIKey
	apiCache.Lock()
	defer apiCache.Unlock()
	if api, ok := apiCache.m[key]; ok {
		return api
	}
	api := NewPanelAPI(panel)
	apiCache.m[key] = api
	return api
}
