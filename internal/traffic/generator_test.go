package traffic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/llm-blackbox/app"
	"github.com/upb/llm-blackbox/config"
	"github.com/upb/llm-blackbox/routes"
	"go.uber.org/zap/zaptest"
)

// newBlackboxServer serves the real router backed by the stub model
func newBlackboxServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		Environment: "test",
		Model: config.ModelConfig{
			Provider:  config.ProviderStub,
			Name:      "local-stub",
			Timeout:   2 * time.Second,
			MaxTokens: 1024,
		},
		Providers: config.ProvidersConfig{
			Stub: config.StubConfig{Seed: 3, BaseLatency: time.Millisecond},
		},
		Telemetry: config.TelemetryConfig{
			ServiceName:     "llm-blackbox",
			ServiceVersion:  "test",
			TracesExporter:  "none",
			MetricsExporter: "none",
			TokenPricePer1K: 0.002,
		},
		Observability: config.ObservabilityConfig{LogLevel: "info"},
	}

	deps, err := app.NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	server := httptest.NewServer(routes.SetupRoutes(deps))
	t.Cleanup(func() {
		server.Close()
		_ = deps.Close(context.Background())
	})
	return server
}

type capturedRequest struct {
	Question  string
	RequestID string
}

// recordingServer answers every request with status and records what it saw
func recordingServer(t *testing.T, status int, body any) (*httptest.Server, func() []capturedRequest) {
	t.Helper()

	var (
		mu   sync.Mutex
		seen []capturedRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Question string `json:"question"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		mu.Lock()
		seen = append(seen, capturedRequest{Question: req.Question, RequestID: r.Header.Get("X-Request-ID")})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(server.Close)

	return server, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), seen...)
	}
}

func TestGenerator_TokenExplosion(t *testing.T) {
	server := newBlackboxServer(t)

	gen, err := New(Config{
		TargetURL:          server.URL + "/ask",
		Mode:               ModeTokenExplosion,
		Count:              5,
		Concurrency:        2,
		HighTokenThreshold: 4000,
	}, server.Client(), zaptest.NewLogger(t))
	require.NoError(t, err)

	report, err := gen.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Results, 5)
	assert.Equal(t, 5, report.HighTokenResults)
	assert.Equal(t, 5, report.ByStatus[http.StatusOK])
	assert.Zero(t, report.TransportErrors)
	assert.Zero(t, report.ByFinishReason["ERROR"])

	for _, res := range report.Results {
		require.NotNil(t, res.Answer, "result %d", res.Index)
		assert.Greater(t, res.Answer.ResponseTokens, 4000)
		assert.NotEqual(t, "ERROR", res.FinishReason())
		assert.Equal(t, res.RequestID, res.Answer.RequestID)
	}
}

func TestGenerator_ModesAgainstStub(t *testing.T) {
	server := newBlackboxServer(t)

	tests := []struct {
		mode   Mode
		reason string
	}{
		{ModeNormal, "NORMAL"},
		{ModeUnsafe, "SAFETY"},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			gen, err := New(Config{
				TargetURL: server.URL + "/ask",
				Mode:      tt.mode,
				Count:     3,
				Pause:     time.Millisecond,
			}, server.Client(), nil)
			require.NoError(t, err)

			report, err := gen.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 3, report.ByFinishReason[tt.reason])
			assert.Equal(t, 3, report.Succeeded())
		})
	}
}

func TestGenerator_MixedRoundRobin(t *testing.T) {
	server, seen := recordingServer(t, http.StatusOK, Answer{FinishReason: "NORMAL"})

	gen, err := New(Config{
		TargetURL: server.URL,
		Mode:      ModeMixed,
		Count:     8,
	}, server.Client(), nil)
	require.NoError(t, err)

	report, err := gen.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 8)

	templates := DefaultTemplates()
	for i, res := range report.Results {
		want := BaseModes[i%len(BaseModes)]
		assert.Equal(t, want, res.Mode)
		assert.Contains(t, templates[want], res.Question)
	}

	requests := seen()
	require.Len(t, requests, 8)
	ids := make(map[string]bool)
	for _, req := range requests {
		assert.NotEmpty(t, req.RequestID)
		ids[req.RequestID] = true
	}
	assert.Len(t, ids, 8)
}

func TestGenerator_ErrorResponses(t *testing.T) {
	server, _ := recordingServer(t, http.StatusGatewayTimeout, map[string]string{"error": "model call timed out"})

	gen, err := New(Config{TargetURL: server.URL, Count: 3}, server.Client(), nil)
	require.NoError(t, err)

	report, err := gen.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.ByStatus[http.StatusGatewayTimeout])
	assert.Zero(t, report.Succeeded())
	assert.Empty(t, report.ByFinishReason)
	for _, res := range report.Results {
		assert.Nil(t, res.Answer)
		assert.Equal(t, "model call timed out", res.ErrorMessage)
	}
}

func TestGenerator_TransportErrors(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	gen, err := New(Config{TargetURL: url, Count: 2, RequestTimeout: time.Second}, nil, nil)
	require.NoError(t, err)

	report, err := gen.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.TransportErrors)
	assert.Empty(t, report.ByStatus)
	for _, res := range report.Results {
		assert.Error(t, res.Err)
		assert.Zero(t, res.StatusCode)
	}
}

func TestGenerator_ConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(Answer{FinishReason: "NORMAL"})
	}))
	defer server.Close()

	gen, err := New(Config{TargetURL: server.URL, Count: 9, Concurrency: 3}, server.Client(), nil)
	require.NoError(t, err)

	report, err := gen.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, report.Results, 9)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestGenerator_SequentialPauseFollowsResponse(t *testing.T) {
	const (
		serverDelay = 60 * time.Millisecond
		pause       = 40 * time.Millisecond
	)

	var (
		mu     sync.Mutex
		starts []time.Time
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		time.Sleep(serverDelay)
		_ = json.NewEncoder(w).Encode(Answer{FinishReason: "NORMAL"})
	}))
	defer server.Close()

	gen, err := New(Config{TargetURL: server.URL, Count: 3, Pause: pause}, server.Client(), nil)
	require.NoError(t, err)

	report, err := gen.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 3)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, starts, 3)
	for i := 1; i < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), serverDelay+pause)
	}
}

func TestGenerator_ConcurrentPauseSpacesStarts(t *testing.T) {
	const pause = 30 * time.Millisecond

	var (
		mu     sync.Mutex
		starts []time.Time
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		time.Sleep(100 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(Answer{FinishReason: "NORMAL"})
	}))
	defer server.Close()

	gen, err := New(Config{TargetURL: server.URL, Count: 3, Concurrency: 3, Pause: pause}, server.Client(), nil)
	require.NoError(t, err)

	_, err = gen.Run(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, starts, 3)
	// The next request starts while the previous one is still in flight.
	assert.Less(t, starts[1].Sub(starts[0]), 100*time.Millisecond)
	assert.GreaterOrEqual(t, starts[2].Sub(starts[0]), pause)
}

func TestGenerator_CanceledRun(t *testing.T) {
	server, seen := recordingServer(t, http.StatusOK, Answer{FinishReason: "NORMAL"})

	gen, err := New(Config{TargetURL: server.URL, Count: 5, Pause: time.Hour}, server.Client(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	report, err := gen.Run(ctx)
	assert.Error(t, err)
	require.NotNil(t, report)
	assert.Len(t, report.Results, 1)
	assert.Len(t, seen(), 1)
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		gen, err := New(Config{TargetURL: "http://localhost:8000/ask"}, nil, nil)
		require.NoError(t, err)

		cfg := gen.Config()
		assert.Equal(t, ModeNormal, cfg.Mode)
		assert.Equal(t, DefaultCount, cfg.Count)
		assert.Equal(t, 1, cfg.Concurrency)
		assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
		assert.Equal(t, DefaultHighTokenThreshold, cfg.HighTokenThreshold)
		assert.NotEmpty(t, cfg.Templates)
	})

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"missing url", Config{}, "target URL is required"},
		{"unknown mode", Config{TargetURL: "http://x", Mode: "CHAOS"}, "unknown traffic mode"},
		{"negative count", Config{TargetURL: "http://x", Count: -1}, "count must not be negative"},
		{"negative pause", Config{TargetURL: "http://x", Pause: -time.Second}, "pause must not be negative"},
		{"missing templates", Config{TargetURL: "http://x", Mode: ModeMixed, Templates: Templates{ModeNormal: {"a"}}}, "no templates for mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, err := New(tt.cfg, nil, nil)
			require.Error(t, err)
			assert.Nil(t, gen)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
