package traffic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Defaults applied by New for zero-valued Config fields
const (
	DefaultCount              = 50
	DefaultPause              = 100 * time.Millisecond
	DefaultRequestTimeout     = 60 * time.Second
	DefaultHighTokenThreshold = 4000
)

const requestIDHeader = "X-Request-ID"

// Config controls one generator run
type Config struct {
	TargetURL          string
	Mode               Mode
	Count              int
	Concurrency        int
	Pause              time.Duration
	RequestTimeout     time.Duration
	HighTokenThreshold int
	Templates          Templates
}

// Answer is the /ask success body
type Answer struct {
	Response       string  `json:"response"`
	FinishReason   string  `json:"finish_reason"`
	Model          string  `json:"model"`
	PromptTokens   int     `json:"prompt_tokens"`
	ResponseTokens int     `json:"response_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	LatencyMs      float64 `json:"latency_ms"`
	TraceID        string  `json:"trace_id"`
	RequestID      string  `json:"request_id"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Result is the client-side view of one request
type Result struct {
	Index      int
	Mode       Mode
	Question   string
	RequestID  string
	StatusCode int
	Answer     *Answer
	// ErrorMessage holds the server's error text for non-2xx responses.
	ErrorMessage string
	Latency      time.Duration
	// Err is set when no HTTP response was received.
	Err error
}

// FinishReason returns the reported finish reason, or "" when the request
// produced no answer.
func (r Result) FinishReason() string {
	if r.Answer == nil {
		return ""
	}
	return r.Answer.FinishReason
}

// Generator issues open-loop traffic against the /ask endpoint
type Generator struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New validates cfg, fills defaults and returns a generator. A nil client
// uses a fresh http.Client; a nil logger discards output.
func New(cfg Config, client *http.Client, logger *zap.Logger) (*Generator, error) {
	if cfg.TargetURL == "" {
		return nil, errors.New("target URL is required")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeNormal
	}
	if _, err := ParseMode(string(cfg.Mode)); err != nil {
		return nil, err
	}
	if cfg.Count < 0 {
		return nil, fmt.Errorf("count must not be negative, got %d", cfg.Count)
	}
	if cfg.Count == 0 {
		cfg.Count = DefaultCount
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Pause < 0 {
		return nil, fmt.Errorf("pause must not be negative, got %s", cfg.Pause)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.HighTokenThreshold <= 0 {
		cfg.HighTokenThreshold = DefaultHighTokenThreshold
	}
	if cfg.Templates == nil {
		cfg.Templates = DefaultTemplates()
	}
	for i := range BaseModes {
		mode := cfg.Mode.modeFor(i)
		if _, err := cfg.Templates.Question(mode, 0); err != nil {
			return nil, err
		}
	}

	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Generator{cfg: cfg, client: client, logger: logger}, nil
}

// Config returns the effective configuration
func (g *Generator) Config() Config {
	return g.cfg
}

// Run sends Count requests. With a single worker each request waits for
// the previous response plus Pause; with more workers request starts are
// spaced by Pause and at most Concurrency are in flight. Responses never
// change what is sent next. Canceling ctx stops dispatch; the report then
// covers the requests already issued and ctx's error is returned
// alongside it.
func (g *Generator) Run(ctx context.Context) (*Report, error) {
	results := make([]Result, g.cfg.Count)
	start := time.Now()

	g.logger.Info("traffic run started",
		zap.String("target", g.cfg.TargetURL),
		zap.String("mode", string(g.cfg.Mode)),
		zap.Int("count", g.cfg.Count),
		zap.Int("concurrency", g.cfg.Concurrency),
		zap.Duration("pause", g.cfg.Pause))

	var (
		dispatched int
		runErr     error
	)
	if g.cfg.Concurrency == 1 {
		dispatched, runErr = g.runSequential(ctx, results)
	} else {
		dispatched, runErr = g.runConcurrent(ctx, results)
	}

	report := newReport(results[:dispatched], g.cfg.HighTokenThreshold, time.Since(start))
	g.logger.Info("traffic run finished",
		zap.Int("sent", len(report.Results)),
		zap.Int("transport_errors", report.TransportErrors),
		zap.Int("high_token_results", report.HighTokenResults),
		zap.Duration("duration", report.Duration))

	if runErr == nil {
		runErr = ctx.Err()
	}
	return report, runErr
}

func (g *Generator) runSequential(ctx context.Context, results []Result) (int, error) {
	for i := range results {
		if i > 0 && g.cfg.Pause > 0 {
			timer := time.NewTimer(g.cfg.Pause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return i, ctx.Err()
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return i, err
		}
		results[i] = g.send(ctx, i)
	}
	return len(results), nil
}

func (g *Generator) runConcurrent(ctx context.Context, results []Result) (int, error) {
	limit := rate.Inf
	if g.cfg.Pause > 0 {
		limit = rate.Every(g.cfg.Pause)
	}
	limiter := rate.NewLimiter(limit, 1)

	var eg errgroup.Group
	eg.SetLimit(g.cfg.Concurrency)

	dispatched := 0
	var runErr error
	for i := range results {
		if err := limiter.Wait(ctx); err != nil {
			runErr = err
			break
		}
		eg.Go(func() error {
			results[i] = g.send(ctx, i)
			return nil
		})
		dispatched++
	}
	_ = eg.Wait()
	return dispatched, runErr
}

func (g *Generator) send(ctx context.Context, i int) Result {
	mode := g.cfg.Mode.modeFor(i)
	slot := i
	if g.cfg.Mode == ModeMixed {
		slot = i / len(BaseModes)
	}
	question, _ := g.cfg.Templates.Question(mode, slot)

	result := Result{
		Index:     i,
		Mode:      mode,
		Question:  question,
		RequestID: uuid.NewString(),
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	status, body, err := g.post(reqCtx, result.RequestID, question)
	result.Latency = time.Since(start)

	if err != nil {
		result.Err = err
		g.logger.Warn("traffic request failed",
			zap.Int("index", i),
			zap.String("mode", string(mode)),
			zap.String("request_id", result.RequestID),
			zap.Error(err))
		return result
	}

	result.StatusCode = status
	if status >= 200 && status < 300 {
		var answer Answer
		if err := json.Unmarshal(body, &answer); err != nil {
			result.ErrorMessage = fmt.Sprintf("undecodable response: %v", err)
		} else {
			result.Answer = &answer
		}
	} else {
		var eb errorBody
		if err := json.Unmarshal(body, &eb); err == nil && eb.Error != "" {
			result.ErrorMessage = eb.Error
		} else {
			result.ErrorMessage = http.StatusText(status)
		}
	}

	g.logger.Info("traffic request",
		zap.Int("index", i),
		zap.String("mode", string(mode)),
		zap.String("request_id", result.RequestID),
		zap.Int("status", status),
		zap.String("finish_reason", result.FinishReason()),
		zap.Int64("latency_ms", result.Latency.Milliseconds()))
	return result
}

func (g *Generator) post(ctx context.Context, requestID, question string) (int, []byte, error) {
	payload, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.TargetURL, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDHeader, requestID)

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}
