package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/smartdevs17/nft-trade-watcher/internal/metrics"
	"github.com/smartdevs17/nft-trade-watcher/pkg/utils"
)

// Default rate limit policy. The sliding window guards short bursts;
// the global limiter enforces the marketplace-wide request budget
// shared by every tracker in the process.
const (
	DefaultWindowCalls   = 5
	DefaultWindow        = time.Second
	DefaultGlobalCalls   = 20
	DefaultGlobalWindow  = time.Minute
	DefaultTimeout       = 10 * time.Second
	rateLimitBackoff     = 5 * time.Second
	rateLimitMaxAttempts = 2
)

// Request describes one outbound marketplace API call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Params  map[string]string
	Body    interface{}
	Timeout time.Duration
}

// Response is the successful result of an executed request.
type Response struct {
	Status int
	Body   []byte
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return utils.NewAppError(utils.ErrCodeGateway, "Failed to decode response body", err.Error())
	}
	return nil
}

// Executor is the outbound request contract shared by all trackers.
type Executor interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// Doer abstracts *http.Client for tests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds gateway rate limit configuration.
type Config struct {
	WindowCalls  int           `json:"window_calls"`
	Window       time.Duration `json:"window"`
	GlobalCalls  int           `json:"global_calls"`
	GlobalWindow time.Duration `json:"global_window"`
	Timeout      time.Duration `json:"timeout"`
}

// HTTPGateway is the rate-limited, retrying request executor. All
// tracker variants share one instance and therefore one quota.
type HTTPGateway struct {
	client  Doer
	window  *SlidingWindow
	global  *rate.Limiter
	timeout time.Duration
	logger  *logrus.Logger
	metrics *metrics.Metrics

	// backoff is swapped out by tests.
	backoff func(ctx context.Context, d time.Duration) error
}

// NewHTTPGateway creates a gateway with the given rate limit policy.
func NewHTTPGateway(cfg *Config) *HTTPGateway {
	if cfg == nil {
		cfg = &Config{}
	}
	windowCalls := cfg.WindowCalls
	if windowCalls <= 0 {
		windowCalls = DefaultWindowCalls
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	globalCalls := cfg.GlobalCalls
	if globalCalls <= 0 {
		globalCalls = DefaultGlobalCalls
	}
	globalWindow := cfg.GlobalWindow
	if globalWindow <= 0 {
		globalWindow = DefaultGlobalWindow
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &HTTPGateway{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		window:  NewSlidingWindow(windowCalls, window),
		global:  rate.NewLimiter(rate.Every(globalWindow/time.Duration(globalCalls)), globalCalls),
		timeout: timeout,
		logger:  utils.GetLogger(),
		backoff: sleepContext,
	}
}

// SetClient replaces the HTTP client. Used by tests.
func (g *HTTPGateway) SetClient(client Doer) {
	g.client = client
}

// SetMetrics attaches request counters to the gateway.
func (g *HTTPGateway) SetMetrics(m *metrics.Metrics) {
	g.metrics = m
}

// Execute performs the request under the rate limit policy. A remote
// 429 is retried once after a fixed backoff; every other failure is
// returned as a value without retry.
func (g *HTTPGateway) Execute(ctx context.Context, req *Request) (*Response, error) {
	for attempt := 1; ; attempt++ {
		if err := g.window.Wait(ctx); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeGateway, "Cancelled while waiting for rate limit", err.Error())
		}
		if err := g.global.Wait(ctx); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeGateway, "Cancelled while waiting for global rate limit", err.Error())
		}

		resp, err := g.doOnce(ctx, req)
		if err != nil {
			return nil, err
		}
		if g.metrics != nil {
			g.metrics.GatewayRequestsTotal.WithLabelValues(strconv.Itoa(resp.Status)).Inc()
		}

		if resp.Status == http.StatusTooManyRequests {
			if attempt >= rateLimitMaxAttempts {
				return nil, utils.NewAppError(utils.ErrCodeRateLimited,
					"Remote rate limit exceeded", req.URL)
			}

			g.logger.WithField("url", req.URL).Warn("Rate limit exceeded, backing off")
			if g.metrics != nil {
				g.metrics.GatewayRateLimitWaits.Inc()
			}
			if err := g.backoff(ctx, rateLimitBackoff); err != nil {
				return nil, utils.NewAppError(utils.ErrCodeGateway, "Cancelled during backoff", err.Error())
			}
			continue
		}

		if resp.Status < 200 || resp.Status >= 300 {
			return nil, utils.NewAppError(utils.ErrCodeGateway,
				fmt.Sprintf("Request failed with status %d", resp.Status), req.URL)
		}

		return resp, nil
	}
}

func (g *HTTPGateway) doOnce(ctx context.Context, req *Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = g.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeGateway, "Failed to encode request body", err.Error())
		}
		body = bytes.NewReader(encoded)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeGateway, "Failed to build request", err.Error())
	}

	if len(req.Params) > 0 {
		q := url.Values{}
		for k, v := range req.Params {
			q.Set(k, v)
		}
		httpReq.URL.RawQuery = q.Encode()
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeGateway, "Request failed", err.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeGateway, "Failed to read response body", err.Error())
	}

	return &Response{Status: resp.StatusCode, Body: data}, nil
}
