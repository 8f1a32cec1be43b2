package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/signalsfoundry/collection-planner/internal/logging"
	"github.com/signalsfoundry/collection-planner/internal/observability"
	"github.com/signalsfoundry/collection-planner/model"
	"github.com/signalsfoundry/collection-planner/planner"
)

// Request lifecycle states reported by the oracle.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Default optimization parameters sent with every submission unless the
// caller overrides them.
const (
	DefaultMaxWindows     = 10
	DefaultMinConfidence  = 0.6
	DefaultPriorityWeight = 1.0
)

// NotFoundError reports a request id the oracle does not know. It is
// never retried.
type NotFoundError struct {
	RequestID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("planning request %s not found", e.RequestID)
}

// StatusError reports a non-success HTTP status from the oracle.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("oracle %s: HTTP %d: %s", e.Op, e.Code, e.Body)
}

// Submission is the oracle's acknowledgement of a planning request.
type Submission struct {
	RequestID           string `json:"request_id"`
	Status              string `json:"status"`
	EstimatedCompletion string `json:"estimated_completion,omitempty"`
}

// ResultWindow is one candidate collection window returned by the oracle.
// ConfidenceScore is filled in client-side from the four raw dimension
// scores.
type ResultWindow struct {
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	TemporalScore    float64   `json:"temporal_score"`
	SpatialScore     float64   `json:"spatial_score"`
	SpectralScore    float64   `json:"spectral_score"`
	RadiometricScore float64   `json:"radiometric_score"`
	ConfidenceScore  float64   `json:"confidence_score"`
}

// Scores returns the window's raw dimension scores keyed for the scoring
// engine.
func (w ResultWindow) Scores() planner.Scores {
	return planner.Scores{
		planner.DimTemporal:    w.TemporalScore,
		planner.DimSpatial:     w.SpatialScore,
		planner.DimSpectral:    w.SpectralScore,
		planner.DimRadiometric: w.RadiometricScore,
	}
}

// PollResult is the oracle's answer to a status poll. Windows and
// OverallConfidence are populated only when Status is COMPLETED.
type PollResult struct {
	Status            string         `json:"status"`
	Error             string         `json:"error,omitempty"`
	Windows           []ResultWindow `json:"collection_windows,omitempty"`
	OverallConfidence float64        `json:"overall_confidence"`
}

// Client talks to the oracle over HTTPS with bounded retries. It is safe
// for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	log     logging.Logger
	metrics *observability.OracleCollector
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client, typically for
// tests against a local TLS server.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger attaches a logger.
func WithLogger(log logging.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithMetrics attaches an oracle metrics collector.
func WithMetrics(m *observability.OracleCollector) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient validates cfg and constructs a Client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logging.Noop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(parts ...string) string {
	url := c.cfg.BaseURL + "/api/" + APIVersion
	for _, p := range parts {
		url += "/" + p
	}
	return url
}

// Submit sends a planning request for the asset and its requirements.
// Caller-supplied params are merged over the default optimization
// parameters.
func (c *Client) Submit(ctx context.Context, asset *model.Asset, requirements []*model.Requirement, params map[string]any) (*Submission, error) {
	if asset == nil {
		return nil, model.Validationf("asset is required")
	}
	optimization := map[string]any{
		"max_windows":     DefaultMaxWindows,
		"min_confidence":  DefaultMinConfidence,
		"priority_weight": DefaultPriorityWeight,
	}
	for k, v := range params {
		optimization[k] = v
	}
	payload := map[string]any{
		"asset":                   asset,
		"requirements":            requirements,
		"optimization_parameters": optimization,
	}

	var sub Submission
	if err := c.call(ctx, http.MethodPost, c.endpoint("optimize"), payload, &sub, "optimize"); err != nil {
		return nil, err
	}
	c.log.Debug(ctx, "planning request submitted",
		logging.String("request_id", sub.RequestID),
		logging.String("status", sub.Status),
	)
	return &sub, nil
}

// Poll fetches the status of a planning request. When the oracle reports
// COMPLETED, the returned windows are rescored through the scoring
// engine, sorted by confidence descending, and an overall confidence
// (mean of window confidences, 0.0 when empty) is attached.
func (c *Client) Poll(ctx context.Context, requestID string) (*PollResult, error) {
	if requestID == "" {
		return nil, model.Validationf("request id is required")
	}
	var result PollResult
	if err := c.call(ctx, http.MethodGet, c.endpoint("status", requestID), nil, &result, "status"); err != nil {
		return nil, c.mapNotFound(err, requestID)
	}
	c.metrics.IncPollCycles()

	if result.Status == StatusCompleted {
		if err := c.rescore(&result); err != nil {
			return nil, err
		}
	}
	return &result, nil
}

// Cancel asks the oracle to abandon an in-progress planning request.
func (c *Client) Cancel(ctx context.Context, requestID string) (bool, error) {
	if requestID == "" {
		return false, model.Validationf("request id is required")
	}
	var ack struct {
		Cancelled bool `json:"cancelled"`
	}
	if err := c.call(ctx, http.MethodDelete, c.endpoint("cancel", requestID), nil, &ack, "cancel"); err != nil {
		return false, c.mapNotFound(err, requestID)
	}
	c.log.Info(ctx, "planning request cancelled", logging.String("request_id", requestID))
	return true, nil
}

// rescore recomputes each window's confidence from its raw dimension
// scores and derives the overall confidence.
func (c *Client) rescore(result *PollResult) error {
	sum := 0.0
	for i := range result.Windows {
		confidence, err := planner.ComputeConfidence(result.Windows[i].Scores(), nil)
		if err != nil {
			return fmt.Errorf("rescore window %d: %w", i, err)
		}
		result.Windows[i].ConfidenceScore = confidence
		sum += confidence
	}
	sort.SliceStable(result.Windows, func(i, j int) bool {
		return result.Windows[i].ConfidenceScore > result.Windows[j].ConfidenceScore
	})
	if len(result.Windows) > 0 {
		result.OverallConfidence = sum / float64(len(result.Windows))
	} else {
		result.OverallConfidence = 0.0
	}
	return nil
}

// mapNotFound rewrites a 404 StatusError into a NotFoundError carrying
// the request id.
func (c *Client) mapNotFound(err error, requestID string) error {
	var se *StatusError
	if asStatusError(err, &se) && se.Code == http.StatusNotFound {
		return &NotFoundError{RequestID: requestID}
	}
	return err
}

func asStatusError(err error, target **StatusError) bool {
	for err != nil {
		if se, ok := err.(*StatusError); ok {
			*target = se
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// call performs one JSON request with retry. Connection errors, 5xx, and
// 429 are retried up to the configured attempt budget with exponential
// backoff; a 429's Retry-After header overrides the computed delay. Any
// other non-success status is permanent.
func (c *Client) call(ctx context.Context, method, url string, body, out any, op string) error {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
	}

	attempt := 0
	operation := func() ([]byte, error) {
		attempt++
		if attempt > 1 {
			c.metrics.IncRetries()
		}
		started := time.Now()
		data, err := c.doOnce(ctx, method, url, encoded, op)
		outcome := "success"
		if err != nil {
			outcome = classifyOutcome(err)
		}
		c.metrics.ObserveRequest(op, outcome, time.Since(started))
		return data, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryBase

	data, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries)),
	)
	if err != nil {
		return fmt.Errorf("oracle %s: %w", op, err)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s response: %w", op, err)
		}
	}
	return nil
}

// doOnce performs a single HTTP exchange and maps the response status to
// the retry classification expected by the caller.
func (c *Client) doOnce(ctx context.Context, method, url string, body []byte, op string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build %s request: %w", op, err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("X-API-Version", APIVersion)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		// Connection-level failure: retryable.
		return nil, fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", op, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
		return data, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		se := &StatusError{Op: op, Code: resp.StatusCode, Body: truncateBody(data)}
		if seconds, ok := retryAfterSeconds(resp); ok {
			c.log.Warn(req.Context(), "oracle rate limited",
				logging.String("op", op),
				logging.Int("retry_after_s", seconds),
			)
			return nil, backoff.RetryAfter(seconds)
		}
		return nil, se
	case resp.StatusCode >= 500:
		return nil, &StatusError{Op: op, Code: resp.StatusCode, Body: truncateBody(data)}
	default:
		return nil, backoff.Permanent(&StatusError{Op: op, Code: resp.StatusCode, Body: truncateBody(data)})
	}
}

func retryAfterSeconds(resp *http.Response) (int, bool) {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return seconds, true
}

func classifyOutcome(err error) string {
	var se *StatusError
	if asStatusError(err, &se) {
		switch {
		case se.Code == http.StatusTooManyRequests:
			return "rate_limited"
		case se.Code >= 500:
			return "server_error"
		default:
			return "client_error"
		}
	}
	return "network_error"
}

func truncateBody(data []byte) string {
	const limit = 256
	if len(data) > limit {
		return string(data[:limit]) + "..."
	}
	return string(data)
}
