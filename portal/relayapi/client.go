// Package relayapi is the HTTP JSON client shared by the bridge plugins and the
// execution node client. It keeps a primary endpoint plus backups and fails
// over when the current one stops answering.
package relayapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "relayapi").Logger()
}

// HTTPError is a non 2xx answer.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, status int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == status
}

// Config controls attempts and failover behavior
type Config struct {
	// Attempts is the number of tries on the current endpoint. 1 means no retry.
	Attempts uint
	// RetryDelay is the initial delay between attempts (doubles with each attempt)
	RetryDelay time.Duration
	// HealthCheckInterval is how often to check if the primary endpoint is back up
	HealthCheckInterval time.Duration
	// HealthPath is requested with GET to decide if an endpoint is healthy
	HealthPath string
	// Timeout is the HTTP request timeout
	Timeout time.Duration
	// Headers are added to every request, e.g. an API key
	Headers map[string]string
}

// DefaultConfig returns the defaults: a single attempt per endpoint.
func DefaultConfig() Config {
	return Config{
		Attempts:            1,
		RetryDelay:          500 * time.Millisecond,
		HealthCheckInterval: 30 * time.Second,
		HealthPath:          "/",
		Timeout:             15 * time.Second,
	}
}

// Client talks JSON to one remote service with failover support.
type Client struct {
	name          string
	httpClient    *http.Client
	primaryURL    string
	backupURLs    []string
	currentURL    string
	mu            sync.RWMutex
	healthChecker *healthChecker
	config        Config
}

// healthChecker periodically checks if the primary endpoint is healthy
type healthChecker struct {
	client    *Client
	stopCh    chan struct{}
	stoppedCh chan struct{}
	isRunning bool
	mu        sync.Mutex
}

// NewClient creates a client for primaryURL. name only shows up in logs.
func NewClient(name, primaryURL string, backupURLs []string, config Config) (*Client, error) {
	if err := validateURL(primaryURL); err != nil {
		return nil, fmt.Errorf("invalid %s url: %w", name, err)
	}

	validBackups := make([]string, 0, len(backupURLs))
	for _, u := range backupURLs {
		if err := validateURL(u); err != nil {
			log.Warn().Err(err).Str("url", u).Msg("Invalid backup URL, skipping")
			continue
		}
		validBackups = append(validBackups, strings.TrimRight(u, "/"))
	}
	if config.Attempts == 0 {
		config.Attempts = 1
	}

	primaryURL = strings.TrimRight(primaryURL, "/")
	client := &Client{
		name:       name,
		httpClient: &http.Client{Timeout: config.Timeout},
		primaryURL: primaryURL,
		backupURLs: validBackups,
		currentURL: primaryURL,
		config:     config,
	}

	if len(validBackups) > 0 && config.HealthCheckInterval > 0 {
		client.startHealthChecker()
	}

	log.Info().
		Str("service", name).
		Str("primary", primaryURL).
		Int("backups", len(validBackups)).
		Msg("Client initialized")
	return client, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return nil
}

func (c *Client) startHealthChecker() {
	c.healthChecker = &healthChecker{
		client:    c,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	c.healthChecker.start()
}

func (h *healthChecker) start() {
	h.mu.Lock()
	if h.isRunning {
		h.mu.Unlock()
		return
	}
	h.isRunning = true
	h.mu.Unlock()

	go func() {
		defer close(h.stoppedCh)
		ticker := time.NewTicker(h.client.config.HealthCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-h.stopCh:
				return
			case <-ticker.C:
				h.checkAndRestore()
			}
		}
	}()
}

func (h *healthChecker) stop() {
	h.mu.Lock()
	if !h.isRunning {
		h.mu.Unlock()
		return
	}
	h.isRunning = false
	h.mu.Unlock()

	close(h.stopCh)
	<-h.stoppedCh
}

// checkAndRestore switches back to the primary endpoint once it is healthy again
func (h *healthChecker) checkAndRestore() {
	current := h.client.CurrentURL()
	if current == h.client.primaryURL {
		return
	}
	if h.client.isEndpointHealthy(h.client.primaryURL) {
		h.client.mu.Lock()
		h.client.currentURL = h.client.primaryURL
		h.client.mu.Unlock()
		log.Info().Str("service", h.client.name).Str("url", h.client.primaryURL).Msg("Restored primary endpoint")
	}
}

func (c *Client) isEndpointHealthy(endpoint string) bool {
	healthURL := endpoint + c.config.HealthPath
	resp, err := c.httpClient.Get(healthURL)
	if err != nil {
		log.Debug().Err(err).Str("url", healthURL).Msg("Health check failed")
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	log.Debug().Str("url", healthURL).Int("status", resp.StatusCode).Msg("Health check response")
	return resp.StatusCode < http.StatusInternalServerError
}

// CurrentURL returns the active endpoint.
func (c *Client) CurrentURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentURL
}

// failover switches to the next healthy endpoint
func (c *Client) failover() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	allURLs := append([]string{c.primaryURL}, c.backupURLs...)
	currentIdx := -1
	for i, u := range allURLs {
		if u == c.currentURL {
			currentIdx = i
			break
		}
	}

	for i := 1; i <= len(allURLs); i++ {
		nextURL := allURLs[(currentIdx+i)%len(allURLs)]
		if nextURL == c.currentURL {
			continue
		}
		if c.isEndpointHealthy(nextURL) {
			c.currentURL = nextURL
			log.Info().Str("service", c.name).Str("url", nextURL).Msg("Failover to endpoint")
			return true
		}
	}

	log.Warn().Str("service", c.name).Str("url", c.currentURL).Msg("All endpoints unhealthy, staying on current")
	return false
}

// Close stops the health checker.
func (c *Client) Close() {
	if c.healthChecker != nil {
		c.healthChecker.stop()
	}
}

// GetJSON performs GET path?query and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	if len(query) > 0 {
		path = path + "?" + query.Encode()
	}
	body, err := c.doWithFailover(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return decode(body, out)
}

// PostJSON encodes in as the request body and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	body, err := c.doWithFailover(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	return decode(body, out)
}

// PostJSONOnce is PostJSON with a single request to the current endpoint, no
// retry and no failover. Use it for requests that must not be submitted twice.
func (c *Client) PostJSONOnce(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, c.CurrentURL()+path, payload)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", c.name, err)
	}
	return decode(body, out)
}

func decode(body []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// doWithFailover tries the current endpoint Attempts times, then fails over to
// a healthy backup for one last try. 4xx answers are final.
func (c *Client) doWithFailover(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var body []byte
	err := retry.Do(
		func() error {
			var err error
			body, err = c.do(ctx, method, c.CurrentURL()+path, payload)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(c.config.Attempts),
		retry.Delay(c.config.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
	)
	if err == nil {
		return body, nil
	}
	if !isRetryable(err) || ctx.Err() != nil {
		return nil, err
	}

	if len(c.backupURLs) > 0 && c.failover() {
		body, ferr := c.do(ctx, method, c.CurrentURL()+path, payload)
		if ferr != nil {
			return nil, fmt.Errorf("failover request failed: %w (original: %w)", ferr, err)
		}
		return body, nil
	}
	return nil, fmt.Errorf("%s request failed after %d attempts: %w", c.name, c.config.Attempts, err)
}

func (c *Client) do(ctx context.Context, method, fullURL string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func isRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= http.StatusInternalServerError || httpErr.StatusCode == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled)
}
