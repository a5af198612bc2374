// Package api provides the Civitai TRPC client and the cursor-paginated
// page fetcher, with error classification, retry with linear backoff, and
// self-imposed request throttling.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/indigoray/civitai-downloader/pkg/logging"
)

// DefaultBaseURL is the production Civitai host.
const DefaultBaseURL = "https://civitai.com"

// DefaultTimeout bounds every metadata request.
const DefaultTimeout = 30 * time.Second

// defaultUserAgent identifies the client to the API.
const defaultUserAgent = "civitai-downloader/1.0"

// Client issues TRPC queries against the Civitai API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the API host (default: DefaultBaseURL).
	BaseURL string

	// Token is the bearer token, treated as an opaque input.
	Token string

	// Timeout per request (default: DefaultTimeout).
	Timeout time.Duration

	// UserAgent header value (default: defaultUserAgent).
	UserAgent string
}

// NewClient creates a new API client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		userAgent:  cfg.UserAgent,
		logger:     logging.NewLogger("api-client"),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// BaseURL returns the configured API host.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// envelope is the TRPC response wrapper: result.data.json holds the payload.
type envelope struct {
	Result struct {
		Data struct {
			JSON json.RawMessage `json:"json"`
		} `json:"data"`
	} `json:"result"`
}

// Call performs one TRPC GET query and decodes the payload into out.
// The input value is wrapped as {"json": input} and URL-encoded, matching
// the TRPC batchless GET convention. A non-2xx response or transport
// failure is returned as an *APIError with its error class; Call itself
// never retries.
func (c *Client) Call(ctx context.Context, procedure string, input any, out any) error {
	wrapped, err := json.Marshal(map[string]any{"json": input})
	if err != nil {
		return fmt.Errorf("encode %s input: %w", procedure, err)
	}

	reqURL := c.baseURL + "/api/trpc/" + procedure + "?input=" + url.QueryEscape(string(wrapped))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create %s request: %w", procedure, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.WithLabelValues(procedure).Observe(time.Since(start).Seconds())

	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(procedure, "network_error").Inc()
		return &APIError{
			ErrorClass: ErrorClassNetwork,
			Procedure:  procedure,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(procedure, fmt.Sprintf("%d", resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		class := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("endpoint", procedure).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("API request error")
		return &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Procedure:  procedure,
			Message:    resp.Status,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Procedure:  procedure,
			Message:    "read response body",
			Err:        err,
		}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode %s envelope: %w", procedure, err)
	}
	if out != nil && len(env.Result.Data.JSON) > 0 {
		if err := json.Unmarshal(env.Result.Data.JSON, out); err != nil {
			return fmt.Errorf("decode %s payload: %w", procedure, err)
		}
	}

	return nil
}
