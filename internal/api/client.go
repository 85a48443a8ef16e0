package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/nhle/taskboard/internal/credential"
	"github.com/nhle/taskboard/internal/logging"
	"github.com/nhle/taskboard/internal/metrics"
)

// DefaultTimeout bounds every request when Options.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Options configures a Client.
type Options struct {
	// BaseURL is the root URL of the service (e.g., https://tasks.example.com).
	BaseURL string

	// Timeout bounds each request; zero means DefaultTimeout.
	Timeout time.Duration

	// Tokens caches the bearer credential. Nil means no header injection.
	Tokens credential.Store

	// Transport overrides the HTTP round tripper (tests).
	Transport http.RoundTripper
}

// Client is a thin HTTP client for the task service REST API.
// It attaches the cached bearer credential, keeps session cookies in a jar,
// and reports failures as RemoteError or TransportError. It never retries.
type Client struct {
	baseURL    string
	tokens     credential.Store
	httpClient *http.Client
	log        zerolog.Logger
	now        func() time.Time
}

// NewClient creates a new API client.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		tokens:  opts.Tokens,
		httpClient: &http.Client{
			Timeout:   timeout,
			Jar:       jar,
			Transport: opts.Transport,
		},
		log: logging.WithComponent("api"),
		now: time.Now,
	}, nil
}

// BaseURL returns the service root URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Jar returns the session cookie jar so the push channel can share it.
func (c *Client) Jar() http.CookieJar {
	return c.httpClient.Jar
}

// AuthHeader returns the headers a side channel needs to authenticate as
// this client. It is evaluated per call so a refreshed token is picked up.
func (c *Client) AuthHeader() http.Header {
	h := http.Header{}
	if token := c.bearerToken(); token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

// get performs an HTTP GET request and decodes the JSON response.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, result)
}

// send performs a request with a JSON body and decodes the JSON response.
func (c *Client) send(ctx context.Context, method, path string, body, result any) error {
	return c.do(ctx, method, path, nil, body, result)
}

// do is the core HTTP method that builds the request, attaches credentials,
// and handles JSON (de)serialization and status mapping.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	query url.Values,
	body any,
	result any,
) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.bearerToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	timer := metrics.NewTimer()
	resp, err := c.httpClient.Do(req)
	timer.ObserveDurationVec(metrics.APIRequestDuration, method)
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues(method, "error").Inc()
		c.log.Debug().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	metrics.APIRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: fmt.Errorf("reading response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Debug().Int("status", resp.StatusCode).Str("method", method).Str("path", path).Msg("request rejected")
		return &RemoteError{
			Status:  resp.StatusCode,
			Message: errorMessage(respBody),
			Method:  method,
			Path:    path,
		}
	}

	// No content to parse (e.g. 204).
	if result == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err)
	}

	return nil
}

// bearerToken returns the cached credential, dropping it if it is a JWT
// whose exp claim has passed. Opaque tokens are sent as-is.
func (c *Client) bearerToken() string {
	if c.tokens == nil {
		return ""
	}
	token, err := c.tokens.Token()
	if err != nil {
		c.log.Warn().Err(err).Msg("reading cached token")
		return ""
	}
	if token == "" {
		return ""
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return token
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(c.now()) {
		c.log.Info().Time("expired_at", claims.ExpiresAt.Time).Msg("dropping expired token")
		if err := c.tokens.ClearToken(); err != nil {
			c.log.Warn().Err(err).Msg("clearing expired token")
		}
		return ""
	}
	return token
}

// errorMessage extracts a server message from an error body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

// envelope accepts both a bare payload and one wrapped under key
// (e.g. {"task": {...}}), since the service is not consistent about it.
type envelope[T any] struct {
	key   string
	value T
}

func (e *envelope[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &wrapped); err == nil {
			if inner, ok := wrapped[e.key]; ok {
				return json.Unmarshal(inner, &e.value)
			}
		}
	}
	return json.Unmarshal(trimmed, &e.value)
}
