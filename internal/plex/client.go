// Package plex is the HTTP client for a Plex-compatible media server:
// library discovery, paged item iteration and item drill-down.
package plex

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultTimeout  = 20 * time.Second
	defaultPageSize = 100
	maxResponseBody = 50 << 20 // 50 MB
)

// ErrUnauthorized marks a 401 from the remote; callers abort the sync.
var ErrUnauthorized = errors.New("plex: unauthorized")

// RetryPolicy drives the retry loop for transient failures. attempt
// counts attempts already made, starting at 1.
type RetryPolicy interface {
	ShouldRetry(attempt int) bool
	Delay(attempt int) time.Duration
}

// Client talks to one Plex server.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  zerolog.Logger
	retry   RetryPolicy

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// ClientOption adjusts a Client at construction.
type ClientOption func(*Client)

// WithRetryPolicy replaces the built-in network retry schedule. The
// composition root passes the fault handler's network policy here so
// both ends agree on attempts and backoff.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) {
		if p != nil {
			c.retry = p
		}
	}
}

// NewClient creates a client for the given server. The token rides along
// as X-Plex-Token on every request.
func NewClient(baseURL, token string, logger zerolog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  logger.With().Str("component", "plex").Logger(),
		retry:   networkRetry{},
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TestConnection pings the sessions endpoint.
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.get(ctx, "/status/sessions", nil)
	return err
}

// GetLibraries lists the server's library sections.
func (c *Client) GetLibraries(ctx context.Context) ([]Directory, error) {
	mc, err := c.get(ctx, "/library/sections", nil)
	if err != nil {
		return nil, fmt.Errorf("listing libraries: %w", err)
	}
	return mc.Directories, nil
}

// GetItemDetails fetches full metadata for one rating key.
func (c *Client) GetItemDetails(ctx context.Context, ratingKey string) (*Metadata, error) {
	mc, err := c.get(ctx, "/library/metadata/"+url.PathEscape(ratingKey), nil)
	if err != nil {
		return nil, fmt.Errorf("item %s: %w", ratingKey, err)
	}
	if len(mc.Metadata) == 0 {
		return nil, fmt.Errorf("item %s: empty container", ratingKey)
	}
	return &mc.Metadata[0], nil
}

// GetShowChildren lists a show's seasons.
func (c *Client) GetShowChildren(ctx context.Context, showKey string) ([]Metadata, error) {
	mc, err := c.get(ctx, "/library/metadata/"+url.PathEscape(showKey)+"/children", nil)
	if err != nil {
		return nil, fmt.Errorf("show %s children: %w", showKey, err)
	}
	return mc.Metadata, nil
}

// GetSeasonChildren lists a season's episodes.
func (c *Client) GetSeasonChildren(ctx context.Context, seasonKey string) ([]Metadata, error) {
	mc, err := c.get(ctx, "/library/metadata/"+url.PathEscape(seasonKey)+"/children", nil)
	if err != nil {
		return nil, fmt.Errorf("season %s children: %w", seasonKey, err)
	}
	return mc.Metadata, nil
}

// fetchPage requests one container window from a section listing.
func (c *Client) fetchPage(ctx context.Context, libraryKey string, itemType ItemType, start, size int, sinceEpoch *int64) (*MediaContainer, error) {
	q := url.Values{}
	q.Set("type", string(itemType))
	q.Set("includeGuids", "1")
	q.Set("X-Plex-Container-Start", fmt.Sprintf("%d", start))
	q.Set("X-Plex-Container-Size", fmt.Sprintf("%d", size))
	if sinceEpoch != nil {
		q.Set("sort", "updatedAt:desc")
	}

	mc, err := c.get(ctx, "/library/sections/"+url.PathEscape(libraryKey)+"/all", q)
	if err != nil {
		return nil, fmt.Errorf("library %s items: %w", libraryKey, err)
	}
	return mc, nil
}

// get performs a GET with retries on transient status codes, then parses
// the container from JSON or XML.
func (c *Client) get(ctx context.Context, path string, query url.Values) (*MediaContainer, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	for attempt := 1; ; attempt++ {
		mc, retryable, err := c.doRequest(ctx, u)
		if err == nil {
			return mc, nil
		}
		if !retryable {
			return nil, err
		}
		if !c.retry.ShouldRetry(attempt) {
			return nil, fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		delay := c.retry.Delay(attempt)
		c.logger.Debug().
			Str("path", path).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("retrying request")
		if serr := c.sleep(ctx, delay); serr != nil {
			return nil, serr
		}
	}
}

// networkRetry mirrors the fault handler's network schedule: five
// attempts, two second base doubling per retry, jittered, capped at a
// minute. The handler's own policy replaces it when the client is built
// through the application wiring.
type networkRetry struct{}

const (
	retryMaxAttempts = 5
	retryBaseDelay   = 2 * time.Second
	retryMaxDelay    = time.Minute
)

func (networkRetry) ShouldRetry(attempt int) bool { return attempt < retryMaxAttempts }

func (networkRetry) Delay(attempt int) time.Duration {
	d := retryBaseDelay << uint(attempt-1)
	if d > retryMaxDelay {
		d = retryMaxDelay
	}
	d = time.Duration(float64(d) * (0.5 + rand.Float64()))
	if d > retryMaxDelay {
		d = retryMaxDelay
	}
	return d
}

func (c *Client) doRequest(ctx context.Context, u string) (*MediaContainer, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("X-Plex-Token", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// Transport-level failures are worth a retry.
		return nil, ctx.Err() == nil, err
	}
	defer drainBody(resp)

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, false, ErrUnauthorized
	case isRetryableStatus(resp.StatusCode):
		return nil, true, fmt.Errorf("plex returned status %d", resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("plex returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, true, err
	}

	mc, err := parseContainer(body)
	if err != nil {
		return nil, false, err
	}
	return mc, false, nil
}

// parseContainer sniffs the payload and accepts both JSON and XML.
func parseContainer(body []byte) (*MediaContainer, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return &MediaContainer{}, nil
	}

	if trimmed[0] == '<' {
		return parseXMLContainer(trimmed)
	}

	var envelope struct {
		MediaContainer MediaContainer `json:"MediaContainer"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		// Content-type lies happen; fall back to XML before giving up.
		if mc, xmlErr := parseXMLContainer(trimmed); xmlErr == nil {
			return mc, nil
		}
		return nil, fmt.Errorf("parsing container: %w", err)
	}
	return &envelope.MediaContainer, nil
}

func parseXMLContainer(body []byte) (*MediaContainer, error) {
	var xc xmlContainer
	if err := xml.Unmarshal(body, &xc); err != nil {
		return nil, fmt.Errorf("parsing container XML: %w", err)
	}
	return xc.toContainer(), nil
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func drainBody(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
