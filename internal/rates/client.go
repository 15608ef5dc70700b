package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sabarim/fxdata/internal/config"
)

// DateFormat is the calendar date layout used throughout the pipeline
const DateFormat = "2006-01-02"

// Client fetches exchange rates from the upstream API
type Client struct {
	baseURL      string
	appID        string
	version      string
	baseCurrency string
	maxRetries   int
	backoffUnit  time.Duration
	httpClient   *http.Client
	log          *logrus.Logger
	now          func() time.Time
}

// NewClient creates a rates client. The API key is taken from the config
// at construction and never read from process-wide state afterwards.
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	baseURL := cfg.API.BaseURL
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL = baseURL + "/"
	}

	return &Client{
		baseURL:      baseURL,
		appID:        cfg.API.Key,
		version:      cfg.API.Version,
		baseCurrency: cfg.API.BaseCurrency,
		maxRetries:   cfg.Fetch.MaxRetries,
		backoffUnit:  time.Second,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
		},
		log: log,
		now: time.Now,
	}
}

// FetchDate fetches historical rates for a specific calendar date
func (c *Client) FetchDate(ctx context.Context, date time.Time) (*Snapshot, error) {
	day := date.UTC().Format(DateFormat)
	today := c.now().UTC().Format(DateFormat)
	if day > today {
		return nil, fmt.Errorf("cannot fetch rates for future date %s", day)
	}

	endpoint := fmt.Sprintf("historical/%s.json", day)
	resp, err := c.fetch(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetching rates for %s: %w", day, err)
	}

	return c.snapshot(resp, day), nil
}

// FetchLatest fetches the most recent rates snapshot. The effective date
// comes from the response timestamp, falling back to today when absent.
func (c *Client) FetchLatest(ctx context.Context) (*Snapshot, error) {
	resp, err := c.fetch(ctx, "latest.json")
	if err != nil {
		return nil, fmt.Errorf("fetching latest rates: %w", err)
	}

	date := c.now().UTC().Format(DateFormat)
	if resp.Timestamp > 0 {
		date = time.Unix(resp.Timestamp, 0).UTC().Format(DateFormat)
	}

	return c.snapshot(resp, date), nil
}

func (c *Client) snapshot(resp *ratesResponse, date string) *Snapshot {
	base := resp.Base
	if base == "" {
		base = c.baseCurrency
	}
	return &Snapshot{
		Date:        date,
		Base:        base,
		Rates:       resp.Rates,
		APIVersion:  c.version,
		RetrievedAt: c.now().UTC(),
	}
}

// fetch issues the GET request with retries. Rate-limit responses and
// transport failures back off exponentially; auth and payload errors are
// terminal.
func (c *Client) fetch(ctx context.Context, endpoint string) (*ratesResponse, error) {
	reqURL := fmt.Sprintf("%s%s?app_id=%s", c.baseURL, endpoint, url.QueryEscape(c.appID))

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt)
			c.log.Warnf("Retry %d for %s in %v", attempt, endpoint, wait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrNetwork, err)
			continue
		}

		result, retryable, err := c.handleResponse(resp)
		resp.Body.Close()
		if err == nil {
			return result, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("giving up after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) handleResponse(resp *http.Response) (*ratesResponse, bool, error) {
	switch {
	case resp.StatusCode == http.StatusOK:
		// Decoded below
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, &APIError{StatusCode: resp.StatusCode, Message: "rate limit exceeded"}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, false, &APIError{StatusCode: resp.StatusCode, Message: "invalid or inactive API key"}
	case resp.StatusCode >= 500:
		return nil, true, &APIError{StatusCode: resp.StatusCode, Message: "upstream server error"}
	default:
		return nil, false, &APIError{StatusCode: resp.StatusCode, Message: "unexpected response status"}
	}

	var result ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, false, &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("malformed payload: %v", err)}
	}
	if len(result.Rates) == 0 {
		return nil, false, &APIError{StatusCode: resp.StatusCode, Message: "response contains no rates"}
	}

	return &result, false, nil
}

// backoff returns the exponential delay for a retry attempt, capped at 60 units
func (c *Client) backoff(attempt int) time.Duration {
	wait := c.backoffUnit * time.Duration(1<<uint(attempt))
	if max := 60 * c.backoffUnit; wait > max {
		wait = max
	}
	return wait
}
