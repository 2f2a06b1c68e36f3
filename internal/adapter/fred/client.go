package fred

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/macro-ingest/internal/domain"
	"github.com/couchcryptid/macro-ingest/internal/observability"
	"github.com/go-resty/resty/v2"
)

const (
	// DefaultBaseURL is the production FRED API root.
	DefaultBaseURL = "https://api.stlouisfed.org/fred"

	// DefaultMaxAttempts is the attempt budget used when none is configured.
	DefaultMaxAttempts = 3
)

// Endpoints, also used as metric labels.
const (
	endpointSeries        = "series"
	endpointObservations  = "series/observations"
	endpointSeriesRelease = "series/release"
	endpointReleases      = "releases"
	endpointReleaseDates  = "release/dates"
)

// Config is the read-only configuration of a Client.
type Config struct {
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
}

// Client implements domain.Source against the FRED API.
//
// Every fetch gets MaxAttempts attempts with no delay between them. Transport
// errors, 5xx/408/429 responses, malformed bodies, and empty record lists are
// retried; other 4xx responses (ErrRejected), invalid records
// (domain.ErrInvalidRecord), and context cancellation end the fetch at once.
// A spent budget yields ErrExhausted wrapping the last attempt error.
type Client struct {
	apiKey      string
	baseURL     string
	maxAttempts int
	http        *resty.Client
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewClient creates a FRED client. The timeout applies to every request.
func NewClient(cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		maxAttempts: attempts,
		http:        httpClient,
		metrics:     metrics,
		logger:      logger,
	}
}

// FetchSeriesMetadata returns the first series of the series endpoint response.
func (c *Client) FetchSeriesMetadata(ctx context.Context, seriesID string) (domain.Series, error) {
	return fetch(ctx, c, endpointSeries, seriesID, map[string]string{"series_id": seriesID},
		func(body []byte) (domain.Series, error) {
			list, err := domain.NormalizeSeriesPayload(body)
			if err != nil {
				return domain.Series{}, err
			}
			if list.Len() == 0 {
				return domain.Series{}, ErrEmptyResult
			}
			return list.At(0), nil
		})
}

// FetchSeriesObservations returns every observation of a series, stamped with
// today's pull date.
func (c *Client) FetchSeriesObservations(ctx context.Context, seriesID string) (domain.TimeSeries, error) {
	return fetch(ctx, c, endpointObservations, seriesID, map[string]string{"series_id": seriesID},
		func(body []byte) (domain.TimeSeries, error) {
			ts, err := domain.NormalizeObservations(seriesID, body, domain.Today())
			if err != nil {
				return domain.TimeSeries{}, err
			}
			if ts.Len() == 0 {
				return domain.TimeSeries{}, ErrEmptyResult
			}
			return ts, nil
		})
}

// FetchSeriesRelease returns the releases that publish a series.
func (c *Client) FetchSeriesRelease(ctx context.Context, seriesID string) (domain.SeriesReleaseCollection, error) {
	return fetch(ctx, c, endpointSeriesRelease, seriesID, map[string]string{"series_id": seriesID},
		func(body []byte) (domain.SeriesReleaseCollection, error) {
			return nonEmpty(domain.NormalizeSeriesReleases(seriesID, body))
		})
}

// FetchReleases returns all releases.
func (c *Client) FetchReleases(ctx context.Context) (domain.ReleaseCollection, error) {
	return fetch(ctx, c, endpointReleases, "", nil,
		func(body []byte) (domain.ReleaseCollection, error) {
			return nonEmpty(domain.NormalizeReleases(body))
		})
}

// FetchReleaseDates returns the publication dates of a release.
func (c *Client) FetchReleaseDates(ctx context.Context, releaseID int) (domain.ReleaseDateCollection, error) {
	id := strconv.Itoa(releaseID)
	return fetch(ctx, c, endpointReleaseDates, id, map[string]string{"release_id": id},
		func(body []byte) (domain.ReleaseDateCollection, error) {
			return nonEmpty(domain.NormalizeReleaseDates(body))
		})
}

func nonEmpty[T domain.Record](c domain.Collection[T], err error) (domain.Collection[T], error) {
	if err != nil {
		return c, err
	}
	if c.Len() == 0 {
		return c, ErrEmptyResult
	}
	return c, nil
}

// fetch runs the attempt loop for one endpoint. target identifies the
// requested record in logs.
func fetch[T any](ctx context.Context, c *Client, endpoint, target string, params map[string]string, decode func([]byte) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			c.metrics.FetchRequests.WithLabelValues(endpoint, "canceled").Inc()
			return zero, err
		}

		body, err := c.get(ctx, endpoint, params)
		var v T
		if err == nil {
			v, err = decode(body)
		}
		if err == nil {
			c.metrics.FetchRequests.WithLabelValues(endpoint, "success").Inc()
			return v, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			c.metrics.FetchRequests.WithLabelValues(endpoint, "canceled").Inc()
			return zero, err
		}
		if !retryable(err) {
			outcome := "rejected"
			if errors.Is(err, domain.ErrInvalidRecord) {
				outcome = "invalid"
			}
			c.metrics.FetchRequests.WithLabelValues(endpoint, outcome).Inc()
			c.logger.Error("fred fetch failed",
				"endpoint", endpoint,
				"target", target,
				"attempt", attempt,
				"error", err,
			)
			return zero, fmt.Errorf("fetch %s %s: %w", endpoint, target, err)
		}

		c.logger.Warn("fred fetch attempt failed",
			"endpoint", endpoint,
			"target", target,
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"error", err,
		)
	}

	c.metrics.FetchRequests.WithLabelValues(endpoint, "exhausted").Inc()
	c.logger.Error("fred fetch retries exhausted",
		"endpoint", endpoint,
		"target", target,
		"max_attempts", c.maxAttempts,
		"error", lastErr,
	)
	return zero, fmt.Errorf("%w: %s %s after %d attempts: %w", ErrExhausted, endpoint, target, c.maxAttempts, lastErr)
}

// get performs one request and returns the body of a 200 response.
func (c *Client) get(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	c.metrics.FetchAttempts.WithLabelValues(endpoint).Inc()
	start := time.Now()

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetQueryParam("api_key", c.apiKey).
		SetQueryParam("file_type", "json").
		Get(c.baseURL + "/" + endpoint)
	c.metrics.FetchAPIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", endpoint, err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, newAPIError(resp.StatusCode(), resp.Body())
	}
	return resp.Body(), nil
}

// retryable reports whether an attempt error may succeed on another attempt.
func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrRejected), errors.Is(err, domain.ErrInvalidRecord):
		return false
	case errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}
