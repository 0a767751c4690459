package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/weathertaxi/tlcfetch/internal/config"
	"github.com/weathertaxi/tlcfetch/internal/domain/download"
	apperrors "github.com/weathertaxi/tlcfetch/pkg/errors"
)

// HTTPClient probes and opens remote resources over HTTP(S)
type HTTPClient struct {
	client       *http.Client
	userAgent    string
	probeTimeout time.Duration
	logger       *zap.Logger
}

// NewHTTPClient creates a new HTTP client
func NewHTTPClient(cfg config.FetchConfig, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: 0, // bodies are bounded by ctx, not a wall clock
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        cfg.Workers * 2,
				MaxIdleConnsPerHost: cfg.Workers,
				IdleConnTimeout:     30 * time.Second,
				DisableCompression:  true,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		userAgent:    cfg.UserAgent,
		probeTimeout: cfg.ProbeTimeout,
		logger:       logger.Named("http-client"),
	}
}

// Probe fetches size and range support with a HEAD request
func (c *HTTPClient) Probe(ctx context.Context, url string) (*download.RemoteInfo, error) {
	if c.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.probeTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeBadRequest, "failed to create HEAD request", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, requestError(ctx, "probe", url, err)
	}
	resp.Body.Close()

	// Some origins refuse HEAD; the GET will tell us what we need.
	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		c.logger.Debug("HEAD not supported, continuing without probe",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
		)
		return &download.RemoteInfo{Size: -1, AcceptsRanges: true}, nil
	}

	if err := classifyStatus(resp.StatusCode, url); err != nil {
		return nil, err
	}

	info := &download.RemoteInfo{
		Size:          resp.ContentLength,
		AcceptsRanges: resp.Header.Get("Accept-Ranges") == "bytes",
		ETag:          cleanETag(resp.Header.Get("ETag")),
		ContentType:   resp.Header.Get("Content-Type"),
	}

	c.logger.Debug("probed remote",
		zap.String("url", url),
		zap.Int64("size", info.Size),
		zap.Bool("accepts_ranges", info.AcceptsRanges),
	)
	return info, nil
}

// Open issues a GET starting at offset. A 200 answer to a ranged request is
// returned with Ranged false so the caller can restart from zero.
func (c *HTTPClient) Open(ctx context.Context, url string, offset int64) (*download.Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeBadRequest, "failed to create request", err)
	}
	c.setHeaders(req)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, requestError(ctx, "transfer", url, err)
	}

	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		total := int64(-1)
		if start, _, t, err := parseContentRange(resp.Header.Get("Content-Range")); err == nil {
			if start != offset {
				resp.Body.Close()
				return nil, apperrors.Transient(fmt.Sprintf("range for %s starts at %d, requested %d", url, start, offset), nil)
			}
			total = t
		}
		return &download.Stream{
			Body:   resp.Body,
			Ranged: true,
			Length: resp.ContentLength,
			Total:  total,
		}, nil

	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent:
		return &download.Stream{
			Body:   resp.Body,
			Ranged: offset == 0,
			Length: resp.ContentLength,
			Total:  resp.ContentLength,
		}, nil

	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0:
		resp.Body.Close()
		total := int64(-1)
		if t, ok := parseUnsatisfiedRange(resp.Header.Get("Content-Range")); ok {
			total = t
		}
		return &download.Stream{Unsatisfiable: true, Length: 0, Total: total}, nil
	}

	resp.Body.Close()
	if err := classifyStatus(resp.StatusCode, url); err != nil {
		return nil, err
	}
	return nil, apperrors.BadRequest(fmt.Sprintf("unexpected status code %d for %s", resp.StatusCode, url))
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept-Encoding", "identity")
}

// classifyStatus maps a non-success status to the error taxonomy
func classifyStatus(code int, url string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound || code == http.StatusForbidden || code == http.StatusGone:
		// The CDN answers 403 for objects that were never published.
		return apperrors.NotAvailable(fmt.Sprintf("%s: remote answered %d", url, code))
	case code == http.StatusRequestTimeout || code == http.StatusTooEarly ||
		code == http.StatusTooManyRequests || code >= 500:
		return apperrors.Transient(fmt.Sprintf("%s: remote answered %d", url, code), nil)
	default:
		return apperrors.BadRequest(fmt.Sprintf("%s: unexpected status code %d", url, code))
	}
}

// requestError classifies a transport failure. Cancellation of the caller's
// context is passed through untouched.
func requestError(ctx context.Context, op, url string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return apperrors.Transient(fmt.Sprintf("%s %s failed", op, url), err)
}

// cleanETag removes quotes from an ETag value
func cleanETag(etag string) string {
	etag = strings.TrimPrefix(etag, "W/")
	return strings.Trim(etag, `"`)
}

// parseContentRange parses "bytes start-end/total". Total is -1 for "*".
func parseContentRange(header string) (start, end, total int64, err error) {
	header = strings.TrimPrefix(header, "bytes ")
	rng, size, ok := strings.Cut(header, "/")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %q", header)
	}
	first, last, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %q", header)
	}
	if start, err = strconv.ParseInt(first, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start byte: %w", err)
	}
	if end, err = strconv.ParseInt(last, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid end byte: %w", err)
	}
	if size == "*" {
		return start, end, -1, nil
	}
	if total, err = strconv.ParseInt(size, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid total bytes: %w", err)
	}
	return start, end, total, nil
}

// parseUnsatisfiedRange parses the "bytes */total" form sent with 416
func parseUnsatisfiedRange(header string) (int64, bool) {
	size, ok := strings.CutPrefix(header, "bytes */")
	if !ok {
		return 0, false
	}
	total, err := strconv.ParseInt(size, 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}
