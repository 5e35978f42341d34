package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultTimeout         = time.Second
	DefaultMaxBodyBytes    = int64(64 * 1024 * 1024)
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxInterval     = 5 * time.Second
	DefaultUserAgent       = "capset/1 (+image-caption dataset fetcher)"
)

var (
	ErrInvalidURL   = errors.New("invalid URL")
	ErrBodyTooLarge = errors.New("response body too large")
)

// Fetcher retrieves one resource. Failures are reported in the Result,
// never as a panic or a separate error return.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) Result
}

type Result struct {
	Body        []byte
	ContentType string
	Attempts    int
	Err         error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// StatusError is returned for any non-200 response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.StatusCode)
}

func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Doer is the subset of *http.Client used by HTTPFetcher.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	Timeout         time.Duration
	Retries         uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxBodyBytes    int64
	UserAgent       string
}

func DefaultConfig() Config {
	return Config{
		Timeout:         DefaultTimeout,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		MaxBodyBytes:    DefaultMaxBodyBytes,
		UserAgent:       DefaultUserAgent,
	}
}

type HTTPFetcher struct {
	client Doer
	cfg    Config
}

type Option func(*HTTPFetcher)

func WithHTTPClient(c Doer) Option {
	return func(f *HTTPFetcher) {
		f.client = c
	}
}

func NewHTTPFetcher(cfg Config, opts ...Option) *HTTPFetcher {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = def.UserAgent
	}
	f := &HTTPFetcher{
		// per-attempt deadlines come from the request context
		client: &http.Client{},
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) Result {
	if err := validateURL(rawURL); err != nil {
		return Result{Err: err}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.cfg.InitialInterval
	b.MaxInterval = f.cfg.MaxInterval
	bo := backoff.WithContext(backoff.WithMaxRetries(b, f.cfg.Retries), ctx)

	var res Result
	op := func() error {
		res.Attempts++
		body, contentType, err := f.once(ctx, rawURL)
		if err == nil {
			res.Body = body
			res.ContentType = contentType
			return nil
		}
		if ctx.Err() != nil || !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(op, bo); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		res.Body = nil
		res.Err = err
	}
	return res
}

func (f *HTTPFetcher) once(ctx context.Context, rawURL string) ([]byte, string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", &StatusError{StatusCode: resp.StatusCode}
	}
	if resp.ContentLength > f.cfg.MaxBodyBytes {
		return nil, "", fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, resp.ContentLength)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		return nil, "", fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, f.cfg.MaxBodyBytes)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func validateURL(rawURL string) error {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

func isRetryable(err error) bool {
	if errors.Is(err, ErrInvalidURL) || errors.Is(err, ErrBodyTooLarge) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}

// Reason maps a fetch error to a short machine-friendly label.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var se *StatusError
	var netErr net.Error
	switch {
	case errors.Is(err, ErrInvalidURL):
		return "invalid_url"
	case errors.Is(err, ErrBodyTooLarge):
		return "body_too_large"
	case errors.As(err, &se):
		return fmt.Sprintf("http_%d", se.StatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	default:
		return "connection_error"
	}
}
