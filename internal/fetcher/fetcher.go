// Package fetcher performs conditional HTTP fetches of syndication feeds.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"feedsync/internal/domain"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultUserAgent    = "feedsync/1.0 (+feed synchronizer)"
	DefaultMaxBodyBytes = 10 << 20
)

// Options configures a Fetcher.
type Options struct {
	Timeout             time.Duration
	UserAgent           string
	RespectETag         bool
	RespectLastModified bool
	MaxBodyBytes        int64
}

// Response is a successful fetch. NotModified responses carry no body.
type Response struct {
	StatusCode   int
	NotModified  bool
	Body         []byte
	ETag         *string
	LastModified *string
}

type Fetcher struct {
	httpClient *http.Client
	opts       Options
	logger     *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		opts:   opts,
		logger: logger.With("component", "fetcher"),
	}
}

// Fetch requests feedURL once, sending the stored validators as conditional
// headers. It never mutates feed state.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string, v domain.Validators) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindRequest, Err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5")
	if f.opts.RespectETag && v.ETag != nil && *v.ETag != "" {
		req.Header.Set("If-None-Match", *v.ETag)
	}
	if f.opts.RespectLastModified && v.LastModified != nil && *v.LastModified != "" {
		req.Header.Set("If-Modified-Since", *v.LastModified)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Err: fmt.Errorf("execute request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		f.logger.DebugContext(ctx, "feed not modified", "url", feedURL)
		return &Response{
			StatusCode:   resp.StatusCode,
			NotModified:  true,
			ETag:         header(resp, "ETag"),
			LastModified: header(resp, "Last-Modified"),
		}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		return nil, &Error{
			Kind:       KindHTTP,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, &Error{Kind: KindTransport, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > f.opts.MaxBodyBytes {
		return nil, &Error{
			Kind:       KindHTTP,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: body exceeds %d bytes", ErrBodyTooLarge, f.opts.MaxBodyBytes),
		}
	}

	return &Response{
		StatusCode:   resp.StatusCode,
		Body:         body,
		ETag:         header(resp, "ETag"),
		LastModified: header(resp, "Last-Modified"),
	}, nil
}

func header(resp *http.Response, name string) *string {
	v := resp.Header.Get(name)
	if v == "" {
		return nil
	}
	return &v
}

type Kind string

const (
	KindRequest   Kind = "request"
	KindTransport Kind = "transport"
	KindHTTP      Kind = "http"
)

// ErrBodyTooLarge is wrapped by the Error returned for a response body
// longer than Options.MaxBodyBytes.
var ErrBodyTooLarge = errors.New("response too large")

// Error describes a failed fetch. StatusCode is zero when no response was
// received.
type Error struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a transport failure (timeout, refused
// connection, DNS). HTTP status errors are never transient here; callers
// decide on those themselves.
func IsTransient(err error) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Kind == KindTransport && !errors.Is(fe.Err, context.Canceled)
}

// StatusCode extracts the HTTP status from a fetch error, or 0.
func StatusCode(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}
