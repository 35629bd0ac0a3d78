// Package fetch retrieves API description documents from http(s) URLs,
// file URLs and bare filesystem paths.
package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentstation/apicorpus/pkg/constants"
	"github.com/agentstation/apicorpus/pkg/errors"
	"github.com/agentstation/apicorpus/pkg/logging"
)

// MaxBodySize caps the size of a fetched document.
const MaxBodySize = 64 << 20

const acceptHeader = "application/json, application/yaml, application/x-yaml, text/yaml, text/plain;q=0.9, */*;q=0.8"

// Response is the outcome of a retrieval.
type Response struct {
	Locator   string
	Status    int
	OK        bool
	Content   []byte
	MediaType string
	Cached    bool
}

// Fetcher retrieves documents. It is safe for concurrent use.
type Fetcher struct {
	client       *http.Client
	cache        *Cache
	timeout      time.Duration
	forceRefresh bool
	userAgent    string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the per-request deadline for network locators.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithCache sets the revalidation cache. A nil cache disables revalidation.
func WithCache(c *Cache) Option {
	return func(f *Fetcher) {
		f.cache = c
	}
}

// WithForceRefresh makes every request bypass the revalidation cache.
func WithForceRefresh(force bool) Option {
	return func(f *Fetcher) {
		f.forceRefresh = force
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// New creates a Fetcher with a keep-alive transport.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		timeout:   constants.FetchTimeout,
		cache:     NewCache(DefaultCacheTTL, 10*time.Minute),
		userAgent: "apicorpus",
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.MaxIdleConnsPerHost = 8
		transport.IdleConnTimeout = constants.IdleConnTimeout
		f.client = &http.Client{Transport: transport}
	}
	return f
}

type refreshKey struct{}

// ForceRefresh returns a context under which Retrieve bypasses the cache.
func ForceRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, refreshKey{}, true)
}

func refreshRequested(ctx context.Context) bool {
	v, _ := ctx.Value(refreshKey{}).(bool)
	return v
}

// Retrieve fetches a locator.
//
// For network locators a non-nil Response is returned even on failure so the
// caller can record the status; the error is then a *errors.FetchError.
// Local paths that do not exist return an *errors.IOError wrapping
// errors.ErrSourceMissing.
func (f *Fetcher) Retrieve(ctx context.Context, locator string) (*Response, error) {
	if IsRemote(locator) {
		return f.retrieveRemote(ctx, locator)
	}
	path, ok := LocalPath(locator)
	if !ok {
		return nil, errors.NewValidationError("locator", locator, "unsupported locator")
	}
	return f.retrieveLocal(path, locator)
}

func (f *Fetcher) retrieveLocal(path, locator string) (*Response, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapIO("read", path, fmt.Errorf("%w: %w", errors.ErrSourceMissing, err))
		}
		return nil, errors.WrapIO("read", path, err)
	}
	return &Response{
		Locator:   locator,
		Status:    http.StatusOK,
		OK:        true,
		Content:   data,
		MediaType: mediaTypeForPath(path),
	}, nil
}

func (f *Fetcher) retrieveRemote(ctx context.Context, locator string) (*Response, error) {
	logger := logging.FromContext(ctx)

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return &Response{Locator: locator}, &errors.FetchError{Locator: locator, Message: "invalid request", Err: err}
	}
	req.Header.Set("Accept", acceptHeader)
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	cached, haveCached := f.lookup(ctx, locator)
	if haveCached {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		fe := &errors.FetchError{Locator: locator, Message: err.Error(), Err: err}
		if isTimeout(err) {
			fe.Message = fmt.Sprintf("no response within %s", f.timeout)
			fe.Err = fmt.Errorf("%w: %w", errors.ErrTimeout, err)
		}
		return &Response{Locator: locator}, fe
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotModified && haveCached {
		_, _ = io.Copy(io.Discard, resp.Body)
		logger.Debug().Str("locator", locator).Msg("not modified, using cached body")
		return &Response{
			Locator:   locator,
			Status:    resp.StatusCode,
			OK:        true,
			Content:   cached.Body,
			MediaType: cached.MediaType,
			Cached:    true,
		}, nil
	}

	mediaType := parseMediaType(resp.Header.Get("Content-Type"))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, MaxBodySize))
		return &Response{Locator: locator, Status: resp.StatusCode, MediaType: mediaType},
			errors.NewFetchError(locator, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		fe := &errors.FetchError{Locator: locator, StatusCode: resp.StatusCode, Message: "reading body", Err: err}
		if isTimeout(err) {
			fe.Err = fmt.Errorf("%w: %w", errors.ErrTimeout, err)
		}
		return &Response{Locator: locator, Status: resp.StatusCode, MediaType: mediaType}, fe
	}
	if mediaType == "" {
		mediaType = mediaTypeForPath(req.URL.Path)
	}

	if f.cache != nil {
		f.cache.set(locator, entry{
			Body:         body,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			MediaType:    mediaType,
		})
	}

	logger.Debug().
		Str("locator", locator).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Msg("fetched")

	return &Response{
		Locator:   locator,
		Status:    resp.StatusCode,
		OK:        true,
		Content:   body,
		MediaType: mediaType,
	}, nil
}

func (f *Fetcher) lookup(ctx context.Context, locator string) (entry, bool) {
	if f.cache == nil || f.forceRefresh || refreshRequested(ctx) {
		return entry{}, false
	}
	return f.cache.get(locator)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func parseMediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.TrimSpace(strings.ToLower(contentType))
	}
	return mt
}

func mediaTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	default:
		return "text/plain"
	}
}
