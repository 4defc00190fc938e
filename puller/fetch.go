package puller

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

type Fetcher interface {
	Fetch(ctx context.Context, link string) ([]byte, error)
}

type HTTPFetcherConfig struct {
	Timeout time.Duration
	// MaxBodyBytes caps the stored body; larger pages fail with FetchErrorTooLarge.
	MaxBodyBytes int64
	UserAgent    string
	// RequestsPerSecond throttles all fetches of one run. Zero means unlimited.
	RequestsPerSecond float64
}

// HTTPFetcher retrieves article pages. It is safe for concurrent use.
type HTTPFetcher struct {
	client  *http.Client
	cfg     HTTPFetcherConfig
	limiter *rate.Limiter
}

func NewHTTPFetcher(client *http.Client, cfg HTTPFetcherConfig) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &HTTPFetcher{client: client, cfg: cfg, limiter: rate.NewLimiter(limit, 1)}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, link string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, classifyFetchErr(link, err)
	}
	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, &FetchError{Kind: FetchErrorNetwork, Link: link, Err: err}
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyFetchErr(link, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &FetchError{Kind: FetchErrorHTTPStatus, Link: link, Status: resp.StatusCode}
	}

	var r io.Reader = resp.Body
	if f.cfg.MaxBodyBytes > 0 {
		r = io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, classifyFetchErr(link, err)
	}
	if f.cfg.MaxBodyBytes > 0 && int64(len(body)) > f.cfg.MaxBodyBytes {
		return nil, &FetchError{Kind: FetchErrorTooLarge, Link: link}
	}
	return body, nil
}

func classifyFetchErr(link string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &FetchError{Kind: FetchErrorTimeout, Link: link, Err: err}
	}
	return &FetchError{Kind: FetchErrorNetwork, Link: link, Err: err}
}
