package puller

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

type FeedSource interface {
	Parse(ctx context.Context, url string) (*Feed, error)
}

// GofeedSource downloads a feed document and parses it with gofeed. Transport
// failures are returned as errors; documents gofeed cannot parse come back as
// a Feed with Malformed set and no items.
type GofeedSource struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	timeout   time.Duration
}

// NewGofeedSource bounds every download by timeout and maxBytes; zero
// disables either limit.
func NewGofeedSource(client *http.Client, userAgent string, maxBytes int64, timeout time.Duration) *GofeedSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &GofeedSource{client: client, userAgent: userAgent, maxBytes: maxBytes, timeout: timeout}
}

func (s *GofeedSource) Parse(ctx context.Context, url string) (*Feed, error) {
	body, err := s.download(ctx, url)
	if err != nil {
		return nil, err
	}
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return &Feed{Malformed: true}, nil
	}
	return convertFeed(parsed), nil
}

func (s *GofeedSource) download(ctx context.Context, url string) ([]byte, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Kind: FetchErrorNetwork, Link: url, Err: err}
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyFetchErr(url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Kind: FetchErrorHTTPStatus, Link: url, Status: resp.StatusCode}
	}
	var r io.Reader = resp.Body
	if s.maxBytes > 0 {
		r = io.LimitReader(resp.Body, s.maxBytes+1)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, classifyFetchErr(url, err)
	}
	if s.maxBytes > 0 && int64(len(body)) > s.maxBytes {
		return nil, &FetchError{Kind: FetchErrorTooLarge, Link: url}
	}
	return body, nil
}

func convertFeed(f *gofeed.Feed) *Feed {
	out := &Feed{
		Title:    strings.TrimSpace(f.Title),
		Subtitle: strings.TrimSpace(f.Description),
		Items:    make([]Item, 0, len(f.Items)),
	}
	var feedPublisher string
	if f.DublinCoreExt != nil {
		feedPublisher = firstNonEmpty(f.DublinCoreExt.Publisher...)
	}
	for _, it := range f.Items {
		if it == nil {
			continue
		}
		item := Item{
			Link:      strings.TrimSpace(it.Link),
			Title:     strings.TrimSpace(it.Title),
			Published: strings.TrimSpace(it.Published),
			Summary:   it.Description,
			Language:  f.Language,
			Publisher: feedPublisher,
		}
		if dc := it.DublinCoreExt; dc != nil {
			if lang := firstNonEmpty(dc.Language...); lang != "" {
				item.Language = lang
			}
			if pub := firstNonEmpty(dc.Publisher...); pub != "" {
				item.Publisher = pub
			}
		}
		for _, p := range it.Authors {
			if p == nil {
				continue
			}
			switch {
			case p.Name != "" && p.Email != "":
				item.Contributors = append(item.Contributors, fmt.Sprintf("%s <%s>", p.Name, p.Email))
			case p.Name != "":
				item.Contributors = append(item.Contributors, p.Name)
			case p.Email != "":
				item.Contributors = append(item.Contributors, p.Email)
			}
		}
		out.Items = append(out.Items, item)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
