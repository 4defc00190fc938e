package puller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <channel>
    <title>Example News</title>
    <description>All the examples</description>
    <language>en-us</language>
    <item>
      <title>Hello, World!</title>
      <link>https://example.com/a</link>
      <pubDate>Mon, 01 Jan 2024 00:00:00 +0000</pubDate>
      <description>&lt;p&gt;Hi &lt;b&gt;there&lt;/b&gt;&lt;/p&gt;</description>
      <dc:creator>Jane Doe</dc:creator>
      <dc:publisher>Example Pub</dc:publisher>
    </item>
    <item>
      <link>https://example.com/b</link>
    </item>
  </channel>
</rss>`

func serveFeed(t *testing.T, status int, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestGofeedSource_Parse(t *testing.T) {
	url := serveFeed(t, http.StatusOK, sampleRSS)
	feed, err := NewGofeedSource(nil, "test", 0, time.Second).Parse(context.Background(), url)
	if err != nil {
		t.Fatal(err)
	}
	if feed.Malformed {
		t.Fatalf("expected well-formed feed")
	}
	if feed.Title != "Example News" || feed.Subtitle != "All the examples" {
		t.Fatalf("unexpected feed header %q / %q", feed.Title, feed.Subtitle)
	}
	if len(feed.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(feed.Items))
	}

	a := feed.Items[0]
	if a.Link != "https://example.com/a" || a.Title != "Hello, World!" {
		t.Fatalf("unexpected item %+v", a)
	}
	if a.Published != "Mon, 01 Jan 2024 00:00:00 +0000" {
		t.Fatalf("expected raw published string, got %q", a.Published)
	}
	if a.Publisher != "Example Pub" || a.Language != "en-us" {
		t.Fatalf("unexpected publisher/language %q / %q", a.Publisher, a.Language)
	}
	if len(a.Contributors) != 1 || a.Contributors[0] != "Jane Doe" {
		t.Fatalf("unexpected contributors %v", a.Contributors)
	}
	if ExtractText(a.Summary) != "Hi there" {
		t.Fatalf("unexpected summary %q", a.Summary)
	}

	// Missing fields are empty, not errors.
	b := feed.Items[1]
	if b.Link != "https://example.com/b" || b.Title != "" || b.Published != "" || b.Summary != "" {
		t.Fatalf("unexpected sparse item %+v", b)
	}
}

func TestGofeedSource_MalformedDocument(t *testing.T) {
	url := serveFeed(t, http.StatusOK, "this is <<< not a feed")
	feed, err := NewGofeedSource(nil, "", 0, time.Second).Parse(context.Background(), url)
	if err != nil {
		t.Fatal(err)
	}
	if !feed.Malformed {
		t.Fatalf("expected malformed feed")
	}
	if len(feed.Items) != 0 {
		t.Fatalf("malformed feed must carry no items")
	}
}

func TestGofeedSource_HTTPError(t *testing.T) {
	url := serveFeed(t, http.StatusInternalServerError, "oops")
	if _, err := NewGofeedSource(nil, "", 0, time.Second).Parse(context.Background(), url); err == nil {
		t.Fatalf("expected error for http 500")
	}
}

func TestGofeedSource_TooLarge(t *testing.T) {
	url := serveFeed(t, http.StatusOK, sampleRSS)
	_, err := NewGofeedSource(nil, "", int64(len(sampleRSS)-1), time.Second).Parse(context.Background(), url)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != FetchErrorTooLarge {
		t.Fatalf("expected too_large fetch error, got %v", err)
	}

	feed, err := NewGofeedSource(nil, "", int64(len(sampleRSS)), time.Second).Parse(context.Background(), url)
	if err != nil {
		t.Fatal(err)
	}
	if feed.Malformed || len(feed.Items) != 2 {
		t.Fatalf("feed at exactly the limit must parse, got %+v", feed)
	}
}

func TestGofeedSource_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewGofeedSource(srv.Client(), "", 0, 50*time.Millisecond).Parse(context.Background(), srv.URL)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != FetchErrorTimeout {
		t.Fatalf("expected timeout fetch error, got %v", err)
	}
}
