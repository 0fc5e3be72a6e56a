package fetch

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	wbfretry "github.com/wb-go/wbf/retry"

	"github.com/yokitheyo/gobbler/internal/retry"
)

// MaxPageSize bounds how much of a search or listing page is read.
const MaxPageSize = 4 << 20

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
}

// Client performs GET requests carrying the configured User-Agent.
type Client struct {
	http      *http.Client
	userAgent string
	strategy  wbfretry.Strategy
}

func NewClient(userAgent string, timeout time.Duration) *Client {
	return &Client{
		http:      &http.Client{Timeout: timeout},
		userAgent: userAgent,
		strategy:  retry.FetchStrategy,
	}
}

// WithStrategy returns a copy of c retrying page fetches with s.
func (c *Client) WithStrategy(s wbfretry.Strategy) *Client {
	cp := *c
	cp.strategy = s
	return &cp
}

// Get issues a single request. The caller owns the response body.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")
	return c.http.Do(req)
}

// Page downloads a page, retrying transient failures. 4xx responses are not
// retried.
func (c *Client) Page(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	err := retry.Do(ctx, c.strategy, func() error {
		resp, err := c.Get(ctx, rawURL)
		if err != nil {
			if ctx.Err() != nil {
				return &retry.Permanent{Err: ctx.Err()}
			}
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			serr := &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return &retry.Permanent{Err: serr}
			}
			return serr
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, MaxPageSize))
		return err
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// ExtractPattern returns the first capture group of every match of re in
// body, HTML-unescaped, passed through rewrite when non-nil, resolved against
// base and without duplicates.
func ExtractPattern(body []byte, re *regexp.Regexp, base *url.URL, rewrite func(string) string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range re.FindAllSubmatch(body, -1) {
		if len(m) < 2 {
			continue
		}
		raw := html.UnescapeString(string(m[1]))
		if rewrite != nil {
			raw = rewrite(raw)
		}
		link := resolve(base, raw)
		if link == "" {
			continue
		}
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		out = append(out, link)
	}
	return out
}

// ExtractImageLinks parses body as HTML and collects img[src] and a[href]
// values whose path ends with one of exts.
func ExtractImageLinks(body []byte, base *url.URL, exts []string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var out []string
	seen := make(map[string]struct{})
	add := func(raw string) {
		link := resolve(base, raw)
		if link == "" || !HasImageExt(link, exts) {
			return
		}
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}
		out = append(out, link)
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			add(href)
		}
	})
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			add(src)
		}
	})
	return out, nil
}

// HasImageExt reports whether the URL path ends with one of exts.
func HasImageExt(rawURL string, exts []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func resolve(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "data:") || strings.HasPrefix(raw, "javascript:") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}
