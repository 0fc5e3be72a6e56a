package collector

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/yokitheyo/gobbler/internal/domain"
	"github.com/yokitheyo/gobbler/internal/infrastructure/fetch"
)

// PageTemplate describes a search or listing page that links to images.
type PageTemplate struct {
	Name string
	// URL may contain {query} and {page} placeholders.
	URL string
	// Pattern extracts image URLs from its first capture group. Without a
	// pattern, img[src] and a[href] links to image files are collected.
	Pattern *regexp.Regexp
	// Rewrite maps an extracted URL to the one to download.
	Rewrite func(string) string
	// The page placeholder is PageOffset + PageStep*n for n in [PageMin, PageMax].
	PageMin, PageMax int
	PageStep         int
	PageOffset       int
	// Keep is the probability of keeping each extracted link; 0 keeps all.
	Keep float64
	// NoResults is page text meaning the query had no hits, which is not a
	// layout change.
	NoResults string
	Pacing    Pacing
}

type PageSource struct {
	tmpl      PageTemplate
	client    *fetch.Client
	validator *Validator
	keywords  string
}

// NewPageSource uses keywords as the query when non-empty, random words
// otherwise.
func NewPageSource(tmpl PageTemplate, client *fetch.Client, validator *Validator, keywords string) *PageSource {
	if tmpl.Pacing == (Pacing{}) {
		tmpl.Pacing = networkPacing
	}
	if tmpl.PageStep == 0 {
		tmpl.PageStep = 1
	}
	return &PageSource{
		tmpl:      tmpl,
		client:    client,
		validator: validator,
		keywords:  strings.TrimSpace(keywords),
	}
}

func (s *PageSource) Name() string   { return s.tmpl.Name }
func (s *PageSource) Pacing() Pacing { return s.tmpl.Pacing }

func (s *PageSource) Discover(ctx context.Context) ([]string, error) {
	pageURL := s.pageURL()
	body, err := s.client.Page(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	var links []string
	if s.tmpl.Pattern != nil {
		links = fetch.ExtractPattern(body, s.tmpl.Pattern, base, s.tmpl.Rewrite)
	} else {
		links, err = fetch.ExtractImageLinks(body, base, domain.ImageExtensions)
		if err != nil {
			return nil, err
		}
		if s.tmpl.Rewrite != nil {
			for i := range links {
				links[i] = s.tmpl.Rewrite(links[i])
			}
		}
	}

	if len(links) == 0 {
		if s.tmpl.NoResults != "" && bytes.Contains(body, []byte(s.tmpl.NoResults)) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", pageURL, domain.ErrLayoutChanged)
	}

	out := links[:0]
	for _, link := range links {
		if s.tmpl.Keep > 0 && rand.Float64() >= s.tmpl.Keep {
			continue
		}
		if link != "" {
			out = append(out, link)
		}
	}
	return out, nil
}

func (s *PageSource) Fetch(ctx context.Context, locator string) *domain.Candidate {
	return s.validator.FromURL(ctx, locator)
}

func (s *PageSource) pageURL() string {
	query := s.keywords
	if query == "" {
		query = RandomWord()
	}
	n := s.tmpl.PageMin
	if s.tmpl.PageMax > s.tmpl.PageMin {
		n += rand.IntN(s.tmpl.PageMax - s.tmpl.PageMin + 1)
	}
	page := s.tmpl.PageOffset + s.tmpl.PageStep*n

	r := strings.NewReplacer(
		"{query}", url.QueryEscape(query),
		"{page}", strconv.Itoa(page),
	)
	return r.Replace(s.tmpl.URL)
}
