package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"

	"github.com/yokitheyo/gobbler/internal/domain"
	"github.com/yokitheyo/gobbler/internal/infrastructure/fetch"
)

// ListingDecoder pulls image URLs out of a JSON listing document.
type ListingDecoder func(body []byte) ([]string, error)

type ListingTemplate struct {
	Name string
	// Listings are fetched in turn, one per discovery. Each may contain a
	// {query} placeholder.
	Listings []string
	// SearchListing replaces Listings when keywords are set.
	SearchListing string
	Decode        ListingDecoder
	Pacing        Pacing
}

type JSONListingSource struct {
	tmpl      ListingTemplate
	client    *fetch.Client
	validator *Validator
	keywords  string
	next      int
}

func NewJSONListingSource(tmpl ListingTemplate, client *fetch.Client, validator *Validator, keywords string) *JSONListingSource {
	if tmpl.Pacing == (Pacing{}) {
		tmpl.Pacing = networkPacing
	}
	return &JSONListingSource{
		tmpl:      tmpl,
		client:    client,
		validator: validator,
		keywords:  strings.TrimSpace(keywords),
	}
}

func (s *JSONListingSource) Name() string   { return s.tmpl.Name }
func (s *JSONListingSource) Pacing() Pacing { return s.tmpl.Pacing }

func (s *JSONListingSource) Discover(ctx context.Context) ([]string, error) {
	listing := s.listingURL()
	body, err := s.client.Page(ctx, listing)
	if err != nil {
		return nil, err
	}
	links, err := s.tmpl.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", listing, err, domain.ErrLayoutChanged)
	}

	out := links[:0]
	for _, l := range links {
		u, err := url.Parse(l)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		out = append(out, l)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", listing, domain.ErrLayoutChanged)
	}
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out, nil
}

func (s *JSONListingSource) Fetch(ctx context.Context, locator string) *domain.Candidate {
	return s.validator.FromURL(ctx, locator)
}

func (s *JSONListingSource) listingURL() string {
	raw := s.tmpl.SearchListing
	if s.keywords == "" || raw == "" {
		raw = s.tmpl.Listings[s.next%len(s.tmpl.Listings)]
		s.next++
	}
	return strings.ReplaceAll(raw, "{query}", url.QueryEscape(s.keywords))
}

// RedditListing is the listing description for reddit's public JSON API.
func RedditListing() ListingTemplate {
	p := networkPacing
	p.LowWater = 10
	p.Alternate = false
	return ListingTemplate{
		Name: "reddit",
		Listings: []string{
			"https://www.reddit.com/r/pics/.json?limit=100",
			"https://www.reddit.com/r/funny/.json?limit=100",
			"https://www.reddit.com/r/memes/.json?limit=100",
			"https://www.reddit.com/r/art/.json?limit=100",
			"https://www.reddit.com/r/aww/.json?limit=100",
		},
		SearchListing: "https://www.reddit.com/search.json?q={query}&type=link&limit=100",
		Decode:        decodeRedditListing,
		Pacing:        p,
	}
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func decodeRedditListing(body []byte) ([]string, error) {
	var l redditListing
	if err := json.Unmarshal(body, &l); err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(l.Data.Children))
	for _, c := range l.Data.Children {
		if c.Data.URL != "" {
			urls = append(urls, c.Data.URL)
		}
	}
	return urls, nil
}
