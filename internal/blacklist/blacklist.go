package blacklist

import (
	"fmt"
	"regexp"
	"strings"
)

// Blacklist rejects images by content digest or by source URL pattern.
// It is built once from configuration and is safe for concurrent reads.
type Blacklist struct {
	hashes   map[string]struct{}
	patterns []*regexp.Regexp
	raw      []string
}

// New compiles url patterns where '*' matches any run of characters and an
// implicit '*' is appended. Matching is anchored at the start of the URL and is
// case-insensitive.
func New(sha1s []string, urlPatterns []string) (*Blacklist, error) {
	b := &Blacklist{
		hashes: make(map[string]struct{}, len(sha1s)),
	}
	for _, h := range sha1s {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		b.hashes[h] = struct{}{}
	}
	for _, p := range urlPatterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := compilePattern(p)
		if err != nil {
			return nil, fmt.Errorf("compile url pattern %q: %w", p, err)
		}
		b.patterns = append(b.patterns, re)
		b.raw = append(b.raw, p)
	}
	return b, nil
}

func compilePattern(p string) (*regexp.Regexp, error) {
	if !strings.HasSuffix(p, "*") {
		p += "*"
	}
	parts := strings.Split(p, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.Compile("(?i)^" + strings.Join(parts, ".*"))
}

// HasHash reports whether the hex SHA1 digest is blacklisted.
func (b *Blacklist) HasHash(sha1hex string) bool {
	if b == nil {
		return false
	}
	_, ok := b.hashes[strings.ToLower(sha1hex)]
	return ok
}

// MatchURL returns the first pattern matching url.
func (b *Blacklist) MatchURL(url string) (string, bool) {
	if b == nil {
		return "", false
	}
	for i, re := range b.patterns {
		if re.MatchString(url) {
			return b.raw[i], true
		}
	}
	return "", false
}

func (b *Blacklist) Len() (hashes, patterns int) {
	if b == nil {
		return 0, 0
	}
	return len(b.hashes), len(b.patterns)
}
