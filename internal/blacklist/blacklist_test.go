package blacklist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchURL(t *testing.T) {
	b, err := New(nil, []string{
		"http://www.flickr.com/images/photo_unavailable.gif",
		"http://*.deviantart.net/*/shared/poetry.jpg",
		"*/banners/",
	})
	require.NoError(t, err)

	tests := []struct {
		name  string
		url   string
		match bool
	}{
		{"exact url", "http://www.flickr.com/images/photo_unavailable.gif", true},
		{"implicit trailing wildcard", "http://www.flickr.com/images/photo_unavailable.gif?x=1", true},
		{"inner wildcards", "http://th03.deviantart.net/fs7/shared/poetry.jpg", true},
		{"leading wildcard", "https://ads.example.org/banners/top.png", true},
		{"case insensitive", "HTTP://WWW.FLICKR.COM/images/photo_unavailable.gif", true},
		{"anchored at start", "see http://www.flickr.com/images/photo_unavailable.gif", false},
		{"unrelated", "http://example.org/cat.jpg", false},
		{"regex metacharacters are literal", "http://wwwXflickrXcom/images/photo_unavailable.gif", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := b.MatchURL(tt.url)
			assert.Equal(t, tt.match, ok)
		})
	}
}

func TestHasHash(t *testing.T) {
	b, err := New([]string{" 142DA07C8CFD0AA9BEBB0B2F5939AD636BD474E5 ", ""}, nil)
	require.NoError(t, err)

	assert.True(t, b.HasHash("142da07c8cfd0aa9bebb0b2f5939ad636bd474e5"))
	assert.False(t, b.HasHash("d6ee67a52d8fbef935225de1363847d30a86b5de"))

	hashes, patterns := b.Len()
	assert.Equal(t, 1, hashes)
	assert.Equal(t, 0, patterns)
}

func TestNilBlacklist(t *testing.T) {
	var b *Blacklist
	assert.False(t, b.HasHash("abc"))
	_, ok := b.MatchURL("http://x")
	assert.False(t, ok)
}
