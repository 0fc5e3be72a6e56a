package collector

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	reFlickrThumb  = regexp.MustCompile(`(?is)src="((?:https?:)?//(?:farm\d+\.)?static\.?flickr\.com[^"]+?_[tm]\.jpg)"`)
	reGoogleImgURL = regexp.MustCompile(`(?is)imgurl=(https?://.+?)&`)
	reYahooImgURL  = regexp.MustCompile(`(?is)&imgurl=(.+?)&`)
)

// PagePreset returns the page description for a named site. Keyword search
// may use a different endpoint than random browsing.
func PagePreset(name string, keywords bool) (PageTemplate, bool) {
	switch name {
	case "flickr":
		if keywords {
			// flickr's own search stops after a few pages
			return PageTemplate{
				Name:     "flickr",
				URL:      "http://images.google.com/images?q=site%3Aflickr.com+{query}&hl=en&start={page}",
				Pattern:  reGoogleImgURL,
				PageMax:  50,
				PageStep: 10,
			}, true
		}
		return PageTemplate{
			Name:      "flickr",
			URL:       "https://www.flickr.com/photos/?start={page}",
			Pattern:   reFlickrThumb,
			Rewrite:   flickrLarge,
			PageMin:   1,
			PageMax:   999999999,
			Keep:      0.25,
			NoResults: "Your search didn't match any photos.",
		}, true
	case "deviantart":
		if keywords {
			return PageTemplate{
				Name:     "deviantart",
				URL:      "https://www.deviantart.com/search?q={query}&offset={page}",
				PageMax:  300,
				PageStep: 24,
				Keep:     0.66,
			}, true
		}
		return PageTemplate{
			Name:     "deviantart",
			URL:      "https://www.deviantart.com/popular/deviations?offset={page}",
			PageMax:  300,
			PageStep: 24,
			Keep:     0.66,
		}, true
	case "yahoo":
		p := networkPacing
		p.LowWater = 500
		return PageTemplate{
			Name:       "yahoo",
			URL:        "https://images.search.yahoo.com/search/images?p={query}&b={page}",
			Pattern:    reYahooImgURL,
			Rewrite:    unescapeWithScheme,
			PageMax:    50,
			PageStep:   20,
			PageOffset: 1,
			Pacing:     p,
		}, true
	case "google":
		p := networkPacing
		p.LowWater = 500
		return PageTemplate{
			Name:     "google",
			URL:      "http://images.google.com/images?q={query}&hl=en&start={page}",
			Pattern:  reGoogleImgURL,
			PageMax:  50,
			PageStep: 10,
			Pacing:   p,
		}, true
	}
	return PageTemplate{}, false
}

// flickrLarge turns thumbnail and medium URLs into the large size.
func flickrLarge(u string) string {
	if strings.HasPrefix(u, "//") {
		u = "https:" + u
	}
	return strings.NewReplacer("_t.jpg", "_b.jpg", "_m.jpg", "_b.jpg").Replace(u)
}

func unescapeWithScheme(u string) string {
	if dec, err := url.QueryUnescape(u); err == nil {
		u = dec
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "http://" + u
	}
	return u
}
