package collector

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/yokitheyo/gobbler/internal/blacklist"
	"github.com/yokitheyo/gobbler/internal/config"
	"github.com/yokitheyo/gobbler/internal/domain"
	"github.com/yokitheyo/gobbler/internal/infrastructure/fetch"
)

// Validator downloads or reads a candidate image and checks it against the
// size limit, accepted content types, the blacklist and the decoders.
type Validator struct {
	client    *fetch.Client
	maxSize   int64
	mimeTypes map[string]string
	blacklist *blacklist.Blacklist
}

func NewValidator(cfg *config.Config, client *fetch.Client) *Validator {
	return &Validator{
		client:    client,
		maxSize:   cfg.Collector.MaximumImageSize,
		mimeTypes: cfg.Collector.AcceptedMimeTypes,
		blacklist: cfg.CompiledBlacklist(),
	}
}

// FromURL never returns nil. A rejected candidate carries the discard reason.
func (v *Validator) FromURL(ctx context.Context, rawURL string) *domain.Candidate {
	if pattern, ok := v.blacklist.MatchURL(rawURL); ok {
		return domain.Rejected(rawURL, fmt.Sprintf("blacklisted url (%s)", pattern))
	}

	resp, err := v.client.Get(ctx, rawURL)
	if err != nil {
		return domain.Rejected(rawURL, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.Rejected(rawURL, "not found")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Rejected(rawURL, fmt.Sprintf("HTTP request failed with error %d (%s)",
			resp.StatusCode, http.StatusText(resp.StatusCode)))
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		mediaType = strings.TrimSpace(resp.Header.Get("Content-Type"))
	}
	mediaType = strings.ToLower(mediaType)
	ext, ok := v.mimeTypes[mediaType]
	if !ok {
		return domain.Rejected(rawURL, fmt.Sprintf("not an image (%s)", mediaType))
	}

	// A missing Content-Length (-1) is accepted here and re-checked below.
	if resp.ContentLength > v.maxSize {
		return domain.Rejected(rawURL, "too big")
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, v.maxSize+1))
	if err != nil {
		return domain.Rejected(rawURL, "error while downloading image")
	}
	return v.check(rawURL, data, ext)
}

func (v *Validator) FromFile(path string) *domain.Candidate {
	ext := strings.ToLower(filepath.Ext(path))
	if !domain.IsImageExt(ext) {
		return domain.Rejected(path, fmt.Sprintf("not an image (%s)", ext))
	}

	f, err := os.Open(path)
	if err != nil {
		return domain.Rejected(path, err.Error())
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, v.maxSize+1))
	if err != nil {
		return domain.Rejected(path, "error while reading file")
	}
	return v.check(path, data, ext)
}

func (v *Validator) check(source string, data []byte, ext string) *domain.Candidate {
	if len(data) == 0 {
		return domain.Rejected(source, "no data")
	}
	if int64(len(data)) > v.maxSize {
		return domain.Rejected(source, "too big")
	}

	c := domain.NewCandidate(source, data, ext)
	if v.blacklist.HasHash(c.SHA1) {
		return domain.Rejected(source, "blacklisted")
	}
	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		return domain.Rejected(source, fmt.Sprintf("cannot decode image (%v)", err))
	}
	return c
}
