package domain

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MaxSourceLength caps the source recorded after the mark. Longer sources
// are cut when staging so the mark always lies in the searched tail.
const MaxSourceLength = 4096

const stagedPrefix = "WG"

// Candidate is a downloaded or copied blob awaiting acceptance into the pool.
// A non-empty Discard means it was rejected and Data is nil.
type Candidate struct {
	Data    []byte
	Source  string
	SHA1    string
	Ext     string
	Discard string
}

func NewCandidate(source string, data []byte, ext string) *Candidate {
	sum := sha1.Sum(data)
	return &Candidate{
		Data:   data,
		Source: source,
		SHA1:   hex.EncodeToString(sum[:]),
		Ext:    ext,
	}
}

func Rejected(source, reason string) *Candidate {
	return &Candidate{Source: source, Discard: reason}
}

func (c *Candidate) Accepted() bool {
	return c != nil && c.Discard == "" && len(c.Data) > 0
}

// Filename is the staged file name, WG<sha1><ext>.
func (c *Candidate) Filename() string {
	return stagedPrefix + c.SHA1 + c.Ext
}

// StagedSHA1 returns the digest embedded in a staged file name, if any.
func StagedSHA1(name string) (string, bool) {
	name = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if !strings.HasPrefix(name, stagedPrefix) || len(name) != len(stagedPrefix)+sha1.Size*2 {
		return "", false
	}
	digest := strings.ToLower(name[len(stagedPrefix):])
	if _, err := hex.DecodeString(digest); err != nil {
		return "", false
	}
	return digest, true
}

// SaveToDisk writes the image bytes followed by mark and the source into dir.
// The file appears under its final name only once fully written.
func (c *Candidate) SaveToDisk(dir, mark string) (string, error) {
	if !c.Accepted() {
		return "", ErrNotAnImage
	}

	final := filepath.Join(dir, c.Filename())
	tmp, err := os.CreateTemp(dir, ".staging-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	source := c.Source
	if len(source) > MaxSourceLength {
		source = source[:MaxSourceLength]
	}
	payload := make([]byte, 0, len(c.Data)+len(mark)+len(source))
	payload = append(payload, c.Data...)
	payload = append(payload, mark...)
	payload = append(payload, source...)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write staged file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close staged file: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("rename staged file: %w", err)
	}
	return final, nil
}

// SourceMarkWindow is how many trailing bytes of a staged file can hold the
// mark and its source.
func SourceMarkWindow(mark string) int {
	return len(mark) + MaxSourceLength
}

// SplitSourceMark separates a staged file into image bytes and the source
// recorded after the last mark in its trailing SourceMarkWindow bytes. Files
// without a mark are returned unchanged with an empty source.
func SplitSourceMark(data []byte, mark string) ([]byte, string) {
	if mark == "" {
		return data, ""
	}
	start := len(data) - SourceMarkWindow(mark)
	if start < 0 {
		start = 0
	}
	idx := bytes.LastIndex(data[start:], []byte(mark))
	if idx < 0 {
		return data, ""
	}
	idx += start
	return data[:idx], string(data[idx+len(mark):])
}

// ImageExtensions are the file extensions recognised in the pool directory
// and by the local source.
var ImageExtensions = []string{".jpg", ".jpeg", ".jpe", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

func IsImageExt(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range ImageExtensions {
		if e == ext {
			return true
		}
	}
	return false
}
