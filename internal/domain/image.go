package domain

import (
	"image"
	"time"
)

// PoolImage is a decoded image handed from the pool to an assembler.
type PoolImage struct {
	Image    image.Image
	Filename string
	Source   string
	SHA1     string
}

func (p *PoolImage) Bounds() image.Rectangle {
	return p.Image.Bounds()
}

// UsedImage is one entry of the consumed-image history.
type UsedImage struct {
	ID       string    `json:"id"`
	Filename string    `json:"filename"`
	Source   string    `json:"source"`
	SHA1     string    `json:"sha1"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	UsedAt   time.Time `json:"used_at"`
}

// Composite describes a published composite image.
type Composite struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	CreatedAt time.Time `json:"created_at"`
}
