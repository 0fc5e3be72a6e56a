package dto

import (
	"time"

	"github.com/yokitheyo/gobbler/internal/command"
	"github.com/yokitheyo/gobbler/internal/domain"
)

// CompositeEvent is published to kafka for every new final image.
type CompositeEvent struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	CreatedAt time.Time `json:"created_at"`
}

type CollectorStatusResponse struct {
	Name   string `json:"name"`
	Phase  string `json:"phase"`
	Detail string `json:"detail,omitempty"`
}

type StatusResponse struct {
	PoolSize   int                       `json:"pool_size"`
	PoolTarget int                       `json:"pool_target"`
	Collectors []CollectorStatusResponse `json:"collectors"`
	Assembler  CollectorStatusResponse   `json:"assembler"`
	Sessions   int                       `json:"sessions"`
	LastError  string                    `json:"last_error,omitempty"`
	Latest     *CompositeEvent           `json:"latest,omitempty"`
}

type SuperposeResponse struct {
	RequestID string `json:"request_id"`
	Accepted  bool   `json:"accepted"`
}

type UsedImageResponse struct {
	ID       string    `json:"id"`
	Filename string    `json:"filename"`
	Source   string    `json:"source"`
	SHA1     string    `json:"sha1"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	UsedAt   time.Time `json:"used_at"`
}

type HistoryResponse struct {
	Images []*UsedImageResponse `json:"images"`
	Total  int64                `json:"total"`
	Limit  int                  `json:"limit"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

func MapCompositeToEvent(c *domain.Composite) *CompositeEvent {
	if c == nil {
		return nil
	}
	return &CompositeEvent{
		ID:        c.ID,
		Path:      c.Path,
		Width:     c.Width,
		Height:    c.Height,
		CreatedAt: c.CreatedAt,
	}
}

func MapStatus(name string, s command.Status) CollectorStatusResponse {
	return CollectorStatusResponse{Name: name, Phase: string(s.Phase), Detail: s.Detail}
}

func MapUsedImagesToResponse(images []*domain.UsedImage, total int64, limit int) *HistoryResponse {
	out := make([]*UsedImageResponse, 0, len(images))
	for _, img := range images {
		out = append(out, &UsedImageResponse{
			ID:       img.ID,
			Filename: img.Filename,
			Source:   img.Source,
			SHA1:     img.SHA1,
			Width:    img.Width,
			Height:   img.Height,
			UsedAt:   img.UsedAt,
		})
	}
	return &HistoryResponse{Images: out, Total: total, Limit: limit}
}
