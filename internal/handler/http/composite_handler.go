package http

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"net/http"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/yokitheyo/gobbler/internal/command"
	"github.com/yokitheyo/gobbler/internal/domain"
	"github.com/yokitheyo/gobbler/internal/dto"
	"github.com/yokitheyo/gobbler/internal/pool"
)

type Assembler interface {
	Superpose() bool
	Image() *image.NRGBA
	State() command.Status
	Sessions() int
	Err() error
}

type PoolStatus interface {
	Size() int
	Collectors() []pool.CollectorStatus
}

type Output interface {
	Latest() *domain.Composite
	OpenLatest(ctx context.Context) (io.ReadCloser, *domain.Composite, error)
	ContentType() string
}

type History interface {
	Enabled() bool
	Recent(ctx context.Context, limit int) ([]*domain.UsedImage, error)
	Count(ctx context.Context) (int64, error)
}

type RequestHandler interface {
	HandleSuperposeRequest(ctx context.Context, req *dto.SuperposeRequest) error
}

type CompositeHandler struct {
	assembler  Assembler
	pool       PoolStatus
	poolTarget int
	output     Output
	history    History
	requests   RequestHandler
}

func NewCompositeHandler(assembler Assembler, pool PoolStatus, poolTarget int, output Output, history History, requests RequestHandler) *CompositeHandler {
	return &CompositeHandler{
		assembler:  assembler,
		pool:       pool,
		poolTarget: poolTarget,
		output:     output,
		history:    history,
		requests:   requests,
	}
}

func (h *CompositeHandler) RegisterRoutes(engine *ginext.Engine) {
	engine.GET("/health", h.Health)
	engine.GET("/image", h.GetImage)
	engine.GET("/status", h.GetStatus)
	engine.POST("/superpose", h.Superpose)
	engine.GET("/history", h.GetHistory)
}

// Health GET /health
func (h *CompositeHandler) Health(c *ginext.Context) {
	c.JSON(http.StatusOK, ginext.H{"status": "ok"})
}

// GetImage GET /image
func (h *CompositeHandler) GetImage(c *ginext.Context) {
	if h.output != nil && h.output.Latest() != nil {
		file, composite, err := h.output.OpenLatest(c.Request.Context())
		if err == nil {
			defer file.Close()
			c.Header("X-Composite-ID", composite.ID)
			c.DataFromReader(http.StatusOK, -1, h.output.ContentType(), file, nil)
			return
		}
		zlog.Logger.Warn().Err(err).Msg("falling back to in-memory image")
	}

	img := h.assembler.Image()
	if img == nil {
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
			Error:   "not_ready",
			Message: "No image has been assembled yet",
		})
		return
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to encode image")
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "encode_failed",
			Message: "Failed to encode image",
		})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", buf.Bytes())
}

// GetStatus GET /status
func (h *CompositeHandler) GetStatus(c *ginext.Context) {
	resp := dto.StatusResponse{
		PoolSize:   h.pool.Size(),
		PoolTarget: h.poolTarget,
		Assembler:  dto.MapStatus("assembler_superpose", h.assembler.State()),
		Sessions:   h.assembler.Sessions(),
	}
	for _, cs := range h.pool.Collectors() {
		resp.Collectors = append(resp.Collectors, dto.MapStatus(cs.Name, cs.Status))
	}
	if err := h.assembler.Err(); err != nil {
		resp.LastError = err.Error()
	}
	if h.output != nil {
		resp.Latest = dto.MapCompositeToEvent(h.output.Latest())
	}
	c.JSON(http.StatusOK, resp)
}

// Superpose POST /superpose
func (h *CompositeHandler) Superpose(c *ginext.Context) {
	var req dto.SuperposeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error:   "invalid_request",
				Message: err.Error(),
			})
			return
		}
	}
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	if !req.Wait || h.requests == nil {
		accepted := h.assembler.Superpose()
		if err := h.assembler.Err(); !accepted && errors.Is(err, domain.ErrPersistence) {
			c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
				Error:   "assembler_failed",
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusAccepted, dto.SuperposeResponse{RequestID: req.RequestID, Accepted: accepted})
		return
	}

	if err := h.requests.HandleSuperposeRequest(c.Request.Context(), &req); err != nil {
		status, code := http.StatusInternalServerError, "superpose_failed"
		switch {
		case errors.Is(err, domain.ErrPersistence):
			status, code = http.StatusServiceUnavailable, "assembler_failed"
		case errors.Is(err, domain.ErrShutdown):
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, dto.ErrorResponse{
			Error:   code,
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, dto.SuperposeResponse{RequestID: req.RequestID, Accepted: true})
}

// GetHistory GET /history?limit=
func (h *CompositeHandler) GetHistory(c *ginext.Context) {
	if h.history == nil || !h.history.Enabled() {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error:   "history_disabled",
			Message: domain.ErrHistoryDisabled.Error(),
		})
		return
	}

	var q dto.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_limit",
			Message: "limit must be between 1 and 100",
		})
		return
	}

	images, err := h.history.Recent(c.Request.Context(), q.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "history_failed",
			Message: "Failed to read history",
		})
		return
	}
	total, err := h.history.Count(c.Request.Context())
	if err != nil {
		zlog.Logger.Warn().Err(err).Msg("failed to count used images")
		total = int64(len(images))
	}
	c.JSON(http.StatusOK, dto.MapUsedImagesToResponse(images, total, q.Limit))
}
