package http

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/ginext"

	"github.com/yokitheyo/gobbler/internal/command"
	"github.com/yokitheyo/gobbler/internal/domain"
	"github.com/yokitheyo/gobbler/internal/dto"
	"github.com/yokitheyo/gobbler/internal/handler/middleware"
	"github.com/yokitheyo/gobbler/internal/pool"
)

type stubAssembler struct {
	img      *image.NRGBA
	accepted bool
	calls    int
	err      error
}

func (s *stubAssembler) Superpose() bool       { s.calls++; return s.accepted }
func (s *stubAssembler) Image() *image.NRGBA   { return s.img }
func (s *stubAssembler) State() command.Status { return command.Status{Phase: command.PhaseWaiting} }
func (s *stubAssembler) Sessions() int         { return 2 }
func (s *stubAssembler) Err() error            { return s.err }

type stubPool struct{}

func (stubPool) Size() int { return 7 }
func (stubPool) Collectors() []pool.CollectorStatus {
	return []pool.CollectorStatus{{Name: "local", Status: command.Status{Phase: command.PhaseCopying, Detail: "/tmp/a.jpg"}}}
}

type stubOutput struct {
	latest *domain.Composite
	data   string
}

func (s *stubOutput) Latest() *domain.Composite { return s.latest }
func (s *stubOutput) OpenLatest(context.Context) (io.ReadCloser, *domain.Composite, error) {
	return io.NopCloser(strings.NewReader(s.data)), s.latest, nil
}
func (s *stubOutput) ContentType() string { return "image/png" }

type stubHistory struct {
	enabled bool
	limit   int
}

func (s *stubHistory) Enabled() bool { return s.enabled }
func (s *stubHistory) Recent(_ context.Context, limit int) ([]*domain.UsedImage, error) {
	s.limit = limit
	return []*domain.UsedImage{{ID: "1", Filename: "WGa.jpg", UsedAt: time.Now()}}, nil
}
func (s *stubHistory) Count(context.Context) (int64, error) { return 42, nil }

type stubRequests struct {
	err error
	got *dto.SuperposeRequest
}

func (s *stubRequests) HandleSuperposeRequest(_ context.Context, req *dto.SuperposeRequest) error {
	s.got = req
	return s.err
}

type fixture struct {
	engine    *ginext.Engine
	assembler *stubAssembler
	output    *stubOutput
	history   *stubHistory
	requests  *stubRequests
}

func newFixture() *fixture {
	f := &fixture{
		assembler: &stubAssembler{img: image.NewNRGBA(image.Rect(0, 0, 16, 8)), accepted: true},
		output:    &stubOutput{},
		history:   &stubHistory{enabled: true},
		requests:  &stubRequests{},
	}
	f.engine = ginext.New("api")
	f.engine.Use(middleware.ErrorHandlerMiddleware(), middleware.CORSMiddleware())
	NewCompositeHandler(f.assembler, stubPool{}, 50, f.output, f.history, f.requests).RegisterRoutes(f.engine)
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := newFixture().do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestGetImageFromAssemblerBeforePublish(t *testing.T) {
	w := newFixture().do(http.MethodGet, "/image", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "\xff\xd8"))
}

func TestGetImagePublished(t *testing.T) {
	f := newFixture()
	f.output.latest = &domain.Composite{ID: "c-9", Path: "gobbler.png"}
	f.output.data = "\x89PNGdata"

	w := f.do(http.MethodGet, "/image", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "c-9", w.Header().Get("X-Composite-ID"))
	assert.Equal(t, "\x89PNGdata", w.Body.String())
}

func TestGetImageNotReady(t *testing.T) {
	f := newFixture()
	f.assembler.img = nil
	w := f.do(http.MethodGet, "/image", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetStatus(t *testing.T) {
	w := newFixture().do(http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.PoolSize)
	assert.Equal(t, 50, resp.PoolTarget)
	assert.Equal(t, 2, resp.Sessions)
	require.Len(t, resp.Collectors, 1)
	assert.Equal(t, "Copying file", resp.Collectors[0].Phase)
	assert.Equal(t, "Waiting", resp.Assembler.Phase)
	assert.Nil(t, resp.Latest)
}

func TestSuperposeAsync(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodPost, "/superpose", "")
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp dto.SuperposeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Accepted)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, 1, f.assembler.calls)
	assert.Nil(t, f.requests.got)
}

func TestSuperposeWait(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodPost, "/superpose", `{"request_id":"r-1","wait":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, f.requests.got)
	assert.Equal(t, "r-1", f.requests.got.RequestID)
	assert.Equal(t, 0, f.assembler.calls)
}

func TestSuperposeWaitFailure(t *testing.T) {
	f := newFixture()
	f.requests.err = domain.ErrShutdown
	w := f.do(http.MethodPost, "/superpose", `{"wait":true}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSuperposeBadBody(t *testing.T) {
	w := newFixture().do(http.MethodPost, "/superpose", `{nope`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetHistory(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodGet, "/history?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, f.history.limit)

	var resp dto.HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(42), resp.Total)
	require.Len(t, resp.Images, 1)
	assert.Equal(t, "WGa.jpg", resp.Images[0].Filename)
}

func TestGetHistoryInvalidLimit(t *testing.T) {
	w := newFixture().do(http.MethodGet, "/history?limit=1000", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetHistoryDisabled(t *testing.T) {
	f := newFixture()
	f.history.enabled = false
	w := f.do(http.MethodGet, "/history", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	w := newFixture().do(http.MethodOptions, "/status", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSuperposeAssemblerFailed(t *testing.T) {
	f := newFixture()
	f.assembler.accepted = false
	f.assembler.err = fmt.Errorf("write current image: %w", domain.ErrPersistence)

	w := f.do(http.MethodPost, "/superpose", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "assembler_failed")

	f.requests.err = f.assembler.err
	w = f.do(http.MethodPost, "/superpose", `{"wait":true}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "assembler_failed")
}
