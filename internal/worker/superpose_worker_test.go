package worker

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yokitheyo/gobbler/internal/domain"
	"github.com/yokitheyo/gobbler/internal/dto"
)

type fakeAssembler struct {
	triggered int
	blocking  int
	err       error
	stopped   bool
}

func (f *fakeAssembler) Superpose() bool {
	f.triggered++
	return !f.stopped && f.triggered == 1
}

func (f *fakeAssembler) Err() error {
	if f.stopped {
		return f.err
	}
	return nil
}

func (f *fakeAssembler) SuperposeBlocking(context.Context) error {
	f.blocking++
	return f.err
}

func (f *fakeAssembler) Image() *image.NRGBA {
	return image.NewNRGBA(image.Rect(0, 0, 4, 4))
}

type fakePublisher struct {
	published int
}

func (f *fakePublisher) Publish(_ context.Context, img image.Image) (*domain.Composite, error) {
	f.published++
	return &domain.Composite{ID: "c-1", Width: img.Bounds().Dx()}, nil
}

func TestHandleSuperposeRequestAsync(t *testing.T) {
	a, p := &fakeAssembler{}, &fakePublisher{}
	w := NewSuperposeWorker(a, p)

	require.NoError(t, w.HandleSuperposeRequest(context.Background(), &dto.SuperposeRequest{RequestID: "r-1"}))
	require.NoError(t, w.HandleSuperposeRequest(context.Background(), &dto.SuperposeRequest{RequestID: "r-2"}))
	assert.Equal(t, 2, a.triggered)
	assert.Equal(t, 0, a.blocking)
	assert.Equal(t, 0, p.published)
}

func TestHandleSuperposeRequestWait(t *testing.T) {
	a, p := &fakeAssembler{}, &fakePublisher{}
	w := NewSuperposeWorker(a, p)

	require.NoError(t, w.HandleSuperposeRequest(context.Background(), &dto.SuperposeRequest{RequestID: "r-1", Wait: true}))
	assert.Equal(t, 1, a.blocking)
	assert.Equal(t, 1, p.published)
}

func TestHandleSuperposeRequestFailure(t *testing.T) {
	a, p := &fakeAssembler{err: domain.ErrPersistence}, &fakePublisher{}
	w := NewSuperposeWorker(a, p)

	err := w.HandleSuperposeRequest(context.Background(), &dto.SuperposeRequest{RequestID: "r-1", Wait: true})
	assert.True(t, errors.Is(err, domain.ErrPersistence))
	assert.Equal(t, 0, p.published)
}

func TestHandleSuperposeRequestAssemblerStopped(t *testing.T) {
	a := &fakeAssembler{err: domain.ErrPersistence, stopped: true}
	w := NewSuperposeWorker(a, &fakePublisher{})

	err := w.HandleSuperposeRequest(context.Background(), &dto.SuperposeRequest{RequestID: "r-1"})
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Equal(t, 1, a.triggered)
}
