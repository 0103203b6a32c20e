package stream

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petems/audiotap/internal/audio"
	"github.com/petems/audiotap/internal/config"
)

// fakeSource stands in for a hardware backend the way the real ones
// plug into the controller: created by the open hook, pushing into
// whatever sink it was given.
type fakeSource struct {
	sink audio.Sink

	startErr error
	stopErr  error
	closeErr error

	started bool
	stopped bool
	closed  bool

	count uint64
}

func (f *fakeSource) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeSource) Stop() error {
	f.stopped = true
	return f.stopErr
}

func (f *fakeSource) Close() error {
	f.closed = true
	return f.closeErr
}

func (f *fakeSource) Callbacks() uint64 {
	return f.count
}

// deliver simulates driver callbacks: count, push a copied block.
func (f *fakeSource) deliver(blocks ...[]float32) {
	for _, b := range blocks {
		f.count++
		block := make([]float32, len(b))
		copy(block, b)
		f.sink.Push(block)
	}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Audio.StabilizeMs = 0
	cfg.Buffer.Capacity = 2
	return cfg
}

// newTestController wires a Controller to a fakeSource via the open
// hook. openErr, when set, makes creation fail before a source exists.
func newTestController(cfg *config.Config, src *fakeSource, openErr error) *Controller {
	c := New(cfg, zerolog.Nop())
	c.open = func(_ config.AudioConfig, sink audio.Sink, _ zerolog.Logger) (audio.Source, error) {
		if openErr != nil {
			return nil, openErr
		}
		src.sink = sink
		return src, nil
	}
	return c
}

func TestStartAndRead(t *testing.T) {
	src := &fakeSource{}
	c := newTestController(testConfig(), src, nil)

	require.NoError(t, c.Start())
	require.True(t, src.started)

	src.deliver([]float32{1}, []float32{2})

	got, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, got)

	got, err = c.Read()
	require.NoError(t, err)
	assert.Equal(t, []float32{2}, got)

	_, err = c.Read()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestStartDeviceUnavailable(t *testing.T) {
	openErr := audio.ErrDeviceUnavailable
	c := newTestController(testConfig(), nil, openErr)

	err := c.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, audio.ErrDeviceUnavailable)

	// No handle, buffer untouched.
	assert.Equal(t, 0, c.Buffered())
	_, err = c.Read()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestStartFailureClosesSource(t *testing.T) {
	src := &fakeSource{startErr: errors.New("stream start failed")}
	c := newTestController(testConfig(), src, nil)

	err := c.Start()
	require.Error(t, err)
	assert.True(t, src.closed, "partially created source must be closed")

	// The controller stays idle, so the caller can retry.
	src.startErr = nil
	require.NoError(t, c.Start())
}

func TestStartTwice(t *testing.T) {
	src := &fakeSource{}
	c := newTestController(testConfig(), src, nil)

	require.NoError(t, c.Start())
	assert.ErrorIs(t, c.Start(), ErrAlreadyStarted)
}

func TestStopDrainsBuffer(t *testing.T) {
	src := &fakeSource{}
	c := newTestController(testConfig(), src, nil)
	require.NoError(t, c.Start())

	// 5 blocks pushed with no consumer reads.
	src.deliver([]float32{1}, []float32{2}, []float32{3}, []float32{4}, []float32{5})
	require.Equal(t, 2, c.Buffered())

	c.Stop()

	assert.True(t, src.stopped)
	assert.True(t, src.closed)
	assert.Equal(t, 0, c.Buffered())
}

func TestStopNeverPanicsOnTeardownErrors(t *testing.T) {
	src := &fakeSource{
		stopErr:  errors.New("stop failed"),
		closeErr: errors.New("close failed"),
	}
	c := newTestController(testConfig(), src, nil)
	require.NoError(t, c.Start())

	src.deliver([]float32{1})

	assert.NotPanics(t, func() { c.Stop() })

	// Cleanup proceeded despite the errors.
	assert.True(t, src.stopped)
	assert.True(t, src.closed)
	assert.Equal(t, 0, c.Buffered())
}

func TestUseAfterStop(t *testing.T) {
	src := &fakeSource{}
	c := newTestController(testConfig(), src, nil)
	require.NoError(t, c.Start())
	c.Stop()

	_, err := c.Read()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Start(), ErrClosed)

	// Second Stop is a no-op.
	assert.NotPanics(t, func() { c.Stop() })
}

func TestStopWithoutStart(t *testing.T) {
	c := newTestController(testConfig(), &fakeSource{}, nil)

	assert.NotPanics(t, func() { c.Stop() })
	assert.ErrorIs(t, c.Start(), ErrClosed)
}

func TestCallbacksSurviveRelease(t *testing.T) {
	src := &fakeSource{}
	c := newTestController(testConfig(), src, nil)
	require.NoError(t, c.Start())

	src.deliver([]float32{1}, []float32{2}, []float32{3})
	assert.Equal(t, uint64(3), c.Callbacks())

	c.Stop()
	assert.Equal(t, uint64(3), c.Callbacks())
}
