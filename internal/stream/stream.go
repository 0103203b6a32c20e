// Package stream owns the capture lifecycle: create the source, start
// it, give the driver a moment to stabilize, and later tear everything
// down in an order that can never leak the device or leave stale audio
// in the hand-off buffer.
package stream

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/audiotap/internal/audio"
	"github.com/petems/audiotap/internal/buffer"
	"github.com/petems/audiotap/internal/config"
)

var (
	// ErrClosed is returned when the controller is used after Stop.
	ErrClosed = errors.New("stream released")

	// ErrAlreadyStarted is returned by Start on a running controller.
	ErrAlreadyStarted = errors.New("stream already started")

	// ErrEmpty is returned by Read when no block is buffered.
	ErrEmpty = errors.New("no audio buffered")
)

type state int

const (
	stateIdle state = iota
	stateStarted
	stateReleased
)

// openFunc creates a capture source. Tests substitute fakes here the
// same way the hardware backend is plugged in.
type openFunc func(config.AudioConfig, audio.Sink, zerolog.Logger) (audio.Source, error)

// Controller drives a capture source through its lifecycle and owns
// the hand-off buffer between the driver thread and the consumer.
type Controller struct {
	cfg  *config.Config
	log  zerolog.Logger
	buf  *buffer.Buffer
	open openFunc

	mu        sync.Mutex
	state     state
	src       audio.Source
	callbacks uint64 // final count, captured at teardown
}

// New creates a Controller for the given configuration. Nothing touches
// the hardware until Start.
func New(cfg *config.Config, log zerolog.Logger) *Controller {
	return &Controller{
		cfg:  cfg,
		log:  log,
		buf:  buffer.New(cfg.Buffer.Capacity),
		open: audio.New,
	}
}

// Start creates and starts the capture source, then waits the
// configured stabilization interval so driver warm-up jitter settles
// before the first read. On any failure the partially created source is
// closed and no handle survives.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateStarted:
		return ErrAlreadyStarted
	case stateReleased:
		return ErrClosed
	}

	c.log.Info().
		Str("backend", c.cfg.Audio.Backend).
		Str("device", c.cfg.Audio.Device).
		Msg("Creating capture source")

	src, err := c.open(c.cfg.Audio, c.buf, c.log)
	if err != nil {
		return fmt.Errorf("failed to create capture source: %w", err)
	}

	c.log.Info().Msg("Capture source created, starting")

	if err := src.Start(); err != nil {
		if cerr := src.Close(); cerr != nil {
			c.log.Error().Err(cerr).Msg("Failed to close source after failed start")
		}
		return fmt.Errorf("failed to start capture: %w", err)
	}

	c.log.Info().Msg("Capture started, waiting for callbacks")

	// Give the driver a moment to stabilize.
	time.Sleep(time.Duration(c.cfg.Audio.StabilizeMs) * time.Millisecond)

	c.src = src
	c.state = stateStarted
	return nil
}

// Stop stops and closes the capture source, then drains the buffer.
// Teardown errors are logged and swallowed; the drain runs no matter
// what, and a second Stop is a no-op. After Stop the controller is
// released for good.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateReleased {
		return
	}

	defer func() {
		c.buf.Drain()
		c.state = stateReleased
		c.log.Info().Uint64("callbacks", c.callbacks).Msg("Stream released")
	}()

	if c.src == nil {
		return
	}

	if err := c.src.Stop(); err != nil {
		c.log.Error().Err(err).Msg("Error stopping stream")
	}
	if err := c.src.Close(); err != nil {
		c.log.Error().Err(err).Msg("Error closing stream")
	}
	c.callbacks = c.src.Callbacks()
	c.src = nil
}

// Read returns the oldest buffered block without waiting. ErrEmpty
// means the producer has not delivered since the last read; ErrClosed
// means the stream was released.
func (c *Controller) Read() ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateReleased {
		return nil, ErrClosed
	}
	block, ok := c.buf.TryPop()
	if !ok {
		return nil, ErrEmpty
	}
	return block, nil
}

// Buffered reports how many blocks are waiting for the consumer.
func (c *Controller) Buffered() int {
	return c.buf.Len()
}

// Callbacks reports the producer's invocation count. Diagnostic only.
func (c *Controller) Callbacks() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.src != nil {
		return c.src.Callbacks()
	}
	return c.callbacks
}
