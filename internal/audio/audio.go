package audio

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/petems/audiotap/internal/config"
)

var (
	// ErrDeviceUnavailable is returned when the configured capture
	// device cannot be found or opened.
	ErrDeviceUnavailable = errors.New("capture device unavailable")

	// ErrClosed is returned when a source is used after Close.
	ErrClosed = errors.New("capture source closed")
)

// Block is one callback's worth of interleaved samples, normalized to
// float32. It is always a fresh copy; the driver's reused storage never
// aliases a Block.
type Block []float32

// Sink receives blocks from the driver's callback context. Push must
// never block for an unbounded time.
type Sink interface {
	Push(block []float32)
}

// Source wraps a hardware input device that delivers fixed-size blocks
// of captured audio to a Sink from a driver-owned thread.
//
// A freshly created Source holds driver resources but produces no data
// until Start. Stop guarantees no new callback begins after it returns;
// one in-flight callback may still complete. Close releases driver
// resources and is safe to call after Stop; any operation after Close
// fails with ErrClosed.
type Source interface {
	Start() error
	Stop() error
	Close() error

	// Callbacks reports how many times the driver has invoked the
	// capture callback. Diagnostic only.
	Callbacks() uint64
}

// Device describes an audio input device.
type Device struct {
	ID      string
	Name    string
	Default bool
}

// New creates a capture source for the configured backend, delivering
// blocks to sink.
func New(cfg config.AudioConfig, sink Sink, log zerolog.Logger) (Source, error) {
	switch cfg.Backend {
	case config.BackendPortAudio:
		return newPortAudioSource(cfg, sink, log)
	case config.BackendMalgo:
		return newMalgoSource(cfg, sink, log)
	default:
		return nil, fmt.Errorf("unknown audio backend %q", cfg.Backend)
	}
}

// ListDevices enumerates the input devices visible to the given backend.
func ListDevices(backend string) ([]Device, error) {
	switch backend {
	case config.BackendPortAudio:
		return listPortAudioDevices()
	case config.BackendMalgo:
		return listMalgoDevices()
	default:
		return nil, fmt.Errorf("unknown audio backend %q", backend)
	}
}
