package audio

import (
	"encoding/hex"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"

	"github.com/petems/audiotap/internal/config"
)

// malgoSource captures via miniaudio. The Data callback runs on the
// miniaudio device thread and hands each block to the sink.
type malgoSource struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	format string
	sink   Sink
	log    zerolog.Logger

	count    atomic.Uint64
	stopping atomic.Bool

	mu     sync.Mutex
	closed bool
}

func newMalgoSource(cfg config.AudioConfig, sink Sink, log zerolog.Logger) (*malgoSource, error) {
	ctx, err := malgo.InitContext(malgoBackends(), malgo.ContextConfig{}, func(message string) {
		log.Debug().Str("source", "miniaudio").Msg(strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize miniaudio context: %w", err)
	}

	s := &malgoSource{ctx: ctx, format: cfg.Format, sink: sink, log: log}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.BlockSize)
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.Alsa.NoMMap = 1
	switch cfg.Format {
	case config.FormatInt16:
		deviceConfig.Capture.Format = malgo.FormatS16
	default:
		deviceConfig.Capture.Format = malgo.FormatF32
	}

	if cfg.Device != "" {
		infos, err := ctx.Devices(malgo.Capture)
		if err != nil {
			s.teardownContext()
			return nil, fmt.Errorf("failed to get devices: %w", err)
		}
		found := false
		for i := range infos {
			if matchesCaptureDevice(&infos[i], cfg.Device) {
				deviceConfig.Capture.DeviceID = infos[i].ID.Pointer()
				found = true
				break
			}
		}
		if !found {
			s.teardownContext()
			return nil, fmt.Errorf("%w: %q", ErrDeviceUnavailable, cfg.Device)
		}
	}

	callbacks := malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onStop,
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		s.teardownContext()
		return nil, fmt.Errorf("%w: device init failed: %v", ErrDeviceUnavailable, err)
	}
	s.device = device

	log.Info().
		Str("device", cfg.Device).
		Int("channels", cfg.Channels).
		Int("sample_rate", cfg.SampleRate).
		Int("block_size", cfg.BlockSize).
		Msg("miniaudio capture device created")

	return s, nil
}

// malgoBackends picks the platform backend the way miniaudio users
// usually do; nil lets miniaudio auto-select on other platforms.
func malgoBackends() []malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return []malgo.Backend{malgo.BackendAlsa}
	case "windows":
		return []malgo.Backend{malgo.BackendWasapi}
	case "darwin":
		return []malgo.Backend{malgo.BackendCoreaudio}
	}
	return nil
}

// matchesCaptureDevice checks the decoded device ID and the device name
// against the configured identifier.
func matchesCaptureDevice(info *malgo.DeviceInfo, want string) bool {
	if decoded, err := hex.DecodeString(info.ID.String()); err == nil {
		if string(decoded) == want {
			return true
		}
	}
	return strings.Contains(info.Name(), want)
}

// onData is invoked on the miniaudio device thread once per block.
func (s *malgoSource) onData(_, samples []byte, _ uint32) {
	s.count.Add(1)

	var block []float32
	switch s.format {
	case config.FormatInt16:
		block = int16FromBytes(samples)
	default:
		block = float32FromBytes(samples)
	}
	s.sink.Push(block)
}

// onStop fires when the device stops. A stop nobody asked for is worth
// a diagnostic; a requested one is not.
func (s *malgoSource) onStop() {
	if s.stopping.Load() {
		return
	}
	s.log.Warn().
		Uint64("callback", s.count.Load()).
		Msg("Capture device stopped unexpectedly")
}

func (s *malgoSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.stopping.Store(false)
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

func (s *malgoSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.stopping.Store(true)
	// ma_device_stop blocks until the device thread is parked, so no
	// data callback begins after this returns.
	if err := s.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}

func (s *malgoSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.stopping.Store(true)

	s.device.Uninit()
	s.teardownContext()
	return nil
}

func (s *malgoSource) Callbacks() uint64 {
	return s.count.Load()
}

func (s *malgoSource) teardownContext() {
	if err := s.ctx.Uninit(); err != nil {
		s.log.Error().Err(err).Msg("Failed to uninit miniaudio context")
	}
	s.ctx.Free()
}

func listMalgoDevices() ([]Device, error) {
	ctx, err := malgo.InitContext(malgoBackends(), malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize miniaudio context: %w", err)
	}
	defer func() {
		ctx.Uninit() //nolint:errcheck
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	result := make([]Device, 0, len(infos))
	for i := range infos {
		id := infos[i].ID.String()
		if decoded, err := hex.DecodeString(id); err == nil {
			id = string(decoded)
		}
		result = append(result, Device{
			ID:      id,
			Name:    infos[i].Name(),
			Default: infos[i].IsDefault != 0,
		})
	}

	return result, nil
}
