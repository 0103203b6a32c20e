package audio

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/petems/audiotap/internal/config"
)

// portAudioSource captures via PortAudio's callback API. The callback
// runs on a thread owned by the PortAudio runtime; the sink is the only
// thing it shares with the rest of the process.
type portAudioSource struct {
	stream *portaudio.Stream
	sink   Sink
	log    zerolog.Logger

	count atomic.Uint64

	mu     sync.Mutex
	closed bool
}

func newPortAudioSource(cfg config.AudioConfig, sink Sink, log zerolog.Logger) (*portAudioSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	device, err := findInputDevice(cfg.Device)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	s := &portAudioSource{sink: sink, log: log}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: cfg.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.BlockSize,
	}

	var stream *portaudio.Stream
	switch cfg.Format {
	case config.FormatInt16:
		stream, err = portaudio.OpenStream(params, s.onInt16)
	default:
		stream, err = portaudio.OpenStream(params, s.onFloat32)
	}
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}

	s.stream = stream
	log.Info().
		Str("device", device.Name).
		Int("channels", cfg.Channels).
		Int("sample_rate", cfg.SampleRate).
		Int("block_size", cfg.BlockSize).
		Msg("PortAudio stream created")

	return s, nil
}

// findInputDevice resolves a device name to a PortAudio input device.
// An empty name selects the default input device.
func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: no default input device: %v", ErrDeviceUnavailable, err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrDeviceUnavailable, name)
}

// onFloat32 is the stream callback for float32 capture. Invoked on the
// driver thread once per block.
func (s *portAudioSource) onFloat32(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	n := s.count.Add(1)
	s.reportStatus(n, flags)

	block := make([]float32, len(in))
	copy(block, in)
	s.sink.Push(block)
}

// onInt16 is the stream callback for int16 capture.
func (s *portAudioSource) onInt16(in []int16, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	n := s.count.Add(1)
	s.reportStatus(n, flags)

	s.sink.Push(int16ToFloat32(in))
}

// reportStatus logs a non-nominal driver status. Observability only,
// capture continues regardless.
func (s *portAudioSource) reportStatus(callback uint64, flags portaudio.StreamCallbackFlags) {
	if flags == 0 {
		return
	}
	s.log.Warn().
		Uint64("callback", callback).
		Str("status", callbackFlagsString(flags)).
		Msg("Driver reported non-nominal status")
}

func callbackFlagsString(flags portaudio.StreamCallbackFlags) string {
	var parts []string
	if flags&portaudio.InputOverflow != 0 {
		parts = append(parts, "input overflow")
	}
	if flags&portaudio.InputUnderflow != 0 {
		parts = append(parts, "input underflow")
	}
	if flags&portaudio.OutputOverflow != 0 {
		parts = append(parts, "output overflow")
	}
	if flags&portaudio.OutputUnderflow != 0 {
		parts = append(parts, "output underflow")
	}
	if len(parts) == 0 {
		return fmt.Sprintf("flags 0x%x", int(flags))
	}
	return strings.Join(parts, ", ")
}

func (s *portAudioSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	return nil
}

func (s *portAudioSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	// Pa_StopStream waits for the running callback to finish, so no
	// callback begins after this returns.
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop audio stream: %w", err)
	}
	return nil
}

func (s *portAudioSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := s.stream.Close()
	portaudio.Terminate()
	if err != nil {
		return fmt.Errorf("failed to close audio stream: %w", err)
	}
	return nil
}

func (s *portAudioSource) Callbacks() uint64 {
	return s.count.Load()
}

func listPortAudioDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]Device, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, Device{
				ID:      d.Name,
				Name:    d.Name,
				Default: d == defaultDevice,
			})
		}
	}

	return result, nil
}
