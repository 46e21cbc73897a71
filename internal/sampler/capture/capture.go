// Package capture reads the host microphone through miniaudio.
package capture

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"
)

// ErrClosed is returned by Read after Close
var ErrClosed = errors.New("capture device closed")

// Config holds capture device configuration
type Config struct {
	SampleRate int
	DeviceName string // Case-insensitive substring of the device name, empty for default
	BufferSize int    // Samples held while the pipeline is busy
}

// Source is a sampler.Source backed by a capture device. The device
// callback appends into a bounded queue; Read drains it in order.
type Source struct {
	logger *zap.Logger
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []int16
	limit   int
	overrun uint64
	closed  bool
}

// Open initializes and starts the capture device
func Open(config Config, logger *zap.Logger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = config.SampleRate
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init malgo context: %w", err)
	}

	s := &Source{
		logger: logger,
		ctx:    ctx,
		limit:  config.BufferSize,
	}
	s.cond = sync.NewCond(&s.mu)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(config.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if config.DeviceName != "" {
		infos, err := ctx.Devices(malgo.Capture)
		if err == nil {
			for _, info := range infos {
				if strings.Contains(strings.ToLower(info.Name()), strings.ToLower(config.DeviceName)) {
					deviceConfig.Capture.DeviceID = info.ID.Pointer()
					logger.Info("selected capture device", zap.String("device", info.Name()))
					break
				}
			}
		}
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: s.onFrames})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to init capture device: %w", err)
	}
	s.device = device

	if err := device.Start(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start capture device: %w", err)
	}

	logger.Info("capture device started", zap.Uint32("sample_rate", device.SampleRate()))
	return s, nil
}

func (s *Source) onFrames(_, input []byte, frameCount uint32) {
	if len(input) < 2 {
		return
	}
	samples := unsafe.Slice((*int16)(unsafe.Pointer(&input[0])), int(frameCount))

	s.mu.Lock()
	s.queue = append(s.queue, samples...)
	if excess := len(s.queue) - s.limit; excess > 0 {
		// Oldest audio goes first; the pipeline has fallen too far behind.
		s.queue = append(s.queue[:0], s.queue[excess:]...)
		s.overrun += uint64(excess)
	}
	s.mu.Unlock()
	s.cond.Signal()
}

// Read blocks until len(buf) samples are available
func (s *Source) Read(buf []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.queue) < len(buf) && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return ErrClosed
	}

	n := copy(buf, s.queue)
	s.queue = append(s.queue[:0], s.queue[n:]...)
	return nil
}

// Overruns returns how many samples were dropped because Read fell behind
func (s *Source) Overruns() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overrun
}

// Close stops the device and wakes any blocked Read
func (s *Source) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()

	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	if s.ctx != nil {
		_ = s.ctx.Uninit()
		s.ctx.Free()
		s.ctx = nil
	}
}
