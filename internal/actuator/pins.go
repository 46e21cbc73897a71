package actuator

import (
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/tarm/serial"
	"go.uber.org/zap"
)

// SerialPin drives a companion board that owns the buzzer and LED pins.
// Commands are newline terminated: "TONE <hz>", "OFF" and "LED 0|1".
type SerialPin struct {
	mu   sync.Mutex
	conn io.Writer
}

// NewSerialPin wraps an already open connection
func NewSerialPin(conn io.Writer) *SerialPin {
	return &SerialPin{conn: conn}
}

// OpenSerial opens the companion board's serial port
func OpenSerial(port string, baud int) (*SerialPin, error) {
	config := &serial.Config{
		Name:        port,
		Baud:        baud,
		ReadTimeout: 500 * time.Millisecond,
	}
	s, err := serial.OpenPort(config)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	return NewSerialPin(s), nil
}

// Tone starts a square wave at hz
func (p *SerialPin) Tone(hz float64) error {
	return p.send(fmt.Sprintf("TONE %d", int(math.Round(hz))))
}

// Silence stops the tone
func (p *SerialPin) Silence() error {
	return p.send("OFF")
}

// Set switches the indicator LED
func (p *SerialPin) Set(on bool) error {
	if on {
		return p.send("LED 1")
	}
	return p.send("LED 0")
}

// Close closes the port when the connection supports it
func (p *SerialPin) Close() error {
	if c, ok := p.conn.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (p *SerialPin) send(cmd string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := io.WriteString(p.conn, cmd+"\n"); err != nil {
		return fmt.Errorf("serial write %q: %w", cmd, err)
	}
	return nil
}

// LogPin is a dry-run buzzer and indicator that only logs
type LogPin struct {
	logger *zap.Logger

	mu        sync.Mutex
	frequency float64
	lit       bool
}

// NewLogPin creates a dry-run pin
func NewLogPin(logger *zap.Logger) *LogPin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPin{logger: logger}
}

func (p *LogPin) Tone(hz float64) error {
	p.mu.Lock()
	p.frequency = hz
	p.mu.Unlock()
	p.logger.Debug("pin tone", zap.Float64("frequency_hz", hz))
	return nil
}

func (p *LogPin) Silence() error {
	p.mu.Lock()
	p.frequency = 0
	p.mu.Unlock()
	p.logger.Debug("pin silence")
	return nil
}

func (p *LogPin) Set(on bool) error {
	p.mu.Lock()
	p.lit = on
	p.mu.Unlock()
	p.logger.Debug("pin indicator", zap.Bool("on", on))
	return nil
}

// Frequency returns the tone being played, 0 when silent
func (p *LogPin) Frequency() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frequency
}

// Lit reports the indicator state
func (p *LogPin) Lit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lit
}
