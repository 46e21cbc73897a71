package actuator

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/hslarson/Dog-Bark-Detector/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func buzzerThresholds() models.Thresholds {
	return models.Thresholds{
		BarkThreshold:   700,
		NoiseFloor:      150,
		FreqMin:         600,
		FreqMax:         1600,
		DurationMin:     60 * time.Millisecond,
		DurationMax:     250 * time.Millisecond,
		BuzzerFrequency: 19000,
		BuzzerLinger:    5 * time.Second,
	}
}

type failingPin struct{}

func (failingPin) Tone(float64) error { return errors.New("gpio busy") }
func (failingPin) Silence() error     { return errors.New("gpio busy") }

func TestBuzzerLingers(t *testing.T) {
	pin := NewLogPin(zaptest.NewLogger(t))
	b := NewBuzzer(pin, pin, Config{}, zaptest.NewLogger(t))
	th := buzzerThresholds()

	require.NoError(t, b.Trigger(epoch, th))
	assert.True(t, b.Active())
	assert.Equal(t, 19000.0, pin.Frequency())
	assert.True(t, pin.Lit())

	require.NoError(t, b.Tick(epoch.Add(4999*time.Millisecond)))
	assert.True(t, b.Active())

	require.NoError(t, b.Tick(epoch.Add(5*time.Second)))
	assert.False(t, b.Active())
	assert.Zero(t, pin.Frequency())
	assert.False(t, pin.Lit())
}

func TestBuzzerRetriggerRestarts(t *testing.T) {
	pin := NewLogPin(nil)
	b := NewBuzzer(pin, nil, Config{}, zaptest.NewLogger(t))
	th := buzzerThresholds()

	require.NoError(t, b.Trigger(epoch, th))
	require.NoError(t, b.Trigger(epoch.Add(3*time.Second), th))

	// Restarted from the second trigger, not stacked on the first
	assert.Equal(t, epoch.Add(8*time.Second), b.Until())

	require.NoError(t, b.Tick(epoch.Add(7*time.Second)))
	assert.True(t, b.Active())
	require.NoError(t, b.Tick(epoch.Add(8*time.Second)))
	assert.False(t, b.Active())
}

func TestBuzzerFrequencyChangeWhileSounding(t *testing.T) {
	pin := NewLogPin(nil)
	b := NewBuzzer(pin, nil, Config{}, zaptest.NewLogger(t))
	th := buzzerThresholds()

	require.NoError(t, b.Trigger(epoch, th))
	th.BuzzerFrequency = 15000
	require.NoError(t, b.Trigger(epoch.Add(time.Second), th))
	assert.Equal(t, 15000.0, pin.Frequency())
}

func TestBuzzerRetriggerCooldown(t *testing.T) {
	pin := NewLogPin(nil)
	b := NewBuzzer(pin, nil, Config{RetriggerCooldown: 2 * time.Second}, zaptest.NewLogger(t))
	th := buzzerThresholds()

	require.NoError(t, b.Trigger(epoch, th))
	require.NoError(t, b.Tick(epoch.Add(5*time.Second)))

	require.NoError(t, b.Trigger(epoch.Add(6*time.Second), th))
	assert.False(t, b.Active(), "still inside the quiet period")

	require.NoError(t, b.Trigger(epoch.Add(7*time.Second), th))
	assert.True(t, b.Active())
}

func TestBuzzerPinFailure(t *testing.T) {
	b := NewBuzzer(failingPin{}, nil, Config{}, zaptest.NewLogger(t))

	err := b.Trigger(epoch, buzzerThresholds())
	assert.Error(t, err)
	assert.False(t, b.Active())
}

func TestBuzzerStop(t *testing.T) {
	pin := NewLogPin(nil)
	b := NewBuzzer(pin, nil, Config{}, zaptest.NewLogger(t))

	require.NoError(t, b.Stop())
	require.NoError(t, b.Trigger(epoch, buzzerThresholds()))
	require.NoError(t, b.Stop())
	assert.False(t, b.Active())
	assert.Zero(t, pin.Frequency())
}

func TestSerialPinProtocol(t *testing.T) {
	var buf bytes.Buffer
	pin := NewSerialPin(&buf)

	require.NoError(t, pin.Tone(18999.6))
	require.NoError(t, pin.Set(true))
	require.NoError(t, pin.Silence())
	require.NoError(t, pin.Set(false))
	require.NoError(t, pin.Close())

	assert.Equal(t, "TONE 19000\nLED 1\nOFF\nLED 0\n", buf.String())
}
